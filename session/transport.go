package session

import (
	"github.com/google/uuid"

	"github.com/user/ancs-blue/notify"
	"github.com/user/ancs-blue/wire/ancs"
)

// Transport is the BLE link the session runs on. The link is already
// connected and paired; characteristics are addressed by UUID.
type Transport interface {
	// Subscribe enables notifications on char and delivers each
	// notification payload to handler
	Subscribe(char uuid.UUID, handler func(data []byte)) error

	// Unsubscribe disables notifications on char
	Unsubscribe(char uuid.UUID) error

	// Write performs a write-with-response and returns once the peer
	// acknowledged or rejected it. Control Point rejections should be
	// reported as *ancs.CommandError.
	Write(char uuid.UUID, data []byte) error

	// IsConnected reports whether the link is still up
	IsConnected() bool
}

// Delegate receives session callbacks. Callbacks run on the goroutine that
// fed the session, never while the session lock is held, so they may call
// back into the session.
type Delegate interface {
	StateChanged(from, to State)
	NotificationLoaded(n notify.Notification)
	NotificationRemoved(uid uint32)
	NotificationUnavailable(n notify.Notification)
	AppAttributesLoaded(appID string, attrs map[ancs.AppAttributeID]string)
	SessionError(err error)
}

// NopDelegate ignores every callback. Embed it to implement a subset.
type NopDelegate struct{}

func (NopDelegate) StateChanged(State, State)                                  {}
func (NopDelegate) NotificationLoaded(notify.Notification)                     {}
func (NopDelegate) NotificationRemoved(uint32)                                 {}
func (NopDelegate) NotificationUnavailable(notify.Notification)                {}
func (NopDelegate) AppAttributesLoaded(string, map[ancs.AppAttributeID]string) {}
func (NopDelegate) SessionError(error)                                         {}

var _ Delegate = NopDelegate{}
