package session

import (
	"fmt"
	"time"

	"github.com/user/ancs-blue/wire/ancs"
)

// RequestKind identifies the Control Point command behind a request
type RequestKind int

const (
	KindNotificationAttributes RequestKind = iota
	KindAppAttributes
	KindPerformAction
)

func (k RequestKind) String() string {
	switch k {
	case KindNotificationAttributes:
		return "GetNotificationAttributes"
	case KindAppAttributes:
		return "GetAppAttributes"
	case KindPerformAction:
		return "PerformNotificationAction"
	}
	return fmt.Sprintf("RequestKind(%d)", int(k))
}

// PendingRequest is a queued or in-flight Control Point command
type PendingRequest struct {
	ID            uint64
	Kind          RequestKind
	UID           uint32
	AppID         string
	Attributes    []ancs.AttributeRequest // KindNotificationAttributes, in request order
	AppAttributes []ancs.AppAttributeID   // KindAppAttributes
	Action        ancs.ActionID           // KindPerformAction

	// Generation of the notification when the fetch was sent; results for
	// an older generation are dropped
	Generation uint64

	Attempt      int // number of times sent
	EnqueuedAt   time.Time
	SentAt       time.Time
	LastActivity time.Time
}

// expectsResponse reports whether the command produces a Data Source response
func (r *PendingRequest) expectsResponse() bool {
	return r.Kind != KindPerformAction
}

func (r *PendingRequest) encode() ([]byte, error) {
	switch r.Kind {
	case KindNotificationAttributes:
		return ancs.EncodeGetNotificationAttributes(r.UID, r.Attributes)
	case KindAppAttributes:
		return ancs.EncodeGetAppAttributes(r.AppID, r.AppAttributes)
	case KindPerformAction:
		return ancs.EncodePerformNotificationAction(r.UID, r.Action)
	}
	return nil, fmt.Errorf("unknown request kind %d", int(r.Kind))
}

func (r *PendingRequest) expectation() ancs.Expectation {
	exp := ancs.Expectation{UID: r.UID, AppID: r.AppID}
	switch r.Kind {
	case KindNotificationAttributes:
		exp.Command = ancs.CommandGetNotificationAttributes
		for _, a := range r.Attributes {
			exp.Attributes = append(exp.Attributes, byte(a.ID))
		}
	case KindAppAttributes:
		exp.Command = ancs.CommandGetAppAttributes
		for _, a := range r.AppAttributes {
			exp.Attributes = append(exp.Attributes, byte(a))
		}
	}
	return exp
}

// uidRef is the notification uid for event records; nil for app requests
func (r *PendingRequest) uidRef() *uint32 {
	if r.Kind == KindAppAttributes {
		return nil
	}
	return uidRef(r.UID)
}

func (r *PendingRequest) String() string {
	switch r.Kind {
	case KindAppAttributes:
		return fmt.Sprintf("#%d %s app=%q", r.ID, r.Kind, r.AppID)
	case KindPerformAction:
		return fmt.Sprintf("#%d %s uid=%d action=%s", r.ID, r.Kind, r.UID, r.Action)
	}
	return fmt.Sprintf("#%d %s uid=%d", r.ID, r.Kind, r.UID)
}
