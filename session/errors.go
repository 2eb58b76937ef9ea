package session

import (
	"errors"
	"fmt"
)

var (
	// ErrRequestTimeout means a Control Point request saw no Data Source activity in time
	ErrRequestTimeout = errors.New("session: request timeout")

	// ErrSubscriptionFailed means a GATT subscribe was rejected; the session stays disconnected
	ErrSubscriptionFailed = errors.New("session: subscription failed")

	// ErrNotActive is returned for host requests while disconnected
	ErrNotActive = errors.New("session: not active")

	// ErrAlreadyStarted is returned by Start on a session that is not disconnected
	ErrAlreadyStarted = errors.New("session: already started")
)

// RequestError reports the failure of one Control Point request.
// It never affects other requests.
type RequestError struct {
	Kind    RequestKind
	UID     uint32
	AppID   string
	Attempt int
	Final   bool // no retry will follow
	Err     error
}

func (e *RequestError) Error() string {
	target := fmt.Sprintf("uid %d", e.UID)
	if e.Kind == KindAppAttributes {
		target = fmt.Sprintf("app %q", e.AppID)
	}
	retry := "will retry"
	if e.Final {
		retry = "giving up"
	}
	return fmt.Sprintf("%s for %s failed (attempt %d, %s): %v", e.Kind, target, e.Attempt, retry, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}
