package session

import (
	"fmt"
	"time"
)

// requestTracker holds the single outstanding Control Point request.
// ANCS Data Source responses carry no correlation id, so only one request
// may be outstanding at a time for responses to be unambiguous.
type requestTracker struct {
	pending *PendingRequest
	timeout time.Duration
}

func newRequestTracker(timeout time.Duration) requestTracker {
	return requestTracker{timeout: timeout}
}

// start registers req as in flight. Returns an error if another request is pending.
func (rt *requestTracker) start(req *PendingRequest, now time.Time) error {
	if rt.pending != nil {
		return fmt.Errorf("request %s already pending", rt.pending)
	}
	req.Attempt++
	req.SentAt = now
	req.LastActivity = now
	rt.pending = req
	return nil
}

// touch records Data Source activity for the pending request
func (rt *requestTracker) touch(now time.Time) {
	if rt.pending != nil {
		rt.pending.LastActivity = now
	}
}

// expired reports whether the pending request saw no activity within the timeout
func (rt *requestTracker) expired(now time.Time) bool {
	return rt.pending != nil && rt.pending.expectsResponse() && now.Sub(rt.pending.LastActivity) >= rt.timeout
}

// is reports whether req is the pending request
func (rt *requestTracker) is(req *PendingRequest) bool {
	return rt.pending != nil && rt.pending == req
}

// finish clears and returns the pending request
func (rt *requestTracker) finish() *PendingRequest {
	req := rt.pending
	rt.pending = nil
	return req
}

func (rt *requestTracker) busy() bool {
	return rt.pending != nil
}
