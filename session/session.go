package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/user/ancs-blue/eventlog"
	"github.com/user/ancs-blue/logger"
	"github.com/user/ancs-blue/notify"
	"github.com/user/ancs-blue/wire/ancs"
)

const logPrefix = "ancs"

// State is the session lifecycle state
type State int

const (
	StateDisconnected State = iota
	StateSubscribing
	StateActive
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateSubscribing:
		return "Subscribing"
	case StateActive:
		return "Active"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Option configures a Session
type Option func(*Session)

// WithDelegate sets the callback receiver
func WithDelegate(d Delegate) Option {
	return func(s *Session) { s.delegate = d }
}

// WithRecorder records every frame, state change and error
func WithRecorder(l eventlog.Logger) Option {
	return func(s *Session) { s.events = l }
}

// WithClock replaces time.Now (tests drive timeouts with a fake clock)
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// Session is the ANCS client for one BLE link. It is driven entirely by
// calls from the host: transport callbacks (HandleNotificationSource,
// HandleDataSource, HandleDisconnect) and periodic Tick calls. It starts
// no goroutines of its own; Run is a convenience loop for hosts that want one.
type Session struct {
	mu        sync.Mutex
	transport Transport
	cfg       Config
	attrs     []ancs.AttributeRequest
	delegate  Delegate
	events    eventlog.Logger
	now       func() time.Time

	state       State
	linkID      string
	registry    *notify.Registry
	reassembler *ancs.Reassembler
	queue       requestQueue
	tracker     requestTracker
	nextID      uint64
	settleUntil time.Time
}

// effects collects work that must happen after the session lock is
// released: delegate callbacks and the next Control Point write
type effects struct {
	callbacks []func()
	send      *PendingRequest
	data      []byte
}

func (fx *effects) later(f func()) {
	fx.callbacks = append(fx.callbacks, f)
}

// New creates a disconnected session on t
func New(t Transport, cfg Config, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Session{
		transport: t,
		cfg:       cfg,
		attrs:     cfg.AttributeRequests(),
		delegate:  NopDelegate{},
		events:    eventlog.NoopLogger{},
		now:       time.Now,
		state:     StateDisconnected,
		tracker:   newRequestTracker(cfg.RequestTimeout),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registry = notify.NewRegistry(s.now)
	s.reassembler = ancs.NewReassembler(cfg.MaxReassemblyBytes)
	return s, nil
}

// Start subscribes to the Data Source and then the Notification Source, so
// no response can be missed once notifications start arriving. On failure
// the session unsubscribes whatever succeeded and stays Disconnected.
func (s *Session) Start() error {
	fx := &effects{}
	s.mu.Lock()
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.linkID = uuid.NewString()
	s.setStateLocked(StateSubscribing, fx)
	s.mu.Unlock()
	s.apply(fx)

	subscriptions := []struct {
		char    uuid.UUID
		handler func([]byte)
	}{
		{ancs.DataSourceUUID, s.HandleDataSource},
		{ancs.NotificationSourceUUID, s.HandleNotificationSource},
	}

	var subscribed []uuid.UUID
	for _, sub := range subscriptions {
		if err := s.transport.Subscribe(sub.char, sub.handler); err != nil {
			s.unsubscribeAll(subscribed, "failed start")
			serr := fmt.Errorf("%w: %s: %w", ErrSubscriptionFailed, ancs.CharacteristicName(sub.char), err)

			fx := &effects{}
			s.mu.Lock()
			s.resetLocked(fx)
			s.reportLocked(serr, nil, fx)
			s.mu.Unlock()
			s.apply(fx)
			return serr
		}
		subscribed = append(subscribed, sub.char)
		logger.Debug(logPrefix, "subscribed to %s", ancs.CharacteristicName(sub.char))
	}

	fx = &effects{}
	s.mu.Lock()
	active := s.state == StateSubscribing
	if active {
		s.setStateLocked(StateActive, fx)
		s.dispatchLocked(fx)
	}
	s.mu.Unlock()
	s.apply(fx)

	if !active {
		// Link dropped while subscribing
		s.unsubscribeAll(subscribed, "interrupted start")
		return ErrNotActive
	}
	return nil
}

// unsubscribeAll rolls back subscriptions made by Start
func (s *Session) unsubscribeAll(chars []uuid.UUID, reason string) {
	for _, char := range chars {
		if err := s.transport.Unsubscribe(char); err != nil {
			logger.Debug(logPrefix, "unsubscribe %s after %s: %v", ancs.CharacteristicName(char), reason, err)
		}
	}
}

// Stop unsubscribes from both notify characteristics and resets the session
func (s *Session) Stop() error {
	s.mu.Lock()
	if s.state == StateDisconnected {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	var errs []error
	for _, char := range []uuid.UUID{ancs.NotificationSourceUUID, ancs.DataSourceUUID} {
		if err := s.transport.Unsubscribe(char); err != nil {
			errs = append(errs, fmt.Errorf("unsubscribe %s: %w", ancs.CharacteristicName(char), err))
		}
	}

	fx := &effects{}
	s.mu.Lock()
	s.resetLocked(fx)
	s.mu.Unlock()
	s.apply(fx)
	return errors.Join(errs...)
}

// HandleDisconnect must be called on link loss. Every pending request is
// aborted and the registry is cleared.
func (s *Session) HandleDisconnect() {
	fx := &effects{}
	s.mu.Lock()
	if s.state != StateDisconnected {
		logger.Info(logPrefix, "link lost, clearing %d notifications", s.registry.Len())
		s.resetLocked(fx)
	}
	s.mu.Unlock()
	s.apply(fx)
}

// HandleNotificationSource processes one Notification Source payload
func (s *Session) HandleNotificationSource(data []byte) {
	fx := &effects{}
	s.mu.Lock()
	s.notificationSourceLocked(data, fx)
	s.mu.Unlock()
	s.apply(fx)
}

// HandleDataSource processes one Data Source payload (any fragment size)
func (s *Session) HandleDataSource(data []byte) {
	fx := &effects{}
	s.mu.Lock()
	s.dataSourceLocked(data, fx)
	s.mu.Unlock()
	s.apply(fx)
}

// Tick enforces the request timeout and resumes dispatch after a settle
// pause. Hosts call it periodically (Run does so).
func (s *Session) Tick() {
	fx := &effects{}
	s.mu.Lock()
	now := s.now()
	if s.tracker.expired(now) {
		req := s.tracker.pending
		logger.Warn(logPrefix, "request %s timed out after %s", req, s.cfg.RequestTimeout)
		s.settleLocked(now)
		s.failLocked(fmt.Errorf("%w after %s", ErrRequestTimeout, s.cfg.RequestTimeout), fx)
	}
	s.dispatchLocked(fx)
	s.mu.Unlock()
	s.apply(fx)
}

// RequestAppAttributes queues a Get App Attributes (DisplayName) request
func (s *Session) RequestAppAttributes(appID string) error {
	attrs := []ancs.AppAttributeID{ancs.AppAttrDisplayName}
	if _, err := ancs.EncodeGetAppAttributes(appID, attrs); err != nil {
		return err
	}

	fx := &effects{}
	s.mu.Lock()
	if s.state == StateDisconnected {
		s.mu.Unlock()
		return ErrNotActive
	}
	s.enqueueAppLocked(appID)
	s.dispatchLocked(fx)
	s.mu.Unlock()
	s.apply(fx)
	return nil
}

// PerformAction queues a positive or negative action on a notification,
// e.g. answering or declining an incoming call
func (s *Session) PerformAction(uid uint32, action ancs.ActionID) error {
	if _, err := ancs.EncodePerformNotificationAction(uid, action); err != nil {
		return err
	}

	fx := &effects{}
	s.mu.Lock()
	if s.state == StateDisconnected {
		s.mu.Unlock()
		return ErrNotActive
	}
	if !s.registry.Contains(uid) {
		s.mu.Unlock()
		return fmt.Errorf("%w: uid %d", notify.ErrUnknownNotification, uid)
	}
	req := s.newRequestLocked(KindPerformAction)
	req.UID = uid
	req.Action = action
	s.queue.push(req)
	logger.Debug(logPrefix, "queued %s", req)
	s.dispatchLocked(fx)
	s.mu.Unlock()
	s.apply(fx)
	return nil
}

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ActiveNotifications returns a snapshot of every active notification keyed by uid.
// Notifications whose attributes are still loading have Loaded=false and no attributes.
func (s *Session) ActiveNotifications() map[uint32]notify.Notification {
	return s.registry.Active()
}

// Notification returns a snapshot of one notification
func (s *Session) Notification(uid uint32) (notify.Notification, bool) {
	return s.registry.Get(uid)
}

// PendingCount returns the number of queued plus in-flight Control Point commands
func (s *Session) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.queue.len()
	if s.tracker.busy() {
		n++
	}
	return n
}

// InFlight returns a copy of the outstanding Control Point command, if any
func (s *Session) InFlight() (PendingRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tracker.pending == nil {
		return PendingRequest{}, false
	}
	return *s.tracker.pending, true
}

// apply runs deferred callbacks and performs Control Point writes outside
// the lock. A write can complete or fail synchronously, producing more
// work, so it loops until nothing is left.
func (s *Session) apply(fx *effects) {
	for {
		callbacks := fx.callbacks
		fx.callbacks = nil
		for _, cb := range callbacks {
			cb()
		}
		if fx.send == nil {
			return
		}

		req, data := fx.send, fx.data
		fx.send, fx.data = nil, nil
		logger.Trace(logPrefix, "control point write %s: %x", req, data)
		err := s.transport.Write(ancs.ControlPointUUID, data)

		s.mu.Lock()
		s.writeDoneLocked(req, err, fx)
		s.mu.Unlock()
	}
}

func (s *Session) writeDoneLocked(req *PendingRequest, err error, fx *effects) {
	if !s.tracker.is(req) {
		// Completed, cancelled or reset while the write was outstanding
		if err != nil {
			logger.Debug(logPrefix, "ignoring write error for finished request %s: %v", req, err)
		}
		return
	}
	if err != nil {
		s.failLocked(fmt.Errorf("control point write: %w", err), fx)
		return
	}
	if !req.expectsResponse() {
		s.tracker.finish()
		logger.Info(logPrefix, "performed %s action on uid %d", req.Action, req.UID)
		s.recordLocked(eventlog.Event{
			Direction: eventlog.DirectionLocal,
			Category:  eventlog.CategoryRequest,
			UID:       req.uidRef(),
			Message:   fmt.Sprintf("%s completed", req),
		})
		s.dispatchLocked(fx)
	}
}

func (s *Session) notificationSourceLocked(data []byte, fx *effects) {
	s.recordFrameLocked(eventlog.DirectionIn, ancs.NotificationSourceUUID, data)
	if s.state == StateDisconnected {
		logger.Debug(logPrefix, "dropping notification source while disconnected")
		return
	}

	evt, err := ancs.DecodeNotificationSource(data)
	if err != nil {
		s.reportLocked(err, nil, fx)
		return
	}
	logger.Debug(logPrefix, "notification source: %s uid=%d category=%s flags=[%s] count=%d",
		evt.EventID, evt.UID, evt.Category, evt.Flags, evt.CategoryCount)

	act, err := s.registry.ApplyEvent(evt)
	if err != nil {
		s.reportLocked(err, uidRef(evt.UID), fx)
	}
	if act.Cancel {
		s.cancelUIDLocked(evt.UID)
		if err == nil {
			uid := evt.UID
			fx.later(func() { s.delegate.NotificationRemoved(uid) })
		}
	}
	if act.Fetch {
		s.enqueueFetchLocked(evt.UID)
	}
	s.dispatchLocked(fx)
}

func (s *Session) dataSourceLocked(data []byte, fx *effects) {
	s.recordFrameLocked(eventlog.DirectionIn, ancs.DataSourceUUID, data)
	if s.state == StateDisconnected {
		return
	}

	req := s.tracker.pending
	if req == nil || !req.expectsResponse() {
		logger.Debug(logPrefix, "dropping %d unsolicited data source bytes", len(data))
		return
	}

	now := s.now()
	s.tracker.touch(now)
	done, err := s.reassembler.Feed(req.ID, data)
	if err != nil {
		logger.Warn(logPrefix, "aborting %s: %v", req, err)
		s.settleLocked(now)
		s.failLocked(err, fx)
		return
	}
	if done == nil {
		logger.Trace(logPrefix, "%s: %d bytes buffered", req, s.reassembler.Buffered(req.ID))
		return
	}

	s.tracker.finish()
	if len(done.Trailing) > 0 {
		logger.Warn(logPrefix, "%s: ignoring %d trailing bytes", req, len(done.Trailing))
	}
	s.completeLocked(req, done, fx)
	s.dispatchLocked(fx)
}

func (s *Session) completeLocked(req *PendingRequest, done *ancs.Completed, fx *effects) {
	s.recordLocked(eventlog.Event{
		Direction: eventlog.DirectionLocal,
		Category:  eventlog.CategoryRequest,
		UID:       req.uidRef(),
		AppID:     req.AppID,
		Message:   fmt.Sprintf("%s completed with %d fields", req, len(done.Fields)),
	})

	switch req.Kind {
	case KindNotificationAttributes:
		attrs := make(map[ancs.AttributeID]string, len(done.Fields))
		for _, f := range done.Fields {
			attrs[ancs.AttributeID(f.ID)] = string(f.Value)
		}
		n, ok := s.registry.Commit(req.UID, req.Generation, attrs)
		if !ok {
			logger.Debug(logPrefix, "dropping stale attributes for uid %d", req.UID)
			return
		}
		logger.Info(logPrefix, "loaded %s", n)
		logger.DebugJSON(logPrefix, "notification", n.Proto())
		fx.later(func() { s.delegate.NotificationLoaded(n) })

		if appID := n.AppID(); s.cfg.FetchAppNames && appID != "" {
			if _, known := s.registry.AppDisplayName(appID); !known {
				s.enqueueAppLocked(appID)
			}
		}

	case KindAppAttributes:
		attrs := make(map[ancs.AppAttributeID]string, len(done.Fields))
		for _, f := range done.Fields {
			attrs[ancs.AppAttributeID(f.ID)] = string(f.Value)
		}
		if name, ok := attrs[ancs.AppAttrDisplayName]; ok {
			s.registry.SetAppDisplayName(req.AppID, name)
		}
		logger.Debug(logPrefix, "app attributes for %q: %v", req.AppID, attrs)
		appID := req.AppID
		fx.later(func() { s.delegate.AppAttributesLoaded(appID, attrs) })
	}
}

// failLocked aborts the in-flight request with cause, then retries it or
// gives up according to the retry policy
func (s *Session) failLocked(cause error, fx *effects) {
	req := s.tracker.finish()
	if req == nil {
		return
	}
	s.reassembler.Discard(req.ID)

	final := req.Attempt > s.cfg.MaxRetries || !retryable(req, cause)

	superseded := false
	if req.Kind == KindNotificationAttributes {
		// A Modified during the fetch already queued a newer one, or the
		// notification is gone
		superseded = s.queue.hasFetch(req.UID) || !s.registry.Contains(req.UID)
	}

	rerr := &RequestError{
		Kind:    req.Kind,
		UID:     req.UID,
		AppID:   req.AppID,
		Attempt: req.Attempt,
		Final:   final || superseded,
		Err:     cause,
	}
	s.reportLocked(rerr, req.uidRef(), fx)

	switch {
	case superseded:
	case !final:
		s.queue.push(req)
	case req.Kind == KindNotificationAttributes:
		if n, ok := s.registry.MarkUnavailable(req.UID); ok {
			logger.Warn(logPrefix, "uid %d unavailable after %d attempts", req.UID, req.Attempt)
			fx.later(func() { s.delegate.NotificationUnavailable(n) })
		}
	}
	s.dispatchLocked(fx)
}

func retryable(req *PendingRequest, err error) bool {
	if req.Kind == KindPerformAction {
		return false
	}
	for _, code := range []uint8{ancs.ErrCodeUnknownCommand, ancs.ErrCodeInvalidCommand, ancs.ErrCodeInvalidParameter} {
		if ancs.IsCommandError(err, code) {
			return false
		}
	}
	return true
}

// dispatchLocked sends the next queued command if the single in-flight
// slot is free
func (s *Session) dispatchLocked(fx *effects) {
	if s.state != StateActive || s.tracker.busy() || fx.send != nil {
		return
	}
	now := s.now()
	if now.Before(s.settleUntil) {
		return
	}

	for {
		req := s.queue.pop()
		if req == nil {
			return
		}
		if req.Kind == KindNotificationAttributes {
			gen, ok := s.registry.Generation(req.UID)
			if !ok {
				logger.Debug(logPrefix, "skipping %s: notification removed", req)
				continue
			}
			req.Generation = gen
		}

		data, err := req.encode()
		if err != nil {
			s.reportLocked(&RequestError{Kind: req.Kind, UID: req.UID, AppID: req.AppID, Final: true, Err: err}, req.uidRef(), fx)
			continue
		}
		if err := s.tracker.start(req, now); err != nil {
			// Unreachable: busy() was checked above
			s.queue.push(req)
			return
		}
		if req.expectsResponse() {
			s.reassembler.Begin(req.ID, req.expectation())
		}
		logger.Debug(logPrefix, "sending %s (attempt %d, %d queued)", req, req.Attempt, s.queue.len())
		s.recordFrameLocked(eventlog.DirectionOut, ancs.ControlPointUUID, data)

		fx.send, fx.data = req, data
		return
	}
}

func (s *Session) enqueueFetchLocked(uid uint32) {
	if queued := s.queue.fetchFor(uid); queued != nil {
		// A retry waiting for content that has since changed starts over
		if gen, _ := s.registry.Generation(uid); queued.Attempt > 0 && gen != queued.Generation {
			logger.Debug(logPrefix, "%s now targets generation %d, resetting attempts", queued, gen)
			queued.Attempt = 0
		}
		return
	}
	if p := s.tracker.pending; p != nil && p.Kind == KindNotificationAttributes && p.UID == uid {
		if gen, _ := s.registry.Generation(uid); gen == p.Generation {
			return
		}
	}

	req := s.newRequestLocked(KindNotificationAttributes)
	req.UID = uid
	req.Attributes = append([]ancs.AttributeRequest(nil), s.attrs...)
	s.queue.push(req)
	logger.Debug(logPrefix, "queued %s", req)
}

func (s *Session) enqueueAppLocked(appID string) {
	if s.queue.hasApp(appID) {
		return
	}
	if p := s.tracker.pending; p != nil && p.Kind == KindAppAttributes && p.AppID == appID {
		return
	}
	req := s.newRequestLocked(KindAppAttributes)
	req.AppID = appID
	req.AppAttributes = []ancs.AppAttributeID{ancs.AppAttrDisplayName}
	s.queue.push(req)
	logger.Debug(logPrefix, "queued %s", req)
}

func (s *Session) newRequestLocked(kind RequestKind) *PendingRequest {
	s.nextID++
	return &PendingRequest{
		ID:         s.nextID,
		Kind:       kind,
		EnqueuedAt: s.now(),
	}
}

// cancelUIDLocked drops queued commands for uid and aborts its in-flight fetch
func (s *Session) cancelUIDLocked(uid uint32) {
	for _, req := range s.queue.removeUID(uid) {
		logger.Debug(logPrefix, "cancelled queued %s", req)
	}
	if p := s.tracker.pending; p != nil && p.Kind == KindNotificationAttributes && p.UID == uid {
		s.tracker.finish()
		s.reassembler.Discard(p.ID)
		// The phone may still be streaming the response
		s.settleLocked(s.now())
		logger.Debug(logPrefix, "cancelled in-flight %s", p)
	}
}

func (s *Session) settleLocked(now time.Time) {
	if s.cfg.SettleDelay > 0 {
		s.settleUntil = now.Add(s.cfg.SettleDelay)
	}
}

func (s *Session) resetLocked(fx *effects) {
	if p := s.tracker.finish(); p != nil {
		logger.Debug(logPrefix, "aborting in-flight %s", p)
	}
	if n := s.queue.len(); n > 0 {
		logger.Debug(logPrefix, "dropping %d queued requests", n)
	}
	s.queue.clear()
	s.reassembler.Reset()
	s.registry.Clear()
	s.settleUntil = time.Time{}
	s.setStateLocked(StateDisconnected, fx)
}

func (s *Session) setStateLocked(to State, fx *effects) {
	from := s.state
	if from == to {
		return
	}
	s.state = to
	logger.Info(logPrefix, "state %s -> %s", from, to)
	s.recordLocked(eventlog.Event{
		Direction: eventlog.DirectionLocal,
		Category:  eventlog.CategoryState,
		OldState:  from.String(),
		NewState:  to.String(),
	})
	fx.later(func() { s.delegate.StateChanged(from, to) })
}

func (s *Session) reportLocked(err error, uid *uint32, fx *effects) {
	logger.Warn(logPrefix, "%v", err)
	s.recordLocked(eventlog.Event{
		Direction: eventlog.DirectionLocal,
		Category:  eventlog.CategoryError,
		UID:       uid,
		Message:   err.Error(),
	})
	fx.later(func() { s.delegate.SessionError(err) })
}

func (s *Session) recordFrameLocked(dir eventlog.Direction, char uuid.UUID, data []byte) {
	s.recordLocked(eventlog.Event{
		Direction:      dir,
		Category:       eventlog.CategoryFrame,
		Characteristic: ancs.CharacteristicName(char),
		Data:           append([]byte(nil), data...),
	})
}

func (s *Session) recordLocked(ev eventlog.Event) {
	ev.Timestamp = s.now()
	ev.LinkID = s.linkID
	s.events.Log(ev)
}

func uidRef(uid uint32) *uint32 {
	return &uid
}
