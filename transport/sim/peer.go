// Package sim is an in-memory iPhone that serves ANCS over a simulated GATT
// link. It implements session.Transport and is used by tests and the
// ancsctl simulate command.
//
// Notifications are queued and delivered only when the host calls Step or
// Pump, so tests control exactly how events interleave.
package sim

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/user/ancs-blue/logger"
	"github.com/user/ancs-blue/wire/ancs"
)

var (
	ErrNotConnected      = errors.New("sim: not connected")
	ErrNotNotifiable     = errors.New("sim: characteristic does not support notifications")
	ErrWriteNotPermitted = errors.New("sim: write not permitted")
	ErrUnknownUID        = errors.New("sim: unknown notification uid")
)

const logPrefix = "sim"

// Notification is a notification held by the simulated phone
type Notification struct {
	UID        uint32
	Category   ancs.CategoryID
	Flags      ancs.EventFlags
	Attributes map[ancs.AttributeID]string
}

// PerformedAction records a Perform Notification Action command
type PerformedAction struct {
	UID    uint32
	Action ancs.ActionID
}

type delivery struct {
	char uuid.UUID
	data []byte
}

// Option configures a Peer
type Option func(*Peer)

// WithMTU sets the ATT MTU used to fragment Data Source responses
func WithMTU(mtu int) Option {
	return func(p *Peer) { p.mtu = mtu }
}

// Peer is a simulated notification provider
type Peer struct {
	mu        sync.Mutex
	mtu       int
	connected bool
	cccd      *cccdTable

	notifications map[uint32]*Notification
	order         []uint32
	nextUID       uint32
	apps          map[string]string

	outbox  []delivery
	writes  [][]byte
	actions []PerformedAction

	// fault injection
	subscribeErr  map[uuid.UUID]error
	writeErr      error
	writeFailures int
	dropResponses int
	reorderNext   bool
}

// NewPeer returns a connected peer with no notifications
func NewPeer(opts ...Option) *Peer {
	p := &Peer{
		mtu:           DefaultMTU,
		connected:     true,
		cccd:          newCCCDTable(),
		notifications: make(map[uint32]*Notification),
		apps:          make(map[string]string),
		subscribeErr:  make(map[uuid.UUID]error),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Subscribe writes the CCCD of a notify characteristic. Subscribing to the
// Notification Source replays every existing notification as a
// pre-existing Added event.
func (p *Peer) Subscribe(char uuid.UUID, handler func([]byte)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.connected {
		return ErrNotConnected
	}
	if err, ok := p.subscribeErr[char]; ok {
		return err
	}
	if char != ancs.NotificationSourceUUID && char != ancs.DataSourceUUID {
		return fmt.Errorf("%w: %s", ErrNotNotifiable, ancs.CharacteristicName(char))
	}
	if err := p.cccd.write(char, cccdValue(CCCDNotificationsEnabled), handler); err != nil {
		return err
	}
	logger.Debug(logPrefix, "client subscribed to %s", ancs.CharacteristicName(char))

	if char == ancs.NotificationSourceUUID {
		for _, uid := range p.order {
			n := p.notifications[uid]
			p.emitLocked(ancs.EventAdded, n, n.Flags|ancs.FlagPreExisting)
		}
	}
	return nil
}

// Unsubscribe clears the CCCD of char
func (p *Peer) Unsubscribe(char uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return ErrNotConnected
	}
	return p.cccd.write(char, cccdValue(CCCDNotificationsDisabled), nil)
}

// Write handles a Control Point command. Responses to attribute requests
// are queued on the Data Source in MTU-sized fragments.
func (p *Peer) Write(char uuid.UUID, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.connected {
		return ErrNotConnected
	}
	if char != ancs.ControlPointUUID {
		return fmt.Errorf("%w: %s", ErrWriteNotPermitted, ancs.CharacteristicName(char))
	}
	p.writes = append(p.writes, append([]byte(nil), data...))

	if p.writeFailures > 0 {
		p.writeFailures--
		return p.writeErr
	}
	if len(data) == 0 {
		return ancs.NewCommandError(ancs.ErrCodeInvalidCommand, 0)
	}

	cmd := ancs.CommandID(data[0])
	switch cmd {
	case ancs.CommandGetNotificationAttributes:
		return p.getNotificationAttributesLocked(data)
	case ancs.CommandGetAppAttributes:
		return p.getAppAttributesLocked(data)
	case ancs.CommandPerformNotificationAction:
		return p.performActionLocked(data)
	}
	return ancs.NewCommandError(ancs.ErrCodeUnknownCommand, cmd)
}

// IsConnected reports whether the simulated link is up
func (p *Peer) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

func (p *Peer) getNotificationAttributesLocked(data []byte) error {
	uid, reqs, err := ancs.DecodeGetNotificationAttributes(data)
	if err != nil {
		return ancs.NewCommandError(ancs.ErrCodeInvalidCommand, ancs.CommandGetNotificationAttributes)
	}
	n, ok := p.notifications[uid]
	if !ok {
		return ancs.NewCommandError(ancs.ErrCodeInvalidParameter, ancs.CommandGetNotificationAttributes)
	}

	fields := make([]ancs.AttributeField, 0, len(reqs))
	for _, r := range reqs {
		v := n.Attributes[r.ID]
		if r.ID.NeedsMaxLength() && len(v) > int(r.MaxLength) {
			v = v[:r.MaxLength]
		}
		fields = append(fields, ancs.AttributeField{ID: uint8(r.ID), Value: []byte(v)})
	}
	p.respondLocked(fields, func(f []ancs.AttributeField) []byte {
		return ancs.EncodeNotificationAttributesResponse(uid, f)
	})
	return nil
}

func (p *Peer) getAppAttributesLocked(data []byte) error {
	appID, ids, err := ancs.DecodeGetAppAttributes(data)
	if err != nil {
		return ancs.NewCommandError(ancs.ErrCodeInvalidCommand, ancs.CommandGetAppAttributes)
	}

	fields := make([]ancs.AttributeField, 0, len(ids))
	for _, id := range ids {
		var v string
		if id == ancs.AppAttrDisplayName {
			v = p.apps[appID]
		}
		fields = append(fields, ancs.AttributeField{ID: uint8(id), Value: []byte(v)})
	}
	p.respondLocked(fields, func(f []ancs.AttributeField) []byte {
		return ancs.EncodeAppAttributesResponse(appID, f)
	})
	return nil
}

func (p *Peer) performActionLocked(data []byte) error {
	uid, action, err := ancs.DecodePerformNotificationAction(data)
	if err != nil {
		return ancs.NewCommandError(ancs.ErrCodeInvalidCommand, ancs.CommandPerformNotificationAction)
	}
	if _, ok := p.notifications[uid]; !ok {
		return ancs.NewCommandError(ancs.ErrCodeInvalidParameter, ancs.CommandPerformNotificationAction)
	}
	p.actions = append(p.actions, PerformedAction{UID: uid, Action: action})
	logger.Debug(logPrefix, "performed %s action on uid %d", action, uid)
	return nil
}

func (p *Peer) respondLocked(fields []ancs.AttributeField, encode func([]ancs.AttributeField) []byte) {
	if p.dropResponses > 0 {
		p.dropResponses--
		logger.Debug(logPrefix, "dropping response")
		return
	}
	if p.reorderNext && len(fields) > 1 {
		p.reorderNext = false
		fields = slices.Clone(fields)
		slices.Reverse(fields)
	}
	for _, chunk := range Fragment(encode(fields), p.mtu) {
		p.queueLocked(ancs.DataSourceUUID, chunk)
	}
}

// queueLocked holds a notification for Step/Pump. Payloads for
// unsubscribed characteristics are lost, as on a real link.
func (p *Peer) queueLocked(char uuid.UUID, data []byte) {
	if !p.cccd.subscribed(char) {
		return
	}
	p.outbox = append(p.outbox, delivery{char: char, data: data})
}

func (p *Peer) emitLocked(event ancs.EventID, n *Notification, flags ancs.EventFlags) {
	count := 0
	for _, other := range p.notifications {
		if other.Category == n.Category {
			count++
		}
	}
	pdu := ancs.EncodeNotificationSource(ancs.NotificationSourceEvent{
		EventID:       event,
		Flags:         flags,
		Category:      n.Category,
		CategoryCount: uint8(min(count, 255)),
		UID:           n.UID,
	})
	p.queueLocked(ancs.NotificationSourceUUID, pdu)
}

// AddNotification posts a new notification and returns its uid
func (p *Peer) AddNotification(category ancs.CategoryID, flags ancs.EventFlags, attrs map[ancs.AttributeID]string) uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()

	uid := p.nextUID
	p.nextUID++
	n := &Notification{UID: uid, Category: category, Flags: flags, Attributes: make(map[ancs.AttributeID]string)}
	for id, v := range attrs {
		n.Attributes[id] = v
	}
	p.notifications[uid] = n
	p.order = append(p.order, uid)
	p.emitLocked(ancs.EventAdded, n, flags)
	return uid
}

// ModifyNotification merges attrs into an existing notification and emits Modified
func (p *Peer) ModifyNotification(uid uint32, attrs map[ancs.AttributeID]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	n, ok := p.notifications[uid]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownUID, uid)
	}
	for id, v := range attrs {
		n.Attributes[id] = v
	}
	p.emitLocked(ancs.EventModified, n, n.Flags)
	return nil
}

// RemoveNotification dismisses a notification and emits Removed
func (p *Peer) RemoveNotification(uid uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	n, ok := p.notifications[uid]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownUID, uid)
	}
	delete(p.notifications, uid)
	p.order = slices.DeleteFunc(p.order, func(v uint32) bool { return v == uid })
	p.emitLocked(ancs.EventRemoved, n, n.Flags)
	return nil
}

// SetAppName sets the display name returned for appID
func (p *Peer) SetAppName(appID, name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.apps[appID] = name
}

// Inject queues a raw payload on char, bypassing the ANCS model
func (p *Peer) Inject(char uuid.UUID, data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queueLocked(char, append([]byte(nil), data...))
}

// FailSubscribe makes Subscribe on char return err
func (p *Peer) FailSubscribe(char uuid.UUID, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscribeErr[char] = err
}

// FailWrites makes the next n Control Point writes return err
func (p *Peer) FailWrites(n int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeFailures = n
	p.writeErr = err
}

// DropResponses accepts the next n attribute requests without answering
func (p *Peer) DropResponses(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dropResponses = n
}

// ReorderNextResponse sends the fields of the next response in reverse order
func (p *Peer) ReorderNextResponse() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reorderNext = true
}

// Disconnect drops the link. Queued payloads and subscriptions are lost.
func (p *Peer) Disconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = false
	p.outbox = nil
	p.cccd.clear()
}

// Reconnect brings the link back up with no subscriptions
func (p *Peer) Reconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = true
}

// Step delivers the oldest queued payload. It reports false if nothing
// was queued. The handler runs without the peer lock held.
func (p *Peer) Step() bool {
	p.mu.Lock()
	if len(p.outbox) == 0 {
		p.mu.Unlock()
		return false
	}
	d := p.outbox[0]
	p.outbox = p.outbox[1:]
	handler, ok := p.cccd.handler(d.char)
	p.mu.Unlock()

	if ok {
		logger.Trace(logPrefix, "notify %s: %x", ancs.CharacteristicName(d.char), d.data)
		handler(d.data)
	}
	return true
}

// Pump delivers queued payloads, including any queued while delivering,
// until none remain. Returns the number delivered.
func (p *Peer) Pump() int {
	n := 0
	for p.Step() {
		n++
	}
	return n
}

// Queued returns the number of undelivered payloads
func (p *Peer) Queued() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.outbox)
}

// IsSubscribed reports whether the client enabled notifications on char
func (p *Peer) IsSubscribed(char uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cccd.subscribed(char)
}

// Writes returns every Control Point write received
func (p *Peer) Writes() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.writes)
}

// Actions returns every performed notification action
func (p *Peer) Actions() []PerformedAction {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.actions)
}

// Notifications returns the uids of the phone's notifications in posting order
func (p *Peer) Notifications() []uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.order)
}
