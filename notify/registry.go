package notify

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/user/ancs-blue/wire/ancs"
)

// ErrUnknownNotification is returned for Modified/Removed events on a uid the
// registry does not track. The registry resynchronizes instead of failing.
var ErrUnknownNotification = errors.New("notify: unknown notification")

// Action tells the session what to do after an event has been applied
type Action struct {
	Fetch  bool // queue a Get Notification Attributes for the uid
	Cancel bool // drop any queued or in-flight fetch for the uid
}

// record is the registry-owned mutable state behind a Notification
type record struct {
	n          Notification
	generation uint64 // bumped on every Modified so stale fetches can be dropped
}

// Registry tracks the notifications currently active on the phone.
// Readers always get copies; only the session mutates it.
type Registry struct {
	mu       sync.RWMutex
	records  map[uint32]*record
	appNames map[string]string
	now      func() time.Time
}

// NewRegistry creates an empty registry. now may be nil (time.Now).
func NewRegistry(now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{
		records:  make(map[uint32]*record),
		appNames: make(map[string]string),
		now:      now,
	}
}

// ApplyEvent applies a Notification Source event and reports the follow-up
// the session should take. A non-nil error is informational: the Action is
// still valid and must be honoured.
func (r *Registry) ApplyEvent(evt ancs.NotificationSourceEvent) (Action, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch evt.EventID {
	case ancs.EventAdded:
		if rec, ok := r.records[evt.UID]; ok {
			// Duplicate Added (e.g. replayed after resubscribe): keep the one record
			r.updateLocked(rec, evt)
			return Action{Fetch: !rec.n.Loaded}, nil
		}
		r.insertLocked(evt)
		return Action{Fetch: true}, nil

	case ancs.EventModified:
		rec, ok := r.records[evt.UID]
		if !ok {
			r.insertLocked(evt)
			return Action{Fetch: true}, fmt.Errorf("%w: modified uid %d, resynchronizing", ErrUnknownNotification, evt.UID)
		}
		r.updateLocked(rec, evt)
		// Previous content is superseded until the refetch commits
		rec.n.Attributes = map[ancs.AttributeID]string{}
		rec.n.AppDisplayName = ""
		rec.n.Loaded = false
		rec.n.Unavailable = false
		rec.generation++
		return Action{Fetch: true}, nil

	case ancs.EventRemoved:
		if _, ok := r.records[evt.UID]; !ok {
			return Action{Cancel: true}, fmt.Errorf("%w: removed uid %d", ErrUnknownNotification, evt.UID)
		}
		delete(r.records, evt.UID)
		return Action{Cancel: true}, nil
	}

	return Action{}, fmt.Errorf("%w: event id %s", ancs.ErrMalformedPacket, evt.EventID)
}

func (r *Registry) insertLocked(evt ancs.NotificationSourceEvent) {
	r.records[evt.UID] = &record{
		n: Notification{
			UID:           evt.UID,
			Category:      evt.Category,
			CategoryCount: evt.CategoryCount,
			Flags:         evt.Flags,
			Attributes:    map[ancs.AttributeID]string{},
			UpdatedAt:     r.now(),
		},
	}
}

func (r *Registry) updateLocked(rec *record, evt ancs.NotificationSourceEvent) {
	rec.n.Category = evt.Category
	rec.n.CategoryCount = evt.CategoryCount
	rec.n.Flags = evt.Flags
	rec.n.UpdatedAt = r.now()
}

// Generation returns the current generation of uid, used to tag fetches
func (r *Registry) Generation(uid uint32) (uint64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[uid]
	if !ok {
		return 0, false
	}
	return rec.generation, true
}

// Commit publishes a completed attribute fetch. It is a no-op, returning
// false, if the uid was removed or modified since the fetch was issued.
func (r *Registry) Commit(uid uint32, generation uint64, attrs map[ancs.AttributeID]string) (Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[uid]
	if !ok || rec.generation != generation {
		return Notification{}, false
	}

	fresh := make(map[ancs.AttributeID]string, len(attrs))
	for k, v := range attrs {
		fresh[k] = v
	}
	rec.n.Attributes = fresh
	rec.n.Loaded = true
	rec.n.Unavailable = false
	rec.n.UpdatedAt = r.now()
	if name, ok := r.appNames[fresh[ancs.AttrAppIdentifier]]; ok {
		rec.n.AppDisplayName = name
	}
	return rec.n.clone(), true
}

// MarkUnavailable flags uid as permanently failed to load. It stays in the
// registry with Loaded=false.
func (r *Registry) MarkUnavailable(uid uint32) (Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[uid]
	if !ok {
		return Notification{}, false
	}
	rec.n.Loaded = false
	rec.n.Unavailable = true
	return rec.n.clone(), true
}

// SetAppDisplayName caches an app's display name and applies it to every
// notification from that app
func (r *Registry) SetAppDisplayName(appID, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.appNames[appID] = name
	for _, rec := range r.records {
		if rec.n.Attributes[ancs.AttrAppIdentifier] == appID {
			rec.n.AppDisplayName = name
		}
	}
}

// AppDisplayName returns a cached display name
func (r *Registry) AppDisplayName(appID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.appNames[appID]
	return name, ok
}

// Get returns a snapshot of one notification
func (r *Registry) Get(uid uint32) (Notification, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[uid]
	if !ok {
		return Notification{}, false
	}
	return rec.n.clone(), true
}

// Contains reports whether uid is tracked
func (r *Registry) Contains(uid uint32) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.records[uid]
	return ok
}

// Active returns snapshots of every tracked notification keyed by uid.
// The returned map is owned by the caller.
func (r *Registry) Active() map[uint32]Notification {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[uint32]Notification, len(r.records))
	for uid, rec := range r.records {
		out[uid] = rec.n.clone()
	}
	return out
}

// Len returns the number of tracked notifications
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// Clear drops every notification (link loss or unsubscribe).
// The app display-name cache survives; names do not change between connections.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = make(map[uint32]*record)
}
