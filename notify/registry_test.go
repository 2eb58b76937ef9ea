package notify

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/ancs-blue/wire/ancs"
)

func added(uid uint32, cat ancs.CategoryID) ancs.NotificationSourceEvent {
	return ancs.NotificationSourceEvent{EventID: ancs.EventAdded, Category: cat, CategoryCount: 1, UID: uid}
}

func TestRegistryAddedCreatesPlaceholder(t *testing.T) {
	r := NewRegistry(nil)

	act, err := r.ApplyEvent(added(42, ancs.CategoryIncomingCall))
	require.NoError(t, err)
	assert.True(t, act.Fetch)
	assert.False(t, act.Cancel)

	n, ok := r.Get(42)
	require.True(t, ok)
	assert.False(t, n.Loaded)
	assert.Empty(t, n.Attributes)
	assert.Equal(t, ancs.CategoryIncomingCall, n.Category)
}

func TestRegistryDuplicateAddedIsIdempotent(t *testing.T) {
	r := NewRegistry(nil)

	_, err := r.ApplyEvent(added(42, ancs.CategorySocial))
	require.NoError(t, err)
	_, err = r.ApplyEvent(added(42, ancs.CategorySocial))
	require.NoError(t, err)
	assert.Equal(t, 1, r.Len())

	gen, _ := r.Generation(42)
	_, ok := r.Commit(42, gen, map[ancs.AttributeID]string{ancs.AttrTitle: "t"})
	require.True(t, ok)

	act, err := r.ApplyEvent(added(42, ancs.CategorySocial))
	require.NoError(t, err)
	assert.False(t, act.Fetch, "loaded notification should not be refetched on duplicate Added")
	assert.Equal(t, 1, r.Len())
}

func TestRegistryCommitPublishesAtomically(t *testing.T) {
	r := NewRegistry(nil)
	_, _ = r.ApplyEvent(added(7, ancs.CategoryEmail))

	gen, ok := r.Generation(7)
	require.True(t, ok)

	n, ok := r.Commit(7, gen, map[ancs.AttributeID]string{
		ancs.AttrAppIdentifier: "com.apple.mobilemail",
		ancs.AttrTitle:         "Boss",
		ancs.AttrMessage:       "Meeting moved",
	})
	require.True(t, ok)
	assert.True(t, n.Loaded)
	assert.Equal(t, "com.apple.mobilemail", n.AppID())
	assert.Equal(t, "Boss", n.Title())
	assert.Equal(t, "Meeting moved", n.Message())

	// Snapshots are copies
	n.Attributes[ancs.AttrTitle] = "mutated"
	again, _ := r.Get(7)
	assert.Equal(t, "Boss", again.Title())
}

func TestRegistryModifiedInvalidatesAndBumpsGeneration(t *testing.T) {
	r := NewRegistry(nil)
	_, _ = r.ApplyEvent(added(1, ancs.CategoryOther))
	gen, _ := r.Generation(1)
	_, ok := r.Commit(1, gen, map[ancs.AttributeID]string{ancs.AttrTitle: "old"})
	require.True(t, ok)

	act, err := r.ApplyEvent(ancs.NotificationSourceEvent{EventID: ancs.EventModified, UID: 1, Category: ancs.CategoryNews})
	require.NoError(t, err)
	assert.True(t, act.Fetch)

	n, _ := r.Get(1)
	assert.False(t, n.Loaded)
	assert.Equal(t, ancs.CategoryNews, n.Category)
	assert.Empty(t, n.Attributes, "superseded content is not served")
	assert.Empty(t, n.Title())

	// A fetch issued before the modification is stale
	_, ok = r.Commit(1, gen, map[ancs.AttributeID]string{ancs.AttrTitle: "stale"})
	assert.False(t, ok)

	newGen, _ := r.Generation(1)
	assert.Equal(t, gen+1, newGen)
	n, ok = r.Commit(1, newGen, map[ancs.AttributeID]string{ancs.AttrTitle: "new"})
	require.True(t, ok)
	assert.Equal(t, "new", n.Title())
}

func TestRegistryModifiedUnknownResyncs(t *testing.T) {
	r := NewRegistry(nil)

	act, err := r.ApplyEvent(ancs.NotificationSourceEvent{EventID: ancs.EventModified, UID: 99})
	assert.ErrorIs(t, err, ErrUnknownNotification)
	assert.True(t, act.Fetch)
	assert.True(t, r.Contains(99))
}

func TestRegistryRemoved(t *testing.T) {
	r := NewRegistry(nil)
	_, _ = r.ApplyEvent(added(7, ancs.CategoryOther))

	act, err := r.ApplyEvent(ancs.NotificationSourceEvent{EventID: ancs.EventRemoved, UID: 7})
	require.NoError(t, err)
	assert.True(t, act.Cancel)
	assert.False(t, r.Contains(7))

	// A late commit for a removed uid is dropped
	_, ok := r.Commit(7, 0, map[ancs.AttributeID]string{ancs.AttrTitle: "late"})
	assert.False(t, ok)
	assert.NotContains(t, r.Active(), uint32(7))

	_, err = r.ApplyEvent(ancs.NotificationSourceEvent{EventID: ancs.EventRemoved, UID: 7})
	assert.ErrorIs(t, err, ErrUnknownNotification)
}

func TestRegistryUnknownEventID(t *testing.T) {
	r := NewRegistry(nil)
	act, err := r.ApplyEvent(ancs.NotificationSourceEvent{EventID: ancs.EventID(9), UID: 1})
	assert.ErrorIs(t, err, ancs.ErrMalformedPacket)
	assert.Equal(t, Action{}, act)
	assert.Equal(t, 0, r.Len())
}

func TestRegistryMarkUnavailable(t *testing.T) {
	r := NewRegistry(nil)
	_, _ = r.ApplyEvent(added(3, ancs.CategoryOther))

	n, ok := r.MarkUnavailable(3)
	require.True(t, ok)
	assert.True(t, n.Unavailable)
	assert.False(t, n.Loaded)
	assert.True(t, r.Contains(3))
	assert.True(t, strings.HasSuffix(n.String(), "(unavailable)"), n.String())

	pending, _ := r.ApplyEvent(added(4, ancs.CategoryOther))
	assert.True(t, pending.Fetch)
	loading, _ := r.Get(4)
	assert.True(t, strings.HasSuffix(loading.String(), "(loading)"), loading.String())
}

func TestRegistryAppDisplayName(t *testing.T) {
	r := NewRegistry(nil)
	_, _ = r.ApplyEvent(added(1, ancs.CategorySocial))
	gen, _ := r.Generation(1)
	_, _ = r.Commit(1, gen, map[ancs.AttributeID]string{ancs.AttrAppIdentifier: "com.apple.MobileSMS"})

	r.SetAppDisplayName("com.apple.MobileSMS", "Messages")
	n, _ := r.Get(1)
	assert.Equal(t, "Messages", n.AppDisplayName)

	// New notifications from a known app pick the name up on commit
	_, _ = r.ApplyEvent(added(2, ancs.CategorySocial))
	gen, _ = r.Generation(2)
	n, _ = r.Commit(2, gen, map[ancs.AttributeID]string{ancs.AttrAppIdentifier: "com.apple.MobileSMS"})
	assert.Equal(t, "Messages", n.AppDisplayName)

	r.Clear()
	assert.Equal(t, 0, r.Len())
	name, ok := r.AppDisplayName("com.apple.MobileSMS")
	assert.True(t, ok)
	assert.Equal(t, "Messages", name)
}

func TestRegistryConcurrentReaders(t *testing.T) {
	r := NewRegistry(nil)
	var wg sync.WaitGroup
	stop := make(chan struct{})

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				for _, n := range r.Active() {
					_ = n.Title()
				}
			}
		}()
	}

	for uid := uint32(0); uid < 200; uid++ {
		_, _ = r.ApplyEvent(added(uid, ancs.CategoryOther))
		gen, _ := r.Generation(uid)
		_, _ = r.Commit(uid, gen, map[ancs.AttributeID]string{ancs.AttrTitle: "x"})
	}
	close(stop)
	wg.Wait()
	assert.Equal(t, 200, r.Len())
}

func TestNotificationAccessors(t *testing.T) {
	n := Notification{
		UID:      5,
		Category: ancs.CategoryIncomingCall,
		Flags:    ancs.FlagPositiveAction | ancs.FlagNegativeAction,
		Attributes: map[ancs.AttributeID]string{
			ancs.AttrAppIdentifier:       "com.apple.mobilephone",
			ancs.AttrTitle:               "Mom",
			ancs.AttrMessage:             "Incoming Call",
			ancs.AttrMessageSize:         "13",
			ancs.AttrDate:                "20261017T093015",
			ancs.AttrPositiveActionLabel: "Answer",
			ancs.AttrNegativeActionLabel: "Decline",
		},
		Loaded: true,
	}

	assert.Equal(t, 13, n.MessageSize())
	d, ok := n.Date()
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 10, 17, 9, 30, 15, 0, time.Local), d)
	assert.True(t, n.PositiveAction())
	assert.False(t, n.Silent())
	assert.Equal(t, "Answer", n.PositiveActionLabel())
	assert.Equal(t, "Decline", n.NegativeActionLabel())
	assert.Contains(t, n.String(), "IncomingCall")
	assert.Contains(t, n.String(), "Mom")

	p := n.Proto()
	assert.Equal(t, "Mom", p.Fields["attributes"].GetStructValue().Fields["Title"].GetStringValue())
	assert.Equal(t, float64(5), p.Fields["uid"].GetNumberValue())

	empty := Notification{UID: 1}
	assert.Equal(t, -1, empty.MessageSize())
	_, ok = empty.Date()
	assert.False(t, ok)
}
