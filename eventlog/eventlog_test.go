package eventlog

import (
	"bytes"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uidPtr(v uint32) *uint32 { return &v }

func TestEncodeDecodeEvent(t *testing.T) {
	ts := time.Date(2026, 10, 17, 9, 30, 15, 123456789, time.UTC)
	event := Event{
		Timestamp:      ts,
		LinkID:         "link-1",
		Direction:      DirectionIn,
		Category:       CategoryFrame,
		Characteristic: "DataSource",
		Data:           []byte{0x00, 0x2A, 0x00, 0x00, 0x00},
		UID:            uidPtr(42),
	}

	data, err := EncodeEvent(event)
	require.NoError(t, err)

	got, err := DecodeEvent(data)
	require.NoError(t, err)
	assert.True(t, got.Timestamp.Equal(ts))
	assert.Equal(t, event.LinkID, got.LinkID)
	assert.Equal(t, event.Data, got.Data)
	require.NotNil(t, got.UID)
	assert.Equal(t, uint32(42), *got.UID)
}

func TestFileLoggerAndReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ancs.cbor")

	l, err := NewFileLogger(path)
	require.NoError(t, err)
	l.Log(Event{LinkID: "a", Category: CategoryState, OldState: "Disconnected", NewState: "Subscribing"})
	l.Log(Event{LinkID: "a", Category: CategoryError, UID: uidPtr(7), Message: "timeout"})
	l.Log(Event{LinkID: "b", Category: CategoryError, Message: "malformed"})
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	// Logging after close is ignored
	l.Log(Event{LinkID: "c"})

	errs := CategoryError
	r, err := OpenReader(path, Filter{Category: &errs})
	require.NoError(t, err)
	defer r.Close()

	first, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "timeout", first.Message)

	second, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "b", second.LinkID)

	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReaderFilterByUID(t *testing.T) {
	var buf bytes.Buffer
	enc := encMode.NewEncoder(&buf)
	require.NoError(t, enc.Encode(Event{UID: uidPtr(1)}))
	require.NoError(t, enc.Encode(Event{}))
	require.NoError(t, enc.Encode(Event{UID: uidPtr(2), Message: "two"}))

	r := NewReader(&buf, Filter{UID: uidPtr(2)})
	ev, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "two", ev.Message)
	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
	assert.NoError(t, r.Close())
}

func TestMemoryLogger(t *testing.T) {
	var m MemoryLogger
	m.Log(Event{Message: "one"})
	events := m.Events()
	require.Len(t, events, 1)
	events[0].Message = "changed"
	assert.Equal(t, "one", m.Events()[0].Message)
}
