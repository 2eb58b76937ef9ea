package eventlog

import (
	"sync"
	"time"
)

// Event is one protocol event captured by the session.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred.
	Timestamp time.Time `cbor:"1,keyasint"`

	// LinkID identifies the BLE link (a new UUID per session start).
	LinkID string `cbor:"2,keyasint"`

	Direction Direction `cbor:"3,keyasint"`
	Category  Category  `cbor:"4,keyasint"`

	// Characteristic is the short ANCS characteristic name for frames.
	Characteristic string `cbor:"5,keyasint,omitempty"`

	// Data holds raw characteristic bytes (frames only).
	Data []byte `cbor:"6,keyasint,omitempty"`

	// UID is the notification the event relates to, if any.
	UID *uint32 `cbor:"7,keyasint,omitempty"`

	// AppID is the app the event relates to, if any.
	AppID string `cbor:"8,keyasint,omitempty"`

	// State transition (state events only).
	OldState string `cbor:"9,keyasint,omitempty"`
	NewState string `cbor:"10,keyasint,omitempty"`

	// Message is a human-readable description (errors, request lifecycle).
	Message string `cbor:"11,keyasint,omitempty"`
}

// Direction indicates the direction of data flow.
type Direction uint8

const (
	// DirectionIn is data received from the phone.
	DirectionIn Direction = 0
	// DirectionOut is data sent to the phone.
	DirectionOut Direction = 1
	// DirectionLocal is a local event (state change, error).
	DirectionLocal Direction = 2
)

func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	case DirectionLocal:
		return "LOCAL"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryFrame is a raw characteristic write or notification.
	CategoryFrame Category = 0
	// CategoryState is a session state change.
	CategoryState Category = 1
	// CategoryRequest is a Control Point request lifecycle event.
	CategoryRequest Category = 2
	// CategoryError is a protocol error.
	CategoryError Category = 3
)

func (c Category) String() string {
	switch c {
	case CategoryFrame:
		return "FRAME"
	case CategoryState:
		return "STATE"
	case CategoryRequest:
		return "REQUEST"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Logger receives protocol events. Implementations must be safe for
// concurrent use and should not block.
type Logger interface {
	Log(event Event)
}

// NoopLogger discards all events.
type NoopLogger struct{}

// Log discards the event.
func (NoopLogger) Log(Event) {}

var _ Logger = NoopLogger{}

// MemoryLogger keeps events in memory. Intended for tests and the simulator.
type MemoryLogger struct {
	mu     sync.Mutex
	events []Event
}

// Log appends the event.
func (m *MemoryLogger) Log(event Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

// Events returns a copy of the recorded events.
func (m *MemoryLogger) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

var _ Logger = (*MemoryLogger)(nil)
