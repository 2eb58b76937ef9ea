package ancs

import (
	"errors"
	"fmt"
)

// DefaultMaxResponseBytes bounds a single Data Source response
const DefaultMaxResponseBytes = 1024

// Expectation describes the Data Source response a request should produce.
// Fields must arrive in exactly the order of Attributes.
type Expectation struct {
	Command    CommandID
	UID        uint32
	AppID      string
	Attributes []uint8
}

// Completed is a fully reassembled Data Source response
type Completed struct {
	RequestID uint64
	Header    DataSourceHeader
	Fields    []AttributeField // in request order

	// Trailing holds bytes received after the last expected field
	Trailing []byte
}

// assembly is the reassembly buffer for one pending request
type assembly struct {
	expect Expectation
	buf    []byte
	total  int  // bytes received so far
	header bool // header parsed
	cursor int  // offset of the next unparsed byte in buf
	fields []AttributeField
	hdr    DataSourceHeader
}

// Reassembler turns Data Source fragments into complete attribute sets.
// BLE notifications carry at most MTU-3 bytes, so one response usually
// spans several fragments with fields split at arbitrary offsets.
type Reassembler struct {
	maxBytes int
	pending  map[uint64]*assembly
}

// NewReassembler creates a Reassembler. maxBytes <= 0 selects DefaultMaxResponseBytes.
func NewReassembler(maxBytes int) *Reassembler {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxResponseBytes
	}
	return &Reassembler{
		maxBytes: maxBytes,
		pending:  make(map[uint64]*assembly),
	}
}

// Begin registers a pending request. Any buffer already held for id is replaced.
func (r *Reassembler) Begin(id uint64, expect Expectation) {
	attrs := make([]uint8, len(expect.Attributes))
	copy(attrs, expect.Attributes)
	expect.Attributes = attrs
	r.pending[id] = &assembly{expect: expect}
}

// Feed appends a fragment to the buffer for id and parses as many fields as
// are available. It returns a non-nil Completed once every expected field
// has been parsed; the buffer is released at that point. On
// ErrResponseMismatch or ErrResponseTooLarge the buffer is discarded too.
func (r *Reassembler) Feed(id uint64, fragment []byte) (*Completed, error) {
	a, ok := r.pending[id]
	if !ok {
		return nil, fmt.Errorf("%w: request %d", ErrNoPendingRequest, id)
	}

	a.total += len(fragment)
	if a.total > r.maxBytes {
		delete(r.pending, id)
		return nil, fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrResponseTooLarge, a.total, r.maxBytes)
	}
	a.buf = append(a.buf, fragment...)

	if !a.header {
		hdr, n, err := DecodeDataSourceHeader(a.buf)
		if errors.Is(err, ErrIncomplete) {
			return nil, nil
		}
		if err != nil {
			delete(r.pending, id)
			return nil, fmt.Errorf("%w: %v", ErrResponseMismatch, err)
		}
		if err := a.checkHeader(hdr); err != nil {
			delete(r.pending, id)
			return nil, err
		}
		a.hdr = hdr
		a.header = true
		a.cursor = n
	}

	for len(a.fields) < len(a.expect.Attributes) {
		field, next, ok := ParseAttributeField(a.buf, a.cursor)
		if !ok {
			// Peek at the id byte so a desynchronized stream fails fast
			// instead of waiting for a bogus length to fill up
			if a.cursor < len(a.buf) {
				if want := a.expect.Attributes[len(a.fields)]; a.buf[a.cursor] != want {
					delete(r.pending, id)
					return nil, fmt.Errorf("%w: got attribute %d at position %d, want %d",
						ErrResponseMismatch, a.buf[a.cursor], len(a.fields), want)
				}
			}
			break
		}
		want := a.expect.Attributes[len(a.fields)]
		if field.ID != want {
			delete(r.pending, id)
			return nil, fmt.Errorf("%w: got attribute %d at position %d, want %d",
				ErrResponseMismatch, field.ID, len(a.fields), want)
		}
		a.fields = append(a.fields, field)
		a.cursor = next
	}

	if len(a.fields) < len(a.expect.Attributes) {
		// Drop parsed bytes so the buffer only holds the partial field
		a.buf = append(a.buf[:0], a.buf[a.cursor:]...)
		a.cursor = 0
		return nil, nil
	}

	delete(r.pending, id)
	done := &Completed{
		RequestID: id,
		Header:    a.hdr,
		Fields:    a.fields,
	}
	if a.cursor < len(a.buf) {
		done.Trailing = append([]byte(nil), a.buf[a.cursor:]...)
	}
	return done, nil
}

func (a *assembly) checkHeader(hdr DataSourceHeader) error {
	if hdr.Command != a.expect.Command {
		return fmt.Errorf("%w: response to %s, want %s", ErrResponseMismatch, hdr.Command, a.expect.Command)
	}
	switch hdr.Command {
	case CommandGetNotificationAttributes:
		if hdr.UID != a.expect.UID {
			return fmt.Errorf("%w: response for uid %d, want %d", ErrResponseMismatch, hdr.UID, a.expect.UID)
		}
	case CommandGetAppAttributes:
		if hdr.AppID != a.expect.AppID {
			return fmt.Errorf("%w: response for app %q, want %q", ErrResponseMismatch, hdr.AppID, a.expect.AppID)
		}
	}
	return nil
}

// Discard drops the buffer for id, if any
func (r *Reassembler) Discard(id uint64) {
	delete(r.pending, id)
}

// Reset drops every buffer (called on disconnection)
func (r *Reassembler) Reset() {
	r.pending = make(map[uint64]*assembly)
}

// Pending returns the number of requests with an open buffer
func (r *Reassembler) Pending() int {
	return len(r.pending)
}

// Buffered returns the number of bytes received so far for id
func (r *Reassembler) Buffered(id uint64) int {
	if a, ok := r.pending[id]; ok {
		return a.total
	}
	return 0
}
