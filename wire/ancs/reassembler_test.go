package ancs

import (
	"bytes"
	"errors"
	"testing"
)

var defaultExpectation = Expectation{
	Command:    CommandGetNotificationAttributes,
	UID:        42,
	Attributes: []uint8{byte(AttrAppIdentifier), byte(AttrTitle), byte(AttrMessage)},
}

func defaultResponse() []byte {
	return EncodeNotificationAttributesResponse(42, []AttributeField{
		{ID: byte(AttrAppIdentifier), Value: []byte("com.apple.mobilephone")},
		{ID: byte(AttrTitle), Value: []byte("Mom")},
		{ID: byte(AttrMessage), Value: []byte("Incoming call")},
	})
}

func feedAll(t *testing.T, r *Reassembler, id uint64, chunks [][]byte) *Completed {
	t.Helper()
	var done *Completed
	for i, chunk := range chunks {
		c, err := r.Feed(id, chunk)
		if err != nil {
			t.Fatalf("Feed chunk %d failed: %v", i, err)
		}
		if c != nil {
			if done != nil {
				t.Fatal("Completed reported twice")
			}
			if i != len(chunks)-1 {
				t.Fatalf("Completed early at chunk %d of %d", i, len(chunks))
			}
			done = c
		}
	}
	return done
}

func split(data []byte, size int) [][]byte {
	var chunks [][]byte
	for len(data) > 0 {
		n := size
		if n > len(data) {
			n = len(data)
		}
		chunks = append(chunks, data[:n])
		data = data[n:]
	}
	return chunks
}

func TestReassembler_WholeResponse(t *testing.T) {
	r := NewReassembler(0)
	r.Begin(1, defaultExpectation)

	done := feedAll(t, r, 1, [][]byte{defaultResponse()})
	if done == nil {
		t.Fatal("Expected completion")
	}
	if done.RequestID != 1 || done.Header.UID != 42 {
		t.Errorf("Unexpected completion header %+v", done)
	}
	if len(done.Fields) != 3 {
		t.Fatalf("Expected 3 fields, got %d", len(done.Fields))
	}
	if string(done.Fields[1].Value) != "Mom" || string(done.Fields[2].Value) != "Incoming call" {
		t.Errorf("Unexpected field values %q %q", done.Fields[1].Value, done.Fields[2].Value)
	}
	if r.Pending() != 0 {
		t.Errorf("Expected buffer released, %d pending", r.Pending())
	}
}

func TestReassembler_FragmentSplitsMatchWhole(t *testing.T) {
	whole := defaultResponse()

	r := NewReassembler(0)
	r.Begin(1, defaultExpectation)
	reference := feedAll(t, r, 1, [][]byte{whole})

	for size := 1; size <= len(whole); size++ {
		r.Begin(uint64(size+1), defaultExpectation)
		done := feedAll(t, r, uint64(size+1), split(whole, size))
		if done == nil {
			t.Fatalf("size %d: expected completion", size)
		}
		if done.Header != reference.Header {
			t.Errorf("size %d: header %+v, want %+v", size, done.Header, reference.Header)
		}
		for i := range reference.Fields {
			if done.Fields[i].ID != reference.Fields[i].ID || !bytes.Equal(done.Fields[i].Value, reference.Fields[i].Value) {
				t.Errorf("size %d field %d: got %+v, want %+v", size, i, done.Fields[i], reference.Fields[i])
			}
		}
	}
}

func TestReassembler_AttributeOutOfOrder(t *testing.T) {
	data := EncodeNotificationAttributesResponse(42, []AttributeField{
		{ID: byte(AttrAppIdentifier), Value: []byte("com.example")},
		{ID: byte(AttrMessage), Value: []byte("body")},
		{ID: byte(AttrTitle), Value: []byte("title")},
	})

	r := NewReassembler(0)
	r.Begin(1, defaultExpectation)

	_, err := r.Feed(1, data)
	if !errors.Is(err, ErrResponseMismatch) {
		t.Fatalf("Expected ErrResponseMismatch, got %v", err)
	}
	if r.Pending() != 0 {
		t.Error("Expected buffer discarded after mismatch")
	}
	if _, err := r.Feed(1, []byte{0x00}); !errors.Is(err, ErrNoPendingRequest) {
		t.Errorf("Expected ErrNoPendingRequest after abort, got %v", err)
	}
}

func TestReassembler_MismatchDetectedOnSingleByteFeed(t *testing.T) {
	data := EncodeNotificationAttributesResponse(42, []AttributeField{
		{ID: byte(AttrTitle), Value: []byte("title")},
	})

	r := NewReassembler(0)
	r.Begin(1, defaultExpectation)

	var err error
	for i := 0; i < len(data) && err == nil; i++ {
		_, err = r.Feed(1, data[i:i+1])
	}
	if !errors.Is(err, ErrResponseMismatch) {
		t.Fatalf("Expected ErrResponseMismatch, got %v", err)
	}
}

func TestReassembler_WrongUID(t *testing.T) {
	r := NewReassembler(0)
	r.Begin(1, defaultExpectation)

	_, err := r.Feed(1, EncodeNotificationAttributesResponse(43, nil))
	if !errors.Is(err, ErrResponseMismatch) {
		t.Fatalf("Expected ErrResponseMismatch, got %v", err)
	}
}

func TestReassembler_WrongCommand(t *testing.T) {
	r := NewReassembler(0)
	r.Begin(1, defaultExpectation)

	_, err := r.Feed(1, EncodeAppAttributesResponse("com.example", nil))
	if !errors.Is(err, ErrResponseMismatch) {
		t.Fatalf("Expected ErrResponseMismatch, got %v", err)
	}
}

func TestReassembler_TooLarge(t *testing.T) {
	r := NewReassembler(16)
	r.Begin(1, defaultExpectation)

	if _, err := r.Feed(1, defaultResponse()[:10]); err != nil {
		t.Fatalf("First fragment should fit: %v", err)
	}
	_, err := r.Feed(1, defaultResponse()[10:20])
	if !errors.Is(err, ErrResponseTooLarge) {
		t.Fatalf("Expected ErrResponseTooLarge, got %v", err)
	}
	if r.Pending() != 0 {
		t.Error("Expected buffer discarded")
	}
}

func TestReassembler_AppAttributes(t *testing.T) {
	r := NewReassembler(0)
	r.Begin(9, Expectation{
		Command:    CommandGetAppAttributes,
		AppID:      "com.apple.MobileSMS",
		Attributes: []uint8{byte(AppAttrDisplayName)},
	})

	data := EncodeAppAttributesResponse("com.apple.MobileSMS", []AttributeField{
		{ID: byte(AppAttrDisplayName), Value: []byte("Messages")},
	})
	done := feedAll(t, r, 9, split(data, 4))
	if done == nil {
		t.Fatal("Expected completion")
	}
	if done.Header.AppID != "com.apple.MobileSMS" || string(done.Fields[0].Value) != "Messages" {
		t.Errorf("Unexpected completion %+v", done)
	}
}

func TestReassembler_TrailingBytes(t *testing.T) {
	r := NewReassembler(0)
	r.Begin(1, defaultExpectation)

	data := append(defaultResponse(), 0xEE, 0xFF)
	done, err := r.Feed(1, data)
	if err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	if done == nil {
		t.Fatal("Expected completion")
	}
	if !bytes.Equal(done.Trailing, []byte{0xEE, 0xFF}) {
		t.Errorf("Expected trailing bytes, got %x", done.Trailing)
	}
}

func TestReassembler_DiscardAndReset(t *testing.T) {
	r := NewReassembler(0)
	r.Begin(1, defaultExpectation)
	r.Begin(2, defaultExpectation)

	if _, err := r.Feed(1, defaultResponse()[:7]); err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	if r.Buffered(1) != 7 {
		t.Errorf("Expected 7 buffered bytes, got %d", r.Buffered(1))
	}

	r.Discard(1)
	if r.Pending() != 1 {
		t.Errorf("Expected 1 pending after discard, got %d", r.Pending())
	}
	r.Reset()
	if r.Pending() != 0 {
		t.Errorf("Expected 0 pending after reset, got %d", r.Pending())
	}
}
