package sim

import (
	"encoding/binary"
	"errors"

	"github.com/google/uuid"
)

// CCCD (Client Characteristic Configuration Descriptor) values
const (
	CCCDNotificationsDisabled = 0x0000
	CCCDNotificationsEnabled  = 0x0001
	CCCDIndicationsEnabled    = 0x0002
)

var errInvalidCCCDLength = errors.New("sim: CCCD value must be 2 bytes")

type subscription struct {
	notify   bool
	indicate bool
	handler  func([]byte)
}

// cccdTable tracks the client's configuration per characteristic for one
// link. Entries are not shared across links and are cleared on disconnect.
type cccdTable struct {
	subs map[uuid.UUID]*subscription
}

func newCCCDTable() *cccdTable {
	return &cccdTable{subs: make(map[uuid.UUID]*subscription)}
}

// write applies a 2-byte little-endian CCCD value
func (t *cccdTable) write(char uuid.UUID, value []byte, handler func([]byte)) error {
	if len(value) != 2 {
		return errInvalidCCCDLength
	}
	v := binary.LittleEndian.Uint16(value)

	sub, ok := t.subs[char]
	if !ok {
		sub = &subscription{}
		t.subs[char] = sub
	}
	sub.notify = v&CCCDNotificationsEnabled != 0
	sub.indicate = v&CCCDIndicationsEnabled != 0
	if handler != nil {
		sub.handler = handler
	}

	if !sub.notify && !sub.indicate {
		delete(t.subs, char)
	}
	return nil
}

func (t *cccdTable) handler(char uuid.UUID) (func([]byte), bool) {
	sub, ok := t.subs[char]
	if !ok || !sub.notify || sub.handler == nil {
		return nil, false
	}
	return sub.handler, true
}

func (t *cccdTable) subscribed(char uuid.UUID) bool {
	sub, ok := t.subs[char]
	return ok && (sub.notify || sub.indicate)
}

func (t *cccdTable) clear() {
	t.subs = make(map[uuid.UUID]*subscription)
}

func cccdValue(v uint16) []byte {
	return binary.LittleEndian.AppendUint16(nil, v)
}
