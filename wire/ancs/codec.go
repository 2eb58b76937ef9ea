package ancs

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// NotificationSourceEvent is one decoded Notification Source PDU
type NotificationSourceEvent struct {
	EventID       EventID
	Flags         EventFlags
	Category      CategoryID
	CategoryCount uint8
	UID           uint32
}

// AttributeRequest is one entry of a Get Notification Attributes command.
// MaxLength 0 means no length parameter is sent.
type AttributeRequest struct {
	ID        AttributeID
	MaxLength uint16
}

// AttributeField is one [ID][Length][Value] field from the Data Source
type AttributeField struct {
	ID    uint8
	Value []byte
}

// DataSourceHeader is the prefix of a Data Source response
type DataSourceHeader struct {
	Command CommandID
	UID     uint32 // CommandGetNotificationAttributes
	AppID   string // CommandGetAppAttributes
}

// DecodeNotificationSource parses an 8-byte Notification Source PDU
func DecodeNotificationSource(data []byte) (NotificationSourceEvent, error) {
	if len(data) != NotificationSourceLength {
		return NotificationSourceEvent{}, fmt.Errorf("%w: notification source length %d, want %d",
			ErrMalformedPacket, len(data), NotificationSourceLength)
	}
	return NotificationSourceEvent{
		EventID:       EventID(data[0]),
		Flags:         EventFlags(data[1]),
		Category:      CategoryID(data[2]),
		CategoryCount: data[3],
		UID:           binary.LittleEndian.Uint32(data[4:8]),
	}, nil
}

// EncodeNotificationSource serializes a Notification Source PDU
func EncodeNotificationSource(evt NotificationSourceEvent) []byte {
	buf := make([]byte, NotificationSourceLength)
	buf[0] = byte(evt.EventID)
	buf[1] = byte(evt.Flags)
	buf[2] = byte(evt.Category)
	buf[3] = evt.CategoryCount
	binary.LittleEndian.PutUint32(buf[4:8], evt.UID)
	return buf
}

// ValidateAttributeRequests checks an attribute list against the protocol rules:
// Title, Subtitle and Message need a max length, every other attribute must not carry one
func ValidateAttributeRequests(attrs []AttributeRequest) error {
	if len(attrs) == 0 {
		return fmt.Errorf("%w: empty attribute list", ErrInvalidAttribute)
	}
	for _, a := range attrs {
		if !a.ID.Valid() {
			return fmt.Errorf("%w: unknown attribute id %d", ErrInvalidAttribute, uint8(a.ID))
		}
		if a.ID.NeedsMaxLength() && a.MaxLength == 0 {
			return fmt.Errorf("%w: %s requires a max length", ErrInvalidAttribute, a.ID)
		}
		if !a.ID.NeedsMaxLength() && a.MaxLength != 0 {
			return fmt.Errorf("%w: %s does not take a max length", ErrInvalidAttribute, a.ID)
		}
	}
	return nil
}

// EncodeGetNotificationAttributes builds a Control Point Get Notification Attributes command
// Format: [0x00][NotificationUID:4][AttributeID:1 (+MaxLength:2)]...
func EncodeGetNotificationAttributes(uid uint32, attrs []AttributeRequest) ([]byte, error) {
	if err := ValidateAttributeRequests(attrs); err != nil {
		return nil, err
	}

	buf := make([]byte, 5, 5+len(attrs)*3)
	buf[0] = byte(CommandGetNotificationAttributes)
	binary.LittleEndian.PutUint32(buf[1:5], uid)
	for _, a := range attrs {
		buf = append(buf, byte(a.ID))
		if a.ID.NeedsMaxLength() {
			buf = binary.LittleEndian.AppendUint16(buf, a.MaxLength)
		}
	}
	return buf, nil
}

// DecodeGetNotificationAttributes parses a Get Notification Attributes command
func DecodeGetNotificationAttributes(data []byte) (uint32, []AttributeRequest, error) {
	if len(data) < 6 {
		return 0, nil, fmt.Errorf("%w: get notification attributes too short (%d bytes)", ErrMalformedPacket, len(data))
	}
	if CommandID(data[0]) != CommandGetNotificationAttributes {
		return 0, nil, fmt.Errorf("%w: unexpected command %s", ErrMalformedPacket, CommandID(data[0]))
	}

	uid := binary.LittleEndian.Uint32(data[1:5])
	var attrs []AttributeRequest
	for i := 5; i < len(data); {
		id := AttributeID(data[i])
		i++
		if !id.Valid() {
			return 0, nil, fmt.Errorf("%w: unknown attribute id %d", ErrInvalidAttribute, uint8(id))
		}
		req := AttributeRequest{ID: id}
		if id.NeedsMaxLength() {
			if i+2 > len(data) {
				return 0, nil, fmt.Errorf("%w: truncated max length for %s", ErrMalformedPacket, id)
			}
			req.MaxLength = binary.LittleEndian.Uint16(data[i : i+2])
			i += 2
		}
		attrs = append(attrs, req)
	}
	return uid, attrs, nil
}

// EncodeGetAppAttributes builds a Control Point Get App Attributes command
// Format: [0x01][AppIdentifier][0x00][AppAttributeID:1]...
func EncodeGetAppAttributes(appID string, attrs []AppAttributeID) ([]byte, error) {
	if appID == "" {
		return nil, fmt.Errorf("%w: empty app identifier", ErrInvalidAttribute)
	}
	if bytes.IndexByte([]byte(appID), 0) >= 0 {
		return nil, fmt.Errorf("%w: app identifier contains NUL", ErrInvalidAttribute)
	}
	if len(attrs) == 0 {
		return nil, fmt.Errorf("%w: empty app attribute list", ErrInvalidAttribute)
	}

	buf := make([]byte, 0, 2+len(appID)+len(attrs))
	buf = append(buf, byte(CommandGetAppAttributes))
	buf = append(buf, appID...)
	buf = append(buf, 0)
	for _, a := range attrs {
		if !a.Valid() {
			return nil, fmt.Errorf("%w: unknown app attribute id %d", ErrInvalidAttribute, uint8(a))
		}
		buf = append(buf, byte(a))
	}
	return buf, nil
}

// DecodeGetAppAttributes parses a Get App Attributes command
func DecodeGetAppAttributes(data []byte) (string, []AppAttributeID, error) {
	if len(data) < 1 || CommandID(data[0]) != CommandGetAppAttributes {
		return "", nil, fmt.Errorf("%w: not a get app attributes command", ErrMalformedPacket)
	}
	end := bytes.IndexByte(data[1:], 0)
	if end < 0 {
		return "", nil, fmt.Errorf("%w: unterminated app identifier", ErrMalformedPacket)
	}
	appID := string(data[1 : 1+end])
	var attrs []AppAttributeID
	for _, b := range data[2+end:] {
		attrs = append(attrs, AppAttributeID(b))
	}
	return appID, attrs, nil
}

// EncodePerformNotificationAction builds a Control Point Perform Notification Action command
// Format: [0x02][NotificationUID:4][ActionID:1]
func EncodePerformNotificationAction(uid uint32, action ActionID) ([]byte, error) {
	if action != ActionPositive && action != ActionNegative {
		return nil, fmt.Errorf("%w: unknown action id %d", ErrInvalidAttribute, uint8(action))
	}
	buf := make([]byte, 6)
	buf[0] = byte(CommandPerformNotificationAction)
	binary.LittleEndian.PutUint32(buf[1:5], uid)
	buf[5] = byte(action)
	return buf, nil
}

// DecodePerformNotificationAction parses a Perform Notification Action command
func DecodePerformNotificationAction(data []byte) (uint32, ActionID, error) {
	if len(data) != 6 || CommandID(data[0]) != CommandPerformNotificationAction {
		return 0, 0, fmt.Errorf("%w: not a perform notification action command", ErrMalformedPacket)
	}
	return binary.LittleEndian.Uint32(data[1:5]), ActionID(data[5]), nil
}

// DecodeDataSourceHeader parses the command id and echoed UID or app identifier
// at the start of a Data Source response. It returns the number of header bytes
// consumed, or ErrIncomplete if data does not yet hold the whole header.
func DecodeDataSourceHeader(data []byte) (DataSourceHeader, int, error) {
	if len(data) == 0 {
		return DataSourceHeader{}, 0, ErrIncomplete
	}

	cmd := CommandID(data[0])
	switch cmd {
	case CommandGetNotificationAttributes:
		if len(data) < notificationHeaderLength {
			return DataSourceHeader{}, 0, ErrIncomplete
		}
		return DataSourceHeader{
			Command: cmd,
			UID:     binary.LittleEndian.Uint32(data[1:5]),
		}, notificationHeaderLength, nil
	case CommandGetAppAttributes:
		end := bytes.IndexByte(data[1:], 0)
		if end < 0 {
			return DataSourceHeader{}, 0, ErrIncomplete
		}
		return DataSourceHeader{
			Command: cmd,
			AppID:   string(data[1 : 1+end]),
		}, end + 2, nil
	default:
		return DataSourceHeader{}, 0, fmt.Errorf("%w: unknown data source command 0x%02X", ErrMalformedPacket, data[0])
	}
}

// ParseAttributeField parses one [AttributeID:1][Length:2][Value] field starting
// at cursor. ok is false when data does not yet hold the whole field; the caller
// should wait for more bytes.
func ParseAttributeField(data []byte, cursor int) (field AttributeField, next int, ok bool) {
	if cursor < 0 || len(data)-cursor < attributeFieldHeaderLength {
		return AttributeField{}, cursor, false
	}
	length := int(binary.LittleEndian.Uint16(data[cursor+1 : cursor+3]))
	start := cursor + attributeFieldHeaderLength
	if len(data)-start < length {
		return AttributeField{}, cursor, false
	}

	value := make([]byte, length)
	copy(value, data[start:start+length])
	return AttributeField{ID: data[cursor], Value: value}, start + length, true
}

// EncodeAttributeFields serializes fields in Data Source format
func EncodeAttributeFields(fields []AttributeField) []byte {
	var buf []byte
	for _, f := range fields {
		buf = append(buf, f.ID)
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(f.Value)))
		buf = append(buf, f.Value...)
	}
	return buf
}

// EncodeNotificationAttributesResponse builds a complete Data Source response
// to a Get Notification Attributes command
func EncodeNotificationAttributesResponse(uid uint32, fields []AttributeField) []byte {
	buf := make([]byte, notificationHeaderLength)
	buf[0] = byte(CommandGetNotificationAttributes)
	binary.LittleEndian.PutUint32(buf[1:5], uid)
	return append(buf, EncodeAttributeFields(fields)...)
}

// EncodeAppAttributesResponse builds a complete Data Source response
// to a Get App Attributes command
func EncodeAppAttributesResponse(appID string, fields []AttributeField) []byte {
	buf := []byte{byte(CommandGetAppAttributes)}
	buf = append(buf, appID...)
	buf = append(buf, 0)
	return append(buf, EncodeAttributeFields(fields)...)
}
