package ancs

import (
	"fmt"
	"strings"
)

// EventID describes the kind of Notification Source event
type EventID uint8

const (
	EventAdded    EventID = 0
	EventModified EventID = 1
	EventRemoved  EventID = 2
)

var eventNames = map[EventID]string{
	EventAdded:    "Added",
	EventModified: "Modified",
	EventRemoved:  "Removed",
}

func (e EventID) String() string {
	if name, ok := eventNames[e]; ok {
		return name
	}
	return fmt.Sprintf("Event(0x%02X)", uint8(e))
}

// Valid reports whether e is a defined event id
func (e EventID) Valid() bool {
	return e <= EventRemoved
}

// EventFlags is the Notification Source flag bitmask
type EventFlags uint8

const (
	FlagSilent         EventFlags = 1 << 0
	FlagImportant      EventFlags = 1 << 1
	FlagPreExisting    EventFlags = 1 << 2
	FlagPositiveAction EventFlags = 1 << 3
	FlagNegativeAction EventFlags = 1 << 4
)

var flagNames = []struct {
	flag EventFlags
	name string
}{
	{FlagSilent, "silent"},
	{FlagImportant, "important"},
	{FlagPreExisting, "preexisting"},
	{FlagPositiveAction, "positive_action"},
	{FlagNegativeAction, "negative_action"},
}

// Has reports whether all bits of flag are set
func (f EventFlags) Has(flag EventFlags) bool {
	return f&flag == flag
}

func (f EventFlags) String() string {
	var parts []string
	for _, fn := range flagNames {
		if f.Has(fn.flag) {
			parts = append(parts, fn.name)
		}
	}
	return strings.Join(parts, " ")
}

// CategoryID is the notification category reported by the phone
type CategoryID uint8

const (
	CategoryOther              CategoryID = 0
	CategoryIncomingCall       CategoryID = 1
	CategoryMissedCall         CategoryID = 2
	CategoryVoicemail          CategoryID = 3
	CategorySocial             CategoryID = 4
	CategorySchedule           CategoryID = 5
	CategoryEmail              CategoryID = 6
	CategoryNews               CategoryID = 7
	CategoryHealthAndFitness   CategoryID = 8
	CategoryBusinessAndFinance CategoryID = 9
	CategoryLocation           CategoryID = 10
	CategoryEntertainment      CategoryID = 11
	CategoryActiveCall         CategoryID = 12
)

var categoryNames = []string{
	"Other",
	"IncomingCall",
	"MissedCall",
	"Voicemail",
	"Social",
	"Schedule",
	"Email",
	"News",
	"HealthAndFitness",
	"BusinessAndFinance",
	"Location",
	"Entertainment",
	"ActiveCall",
}

func (c CategoryID) String() string {
	if int(c) < len(categoryNames) {
		return categoryNames[c]
	}
	return "Reserved"
}

// AttributeID identifies a notification attribute
type AttributeID uint8

const (
	AttrAppIdentifier       AttributeID = 0
	AttrTitle               AttributeID = 1
	AttrSubtitle            AttributeID = 2
	AttrMessage             AttributeID = 3
	AttrMessageSize         AttributeID = 4
	AttrDate                AttributeID = 5
	AttrPositiveActionLabel AttributeID = 6
	AttrNegativeActionLabel AttributeID = 7
)

var attributeNames = map[AttributeID]string{
	AttrAppIdentifier:       "AppIdentifier",
	AttrTitle:               "Title",
	AttrSubtitle:            "Subtitle",
	AttrMessage:             "Message",
	AttrMessageSize:         "MessageSize",
	AttrDate:                "Date",
	AttrPositiveActionLabel: "PositiveActionLabel",
	AttrNegativeActionLabel: "NegativeActionLabel",
}

func (a AttributeID) String() string {
	if name, ok := attributeNames[a]; ok {
		return name
	}
	return fmt.Sprintf("Attribute(0x%02X)", uint8(a))
}

// Valid reports whether a is a defined notification attribute
func (a AttributeID) Valid() bool {
	return a <= AttrNegativeActionLabel
}

// NeedsMaxLength reports whether the attribute must be requested with a
// 2-byte maximum length parameter
func (a AttributeID) NeedsMaxLength() bool {
	switch a {
	case AttrTitle, AttrSubtitle, AttrMessage:
		return true
	}
	return false
}

// ParseAttributeID converts a name (case-insensitive) to an AttributeID
func ParseAttributeID(name string) (AttributeID, error) {
	for id, n := range attributeNames {
		if strings.EqualFold(n, name) {
			return id, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown attribute %q", ErrInvalidAttribute, name)
}

// AppAttributeID identifies an app attribute
type AppAttributeID uint8

const (
	AppAttrDisplayName AppAttributeID = 0
)

func (a AppAttributeID) String() string {
	if a == AppAttrDisplayName {
		return "DisplayName"
	}
	return fmt.Sprintf("AppAttribute(0x%02X)", uint8(a))
}

// Valid reports whether a is a defined app attribute
func (a AppAttributeID) Valid() bool {
	return a == AppAttrDisplayName
}

// CommandID is the first byte of every Control Point command and Data Source response
type CommandID uint8

const (
	CommandGetNotificationAttributes CommandID = 0
	CommandGetAppAttributes          CommandID = 1
	CommandPerformNotificationAction CommandID = 2
)

var commandNames = map[CommandID]string{
	CommandGetNotificationAttributes: "GetNotificationAttributes",
	CommandGetAppAttributes:          "GetAppAttributes",
	CommandPerformNotificationAction: "PerformNotificationAction",
}

func (c CommandID) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Command(0x%02X)", uint8(c))
}

// ActionID selects the action performed on a notification
type ActionID uint8

const (
	ActionPositive ActionID = 0
	ActionNegative ActionID = 1
)

func (a ActionID) String() string {
	switch a {
	case ActionPositive:
		return "Positive"
	case ActionNegative:
		return "Negative"
	}
	return fmt.Sprintf("Action(0x%02X)", uint8(a))
}
