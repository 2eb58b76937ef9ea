package notify

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/user/ancs-blue/wire/ancs"
	"google.golang.org/protobuf/types/known/structpb"
)

// DateLayout is the ANCS Date attribute format (UTS #35 yyyyMMdd'T'HHmmSS)
const DateLayout = "20060102T150405"

// Notification is a read-only snapshot of one notification on the phone.
// Attributes is empty until the first attribute fetch commits.
type Notification struct {
	UID            uint32
	Category       ancs.CategoryID
	CategoryCount  uint8
	Flags          ancs.EventFlags
	Attributes     map[ancs.AttributeID]string
	Loaded         bool
	Unavailable    bool
	AppDisplayName string
	UpdatedAt      time.Time
}

func (n Notification) attr(id ancs.AttributeID) string {
	return n.Attributes[id]
}

// AppID is the bundle identifier of the posting app, e.g. "com.apple.mobilephone"
func (n Notification) AppID() string { return n.attr(ancs.AttrAppIdentifier) }

func (n Notification) Title() string { return n.attr(ancs.AttrTitle) }

func (n Notification) Subtitle() string { return n.attr(ancs.AttrSubtitle) }

func (n Notification) Message() string { return n.attr(ancs.AttrMessage) }

func (n Notification) PositiveActionLabel() string { return n.attr(ancs.AttrPositiveActionLabel) }

func (n Notification) NegativeActionLabel() string { return n.attr(ancs.AttrNegativeActionLabel) }

// MessageSize returns the total message length reported by the phone, or -1
// if it was not fetched or is not a number
func (n Notification) MessageSize() int {
	v, ok := n.Attributes[ancs.AttrMessageSize]
	if !ok {
		return -1
	}
	size, err := strconv.Atoi(v)
	if err != nil {
		return -1
	}
	return size
}

// Date parses the Date attribute in local time
func (n Notification) Date() (time.Time, bool) {
	v, ok := n.Attributes[ancs.AttrDate]
	if !ok {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(DateLayout, v, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Silent, Important, etc. mirror the Notification Source event flags
func (n Notification) Silent() bool         { return n.Flags.Has(ancs.FlagSilent) }
func (n Notification) Important() bool      { return n.Flags.Has(ancs.FlagImportant) }
func (n Notification) PreExisting() bool    { return n.Flags.Has(ancs.FlagPreExisting) }
func (n Notification) PositiveAction() bool { return n.Flags.Has(ancs.FlagPositiveAction) }
func (n Notification) NegativeAction() bool { return n.Flags.Has(ancs.FlagNegativeAction) }

func (n Notification) String() string {
	parts := []string{n.Category.String()}
	if flags := n.Flags.String(); flags != "" {
		parts = append(parts, flags)
	}
	app := n.AppID()
	if n.AppDisplayName != "" {
		app = n.AppDisplayName
	}
	if n.Unavailable {
		return fmt.Sprintf("#%d %s (unavailable)", n.UID, strings.Join(parts, " "))
	}
	if !n.Loaded {
		return fmt.Sprintf("#%d %s (loading)", n.UID, strings.Join(parts, " "))
	}
	parts = append(parts, app, n.Title())
	if sub := n.Subtitle(); sub != "" {
		parts = append(parts, sub)
	}
	parts = append(parts, n.Message())
	return fmt.Sprintf("#%d %s", n.UID, strings.Join(parts, " "))
}

// Proto returns the notification as a protobuf Struct (for protojson logging and output)
func (n Notification) Proto() *structpb.Struct {
	attrs := make(map[string]interface{}, len(n.Attributes))
	for id, v := range n.Attributes {
		attrs[id.String()] = strings.ToValidUTF8(v, "\uFFFD")
	}
	fields := map[string]interface{}{
		"uid":            float64(n.UID),
		"category":       n.Category.String(),
		"category_count": float64(n.CategoryCount),
		"flags":          n.Flags.String(),
		"loaded":         n.Loaded,
		"unavailable":    n.Unavailable,
		"attributes":     attrs,
	}
	if n.AppDisplayName != "" {
		fields["app_display_name"] = strings.ToValidUTF8(n.AppDisplayName, "\uFFFD")
	}
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return &structpb.Struct{}
	}
	return s
}

func (n Notification) clone() Notification {
	c := n
	c.Attributes = make(map[ancs.AttributeID]string, len(n.Attributes))
	for k, v := range n.Attributes {
		c.Attributes[k] = v
	}
	return c
}
