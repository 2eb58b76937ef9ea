package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/user/ancs-blue/eventlog"
	"github.com/user/ancs-blue/logger"
	"github.com/user/ancs-blue/wire/ancs"
)

var categoriesByName = map[string]eventlog.Category{
	"frame":   eventlog.CategoryFrame,
	"state":   eventlog.CategoryState,
	"request": eventlog.CategoryRequest,
	"error":   eventlog.CategoryError,
}

func cmdDump(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New("usage: ancsctl dump <file.cbor>")
	}

	filter := eventlog.Filter{LinkID: c.String("link")}
	if name := c.String("category"); name != "" {
		cat, ok := categoriesByName[strings.ToLower(name)]
		if !ok {
			return errors.Errorf("unknown category %q", name)
		}
		filter.Category = &cat
	}
	if uid := c.Int("uid"); uid >= 0 {
		u := uint32(uid)
		filter.UID = &u
	}

	r, err := eventlog.OpenReader(c.Args().First(), filter)
	if err != nil {
		return errors.Wrap(err, "can't open event log")
	}
	defer r.Close()

	for {
		ev, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "can't read event")
		}
		if c.Bool("json") {
			fmt.Println(logger.ToJSON(ev))
			continue
		}
		fmt.Println(formatEvent(ev))
	}
}

func formatEvent(ev eventlog.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-5s %-7s", ev.Timestamp.Format("15:04:05.000"), ev.Direction, ev.Category)

	switch ev.Category {
	case eventlog.CategoryFrame:
		fmt.Fprintf(&b, " %-18s % x", ev.Characteristic, ev.Data)
		if desc := describeFrame(ev); desc != "" {
			fmt.Fprintf(&b, "  (%s)", desc)
		}
	case eventlog.CategoryState:
		fmt.Fprintf(&b, " %s -> %s", ev.OldState, ev.NewState)
	default:
		if ev.UID != nil {
			fmt.Fprintf(&b, " uid=%d", *ev.UID)
		}
		if ev.AppID != "" {
			fmt.Fprintf(&b, " app=%s", ev.AppID)
		}
		fmt.Fprintf(&b, " %s", ev.Message)
	}
	return b.String()
}

// describeFrame decodes what can be decoded from a single frame
func describeFrame(ev eventlog.Event) string {
	switch ev.Characteristic {
	case ancs.CharacteristicName(ancs.NotificationSourceUUID):
		evt, err := ancs.DecodeNotificationSource(ev.Data)
		if err != nil {
			return err.Error()
		}
		return fmt.Sprintf("%s uid=%d %s [%s]", evt.EventID, evt.UID, evt.Category, evt.Flags)
	case ancs.CharacteristicName(ancs.ControlPointUUID):
		if len(ev.Data) == 0 {
			return ""
		}
		return ancs.CommandID(ev.Data[0]).String()
	}
	return ""
}
