package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/user/ancs-blue/eventlog"
	"github.com/user/ancs-blue/notify"
	"github.com/user/ancs-blue/session"
	"github.com/user/ancs-blue/wire/ancs"
)

func TestFormatFrameEvent(t *testing.T) {
	ev := eventlog.Event{
		Timestamp:      time.Date(2024, 1, 2, 3, 4, 5, 6_000_000, time.UTC),
		Direction:      eventlog.DirectionIn,
		Category:       eventlog.CategoryFrame,
		Characteristic: "NotificationSource",
		Data: ancs.EncodeNotificationSource(ancs.NotificationSourceEvent{
			EventID:  ancs.EventAdded,
			Category: ancs.CategoryIncomingCall,
			UID:      42,
		}),
	}

	line := formatEvent(ev)
	assert.True(t, strings.HasPrefix(line, "03:04:05.006 IN"), line)
	assert.Contains(t, line, "00 00 01 00 2a 00 00 00")
	assert.Contains(t, line, "Added uid=42 IncomingCall")
}

func TestFormatStateEvent(t *testing.T) {
	line := formatEvent(eventlog.Event{
		Direction: eventlog.DirectionLocal,
		Category:  eventlog.CategoryState,
		OldState:  "Subscribing",
		NewState:  "Active",
	})
	assert.Contains(t, line, "Subscribing -> Active")
}

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(&buf, false)

	p.StateChanged(session.StateSubscribing, session.StateActive)
	p.NotificationRemoved(7)
	p.SessionError(errors.New("boom"))

	assert.Equal(t, "* Subscribing -> Active\n- #7\n! boom\n", buf.String())

	buf.Reset()
	jp := newPrinter(&buf, true)
	jp.NotificationLoaded(notify.Notification{UID: 3, Loaded: true})
	assert.Contains(t, buf.String(), "{")
}
