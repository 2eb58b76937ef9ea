package sim

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/ancs-blue/wire/ancs"
)

type capture struct {
	frames [][]byte
}

func (c *capture) handle(data []byte) {
	c.frames = append(c.frames, data)
}

func (c *capture) joined() []byte {
	return bytes.Join(c.frames, nil)
}

func TestFragment(t *testing.T) {
	value := make([]byte, 45)
	for i := range value {
		value[i] = byte(i)
	}

	chunks := Fragment(value, DefaultMTU)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 20)
	assert.Len(t, chunks[1], 20)
	assert.Len(t, chunks[2], 5)
	assert.Equal(t, value, bytes.Join(chunks, nil))

	assert.Len(t, Fragment(value, 0), 3, "invalid MTU falls back to default")
	assert.Len(t, Fragment(value, 512), 1)
	assert.Empty(t, Fragment(nil, DefaultMTU))
}

func TestCCCDTable(t *testing.T) {
	table := newCCCDTable()
	called := false

	require.NoError(t, table.write(ancs.DataSourceUUID, cccdValue(CCCDNotificationsEnabled), func([]byte) { called = true }))
	assert.True(t, table.subscribed(ancs.DataSourceUUID))

	h, ok := table.handler(ancs.DataSourceUUID)
	require.True(t, ok)
	h(nil)
	assert.True(t, called)

	require.NoError(t, table.write(ancs.DataSourceUUID, cccdValue(CCCDNotificationsDisabled), nil))
	assert.False(t, table.subscribed(ancs.DataSourceUUID))

	assert.ErrorIs(t, table.write(ancs.DataSourceUUID, []byte{1}, nil), errInvalidCCCDLength)
}

func TestSubscribeReplaysPreExisting(t *testing.T) {
	p := NewPeer()
	uid := p.AddNotification(ancs.CategoryEmail, 0, map[ancs.AttributeID]string{ancs.AttrTitle: "hi"})

	var ns capture
	require.NoError(t, p.Subscribe(ancs.NotificationSourceUUID, ns.handle))
	assert.Equal(t, 1, p.Pump())

	require.Len(t, ns.frames, 1)
	evt, err := ancs.DecodeNotificationSource(ns.frames[0])
	require.NoError(t, err)
	assert.Equal(t, ancs.EventAdded, evt.EventID)
	assert.Equal(t, uid, evt.UID)
	assert.True(t, evt.Flags.Has(ancs.FlagPreExisting))
	assert.Equal(t, uint8(1), evt.CategoryCount)
}

func TestNotificationAttributesResponse(t *testing.T) {
	p := NewPeer()
	uid := p.AddNotification(ancs.CategorySocial, 0, map[ancs.AttributeID]string{
		ancs.AttrAppIdentifier: "com.example.chat",
		ancs.AttrTitle:         "A rather long title that will be truncated",
		ancs.AttrMessage:       "hello",
	})

	var ds capture
	require.NoError(t, p.Subscribe(ancs.DataSourceUUID, ds.handle))

	cmd, err := ancs.EncodeGetNotificationAttributes(uid, []ancs.AttributeRequest{
		{ID: ancs.AttrAppIdentifier},
		{ID: ancs.AttrTitle, MaxLength: 6},
		{ID: ancs.AttrMessage, MaxLength: 100},
	})
	require.NoError(t, err)
	require.NoError(t, p.Write(ancs.ControlPointUUID, cmd))
	p.Pump()

	want := ancs.EncodeNotificationAttributesResponse(uid, []ancs.AttributeField{
		{ID: uint8(ancs.AttrAppIdentifier), Value: []byte("com.example.chat")},
		{ID: uint8(ancs.AttrTitle), Value: []byte("A rath")},
		{ID: uint8(ancs.AttrMessage), Value: []byte("hello")},
	})
	assert.Equal(t, want, ds.joined())
	assert.Greater(t, len(ds.frames), 1, "response spans several MTU-sized fragments")
	for _, f := range ds.frames {
		assert.LessOrEqual(t, len(f), DefaultMTU-3)
	}
}

func TestWriteErrors(t *testing.T) {
	p := NewPeer()

	cmd, err := ancs.EncodeGetNotificationAttributes(99, []ancs.AttributeRequest{{ID: ancs.AttrAppIdentifier}})
	require.NoError(t, err)
	err = p.Write(ancs.ControlPointUUID, cmd)
	assert.True(t, ancs.IsCommandError(err, ancs.ErrCodeInvalidParameter))

	err = p.Write(ancs.ControlPointUUID, []byte{0x07})
	assert.True(t, ancs.IsCommandError(err, ancs.ErrCodeUnknownCommand))

	assert.ErrorIs(t, p.Write(ancs.DataSourceUUID, cmd), ErrWriteNotPermitted)

	boom := errors.New("boom")
	p.FailWrites(1, boom)
	assert.ErrorIs(t, p.Write(ancs.ControlPointUUID, cmd), boom)
	assert.Len(t, p.Writes(), 4)
}

func TestPerformAction(t *testing.T) {
	p := NewPeer()
	uid := p.AddNotification(ancs.CategoryIncomingCall, ancs.FlagPositiveAction|ancs.FlagNegativeAction, nil)

	cmd, err := ancs.EncodePerformNotificationAction(uid, ancs.ActionNegative)
	require.NoError(t, err)
	require.NoError(t, p.Write(ancs.ControlPointUUID, cmd))
	assert.Equal(t, []PerformedAction{{UID: uid, Action: ancs.ActionNegative}}, p.Actions())
	assert.Zero(t, p.Queued(), "actions produce no data source response")
}

func TestDisconnectDropsQueued(t *testing.T) {
	p := NewPeer()
	var ns capture
	require.NoError(t, p.Subscribe(ancs.NotificationSourceUUID, ns.handle))
	p.AddNotification(ancs.CategoryOther, 0, nil)
	assert.Equal(t, 1, p.Queued())

	p.Disconnect()
	assert.False(t, p.IsConnected())
	assert.Zero(t, p.Queued())
	assert.False(t, p.IsSubscribed(ancs.NotificationSourceUUID))
	assert.ErrorIs(t, p.Subscribe(ancs.NotificationSourceUUID, ns.handle), ErrNotConnected)

	p.Reconnect()
	assert.NoError(t, p.Subscribe(ancs.NotificationSourceUUID, ns.handle))
}

func TestModifyAndRemove(t *testing.T) {
	p := NewPeer()
	var ns capture
	require.NoError(t, p.Subscribe(ancs.NotificationSourceUUID, ns.handle))

	uid := p.AddNotification(ancs.CategoryEmail, 0, nil)
	require.NoError(t, p.ModifyNotification(uid, map[ancs.AttributeID]string{ancs.AttrTitle: "new"}))
	require.NoError(t, p.RemoveNotification(uid))
	assert.ErrorIs(t, p.RemoveNotification(uid), ErrUnknownUID)
	p.Pump()

	require.Len(t, ns.frames, 3)
	var events []ancs.EventID
	for _, f := range ns.frames {
		evt, err := ancs.DecodeNotificationSource(f)
		require.NoError(t, err)
		events = append(events, evt.EventID)
	}
	assert.Equal(t, []ancs.EventID{ancs.EventAdded, ancs.EventModified, ancs.EventRemoved}, events)
	assert.Empty(t, p.Notifications())
}
