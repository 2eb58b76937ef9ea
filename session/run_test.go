package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/ancs-blue/wire/ancs"
)

func TestRunDetectsLinkLoss(t *testing.T) {
	h := startedHarness(t)
	h.notify(ancs.EventAdded, ancs.CategoryEmail, 1)

	h.transport.mu.Lock()
	h.transport.connected = false
	h.transport.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	err := h.session.Run(ctx, 5*time.Millisecond)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StateDisconnected, h.session.State())
	assert.Empty(t, h.session.ActiveNotifications())
}

func TestRunTicks(t *testing.T) {
	h := startedHarness(t)
	h.notify(ancs.EventAdded, ancs.CategoryEmail, 1)
	h.clock.Advance(DefaultConfig().RequestTimeout)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, h.session.Run(ctx, 5*time.Millisecond), context.DeadlineExceeded)

	errs := h.delegate.requestErrors()
	require.NotEmpty(t, errs)
	assert.ErrorIs(t, errs[0], ErrRequestTimeout)
}
