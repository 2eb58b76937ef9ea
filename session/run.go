package session

import (
	"context"
	"time"

	"github.com/user/ancs-blue/logger"
)

// DefaultTickInterval is used by Run when interval is not positive
const DefaultTickInterval = 100 * time.Millisecond

// Run ticks the session every interval until ctx is done. It also polls the
// transport and calls HandleDisconnect when the link goes away.
func (s *Session) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if s.State() != StateDisconnected && !s.transport.IsConnected() {
				logger.Warn(logPrefix, "transport reports link down")
				s.HandleDisconnect()
				continue
			}
			s.Tick()
		}
	}
}
