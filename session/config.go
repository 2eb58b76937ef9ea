package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/user/ancs-blue/wire/ancs"
)

// ErrInvalidConfig is returned by Config.Validate
var ErrInvalidConfig = errors.New("session: invalid config")

// Config tunes the session. Start from DefaultConfig.
type Config struct {
	// DefaultAttributes are fetched for every Added/Modified notification,
	// in this order
	DefaultAttributes []ancs.AttributeID

	// Max lengths sent with Title, Subtitle and Message requests
	MaxTitleLength    uint16
	MaxSubtitleLength uint16
	MaxMessageLength  uint16

	// RequestTimeout aborts a Control Point request with no Data Source
	// activity for this long
	RequestTimeout time.Duration

	// MaxRetries is how many times a failed fetch is re-queued before the
	// notification is marked unavailable
	MaxRetries int

	// MaxReassemblyBytes bounds one Data Source response
	MaxReassemblyBytes int

	// SettleDelay pauses dispatch after a response was aborted mid-stream so
	// the rest of it can drain instead of being matched to the next request
	SettleDelay time.Duration

	// FetchAppNames issues Get App Attributes (DisplayName) for each new app id
	FetchAppNames bool
}

// DefaultConfig returns the standard configuration: AppIdentifier, Title and
// Message with 255-byte limits, 5 s timeout and one retry
func DefaultConfig() Config {
	return Config{
		DefaultAttributes:  []ancs.AttributeID{ancs.AttrAppIdentifier, ancs.AttrTitle, ancs.AttrMessage},
		MaxTitleLength:     255,
		MaxSubtitleLength:  255,
		MaxMessageLength:   255,
		RequestTimeout:     5 * time.Second,
		MaxRetries:         1,
		MaxReassemblyBytes: ancs.DefaultMaxResponseBytes,
		SettleDelay:        200 * time.Millisecond,
	}
}

// Validate checks the config and the attribute request it produces
func (c Config) Validate() error {
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%w: request timeout must be positive", ErrInvalidConfig)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries must not be negative", ErrInvalidConfig)
	}
	if c.MaxReassemblyBytes <= 0 {
		return fmt.Errorf("%w: max reassembly bytes must be positive", ErrInvalidConfig)
	}
	if c.SettleDelay < 0 {
		return fmt.Errorf("%w: settle delay must not be negative", ErrInvalidConfig)
	}

	seen := make(map[ancs.AttributeID]bool)
	for _, id := range c.DefaultAttributes {
		if seen[id] {
			return fmt.Errorf("%w: duplicate attribute %s", ErrInvalidConfig, id)
		}
		seen[id] = true
	}
	if err := ancs.ValidateAttributeRequests(c.AttributeRequests()); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// AttributeRequests expands DefaultAttributes with the configured max lengths
func (c Config) AttributeRequests() []ancs.AttributeRequest {
	reqs := make([]ancs.AttributeRequest, 0, len(c.DefaultAttributes))
	for _, id := range c.DefaultAttributes {
		req := ancs.AttributeRequest{ID: id}
		switch id {
		case ancs.AttrTitle:
			req.MaxLength = c.MaxTitleLength
		case ancs.AttrSubtitle:
			req.MaxLength = c.MaxSubtitleLength
		case ancs.AttrMessage:
			req.MaxLength = c.MaxMessageLength
		}
		reqs = append(reqs, req)
	}
	return reqs
}
