package ancs

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedPacket is returned for fixed-size PDUs that cannot be parsed
	ErrMalformedPacket = errors.New("ancs: malformed packet")

	// ErrInvalidAttribute is returned when a command requests an unsupported
	// attribute or attribute/length combination. Nothing is sent.
	ErrInvalidAttribute = errors.New("ancs: invalid attribute")

	// ErrIncomplete means more Data Source bytes are needed. It is not a failure.
	ErrIncomplete = errors.New("ancs: incomplete data")

	// ErrResponseMismatch means a Data Source response does not line up with
	// the request it is being matched against
	ErrResponseMismatch = errors.New("ancs: response does not match request")

	// ErrResponseTooLarge means a Data Source response exceeded the reassembly limit
	ErrResponseTooLarge = errors.New("ancs: response too large")

	// ErrNoPendingRequest means bytes were fed for a request the reassembler does not know
	ErrNoPendingRequest = errors.New("ancs: no pending request")
)

// Control Point error codes, returned by the phone as ATT errors on write
const (
	ErrCodeUnknownCommand   = 0xA0
	ErrCodeInvalidCommand   = 0xA1
	ErrCodeInvalidParameter = 0xA2
	ErrCodeActionFailed     = 0xA3
)

// ErrorNames maps Control Point error codes to human-readable names
var ErrorNames = map[uint8]string{
	ErrCodeUnknownCommand:   "Unknown Command",
	ErrCodeInvalidCommand:   "Invalid Command",
	ErrCodeInvalidParameter: "Invalid Parameter",
	ErrCodeActionFailed:     "Action Failed",
}

// CommandError is a Control Point write rejected by the phone
type CommandError struct {
	Code    uint8
	Command CommandID
}

func (e *CommandError) Error() string {
	name, ok := ErrorNames[e.Code]
	if !ok {
		name = fmt.Sprintf("ATT Error (0x%02X)", e.Code)
	}
	return fmt.Sprintf("ANCS Control Point error: %s (command %s)", name, e.Command)
}

// NewCommandError creates a new Control Point error
func NewCommandError(code uint8, command CommandID) *CommandError {
	return &CommandError{Code: code, Command: command}
}

// IsCommandError checks if err wraps a CommandError with a specific code
func IsCommandError(err error, code uint8) bool {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Code == code
	}
	return false
}
