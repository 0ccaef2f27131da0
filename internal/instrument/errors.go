package instrument

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout is returned when the instrument does not answer before the session deadline.
	ErrTimeout = errors.New("instrument timeout")

	ErrMalformedBlock      = errors.New("malformed binary block header")
	ErrTruncatedBlock      = errors.New("truncated binary block")
	ErrTerminator          = errors.New("missing binary block terminator")
	ErrOddPayload          = errors.New("payload length not a multiple of sample width")
	ErrUnsupportedResource = errors.New("unsupported resource")
	ErrClosed              = errors.New("session closed")
)

// SessionError describes a failed exchange with the instrument.
type SessionError struct {
	Op      string // "write", "read", "dial"
	Command string
	Err     error
}

func (e *SessionError) Error() string {
	if e.Command == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %q: %v", e.Op, e.Command, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err was caused by an elapsed session deadline.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}
