package channel

import (
	"errors"
	"fmt"
)

var (
	ErrRead        = errors.New("channel: read failed")
	ErrWrite       = errors.New("channel: write failed")
	ErrDecode      = errors.New("channel: decode failed")
	ErrNegotiation = errors.New("channel: negotiation failed")

	ErrInvalidSide  = errors.New("channel: invalid side")
	ErrBadHello     = errors.New("channel: invalid hello")
	ErrSideMismatch = errors.New("channel: peer negotiated as the same side")
	ErrWeakKey      = errors.New("channel: low-order peer public key")
	ErrSenderClosed = fmt.Errorf("%w: sender closed after earlier failure", ErrWrite)
)

// Negotiation steps reported in NegotiationError.Op.
const (
	OpRead  = "read"
	OpWrite = "write"
	OpKey   = "key"
	OpHello = "hello"
)

// NegotiationError reports which step of the handshake broke. It matches
// ErrNegotiation, and ErrRead or ErrWrite for stream failures.
type NegotiationError struct {
	Op  string
	Err error
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("channel: negotiation %s: %v", e.Op, e.Err)
}

func (e *NegotiationError) Unwrap() []error {
	errs := []error{ErrNegotiation, e.Err}
	switch e.Op {
	case OpRead:
		errs = append(errs, ErrRead)
	case OpWrite:
		errs = append(errs, ErrWrite)
	}
	return errs
}
