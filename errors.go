package tickwire

import (
	"errors"
	"fmt"
)

// Close codes shared by transports and sessions. They follow RFC 6455.
const (
	CloseNormal          = 1000
	CloseGoingAway       = 1001
	CloseProtocolError   = 1002
	CloseAbnormal        = 1006
	ClosePolicyViolation = 1008
	CloseInternalError   = 1011
)

// Protocol errors. Framing and decoding errors are local to one message and
// never close the session that produced it.
var (
	ErrMalformedFrame = errors.New("tickwire: malformed frame")
	ErrUnknownOpcode  = errors.New("tickwire: unknown opcode")
	ErrDecodeFailure  = errors.New("tickwire: decode failure")
	ErrUnknownMessage = errors.New("tickwire: unknown outbound message")
	ErrHandlerPanic   = errors.New("tickwire: handler panic")
)

// Connection errors.
var (
	ErrNotConnected     = errors.New("tickwire: not connected")
	ErrSessionClosed    = errors.New("tickwire: session closed")
	ErrSessionNotFound  = errors.New("tickwire: session not found")
	ErrTransport        = errors.New("tickwire: transport error")
	ErrRateLimited      = errors.New("tickwire: rate limit exceeded")
	ErrAlreadyRunning   = errors.New("tickwire: transport already running")
	ErrConnectionClosed = errors.New("tickwire: connection is closed")
)

// DecodeError reports a payload that does not match the schema of a known opcode.
type DecodeError struct {
	Opcode int32
	Name   string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("tickwire: decode %s (opcode %d): %v", e.Name, e.Opcode, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Is makes every DecodeError match ErrDecodeFailure.
func (e *DecodeError) Is(target error) bool { return target == ErrDecodeFailure }

// TransportError wraps an error surfaced by a transport for one session.
type TransportError struct {
	SessionID int64
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("tickwire: transport error on session %d: %v", e.SessionID, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }
