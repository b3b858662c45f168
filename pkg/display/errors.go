package display

import (
	"errors"
	"fmt"

	"nextion-host/pkg/protocol"
)

// Common errors
var (
	// ErrQueueFull means the command was not (or could not be) tracked
	// because the pending-command ring is at capacity.
	ErrQueueFull = errors.New("display: command queue full")

	// ErrTimeout means no matching reply arrived within the deadline.
	ErrTimeout = errors.New("display: no reply within deadline")

	// ErrClosed means the engine has been reset or its transport closed.
	ErrClosed = errors.New("display: engine closed")

	// ErrHandshake means the connect exchange completed but the reply was
	// not a recognizable device identification.
	ErrHandshake = errors.New("display: connect handshake rejected")
)

// CodeError reports a reply whose leading byte did not match what the
// head-of-queue command expected. Code preserves the raw device byte so the
// caller can log the device-defined error.
type CodeError struct {
	Code byte
}

func (e *CodeError) Error() string {
	return fmt.Sprintf("display: device returned 0x%02x (%s)", e.Code, protocol.CodeName(e.Code))
}

// MalformedError reports a reply whose payload was too short for its
// declared kind.
type MalformedError struct {
	Code byte
	Len  int
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("display: malformed frame 0x%02x, %d bytes", e.Code, e.Len)
}
