// pkg/devtools/errors.go
package devtools

import (
	"errors"
	"fmt"
)

// Typed errors let embedding applications classify failures with errors.As/errors.Is
// instead of matching on message text.

var (
	// ErrClosed is returned once the transport has been closed or the browser end hung up.
	ErrClosed = errors.New("devtools: transport closed")

	// ErrTargetDestroyed is the dispatch loop's exit reason when the attached page target goes away.
	ErrTargetDestroyed = errors.New("devtools: attached target destroyed")
)

// JSError carries a protocol-level failure: a CDP error object, a thrown JavaScript
// exception, or an Error instance returned by an evaluation. Value is the raw JSON
// payload so callers can inspect it.
type JSError struct {
	Value Value
}

// Error implements the error interface by rendering the raw JSON payload.
func (e *JSError) Error() string {
	if len(e.Value) == 0 {
		return "null"
	}
	return string(e.Value)
}

// NewJSError wraps a raw JSON value in a *JSError.
func NewJSError(v Value) *JSError {
	return &JSError{Value: v}
}

// HandshakeError reports that session establishment failed at a specific step.
// The browser process should be treated as dead; no retry is attempted.
type HandshakeError struct {
	Step string
	Err  error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("devtools: handshake failed at %s: %v", e.Step, e.Err)
}

// Unwrap provides the underlying error for use with errors.Is/As.
func (e *HandshakeError) Unwrap() error {
	return e.Err
}

// TransportError wraps an I/O failure that is not a plain closed-pipe condition.
// The session does not recover from it: a write that fails this way may have left a
// partial frame on the pipe, so callers should treat the browser as lost and shut it
// down rather than issue further calls.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("devtools: transport %s: %v", e.Op, e.Err)
}

// Unwrap provides the underlying error for use with errors.Is/As.
func (e *TransportError) Unwrap() error {
	return e.Err
}
