package engine

import "errors"

// Sentinel errors surfaced to socket callers. The socket package re-exports
// these so that user code never imports internal/engine.
var (
	// ErrWouldBlock reports a full send buffer or empty receive buffer at
	// the end of the call's timeout. It is always transient.
	ErrWouldBlock = errors.New("operation would block")

	// ErrHostUnreachable reports a send to an unknown or disconnected
	// routing id, or a peer confirmed lost by heartbeat.
	ErrHostUnreachable = errors.New("host unreachable")

	// ErrTerminated reports an operation on a closed socket. Threads
	// blocked in send or recv when the socket closes receive it too.
	ErrTerminated = errors.New("socket terminated")

	// ErrInvalidInput reports an API usage error, such as joining the same
	// group twice.
	ErrInvalidInput = errors.New("invalid input")
)
