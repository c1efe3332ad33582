package socket

import (
	"github.com/strand-protocol/strandsock/internal/engine"
	"github.com/strand-protocol/strandsock/pkg/auth"
	"github.com/strand-protocol/strandsock/pkg/endpoint"
	"github.com/strand-protocol/strandsock/pkg/sockcfg"
)

// The sentinel errors socket operations return. Test with errors.Is; most
// are re-exported from the packages that own them so either import works.
var (
	// ErrWouldBlock reports that a non-blocking or deadline-bounded call
	// could not complete in time. The operation had no effect and can be
	// retried.
	ErrWouldBlock = engine.ErrWouldBlock

	// ErrHostUnreachable reports a routed send whose destination peer is
	// not (or no longer) connected.
	ErrHostUnreachable = engine.ErrHostUnreachable

	// ErrTerminated reports an operation on a closed socket or session.
	ErrTerminated = engine.ErrTerminated

	// ErrInvalidInput reports arguments a variant cannot accept, such as a
	// group on a client send or a double join.
	ErrInvalidInput = engine.ErrInvalidInput

	// ErrInvalidAddress reports a malformed or misused endpoint.
	ErrInvalidAddress = endpoint.ErrInvalidAddress

	// ErrInvalidConfig reports an inconsistent socket configuration.
	ErrInvalidConfig = sockcfg.ErrInvalidConfig

	// ErrInvalidKey reports malformed curve key material.
	ErrInvalidKey = auth.ErrInvalidKey
)
