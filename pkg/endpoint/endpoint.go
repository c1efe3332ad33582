// Package endpoint parses and validates the transport addresses understood by
// strandsock sockets. Three transports are supported: tcp (network), inproc
// (in-process) and ipc (inter-process, unix domain sockets).
//
// The textual form is always scheme://address:
//
//	tcp://127.0.0.1:7070     connect or bind to a concrete host and port
//	tcp://0.0.0.0:*          bind to a system-assigned port (bind only)
//	inproc://control         an in-process rendez-vous name
//	ipc:///tmp/feed.sock     a filesystem socket path
//
// A parsed Endpoint is an immutable value; re-parsing its String form yields
// an equal Endpoint.
package endpoint

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// InprocMaxSize is the maximum number of characters in an inproc name.
const InprocMaxSize = 256

// ErrInvalidAddress is returned when an endpoint string is malformed or used
// in a context where it is not allowed, such as connecting to a wildcard
// port. Callers should test for it with errors.Is.
var ErrInvalidAddress = errors.New("invalid address")

// Transport identifies the data-transfer protocol of an Endpoint.
type Transport string

const (
	// TCP is the network transport.
	TCP Transport = "tcp"
	// Inproc is the in-process transport. Inproc endpoints only reach
	// sockets attached to the same session.
	Inproc Transport = "inproc"
	// IPC is the inter-process transport over unix domain sockets.
	IPC Transport = "ipc"
)

// Endpoint is a validated rendez-vous address for one of the supported
// transports. The zero value is not a valid endpoint; use Parse.
type Endpoint struct {
	transport Transport

	// tcp only
	host     string
	port     uint16
	wildcard bool

	// inproc name or ipc path
	name string
}

// Parse validates text and returns the corresponding Endpoint. All failures
// wrap ErrInvalidAddress.
func Parse(text string) (Endpoint, error) {
	scheme, rest, ok := strings.Cut(text, "://")
	if !ok {
		return Endpoint{}, fmt.Errorf("endpoint %q: missing scheme: %w", text, ErrInvalidAddress)
	}

	switch Transport(scheme) {
	case TCP:
		return parseTCP(text, rest)
	case Inproc:
		if rest == "" {
			return Endpoint{}, fmt.Errorf("endpoint %q: empty inproc name: %w", text, ErrInvalidAddress)
		}
		if len(rest) > InprocMaxSize {
			return Endpoint{}, fmt.Errorf("endpoint %q: inproc name exceeds %d chars: %w", text, InprocMaxSize, ErrInvalidAddress)
		}
		return Endpoint{transport: Inproc, name: rest}, nil
	case IPC:
		if rest == "" {
			return Endpoint{}, fmt.Errorf("endpoint %q: empty ipc path: %w", text, ErrInvalidAddress)
		}
		return Endpoint{transport: IPC, name: rest}, nil
	default:
		return Endpoint{}, fmt.Errorf("endpoint %q: unknown scheme %q: %w", text, scheme, ErrInvalidAddress)
	}
}

func parseTCP(text, rest string) (Endpoint, error) {
	// Search for the port separator from the right so that IPv6 literals
	// ([::1]:7070) do not need special casing.
	mid := strings.LastIndexByte(rest, ':')
	if mid < 0 {
		return Endpoint{}, fmt.Errorf("endpoint %q: missing port: %w", text, ErrInvalidAddress)
	}
	host, portText := rest[:mid], rest[mid+1:]
	if host == "" {
		return Endpoint{}, fmt.Errorf("endpoint %q: empty host: %w", text, ErrInvalidAddress)
	}
	if strings.HasPrefix(host, "[") {
		if !strings.HasSuffix(host, "]") || len(host) < 3 {
			return Endpoint{}, fmt.Errorf("endpoint %q: malformed IPv6 literal: %w", text, ErrInvalidAddress)
		}
	}

	ep := Endpoint{transport: TCP, host: host}
	switch {
	case portText == "*":
		ep.wildcard = true
	case portText == "":
		return Endpoint{}, fmt.Errorf("endpoint %q: empty port: %w", text, ErrInvalidAddress)
	default:
		port, err := strconv.ParseUint(portText, 10, 16)
		if err != nil {
			return Endpoint{}, fmt.Errorf("endpoint %q: invalid port %q: %w", text, portText, ErrInvalidAddress)
		}
		ep.port = uint16(port)
	}
	return ep, nil
}

// MustParse is Parse for endpoint literals known to be valid. It panics on
// error and is intended for tests and examples.
func MustParse(text string) Endpoint {
	ep, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return ep
}

// Transport returns the endpoint's transport kind.
func (e Endpoint) Transport() Transport { return e.transport }

// IsWildcard reports whether the endpoint asks for a system-assigned tcp
// port. Wildcard endpoints may only be bound, never connected to.
func (e Endpoint) IsWildcard() bool { return e.wildcard }

// Host returns the host or interface of a tcp endpoint, and the empty string
// for other transports.
func (e Endpoint) Host() string { return e.host }

// Port returns the port of a tcp endpoint. It is zero for wildcard endpoints
// that have not been resolved and for non-tcp transports.
func (e Endpoint) Port() uint16 { return e.port }

// Name returns the inproc name or ipc path, and the empty string for tcp.
func (e Endpoint) Name() string { return e.name }

// Resolved returns a copy of a wildcard tcp endpoint with the concrete port
// assigned by the system after a successful bind.
func (e Endpoint) Resolved(port uint16) Endpoint {
	e.port = port
	e.wildcard = false
	return e
}

// String renders the endpoint in its normalized scheme://address form.
func (e Endpoint) String() string {
	switch e.transport {
	case TCP:
		if e.wildcard {
			return fmt.Sprintf("tcp://%s:*", e.host)
		}
		return fmt.Sprintf("tcp://%s:%d", e.host, e.port)
	case Inproc, IPC:
		return fmt.Sprintf("%s://%s", e.transport, e.name)
	default:
		return ""
	}
}

// NetworkAddr returns the (network, address) pair to pass to net.Listen or
// net.Dial for tcp and ipc endpoints. The inproc transport has no network
// address; it is served by the session's in-process switchboard.
func (e Endpoint) NetworkAddr() (network, addr string) {
	switch e.transport {
	case TCP:
		host := e.host
		if host == "*" {
			host = ""
		}
		if e.wildcard {
			return "tcp", host + ":0"
		}
		return "tcp", fmt.Sprintf("%s:%d", host, e.port)
	case IPC:
		return "unix", e.name
	default:
		return "", ""
	}
}

// ParseAll parses a list of endpoint strings, failing on the first invalid
// entry.
func ParseAll(texts []string) ([]Endpoint, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	eps := make([]Endpoint, 0, len(texts))
	for _, t := range texts {
		ep, err := Parse(t)
		if err != nil {
			return nil, err
		}
		eps = append(eps, ep)
	}
	return eps, nil
}
