// Package msg defines the atomic message exchanged by strandsock sockets.
//
// A Message is an owned byte buffer with two optional pieces of routing
// metadata: a routing id, assigned by the engine to identify the peer
// connection a Server message arrived on, and a group, which scopes Radio to
// Dish fan-out. Neither attribute is validated against a socket variant here;
// a socket rejects inapplicable attributes at send time.
package msg

// Message is a single atomic byte sequence. Messages are value types: pass
// them around freely, but do not retain the slice returned by Bytes after
// handing the message to a socket.
type Message struct {
	data []byte

	routingID  uint32
	hasRouting bool

	group Group
}

// New returns a Message owning data. The caller must not modify data
// afterwards.
func New(data []byte) Message {
	return Message{data: data}
}

// NewString returns a Message holding the bytes of text.
func NewString(text string) Message {
	return Message{data: []byte(text)}
}

// Empty returns a zero-length Message, commonly used as a sentinel or
// termination marker.
func Empty() Message {
	return Message{}
}

// Bytes returns the message payload. The returned slice is owned by the
// message.
func (m Message) Bytes() []byte { return m.data }

// String returns the payload interpreted as text.
func (m Message) String() string { return string(m.data) }

// Len returns the payload length in bytes.
func (m Message) Len() int { return len(m.data) }

// IsEmpty reports whether the payload has zero length.
func (m Message) IsEmpty() bool { return len(m.data) == 0 }

// RoutingID returns the engine-assigned routing id and whether one is set.
// It identifies the peer connection on a Server socket and is only valid for
// the lifetime of that peer's connection.
func (m Message) RoutingID() (uint32, bool) {
	return m.routingID, m.hasRouting
}

// SetRoutingID tags the message with a routing id previously observed on a
// received message. Ids are issued by the engine, never by callers.
func (m *Message) SetRoutingID(id uint32) {
	m.routingID = id
	m.hasRouting = true
}

// ClearRoutingID removes the routing id.
func (m *Message) ClearRoutingID() {
	m.routingID = 0
	m.hasRouting = false
}

// Group returns the message's group and whether one is set.
func (m Message) Group() (Group, bool) {
	return m.group, !m.group.IsZero()
}

// SetGroup tags the message with a group for Radio transmission.
func (m *Message) SetGroup(g Group) {
	m.group = g
}
