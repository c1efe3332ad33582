package engine

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/strand-protocol/strandsock/pkg/msg"
)

// Wire constants. Every frame starts with an eight-byte header:
//
//	[2B magic 0x5353][1B version][1B op][4B big-endian payload length]
const (
	frameMagic   uint16 = 0x5353 // "SS"
	wireVersion  byte   = 1
	frameHdrSize        = 8

	// maxFramePayload bounds a single message on the wire.
	maxFramePayload = 64 << 20
)

// Frame ops.
const (
	opHello     byte = 0x01
	opMsg       byte = 0x02
	opPing      byte = 0x03
	opPong      byte = 0x04
	opJoin      byte = 0x05
	opLeave     byte = 0x06
	opChallenge byte = 0x07
	opResponse  byte = 0x08
)

type frame struct {
	op      byte
	payload []byte
}

func writeFrame(w io.Writer, op byte, payload []byte) error {
	if len(payload) > maxFramePayload {
		return fmt.Errorf("engine: frame payload %d exceeds limit", len(payload))
	}
	buf := make([]byte, frameHdrSize+len(payload))
	binary.BigEndian.PutUint16(buf[0:2], frameMagic)
	buf[2] = wireVersion
	buf[3] = op
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(payload)))
	copy(buf[frameHdrSize:], payload)
	_, err := w.Write(buf)
	return err
}

func readFrame(r io.Reader) (byte, []byte, error) {
	var hdr [frameHdrSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, nil, err
	}
	if binary.BigEndian.Uint16(hdr[0:2]) != frameMagic {
		return 0, nil, fmt.Errorf("engine: bad frame magic %#x", hdr[0:2])
	}
	if hdr[2] != wireVersion {
		return 0, nil, fmt.Errorf("engine: unsupported wire version %d", hdr[2])
	}
	op := hdr[3]
	length := binary.BigEndian.Uint32(hdr[4:8])
	if length > maxFramePayload {
		return 0, nil, fmt.Errorf("engine: frame payload %d exceeds limit", length)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, err
	}
	return op, payload, nil
}

// encodeMsg lays out a message payload as [1B group length][group][body].
// Routing ids never travel on the wire; they are connection-local handles.
func encodeMsg(m msg.Message) []byte {
	var group string
	if g, ok := m.Group(); ok {
		group = g.String()
	}
	body := m.Bytes()
	out := make([]byte, 1+len(group)+len(body))
	out[0] = byte(len(group))
	copy(out[1:], group)
	copy(out[1+len(group):], body)
	return out
}

func decodeMsg(payload []byte) (msg.Message, error) {
	if len(payload) < 1 {
		return msg.Message{}, fmt.Errorf("engine: truncated message frame")
	}
	groupLen := int(payload[0])
	if 1+groupLen > len(payload) {
		return msg.Message{}, fmt.Errorf("engine: message group length %d exceeds frame", groupLen)
	}
	m := msg.New(payload[1+groupLen:])
	if groupLen > 0 {
		g, err := msg.NewGroup(string(payload[1 : 1+groupLen]))
		if err != nil {
			return msg.Message{}, fmt.Errorf("engine: message carries %w", err)
		}
		m.SetGroup(g)
	}
	return m, nil
}
