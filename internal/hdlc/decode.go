package hdlc

import (
	"encoding/binary"
	"fmt"
)

// Message is a decoded frame.
type Message struct {
	ProtocolVersion byte
	HeaderVersion   byte
	Dest            byte
	Src             byte
	Flags           byte
	MessageType     byte
	InstanceID      byte
	Command         Command
	Payload         []byte
}

// IsRequest reports whether the request bit of the instance id is set.
func (m Message) IsRequest() bool {
	return m.InstanceID&InstanceRequest != 0
}

// Tag returns the instance id without the request and datagram bits.
func (m Message) Tag() byte {
	return m.InstanceID & 0x1F
}

// CompletionCode returns the first payload byte of a response.
func (m Message) CompletionCode() (CompletionCode, bool) {
	if m.IsRequest() || len(m.Payload) == 0 {
		return 0, false
	}
	return CompletionCode(m.Payload[0]), true
}

func (m Message) String() string {
	kind := "response"
	if m.IsRequest() {
		kind = "request"
	}
	s := fmt.Sprintf("%s %s dest=0x%02X src=0x%02X tag=%d", kind, m.Command, m.Dest, m.Src, m.Tag())
	if cc, ok := m.CompletionCode(); ok {
		s += " cc=" + cc.String()
		if len(m.Payload) > 1 {
			s += fmt.Sprintf(" data=% X", m.Payload[1:])
		}
	} else if len(m.Payload) > 0 {
		s += fmt.Sprintf(" payload=% X", m.Payload)
	}
	return s
}

// Decode parses one complete frame produced by Encode or by a peer using the
// same layout.
func Decode(frame []byte) (Message, error) {
	// delimiter, version, byte count, 2 FCS bytes, delimiter
	if len(frame) < 6 {
		return Message{}, ErrShortFrame
	}
	if frame[0] != FrameChar || frame[len(frame)-1] != FrameChar {
		return Message{}, ErrBadDelimiter
	}

	region, err := Unstuff(frame[2 : len(frame)-3])
	if err != nil {
		return Message{}, err
	}
	if len(region) == 0 {
		return Message{}, ErrShortFrame
	}
	count, body := int(region[0]), region[1:]
	if count != len(body) {
		return Message{}, fmt.Errorf("%w: count=%d body=%d", ErrLengthMismatch, count, len(body))
	}

	want := binary.BigEndian.Uint16(frame[len(frame)-3 : len(frame)-1])
	got := Update(Update(InitFCS, frame[1:2]), region)
	if got != want {
		return Message{}, fmt.Errorf("%w: got 0x%04X want 0x%04X", ErrChecksum, got, want)
	}

	if len(body) < headerLen {
		return Message{}, ErrShortFrame
	}
	return Message{
		ProtocolVersion: frame[1],
		HeaderVersion:   body[0],
		Dest:            body[1],
		Src:             body[2],
		Flags:           body[3],
		MessageType:     body[4],
		InstanceID:      body[5],
		Command:         Command(body[6]),
		Payload:         append([]byte(nil), body[headerLen:]...),
	}, nil
}
