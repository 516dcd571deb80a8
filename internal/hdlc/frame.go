// Package hdlc implements the byte-stuffed, FCS-16 protected serial framing
// used to carry MCTP control messages to the firmware under test.
//
// Frame layout before stuffing:
//
//	0x7E | protocol version | byte count | body ... | FCS hi | FCS lo | 0x7E
//
// The FCS covers protocol version, byte count and body. Only the byte count
// and body are stuffed; the delimiters and the two FCS bytes go out verbatim.
// A receiver that unstuffs the whole frame can therefore misread a frame
// whose FCS contains 0x7E or 0x7D. Existing peers expect this layout.
package hdlc

import (
	"errors"
	"fmt"
)

const (
	FrameChar  byte = 0x7E
	EscapeChar byte = 0x7D
	escapeBias byte = 0x20

	ProtocolVersion byte = 0x01
	HeaderVersion   byte = 0x01

	// FlagsSingleFrame marks start and end of message with the tag owner bit set.
	FlagsSingleFrame byte = 0xC8
	// FlagsSingleResponse is FlagsSingleFrame without the tag owner bit.
	FlagsSingleResponse byte = 0xC0
	// MessageTypeControl selects the MCTP control message type.
	MessageTypeControl byte = 0x00
	// InstanceRequest has the request bit set and tag zero.
	InstanceRequest byte = 0x80

	// headerLen counts header version, dest, src, flags, message type,
	// instance id and command code.
	headerLen = 7
	// MaxBodyLen is bounded by the single byte count field.
	MaxBodyLen = 0xFF
	MaxPayload = MaxBodyLen - headerLen
)

var (
	ErrPayloadTooLarge = errors.New("hdlc: payload too large")
	ErrShortFrame      = errors.New("hdlc: frame too short")
	ErrBadDelimiter    = errors.New("hdlc: frame not delimited by 0x7E")
	ErrChecksum        = errors.New("hdlc: checksum mismatch")
	ErrLengthMismatch  = errors.New("hdlc: byte count does not match body")
	ErrTruncatedEscape = errors.New("hdlc: escape byte at end of data")
	ErrUnexpectedFrame = errors.New("hdlc: unescaped delimiter inside frame")
	ErrUnknownCommand  = errors.New("hdlc: unknown command")
	ErrEmptyRequest    = errors.New("hdlc: empty request")
)

// Request is one outbound control message.
type Request struct {
	Command Command
	Dest    byte
	Src     byte
	Payload []byte
}

// Body returns the unstuffed message body: header version, addresses,
// flags, message type, instance id, command code and payload.
func (r Request) Body() []byte {
	body := make([]byte, 0, headerLen+len(r.Payload))
	body = append(body,
		HeaderVersion,
		r.Dest,
		r.Src,
		FlagsSingleFrame,
		MessageTypeControl,
		InstanceRequest,
		byte(r.Command),
	)
	return append(body, r.Payload...)
}

// Encode builds the wire frame for r.
func Encode(r Request) ([]byte, error) {
	if len(r.Payload) > MaxPayload {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(r.Payload), MaxPayload)
	}
	return frameBody(r.Body()), nil
}

// EncodeResponse builds the reply to req carrying cc followed by data.
// Addresses are swapped and the tag is echoed with the request bit clear.
func EncodeResponse(req Message, cc CompletionCode, data []byte) ([]byte, error) {
	if 1+len(data) > MaxPayload {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, 1+len(data), MaxPayload)
	}
	body := make([]byte, 0, headerLen+1+len(data))
	body = append(body,
		HeaderVersion,
		req.Src,
		req.Dest,
		FlagsSingleResponse,
		req.MessageType,
		req.Tag(),
		byte(req.Command),
		byte(cc),
	)
	return frameBody(append(body, data...)), nil
}

func frameBody(body []byte) []byte {
	raw := make([]byte, 0, 3+len(body))
	raw = append(raw, FrameChar, ProtocolVersion, byte(len(body)))
	raw = append(raw, body...)
	fcs := Checksum(raw[1:])

	out := make([]byte, 0, 2*len(raw)+3)
	out = append(out, FrameChar, ProtocolVersion)
	out = Stuff(out, raw[2:])
	out = append(out, byte(fcs>>8), byte(fcs), FrameChar)
	return out
}

// MustEncode is Encode for requests known to fit, such as the fixed probe.
func MustEncode(r Request) []byte {
	b, err := Encode(r)
	if err != nil {
		panic(err)
	}
	return b
}

// Stuff appends src to dst, replacing each delimiter or escape byte with
// the escape byte followed by the original value minus 0x20.
func Stuff(dst, src []byte) []byte {
	for _, b := range src {
		if b == FrameChar || b == EscapeChar {
			dst = append(dst, EscapeChar, b-escapeBias)
			continue
		}
		dst = append(dst, b)
	}
	return dst
}

// Unstuff reverses Stuff.
func Unstuff(src []byte) ([]byte, error) {
	out := make([]byte, 0, len(src))
	for i := 0; i < len(src); i++ {
		switch b := src[i]; b {
		case FrameChar:
			return nil, fmt.Errorf("%w at offset %d", ErrUnexpectedFrame, i)
		case EscapeChar:
			if i+1 >= len(src) {
				return nil, ErrTruncatedEscape
			}
			i++
			out = append(out, src[i]+escapeBias)
		default:
			out = append(out, b)
		}
	}
	return out, nil
}
