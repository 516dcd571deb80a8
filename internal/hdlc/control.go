package hdlc

import (
	"fmt"
	"strconv"
	"strings"
)

// Command is an MCTP control command code.
type Command byte

const (
	SetEndpointID         Command = 0x01
	GetEndpointID         Command = 0x02
	GetEndpointUUID       Command = 0x03
	GetVersionSupport     Command = 0x04
	GetMessageTypeSupport Command = 0x05
)

// Default addressing used by the matrix probe and the probe command.
const (
	DefaultDest byte = 0x00
	DefaultSrc  byte = 0x01
)

var commandNames = map[Command]string{
	SetEndpointID:         "SET_ENDPOINT_ID",
	GetEndpointID:         "GET_ENDPOINT_ID",
	GetEndpointUUID:       "GET_ENDPOINT_UUID",
	GetVersionSupport:     "GET_MCTP_VERSION_SUPPORT",
	GetMessageTypeSupport: "GET_MESSAGE_TYPE_SUPPORT",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("CMD_0x%02X", byte(c))
}

// LookupCommand resolves a command name, ignoring case.
func LookupCommand(name string) (Command, bool) {
	name = strings.ToUpper(strings.TrimSpace(name))
	for c, n := range commandNames {
		if n == name {
			return c, true
		}
	}
	return 0, false
}

// CompletionCode is the first byte of a control response payload.
type CompletionCode byte

const (
	CompletionSuccess        CompletionCode = 0x00
	CompletionError          CompletionCode = 0x01
	CompletionInvalidData    CompletionCode = 0x02
	CompletionInvalidLength  CompletionCode = 0x03
	CompletionNotReady       CompletionCode = 0x04
	CompletionUnsupportedCmd CompletionCode = 0x05
)

func (c CompletionCode) String() string {
	switch c {
	case CompletionSuccess:
		return "SUCCESS"
	case CompletionError:
		return "ERROR"
	case CompletionInvalidData:
		return "ERROR_INVALID_DATA"
	case CompletionInvalidLength:
		return "ERROR_INVALID_LENGTH"
	case CompletionNotReady:
		return "ERROR_NOT_READY"
	case CompletionUnsupportedCmd:
		return "ERROR_UNSUPPORTED_CMD"
	default:
		return fmt.Sprintf("0x%02X", byte(c))
	}
}

// ProbeRequest is the fixed liveness check sent to every simulated target.
func ProbeRequest() Request {
	return Request{Command: GetEndpointID, Dest: DefaultDest, Src: DefaultSrc}
}

// ParseRequest builds a request from either a command name such as
// "GET_ENDPOINT_ID" or hex bytes such as "01 00 08", where the first byte is
// the command code and the rest is payload.
func ParseRequest(text string) (Request, error) {
	if c, ok := LookupCommand(text); ok {
		return Request{Command: c, Dest: DefaultDest, Src: DefaultSrc}, nil
	}
	raw, err := ParseHex(text)
	if err != nil {
		return Request{}, fmt.Errorf("%w: %q", ErrUnknownCommand, text)
	}
	if len(raw) == 0 {
		return Request{}, ErrEmptyRequest
	}
	return Request{
		Command: Command(raw[0]),
		Dest:    DefaultDest,
		Src:     DefaultSrc,
		Payload: raw[1:],
	}, nil
}

// ParseHex parses whitespace or comma separated hex bytes. An optional 0x
// prefix is accepted on each byte.
func ParseHex(s string) ([]byte, error) {
	fields := strings.Fields(strings.ReplaceAll(s, ",", " "))
	out := make([]byte, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimPrefix(strings.TrimPrefix(f, "0x"), "0X")
		v, err := strconv.ParseUint(f, 16, 8)
		if err != nil {
			return nil, fmt.Errorf("parse hex byte %q: %w", f, err)
		}
		out = append(out, byte(v))
	}
	return out, nil
}
