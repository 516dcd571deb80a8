package peer

import (
	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/buckleypaul/simmatrix/internal/hdlc"
)

type handler interface {
	handle(data []byte) []byte
}

type echo struct{}

func (echo) handle(data []byte) []byte {
	return append([]byte(nil), data...)
}

// responder answers MCTP control requests like an endpoint would.
type responder struct {
	splitter hdlc.Splitter
	eid      byte
	id       uuid.UUID
	logger   *log.Logger
}

func newResponder(eid byte, logger *log.Logger) *responder {
	return &responder{eid: eid, id: uuid.New(), logger: logger}
}

func (r *responder) handle(data []byte) []byte {
	var out []byte
	for _, frame := range r.splitter.Feed(data) {
		req, err := hdlc.Decode(frame)
		if err != nil {
			r.logger.Warn("dropping bad frame", "err", err, "frame", frame)
			continue
		}
		if !req.IsRequest() {
			continue
		}
		cc, reply := r.answer(req)
		resp, err := hdlc.EncodeResponse(req, cc, reply)
		if err != nil {
			r.logger.Warn("cannot encode response", "err", err)
			continue
		}
		r.logger.Debug("answered", "request", req.String(), "cc", cc)
		out = append(out, resp...)
	}
	return out
}

func (r *responder) answer(req hdlc.Message) (hdlc.CompletionCode, []byte) {
	switch req.Command {
	case hdlc.GetEndpointID:
		// EID, simple endpoint with static EID, medium specific
		return hdlc.CompletionSuccess, []byte{r.eid, 0x00, 0x00}
	case hdlc.SetEndpointID:
		if len(req.Payload) < 2 {
			return hdlc.CompletionInvalidLength, nil
		}
		r.eid = req.Payload[1]
		// accepted, no pool
		return hdlc.CompletionSuccess, []byte{0x00, r.eid, 0x00}
	case hdlc.GetEndpointUUID:
		return hdlc.CompletionSuccess, r.id[:]
	case hdlc.GetVersionSupport:
		// one entry: 1.3.1
		return hdlc.CompletionSuccess, []byte{0x01, 0xF1, 0xF3, 0xF1, 0x00}
	case hdlc.GetMessageTypeSupport:
		return hdlc.CompletionSuccess, []byte{0x01, hdlc.MessageTypeControl}
	default:
		return hdlc.CompletionUnsupportedCmd, nil
	}
}
