package main

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/buckleypaul/simmatrix/internal/hdlc"
	"github.com/buckleypaul/simmatrix/internal/serial"
	"github.com/buckleypaul/simmatrix/internal/store"
)

var probeFlags struct {
	baud    int
	request string
	window  time.Duration
	idle    time.Duration
	settle  time.Duration
	raw     bool
}

var probeCmd = &cobra.Command{
	Use:   "probe <endpoint>",
	Short: "Send one framed control request to a serial endpoint",
	Long: `Probe opens the endpoint, discards stale input, writes one framed
request and prints whatever comes back. The request is a command name
(GET_ENDPOINT_ID, SET_ENDPOINT_ID, GET_MCTP_VERSION_SUPPORT,
GET_MESSAGE_TYPE_SUPPORT) or hex bytes whose first byte is the command
code, e.g. "01 00 08".

Example:
  simmatrix probe /dev/ttyUSB0 --request GET_MCTP_VERSION_SUPPORT`,
	Args: cobra.ExactArgs(1),
	RunE: runProbe,
}

func init() {
	f := probeCmd.Flags()
	f.IntVarP(&probeFlags.baud, "baud", "b", 0, "baud rate (default from config)")
	f.StringVarP(&probeFlags.request, "request", "r", hdlc.GetEndpointID.String(), "command name or hex bytes")
	f.DurationVar(&probeFlags.window, "window", 0, "total response window (default from config)")
	f.DurationVar(&probeFlags.idle, "idle", 0, "idle gap that ends the response (default from config)")
	f.DurationVar(&probeFlags.settle, "settle", -1, "delay between opening and writing (default from config)")
	f.BoolVar(&probeFlags.raw, "raw", false, "send the hex bytes as-is instead of framing them")
}

func runProbe(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(false)
	if err != nil {
		return err
	}
	endpoint := args[0]

	var frame []byte
	if probeFlags.raw {
		if frame, err = hdlc.ParseHex(probeFlags.request); err != nil {
			return err
		}
	} else {
		req, err := hdlc.ParseRequest(probeFlags.request)
		if err != nil {
			return err
		}
		if frame, err = hdlc.Encode(req); err != nil {
			return err
		}
	}

	p := serial.NewProber()
	p.BaudRate = pick(probeFlags.baud, e.cfg.BaudRate)
	p.Window = pick(probeFlags.window, e.cfg.ProbeWindow.Duration)
	p.IdleTimeout = pick(probeFlags.idle, e.cfg.ProbeIdle.Duration)
	p.OpenRetry = e.cfg.OpenRetryWindow.Duration
	p.Settle = e.cfg.ProbeSettle.Duration
	if probeFlags.settle >= 0 {
		p.Settle = probeFlags.settle
	}
	p.Logger = e.logger

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	fmt.Printf("-> % X\n", frame)
	resp, probeErr := p.Probe(ctx, endpoint, frame)

	rec := store.ProbeRecord{
		Endpoint:  endpoint,
		BaudRate:  p.BaudRate,
		Timestamp: time.Now(),
		Request:   fmt.Sprintf("% X", frame),
		Response:  fmt.Sprintf("% X", resp),
		Success:   probeErr == nil,
	}
	if probeErr != nil {
		rec.Error = probeErr.Error()
	}
	if e.project != nil && e.project.Initialized {
		if err := store.New(e.project.StatePath()).AddProbe(rec); err != nil {
			e.logger.Warn("record probe", "err", err)
		}
	}

	if probeErr != nil {
		return probeErr
	}
	fmt.Printf("<- % X\n", resp)
	for _, msg := range decodeAll(resp) {
		fmt.Println("   " + msg)
	}
	return nil
}

// decodeAll describes every frame found in resp. Frames that do not decode
// are reported with the reason.
func decodeAll(resp []byte) []string {
	var s hdlc.Splitter
	var out []string
	for _, f := range s.Feed(resp) {
		m, err := hdlc.Decode(f)
		if err != nil {
			out = append(out, fmt.Sprintf("undecodable frame (% X): %v", f, err))
			continue
		}
		out = append(out, m.String())
	}
	if n := s.Pending(); n > 0 {
		out = append(out, fmt.Sprintf("%d bytes of an incomplete frame", n))
	}
	return out
}

func pick[T comparable](flag, fallback T) T {
	var zero T
	if flag != zero {
		return flag
	}
	return fallback
}
