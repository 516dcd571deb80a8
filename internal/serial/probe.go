package serial

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"

	"github.com/buckleypaul/simmatrix/internal/logging"
)

// ErrNoResponse is returned when nothing arrives within the response window.
var ErrNoResponse = errors.New("no response received")

// Prober timing defaults.
const (
	DefaultBaudRate    = 9600
	DefaultOpenRetry   = time.Second
	DefaultSettle      = 200 * time.Millisecond
	DefaultWindow      = time.Second
	DefaultIdleTimeout = 50 * time.Millisecond
)

// Prober sends one request frame to an endpoint and collects the reply.
type Prober struct {
	Open        OpenFunc
	BaudRate    int
	OpenRetry   time.Duration
	Settle      time.Duration
	Window      time.Duration
	IdleTimeout time.Duration
	Logger      *log.Logger
}

// NewProber returns a prober with default timing.
func NewProber() *Prober {
	return &Prober{
		BaudRate:    DefaultBaudRate,
		OpenRetry:   DefaultOpenRetry,
		Settle:      DefaultSettle,
		Window:      DefaultWindow,
		IdleTimeout: DefaultIdleTimeout,
	}
}

// Probe opens endpoint, discards stale input, waits for the line to
// settle, writes frame and returns every byte received until the line
// goes idle or the window closes. The endpoint is always closed on return.
func (p *Prober) Probe(ctx context.Context, endpoint string, frame []byte) ([]byte, error) {
	logger := logging.OrDiscard(p.Logger).With("endpoint", endpoint)
	baud := p.BaudRate
	if baud <= 0 {
		baud = DefaultBaudRate
	}

	m := NewMonitor(p.Open)
	if err := m.Connect(ctx, endpoint, baud, orDefault(p.OpenRetry, DefaultOpenRetry)); err != nil {
		return nil, err
	}
	defer m.Disconnect()

	if err := m.Flush(); err != nil {
		logger.Debug("input flush failed", "err", err)
	}
	if err := sleep(ctx, orDefault(p.Settle, DefaultSettle)); err != nil {
		return nil, err
	}
	// Bytes that arrived while settling are boot noise, not the reply.
	if err := m.Flush(); err != nil {
		logger.Debug("input flush failed", "err", err)
	}
	if err := m.Write(frame); err != nil {
		return nil, err
	}
	logger.Debug("request sent", "bytes", len(frame))

	resp, err := Collect(ctx, m.DataChan(), orDefault(p.Window, DefaultWindow), orDefault(p.IdleTimeout, DefaultIdleTimeout))
	if err != nil {
		return nil, err
	}
	if len(resp) == 0 {
		return nil, ErrNoResponse
	}
	logger.Debug("response received", "bytes", len(resp))
	return resp, nil
}

// Collect gathers chunks until idle passes with no data after the first
// byte, or window elapses overall.
func Collect(ctx context.Context, data <-chan []byte, window, idle time.Duration) ([]byte, error) {
	var resp []byte
	overall := time.NewTimer(window)
	defer overall.Stop()

	var idleC <-chan time.Time
	var idleTimer *time.Timer
	defer func() {
		if idleTimer != nil {
			idleTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-overall.C:
			return resp, nil
		case <-idleC:
			return resp, nil
		case chunk := <-data:
			resp = append(resp, chunk...)
			if idleTimer == nil {
				idleTimer = time.NewTimer(idle)
			} else {
				if !idleTimer.Stop() {
					select {
					case <-idleTimer.C:
					default:
					}
				}
				idleTimer.Reset(idle)
			}
			idleC = idleTimer.C
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
