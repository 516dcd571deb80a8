package serial

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePort answers each write with the chunks returned by reply.
type fakePort struct {
	incoming  chan []byte
	reply     func([]byte) [][]byte
	closed    chan struct{}
	closeOnce sync.Once
	timeout   time.Duration

	mu     sync.Mutex
	writes [][]byte
	resets int
}

func newFakePort(reply func([]byte) [][]byte) *fakePort {
	return &fakePort{
		incoming: make(chan []byte, 16),
		reply:    reply,
		closed:   make(chan struct{}),
		timeout:  pollTimeout,
	}
}

func (f *fakePort) Read(p []byte) (int, error) {
	select {
	case b := <-f.incoming:
		return copy(p, b), nil
	case <-f.closed:
		return 0, io.EOF
	case <-time.After(f.timeout):
		return 0, nil
	}
}

func (f *fakePort) Write(p []byte) (int, error) {
	f.mu.Lock()
	f.writes = append(f.writes, append([]byte(nil), p...))
	f.mu.Unlock()
	if f.reply != nil {
		for _, chunk := range f.reply(p) {
			f.incoming <- chunk
		}
	}
	return len(p), nil
}

func (f *fakePort) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakePort) ResetInputBuffer() error {
	f.mu.Lock()
	f.resets++
	f.mu.Unlock()
	for {
		select {
		case <-f.incoming:
		default:
			return nil
		}
	}
}

func (f *fakePort) SetReadTimeout(t time.Duration) error {
	f.timeout = t
	return nil
}

func (f *fakePort) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func endpointFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ttyFAKE")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	return path
}

func testProber(port *fakePort) *Prober {
	return &Prober{
		Open:        func(string, int) (Port, error) { return port, nil },
		BaudRate:    9600,
		OpenRetry:   100 * time.Millisecond,
		Settle:      5 * time.Millisecond,
		Window:      500 * time.Millisecond,
		IdleTimeout: 30 * time.Millisecond,
	}
}

func TestProbeCollectsChunkedResponse(t *testing.T) {
	port := newFakePort(func(req []byte) [][]byte {
		return [][]byte{req[:4], req[4:]}
	})
	frame := []byte{0x7E, 0x01, 0x07, 0x01, 0x00, 0x01, 0xC8, 0x00, 0x80, 0x02, 0x7A, 0xA5, 0x7E}

	resp, err := testProber(port).Probe(context.Background(), endpointFile(t), frame)

	require.NoError(t, err)
	assert.Equal(t, frame, resp)
	assert.Equal(t, [][]byte{frame}, port.writes)
	assert.True(t, port.isClosed(), "port must be closed after probe")
}

func TestProbeNoResponse(t *testing.T) {
	port := newFakePort(nil)

	start := time.Now()
	_, err := testProber(port).Probe(context.Background(), endpointFile(t), []byte{0x7E})

	assert.ErrorIs(t, err, ErrNoResponse)
	assert.GreaterOrEqual(t, time.Since(start), 500*time.Millisecond)
	assert.True(t, port.isClosed())
}

func TestProbeDiscardsStaleInput(t *testing.T) {
	port := newFakePort(func([]byte) [][]byte { return [][]byte{{0xAA}} })
	port.incoming <- []byte("boot banner")

	resp, err := testProber(port).Probe(context.Background(), endpointFile(t), []byte{0x7E})

	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA}, resp)
	assert.GreaterOrEqual(t, port.resets, 1)
}

func TestProbeEndpointUnavailable(t *testing.T) {
	port := newFakePort(nil)
	missing := filepath.Join(t.TempDir(), "ttyGONE")

	_, err := testProber(port).Probe(context.Background(), missing, []byte{0x7E})

	assert.ErrorIs(t, err, ErrEndpointUnavailable)
}

func TestProbeWaitsForEndpointToAppear(t *testing.T) {
	port := newFakePort(func(req []byte) [][]byte { return [][]byte{req} })
	path := filepath.Join(t.TempDir(), "ttyLATE")
	time.AfterFunc(30*time.Millisecond, func() { os.WriteFile(path, nil, 0o644) })

	p := testProber(port)
	p.OpenRetry = time.Second
	resp, err := p.Probe(context.Background(), path, []byte{0x01})

	require.NoError(t, err)
	assert.Equal(t, []byte{0x01}, resp)
}

func TestProbeCancelled(t *testing.T) {
	port := newFakePort(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testProber(port).Probe(ctx, endpointFile(t), []byte{0x7E})

	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, port.isClosed())
}

func TestMonitorWriteAfterDisconnect(t *testing.T) {
	port := newFakePort(nil)
	m := NewMonitor(func(string, int) (Port, error) { return port, nil })
	require.NoError(t, m.Connect(context.Background(), endpointFile(t), 9600, 0))
	assert.True(t, m.Connected())

	m.Disconnect()
	assert.False(t, m.Connected())
	assert.ErrorIs(t, m.Write([]byte{1}), io.ErrClosedPipe)
}
