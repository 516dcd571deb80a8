package serial

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// ErrEndpointUnavailable is returned when the endpoint cannot be opened
// within the retry window.
var ErrEndpointUnavailable = errors.New("serial endpoint unavailable")

// pollTimeout bounds each Read so the read loop notices Disconnect.
const pollTimeout = 10 * time.Millisecond

// Monitor manages a serial port connection and forwards received bytes.
type Monitor struct {
	open     OpenFunc
	port     Port
	mu       sync.Mutex
	running  bool
	dataCh   chan []byte
	done     chan struct{}
	loopDone chan struct{}
}

// NewMonitor creates a monitor that opens ports with open, or Open when nil.
func NewMonitor(open OpenFunc) *Monitor {
	if open == nil {
		open = Open
	}
	return &Monitor{
		open:   open,
		dataCh: make(chan []byte, 64),
		done:   make(chan struct{}),
	}
}

// Connect opens portName, retrying until it appears or retryWindow
// elapses. The simulator may advertise its endpoint slightly before the
// device node is usable.
func (m *Monitor) Connect(ctx context.Context, portName string, baudRate int, retryWindow time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		m.disconnectLocked()
	}

	deadline := time.Now().Add(retryWindow)
	var lastErr error
	for {
		if _, err := os.Stat(portName); err != nil {
			lastErr = err
		} else if port, err := m.open(portName, baudRate); err != nil {
			lastErr = err
		} else {
			if err := port.SetReadTimeout(pollTimeout); err != nil {
				port.Close()
				return fmt.Errorf("%s: %w", portName, err)
			}
			m.port = port
			break
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %s: %v", ErrEndpointUnavailable, portName, lastErr)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}

	m.running = true
	m.done = make(chan struct{})
	m.loopDone = make(chan struct{})

	go m.readLoop(m.port, m.done, m.loopDone)
	return nil
}

// Disconnect closes the serial port and waits for the read loop to stop.
func (m *Monitor) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnectLocked()
}

func (m *Monitor) disconnectLocked() {
	if !m.running {
		return
	}
	m.running = false
	close(m.done)
	<-m.loopDone
	if m.port != nil {
		m.port.Close()
		m.port = nil
	}
}

// Flush discards anything buffered on the port or already forwarded.
func (m *Monitor) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.port == nil {
		return io.ErrClosedPipe
	}
	for drained := false; !drained; {
		select {
		case <-m.dataCh:
		default:
			drained = true
		}
	}
	return m.port.ResetInputBuffer()
}

// Write sends data to the serial port.
func (m *Monitor) Write(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.port == nil {
		return io.ErrClosedPipe
	}
	_, err := m.port.Write(data)
	return err
}

// DataChan returns the channel that receives serial data.
func (m *Monitor) DataChan() <-chan []byte {
	return m.dataCh
}

// Connected returns whether the monitor is connected.
func (m *Monitor) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Monitor) readLoop(port Port, done, loopDone chan struct{}) {
	defer close(loopDone)
	buf := make([]byte, 1024)
	for {
		select {
		case <-done:
			return
		default:
		}

		n, err := port.Read(buf)
		if err != nil {
			return
		}
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case m.dataCh <- chunk:
			case <-done:
				return
			}
		}
	}
}
