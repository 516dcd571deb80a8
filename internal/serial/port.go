// Package serial talks to the simulator's serial endpoint: opening it
// with a bounded retry, sending a request frame and collecting the reply.
package serial

import (
	"io"
	"time"

	"go.bug.st/serial"
)

// Port is the subset of a serial port the prober needs.
type Port interface {
	io.ReadWriteCloser
	ResetInputBuffer() error
	SetReadTimeout(t time.Duration) error
}

// OpenFunc opens a named endpoint at the given baud rate.
type OpenFunc func(name string, baud int) (Port, error)

// Open opens a real serial device or pseudo-terminal with 8N1 framing.
func Open(name string, baud int) (Port, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(name, mode)
	if err != nil {
		return nil, err
	}
	return p, nil
}
