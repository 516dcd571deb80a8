package serial

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// TouchBaud is the baud rate whose open-and-close triggers a bootloader
// reset on boards with native USB.
const TouchBaud = 1200

// TouchReset opens name at TouchBaud and closes it again.
func TouchReset(name string) error {
	p, err := serial.Open(name, &serial.Mode{BaudRate: TouchBaud})
	if err != nil {
		return fmt.Errorf("touch %s: %w", name, err)
	}
	return p.Close()
}

// PulseDTR drops DTR for width and raises it again, resetting boards
// whose reset line is wired through a capacitor to DTR.
func PulseDTR(name string, baud int, width time.Duration) error {
	p, err := serial.Open(name, &serial.Mode{BaudRate: baud})
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer p.Close()

	if err := p.SetDTR(false); err != nil {
		return fmt.Errorf("drop DTR on %s: %w", name, err)
	}
	time.Sleep(width)
	if err := p.SetDTR(true); err != nil {
		return fmt.Errorf("raise DTR on %s: %w", name, err)
	}
	return nil
}
