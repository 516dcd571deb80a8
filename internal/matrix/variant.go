package matrix

import (
	"fmt"
	"strings"
)

// Family distinguishes the two UART register layouts.
type Family int

const (
	Classic Family = iota
	ZeroSeries
)

func (f Family) String() string {
	if f == ZeroSeries {
		return "ZERO_SERIES"
	}
	return "CLASSIC"
}

// familyOfType classifies a legacy entry by its type string
// (USART_CLASSIC, USART_0SERIES).
func familyOfType(t string) Family {
	if strings.Contains(strings.ToUpper(t), "CLASSIC") {
		return Classic
	}
	return ZeroSeries
}

// Variant is one (device, UART, pin mapping) combination.
type Variant struct {
	Device     string
	Peripheral string
	Family     Family
	Type       string
	// PinIndex is the position of Pin within the entry's options. It is
	// meaningful only when HasPin is set; otherwise the UART has a single
	// implicit wiring.
	PinIndex int
	Pin      PinMapping
	HasPin   bool
}

// PinOption returns the pin option index, if the entry lists options.
func (v Variant) PinOption() (int, bool) {
	return v.PinIndex, v.HasPin
}

// PinDescription renders the wiring as PORTD[1,0] when TX and RX share a
// port, or TX=PORTD[1] RX=PORTC[2] otherwise.
func (v Variant) PinDescription() string {
	if !v.HasPin {
		return ""
	}
	p := v.Pin
	if p.TXPort != "" && p.TXPort == p.RXPort {
		return fmt.Sprintf("PORT%s[%s,%s]", p.TXPort, p.TXPin, p.RXPin)
	}
	return fmt.Sprintf("TX=PORT%s[%s] RX=PORT%s[%s]", p.TXPort, p.TXPin, p.RXPort, p.RXPin)
}

func (v Variant) String() string {
	return fmt.Sprintf("MCU=%s UART=%s PIN=%s", v.Device, v.Peripheral, v.PinDescription())
}
