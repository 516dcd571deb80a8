package build

import (
	"os"
	"strconv"
	"strings"

	"github.com/buckleypaul/simmatrix/internal/matrix"
)

// Env is the explicit build configuration handed to make for one variant.
type Env struct {
	Device    string
	UART      string
	PinOption int
	HasPin    bool
	TXPort    string
	TXPin     string
	RXPort    string
	RXPin     string
	BaudRate  int
	CPUFreq   string
}

// EnvFor derives the build configuration for a variant.
func EnvFor(v matrix.Variant, baud int, cpuFreq string) Env {
	e := Env{
		Device:   v.Device,
		UART:     v.Peripheral,
		BaudRate: baud,
		CPUFreq:  cpuFreq,
	}
	if v.HasPin {
		e.HasPin = true
		e.PinOption = v.PinIndex
		e.TXPort = string(v.Pin.TXPort)
		e.TXPin = string(v.Pin.TXPin)
		e.RXPort = string(v.Pin.RXPort)
		e.RXPin = string(v.Pin.RXPin)
	}
	return e
}

// Vars returns the KEY=value pairs make receives. Empty values are omitted.
func (e Env) Vars() []string {
	var vars []string
	add := func(k, v string) {
		if v != "" {
			vars = append(vars, k+"="+v)
		}
	}
	add("MCU", e.Device)
	add("SERIAL_UART", e.UART)
	if e.HasPin {
		add("SERIAL_PIN_OPTION", strconv.Itoa(e.PinOption))
		add("SERIAL_TX_PORT", e.TXPort)
		add("SERIAL_TX_PIN", e.TXPin)
		add("SERIAL_RX_PORT", e.RXPort)
		add("SERIAL_RX_PIN", e.RXPin)
	}
	if e.BaudRate > 0 {
		add("SERIAL_BAUD", strconv.Itoa(e.BaudRate))
	}
	add("F_CPU", e.CPUFreq)
	return vars
}

// ownedKeys are the variables Env controls. Inherited values for them are
// always dropped, even when Env leaves them unset.
var ownedKeys = map[string]bool{
	"MCU":               true,
	"SERIAL_UART":       true,
	"SERIAL_PIN_OPTION": true,
	"SERIAL_TX_PORT":    true,
	"SERIAL_TX_PIN":     true,
	"SERIAL_RX_PORT":    true,
	"SERIAL_RX_PIN":     true,
	"SERIAL_BAUD":       true,
	"F_CPU":             true,
}

// Environ returns base without any inherited build variable, followed by
// Vars. A nil base means the current process environment.
func (e Env) Environ(base []string) []string {
	if base == nil {
		base = os.Environ()
	}
	vars := e.Vars()
	result := make([]string, 0, len(base)+len(vars))
	for _, kv := range base {
		key := kv
		if i := strings.IndexByte(kv, '='); i >= 0 {
			key = kv[:i]
		}
		if ownedKeys[key] {
			continue
		}
		result = append(result, kv)
	}
	return append(result, vars...)
}
