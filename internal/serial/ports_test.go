package serial

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.bug.st/serial/enumerator"
)

func TestToPortInfoSortsByName(t *testing.T) {
	got := toPortInfo([]*enumerator.PortDetails{
		{Name: "/dev/ttyUSB1"},
		{Name: "/dev/ttyACM0", IsUSB: true, VID: "2341", PID: "0043", SerialNumber: "A1", Product: "Uno"},
	})
	assert.Equal(t, "/dev/ttyACM0", got[0].Name)
	assert.Equal(t, "/dev/ttyUSB1", got[1].Name)
	assert.Equal(t, "/dev/ttyACM0  usb 2341:0043  sn=A1  Uno", got[0].String())
	assert.Equal(t, "/dev/ttyUSB1", got[1].String())
}
