package serialrmt

import (
	"strconv"

	"periph.io/x/conn/v3/gpio"
)

// Pin returns a stand-in for GPIO n of the bridge microcontroller, to pass to
// rmt.Controller.Claim. Only its name and number are meaningful; the host
// cannot drive it.
func Pin(n int) gpio.PinOut {
	return &bridgePin{PinIO: gpio.INVALID, n: n}
}

type bridgePin struct {
	gpio.PinIO
	n int
}

func (p *bridgePin) Name() string   { return "BRIDGE_GPIO" + strconv.Itoa(p.n) }
func (p *bridgePin) String() string { return p.Name() }
func (p *bridgePin) Number() int    { return p.n }
