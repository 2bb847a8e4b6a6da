package led

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/devices/v3/nrzled"
)

// NRZ drives a strip with periph's nrzled encoder over SPI. It only speaks
// the WS2812 family in GRB order and has no completion timeout, but needs no
// pulse peripheral.
type NRZ struct {
	mu    sync.Mutex
	dev   *nrzled.Dev
	port  spi.Port
	count int
}

// DefaultNRZFreq is the SPI clock used when NewNRZ gets 0.
const DefaultNRZFreq = 2500 * physic.KiloHertz

// NewNRZ opens an nrzled device on port for count RGB LEDs. freq is the SPI
// clock; nrzled accepts 1.8 to 2.5MHz.
func NewNRZ(port spi.Port, count int, freq physic.Frequency) (*NRZ, error) {
	if count <= 0 {
		return nil, fmt.Errorf("invalid LED count: %d", count)
	}
	if freq == 0 {
		freq = DefaultNRZFreq
	}
	d, err := nrzled.NewSPI(port, &nrzled.Opts{NumPixels: count, Channels: 3, Freq: freq})
	if err != nil {
		return nil, fmt.Errorf("nrzled: %w", err)
	}
	return &NRZ{dev: d, port: port, count: count}, nil
}

func (n *NRZ) Write(rgb []byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.dev == nil {
		return fmt.Errorf("nrz closed")
	}
	if len(rgb) != n.count*3 {
		return fmt.Errorf("rgb length %d does not match count %d", len(rgb), n.count)
	}
	_, err := n.dev.Write(rgb)
	return err
}

func (n *NRZ) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.dev == nil {
		return nil
	}
	n.dev = nil
	if c, ok := n.port.(spi.PortCloser); ok {
		return c.Close()
	}
	return nil
}
