// Package rmttest implements a scriptable in-memory pulse-train peripheral
// for tests.
package rmttest

import (
	"errors"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"

	"github.com/coreman2200/smartled/pulse"
	"github.com/coreman2200/smartled/rmt"
)

// ErrUnderrun is the hardware error reported by Channel.Fail.
var ErrUnderrun = errors.New("rmttest: underrun")

// Peripheral is a fake rmt.Peripheral.
type Peripheral struct {
	Freq     physic.Frequency
	Channels []*Channel
}

// New returns a Peripheral at freq with n channels of the given capacity.
func New(freq physic.Frequency, n, capacity int) *Peripheral {
	p := &Peripheral{Freq: freq}
	for i := 0; i < n; i++ {
		p.Channels = append(p.Channels, &Channel{Cap: capacity})
	}
	return p
}

// Clock implements rmt.Peripheral.
func (p *Peripheral) Clock() physic.Frequency { return p.Freq }

// NumChannels implements rmt.Peripheral.
func (p *Peripheral) NumChannels() int { return len(p.Channels) }

// TxChannel implements rmt.Peripheral.
func (p *Peripheral) TxChannel(n int) (rmt.TxChannel, error) {
	if n < 0 || n >= len(p.Channels) {
		return nil, fmt.Errorf("rmttest: no channel %d", n)
	}
	return p.Channels[n], nil
}

// Channel is a fake rmt.TxChannel. It records every transmission and
// completes after PollsToDone polls unless told otherwise.
type Channel struct {
	Cap int
	// PollsToDone is the number of Poll calls that report pending before
	// the transmission completes.
	PollsToDone int
	// Hang keeps transmissions pending until Release is called.
	Hang bool
	// Fail makes the next transmission report this error.
	Fail error
	// StartErr is returned by Start.
	StartErr error

	mu         sync.Mutex
	pin        gpio.PinOut
	cfg        rmt.TxConfig
	configured bool
	writes     [][]uint32
	polls      int
	active     bool
	released   bool
	resets     int
	started    chan struct{}
}

// Configure implements rmt.TxChannel.
func (c *Channel) Configure(pin gpio.PinOut, cfg rmt.TxConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pin, c.cfg, c.configured = pin, cfg, true
	return nil
}

// Capacity implements rmt.TxChannel.
func (c *Channel) Capacity() int { return c.Cap }

// Start implements rmt.TxChannel.
func (c *Channel) Start(words []uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.StartErr != nil {
		return c.StartErr
	}
	if c.active {
		return errors.New("rmttest: start while active")
	}
	c.writes = append(c.writes, append([]uint32(nil), words...))
	c.active, c.polls, c.released = true, 0, false
	if c.started != nil {
		close(c.started)
		c.started = nil
	}
	return nil
}

// Poll implements rmt.TxChannel.
func (c *Channel) Poll() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return true, nil
	}
	if c.Fail != nil {
		err := c.Fail
		c.Fail = nil
		c.active = false
		return false, err
	}
	if c.Hang && !c.released {
		return false, nil
	}
	if c.polls < c.PollsToDone {
		c.polls++
		return false, nil
	}
	c.active = false
	return true, nil
}

// Reset implements rmt.TxChannel.
func (c *Channel) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = false
	c.resets++
	return nil
}

// Started returns a channel closed by the next Start.
func (c *Channel) Started() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started == nil {
		c.started = make(chan struct{})
	}
	return c.started
}

// Release completes a hung transmission.
func (c *Channel) Release() {
	c.mu.Lock()
	c.released = true
	c.mu.Unlock()
}

// Writes returns the raw words of every transmission.
func (c *Channel) Writes() [][]uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]uint32(nil), c.writes...)
}

// Codes returns the codes of transmission i.
func (c *Channel) Codes(i int) []pulse.Code {
	w := c.Writes()[i]
	out := make([]pulse.Code, len(w))
	for j, x := range w {
		out[j] = pulse.Unpack(x)
	}
	return out
}

// Resets returns the number of Reset calls.
func (c *Channel) Resets() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resets
}

// Pin returns the configured pin and configuration.
func (c *Channel) Pin() (gpio.PinOut, rmt.TxConfig, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pin, c.cfg, c.configured
}
