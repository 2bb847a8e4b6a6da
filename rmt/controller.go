package rmt

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// Controller owns a Peripheral and arbitrates its channels.
type Controller struct {
	p Peripheral

	mu    sync.Mutex
	owned map[int]bool
}

// New returns a Controller for p.
func New(p Peripheral) *Controller {
	return &Controller{p: p, owned: map[int]bool{}}
}

// Clock returns the peripheral source clock.
func (c *Controller) Clock() physic.Frequency {
	return c.p.Clock()
}

// NumChannels returns the number of transmit channels.
func (c *Controller) NumChannels() int {
	return c.p.NumChannels()
}

// Claim configures channel n for pin and returns its exclusive Handle.
func (c *Controller) Claim(n int, pin gpio.PinOut, cfg TxConfig) (*Handle, error) {
	if n < 0 || n >= c.p.NumChannels() {
		return nil, fmt.Errorf("%w: %d (have %d)", ErrInvalidChannel, n, c.p.NumChannels())
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.owned[n] {
		return nil, fmt.Errorf("%w: %d", ErrChannelClaimed, n)
	}
	tx, err := c.p.TxChannel(n)
	if err != nil {
		return nil, fmt.Errorf("rmt: channel %d: %w", n, err)
	}
	cfg.ClockDivider = cfg.Divider()
	if err := tx.Configure(pin, cfg); err != nil {
		return nil, fmt.Errorf("rmt: configure channel %d: %w", n, err)
	}
	capacity := tx.Capacity()
	c.owned[n] = true
	log.Debug().Int("channel", n).Int("capacity", capacity).Str("pin", pinName(pin)).Msg("rmt channel claimed")
	return &Handle{
		PollInterval: DefaultPollInterval,
		ctrl:         c,
		n:            n,
		tx:           tx,
		cfg:          cfg,
		capacity:     capacity,
		mem:          make([]uint32, capacity),
	}, nil
}

func (c *Controller) release(n int) {
	c.mu.Lock()
	delete(c.owned, n)
	c.mu.Unlock()
}

func pinName(p gpio.PinOut) string {
	if p == nil {
		return "<nil>"
	}
	return p.Name()
}
