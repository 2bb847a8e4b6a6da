// Package spirmt implements an rmt.Peripheral on top of a SPI port.
//
// The MOSI line is used as the pulse-train output: one SPI bit is one tick,
// so a code {High: 2, Low: 1} is sent as the bits 110. At 2.4MHz this is the
// classic three bits per LED bit scheme for WS281x strips.
package spirmt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"

	"github.com/coreman2200/smartled/pulse"
	"github.com/coreman2200/smartled/rmt"
)

// Defaults used when Opts leaves a field zero.
const (
	DefaultFreq         = 2400 * physic.KiloHertz
	DefaultCapacity     = 4096
	DefaultResetTimeout = 100 * time.Millisecond
)

var (
	errNotConfigured = errors.New("spirmt: channel not configured")
	// ErrInFlight is returned by Reset when the abandoned transfer is still
	// shifting out. The channel refuses new frames until it ends.
	ErrInFlight = errors.New("spirmt: previous transfer still in flight")
)

// Opts configures the peripheral.
type Opts struct {
	// Freq is the SPI clock, which is the tick rate before the divider.
	Freq physic.Frequency
	// Capacity is the number of pulse codes per transmission.
	Capacity int
	// ResetTimeout bounds how long Reset waits for an abandoned transfer.
	ResetTimeout time.Duration
}

// Peripheral is a single channel pulse-train peripheral on a SPI port.
type Peripheral struct {
	ch *channel
}

// New returns a Peripheral driving p.
func New(p spi.Port, opts *Opts) (*Peripheral, error) {
	if p == nil {
		return nil, errors.New("spirmt: nil port")
	}
	o := Opts{Freq: DefaultFreq, Capacity: DefaultCapacity, ResetTimeout: DefaultResetTimeout}
	if opts != nil {
		if opts.Freq > 0 {
			o.Freq = opts.Freq
		}
		if opts.Capacity > 0 {
			o.Capacity = opts.Capacity
		}
		if opts.ResetTimeout > 0 {
			o.ResetTimeout = opts.ResetTimeout
		}
	}
	return &Peripheral{ch: &channel{port: p, freq: o.Freq, capacity: o.Capacity, resetTimeout: o.ResetTimeout}}, nil
}

// Clock implements rmt.Peripheral.
func (p *Peripheral) Clock() physic.Frequency { return p.ch.freq }

// NumChannels implements rmt.Peripheral.
func (p *Peripheral) NumChannels() int { return 1 }

// TxChannel implements rmt.Peripheral.
func (p *Peripheral) TxChannel(n int) (rmt.TxChannel, error) {
	if n != 0 {
		return nil, fmt.Errorf("spirmt: no channel %d", n)
	}
	return p.ch, nil
}

func (p *Peripheral) String() string {
	return fmt.Sprintf("spirmt{%s}", p.ch.port)
}

type channel struct {
	port         spi.Port
	freq         physic.Frequency
	capacity     int
	resetTimeout time.Duration

	mu     sync.Mutex
	conn   spi.Conn
	maxTx  int
	buf    []byte
	done   chan error
	active bool
}

func (c *channel) Configure(pin gpio.PinOut, cfg rmt.TxConfig) error {
	if cfg.IdleLevel != gpio.Low {
		return errors.New("spirmt: MOSI idles low")
	}
	if cfg.CarrierModulation {
		return errors.New("spirmt: carrier modulation is not supported")
	}
	if pins, ok := c.port.(spi.Pins); ok && pin != nil {
		if mosi := pins.MOSI(); mosi != nil && mosi.Name() != pin.Name() {
			return fmt.Errorf("spirmt: pin %s is not the MOSI pin %s", pin, mosi)
		}
	}
	sc, err := c.port.Connect(c.freq/physic.Frequency(cfg.Divider()), spi.Mode0, 8)
	if err != nil {
		return fmt.Errorf("spirmt: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = sc
	c.maxTx = 0
	if l, ok := sc.(conn.Limits); ok {
		c.maxTx = l.MaxTxSize()
	}
	return nil
}

func (c *channel) Capacity() int { return c.capacity }

func (c *channel) Start(words []uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return errNotConfigured
	}
	if c.active {
		return errors.New("spirmt: transfer in progress")
	}
	c.buf = Raster(c.buf[:0], words)
	if c.maxTx > 0 && len(c.buf) > c.maxTx {
		return fmt.Errorf("spirmt: %d bytes exceed the port limit of %d", len(c.buf), c.maxTx)
	}
	done := make(chan error, 1)
	c.done, c.active = done, true
	go func(sc spi.Conn, w []byte) {
		done <- sc.Tx(w, nil)
	}(c.conn, c.buf)
	return nil
}

func (c *channel) Poll() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return true, nil
	}
	select {
	case err := <-c.done:
		c.active = false
		return err == nil, err
	default:
		return false, nil
	}
}

// Reset waits up to the reset timeout for an in-flight transfer to end. SPI
// transfers cannot be aborted; if it is still running Reset returns
// ErrInFlight and the channel stays active, so Start keeps refusing frames.
func (c *channel) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return nil
	}
	t := time.NewTimer(c.resetTimeout)
	defer t.Stop()
	select {
	case <-c.done:
		c.active = false
		return nil
	case <-t.C:
		return ErrInFlight
	}
}

// Raster appends the SPI bit stream for words to dst, MSB first. The last
// byte is padded with zeros, which is the idle level.
func Raster(dst []byte, words []uint32) []byte {
	var (
		cur  byte
		nbit uint
	)
	put := func(level bool, n uint16) {
		for ; n > 0; n-- {
			cur <<= 1
			if level {
				cur |= 1
			}
			if nbit++; nbit == 8 {
				dst = append(dst, cur)
				cur, nbit = 0, 0
			}
		}
	}
	for _, w := range words {
		c := pulse.Unpack(w)
		put(true, c.High)
		put(false, c.Low)
	}
	if nbit > 0 {
		dst = append(dst, cur<<(8-nbit))
	}
	return dst
}
