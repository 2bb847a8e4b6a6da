// Package serialrmt implements an rmt.Peripheral that forwards pulse words to
// an RMT capable microcontroller over a serial link.
//
// The bridge firmware owns the real peripheral. The host sends configure,
// transmit and reset frames; the bridge answers with ack, done and error
// frames. Frames are delimited by start/end bytes, byte stuffed and closed by
// a CRC-16-CCITT.
package serialrmt

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.bug.st/serial"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"

	"github.com/coreman2200/smartled/rmt"
)

// Defaults used when Opts leaves a field zero.
const (
	DefaultBaud       = 921600
	DefaultClock      = 80 * physic.MegaHertz
	DefaultChannels   = 4
	DefaultCapacity   = 512
	DefaultAckTimeout = time.Second
)

var (
	// ErrUnderrun is reported when the bridge could not feed the peripheral.
	ErrUnderrun = errors.New("serialrmt: bridge underrun")
	// ErrLinkClosed is reported once the serial link is gone.
	ErrLinkClosed = errors.New("serialrmt: link closed")
	errAckTimeout = errors.New("serialrmt: no ack from bridge")
)

// Opts describes the bridge.
type Opts struct {
	Baud       int
	Clock      physic.Frequency
	Channels   int
	Capacity   int
	AckTimeout time.Duration
}

func (o *Opts) withDefaults() Opts {
	out := Opts{Baud: DefaultBaud, Clock: DefaultClock, Channels: DefaultChannels, Capacity: DefaultCapacity, AckTimeout: DefaultAckTimeout}
	if o == nil {
		return out
	}
	if o.Baud > 0 {
		out.Baud = o.Baud
	}
	if o.Clock > 0 {
		out.Clock = o.Clock
	}
	if o.Channels > 0 {
		out.Channels = o.Channels
	}
	if o.Capacity > 0 {
		out.Capacity = o.Capacity
	}
	if o.AckTimeout > 0 {
		out.AckTimeout = o.AckTimeout
	}
	return out
}

// Bridge is a serial attached pulse-train peripheral.
type Bridge struct {
	port io.ReadWriteCloser
	opts Opts

	wmu sync.Mutex // serializes frame writes
	chs []*channel

	closeOnce sync.Once
	done      chan struct{}
}

// Open opens the serial port name and returns a Bridge on it.
func Open(name string, opts *Opts) (*Bridge, error) {
	o := opts.withDefaults()
	mode := &serial.Mode{
		BaudRate: o.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("serialrmt: failed to open serial port %s: %w", name, err)
	}
	return NewBridge(port, &o), nil
}

// NewBridge returns a Bridge speaking over port.
func NewBridge(port io.ReadWriteCloser, opts *Opts) *Bridge {
	b := &Bridge{port: port, opts: opts.withDefaults(), done: make(chan struct{})}
	for i := 0; i < b.opts.Channels; i++ {
		b.chs = append(b.chs, &channel{b: b, n: byte(i), events: make(chan event, 4)})
	}
	go b.readLoop()
	return b
}

// Clock implements rmt.Peripheral.
func (b *Bridge) Clock() physic.Frequency { return b.opts.Clock }

// NumChannels implements rmt.Peripheral.
func (b *Bridge) NumChannels() int { return len(b.chs) }

// TxChannel implements rmt.Peripheral.
func (b *Bridge) TxChannel(n int) (rmt.TxChannel, error) {
	if n < 0 || n >= len(b.chs) {
		return nil, fmt.Errorf("serialrmt: no channel %d", n)
	}
	return b.chs[n], nil
}

// Close closes the serial link.
func (b *Bridge) Close() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.done)
		err = b.port.Close()
	})
	return err
}

func (b *Bridge) send(f Frame) error {
	b.wmu.Lock()
	defer b.wmu.Unlock()
	select {
	case <-b.done:
		return ErrLinkClosed
	default:
	}
	if _, err := b.port.Write(AppendFrame(nil, f)); err != nil {
		return fmt.Errorf("serialrmt: write: %w", err)
	}
	return nil
}

func (b *Bridge) readLoop() {
	var (
		d   Decoder
		buf = make([]byte, 256)
	)
	for {
		n, err := b.port.Read(buf)
		for i := 0; i < n; i++ {
			f, ferr := d.Feed(buf[i])
			if ferr != nil {
				log.Warn().Err(ferr).Msg("serialrmt: dropped frame")
				continue
			}
			if f != nil {
				b.dispatch(f)
			}
		}
		if err != nil {
			select {
			case <-b.done:
			default:
				log.Error().Err(err).Msg("serialrmt: link lost")
			}
			for _, c := range b.chs {
				c.post(event{kind: MsgError, err: ErrLinkClosed})
			}
			return
		}
	}
}

func (b *Bridge) dispatch(f *Frame) {
	if int(f.Channel) >= len(b.chs) {
		log.Warn().Uint8("channel", f.Channel).Uint8("cmd", f.Cmd).Msg("serialrmt: reply for unknown channel")
		return
	}
	ev := event{kind: f.Cmd}
	if f.Cmd == MsgError {
		ev.err = bridgeError(f.Payload)
	}
	b.chs[f.Channel].post(ev)
}

func bridgeError(p []byte) error {
	if len(p) == 0 {
		return errors.New("serialrmt: bridge error")
	}
	switch p[0] {
	case ErrCodeUnderrun:
		return ErrUnderrun
	case ErrCodeCRC:
		return errors.New("serialrmt: bridge saw a corrupted frame")
	case ErrCodeLength:
		return errors.New("serialrmt: bridge rejected the frame length")
	case ErrCodeBusy:
		return errors.New("serialrmt: bridge channel busy")
	default:
		return fmt.Errorf("serialrmt: bridge error 0x%02X", p[0])
	}
}

type event struct {
	kind byte
	err  error
}

type channel struct {
	b      *Bridge
	n      byte
	events chan event

	mu     sync.Mutex
	active bool
}

func (c *channel) post(ev event) {
	select {
	case c.events <- ev:
	default:
		log.Warn().Uint8("channel", c.n).Uint8("kind", ev.kind).Msg("serialrmt: event dropped")
	}
}

// await waits for an ack or error, discarding stale completions.
func (c *channel) await() error {
	t := time.NewTimer(c.b.opts.AckTimeout)
	defer t.Stop()
	for {
		select {
		case ev := <-c.events:
			switch ev.kind {
			case MsgAck:
				return nil
			case MsgError:
				return ev.err
			}
		case <-t.C:
			return errAckTimeout
		}
	}
}

func (c *channel) Configure(pin gpio.PinOut, cfg rmt.TxConfig) error {
	var flags byte
	if cfg.IdleLevel == gpio.High {
		flags |= 1
	}
	if cfg.IdleOutput {
		flags |= 2
	}
	if cfg.CarrierModulation {
		flags |= 4
	}
	// The bridge routes by GPIO number; -1 keeps its default pin.
	num := -1
	if pin != nil {
		num = pin.Number()
	}
	if err := c.b.send(Frame{Cmd: CmdConfigure, Channel: c.n, Payload: []byte{cfg.Divider(), flags, byte(int8(num))}}); err != nil {
		return err
	}
	return c.await()
}

func (c *channel) Capacity() int { return c.b.opts.Capacity }

func (c *channel) Start(words []uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active {
		return errors.New("serialrmt: transfer in progress")
	}
	if len(words) > 0xFFFF {
		return fmt.Errorf("serialrmt: %d words do not fit a frame", len(words))
	}
	c.drain()
	if err := c.b.send(TransmitFrame(c.n, words)); err != nil {
		return err
	}
	c.active = true
	return nil
}

func (c *channel) Poll() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return true, nil
	}
	for {
		select {
		case ev := <-c.events:
			switch ev.kind {
			case MsgDone:
				c.active = false
				return true, nil
			case MsgError:
				c.active = false
				return false, ev.err
			}
		default:
			return false, nil
		}
	}
}

func (c *channel) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = false
	c.drain()
	if err := c.b.send(Frame{Cmd: CmdReset, Channel: c.n}); err != nil {
		return err
	}
	return c.await()
}

func (c *channel) drain() {
	for {
		select {
		case <-c.events:
		default:
			return
		}
	}
}
