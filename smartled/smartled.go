package smartled

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"

	"periph.io/x/conn/v3/display"
	"periph.io/x/conn/v3/gpio"

	"github.com/coreman2200/smartled/pulse"
	"github.com/coreman2200/smartled/rmt"
)

var errLength = errors.New("smartled: pixel stream length is not a multiple of the channel count")

// Opts configures a Dev.
type Opts struct {
	// NumPixels is the strip length used by Draw and Halt. 0 means as many
	// LEDs as the channel can hold.
	NumPixels int
	// Order overrides the variant's wire order. It must have the same width.
	Order pulse.Order
	// Timeout bounds each transmission when the caller's context has no
	// deadline. 0 waits for the hardware indefinitely.
	Timeout time.Duration
	// TxConfig overrides rmt.DefaultTxConfig.
	TxConfig *rmt.TxConfig
}

// Dev is a handle to an LED strip on one pulse-train channel.
type Dev struct {
	h         *rmt.Handle
	variant   Variant
	order     pulse.Order
	timing    pulse.Timing
	numPixels int
	timeout   time.Duration

	mu    sync.Mutex // guards the scratch buffers below for one write at a time
	words []pulse.Word
	codes []pulse.Code
	frame []pulse.Word
}

// New claims channel of ctrl, routes it to pin and returns a Dev for LEDs of
// variant v.
func New(ctrl *rmt.Controller, channel int, pin gpio.PinOut, v Variant, opts *Opts) (*Dev, error) {
	if !v.valid() {
		return nil, fmt.Errorf("smartled: invalid variant %d", v)
	}
	o := Opts{}
	if opts != nil {
		o = *opts
	}
	cfg := rmt.DefaultTxConfig()
	if o.TxConfig != nil {
		cfg = *o.TxConfig
	}
	order := v.Order()
	if o.Order.Width() != 0 {
		if o.Order.Width() != order.Width() {
			return nil, fmt.Errorf("smartled: order %s does not fit %s", o.Order, v)
		}
		order = o.Order
	}
	timing, err := pulse.NewTiming(ctrl.Clock(), cfg.Divider(), v.Protocol())
	if err != nil {
		return nil, fmt.Errorf("smartled: %s: %w", v, err)
	}
	h, err := ctrl.Claim(channel, pin, cfg)
	if err != nil {
		return nil, err
	}
	n := o.NumPixels
	if limit := v.MaxLEDs(h.Capacity()); n == 0 {
		n = limit
	} else if n > limit {
		_ = h.Close()
		return nil, fmt.Errorf("smartled: %d pixels: %w", n, &rmt.BufferTooLargeError{
			Required: BufferSize(n, order.Width()),
			Capacity: h.Capacity(),
		})
	}
	d := &Dev{
		h:         h,
		variant:   v,
		order:     order,
		timing:    timing,
		numPixels: n,
		timeout:   o.Timeout,
		frame:     make([]pulse.Word, n),
	}
	blank := order.Word(0, 0, 0, 0)
	for i := range d.frame {
		d.frame[i] = blank
	}
	return d, nil
}

// Variant returns the LED family.
func (d *Dev) Variant() Variant { return d.variant }

// Order returns the wire order in use.
func (d *Dev) Order() pulse.Order { return d.order }

// Timing returns the pulse timing in channel ticks.
func (d *Dev) Timing() pulse.Timing { return d.timing }

// Handle returns the underlying channel handle.
func (d *Dev) Handle() *rmt.Handle { return d.h }

// NumPixels returns the strip length used by Draw.
func (d *Dev) NumPixels() int { return d.numPixels }

// Write sends a stream of raw pixels, R, G, B and for RGBW variants W per
// LED, in strip order. It returns the number of bytes sent.
func (d *Dev) Write(ctx context.Context, pixels []byte) (int, error) {
	w := d.order.Width()
	if len(pixels)%w != 0 {
		return 0, errLength
	}
	if !d.mu.TryLock() {
		return 0, rmt.ErrChannelBusy
	}
	defer d.mu.Unlock()
	d.words = d.words[:0]
	for i := 0; i < len(pixels); i += w {
		var white uint8
		if w == 4 {
			white = pixels[i+3]
		}
		d.words = append(d.words, d.order.Word(pixels[i], pixels[i+1], pixels[i+2], white))
	}
	if err := d.send(ctx, d.words); err != nil {
		return 0, err
	}
	return len(pixels), nil
}

// WriteColors sends colors in strip order.
func (d *Dev) WriteColors(ctx context.Context, colors ...color.Color) error {
	if !d.mu.TryLock() {
		return rmt.ErrChannelBusy
	}
	defer d.mu.Unlock()
	d.words = d.words[:0]
	for _, c := range colors {
		d.words = append(d.words, d.order.Word(channelsOf(c)))
	}
	return d.send(ctx, d.words)
}

// WriteSlice sends any slice of colors, for callers with their own color
// type.
func WriteSlice[C color.Color](ctx context.Context, d *Dev, colors []C) error {
	cs := make([]color.Color, len(colors))
	for i, c := range colors {
		cs[i] = c
	}
	return d.WriteColors(ctx, cs...)
}

func (d *Dev) send(ctx context.Context, words []pulse.Word) error {
	if d.timeout > 0 {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d.timeout)
			defer cancel()
		}
	}
	d.codes = pulse.Encode(d.codes[:0], words, d.timing)
	return d.h.Transmit(ctx, d.codes)
}

// ColorModel implements display.Drawer. Alpha is ignored.
func (d *Dev) ColorModel() color.Model {
	return color.NRGBAModel
}

// Bounds implements display.Drawer. Min is guaranteed to be {0, 0}.
func (d *Dev) Bounds() image.Rectangle {
	return image.Rectangle{Max: image.Point{X: d.numPixels, Y: 1}}
}

// Draw implements display.Drawer.
//
// The strip is a single row, so one row of src is used. Pixels outside r
// keep the color of the previous Draw.
func (d *Dev) Draw(r image.Rectangle, src image.Image, sp image.Point) error {
	// Source points keep their offset from the unclipped r, as in image/draw.
	origin := r.Min
	r = r.Intersect(d.Bounds())
	if !d.mu.TryLock() {
		return rmt.ErrChannelBusy
	}
	defer d.mu.Unlock()
	for x := r.Min.X; x < r.Max.X; x++ {
		p := sp.Add(image.Point{X: x}.Sub(origin))
		d.frame[x] = d.order.Word(channelsOf(src.At(p.X, p.Y)))
	}
	return d.send(context.Background(), d.frame)
}

// Halt implements display.Drawer. It turns all LEDs off.
func (d *Dev) Halt() error {
	if !d.mu.TryLock() {
		return rmt.ErrChannelBusy
	}
	defer d.mu.Unlock()
	blank := d.order.Word(0, 0, 0, 0)
	for i := range d.frame {
		d.frame[i] = blank
	}
	return d.send(context.Background(), d.frame)
}

// Recover returns a channel left Faulted by a timeout to service.
func (d *Dev) Recover() error {
	return d.h.Recover()
}

// Close releases the channel.
func (d *Dev) Close() error {
	return d.h.Close()
}

func (d *Dev) String() string {
	return fmt.Sprintf("smartled{%s, ch%d}", d.variant, d.h.Channel())
}

var _ display.Drawer = &Dev{}
