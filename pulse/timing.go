package pulse

import (
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3/physic"
)

// Tolerance is the timing slack allowed by the WS281x/SK6812 datasheets.
const Tolerance = 150 * time.Nanosecond

// ErrInvalidTiming is returned when a Protocol cannot be represented at the
// requested clock.
var ErrInvalidTiming = errors.New("pulse: invalid timing")

// Protocol is the bit timing of an LED family.
type Protocol struct {
	T0H, T0L time.Duration // logical 0
	T1H, T1L time.Duration // logical 1
	Reset    time.Duration // latch
}

// Period returns the nominal bit period.
func (p Protocol) Period() time.Duration {
	return p.T0H + p.T0L
}

// Timing is a Protocol converted to peripheral clock ticks. The zero value is
// not usable; build one with NewTiming.
type Timing struct {
	zero  Code
	one   Code
	reset Code
	tick  time.Duration
}

// NewTiming converts p to ticks of clock/divider. Durations are rounded to
// the nearest tick.
func NewTiming(clock physic.Frequency, divider uint8, p Protocol) (Timing, error) {
	if clock <= 0 || divider == 0 {
		return Timing{}, fmt.Errorf("%w: clock %s divider %d", ErrInvalidTiming, clock, divider)
	}
	hz := int64(clock / physic.Hertz)
	div := int64(divider)
	if hz == 0 {
		return Timing{}, fmt.Errorf("%w: clock %s is below 1Hz", ErrInvalidTiming, clock)
	}
	// Tick length with sub nanosecond precision kept in picoseconds.
	tickPs := 1e12 * float64(div) / float64(hz)
	conv := func(name string, d time.Duration) (uint16, error) {
		if d <= 0 {
			return 0, fmt.Errorf("%w: %s must be > 0", ErrInvalidTiming, name)
		}
		t := (int64(d)*hz + div*5e8) / (div * 1e9)
		if t <= 0 {
			return 0, fmt.Errorf("%w: %s %s rounds to 0 ticks at %s", ErrInvalidTiming, name, d, clock)
		}
		if t > MaxTicks {
			return 0, fmt.Errorf("%w: %s %s needs %d ticks, max %d", ErrInvalidTiming, name, d, t, MaxTicks)
		}
		return uint16(t), nil
	}
	var (
		ticks [5]uint16
		err   error
	)
	for i, f := range []struct {
		name string
		d    time.Duration
	}{{"T0H", p.T0H}, {"T0L", p.T0L}, {"T1H", p.T1H}, {"T1L", p.T1L}, {"reset", p.Reset}} {
		if ticks[i], err = conv(f.name, f.d); err != nil {
			return Timing{}, err
		}
		if i == 4 {
			break
		}
		if e := float64(ticks[i])*tickPs - float64(f.d)*1e3; e > float64(Tolerance)*1e3 || -e > float64(Tolerance)*1e3 {
			return Timing{}, fmt.Errorf("%w: %s %s is off by %.0fns at %s", ErrInvalidTiming, f.name, f.d, e/1e3, clock)
		}
	}
	if ticks[0] == ticks[2] {
		return Timing{}, fmt.Errorf("%w: T0H and T1H are both %d ticks", ErrInvalidTiming, ticks[0])
	}
	if d := p.T1H - p.T0H; d < Tolerance && -d < Tolerance {
		return Timing{}, fmt.Errorf("%w: T0H %s and T1H %s are closer than %s", ErrInvalidTiming, p.T0H, p.T1H, Tolerance)
	}
	return Timing{
		zero:  Code{High: ticks[0], Low: ticks[1]},
		one:   Code{High: ticks[2], Low: ticks[3]},
		reset: Code{Low: ticks[4]},
		tick:  time.Duration(tickPs / 1e3),
	}, nil
}

// Zero returns the code for a 0 bit.
func (t Timing) Zero() Code { return t.zero }

// One returns the code for a 1 bit.
func (t Timing) One() Code { return t.one }

// Reset returns the latch code.
func (t Timing) Reset() Code { return t.reset }

// Tick returns the duration of one tick, truncated to the nanosecond.
func (t Timing) Tick() time.Duration { return t.tick }

// Bit returns the code for bit value b.
func (t Timing) Bit(b bool) Code {
	if b {
		return t.one
	}
	return t.zero
}

func (t Timing) String() string {
	return fmt.Sprintf("Timing{0:%s 1:%s reset:%d tick:%s}", t.zero, t.one, t.reset.Low, t.tick)
}
