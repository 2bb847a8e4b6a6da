package smartled

import (
	"fmt"
	"strings"
	"time"

	"github.com/coreman2200/smartled/pulse"
)

// Variant selects an LED family. It determines the bit timing, the wire
// order and the number of bytes per LED.
type Variant uint8

const (
	WS2812 Variant = iota
	WS2812B
	WS2811
	SK6812
	SK6812RGBW
)

var variants = [...]struct {
	name  string
	proto pulse.Protocol
	order pulse.Order
}{
	WS2812: {"WS2812", pulse.Protocol{
		T0H: 400 * time.Nanosecond, T0L: 850 * time.Nanosecond,
		T1H: 850 * time.Nanosecond, T1L: 400 * time.Nanosecond,
		Reset: 50 * time.Microsecond,
	}, pulse.OrderGRB},
	WS2812B: {"WS2812B", pulse.Protocol{
		T0H: 400 * time.Nanosecond, T0L: 850 * time.Nanosecond,
		T1H: 800 * time.Nanosecond, T1L: 450 * time.Nanosecond,
		Reset: 280 * time.Microsecond,
	}, pulse.OrderGRB},
	WS2811: {"WS2811", pulse.Protocol{
		T0H: 250 * time.Nanosecond, T0L: 1000 * time.Nanosecond,
		T1H: 600 * time.Nanosecond, T1L: 650 * time.Nanosecond,
		Reset: 50 * time.Microsecond,
	}, pulse.OrderRGB},
	SK6812: {"SK6812", pulse.Protocol{
		T0H: 300 * time.Nanosecond, T0L: 900 * time.Nanosecond,
		T1H: 600 * time.Nanosecond, T1L: 600 * time.Nanosecond,
		Reset: 80 * time.Microsecond,
	}, pulse.OrderGRB},
	SK6812RGBW: {"SK6812RGBW", pulse.Protocol{
		T0H: 300 * time.Nanosecond, T0L: 900 * time.Nanosecond,
		T1H: 600 * time.Nanosecond, T1L: 600 * time.Nanosecond,
		Reset: 80 * time.Microsecond,
	}, pulse.OrderGRBW},
}

// ParseVariant returns the Variant named s, ignoring case.
func ParseVariant(s string) (Variant, error) {
	for i, v := range variants {
		if strings.EqualFold(v.name, strings.TrimSpace(s)) {
			return Variant(i), nil
		}
	}
	return 0, fmt.Errorf("smartled: unknown variant %q", s)
}

func (v Variant) valid() bool { return int(v) < len(variants) }

// Protocol returns the bit timing.
func (v Variant) Protocol() pulse.Protocol { return variants[v].proto }

// Order returns the wire order.
func (v Variant) Order() pulse.Order { return variants[v].order }

// Channels returns the number of bytes per LED.
func (v Variant) Channels() int { return variants[v].order.Width() }

func (v Variant) String() string {
	if !v.valid() {
		return fmt.Sprintf("Variant(%d)", uint8(v))
	}
	return variants[v].name
}

// BufferSize returns the number of pulse codes needed to drive numLEDs LEDs
// with channels bytes each, including the reset code.
func BufferSize(numLEDs, channels int) int {
	return numLEDs*channels*8 + 1
}

// MaxLEDs returns how many LEDs of v fit in capacity pulse codes.
func (v Variant) MaxLEDs(capacity int) int {
	if capacity < 1 {
		return 0
	}
	return (capacity - 1) / (8 * v.Channels())
}
