package pulse

import "fmt"

// MaxTicks is the longest duration one half of a Code can hold.
const MaxTicks = 0x7fff

// Code is one pulse descriptor: a high period followed by a low period, in
// peripheral clock ticks.
type Code struct {
	High uint16
	Low  uint16
}

// Pack returns the 32 bit RMT word for c.
//
// The first half carries the high period at level 1, the second half the low
// period at level 0. A reset code (High == 0) is packed as its low period
// followed by a zero length half, which the hardware treats as end of data.
func (c Code) Pack() uint32 {
	if c.High == 0 {
		return uint32(c.Low & MaxTicks)
	}
	return uint32(c.High&MaxTicks) | 1<<15 | uint32(c.Low&MaxTicks)<<16
}

// Unpack is the inverse of Code.Pack.
func Unpack(w uint32) Code {
	d0 := uint16(w & MaxTicks)
	d1 := uint16(w >> 16 & MaxTicks)
	if w&(1<<15) == 0 {
		return Code{Low: d0 + d1}
	}
	return Code{High: d0, Low: d1}
}

// IsReset reports whether c is a reset/latch code.
func (c Code) IsReset() bool {
	return c.High == 0
}

func (c Code) String() string {
	return fmt.Sprintf("{H:%d L:%d}", c.High, c.Low)
}
