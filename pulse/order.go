package pulse

import (
	"errors"
	"fmt"
	"strings"
)

// Source channel indexes used by Order.
const (
	R = iota
	G
	B
	W
)

// ErrInvalidOrder is returned by ParseOrder.
var ErrInvalidOrder = errors.New("pulse: invalid color order")

// Order maps source channels (R, G, B, W) to wire positions.
type Order struct {
	n   uint8
	src [4]uint8
}

// Common orders.
var (
	OrderRGB  = Order{3, [4]uint8{R, G, B}}
	OrderRBG  = Order{3, [4]uint8{R, B, G}}
	OrderGRB  = Order{3, [4]uint8{G, R, B}}
	OrderGBR  = Order{3, [4]uint8{G, B, R}}
	OrderBRG  = Order{3, [4]uint8{B, R, G}}
	OrderBGR  = Order{3, [4]uint8{B, G, R}}
	OrderGRBW = Order{4, [4]uint8{G, R, B, W}}
	OrderRGBW = Order{4, [4]uint8{R, G, B, W}}
)

// ParseOrder parses strings like "GRB" or "grbw". Each of R, G and B must
// appear once; W is optional and marks a 4 channel device.
func ParseOrder(s string) (Order, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) != 3 && len(s) != 4 {
		return Order{}, fmt.Errorf("%w: %q", ErrInvalidOrder, s)
	}
	o := Order{n: uint8(len(s))}
	var seen [4]bool
	for i := 0; i < len(s); i++ {
		c := strings.IndexByte("RGBW", s[i])
		if c < 0 || seen[c] {
			return Order{}, fmt.Errorf("%w: %q", ErrInvalidOrder, s)
		}
		seen[c] = true
		o.src[i] = uint8(c)
	}
	if !seen[R] || !seen[G] || !seen[B] {
		return Order{}, fmt.Errorf("%w: %q", ErrInvalidOrder, s)
	}
	return o, nil
}

// Width returns the number of bytes per LED.
func (o Order) Width() int { return int(o.n) }

// Word returns the wire-ordered Word for the given intensities. w is
// ignored by 3 channel orders.
func (o Order) Word(r, g, b, w uint8) Word {
	in := [4]uint8{r, g, b, w}
	out := Word{n: o.n}
	for i := 0; i < int(o.n); i++ {
		out.b[i] = in[o.src[i]]
	}
	return out
}

// Channels is the inverse of Word: it returns the source intensities held
// by wire-ordered x.
func (o Order) Channels(x Word) (r, g, b, w uint8) {
	var in [4]uint8
	for i := 0; i < int(o.n) && i < x.Len(); i++ {
		in[o.src[i]] = x.b[i]
	}
	return in[R], in[G], in[B], in[W]
}

func (o Order) String() string {
	var sb strings.Builder
	for i := 0; i < int(o.n); i++ {
		sb.WriteByte("RGBW"[o.src[i]])
	}
	return sb.String()
}
