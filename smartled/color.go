package smartled

import "image/color"

// Channels is implemented by colors that carry raw per channel intensities.
// Other color.Color values are read through RGBA.
type Channels interface {
	Channels() (r, g, b, w uint8)
}

// RGB is a raw 3 channel intensity.
type RGB struct {
	R, G, B uint8
}

// RGBA implements color.Color.
func (c RGB) RGBA() (r, g, b, a uint32) {
	return uint32(c.R) * 0x101, uint32(c.G) * 0x101, uint32(c.B) * 0x101, 0xffff
}

// Channels implements Channels.
func (c RGB) Channels() (r, g, b, w uint8) { return c.R, c.G, c.B, 0 }

// RGBW is a raw 4 channel intensity.
type RGBW struct {
	R, G, B, W uint8
}

// RGBA implements color.Color. The white channel is not represented.
func (c RGBW) RGBA() (r, g, b, a uint32) {
	return uint32(c.R) * 0x101, uint32(c.G) * 0x101, uint32(c.B) * 0x101, 0xffff
}

// Channels implements Channels.
func (c RGBW) Channels() (r, g, b, w uint8) { return c.R, c.G, c.B, c.W }

func channelsOf(c color.Color) (r, g, b, w uint8) {
	switch v := c.(type) {
	case Channels:
		return v.Channels()
	case color.NRGBA:
		return v.R, v.G, v.B, 0
	case color.RGBA:
		return v.R, v.G, v.B, 0
	}
	r16, g16, b16, _ := c.RGBA()
	return uint8(r16 >> 8), uint8(g16 >> 8), uint8(b16 >> 8), 0
}
