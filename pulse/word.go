package pulse

import "fmt"

// Word is the wire-ordered intensity bytes of one LED: 3 bytes for RGB
// devices, 4 for RGBW.
type Word struct {
	n uint8
	b [4]byte
}

// NewWord returns a Word holding b, which must be 3 or 4 bytes long.
func NewWord(b ...byte) Word {
	if len(b) != 3 && len(b) != 4 {
		panic(fmt.Sprintf("pulse: word must be 3 or 4 bytes, got %d", len(b)))
	}
	w := Word{n: uint8(len(b))}
	copy(w.b[:], b)
	return w
}

// Len returns 3 or 4, or 0 for the zero Word.
func (w Word) Len() int { return int(w.n) }

// Byte returns the i-th byte in wire order.
func (w Word) Byte(i int) byte { return w.b[:w.n][i] }

// Bytes returns a copy of the bytes in wire order.
func (w Word) Bytes() []byte {
	out := make([]byte, w.n)
	copy(out, w.b[:w.n])
	return out
}

func (w Word) String() string {
	return fmt.Sprintf("%X", w.b[:w.n])
}
