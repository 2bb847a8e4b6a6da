package pulse

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingReset is returned when a sequence does not end with the reset code.
	ErrMissingReset = errors.New("pulse: sequence does not end with reset")
	// ErrUnknownCode is returned for a code that matches neither bit entry.
	ErrUnknownCode = errors.New("pulse: code matches no timing entry")
	// ErrPartialWord is returned when the bit count is not a whole number of words.
	ErrPartialWord = errors.New("pulse: bit count is not a multiple of the word width")
)

// Decode reconstructs the Words that Encode turned into codes. width is the
// number of bytes per Word.
func Decode(codes []Code, width int, t Timing) ([]Word, error) {
	if width != 3 && width != 4 {
		return nil, fmt.Errorf("pulse: invalid word width %d", width)
	}
	if len(codes) == 0 || codes[len(codes)-1] != t.reset {
		return nil, ErrMissingReset
	}
	bits := codes[:len(codes)-1]
	if len(bits)%(8*width) != 0 {
		return nil, fmt.Errorf("%w: %d bits, width %d", ErrPartialWord, len(bits), width)
	}
	words := make([]Word, 0, len(bits)/(8*width))
	for i := 0; i < len(bits); i += 8 * width {
		w := Word{n: uint8(width)}
		for j := 0; j < 8*width; j++ {
			var bit byte
			switch c := bits[i+j]; c {
			case t.one:
				bit = 1
			case t.zero:
			default:
				return nil, fmt.Errorf("%w: %s at %d", ErrUnknownCode, c, i+j)
			}
			w.b[j/8] = w.b[j/8]<<1 | bit
		}
		words = append(words, w)
	}
	return words, nil
}
