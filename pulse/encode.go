package pulse

// Bits returns the number of data bits in words.
func Bits(words []Word) int {
	n := 0
	for _, w := range words {
		n += 8 * w.Len()
	}
	return n
}

// Encode appends the codes for words to dst, followed by the reset code.
//
// Bytes are sent in wire order and each byte most significant bit first, so
// the result holds Bits(words)+1 codes.
func Encode(dst []Code, words []Word, t Timing) []Code {
	dst = grow(dst, Bits(words)+1)
	for _, w := range words {
		for i := 0; i < w.Len(); i++ {
			dst = appendByte(dst, w.b[i], t)
		}
	}
	return append(dst, t.reset)
}

// EncodeBytes is Encode for bytes that are already in wire order.
func EncodeBytes(dst []Code, raw []byte, t Timing) []Code {
	dst = grow(dst, 8*len(raw)+1)
	for _, b := range raw {
		dst = appendByte(dst, b, t)
	}
	return append(dst, t.reset)
}

func appendByte(dst []Code, b byte, t Timing) []Code {
	for mask := byte(0x80); mask != 0; mask >>= 1 {
		if b&mask != 0 {
			dst = append(dst, t.one)
		} else {
			dst = append(dst, t.zero)
		}
	}
	return dst
}

func grow(dst []Code, n int) []Code {
	if cap(dst)-len(dst) >= n {
		return dst
	}
	out := make([]Code, len(dst), len(dst)+n)
	copy(out, dst)
	return out
}
