package serialrmt

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Framing bytes. Frames are START stuffed(body crc16) END; START, END and
// ESC inside the frame are escaped as ESC, b^escXOR.
const (
	startByte = 0x7E
	endByte   = 0x7F
	escByte   = 0x7D
	escXOR    = 0x20

	crcPolynomial = 0x1021
	crcInitial    = 0xFFFF
)

// Commands sent to the bridge.
const (
	CmdConfigure = 0x10
	CmdTransmit  = 0x11
	CmdReset     = 0x12
)

// Replies sent by the bridge.
const (
	MsgAck   = 0x20
	MsgDone  = 0x21
	MsgError = 0x22
)

// Error codes carried by MsgError.
const (
	ErrCodeUnderrun = 0x01
	ErrCodeCRC      = 0x02
	ErrCodeLength   = 0x03
	ErrCodeBusy     = 0x04
)

// maxFrame bounds the decoder buffer: a transmit of 0xFFFF words.
const maxFrame = 4 + 4*0xFFFF + 2

var errCRC = errors.New("serialrmt: crc mismatch")

// Frame is one message between host and bridge.
type Frame struct {
	Cmd     byte
	Channel byte
	Payload []byte
}

// crc16 computes CRC-16-CCITT.
func crc16(data []byte) uint16 {
	crc := uint16(crcInitial)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ crcPolynomial
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// AppendFrame appends the wire form of f to dst.
func AppendFrame(dst []byte, f Frame) []byte {
	body := make([]byte, 0, 2+len(f.Payload)+2)
	body = append(body, f.Cmd, f.Channel)
	body = append(body, f.Payload...)
	body = binary.BigEndian.AppendUint16(body, crc16(body))
	dst = append(dst, startByte)
	for _, b := range body {
		if b == startByte || b == endByte || b == escByte {
			dst = append(dst, escByte, b^escXOR)
			continue
		}
		dst = append(dst, b)
	}
	return append(dst, endByte)
}

// TransmitFrame builds a CmdTransmit frame for words.
func TransmitFrame(ch byte, words []uint32) Frame {
	p := make([]byte, 2, 2+4*len(words))
	binary.LittleEndian.PutUint16(p, uint16(len(words)))
	for _, w := range words {
		p = binary.LittleEndian.AppendUint32(p, w)
	}
	return Frame{Cmd: CmdTransmit, Channel: ch, Payload: p}
}

// Decoder reassembles frames from a byte stream.
type Decoder struct {
	buf    []byte
	in     bool
	escape bool
}

// Feed consumes b and returns a frame when one completes. Bytes outside a
// frame are dropped.
func (d *Decoder) Feed(b byte) (*Frame, error) {
	switch {
	case b == startByte:
		d.buf, d.in, d.escape = d.buf[:0], true, false
		return nil, nil
	case !d.in:
		return nil, nil
	case b == endByte:
		d.in = false
		return d.frame()
	case b == escByte:
		d.escape = true
		return nil, nil
	}
	if d.escape {
		b ^= escXOR
		d.escape = false
	}
	if len(d.buf) >= maxFrame {
		d.in = false
		return nil, fmt.Errorf("serialrmt: frame exceeds %d bytes", maxFrame)
	}
	d.buf = append(d.buf, b)
	return nil, nil
}

func (d *Decoder) frame() (*Frame, error) {
	if len(d.buf) < 4 {
		return nil, fmt.Errorf("serialrmt: short frame of %d bytes", len(d.buf))
	}
	n := len(d.buf) - 2
	if got, want := binary.BigEndian.Uint16(d.buf[n:]), crc16(d.buf[:n]); got != want {
		return nil, fmt.Errorf("%w: got 0x%04X, want 0x%04X", errCRC, got, want)
	}
	return &Frame{Cmd: d.buf[0], Channel: d.buf[1], Payload: append([]byte(nil), d.buf[2:n]...)}, nil
}
