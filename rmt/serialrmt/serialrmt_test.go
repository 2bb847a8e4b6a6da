package serialrmt

import (
	"context"
	"encoding/binary"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/physic"

	"github.com/coreman2200/smartled/pulse"
	"github.com/coreman2200/smartled/rmt"
)

// fakeBridge answers host frames the way the bridge firmware does.
type fakeBridge struct {
	conn net.Conn

	mu        sync.Mutex
	frames    []Frame
	transmits [][]uint32
	underrun  bool
	silent    bool
}

func (f *fakeBridge) run() {
	var d Decoder
	buf := make([]byte, 512)
	for {
		n, err := f.conn.Read(buf)
		for i := 0; i < n; i++ {
			fr, _ := d.Feed(buf[i])
			if fr != nil {
				f.handle(*fr)
			}
		}
		if err != nil {
			return
		}
	}
}

func (f *fakeBridge) handle(fr Frame) {
	f.mu.Lock()
	f.frames = append(f.frames, fr)
	reply := Frame{Channel: fr.Channel}
	switch fr.Cmd {
	case CmdConfigure, CmdReset:
		reply.Cmd = MsgAck
	case CmdTransmit:
		n := int(binary.LittleEndian.Uint16(fr.Payload))
		words := make([]uint32, n)
		for i := range words {
			words[i] = binary.LittleEndian.Uint32(fr.Payload[2+4*i:])
		}
		f.transmits = append(f.transmits, words)
		reply.Cmd = MsgDone
		if f.underrun {
			reply.Cmd, reply.Payload = MsgError, []byte{ErrCodeUnderrun}
		}
	}
	silent := f.silent && fr.Cmd == CmdTransmit
	f.mu.Unlock()
	if !silent {
		go f.conn.Write(AppendFrame(nil, reply))
	}
}

func (f *fakeBridge) snapshot() ([]Frame, [][]uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Frame(nil), f.frames...), append([][]uint32(nil), f.transmits...)
}

func newBridge(t *testing.T) (*Bridge, *fakeBridge) {
	host, dev := net.Pipe()
	fb := &fakeBridge{conn: dev}
	go fb.run()
	b := NewBridge(host, &Opts{Channels: 2, Capacity: 100, AckTimeout: 200 * time.Millisecond})
	t.Cleanup(func() {
		b.Close()
		dev.Close()
	})
	return b, fb
}

func TestFrameRoundTrip(t *testing.T) {
	f := TransmitFrame(1, []uint32{0x7E7F7D00, 0x12345678})
	wire := AppendFrame(nil, f)
	assert.Equal(t, byte(startByte), wire[0])
	assert.Equal(t, byte(endByte), wire[len(wire)-1])

	var d Decoder
	var got *Frame
	for _, b := range append([]byte{0x00, 0x7F}, wire...) {
		fr, err := d.Feed(b)
		require.NoError(t, err)
		if fr != nil {
			got = fr
		}
	}
	require.NotNil(t, got)
	assert.Equal(t, f, *got)
}

func TestFrameCRC(t *testing.T) {
	wire := AppendFrame(nil, Frame{Cmd: MsgDone, Channel: 0})
	wire[1] ^= 0x01
	var d Decoder
	var err error
	for _, b := range wire {
		_, err = d.Feed(b)
	}
	assert.ErrorIs(t, err, errCRC)
}

func TestCRC16(t *testing.T) {
	assert.Equal(t, uint16(0x29B1), crc16([]byte("123456789")))
}

func TestBridgeTransmit(t *testing.T) {
	b, fb := newBridge(t)
	assert.Equal(t, DefaultClock, b.Clock())
	assert.Equal(t, 2, b.NumChannels())

	h, err := rmt.New(b).Claim(1, &gpiotest.Pin{N: "GPIO5", Num: 5}, rmt.DefaultTxConfig())
	require.NoError(t, err)
	assert.Equal(t, 100, h.Capacity())

	tm, err := pulse.NewTiming(h.Clock(), 1, pulse.Protocol{
		T0H: 400 * time.Nanosecond, T0L: 850 * time.Nanosecond,
		T1H: 850 * time.Nanosecond, T1L: 400 * time.Nanosecond,
		Reset: 50 * time.Microsecond,
	})
	require.NoError(t, err)
	codes := pulse.Encode(nil, []pulse.Word{pulse.NewWord(1, 2, 3)}, tm)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.Transmit(ctx, codes))

	frames, tx := fb.snapshot()
	require.Len(t, frames, 2)
	assert.Equal(t, Frame{Cmd: CmdConfigure, Channel: 1, Payload: []byte{1, 2, 5}}, frames[0])
	require.Len(t, tx, 1)
	require.Len(t, tx[0], len(codes))
	for i, c := range codes {
		assert.Equal(t, c.Pack(), tx[0][i])
	}
}

func TestBridgeUnderrun(t *testing.T) {
	b, fb := newBridge(t)
	fb.mu.Lock()
	fb.underrun = true
	fb.mu.Unlock()

	h, err := rmt.New(b).Claim(0, nil, rmt.DefaultTxConfig())
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err = h.Transmit(ctx, []pulse.Code{{Low: 4000}})
	assert.ErrorIs(t, err, rmt.ErrTransmissionFailed)
	assert.ErrorIs(t, err, ErrUnderrun)
	assert.Equal(t, rmt.Idle, h.State())
}

func TestBridgeTimeoutAndRecover(t *testing.T) {
	b, fb := newBridge(t)
	fb.mu.Lock()
	fb.silent = true
	fb.mu.Unlock()

	h, err := rmt.New(b).Claim(0, nil, rmt.DefaultTxConfig())
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, h.Transmit(ctx, []pulse.Code{{Low: 4000}}), rmt.ErrTimeout)
	assert.Equal(t, rmt.Faulted, h.State())

	require.NoError(t, h.Recover())
	frames, _ := fb.snapshot()
	assert.Equal(t, byte(CmdReset), frames[len(frames)-1].Cmd)
}

func TestBridgeConfigureTimeout(t *testing.T) {
	host, dev := net.Pipe()
	defer dev.Close()
	go func() {
		buf := make([]byte, 64)
		for {
			if _, err := dev.Read(buf); err != nil {
				return
			}
		}
	}()
	b := NewBridge(host, &Opts{AckTimeout: 10 * time.Millisecond, Clock: 40 * physic.MegaHertz})
	defer b.Close()
	_, err := rmt.New(b).Claim(0, nil, rmt.DefaultTxConfig())
	assert.ErrorIs(t, err, errAckTimeout)
}

func TestPin(t *testing.T) {
	p := Pin(18)
	assert.Equal(t, 18, p.Number())
	assert.Equal(t, "BRIDGE_GPIO18", p.Name())
	assert.Equal(t, "BRIDGE_GPIO18", p.String())
}
