package spirmt

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spitest"

	"github.com/coreman2200/smartled/pulse"
	"github.com/coreman2200/smartled/rmt"
)

var ws2812 = pulse.Protocol{
	T0H:   400 * time.Nanosecond,
	T0L:   850 * time.Nanosecond,
	T1H:   850 * time.Nanosecond,
	T1L:   400 * time.Nanosecond,
	Reset: 50 * time.Microsecond,
}

func TestRaster(t *testing.T) {
	zero := pulse.Code{High: 1, Low: 2}.Pack()
	one := pulse.Code{High: 2, Low: 1}.Pack()
	var words []uint32
	for i := 0; i < 8; i++ {
		words = append(words, zero)
	}
	for i := 0; i < 8; i++ {
		words = append(words, one)
	}
	assert.Equal(t, []byte{0x92, 0x49, 0x24, 0xDB, 0x6D, 0xB6}, Raster(nil, words))

	// Partial bytes are padded with the idle level.
	assert.Equal(t, []byte{0xC0}, Raster(nil, []uint32{pulse.Code{High: 2, Low: 1}.Pack()}))
	assert.Equal(t, make([]byte, 15), Raster(nil, []uint32{pulse.Code{Low: 120}.Pack()}))
}

func TestTransmitOverSPI(t *testing.T) {
	buf := bytes.Buffer{}
	p, err := New(spitest.NewRecordRaw(&buf), nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultFreq, p.Clock())
	assert.Equal(t, "spirmt{recordraw}", p.String())

	h, err := rmt.New(p).Claim(0, nil, rmt.DefaultTxConfig())
	require.NoError(t, err)
	assert.Equal(t, DefaultCapacity, h.Capacity())

	tm, err := pulse.NewTiming(h.Clock(), 1, ws2812)
	require.NoError(t, err)
	codes := pulse.Encode(nil, []pulse.Word{pulse.OrderGRB.Word(0xFF, 0, 0, 0)}, tm)
	require.NoError(t, h.Transmit(context.Background(), codes))

	want := []byte{0x92, 0x49, 0x24, 0xDB, 0x6D, 0xB6, 0x92, 0x49, 0x24}
	want = append(want, make([]byte, 15)...)
	assert.Equal(t, want, buf.Bytes())
}

func TestConfigureRejects(t *testing.T) {
	p, err := New(spitest.NewRecordRaw(&bytes.Buffer{}), &Opts{Capacity: 10})
	require.NoError(t, err)
	ch, err := p.TxChannel(0)
	require.NoError(t, err)
	assert.Equal(t, 10, ch.Capacity())

	assert.Error(t, ch.Configure(nil, rmt.TxConfig{IdleLevel: gpio.High}))
	assert.Error(t, ch.Configure(nil, rmt.TxConfig{CarrierModulation: true}))
	assert.ErrorIs(t, ch.Start(nil), errNotConfigured)

	_, err = p.TxChannel(1)
	assert.Error(t, err)
	_, err = New(nil, nil)
	assert.Error(t, err)
}

// stallPort is a spi.Port whose transfers block until release is closed.
type stallPort struct {
	release chan struct{}

	mu       sync.Mutex
	inFlight int
	peak     int
	txs      int
}

func (p *stallPort) String() string                    { return "stall" }
func (p *stallPort) LimitSpeed(physic.Frequency) error { return nil }
func (p *stallPort) Duplex() conn.Duplex               { return conn.Half }
func (p *stallPort) TxPackets([]spi.Packet) error      { return nil }

func (p *stallPort) Connect(physic.Frequency, spi.Mode, int) (spi.Conn, error) {
	return p, nil
}

func (p *stallPort) Tx(w, r []byte) error {
	p.mu.Lock()
	p.txs++
	p.inFlight++
	if p.inFlight > p.peak {
		p.peak = p.inFlight
	}
	p.mu.Unlock()
	<-p.release
	p.mu.Lock()
	p.inFlight--
	p.mu.Unlock()
	return nil
}

func TestRecoverWaitsForStaleTransfer(t *testing.T) {
	port := &stallPort{release: make(chan struct{})}
	p, err := New(port, &Opts{ResetTimeout: 5 * time.Millisecond})
	require.NoError(t, err)
	h, err := rmt.New(p).Claim(0, nil, rmt.DefaultTxConfig())
	require.NoError(t, err)
	h.PollInterval = time.Millisecond
	tm, err := pulse.NewTiming(h.Clock(), 1, ws2812)
	require.NoError(t, err)
	codes := pulse.Encode(nil, []pulse.Word{pulse.OrderGRB.Word(1, 2, 3, 0)}, tm)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, h.Transmit(ctx, codes), rmt.ErrTimeout)
	assert.Equal(t, rmt.Faulted, h.State())

	// The stale frame is still shifting out: the channel stays faulted.
	assert.ErrorIs(t, h.Recover(), ErrInFlight)
	assert.Equal(t, rmt.Faulted, h.State())
	assert.ErrorIs(t, h.Transmit(context.Background(), codes), rmt.ErrChannelFaulted)

	close(port.release)
	require.NoError(t, h.Recover())
	assert.Equal(t, rmt.Idle, h.State())
	require.NoError(t, h.Transmit(context.Background(), codes))

	port.mu.Lock()
	defer port.mu.Unlock()
	assert.Equal(t, 2, port.txs)
	assert.Equal(t, 1, port.peak)
}

func TestStartRefusedWhileStale(t *testing.T) {
	port := &stallPort{release: make(chan struct{})}
	p, err := New(port, &Opts{ResetTimeout: time.Millisecond})
	require.NoError(t, err)
	ch, err := p.TxChannel(0)
	require.NoError(t, err)
	require.NoError(t, ch.Configure(nil, rmt.DefaultTxConfig()))

	word := []uint32{pulse.Code{High: 1, Low: 2}.Pack()}
	require.NoError(t, ch.Start(word))
	assert.ErrorIs(t, ch.Reset(), ErrInFlight)
	assert.Error(t, ch.Start(word))

	close(port.release)
	require.NoError(t, ch.Reset())
	require.NoError(t, ch.Start(word))
	require.Eventually(t, func() bool {
		done, err := ch.Poll()
		return done && err == nil
	}, time.Second, time.Millisecond)
}
