package rmt

import (
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// TxConfig configures a transmit channel.
type TxConfig struct {
	// ClockDivider divides the peripheral clock into ticks. 0 means 1.
	ClockDivider uint8
	// IdleLevel is the output level between transmissions.
	IdleLevel gpio.Level
	// IdleOutput keeps driving IdleLevel when idle.
	IdleOutput bool
	// CarrierModulation enables the IR carrier; LED strips need it off.
	CarrierModulation bool
}

// DefaultTxConfig is the configuration used for LED strips.
func DefaultTxConfig() TxConfig {
	return TxConfig{ClockDivider: 1, IdleLevel: gpio.Low, IdleOutput: true}
}

// Divider returns the effective clock divider.
func (c TxConfig) Divider() uint8 {
	if c.ClockDivider == 0 {
		return 1
	}
	return c.ClockDivider
}

// Peripheral is a pulse-train peripheral with one or more transmit channels.
type Peripheral interface {
	// Clock returns the source clock before the channel divider.
	Clock() physic.Frequency
	// NumChannels returns the number of transmit channels.
	NumChannels() int
	// TxChannel returns channel n.
	TxChannel(n int) (TxChannel, error)
}

// TxChannel is the raw interface of one transmit channel.
type TxChannel interface {
	// Configure routes the channel to pin.
	Configure(pin gpio.PinOut, cfg TxConfig) error
	// Capacity returns the number of pulse words the transmit memory holds.
	Capacity() int
	// Start loads words into the transmit memory and starts shifting them
	// out. words must stay untouched until Poll reports completion or Reset
	// is called.
	Start(words []uint32) error
	// Poll reports whether the last transmission completed. A non-nil error
	// means the hardware stopped the transfer.
	Poll() (done bool, err error)
	// Reset aborts any transfer and returns the channel to idle.
	Reset() error
}
