package rmt

import (
	"errors"
	"fmt"
)

var (
	// ErrBufferTooLarge is matched by *BufferTooLargeError.
	ErrBufferTooLarge = errors.New("rmt: pulse sequence exceeds transmit memory")
	// ErrChannelBusy is returned when a transmission is already in flight.
	ErrChannelBusy = errors.New("rmt: channel busy")
	// ErrTimeout is returned when completion is not observed before the
	// deadline. The channel is Faulted afterwards.
	ErrTimeout = errors.New("rmt: transmission timed out")
	// ErrTransmissionFailed wraps an error reported by the hardware.
	ErrTransmissionFailed = errors.New("rmt: transmission failed")
	// ErrChannelFaulted is returned until a Faulted channel is recovered.
	ErrChannelFaulted = errors.New("rmt: channel faulted, recover before reuse")
	// ErrChannelClaimed is returned when claiming an owned channel.
	ErrChannelClaimed = errors.New("rmt: channel already claimed")
	// ErrInvalidChannel is returned for a channel the peripheral lacks.
	ErrInvalidChannel = errors.New("rmt: invalid channel")
	// ErrClosed is returned by a closed Handle.
	ErrClosed = errors.New("rmt: handle closed")
)

// BufferTooLargeError reports a sequence longer than the channel capacity.
type BufferTooLargeError struct {
	Required int
	Capacity int
}

func (e *BufferTooLargeError) Error() string {
	return fmt.Sprintf("rmt: %d pulses exceed channel capacity of %d", e.Required, e.Capacity)
}

// Is makes errors.Is(err, ErrBufferTooLarge) match.
func (e *BufferTooLargeError) Is(target error) bool {
	return target == ErrBufferTooLarge
}
