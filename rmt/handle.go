package rmt

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"periph.io/x/conn/v3/physic"

	"github.com/coreman2200/smartled/pulse"
)

// DefaultPollInterval is the delay between two completion polls.
const DefaultPollInterval = 20 * time.Microsecond

// State is the state of a Handle.
type State uint8

const (
	Idle State = iota
	Busy
	Faulted
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Busy:
		return "busy"
	case Faulted:
		return "faulted"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Stats counts the outcome of Transmit calls.
type Stats struct {
	Frames   uint64 // completed transmissions
	Pulses   uint64 // pulses in completed transmissions
	Rejected uint64 // early rejects: busy, faulted or too large
	Timeouts uint64
	Failures uint64
}

// Handle is the exclusive owner of one transmit channel.
type Handle struct {
	// PollInterval is the delay between completion polls.
	PollInterval time.Duration

	ctrl     *Controller
	n        int
	tx       TxChannel
	cfg      TxConfig
	capacity int

	mu    sync.Mutex
	state State
	mem   []uint32
	stats Stats
}

// Channel returns the channel number.
func (h *Handle) Channel() int { return h.n }

// Capacity returns the number of pulse codes one transmission can hold.
func (h *Handle) Capacity() int { return h.capacity }

// Config returns the channel configuration.
func (h *Handle) Config() TxConfig { return h.cfg }

// Clock returns the channel tick frequency, after the divider.
func (h *Handle) Clock() physic.Frequency {
	return h.ctrl.Clock() / physic.Frequency(h.cfg.Divider())
}

// State returns the current state.
func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Stats returns a snapshot of the counters.
func (h *Handle) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}

// Transmit sends codes and waits for the hardware to finish.
//
// Without a deadline on ctx it waits until the hardware reports completion
// or an error. When ctx ends first it returns ErrTimeout and leaves the
// channel Faulted; call Recover before the next Transmit.
func (h *Handle) Transmit(ctx context.Context, codes []pulse.Code) error {
	h.mu.Lock()
	switch h.state {
	case Busy:
		h.stats.Rejected++
		h.mu.Unlock()
		return ErrChannelBusy
	case Faulted:
		h.stats.Rejected++
		h.mu.Unlock()
		return ErrChannelFaulted
	case Closed:
		h.mu.Unlock()
		return ErrClosed
	}
	if len(codes) > h.capacity {
		h.stats.Rejected++
		h.mu.Unlock()
		return &BufferTooLargeError{Required: len(codes), Capacity: h.capacity}
	}
	if err := ctx.Err(); err != nil {
		h.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	mem := h.mem[:len(codes)]
	for i, c := range codes {
		mem[i] = c.Pack()
	}
	h.state = Busy
	interval := h.PollInterval
	h.mu.Unlock()

	if err := h.tx.Start(mem); err != nil {
		h.finish(Idle, func(s *Stats) { s.Failures++ })
		log.Warn().Err(err).Int("channel", h.n).Msg("rmt start failed")
		return fmt.Errorf("%w: %w", ErrTransmissionFailed, err)
	}

	switch err := h.wait(ctx, interval); {
	case err == nil:
		h.finish(Idle, func(s *Stats) {
			s.Frames++
			s.Pulses += uint64(len(codes))
		})
		log.Debug().Int("channel", h.n).Int("pulses", len(codes)).Msg("rmt transmitted")
		return nil
	case ctx.Err() != nil && err == ctx.Err():
		h.finish(Faulted, func(s *Stats) { s.Timeouts++ })
		log.Warn().Int("channel", h.n).Int("pulses", len(codes)).Msg("rmt transmission timed out; channel faulted")
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	default:
		h.finish(Idle, func(s *Stats) { s.Failures++ })
		log.Warn().Err(err).Int("channel", h.n).Msg("rmt transmission failed")
		return fmt.Errorf("%w: %w", ErrTransmissionFailed, err)
	}
}

// wait polls the hardware until completion, a hardware error or the end of
// ctx, in which case it returns ctx.Err().
func (h *Handle) wait(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	var timer *time.Timer
	for {
		done, err := h.tx.Poll()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if timer == nil {
			timer = time.NewTimer(interval)
			defer timer.Stop()
		} else {
			timer.Reset(interval)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (h *Handle) finish(s State, count func(*Stats)) {
	h.mu.Lock()
	h.state = s
	count(&h.stats)
	h.mu.Unlock()
}

// Recover resets the hardware channel of a Faulted handle and returns it to
// Idle. It is a no-op on an Idle handle.
func (h *Handle) Recover() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch h.state {
	case Busy:
		return ErrChannelBusy
	case Closed:
		return ErrClosed
	case Idle:
		return nil
	}
	if err := h.tx.Reset(); err != nil {
		return fmt.Errorf("rmt: reset channel %d: %w", h.n, err)
	}
	h.state = Idle
	log.Info().Int("channel", h.n).Msg("rmt channel recovered")
	return nil
}

// Close resets the channel and releases it to the Controller.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch h.state {
	case Closed:
		return nil
	case Busy:
		return ErrChannelBusy
	}
	err := h.tx.Reset()
	h.state = Closed
	h.ctrl.release(h.n)
	return err
}
