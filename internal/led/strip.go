package led

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/coreman2200/smartled/rmt"
	"github.com/coreman2200/smartled/smartled"
)

// Strip writes frames through a smartled.Dev.
//
// A frame that times out leaves the channel Faulted; Strip recovers it so the
// next frame goes out, and still reports the timeout.
type Strip struct {
	dev     *smartled.Dev
	timeout time.Duration

	mu  sync.Mutex
	buf []byte
	// closed after the device, typically the transport under the peripheral
	closer interface{ Close() error }
}

// NewStrip returns a Strip for dev. timeout bounds each frame; 0 waits for
// the hardware. closer may be nil.
func NewStrip(dev *smartled.Dev, timeout time.Duration, closer interface{ Close() error }) *Strip {
	return &Strip{dev: dev, timeout: timeout, closer: closer}
}

// Dev returns the underlying device.
func (s *Strip) Dev() *smartled.Dev { return s.dev }

func (s *Strip) Write(rgb []byte) error {
	if len(rgb)%3 != 0 {
		return fmt.Errorf("rgb length %d is not a multiple of 3", len(rgb))
	}
	if n := len(rgb) / 3; n > s.dev.NumPixels() {
		return fmt.Errorf("rgb length %d does not fit %d LEDs", len(rgb), s.dev.NumPixels())
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	pixels := rgb
	if s.dev.Variant().Channels() == 4 {
		// W stays off; callers hand us RGB.
		s.buf = s.buf[:0]
		for i := 0; i < len(rgb); i += 3 {
			s.buf = append(s.buf, rgb[i], rgb[i+1], rgb[i+2], 0)
		}
		pixels = s.buf
	}

	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	_, err := s.dev.Write(ctx, pixels)
	if errors.Is(err, rmt.ErrTimeout) {
		if rerr := s.dev.Recover(); rerr != nil {
			log.Error().Err(rerr).Str("dev", s.dev.String()).Msg("recover after timeout failed")
		} else {
			log.Warn().Str("dev", s.dev.String()).Msg("frame timed out; channel recovered")
		}
	}
	return err
}

func (s *Strip) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.dev.Close()
	if s.closer != nil {
		if cerr := s.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
