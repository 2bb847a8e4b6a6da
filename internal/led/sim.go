package led

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// Sim logs a compact summary of each frame (first LED & average), useful for
// headless runs.
type Sim struct {
	count int

	mu     sync.Mutex
	frames int
	last   []byte
}

// NewSim returns a Sim for count LEDs. count 0 accepts any length.
func NewSim(count int) *Sim { return &Sim{count: count} }

func (s *Sim) Write(rgb []byte) error {
	if len(rgb)%3 != 0 || (s.count > 0 && len(rgb) != s.count*3) {
		return fmt.Errorf("rgb length %d does not match count %d", len(rgb), s.count)
	}
	s.mu.Lock()
	s.frames++
	s.last = append(s.last[:0], rgb...)
	n := s.frames
	s.mu.Unlock()

	var r, g, b int
	for i := 0; i < len(rgb); i += 3 {
		r += int(rgb[i])
		g += int(rgb[i+1])
		b += int(rgb[i+2])
	}
	leds := len(rgb) / 3
	ev := log.Debug().Int("frame", n).Int("leds", leds)
	if leds > 0 {
		ev = ev.Ints("avg", []int{r / leds, g / leds, b / leds}).Hex("first", rgb[:3])
	}
	ev.Msg("sim frame")
	return nil
}

// Frames returns the number of frames written.
func (s *Sim) Frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Last returns a copy of the last frame.
func (s *Sim) Last() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.last...)
}

func (s *Sim) Close() error { return nil }
