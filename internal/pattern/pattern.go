// Package pattern generates bring-up frames for checking a freshly wired
// strip: LED order, channel order and power.
package pattern

import "fmt"

type Kind string

const (
	None        Kind = ""
	IndexSweep  Kind = "index_sweep"
	RGBChannels Kind = "rgb_channels"
	Solid       Kind = "solid"
	Chase       Kind = "chase"
)

// Kinds lists every runnable pattern.
var Kinds = []Kind{IndexSweep, RGBChannels, Solid, Chase}

// ParseKind returns the Kind named s.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return None, fmt.Errorf("pattern: unknown pattern %q", s)
}

type Plan struct {
	Kind Kind
	// Color is used by Solid and Chase. Zero means white.
	Color [3]byte
	// Loops repeats the pattern; 0 runs it once.
	Loops int
}

type Runner struct {
	plan Plan
	step int
	loop int
}

func NewRunner(plan Plan) *Runner { return &Runner{plan: plan} }
func (r *Runner) Kind() Kind      { return r.plan.Kind }

// Steps returns how many frames one pass over n LEDs takes.
func (r *Runner) Steps(n int) int {
	switch r.plan.Kind {
	case IndexSweep, Chase:
		return n
	case RGBChannels:
		return 3
	case Solid:
		return 1
	}
	return 0
}

// Step fills rgb, 3 bytes per LED; returns false when complete.
func (r *Runner) Step(rgb []byte) bool {
	n := len(rgb) / 3
	if r.step >= r.Steps(n) {
		if r.loop >= r.plan.Loops || r.Steps(n) == 0 {
			return false
		}
		r.loop++
		r.step = 0
	}
	for i := range rgb {
		rgb[i] = 0
	}
	c := r.plan.Color
	if c == [3]byte{} {
		c = [3]byte{255, 255, 255}
	}

	switch r.plan.Kind {
	case IndexSweep:
		i := r.step
		rgb[i*3+0], rgb[i*3+1], rgb[i*3+2] = 255, 255, 255
	case RGBChannels:
		for i := 0; i < n; i++ {
			rgb[i*3+r.step] = 255
		}
	case Solid:
		for i := 0; i < n; i++ {
			copy(rgb[i*3:], c[:])
		}
	case Chase:
		// three lit LEDs fading out behind the head
		for k, scale := range []int{4, 2, 1} {
			i := r.step - k
			if i < 0 {
				break
			}
			for j := 0; j < 3; j++ {
				rgb[i*3+j] = byte(int(c[j]) * scale / 4)
			}
		}
	}
	r.step++
	return true
}
