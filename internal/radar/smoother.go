package radar

import "github.com/banshee-data/approach.warning/internal/ld2451"

// Smoother stabilises per-slot distance readings. Each slot has independent
// state; the first sample after construction or Reset is returned unchanged.
type Smoother interface {
	Smooth(slot int, raw float64) float64
	Reset(slot int)
	ResetAll()
}

const (
	// DefaultAlpha weights new samples in the exponential smoother.
	DefaultAlpha = 0.18
	// DefaultWindow is the moving-average depth of the window smoother.
	DefaultWindow = 6
	// MaxWindow bounds the window smoother's per-slot history.
	MaxWindow = 32
)

// EMASmoother applies smoothed = alpha*raw + (1-alpha)*previous.
type EMASmoother struct {
	alpha  float64
	value  [ld2451.MaxTargets]float64
	primed [ld2451.MaxTargets]bool
}

// NewEMASmoother returns an exponential smoother. alpha outside (0, 1] falls
// back to DefaultAlpha.
func NewEMASmoother(alpha float64) *EMASmoother {
	if alpha <= 0 || alpha > 1 {
		alpha = DefaultAlpha
	}
	return &EMASmoother{alpha: alpha}
}

// Alpha returns the smoothing factor in use.
func (s *EMASmoother) Alpha() float64 { return s.alpha }

func (s *EMASmoother) Smooth(slot int, raw float64) float64 {
	if slot < 0 || slot >= ld2451.MaxTargets {
		return raw
	}
	if !s.primed[slot] {
		s.primed[slot] = true
		s.value[slot] = raw
		return raw
	}
	s.value[slot] = s.alpha*raw + (1-s.alpha)*s.value[slot]
	return s.value[slot]
}

func (s *EMASmoother) Reset(slot int) {
	if slot < 0 || slot >= ld2451.MaxTargets {
		return
	}
	s.primed[slot] = false
	s.value[slot] = 0
}

func (s *EMASmoother) ResetAll() {
	for i := range s.primed {
		s.Reset(i)
	}
}

// WindowSmoother is a fixed-depth moving average per slot, primed with the
// first value so a new target reads true immediately.
type WindowSmoother struct {
	depth   int
	history [ld2451.MaxTargets][MaxWindow]float64
	next    [ld2451.MaxTargets]int
	primed  [ld2451.MaxTargets]bool
}

// NewWindowSmoother returns a moving-average smoother. depth is clamped to
// 1..MaxWindow; zero selects DefaultWindow.
func NewWindowSmoother(depth int) *WindowSmoother {
	switch {
	case depth == 0:
		depth = DefaultWindow
	case depth < 1:
		depth = 1
	case depth > MaxWindow:
		depth = MaxWindow
	}
	return &WindowSmoother{depth: depth}
}

// Depth returns the averaging window length.
func (s *WindowSmoother) Depth() int { return s.depth }

func (s *WindowSmoother) Smooth(slot int, raw float64) float64 {
	if slot < 0 || slot >= ld2451.MaxTargets {
		return raw
	}
	h := &s.history[slot]
	if !s.primed[slot] {
		for i := 0; i < s.depth; i++ {
			h[i] = raw
		}
		s.primed[slot] = true
		s.next[slot] = 0
		return raw
	}
	h[s.next[slot]] = raw
	s.next[slot] = (s.next[slot] + 1) % s.depth

	var sum float64
	for i := 0; i < s.depth; i++ {
		sum += h[i]
	}
	return sum / float64(s.depth)
}

func (s *WindowSmoother) Reset(slot int) {
	if slot < 0 || slot >= ld2451.MaxTargets {
		return
	}
	s.primed[slot] = false
	s.next[slot] = 0
	s.history[slot] = [MaxWindow]float64{}
}

func (s *WindowSmoother) ResetAll() {
	for i := range s.primed {
		s.Reset(i)
	}
}

// Smoothing mode names accepted by NewSmoother.
const (
	SmoothingEMA    = "ema"
	SmoothingWindow = "window"
)

// NewSmoother builds the smoother named by mode. Unknown modes use EMA.
func NewSmoother(mode string, alpha float64, window int) Smoother {
	if mode == SmoothingWindow {
		return NewWindowSmoother(window)
	}
	return NewEMASmoother(alpha)
}
