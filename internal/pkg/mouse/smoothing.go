package mouse

import (
	"math"
	"time"

	"github.com/zerolag/zerolag/internal/pkg/profile"
)

// velocityThreshold is the speed (sensor counts per second) at which adaptive
// smoothing backs off completely to preserve flick responsiveness.
const velocityThreshold = 2000.0

// SmoothingState is the per-axis rolling filter state. It is owned
// exclusively by the Pipeline and reset whenever configuration changes.
type SmoothingState struct {
	cfg profile.SmoothingConfig

	initialized bool
	x, y        float64 // last smoothed deltas
	pendX       float64 // outstanding motion for the linear algorithm
	pendY       float64
	lastDX      float64
	lastDY      float64
	lastTime    time.Time
}

func (s *SmoothingState) Reset(cfg profile.SmoothingConfig) {
	*s = SmoothingState{cfg: cfg}
}

// Apply filters a raw delta pair. The first sample passes through unchanged,
// the filter needs history to do anything useful.
func (s *SmoothingState) Apply(dx, dy float64, t time.Time) (float64, float64) {
	if !s.cfg.Enabled || s.cfg.Factor >= 1.0 {
		return dx, dy
	}

	if !s.initialized {
		s.initialized = true
		s.x, s.y = dx, dy
		s.lastDX, s.lastDY = dx, dy
		s.lastTime = t
		return dx, dy
	}

	var outX, outY float64
	switch s.cfg.Algorithm {
	case profile.Exponential:
		outX = s.x*(1.0-s.cfg.Factor) + dx*s.cfg.Factor
		outY = s.y*(1.0-s.cfg.Factor) + dy*s.cfg.Factor
	case profile.Linear:
		// emit a fixed fraction of the outstanding motion, the remainder
		// carries over so no movement is lost over time
		s.pendX += dx
		s.pendY += dy
		outX = s.pendX * s.cfg.Factor
		outY = s.pendY * s.cfg.Factor
		s.pendX -= outX
		s.pendY -= outY
	case profile.Adaptive:
		factor := s.adaptiveFactor(dx, dy, t)
		outX = s.x*(1.0-factor) + dx*factor
		outY = s.y*(1.0-factor) + dy*factor
	default:
		outX, outY = dx, dy
	}

	s.x, s.y = outX, outY
	s.lastDX, s.lastDY = dx, dy
	s.lastTime = t
	return outX, outY
}

// adaptiveFactor estimates instantaneous velocity from the last two raw
// deltas and scales the smoothing factor towards 1.0 as speed grows, damping
// jitter at rest without lagging fast flicks.
func (s *SmoothingState) adaptiveFactor(dx, dy float64, t time.Time) float64 {
	dt := t.Sub(s.lastTime).Seconds()
	if dt <= 0 {
		dt = 0.001
	}

	avgX := (dx + s.lastDX) / 2.0
	avgY := (dy + s.lastDY) / 2.0
	velocity := math.Hypot(avgX, avgY) / dt

	ratio := velocity / velocityThreshold
	if ratio > 1.0 {
		ratio = 1.0
	}
	return s.cfg.Factor + (1.0-s.cfg.Factor)*ratio
}
