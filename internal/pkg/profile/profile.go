package profile

import (
	"errors"
	"fmt"
	"time"

	"github.com/holoplot/go-evdev"
)

// ErrInvalidConfiguration is returned when a snapshot fails validation.
// The caller keeps the previously active snapshot in that case.
var ErrInvalidConfiguration = errors.New("invalid configuration")

type SmoothingAlgorithm int

const (
	Exponential SmoothingAlgorithm = iota
	Linear
	Adaptive
)

func (a SmoothingAlgorithm) String() string {
	switch a {
	case Exponential:
		return "exponential"
	case Linear:
		return "linear"
	case Adaptive:
		return "adaptive"
	default:
		return "unknown"
	}
}

type Resolution int

const (
	// PriorityResolution holds conflicting presses pending, the earliest
	// emitted key keeps priority until the conflict clears.
	PriorityResolution Resolution = iota
	// PassThroughResolution emits everything, accepting possible duplicates.
	PassThroughResolution
)

func (r Resolution) String() string {
	switch r {
	case PriorityResolution:
		return "priority"
	default:
		return "pass-through"
	}
}

type SmoothingConfig struct {
	Enabled   bool
	Algorithm SmoothingAlgorithm
	Factor    float64 // [0.1, 1.0], 1.0 disables smoothing
}

type DpiProfile struct {
	Enabled   bool
	BaseDpi   int
	TargetDpi int // [400, 26000] in steps of 50
}

// Scale returns the movement multiplier emulating TargetDpi on a BaseDpi
// sensor.
func (d DpiProfile) Scale() float64 {
	if !d.Enabled || d.BaseDpi == 0 {
		return 1.0
	}
	return float64(d.TargetDpi) / float64(d.BaseDpi)
}

type AngleSnapConfig struct {
	Enabled bool
	Degrees float64 // snap angle multiple
	// NoiseThreshold is the minimum vector magnitude before snapping kicks in,
	// small jitter stays untouched.
	NoiseThreshold float64
}

type AntiGhostingConfig struct {
	Enabled    bool
	Resolution Resolution
}

type NkroConfig struct {
	Enabled bool
	MaxKeys int // maximum simultaneous keys, 0 = unlimited
}

type DebounceConfig struct {
	Threshold time.Duration
}

type TurboConfig struct {
	Enabled       bool
	HoldThreshold time.Duration // hold time before synthesis starts
	Interval      time.Duration // synthetic press/release cadence
}

type SnapTapConfig struct {
	Enabled bool
	// Pairs maps a key to its opposing-direction key, both directions are
	// registered.
	Pairs map[evdev.EvCode]evdev.EvCode
}

type PollingConfig struct {
	MouseRate    int // Hz, [125, 8000]
	KeyboardRate int // Hz, [125, 8000]
	Adaptive     bool
}

func (p PollingConfig) MouseInterval() time.Duration {
	return rateInterval(p.MouseRate)
}

func (p PollingConfig) KeyboardInterval() time.Duration {
	return rateInterval(p.KeyboardRate)
}

func rateInterval(hz int) time.Duration {
	if hz <= 0 {
		hz = 1000
	}
	return time.Second / time.Duration(hz)
}

// Snapshot is an immutable configuration consumed by the scheduler at tick
// boundaries. A pipeline never observes a partially updated snapshot.
type Snapshot struct {
	Name string

	Smoothing    SmoothingConfig
	Dpi          DpiProfile
	AngleSnap    AngleSnapConfig
	AntiGhosting AntiGhostingConfig
	Nkro         NkroConfig
	Debounce     DebounceConfig
	Turbo        TurboConfig
	SnapTap      SnapTapConfig
	Polling      PollingConfig
}

func (s *Snapshot) Validate() error {
	if s.Smoothing.Enabled {
		if s.Smoothing.Factor < 0.1 || s.Smoothing.Factor > 1.0 {
			return fmt.Errorf("%w: smoothing factor %.3f outside [0.1, 1.0]", ErrInvalidConfiguration, s.Smoothing.Factor)
		}
	}
	if s.Dpi.Enabled {
		if s.Dpi.TargetDpi < 400 || s.Dpi.TargetDpi > 26000 {
			return fmt.Errorf("%w: target dpi %d outside [400, 26000]", ErrInvalidConfiguration, s.Dpi.TargetDpi)
		}
		if s.Dpi.TargetDpi%50 != 0 {
			return fmt.Errorf("%w: target dpi %d is not a multiple of 50", ErrInvalidConfiguration, s.Dpi.TargetDpi)
		}
		if s.Dpi.BaseDpi <= 0 {
			return fmt.Errorf("%w: base dpi %d must be positive", ErrInvalidConfiguration, s.Dpi.BaseDpi)
		}
	}
	if s.AngleSnap.Enabled {
		if s.AngleSnap.Degrees <= 0 || s.AngleSnap.Degrees > 90 {
			return fmt.Errorf("%w: snap angle %.1f outside (0, 90]", ErrInvalidConfiguration, s.AngleSnap.Degrees)
		}
	}
	if s.Nkro.Enabled && s.AntiGhosting.Enabled {
		return fmt.Errorf("%w: nkro and anti-ghosting are mutually exclusive", ErrInvalidConfiguration)
	}
	if s.Nkro.MaxKeys < 0 {
		return fmt.Errorf("%w: nkro max keys %d must not be negative", ErrInvalidConfiguration, s.Nkro.MaxKeys)
	}
	if s.Debounce.Threshold < 0 {
		return fmt.Errorf("%w: debounce threshold must not be negative", ErrInvalidConfiguration)
	}
	if s.Turbo.Enabled && s.Turbo.Interval <= 0 {
		return fmt.Errorf("%w: turbo interval must be positive", ErrInvalidConfiguration)
	}
	for _, rate := range []int{s.Polling.MouseRate, s.Polling.KeyboardRate} {
		if rate < 125 || rate > 8000 {
			return fmt.Errorf("%w: polling rate %d outside [125, 8000]", ErrInvalidConfiguration, rate)
		}
	}
	return nil
}
