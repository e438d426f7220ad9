package profile

import (
	"fmt"
	"time"

	"github.com/holoplot/go-evdev"
	"github.com/pelletier/go-toml/v2"
)

type tomlProfile struct {
	Name string `toml:"name"`

	Smoothing struct {
		Enabled   bool    `toml:"enabled"`
		Algorithm string  `toml:"algorithm"`
		Factor    float64 `toml:"factor"`
	} `toml:"smoothing"`

	Dpi struct {
		Enabled   bool `toml:"enabled"`
		BaseDpi   int  `toml:"base_dpi"`
		TargetDpi int  `toml:"target_dpi"`
	} `toml:"dpi"`

	AngleSnap struct {
		Enabled        bool    `toml:"enabled"`
		Degrees        float64 `toml:"degrees"`
		NoiseThreshold float64 `toml:"noise_threshold"`
	} `toml:"angle_snap"`

	AntiGhosting struct {
		Enabled    bool   `toml:"enabled"`
		Resolution string `toml:"resolution"`
	} `toml:"anti_ghosting"`

	Nkro struct {
		Enabled bool `toml:"enabled"`
		MaxKeys int  `toml:"max_keys"`
	} `toml:"nkro"`

	Debounce struct {
		ThresholdMs float64 `toml:"threshold_ms"`
	} `toml:"debounce"`

	Turbo struct {
		Enabled         bool    `toml:"enabled"`
		HoldThresholdMs float64 `toml:"hold_threshold_ms"`
		IntervalMs      float64 `toml:"interval_ms"`
	} `toml:"turbo"`

	SnapTap struct {
		Enabled bool              `toml:"enabled"`
		Pairs   map[string]string `toml:"pairs"`
	} `toml:"snap_tap"`

	Polling struct {
		MouseRate    int  `toml:"mouse_rate"`
		KeyboardRate int  `toml:"keyboard_rate"`
		Adaptive     bool `toml:"adaptive"`
	} `toml:"polling"`
}

// Parse converts raw TOML profile data into a validated Snapshot.
func Parse(data []byte) (Snapshot, error) {
	var p tomlProfile
	if err := toml.Unmarshal(data, &p); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrInvalidConfiguration, err)
	}

	var s Snapshot
	s.Name = p.Name

	s.Smoothing.Enabled = p.Smoothing.Enabled
	s.Smoothing.Factor = p.Smoothing.Factor
	switch p.Smoothing.Algorithm {
	case "exponential", "":
		s.Smoothing.Algorithm = Exponential
	case "linear":
		s.Smoothing.Algorithm = Linear
	case "adaptive":
		s.Smoothing.Algorithm = Adaptive
	default:
		return Snapshot{}, fmt.Errorf("%w: unknown smoothing algorithm %q", ErrInvalidConfiguration, p.Smoothing.Algorithm)
	}

	s.Dpi.Enabled = p.Dpi.Enabled
	s.Dpi.BaseDpi = p.Dpi.BaseDpi
	s.Dpi.TargetDpi = p.Dpi.TargetDpi

	s.AngleSnap.Enabled = p.AngleSnap.Enabled
	s.AngleSnap.Degrees = p.AngleSnap.Degrees
	s.AngleSnap.NoiseThreshold = p.AngleSnap.NoiseThreshold

	s.AntiGhosting.Enabled = p.AntiGhosting.Enabled
	switch p.AntiGhosting.Resolution {
	case "priority", "":
		s.AntiGhosting.Resolution = PriorityResolution
	case "pass-through":
		s.AntiGhosting.Resolution = PassThroughResolution
	default:
		return Snapshot{}, fmt.Errorf("%w: unknown resolution %q", ErrInvalidConfiguration, p.AntiGhosting.Resolution)
	}

	s.Nkro.Enabled = p.Nkro.Enabled
	s.Nkro.MaxKeys = p.Nkro.MaxKeys

	s.Debounce.Threshold = time.Duration(p.Debounce.ThresholdMs * float64(time.Millisecond))

	s.Turbo.Enabled = p.Turbo.Enabled
	s.Turbo.HoldThreshold = time.Duration(p.Turbo.HoldThresholdMs * float64(time.Millisecond))
	s.Turbo.Interval = time.Duration(p.Turbo.IntervalMs * float64(time.Millisecond))

	s.SnapTap.Enabled = p.SnapTap.Enabled
	s.SnapTap.Pairs = make(map[evdev.EvCode]evdev.EvCode, len(p.SnapTap.Pairs)*2)
	for rawKey, rawOpposite := range p.SnapTap.Pairs {
		key, ok := evdev.KEYFromString[rawKey]
		if !ok {
			return Snapshot{}, fmt.Errorf("%w: unknown key %q in snap_tap pairs", ErrInvalidConfiguration, rawKey)
		}
		opposite, ok := evdev.KEYFromString[rawOpposite]
		if !ok {
			return Snapshot{}, fmt.Errorf("%w: unknown key %q in snap_tap pairs", ErrInvalidConfiguration, rawOpposite)
		}
		s.SnapTap.Pairs[key] = opposite
		s.SnapTap.Pairs[opposite] = key
	}

	s.Polling.MouseRate = p.Polling.MouseRate
	s.Polling.KeyboardRate = p.Polling.KeyboardRate
	s.Polling.Adaptive = p.Polling.Adaptive

	if err := s.Validate(); err != nil {
		return Snapshot{}, err
	}
	return s, nil
}
