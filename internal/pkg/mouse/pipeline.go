package mouse

import (
	"fmt"
	"math"
	"time"

	"github.com/zerolag/zerolag/internal/pkg/hid"
	"github.com/zerolag/zerolag/internal/pkg/logger"
	"github.com/zerolag/zerolag/internal/pkg/profile"
)

var log = logger.GetLogger()

// Pipeline transforms raw mouse events into processed ones: smoothing in
// native sensor units first, then DPI emulation, then optional angle
// snapping. It keeps no buffer beyond one tick of filter state, events are
// never reordered or delayed past the tick that consumed them.
type Pipeline struct {
	noLogs bool

	smoothing profile.SmoothingConfig
	dpi       profile.DpiProfile
	angleSnap profile.AngleSnapConfig

	state  SmoothingState
	bypass bool
}

func NewPipeline(noLogs bool) *Pipeline {
	p := &Pipeline{noLogs: noLogs}
	p.state.Reset(p.smoothing)
	return p
}

// Configure installs a new configuration and resets filter state. Called by
// the scheduler at tick boundaries only.
func (p *Pipeline) Configure(dpi profile.DpiProfile, smoothing profile.SmoothingConfig, angleSnap profile.AngleSnapConfig) {
	p.dpi = dpi
	p.smoothing = smoothing
	p.angleSnap = angleSnap
	p.state.Reset(smoothing)
	if !p.noLogs {
		log.Info(fmt.Sprintf(
			"mouse pipeline configured (algorithm: %s, factor: %.2f, dpi scale: %.2f)",
			smoothing.Algorithm, smoothing.Factor, dpi.Scale(),
		), logger.Info)
	}
}

// Bypass switches the pipeline to a neutral pass-through state, used by the
// emergency stop. Filter state is discarded.
func (p *Pipeline) Bypass(on bool) {
	p.bypass = on
	p.state.Reset(p.smoothing)
}

func (p *Pipeline) Process(e hid.RawEvent, now time.Time) hid.ProcessedEvent {
	out := hid.ProcessedEvent{
		Kind:    e.Kind,
		Time:    e.Time,
		Code:    e.Code,
		Pressed: e.Pressed,
	}

	if e.Kind != hid.MouseMove || p.bypass {
		out.DX, out.DY = e.DX, e.DY
		out.Latency = now.Sub(e.Time)
		return out
	}

	dx, dy := p.state.Apply(e.DX, e.DY, e.Time)

	// DPI emulation comes after smoothing so the filter operates in native
	// sensor units
	scale := p.dpi.Scale()
	dx *= scale
	dy *= scale

	if p.angleSnap.Enabled {
		dx, dy = snapAngle(dx, dy, p.angleSnap)
	}

	out.DX, out.DY = dx, dy
	out.Latency = now.Sub(e.Time)

	if !p.noLogs {
		log.Info(out.String(), logger.Events)
	}
	return out
}

// snapAngle quantizes the movement vector's direction to the nearest
// multiple of the configured snap angle, leaving sub-threshold jitter alone.
func snapAngle(dx, dy float64, cfg profile.AngleSnapConfig) (float64, float64) {
	magnitude := math.Hypot(dx, dy)
	if magnitude <= cfg.NoiseThreshold {
		return dx, dy
	}

	step := cfg.Degrees * math.Pi / 180.0
	angle := math.Atan2(dy, dx)
	snapped := math.Round(angle/step) * step
	return magnitude * math.Cos(snapped), magnitude * math.Sin(snapped)
}
