package keyboard

import (
	"fmt"
	"time"

	"github.com/holoplot/go-evdev"
	"github.com/zerolag/zerolag/internal/pkg/hid"
	"github.com/zerolag/zerolag/internal/pkg/logger"
	"github.com/zerolag/zerolag/internal/pkg/profile"
)

var log = logger.GetLogger()

type phase int

const (
	phaseIdle phase = iota
	phasePressed
	phaseDebouncing
)

// keyState tracks a single key through the Idle -> Pressed -> (Debouncing)
// -> Idle state machine, plus the flags the emulation layers hang off it.
type keyState struct {
	phase          phase
	pressTime      time.Time
	lastTransition time.Time

	// emitted: the press was reported downstream.
	// pending: held back by anti-ghosting priority resolution.
	// snapped: released synthetically by snap tap while physically held.
	emitted bool
	pending bool
	snapped bool

	turboOn      bool
	turboNext    time.Time
	turboPressed bool
}

type Stats struct {
	Transitions       uint64
	Suppressed        uint64 // chatter collapsed by debounce
	GhostsHeld        uint64 // presses held pending by priority resolution
	SyntheticEmitted  uint64 // turbo press/release pairs
	SnapTapReleases   uint64
	MaxSimultaneous   int
	DroppedAmbiguous  uint64 // fail-closed drops
	ConflictsDetected uint64
}

// Pipeline is the keyboard processing engine: debounce, anti-ghosting/NKRO
// emulation and rapid-trigger synthesis. All state is owned by the scheduler
// goroutine, methods are not safe for concurrent use.
type Pipeline struct {
	noLogs bool

	debounce     profile.DebounceConfig
	antiGhosting profile.AntiGhostingConfig
	nkro         profile.NkroConfig
	turbo        profile.TurboConfig
	snapTap      profile.SnapTapConfig

	matrix *ConflictMatrix
	keys   map[evdev.EvCode]*keyState
	// active keys in press order, emitted and pending alike
	active []evdev.EvCode

	bypass bool
	stats  Stats
}

func NewPipeline(noLogs bool) *Pipeline {
	return &Pipeline{
		noLogs: noLogs,
		matrix: NewConflictMatrix(defaultRows, defaultCols),
		keys:   make(map[evdev.EvCode]*keyState, 32),
	}
}

// Configure installs a new configuration. NKRO and anti-ghosting are
// mutually exclusive, an inconsistent snapshot is rejected and the previous
// configuration stays active.
func (p *Pipeline) Configure(cfg profile.Snapshot) error {
	if cfg.Nkro.Enabled && cfg.AntiGhosting.Enabled {
		return fmt.Errorf("%w: nkro and anti-ghosting are mutually exclusive", profile.ErrInvalidConfiguration)
	}
	p.debounce = cfg.Debounce
	p.antiGhosting = cfg.AntiGhosting
	p.nkro = cfg.Nkro
	p.turbo = cfg.Turbo
	p.snapTap = cfg.SnapTap
	if !p.noLogs {
		log.Info(fmt.Sprintf(
			"keyboard pipeline configured (anti-ghosting: %v, nkro: %v, debounce: %s)",
			cfg.AntiGhosting.Enabled, cfg.Nkro.Enabled, cfg.Debounce.Threshold,
		), logger.Info)
	}
	return nil
}

func (p *Pipeline) Matrix() *ConflictMatrix {
	return p.matrix
}

func (p *Pipeline) Stats() Stats {
	return p.stats
}

func (p *Pipeline) state(code evdev.EvCode) *keyState {
	s, ok := p.keys[code]
	if !ok {
		s = &keyState{}
		p.keys[code] = s
	}
	return s
}

func (p *Pipeline) emittedActive() []evdev.EvCode {
	var out []evdev.EvCode
	for _, code := range p.active {
		if s := p.keys[code]; s.emitted && !s.snapped {
			out = append(out, code)
		}
	}
	return out
}

func (p *Pipeline) removeActive(code evdev.EvCode) {
	for i, c := range p.active {
		if c == code {
			p.active = append(p.active[:i], p.active[i+1:]...)
			return
		}
	}
}

func (p *Pipeline) processed(e hid.RawEvent, pressed, synthetic bool, now time.Time) hid.ProcessedEvent {
	out := hid.ProcessedEvent{
		Kind:      hid.KeyTransition,
		Time:      e.Time,
		Code:      e.Code,
		Pressed:   pressed,
		Synthetic: synthetic,
		Latency:   now.Sub(e.Time),
	}
	if !p.noLogs {
		log.Info(out.String(), logger.Events)
	}
	return out
}

// Process consumes one raw key transition and returns zero or more processed
// events. It mutates KeyMatrixState only, inconsistent configuration fails
// closed by dropping the ambiguous transition.
func (p *Pipeline) Process(e hid.RawEvent, now time.Time) []hid.ProcessedEvent {
	if e.Kind != hid.KeyTransition {
		return nil
	}
	if p.bypass {
		return []hid.ProcessedEvent{p.processed(e, e.Pressed, false, now)}
	}
	if p.nkro.Enabled && p.antiGhosting.Enabled {
		// inconsistent configuration, drop rather than emit a false event
		p.stats.DroppedAmbiguous++
		return nil
	}

	s := p.state(e.Code)
	// phase transitions are monotonic, stale events are dropped
	if e.Time.Before(s.lastTransition) {
		return nil
	}
	p.stats.Transitions++

	if e.Pressed {
		return p.press(e, s, now)
	}
	return p.release(e, s, now)
}

func (p *Pipeline) press(e hid.RawEvent, s *keyState, now time.Time) []hid.ProcessedEvent {
	switch s.phase {
	case phasePressed:
		// repeat or duplicate press, hardware already down
		return nil
	case phaseDebouncing:
		if e.Time.Sub(s.lastTransition) < p.debounce.Threshold {
			// chatter: the pending release and this press cancel each other
			s.phase = phasePressed
			s.lastTransition = e.Time
			p.stats.Suppressed += 2
			return nil
		}
		// threshold elapsed, flush the deferred release first, stamped with
		// the time the release actually happened
		events := []hid.ProcessedEvent{p.processed(hid.RawEvent{
			Kind: hid.KeyTransition, Time: s.lastTransition, Code: e.Code,
		}, false, false, now)}
		p.finishRelease(e.Code, s)
		return append(events, p.press(e, s, now)...)
	}

	s.phase = phasePressed
	s.pressTime = e.Time
	s.lastTransition = e.Time
	s.snapped = false
	s.turboOn = false
	p.active = append(p.active, e.Code)
	if n := len(p.active); n > p.stats.MaxSimultaneous {
		p.stats.MaxSimultaneous = n
	}

	var events []hid.ProcessedEvent

	// snap tap: an opposing-direction press immediately releases the
	// previous key's hold
	if p.snapTap.Enabled {
		if opposite, ok := p.snapTap.Pairs[e.Code]; ok {
			if os, active := p.keys[opposite]; active && os.phase == phasePressed && os.emitted && !os.snapped {
				os.snapped = true
				os.turboOn = false
				p.stats.SnapTapReleases++
				events = append(events, p.processed(hid.RawEvent{
					Kind: hid.KeyTransition, Time: e.Time, Code: opposite,
				}, false, true, now))
			}
		}
	}

	switch {
	case p.nkro.Enabled:
		// all keys reported independently, bounded only by the declared
		// rollover limit
		if p.nkro.MaxKeys > 0 && len(p.emittedActive()) >= p.nkro.MaxKeys {
			p.stats.DroppedAmbiguous++
			s.phase = phaseIdle
			p.removeActive(e.Code)
			return events
		}
		s.emitted = true
		events = append(events, p.processed(e, true, false, now))
	case p.antiGhosting.Enabled:
		if p.matrix.ConflictsWithAny(e.Code, p.emittedActive()) {
			p.stats.ConflictsDetected++
			if p.antiGhosting.Resolution == profile.PriorityResolution {
				// the earliest emitted key keeps priority, this one is held
				// pending until the conflict clears
				s.pending = true
				p.stats.GhostsHeld++
				return events
			}
			// pass-through accepts the ambiguity and emits anyway
		}
		s.emitted = true
		events = append(events, p.processed(e, true, false, now))
	default:
		s.emitted = true
		events = append(events, p.processed(e, true, false, now))
	}

	return events
}

func (p *Pipeline) release(e hid.RawEvent, s *keyState, now time.Time) []hid.ProcessedEvent {
	switch s.phase {
	case phaseIdle, phaseDebouncing:
		// spurious or already debouncing, nothing to report
		return nil
	}

	if s.pending {
		// never emitted, just forget it
		s.phase = phaseIdle
		s.pending = false
		s.lastTransition = e.Time
		p.removeActive(e.Code)
		return nil
	}

	if s.snapped {
		// snap tap already reported the release
		s.phase = phaseIdle
		s.snapped = false
		s.lastTransition = e.Time
		p.removeActive(e.Code)
		return p.resnap(e, now)
	}

	if p.debounce.Threshold > 0 && e.Time.Sub(s.lastTransition) < p.debounce.Threshold {
		// suspected chatter, hold the release until the threshold elapses
		s.phase = phaseDebouncing
		s.lastTransition = e.Time
		return nil
	}

	events := []hid.ProcessedEvent{p.processed(e, false, false, now)}
	s.lastTransition = e.Time
	p.finishRelease(e.Code, s)
	events = append(events, p.promotePending(e, now)...)
	events = append(events, p.resnap(e, now)...)
	return events
}

func (p *Pipeline) finishRelease(code evdev.EvCode, s *keyState) {
	s.phase = phaseIdle
	s.emitted = false
	s.pending = false
	s.snapped = false
	s.turboOn = false
	p.removeActive(code)
}

// promotePending re-evaluates keys held by priority resolution after a
// release, most recent press first. A pending key whose conflict has cleared
// is emitted now.
func (p *Pipeline) promotePending(e hid.RawEvent, now time.Time) []hid.ProcessedEvent {
	if !p.antiGhosting.Enabled || p.antiGhosting.Resolution != profile.PriorityResolution {
		return nil
	}

	var events []hid.ProcessedEvent
	for i := len(p.active) - 1; i >= 0; i-- {
		code := p.active[i]
		s := p.keys[code]
		if !s.pending {
			continue
		}
		if p.matrix.ConflictsWithAny(code, p.emittedActive()) {
			continue
		}
		s.pending = false
		s.emitted = true
		events = append(events, p.processed(hid.RawEvent{
			Kind: hid.KeyTransition, Time: e.Time, Code: code,
		}, true, true, now))
	}
	return events
}

// resnap restores the hold of an opposing key that snap tap released while
// it is still physically down.
func (p *Pipeline) resnap(e hid.RawEvent, now time.Time) []hid.ProcessedEvent {
	if !p.snapTap.Enabled {
		return nil
	}
	opposite, ok := p.snapTap.Pairs[e.Code]
	if !ok {
		return nil
	}
	os, active := p.keys[opposite]
	if !active || os.phase != phasePressed || !os.snapped {
		return nil
	}
	os.snapped = false
	return []hid.ProcessedEvent{p.processed(hid.RawEvent{
		Kind: hid.KeyTransition, Time: e.Time, Code: opposite,
	}, true, true, now)}
}

// Tick runs the time-driven parts of the state machine: flushing releases
// whose debounce threshold elapsed and synthesizing turbo repeats. Called by
// the scheduler once per keyboard tick.
func (p *Pipeline) Tick(now time.Time) []hid.ProcessedEvent {
	if p.bypass {
		return nil
	}

	var events []hid.ProcessedEvent

	for code, s := range p.keys {
		if s.phase == phaseDebouncing && now.Sub(s.lastTransition) >= p.debounce.Threshold {
			events = append(events, p.processed(hid.RawEvent{
				Kind: hid.KeyTransition, Time: s.lastTransition, Code: code,
			}, false, false, now))
			p.finishRelease(code, s)
		}
	}

	if p.turbo.Enabled {
		events = append(events, p.turboTick(now)...)
	}
	return events
}

func (p *Pipeline) turboTick(now time.Time) []hid.ProcessedEvent {
	var events []hid.ProcessedEvent
	for _, code := range p.active {
		s := p.keys[code]
		if s.phase != phasePressed || !s.emitted || s.snapped || s.pending {
			continue
		}
		if !s.turboOn {
			if now.Sub(s.pressTime) < p.turbo.HoldThreshold {
				continue
			}
			s.turboOn = true
			s.turboNext = now
		}
		for !s.turboNext.After(now) {
			// synthetic release/press pair keeps the key "re-triggering"
			raw := hid.RawEvent{Kind: hid.KeyTransition, Time: s.turboNext, Code: code}
			events = append(events, p.processed(raw, false, true, now))
			events = append(events, p.processed(raw, true, true, now))
			p.stats.SyntheticEmitted++
			s.turboNext = s.turboNext.Add(p.turbo.Interval)
		}
	}
	return events
}

// Bypass forces the pipeline into its neutral state. Flush releases every
// reported-down key first so nothing stays stuck, then all events pass
// through untouched until bypass is lifted.
func (p *Pipeline) Bypass(on bool, now time.Time) []hid.ProcessedEvent {
	if on && !p.bypass {
		var events []hid.ProcessedEvent
		for _, code := range p.emittedActive() {
			events = append(events, p.processed(hid.RawEvent{
				Kind: hid.KeyTransition, Time: now, Code: code,
			}, false, true, now))
		}
		p.keys = make(map[evdev.EvCode]*keyState, 32)
		p.active = nil
		p.bypass = true
		return events
	}
	p.bypass = on
	return nil
}
