package keyboard

import (
	"testing"
	"time"

	"github.com/holoplot/go-evdev"
	"github.com/stretchr/testify/assert"

	"github.com/zerolag/zerolag/internal/pkg/hid"
	"github.com/zerolag/zerolag/internal/pkg/profile"
)

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func key(code evdev.EvCode, pressed bool, offset time.Duration) hid.RawEvent {
	return hid.RawEvent{Kind: hid.KeyTransition, Time: base.Add(offset), Code: code, Pressed: pressed}
}

func at(offset time.Duration) time.Time {
	return base.Add(offset)
}

func configure(t *testing.T, p *Pipeline, cfg profile.Snapshot) {
	t.Helper()
	assert.Equal(t, nil, p.Configure(cfg))
}

func TestDebounceChatterCollapsed(t *testing.T) {
	p := NewPipeline(true)
	configure(t, p, profile.Snapshot{
		Debounce: profile.DebounceConfig{Threshold: 5 * time.Millisecond},
	})

	events := p.Process(key(evdev.KEY_A, true, 0), at(0))
	assert.Equal(t, 1, len(events))
	assert.True(t, events[0].Pressed)

	// chatter: release and re-press within the threshold cancel out
	events = p.Process(key(evdev.KEY_A, false, time.Millisecond), at(time.Millisecond))
	assert.Equal(t, 0, len(events))
	events = p.Process(key(evdev.KEY_A, true, 2*time.Millisecond), at(2*time.Millisecond))
	assert.Equal(t, 0, len(events))

	// the key is still logically held, a clean release goes through
	events = p.Process(key(evdev.KEY_A, false, 100*time.Millisecond), at(100*time.Millisecond))
	assert.Equal(t, 1, len(events))
	assert.False(t, events[0].Pressed)

	assert.Equal(t, uint64(2), p.Stats().Suppressed)
}

func TestDebounceCleanPairPasses(t *testing.T) {
	p := NewPipeline(true)
	configure(t, p, profile.Snapshot{
		Debounce: profile.DebounceConfig{Threshold: 5 * time.Millisecond},
	})

	events := p.Process(key(evdev.KEY_A, true, 0), at(0))
	assert.Equal(t, 1, len(events))
	events = p.Process(key(evdev.KEY_A, false, 10*time.Millisecond), at(10*time.Millisecond))
	assert.Equal(t, 1, len(events))
	assert.False(t, events[0].Pressed)
}

func TestDebounceDeferredReleaseFlushedByTick(t *testing.T) {
	p := NewPipeline(true)
	configure(t, p, profile.Snapshot{
		Debounce: profile.DebounceConfig{Threshold: 5 * time.Millisecond},
	})

	p.Process(key(evdev.KEY_A, true, 0), at(0))
	events := p.Process(key(evdev.KEY_A, false, time.Millisecond), at(time.Millisecond))
	assert.Equal(t, 0, len(events))

	// no re-press followed, the real release surfaces once the threshold
	// elapses
	events = p.Tick(at(10 * time.Millisecond))
	assert.Equal(t, 1, len(events))
	assert.False(t, events[0].Pressed)
	assert.Equal(t, evdev.EvCode(evdev.KEY_A), events[0].Code)
}

func TestDebounceDeferredReleaseFlushedByRePress(t *testing.T) {
	p := NewPipeline(true)
	configure(t, p, profile.Snapshot{
		Debounce: profile.DebounceConfig{Threshold: 5 * time.Millisecond},
	})

	p.Process(key(evdev.KEY_A, true, 0), at(0))
	events := p.Process(key(evdev.KEY_A, false, 2*time.Millisecond), at(2*time.Millisecond))
	assert.Equal(t, 0, len(events))

	// a re-press past the threshold flushes the deferred release first,
	// stamped with the time the release actually happened
	events = p.Process(key(evdev.KEY_A, true, 10*time.Millisecond), at(10*time.Millisecond))
	assert.Equal(t, 2, len(events))
	assert.False(t, events[0].Pressed)
	assert.Equal(t, at(2*time.Millisecond), events[0].Time)
	assert.True(t, events[1].Pressed)
	assert.Equal(t, at(10*time.Millisecond), events[1].Time)
}

func TestAntiGhostingPriorityHoldsConflicts(t *testing.T) {
	p := NewPipeline(true)
	configure(t, p, profile.Snapshot{
		AntiGhosting: profile.AntiGhostingConfig{Enabled: true, Resolution: profile.PriorityResolution},
	})

	// Q, W and E share a matrix row, every pairing is ambiguous
	events := p.Process(key(evdev.KEY_Q, true, 0), at(0))
	assert.Equal(t, 1, len(events))
	assert.Equal(t, evdev.EvCode(evdev.KEY_Q), events[0].Code)

	events = p.Process(key(evdev.KEY_W, true, time.Millisecond), at(time.Millisecond))
	assert.Equal(t, 0, len(events))
	events = p.Process(key(evdev.KEY_E, true, 2*time.Millisecond), at(2*time.Millisecond))
	assert.Equal(t, 0, len(events))

	assert.Equal(t, uint64(2), p.Stats().GhostsHeld)

	// releasing the winner promotes the most recent pending key
	events = p.Process(key(evdev.KEY_Q, false, 50*time.Millisecond), at(50*time.Millisecond))
	assert.Equal(t, 2, len(events))
	assert.Equal(t, evdev.EvCode(evdev.KEY_Q), events[0].Code)
	assert.False(t, events[0].Pressed)
	assert.Equal(t, evdev.EvCode(evdev.KEY_E), events[1].Code)
	assert.True(t, events[1].Pressed)
	assert.True(t, events[1].Synthetic)

	// W still conflicts with E and stays held
	events = p.Process(key(evdev.KEY_E, false, 60*time.Millisecond), at(60*time.Millisecond))
	assert.Equal(t, 2, len(events))
	assert.Equal(t, evdev.EvCode(evdev.KEY_W), events[1].Code)
	assert.True(t, events[1].Pressed)
}

func TestAntiGhostingPassThroughEmitsAnyway(t *testing.T) {
	p := NewPipeline(true)
	configure(t, p, profile.Snapshot{
		AntiGhosting: profile.AntiGhostingConfig{Enabled: true, Resolution: profile.PassThroughResolution},
	})

	p.Process(key(evdev.KEY_Q, true, 0), at(0))
	events := p.Process(key(evdev.KEY_W, true, time.Millisecond), at(time.Millisecond))
	assert.Equal(t, 1, len(events))
	assert.Equal(t, uint64(1), p.Stats().ConflictsDetected)
}

func TestNkroReportsAllKeys(t *testing.T) {
	p := NewPipeline(true)
	configure(t, p, profile.Snapshot{
		Nkro: profile.NkroConfig{Enabled: true, MaxKeys: 0},
	})

	codes := []evdev.EvCode{evdev.KEY_Q, evdev.KEY_W, evdev.KEY_E, evdev.KEY_A, evdev.KEY_Z}
	for i, code := range codes {
		events := p.Process(key(code, true, time.Duration(i)*time.Millisecond), at(time.Duration(i)*time.Millisecond))
		assert.Equal(t, 1, len(events))
		assert.True(t, events[0].Pressed)
	}
	assert.Equal(t, len(codes), p.Stats().MaxSimultaneous)
}

func TestNkroRolloverLimit(t *testing.T) {
	p := NewPipeline(true)
	configure(t, p, profile.Snapshot{
		Nkro: profile.NkroConfig{Enabled: true, MaxKeys: 2},
	})

	assert.Equal(t, 1, len(p.Process(key(evdev.KEY_Q, true, 0), at(0))))
	assert.Equal(t, 1, len(p.Process(key(evdev.KEY_W, true, time.Millisecond), at(time.Millisecond))))
	assert.Equal(t, 0, len(p.Process(key(evdev.KEY_E, true, 2*time.Millisecond), at(2*time.Millisecond))))
}

func TestNkroAndAntiGhostingRejected(t *testing.T) {
	p := NewPipeline(true)
	err := p.Configure(profile.Snapshot{
		Nkro:         profile.NkroConfig{Enabled: true},
		AntiGhosting: profile.AntiGhostingConfig{Enabled: true},
	})
	assert.ErrorIs(t, err, profile.ErrInvalidConfiguration)
}

func TestSnapTapReleasesOpposite(t *testing.T) {
	p := NewPipeline(true)
	configure(t, p, profile.Snapshot{
		SnapTap: profile.SnapTapConfig{
			Enabled: true,
			Pairs: map[evdev.EvCode]evdev.EvCode{
				evdev.KEY_A: evdev.KEY_D,
				evdev.KEY_D: evdev.KEY_A,
			},
		},
	})

	events := p.Process(key(evdev.KEY_A, true, 0), at(0))
	assert.Equal(t, 1, len(events))

	// pressing the opposite direction releases A synthetically
	events = p.Process(key(evdev.KEY_D, true, 10*time.Millisecond), at(10*time.Millisecond))
	assert.Equal(t, 2, len(events))
	assert.Equal(t, evdev.EvCode(evdev.KEY_A), events[0].Code)
	assert.False(t, events[0].Pressed)
	assert.True(t, events[0].Synthetic)
	assert.Equal(t, evdev.EvCode(evdev.KEY_D), events[1].Code)
	assert.True(t, events[1].Pressed)

	// releasing D restores A's hold, it is still physically down
	events = p.Process(key(evdev.KEY_D, false, 20*time.Millisecond), at(20*time.Millisecond))
	assert.Equal(t, 2, len(events))
	assert.Equal(t, evdev.EvCode(evdev.KEY_D), events[0].Code)
	assert.False(t, events[0].Pressed)
	assert.Equal(t, evdev.EvCode(evdev.KEY_A), events[1].Code)
	assert.True(t, events[1].Pressed)
	assert.True(t, events[1].Synthetic)
}

func TestTurboSynthesizesRepeats(t *testing.T) {
	p := NewPipeline(true)
	configure(t, p, profile.Snapshot{
		Turbo: profile.TurboConfig{
			Enabled:       true,
			HoldThreshold: 100 * time.Millisecond,
			Interval:      50 * time.Millisecond,
		},
	})

	p.Process(key(evdev.KEY_SPACE, true, 0), at(0))

	assert.Equal(t, 0, len(p.Tick(at(50*time.Millisecond))))

	// past the hold threshold a release/press pair fires
	events := p.Tick(at(150 * time.Millisecond))
	assert.Equal(t, 2, len(events))
	assert.False(t, events[0].Pressed)
	assert.True(t, events[0].Synthetic)
	assert.True(t, events[1].Pressed)

	assert.Equal(t, 0, len(p.Tick(at(175*time.Millisecond))))
	events = p.Tick(at(210 * time.Millisecond))
	assert.Equal(t, 2, len(events))

	// releasing the key stops the synthesis
	p.Process(key(evdev.KEY_SPACE, false, 220*time.Millisecond), at(220*time.Millisecond))
	assert.Equal(t, 0, len(p.Tick(at(400*time.Millisecond))))
}

func TestBypassFlushesHeldKeys(t *testing.T) {
	p := NewPipeline(true)
	configure(t, p, profile.Snapshot{})

	p.Process(key(evdev.KEY_A, true, 0), at(0))
	p.Process(key(evdev.KEY_Z, true, time.Millisecond), at(time.Millisecond))

	events := p.Bypass(true, at(10*time.Millisecond))
	assert.Equal(t, 2, len(events))
	for _, e := range events {
		assert.False(t, e.Pressed)
		assert.True(t, e.Synthetic)
	}

	// bypassed pipeline passes transitions straight through
	events = p.Process(key(evdev.KEY_A, true, 20*time.Millisecond), at(20*time.Millisecond))
	assert.Equal(t, 1, len(events))
	assert.True(t, events[0].Pressed)
	assert.False(t, events[0].Synthetic)
}

func TestStaleEventDropped(t *testing.T) {
	p := NewPipeline(true)
	configure(t, p, profile.Snapshot{})

	p.Process(key(evdev.KEY_A, true, 10*time.Millisecond), at(10*time.Millisecond))
	events := p.Process(key(evdev.KEY_A, false, 5*time.Millisecond), at(10*time.Millisecond))
	assert.Equal(t, 0, len(events))
}
