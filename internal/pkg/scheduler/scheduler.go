package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/zerolag/zerolag/internal/pkg/hid"
	"github.com/zerolag/zerolag/internal/pkg/keyboard"
	"github.com/zerolag/zerolag/internal/pkg/logger"
	"github.com/zerolag/zerolag/internal/pkg/mouse"
	"github.com/zerolag/zerolag/internal/pkg/profile"
)

var log = logger.GetLogger()

const (
	baseDrainCap = 64
	maxDrainCap  = 1024

	// ticks may drift this much relative to the configured interval before
	// the scheduler reports degraded timing
	jitterTolerance = 0.10

	degradeAfter = 8
	recoverAfter = 32
)

// Status is a point-in-time view of scheduler health, safe to read from any
// goroutine.
type Status struct {
	TimingDegraded bool
	Bypassed       bool

	// measured tick rates, Hz
	MouseRate    float64
	KeyboardRate float64

	DrainCap int
	Queue    hid.QueueStats
}

type classState struct {
	interval time.Duration
	lastTick time.Time
	rate     float64

	adaptive bool
	drainCap int
	backlog  int

	jitterStreak int
	cleanStreak  int
	degraded     bool
}

func (c *classState) observeTick(now time.Time) {
	if !c.lastTick.IsZero() {
		actual := now.Sub(c.lastTick)
		c.rate = 1.0 / actual.Seconds()

		drift := (actual - c.interval).Seconds()
		if drift < 0 {
			drift = -drift
		}
		if drift > c.interval.Seconds()*jitterTolerance {
			c.jitterStreak++
			c.cleanStreak = 0
			if c.jitterStreak >= degradeAfter {
				c.degraded = true
			}
		} else {
			c.cleanStreak++
			c.jitterStreak = 0
			if c.cleanStreak >= recoverAfter {
				c.degraded = false
			}
		}
	}
	c.lastTick = now
}

// observeBacklog widens the per-tick drain cap while the queue keeps growing
// between ticks and shrinks it back once the backlog clears. The injection
// side is never touched, only how much a tick consumes. A fixed polling
// configuration keeps the base cap no matter the backlog.
func (c *classState) observeBacklog(remaining int) {
	if !c.adaptive {
		c.drainCap = baseDrainCap
		c.backlog = remaining
		return
	}
	if remaining > c.backlog && c.drainCap < maxDrainCap {
		c.drainCap *= 2
		if c.drainCap > maxDrainCap {
			c.drainCap = maxDrainCap
		}
	} else if remaining == 0 && c.drainCap > baseDrainCap {
		c.drainCap /= 2
	}
	c.backlog = remaining
}

// Scheduler owns both processing pipelines and drains the shared queue on
// two independent tick cadences, one per device class. All pipeline state is
// touched from Run's goroutine only.
type Scheduler struct {
	queue    *hid.Queue
	mouse    *mouse.Pipeline
	keyboard *keyboard.Pipeline

	sink    atomic.Pointer[hid.Sink]
	pending atomic.Pointer[profile.Snapshot]

	emergency    chan struct{}
	emergencySet atomic.Bool

	mu         sync.Mutex
	mouseState classState
	kbdState   classState
	bypassed   bool
	current    profile.Snapshot
}

func New(queue *hid.Queue, m *mouse.Pipeline, k *keyboard.Pipeline, sink hid.Sink, initial profile.Snapshot) *Scheduler {
	s := &Scheduler{
		queue:     queue,
		mouse:     m,
		keyboard:  k,
		emergency: make(chan struct{}, 1),
		current:   initial,
	}
	s.sink.Store(&sink)
	s.mouseState.drainCap = baseDrainCap
	s.kbdState.drainCap = baseDrainCap
	s.mouseState.adaptive = initial.Polling.Adaptive
	s.kbdState.adaptive = initial.Polling.Adaptive
	s.mouseState.interval = initial.Polling.MouseInterval()
	s.kbdState.interval = initial.Polling.KeyboardInterval()
	return s
}

// Swap validates the snapshot and stages it for application at the next tick
// boundary. Events processed before the boundary see the old configuration,
// events after see the new one, never a mix.
func (s *Scheduler) Swap(snapshot profile.Snapshot) error {
	if err := snapshot.Validate(); err != nil {
		return err
	}
	s.pending.Store(&snapshot)
	return nil
}

// SetSink redirects processed output, applied immediately. Used to tee
// output into a benchmark session.
func (s *Scheduler) SetSink(sink hid.Sink) {
	s.sink.Store(&sink)
}

// EmergencyStop switches both pipelines to pass-through without waiting for
// a tick boundary. In-flight synthetic key state is flushed so no key is
// left logically held.
func (s *Scheduler) EmergencyStop() {
	if s.emergencySet.Swap(true) {
		return
	}
	select {
	case s.emergency <- struct{}{}:
	default:
	}
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	drainCap := s.mouseState.drainCap
	if s.kbdState.drainCap > drainCap {
		drainCap = s.kbdState.drainCap
	}
	return Status{
		TimingDegraded: s.mouseState.degraded || s.kbdState.degraded,
		Bypassed:       s.bypassed,
		MouseRate:      s.mouseState.rate,
		KeyboardRate:   s.kbdState.rate,
		DrainCap:       drainCap,
		Queue:          s.queue.Stats(),
	}
}

func (s *Scheduler) dispatch(events ...hid.ProcessedEvent) {
	sink := *s.sink.Load()
	for _, e := range events {
		sink.Dispatch(e)
	}
}

func (s *Scheduler) applyEmergency(now time.Time) {
	s.mouse.Bypass(true)
	s.dispatch(s.keyboard.Bypass(true, now)...)

	s.mu.Lock()
	s.bypassed = true
	s.mu.Unlock()

	log.Warn("emergency stop engaged, pipelines bypassed", logger.Warning)
}

func (s *Scheduler) applySnapshot(snapshot profile.Snapshot) {
	// the keyboard is the only pipeline that can reject, configure it first
	// so a rejected snapshot is never applied half-way
	if err := s.keyboard.Configure(snapshot); err != nil {
		log.Warn("rejected profile swap, keeping previous configuration",
			zap.Error(err), zap.String("profile", snapshot.Name), logger.Warning)
		return
	}
	s.mouse.Configure(snapshot.Dpi, snapshot.Smoothing, snapshot.AngleSnap)

	s.mu.Lock()
	s.current = snapshot
	s.mouseState.adaptive = snapshot.Polling.Adaptive
	s.kbdState.adaptive = snapshot.Polling.Adaptive
	s.mouseState.interval = snapshot.Polling.MouseInterval()
	s.kbdState.interval = snapshot.Polling.KeyboardInterval()
	s.mu.Unlock()

	log.Info("profile applied", zap.String("profile", snapshot.Name),
		zap.Int("mouse_rate", snapshot.Polling.MouseRate),
		zap.Int("keyboard_rate", snapshot.Polling.KeyboardRate),
		logger.Info)
}

func (s *Scheduler) drainMouse(now time.Time, buf []hid.RawEvent) []hid.RawEvent {
	s.mu.Lock()
	s.mouseState.observeTick(now)
	limit := s.mouseState.drainCap
	s.mu.Unlock()

	buf = s.queue.PopClass(hid.MouseClass, buf[:0], limit)
	for _, e := range buf {
		s.dispatch(s.mouse.Process(e, now))
	}

	s.mu.Lock()
	s.mouseState.observeBacklog(s.queue.ClassLen(hid.MouseClass))
	s.mu.Unlock()
	return buf
}

func (s *Scheduler) drainKeyboard(now time.Time, buf []hid.RawEvent) []hid.RawEvent {
	s.mu.Lock()
	s.kbdState.observeTick(now)
	limit := s.kbdState.drainCap
	s.mu.Unlock()

	buf = s.queue.PopClass(hid.KeyboardClass, buf[:0], limit)
	for _, e := range buf {
		s.dispatch(s.keyboard.Process(e, now)...)
	}
	s.dispatch(s.keyboard.Tick(now)...)

	s.mu.Lock()
	s.kbdState.observeBacklog(s.queue.ClassLen(hid.KeyboardClass))
	s.mu.Unlock()
	return buf
}

// Run drives both tick loops until ctx is cancelled. It returns within one
// tick interval of cancellation.
func (s *Scheduler) Run(ctx context.Context) {
	s.applySnapshot(s.current)

	s.mu.Lock()
	mouseInterval := s.mouseState.interval
	kbdInterval := s.kbdState.interval
	s.mu.Unlock()

	mouseTicker := time.NewTicker(mouseInterval)
	kbdTicker := time.NewTicker(kbdInterval)
	defer mouseTicker.Stop()
	defer kbdTicker.Stop()

	buf := make([]hid.RawEvent, 0, maxDrainCap)

	log.Info("scheduler started", logger.Info)

	for {
		select {
		case <-ctx.Done():
			log.Info("scheduler stopped", logger.Info)
			return
		case <-s.emergency:
			s.applyEmergency(time.Now())
		case now := <-mouseTicker.C:
			buf = s.drainMouse(now, buf)
		case now := <-kbdTicker.C:
			buf = s.drainKeyboard(now, buf)

			if pending := s.pending.Swap(nil); pending != nil && !s.emergencySet.Load() {
				s.applySnapshot(*pending)

				s.mu.Lock()
				newMouse := s.mouseState.interval
				newKbd := s.kbdState.interval
				s.mu.Unlock()

				if newMouse != mouseInterval {
					mouseInterval = newMouse
					mouseTicker.Reset(mouseInterval)
				}
				if newKbd != kbdInterval {
					kbdInterval = newKbd
					kbdTicker.Reset(kbdInterval)
				}
			}
		}
	}
}
