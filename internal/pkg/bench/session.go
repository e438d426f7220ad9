package bench

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/holoplot/go-evdev"
	"go.uber.org/zap"

	"github.com/zerolag/zerolag/internal/pkg/hid"
	"github.com/zerolag/zerolag/internal/pkg/logger"
)

var log = logger.GetLogger()

var ErrSessionActive = errors.New("benchmark session already active")

// session is a live test consuming processed events. Implementations are not
// safe for concurrent use, the engine serializes access.
type session interface {
	testType() TestType
	feed(e hid.ProcessedEvent)
	finish(now time.Time) Metrics
}

// Target is a scripted aim target. Appeared anchors the reaction
// measurement, the click must land within Size/2 of (X, Y).
type Target struct {
	X, Y     float64
	Size     float64
	Appeared time.Time
}

// AimConfig scripts an aim-accuracy session. CursorX/CursorY seed the
// tracked cursor position, moves are accumulated from processed deltas.
type AimConfig struct {
	Targets          []Target
	CursorX, CursorY float64
}

type aimSession struct {
	cfg     AimConfig
	started time.Time

	x, y float64
	next int

	hits          int
	misses        int
	totalReaction float64
	totalDistance float64
}

func (s *aimSession) testType() TestType { return AimAccuracy }

func (s *aimSession) feed(e hid.ProcessedEvent) {
	switch e.Kind {
	case hid.MouseMove:
		s.x += e.DX
		s.y += e.DY
	case hid.MouseButton:
		if !e.Pressed || s.next >= len(s.cfg.Targets) {
			return
		}
		t := s.cfg.Targets[s.next]
		distance := math.Hypot(s.x-t.X, s.y-t.Y)
		if distance <= t.Size/2 {
			s.hits++
			s.totalReaction += e.Time.Sub(t.Appeared).Seconds()
			s.totalDistance += distance
			s.next++
		} else {
			s.misses++
		}
	}
}

func (s *aimSession) finish(now time.Time) Metrics {
	attempts := s.hits + s.misses

	var accuracy float64
	if attempts > 0 {
		accuracy = float64(s.hits) / float64(attempts)
	}

	denom := float64(s.hits)
	if denom < 1 {
		denom = 1
	}
	avgReaction := s.totalReaction / denom
	avgDistance := s.totalDistance / denom

	// closer to target center reads as higher effective speed
	var speed float64
	if len(s.cfg.Targets) > 0 && s.cfg.Targets[0].Size > 0 {
		speed = math.Max(0, 1.0-avgDistance/(s.cfg.Targets[0].Size/2))
	}

	score := aimScore(accuracy, speed, avgReaction)
	return Metrics{
		Type:         AimAccuracy,
		Started:      s.started,
		Finished:     now,
		Duration:     now.Sub(s.started),
		Accuracy:     accuracy,
		Speed:        speed,
		ReactionTime: avgReaction,
		Attempts:     attempts,
		Errors:       s.misses,
		Score:        score,
		Rank:         Rank(score),
	}
}

// KeySpeedConfig scripts a key-speed session. The expected sequence wraps
// once exhausted.
type KeySpeedConfig struct {
	Sequence []evdev.EvCode
}

type keySpeedSession struct {
	cfg     KeySpeedConfig
	started time.Time

	index   int
	correct int
	total   int
}

func (s *keySpeedSession) testType() TestType { return KeySpeed }

func (s *keySpeedSession) feed(e hid.ProcessedEvent) {
	if e.Kind != hid.KeyTransition || !e.Pressed || len(s.cfg.Sequence) == 0 {
		return
	}
	s.total++
	if e.Code == s.cfg.Sequence[s.index] {
		s.correct++
		s.index = (s.index + 1) % len(s.cfg.Sequence)
	}
}

func (s *keySpeedSession) finish(now time.Time) Metrics {
	elapsed := now.Sub(s.started).Seconds()
	if elapsed < 0.1 {
		elapsed = 0.1
	}
	keysPerSecond := float64(s.correct) / elapsed

	var accuracy float64
	if s.total > 0 {
		accuracy = float64(s.correct) / float64(s.total)
	}

	score := keySpeedScore(keysPerSecond, accuracy)
	return Metrics{
		Type:     KeySpeed,
		Started:  s.started,
		Finished: now,
		Duration: now.Sub(s.started),
		Accuracy: accuracy,
		Speed:    keysPerSecond,
		Attempts: s.total,
		Errors:   s.total - s.correct,
		Score:    score,
		Rank:     Rank(score),
	}
}

// ReactionConfig scripts a reaction-time session. Stimuli are the moments a
// stimulus was shown, responses past MaxReaction are discarded as invalid.
type ReactionConfig struct {
	Stimuli     []time.Time
	MaxReaction time.Duration
}

type reactionSession struct {
	cfg     ReactionConfig
	started time.Time

	next       int
	times      []float64
	falseStart int
}

func (s *reactionSession) testType() TestType { return ReactionTime }

func (s *reactionSession) feed(e hid.ProcessedEvent) {
	pressed := (e.Kind == hid.KeyTransition || e.Kind == hid.MouseButton) && e.Pressed
	if !pressed || s.next >= len(s.cfg.Stimuli) {
		return
	}

	stimulus := s.cfg.Stimuli[s.next]
	if e.Time.Before(stimulus) {
		s.falseStart++
		return
	}

	reaction := e.Time.Sub(stimulus)
	s.next++
	if s.cfg.MaxReaction > 0 && reaction > s.cfg.MaxReaction {
		return
	}
	s.times = append(s.times, reaction.Seconds())
}

func (s *reactionSession) finish(now time.Time) Metrics {
	avg := s.cfg.MaxReaction.Seconds()
	consistency := 1.0

	if len(s.times) > 0 {
		var sum float64
		for _, t := range s.times {
			sum += t
		}
		avg = sum / float64(len(s.times))
	}
	if len(s.times) > 1 && avg > 0 {
		var variance float64
		for _, t := range s.times {
			variance += (t - avg) * (t - avg)
		}
		variance /= float64(len(s.times))
		consistency = math.Max(0, 1.0-math.Sqrt(variance)/avg)
	}

	var accuracy float64
	if len(s.cfg.Stimuli) > 0 {
		accuracy = float64(len(s.times)) / float64(len(s.cfg.Stimuli))
	}

	score := reactionScore(avg, consistency)
	return Metrics{
		Type:         ReactionTime,
		Started:      s.started,
		Finished:     now,
		Duration:     now.Sub(s.started),
		Accuracy:     accuracy,
		ReactionTime: avg,
		Attempts:     len(s.times) + s.falseStart,
		Errors:       s.falseStart,
		Score:        score,
		Rank:         Rank(score),
	}
}

// Handle identifies a started session.
type Handle int

// Engine runs one benchmark session at a time and keeps finished metrics as
// history. It implements hid.Sink so the scheduler can dispatch processed
// events straight into the active session, scores then reflect the real
// processing path.
type Engine struct {
	mu      sync.Mutex
	active  session
	handle  Handle
	history []Metrics
}

func NewEngine() *Engine {
	return &Engine{}
}

func (e *Engine) start(s session) (Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active != nil {
		return 0, fmt.Errorf("%w: %s", ErrSessionActive, e.active.testType())
	}
	e.active = s
	e.handle++
	log.Info("benchmark session started", zap.String("test", string(s.testType())), logger.Info)
	return e.handle, nil
}

func (e *Engine) StartAim(cfg AimConfig, now time.Time) (Handle, error) {
	return e.start(&aimSession{cfg: cfg, started: now, x: cfg.CursorX, y: cfg.CursorY})
}

func (e *Engine) StartKeySpeed(cfg KeySpeedConfig, now time.Time) (Handle, error) {
	return e.start(&keySpeedSession{cfg: cfg, started: now})
}

func (e *Engine) StartReaction(cfg ReactionConfig, now time.Time) (Handle, error) {
	return e.start(&reactionSession{cfg: cfg, started: now})
}

// Dispatch feeds a processed event into the active session, if any.
func (e *Engine) Dispatch(event hid.ProcessedEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active != nil {
		e.active.feed(event)
	}
}

// Finish closes the active session and returns its metrics. The metrics are
// appended to history.
func (e *Engine) Finish(h Handle, now time.Time) (Metrics, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == nil || h != e.handle {
		return Metrics{}, fmt.Errorf("no active session for handle %d", h)
	}
	m := e.active.finish(now)
	e.active = nil
	e.history = append(e.history, m)
	log.Info("benchmark session finished",
		zap.String("test", string(m.Type)),
		zap.Float64("score", m.Score),
		zap.String("rank", m.Rank),
		logger.Info)
	return m, nil
}

func (e *Engine) History() []Metrics {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Metrics, len(e.history))
	copy(out, e.history)
	return out
}
