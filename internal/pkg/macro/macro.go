package macro

import (
	"errors"
	"sync"
	"time"

	"github.com/holoplot/go-evdev"

	"github.com/zerolag/zerolag/internal/pkg/hid"
	"github.com/zerolag/zerolag/internal/pkg/logger"
)

var log = logger.GetLogger()

var (
	ErrRecordingActive = errors.New("a recording is already active")
	ErrNoRecording     = errors.New("no recording is active")
	ErrEmptyRecording  = errors.New("recording holds no events")
)

// each recording is bounded, events past the limit are dropped and counted
const maxEvents = 10000

// Event is one captured input action, stored with its offset from the
// recording start so playback is independent of wall-clock time.
type Event struct {
	Offset  time.Duration
	Kind    hid.EventKind
	Code    evdev.EvCode
	Pressed bool
	DX, DY  float64
}

type Recording struct {
	Name      string
	CreatedAt time.Time
	Duration  time.Duration
	Events    []Event
	Dropped   uint64
}

// Recorder captures processed events into a named recording. It implements
// hid.Sink so it can sit directly on the scheduler's output, events arriving
// while no recording is active are ignored.
type Recorder struct {
	mu      sync.Mutex
	active  bool
	name    string
	start   time.Time
	events  []Event
	dropped uint64
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Start(name string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active {
		return ErrRecordingActive
	}
	r.active = true
	r.name = name
	r.start = now
	r.events = r.events[:0]
	r.dropped = 0
	log.Info("macro recording started", logger.Info)
	return nil
}

func (r *Recorder) Stop(now time.Time) (Recording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return Recording{}, ErrNoRecording
	}
	r.active = false
	rec := Recording{
		Name:      r.name,
		CreatedAt: r.start,
		Duration:  now.Sub(r.start),
		Events:    append([]Event(nil), r.events...),
		Dropped:   r.dropped,
	}
	log.Info("macro recording stopped", logger.Info)
	return rec, nil
}

func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

func (r *Recorder) Dispatch(e hid.ProcessedEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return
	}
	if len(r.events) >= maxEvents {
		r.dropped++
		return
	}
	offset := e.Time.Sub(r.start)
	if offset < 0 {
		offset = 0
	}
	r.events = append(r.events, Event{
		Offset:  offset,
		Kind:    e.Kind,
		Code:    e.Code,
		Pressed: e.Pressed,
		DX:      e.DX,
		DY:      e.DY,
	})
}
