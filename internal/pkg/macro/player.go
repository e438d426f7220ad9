package macro

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/zerolag/zerolag/internal/pkg/hid"
	"github.com/zerolag/zerolag/internal/pkg/logger"
)

var ErrPlaybackActive = errors.New("playback is already running")

const (
	minSpeed = 0.1
	maxSpeed = 10.0
)

type PlayOptions struct {
	// Speed scales playback timing, [0.1, 10.0]. 0 means 1.0.
	Speed float64
	// Repeat plays the whole recording this many times. 0 means once.
	Repeat int
}

// Player replays a recording into a sink, honoring the recorded offsets. One
// playback at a time, events come out flagged synthetic.
type Player struct {
	sink    hid.Sink
	playing atomic.Bool
}

func NewPlayer(sink hid.Sink) *Player {
	return &Player{sink: sink}
}

func (p *Player) Playing() bool {
	return p.playing.Load()
}

// Play blocks until the recording finished or ctx was cancelled.
func (p *Player) Play(ctx context.Context, rec Recording, opts PlayOptions) error {
	if len(rec.Events) == 0 {
		return ErrEmptyRecording
	}
	speed := opts.Speed
	if speed == 0 {
		speed = 1.0
	}
	if speed < minSpeed || speed > maxSpeed {
		return fmt.Errorf("speed %.2f outside [%.1f, %.1f]", speed, minSpeed, maxSpeed)
	}
	repeat := opts.Repeat
	if repeat <= 0 {
		repeat = 1
	}

	if p.playing.Swap(true) {
		return ErrPlaybackActive
	}
	defer p.playing.Store(false)

	log.Info(fmt.Sprintf("macro playback started (%d events, %dx, speed %.1f)",
		len(rec.Events), repeat, speed), logger.Info)

	timer := time.NewTimer(0)
	defer timer.Stop()
	if !timer.Stop() {
		<-timer.C
	}

	for run := 0; run < repeat; run++ {
		start := time.Now()
		var elapsed time.Duration
		for _, e := range rec.Events {
			due := time.Duration(float64(e.Offset) / speed)
			if wait := due - elapsed; wait > 0 {
				timer.Reset(wait)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-timer.C:
				}
			}
			now := time.Now()
			elapsed = now.Sub(start)
			p.sink.Dispatch(hid.ProcessedEvent{
				Kind:      e.Kind,
				Time:      now,
				DX:        e.DX,
				DY:        e.DY,
				Code:      e.Code,
				Pressed:   e.Pressed,
				Synthetic: true,
			})
		}
	}

	log.Info("macro playback finished", logger.Info)
	return nil
}
