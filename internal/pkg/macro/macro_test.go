package macro

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/holoplot/go-evdev"
	"github.com/stretchr/testify/assert"

	"github.com/zerolag/zerolag/internal/pkg/hid"
)

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func keyEvent(code evdev.EvCode, pressed bool, offset time.Duration) hid.ProcessedEvent {
	return hid.ProcessedEvent{Kind: hid.KeyTransition, Time: base.Add(offset), Code: code, Pressed: pressed}
}

func TestRecorderCapturesWithOffsets(t *testing.T) {
	r := NewRecorder()

	// nothing is captured before Start
	r.Dispatch(keyEvent(evdev.KEY_A, true, 0))

	assert.Equal(t, nil, r.Start("spray", base))
	assert.True(t, r.Recording())

	r.Dispatch(keyEvent(evdev.KEY_A, true, 10*time.Millisecond))
	r.Dispatch(keyEvent(evdev.KEY_A, false, 50*time.Millisecond))
	r.Dispatch(hid.ProcessedEvent{Kind: hid.MouseMove, Time: base.Add(60 * time.Millisecond), DX: 3, DY: -2})

	rec, err := r.Stop(base.Add(100 * time.Millisecond))
	assert.Equal(t, nil, err)
	assert.False(t, r.Recording())

	assert.Equal(t, "spray", rec.Name)
	assert.Equal(t, 100*time.Millisecond, rec.Duration)
	assert.Equal(t, 3, len(rec.Events))
	assert.Equal(t, 10*time.Millisecond, rec.Events[0].Offset)
	assert.True(t, rec.Events[0].Pressed)
	assert.Equal(t, 50*time.Millisecond, rec.Events[1].Offset)
	assert.False(t, rec.Events[1].Pressed)
	assert.Equal(t, hid.MouseMove, rec.Events[2].Kind)
	assert.Equal(t, 3.0, rec.Events[2].DX)
}

func TestRecorderSingleActiveRecording(t *testing.T) {
	r := NewRecorder()
	assert.Equal(t, nil, r.Start("one", base))
	assert.ErrorIs(t, r.Start("two", base), ErrRecordingActive)

	_, err := r.Stop(base)
	assert.Equal(t, nil, err)
	_, err = r.Stop(base)
	assert.ErrorIs(t, err, ErrNoRecording)
}

func TestPlayerReplaysInOrder(t *testing.T) {
	rec := Recording{
		Name: "burst",
		Events: []Event{
			{Offset: 0, Kind: hid.KeyTransition, Code: evdev.KEY_A, Pressed: true},
			{Offset: time.Millisecond, Kind: hid.KeyTransition, Code: evdev.KEY_A, Pressed: false},
			{Offset: 2 * time.Millisecond, Kind: hid.MouseMove, DX: 5},
		},
	}

	var out []hid.ProcessedEvent
	p := NewPlayer(hid.SinkFunc(func(e hid.ProcessedEvent) { out = append(out, e) }))

	assert.Equal(t, nil, p.Play(context.Background(), rec, PlayOptions{Speed: 10, Repeat: 2}))
	assert.False(t, p.Playing())

	assert.Equal(t, 6, len(out))
	assert.Equal(t, evdev.EvCode(evdev.KEY_A), out[0].Code)
	assert.True(t, out[0].Pressed)
	assert.True(t, out[0].Synthetic)
	assert.False(t, out[1].Pressed)
	assert.Equal(t, hid.MouseMove, out[2].Kind)
	assert.Equal(t, 5.0, out[2].DX)
	assert.Equal(t, evdev.EvCode(evdev.KEY_A), out[3].Code)
}

func TestPlayerRejectsEmptyAndBadSpeed(t *testing.T) {
	p := NewPlayer(hid.SinkFunc(func(hid.ProcessedEvent) {}))

	assert.ErrorIs(t, p.Play(context.Background(), Recording{}, PlayOptions{}), ErrEmptyRecording)

	rec := Recording{Events: []Event{{Kind: hid.KeyTransition, Code: evdev.KEY_A, Pressed: true}}}
	assert.NotEqual(t, nil, p.Play(context.Background(), rec, PlayOptions{Speed: 50}))
}

func TestPlayerStopsOnCancel(t *testing.T) {
	rec := Recording{
		Events: []Event{
			{Offset: 0, Kind: hid.KeyTransition, Code: evdev.KEY_A, Pressed: true},
			{Offset: 10 * time.Second, Kind: hid.KeyTransition, Code: evdev.KEY_A, Pressed: false},
		},
	}
	p := NewPlayer(hid.SinkFunc(func(hid.ProcessedEvent) {}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Play(ctx, rec, PlayOptions{}), context.DeadlineExceeded)
}

func TestStorageRoundTrip(t *testing.T) {
	rec := Recording{
		Name:      "strafe",
		CreatedAt: base,
		Duration:  250 * time.Millisecond,
		Events: []Event{
			{Offset: 0, Kind: hid.KeyTransition, Code: evdev.KEY_A, Pressed: true},
			{Offset: 100 * time.Millisecond, Kind: hid.MouseMove, DX: 12, DY: -4},
			{Offset: 200 * time.Millisecond, Kind: hid.KeyTransition, Code: evdev.KEY_A, Pressed: false},
		},
	}

	path := filepath.Join(t.TempDir(), "strafe.yaml")
	assert.Equal(t, nil, Save(path, rec))

	loaded, err := Load(path)
	assert.Equal(t, nil, err)
	assert.Equal(t, "strafe", loaded.Name)
	assert.Equal(t, 250*time.Millisecond, loaded.Duration)
	assert.Equal(t, 3, len(loaded.Events))
	assert.Equal(t, evdev.EvCode(evdev.KEY_A), loaded.Events[0].Code)
	assert.Equal(t, 100*time.Millisecond, loaded.Events[1].Offset)
	assert.Equal(t, 12.0, loaded.Events[1].DX)
	assert.False(t, loaded.Events[2].Pressed)
}
