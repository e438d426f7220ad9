package bench

import (
	"testing"
	"time"

	"github.com/holoplot/go-evdev"
	"github.com/stretchr/testify/assert"

	"github.com/zerolag/zerolag/internal/pkg/hid"
)

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func moveEvent(dx, dy float64, offset time.Duration) hid.ProcessedEvent {
	return hid.ProcessedEvent{Kind: hid.MouseMove, Time: base.Add(offset), DX: dx, DY: dy}
}

func clickEvent(offset time.Duration) hid.ProcessedEvent {
	return hid.ProcessedEvent{Kind: hid.MouseButton, Time: base.Add(offset), Pressed: true}
}

func pressEvent(code evdev.EvCode, offset time.Duration) hid.ProcessedEvent {
	return hid.ProcessedEvent{Kind: hid.KeyTransition, Time: base.Add(offset), Code: code, Pressed: true}
}

func TestAimScoreDeterministic(t *testing.T) {
	e := NewEngine()
	h, err := e.StartAim(AimConfig{
		Targets: []Target{
			{X: 100, Y: 0, Size: 50, Appeared: base},
		},
	}, base)
	assert.Equal(t, nil, err)

	// move the cursor onto the target and click half a second in
	e.Dispatch(moveEvent(100, 0, 100*time.Millisecond))
	e.Dispatch(clickEvent(500 * time.Millisecond))

	m, err := e.Finish(h, base.Add(time.Second))
	assert.Equal(t, nil, err)

	// perfect accuracy and centering, 0.5s reaction:
	// 0.6*100 + 0.3*100 + 0.1*(100 - 0.5*20) = 99
	assert.Equal(t, 1.0, m.Accuracy)
	assert.Equal(t, 1.0, m.Speed)
	assert.InDelta(t, 0.5, m.ReactionTime, 0.0001)
	assert.InDelta(t, 99.0, m.Score, 0.0001)
	assert.Equal(t, "S+ (Elite)", m.Rank)
}

func TestAimMissesCountAgainstAccuracy(t *testing.T) {
	e := NewEngine()
	h, _ := e.StartAim(AimConfig{
		Targets: []Target{
			{X: 100, Y: 0, Size: 50, Appeared: base},
		},
	}, base)

	// click far away, then on target
	e.Dispatch(clickEvent(100 * time.Millisecond))
	e.Dispatch(moveEvent(100, 0, 200*time.Millisecond))
	e.Dispatch(clickEvent(300 * time.Millisecond))

	m, _ := e.Finish(h, base.Add(time.Second))
	assert.Equal(t, 0.5, m.Accuracy)
	assert.Equal(t, 2, m.Attempts)
	assert.Equal(t, 1, m.Errors)
}

func TestKeySpeedScore(t *testing.T) {
	e := NewEngine()
	h, err := e.StartKeySpeed(KeySpeedConfig{
		Sequence: []evdev.EvCode{evdev.KEY_A, evdev.KEY_B},
	}, base)
	assert.Equal(t, nil, err)

	for i := 0; i < 4; i++ {
		code := evdev.EvCode(evdev.KEY_A)
		if i%2 == 1 {
			code = evdev.KEY_B
		}
		e.Dispatch(pressEvent(code, time.Duration(i*100)*time.Millisecond))
	}

	m, err := e.Finish(h, base.Add(time.Second))
	assert.Equal(t, nil, err)

	// 4 correct keys in 1s: 0.7*40 + 0.3*100 = 58
	assert.Equal(t, 1.0, m.Accuracy)
	assert.InDelta(t, 4.0, m.Speed, 0.0001)
	assert.InDelta(t, 58.0, m.Score, 0.0001)
	assert.Equal(t, "D (Below Average)", m.Rank)
}

func TestKeySpeedWrongKeysHurtAccuracy(t *testing.T) {
	e := NewEngine()
	h, _ := e.StartKeySpeed(KeySpeedConfig{
		Sequence: []evdev.EvCode{evdev.KEY_A},
	}, base)

	e.Dispatch(pressEvent(evdev.KEY_A, 100*time.Millisecond))
	e.Dispatch(pressEvent(evdev.KEY_Z, 200*time.Millisecond))

	m, _ := e.Finish(h, base.Add(time.Second))
	assert.Equal(t, 0.5, m.Accuracy)
	assert.Equal(t, 1, m.Errors)
}

func TestReactionScore(t *testing.T) {
	e := NewEngine()
	h, err := e.StartReaction(ReactionConfig{
		Stimuli:     []time.Time{base, base.Add(2 * time.Second)},
		MaxReaction: 5 * time.Second,
	}, base)
	assert.Equal(t, nil, err)

	e.Dispatch(pressEvent(evdev.KEY_SPACE, 200*time.Millisecond))
	e.Dispatch(pressEvent(evdev.KEY_SPACE, 2200*time.Millisecond))

	m, err := e.Finish(h, base.Add(3*time.Second))
	assert.Equal(t, nil, err)

	// both reactions are exactly 0.2s, perfect consistency:
	// min(100, (100 - 0.2*50) + 1.0*0.2) = 90.2
	assert.InDelta(t, 0.2, m.ReactionTime, 0.0001)
	assert.InDelta(t, 90.2, m.Score, 0.0001)
	assert.Equal(t, "S (Excellent)", m.Rank)
}

func TestReactionFalseStartCounted(t *testing.T) {
	e := NewEngine()
	h, _ := e.StartReaction(ReactionConfig{
		Stimuli: []time.Time{base.Add(time.Second)},
	}, base)

	e.Dispatch(pressEvent(evdev.KEY_SPACE, 500*time.Millisecond))
	e.Dispatch(pressEvent(evdev.KEY_SPACE, 1300*time.Millisecond))

	m, _ := e.Finish(h, base.Add(2*time.Second))
	assert.Equal(t, 1, m.Errors)
	assert.InDelta(t, 0.3, m.ReactionTime, 0.0001)
}

func TestEngineSingleSession(t *testing.T) {
	e := NewEngine()
	_, err := e.StartAim(AimConfig{}, base)
	assert.Equal(t, nil, err)

	_, err = e.StartKeySpeed(KeySpeedConfig{}, base)
	assert.ErrorIs(t, err, ErrSessionActive)
}

func TestRankBands(t *testing.T) {
	assert.Equal(t, "S+ (Elite)", Rank(95))
	assert.Equal(t, "S (Excellent)", Rank(90))
	assert.Equal(t, "A (Very Good)", Rank(80))
	assert.Equal(t, "B (Good)", Rank(70))
	assert.Equal(t, "C (Average)", Rank(60))
	assert.Equal(t, "D (Below Average)", Rank(50))
	assert.Equal(t, "F (Needs Improvement)", Rank(49.9))
}

func TestSummarizeTrend(t *testing.T) {
	history := []Metrics{
		{Type: KeySpeed, Score: 50},
		{Type: KeySpeed, Score: 60},
		{Type: KeySpeed, Score: 70},
		{Type: AimAccuracy, Score: 99},
	}

	s := Summarize(history, KeySpeed)
	assert.Equal(t, 3, s.Count)
	assert.Equal(t, 70.0, s.Best)
	assert.Equal(t, 50.0, s.Worst)
	assert.InDelta(t, 60.0, s.Average, 0.0001)
	assert.InDelta(t, 10.0, s.Trend, 0.0001)
}
