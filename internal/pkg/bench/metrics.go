package bench

import "time"

type TestType string

const (
	AimAccuracy  TestType = "aim_accuracy"
	KeySpeed     TestType = "key_speed"
	ReactionTime TestType = "reaction_time"
)

// Metrics is the outcome of a finished benchmark session. Accuracy and Speed
// are normalized to [0, 1], ReactionTime is seconds, Score is 0-100.
type Metrics struct {
	Type     TestType
	Started  time.Time
	Finished time.Time
	Duration time.Duration

	Accuracy     float64
	Speed        float64
	ReactionTime float64
	Attempts     int
	Errors       int

	Score float64
	Rank  string
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// aimScore weighs accuracy 60%, speed 30% and reaction time 10%. Reaction
// contributes 100 points at 0s falling off by 20 points per second.
func aimScore(accuracy, speed, reactionTime float64) float64 {
	accuracyScore := clamp(accuracy*100, 0, 100)
	speedScore := clamp(speed*100, 0, 100)
	reactionScore := clamp(100-reactionTime*20, 0, 100)
	return accuracyScore*0.6 + speedScore*0.3 + reactionScore*0.1
}

// keySpeedScore weighs speed 70% and accuracy 30%. Ten correct keys per
// second scores the full 100 speed points.
func keySpeedScore(keysPerSecond, accuracy float64) float64 {
	speedScore := clamp(keysPerSecond*10, 0, 100)
	accuracyScore := clamp(accuracy*100, 0, 100)
	return speedScore*0.7 + accuracyScore*0.3
}

// reactionScore starts from 100 points falling off by 50 per second, plus a
// small bonus for consistent response times. consistency is [0, 1].
func reactionScore(reactionTime, consistency float64) float64 {
	base := clamp(100-reactionTime*50, 0, 100)
	return clamp(base+consistency*0.2, 0, 100)
}

func Rank(score float64) string {
	switch {
	case score >= 95:
		return "S+ (Elite)"
	case score >= 90:
		return "S (Excellent)"
	case score >= 80:
		return "A (Very Good)"
	case score >= 70:
		return "B (Good)"
	case score >= 60:
		return "C (Average)"
	case score >= 50:
		return "D (Below Average)"
	default:
		return "F (Needs Improvement)"
	}
}
