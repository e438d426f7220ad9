package bench

import (
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type archivedResult struct {
	Type         string    `yaml:"test_type"`
	Started      time.Time `yaml:"started"`
	Finished     time.Time `yaml:"finished"`
	DurationSec  float64   `yaml:"duration_sec"`
	Accuracy     float64   `yaml:"accuracy"`
	Speed        float64   `yaml:"speed"`
	ReactionTime float64   `yaml:"reaction_time"`
	Attempts     int       `yaml:"attempts"`
	Errors       int       `yaml:"errors"`
	Score        float64   `yaml:"score"`
	Rank         string    `yaml:"rank"`
}

type archive struct {
	Exported time.Time        `yaml:"exported"`
	Results  []archivedResult `yaml:"results"`
}

// Export writes the history to a YAML file for the outer layer to display.
func Export(path string, history []Metrics, now time.Time) error {
	a := archive{Exported: now}
	for _, m := range history {
		a.Results = append(a.Results, archivedResult{
			Type:         string(m.Type),
			Started:      m.Started,
			Finished:     m.Finished,
			DurationSec:  m.Duration.Seconds(),
			Accuracy:     m.Accuracy,
			Speed:        m.Speed,
			ReactionTime: m.ReactionTime,
			Attempts:     m.Attempts,
			Errors:       m.Errors,
			Score:        m.Score,
			Rank:         m.Rank,
		})
	}

	data, err := yaml.Marshal(&a)
	if err != nil {
		return fmt.Errorf("cannot marshal benchmark history: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("cannot write benchmark history: %w", err)
	}
	return nil
}

// Summary aggregates the history of one test type.
type Summary struct {
	Count   int
	Best    float64
	Worst   float64
	Average float64
	// Trend is the least-squares slope of score over session index, positive
	// means improving.
	Trend float64
}

func Summarize(history []Metrics, t TestType) Summary {
	var scores []float64
	for _, m := range history {
		if m.Type == t {
			scores = append(scores, m.Score)
		}
	}

	s := Summary{Count: len(scores)}
	if len(scores) == 0 {
		return s
	}

	s.Best = scores[0]
	s.Worst = scores[0]
	var sum float64
	for _, v := range scores {
		sum += v
		s.Best = math.Max(s.Best, v)
		s.Worst = math.Min(s.Worst, v)
	}
	s.Average = sum / float64(len(scores))

	if n := float64(len(scores)); n > 1 {
		var sumX, sumXY float64
		for i, v := range scores {
			sumX += float64(i)
			sumXY += float64(i) * v
		}
		sumX2 := (n - 1) * n * (2*n - 1) / 6
		s.Trend = (n*sumXY - sumX*sum) / (n*sumX2 - sumX*sumX)
	}
	return s
}
