package macro

import (
	"fmt"
	"os"
	"time"

	"github.com/holoplot/go-evdev"
	"gopkg.in/yaml.v3"

	"github.com/zerolag/zerolag/internal/pkg/hid"
)

type storedEvent struct {
	OffsetMs float64 `yaml:"offset_ms"`
	Kind     string  `yaml:"kind"`
	Key      string  `yaml:"key,omitempty"`
	Pressed  bool    `yaml:"pressed,omitempty"`
	DX       float64 `yaml:"dx,omitempty"`
	DY       float64 `yaml:"dy,omitempty"`
}

type storedRecording struct {
	Name        string        `yaml:"name"`
	CreatedAt   time.Time     `yaml:"created_at"`
	DurationSec float64       `yaml:"duration_sec"`
	Events      []storedEvent `yaml:"events"`
}

func kindName(k hid.EventKind) string {
	switch k {
	case hid.MouseMove:
		return "mouse_move"
	case hid.MouseButton:
		return "mouse_button"
	default:
		return "key"
	}
}

func kindFromName(s string) (hid.EventKind, error) {
	switch s {
	case "mouse_move":
		return hid.MouseMove, nil
	case "mouse_button":
		return hid.MouseButton, nil
	case "key":
		return hid.KeyTransition, nil
	default:
		return 0, fmt.Errorf("unknown event kind %q", s)
	}
}

// Save writes a recording to a YAML file.
func Save(path string, rec Recording) error {
	s := storedRecording{
		Name:        rec.Name,
		CreatedAt:   rec.CreatedAt,
		DurationSec: rec.Duration.Seconds(),
	}
	for _, e := range rec.Events {
		se := storedEvent{
			OffsetMs: float64(e.Offset) / float64(time.Millisecond),
			Kind:     kindName(e.Kind),
		}
		if e.Kind == hid.MouseMove {
			se.DX, se.DY = e.DX, e.DY
		} else {
			se.Key = evdev.KEYToString[e.Code]
			se.Pressed = e.Pressed
		}
		s.Events = append(s.Events, se)
	}

	data, err := yaml.Marshal(&s)
	if err != nil {
		return fmt.Errorf("cannot marshal macro %q: %w", rec.Name, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("cannot write macro %q: %w", rec.Name, err)
	}
	return nil
}

// Load reads a recording back from a YAML file.
func Load(path string) (Recording, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Recording{}, fmt.Errorf("cannot read macro file: %w", err)
	}
	var s storedRecording
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Recording{}, fmt.Errorf("cannot parse macro file: %w", err)
	}

	rec := Recording{
		Name:      s.Name,
		CreatedAt: s.CreatedAt,
		Duration:  time.Duration(s.DurationSec * float64(time.Second)),
	}
	for _, se := range s.Events {
		kind, err := kindFromName(se.Kind)
		if err != nil {
			return Recording{}, err
		}
		e := Event{
			Offset: time.Duration(se.OffsetMs * float64(time.Millisecond)),
			Kind:   kind,
		}
		if kind == hid.MouseMove {
			e.DX, e.DY = se.DX, se.DY
		} else {
			code, ok := evdev.KEYFromString[se.Key]
			if !ok {
				return Recording{}, fmt.Errorf("unknown key %q in macro file", se.Key)
			}
			e.Code = code
			e.Pressed = se.Pressed
		}
		rec.Events = append(rec.Events, e)
	}
	return rec, nil
}
