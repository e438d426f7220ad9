package hotkeys

import (
	"fmt"
	"sync"

	"github.com/holoplot/go-evdev"

	"github.com/zerolag/zerolag/internal/pkg/hid"
	"github.com/zerolag/zerolag/internal/pkg/logger"
)

var log = logger.GetLogger()

type Action int

const (
	CycleProfile Action = iota
	DpiUp
	DpiDown
	EmergencyStop
	ToggleRecording
	PlayMacro
)

func (a Action) String() string {
	switch a {
	case CycleProfile:
		return "cycle-profile"
	case DpiUp:
		return "dpi-up"
	case DpiDown:
		return "dpi-down"
	case EmergencyStop:
		return "emergency-stop"
	case ToggleRecording:
		return "toggle-recording"
	case PlayMacro:
		return "play-macro"
	default:
		return "unknown"
	}
}

// Binding ties a key chord to an action. The chord fires on the press edge of
// Key while every modifier is held.
type Binding struct {
	Modifiers []evdev.EvCode
	Key       evdev.EvCode
	Action    Action
}

func (b Binding) String() string {
	s := ""
	for _, m := range b.Modifiers {
		s += evdev.KEYToString[m] + "+"
	}
	return s + evdev.KEYToString[b.Key]
}

// Detector watches the processed key stream for registered chords and hands
// matched actions to a single handler. It implements hid.Sink so it attaches
// to the scheduler output next to the other consumers. Synthetic events are
// ignored, macro playback can never trigger a hotkey.
type Detector struct {
	handler func(Action)

	mu       sync.Mutex
	bindings []Binding
	held     map[evdev.EvCode]bool
}

func NewDetector(handler func(Action)) *Detector {
	return &Detector{
		handler: handler,
		held:    make(map[evdev.EvCode]bool, 8),
	}
}

// Register adds a binding. A chord already taken by another action is
// rejected.
func (d *Detector) Register(b Binding) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, existing := range d.bindings {
		if existing.Key == b.Key && sameModifiers(existing.Modifiers, b.Modifiers) {
			return fmt.Errorf("chord %s already bound to %s", b, existing.Action)
		}
	}
	d.bindings = append(d.bindings, b)
	log.Info(fmt.Sprintf("hotkey registered: %s -> %s", b, b.Action), logger.Debug)
	return nil
}

func sameModifiers(a, b []evdev.EvCode) bool {
	if len(a) != len(b) {
		return false
	}
	for _, m := range a {
		found := false
		for _, n := range b {
			if m == n {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (d *Detector) Dispatch(e hid.ProcessedEvent) {
	if e.Kind != hid.KeyTransition || e.Synthetic {
		return
	}

	d.mu.Lock()
	if !e.Pressed {
		delete(d.held, e.Code)
		d.mu.Unlock()
		return
	}
	var matched *Binding
	for i := range d.bindings {
		b := &d.bindings[i]
		if b.Key != e.Code {
			continue
		}
		if d.allHeld(b.Modifiers) {
			matched = b
			break
		}
	}
	d.held[e.Code] = true
	d.mu.Unlock()

	if matched != nil {
		log.Info(fmt.Sprintf("hotkey fired: %s -> %s", matched, matched.Action), logger.Info)
		d.handler(matched.Action)
	}
}

func (d *Detector) allHeld(modifiers []evdev.EvCode) bool {
	for _, m := range modifiers {
		if !d.held[m] {
			return false
		}
	}
	return true
}
