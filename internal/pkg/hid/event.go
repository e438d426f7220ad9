package hid

import (
	"fmt"
	"time"

	"github.com/holoplot/go-evdev"
)

type DeviceClass int

const (
	UnknownClass DeviceClass = iota
	MouseClass
	KeyboardClass
)

func (c DeviceClass) String() string {
	switch c {
	case MouseClass:
		return "Mouse"
	case KeyboardClass:
		return "Keyboard"
	default:
		return "Unknown"
	}
}

type EventKind uint8

const (
	MouseMove EventKind = iota
	MouseButton
	KeyTransition
)

// RawEvent is a single hardware input event as delivered by the capture
// layer. It is immutable once created, ownership passes to the queue on Push.
type RawEvent struct {
	Kind EventKind
	Time time.Time

	// MouseMove
	DX, DY float64

	// MouseButton / KeyTransition
	Code    evdev.EvCode
	Pressed bool
}

func (e RawEvent) Class() DeviceClass {
	switch e.Kind {
	case MouseMove, MouseButton:
		return MouseClass
	case KeyTransition:
		return KeyboardClass
	default:
		return UnknownClass
	}
}

func (e RawEvent) String() string {
	switch e.Kind {
	case MouseMove:
		return fmt.Sprintf("MouseMove (%.2f, %.2f)", e.DX, e.DY)
	case MouseButton:
		return fmt.Sprintf("MouseButton %s (pressed: %v)", evdev.KEYToString[e.Code], e.Pressed)
	case KeyTransition:
		return fmt.Sprintf("Key %s (pressed: %v)", evdev.KEYToString[e.Code], e.Pressed)
	default:
		return "Unknown"
	}
}

// ProcessedEvent is the pipeline output, carrying the original event
// timestamp alongside the transformed payload and the processing latency.
// It feeds both the output sink and the benchmark engine.
type ProcessedEvent struct {
	Kind EventKind
	Time time.Time

	DX, DY  float64
	Code    evdev.EvCode
	Pressed bool

	// Synthetic marks events generated by the pipeline itself (turbo repeats),
	// not present in the raw stream.
	Synthetic bool

	Latency time.Duration
}

func (e ProcessedEvent) Class() DeviceClass {
	switch e.Kind {
	case MouseMove, MouseButton:
		return MouseClass
	default:
		return KeyboardClass
	}
}

func (e ProcessedEvent) String() string {
	switch e.Kind {
	case MouseMove:
		return fmt.Sprintf("Move (%.2f, %.2f) (latency: %s)", e.DX, e.DY, e.Latency)
	case MouseButton:
		return fmt.Sprintf("Button %s (pressed: %v)", evdev.KEYToString[e.Code], e.Pressed)
	default:
		return fmt.Sprintf("Key %s (pressed: %v, synthetic: %v)", evdev.KEYToString[e.Code], e.Pressed, e.Synthetic)
	}
}

// Sink receives processed events from the scheduler. Implemented externally
// as OS-level injection, or by the benchmark engine during a test.
type Sink interface {
	Dispatch(ProcessedEvent)
}

// SinkFunc adapts a plain function to the Sink interface.
type SinkFunc func(ProcessedEvent)

func (f SinkFunc) Dispatch(e ProcessedEvent) { f(e) }
