package capture

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/holoplot/go-evdev"
	"go.uber.org/zap"

	"github.com/zerolag/zerolag/internal/pkg/hid"
	"github.com/zerolag/zerolag/internal/pkg/logger"
)

var log = logger.GetLogger()

const reopenDelay = time.Second

// Classify inspects a device's capability bits and decides which pipeline
// its events belong to. Relative axes mark a mouse. Plenty of non-keyboards
// (power buttons, lid switches) expose EV_KEY, but only real keyboards also
// report EV_REP, so that combination marks a keyboard. Everything else is
// ignored.
func Classify(types []evdev.EvType) hid.DeviceClass {
	var hasKey, hasRep bool
	for _, t := range types {
		switch t {
		case evdev.EV_REL:
			return hid.MouseClass
		case evdev.EV_KEY:
			hasKey = true
		case evdev.EV_REP:
			hasRep = true
		}
	}
	if hasKey && hasRep {
		return hid.KeyboardClass
	}
	return hid.UnknownClass
}

// Device reads one evdev handler and pushes raw events into the shared
// queue. The read loop never blocks on the queue, overflow is the queue's
// problem and shows up in its loss counter.
type Device struct {
	path  string
	class hid.DeviceClass
	grab  bool
	queue *hid.Queue

	disconnected chan struct{}
}

func NewDevice(path string, class hid.DeviceClass, grab bool, queue *hid.Queue) *Device {
	return &Device{
		path:         path,
		class:        class,
		grab:         grab,
		queue:        queue,
		disconnected: make(chan struct{}, 1),
	}
}

func (d *Device) Class() hid.DeviceClass { return d.class }
func (d *Device) Path() string           { return d.path }

// Disconnected signals each time the device goes away. Processing state is
// untouched, reading resumes when the device comes back.
func (d *Device) Disconnected() <-chan struct{} { return d.disconnected }

// Run keeps the device open and reading until ctx is cancelled, reopening
// after disconnects.
func (d *Device) Run(ctx context.Context) {
	for {
		err := d.readAll(ctx)
		if ctx.Err() != nil {
			return
		}
		log.Info(fmt.Sprintf("device lost: %v", err),
			zap.String("device_path", d.path),
			zap.String("device_class", d.class.String()),
			logger.Warning)

		select {
		case d.disconnected <- struct{}{}:
		default:
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(reopenDelay):
		}
	}
}

func (d *Device) readAll(ctx context.Context) error {
	dev, err := evdev.Open(d.path)
	if err != nil {
		return fmt.Errorf("opening handler failed: %w", err)
	}

	// the watcher is the only closer: it unblocks ReadOne on cancellation and
	// exits together with this call, so reconnects never pile up goroutines
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		_ = dev.Close()
	}()

	name, _ := dev.Name()
	if d.grab {
		_ = dev.Grab()
		log.Info("Grabbing device for exclusive usage",
			zap.String("device_path", d.path), zap.String("device_name", name), logger.Debug)
	}
	log.Info("Reading input events",
		zap.String("device_path", d.path), zap.String("device_name", name), logger.Debug)

	defer func() {
		if d.grab && ctx.Err() == nil {
			_ = dev.Ungrab()
		}
		close(done)
	}()

	var dx, dy float64
	for {
		event, err := dev.ReadOne()
		if err != nil {
			return err
		}

		t := time.Unix(event.Time.Sec, int64(event.Time.Usec)*1000)

		switch event.Type {
		case evdev.EV_REL:
			switch event.Code {
			case evdev.REL_X:
				dx += float64(event.Value)
			case evdev.REL_Y:
				dy += float64(event.Value)
			}
		case evdev.EV_SYN:
			// motion is accumulated across one hardware report and pushed as
			// a single delta
			if event.Code == evdev.SYN_REPORT && (dx != 0 || dy != 0) {
				d.push(hid.RawEvent{Kind: hid.MouseMove, Time: t, DX: dx, DY: dy})
				dx, dy = 0, 0
			}
		case evdev.EV_KEY:
			if event.Value == 2 { // repeat
				continue
			}
			kind := hid.KeyTransition
			if event.Code >= evdev.BTN_MOUSE && event.Code < evdev.BTN_JOYSTICK {
				kind = hid.MouseButton
			}
			d.push(hid.RawEvent{
				Kind:    kind,
				Time:    t,
				Code:    event.Code,
				Pressed: event.Value == 1,
			})
		}
	}
}

func (d *Device) push(e hid.RawEvent) {
	if err := d.queue.Push(e); err != nil {
		// DropNewest overflow, already counted by the queue
		return
	}
}

const inputDir = "/dev/input"

// Discover scans /dev/input and returns a capture Device for every mouse or
// keyboard handler found.
func Discover(grab bool, queue *hid.Queue) ([]*Device, error) {
	entries, err := os.ReadDir(inputDir)
	if err != nil {
		return nil, fmt.Errorf("listing input devices failed: %w", err)
	}

	var devices []*Device
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), "event") {
			continue
		}
		path := filepath.Join(inputDir, entry.Name())

		dev, err := evdev.OpenWithFlags(path, os.O_RDONLY)
		if err != nil {
			log.Info(fmt.Sprintf("cannot open %s: %v", path, err), logger.Debug)
			continue
		}
		class := Classify(dev.CapableTypes())
		name, _ := dev.Name()
		_ = dev.Close()

		if class == hid.UnknownClass {
			continue
		}
		log.Info("input device found",
			zap.String("device_path", path),
			zap.String("device_name", name),
			zap.String("device_class", class.String()),
			logger.Info)
		devices = append(devices, NewDevice(path, class, grab, queue))
	}
	return devices, nil
}
