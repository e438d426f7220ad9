package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/holoplot/go-evdev"
	"github.com/logrusorgru/aurora"

	"github.com/zerolag/zerolag/internal/pkg/bench"
	"github.com/zerolag/zerolag/internal/pkg/capture"
	"github.com/zerolag/zerolag/internal/pkg/hid"
	"github.com/zerolag/zerolag/internal/pkg/hotkeys"
	"github.com/zerolag/zerolag/internal/pkg/keyboard"
	"github.com/zerolag/zerolag/internal/pkg/logger"
	"github.com/zerolag/zerolag/internal/pkg/macro"
	"github.com/zerolag/zerolag/internal/pkg/mouse"
	"github.com/zerolag/zerolag/internal/pkg/profile"
	"github.com/zerolag/zerolag/internal/pkg/scheduler"
)

var log = logger.GetLogger()

var (
	pprofServer = flag.Bool("profile", false, "runs web server for performance profiling (go tool pprof)")
	grab        = flag.Bool("grab", false, "grab input devices for exclusive usage")
	nocolor     = flag.Bool("nocolor", false, "disable color")
	silent      = flag.Bool("silent", false, "no output logging, best performance")
	logLevel    = flag.Int("loglevel", 3,
		"logging level, each level enables additional information class (0-5, default: 3)\n"+
			"more verbose levels may slightly impact overall performance\n"+
			"\navailable options:\n"+
			"0: errors\n"+
			"1: warnings (queue overflow, rejected profiles)\n"+
			"2: general info (device appearance, profile swaps)\n"+
			"3: scheduler and queue status\n"+
			"4: processed input events\n"+
			"5: raw capture events",
	)
)

// fanoutSink dispatches every processed event to all attached sinks.
type fanoutSink []hid.Sink

func (f fanoutSink) Dispatch(e hid.ProcessedEvent) {
	for _, s := range f {
		s.Dispatch(e)
	}
}

func handleSigs(wg *sync.WaitGroup, sigs <-chan os.Signal, cancel func(), server *http.Server) {
	defer wg.Done()
	var counter int
	for sig := range sigs {
		if counter > 0 {
			fmt.Println("Dirty exit")
			os.Exit(1)
		}
		log.Info(fmt.Sprintf("signal received: %v", sig), logger.Debug)
		cancel()
		if server != nil {
			err := server.Close()
			if err != nil {
				log.Info(fmt.Sprintf("failed to close server: %v", err), logger.Warning)
			}
		}
		counter++
	}
}

func runProfileServer(wg *sync.WaitGroup) *http.Server {
	var server *http.Server
	if *pprofServer {
		addr := "0.0.0.0:8080"
		log.Info(fmt.Sprintf("profiling enabled and hosted on %s", addr), logger.Info)
		server = &http.Server{Addr: addr, Handler: nil}
		wg.Add(1)
		go func() {
			log.Info(fmt.Sprintf("profiling server exited: %v", server.ListenAndServe()), logger.Info)
			wg.Done()
		}()
	}
	return server
}

func consumeLogs() {
	if *silent {
		for range logger.Messages {
		}
		return
	}
	au := aurora.NewAurora(!*nocolor)
	for data := range logger.Messages {
		msg, err := unpack(data)
		if err != nil {
			fmt.Printf("%s\n", string(data))
			continue
		}
		m := prepareString(msg, au, *logLevel)
		if m != "" {
			fmt.Printf("%s\n", m)
		}
	}
}

func pickProfile(snapshots []profile.Snapshot, name string) profile.Snapshot {
	for _, s := range snapshots {
		if s.Name == name {
			return s
		}
	}
	if len(snapshots) > 0 {
		log.Info(fmt.Sprintf("profile %q not found, using %q", name, snapshots[0].Name), logger.Warning)
		return snapshots[0]
	}
	log.Info("no profiles available, starting in pass-through", logger.Warning)
	return profile.Snapshot{
		Name:    "pass-through",
		Polling: profile.PollingConfig{MouseRate: 1000, KeyboardRate: 1000},
	}
}

const dpiStep = 100

// hotkeyActions executes matched hotkey chords: profile cycling, DPI step
// adjustments, the emergency stop and macro record/playback.
type hotkeyActions struct {
	sched    *scheduler.Scheduler
	ctx      context.Context
	macroDir string

	recorder *macro.Recorder
	player   *macro.Player

	mu       sync.Mutex
	profiles []profile.Snapshot
	index    int
	current  profile.Snapshot
	last     macro.Recording
	hasLast  bool
}

// noteProfile tracks externally applied profiles so cycling and DPI steps
// start from what is actually active.
func (a *hotkeyActions) noteProfile(s profile.Snapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.current = s
	for i := range a.profiles {
		if a.profiles[i].Name == s.Name {
			a.profiles[i] = s
			a.index = i
			return
		}
	}
	a.profiles = append(a.profiles, s)
	a.index = len(a.profiles) - 1
}

func (a *hotkeyActions) handle(action hotkeys.Action) {
	switch action {
	case hotkeys.CycleProfile:
		a.cycleProfile()
	case hotkeys.DpiUp:
		a.stepDpi(dpiStep)
	case hotkeys.DpiDown:
		a.stepDpi(-dpiStep)
	case hotkeys.EmergencyStop:
		a.sched.EmergencyStop()
	case hotkeys.ToggleRecording:
		a.toggleRecording()
	case hotkeys.PlayMacro:
		a.playMacro()
	}
}

func (a *hotkeyActions) cycleProfile() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.profiles) < 2 {
		return
	}
	a.index = (a.index + 1) % len(a.profiles)
	next := a.profiles[a.index]
	if err := a.sched.Swap(next); err != nil {
		log.Info(fmt.Sprintf("cannot cycle to profile %q: %v", next.Name, err), logger.Warning)
		return
	}
	a.current = next
}

func (a *hotkeyActions) stepDpi(delta int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	next := a.current
	if !next.Dpi.Enabled {
		return
	}
	next.Dpi.TargetDpi += delta
	if next.Dpi.TargetDpi < 400 {
		next.Dpi.TargetDpi = 400
	}
	if next.Dpi.TargetDpi > 26000 {
		next.Dpi.TargetDpi = 26000
	}
	if err := a.sched.Swap(next); err != nil {
		log.Info(fmt.Sprintf("cannot adjust dpi: %v", err), logger.Warning)
		return
	}
	a.current = next
	log.Info(fmt.Sprintf("dpi adjusted to %d", next.Dpi.TargetDpi), logger.Info)
}

func (a *hotkeyActions) toggleRecording() {
	if !a.recorder.Recording() {
		name := fmt.Sprintf("macro-%d", time.Now().Unix())
		if err := a.recorder.Start(name, time.Now()); err != nil {
			log.Info(fmt.Sprintf("cannot start macro recording: %v", err), logger.Warning)
		}
		return
	}

	rec, err := a.recorder.Stop(time.Now())
	if err != nil {
		return
	}
	a.mu.Lock()
	a.last = rec
	a.hasLast = true
	a.mu.Unlock()

	if a.macroDir == "" {
		return
	}
	if err := os.MkdirAll(a.macroDir, 0o777); err != nil {
		log.Info(fmt.Sprintf("cannot create macro directory: %v", err), logger.Warning)
		return
	}
	path := filepath.Join(a.macroDir, rec.Name+".yaml")
	if err := macro.Save(path, rec); err != nil {
		log.Info(fmt.Sprintf("cannot save macro: %v", err), logger.Warning)
	}
}

func (a *hotkeyActions) playMacro() {
	a.mu.Lock()
	rec, ok := a.last, a.hasLast
	a.mu.Unlock()
	if !ok || a.player.Playing() {
		return
	}
	go func() {
		if err := a.player.Play(a.ctx, rec, macro.PlayOptions{}); err != nil {
			log.Info(fmt.Sprintf("macro playback aborted: %v", err), logger.Warning)
		}
	}()
}

func registerHotkeys(detector *hotkeys.Detector) {
	ctrlAlt := []evdev.EvCode{evdev.KEY_LEFTCTRL, evdev.KEY_LEFTALT}
	ctrlAltShift := []evdev.EvCode{evdev.KEY_LEFTCTRL, evdev.KEY_LEFTALT, evdev.KEY_LEFTSHIFT}

	for _, b := range []hotkeys.Binding{
		{Modifiers: ctrlAlt, Key: evdev.KEY_P, Action: hotkeys.CycleProfile},
		{Modifiers: ctrlAlt, Key: evdev.KEY_UP, Action: hotkeys.DpiUp},
		{Modifiers: ctrlAlt, Key: evdev.KEY_DOWN, Action: hotkeys.DpiDown},
		{Modifiers: ctrlAltShift, Key: evdev.KEY_ESC, Action: hotkeys.EmergencyStop},
		{Modifiers: ctrlAlt, Key: evdev.KEY_R, Action: hotkeys.ToggleRecording},
		{Modifiers: ctrlAlt, Key: evdev.KEY_M, Action: hotkeys.PlayMacro},
	} {
		if err := detector.Register(b); err != nil {
			log.Info(fmt.Sprintf("cannot register hotkey: %v", err), logger.Warning)
		}
	}
}

func monitorStatus(ctx context.Context, wg *sync.WaitGroup, sched *scheduler.Scheduler, rate time.Duration) {
	defer wg.Done()
	ticker := time.NewTicker(rate)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := sched.Status()
			log.Info(fmt.Sprintf(
				"mouse: %.0fHz, keyboard: %.0fHz, queue: %d (dropped: %d), degraded: %v",
				s.MouseRate, s.KeyboardRate, s.Queue.Len, s.Queue.Dropped, s.TimingDegraded,
			), logger.Status)
		}
	}
}

func main() {
	flag.Parse()

	if err := createConfigDirectoryIfNeeded(); err != nil {
		panic(err)
	}

	var cfg = LoadZeroLagConfig("./zerolag-config/zerolag.config")
	log.Info(fmt.Sprintf("ZeroLag config: %+v", cfg), logger.Debug)

	var sigs = make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	ctx, cancel := context.WithCancel(context.Background())

	wg := sync.WaitGroup{}

	server := runProfileServer(&wg)

	wg.Add(1)
	go handleSigs(&wg, sigs, cancel, server)

	go consumeLogs()

	snapshots, err := profile.LoadDir(cfg.ZeroLag.ProfileDir)
	if err != nil {
		log.Info(fmt.Sprintf("cannot load profiles: %v", err), logger.Warning)
	}
	initial := pickProfile(snapshots, cfg.ZeroLag.DefaultProfile)

	queue := hid.NewQueue(cfg.ZeroLag.QueueSize, cfg.ZeroLag.OverflowPolicy)
	engine := bench.NewEngine()
	recorder := macro.NewRecorder()

	mousePipeline := mouse.NewPipeline(*silent)
	keyboardPipeline := keyboard.NewPipeline(*silent)

	actions := &hotkeyActions{
		ctx:      ctx,
		macroDir: cfg.ZeroLag.MacroDir,
		recorder: recorder,
		player:   macro.NewPlayer(engine),
		profiles: snapshots,
	}
	actions.noteProfile(initial)
	detector := hotkeys.NewDetector(actions.handle)
	registerHotkeys(detector)

	sched := scheduler.New(queue, mousePipeline, keyboardPipeline,
		fanoutSink{engine, detector, recorder}, initial)
	actions.sched = sched

	// SIGUSR1 forces pass-through immediately, independent of tick timing
	var emergency = make(chan os.Signal, 1)
	signal.Notify(emergency, syscall.SIGUSR1)
	go func() {
		for range emergency {
			sched.EmergencyStop()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for snapshot := range profile.Monitor(ctx, cfg.ZeroLag.ProfileDir) {
			if err := sched.Swap(snapshot); err != nil {
				log.Info(fmt.Sprintf("rejected profile: %v", err), logger.Warning)
				continue
			}
			actions.noteProfile(snapshot)
		}
	}()

	devices, err := capture.Discover(*grab, queue)
	if err != nil {
		log.Info(fmt.Sprintf("device discovery failed: %v", err), logger.Error)
		os.Exit(1)
	}
	if len(devices) == 0 {
		log.Info("no input devices available", logger.Error)
		os.Exit(1)
	}

	for _, d := range devices {
		wg.Add(1)
		go func(d *capture.Device) {
			defer wg.Done()
			d.Run(ctx)
		}(d)
	}

	wg.Add(1)
	go monitorStatus(ctx, &wg, sched, cfg.ZeroLag.StatusRate)

	<-ctx.Done()
	log.Info("waiting...", logger.Debug)
	close(sigs)
	signal.Stop(emergency)
	close(emergency)

	if history := engine.History(); len(history) > 0 {
		if err := bench.Export(cfg.ZeroLag.BenchmarkFile, history, time.Now()); err != nil {
			log.Info(fmt.Sprintf("cannot export benchmark history: %v", err), logger.Warning)
		} else {
			log.Info(fmt.Sprintf("benchmark history exported to %s", cfg.ZeroLag.BenchmarkFile), logger.Info)
		}
	}

	// closing logger can be safely invoked only when all internally running goroutines (that may emit logs) are done
	wg.Wait()
	close(logger.Messages)
}
