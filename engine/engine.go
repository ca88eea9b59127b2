package engine

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-crt/common"
	"github.com/Carmen-Shannon/oxy-crt/engine/config"
	"github.com/Carmen-Shannon/oxy-crt/engine/profiler"
	"github.com/Carmen-Shannon/oxy-crt/engine/renderer"
	"github.com/Carmen-Shannon/oxy-crt/engine/window"
)

// loadTimeout bounds one preset load, fetches included.
const loadTimeout = 30 * time.Second

// engine implements the Engine interface.
// The window's message loop drives rendering so every backend call stays on the thread that owns
// the graphics context; the tick loop runs host logic in its own goroutine.
type engine struct {
	logger *slog.Logger

	tickRateChannel chan time.Duration // Channel for dynamic tick rate updates

	running bool
	wg      sync.WaitGroup

	quitChannel chan struct{}
	quitOnce    sync.Once // Ensures quitChannel is only closed once
	releaseOnce sync.Once

	window   window.Window
	renderer renderer.Renderer

	profiler         *profiler.Profiler
	profilingEnabled bool

	engineTickRate time.Duration
	tickCallback   func(deltaTime float32)
	renderCallback func(deltaTime float32)

	renderFrameLimit time.Duration // minimum frame duration; 0 = uncapped
	lastRender       time.Time

	input  InputSource
	frame  *image.RGBA
	paused bool

	title      string
	shaderRoot string
	presetPath string
	overrides  map[string]float32
	controls   controls

	// loadRequests holds the latest requested preset path until the next frame picks it up.
	loadRequests chan string
}

// Engine runs a preset against an input source in a window.
// Keys: Left/Right select a parameter, Up/Down (PageUp/PageDown for ten steps) or the scroll wheel
// change it, R reloads the preset, Space freezes the input, P toggles the profiler. Dropping a
// .slangp file on the window loads it.
type Engine interface {
	// Window returns the underlying window.
	//
	// Returns:
	//   - window.Window: the window instance
	Window() window.Window

	// Renderer returns the renderer presets are loaded into.
	//
	// Returns:
	//   - renderer.Renderer: the renderer
	Renderer() renderer.Renderer

	// EnableProfiler enables performance profiling output to the log.
	EnableProfiler()

	// DisableProfiler disables performance profiling output.
	DisableProfiler()

	// SetTickRate sets the engine tick rate in frames per second.
	//
	// Parameters:
	//   - fps: target frames per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetTickCallback registers the function called each engine tick, from the tick goroutine.
	//
	// Parameters:
	//   - callback: function to call at the configured tick rate, receiving the delta time in seconds
	SetTickCallback(callback func(deltaTime float32))

	// SetRenderCallback registers the function called after each rendered frame, on the render thread.
	//
	// Parameters:
	//   - callback: function to call each render frame, receiving the delta time in seconds
	SetRenderCallback(callback func(deltaTime float32))

	// SetRenderFrameLimit sets an optional render frame rate cap in frames per second.
	//
	// Parameters:
	//   - fps: maximum render frames per second (0 = uncapped)
	SetRenderFrameLimit(fps float64)

	// SetInputSource replaces the source of input frames.
	//
	// Parameters:
	//   - src: the new source
	SetInputSource(src InputSource)

	// RequestPreset queues a preset load for the next frame. Only the latest request is kept.
	//
	// Parameters:
	//   - path: the preset path, relative to the shader root or absolute
	RequestPreset(path string)

	// Run starts the message and render loop and blocks until the window closes. The renderer and
	// window are released on return.
	Run()

	// Quit stops the engine. Safe to call multiple times and from any goroutine.
	Quit()
}

// NewEngine creates a new Engine instance with the provided options.
// A window and a renderer must be supplied, directly or through NewEngineFromConfig.
//
// Parameters:
//   - options: functional options for engine configuration
//
// Returns:
//   - Engine: the newly created engine
func NewEngine(options ...EngineBuilderOption) Engine {
	e := &engine{
		logger:          slog.Default(),
		tickRateChannel: make(chan time.Duration, 1),
		quitChannel:     make(chan struct{}),
		loadRequests:    make(chan string, 1),
		engineTickRate:  time.Second / 60,
		title:           "oxy-crt",
		shaderRoot:      ".",
		overrides:       make(map[string]float32),
	}

	for _, opt := range options {
		opt(e)
	}
	e.profiler = profiler.NewProfiler(e.logger)

	if e.window != nil {
		if e.input == nil {
			e.input = TestPattern(640, 480, 60)
		}
		e.window.SetResizeCallback(e.handleResize)
		e.window.SetKeyDownCallback(e.handleKey)
		e.window.SetScrollCallback(e.handleScroll)
		e.window.SetDropCallback(e.handleDrop)
	}
	if e.presetPath != "" {
		e.RequestPreset(e.presetPath)
	}

	return e
}

// NewEngineFromConfig creates the window, the renderer and the engine described by a configuration.
// It must be called from the main goroutine.
//
// Parameters:
//   - cfg: a validated configuration
//   - logger: the logger shared by the engine and renderer; nil uses slog.Default()
//
// Returns:
//   - Engine: the engine
//   - error: an error if the renderer backend could not be created
func NewEngineFromConfig(cfg config.Config, logger *slog.Logger) (Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	backend, err := cfg.BackendType()
	if err != nil {
		return nil, err
	}
	win := window.NewWindow(cfg.WindowOptions()...)
	r, err := renderer.NewRenderer(backend, win, cfg.RendererOptions(logger)...)
	if err != nil {
		_ = win.Close()
		return nil, fmt.Errorf("engine: %w", err)
	}
	return NewEngine(
		WithLogger(logger),
		WithWindow(win),
		WithRenderer(r),
		WithConfig(cfg),
	), nil
}

func (e *engine) Window() window.Window {
	return e.window
}

func (e *engine) Renderer() renderer.Renderer {
	return e.renderer
}

func (e *engine) Run() {
	if e.window == nil || e.renderer == nil {
		e.logger.Error("engine needs a window and a renderer to run")
		return
	}
	e.running = true
	e.lastRender = time.Now()
	e.handle()
	e.window.SetUpdateCallback(e.renderFrame)
	e.window.ProcessMessages()

	e.signalQuit()
	e.wg.Wait()
	e.release()
}

// release destroys the renderer while the window and its context still exist, then the window.
func (e *engine) release() {
	e.releaseOnce.Do(func() {
		e.renderer.Release()
		_ = e.window.Close()
	})
}

// Quit signals all engine goroutines to stop and shuts down the engine.
func (e *engine) Quit() {
	e.signalQuit()
}

// signalQuit closes the quit channel to signal all goroutines to exit.
// Uses sync.Once to ensure the channel is only closed once.
func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		e.running = false
		close(e.quitChannel)
	})
}

// handle launches the tick and quit goroutines.
// Each goroutine is tracked by the engine's WaitGroup.
func (e *engine) handle() {
	e.wg.Add(2)
	go e.handleEngine()
	go e.handleQuit()
}

// handleEngine runs the fixed-rate engine tick loop in its own goroutine.
// Fires the tick callback at the configured tick rate and listens for dynamic rate changes
// via tickRateChannel. Exits when the quit channel is closed.
func (e *engine) handleEngine() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.engineTickRate)
	defer ticker.Stop()

	lastTick := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		case <-ticker.C:
			now := time.Now()
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now

			if e.tickCallback != nil {
				e.tickCallback(dt)
			}
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
			e.engineTickRate = newRate
		}
	}
}

// handleQuit blocks until the quit channel is closed, then decrements the WaitGroup.
func (e *engine) handleQuit() {
	defer e.wg.Done()
	<-e.quitChannel
}

// renderFrame runs once per message loop iteration: it installs a requested preset, pulls an input
// frame and renders the active session. Render failures abandon only that frame.
func (e *engine) renderFrame() {
	select {
	case <-e.quitChannel:
		e.release()
		return
	default:
	}

	select {
	case path := <-e.loadRequests:
		e.loadPreset(path)
	default:
	}

	now := time.Now()
	dt := float32(now.Sub(e.lastRender).Seconds())
	e.lastRender = now

	if !e.paused || e.frame == nil {
		e.frame = e.input(dt)
	}

	if s := e.renderer.ActiveSession(); s != nil && e.frame != nil {
		start := time.Now()
		err := e.renderer.Render(s, e.frame)
		if e.profilingEnabled {
			e.profiler.RecordRender(time.Since(start), err)
		}
		if err != nil {
			e.logger.Error("render failed", "frame", s.FrameCount(), "error", err)
		}
	}

	if e.renderCallback != nil {
		e.renderCallback(dt)
	}

	if e.profilingEnabled {
		e.profiler.Tick()
	}

	// Frame rate limiting
	if e.renderFrameLimit > 0 {
		if remaining := e.renderFrameLimit - time.Since(now); remaining > 0 {
			time.Sleep(remaining)
		}
	}
}

// loadPreset installs a preset as the active session and applies the configured overrides. A
// failed load keeps the previous session running.
func (e *engine) loadPreset(path string) {
	root, rel := presetLocation(e.shaderRoot, path)
	ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
	defer cancel()

	start := time.Now()
	s, err := e.renderer.LoadPresetFile(ctx, rel, common.FSResolver(os.DirFS(root)))
	if err != nil {
		e.logger.Error("preset load failed", "preset", path, "error", err)
		return
	}
	e.presetPath = path

	for name, v := range e.overrides {
		if err := s.SetParameter(name, v); err != nil {
			e.logger.Warn("parameter override ignored", "parameter", name, "error", err)
		}
	}
	for _, w := range s.Warnings() {
		e.logger.Warn("missing symbol", "warning", w.Error())
	}
	e.logger.Info("preset loaded",
		"preset", path,
		"passes", len(s.Graph().Passes),
		"parameters", len(s.Parameters()),
		"elapsed", time.Since(start))

	e.controls.reset(s)
	e.updateTitle()
}

func (e *engine) updateTitle() {
	e.window.SetTitle(e.controls.title(e.title, e.presetPath))
}

func (e *engine) handleResize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	if err := e.renderer.Resize(width, height); err != nil {
		e.logger.Error("resize failed", "width", width, "height", height, "error", err)
	}
}

func (e *engine) handleKey(keyCode uint32) {
	switch keyCode {
	case common.KeyR:
		if e.presetPath != "" {
			e.RequestPreset(e.presetPath)
		}
		return
	case common.KeyP:
		e.profilingEnabled = !e.profilingEnabled
		return
	case common.KeySpace:
		e.paused = !e.paused
		return
	case common.KeyLeft:
		e.controls.move(-1)
	case common.KeyRight:
		e.controls.move(1)
	case common.KeyUp:
		e.stepParameter(1)
	case common.KeyDown:
		e.stepParameter(-1)
	case common.KeyPageUp:
		e.stepParameter(10)
	case common.KeyPageDown:
		e.stepParameter(-10)
	default:
		return
	}
	e.updateTitle()
}

func (e *engine) handleScroll(delta float32) {
	switch {
	case delta > 0:
		e.stepParameter(1)
	case delta < 0:
		e.stepParameter(-1)
	default:
		return
	}
	e.updateTitle()
}

func (e *engine) stepParameter(steps int) {
	if p, err := e.controls.step(steps); err != nil {
		e.logger.Debug("parameter step ignored", "parameter", p.Name, "error", err)
	}
}

func (e *engine) handleDrop(paths []string) {
	for _, p := range paths {
		if strings.EqualFold(filepath.Ext(p), ".slangp") {
			e.RequestPreset(p)
			return
		}
	}
	e.logger.Warn("dropped files contain no .slangp preset", "files", paths)
}

func (e *engine) RequestPreset(path string) {
	for {
		select {
		case e.loadRequests <- path:
			return
		default:
		}
		// Replace the pending request with the newer one.
		select {
		case <-e.loadRequests:
		default:
		}
	}
}

// EnableProfiler enables performance profiling output to the log.
func (e *engine) EnableProfiler() {
	e.profilingEnabled = true
}

// DisableProfiler disables performance profiling output.
func (e *engine) DisableProfiler() {
	e.profilingEnabled = false
}

// SetTickRate sets the engine tick rate in frames per second.
// If the engine is running, the change takes effect immediately.
func (e *engine) SetTickRate(fps float64) {
	if fps <= 0 {
		fps = 60
	}
	newRate := time.Duration(float64(time.Second) / fps)

	if !e.running {
		e.engineTickRate = newRate
		return
	}
	// Non-blocking send - if the channel is full, replace the pending value.
	select {
	case e.tickRateChannel <- newRate:
	default:
		select {
		case <-e.tickRateChannel:
		default:
		}
		e.tickRateChannel <- newRate
	}
}

func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.tickCallback = callback
}

func (e *engine) SetRenderCallback(callback func(deltaTime float32)) {
	e.renderCallback = callback
}

// SetRenderFrameLimit sets an optional render frame rate cap.
// Pass 0 to uncap the render loop.
func (e *engine) SetRenderFrameLimit(fps float64) {
	e.renderFrameLimit = frameDuration(fps)
}

func (e *engine) SetInputSource(src InputSource) {
	if src != nil {
		e.input = src
	}
}

func frameDuration(fps float64) time.Duration {
	if fps <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / fps)
}
