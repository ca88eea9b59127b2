package renderer

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-crt/common"
	"github.com/Carmen-Shannon/oxy-crt/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-crt/engine/window"
)

// renderer is the implementation of the Renderer interface.
type renderer struct {
	mu     *sync.Mutex
	logger *slog.Logger

	backendType RendererBackendType
	backend     RendererBackend

	// fetchPool runs module and lookup texture fetches of preset loads.
	fetchPool worker.DynamicWorkerPool

	active     *session
	loadSeq    uint64
	cancelLoad context.CancelCauseFunc
	installMu  sync.Mutex

	// Pre-creation config collected from builder options
	forceFallbackAdapter bool
	pendingPresentMode   *PresentMode
	fetchWorkers         int
	resizePolicy         ResizePolicy
	stubs                []shader.Stub
	surfaceSize          common.Size
}

// Renderer defines the interface for the preset rendering system.
//
// The Renderer owns one graphics backend and at most one active Session. LoadPreset turns preset
// text into a Session; a completed load replaces the active session. Calls that touch the backend
// (LoadPreset's install stage, Render, Resize, Dispose, Release) must come from the goroutine that
// owns the graphics context.
type Renderer interface {
	// LoadPreset parses a preset, fetches and compiles its modules and lookup textures, builds the
	// render graph and installs it as the active session. Module paths resolve from the resolver's root.
	// A load started while another is in flight cancels the earlier one, which returns ErrSuperseded.
	//
	// Parameters:
	//   - ctx: cancels the load
	//   - presetText: the preset file contents
	//   - resolver: supplies module, include and texture contents
	//
	// Returns:
	//   - Session: the new active session
	//   - error: a *LoadError naming the failed stage, or ErrSuperseded
	LoadPreset(ctx context.Context, presetText string, resolver common.Resolver) (Session, error)

	// LoadPresetFile is LoadPreset for a preset fetched from the resolver. Module and texture paths
	// resolve relative to the preset's directory.
	//
	// Parameters:
	//   - ctx: cancels the load
	//   - path: the preset path within the resolver
	//   - resolver: supplies the preset and everything it references
	//
	// Returns:
	//   - Session: the new active session
	//   - error: a *LoadError naming the failed stage, or ErrSuperseded
	LoadPresetFile(ctx context.Context, path string, resolver common.Resolver) (Session, error)

	// ActiveSession returns the session installed by the most recent completed load.
	//
	// Returns:
	//   - Session: the active session, or nil if none is loaded
	ActiveSession() Session

	// Render renders one frame of a session.
	//
	// Parameters:
	//   - s: a session created by this renderer
	//   - input: the current input frame
	//
	// Returns:
	//   - error: see Session.Render
	Render(s Session, input *image.RGBA) error

	// SetParameter sets a session parameter.
	//
	// Parameters:
	//   - s: a session created by this renderer
	//   - name: the parameter name
	//   - value: the new value
	//
	// Returns:
	//   - error: see Session.SetParameter
	SetParameter(s Session, name string, value float32) error

	// Dispose disposes a session, clearing it as the active session.
	//
	// Parameters:
	//   - s: a session created by this renderer
	Dispose(s Session)

	// Resize reconfigures the output surface and resizes the active session's viewport.
	//
	// Parameters:
	//   - width: the new surface width in pixels
	//   - height: the new surface height in pixels
	//
	// Returns:
	//   - error: an error if the active session could not resize its targets
	Resize(width, height int) error

	// SetPresentMode changes the surface present mode.
	//
	// Parameters:
	//   - mode: the PresentMode to use (VSync or Uncapped)
	SetPresentMode(mode PresentMode)

	// Backend returns the graphics backend.
	//
	// Returns:
	//   - RendererBackend: the backend
	Backend() RendererBackend

	// Release disposes the active session, stops the fetch workers and destroys the backend.
	Release()
}

var _ Renderer = &renderer{}

// NewRenderer creates a renderer with a backend of the given type. WGPU renders to the window's
// surface; GL requires the window's GL context to be current on the calling goroutine; Headless
// ignores the window and uses WithSurfaceSize.
//
// Parameters:
//   - backendType: the backend to create
//   - win: the host window; may be nil for BackendTypeHeadless
//   - options: a variadic list of RendererBuilderOption functions
//
// Returns:
//   - Renderer: the renderer
//   - error: an error if the backend could not be initialized
func NewRenderer(backendType RendererBackendType, win window.Window, options ...RendererBuilderOption) (Renderer, error) {
	r := &renderer{
		mu:           &sync.Mutex{},
		logger:       slog.Default(),
		backendType:  backendType,
		fetchWorkers: 4,
		resizePolicy: ResizeBlock,
		surfaceSize:  common.Size{Width: 1280, Height: 720},
	}

	// Apply options first so config flags (e.g. forceFallbackAdapter) are
	// available before the backend requests a GPU adapter.
	for _, opt := range options {
		opt(r)
	}

	if win != nil {
		r.surfaceSize = common.Size{Width: win.Width(), Height: win.Height()}
	}

	if r.backend == nil {
		var err error
		switch backendType {
		case BackendTypeHeadless:
			r.backend = newHeadlessRendererBackend(r.surfaceSize.Width, r.surfaceSize.Height)
		case BackendTypeGL:
			if win == nil {
				return nil, fmt.Errorf("renderer: the gl backend needs a window")
			}
			r.backend, err = newGLRendererBackend(win, r.logger)
		case BackendTypeWGPU:
			if win == nil {
				return nil, fmt.Errorf("renderer: the wgpu backend needs a window")
			}
			r.backend, err = newWGPURendererBackend(win.SurfaceDescriptor(), r.forceFallbackAdapter, r.logger)
		default:
			return nil, fmt.Errorf("renderer: unknown backend %s", backendType)
		}
		if err != nil {
			return nil, fmt.Errorf("renderer: creating %s backend: %w", backendType, err)
		}
	}
	r.backendType = r.backend.Type()

	if r.pendingPresentMode != nil {
		r.backend.SetPresentMode(*r.pendingPresentMode)
	}
	r.backend.ConfigureSurface(r.surfaceSize.Width, r.surfaceSize.Height)

	r.fetchPool = worker.NewDynamicWorkerPool(r.fetchWorkers, 256, 1*time.Second)
	r.logger.Info("renderer ready", "backend", r.backendType, "fetch_workers", r.fetchWorkers)
	return r, nil
}

func (r *renderer) Backend() RendererBackend {
	return r.backend
}

func (r *renderer) LoadPreset(ctx context.Context, presetText string, resolver common.Resolver) (Session, error) {
	return r.load(ctx, "", presetText, resolver)
}

func (r *renderer) LoadPresetFile(ctx context.Context, path string, resolver common.Resolver) (Session, error) {
	data, err := resolver.Resolve(ctx, path)
	if err != nil {
		return nil, &LoadError{Stage: LoadStageFetch, Err: fmt.Errorf("preset %s: %w", path, err)}
	}
	return r.load(ctx, path, string(data), resolver)
}

func (r *renderer) load(ctx context.Context, basePath, text string, resolver common.Resolver) (Session, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	r.mu.Lock()
	if r.cancelLoad != nil {
		r.cancelLoad(ErrSuperseded)
	}
	r.loadSeq++
	seq := r.loadSeq
	r.cancelLoad = cancel
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		if r.loadSeq == seq {
			r.cancelLoad = nil
		}
		r.mu.Unlock()
	}()

	start := time.Now()
	l := &loader{
		logger:   r.logger,
		backend:  r.backend,
		pool:     r.fetchPool,
		resolver: resolver,
		stubs:    r.stubs,
	}

	r.installMu.Lock()
	defer r.installMu.Unlock()

	s, err := l.run(ctx, basePath, text)
	if err != nil {
		if superseded(ctx, err) {
			r.logger.Debug("preset load superseded", "preset", basePath)
			return nil, ErrSuperseded
		}
		r.logger.Warn("preset load failed", "preset", basePath, "error", err)
		return nil, err
	}
	s.resizePolicy = r.resizePolicy

	r.mu.Lock()
	if r.loadSeq != seq {
		r.mu.Unlock()
		s.Dispose()
		return nil, ErrSuperseded
	}
	prev := r.active
	r.active = s
	s.onDispose = r.forget
	r.mu.Unlock()

	if prev != nil {
		prev.Dispose()
	}
	for _, w := range s.Warnings() {
		r.logger.Warn("missing symbol", "symbol", w.Symbol, "pass", w.Pass, "reason", w.Reason)
	}
	r.logger.Info("preset installed",
		"preset", basePath,
		"passes", len(s.graph.Passes),
		"parameters", s.params.Len(),
		"warnings", len(s.warnings),
		"elapsed", time.Since(start))
	return s, nil
}

// forget clears s as the active session once it is disposed.
func (r *renderer) forget(s *session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == s {
		r.active = nil
	}
}

func (r *renderer) ActiveSession() Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		return nil
	}
	return r.active
}

// own returns s as a session of this renderer.
func (r *renderer) own(s Session) (*session, error) {
	ss, ok := s.(*session)
	if !ok || ss == nil || ss.backend != r.backend {
		return nil, ErrForeignSession
	}
	return ss, nil
}

func (r *renderer) Render(s Session, input *image.RGBA) error {
	ss, err := r.own(s)
	if err != nil {
		return err
	}
	return ss.Render(input)
}

func (r *renderer) SetParameter(s Session, name string, value float32) error {
	ss, err := r.own(s)
	if err != nil {
		return err
	}
	return ss.SetParameter(name, value)
}

func (r *renderer) Dispose(s Session) {
	if ss, err := r.own(s); err == nil {
		ss.Dispose()
	}
}

func (r *renderer) Resize(width, height int) error {
	r.backend.ConfigureSurface(width, height)
	r.mu.Lock()
	active := r.active
	r.mu.Unlock()
	if active == nil {
		return nil
	}
	return active.Resize(width, height)
}

func (r *renderer) SetPresentMode(mode PresentMode) {
	r.backend.SetPresentMode(mode)
	size := r.backend.SurfaceSize()
	r.backend.ConfigureSurface(size.Width, size.Height)
}

func (r *renderer) Release() {
	r.mu.Lock()
	if r.cancelLoad != nil {
		r.cancelLoad(ErrSuperseded)
	}
	active := r.active
	r.mu.Unlock()

	if active != nil {
		active.Dispose()
	}
	r.installMu.Lock()
	defer r.installMu.Unlock()
	r.fetchPool.Stop()
	r.backend.Release()
}
