package renderer

import (
	"fmt"
	"image"
	"log/slog"
	"sync"

	"cogentcore.org/core/base/keylist"
	"github.com/Carmen-Shannon/oxy-crt/common"
	"github.com/Carmen-Shannon/oxy-crt/engine/renderer/framebuffer"
	"github.com/Carmen-Shannon/oxy-crt/engine/renderer/graph"
	"github.com/Carmen-Shannon/oxy-crt/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-crt/engine/renderer/shader"
)

// ResizePolicy decides what Render does while the session is being resized.
type ResizePolicy int

const (
	// ResizeBlock makes Render wait for the resize to finish.
	ResizeBlock ResizePolicy = iota
	// ResizeReject makes Render return ErrResizeInProgress.
	ResizeReject
)

// ParameterState is a declared parameter and its current value.
type ParameterState struct {
	shader.Parameter
	Value float32
}

// Session is a loaded preset: its render graph, the backend resources installed for it, and the
// current parameter values. Render and Resize must be called from the goroutine that owns the
// graphics context; SetParameter and the accessors are safe from any goroutine.
type Session interface {
	// Render runs every pass once against input and presents the final pass.
	//
	// Parameters:
	//   - input: the current input frame
	//
	// Returns:
	//   - error: a *RenderError if a pass failed, ErrRenderInProgress, ErrResizeInProgress,
	//     ErrSessionDisposed or ErrNoInput
	Render(input *image.RGBA) error

	// SetParameter sets a parameter for every pass that reads it, from the next frame on. The value
	// is clamped to the parameter's declared range.
	//
	// Parameters:
	//   - name: the parameter name
	//   - value: the new value
	//
	// Returns:
	//   - error: an *UnknownParameterError if no module declares name, or ErrSessionDisposed
	SetParameter(name string, value float32) error

	// Parameter returns a parameter's current value.
	//
	// Parameters:
	//   - name: the parameter name
	//
	// Returns:
	//   - float32: the current value
	//   - bool: false if no module declares name
	Parameter(name string) (float32, bool)

	// Parameters returns every declared parameter with its current value, in declaration order.
	//
	// Returns:
	//   - []ParameterState: the parameters
	Parameters() []ParameterState

	// Resize sets the viewport size used for viewport-scaled passes and the final viewport uniform,
	// and recreates the retained targets whose size changed.
	//
	// Parameters:
	//   - width: the new viewport width in pixels
	//   - height: the new viewport height in pixels
	//
	// Returns:
	//   - error: an error if a target could not be recreated, or ErrSessionDisposed
	Resize(width, height int) error

	// Graph returns the session's render graph. It must not be modified.
	//
	// Returns:
	//   - *graph.RenderGraph: the graph
	Graph() *graph.RenderGraph

	// Warnings returns every cosmetic symbol that was stubbed or defaulted during the load.
	//
	// Returns:
	//   - []*shader.MissingSymbolWarning: the warnings in pass order
	Warnings() []*shader.MissingSymbolWarning

	// FrameCount returns the number of frames presented so far.
	//
	// Returns:
	//   - uint64: the frame count
	FrameCount() uint64

	// FramebufferStats returns the allocation counters of the session's render targets.
	//
	// Returns:
	//   - framebuffer.Stats: the counters
	FramebufferStats() framebuffer.Stats

	// Dispose waits for an in-flight Render and releases every backend resource of the session.
	// It is idempotent.
	Dispose()
}

type session struct {
	logger  *slog.Logger
	backend RendererBackend

	graph     *graph.RenderGraph
	pipelines []pipeline.Pipeline
	luts      []Texture
	pool      framebuffer.Pool

	params   *keylist.List[string, shader.Parameter]
	paramMu  sync.RWMutex
	values   map[string]float32
	warnings []*shader.MissingSymbolWarning

	// history[h] is the input frame h frames back; history[0] is the current frame.
	history []Texture

	// renderMu rejects reentrant Render calls; stateMu and cond order renders, resizes and Dispose.
	renderMu sync.Mutex

	stateMu      sync.Mutex
	cond         *sync.Cond
	rendering    bool
	resizing     bool
	disposed     bool
	resizePolicy ResizePolicy
	viewport     common.Size
	inputSize    common.Size
	frame        uint64

	// onDispose is called once after the session's resources are released.
	onDispose func(*session)
}

var _ Session = &session{}

func newSession(
	backend RendererBackend,
	g *graph.RenderGraph,
	pipelines []pipeline.Pipeline,
	luts []Texture,
	pool framebuffer.Pool,
	params *keylist.List[string, shader.Parameter],
	values map[string]float32,
	logger *slog.Logger,
) *session {
	s := &session{
		logger:    logger,
		backend:   backend,
		graph:     g,
		pipelines: pipelines,
		luts:      luts,
		pool:      pool,
		params:    params,
		values:    values,
	}
	s.cond = sync.NewCond(&s.stateMu)
	for _, gp := range g.Passes {
		s.warnings = append(s.warnings, gp.Module.Warnings...)
	}
	s.warnings = append(s.warnings, g.Warnings...)
	return s
}

func (s *session) Graph() *graph.RenderGraph {
	return s.graph
}

func (s *session) Warnings() []*shader.MissingSymbolWarning {
	return s.warnings
}

func (s *session) FrameCount() uint64 {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.frame
}

func (s *session) FramebufferStats() framebuffer.Stats {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	for s.rendering || s.resizing {
		s.cond.Wait()
	}
	return s.pool.Stats()
}

func (s *session) Parameter(name string) (float32, bool) {
	s.paramMu.RLock()
	defer s.paramMu.RUnlock()
	v, ok := s.values[name]
	return v, ok
}

func (s *session) Parameters() []ParameterState {
	s.paramMu.RLock()
	defer s.paramMu.RUnlock()
	out := make([]ParameterState, 0, s.params.Len())
	for i, name := range s.params.Keys {
		out = append(out, ParameterState{Parameter: s.params.Values[i], Value: s.values[name]})
	}
	return out
}

func (s *session) SetParameter(name string, value float32) error {
	if s.isDisposed() {
		return ErrSessionDisposed
	}
	prm, ok := s.params.AtTry(name)
	if !ok {
		return &UnknownParameterError{Name: name}
	}
	s.paramMu.Lock()
	s.values[name] = prm.Clamp(value)
	s.paramMu.Unlock()
	return nil
}

func (s *session) isDisposed() bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.disposed
}

// begin marks a render in flight, honoring the resize policy.
func (s *session) begin() error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	for s.resizing && !s.disposed {
		if s.resizePolicy == ResizeReject {
			return ErrResizeInProgress
		}
		s.cond.Wait()
	}
	if s.disposed {
		return ErrSessionDisposed
	}
	s.rendering = true
	return nil
}

func (s *session) end(presented bool) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if presented {
		s.frame++
	}
	s.rendering = false
	s.cond.Broadcast()
}

func (s *session) Render(input *image.RGBA) error {
	if !s.renderMu.TryLock() {
		return ErrRenderInProgress
	}
	defer s.renderMu.Unlock()

	if input == nil || input.Bounds().Empty() {
		return ErrNoInput
	}
	if err := s.begin(); err != nil {
		return err
	}
	presented := false
	defer func() { s.end(presented) }()

	s.stateMu.Lock()
	frame := s.frame
	viewport := s.viewport
	s.stateMu.Unlock()
	if viewport.Empty() {
		viewport = s.backend.SurfaceSize()
	}

	if err := s.uploadInput(input); err != nil {
		return &RenderError{Pass: -1, Err: err}
	}
	if err := s.backend.BeginFrame(); err != nil {
		return &RenderError{Pass: -1, Err: err}
	}

	sizes := framebuffer.PassSizes(s.graph, s.inputSize, viewport)
	ctx := &frameContext{
		session:  s,
		frame:    frame,
		viewport: viewport,
		drawn:    make([]bool, len(s.graph.Passes)),
	}
	if err := ctx.prepareFeedback(sizes); err != nil {
		s.backend.AbortFrame()
		return &RenderError{Pass: -1, Err: err}
	}

	s.paramMu.RLock()
	for i := range s.graph.Passes {
		if err := ctx.runPass(i, sizes[i]); err != nil {
			s.paramMu.RUnlock()
			s.backend.AbortFrame()
			s.recycleAll()
			return &RenderError{Pass: i, Err: err}
		}
	}
	s.paramMu.RUnlock()

	final := len(s.graph.Passes) - 1
	if err := s.backend.Present(ctx.output(final)); err != nil {
		s.backend.AbortFrame()
		s.recycleAll()
		return &RenderError{Pass: -1, Err: err}
	}
	s.pool.Release(final)
	s.pool.Advance()
	presented = true
	return nil
}

// recycleAll returns every scratch target after an abandoned frame.
func (s *session) recycleAll() {
	for i := range s.graph.Passes {
		s.pool.Release(i)
	}
	s.pool.Advance()
}

// uploadInput writes the input into the history ring, rotating it one frame.
func (s *session) uploadInput(input *image.RGBA) error {
	staged := common.StageImage(input)
	size := common.Size{Width: int(staged.Width), Height: int(staged.Height)}
	depth := s.graph.HistoryDepth + 1

	if len(s.history) != depth || s.inputSize != size {
		s.destroyHistory()
		for h := 0; h < depth; h++ {
			t, err := s.backend.CreateTexture(fmt.Sprintf("input.history%d", h), staged, s.graph.InputMipmap && h == 0)
			if err != nil {
				s.destroyHistory()
				return fmt.Errorf("uploading input: %w", err)
			}
			s.history = append(s.history, t)
		}
		s.inputSize = size
	} else {
		oldest := s.history[depth-1]
		copy(s.history[1:], s.history[:depth-1])
		s.history[0] = oldest
		if err := s.backend.WriteTexture(oldest, staged); err != nil {
			return fmt.Errorf("uploading input: %w", err)
		}
	}
	if s.graph.InputMipmap {
		s.backend.GenerateMipmaps(s.history[0])
	}
	return nil
}

func (s *session) destroyHistory() {
	for _, t := range s.history {
		s.backend.DestroyTexture(t)
	}
	s.history = nil
}

func (s *session) Resize(width, height int) error {
	s.stateMu.Lock()
	if s.disposed {
		s.stateMu.Unlock()
		return ErrSessionDisposed
	}
	for s.rendering || s.resizing {
		s.cond.Wait()
	}
	if s.disposed {
		s.stateMu.Unlock()
		return ErrSessionDisposed
	}
	s.resizing = true
	s.viewport = common.Size{Width: width, Height: height}
	inputSize := s.inputSize
	s.stateMu.Unlock()

	defer func() {
		s.stateMu.Lock()
		s.resizing = false
		s.cond.Broadcast()
		s.stateMu.Unlock()
	}()

	s.pool.Trim()
	if inputSize.Empty() {
		return nil
	}
	sizes := framebuffer.PassSizes(s.graph, inputSize, common.Size{Width: width, Height: height})
	for i, gp := range s.graph.Passes {
		out := s.pool.Output(i)
		if !gp.Retained || out == nil || out.Size() == sizes[i] {
			continue
		}
		if _, err := s.pool.Acquire(i, sizes[i]); err != nil {
			return fmt.Errorf("renderer: resizing pass %d: %w", i, err)
		}
	}
	s.logger.Debug("session resized", "width", width, "height", height)
	return nil
}

func (s *session) Dispose() {
	s.stateMu.Lock()
	if s.disposed {
		s.stateMu.Unlock()
		return
	}
	s.disposed = true
	s.cond.Broadcast()
	for s.rendering || s.resizing {
		s.cond.Wait()
	}
	s.stateMu.Unlock()

	s.pool.Dispose()
	s.destroyHistory()
	for _, t := range s.luts {
		s.backend.DestroyTexture(t)
	}
	for _, p := range s.pipelines {
		s.backend.ReleasePipeline(p)
	}
	s.luts, s.pipelines = nil, nil
	s.logger.Info("session disposed", "passes", len(s.graph.Passes))
	if s.onDispose != nil {
		s.onDispose(s)
	}
}
