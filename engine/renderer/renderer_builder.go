package renderer

import (
	"log/slog"

	"github.com/Carmen-Shannon/oxy-crt/common"
	"github.com/Carmen-Shannon/oxy-crt/engine/renderer/shader"
)

// RendererBuilderOption is a functional option applied to a renderer during construction via NewRenderer.
type RendererBuilderOption func(*renderer)

// WithLogger sets the logger used by the renderer, its loads and its sessions.
//
// Parameters:
//   - logger: the logger; nil keeps slog.Default()
//
// Returns:
//   - RendererBuilderOption: a function that applies the logger option to a renderer
func WithLogger(logger *slog.Logger) RendererBuilderOption {
	return func(r *renderer) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithPresentMode sets the surface present mode which controls how frames are delivered to the display.
//
// Parameters:
//   - mode: the PresentMode to use (VSync or Uncapped)
//
// Returns:
//   - RendererBuilderOption: a function that applies the present mode option to a renderer
func WithPresentMode(mode PresentMode) RendererBuilderOption {
	return func(r *renderer) {
		r.pendingPresentMode = &mode
	}
}

// WithForceSoftwareRenderer forces WGPU to use a CPU/software fallback adapter instead of
// hardware GPU acceleration. This requires a software Vulkan ICD to be installed on the system
// (e.g. SwiftShader or lavapipe). Other backends ignore it.
//
// Parameters:
//   - force: true to force the software fallback adapter, false to use hardware (default)
//
// Returns:
//   - RendererBuilderOption: a function that applies the force software renderer option to a renderer
func WithForceSoftwareRenderer(force bool) RendererBuilderOption {
	return func(r *renderer) {
		r.forceFallbackAdapter = force
	}
}

// WithFetchWorkers sets how many modules and lookup textures a load fetches at once. Defaults to 4.
//
// Parameters:
//   - n: the number of fetch workers; values below 1 are treated as 1
//
// Returns:
//   - RendererBuilderOption: a function that applies the fetch workers option to a renderer
func WithFetchWorkers(n int) RendererBuilderOption {
	return func(r *renderer) {
		r.fetchWorkers = max(n, 1)
	}
}

// WithResizePolicy sets what Render does on sessions that are being resized. Defaults to ResizeBlock.
//
// Parameters:
//   - policy: ResizeBlock or ResizeReject
//
// Returns:
//   - RendererBuilderOption: a function that applies the resize policy option to a renderer
func WithResizePolicy(policy ResizePolicy) RendererBuilderOption {
	return func(r *renderer) {
		r.resizePolicy = policy
	}
}

// WithStubs registers fallback definitions for symbols that modules expect from shared includes.
//
// Parameters:
//   - stubs: the stubs, consulted before the built-in catalog
//
// Returns:
//   - RendererBuilderOption: a function that applies the stubs option to a renderer
func WithStubs(stubs ...shader.Stub) RendererBuilderOption {
	return func(r *renderer) {
		r.stubs = append(r.stubs, stubs...)
	}
}

// WithSurfaceSize sets the initial output surface size when no window is given.
//
// Parameters:
//   - width: the surface width in pixels
//   - height: the surface height in pixels
//
// Returns:
//   - RendererBuilderOption: a function that applies the surface size option to a renderer
func WithSurfaceSize(width, height int) RendererBuilderOption {
	return func(r *renderer) {
		r.surfaceSize = common.Size{Width: width, Height: height}
	}
}

// WithBackend uses an already created backend instead of creating one for the backend type.
//
// Parameters:
//   - backend: the backend the renderer takes ownership of
//
// Returns:
//   - RendererBuilderOption: a function that applies the backend option to a renderer
func WithBackend(backend RendererBackend) RendererBuilderOption {
	return func(r *renderer) {
		r.backend = backend
	}
}
