package engine

import (
	"log/slog"
	"maps"
	"time"

	"github.com/Carmen-Shannon/oxy-crt/engine/config"
	"github.com/Carmen-Shannon/oxy-crt/engine/renderer"
	"github.com/Carmen-Shannon/oxy-crt/engine/window"
)

// EngineBuilderOption is a functional option for configuring an Engine.
// Use the With* functions to create options that are applied directly to the engine instance.
type EngineBuilderOption func(*engine)

// WithProfiling enables or disables performance profiling output.
//
// Parameters:
//   - enabled: if true, enables performance profiling
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithProfiling(enabled bool) EngineBuilderOption {
	return func(e *engine) {
		e.profilingEnabled = enabled
	}
}

// WithTickRate sets the engine tick rate in frames per second.
// Values <= 0 will be treated as the default (60Hz).
//
// Parameters:
//   - fps: target ticks per second (default 60)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithTickRate(fps float64) EngineBuilderOption {
	return func(e *engine) {
		if fps <= 0 {
			fps = 60.0
		}
		e.engineTickRate = time.Duration(float64(time.Second) / fps)
	}
}

// WithWindow sets the window the engine renders into and takes input from.
//
// Parameters:
//   - w: a pre-configured Window instance
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithWindow(w window.Window) EngineBuilderOption {
	return func(e *engine) {
		e.window = w
	}
}

// WithRenderer sets the renderer presets are loaded into. The engine releases it when Run returns.
//
// Parameters:
//   - r: the renderer, created for the same window
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithRenderer(r renderer.Renderer) EngineBuilderOption {
	return func(e *engine) {
		e.renderer = r
	}
}

// WithLogger sets the logger for load results, render failures and profiler output.
//
// Parameters:
//   - logger: the logger; nil keeps slog.Default()
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithLogger(logger *slog.Logger) EngineBuilderOption {
	return func(e *engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithRenderFrameLimit sets an optional render frame rate cap in frames per second.
// Pass 0 to uncap the render loop (default).
//
// Parameters:
//   - fps: maximum render frames per second (0 = uncapped)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithRenderFrameLimit(fps float64) EngineBuilderOption {
	return func(e *engine) {
		e.renderFrameLimit = frameDuration(fps)
	}
}

// WithInputSource sets the source of input frames. Defaults to a 640x480 TestPattern.
//
// Parameters:
//   - src: the input source
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithInputSource(src InputSource) EngineBuilderOption {
	return func(e *engine) {
		e.input = src
	}
}

// WithShaderRoot sets the directory relative preset paths resolve from.
//
// Parameters:
//   - dir: the shader root
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithShaderRoot(dir string) EngineBuilderOption {
	return func(e *engine) {
		e.shaderRoot = dir
	}
}

// WithPreset loads a preset before the first frame.
//
// Parameters:
//   - path: the preset path, relative to the shader root or absolute
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithPreset(path string) EngineBuilderOption {
	return func(e *engine) {
		e.presetPath = path
	}
}

// WithParameterOverrides sets parameter values applied after every preset load. Parameters the
// preset does not declare are skipped with a warning.
//
// Parameters:
//   - overrides: values keyed by parameter name
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithParameterOverrides(overrides map[string]float32) EngineBuilderOption {
	return func(e *engine) {
		maps.Copy(e.overrides, overrides)
	}
}

// WithConfig applies the engine settings of a host configuration: title, profiling, frame limit,
// shader root, startup preset and parameter overrides. Window and renderer settings are applied by
// NewEngineFromConfig.
//
// Parameters:
//   - cfg: the configuration
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithConfig(cfg config.Config) EngineBuilderOption {
	return func(e *engine) {
		if cfg.Window.Title != "" {
			e.title = cfg.Window.Title
		}
		e.profilingEnabled = cfg.Profiling
		e.renderFrameLimit = frameDuration(cfg.FrameLimit)
		if cfg.Preset.ShaderRoot != "" {
			e.shaderRoot = cfg.Preset.ShaderRoot
		}
		e.presetPath = cfg.Preset.Path
		maps.Copy(e.overrides, cfg.Preset.Parameters)
	}
}
