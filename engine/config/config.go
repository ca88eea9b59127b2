package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/Carmen-Shannon/oxy-crt/engine/renderer"
	"github.com/Carmen-Shannon/oxy-crt/engine/window"
	"github.com/pelletier/go-toml/v2"
)

// Config is the host configuration file. Every field has a default, so an empty file is valid.
type Config struct {
	// Backend is "wgpu", "gl" or "headless".
	Backend string `toml:"backend"`

	// PresentMode is "vsync" or "uncapped".
	PresentMode string `toml:"present_mode"`

	// Profiling logs frame statistics once a second.
	Profiling bool `toml:"profiling"`

	// FrameLimit caps the render loop in frames per second; 0 leaves it uncapped.
	FrameLimit float64 `toml:"frame_limit"`

	Window   WindowConfig   `toml:"window"`
	Preset   PresetConfig   `toml:"preset"`
	Renderer RendererConfig `toml:"renderer"`
}

// WindowConfig configures the host window.
type WindowConfig struct {
	Title  string `toml:"title"`
	Width  int    `toml:"width"`
	Height int    `toml:"height"`
}

// PresetConfig selects the preset loaded at startup.
type PresetConfig struct {
	// Path is the preset path relative to ShaderRoot. Empty starts with no preset.
	Path string `toml:"path"`

	// ShaderRoot is the directory presets, modules and lookup textures resolve from.
	ShaderRoot string `toml:"shader_root"`

	// Parameters override the preset's parameter values after every load.
	Parameters map[string]float32 `toml:"parameters"`
}

// RendererConfig configures the renderer.
type RendererConfig struct {
	// FetchWorkers is how many modules and textures a load fetches at once.
	FetchWorkers int `toml:"fetch_workers"`

	// ResizePolicy is "block" or "reject".
	ResizePolicy string `toml:"resize_policy"`

	// ForceSoftware requests the WebGPU fallback adapter.
	ForceSoftware bool `toml:"force_software"`
}

// Default returns the configuration used when no file is given.
//
// Returns:
//   - Config: the default configuration
func Default() Config {
	return Config{
		Backend:     "wgpu",
		PresentMode: "vsync",
		Window: WindowConfig{
			Title:  "oxy-crt",
			Width:  1280,
			Height: 720,
		},
		Preset: PresetConfig{
			ShaderRoot: ".",
		},
		Renderer: RendererConfig{
			FetchWorkers: 4,
			ResizePolicy: "block",
		},
	}
}

// Load reads a configuration file over the defaults.
//
// Parameters:
//   - path: the TOML file
//
// Returns:
//   - Config: the configuration
//   - error: an error if the file cannot be read, has unknown keys, or fails validation
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes TOML configuration text over the defaults. Unknown keys are rejected.
//
// Parameters:
//   - data: the TOML text
//
// Returns:
//   - Config: the configuration
//   - error: a decode error with the offending position, or a validation error
func Parse(data []byte) (Config, error) {
	return decode(bytes.NewReader(data))
}

func decode(r io.Reader) (Config, error) {
	cfg := Default()
	dec := toml.NewDecoder(r).DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		var decodeErr *toml.DecodeError
		if errors.As(err, &decodeErr) {
			row, col := decodeErr.Position()
			return Config{}, fmt.Errorf("line %d column %d: %w", row, col, err)
		}
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that every enumerated field names a known value and sizes are positive.
//
// Returns:
//   - error: the first invalid field
func (c Config) Validate() error {
	if _, err := c.BackendType(); err != nil {
		return err
	}
	if _, err := c.PresentModeValue(); err != nil {
		return err
	}
	if _, err := c.ResizePolicyValue(); err != nil {
		return err
	}
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		return fmt.Errorf("window size %dx%d must be positive", c.Window.Width, c.Window.Height)
	}
	if c.FrameLimit < 0 {
		return fmt.Errorf("frame_limit %v must not be negative", c.FrameLimit)
	}
	return nil
}

// BackendType returns the configured renderer backend.
func (c Config) BackendType() (renderer.RendererBackendType, error) {
	return renderer.ParseBackendType(c.Backend)
}

// PresentModeValue returns the configured present mode.
func (c Config) PresentModeValue() (renderer.PresentMode, error) {
	switch c.PresentMode {
	case "vsync", "":
		return renderer.PresentModeVSync, nil
	case "uncapped":
		return renderer.PresentModeUncapped, nil
	}
	return renderer.PresentModeVSync, fmt.Errorf("unknown present_mode %q", c.PresentMode)
}

// ResizePolicyValue returns the configured resize policy.
func (c Config) ResizePolicyValue() (renderer.ResizePolicy, error) {
	switch c.Renderer.ResizePolicy {
	case "block", "":
		return renderer.ResizeBlock, nil
	case "reject":
		return renderer.ResizeReject, nil
	}
	return renderer.ResizeBlock, fmt.Errorf("unknown resize_policy %q", c.Renderer.ResizePolicy)
}

// WindowOptions returns the window options for the configuration. GL backends get a window with a
// GL context.
//
// Returns:
//   - []window.WindowBuilderOption: the options for window.NewWindow
func (c Config) WindowOptions() []window.WindowBuilderOption {
	api := window.ClientAPINone
	if t, err := c.BackendType(); err == nil && t == renderer.BackendTypeGL {
		api = window.ClientAPIOpenGL
	}
	return []window.WindowBuilderOption{
		window.WithTitle(c.Window.Title),
		window.WithSize(c.Window.Width, c.Window.Height),
		window.WithSizeLimits(320, 240, max(3840, c.Window.Width), max(2160, c.Window.Height)),
		window.WithClientAPI(api),
	}
}

// RendererOptions returns the renderer options for the configuration. The configuration must be valid.
//
// Parameters:
//   - logger: the renderer's logger
//
// Returns:
//   - []renderer.RendererBuilderOption: the options for renderer.NewRenderer
func (c Config) RendererOptions(logger *slog.Logger) []renderer.RendererBuilderOption {
	mode, _ := c.PresentModeValue()
	policy, _ := c.ResizePolicyValue()
	return []renderer.RendererBuilderOption{
		renderer.WithLogger(logger),
		renderer.WithPresentMode(mode),
		renderer.WithResizePolicy(policy),
		renderer.WithFetchWorkers(c.Renderer.FetchWorkers),
		renderer.WithForceSoftwareRenderer(c.Renderer.ForceSoftware),
		renderer.WithSurfaceSize(c.Window.Width, c.Window.Height),
	}
}
