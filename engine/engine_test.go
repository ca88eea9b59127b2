package engine

import (
	"fmt"
	"image/color"
	"path/filepath"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-crt/engine/config"
	"github.com/Carmen-Shannon/oxy-crt/engine/renderer"
	"github.com/Carmen-Shannon/oxy-crt/engine/renderer/shader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSession clamps like a real session and records every SetParameter call.
type fakeSession struct {
	params []renderer.ParameterState
	sets   []string
}

func (f *fakeSession) Parameters() []renderer.ParameterState {
	return append([]renderer.ParameterState(nil), f.params...)
}

func (f *fakeSession) SetParameter(name string, value float32) error {
	for i := range f.params {
		if f.params[i].Name == name {
			f.params[i].Value = f.params[i].Clamp(value)
			f.sets = append(f.sets, name)
			return nil
		}
	}
	return &renderer.UnknownParameterError{Name: name}
}

func newFakeSession() *fakeSession {
	return &fakeSession{params: []renderer.ParameterState{
		{Parameter: shader.Parameter{Name: "CURVATURE", Label: "Curvature", Default: 0.5, Min: 0, Max: 1, Step: 0.1}, Value: 0.5},
		{Parameter: shader.Parameter{Name: "SCANLINES", Default: 50, Min: 0, Max: 100}, Value: 50},
	}}
}

func TestControlsStepUsesDeclaredStep(t *testing.T) {
	s := newFakeSession()
	var c controls
	c.reset(s)

	p, err := c.step(2)
	require.NoError(t, err)
	assert.Equal(t, "CURVATURE", p.Name)
	assert.InDelta(t, 0.7, p.Value, 1e-6)

	// Steps past the range are clamped by the session.
	p, err = c.step(10)
	require.NoError(t, err)
	assert.Equal(t, float32(1), p.Value)
}

func TestControlsStepWithoutDeclaredStep(t *testing.T) {
	s := newFakeSession()
	var c controls
	c.reset(s)
	c.move(1)

	p, err := c.step(-10)
	require.NoError(t, err)
	assert.Equal(t, "SCANLINES", p.Name)
	assert.InDelta(t, 40, p.Value, 1e-4)
}

func TestControlsMoveWraps(t *testing.T) {
	var c controls
	c.reset(newFakeSession())

	c.move(-1)
	p, ok := c.current()
	require.True(t, ok)
	assert.Equal(t, "SCANLINES", p.Name)

	c.move(1)
	p, _ = c.current()
	assert.Equal(t, "CURVATURE", p.Name)
}

func TestControlsWithoutSession(t *testing.T) {
	var c controls
	c.move(1)
	_, ok := c.current()
	assert.False(t, ok)
	_, err := c.step(1)
	assert.Error(t, err)
	assert.Equal(t, "oxy-crt", c.title("oxy-crt", ""))
}

func TestControlsTitle(t *testing.T) {
	var c controls
	c.reset(newFakeSession())
	assert.Equal(t, "oxy-crt - crt-geom.slangp - Curvature: 0.5", c.title("oxy-crt", "crt/crt-geom.slangp"))

	c.move(1)
	assert.Equal(t, "oxy-crt - crt-geom.slangp - SCANLINES: 50", c.title("oxy-crt", "crt/crt-geom.slangp"))
}

func TestPresetLocation(t *testing.T) {
	root := t.TempDir()

	tests := []struct {
		name     string
		path     string
		wantRoot string
		wantRel  string
	}{
		{"relative", "crt/../crt/crt-geom.slangp", root, "crt/crt-geom.slangp"},
		{"absolute under root", filepath.Join(root, "crt", "crt-geom.slangp"), root, "crt/crt-geom.slangp"},
		{"absolute elsewhere", filepath.Join(filepath.Dir(root), "other", "x.slangp"), filepath.Join(filepath.Dir(root), "other"), "x.slangp"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotRoot, gotRel := presetLocation(root, tt.path)
			assert.Equal(t, tt.wantRoot, gotRoot)
			assert.Equal(t, tt.wantRel, gotRel)
		})
	}
}

func TestTestPattern(t *testing.T) {
	src := TestPattern(80, 20, 10)

	img := src(0)
	require.Equal(t, 80, img.Bounds().Dx())
	require.Equal(t, 20, img.Bounds().Dy())
	assert.Equal(t, color.RGBA{128, 128, 128, 255}, img.RGBAAt(0, 0), "scanline starts at the top")
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, img.RGBAAt(0, 5))
	assert.Equal(t, color.RGBA{0, 0, 0, 255}, img.RGBAAt(79, 5))

	// One second at 10 rows per second moves the scanline to row 10.
	img = src(1)
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, img.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{128, 128, 128, 255}, img.RGBAAt(0, 10))
}

func TestRequestPresetKeepsLatest(t *testing.T) {
	e := NewEngine(WithPreset("first.slangp")).(*engine)

	e.RequestPreset("second.slangp")
	e.RequestPreset("third.slangp")

	select {
	case got := <-e.loadRequests:
		assert.Equal(t, "third.slangp", got)
	default:
		t.Fatal("no pending load request")
	}
}

func TestWithConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Window.Title = "crt"
	cfg.Profiling = true
	cfg.FrameLimit = 50
	cfg.Preset.ShaderRoot = "/shaders"
	cfg.Preset.Path = "crt.slangp"
	cfg.Preset.Parameters = map[string]float32{"CURVATURE": 0.2}

	e := NewEngine(WithConfig(cfg), WithParameterOverrides(map[string]float32{"MASK": 1})).(*engine)

	assert.Equal(t, "crt", e.title)
	assert.True(t, e.profilingEnabled)
	assert.Equal(t, 20*time.Millisecond, e.renderFrameLimit)
	assert.Equal(t, "/shaders", e.shaderRoot)
	assert.Equal(t, map[string]float32{"CURVATURE": 0.2, "MASK": 1}, e.overrides)
	assert.Equal(t, "crt.slangp", <-e.loadRequests)
}

func TestFrameDuration(t *testing.T) {
	for _, tt := range []struct {
		fps  float64
		want time.Duration
	}{
		{0, 0},
		{-5, 0},
		{60, time.Second / 60},
		{144, time.Duration(float64(time.Second) / 144)},
	} {
		t.Run(fmt.Sprint(tt.fps), func(t *testing.T) {
			assert.Equal(t, tt.want, frameDuration(tt.fps))
		})
	}
}
