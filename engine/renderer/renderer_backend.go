package renderer

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/Carmen-Shannon/oxy-crt/common"
	"github.com/Carmen-Shannon/oxy-crt/engine/renderer/framebuffer"
	"github.com/Carmen-Shannon/oxy-crt/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-crt/engine/renderer/shader"
)

// RendererBackendType identifies the GPU backend implementation used by the Renderer.
type RendererBackendType int

const (
	// BackendTypeWGPU selects the WebGPU-based rendering backend.
	BackendTypeWGPU RendererBackendType = iota

	// BackendTypeGL selects the OpenGL 3.3 core backend. The window must own a current GL context.
	BackendTypeGL

	// BackendTypeHeadless selects a backend that records draw calls without touching a GPU.
	BackendTypeHeadless
)

func (t RendererBackendType) String() string {
	switch t {
	case BackendTypeWGPU:
		return "wgpu"
	case BackendTypeGL:
		return "gl"
	case BackendTypeHeadless:
		return "headless"
	}
	return fmt.Sprintf("RendererBackendType(%d)", int(t))
}

// ParseBackendType parses a backend name as written in host configuration.
//
// Parameters:
//   - s: "wgpu", "gl" or "headless"
//
// Returns:
//   - RendererBackendType: the backend type
//   - error: an error if the name is unknown
func ParseBackendType(s string) (RendererBackendType, error) {
	for _, t := range []RendererBackendType{BackendTypeWGPU, BackendTypeGL, BackendTypeHeadless} {
		if t.String() == s {
			return t, nil
		}
	}
	return BackendTypeWGPU, fmt.Errorf("unknown backend %q", s)
}

// PresentMode controls how rendered frames are presented to the display surface.
type PresentMode int

const (
	// PresentModeVSync waits for the next vertical blank before presenting, capping frame rate
	// to the monitor's refresh rate. Eliminates tearing.
	PresentModeVSync PresentMode = iota

	// PresentModeUncapped presents frames immediately without waiting for vertical blank.
	// May cause screen tearing but provides the lowest latency.
	PresentModeUncapped
)

// Texture is a sampleable backend texture: an input frame, a lookup texture, or a pass target.
type Texture interface {
	Size() common.Size
}

// TextureUnit is one texture bound for a draw. Units are bound in slice order.
type TextureUnit struct {
	Unit    int
	Name    string
	Texture Texture
	Sampler common.SamplerStagingData
}

// UniformValue is one value uniform set for a draw.
type UniformValue struct {
	Binding shader.UniformBinding
	Value   shader.Value
}

// DrawCommand is everything a backend needs to run one pass: the program, the target, and the
// resolved textures and uniform values.
type DrawCommand struct {
	Pass     int
	Pipeline pipeline.Pipeline
	Target   framebuffer.Target
	Textures []TextureUnit
	Uniforms []UniformValue
}

// RendererBackend is the GPU API a Renderer drives. Every method is called from the goroutine
// that owns the graphics context.
type RendererBackend interface {
	framebuffer.Allocator

	// Type reports which backend this is.
	Type() RendererBackendType

	// RegisterPipeline compiles a pass pipeline's program and stores the backend handle on it.
	//
	// Parameters:
	//   - p: the pipeline holding the pass's compiled module
	//
	// Returns:
	//   - error: an error if the backend rejects the program
	RegisterPipeline(p pipeline.Pipeline) error

	// ReleasePipeline destroys the backend objects created by RegisterPipeline.
	//
	// Parameters:
	//   - p: a registered pipeline
	ReleasePipeline(p pipeline.Pipeline)

	// CreateTexture uploads pixel data into a new sampleable texture.
	//
	// Parameters:
	//   - label: a debug label
	//   - data: the RGBA8 pixels
	//   - mipmap: whether to allocate and generate a full mip chain
	//
	// Returns:
	//   - Texture: the texture
	//   - error: an error if the upload fails
	CreateTexture(label string, data common.TextureStagingData, mipmap bool) (Texture, error)

	// WriteTexture replaces the pixels of a texture created by CreateTexture with same-size data.
	//
	// Parameters:
	//   - t: the texture
	//   - data: the new pixels
	//
	// Returns:
	//   - error: an error if the sizes differ or the upload fails
	WriteTexture(t Texture, data common.TextureStagingData) error

	// DestroyTexture releases a texture created by CreateTexture.
	DestroyTexture(t Texture)

	// GenerateMipmaps fills the mip chain of a texture or target from its level 0.
	GenerateMipmaps(t Texture)

	// BeginFrame starts recording a frame.
	//
	// Returns:
	//   - error: an error if the surface could not be acquired
	BeginFrame() error

	// Draw runs one pass: binds the target and textures, sets uniforms, and draws the
	// full-screen triangle.
	//
	// Parameters:
	//   - cmd: the draw command
	//
	// Returns:
	//   - error: an error if the draw could not be encoded
	Draw(cmd DrawCommand) error

	// Present copies the final pass's output onto the surface and shows it.
	//
	// Parameters:
	//   - t: the final pass target
	//
	// Returns:
	//   - error: an error if the copy or present fails
	Present(t Texture) error

	// AbortFrame discards everything recorded since BeginFrame; nothing is presented.
	AbortFrame()

	// ConfigureSurface resizes the output surface.
	ConfigureSurface(width, height int)

	// SurfaceSize returns the output surface size in pixels.
	SurfaceSize() common.Size

	// SetPresentMode sets the surface present mode. It takes effect on the next ConfigureSurface.
	SetPresentMode(mode PresentMode)

	// MVP returns the matrix that maps the full-screen triangle's [0, 1] positions to clip space
	// with texture row 0 at the top of every target.
	MVP() [16]float32

	// Release destroys the device and surface.
	Release()
}

// fullscreenTriangle is a single triangle covering [0, 1]² in the vertex layout of
// shader.FullscreenVertexStride: vec4 position then vec2 texture coordinate.
var fullscreenTriangle = [3][6]float32{
	{0, 0, 0, 1, 0, 0},
	{2, 0, 0, 1, 2, 0},
	{0, 2, 0, 1, 0, 2},
}

// fullscreenVertexData returns fullscreenTriangle as little-endian bytes.
func fullscreenVertexData() []byte {
	out := make([]byte, 0, len(fullscreenTriangle)*shader.FullscreenVertexStride)
	for _, v := range fullscreenTriangle {
		for _, f := range v {
			out = binary.LittleEndian.AppendUint32(out, math.Float32bits(f))
		}
	}
	return out
}

// orthoMVP maps [0, 1]² to clip space. flipY maps y = 0 to the top of the clip rectangle, for APIs
// whose framebuffer row 0 is the top row.
func orthoMVP(flipY bool) [16]float32 {
	if flipY {
		return [16]float32{
			2, 0, 0, 0,
			0, -2, 0, 0,
			0, 0, 1, 0,
			-1, 1, 0, 1,
		}
	}
	return [16]float32{
		2, 0, 0, 0,
		0, 2, 0, 0,
		0, 0, 1, 0,
		-1, -1, 0, 1,
	}
}
