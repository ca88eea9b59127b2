package shader

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
)

// ShaderType identifies the pipeline stage a shader runs in.
type ShaderType int

const (
	// ShaderTypeVertex is the vertex shader type, used for vertex processing in render pipelines.
	ShaderTypeVertex ShaderType = iota

	// ShaderTypeFragment is the fragment shader type, used for fragment processing in pair with a vertex shader.
	ShaderTypeFragment
)

// FullscreenVertexStride is the byte stride of one full-screen triangle vertex: a vec4 position at
// location 0 followed by a vec2 texture coordinate at location 1.
const FullscreenVertexStride = 24

// fullscreenAttributes maps an attribute location of the full-screen triangle to its format and offset.
var fullscreenAttributes = map[int]wgpu.VertexAttribute{
	0: {Format: wgpu.VertexFormatFloat32x4, Offset: 0, ShaderLocation: 0},
	1: {Format: wgpu.VertexFormatFloat32x2, Offset: 16, ShaderLocation: 1},
}

// shader is the implementation of the Shader interface.
// It holds all of the persistent shader data required for WebGPU pipeline creation.
type shader struct {
	key           string
	source        string
	shaderType    ShaderType
	vertexLayouts []wgpu.VertexBufferLayout
	entryPoint    string
	module        *wgpu.ShaderModuleDescriptor
}

// Shader is one stage of a pass program, ready to become a WebGPU shader module. It exposes the
// shader's unique key, source code, entry point and vertex buffer layouts needed for pipeline creation.
type Shader interface {
	// Key retrieves the unique identifier for this shader, used for caching and lookups.
	//
	// Returns:
	//   - string: the shader's unique key
	Key() string

	// Source retrieves the shader source code.
	//
	// Returns:
	//   - string: the GLSL 4.50 or WGSL source of the shader
	Source() string

	// VertexLayouts retrieves the vertex buffer layouts the shader reads. Fragment shaders have none.
	//
	// Returns:
	//   - []wgpu.VertexBufferLayout: the vertex buffer layouts
	VertexLayouts() []wgpu.VertexBufferLayout

	// EntryPoint returns the entry point name for this shader.
	//
	// Returns:
	//   - string: the entry point name (e.g. "main")
	EntryPoint() string

	// Module returns the wgpu.ShaderModuleDescriptor for this shader.
	//
	// Returns:
	//   - *wgpu.ShaderModuleDescriptor: the shader module descriptor containing the code and label
	Module() *wgpu.ShaderModuleDescriptor

	// ShaderType returns the type of the shader (vertex or fragment).
	//
	// Returns:
	//   - ShaderType: ShaderTypeVertex or ShaderTypeFragment
	ShaderType() ShaderType
}

var _ Shader = &shader{}

// NewShader creates a Shader for one stage of a retargeted module.
//
// Parameters:
//   - key: a unique identifier for the shader, used for labels and lookups
//   - shaderType: the stage to take from r
//   - r: the retargeted module
//
// Returns:
//   - Shader: the new shader
//   - error: an error if a vertex input cannot be fed from the full-screen triangle
func NewShader(key string, shaderType ShaderType, r *Retargeted) (Shader, error) {
	s := &shader{
		key:        key,
		shaderType: shaderType,
		entryPoint: "main",
	}
	stage := wgpu.ShaderStageFragment
	s.source = r.Fragment
	if shaderType == ShaderTypeVertex {
		stage = wgpu.ShaderStageVertex
		s.source = r.Vertex
		layout, err := fullscreenLayout(r.Inputs)
		if err != nil {
			return nil, fmt.Errorf("shader: %s: %w", key, err)
		}
		s.vertexLayouts = []wgpu.VertexBufferLayout{layout}
	}
	s.module = &wgpu.ShaderModuleDescriptor{
		Label: s.key,
		GLSLDescriptor: &wgpu.ShaderModuleGLSLDescriptor{
			Code:        s.source,
			ShaderStage: stage,
		},
	}
	return s, nil
}

// NewWGSLShader creates a Shader from WGSL source. The source is validated before the shader is built.
// WGSL vertex shaders read no vertex buffers; they derive positions from the vertex index.
//
// Parameters:
//   - key: a unique identifier for the shader
//   - shaderType: the stage of the entry point
//   - source: the WGSL source
//   - entryPoint: the entry point function name
//
// Returns:
//   - Shader: the new shader
//   - error: a *ParseError if the source does not validate
func NewWGSLShader(key string, shaderType ShaderType, source, entryPoint string) (Shader, error) {
	if err := ValidateWGSL(key, source); err != nil {
		return nil, err
	}
	s := &shader{
		key:        key,
		source:     source,
		shaderType: shaderType,
		entryPoint: entryPoint,
		module: &wgpu.ShaderModuleDescriptor{
			Label: key,
			WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
				Code: source,
			},
		},
	}
	return s, nil
}

func (s *shader) Key() string {
	return s.key
}

func (s *shader) Source() string {
	return s.source
}

func (s *shader) VertexLayouts() []wgpu.VertexBufferLayout {
	return s.vertexLayouts
}

func (s *shader) EntryPoint() string {
	return s.entryPoint
}

func (s *shader) Module() *wgpu.ShaderModuleDescriptor {
	return s.module
}

func (s *shader) ShaderType() ShaderType {
	return s.shaderType
}

// fullscreenLayout builds the vertex buffer layout that feeds inputs from the full-screen triangle.
func fullscreenLayout(inputs []VertexInput) (wgpu.VertexBufferLayout, error) {
	attrs := make([]wgpu.VertexAttribute, 0, len(inputs))
	for _, in := range inputs {
		a, ok := fullscreenAttributes[in.Location]
		if !ok {
			return wgpu.VertexBufferLayout{}, fmt.Errorf("vertex input %s at location %d is not provided", in.Name, in.Location)
		}
		attrs = append(attrs, a)
	}
	return wgpu.VertexBufferLayout{
		ArrayStride: FullscreenVertexStride,
		StepMode:    wgpu.VertexStepModeVertex,
		Attributes:  attrs,
	}, nil
}

// BindGroupLayoutDescriptor builds the layout of the module's single bind group: the Globals
// uniform buffer at binding 0 when the module has value uniforms, then one texture and one sampler
// binding per sampler. Every entry is visible to both stages.
//
// Parameters:
//   - label: the label of the descriptor
//
// Returns:
//   - wgpu.BindGroupLayoutDescriptor: the layout descriptor
func (r *Retargeted) BindGroupLayoutDescriptor(label string) wgpu.BindGroupLayoutDescriptor {
	visibility := wgpu.ShaderStageVertex | wgpu.ShaderStageFragment
	entries := make([]wgpu.BindGroupLayoutEntry, 0, 1+2*len(r.Textures))
	if r.Layout.Size > 0 {
		entries = append(entries, wgpu.BindGroupLayoutEntry{
			Binding:    globalsBinding,
			Visibility: visibility,
			Buffer: wgpu.BufferBindingLayout{
				Type:           wgpu.BufferBindingTypeUniform,
				MinBindingSize: r.Layout.Size,
			},
		})
	}
	for _, t := range r.Textures {
		entries = append(entries,
			wgpu.BindGroupLayoutEntry{
				Binding:    t.TextureBinding,
				Visibility: visibility,
				Texture: wgpu.TextureBindingLayout{
					SampleType:    wgpu.TextureSampleTypeFloat,
					ViewDimension: wgpu.TextureViewDimension2D,
				},
			},
			wgpu.BindGroupLayoutEntry{
				Binding:    t.SamplerBinding,
				Visibility: visibility,
				Sampler: wgpu.SamplerBindingLayout{
					Type: wgpu.SamplerBindingTypeFiltering,
				},
			})
	}
	return wgpu.BindGroupLayoutDescriptor{
		Label:   label,
		Entries: entries,
	}
}

// BindingVarNames maps every binding of the module's bind group to the name it serves: "Globals"
// for the uniform buffer and the sampler name for each texture and sampler binding.
//
// Returns:
//   - map[int]string: names keyed by binding index
func (r *Retargeted) BindingVarNames() map[int]string {
	names := make(map[int]string, 1+2*len(r.Textures))
	if r.Layout.Size > 0 {
		names[globalsBinding] = "Globals"
	}
	for _, t := range r.Textures {
		names[int(t.TextureBinding)] = t.Name
		names[int(t.SamplerBinding)] = t.Name
	}
	return names
}
