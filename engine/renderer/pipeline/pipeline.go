package pipeline

import (
	"github.com/Carmen-Shannon/oxy-crt/common"
	"github.com/Carmen-Shannon/oxy-crt/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

// PipelineType identifies what a pipeline draws.
type PipelineType int

const (
	// PipelineTypePass is a preset pass: a compiled module drawing the full-screen triangle into a pass target.
	PipelineTypePass PipelineType = iota

	// PipelineTypeBlit copies the final pass target onto the output surface.
	PipelineTypeBlit
)

// pipeline is the implementation of the Pipeline interface.
// It holds the program of one pass and the backend objects created from it.
type pipeline struct {
	// pipelineType indicates the type of pipeline this is; pass or blit
	pipelineType PipelineType
	// pipelineKey is the unique identifier for this pipeline, used for labels and lookups
	pipelineKey string

	// module is the compiled pass module; nil for blit pipelines
	module *shader.CompiledModule
	// retargeted is the module rewritten with explicit bindings, required by the WebGPU backend
	retargeted *shader.Retargeted

	vertexShader, fragmentShader shader.Shader

	// format is the pixel format of the target the pipeline renders into
	format common.PixelFormat

	// renderPipeline is set by the WebGPU backend
	renderPipeline *wgpu.RenderPipeline
	// program is the linked program object set by the GL backend
	program uint32
}

// Pipeline defines the interface for the program of one pass. It carries the compiled module and
// its shaders, the target format, and whichever backend handle the active backend created for it.
// Passes draw one opaque full-screen triangle with fixed primitive and color state.
type Pipeline interface {
	// Type returns the type of the pipeline
	//
	// Returns:
	//   - PipelineType: the type of the pipeline (pass or blit)
	Type() PipelineType

	// PipelineKey returns the unique key associated with this pipeline, used for labels and lookups.
	//
	// Returns:
	//   - string: the unique key for this pipeline
	PipelineKey() string

	// Module returns the compiled module the pipeline runs.
	//
	// Returns:
	//   - *shader.CompiledModule: the module, or nil for a blit pipeline
	Module() *shader.CompiledModule

	// Retargeted returns the explicit-binding rewrite of the module.
	//
	// Returns:
	//   - *shader.Retargeted: the rewrite, or nil if none was attached
	Retargeted() *shader.Retargeted

	// Shader retrieves the shader associated with the specified type if it exists, nil otherwise.
	//
	// Parameters:
	//   - shaderType: the type of shader to retrieve (vertex or fragment)
	//
	// Returns:
	//   - shader.Shader: the shader associated with the specified type, or nil if not set
	Shader(shaderType shader.ShaderType) shader.Shader

	// Format returns the pixel format of the target this pipeline renders into.
	//
	// Returns:
	//   - common.PixelFormat: the target format
	Format() common.PixelFormat

	// Pipeline returns the backend object: *wgpu.RenderPipeline for WebGPU, the program name as a
	// uint32 for GL, or nil before registration.
	//
	// Returns:
	//   - any: the underlying pipeline object
	Pipeline() any

	// Program returns the GL program name, or 0 if the pipeline is not registered with a GL backend.
	//
	// Returns:
	//   - uint32: the program name
	Program() uint32

	// SetRenderPipeline sets the WebGPU render pipeline
	//
	// Parameters:
	//   - p: the WebGPU render pipeline to set; nil clears it
	SetRenderPipeline(p *wgpu.RenderPipeline)

	// SetProgram sets the GL program name
	//
	// Parameters:
	//   - program: the linked program; 0 clears it
	SetProgram(program uint32)
}

var _ Pipeline = &pipeline{}

// NewPipeline is the entry point to create a new Pipeline interface. A PipelineType must be specified and provided upon creation.
//
// Parameters:
//   - pipelineKey: the unique key for this pipeline
//   - pipelineType: the type of pipeline to create (pass or blit)
//   - opts: a variadic list of PipelineBuilderOption functions to configure the pipeline
//
// Returns:
//   - Pipeline: a new Pipeline instance with the specified type and configuration
func NewPipeline(pipelineKey string, pipelineType PipelineType, opts ...PipelineBuilderOption) Pipeline {
	p := &pipeline{
		pipelineKey:  pipelineKey,
		pipelineType: pipelineType,
		format:       common.FormatRGBA8Unorm,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *pipeline) Type() PipelineType {
	return p.pipelineType
}

func (p *pipeline) PipelineKey() string {
	return p.pipelineKey
}

func (p *pipeline) Module() *shader.CompiledModule {
	return p.module
}

func (p *pipeline) Retargeted() *shader.Retargeted {
	return p.retargeted
}

func (p *pipeline) Format() common.PixelFormat {
	return p.format
}

func (p *pipeline) Pipeline() any {
	switch {
	case p.renderPipeline != nil:
		return p.renderPipeline
	case p.program != 0:
		return p.program
	default:
		return nil
	}
}

func (p *pipeline) Program() uint32 {
	return p.program
}

func (p *pipeline) Shader(shaderType shader.ShaderType) shader.Shader {
	switch shaderType {
	case shader.ShaderTypeVertex:
		return p.vertexShader
	case shader.ShaderTypeFragment:
		return p.fragmentShader
	default:
		return nil
	}
}

func (p *pipeline) SetRenderPipeline(rp *wgpu.RenderPipeline) {
	p.renderPipeline = rp
}

func (p *pipeline) SetProgram(program uint32) {
	p.program = program
}
