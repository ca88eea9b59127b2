package pipeline

import (
	"github.com/Carmen-Shannon/oxy-crt/common"
	"github.com/Carmen-Shannon/oxy-crt/engine/renderer/shader"
)

// PipelineBuilderOption is a functional option used to configure a Pipeline during construction.
type PipelineBuilderOption func(*pipeline)

// WithModule sets the compiled module the pipeline runs.
//
// Parameters:
//   - m: the compiled pass module
//
// Returns:
//   - PipelineBuilderOption: a function that sets the module for this pipeline
func WithModule(m *shader.CompiledModule) PipelineBuilderOption {
	return func(p *pipeline) {
		p.module = m
	}
}

// WithRetargeted sets the explicit-binding rewrite of the module.
//
// Parameters:
//   - r: the retargeted module
//
// Returns:
//   - PipelineBuilderOption: a function that sets the retargeted module for this pipeline
func WithRetargeted(r *shader.Retargeted) PipelineBuilderOption {
	return func(p *pipeline) {
		p.retargeted = r
	}
}

// WithVertexShader sets the vertex shader for this pipeline.
//
// Parameters:
//   - s: the vertex shader to use for this pipeline
//
// Returns:
//   - PipelineBuilderOption: a function that sets the vertex shader for this pipeline
func WithVertexShader(s shader.Shader) PipelineBuilderOption {
	return func(p *pipeline) {
		p.vertexShader = s
	}
}

// WithFragmentShader sets the fragment shader for this pipeline.
//
// Parameters:
//   - s: the fragment shader to use for this pipeline
//
// Returns:
//   - PipelineBuilderOption: a function that sets the fragment shader for this pipeline
func WithFragmentShader(s shader.Shader) PipelineBuilderOption {
	return func(p *pipeline) {
		p.fragmentShader = s
	}
}

// WithFormat sets the pixel format of the target the pipeline renders into.
//
// Parameters:
//   - format: the target format
//
// Returns:
//   - PipelineBuilderOption: a function that sets the target format for this pipeline
func WithFormat(format common.PixelFormat) PipelineBuilderOption {
	return func(p *pipeline) {
		p.format = format
	}
}
