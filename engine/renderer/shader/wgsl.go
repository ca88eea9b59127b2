package shader

import (
	"errors"
	"fmt"

	"github.com/gogpu/naga"
)

// ValidateWGSL parses, lowers and validates WGSL source.
//
// Parameters:
//   - label: names the source in errors
//   - source: the WGSL source
//
// Returns:
//   - error: a *ParseError describing the first problem found, or nil
func ValidateWGSL(label, source string) error {
	ast, err := naga.Parse(source)
	if err != nil {
		return &ParseError{File: label, Msg: "invalid WGSL", Err: err}
	}
	module, err := naga.LowerWithSource(ast, source)
	if err != nil {
		return &ParseError{File: label, Msg: "cannot lower WGSL", Err: err}
	}
	issues, err := naga.Validate(module)
	if err != nil {
		return &ParseError{File: label, Msg: "cannot validate WGSL", Err: err}
	}
	if len(issues) > 0 {
		errs := make([]error, len(issues))
		for i, issue := range issues {
			errs[i] = issue
		}
		return &ParseError{File: label, Msg: fmt.Sprintf("%d validation errors", len(issues)), Err: errors.Join(errs...)}
	}
	return nil
}

// BlitWGSL copies a texture onto the full target with a single oversized triangle. The WebGPU
// backend uses it to present the final pass and to downsample mip levels.
const BlitWGSL = `struct VertexOutput {
    @builtin(position) position: vec4<f32>,
    @location(0) uv: vec2<f32>,
}

@vertex
fn vs_main(@builtin(vertex_index) vertex_index: u32) -> VertexOutput {
    let x = f32(i32(vertex_index) / 2) * 4.0 - 1.0;
    let y = f32(i32(vertex_index) & 1) * 4.0 - 1.0;
    return VertexOutput(vec4<f32>(x, y, 0.0, 1.0), vec2<f32>((x + 1.0) * 0.5, (1.0 - y) * 0.5));
}

@group(0) @binding(0)
var src_texture: texture_2d<f32>;
@group(0) @binding(1)
var src_sampler: sampler;

@fragment
fn fs_main(in: VertexOutput) -> @location(0) vec4<f32> {
    return textureSample(src_texture, src_sampler, in.uv);
}
`
