package shader

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-crt/common"
)

// Stage identifies a programmable stage of a module.
type Stage int

const (
	// StageShared marks text before the first stage marker; it belongs to both stages.
	StageShared Stage = iota
	StageVertex
	StageFragment
)

func (s Stage) String() string {
	switch s {
	case StageShared:
		return "shared"
	case StageVertex:
		return "vertex"
	case StageFragment:
		return "fragment"
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// Visible reports whether a declaration made in stage s can be seen from stage other.
func (s Stage) Visible(other Stage) bool {
	return s == StageShared || s == other
}

// UniformKind is the value type of a flat uniform.
type UniformKind int

const (
	KindFloat UniformKind = iota
	KindVec2
	KindVec3
	KindVec4
	KindInt
	KindUint
	KindBool
	KindMat4
	KindSampler2D
)

var uniformKindNames = map[string]UniformKind{
	"float":     KindFloat,
	"vec2":      KindVec2,
	"vec3":      KindVec3,
	"vec4":      KindVec4,
	"int":       KindInt,
	"uint":      KindUint,
	"bool":      KindBool,
	"mat4":      KindMat4,
	"sampler2D": KindSampler2D,
}

// ParseUniformKind maps a GLSL type name to a UniformKind.
//
// Parameters:
//   - glslType: the GLSL type name (e.g. "vec4")
//
// Returns:
//   - UniformKind: the kind
//   - bool: false if the type cannot be carried by a flat uniform
func ParseUniformKind(glslType string) (UniformKind, bool) {
	k, ok := uniformKindNames[glslType]
	return k, ok
}

// GLSL returns the GLSL type name of the kind.
func (k UniformKind) GLSL() string {
	for name, kind := range uniformKindNames {
		if kind == k {
			return name
		}
	}
	return "float"
}

func (k UniformKind) String() string {
	return k.GLSL()
}

// Components returns the number of scalar components of the kind.
func (k UniformKind) Components() int {
	switch k {
	case KindVec2:
		return 2
	case KindVec3:
		return 3
	case KindVec4:
		return 4
	case KindMat4:
		return 16
	}
	return 1
}

// UniformSource records where a uniform came from in the module text.
type UniformSource int

const (
	// SourcePragmaParameter is a #pragma parameter with no block member of the same name.
	SourcePragmaParameter UniformSource = iota
	// SourcePushConstant is a member of a push_constant block.
	SourcePushConstant
	// SourceUniformBlock is a member of a descriptor-set uniform block.
	SourceUniformBlock
	// SourceBuiltinGlobal is a plain uniform declared outside any block.
	SourceBuiltinGlobal
	// SourceTexture is a sampler uniform.
	SourceTexture
)

func (s UniformSource) String() string {
	switch s {
	case SourcePragmaParameter:
		return "pragma-parameter"
	case SourcePushConstant:
		return "push-constant"
	case SourceUniformBlock:
		return "uniform-block"
	case SourceBuiltinGlobal:
		return "builtin-global"
	case SourceTexture:
		return "texture"
	}
	return fmt.Sprintf("UniformSource(%d)", int(s))
}

// UniformBinding is one flat uniform of a compiled module.
type UniformBinding struct {
	// Name is the uniform as it appears in the emitted program (PARAM_X for emulated members).
	Name string

	// Semantic is the name the value is looked up by: the parameter or builtin name (X).
	Semantic string

	Kind   UniformKind
	Source UniformSource

	// Stage is the section the uniform was declared in.
	Stage Stage
}

// TextureBinding is one sampler of a compiled module. Unit is the sampler's position in
// declaration order and is the texture unit it is bound to.
type TextureBinding struct {
	Name string
	Unit int
}

// Parameter is a tunable declared with #pragma parameter.
type Parameter struct {
	Name    string
	Label   string
	Default float32
	Min     float32
	Max     float32
	Step    float32
}

// Clamp limits v to the parameter's range.
func (p Parameter) Clamp(v float32) float32 {
	if p.Min <= p.Max {
		if v < p.Min {
			return p.Min
		}
		if v > p.Max {
			return p.Max
		}
	}
	return v
}

// CompiledModule is the output of compiling one pass's module: stage bodies in GLSL 3.30 core
// without a #version line, and the binding tables built while rewriting them.
type CompiledModule struct {
	Pass int
	Path string

	Vertex   string
	Fragment string

	// Uniforms are the flat value and sampler uniforms in declaration order.
	Uniforms []UniformBinding

	// Textures are the samplers in declaration order.
	Textures []TextureBinding

	// Parameters are the #pragma parameter declarations of the module and its includes.
	Parameters []Parameter

	// Alias is the #pragma name of the module, if any.
	Alias string

	// Format is the #pragma format of the module; HasFormat is false when absent.
	Format    common.PixelFormat
	HasFormat bool

	// VertexInputs are the vertex attribute names in declaration order.
	VertexInputs []VertexInput

	Warnings []*MissingSymbolWarning
}

// VertexInput is a vertex attribute and its explicit location (-1 when none was given).
type VertexInput struct {
	Name     string
	Location int
}

// Uniform returns the binding whose Name is name.
func (m *CompiledModule) Uniform(name string) (UniformBinding, bool) {
	for _, u := range m.Uniforms {
		if u.Name == name {
			return u, true
		}
	}
	return UniformBinding{}, false
}

// ValueUniforms returns the non-sampler uniforms in declaration order.
func (m *CompiledModule) ValueUniforms() []UniformBinding {
	out := make([]UniformBinding, 0, len(m.Uniforms))
	for _, u := range m.Uniforms {
		if u.Kind != KindSampler2D {
			out = append(out, u)
		}
	}
	return out
}
