package shader

import (
	"context"
	"errors"
	"io/fs"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/Carmen-Shannon/oxy-crt/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scanlineModule is a typical two-stage module: push constants, a descriptor-set UBO, a parameter
// that lives in the push block, and one sampler.
const scanlineModule = `#version 450

layout(push_constant) uniform Push
{
	vec4 SourceSize;
	vec4 OriginalSize;
	vec4 OutputSize;
	uint FrameCount;
	float SCANLINE_WEIGHT;
} params;

#pragma parameter SCANLINE_WEIGHT "Scanline Weight" 0.5 0.0 1.0 0.05

layout(std140, set = 0, binding = 0) uniform UBO
{
	mat4 MVP;
} global;

#pragma stage vertex
layout(location = 0) in vec4 Position;
layout(location = 1) in vec2 TexCoord;
layout(location = 0) out vec2 vTexCoord;

void main()
{
	gl_Position = global.MVP * Position;
	vTexCoord = TexCoord;
}

#pragma stage fragment
layout(location = 0) in vec2 vTexCoord;
layout(location = 0) out vec4 FragColor;
layout(set = 0, binding = 2) uniform sampler2D Source;

void main()
{
	vec3 c = texture(Source, vTexCoord).rgb;
	FragColor = vec4(c * params.SCANLINE_WEIGHT, 1.0);
}
`

func compile(t *testing.T, resolver common.Resolver, path, source string, options ...CompilerBuilderOption) (*CompiledModule, error) {
	t.Helper()
	if resolver == nil {
		resolver = common.MapResolver{}
	}
	return NewCompiler(resolver, options...).Compile(context.Background(), 0, path, source)
}

func TestCompileEmulatesBlocks(t *testing.T) {
	m, err := compile(t, nil, "shaders/scanline.slang", scanlineModule)
	require.NoError(t, err)

	assert.NotContains(t, m.Vertex, "#version")
	assert.NotContains(t, m.Vertex, "#pragma")
	assert.NotContains(t, m.Vertex, "push_constant")
	assert.NotContains(t, m.Vertex, "global.")
	assert.NotContains(t, m.Fragment, "params.")

	assert.Contains(t, m.Vertex, "uniform float PARAM_SCANLINE_WEIGHT;\nfloat SCANLINE_WEIGHT;")
	assert.Contains(t, m.Vertex, "uniform mat4 PARAM_MVP;\nmat4 MVP;")
	assert.Contains(t, m.Vertex, "gl_Position = MVP * Position;")
	assert.Contains(t, m.Vertex, "SCANLINE_WEIGHT = PARAM_SCANLINE_WEIGHT;")
	assert.Contains(t, m.Fragment, "FragColor = vec4(c * SCANLINE_WEIGHT, 1.0);")
	assert.Contains(t, m.Fragment, "MVP = PARAM_MVP;")

	names := make([]string, 0, len(m.Uniforms))
	for _, u := range m.Uniforms {
		names = append(names, u.Name)
	}
	assert.Equal(t, []string{
		"PARAM_SourceSize", "PARAM_OriginalSize", "PARAM_OutputSize", "PARAM_FrameCount",
		"PARAM_SCANLINE_WEIGHT", "PARAM_MVP", "Source",
	}, names)

	weight, ok := m.Uniform("PARAM_SCANLINE_WEIGHT")
	require.True(t, ok)
	assert.Equal(t, "SCANLINE_WEIGHT", weight.Semantic)
	assert.Equal(t, SourcePushConstant, weight.Source)
	assert.Equal(t, KindFloat, weight.Kind)

	mvp, ok := m.Uniform("PARAM_MVP")
	require.True(t, ok)
	assert.Equal(t, SourceUniformBlock, mvp.Source)
	assert.Equal(t, KindMat4, mvp.Kind)

	frameCount, ok := m.Uniform("PARAM_FrameCount")
	require.True(t, ok)
	assert.Equal(t, KindUint, frameCount.Kind)

	assert.Len(t, m.ValueUniforms(), 6)
	require.Len(t, m.Parameters, 1)
	assert.Equal(t, "SCANLINE_WEIGHT", m.Parameters[0].Name)
}

func TestCompileStripsBindingSyntax(t *testing.T) {
	m, err := compile(t, nil, "shaders/scanline.slang", scanlineModule)
	require.NoError(t, err)

	assert.Contains(t, m.Fragment, "uniform sampler2D Source;")
	assert.NotContains(t, m.Fragment, "binding")
	assert.NotContains(t, m.Fragment, "layout(location = 0) in vec2 vTexCoord")
	assert.NotContains(t, m.Vertex, "layout(location = 0) out vec2 vTexCoord")
	assert.Contains(t, m.Vertex, "layout(location = 0) in vec4 Position;")
	assert.Contains(t, m.Fragment, "layout(location = 0) out vec4 FragColor;")

	require.Len(t, m.Textures, 1)
	assert.Equal(t, TextureBinding{Name: "Source", Unit: 0}, m.Textures[0])
	assert.Equal(t, []VertexInput{{Name: "Position", Location: 0}, {Name: "TexCoord", Location: 1}}, m.VertexInputs)
}

func TestCompileSplitsStages(t *testing.T) {
	m, err := compile(t, nil, "shaders/scanline.slang", scanlineModule)
	require.NoError(t, err)

	assert.Equal(t, 1, strings.Count(m.Vertex, "void main()"))
	assert.Equal(t, 1, strings.Count(m.Fragment, "void main()"))
	assert.Contains(t, m.Vertex, "vTexCoord = TexCoord;")
	assert.NotContains(t, m.Vertex, "FragColor")
	assert.NotContains(t, m.Fragment, "gl_Position")
	// the shared section reaches both stages
	assert.Contains(t, m.Fragment, "vec4 SourceSize;")
}

func TestCompileMissingStage(t *testing.T) {
	src := "#pragma stage vertex\nvoid main() { gl_Position = vec4(0.0); }\n"
	_, err := compile(t, nil, "a.slang", src)

	var stageErr *MissingStageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageFragment, stageErr.Stage)
}

func TestCompilePragmaParameterOutsideBlock(t *testing.T) {
	src := `#pragma parameter GAMMA "Gamma" 2.2 1.0 3.0 0.1
#pragma parameter UNUSED "Unused" 1.0 0.0 2.0
#pragma stage vertex
layout(location = 0) in vec4 Position;
void main() { gl_Position = Position; }
#pragma stage fragment
layout(location = 0) out vec4 FragColor;
void main()
{
	FragColor = vec4(pow(vec3(0.5), vec3(GAMMA)), 1.0);
}
`
	m, err := compile(t, nil, "gamma.slang", src)
	require.NoError(t, err)

	gamma, ok := m.Uniform("PARAM_GAMMA")
	require.True(t, ok)
	assert.Equal(t, SourcePragmaParameter, gamma.Source)
	assert.Equal(t, StageShared, gamma.Stage)
	assert.Contains(t, m.Fragment, "uniform float PARAM_GAMMA;\nfloat GAMMA;")
	assert.Contains(t, m.Fragment, "GAMMA = PARAM_GAMMA;")

	_, ok = m.Uniform("PARAM_UNUSED")
	assert.False(t, ok, "unreferenced parameters get no uniform")
	assert.Len(t, m.Parameters, 2)
}

func TestCompileLegacyParameterUniform(t *testing.T) {
	src := `#pragma parameter GAMMA "Gamma" 2.2 1.0 3.0 0.1
#pragma stage vertex
layout(location = 0) in vec4 Position;
void main() { gl_Position = Position; }
#pragma stage fragment
uniform float GAMMA;
layout(location = 0) out vec4 FragColor;
void main() { FragColor = vec4(GAMMA); }
`
	m, err := compile(t, nil, "legacy.slang", src)
	require.NoError(t, err)

	gamma, ok := m.Uniform("PARAM_GAMMA")
	require.True(t, ok)
	assert.Equal(t, StageFragment, gamma.Stage)
	assert.NotContains(t, m.Fragment, "uniform float GAMMA;")
	assert.Equal(t, 1, strings.Count(m.Fragment, "uniform float PARAM_GAMMA;"))
	assert.NotContains(t, m.Vertex, "PARAM_GAMMA", "fragment declarations stay out of the vertex stage")
}

func TestCompileParameterReconciliation(t *testing.T) {
	src := `#pragma parameter WIDTH "Width" 5.0 0.0 1.0
#pragma parameter WIDTH "Width again" 0.25 0.0 1.0
#pragma stage vertex
void main() { gl_Position = vec4(0.0); }
#pragma stage fragment
void main() { }
`
	m, err := compile(t, nil, "params.slang", src)
	require.NoError(t, err)
	require.Len(t, m.Parameters, 1)
	assert.Equal(t, "Width", m.Parameters[0].Label)
	assert.Equal(t, float32(1.0), m.Parameters[0].Default, "defaults are clamped into range")
}

func TestCompileNameAndFormatPragmas(t *testing.T) {
	src := `#pragma name Blurred
#pragma format R16G16B16A16_SFLOAT
#pragma stage vertex
void main() { gl_Position = vec4(0.0); }
#pragma stage fragment
void main() { }
`
	m, err := compile(t, nil, "blur.slang", src)
	require.NoError(t, err)
	assert.Equal(t, "Blurred", m.Alias)
	assert.True(t, m.HasFormat)
	assert.Equal(t, common.FormatRGBA16Float, m.Format)
}

func TestCompileMalformedPragma(t *testing.T) {
	src := "#pragma parameter BROKEN \"Broken\" 1.0\n#pragma stage vertex\n#pragma stage fragment\n"
	_, err := compile(t, nil, "broken.slang", src)

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Contains(t, parseErr.Error(), "line 1")
}

func TestCompileMemberRewriteLeavesNoBlockAccess(t *testing.T) {
	src := `layout(push_constant) uniform Push { vec4 OutputSize; } params;
#pragma stage vertex
void main() { gl_Position = vec4(params.OutputSize.xy, 0.0, 1.0); }
#pragma stage fragment
layout(location = 0) out vec4 FragColor;
void main() { FragColor = vec4(params.Missing); }
`
	_, err := compile(t, nil, "member.slang", src)

	var memberErr *UnresolvedMemberReferenceError
	require.ErrorAs(t, err, &memberErr)
	assert.Equal(t, "params.Missing", memberErr.Reference)
	assert.Equal(t, 6, memberErr.Line)
}

func TestCompileDuplicateMembersDeclaredOnce(t *testing.T) {
	src := `layout(push_constant) uniform Push { vec4 SourceSize; float WEIGHT; } params;
layout(std140, set = 0, binding = 0) uniform UBO { mat4 MVP; vec4 SourceSize; } global;
#pragma stage vertex
void main() { gl_Position = global.MVP * params.SourceSize * global.SourceSize * params.WEIGHT; }
#pragma stage fragment
void main() { }
`
	m, err := compile(t, nil, "dup.slang", src)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(m.Vertex, "uniform vec4 PARAM_SourceSize;"))
	assert.Contains(t, m.Vertex, "gl_Position = MVP * SourceSize * SourceSize * WEIGHT;")
}

// stageLocalUniformModule declares the parameter uniform separately in each stage.
const stageLocalUniformModule = `#version 450
#pragma parameter Y "Y" 0.5 0.0 1.0 0.1
#pragma stage vertex
layout(location = 0) in vec4 Position;
layout(location = 1) in vec2 TexCoord;
layout(location = 0) out vec2 vTexCoord;
uniform float Y;
void main() { gl_Position = Position * Y; vTexCoord = TexCoord; }
#pragma stage fragment
layout(location = 0) in vec2 vTexCoord;
layout(location = 0) out vec4 FragColor;
uniform float Y;
uniform sampler2D Source;
void main() { FragColor = texture(Source, vTexCoord) * Y; }
`

// stageLocalPushModule declares the same push block separately in each stage.
const stageLocalPushModule = `#version 450
#pragma stage vertex
layout(push_constant) uniform Push { vec4 SourceSize; } params;
layout(location = 0) in vec4 Position;
layout(location = 1) in vec2 TexCoord;
layout(location = 0) out vec2 vTexCoord;
void main() { gl_Position = Position; vTexCoord = TexCoord * params.SourceSize.xy; }
#pragma stage fragment
layout(push_constant) uniform Push { vec4 SourceSize; } params;
layout(location = 0) in vec2 vTexCoord;
layout(location = 0) out vec4 FragColor;
uniform sampler2D Source;
void main() { FragColor = texture(Source, vTexCoord * params.SourceSize.zw); }
`

func TestCompileStageLocalDeclarations(t *testing.T) {
	tests := []struct {
		name   string
		source string
		member string
		typ    string
		use    string
	}{
		{name: "uniform", source: stageLocalUniformModule, member: "Y", typ: "float", use: "texture(Source, vTexCoord) * Y;"},
		{name: "push block", source: stageLocalPushModule, member: "SourceSize", typ: "vec4", use: "texture(Source, vTexCoord * SourceSize.zw);"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := compile(t, nil, "local.slang", tt.source)
			require.NoError(t, err)

			decl := "uniform " + tt.typ + " PARAM_" + tt.member + ";\n" + tt.typ + " " + tt.member + ";"
			init := tt.member + " = PARAM_" + tt.member + ";"
			for stage, text := range map[string]string{"vertex": m.Vertex, "fragment": m.Fragment} {
				assert.Equal(t, 1, strings.Count(text, decl), "%s stage declaration", stage)
				assert.Equal(t, 1, strings.Count(text, init), "%s stage initializer", stage)
				assert.NotContains(t, text, "params.", "%s stage", stage)
			}
			assert.Contains(t, m.Fragment, tt.use)

			u, ok := m.Uniform("PARAM_" + tt.member)
			require.True(t, ok)
			assert.Equal(t, StageShared, u.Stage)
			count := 0
			for _, b := range m.Uniforms {
				if b.Semantic == tt.member {
					count++
				}
			}
			assert.Equal(t, 1, count)
			require.Len(t, m.Textures, 1)
		})
	}
}

func TestCompileStageLocalSamplerBoundOnce(t *testing.T) {
	src := `#pragma stage vertex
uniform sampler2D LUT;
layout(location = 0) out vec2 vTexCoord;
void main() { vTexCoord = texture(LUT, vec2(0.5)).xy; gl_Position = vec4(0.0); }
#pragma stage fragment
layout(location = 0) in vec2 vTexCoord;
layout(location = 0) out vec4 FragColor;
uniform sampler2D LUT;
void main() { FragColor = texture(LUT, vTexCoord); }
`
	m, err := compile(t, nil, "lut.slang", src)
	require.NoError(t, err)
	assert.Contains(t, m.Vertex, "uniform sampler2D LUT;")
	assert.Contains(t, m.Fragment, "uniform sampler2D LUT;")
	assert.Equal(t, []TextureBinding{{Name: "LUT", Unit: 0}}, m.Textures)
	u, ok := m.Uniform("LUT")
	require.True(t, ok)
	assert.Equal(t, StageShared, u.Stage)
}

func TestCompileMissingSymbol(t *testing.T) {
	src := `#pragma stage vertex
void main() { gl_Position = vec4(0.0); }
#pragma stage fragment
layout(location = 0) out vec4 FragColor;
void main()
{
	FragColor = vec4(undefinedCurve(0.5));
}
`
	_, err := NewCompiler(common.MapResolver{}).Compile(context.Background(), 3, "missing.slang", src)

	var missing *MissingSymbolError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "undefinedCurve", missing.Symbol)
	assert.Equal(t, 3, missing.Pass)
	assert.Equal(t, 7, missing.Line)
}

func TestCompileInjectsStubs(t *testing.T) {
	src := `#pragma stage vertex
void main() { gl_Position = vec4(PI); }
#pragma stage fragment
layout(location = 0) out vec4 FragColor;
void main() { FragColor = vec4(saturate(1.5)); }
`
	m, err := compile(t, nil, "stubs.slang", src)
	require.NoError(t, err)
	assert.Contains(t, m.Vertex, "#define PI ")
	assert.Contains(t, m.Fragment, "#define saturate(c) clamp(c, 0.0, 1.0)")
	assert.Empty(t, m.Warnings)
}

func TestCompileCustomStubsTakePrecedence(t *testing.T) {
	src := `#pragma stage vertex
void main() { gl_Position = vec4(PI * HALF); }
#pragma stage fragment
void main() { }
`
	m, err := compile(t, nil, "custom.slang", src,
		WithStubs(Stub{Name: "PI", Source: "#define PI 3.0\n"}, Stub{Name: "HALF", Source: "#define HALF 0.5\n"}))
	require.NoError(t, err)
	assert.Contains(t, m.Vertex, "#define PI 3.0\n")
	assert.Contains(t, m.Vertex, "#define HALF 0.5\n")
	assert.NotContains(t, m.Vertex, "3.14159")
}

func TestCompileCosmeticSymbolWarns(t *testing.T) {
	src := `COMPAT_PRECISION float weight = 0.5;
#pragma stage vertex
void main() { gl_Position = vec4(weight); }
#pragma stage fragment
void main() { }
`
	m, err := compile(t, nil, "cosmetic.slang", src)
	require.NoError(t, err)
	require.Len(t, m.Warnings, 1)
	assert.Equal(t, "COMPAT_PRECISION", m.Warnings[0].Symbol)
	assert.Contains(t, m.Vertex, "#define COMPAT_PRECISION\n")
}

const commonInclude = `#define SCALE 2.0
float luma(vec3 c)
{
	return dot(c, vec3(0.299, 0.587, 0.114));
}
`

func TestCompilePassLocalDefinitionBeatsInclude(t *testing.T) {
	src := `#version 450
#include "../inc/common.inc"
#define SCALE 3.0
float luma(vec3 c)
{
	return c.g;
}
#pragma stage vertex
layout(location = 0) in vec4 Position;
void main()
{
	gl_Position = Position * SCALE;
}
#pragma stage fragment
layout(location = 0) out vec4 FragColor;
void main()
{
	FragColor = vec4(luma(vec3(0.5)));
}
`
	resolver := common.MapResolver{"inc/common.inc": commonInclude}
	m, err := compile(t, resolver, "shaders/pass.slang", src)
	require.NoError(t, err)

	for _, stage := range []string{m.Vertex, m.Fragment} {
		assert.Equal(t, 1, strings.Count(stage, "#define SCALE"), "no macro redefinition")
		assert.Contains(t, stage, "#define SCALE 3.0")
		assert.NotContains(t, stage, "0.299")
		assert.Contains(t, stage, "return c.g;")
		assert.Contains(t, stage, "float luma(vec3 c);\n")
	}
}

func TestCompileFirstSharedDefinitionWins(t *testing.T) {
	resolver := common.MapResolver{
		"inc/a.inc": "#define TINT vec3(1.0, 0.0, 0.0)\n",
		"inc/b.inc": "#define TINT vec3(0.0, 1.0, 0.0)\n",
	}
	src := `#include "inc/a.inc"
#include "inc/b.inc"
#pragma stage vertex
void main() { gl_Position = vec4(TINT, 1.0); }
#pragma stage fragment
void main() { }
`
	m, err := compile(t, resolver, "tint.slang", src)
	require.NoError(t, err)
	assert.Contains(t, m.Vertex, "vec3(1.0, 0.0, 0.0)")
	assert.NotContains(t, m.Vertex, "vec3(0.0, 1.0, 0.0)")
}

func TestCompileUndefExemptsMacros(t *testing.T) {
	resolver := common.MapResolver{"inc/a.inc": "#define MODE 1\n"}
	src := `#include "inc/a.inc"
#undef MODE
#define MODE 2
#pragma stage vertex
void main() { gl_Position = vec4(MODE); }
#pragma stage fragment
void main() { }
`
	m, err := compile(t, resolver, "undef.slang", src)
	require.NoError(t, err)
	assert.Contains(t, m.Vertex, "#define MODE 1")
	assert.Contains(t, m.Vertex, "#define MODE 2")
}

func TestCompileCachesIncludes(t *testing.T) {
	var fetches atomic.Int32
	files := common.MapResolver{"inc/common.inc": commonInclude}
	resolver := common.ResolverFunc(func(ctx context.Context, name string) ([]byte, error) {
		fetches.Add(1)
		return files.Resolve(ctx, name)
	})

	c := NewCompiler(resolver)
	src := `#include "../inc/common.inc"
#pragma stage vertex
void main() { gl_Position = vec4(luma(vec3(SCALE))); }
#pragma stage fragment
void main() { }
`
	for pass := range 3 {
		_, err := c.Compile(context.Background(), pass, "shaders/pass.slang", src)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), fetches.Load())
	assert.Equal(t, []string{"inc/common.inc"}, c.Includes())
}

func TestCompileIncludeOnce(t *testing.T) {
	resolver := common.MapResolver{"inc/common.inc": commonInclude}
	src := `#include "inc/common.inc"
#include "inc/common.inc"
#pragma stage vertex
void main() { gl_Position = vec4(SCALE); }
#pragma stage fragment
void main() { }
`
	m, err := compile(t, resolver, "once.slang", src)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(m.Vertex, "#define SCALE"))
}

func TestCompileIncludeCycle(t *testing.T) {
	resolver := common.MapResolver{
		"shaders/a.inc": "#include \"b.inc\"\n",
		"shaders/b.inc": "#include \"a.inc\"\n",
	}
	_, err := compile(t, resolver, "shaders/main.slang", "#include \"a.inc\"\n#pragma stage vertex\n#pragma stage fragment\n")

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Contains(t, parseErr.Msg, "include cycle")
	assert.Equal(t, "shaders/b.inc", parseErr.File)
}

func TestCompileMissingInclude(t *testing.T) {
	_, err := compile(t, nil, "shaders/main.slang", "#include \"nowhere.inc\"\n#pragma stage vertex\n#pragma stage fragment\n")

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, 1, parseErr.Line)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestCompileRenamesVaryingsByLocation(t *testing.T) {
	src := `#pragma stage vertex
layout(location = 0) in vec4 Position;
layout(location = 1) in vec2 TexCoord;
layout(location = 0) out vec2 vTexCoord;
void main() { gl_Position = Position; vTexCoord = TexCoord; }
#pragma stage fragment
layout(location = 0) in vec2 uv;
layout(location = 0) out vec4 FragColor;
uniform sampler2D Source;
void main() { FragColor = texture(Source, uv.xy); }
`
	m, err := compile(t, nil, "rename.slang", src)
	require.NoError(t, err)
	assert.Contains(t, m.Fragment, "in vec2 vTexCoord;")
	assert.Contains(t, m.Fragment, "texture(Source, vTexCoord.xy)")
	assert.NotContains(t, m.Fragment, " uv")
}

func TestCompileUnmatchedVarying(t *testing.T) {
	src := `#pragma stage vertex
layout(location = 0) out vec2 vTexCoord;
void main() { gl_Position = vec4(0.0); vTexCoord = vec2(0.0); }
#pragma stage fragment
layout(location = 3) in vec2 uv;
layout(location = 0) out vec4 FragColor;
void main() { FragColor = vec4(uv, 0.0, 1.0); }
`
	_, err := compile(t, nil, "unmatched.slang", src)

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Contains(t, parseErr.Msg, "uv")
}

func TestCompileCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewCompiler(common.MapResolver{}).Compile(ctx, 0, "a.slang", scanlineModule)
	assert.ErrorIs(t, err, context.Canceled)
}
