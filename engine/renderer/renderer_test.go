package renderer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-crt/common"
	"github.com/Carmen-Shannon/oxy-crt/engine/renderer/framebuffer"
	"github.com/Carmen-Shannon/oxy-crt/engine/renderer/graph"
	"github.com/Carmen-Shannon/oxy-crt/engine/renderer/shader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// passModule builds a module that samples each of samplers and, when param is set, scales the
// result by a parameter that lives in the push block.
func passModule(param string, samplers ...string) string {
	var b strings.Builder
	b.WriteString("#version 450\n\nlayout(push_constant) uniform Push\n{\n\tvec4 SourceSize;\n\tvec4 OutputSize;\n\tuint FrameCount;\n")
	if param != "" {
		fmt.Fprintf(&b, "\tfloat %s;\n", param)
	}
	b.WriteString("} params;\n\n")
	if param != "" {
		fmt.Fprintf(&b, "#pragma parameter %s \"%s\" 0.5 0.0 1.0 0.05\n\n", param, param)
	}
	b.WriteString(`layout(std140, set = 0, binding = 0) uniform UBO
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
`)
	for i, s := range samplers {
		fmt.Fprintf(&b, "layout(set = 0, binding = %d) uniform sampler2D %s;\n", i+1, s)
	}
	b.WriteString("\nvoid main()\n{\n\tvec4 c = vec4(0.0);\n")
	for _, s := range samplers {
		fmt.Fprintf(&b, "\tc += texture(%s, vTexCoord);\n", s)
	}
	if param != "" {
		fmt.Fprintf(&b, "\tc *= params.%s;\n", param)
	}
	b.WriteString("\tFragColor = c;\n}\n")
	return b.String()
}

func newHeadless(t *testing.T, options ...RendererBuilderOption) (*renderer, *headlessRendererBackend) {
	t.Helper()
	options = append([]RendererBuilderOption{WithSurfaceSize(320, 240)}, options...)
	r, err := NewRenderer(BackendTypeHeadless, nil, options...)
	require.NoError(t, err)
	t.Cleanup(r.Release)
	return r.(*renderer), r.Backend().(*headlessRendererBackend)
}

func load(t *testing.T, r Renderer, text string, files common.MapResolver) *session {
	t.Helper()
	s, err := r.LoadPreset(context.Background(), text, files)
	require.NoError(t, err)
	return s.(*session)
}

func inputFrame(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func uniform(t *testing.T, cmd DrawCommand, name string) shader.Value {
	t.Helper()
	for _, u := range cmd.Uniforms {
		if u.Binding.Name == name {
			return u.Value
		}
	}
	require.Failf(t, "uniform not set", "pass %d has no uniform %s", cmd.Pass, name)
	return shader.Value{}
}

func pngBytes(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, inputFrame(2, 2, color.RGBA{R: 255, A: 255})))
	return buf.String()
}

var blurredPreset = `shaders = 3
shader0 = shaders/first.slang
shader1 = shaders/blur.slang
alias1 = Blurred
shader2 = shaders/final.slang
`

func blurredFiles() common.MapResolver {
	return common.MapResolver{
		"shaders/first.slang": passModule("", "Source"),
		"shaders/blur.slang":  passModule("BLUR", "Source"),
		"shaders/final.slang": passModule("", "Blurred", "Original"),
	}
}

func TestLoadPresetPassCountFollowsShaderKeys(t *testing.T) {
	r, backend := newHeadless(t)
	text := `shaders = 3
shader2 = c.slang
shader0 = a.slang
shader1 = b.slang
`
	files := common.MapResolver{
		"a.slang": passModule("", "Source"),
		"b.slang": passModule("", "Source"),
		"c.slang": passModule("", "Source"),
	}
	s := load(t, r, text, files)

	require.Len(t, s.Graph().Passes, 3)
	assert.Equal(t, "a.slang", s.Graph().Passes[0].Module.Path)
	assert.Equal(t, "c.slang", s.Graph().Passes[2].Module.Path)
	assert.Len(t, backend.pipelines, 3)
	assert.Same(t, s, r.ActiveSession())
}

func TestRenderBindsOneUnitPerSampler(t *testing.T) {
	r, backend := newHeadless(t)
	s := load(t, r, blurredPreset, blurredFiles())

	require.NoError(t, r.Render(s, inputFrame(64, 48, color.RGBA{G: 255, A: 255})))

	for i, gp := range s.Graph().Passes {
		draws := backend.drawsOf(i)
		require.Len(t, draws, 1)
		cmd := draws[0]
		require.Len(t, cmd.Textures, len(gp.Module.Textures), "pass %d", i)
		for unit, tu := range cmd.Textures {
			assert.Equal(t, unit, tu.Unit)
			assert.Equal(t, gp.Module.Textures[unit].Name, tu.Name)
		}
	}
	assert.Equal(t, uint64(1), s.FrameCount())
}

func TestRenderBlurredAlias(t *testing.T) {
	r, backend := newHeadless(t)
	s := load(t, r, blurredPreset, blurredFiles())

	require.NoError(t, s.Render(inputFrame(64, 48, color.RGBA{B: 255, A: 255})))

	first := backend.drawsOf(0)[0]
	blur := backend.drawsOf(1)[0]
	final := backend.drawsOf(2)[0]

	require.Len(t, final.Textures, 2)
	assert.Same(t, blur.Target, final.Textures[0].Texture, "Blurred binds pass 1's output")
	assert.NotSame(t, first.Target, final.Textures[0].Texture)
	assert.Same(t, first.Textures[0].Texture, final.Textures[1].Texture, "Original binds the input frame")
	assert.Same(t, first.Target, blur.Textures[0].Texture, "Source of pass 1 is pass 0")
}

func TestSetParameterReachesPushBlockUniform(t *testing.T) {
	r, backend := newHeadless(t)
	s := load(t, r, blurredPreset, blurredFiles())

	v, ok := s.Parameter("BLUR")
	require.True(t, ok)
	assert.InDelta(t, 0.5, v, 1e-6)

	require.NoError(t, r.SetParameter(s, "BLUR", 0.7))
	require.NoError(t, s.Render(inputFrame(64, 48, color.RGBA{A: 255})))

	got := uniform(t, backend.drawsOf(1)[0], "PARAM_BLUR")
	assert.Equal(t, shader.KindFloat, got.Kind)
	assert.InDelta(t, 0.7, got.Floats[0], 1e-6)

	require.NoError(t, s.SetParameter("BLUR", 3))
	v, _ = s.Parameter("BLUR")
	assert.InDelta(t, 1.0, v, 1e-6, "values are clamped to the declared range")

	var unknown *UnknownParameterError
	require.ErrorAs(t, s.SetParameter("NOPE", 1), &unknown)
	assert.Equal(t, "NOPE", unknown.Name)
}

func TestPresetOverridesParameterDefault(t *testing.T) {
	r, _ := newHeadless(t)
	text := blurredPreset + "parameters = BLUR\nBLUR = 0.25\n"
	s := load(t, r, text, blurredFiles())

	v, ok := s.Parameter("BLUR")
	require.True(t, ok)
	assert.InDelta(t, 0.25, v, 1e-6)

	params := s.Parameters()
	require.Len(t, params, 1)
	assert.Equal(t, "BLUR", params[0].Name)
	assert.InDelta(t, 0.5, params[0].Default, 1e-6)
}

func TestRenderBuiltinUniforms(t *testing.T) {
	r, backend := newHeadless(t)
	s := load(t, r, blurredPreset, blurredFiles())

	for range 2 {
		require.NoError(t, s.Render(inputFrame(64, 48, color.RGBA{A: 255})))
	}

	first := backend.drawsOf(0)
	require.Len(t, first, 2)
	assert.Equal(t, shader.Vec4Value(64, 48, 1.0/64, 1.0/48), uniform(t, first[0], "PARAM_SourceSize"))
	assert.Equal(t, shader.Mat4Value(orthoMVP(false)), uniform(t, first[0], "PARAM_MVP"))
	assert.Equal(t, uint32(0), uniform(t, first[0], "PARAM_FrameCount").Uint)
	assert.Equal(t, uint32(1), uniform(t, first[1], "PARAM_FrameCount").Uint)

	final := backend.drawsOf(2)[0]
	assert.Equal(t, shader.Vec4Value(320, 240, 1.0/320, 1.0/240), uniform(t, final, "PARAM_OutputSize"),
		"the last pass renders at the viewport size by default")
}

func TestLoadPresetTwiceIsIdempotent(t *testing.T) {
	r, backend := newHeadless(t)
	input := inputFrame(64, 48, color.RGBA{R: 10, A: 255})

	a := load(t, r, blurredPreset, blurredFiles())
	require.NoError(t, a.Render(input))
	liveAfterFirst := backend.liveCount()

	b := load(t, r, blurredPreset, blurredFiles())
	require.NoError(t, b.Render(input))

	assert.ErrorIs(t, a.Render(input), ErrSessionDisposed, "a completed load disposes the previous session")
	assert.Same(t, b, r.ActiveSession())
	assert.Equal(t, liveAfterFirst, backend.liveCount())
	assert.Len(t, backend.pipelines, 3)

	require.Len(t, b.Graph().Passes, len(a.Graph().Passes))
	for i := range a.Graph().Passes {
		pa, pb := a.Graph().Passes[i], b.Graph().Passes[i]
		assert.Equal(t, pa.Alias, pb.Alias)
		assert.Equal(t, pa.Retained, pb.Retained)
		assert.Equal(t, pa.LastReader, pb.LastReader)
		assert.Equal(t, pa.Textures, pb.Textures)
		assert.Equal(t, pa.Uniforms, pb.Uniforms)
		assert.Equal(t, pa.Module.Vertex, pb.Module.Vertex)
		assert.Equal(t, pa.Module.Fragment, pb.Module.Fragment)
	}
}

func TestRenderUnreferencedPassFreesScratch(t *testing.T) {
	r, backend := newHeadless(t)
	text := "shaders = 3\nshader0 = a.slang\nshader1 = b.slang\nshader2 = c.slang\n"
	files := common.MapResolver{
		"a.slang": passModule("", "Source"),
		"b.slang": passModule("", "Original"),
		"c.slang": passModule("", "Source"),
	}
	s := load(t, r, text, files)
	g := s.Graph()
	require.Equal(t, -1, g.Passes[0].LastReader)
	require.False(t, g.Passes[0].Retained)

	require.NoError(t, s.Render(inputFrame(64, 48, color.RGBA{A: 255})))

	first := backend.drawsOf(0)[0]
	second := backend.drawsOf(1)[0]
	assert.Same(t, first.Target, second.Target, "pass 1 reuses the target pass 0 released")

	stats := s.FramebufferStats()
	assert.Equal(t, framebuffer.Stats{ScratchFree: 2, Created: 2}, stats)

	require.NoError(t, s.Render(inputFrame(64, 48, color.RGBA{A: 255})))
	assert.Equal(t, 2, s.FramebufferStats().Created, "steady state allocates nothing")
}

func TestRenderFeedbackAndHistory(t *testing.T) {
	r, backend := newHeadless(t)
	text := "shaders = 2\nshader0 = a.slang\nshader1 = b.slang\n"
	files := common.MapResolver{
		"a.slang": passModule("", "Source", "PassFeedback1", "OriginalHistory1"),
		"b.slang": passModule("", "Source"),
	}
	s := load(t, r, text, files)
	require.Equal(t, 1, s.Graph().HistoryDepth)
	require.True(t, s.Graph().Passes[1].Feedback)

	require.NoError(t, s.Render(inputFrame(64, 48, color.RGBA{R: 1, A: 255})))
	require.NoError(t, s.Render(inputFrame(64, 48, color.RGBA{R: 2, A: 255})))

	passZero := backend.drawsOf(0)
	passOne := backend.drawsOf(1)
	require.Len(t, passZero, 2)

	assert.Same(t, passOne[0].Target, passZero[1].Textures[1].Texture, "feedback is last frame's output of pass 1")
	assert.NotSame(t, passOne[1].Target, passOne[0].Target, "feedback passes alternate targets")
	assert.Same(t, passZero[0].Textures[0].Texture, passZero[1].Textures[2].Texture, "history 1 is last frame's input")
	assert.NotSame(t, passZero[1].Textures[0].Texture, passZero[1].Textures[2].Texture)
}

func TestRenderFrameCountMod(t *testing.T) {
	r, backend := newHeadless(t)
	text := "shaders = 2\nshader0 = a.slang\nframe_count_mod0 = 2\nshader1 = b.slang\n"
	files := common.MapResolver{
		"a.slang": passModule("", "Source"),
		"b.slang": passModule("", "Source"),
	}
	s := load(t, r, text, files)
	require.True(t, s.Graph().Passes[0].Retained)

	for range 3 {
		require.NoError(t, s.Render(inputFrame(64, 48, color.RGBA{A: 255})))
	}
	assert.Len(t, backend.drawsOf(0), 2, "pass 0 draws on frames 0 and 2")
	second := backend.drawsOf(1)[1]
	assert.Same(t, backend.drawsOf(0)[0].Target, second.Textures[0].Texture, "a skipped pass keeps its output")
}

func TestRenderFailureAbandonsFrame(t *testing.T) {
	r, backend := newHeadless(t)
	s := load(t, r, blurredPreset, blurredFiles())
	input := inputFrame(64, 48, color.RGBA{A: 255})

	backend.failDraw[1] = errors.New("device lost")
	err := s.Render(input)
	var renderErr *RenderError
	require.ErrorAs(t, err, &renderErr)
	assert.Equal(t, 1, renderErr.Pass)
	assert.Equal(t, 1, backend.aborted)
	assert.Empty(t, backend.present)
	assert.Equal(t, uint64(0), s.FrameCount())

	delete(backend.failDraw, 1)
	require.NoError(t, s.Render(input))
	assert.Len(t, backend.present, 1)
	assert.Equal(t, 0, s.FramebufferStats().ScratchInUse)
}

func TestLoadPresetStageErrors(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		files common.MapResolver
		stage LoadStage
		cause any
	}{
		{
			name:  "parse",
			text:  "shaders = two\nshader0 = a.slang\n",
			stage: LoadStageParse,
		},
		{
			name:  "fetch",
			text:  "shaders = 1\nshader0 = missing.slang\n",
			files: common.MapResolver{},
			stage: LoadStageFetch,
		},
		{
			name:  "compile",
			text:  "shaders = 1\nshader0 = a.slang\n",
			files: common.MapResolver{"a.slang": "#version 450\n#pragma stage vertex\nvoid main() {}\n"},
			stage: LoadStageCompile,
		},
		{
			name:  "graph",
			text:  "shaders = 1\nshader0 = a.slang\n",
			files: common.MapResolver{"a.slang": passModule("", "Nowhere")},
			stage: LoadStageGraph,
			cause: new(*graph.UnboundTextureError),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, backend := newHeadless(t)
			files := tt.files
			if files == nil {
				files = common.MapResolver{}
			}
			_, err := r.LoadPreset(context.Background(), tt.text, files)

			var loadErr *LoadError
			require.ErrorAs(t, err, &loadErr)
			assert.Equal(t, tt.stage, loadErr.Stage)
			if tt.cause != nil {
				assert.ErrorAs(t, err, tt.cause)
			}
			assert.Nil(t, r.ActiveSession())
			assert.Empty(t, backend.pipelines)
		})
	}
}

func TestLoadPresetRollsBackInstall(t *testing.T) {
	r, backend := newHeadless(t)
	text := blurredPreset + "textures = Mask;Broken\nMask = mask.png\nBroken = broken.png\n"
	files := blurredFiles()
	files["mask.png"] = pngBytes(t)
	files["broken.png"] = pngBytes(t)
	backend.failTarget["Broken"] = errors.New("out of memory")

	_, err := r.LoadPreset(context.Background(), text, files)
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, LoadStageInstall, loadErr.Stage)
	assert.Empty(t, backend.pipelines, "registered pipelines are released")
	assert.Zero(t, backend.liveCount(), "created textures are destroyed")
}

func TestLoadPresetKeepsActiveSessionOnFailure(t *testing.T) {
	r, _ := newHeadless(t)
	good := load(t, r, blurredPreset, blurredFiles())

	_, err := r.LoadPreset(context.Background(), "shaders = 1\nshader0 = missing.slang\n", common.MapResolver{})
	require.Error(t, err)
	assert.Same(t, good, r.ActiveSession())
	assert.NoError(t, good.Render(inputFrame(8, 8, color.RGBA{A: 255})))
}

func TestLoadPresetSuperseded(t *testing.T) {
	r, _ := newHeadless(t)
	entered := make(chan struct{})
	blocking := common.ResolverFunc(func(ctx context.Context, name string) ([]byte, error) {
		close(entered)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	done := make(chan error, 1)
	go func() {
		_, err := r.LoadPreset(context.Background(), "shaders = 1\nshader0 = slow.slang\n", blocking)
		done <- err
	}()
	<-entered

	s := load(t, r, blurredPreset, blurredFiles())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrSuperseded)
	case <-time.After(5 * time.Second):
		t.Fatal("superseded load did not return")
	}
	assert.Same(t, s, r.ActiveSession())
}

func TestLoadPresetFileResolvesRelativePaths(t *testing.T) {
	r, _ := newHeadless(t)
	files := common.MapResolver{
		"presets/crt.slangp": "shaders = 1\nshader0 = ../shaders/crt.slang\n",
		"shaders/crt.slang":  passModule("", "Source"),
	}
	s, err := r.LoadPresetFile(context.Background(), "presets/crt.slangp", files)
	require.NoError(t, err)
	assert.Equal(t, "shaders/crt.slang", s.Graph().Passes[0].Module.Path)
}

func TestRenderResizePolicy(t *testing.T) {
	r, _ := newHeadless(t, WithResizePolicy(ResizeReject))
	s := load(t, r, blurredPreset, blurredFiles())
	input := inputFrame(64, 48, color.RGBA{A: 255})

	s.stateMu.Lock()
	s.resizing = true
	s.stateMu.Unlock()
	assert.ErrorIs(t, s.Render(input), ErrResizeInProgress)

	s.stateMu.Lock()
	s.resizing = false
	s.stateMu.Unlock()
	assert.NoError(t, s.Render(input))
}

func TestRenderRejectsReentry(t *testing.T) {
	r, _ := newHeadless(t)
	s := load(t, r, blurredPreset, blurredFiles())

	s.renderMu.Lock()
	err := s.Render(inputFrame(8, 8, color.RGBA{A: 255}))
	s.renderMu.Unlock()
	assert.ErrorIs(t, err, ErrRenderInProgress)
}

func TestResizeRecreatesRetainedTargets(t *testing.T) {
	r, backend := newHeadless(t)
	s := load(t, r, blurredPreset, blurredFiles())
	input := inputFrame(64, 48, color.RGBA{A: 255})
	require.NoError(t, s.Render(input))

	require.NoError(t, r.Resize(640, 480))
	assert.Equal(t, common.Size{Width: 640, Height: 480}, backend.SurfaceSize())

	require.NoError(t, s.Render(input))
	final := backend.drawsOf(2)[1]
	assert.Equal(t, common.Size{Width: 640, Height: 480}, final.Target.Size())
	assert.Equal(t, shader.Vec4Value(640, 480, 1.0/640, 1.0/480), uniform(t, final, "PARAM_OutputSize"))
}

func TestDisposeReleasesEverything(t *testing.T) {
	r, backend := newHeadless(t)
	s := load(t, r, blurredPreset, blurredFiles())
	require.NoError(t, s.Render(inputFrame(64, 48, color.RGBA{A: 255})))
	require.NotZero(t, backend.liveCount())

	r.Dispose(s)
	assert.Zero(t, backend.liveCount())
	assert.Empty(t, backend.pipelines)
	assert.Nil(t, r.ActiveSession())
	assert.ErrorIs(t, s.Render(inputFrame(8, 8, color.RGBA{A: 255})), ErrSessionDisposed)
	assert.ErrorIs(t, s.SetParameter("BLUR", 0.1), ErrSessionDisposed)

	s.Dispose()
}

func TestLoadPresetStageLocalPushBlocks(t *testing.T) {
	r, backend := newHeadless(t)
	files := common.MapResolver{"local.slang": `#version 450
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
`}
	s := load(t, r, "shader0 = local.slang\n", files)

	require.NoError(t, s.Render(inputFrame(64, 48, color.RGBA{A: 255})))
	got := uniform(t, backend.drawsOf(0)[0], "PARAM_SourceSize")
	assert.InDelta(t, 64, got.Floats[0], 1e-6)
	assert.InDelta(t, 48, got.Floats[1], 1e-6)
}

func TestRenderSizeOnlyReferences(t *testing.T) {
	r, backend := newHeadless(t)
	files := blurredFiles()
	files["shaders/final.slang"] = `#version 450
layout(push_constant) uniform Push { vec4 PassOutput0Size; vec4 OriginalHistorySize2; } params;
#pragma stage vertex
layout(location = 0) in vec4 Position;
layout(location = 1) in vec2 TexCoord;
layout(location = 0) out vec2 vTexCoord;
void main() { gl_Position = Position; vTexCoord = TexCoord; }
#pragma stage fragment
layout(location = 0) in vec2 vTexCoord;
layout(location = 0) out vec4 FragColor;
uniform sampler2D Source;
void main() { FragColor = texture(Source, vTexCoord * params.PassOutput0Size.zw * params.OriginalHistorySize2.xy); }
`
	s := load(t, r, blurredPreset, files)
	assert.True(t, s.Graph().Passes[0].Retained)
	assert.Equal(t, 2, s.Graph().HistoryDepth)

	for range 2 {
		require.NoError(t, s.Render(inputFrame(64, 48, color.RGBA{A: 255})))
	}
	final := backend.drawsOf(2)
	require.Len(t, final, 2)
	out := uniform(t, final[1], "PARAM_PassOutput0Size")
	assert.InDelta(t, 64, out.Floats[0], 1e-6)
	history := uniform(t, final[1], "PARAM_OriginalHistorySize2")
	assert.InDelta(t, 48, history.Floats[1], 1e-6)
}

func TestCheckStageDeclarations(t *testing.T) {
	y := shader.UniformBinding{
		Name:     "PARAM_Y",
		Semantic: "Y",
		Kind:     shader.KindFloat,
		Source:   shader.SourcePragmaParameter,
		Stage:    shader.StageVertex,
	}
	m := &shader.CompiledModule{
		Vertex:   "uniform float PARAM_Y;\nfloat Y;\nvoid main() {\n    Y = PARAM_Y;\n}\n",
		Fragment: "out vec4 FragColor;\nvoid main() { FragColor = vec4(Y); }\n",
		Uniforms: []shader.UniformBinding{y},
	}
	require.NoError(t, checkStageDeclarations(m))

	m.Uniforms[0].Stage = shader.StageShared
	err := checkStageDeclarations(m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fragment stage does not declare uniform PARAM_Y")

	m.Fragment = "uniform float PARAM_Y;\nfloat Y;\nvoid main() { }\n"
	err = checkStageDeclarations(m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fragment stage never initializes Y")
}

func TestRenderRejectsEmptyInput(t *testing.T) {
	r, _ := newHeadless(t)
	s := load(t, r, blurredPreset, blurredFiles())
	assert.ErrorIs(t, s.Render(nil), ErrNoInput)
	assert.ErrorIs(t, s.Render(image.NewRGBA(image.Rect(0, 0, 0, 0))), ErrNoInput)
}

func TestParseBackendType(t *testing.T) {
	for _, want := range []RendererBackendType{BackendTypeWGPU, BackendTypeGL, BackendTypeHeadless} {
		got, err := ParseBackendType(want.String())
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseBackendType("vulkan")
	assert.Error(t, err)
}

func TestFullscreenVertexData(t *testing.T) {
	data := fullscreenVertexData()
	assert.Len(t, data, 3*shader.FullscreenVertexStride)
}
