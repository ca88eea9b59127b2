package preset

import (
	"errors"
	"testing"

	"github.com/Carmen-Shannon/oxy-crt/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const crtRoyale = `
# three pass CRT chain
shaders = 3

shader2 = "shaders/crt.slang"
shader0 = shaders/linearize.slang
shader1 = "shaders/blur.slang"

alias1 = "Blurred"
filter_linear1 = true
scale_type1 = source
scale1 = 0.5
wrap_mode1 = "mirrored_repeat"
mipmap_input2 = true
float_framebuffer1 = true
frame_count_mod0 = 2

parameters = "GAMMA;SCANLINE_WEIGHT;UNUSED"
GAMMA = 2.4
SCANLINE_WEIGHT = "0.7"
UNUSED = 1.0

textures = "MASK;NOISE"
MASK = luts/mask.png
MASK_linear = false
MASK_wrap_mode = repeat
NOISE = luts/noise.png
NOISE_mipmap = true

menu_color = blue
`

func TestParseOrdersPassesByIndex(t *testing.T) {
	p, err := ParseFile("presets/crt-royale.slangp", crtRoyale)
	require.NoError(t, err)
	require.Len(t, p.Passes, 3)

	assert.Equal(t, "shaders/linearize.slang", p.Passes[0].Path)
	assert.Equal(t, "shaders/blur.slang", p.Passes[1].Path)
	assert.Equal(t, "shaders/crt.slang", p.Passes[2].Path)
	for i, pass := range p.Passes {
		assert.Equal(t, i, pass.Index)
	}
	assert.Equal(t, "presets/shaders/crt.slang", p.ModulePath(2))
}

func TestParsePassSettings(t *testing.T) {
	p, err := Parse(crtRoyale)
	require.NoError(t, err)

	blur := p.Passes[1]
	assert.Equal(t, "Blurred", blur.Alias)
	assert.Equal(t, FilterLinear, blur.Filter)
	assert.Equal(t, Scale{Type: ScaleSource, Factor: 0.5}, blur.ScaleX)
	assert.Equal(t, Scale{Type: ScaleSource, Factor: 0.5}, blur.ScaleY)
	assert.Equal(t, common.WrapMirroredRepeat, blur.Wrap)
	format, ok := blur.Format()
	assert.True(t, ok)
	assert.Equal(t, common.FormatRGBA16Float, format)

	assert.Equal(t, uint32(2), p.Passes[0].FrameCountMod)
	assert.Equal(t, FilterUnspecified, p.Passes[0].Filter)
	assert.True(t, p.Passes[2].MipmapInput)

	// Last pass without scale keys renders at viewport size.
	assert.False(t, p.Passes[2].ScaleSet)
	assert.Equal(t, Scale{Type: ScaleViewport, Factor: 1}, p.Passes[2].ScaleX)
}

func TestParseParametersAndTextures(t *testing.T) {
	p, err := Parse(crtRoyale)
	require.NoError(t, err)

	assert.Equal(t, []string{"GAMMA", "SCANLINE_WEIGHT", "UNUSED"}, p.Parameters.Keys)
	v, ok := p.Override("SCANLINE_WEIGHT")
	assert.True(t, ok)
	assert.InDelta(t, 0.7, v, 1e-6)

	require.Len(t, p.Textures, 2)
	assert.Equal(t, Texture{Name: "MASK", Path: "luts/mask.png", Linear: false, Wrap: common.WrapRepeat}, p.Textures[0])
	assert.Equal(t, Texture{Name: "NOISE", Path: "luts/noise.png", Linear: true, Mipmap: true}, p.Textures[1])

	assert.Equal(t, map[string]string{"menu_color": "blue"}, p.Extra)
}

func TestParsePassCountMatchesDistinctShaderKeys(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"declared order", "shader0 = a\nshader1 = b\nshader2 = c", []string{"a", "b", "c"}},
		{"reversed", "shader2 = c\nshader1 = b\nshader0 = a", []string{"a", "b", "c"}},
		{"gap compacts", "shader5 = c\nshader0 = a\nshader3 = b", []string{"a", "b", "c"}},
		{"repeated key", "shader0 = a\nshader1 = b\nshader0 = z", []string{"z", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Parse(tt.text)
			require.NoError(t, err)
			var got []string
			for _, pass := range p.Passes {
				got = append(got, pass.Path)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseSeparateAxisScale(t *testing.T) {
	p, err := Parse("shader0 = a\nscale_type_x0 = viewport\nscale_x0 = 1.0\nscale_type_y0 = absolute\nscale_y0 = 240\nshader1 = b")
	require.NoError(t, err)
	assert.Equal(t, Scale{Type: ScaleViewport, Factor: 1}, p.Passes[0].ScaleX)
	assert.Equal(t, Scale{Type: ScaleAbsolute, Factor: 240}, p.Passes[0].ScaleY)
	assert.Equal(t, 240, p.Passes[0].ScaleY.Apply(100, 1000))
	assert.Equal(t, 1000, p.Passes[0].ScaleX.Apply(100, 1000))
}

func TestParseFloatFrameworkSpelling(t *testing.T) {
	p, err := Parse("shader0 = a\nfloat_framework0 = true")
	require.NoError(t, err)
	assert.True(t, p.Passes[0].FloatFramebuffer)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		text string
		key  string
	}{
		{"no equals", "shader0 a", "shader0 a"},
		{"bad scale", "shader0 = a\nscale0 = big", "scale0"},
		{"bad scale type", "shader0 = a\nscale_type0 = huge", "scale_type0"},
		{"bad wrap", "shader0 = a\nwrap_mode0 = sideways", "wrap_mode0"},
		{"bad bool", "shader0 = a\nfilter_linear0 = maybe", "filter_linear0"},
		{"orphan pass key", "shader0 = a\nalias3 = X", "alias3"},
		{"shaders mismatch", "shaders = 2\nshader0 = a", "shaders"},
		{"no passes", "parameters = \"\"", "shader0"},
		{"parameter without value", "shader0 = a\nparameters = \"X\"", "X"},
		{"parameter not a number", "shader0 = a\nparameters = \"X\"\nX = lots", "X"},
		{"absolute without size", "shader0 = a\nscale_type0 = absolute", "scale_type0"},
		{"unterminated quote", "shader0 = \"a", "shader0"},
		{"texture without path", "shader0 = a\ntextures = \"LUT\"", "LUT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.text)
			require.Error(t, err)
			var pe *ParseError
			require.True(t, errors.As(err, &pe), "want *ParseError, got %T", err)
			assert.Equal(t, tt.key, pe.Key)
		})
	}
}

func TestParseKeepsUndeclaredOverrides(t *testing.T) {
	p, err := Parse("shader0 = a\nparameters = \"NOT_IN_ANY_MODULE\"\nNOT_IN_ANY_MODULE = 3")
	require.NoError(t, err)
	v, ok := p.Override("NOT_IN_ANY_MODULE")
	assert.True(t, ok)
	assert.Equal(t, float32(3), v)
}

func TestParseAliasMayShadowIndexName(t *testing.T) {
	p, err := Parse("shader0 = a\nalias0 = PassOutput1\nshader1 = b")
	require.NoError(t, err)
	assert.Equal(t, "PassOutput1", p.Passes[0].Alias)
}
