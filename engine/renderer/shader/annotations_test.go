package shader

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-crt/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePragma(t *testing.T) {
	t.Run("parameter", func(t *testing.T) {
		p, err := parsePragma(`#pragma parameter GAMMA "Output Gamma" 2.2 1.0 3.0 0.05`, 4)
		require.NoError(t, err)
		require.NotNil(t, p)
		assert.Equal(t, PragmaTypeParameter, p.Type)
		assert.Equal(t, 4, p.Line)
		assert.Equal(t, "GAMMA", p.Parameter.Name)
		assert.Equal(t, "Output Gamma", p.Parameter.Label)
		assert.InDelta(t, 2.2, p.Parameter.Default, 1e-6)
		assert.InDelta(t, 1.0, p.Parameter.Min, 1e-6)
		assert.InDelta(t, 3.0, p.Parameter.Max, 1e-6)
		assert.InDelta(t, 0.05, p.Parameter.Step, 1e-6)
	})

	t.Run("parameter without step and with suffixes", func(t *testing.T) {
		p, err := parsePragma(`#  pragma parameter WARP_X "Warp X" 0.031f 0.0 0.125`, 1)
		require.NoError(t, err)
		require.NotNil(t, p)
		assert.InDelta(t, 0.031, p.Parameter.Default, 1e-6)
		assert.Zero(t, p.Parameter.Step)
	})

	t.Run("stage", func(t *testing.T) {
		p, err := parsePragma("#pragma stage fragment", 9)
		require.NoError(t, err)
		require.NotNil(t, p)
		assert.Equal(t, StageFragment, p.Stage)
	})

	t.Run("name", func(t *testing.T) {
		p, err := parsePragma("#pragma name Blurred", 2)
		require.NoError(t, err)
		require.NotNil(t, p)
		assert.Equal(t, "Blurred", p.Name)
	})

	t.Run("format", func(t *testing.T) {
		p, err := parsePragma("#pragma format R16G16B16A16_SFLOAT", 3)
		require.NoError(t, err)
		require.NotNil(t, p)
		assert.Equal(t, common.FormatRGBA16Float, p.Format)
	})

	t.Run("not owned", func(t *testing.T) {
		for _, line := range []string{"#pragma optimize(on)", "#pragmaonce", "#define PRAGMA 1", "float x;"} {
			p, err := parsePragma(line, 1)
			assert.NoError(t, err, line)
			assert.Nil(t, p, line)
		}
	})

	t.Run("malformed", func(t *testing.T) {
		for _, line := range []string{
			`#pragma parameter GAMMA "Gamma" 2.2`,
			`#pragma parameter 1GAMMA "Gamma" 2.2 1.0 3.0`,
			`#pragma parameter GAMMA "Gamma" abc 1.0 3.0`,
			`#pragma parameter GAMMA "Gamma" 0.5 1.0 0.0`,
			`#pragma parameter GAMMA "Gamma 2.2 1.0 3.0`,
			"#pragma stage geometry",
			"#pragma name",
			"#pragma format R5G6B5_UNORM",
			"#pragma",
		} {
			_, err := parsePragma(line, 7)
			if assert.Error(t, err, line) {
				assert.Contains(t, err.Error(), "line 7", line)
			}
		}
	})
}

func TestParameterClamp(t *testing.T) {
	p := Parameter{Name: "X", Min: 0, Max: 1}
	assert.Equal(t, float32(0), p.Clamp(-2))
	assert.Equal(t, float32(1), p.Clamp(3))
	assert.Equal(t, float32(0.25), p.Clamp(0.25))
}
