package pipeline

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-crt/common"
	"github.com/Carmen-Shannon/oxy-crt/engine/renderer/shader"
	"github.com/stretchr/testify/assert"
)

func TestNewPipelineDefaults(t *testing.T) {
	p := NewPipeline("pass0", PipelineTypePass)

	assert.Equal(t, PipelineTypePass, p.Type())
	assert.Equal(t, "pass0", p.PipelineKey())
	assert.Equal(t, common.FormatRGBA8Unorm, p.Format())
	assert.Nil(t, p.Pipeline())
	assert.Nil(t, p.Shader(shader.ShaderTypeVertex))
}

func TestPipelineOptions(t *testing.T) {
	m := &shader.CompiledModule{Pass: 2, Path: "crt.slang"}
	r := &shader.Retargeted{Vertex: "#version 450\n"}
	p := NewPipeline("pass2", PipelineTypePass,
		WithModule(m),
		WithRetargeted(r),
		WithFormat(common.FormatRGBA16Float),
	)

	assert.Same(t, m, p.Module())
	assert.Same(t, r, p.Retargeted())
	assert.Equal(t, common.FormatRGBA16Float, p.Format())
}

func TestPipelineBackendHandle(t *testing.T) {
	p := NewPipeline("blit", PipelineTypeBlit)

	p.SetProgram(7)
	assert.Equal(t, uint32(7), p.Program())
	assert.Equal(t, uint32(7), p.Pipeline())

	p.SetProgram(0)
	assert.Nil(t, p.Pipeline())
}
