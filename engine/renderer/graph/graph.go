package graph

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-crt/common"
	"github.com/Carmen-Shannon/oxy-crt/engine/preset"
	"github.com/Carmen-Shannon/oxy-crt/engine/renderer/shader"
)

// InputImage is the Producer of textures that come from the host's input frames rather than a pass.
const InputImage = -1

// TextureKind classifies what a sampler reads.
type TextureKind int

const (
	// TextureInput is an input frame: the current one (History 0) or an earlier one.
	TextureInput TextureKind = iota
	// TexturePass is the output of an earlier pass in the same frame.
	TexturePass
	// TextureFeedback is the output of a pass from the previous frame.
	TextureFeedback
	// TextureLUT is a lookup texture loaded with the preset.
	TextureLUT
)

func (k TextureKind) String() string {
	switch k {
	case TextureInput:
		return "input"
	case TexturePass:
		return "pass"
	case TextureFeedback:
		return "feedback"
	case TextureLUT:
		return "lut"
	}
	return fmt.Sprintf("TextureKind(%d)", int(k))
}

// TextureRef names a texture the graph can bind.
type TextureRef struct {
	Kind TextureKind

	// Producer is the pass index for TexturePass and TextureFeedback, InputImage otherwise.
	Producer int

	// History is how many frames back an input texture is; 0 is the current frame.
	History int

	// LUT indexes RenderGraph.Textures for TextureLUT, -1 otherwise.
	LUT int
}

// TextureBinding is one resolved sampler of a pass. Unit is the texture unit, equal to the
// sampler's position in the module's declaration order.
type TextureBinding struct {
	Name string
	Unit int
	TextureRef

	// Sampler is how the texture is filtered and addressed when this pass reads it.
	Sampler common.SamplerStagingData
}

// ValueSource is where a value uniform gets its value each frame.
type ValueSource int

const (
	// ValueParameter reads the session's current value of the parameter named by the uniform's Semantic.
	ValueParameter ValueSource = iota
	// ValueMVP is the backend's model-view-projection for the full-screen triangle.
	ValueMVP
	// ValueOutputSize is the size of the pass's own target.
	ValueOutputSize
	// ValueFinalViewportSize is the size of the output surface.
	ValueFinalViewportSize
	// ValueFrameCount is the frame counter, reduced modulo the pass's FrameCountMod.
	ValueFrameCount
	// ValueTextureSize is the size of the texture named by Uniform.Texture.
	ValueTextureSize
	// ValueConstant is a fixed default, used for cosmetic globals this renderer does not drive.
	ValueConstant
)

func (s ValueSource) String() string {
	switch s {
	case ValueParameter:
		return "parameter"
	case ValueMVP:
		return "mvp"
	case ValueOutputSize:
		return "output-size"
	case ValueFinalViewportSize:
		return "final-viewport-size"
	case ValueFrameCount:
		return "frame-count"
	case ValueTextureSize:
		return "texture-size"
	case ValueConstant:
		return "constant"
	}
	return fmt.Sprintf("ValueSource(%d)", int(s))
}

// Uniform is a value uniform of a pass with its resolved value source.
type Uniform struct {
	Binding shader.UniformBinding
	Value   ValueSource

	// Texture is the texture whose size is bound when Value is ValueTextureSize.
	Texture TextureRef

	// Constant is the value bound when Value is ValueConstant.
	Constant shader.Value
}

// Pass is one node of the render graph.
type Pass struct {
	Index int

	// Alias is the name later passes sample this pass by: the preset alias, else the module's #pragma name.
	Alias string

	Module *shader.CompiledModule

	ScaleX preset.Scale
	ScaleY preset.Scale

	Format        common.PixelFormat
	FrameCountMod uint32

	// Textures are the pass's samplers in declaration order.
	Textures []TextureBinding

	// Uniforms are the pass's value uniforms in declaration order.
	Uniforms []Uniform

	// Retained passes render into a persistent target that lives as long as the session.
	Retained bool

	// LastReader is the highest pass index that samples this pass's output in the same frame,
	// or -1 when no pass does. A scratch target is released once LastReader has drawn.
	LastReader int

	// Feedback passes keep their previous frame's output for PassFeedback samplers.
	Feedback bool

	// Mipmap passes generate mip levels after drawing because a reader samples them with mipmaps.
	Mipmap bool
}

// Scratch reports whether the pass renders into a pooled scratch target.
func (p *Pass) Scratch() bool {
	return !p.Retained
}

// RenderGraph is the executable form of a preset: passes in declared order, which is also their
// dependency order, with every sampler and uniform resolved.
type RenderGraph struct {
	Passes []Pass

	// Textures are the lookup textures passes may bind, in preset order.
	Textures []preset.Texture

	// HistoryDepth is the number of previous input frames any pass samples.
	HistoryDepth int

	// InputMipmap is set when a pass samples the current input frame with mipmaps.
	InputMipmap bool

	// Warnings are the cosmetic globals that were bound to defaults.
	Warnings []*shader.MissingSymbolWarning
}

// Readers returns the passes that sample pass i's output in the same frame, in ascending order.
//
// Parameters:
//   - i: the producing pass index
//
// Returns:
//   - []int: the reading pass indices
func (g *RenderGraph) Readers(i int) []int {
	var out []int
	for _, p := range g.Passes {
		for _, t := range p.Textures {
			if t.Kind == TexturePass && t.Producer == i {
				out = append(out, p.Index)
				break
			}
		}
	}
	return out
}

// Final returns the last pass, whose target is presented.
func (g *RenderGraph) Final() *Pass {
	if len(g.Passes) == 0 {
		return nil
	}
	return &g.Passes[len(g.Passes)-1]
}
