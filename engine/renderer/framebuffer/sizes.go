package framebuffer

import (
	"github.com/Carmen-Shannon/oxy-crt/common"
	"github.com/Carmen-Shannon/oxy-crt/engine/renderer/graph"
)

// PassSizes computes every pass's output size for one frame. Each pass scales from the output of
// the pass before it (pass 0 from the input image) or from the viewport, per axis.
//
// Parameters:
//   - g: the render graph
//   - input: the size of the current input image
//   - viewport: the size of the output surface
//
// Returns:
//   - []common.Size: the output size of each pass, indexed like g.Passes
func PassSizes(g *graph.RenderGraph, input, viewport common.Size) []common.Size {
	sizes := make([]common.Size, len(g.Passes))
	source := input
	for i, p := range g.Passes {
		sizes[i] = common.Size{
			Width:  p.ScaleX.Apply(source.Width, viewport.Width),
			Height: p.ScaleY.Apply(source.Height, viewport.Height),
		}
		source = sizes[i]
	}
	return sizes
}
