package renderer

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-crt/common"
	"github.com/Carmen-Shannon/oxy-crt/engine/renderer/graph"
	"github.com/Carmen-Shannon/oxy-crt/engine/renderer/shader"
)

// frameContext is the state of one Render call.
type frameContext struct {
	session  *session
	frame    uint64
	viewport common.Size

	// drawn[i] is set once pass i has drawn this frame.
	drawn []bool
}

// skipped reports whether a frame-count-mod pass keeps last frame's output this frame.
func (f *frameContext) skipped(gp *graph.Pass) bool {
	return gp.FrameCountMod > 1 && f.frame%uint64(gp.FrameCountMod) != 0
}

// output returns the texture holding pass i's output as readers see it this frame.
func (f *frameContext) output(i int) Texture {
	pool := f.session.pool
	if !f.drawn[i] && f.session.graph.Passes[i].Feedback {
		if prev := pool.Previous(i); prev != nil {
			return prev
		}
	}
	if t := pool.Output(i); t != nil {
		return t
	}
	return nil
}

// texture resolves a texture reference to the texture bound this frame.
func (f *frameContext) texture(ref graph.TextureRef) (Texture, error) {
	s := f.session
	switch ref.Kind {
	case graph.TextureInput:
		if ref.History >= len(s.history) {
			return nil, fmt.Errorf("input history %d not available", ref.History)
		}
		return s.history[ref.History], nil
	case graph.TexturePass:
		if t := f.output(ref.Producer); t != nil {
			return t, nil
		}
		return nil, fmt.Errorf("pass %d has no output this frame", ref.Producer)
	case graph.TextureFeedback:
		if t := s.pool.Previous(ref.Producer); t != nil {
			return t, nil
		}
		return nil, fmt.Errorf("pass %d has no feedback target", ref.Producer)
	case graph.TextureLUT:
		return s.luts[ref.LUT], nil
	}
	return nil, fmt.Errorf("unknown texture kind %s", ref.Kind)
}

// prepareFeedback allocates the target pairs of feedback passes so that passes drawing before
// their producer can bind the previous frame's output. Before a producer's first frame that
// output is a cleared target.
func (f *frameContext) prepareFeedback(sizes []common.Size) error {
	s := f.session
	for i, gp := range s.graph.Passes {
		if !gp.Feedback || s.pool.Previous(i) != nil {
			continue
		}
		if _, err := s.pool.Acquire(i, sizes[i]); err != nil {
			return err
		}
	}
	return nil
}

// runPass draws pass i into its target, then releases the scratch targets it no longer needs.
func (f *frameContext) runPass(i int, size common.Size) error {
	s := f.session
	gp := &s.graph.Passes[i]

	if f.skipped(gp) && s.pool.Output(i) != nil {
		f.releaseInputs(i)
		return nil
	}

	target, err := s.pool.Acquire(i, size)
	if err != nil {
		return err
	}

	cmd := DrawCommand{
		Pass:     i,
		Pipeline: s.pipelines[i],
		Target:   target,
		Textures: make([]TextureUnit, 0, len(gp.Textures)),
		Uniforms: make([]UniformValue, 0, len(gp.Uniforms)),
	}
	for _, tb := range gp.Textures {
		tex, err := f.texture(tb.TextureRef)
		if err != nil {
			return fmt.Errorf("sampler %s: %w", tb.Name, err)
		}
		cmd.Textures = append(cmd.Textures, TextureUnit{
			Unit:    tb.Unit,
			Name:    tb.Name,
			Texture: tex,
			Sampler: tb.Sampler,
		})
	}
	for _, u := range gp.Uniforms {
		v, err := f.uniformValue(gp, u, target.Size())
		if err != nil {
			return fmt.Errorf("uniform %s: %w", u.Binding.Name, err)
		}
		cmd.Uniforms = append(cmd.Uniforms, UniformValue{Binding: u.Binding, Value: v})
	}

	if err := s.backend.Draw(cmd); err != nil {
		return err
	}
	f.drawn[i] = true
	if gp.Mipmap {
		s.backend.GenerateMipmaps(target)
	}

	f.releaseInputs(i)
	if gp.LastReader < 0 && i != len(s.graph.Passes)-1 {
		s.pool.Release(i)
	}
	return nil
}

// releaseInputs releases every scratch producer whose last reader is pass i.
func (f *frameContext) releaseInputs(i int) {
	s := f.session
	for k := 0; k < i; k++ {
		if s.graph.Passes[k].LastReader == i {
			s.pool.Release(k)
		}
	}
}

// uniformValue computes the value of one value uniform for this frame.
func (f *frameContext) uniformValue(gp *graph.Pass, u graph.Uniform, output common.Size) (shader.Value, error) {
	var v shader.Value
	switch u.Value {
	case graph.ValueParameter:
		v = shader.FloatValue(f.session.values[u.Binding.Semantic])
	case graph.ValueMVP:
		v = shader.Mat4Value(f.session.backend.MVP())
	case graph.ValueOutputSize:
		v = sizeValue(output)
	case graph.ValueFinalViewportSize:
		v = sizeValue(f.viewport)
	case graph.ValueFrameCount:
		count := f.frame
		if gp.FrameCountMod > 0 {
			count %= uint64(gp.FrameCountMod)
		}
		v = shader.UintValue(uint32(count))
	case graph.ValueTextureSize:
		t, err := f.texture(u.Texture)
		if err != nil {
			return shader.Value{}, err
		}
		v = sizeValue(t.Size())
	case graph.ValueConstant:
		v = u.Constant
	default:
		return shader.Value{}, fmt.Errorf("unknown value source %s", u.Value)
	}
	return v.Convert(u.Binding.Kind), nil
}

// sizeValue is the (width, height, 1/width, 1/height) vector of a size.
func sizeValue(s common.Size) shader.Value {
	vec := s.Vec4()
	return shader.Vec4Value(vec[0], vec[1], vec[2], vec[3])
}
