package graph

import (
	"log/slog"
	"strconv"
	"strings"

	"cogentcore.org/core/base/keylist"
	"github.com/Carmen-Shannon/oxy-crt/common"
	"github.com/Carmen-Shannon/oxy-crt/engine/preset"
	"github.com/Carmen-Shannon/oxy-crt/engine/renderer/shader"
)

const (
	originalName        = "Original"
	sourceName          = "Source"
	passOutputPrefix    = "PassOutput"
	passFeedbackPrefix  = "PassFeedback"
	originalHistoryName = "OriginalHistory"
	feedbackSuffix      = "Feedback"
	sizeSuffix          = "Size"
)

// cosmeticGlobals are globals a frontend would drive from state this renderer does not model.
// Each is bound to a neutral default and reported as a warning.
var cosmeticGlobals = map[string]shader.Value{
	"FrameDirection":  shader.IntValue(1),
	"Rotation":        shader.UintValue(0),
	"TotalSubFrames":  shader.UintValue(1),
	"CurrentSubFrame": shader.UintValue(1),
}

type builder struct {
	logger  *slog.Logger
	preset  *preset.Preset
	modules []*shader.CompiledModule
	params  *keylist.List[string, shader.Parameter]

	graph   *RenderGraph
	aliases map[string]int
	luts    map[string]int

	// reads[k] holds, per reading pass, whether pass k's output was named by its alias.
	reads []map[int]bool
}

// Build resolves a preset and its compiled modules into a RenderGraph. Every sampler of every pass
// is bound to exactly one texture and every value uniform to a value source, or Build fails.
//
// Parameters:
//   - p: the parsed preset
//   - modules: the compiled module of each pass, indexed like p.Passes
//   - params: the session's parameter table; value uniforms whose semantic is listed here are parameters
//   - options: optional BuildOption functions
//
// Returns:
//   - *RenderGraph: the graph
//   - error: *DuplicateAliasError, *UnboundTextureError, *shader.MissingSymbolError or *PassCountError
func Build(p *preset.Preset, modules []*shader.CompiledModule, params *keylist.List[string, shader.Parameter], options ...BuildOption) (*RenderGraph, error) {
	if len(modules) != len(p.Passes) {
		return nil, &PassCountError{Passes: len(p.Passes), Modules: len(modules)}
	}
	b := &builder{
		logger:  slog.Default(),
		preset:  p,
		modules: modules,
		params:  params,
		graph: &RenderGraph{
			Passes:   make([]Pass, len(p.Passes)),
			Textures: p.Textures,
		},
		aliases: make(map[string]int),
		luts:    make(map[string]int, len(p.Textures)),
		reads:   make([]map[int]bool, len(p.Passes)),
	}
	for _, opt := range options {
		opt(b)
	}

	if err := b.collectAliases(); err != nil {
		return nil, err
	}
	for i := range b.graph.Passes {
		if err := b.buildPass(i); err != nil {
			return nil, err
		}
	}
	b.planRetention()

	b.logger.Debug("render graph built",
		"passes", len(b.graph.Passes),
		"luts", len(b.graph.Textures),
		"history", b.graph.HistoryDepth,
		"warnings", len(b.graph.Warnings))
	return b.graph, nil
}

func (b *builder) collectAliases() error {
	for i, t := range b.preset.Textures {
		b.luts[t.Name] = i
	}
	for i, pp := range b.preset.Passes {
		alias := common.Coalesce(pp.Alias, b.modules[i].Alias)
		b.graph.Passes[i] = Pass{
			Index:         i,
			Alias:         alias,
			Module:        b.modules[i],
			ScaleX:        pp.ScaleX,
			ScaleY:        pp.ScaleY,
			Format:        passFormat(pp, b.modules[i]),
			FrameCountMod: pp.FrameCountMod,
			LastReader:    -1,
		}
		if alias == "" {
			continue
		}
		if first, ok := b.aliases[alias]; ok {
			return &DuplicateAliasError{Alias: alias, First: first, Second: i}
		}
		if _, ok := b.luts[alias]; ok {
			return &DuplicateAliasError{Alias: alias, First: i, Second: InputImage}
		}
		b.aliases[alias] = i
	}
	return nil
}

func passFormat(pp preset.Pass, m *shader.CompiledModule) common.PixelFormat {
	if f, ok := pp.Format(); ok {
		return f
	}
	if m.HasFormat {
		return m.Format
	}
	return common.FormatRGBA8Unorm
}

func (b *builder) buildPass(i int) error {
	pass := &b.graph.Passes[i]

	for _, t := range pass.Module.Textures {
		ref, viaAlias, ok := b.resolve(i, t.Name)
		if !ok {
			return &UnboundTextureError{Pass: i, Sampler: t.Name}
		}
		binding := TextureBinding{Name: t.Name, Unit: t.Unit, TextureRef: ref, Sampler: b.sampler(i, ref)}
		pass.Textures = append(pass.Textures, binding)
		b.use(i, ref, viaAlias, binding.Sampler.Mipmap)
	}

	for _, u := range pass.Module.ValueUniforms() {
		uniform, err := b.uniform(i, u)
		if err != nil {
			return err
		}
		pass.Uniforms = append(pass.Uniforms, uniform)
	}
	return nil
}

// use records that pass i reads ref, through a sampler or only through its size, so the texture
// exists whenever pass i draws.
func (b *builder) use(i int, ref TextureRef, viaAlias, mipmap bool) {
	switch ref.Kind {
	case TexturePass:
		if b.reads[ref.Producer] == nil {
			b.reads[ref.Producer] = make(map[int]bool)
		}
		b.reads[ref.Producer][i] = b.reads[ref.Producer][i] || viaAlias
		if mipmap {
			b.graph.Passes[ref.Producer].Mipmap = true
		}
	case TextureFeedback:
		b.graph.Passes[ref.Producer].Feedback = true
		if mipmap {
			b.graph.Passes[ref.Producer].Mipmap = true
		}
	case TextureInput:
		b.graph.HistoryDepth = max(b.graph.HistoryDepth, ref.History)
		if ref.History == 0 && mipmap {
			b.graph.InputMipmap = true
		}
	}
}

// resolve maps a texture name seen from pass i to the texture it denotes. viaAlias reports that
// the name was a pass alias.
func (b *builder) resolve(i int, name string) (ref TextureRef, viaAlias bool, ok bool) {
	none := TextureRef{Producer: InputImage, LUT: -1}

	if k, found := b.aliases[name]; found && k < i {
		return TextureRef{Kind: TexturePass, Producer: k, LUT: -1}, true, true
	}

	switch name {
	case originalName, originalHistoryName + "0":
		return none, false, true
	case sourceName:
		if i == 0 {
			return none, false, true
		}
		return TextureRef{Kind: TexturePass, Producer: i - 1, LUT: -1}, false, true
	}

	if k, found := indexSuffix(name, passOutputPrefix); found && k < i {
		return TextureRef{Kind: TexturePass, Producer: k, LUT: -1}, false, true
	}

	if k, found := indexSuffix(name, passFeedbackPrefix); found && k < len(b.graph.Passes) {
		return TextureRef{Kind: TextureFeedback, Producer: k, LUT: -1}, false, true
	}
	if base, found := strings.CutSuffix(name, feedbackSuffix); found {
		if k, aliased := b.aliases[base]; aliased {
			return TextureRef{Kind: TextureFeedback, Producer: k, LUT: -1}, true, true
		}
	}

	if k, found := indexSuffix(name, originalHistoryName); found && k > 0 {
		ref := none
		ref.History = k
		return ref, false, true
	}

	if lut, found := b.luts[name]; found {
		return TextureRef{Kind: TextureLUT, Producer: InputImage, LUT: lut}, false, true
	}
	return TextureRef{}, false, false
}

// indexSuffix parses names of the form <prefix><N>.
func indexSuffix(name, prefix string) (int, bool) {
	rest, ok := strings.CutPrefix(name, prefix)
	if !ok || rest == "" || rest[0] == '+' || rest[0] == '-' {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return n, true
}

// sizeBase returns the texture name a size uniform describes. Both <texture>Size and the indexed
// spellings PassOutputSizeN, PassFeedbackSizeN and OriginalHistorySizeN are accepted.
func sizeBase(name string) (string, bool) {
	for _, prefix := range []string{passOutputPrefix, passFeedbackPrefix, originalHistoryName} {
		if n, ok := indexSuffix(name, prefix+sizeSuffix); ok {
			return prefix + strconv.Itoa(n), true
		}
	}
	base, ok := strings.CutSuffix(name, sizeSuffix)
	return base, ok && base != ""
}

// sampler picks the sampler state for pass i reading ref. A pass output is sampled with the
// settings of the pass that follows its producer, input frames with pass 0's, and lookup textures
// with their own.
func (b *builder) sampler(i int, ref TextureRef) common.SamplerStagingData {
	passes := b.preset.Passes
	consumer := func(k int) common.SamplerStagingData {
		pp := passes[k]
		return common.SamplerStagingData{Linear: pp.Filter.Linear(false), Wrap: pp.Wrap, Mipmap: pp.MipmapInput}
	}

	switch ref.Kind {
	case TexturePass:
		return consumer(ref.Producer + 1)
	case TextureFeedback:
		if ref.Producer+1 < len(passes) {
			return consumer(ref.Producer + 1)
		}
		return consumer(i)
	case TextureLUT:
		t := b.preset.Textures[ref.LUT]
		return common.SamplerStagingData{Linear: t.Linear, Wrap: t.Wrap, Mipmap: t.Mipmap}
	}
	s := consumer(0)
	if ref.History > 0 {
		s.Mipmap = false
	}
	return s
}

func (b *builder) uniform(i int, u shader.UniformBinding) (Uniform, error) {
	out := Uniform{Binding: u}
	name := u.Semantic

	if b.params != nil {
		if _, ok := b.params.AtTry(name); ok {
			out.Value = ValueParameter
			return out, nil
		}
	}
	if u.Source == shader.SourcePragmaParameter {
		return out, &shader.MissingSymbolError{Symbol: name, Pass: i, File: b.modules[i].Path}
	}

	switch name {
	case "MVP":
		out.Value = ValueMVP
		return out, nil
	case "OutputSize":
		out.Value = ValueOutputSize
		return out, nil
	case "FinalViewportSize":
		out.Value = ValueFinalViewportSize
		return out, nil
	case "FrameCount":
		out.Value = ValueFrameCount
		return out, nil
	}

	if base, ok := sizeBase(name); ok {
		if ref, viaAlias, found := b.resolve(i, base); found {
			b.use(i, ref, viaAlias, false)
			out.Value = ValueTextureSize
			out.Texture = ref
			return out, nil
		}
	}

	if def, ok := cosmeticGlobals[name]; ok {
		out.Value = ValueConstant
		out.Constant = def.Convert(u.Kind)
		w := &shader.MissingSymbolWarning{Symbol: name, Pass: i, Reason: "bound to its default"}
		b.graph.Warnings = append(b.graph.Warnings, w)
		b.logger.Warn(w.Error())
		return out, nil
	}

	return out, &shader.MissingSymbolError{Symbol: name, Pass: i, File: b.modules[i].Path}
}

// planRetention decides which passes keep a persistent target and when scratch targets can be
// released.
func (b *builder) planRetention() {
	for k := range b.graph.Passes {
		pass := &b.graph.Passes[k]
		for reader, viaAlias := range b.reads[k] {
			pass.LastReader = max(pass.LastReader, reader)
			if viaAlias || reader != k+1 {
				pass.Retained = true
			}
		}
		if pass.FrameCountMod > 1 || pass.Feedback {
			pass.Retained = true
		}
		b.logger.Debug("pass planned",
			"pass", k,
			"alias", pass.Alias,
			"retained", pass.Retained,
			"last_reader", pass.LastReader,
			"feedback", pass.Feedback,
			"format", pass.Format)
	}
}
