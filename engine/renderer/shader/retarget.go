package shader

import (
	"fmt"
	"strings"
)

// RetargetedTexture is the pair of bindings a sampler is split into for explicit-binding targets.
type RetargetedTexture struct {
	Name           string
	TextureBinding uint32
	SamplerBinding uint32
}

// Retargeted is a compiled module rewritten as GLSL 4.50 for targets that need explicit bindings:
// every value uniform lives in one std140 block at set 0 binding 0, each sampler becomes a
// texture2D/sampler pair at consecutive bindings, and every varying has an explicit location.
type Retargeted struct {
	Vertex   string
	Fragment string
	Layout   UniformLayout
	Textures []RetargetedTexture

	// Inputs are the vertex attributes with their final locations.
	Inputs []VertexInput
}

// globalsBinding is the binding of the Globals uniform block.
const globalsBinding = 0

// Retarget rewrites a compiled module for an explicit-binding target.
//
// Parameters:
//   - m: the compiled module
//
// Returns:
//   - *Retargeted: the rewritten stages and their binding layout
//   - error: a *ParseError if a stage interface cannot be given explicit locations
func Retarget(m *CompiledModule) (*Retargeted, error) {
	r := &Retargeted{Layout: Std140Layout(m.Uniforms)}
	for i, t := range m.Textures {
		r.Textures = append(r.Textures, RetargetedTexture{
			Name:           t.Name,
			TextureBinding: uint32(globalsBinding + 1 + 2*i),
			SamplerBinding: uint32(globalsBinding + 2 + 2*i),
		})
	}

	header := r.globalsBlock()
	vertex, outputs, err := r.retargetStage(m.Path, m.Vertex, StageVertex, header, nil)
	if err != nil {
		return nil, err
	}
	fragment, _, err := r.retargetStage(m.Path, m.Fragment, StageFragment, header, outputs)
	if err != nil {
		return nil, err
	}
	r.Vertex = vertex
	r.Fragment = fragment
	return r, nil
}

func (r *Retargeted) globalsBlock() string {
	var sb strings.Builder
	sb.WriteString("#version 450\n")
	if len(r.Layout.Fields) == 0 {
		return sb.String()
	}
	fmt.Fprintf(&sb, "layout(std140, set = 0, binding = %d) uniform Globals {\n", globalsBinding)
	for _, f := range r.Layout.Fields {
		fmt.Fprintf(&sb, "    %s %s;\n", f.Kind.GLSL(), f.Name)
	}
	sb.WriteString("};\n")
	return sb.String()
}

// vertexInputLocations are the attribute locations of the full-screen triangle for modules that
// declare inputs without a location.
var vertexInputLocations = map[string]int{
	"Position":    0,
	"VertexCoord": 0,
	"TexCoord":    1,
}

// VertexInputLocation returns the full-screen triangle attribute that feeds in: its explicit
// location when it has one, otherwise the location conventionally used for its name.
func VertexInputLocation(in VertexInput) (int, bool) {
	if in.Location >= 0 {
		return in.Location, true
	}
	l, ok := vertexInputLocations[in.Name]
	return l, ok
}

// retargetStage rewrites one stage. outputs maps vertex output names to their assigned locations;
// it is returned for the vertex stage and consumed by the fragment stage.
func (r *Retargeted) retargetStage(file, text string, stage Stage, header string, outputs map[string]int) (string, map[string]int, error) {
	tokens := Tokenize(file, text)
	s := newScan(tokens)
	if err := s.run(); err != nil {
		return "", nil, err
	}
	rw := newRewriter(tokens)

	samplers := make(map[string]RetargetedTexture)
	for _, t := range r.Textures {
		samplers[t.Name] = t
	}
	declRanges := make([]span, 0, len(s.uniforms))
	for _, u := range s.uniforms {
		declRanges = append(declRanges, span{start: u.start, end: u.end})
		var lines []string
		for _, n := range u.names {
			if t, ok := samplers[n]; ok && u.kind == KindSampler2D {
				lines = append(lines,
					fmt.Sprintf("layout(set = 0, binding = %d) uniform texture2D %s_texture;", t.TextureBinding, n),
					fmt.Sprintf("layout(set = 0, binding = %d) uniform sampler %s_sampler;", t.SamplerBinding, n))
			}
		}
		rw.replaceRange(u.start, u.end, strings.Join(lines, "\n"))
	}

	for i, t := range tokens {
		if t.Kind != TokenIdent {
			continue
		}
		if _, ok := samplers[t.Text]; !ok || inSpans(declRanges, i) {
			continue
		}
		if p := prevSignificant(tokens, i); p >= 0 && tokens[p].Is(".") {
			continue
		}
		rw.replaceRange(i, i+1, fmt.Sprintf("sampler2D(%s_texture, %s_sampler)", t.Text, t.Text))
	}

	assigned := make(map[string]int)
	placed := make(map[int]bool)
	rewritten := make(map[int]bool)
	next := 0
	for _, v := range s.vars {
		out := v.out || (v.storage == "varying" && stage == StageVertex)
		if v.layoutStart >= 0 && v.location >= 0 {
			if stage == StageVertex && !out {
				r.Inputs = append(r.Inputs, VertexInput{Name: v.name, Location: v.location})
			}
		} else {
			var loc int
			switch {
			case stage == StageVertex && out:
				loc = next
				next++
				assigned[v.name] = loc
			case stage == StageVertex:
				l, ok := vertexInputLocations[v.name]
				if !ok {
					return "", nil, &ParseError{File: file, Msg: fmt.Sprintf("vertex input %s has no location", v.name)}
				}
				loc = l
				r.Inputs = append(r.Inputs, VertexInput{Name: v.name, Location: l})
			case !out:
				l, ok := outputs[v.name]
				if !ok {
					return "", nil, &ParseError{File: file, Msg: fmt.Sprintf("fragment input %s has no matching vertex output", v.name)}
				}
				loc = l
			}
			if !placed[v.start] {
				placed[v.start] = true
				rw.insertBefore(v.start, fmt.Sprintf("layout(location = %d) ", loc))
			}
		}

		if rewritten[v.storageTok] {
			continue
		}
		switch {
		case v.storage == "varying" && stage == StageVertex:
			rw.replaceRange(v.storageTok, v.storageTok+1, "out")
		case v.storage == "varying", v.storage == "attribute":
			rw.replaceRange(v.storageTok, v.storageTok+1, "in")
		}
		rewritten[v.storageTok] = true
	}

	return joinTokens(rw.apply(header)), assigned, nil
}

func inSpans(spans []span, i int) bool {
	for _, sp := range spans {
		if i >= sp.start && i < sp.end {
			return true
		}
	}
	return false
}
