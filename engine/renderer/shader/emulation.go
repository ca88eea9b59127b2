// emulation.go lowers descriptor-set and push-constant uniforms to flat uniforms. Each block member
// m becomes a "uniform T PARAM_m;" that the host sets by name plus a global "T m;" that the module
// body keeps using. Member accesses through the block instance are rewritten to the bare global,
// and main() copies every PARAM_ value into its global before running.
package shader

import (
	"fmt"
	"slices"
	"strings"
)

// paramPrefix is prepended to the flat uniform that carries an emulated member's value.
const paramPrefix = "PARAM_"

type positionedBinding struct {
	pos     int
	binding UniformBinding
}

type initializer struct {
	name    string
	section Stage
}

// varying is a stage interface variable whose location was stripped.
type varying struct {
	name     string
	location int
	stage    Stage
}

// emulator records every emulation edit for one module.
type emulator struct {
	s      *scan
	rw     *rewriter
	params map[string]bool

	// emitted holds every name lowered to a PARAM_ uniform, in any section.
	emitted map[string]bool
	// declared holds the sections each name has been declared in; shared the names that a
	// shared-section declaration will cover.
	declared map[string][]Stage
	shared   map[string]bool
	bound    map[string]int

	instances map[string][]*uniformBlock
	bindings  []positionedBinding
	inits     []initializer
	textures  []TextureBinding
	varyings  []varying
	inputs    []VertexInput
}

func newEmulator(s *scan, rw *rewriter, params []Parameter) *emulator {
	e := &emulator{
		s:         s,
		rw:        rw,
		params:    make(map[string]bool, len(params)),
		emitted:   make(map[string]bool),
		declared:  make(map[string][]Stage),
		shared:    make(map[string]bool),
		bound:     make(map[string]int),
		instances: make(map[string][]*uniformBlock),
	}
	for _, p := range params {
		e.params[p.Name] = true
	}
	for _, b := range s.blocks {
		if b.section == StageShared {
			for _, m := range b.members {
				e.shared[m.name] = true
			}
		}
	}
	for _, u := range s.uniforms {
		if u.section == StageShared {
			for _, n := range u.names {
				e.shared[n] = true
			}
		}
	}
	return e
}

func (e *emulator) run() {
	e.emulateBlocks()
	e.emulateUniforms()
	e.emulateDirectives()
	e.rewriteMemberReferences()
	e.injectInitializers()
	e.stripVaryingLayouts()
	slices.SortStableFunc(e.bindings, func(a, b positionedBinding) int {
		return a.pos - b.pos
	})
}

// uniforms returns the bindings in declaration order.
func (e *emulator) uniforms() []UniformBinding {
	out := make([]UniformBinding, len(e.bindings))
	for i, b := range e.bindings {
		out[i] = b.binding
	}
	return out
}

// covered reports whether a declaration of name already made, or still to come in the shared
// section, is visible from section.
func (e *emulator) covered(name string, section Stage) bool {
	if section != StageShared && e.shared[name] {
		return true
	}
	return slices.ContainsFunc(e.declared[name], func(s Stage) bool { return s.Visible(section) })
}

// bind records the binding of a name declared in section. A module has one binding per name; a
// name declared separately in both stages gets a shared binding.
func (e *emulator) bind(pos int, name string, section Stage, b UniformBinding) bool {
	e.declared[name] = append(e.declared[name], section)
	if i, ok := e.bound[name]; ok {
		if e.bindings[i].binding.Stage != section {
			e.bindings[i].binding.Stage = StageShared
		}
		return false
	}
	e.bound[name] = len(e.bindings)
	e.bindings = append(e.bindings, positionedBinding{pos: pos, binding: b})
	return true
}

// declare emits the flat uniform and global pair for name and records its binding.
func (e *emulator) declare(pos int, typ, name string, kind UniformKind, source UniformSource, section Stage) string {
	e.emitted[name] = true
	e.inits = append(e.inits, initializer{name: name, section: section})
	e.bind(pos, name, section, UniformBinding{
		Name:     paramPrefix + name,
		Semantic: name,
		Kind:     kind,
		Source:   source,
		Stage:    section,
	})
	return fmt.Sprintf("uniform %s %s%s;\n%s %s;", typ, paramPrefix, name, typ, name)
}

func (e *emulator) emulateBlocks() {
	for _, b := range e.s.blocks {
		source := SourceUniformBlock
		if b.push {
			source = SourcePushConstant
		}
		var lines []string
		for _, m := range b.members {
			if e.covered(m.name, b.section) {
				continue
			}
			lines = append(lines, e.declare(b.start, m.typ, m.name, m.kind, source, b.section))
		}
		e.rw.replaceRange(b.start, b.end, strings.Join(lines, "\n"))
		if b.instance != "" {
			e.instances[b.instance] = append(e.instances[b.instance], b)
		}
	}
}

func (e *emulator) emulateUniforms() {
	for _, u := range e.s.uniforms {
		rewrite := len(u.names) > 1
		var lines []string
		for _, n := range u.names {
			switch {
			case e.covered(n, u.section):
				rewrite = true
			case (e.params[n] || e.emitted[n]) && u.kind != KindSampler2D:
				lines = append(lines, e.declare(u.start, u.typ, n, u.kind, SourcePragmaParameter, u.section))
				rewrite = true
			default:
				lines = append(lines, fmt.Sprintf("uniform %s %s;", u.typ, n))
				source := SourceBuiltinGlobal
				if u.kind == KindSampler2D {
					source = SourceTexture
				}
				first := e.bind(u.start, n, u.section, UniformBinding{
					Name:     n,
					Semantic: n,
					Kind:     u.kind,
					Source:   source,
					Stage:    u.section,
				})
				if first && u.kind == KindSampler2D {
					e.textures = append(e.textures, TextureBinding{Name: n, Unit: len(e.textures)})
				}
			}
		}
		switch {
		case rewrite:
			e.rw.replaceRange(u.start, u.end, strings.Join(lines, "\n"))
		case u.layoutStart >= 0:
			e.rw.dropRange(u.layoutStart, u.layoutEnd)
		}
	}
}

// emulateDirectives declares referenced pragma parameters at their pragma and drops every directive
// that only carries metadata. Stage pragmas stay for the splitter.
func (e *emulator) emulateDirectives() {
	handled := make(map[string]bool)
	for _, d := range e.s.directives {
		switch d.name {
		case "version", "extension":
			e.rw.dropRange(d.start, d.end)
			continue
		}
		if d.pragma == nil {
			continue
		}
		switch d.pragma.Type {
		case PragmaTypeParameter:
			name := d.pragma.Parameter.Name
			if handled[name] || e.emitted[name] || e.s.declared[name] || e.s.macros[name] || !e.s.referenced(name) {
				e.rw.dropRange(d.start, d.end)
				continue
			}
			handled[name] = true
			text := e.declare(d.start, "float", name, KindFloat, SourcePragmaParameter, e.s.section[d.hash])
			e.rw.replaceRange(d.start, d.end, text+"\n")
		case PragmaTypeName, PragmaTypeFormat:
			e.rw.dropRange(d.start, d.end)
		}
	}
}

// rewriteMemberReferences rewrites instance.member to member for every emulated block.
func (e *emulator) rewriteMemberReferences() {
	tokens := e.s.tokens
	for i, t := range tokens {
		if t.Kind != TokenIdent {
			continue
		}
		blocks, ok := e.instances[t.Text]
		if !ok {
			continue
		}
		if p := prevSignificant(tokens, i); p >= 0 && tokens[p].Is(".") {
			continue
		}
		dot := nextSignificant(tokens, i+1, false)
		if dot < 0 || !tokens[dot].Is(".") {
			continue
		}
		m := nextSignificant(tokens, dot+1, false)
		if m < 0 || tokens[m].Kind != TokenIdent {
			continue
		}
		if slices.ContainsFunc(blocks, func(b *uniformBlock) bool { return b.hasMember(tokens[m].Text) }) {
			e.rw.dropRange(i, m)
		}
	}
}

func (e *emulator) injectInitializers() {
	for _, open := range e.s.mains {
		section := e.s.section[open]
		var sb strings.Builder
		for _, in := range e.inits {
			if in.section.Visible(section) {
				fmt.Fprintf(&sb, "\n    %s = %s%s;", in.name, paramPrefix, in.name)
			}
		}
		if sb.Len() > 0 {
			e.rw.insertAfter(open, sb.String())
		}
	}
}

// stripVaryingLayouts removes location qualifiers from varyings and records them for the splitter.
// Vertex inputs and fragment outputs keep theirs.
func (e *emulator) stripVaryingLayouts() {
	for _, v := range e.s.vars {
		switch {
		case v.section == StageVertex && !v.out:
			e.inputs = append(e.inputs, VertexInput{Name: v.name, Location: v.location})
		case v.location < 0 || v.layoutStart < 0:
		case v.section == StageVertex && v.out, v.section == StageFragment && !v.out:
			e.rw.dropRange(v.layoutStart, v.layoutEnd)
			e.varyings = append(e.varyings, varying{name: v.name, location: v.location, stage: v.section})
		}
	}
}

// checkMemberReferences fails if any instance.member access survived the rewrite.
func checkMemberReferences(pass int, tokens []Token, instances map[string][]*uniformBlock) error {
	for i, t := range tokens {
		if t.Kind != TokenIdent {
			continue
		}
		if _, ok := instances[t.Text]; !ok {
			continue
		}
		if p := prevSignificant(tokens, i); p >= 0 && tokens[p].Is(".") {
			continue
		}
		dot := nextSignificant(tokens, i+1, false)
		if dot < 0 || !tokens[dot].Is(".") {
			continue
		}
		ref := t.Text + "."
		if m := nextSignificant(tokens, dot+1, false); m >= 0 {
			ref += tokens[m].Text
		}
		return &UnresolvedMemberReferenceError{Pass: pass, Reference: ref, Line: t.Line}
	}
	return nil
}

func (b *uniformBlock) hasMember(name string) bool {
	return slices.ContainsFunc(b.members, func(m blockMember) bool { return m.name == name })
}
