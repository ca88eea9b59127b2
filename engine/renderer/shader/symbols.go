// symbols.go builds the symbol table of one module after include expansion. A single walk over the
// token stream classifies directive lines (macros, undefs, pragmas, conditionals), a second walk
// over the remaining significant tokens records every declared and every referenced identifier,
// and a third splits the global scope into statements to find functions, constants, structs,
// uniform blocks, plain uniforms and stage interface variables. Definitions carry their provenance
// (pass-local or shared include) so that precedence can be resolved before anything is emitted.
package shader

import (
	"fmt"
	"strconv"
	"strings"
)

type symbolKind int

const (
	symbolMacro symbolKind = iota
	symbolFunction
	symbolGlobal
	symbolStruct
)

// definition is one definition of a symbol, located by its token range [start, end).
type definition struct {
	kind    symbolKind
	name    string
	key     string
	start   int
	end     int
	include bool
	file    string
	line    int

	// conditional is set when the definition sits inside #if/#ifdef/#ifndef.
	conditional bool

	// sigEnd is the index of the ')' closing a function's parameter list.
	sigEnd int
}

// directive is one preprocessor line [start, end); end is past the trailing newline.
type directive struct {
	start   int
	end     int
	hash    int
	name    string
	nameIdx int
	pragma  *Pragma
}

type blockMember struct {
	typ  string
	name string
	kind UniformKind
}

// uniformBlock is a push-constant or descriptor-set uniform block declaration.
type uniformBlock struct {
	typeName string
	instance string
	members  []blockMember
	push     bool
	start    int
	end      int
	section  Stage
}

// plainUniform is a uniform declared outside any block; one statement may declare several names.
type plainUniform struct {
	typ         string
	names       []string
	kind        UniformKind
	start       int
	end         int
	layoutStart int
	layoutEnd   int
	section     Stage
}

// interfaceVar is a stage input or output at global scope.
type interfaceVar struct {
	name        string
	storage     string
	storageTok  int
	start       int
	out         bool
	location    int
	layoutStart int
	layoutEnd   int
	section     Stage
}

type reference struct {
	name string
	tok  int
}

// scan is the symbol table of one module.
type scan struct {
	tokens      []Token
	section     []Stage
	conditional []bool
	inDirective []bool

	directives []directive
	body       []int

	defs      []*definition
	macros    map[string]bool
	undefs    map[string]bool
	declared  map[string]bool
	typeNames map[string]bool

	blocks   []*uniformBlock
	uniforms []*plainUniform
	vars     []*interfaceVar

	// mains holds the index of the '{' opening each main() body.
	mains []int

	refs []reference
}

func newScan(tokens []Token) *scan {
	return &scan{
		tokens:    tokens,
		macros:    make(map[string]bool),
		undefs:    make(map[string]bool),
		declared:  make(map[string]bool),
		typeNames: make(map[string]bool),
	}
}

// run performs every pass over the token stream.
func (s *scan) run() error {
	if err := s.scanDirectives(); err != nil {
		return err
	}
	s.scanTypeNames()
	s.scanIdentifiers()
	return s.scanStatements()
}

func (s *scan) errorAt(tok int, format string, args ...any) error {
	t := s.tokens[tok]
	return &ParseError{File: t.File, Line: t.Line, Msg: fmt.Sprintf(format, args...)}
}

// directiveText returns the text of a directive without comments or the trailing newline.
func (s *scan) directiveText(d directive) string {
	var sb strings.Builder
	for i := d.hash; i < d.end; i++ {
		t := s.tokens[i]
		if t.Kind == TokenComment || t.Kind == TokenNewline {
			continue
		}
		sb.WriteString(t.Text)
	}
	return sb.String()
}

func (s *scan) scanDirectives() error {
	n := len(s.tokens)
	s.section = make([]Stage, n)
	s.conditional = make([]bool, n)
	s.inDirective = make([]bool, n)

	section := StageShared
	depth := 0
	for start := 0; start < n; {
		end := start
		for end < n && s.tokens[end].Kind != TokenNewline {
			end++
		}
		if end < n {
			end++
		}

		first := nextSignificant(s.tokens, start, true)
		isDirective := first >= 0 && first < end && s.tokens[first].Is("#")
		lineDepth := depth
		if isDirective {
			d := directive{start: start, end: end, hash: first, nameIdx: -1}
			if ni := nextSignificant(s.tokens, first+1, true); ni >= 0 && s.tokens[ni].Kind == TokenIdent {
				d.name = s.tokens[ni].Text
				d.nameIdx = ni
			}
			switch d.name {
			case "if", "ifdef", "ifndef":
				depth++
			case "endif":
				if depth > 0 {
					depth--
				}
				lineDepth = depth
			case "define":
				if err := s.scanDefine(d, depth > 0); err != nil {
					return err
				}
			case "undef":
				if ni := nextSignificant(s.tokens, d.nameIdx+1, true); ni >= 0 {
					s.undefs[s.tokens[ni].Text] = true
				}
			case "pragma":
				p, err := parsePragma(s.directiveText(d), s.tokens[first].Line)
				if err != nil {
					return &ParseError{File: s.tokens[first].File, Msg: err.Error()}
				}
				d.pragma = p
				if p != nil && p.Type == PragmaTypeStage {
					section = p.Stage
				}
			}
			s.directives = append(s.directives, d)
		}

		for i := start; i < end; i++ {
			s.section[i] = section
			s.conditional[i] = lineDepth > 0
			s.inDirective[i] = isDirective
			if !isDirective && s.tokens[i].Significant() {
				s.body = append(s.body, i)
			}
		}
		start = end
	}
	return nil
}

// scanDefine records a #define: the macro name, its parameters, and the references its body makes.
func (s *scan) scanDefine(d directive, conditional bool) error {
	ni := nextSignificant(s.tokens, d.nameIdx+1, true)
	if ni < 0 || s.tokens[ni].Kind != TokenIdent {
		return s.errorAt(d.hash, "malformed #define")
	}
	name := s.tokens[ni].Text
	s.macros[name] = true
	s.declared[name] = true

	params := make(map[string]bool)
	bodyStart := ni + 1
	if bodyStart < d.end && s.tokens[bodyStart].Is("(") {
		i := bodyStart + 1
		for ; i < d.end && !s.tokens[i].Is(")"); i++ {
			if s.tokens[i].Kind == TokenIdent {
				params[s.tokens[i].Text] = true
			}
		}
		if i >= d.end {
			return s.errorAt(ni, "unterminated parameter list in #define %s", name)
		}
		bodyStart = i + 1
	}

	var body []int
	for i := bodyStart; i < d.end; i++ {
		if s.tokens[i].Significant() {
			body = append(body, i)
		}
	}
	if len(body) == 1 && s.tokens[body[0]].Kind == TokenIdent && isBuiltinType(s.tokens[body[0]].Text) {
		s.typeNames[name] = true
	}
	for k, i := range body {
		t := s.tokens[i]
		if t.Kind != TokenIdent || params[t.Text] || isBuiltinName(t.Text) {
			continue
		}
		if k > 0 {
			prev := s.tokens[body[k-1]]
			if prev.Is(".") || prev.Is("#") || prev.Is("##") {
				continue
			}
			if prev.Kind == TokenIdent && s.isType(prev.Text) {
				s.declared[t.Text] = true
				continue
			}
		}
		if k+1 < len(body) && s.tokens[body[k+1]].Is("##") {
			continue
		}
		s.refs = append(s.refs, reference{name: t.Text, tok: i})
	}

	s.defs = append(s.defs, &definition{
		kind:        symbolMacro,
		name:        name,
		key:         "#define " + name,
		start:       d.start,
		end:         d.end,
		include:     s.tokens[d.hash].Include,
		file:        s.tokens[d.hash].File,
		line:        s.tokens[d.hash].Line,
		conditional: conditional,
	})
	return nil
}

func (s *scan) isType(name string) bool {
	return isBuiltinType(name) || s.typeNames[name]
}

func (s *scan) tok(k int) Token {
	return s.tokens[s.body[k]]
}

// scanTypeNames collects struct and block type names so later passes can recognize declarations
// that use them.
func (s *scan) scanTypeNames() {
	for k := 0; k+1 < len(s.body); k++ {
		t := s.tok(k)
		next := s.tok(k + 1)
		if next.Kind != TokenIdent {
			continue
		}
		switch {
		case t.Is("struct"):
			s.typeNames[next.Text] = true
			s.declared[next.Text] = true
		case t.Is("uniform") || t.Is("in") || t.Is("out") || t.Is("buffer"):
			if k+2 < len(s.body) && s.tok(k+2).Is("{") {
				s.typeNames[next.Text] = true
				s.declared[next.Text] = true
			}
		}
	}
}

// matchForward returns the body position of the bracket closing the one at position k.
func (s *scan) matchForward(k int, open, close string) int {
	depth := 0
	for ; k < len(s.body); k++ {
		switch {
		case s.tok(k).Is(open):
			depth++
		case s.tok(k).Is(close):
			depth--
			if depth == 0 {
				return k
			}
		}
	}
	return len(s.body) - 1
}

// isDeclaration reports whether the identifier at body position k is being declared.
func (s *scan) isDeclaration(k int) bool {
	if k == 0 {
		return false
	}
	prev := s.tok(k - 1)
	switch {
	case prev.Kind == TokenIdent && s.isType(prev.Text):
		return true
	case prev.Is("]"):
		for j := k - 2; j >= 0; j-- {
			if s.tok(j).Is("[") {
				return j > 0 && s.tok(j-1).Kind == TokenIdent && s.isType(s.tok(j-1).Text)
			}
		}
	case prev.Is("}"):
		if k+1 < len(s.body) {
			next := s.tok(k + 1)
			return next.Is(";") || next.Is("[") || next.Is(",")
		}
	}
	return false
}

// scanIdentifiers records declared names and references over the global token stream.
func (s *scan) scanIdentifiers() {
	paren := 0
	declDepth := -1
	for k := 0; k < len(s.body); k++ {
		t := s.tok(k)
		switch t.Kind {
		case TokenPunct:
			switch t.Text {
			case "(":
				paren++
			case ")":
				paren--
				if declDepth > paren {
					declDepth = -1
				}
			case ";", "{", "}":
				declDepth = -1
			}
			continue
		case TokenIdent:
		default:
			continue
		}

		if t.Text == "layout" && k+1 < len(s.body) && s.tok(k+1).Is("(") {
			k = s.matchForward(k+1, "(", ")")
			continue
		}
		if k > 0 && s.tok(k-1).Is(".") {
			continue
		}
		if isBuiltinName(t.Text) {
			continue
		}
		if s.isDeclaration(k) {
			s.declared[t.Text] = true
			declDepth = paren
			continue
		}
		if k > 0 && s.tok(k-1).Is(",") && declDepth == paren {
			s.declared[t.Text] = true
			continue
		}
		s.refs = append(s.refs, reference{name: t.Text, tok: s.body[k]})
	}
}

// scanStatements splits the global scope into statements and classifies each one.
func (s *scan) scanStatements() error {
	brace, paren := 0, 0
	start := 0
	function := false
	for k := 0; k < len(s.body); k++ {
		t := s.tok(k)
		switch {
		case t.Is("("):
			paren++
		case t.Is(")"):
			paren--
		case t.Is("{"):
			if brace == 0 && paren == 0 && k > start && s.tok(k-1).Is(")") {
				function = true
			}
			brace++
		case t.Is("}"):
			brace--
			if brace < 0 {
				return s.errorAt(s.body[k], "unbalanced '}'")
			}
			if brace == 0 && function {
				if err := s.addFunction(start, k); err != nil {
					return err
				}
				start = k + 1
				function = false
			}
		case t.Is(";") && brace == 0 && paren == 0:
			if err := s.addStatement(start, k); err != nil {
				return err
			}
			start = k + 1
		}
	}
	if brace != 0 && len(s.body) > 0 {
		return s.errorAt(s.body[len(s.body)-1], "unbalanced '{'")
	}
	return nil
}

func (s *scan) newDefinition(kind symbolKind, name, key string, first, last int) *definition {
	t := s.tok(first)
	return &definition{
		kind:        kind,
		name:        name,
		key:         key,
		start:       s.body[first],
		end:         s.body[last] + 1,
		include:     t.Include,
		file:        t.File,
		line:        t.Line,
		conditional: s.conditional[s.body[first]],
	}
}

// addFunction records a function definition spanning body positions [first, last].
func (s *scan) addFunction(first, last int) error {
	open := -1
	for k := first; k <= last; k++ {
		if s.tok(k).Is("(") {
			open = k
			break
		}
	}
	if open <= first || s.tok(open-1).Kind != TokenIdent {
		return s.errorAt(s.body[first], "malformed function definition")
	}
	name := s.tok(open - 1).Text
	closing := s.matchForward(open, "(", ")")

	var params []string
	for k := open + 1; k < closing; k++ {
		if t := s.tok(k); t.Kind == TokenIdent && s.isType(t.Text) && t.Text != "void" {
			params = append(params, t.Text)
		}
	}
	def := s.newDefinition(symbolFunction, name, name+"("+strings.Join(params, ",")+")", first, last)
	def.sigEnd = s.body[closing]
	s.defs = append(s.defs, def)

	if name == "main" && closing+1 <= last && s.tok(closing+1).Is("{") {
		s.mains = append(s.mains, s.body[closing+1])
	}
	return nil
}

// layoutRange returns the token range of a layout(...) qualifier starting at body position k,
// extended over one trailing blank, and the body position of its closing parenthesis.
func (s *scan) layoutRange(k int) (start, end, closing int) {
	closing = s.matchForward(k+1, "(", ")")
	start = s.body[k]
	end = s.body[closing] + 1
	if end < len(s.tokens) && s.tokens[end].Kind == TokenSpace {
		end++
	}
	return start, end, closing
}

// layoutArgs returns the identifier arguments of a layout qualifier and its location, or -1.
func (s *scan) layoutArgs(k, closing int) (map[string]bool, int) {
	args := make(map[string]bool)
	location := -1
	for j := k + 2; j < closing; j++ {
		t := s.tok(j)
		if t.Kind != TokenIdent {
			continue
		}
		args[t.Text] = true
		if t.Text == "location" && j+2 < closing && s.tok(j+1).Is("=") && s.tok(j+2).Kind == TokenNumber {
			if v, err := strconv.Atoi(s.tok(j + 2).Text); err == nil {
				location = v
			}
		}
	}
	return args, location
}

// addStatement classifies a global statement spanning body positions [first, last], where last is
// the terminating ';'.
func (s *scan) addStatement(first, last int) error {
	if first >= last {
		return nil
	}
	if s.tok(first).Is("precision") {
		return nil
	}

	layoutStart, layoutEnd, location := -1, -1, -1
	var layout map[string]bool
	storage := ""
	storageTok := -1
	hasStruct := false
	brace := -1
	k := first
	for ; k < last; k++ {
		t := s.tok(k)
		if t.Is("layout") && k+1 < last && s.tok(k+1).Is("(") {
			var closing int
			layoutStart, layoutEnd, closing = s.layoutRange(k)
			layout, location = s.layoutArgs(k, closing)
			k = closing
			continue
		}
		if t.Is("{") {
			brace = k
			break
		}
		switch t.Text {
		case "uniform", "in", "out", "varying", "attribute", "buffer", "shared":
			if storage == "" {
				storage = t.Text
				storageTok = s.body[k]
			}
		case "struct":
			hasStruct = true
		}
	}

	switch {
	case brace >= 0 && hasStruct:
		for j := first; j < brace; j++ {
			if s.tok(j).Is("struct") && s.tok(j+1).Kind == TokenIdent {
				name := s.tok(j + 1).Text
				s.defs = append(s.defs, s.newDefinition(symbolStruct, name, "struct "+name, first, last))
				break
			}
		}
		return nil
	case brace >= 0 && storage == "uniform":
		return s.addBlock(first, last, brace, layout)
	case brace >= 0:
		return nil
	case storage == "uniform":
		return s.addUniform(first, last, layoutStart, layoutEnd)
	case storage == "in" || storage == "out" || storage == "varying" || storage == "attribute":
		s.addInterface(first, last, storage, storageTok, location, layoutStart, layoutEnd)
		return nil
	case storage == "":
		s.addGlobal(first, last)
	}
	return nil
}

// declarators returns the type and the declared names of a simple declaration between body
// positions [from, to). array is set when any name is declared as an array.
func (s *scan) declarators(from, to int) (typ string, names []string, array bool) {
	k := from
	for ; k < to; k++ {
		t := s.tok(k)
		if t.Is("layout") && k+1 < to && s.tok(k+1).Is("(") {
			k = s.matchForward(k+1, "(", ")")
			continue
		}
		if t.Kind == TokenIdent && s.isType(t.Text) {
			typ = t.Text
			k++
			break
		}
	}
	if typ == "" {
		return "", nil, false
	}
	if k < to && s.tok(k).Is("[") {
		array = true
		k = s.matchForward(k, "[", "]") + 1
	}
	expectName := true
	depth := 0
	for ; k < to; k++ {
		t := s.tok(k)
		switch {
		case t.Is("(") || t.Is("[") || t.Is("{"):
			if depth == 0 && t.Is("[") {
				array = true
			}
			depth++
		case t.Is(")") || t.Is("]") || t.Is("}"):
			depth--
		case depth == 0 && t.Is(","):
			expectName = true
		case depth == 0 && expectName && t.Kind == TokenIdent:
			names = append(names, t.Text)
			expectName = false
		}
	}
	return typ, names, array
}

func (s *scan) addBlock(first, last, brace int, layout map[string]bool) error {
	b := &uniformBlock{
		push:    layout["push_constant"],
		start:   s.body[first],
		end:     s.body[last] + 1,
		section: s.section[s.body[first]],
	}
	if brace > first && s.tok(brace-1).Kind == TokenIdent {
		b.typeName = s.tok(brace - 1).Text
	}
	closing := s.matchForward(brace, "{", "}")
	if closing+1 < last && s.tok(closing+1).Kind == TokenIdent {
		b.instance = s.tok(closing + 1).Text
		if closing+2 < last {
			return s.errorAt(s.body[closing+1], "array uniform block %s is not supported", b.instance)
		}
	}

	from := brace + 1
	for k := from; k < closing; k++ {
		if !s.tok(k).Is(";") {
			continue
		}
		typ, names, array := s.declarators(from, k)
		if typ == "" || len(names) == 0 {
			return s.errorAt(s.body[from], "malformed member in uniform block %s", b.typeName)
		}
		if array {
			return s.errorAt(s.body[from], "array member %s in uniform block %s is not supported", names[0], b.typeName)
		}
		kind, ok := ParseUniformKind(typ)
		if !ok || kind == KindSampler2D {
			return s.errorAt(s.body[from], "unsupported type %s for uniform block member %s", typ, names[0])
		}
		for _, n := range names {
			b.members = append(b.members, blockMember{typ: typ, name: n, kind: kind})
		}
		from = k + 1
	}
	s.blocks = append(s.blocks, b)
	return nil
}

func (s *scan) addUniform(first, last, layoutStart, layoutEnd int) error {
	typ, names, array := s.declarators(first, last)
	if typ == "" || len(names) == 0 {
		return s.errorAt(s.body[first], "malformed uniform declaration")
	}
	if array {
		return s.errorAt(s.body[first], "array uniform %s is not supported", names[0])
	}
	kind, ok := ParseUniformKind(typ)
	if !ok {
		return s.errorAt(s.body[first], "unsupported type %s for uniform %s", typ, names[0])
	}
	s.uniforms = append(s.uniforms, &plainUniform{
		typ:         typ,
		names:       names,
		kind:        kind,
		start:       s.body[first],
		end:         s.body[last] + 1,
		layoutStart: layoutStart,
		layoutEnd:   layoutEnd,
		section:     s.section[s.body[first]],
	})
	return nil
}

func (s *scan) addInterface(first, last int, storage string, storageTok, location, layoutStart, layoutEnd int) {
	section := s.section[s.body[first]]
	out := storage == "out" || (storage == "varying" && section == StageVertex)
	_, names, _ := s.declarators(first, last)
	for _, n := range names {
		s.vars = append(s.vars, &interfaceVar{
			name:        n,
			storage:     storage,
			storageTok:  storageTok,
			start:       s.body[first],
			out:         out,
			location:    location,
			layoutStart: layoutStart,
			layoutEnd:   layoutEnd,
			section:     section,
		})
	}
}

// addGlobal records a global variable or constant. Prototypes are declarations only.
func (s *scan) addGlobal(first, last int) {
	_, names, _ := s.declarators(first, last)
	if len(names) == 0 {
		return
	}
	for k := first; k < last; k++ {
		t := s.tok(k)
		if t.Is("=") {
			break
		}
		if t.Is("(") {
			return
		}
	}
	s.defs = append(s.defs, s.newDefinition(symbolGlobal, names[0], names[0], first, last))
}

// referenced reports whether the module body references name.
func (s *scan) referenced(name string) bool {
	for _, r := range s.refs {
		if r.name == name {
			return true
		}
	}
	return false
}

// resolvePrecedence removes losing definitions: a pass-local definition beats any shared-include
// definition with the same key, and among shared definitions the first wins. A loser that precedes
// its winner is replaced by the winner (functions by a prototype) so earlier users still see a
// declaration. Macros with an #undef anywhere in the module are left alone.
func (s *scan) resolvePrecedence(rw *rewriter) []string {
	groups := make(map[string][]*definition)
	var keys []string
	for _, d := range s.defs {
		if _, ok := groups[d.key]; !ok {
			keys = append(keys, d.key)
		}
		groups[d.key] = append(groups[d.key], d)
	}

	var dropped []string
	for _, key := range keys {
		defs := groups[key]
		if len(defs) < 2 {
			continue
		}
		if defs[0].kind == symbolMacro && s.undefs[defs[0].name] {
			continue
		}
		winner := defs[0]
		for _, d := range defs {
			if !d.include {
				winner = d
				break
			}
		}
		if winner.conditional {
			continue
		}

		placed := false
		for _, d := range defs {
			if d == winner || !d.include {
				continue
			}
			rw.dropRange(d.start, d.end)
			dropped = append(dropped, fmt.Sprintf("%s (%s:%d)", key, d.file, d.line))
			if placed || winner.start < d.start {
				continue
			}
			placed = true
			if winner.kind == symbolFunction {
				rw.insertBefore(d.start, joinTokens(s.tokens[winner.start:winner.sigEnd+1])+";\n")
			} else {
				rw.move(d.start, span{start: winner.start, end: winner.end})
			}
		}
	}
	return dropped
}
