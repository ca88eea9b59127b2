// pre_processor.go implements the module compiler. It turns one pass's Vulkan-style GLSL module
// into a pair of GLSL 3.30 stage bodies for a binding-implicit API, in this order:
//   - tokenize the module once, then splice #include files in (each file is fetched and tokenized
//     once per Compiler and reused by every pass that includes it)
//   - parse pragmas and build the symbol table
//   - resolve symbol precedence (pass-local > shared include > built-in stub) and check that every
//     referenced symbol is defined somewhere, injecting stubs as needed
//   - emulate uniform blocks and push constants with flat uniforms, strip binding syntax
//   - apply every edit in one rewrite, verify no block member access survived, split the stages
package shader

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-crt/common"
)

// compiler is the implementation of the Compiler interface.
type compiler struct {
	resolver common.Resolver
	logger   *slog.Logger

	// stubs are consulted before the built-in stub catalog.
	stubs []Stub

	mu       sync.Mutex
	includes map[string][]Token
}

// Compiler compiles shader modules. A Compiler caches the include files it fetches, so every pass
// of one preset load should go through the same Compiler.
type Compiler interface {
	// Compile translates one module into GLSL 3.30 stage bodies and their binding tables.
	//
	// Parameters:
	//   - ctx: cancels include fetches
	//   - pass: the pass index the module belongs to, used in errors
	//   - path: the resolver path of the module; includes are resolved relative to it
	//   - source: the module text
	//
	// Returns:
	//   - *CompiledModule: the compiled module
	//   - error: a *ParseError, *MissingSymbolError, *UnresolvedMemberReferenceError or
	//     *MissingStageError
	Compile(ctx context.Context, pass int, path, source string) (*CompiledModule, error)

	// Includes returns the paths of every include file fetched so far, sorted.
	//
	// Returns:
	//   - []string: the cached include paths
	Includes() []string
}

var _ Compiler = &compiler{}

// NewCompiler creates a Compiler that fetches includes through resolver.
//
// Parameters:
//   - resolver: the text supplier for #include files
//   - options: functional options
//
// Returns:
//   - Compiler: the new compiler
func NewCompiler(resolver common.Resolver, options ...CompilerBuilderOption) Compiler {
	c := &compiler{
		resolver: resolver,
		logger:   slog.Default(),
		includes: make(map[string][]Token),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

func (c *compiler) Includes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	paths := make([]string, 0, len(c.includes))
	for p := range c.includes {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	return paths
}

func (c *compiler) Compile(ctx context.Context, pass int, path, source string) (*CompiledModule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	started := time.Now()
	path = common.CleanPath(path)

	tokens, err := c.expand(ctx, path, Tokenize(path, source), []string{path}, map[string]bool{})
	if err != nil {
		return nil, err
	}

	s := newScan(tokens)
	if err := s.run(); err != nil {
		return nil, err
	}

	m := &CompiledModule{Pass: pass, Path: path}
	c.collectPragmas(s, m)

	rw := newRewriter(tokens)
	for _, d := range s.resolvePrecedence(rw) {
		c.logger.Debug("shared definition superseded", "pass", pass, "definition", d)
	}

	prefix, err := c.resolveReferences(s, m)
	if err != nil {
		return nil, err
	}

	e := newEmulator(s, rw, m.Parameters)
	e.run()

	out := rw.apply(prefix)
	if err := checkMemberReferences(pass, out, e.instances); err != nil {
		return nil, err
	}

	vertex, fragment, err := splitStages(pass, out)
	if err != nil {
		return nil, err
	}
	if err := matchVaryings(path, fragment, e.varyings); err != nil {
		return nil, err
	}

	m.Vertex = joinTokens(vertex)
	m.Fragment = joinTokens(fragment)
	m.Uniforms = e.uniforms()
	m.Textures = e.textures
	m.VertexInputs = e.inputs

	c.logger.Debug("compiled module",
		"pass", pass,
		"path", path,
		"uniforms", len(m.Uniforms),
		"textures", len(m.Textures),
		"parameters", len(m.Parameters),
		"elapsed", time.Since(started))
	return m, nil
}

// collectPragmas reads parameter, name and format pragmas. The first declaration of a parameter
// wins; defaults outside [min, max] are clamped.
func (c *compiler) collectPragmas(s *scan, m *CompiledModule) {
	seen := make(map[string]int)
	for _, d := range s.directives {
		p := d.pragma
		if p == nil {
			continue
		}
		switch p.Type {
		case PragmaTypeParameter:
			param := p.Parameter
			if i, ok := seen[param.Name]; ok {
				if m.Parameters[i].Default != param.Default {
					c.logger.Warn("parameter redeclared with a different default",
						"pass", m.Pass, "parameter", param.Name,
						"kept", m.Parameters[i].Default, "ignored", param.Default)
				}
				continue
			}
			if clamped := param.Clamp(param.Default); clamped != param.Default {
				c.logger.Warn("parameter default outside its range",
					"pass", m.Pass, "parameter", param.Name, "default", param.Default, "clamped", clamped)
				param.Default = clamped
			}
			seen[param.Name] = len(m.Parameters)
			m.Parameters = append(m.Parameters, param)
		case PragmaTypeName:
			if m.Alias == "" {
				m.Alias = p.Name
			}
		case PragmaTypeFormat:
			if !m.HasFormat {
				m.Format = p.Format
				m.HasFormat = true
			}
		}
	}
}

// resolveReferences checks that every referenced identifier is defined, and returns the stubs to
// inject for the ones only the stub catalog defines.
func (c *compiler) resolveReferences(s *scan, m *CompiledModule) (string, error) {
	params := make(map[string]bool, len(m.Parameters))
	for _, p := range m.Parameters {
		params[p.Name] = true
	}

	var prefix strings.Builder
	injected := make(map[string]bool)
	for _, r := range s.refs {
		name := r.name
		if isBuiltinName(name) || s.declared[name] || s.macros[name] || s.typeNames[name] || params[name] || injected[name] {
			continue
		}
		stub, ok := lookupStub(c.stubs, name)
		if !ok {
			t := s.tokens[r.tok]
			return "", &MissingSymbolError{Symbol: name, Pass: m.Pass, File: t.File, Line: t.Line}
		}
		injected[name] = true
		prefix.WriteString(stub.Source)
		if stub.Cosmetic {
			w := &MissingSymbolWarning{Symbol: name, Pass: m.Pass, Reason: "using an empty default"}
			m.Warnings = append(m.Warnings, w)
			c.logger.Warn("cosmetic symbol missing", "pass", m.Pass, "symbol", name)
		}
	}
	return prefix.String(), nil
}

// expand splices #include files into tokens. stack holds the include chain for cycle detection;
// seen holds the files already included into this module.
func (c *compiler) expand(ctx context.Context, file string, tokens []Token, stack []string, seen map[string]bool) ([]Token, error) {
	out := make([]Token, 0, len(tokens))
	for start := 0; start < len(tokens); {
		end := start
		for end < len(tokens) && tokens[end].Kind != TokenNewline {
			end++
		}
		if end < len(tokens) {
			end++
		}
		line := tokens[start:end]
		start = end

		target, lineNum, ok, err := includeTarget(file, line)
		if err != nil {
			return nil, err
		}
		if !ok {
			out = append(out, line...)
			continue
		}
		if slices.Contains(stack, target) {
			return nil, &ParseError{File: file, Line: lineNum, Msg: fmt.Sprintf("include cycle: %s -> %s", strings.Join(stack, " -> "), target)}
		}
		if seen[target] {
			continue
		}
		seen[target] = true

		included, err := c.include(ctx, target)
		if err != nil {
			return nil, &ParseError{File: file, Line: lineNum, Msg: fmt.Sprintf("cannot resolve include %q", target), Err: err}
		}
		nested, err := c.expand(ctx, target, included, append(slices.Clone(stack), target), seen)
		if err != nil {
			return nil, err
		}
		out = append(out, nested...)
		if len(nested) > 0 && nested[len(nested)-1].Kind != TokenNewline {
			out = append(out, Token{Kind: TokenNewline, Text: "\n", Line: lineNum, File: target, Include: true})
		}
	}
	return out, nil
}

// includeTarget reports whether a line is an #include directive and returns its resolved path.
func includeTarget(file string, line []Token) (string, int, bool, error) {
	first := nextSignificant(line, 0, false)
	if first < 0 || !line[first].Is("#") {
		return "", 0, false, nil
	}
	name := nextSignificant(line, first+1, false)
	if name < 0 || !line[name].Is("include") {
		return "", 0, false, nil
	}
	lineNum := line[first].Line
	arg := nextSignificant(line, name+1, false)
	if arg < 0 || line[arg].Kind != TokenString || len(line[arg].Text) < 2 {
		return "", lineNum, false, &ParseError{File: file, Line: lineNum, Msg: "#include requires a quoted path"}
	}
	ref := strings.Trim(line[arg].Text, `"`)
	return common.JoinPath(file, ref), lineNum, true, nil
}

// include returns the tokens of an include file, fetching and tokenizing it on first use.
func (c *compiler) include(ctx context.Context, path string) ([]Token, error) {
	c.mu.Lock()
	cached, ok := c.includes[path]
	c.mu.Unlock()
	if ok {
		return cached, nil
	}

	data, err := c.resolver.Resolve(ctx, path)
	if err != nil {
		return nil, err
	}
	tokens := Tokenize(path, string(data))
	for i := range tokens {
		tokens[i].Include = true
	}

	c.mu.Lock()
	c.includes[path] = tokens
	c.mu.Unlock()
	c.logger.Debug("fetched include", "path", path, "bytes", len(data))
	return tokens, nil
}
