// lexer.go implements the single tokenization pass of the module pre-processor. Every later stage
// (include expansion, pragma extraction, symbol resolution, uniform emulation, stage splitting)
// works on the token slice produced here, and output text is produced by concatenating token text,
// so whitespace and comments survive the rewrite untouched.
package shader

import "strings"

// TokenKind classifies a lexical token of GLSL source.
type TokenKind int

const (
	// TokenIdent is an identifier or keyword.
	TokenIdent TokenKind = iota

	// TokenNumber is an integer or floating point literal, including suffixes.
	TokenNumber

	// TokenPunct is an operator or punctuation, including the directive marker '#'.
	TokenPunct

	// TokenString is a double-quoted string (only legal inside directives).
	TokenString

	// TokenComment is a line or block comment.
	TokenComment

	// TokenSpace is a run of blanks, or a backslash line continuation.
	TokenSpace

	// TokenNewline is a single line break. Directives end at the first newline token.
	TokenNewline
)

// Token is one lexical token. Tokens remember the file they were read from so that symbol
// precedence can tell pass-local definitions from shared-include ones.
type Token struct {
	Kind TokenKind
	Text string
	Line int

	// File is the resolver path of the file the token was read from.
	File string

	// Include is true when the token was pulled in by an #include directive.
	Include bool
}

// Significant reports whether the token carries meaning (not blank, comment, or newline).
func (t Token) Significant() bool {
	return t.Kind != TokenSpace && t.Kind != TokenComment && t.Kind != TokenNewline
}

// Is reports whether the token is the given identifier or punctuation text.
func (t Token) Is(text string) bool {
	return (t.Kind == TokenIdent || t.Kind == TokenPunct) && t.Text == text
}

// twoCharOps are the operators lexed as a single punctuation token.
var twoCharOps = []string{
	"++", "--", "+=", "-=", "*=", "/=", "%=", "&=", "|=", "^=",
	"==", "!=", "<=", ">=", "&&", "||", "^^", "<<", ">>", "##",
}

// lexer tokenizes one file.
type lexer struct {
	source string
	file   string
	pos    int
	line   int
	tokens []Token
}

// Tokenize splits GLSL source into tokens. Tokenization never fails: unknown bytes become
// single-character punctuation and are reported by the compiler downstream if they matter.
//
// Parameters:
//   - file: the resolver path of the source, recorded on every token
//   - source: the GLSL text
//
// Returns:
//   - []Token: the tokens in source order; concatenating their Text reproduces source
func Tokenize(file, source string) []Token {
	est := len(source) / 4
	if est < 16 {
		est = 16
	}
	l := &lexer{
		source: source,
		file:   file,
		line:   1,
		tokens: make([]Token, 0, est),
	}
	for l.pos < len(l.source) {
		l.scan()
	}
	return l.tokens
}

func (l *lexer) emit(kind TokenKind, start int) {
	text := l.source[start:l.pos]
	l.tokens = append(l.tokens, Token{Kind: kind, Text: text, Line: l.line, File: l.file})
	l.line += strings.Count(text, "\n")
}

func (l *lexer) peek(off int) byte {
	if l.pos+off < len(l.source) {
		return l.source[l.pos+off]
	}
	return 0
}

func (l *lexer) scan() {
	start := l.pos
	c := l.source[l.pos]

	switch {
	case c == '\n':
		l.pos++
		l.emit(TokenNewline, start)
	case c == '\r' && l.peek(1) == '\n':
		l.pos += 2
		l.emit(TokenNewline, start)
	case c == ' ' || c == '\t' || c == '\r' || c == '\f' || c == '\v':
		for l.pos < len(l.source) && strings.IndexByte(" \t\r\f\v", l.source[l.pos]) >= 0 && !(l.source[l.pos] == '\r' && l.peek(1) == '\n') {
			l.pos++
		}
		l.emit(TokenSpace, start)
	case c == '\\' && (l.peek(1) == '\n' || (l.peek(1) == '\r' && l.peek(2) == '\n')):
		// Line continuation: a directive keeps going on the next line.
		if l.peek(1) == '\r' {
			l.pos += 3
		} else {
			l.pos += 2
		}
		l.emit(TokenSpace, start)
	case c == '/' && l.peek(1) == '/':
		for l.pos < len(l.source) && l.source[l.pos] != '\n' {
			l.pos++
		}
		if l.pos > start && l.source[l.pos-1] == '\r' {
			l.pos--
		}
		l.emit(TokenComment, start)
	case c == '/' && l.peek(1) == '*':
		end := strings.Index(l.source[l.pos+2:], "*/")
		if end < 0 {
			l.pos = len(l.source)
		} else {
			l.pos += end + 4
		}
		l.emit(TokenComment, start)
	case c == '"':
		l.pos++
		for l.pos < len(l.source) && l.source[l.pos] != '"' && l.source[l.pos] != '\n' {
			l.pos++
		}
		if l.pos < len(l.source) && l.source[l.pos] == '"' {
			l.pos++
		}
		l.emit(TokenString, start)
	case isIdentStart(c):
		for l.pos < len(l.source) && isIdentPart(l.source[l.pos]) {
			l.pos++
		}
		l.emit(TokenIdent, start)
	case isDigit(c) || (c == '.' && isDigit(l.peek(1))):
		l.scanNumber()
		l.emit(TokenNumber, start)
	default:
		for _, op := range twoCharOps {
			if strings.HasPrefix(l.source[l.pos:], op) {
				l.pos += len(op)
				l.emit(TokenPunct, start)
				return
			}
		}
		l.pos++
		l.emit(TokenPunct, start)
	}
}

func (l *lexer) scanNumber() {
	hex := l.source[l.pos] == '0' && (l.peek(1) == 'x' || l.peek(1) == 'X')
	for l.pos < len(l.source) {
		c := l.source[l.pos]
		switch {
		case isIdentPart(c) || c == '.':
			l.pos++
		case (c == '+' || c == '-') && !hex && (l.source[l.pos-1] == 'e' || l.source[l.pos-1] == 'E'):
			l.pos++
		default:
			return
		}
	}
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}

// joinTokens concatenates token text.
func joinTokens(tokens []Token) string {
	var sb strings.Builder
	for _, t := range tokens {
		sb.WriteString(t.Text)
	}
	return sb.String()
}

// nextSignificant returns the index of the first significant token at or after i that is on the
// same logical line, or -1. Newlines stop the search only when stopAtNewline is set.
func nextSignificant(tokens []Token, i int, stopAtNewline bool) int {
	for ; i < len(tokens); i++ {
		if tokens[i].Kind == TokenNewline && stopAtNewline {
			return -1
		}
		if tokens[i].Significant() {
			return i
		}
	}
	return -1
}

// prevSignificant returns the index of the last significant token before i, or -1.
func prevSignificant(tokens []Token, i int) int {
	for i--; i >= 0; i-- {
		if tokens[i].Significant() {
			return i
		}
	}
	return -1
}
