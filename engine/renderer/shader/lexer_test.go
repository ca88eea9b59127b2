package shader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenizeRoundTrip(t *testing.T) {
	sources := []string{
		"#version 450\nvoid main() { gl_Position = vec4(0.0); }\n",
		"float a = 1.5e-3f; // trailing\r\nint b = 0x1F;\n",
		"/* block\n comment */ vec2 uv = vec2(.5, 2.);",
		"#define LONG(a) \\\n    ((a) * 2.0)\n",
		"x += y; z <<= 1; if (a && b || !c) {}",
	}
	for _, src := range sources {
		assert.Equal(t, src, joinTokens(Tokenize("test.slang", src)))
	}
}

func TestTokenizeKinds(t *testing.T) {
	tokens := Tokenize("a.slang", `#include "b.inc"`+"\nvec4 c = texture(S, uv) * 2.0;")

	var significant []Token
	for _, tok := range tokens {
		if tok.Significant() {
			significant = append(significant, tok)
		}
	}
	require.GreaterOrEqual(t, len(significant), 6)

	assert.Equal(t, TokenPunct, significant[0].Kind)
	assert.True(t, significant[0].Is("#"))
	assert.Equal(t, TokenIdent, significant[1].Kind)
	assert.Equal(t, TokenString, significant[2].Kind)
	assert.Equal(t, `"b.inc"`, significant[2].Text)
	assert.Equal(t, 1, significant[2].Line)
	assert.Equal(t, "vec4", significant[3].Text)
	assert.Equal(t, 2, significant[3].Line)

	last := significant[len(significant)-2]
	assert.Equal(t, TokenNumber, last.Kind)
	assert.Equal(t, "2.0", last.Text)
	for _, tok := range tokens {
		assert.Equal(t, "a.slang", tok.File)
	}
}

func TestTokenizeTwoCharOperators(t *testing.T) {
	var ops []string
	for _, tok := range Tokenize("", "a == b && c++ != d") {
		if tok.Kind == TokenPunct {
			ops = append(ops, tok.Text)
		}
	}
	assert.Equal(t, []string{"==", "&&", "++", "!="}, ops)
}

func TestTokenizeLineContinuation(t *testing.T) {
	tokens := Tokenize("", "#define X \\\n 1\nfloat y;")
	var newlines int
	for _, tok := range tokens {
		if tok.Kind == TokenNewline {
			newlines++
		}
		if tok.Text == "y" {
			assert.Equal(t, 3, tok.Line)
		}
	}
	assert.Equal(t, 1, newlines, "a continued line is one logical line")
}

func TestSignificantNeighbours(t *testing.T) {
	tokens := Tokenize("", "a /* c */ .\n b")
	first := nextSignificant(tokens, 0, false)
	require.Equal(t, 0, first)

	dot := nextSignificant(tokens, first+1, false)
	require.GreaterOrEqual(t, dot, 0)
	assert.True(t, tokens[dot].Is("."))

	assert.Equal(t, -1, nextSignificant(tokens, dot+1, true))
	b := nextSignificant(tokens, dot+1, false)
	require.GreaterOrEqual(t, b, 0)
	assert.Equal(t, "b", tokens[b].Text)
	assert.Equal(t, dot, prevSignificant(tokens, b))
}
