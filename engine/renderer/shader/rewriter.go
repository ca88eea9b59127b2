package shader

// span is a token range [start, end).
type span struct {
	start int
	end   int
}

// edit is the pending change for one token.
type edit struct {
	drop   bool
	moved  bool
	before []string
	splice []span
	after  []string
}

// rewriter collects edits against a token stream and applies them in a single pass. Analysis
// stages only ever record edits; nothing is emitted until apply.
type rewriter struct {
	tokens []Token
	edits  []edit
}

func newRewriter(tokens []Token) *rewriter {
	return &rewriter{
		tokens: tokens,
		edits:  make([]edit, len(tokens)),
	}
}

func (r *rewriter) dropRange(start, end int) {
	for i := start; i < end && i < len(r.edits); i++ {
		r.edits[i].drop = true
	}
}

// replaceRange drops [start, end) and emits text in its place.
func (r *rewriter) replaceRange(start, end int, text string) {
	r.dropRange(start, end)
	r.insertBefore(start, text)
}

func (r *rewriter) insertBefore(i int, text string) {
	r.edits[i].before = append(r.edits[i].before, text)
}

// insertAfter emits text after token i. Nothing is emitted if token i is dropped.
func (r *rewriter) insertAfter(i int, text string) {
	r.edits[i].after = append(r.edits[i].after, text)
}

// move emits the range from, with its own edits applied, before token to instead of in place.
func (r *rewriter) move(to int, from span) {
	for i := from.start; i < from.end; i++ {
		r.edits[i].moved = true
	}
	r.edits[to].splice = append(r.edits[to].splice, from)
}

// apply emits the rewritten token stream. prefix is emitted first.
func (r *rewriter) apply(prefix string) []Token {
	out := make([]Token, 0, len(r.tokens)+64)
	if prefix != "" && len(r.tokens) > 0 {
		out = append(out, generated(prefix, r.tokens[0])...)
	}
	r.emit(&out, 0, len(r.tokens), false)
	return out
}

func (r *rewriter) emit(out *[]Token, start, end int, spliced bool) {
	for i := start; i < end; i++ {
		e := &r.edits[i]
		if e.moved && !spliced {
			continue
		}
		anchor := r.tokens[i]
		for _, text := range e.before {
			*out = append(*out, generated(text, anchor)...)
		}
		for _, sp := range e.splice {
			r.emit(out, sp.start, sp.end, true)
		}
		if e.drop {
			continue
		}
		*out = append(*out, anchor)
		for _, text := range e.after {
			*out = append(*out, generated(text, anchor)...)
		}
	}
}

// generated tokenizes synthesized text and attributes it to the anchor's location.
func generated(text string, anchor Token) []Token {
	tokens := Tokenize(anchor.File, text)
	for i := range tokens {
		tokens[i].Line = anchor.Line
		tokens[i].Include = anchor.Include
	}
	return tokens
}
