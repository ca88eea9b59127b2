package shader

import "fmt"

// ParseError reports malformed module text: a bad pragma, an unresolved or recursive include,
// an unsupported uniform type, or an unbalanced construct.
type ParseError struct {
	File string
	Line int
	Msg  string
	Err  error
}

func (e *ParseError) Error() string {
	msg := e.Msg
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Line > 0 {
		return fmt.Sprintf("shader: %s:%d: %s", e.File, e.Line, msg)
	}
	return fmt.Sprintf("shader: %s: %s", e.File, msg)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// MissingSymbolError reports a structural symbol that is referenced but defined nowhere: not in the
// module, not in any include, and not in the built-in stub catalog.
type MissingSymbolError struct {
	Symbol string
	Pass   int
	File   string
	Line   int
}

func (e *MissingSymbolError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("shader: pass %d: %s:%d: undefined symbol %q", e.Pass, e.File, e.Line, e.Symbol)
	}
	return fmt.Sprintf("shader: pass %d: undefined symbol %q", e.Pass, e.Symbol)
}

// MissingSymbolWarning reports a cosmetic symbol that was absent and replaced with a neutral
// default. It never fails a load.
type MissingSymbolWarning struct {
	Symbol string
	Pass   int
	Reason string
}

func (w *MissingSymbolWarning) Error() string {
	return fmt.Sprintf("shader: pass %d: %q missing, %s", w.Pass, w.Symbol, w.Reason)
}

// UnresolvedMemberReferenceError reports a block-member reference that survived the rewrite, which
// would compile as an access to an undeclared struct.
type UnresolvedMemberReferenceError struct {
	Pass      int
	Reference string
	Line      int
}

func (e *UnresolvedMemberReferenceError) Error() string {
	return fmt.Sprintf("shader: pass %d: line %d: unresolved member reference %q", e.Pass, e.Line, e.Reference)
}

// MissingStageError reports a module without a vertex or fragment stage marker.
type MissingStageError struct {
	Pass  int
	Stage Stage
}

func (e *MissingStageError) Error() string {
	return fmt.Sprintf("shader: pass %d: missing #pragma stage %s", e.Pass, e.Stage)
}
