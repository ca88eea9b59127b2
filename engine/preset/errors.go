package preset

import "fmt"

// ParseError reports a malformed preset. Line is 0 when the problem is not tied to a single line
// (e.g. a per-pass key whose pass has no shader).
type ParseError struct {
	Line int
	Key  string
	Msg  string
	Err  error
}

func (e *ParseError) Error() string {
	msg := e.Msg
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Line > 0 {
		return fmt.Sprintf("preset: line %d: %s: %s", e.Line, e.Key, msg)
	}
	return fmt.Sprintf("preset: %s: %s", e.Key, msg)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
