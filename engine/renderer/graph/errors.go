package graph

import "fmt"

// UnboundTextureError reports a sampler with no resolvable source: no earlier pass publishes its
// name, it is not a built-in texture name, and no lookup texture carries it.
type UnboundTextureError struct {
	Pass    int
	Sampler string
}

func (e *UnboundTextureError) Error() string {
	return fmt.Sprintf("graph: pass %d: sampler %q is not bound to any texture", e.Pass, e.Sampler)
}

// DuplicateAliasError reports an alias published by two passes, or by a pass and a lookup texture.
// Second is InputImage when the collision is with a lookup texture.
type DuplicateAliasError struct {
	Alias  string
	First  int
	Second int
}

func (e *DuplicateAliasError) Error() string {
	if e.Second == InputImage {
		return fmt.Sprintf("graph: alias %q of pass %d collides with a lookup texture", e.Alias, e.First)
	}
	return fmt.Sprintf("graph: alias %q is published by passes %d and %d", e.Alias, e.First, e.Second)
}

// PassCountError reports a module list that does not match the preset's passes.
type PassCountError struct {
	Passes  int
	Modules int
}

func (e *PassCountError) Error() string {
	return fmt.Sprintf("graph: preset has %d passes but %d modules were compiled", e.Passes, e.Modules)
}
