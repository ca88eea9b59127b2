package shader

import "log/slog"

// CompilerBuilderOption is a functional option applied to a compiler during construction via NewCompiler.
type CompilerBuilderOption func(*compiler)

// WithLogger sets the logger used for warnings and debug output.
//
// Parameters:
//   - logger: the logger; nil keeps slog.Default()
//
// Returns:
//   - CompilerBuilderOption: a function that applies the logger option to a compiler
func WithLogger(logger *slog.Logger) CompilerBuilderOption {
	return func(c *compiler) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithStubs registers additional stubs, consulted before the built-in catalog.
//
// Parameters:
//   - stubs: the stubs to register
//
// Returns:
//   - CompilerBuilderOption: a function that applies the stubs option to a compiler
func WithStubs(stubs ...Stub) CompilerBuilderOption {
	return func(c *compiler) {
		c.stubs = append(c.stubs, stubs...)
	}
}
