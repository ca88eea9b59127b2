package graph

import "log/slog"

// BuildOption is a functional option applied to a graph build via Build.
type BuildOption func(*builder)

// WithLogger sets the logger used for build diagnostics.
//
// Parameters:
//   - logger: the logger; nil keeps slog.Default()
//
// Returns:
//   - BuildOption: a function that applies the logger option to a build
func WithLogger(logger *slog.Logger) BuildOption {
	return func(b *builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}
