package framebuffer

import "log/slog"

// PoolBuilderOption is a functional option applied to a pool during construction via NewPool.
type PoolBuilderOption func(*pool)

// WithLogger sets the logger used for allocation diagnostics.
//
// Parameters:
//   - logger: the logger; nil keeps slog.Default()
//
// Returns:
//   - PoolBuilderOption: a function that applies the logger option to a pool
func WithLogger(logger *slog.Logger) PoolBuilderOption {
	return func(p *pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithLabel sets the prefix of the debug labels given to allocated targets.
//
// Parameters:
//   - label: the label prefix, e.g. the preset name
//
// Returns:
//   - PoolBuilderOption: a function that applies the label option to a pool
func WithLabel(label string) PoolBuilderOption {
	return func(p *pool) {
		p.label = label
	}
}
