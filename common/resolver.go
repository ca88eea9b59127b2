package common

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"strings"
)

// Resolver supplies the raw bytes of preset, shader module, include and lookup-texture files.
// Paths are slash separated and relative to the resolver's root; the renderer never touches the
// filesystem or network directly.
type Resolver interface {
	// Resolve returns the content stored at the given path.
	//
	// Parameters:
	//   - ctx: cancelled when the load that asked for the file is superseded
	//   - name: the slash separated path of the file
	//
	// Returns:
	//   - []byte: the file content
	//   - error: an error if the file cannot be found or read
	Resolve(ctx context.Context, name string) ([]byte, error)
}

// ResolverFunc adapts a plain function to the Resolver interface.
type ResolverFunc func(ctx context.Context, name string) ([]byte, error)

// Resolve calls f(ctx, name).
func (f ResolverFunc) Resolve(ctx context.Context, name string) ([]byte, error) {
	return f(ctx, name)
}

type fsResolver struct {
	fsys fs.FS
}

// FSResolver returns a Resolver reading from the given file system, e.g. os.DirFS(shaderRoot)
// or an embed.FS holding bundled presets.
//
// Parameters:
//   - fsys: the file system to read from
//
// Returns:
//   - Resolver: a resolver backed by fsys
func FSResolver(fsys fs.FS) Resolver {
	return &fsResolver{fsys: fsys}
}

func (r *fsResolver) Resolve(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := fs.ReadFile(r.fsys, CleanPath(name))
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", name, err)
	}
	return b, nil
}

// MapResolver is an in-memory Resolver keyed by cleaned path. It is mostly useful for tests and for
// hosts that receive preset bundles over the wire.
type MapResolver map[string]string

// Resolve returns the entry stored under the cleaned path, or fs.ErrNotExist.
func (m MapResolver) Resolve(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s, ok := m[CleanPath(name)]
	if !ok {
		return nil, fmt.Errorf("resolve %q: %w", name, fs.ErrNotExist)
	}
	return []byte(s), nil
}

// CleanPath normalizes a preset-relative path: backslashes become slashes, "." and ".." elements are
// folded, and any leading "./" or "/" is removed so that fs.FS implementations accept it.
//
// Parameters:
//   - name: the path as written in a preset or #include directive
//
// Returns:
//   - string: the normalized path
func CleanPath(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = path.Clean(name)
	name = strings.TrimPrefix(name, "/")
	if name == "." {
		return ""
	}
	return name
}

// JoinPath resolves ref relative to the directory containing from.
//
// Parameters:
//   - from: the path of the referencing file
//   - ref: the relative path written inside that file
//
// Returns:
//   - string: the cleaned, joined path
func JoinPath(from, ref string) string {
	ref = strings.ReplaceAll(ref, `\`, "/")
	if strings.HasPrefix(ref, "/") {
		return CleanPath(ref)
	}
	return CleanPath(path.Join(path.Dir(strings.ReplaceAll(from, `\`, "/")), ref))
}
