// Package preset parses shader preset files: an ordered chain of shader passes with their aliases,
// scale rules, sampling state, framebuffer formats, lookup textures and parameter overrides.
package preset

import (
	"fmt"
	"strings"

	"cogentcore.org/core/base/keylist"
	"github.com/Carmen-Shannon/oxy-crt/common"
)

// ScaleType selects what a pass's scale factor is relative to.
type ScaleType int

const (
	// ScaleSource scales relative to the size of the pass's input (the previous pass, or the original image for pass 0).
	ScaleSource ScaleType = iota

	// ScaleViewport scales relative to the final output surface.
	ScaleViewport

	// ScaleAbsolute interprets the factor as a size in pixels.
	ScaleAbsolute
)

var scaleTypeNames = map[string]ScaleType{
	"source":   ScaleSource,
	"viewport": ScaleViewport,
	"absolute": ScaleAbsolute,
}

// ParseScaleType parses the preset spelling of a scale type.
//
// Parameters:
//   - s: "source", "viewport" or "absolute"
//
// Returns:
//   - ScaleType: the parsed scale type
//   - error: an error if the name is unknown
func ParseScaleType(s string) (ScaleType, error) {
	st, ok := scaleTypeNames[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return ScaleSource, fmt.Errorf("unknown scale type %q", s)
	}
	return st, nil
}

func (s ScaleType) String() string {
	switch s {
	case ScaleSource:
		return "source"
	case ScaleViewport:
		return "viewport"
	case ScaleAbsolute:
		return "absolute"
	}
	return fmt.Sprintf("ScaleType(%d)", int(s))
}

// Scale is the scale rule of one axis of a pass.
type Scale struct {
	Type   ScaleType
	Factor float32
}

// Apply computes the target dimension for this axis.
//
// Parameters:
//   - source: the dimension of the pass's input
//   - viewport: the dimension of the output surface
//
// Returns:
//   - int: the dimension of the pass's target, at least 1
func (s Scale) Apply(source, viewport int) int {
	switch s.Type {
	case ScaleViewport:
		return common.RoundScaled(viewport, s.Factor)
	case ScaleAbsolute:
		return common.RoundScaled(1, s.Factor)
	default:
		return common.RoundScaled(source, s.Factor)
	}
}

// Filter is a tri-state filter selection: a preset may leave it unspecified, in which case the
// consumer decides (linear for the final blit, nearest elsewhere).
type Filter int

const (
	FilterUnspecified Filter = iota
	FilterNearest
	FilterLinear
)

// Linear resolves the filter against a fallback used when the preset left it unspecified.
func (f Filter) Linear(fallback bool) bool {
	switch f {
	case FilterLinear:
		return true
	case FilterNearest:
		return false
	}
	return fallback
}

// Pass describes one shader pass. Passes are immutable once parsed.
type Pass struct {
	// Index is the position of the pass in the chain (after sorting shaderN keys).
	Index int
	// Path is the module path relative to the preset.
	Path string
	// Alias is the name later passes use to sample this pass's output; empty if unaliased.
	Alias string

	ScaleX Scale
	ScaleY Scale
	// ScaleSet reports whether the preset gave any scale key for this pass.
	ScaleSet bool

	// Filter is how this pass samples its input.
	Filter Filter
	// Wrap is how this pass samples its input outside [0, 1].
	Wrap common.WrapMode
	// MipmapInput requests mipmaps on this pass's input.
	MipmapInput bool

	FloatFramebuffer bool
	SRGBFramebuffer  bool

	// FrameCountMod, when > 1, makes the pass re-render only every FrameCountMod frames.
	FrameCountMod uint32
}

// Format returns the target format requested by the preset flags, if any.
//
// Returns:
//   - common.PixelFormat: the requested format
//   - bool: false if the preset did not request a format for this pass
func (p Pass) Format() (common.PixelFormat, bool) {
	switch {
	case p.FloatFramebuffer:
		return common.FormatRGBA16Float, true
	case p.SRGBFramebuffer:
		return common.FormatRGBA8UnormSRGB, true
	}
	return common.FormatRGBA8Unorm, false
}

// Texture is a lookup texture (LUT) shared by every pass under its name.
type Texture struct {
	Name   string
	Path   string
	Linear bool
	Wrap   common.WrapMode
	Mipmap bool
}

// Preset is a parsed preset file.
type Preset struct {
	// BasePath is the path of the preset itself; pass and texture paths are relative to its directory.
	BasePath string

	Passes []Pass

	// Parameters holds the parameter overrides in declaration order.
	Parameters *keylist.List[string, float32]

	// Textures holds the lookup textures in declaration order.
	Textures []Texture

	// Extra holds keys this parser does not interpret.
	Extra map[string]string
}

// ModulePath returns the resolver path of a pass's module.
//
// Parameters:
//   - pass: the pass index
//
// Returns:
//   - string: the module path joined to the preset's directory
func (p *Preset) ModulePath(pass int) string {
	return common.JoinPath(p.BasePath, p.Passes[pass].Path)
}

// TexturePath returns the resolver path of a lookup texture.
//
// Parameters:
//   - t: the lookup texture
//
// Returns:
//   - string: the texture path joined to the preset's directory
func (p *Preset) TexturePath(t Texture) string {
	return common.JoinPath(p.BasePath, t.Path)
}

// Override returns the preset's override for a parameter.
//
// Parameters:
//   - name: the parameter name
//
// Returns:
//   - float32: the override value
//   - bool: false when the preset does not override the parameter
func (p *Preset) Override(name string) (float32, bool) {
	if p.Parameters == nil {
		return 0, false
	}
	return p.Parameters.AtTry(name)
}
