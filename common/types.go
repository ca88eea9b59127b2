// package common contains common types that are used throughout this engine. They are not interface-wrapped structs, just plain structs that express
// commonly used data-types.
package common

import (
	"fmt"
	"strings"
)

// WrapMode selects how texture coordinates outside [0, 1] are resolved when a pass samples a texture.
type WrapMode int

const (
	// WrapClampToEdge clamps coordinates to the edge texels. This is the default.
	WrapClampToEdge WrapMode = iota

	// WrapClampToBorder returns a transparent black border outside the texture.
	WrapClampToBorder

	// WrapRepeat tiles the texture.
	WrapRepeat

	// WrapMirroredRepeat tiles the texture, mirroring every other tile.
	WrapMirroredRepeat
)

var wrapModeNames = map[string]WrapMode{
	"clamp_to_edge":   WrapClampToEdge,
	"clamp_to_border": WrapClampToBorder,
	"repeat":          WrapRepeat,
	"mirrored_repeat": WrapMirroredRepeat,
}

// ParseWrapMode parses the preset spelling of a wrap mode (e.g. "clamp_to_edge").
//
// Parameters:
//   - s: the wrap mode as written in a preset
//
// Returns:
//   - WrapMode: the parsed wrap mode
//   - error: an error if the name is not a known wrap mode
func ParseWrapMode(s string) (WrapMode, error) {
	w, ok := wrapModeNames[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return WrapClampToEdge, fmt.Errorf("unknown wrap mode %q", s)
	}
	return w, nil
}

func (w WrapMode) String() string {
	for name, v := range wrapModeNames {
		if v == w {
			return name
		}
	}
	return fmt.Sprintf("WrapMode(%d)", int(w))
}

// PixelFormat is the storage format of a render target.
type PixelFormat int

const (
	// FormatRGBA8Unorm is 8-bit normalized RGBA. This is the default target format.
	FormatRGBA8Unorm PixelFormat = iota

	// FormatRGBA8UnormSRGB is 8-bit RGBA with sRGB encode on write and decode on sample.
	FormatRGBA8UnormSRGB

	// FormatRGBA16Float is half-float RGBA, used by float framebuffers.
	FormatRGBA16Float

	// FormatRGBA32Float is full-float RGBA.
	FormatRGBA32Float

	// FormatRGB10A2Unorm is 10-bit RGB with 2-bit alpha.
	FormatRGB10A2Unorm
)

// pixelFormatNames maps the Vulkan format names accepted by `#pragma format` to target formats.
var pixelFormatNames = map[string]PixelFormat{
	"R8G8B8A8_UNORM":           FormatRGBA8Unorm,
	"R8G8B8A8_SRGB":            FormatRGBA8UnormSRGB,
	"R16G16B16A16_SFLOAT":      FormatRGBA16Float,
	"R32G32B32A32_SFLOAT":      FormatRGBA32Float,
	"A2B10G10R10_UNORM_PACK32": FormatRGB10A2Unorm,
}

// ParsePixelFormat parses a Vulkan-style format name as used by `#pragma format`.
//
// Parameters:
//   - s: the format name, e.g. "R16G16B16A16_SFLOAT"
//
// Returns:
//   - PixelFormat: the parsed format
//   - error: an error if the format is not supported by any backend
func ParsePixelFormat(s string) (PixelFormat, error) {
	f, ok := pixelFormatNames[strings.ToUpper(strings.TrimSpace(s))]
	if !ok {
		return FormatRGBA8Unorm, fmt.Errorf("unsupported pixel format %q", s)
	}
	return f, nil
}

func (f PixelFormat) String() string {
	for name, v := range pixelFormatNames {
		if v == f {
			return name
		}
	}
	return fmt.Sprintf("PixelFormat(%d)", int(f))
}

// TextureStagingData holds RGBA pixel data for a texture pending GPU upload (input frames and lookup textures).
type TextureStagingData struct {
	// Pixels is the RGBA pixel data, 4 bytes per pixel, rows top to bottom.
	Pixels []byte
	// Width is the width of the texture in pixels.
	Width uint32
	// Height is the height of the texture in pixels.
	Height uint32
}

// SamplerStagingData holds the configuration for a sampler binding pending GPU creation.
// The zero value is a nearest, clamp-to-edge sampler without mipmaps.
type SamplerStagingData struct {
	// Linear selects bilinear filtering instead of nearest.
	Linear bool
	// Wrap is the addressing mode applied to both axes.
	Wrap WrapMode
	// Mipmap enables trilinear/nearest mip selection; the sampled texture must have mip levels.
	Mipmap bool
}

// Size is a width/height pair in pixels.
type Size struct {
	Width  int
	Height int
}

// Vec4 returns the size in the (w, h, 1/w, 1/h) layout used by every *Size shader uniform.
//
// Returns:
//   - [4]float32: the size vector, with zero reciprocals for an empty size
func (s Size) Vec4() [4]float32 {
	v := [4]float32{float32(s.Width), float32(s.Height), 0, 0}
	if s.Width > 0 {
		v[2] = 1 / float32(s.Width)
	}
	if s.Height > 0 {
		v[3] = 1 / float32(s.Height)
	}
	return v
}

// Empty reports whether either dimension is zero or negative.
func (s Size) Empty() bool {
	return s.Width <= 0 || s.Height <= 0
}

// MipLevels returns the length of a full mip chain for the size, down to 1×1.
func (s Size) MipLevels() int {
	n := 1
	for w, h := s.Width, s.Height; w > 1 || h > 1; n++ {
		w, h = w/2, h/2
	}
	return n
}
