package common

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"

	"cogentcore.org/core/base/iox/imagex"
)

// DecodeTexture decodes an encoded image (png, jpeg, gif, tiff, bmp or webp) into RGBA staging data.
// Lookup textures referenced by presets go through here before upload.
//
// Parameters:
//   - data: the encoded image bytes
//
// Returns:
//   - TextureStagingData: the decoded pixels, rows top to bottom
//   - error: an error if the data is not a decodable image
func DecodeTexture(data []byte) (TextureStagingData, error) {
	if len(data) == 0 {
		return TextureStagingData{}, fmt.Errorf("texture data is empty")
	}
	img, _, err := imagex.Read(bytes.NewReader(data))
	if err != nil {
		return TextureStagingData{}, fmt.Errorf("failed to decode texture: %w", err)
	}
	return StageImage(img), nil
}

// StageImage converts any image into tightly packed RGBA staging data.
// An *image.RGBA whose stride already matches its width is used without copying.
//
// Parameters:
//   - img: the image to stage
//
// Returns:
//   - TextureStagingData: the staged pixels
func StageImage(img image.Image) TextureStagingData {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != width*4 || rgba.Rect.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, width, height))
		draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	}

	return TextureStagingData{
		Pixels: rgba.Pix,
		Width:  uint32(width),
		Height: uint32(height),
	}
}
