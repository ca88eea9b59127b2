package engine

import (
	"image"
	"image/color"
)

// InputSource produces the input frame for each rendered frame. The returned image only has to stay
// valid until the next call.
type InputSource func(deltaTime float32) *image.RGBA

// testPatternBars are the colors of the test pattern's vertical bars, left to right.
var testPatternBars = []color.RGBA{
	{255, 255, 255, 255},
	{255, 255, 0, 255},
	{0, 255, 255, 255},
	{0, 255, 0, 255},
	{255, 0, 255, 255},
	{255, 0, 0, 255},
	{0, 0, 255, 255},
	{0, 0, 0, 255},
}

// TestPattern returns a source of color bars with a gray scanline that rolls down the frame at
// rowsPerSecond. It is the input used when the host supplies none.
//
// Parameters:
//   - width: the frame width in pixels
//   - height: the frame height in pixels
//   - rowsPerSecond: how fast the scanline moves
//
// Returns:
//   - InputSource: the source; it reuses one image for every frame
func TestPattern(width, height int, rowsPerSecond float32) InputSource {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	var elapsed float32
	return func(deltaTime float32) *image.RGBA {
		elapsed += deltaTime
		band := int(elapsed*rowsPerSecond) % height
		for y := 0; y < height; y++ {
			row := img.Pix[y*img.Stride : y*img.Stride+width*4]
			for x := 0; x < width; x++ {
				c := testPatternBars[x*len(testPatternBars)/width]
				if y == band {
					c = color.RGBA{128, 128, 128, 255}
				}
				row[x*4], row[x*4+1], row[x*4+2], row[x*4+3] = c.R, c.G, c.B, c.A
			}
		}
		return img
	}
}
