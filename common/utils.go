package common

import "math"

// Coalesce returns the first non-zero value from the provided values, or the zero value if all are zero.
//
// Parameters:
//   - values: a variadic list of values to check for non-zero status
//
// Returns:
//   - T: the first non-zero value from the input, or the zero value if all are zero
func Coalesce[T comparable](values ...T) T {
	var zero T
	for _, v := range values {
		if v != zero {
			return v
		}
	}
	return zero
}

// RoundScaled multiplies a pixel dimension by a scale factor and rounds to the nearest pixel,
// never returning less than one pixel.
//
// Parameters:
//   - base: the dimension being scaled, in pixels
//   - factor: the scale factor
//
// Returns:
//   - int: the scaled dimension, at least 1
func RoundScaled(base int, factor float32) int {
	v := int(math.Round(float64(base) * float64(factor)))
	if v < 1 {
		return 1
	}
	return v
}
