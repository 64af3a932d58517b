// Package diff compares a submitted raster against its reference.
package diff

import (
	"math"

	"github.com/starford/pixgrade/internal/raster"
)

// Epsilon scales the mean reference intensity added to the denominator of
// the relative difference map.
const Epsilon = 0.01

// Result is the comparison of one reference/submission pair.
type Result struct {
	// MaxAbsError is the largest absolute per-sample difference in raw
	// sample units. It drives scoring.
	MaxAbsError float64
	// Map is the normalized relative difference, laid out like the inputs.
	// Display only.
	Map []float32
	// Shape of Map as (height, width, channels).
	Shape raster.Shape
	// ShapeMismatch is set when the rasters differ in height, width, or
	// channel count. No other field is populated in that case.
	ShapeMismatch bool
}

// Compare computes the worst-sample absolute error and the relative
// difference map of sub against ref.
func Compare(ref, sub *raster.Raster) Result {
	if ref.Shape() != sub.Shape() {
		return Result{ShapeMismatch: true}
	}

	var maxErr int32
	for i, a := range ref.Pix {
		d := int32(a) - int32(sub.Pix[i])
		if d < 0 {
			d = -d
		}
		if d > maxErr {
			maxErr = d
		}
	}

	return Result{
		MaxAbsError: float64(maxErr),
		Map:         relativeMap(ref, sub),
		Shape:       ref.Shape(),
	}
}

// relativeMap computes |r - s| / (r + ε·mean(r)) on [0,1]-normalized samples.
// An all-black reference leaves a zero denominator; differing samples then
// saturate and equal samples stay zero.
func relativeMap(ref, sub *raster.Raster) []float32 {
	rmax, smax := ref.MaxValue(), sub.MaxValue()

	var sum float64
	for _, v := range ref.Pix {
		sum += float64(v) / rmax
	}
	mean := 0.0
	if len(ref.Pix) > 0 {
		mean = sum / float64(len(ref.Pix))
	}
	bias := Epsilon * mean

	out := make([]float32, len(ref.Pix))
	for i, v := range ref.Pix {
		r := float64(v) / rmax
		s := float64(sub.Pix[i]) / smax
		num := math.Abs(r - s)
		den := r + bias
		switch {
		case num == 0:
			out[i] = 0
		case den == 0:
			out[i] = math.MaxFloat32
		default:
			out[i] = float32(math.Min(num/den, math.MaxFloat32))
		}
	}
	return out
}

// ErrorImage renders the difference map as an 8-bit raster, scaling by 255
// and clamping to [0,255].
func ErrorImage(res Result) *raster.Raster {
	h, w, c := res.Shape[0], res.Shape[1], res.Shape[2]
	img := raster.New(w, h, c, 8)
	for i, v := range res.Map {
		img.Pix[i] = uint16(math.Max(0, math.Min(255, float64(v)*255)))
	}
	return img
}
