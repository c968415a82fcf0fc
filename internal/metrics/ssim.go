package metrics

import (
	"fmt"
	"image"
	"math"

	"gonum.org/v1/gonum/stat"
)

var (
	ssimC1 = math.Pow(0.01*maxPixelValue, 2)
	ssimC2 = math.Pow(0.03*maxPixelValue, 2)
)

// SSIM tiles the frame with non-overlapping window x window squares from the
// top-left, ignoring any remainder strip, and averages the per-window SSIM of
// the luma channel.
func SSIM(gt, cand *image.NRGBA, window int) (float64, error) {
	if err := sameSize(gt, cand); err != nil {
		return 0, err
	}
	if window <= 0 {
		return 0, fmt.Errorf("invalid SSIM window size %d", window)
	}
	width, height := gt.Rect.Dx(), gt.Rect.Dy()
	if width < window || height < window {
		return 0, fmt.Errorf("raster %dx%d smaller than SSIM window %d: %w", width, height, window, ErrUnavailable)
	}

	lumaA := make([]float64, window*window)
	lumaB := make([]float64, window*window)
	var total float64
	var windows int
	for y := 0; y+window <= height; y += window {
		for x := 0; x+window <= width; x += window {
			windowLuma(gt, x, y, window, lumaA)
			windowLuma(cand, x, y, window, lumaB)
			total += windowSSIM(lumaA, lumaB)
			windows++
		}
	}
	return total / float64(windows), nil
}

func windowLuma(img *image.NRGBA, x0, y0, window int, out []float64) {
	k := 0
	for y := y0; y < y0+window; y++ {
		i := img.PixOffset(x0, y)
		for x := 0; x < window; x++ {
			out[k] = 0.299*float64(img.Pix[i]) + 0.587*float64(img.Pix[i+1]) + 0.114*float64(img.Pix[i+2])
			i += 4
			k++
		}
	}
}

func windowSSIM(a, b []float64) float64 {
	muA, varA := stat.PopMeanVariance(a, nil)
	muB, varB := stat.PopMeanVariance(b, nil)
	varA, varB = math.Max(0, varA), math.Max(0, varB)

	num := (2*muA*muB + ssimC1) * (2*math.Sqrt(varA)*math.Sqrt(varB) + ssimC2)
	den := (muA*muA + muB*muB + ssimC1) * (varA + varB + ssimC2)
	return num / den
}
