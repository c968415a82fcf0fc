// Package composite builds the render-only rasters shown over a pane: the
// absolute difference against a baseline pane and the PSNR heat map.
package composite

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"

	"github.com/cwbudde/srviewer/internal/metrics"
)

// Diff returns |base - cand| per RGB channel with alpha fixed at 255. The
// result has the dimensions of base; candidate pixels outside its own bounds
// count as zero.
func Diff(base, cand *image.NRGBA) *image.NRGBA {
	w, h := base.Rect.Dx(), base.Rect.Dy()
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	cw, ch := cand.Rect.Dx(), cand.Rect.Dy()

	for y := 0; y < h; y++ {
		ib := base.PixOffset(base.Rect.Min.X, base.Rect.Min.Y+y)
		iout := out.PixOffset(0, y)
		for x := 0; x < w; x++ {
			var cr, cg, cb uint8
			if x < cw && y < ch {
				ic := cand.PixOffset(cand.Rect.Min.X+x, cand.Rect.Min.Y+y)
				cr, cg, cb = cand.Pix[ic], cand.Pix[ic+1], cand.Pix[ic+2]
			}
			out.Pix[iout+0] = absDiff(base.Pix[ib+0], cr)
			out.Pix[iout+1] = absDiff(base.Pix[ib+1], cg)
			out.Pix[iout+2] = absDiff(base.Pix[ib+2], cb)
			out.Pix[iout+3] = 255
			ib += 4
			iout += 4
		}
	}
	return out
}

func absDiff(a, b uint8) uint8 {
	if a > b {
		return a - b
	}
	return b - a
}

var (
	exactColor  = color.NRGBA{0, 0, 255, 255}
	betterColor = color.NRGBA{0, 255, 0, 0}
	worseColor  = color.NRGBA{255, 0, 0, 0}
)

// Heatmap paints one rectangle per grid patch over a copy of src. Exact
// patches are opaque blue. Patches above the frame PSNR total are green and
// patches below are red, with alpha scaled by the distance to total relative
// to grid.RealMax and grid.Min. Patches equal to total are left untouched.
func Heatmap(src *image.NRGBA, grid *metrics.Grid, total float64) *image.NRGBA {
	out := image.NewNRGBA(image.Rect(0, 0, src.Rect.Dx(), src.Rect.Dy()))
	draw.Draw(out, out.Rect, src, src.Rect.Min, draw.Src)

	realMax, minPSNR := float64(grid.RealMax), float64(grid.Min)
	for row := 0; row < grid.Rows; row++ {
		for col := 0; col < grid.Cols; col++ {
			p := float64(grid.At(row, col))
			var fill color.NRGBA
			switch {
			case math.IsInf(p, 1):
				fill = exactColor
			case p > total:
				fill = betterColor
				fill.A = alpha(p-total, realMax-total)
			case p < total:
				fill = worseColor
				fill.A = alpha(total-p, total-minPSNR)
			default:
				continue
			}
			r := image.Rect(col*grid.PatchW, row*grid.PatchH, (col+1)*grid.PatchW, (row+1)*grid.PatchH)
			draw.Draw(out, r.Intersect(out.Rect), image.NewUniform(fill), image.Point{}, draw.Over)
		}
	}
	return out
}

// alpha maps num/den in [0, 1] to a byte. A zero or undefined ratio gives a
// fully opaque fill, matching the largest possible deviation.
func alpha(num, den float64) uint8 {
	if den <= 0 || math.IsInf(den, 0) || math.IsNaN(den) {
		return 255
	}
	a := math.Max(0, math.Min(1, num/den))
	return uint8(math.Round(a * 255))
}
