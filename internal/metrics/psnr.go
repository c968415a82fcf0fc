// Package metrics computes PSNR (global and per patch) and windowed SSIM
// between a ground-truth raster and a candidate raster.
package metrics

import (
	"errors"
	"fmt"
	"image"
	"math"
)

// ErrUnavailable means a metric cannot be computed for the given inputs:
// no ground truth, a candidate that never loaded, or mismatched dimensions.
var ErrUnavailable = errors.New("metric unavailable")

const maxPixelValue = 255.0

// Grid holds per-patch PSNR values. Max includes +Inf, RealMax excludes it.
type Grid struct {
	Rows    int       `json:"rows"`
	Cols    int       `json:"cols"`
	PatchW  int       `json:"patchWidth"`
	PatchH  int       `json:"patchHeight"`
	Values  [][]Value `json:"values"`
	Max     Value     `json:"max"`
	RealMax Value     `json:"realMax"`
	Min     Value     `json:"min"`
}

// At returns the PSNR of the patch at row, col.
func (g *Grid) At(row, col int) Value {
	return g.Values[row][col]
}

func sameSize(gt, cand *image.NRGBA) error {
	if gt == nil || cand == nil {
		return fmt.Errorf("missing raster: %w", ErrUnavailable)
	}
	if gt.Rect.Dx() != cand.Rect.Dx() || gt.Rect.Dy() != cand.Rect.Dy() {
		return fmt.Errorf("dimension mismatch %dx%d vs %dx%d: %w",
			gt.Rect.Dx(), gt.Rect.Dy(), cand.Rect.Dx(), cand.Rect.Dy(), ErrUnavailable)
	}
	return nil
}

// PSNRGrid partitions the frame into ceil(H/patchH) x ceil(W/patchW) patches
// and computes the PSNR of each. Border patches are clamped to the frame. A
// patch size of zero selects the full frame along that axis.
func PSNRGrid(gt, cand *image.NRGBA, patchW, patchH int) (*Grid, error) {
	if err := sameSize(gt, cand); err != nil {
		return nil, err
	}
	width, height := gt.Rect.Dx(), gt.Rect.Dy()
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("empty raster: %w", ErrUnavailable)
	}
	if patchW <= 0 {
		patchW = width
	}
	if patchH <= 0 {
		patchH = height
	}

	g := &Grid{
		Rows:    (height + patchH - 1) / patchH,
		Cols:    (width + patchW - 1) / patchW,
		PatchW:  patchW,
		PatchH:  patchH,
		Max:     Value(math.Inf(-1)),
		RealMax: Value(math.Inf(-1)),
		Min:     Value(math.Inf(1)),
	}
	g.Values = make([][]Value, g.Rows)
	for row := 0; row < g.Rows; row++ {
		g.Values[row] = make([]Value, g.Cols)
		for col := 0; col < g.Cols; col++ {
			rect := image.Rect(col*patchW, row*patchH, (col+1)*patchW, (row+1)*patchH).
				Intersect(image.Rect(0, 0, width, height))
			p := Value(psnrFromMSE(patchMSE(gt, cand, rect)))
			g.Values[row][col] = p
			g.Max = max(g.Max, p)
			if !p.IsInf() {
				g.RealMax = max(g.RealMax, p)
			}
			g.Min = min(g.Min, p)
		}
	}
	return g, nil
}

// PSNR is the single-patch grid over the whole frame.
func PSNR(gt, cand *image.NRGBA) (float64, error) {
	g, err := PSNRGrid(gt, cand, 0, 0)
	if err != nil {
		return 0, err
	}
	return float64(g.At(0, 0)), nil
}

// patchMSE is the mean squared error over the RGB channels inside rect.
// Alpha is ignored.
func patchMSE(a, b *image.NRGBA, rect image.Rectangle) float64 {
	var sum float64
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		ia := a.PixOffset(rect.Min.X, y)
		ib := b.PixOffset(rect.Min.X, y)
		for x := rect.Min.X; x < rect.Max.X; x++ {
			dr := float64(a.Pix[ia+0]) - float64(b.Pix[ib+0])
			dg := float64(a.Pix[ia+1]) - float64(b.Pix[ib+1])
			db := float64(a.Pix[ia+2]) - float64(b.Pix[ib+2])
			sum += dr*dr + dg*dg + db*db
			ia += 4
			ib += 4
		}
	}
	return sum / float64(rect.Dx()*rect.Dy()*3)
}

func psnrFromMSE(mse float64) float64 {
	if mse == 0 {
		return math.Inf(1)
	}
	return 10 * math.Log10(maxPixelValue*maxPixelValue/mse)
}
