package composite

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/cwbudde/srviewer/internal/metrics"
)

func randomish(w, h int, seed int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	v := seed
	for i := range img.Pix {
		v = (v*1103515245 + 12345) & 0x7fffffff
		img.Pix[i] = uint8(v >> 16)
	}
	return img
}

func TestDiffSymmetric(t *testing.T) {
	a := randomish(9, 7, 1)
	b := randomish(9, 7, 2)

	ab := Diff(a, b)
	ba := Diff(b, a)

	for i := 0; i < len(ab.Pix); i += 4 {
		for c := 0; c < 3; c++ {
			if ab.Pix[i+c] != ba.Pix[i+c] {
				t.Fatalf("Expected symmetric channel %d at offset %d, got %d vs %d", c, i, ab.Pix[i+c], ba.Pix[i+c])
			}
		}
		if ab.Pix[i+3] != 255 || ba.Pix[i+3] != 255 {
			t.Fatalf("Expected opaque alpha at offset %d", i)
		}
	}
}

func TestDiffValues(t *testing.T) {
	a := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	b := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	a.SetNRGBA(0, 0, color.NRGBA{200, 10, 50, 0})
	b.SetNRGBA(0, 0, color.NRGBA{50, 30, 50, 128})

	got := Diff(a, b).NRGBAAt(0, 0)
	want := color.NRGBA{150, 20, 0, 255}
	if got != want {
		t.Errorf("Expected %v, got %v", want, got)
	}
	if a.NRGBAAt(0, 0) != (color.NRGBA{200, 10, 50, 0}) {
		t.Error("Expected Diff to leave its inputs untouched")
	}
}

func TestDiffSmallerCandidate(t *testing.T) {
	base := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	for i := range base.Pix {
		base.Pix[i] = 40
	}
	cand := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	for i := range cand.Pix {
		cand.Pix[i] = 40
	}

	out := Diff(base, cand)
	if out.Rect.Dx() != 3 || out.Rect.Dy() != 2 {
		t.Fatalf("Expected base dimensions, got %v", out.Rect)
	}
	if got := out.NRGBAAt(0, 0); got != (color.NRGBA{0, 0, 0, 255}) {
		t.Errorf("Expected zero diff inside candidate, got %v", got)
	}
	if got := out.NRGBAAt(2, 1); got != (color.NRGBA{40, 40, 40, 255}) {
		t.Errorf("Expected base value outside candidate, got %v", got)
	}
}

func TestHeatmapColors(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 8, 2))
	for i := 0; i < len(src.Pix); i += 4 {
		src.Pix[i+3] = 255
	}
	inf := metrics.Value(math.Inf(1))
	grid := &metrics.Grid{
		Rows: 1, Cols: 4, PatchW: 2, PatchH: 2,
		Values:  [][]metrics.Value{{inf, 40, 30, 20}},
		Max:     inf,
		RealMax: 40,
		Min:     20,
	}

	out := Heatmap(src, grid, 30)

	if got := out.NRGBAAt(0, 0); got != (color.NRGBA{0, 0, 255, 255}) {
		t.Errorf("Expected opaque blue for exact patch, got %v", got)
	}
	// Patch at realMax is fully green.
	if got := out.NRGBAAt(2, 1); got != (color.NRGBA{0, 255, 0, 255}) {
		t.Errorf("Expected opaque green for best patch, got %v", got)
	}
	// Patch equal to total is untouched.
	if got := out.NRGBAAt(4, 0); got != (color.NRGBA{0, 0, 0, 255}) {
		t.Errorf("Expected untouched patch, got %v", got)
	}
	// Patch at min is fully red.
	if got := out.NRGBAAt(7, 1); got != (color.NRGBA{255, 0, 0, 255}) {
		t.Errorf("Expected opaque red for worst patch, got %v", got)
	}
	if src.NRGBAAt(0, 0) != (color.NRGBA{0, 0, 0, 255}) {
		t.Error("Expected Heatmap to leave its source untouched")
	}
}

func TestHeatmapPartialAlpha(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	for i := 0; i < len(src.Pix); i += 4 {
		src.Pix[i+3] = 255
	}
	grid := &metrics.Grid{
		Rows: 1, Cols: 2, PatchW: 1, PatchH: 1,
		Values:  [][]metrics.Value{{35, 20}},
		Max:     40,
		RealMax: 40,
		Min:     20,
	}

	out := Heatmap(src, grid, 30)
	got := out.NRGBAAt(0, 0)
	// Half way from total to realMax: green at alpha 0.5 over black.
	if got.R != 0 || got.B != 0 || got.G < 126 || got.G > 129 {
		t.Errorf("Expected half green, got %v", got)
	}
}
