package zoom

import (
	"errors"
	"image"
	"image/color"
	"math"
	"testing"
)

func TestWheel(t *testing.T) {
	tests := []struct {
		name   string
		lock   Lock
		deltaY float64
		start  [2]int
		want   [2]int
	}{
		{"grow both", LockNone, -1, [2]int{100, 100}, [2]int{105, 105}},
		{"grow capped at smaller side", LockNone, -1, [2]int{118, 118}, [2]int{120, 120}},
		{"grow width only", LockWidth, -1, [2]int{198, 50}, [2]int{200, 50}},
		{"grow height only", LockHeight, -1, [2]int{50, 50}, [2]int{50, 55}},
		{"shrink both", LockNone, 1, [2]int{100, 60}, [2]int{95, 55}},
		{"shrink floor", LockNone, 1, [2]int{7, 5}, [2]int{5, 5}},
		{"shrink width only", LockWidth, 1, [2]int{100, 60}, [2]int{95, 60}},
		{"no delta", LockNone, 0, [2]int{100, 60}, [2]int{100, 60}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultState()
			s.SetLock(tt.lock)
			s.AreaWidth, s.AreaHeight = tt.start[0], tt.start[1]
			s.Wheel(tt.deltaY, 200, 120)
			if s.AreaWidth != tt.want[0] || s.AreaHeight != tt.want[1] {
				t.Errorf("Expected %dx%d, got %dx%d", tt.want[0], tt.want[1], s.AreaWidth, s.AreaHeight)
			}
		})
	}
}

func TestWheelUnknownSize(t *testing.T) {
	s := DefaultState()
	s.Wheel(-1, 0, 0)
	want := DefaultState().AreaWidth + s.Delta
	if s.AreaWidth != want || s.AreaHeight != want {
		t.Fatalf("Expected %dx%d, got %dx%d", want, want, s.AreaWidth, s.AreaHeight)
	}

	p := s.Update(Pointer{X: 50, Y: 50, NaturalW: 400, NaturalH: 400, RenderW: 200, RenderH: 200})
	if math.IsNaN(p.Target.W) || p.Target.W <= 0 {
		t.Errorf("Expected a positive target width, got %v", p.Target.W)
	}
	if p.Crop.W <= 0 || p.Crop.H <= 0 {
		t.Errorf("Expected a non-empty crop, got %+v", p.Crop)
	}
}

func rectNear(a, b Rect) bool {
	const eps = 1e-9
	return math.Abs(a.X-b.X) < eps && math.Abs(a.Y-b.Y) < eps &&
		math.Abs(a.W-b.W) < eps && math.Abs(a.H-b.H) < eps
}

func TestSetLockExclusive(t *testing.T) {
	s := DefaultState()
	s.SetLock(LockWidth)
	s.SetLock(LockHeight)
	if s.WidthOnly || !s.HeightOnly {
		t.Errorf("Expected only height lock, got width=%v height=%v", s.WidthOnly, s.HeightOnly)
	}
}

func TestUpdateCentre(t *testing.T) {
	s := DefaultState()
	s.AreaWidth, s.AreaHeight = 100, 100

	// 400x400 natural image rendered at 200x200.
	p := s.Update(Pointer{X: 100, Y: 100, NaturalW: 400, NaturalH: 400, RenderW: 200, RenderH: 200})

	if !rectNear(p.Area, Rect{X: 75, Y: 75, W: 50, H: 50}) {
		t.Errorf("Expected area 75,75 50x50, got %+v", p.Area)
	}
	if p.Crop.X != 150 || p.Crop.Y != 150 || p.Crop.W != 100 || p.Crop.H != 100 {
		t.Errorf("Expected crop 150,150 100x100, got %+v", p.Crop)
	}
	if !rectNear(p.Source, Rect{X: 150, Y: 150, W: 100, H: 100}) {
		t.Errorf("Expected source 150,150 100x100, got %+v", p.Source)
	}
	// Square area in an 80% square display: 160x160 centred.
	if !rectNear(p.Target, Rect{X: 20, Y: 20, W: 160, H: 160}) {
		t.Errorf("Expected target 20,20 160x160, got %+v", p.Target)
	}
	if math.Abs(p.ZoomRate-3.2) > 1e-9 {
		t.Errorf("Expected zoom rate 3.2, got %f", p.ZoomRate)
	}
	if s.Params == nil || *s.Params != p {
		t.Error("Expected Update to store the params")
	}
}

func TestUpdatePageZoom(t *testing.T) {
	s := DefaultState()
	p := s.Update(Pointer{X: 200, Y: 200, PageZoom: 2, NaturalW: 400, NaturalH: 400, RenderW: 400, RenderH: 400})
	if p.Crop.X != 50 || p.Crop.Y != 50 {
		t.Errorf("Expected pointer divided by page zoom, got crop %+v", p.Crop)
	}
}

func TestUpdateClampsToEdges(t *testing.T) {
	s := DefaultState()
	s.AreaWidth, s.AreaHeight = 100, 100

	p := s.Update(Pointer{X: -50, Y: 1000, NaturalW: 300, NaturalH: 200, RenderW: 300, RenderH: 200})
	if p.Crop.X != 0 {
		t.Errorf("Expected left clamp to 0, got %d", p.Crop.X)
	}
	if p.Crop.Y != 100 || p.Crop.Y+p.Crop.H != 200 {
		t.Errorf("Expected bottom clamp to 100..200, got %d..%d", p.Crop.Y, p.Crop.Y+p.Crop.H)
	}
}

func TestUpdateAreaWiderThanImage(t *testing.T) {
	s := DefaultState()
	s.AreaWidth, s.AreaHeight = 500, 50

	for _, x := range []float64{0, 37, 60, 1000} {
		p := s.Update(Pointer{X: x, Y: 30, NaturalW: 120, NaturalH: 80, RenderW: 60, RenderH: 40})
		if p.Crop.W > 120 {
			t.Errorf("x=%v: expected crop width at most 120, got %d", x, p.Crop.W)
		}
		if p.Crop.X < 0 || p.Crop.X+p.Crop.W > 120 {
			t.Errorf("x=%v: expected crop inside frame, got %d..%d", x, p.Crop.X, p.Crop.X+p.Crop.W)
		}
		if p.Area.X < 0 || p.Area.X+p.Area.W > 60 {
			t.Errorf("x=%v: expected area inside pane, got %+v", x, p.Area)
		}
	}
}

func TestCropTokenRoundTrip(t *testing.T) {
	regions := []CropRegion{
		{X: 10, Y: 20, W: 30, H: 40, DiffIndex: -1},
		{X: 0, Y: 0, W: 1, H: 1, DiffIndex: 2},
		{X: 5, Y: 6, W: 7, H: 8, DiffIndex: 0, ShowMetricOverlay: true},
		{X: 1, Y: 2, W: 3, H: 4, DiffIndex: -1, ShowMetricOverlay: true},
	}
	for _, r := range regions {
		got, err := ParseCropToken(r.Token())
		if err != nil {
			t.Fatalf("ParseCropToken(%q) failed: %v", r.Token(), err)
		}
		if got != r {
			t.Errorf("Expected %+v, got %+v (token %q)", r, got, r.Token())
		}
	}
}

func TestCropTokenFormat(t *testing.T) {
	r := CropRegion{X: 10, Y: 20, W: 30, H: 40, DiffIndex: 1, ShowMetricOverlay: true}
	if got := r.Token(); got != "x10y20w30h40d1p1" {
		t.Errorf("Expected x10y20w30h40d1p1, got %s", got)
	}
	r = CropRegion{X: 1, Y: 2, W: 3, H: 4, DiffIndex: -1}
	if got := r.Token(); got != "x1y2w3h4" {
		t.Errorf("Expected x1y2w3h4, got %s", got)
	}
}

func TestParseCropTokenDefaults(t *testing.T) {
	got, err := ParseCropToken("x3y4w5h6")
	if err != nil {
		t.Fatalf("ParseCropToken failed: %v", err)
	}
	if got.DiffIndex != -1 || got.ShowMetricOverlay {
		t.Errorf("Expected diffIndex -1 and no overlay, got %+v", got)
	}

	got, err = ParseCropToken("x3y4w5h6p0")
	if err != nil {
		t.Fatalf("ParseCropToken failed: %v", err)
	}
	if got.ShowMetricOverlay {
		t.Error("Expected p0 to leave the overlay off")
	}

	got, err = ParseCropToken("zzx3-y4_w5h6")
	if err != nil {
		t.Fatalf("ParseCropToken failed: %v", err)
	}
	if got.X != 3 || got.Y != 4 || got.W != 5 || got.H != 6 {
		t.Errorf("Expected unknown characters to be skipped, got %+v", got)
	}

	if _, err := ParseCropToken("hello"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected ErrInvalidToken, got %v", err)
	}
}

func TestParseColor(t *testing.T) {
	tests := map[string]color.NRGBA{
		"#ff0000": {255, 0, 0, 255},
		"0f0":     {0, 255, 0, 255},
		"blue":    {0, 0, 255, 255},
	}
	for in, want := range tests {
		got, err := ParseColor(in)
		if err != nil {
			t.Fatalf("ParseColor(%q) failed: %v", in, err)
		}
		if got != want {
			t.Errorf("ParseColor(%q): expected %v, got %v", in, want, got)
		}
	}
	if _, err := ParseColor("not-a-colour"); err == nil {
		t.Error("Expected error for unknown colour")
	}
}

func TestDraw(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 40, 40))
	for i := 0; i < len(src.Pix); i += 4 {
		src.Pix[i], src.Pix[i+3] = 200, 255
	}
	pane := image.NewNRGBA(image.Rect(0, 0, 40, 40))
	for i := 3; i < len(pane.Pix); i += 4 {
		pane.Pix[i] = 255
	}

	s := DefaultState()
	s.AreaWidth, s.AreaHeight, s.Thickness = 10, 10, 1
	s.MouseDown = true
	params := s.Update(Pointer{X: 20, Y: 20, NaturalW: 40, NaturalH: 40, RenderW: 40, RenderH: 40})

	Draw(pane, src, params, s.StyleFor("#00ff00"))

	// Inside the magnified box the source shows at full opacity.
	if got := pane.NRGBAAt(20, 20); got.R != 200 {
		t.Errorf("Expected magnified source at centre, got %v", got)
	}
	// The corner of the pane is outside every overlay element.
	if got := pane.NRGBAAt(0, 0); got != (color.NRGBA{0, 0, 0, 255}) {
		t.Errorf("Expected untouched corner, got %v", got)
	}
	// The solid border of the magnified box uses the label colour.
	tr := params.Target.Image()
	if got := pane.NRGBAAt(tr.Min.X, tr.Min.Y+tr.Dy()/2); got.G != 255 {
		t.Errorf("Expected green border, got %v", got)
	}
}
