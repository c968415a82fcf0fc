package zoom

import (
	"image"
	"math"
)

// Rect is a floating point rectangle.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Scale multiplies every coordinate by sx horizontally and sy vertically.
func (r Rect) Scale(sx, sy float64) Rect {
	return Rect{X: r.X * sx, Y: r.Y * sy, W: r.W * sx, H: r.H * sy}
}

// Image rounds the rectangle to integer pixel bounds.
func (r Rect) Image() image.Rectangle {
	return image.Rect(
		int(math.Round(r.X)), int(math.Round(r.Y)),
		int(math.Round(r.X+r.W)), int(math.Round(r.Y+r.H)),
	)
}

// Pointer is one pointer event on a pane. X and Y are in pane pixels before
// page zoom correction; the pane shows an image of NaturalW x NaturalH
// rendered at RenderW x RenderH.
type Pointer struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	PageZoom float64 `json:"pageZoom,omitempty"`
	NaturalW int     `json:"naturalWidth"`
	NaturalH int     `json:"naturalHeight"`
	RenderW  int     `json:"renderWidth"`
	RenderH  int     `json:"renderHeight"`
}

// DrawParams is the geometry computed from one pointer event. Area and
// Target are in render pixels of the pane the event came from; Source is in
// natural pixels.
type DrawParams struct {
	Area     Rect       `json:"area"`
	Source   Rect       `json:"source"`
	Target   Rect       `json:"target"`
	Crop     CropRegion `json:"crop"`
	ZoomRate float64    `json:"zoomRate"`
	RenderW  int        `json:"renderWidth"`
	RenderH  int        `json:"renderHeight"`
	NaturalW int        `json:"naturalWidth"`
	NaturalH int        `json:"naturalHeight"`
}

// Update computes the geometry for p, stores it in s.Params and returns it.
// The zoom area centre is clamped so the area stays inside the frame; an
// area larger than the frame is clipped to it.
func (s *State) Update(p Pointer) DrawParams {
	pageZoom := p.PageZoom
	if pageZoom <= 0 {
		pageZoom = 1
	}
	renderW, renderH := float64(max(1, p.RenderW)), float64(max(1, p.RenderH))
	naturalW, naturalH := float64(max(1, p.NaturalW)), float64(max(1, p.NaturalH))

	mouseX := p.X / pageZoom
	mouseY := p.Y / pageZoom

	areaW := float64(s.AreaWidth) / naturalW * renderW
	areaH := float64(s.AreaHeight) / naturalH * renderH

	mouseX = math.Max(areaW/2, math.Min(renderW-areaW/2, mouseX))
	mouseY = math.Max(areaH/2, math.Min(renderH-areaH/2, mouseY))

	sx := math.Max(0, mouseX-areaW/2)
	sy := math.Max(0, mouseY-areaH/2)
	ex := math.Min(renderW, mouseX+areaW/2)
	ey := math.Min(renderH, mouseY+areaH/2)

	displayW := renderW * s.WidthRatio
	displayH := renderH * s.HeightRatio
	dx := renderW * (1 - s.WidthRatio) / 2
	dy := renderH * (1 - s.HeightRatio) / 2

	var targetW, targetH float64
	aspect := areaW / areaH
	if aspect > displayW/displayH {
		targetW = displayW
		targetH = displayW / aspect
	} else {
		targetH = displayH
		targetW = displayH * aspect
	}
	targetX := dx + (displayW-targetW)/2
	targetY := dy + (displayH-targetH)/2

	ratioW := naturalW / renderW
	ratioH := naturalH / renderH

	area := Rect{X: sx, Y: sy, W: ex - sx, H: ey - sy}
	params := DrawParams{
		Area:   area,
		Source: area.Scale(ratioW, ratioH),
		Target: Rect{X: targetX, Y: targetY, W: targetW, H: targetH},
		Crop: CropRegion{
			X:         int(sx * ratioW),
			Y:         int(sy * ratioH),
			W:         int(math.Round(area.W * ratioW)),
			H:         int(math.Round(area.H * ratioH)),
			DiffIndex: -1,
		},
		ZoomRate: zoomRate(targetW, area.W),
		RenderW:  p.RenderW,
		RenderH:  p.RenderH,
		NaturalW: p.NaturalW,
		NaturalH: p.NaturalH,
	}
	s.Params = &params
	return params
}

func zoomRate(target, area float64) float64 {
	if area <= 0 {
		return 0
	}
	return target / area
}
