package zoom

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/colornames"
	"golang.org/x/image/draw"
)

// Style is the resolved appearance of the zoom overlay on one pane.
type Style struct {
	Color     color.NRGBA
	Thickness int
	Alpha     float64
}

var dashPattern = []int{5, 3}

// ParseColor accepts #rgb, #rrggbb, bare hex and SVG colour names.
func ParseColor(s string) (color.NRGBA, error) {
	s = strings.TrimSpace(s)
	hex := s
	if !strings.HasPrefix(hex, "#") {
		hex = "#" + hex
	}
	if c, err := colorful.Hex(hex); err == nil {
		r, g, b := c.RGB255()
		return color.NRGBA{r, g, b, 255}, nil
	}
	if c, ok := colornames.Map[strings.ToLower(s)]; ok {
		return color.NRGBA{c.R, c.G, c.B, 255}, nil
	}
	return color.NRGBA{}, fmt.Errorf("unsupported colour %q", s)
}

// StyleFor resolves the overlay style for a pane whose label background is
// labelColor. Unparseable colours fall back to white.
func (s *State) StyleFor(labelColor string) Style {
	name := s.Color
	if name == "" || name == "label" {
		name = labelColor
	}
	c, err := ParseColor(name)
	if err != nil {
		c = color.NRGBA{255, 255, 255, 255}
	}
	return Style{Color: c, Thickness: max(1, s.Thickness), Alpha: s.DrawAlpha()}
}

// Draw overlays the zoom interface on pane, which shows src scaled to the
// pane size: a dashed box around the zoom area and the magnified area
// inside a solid box. The shared params are rescaled to this pane's own
// render and natural sizes.
func Draw(pane *image.NRGBA, src image.Image, params DrawParams, style Style) {
	fx := float64(pane.Rect.Dx()) / float64(max(1, params.RenderW))
	fy := float64(pane.Rect.Dy()) / float64(max(1, params.RenderH))
	sb := src.Bounds()
	nx := float64(sb.Dx()) / float64(max(1, params.NaturalW))
	ny := float64(sb.Dy()) / float64(max(1, params.NaturalH))

	area := params.Area.Scale(fx, fy).Image().Add(pane.Rect.Min)
	target := params.Target.Scale(fx, fy).Image().Add(pane.Rect.Min)
	source := params.Source.Scale(nx, ny).Image().Add(sb.Min).Intersect(sb)

	strokeRect(pane, area, style.Thickness, style.Color, dashPattern)

	if !target.Empty() && !source.Empty() {
		magnified := image.NewNRGBA(image.Rect(0, 0, target.Dx(), target.Dy()))
		draw.NearestNeighbor.Scale(magnified, magnified.Rect, src, source, draw.Src, nil)
		mask := image.NewUniform(color.Alpha{A: alphaByte(style.Alpha)})
		draw.DrawMask(pane, target, magnified, image.Point{}, mask, image.Point{}, draw.Over)
	}

	solid := style.Color
	solid.A = alphaByte(style.Alpha)
	strokeRect(pane, target, style.Thickness, solid, nil)
}

func alphaByte(a float64) uint8 {
	return uint8(math.Round(math.Max(0, math.Min(1, a)) * 255))
}

// strokeRect draws a border of the given thickness centred on the edges of
// r. A non-nil dash alternates drawn and skipped runs along each edge.
func strokeRect(dst *image.NRGBA, r image.Rectangle, thickness int, c color.NRGBA, dash []int) {
	if r.Empty() {
		return
	}
	half := thickness / 2
	outer := image.Rect(r.Min.X-half, r.Min.Y-half, r.Max.X-half+thickness, r.Max.Y-half+thickness)
	fill := image.NewUniform(c)

	edges := []struct {
		band       image.Rectangle
		horizontal bool
	}{
		{image.Rect(outer.Min.X, outer.Min.Y, outer.Max.X, outer.Min.Y+thickness), true},
		{image.Rect(outer.Min.X, outer.Max.Y-thickness, outer.Max.X, outer.Max.Y), true},
		{image.Rect(outer.Min.X, outer.Min.Y, outer.Min.X+thickness, outer.Max.Y), false},
		{image.Rect(outer.Max.X-thickness, outer.Min.Y, outer.Max.X, outer.Max.Y), false},
	}
	for _, e := range edges {
		for _, seg := range dashes(e.band, e.horizontal, dash) {
			draw.Draw(dst, seg.Intersect(dst.Rect), fill, image.Point{}, draw.Over)
		}
	}
}

func dashes(band image.Rectangle, horizontal bool, dash []int) []image.Rectangle {
	if len(dash) == 0 {
		return []image.Rectangle{band}
	}
	var segs []image.Rectangle
	start, end := band.Min.Y, band.Max.Y
	if horizontal {
		start, end = band.Min.X, band.Max.X
	}
	on := true
	for pos, i := start, 0; pos < end; i++ {
		n := max(1, dash[i%len(dash)])
		stop := min(end, pos+n)
		if on {
			if horizontal {
				segs = append(segs, image.Rect(pos, band.Min.Y, stop, band.Max.Y))
			} else {
				segs = append(segs, image.Rect(band.Min.X, pos, band.Max.X, stop))
			}
		}
		on = !on
		pos = stop
	}
	return segs
}
