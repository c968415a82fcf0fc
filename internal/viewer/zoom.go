package viewer

import (
	"context"
	"fmt"
	"image"

	"github.com/nfnt/resize"

	"github.com/cwbudde/srviewer/internal/raster"
	"github.com/cwbudde/srviewer/internal/zoom"
)

// naturalSize returns the size of the raster pane n displays, zero while it
// is still loading.
func (s *Session) naturalSize(n int) (int, int) {
	img := s.panes[n].displayed()
	if img == nil {
		return 0, 0
	}
	return img.Rect.Dx(), img.Rect.Dy()
}

// Pointer feeds a pointer event on pane n into the shared zoom geometry.
// Zero natural sizes are filled from the pane raster.
func (s *Session) Pointer(n int, p zoom.Pointer) (zoom.DrawParams, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n < 0 || n >= len(s.panes) {
		return zoom.DrawParams{}, ErrPaneOutOfRange
	}
	if p.NaturalW == 0 || p.NaturalH == 0 {
		p.NaturalW, p.NaturalH = s.naturalSize(n)
	}
	if p.RenderW == 0 || p.RenderH == 0 {
		p.RenderW, p.RenderH = p.NaturalW, p.NaturalH
	}
	s.lastPointer = &pointerState{input: p, pane: n}
	return s.zoom.Update(p), nil
}

// SetMouseDown records whether the pointer is pressed, which raises the
// overlay to full opacity.
func (s *Session) SetMouseDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zoom.MouseDown = down
}

// Wheel resizes the zoom area from a wheel event on pane n, restricted to
// one axis by lock, and recomputes the geometry at the last pointer.
func (s *Session) Wheel(n int, deltaY float64, lock zoom.Lock) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n < 0 || n >= len(s.panes) {
		return ErrPaneOutOfRange
	}
	w, h := s.naturalSize(n)
	if s.lastPointer != nil && (w == 0 || h == 0) {
		w, h = s.lastPointer.input.NaturalW, s.lastPointer.input.NaturalH
	}
	s.zoom.SetLock(lock)
	s.zoom.Wheel(deltaY, w, h)
	if s.lastPointer != nil {
		s.zoom.Update(s.lastPointer.input)
	}
	return nil
}

// ZoomState returns a copy of the zoom state.
func (s *Session) ZoomState() zoom.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	z := s.zoom
	if z.Params != nil {
		p := *z.Params
		z.Params = &p
	}
	return z
}

// CropToken renders the current crop with the session's diff and overlay
// flags, as shared in URLs.
func (s *Session) CropToken() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.zoom.Params == nil {
		return "", ErrNoCrop
	}
	return s.withFlags(s.zoom.Params.Crop).Token(), nil
}

func (s *Session) withFlags(r zoom.CropRegion) zoom.CropRegion {
	r.DiffIndex = s.diffIndex
	r.ShowMetricOverlay = s.overlay
	return r
}

// PaneImage renders pane n at renderW x renderH (natural size when either
// is zero), including the zoom overlay in zoom mode. It waits for the raw
// raster if nothing has been displayed yet.
func (s *Session) PaneImage(ctx context.Context, n, renderW, renderH int) (*image.NRGBA, error) {
	s.mu.Lock()
	if n < 0 || n >= len(s.panes) {
		s.mu.Unlock()
		return nil, ErrPaneOutOfRange
	}
	p := s.panes[n]
	img := p.displayed()
	raw := p.raw
	var params *zoom.DrawParams
	var style zoom.Style
	if s.zoomMode && s.zoom.Params != nil {
		cp := *s.zoom.Params
		params = &cp
		style = s.zoom.StyleFor(p.target.LabelBackgroundColor)
	}
	s.mu.Unlock()

	if img == nil {
		if raw == nil {
			return nil, fmt.Errorf("pane %d has not been rendered", n)
		}
		var err error
		if img, err = raw.Wait(ctx); err != nil {
			return nil, err
		}
	}

	out := img
	if renderW > 0 && renderH > 0 && (renderW != img.Rect.Dx() || renderH != img.Rect.Dy()) {
		out = raster.ToNRGBA(resize.Resize(uint(renderW), uint(renderH), img, resize.Bilinear))
	} else if params != nil {
		out = image.NewNRGBA(img.Rect)
		copy(out.Pix, img.Pix)
	}
	if params != nil {
		zoom.Draw(out, img, *params, style)
	}
	return out, nil
}
