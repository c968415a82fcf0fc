package viewer

import (
	"context"
	"fmt"

	"github.com/cwbudde/srviewer/internal/export"
	"github.com/cwbudde/srviewer/internal/zoom"
)

// ExportOptions tunes a crop export.
type ExportOptions struct {
	IncludeOriginal bool
	Scale           int
}

// ExportCrop waits for the latest update to finish and bundles region of
// every visible pane's displayed raster. A nil region uses the crop of the
// last pointer geometry.
func (s *Session) ExportCrop(ctx context.Context, region *zoom.CropRegion, opts ExportOptions) (*export.Bundle, error) {
	for {
		s.mu.Lock()
		epoch, done := s.epoch, s.done
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return nil, fmt.Errorf("failed to wait for update: %w", ctx.Err())
		}
		s.mu.Lock()
		if s.epoch == epoch {
			break
		}
		// A newer update started while waiting.
		s.mu.Unlock()
	}

	var r zoom.CropRegion
	switch {
	case region != nil:
		r = *region
	case s.zoom.Params != nil:
		r = s.zoom.Params.Crop
	default:
		s.mu.Unlock()
		return nil, ErrNoCrop
	}
	r = s.withFlags(r)
	req := export.Request{
		Title:           s.title,
		File:            s.fileAt(s.pos),
		Region:          r,
		IncludeOriginal: opts.IncludeOriginal,
		Scale:           opts.Scale,
	}
	for i, p := range s.panes {
		img := p.displayed()
		if img == nil {
			s.mu.Unlock()
			return nil, fmt.Errorf("pane %d (%s) has no image", i, p.target.Label)
		}
		e := export.Entry{Label: p.target.Label, Image: img}
		if p.stage == StageRaw && p.raw != nil {
			e.Original = p.raw.Bytes()
		}
		req.Entries = append(req.Entries, e)
	}
	s.mu.Unlock()

	bundle, err := export.Build(req)
	if err != nil {
		return nil, fmt.Errorf("failed to build crop bundle: %w", err)
	}
	s.log.Info("Crop exported", "name", bundle.Name, "entries", len(bundle.Files))
	return bundle, nil
}
