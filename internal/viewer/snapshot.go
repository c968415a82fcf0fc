package viewer

import (
	"fmt"
	"math"
	"strings"

	"github.com/cwbudde/srviewer/internal/metrics"
	"github.com/cwbudde/srviewer/internal/raster"
	"github.com/cwbudde/srviewer/internal/zoom"
)

// PaneInfo describes one visible pane.
type PaneInfo struct {
	Pane                 int            `json:"pane"`
	Label                string         `json:"label"`
	DisplayLabel         string         `json:"displayLabel"`
	LabelColor           string         `json:"labelColor"`
	LabelBackgroundColor string         `json:"labelBackgroundColor"`
	GroundTruth          bool           `json:"groundTruth"`
	Path                 string         `json:"path,omitempty"`
	Raster               string         `json:"raster"`
	Stage                Stage          `json:"stage"`
	Width                int            `json:"width,omitempty"`
	Height               int            `json:"height,omitempty"`
	PSNR                 *metrics.Value `json:"psnr,omitempty"`
	SSIM                 *metrics.Value `json:"ssim,omitempty"`
	Info                 string         `json:"info,omitempty"`
}

// Snapshot is a consistent view of the session for clients.
type Snapshot struct {
	Title             string     `json:"title"`
	Epoch             uint64     `json:"epoch"`
	Status            Status     `json:"status"`
	Position          int        `json:"position"`
	Count             int        `json:"count"`
	FileIndex         int        `json:"fileIndex"`
	File              string     `json:"file"`
	Header            string     `json:"header"`
	CacheLoaded       int        `json:"cacheLoaded"`
	CacheTotal        int        `json:"cacheTotal"`
	ZoomMode          bool       `json:"zoomMode"`
	Zoom              zoom.State `json:"zoom"`
	DiffIndex         int        `json:"diffIndex"`
	ShowMetricOverlay bool       `json:"showMetricOverlay"`
	CropToken         string     `json:"cropToken,omitempty"`
	Panes             []PaneInfo `json:"panes"`
}

// Snapshot captures the current session state.
func (s *Session) Snapshot() Snapshot {
	loaded, total := s.cache.Stats()

	s.mu.Lock()
	defer s.mu.Unlock()

	file := s.fileAt(s.pos)
	snap := Snapshot{
		Title:             s.title,
		Epoch:             s.epoch,
		Status:            s.status,
		Position:          s.pos,
		Count:             len(s.indexes),
		FileIndex:         s.indexes[s.pos],
		File:              file,
		CacheLoaded:       loaded,
		CacheTotal:        total,
		ZoomMode:          s.zoomMode,
		Zoom:              s.zoom,
		DiffIndex:         s.diffIndex,
		ShowMetricOverlay: s.overlay,
	}
	snap.Header = Header(file, s.maxFileLen, s.indexes[s.pos], len(s.registry.Base().Files), loaded, total)
	if s.zoom.Params != nil {
		p := *s.zoom.Params
		snap.Zoom.Params = &p
		snap.CropToken = s.withFlags(p.Crop).Token()
	}

	var gt *raster.Handle
	if s.registry.HasGroundTruth() {
		gt, _ = s.cache.Lookup(s.registry.Base(), file)
	}
	for i, p := range s.panes {
		info := PaneInfo{
			Pane:                 i,
			Label:                p.target.Label,
			DisplayLabel:         p.target.DisplayLabel,
			LabelColor:           p.target.LabelColor,
			LabelBackgroundColor: p.target.LabelBackgroundColor,
			GroundTruth:          p.target.GroundTruth,
			Stage:                p.stage,
			Raster:               raster.Pending.String(),
		}
		if p.raw != nil {
			info.Path = p.raw.Path()
			info.Raster = p.raw.State().String()
		}
		if img := p.displayed(); img != nil {
			info.Width, info.Height = img.Rect.Dx(), img.Rect.Dy()
		}
		if gt != nil && p.raw != nil && !p.target.GroundTruth {
			info.PSNR, info.SSIM = s.currentMetrics(gt, p.raw)
		}
		info.Info = infoLabel(s.zoomMode, s.zoom.Params, info)
		snap.Panes = append(snap.Panes, info)
	}
	return snap
}

// Header formats the status line: the file right-aligned to the longest
// file name, the underlying index and the cache fill.
func Header(file string, maxFileLen, fileIndex, fileCount, loaded, total int) string {
	indexDigits := digits(fileCount)
	cacheDigits := digits(total)
	return fmt.Sprintf("%*s (I:%-*d) / Caches: %-*d of %-*d",
		maxFileLen, file, indexDigits, fileIndex, cacheDigits, loaded, cacheDigits, total)
}

func digits(n int) int {
	if n <= 1 {
		return 0
	}
	return int(math.Ceil(math.Log10(float64(n))))
}

func infoLabel(zoomMode bool, params *zoom.DrawParams, p PaneInfo) string {
	if zoomMode {
		if params == nil {
			return ""
		}
		c := params.Crop
		return fmt.Sprintf("X: %d, Y: %d, S: %dx%d, I: %dx%d", c.X, c.Y, c.W, c.H, p.Width, p.Height)
	}
	var parts []string
	if p.PSNR != nil {
		parts = append(parts, "PSNR: "+p.PSNR.String())
	}
	if p.SSIM != nil {
		parts = append(parts, "SSIM: "+p.SSIM.String())
	}
	return strings.Join(parts, ", ")
}
