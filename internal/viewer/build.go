package viewer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cwbudde/srviewer/internal/config"
	"github.com/cwbudde/srviewer/internal/metrics"
	"github.com/cwbudde/srviewer/internal/raster"
	"github.com/cwbudde/srviewer/internal/source"
	"github.com/cwbudde/srviewer/internal/target"
	"github.com/cwbudde/srviewer/internal/zoom"
)

// FromConfig wires a session from a validated configuration: it normalizes
// the targets through src, then builds the raster cache and the metric
// registry. memo may be nil. Background loads run until ctx is done.
func FromConfig(ctx context.Context, cfg *config.Config, src source.Source, memo metrics.Memo, log *slog.Logger) (*Session, error) {
	if log == nil {
		log = slog.Default()
	}
	mapper, err := target.LookupMapper(cfg.Type)
	if err != nil {
		return nil, err
	}
	reg, err := target.NewRegistry(ctx, cfg.Targets, target.Options{
		Params: cfg.Params,
		Hides:  cfg.Hides,
		Mapper: mapper,
	}, src)
	if err != nil {
		return nil, fmt.Errorf("failed to load targets: %w", err)
	}

	policy, err := raster.NewPolicy(cfg.CachePolicy, cfg.CacheCapacity)
	if err != nil {
		return nil, err
	}
	cache := raster.NewCache(ctx, src, reg, raster.WithPolicy(policy), raster.WithLogger(log))

	var crop *zoom.CropRegion
	if cfg.Crop != "" {
		r, err := zoom.ParseCropToken(cfg.Crop)
		if err != nil {
			return nil, fmt.Errorf("failed to parse crop: %w", err)
		}
		crop = &r
	}

	return NewSession(Options{
		Registry:          reg,
		Cache:             cache,
		Metrics:           metrics.NewRegistry(ctx, memo),
		Title:             cfg.Title,
		Indexes:           cfg.Indexes,
		Index:             cfg.Index,
		PreloadRadius:     cfg.PreloadSize,
		SSIMWindow:        cfg.SSIMWindowSize,
		GridWidth:         cfg.PSNRGridWidth,
		GridHeight:        cfg.PSNRGridHeight,
		Zoom:              cfg.ZoomState(),
		ZoomMode:          cfg.ZoomMode,
		DiffIndex:         cfg.DiffIndex,
		ShowMetricOverlay: cfg.ShowingPSNRVisualizer,
		Crop:              crop,
		UpdateDelay:       cfg.UpdateDelay(),
		Logger:            log,
	})
}
