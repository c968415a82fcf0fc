package viewer

import (
	"context"
	"fmt"
	"image"

	"github.com/cwbudde/srviewer/internal/composite"
	"github.com/cwbudde/srviewer/internal/metrics"
	"github.com/cwbudde/srviewer/internal/raster"
)

var (
	diffImage    = composite.Diff
	heatmapImage = composite.Heatmap
)

// metricTasks are the three tasks registered per candidate.
type metricTasks struct {
	psnr, ssim, grid *metrics.Task
}

func (s *Session) metricKey(gt, cand *raster.Handle, kind metrics.Kind) metrics.Key {
	key := metrics.Key{GroundTruth: gt.Path(), Candidate: cand.Path(), Kind: kind}
	switch kind {
	case metrics.KindSSIM:
		key.Params = fmt.Sprintf("w=%d", s.ssimWindow)
	case metrics.KindPSNRGrid:
		key.Params = fmt.Sprintf("%dx%d", s.gridW, s.gridH)
	}
	return key
}

// ensureMetrics registers the metric tasks for a candidate. Each task waits
// for both rasters; the registry runs it at most once.
func (s *Session) ensureMetrics(gt, cand *raster.Handle) metricTasks {
	pair := func(ctx context.Context) (*image.NRGBA, *image.NRGBA, error) {
		a, err := gt.Wait(ctx)
		if err != nil {
			return nil, nil, err
		}
		b, err := cand.Wait(ctx)
		if err != nil {
			return nil, nil, err
		}
		return a, b, nil
	}
	gridW, gridH, window := s.gridW, s.gridH, s.ssimWindow

	return metricTasks{
		psnr: s.metrics.Ensure(s.metricKey(gt, cand, metrics.KindPSNR), func(ctx context.Context) (metrics.Result, error) {
			a, b, err := pair(ctx)
			if err != nil {
				return metrics.Result{}, err
			}
			v, err := metrics.PSNR(a, b)
			return metrics.Result{Value: metrics.Value(v)}, err
		}),
		ssim: s.metrics.Ensure(s.metricKey(gt, cand, metrics.KindSSIM), func(ctx context.Context) (metrics.Result, error) {
			a, b, err := pair(ctx)
			if err != nil {
				return metrics.Result{}, err
			}
			v, err := metrics.SSIM(a, b, window)
			return metrics.Result{Value: metrics.Value(v)}, err
		}),
		grid: s.metrics.Ensure(s.metricKey(gt, cand, metrics.KindPSNRGrid), func(ctx context.Context) (metrics.Result, error) {
			a, b, err := pair(ctx)
			if err != nil {
				return metrics.Result{}, err
			}
			g, err := metrics.PSNRGrid(a, b, gridW, gridH)
			if err != nil {
				return metrics.Result{}, err
			}
			return metrics.Result{Value: g.Min, Grid: g}, nil
		}),
	}
}

// overlayInputs waits for the global PSNR and the PSNR grid of cand.
func (s *Session) overlayInputs(ctx context.Context, gt, cand *raster.Handle) (float64, *metrics.Grid, error) {
	tasks := s.ensureMetrics(gt, cand)
	total, err := tasks.psnr.Wait(ctx)
	if err != nil {
		return 0, nil, err
	}
	grid, err := tasks.grid.Wait(ctx)
	if err != nil {
		return 0, nil, err
	}
	return float64(total.Value), grid.Grid, nil
}

// PaneMetrics are the finished metrics of one pane. Nil fields are not
// available (no ground truth, still computing, or failed).
type PaneMetrics struct {
	Pane        int            `json:"pane"`
	Label       string         `json:"label"`
	Path        string         `json:"path"`
	GroundTruth bool           `json:"groundTruth,omitempty"`
	PSNR        *metrics.Value `json:"psnr,omitempty"`
	SSIM        *metrics.Value `json:"ssim,omitempty"`
	Grid        *metrics.Grid  `json:"grid,omitempty"`
}

// Metrics waits for every candidate metric of the sample at pos and returns
// one entry per visible pane. It populates the cache as needed.
func (s *Session) Metrics(ctx context.Context, pos int) ([]PaneMetrics, error) {
	if !s.registry.HasGroundTruth() {
		return nil, metrics.ErrUnavailable
	}
	file := s.fileAt(s.safeIndex(pos))
	handles := s.generate(file)
	gt := handles[s.registry.Base()]

	var out []PaneMetrics
	for i, t := range s.registry.Visible() {
		h := handles[t]
		pm := PaneMetrics{Pane: i, Label: t.Label, Path: h.Path(), GroundTruth: t == s.registry.Base()}
		if !pm.GroundTruth {
			tasks := s.ensureMetrics(gt, h)
			for _, task := range []*metrics.Task{tasks.psnr, tasks.ssim, tasks.grid} {
				if _, err := task.Wait(ctx); err != nil && ctx.Err() != nil {
					return nil, ctx.Err()
				}
			}
			pm.PSNR = finishedValue(tasks.psnr)
			pm.SSIM = finishedValue(tasks.ssim)
			if r, ok := tasks.grid.Result(); ok {
				pm.Grid = r.Grid
			}
		}
		out = append(out, pm)
	}
	return out, nil
}

// currentMetrics returns the finished PSNR and SSIM of cand without
// blocking or starting work.
func (s *Session) currentMetrics(gt, cand *raster.Handle) (psnr, ssim *metrics.Value) {
	if t, ok := s.metrics.Lookup(s.metricKey(gt, cand, metrics.KindPSNR)); ok {
		psnr = finishedValue(t)
	}
	if t, ok := s.metrics.Lookup(s.metricKey(gt, cand, metrics.KindSSIM)); ok {
		ssim = finishedValue(t)
	}
	return psnr, ssim
}

func finishedValue(t *metrics.Task) *metrics.Value {
	r, ok := t.Result()
	if !ok {
		return nil
	}
	v := r.Value
	return &v
}
