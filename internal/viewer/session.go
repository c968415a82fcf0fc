// Package viewer is the navigation orchestrator. A Session owns the current
// sample index, zoom state and diff/overlay flags, and sequences cache
// population, the immediate raw pass and the debounced composited pass.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/cwbudde/srviewer/internal/metrics"
	"github.com/cwbudde/srviewer/internal/raster"
	"github.com/cwbudde/srviewer/internal/target"
	"github.com/cwbudde/srviewer/internal/zoom"
)

// Status is the phase of the latest update.
type Status string

const (
	StatusStart Status = "start"
	StatusImage Status = "image"
	StatusDone  Status = "done"
)

// Stage tells whether a pane shows the raw raster or a composited one.
type Stage string

const (
	StageRaw        Stage = "raw"
	StageComposited Stage = "composited"
)

var (
	// ErrPaneOutOfRange is returned for a pane number with no visible pane.
	ErrPaneOutOfRange = errors.New("pane out of range")
	// ErrNoCrop is returned when an export is requested before any pointer
	// geometry exists.
	ErrNoCrop = errors.New("no crop region")
)

// AfterFunc schedules f after d and returns a function that cancels it. f
// must run on another goroutine.
type AfterFunc func(d time.Duration, f func()) (stop func() bool)

func timeAfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// Options configures a Session.
type Options struct {
	Registry *target.Registry
	Cache    *raster.Cache
	Metrics  *metrics.Registry

	Title string
	// Indexes is the navigation order as offsets into the base file list.
	// Empty means every file in order.
	Indexes []int
	// Index is the initial underlying file offset.
	Index         int
	PreloadRadius int

	SSIMWindow int
	GridWidth  int
	GridHeight int

	Zoom              zoom.State
	ZoomMode          bool
	DiffIndex         int
	ShowMetricOverlay bool
	// Crop is the region requested at startup, if any.
	Crop *zoom.CropRegion

	UpdateDelay time.Duration
	AfterFunc   AfterFunc
	Logger      *slog.Logger
}

// pane is one visible target and what it currently shows.
type pane struct {
	target *target.Target
	raw    *raster.Handle
	// image is the composited raster for the current epoch, nil while raw.
	image    *image.NRGBA
	stage    Stage
	lastGood *image.NRGBA
}

// displayed returns the raster the pane shows right now, or nil.
func (p *pane) displayed() *image.NRGBA {
	if p.image != nil {
		return p.image
	}
	if p.raw != nil {
		if img := p.raw.Image(); img != nil {
			return img
		}
	}
	return p.lastGood
}

// Session is one viewer. All methods are safe for concurrent use.
type Session struct {
	registry *target.Registry
	cache    *raster.Cache
	metrics  *metrics.Registry
	after    AfterFunc
	log      *slog.Logger

	title       string
	indexes     []int
	maxFileLen  int
	preload     int
	ssimWindow  int
	gridW       int
	gridH       int
	updateDelay time.Duration
	initialCrop *zoom.CropRegion

	mu          sync.Mutex
	pos         int
	epoch       uint64
	status      Status
	done        chan struct{}
	cancelPass  context.CancelFunc
	stopTimer   func() bool
	panes       []*pane
	zoomMode    bool
	zoom        zoom.State
	lastPointer *pointerState
	diffIndex   int
	overlay     bool
	hooks       hooks
}

type pointerState struct {
	input zoom.Pointer
	pane  int
}

// NewSession builds a session over an initialized registry, cache and metric
// registry. It does not start the first update.
func NewSession(opts Options) (*Session, error) {
	if opts.Registry == nil || opts.Cache == nil || opts.Metrics == nil {
		return nil, errors.New("registry, cache and metrics are required")
	}
	base := opts.Registry.Base()
	if base == nil || len(base.Files) == 0 {
		return nil, target.ErrNoBaseTarget
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	after := opts.AfterFunc
	if after == nil {
		after = timeAfterFunc
	}
	title := opts.Title
	if title == "" {
		title = "Super-Resolution Viewer"
	}

	s := &Session{
		registry:    opts.Registry,
		cache:       opts.Cache,
		metrics:     opts.Metrics,
		after:       after,
		log:         log,
		title:       title,
		preload:     max(0, opts.PreloadRadius),
		ssimWindow:  opts.SSIMWindow,
		gridW:       opts.GridWidth,
		gridH:       opts.GridHeight,
		updateDelay: opts.UpdateDelay,
		initialCrop: opts.Crop,
		status:      StatusStart,
		done:        make(chan struct{}),
		zoomMode:    opts.ZoomMode,
		zoom:        opts.Zoom,
		diffIndex:   opts.DiffIndex,
		overlay:     opts.ShowMetricOverlay,
	}
	if s.ssimWindow <= 0 {
		s.ssimWindow = 11
	}
	if s.gridW <= 0 {
		s.gridW = 5
	}
	if s.gridH <= 0 {
		s.gridH = 5
	}
	if s.zoom.AreaWidth == 0 && s.zoom.AreaHeight == 0 {
		s.zoom = zoom.DefaultState()
	}
	if opts.Crop != nil {
		s.diffIndex = opts.Crop.DiffIndex
		s.overlay = opts.Crop.ShowMetricOverlay
	}
	if s.overlay && !opts.Registry.HasGroundTruth() {
		log.Warn("Metric overlay needs a ground truth target, disabling")
		s.overlay = false
	}

	s.indexes = validIndexes(opts.Indexes, len(base.Files), log)
	for _, i := range s.indexes {
		s.maxFileLen = max(s.maxFileLen, len(base.Files[i]))
	}
	for i, idx := range s.indexes {
		if idx == opts.Index {
			s.pos = i
			break
		}
	}

	for _, t := range opts.Registry.Visible() {
		s.panes = append(s.panes, &pane{target: t, stage: StageRaw})
	}
	return s, nil
}

func validIndexes(requested []int, n int, log *slog.Logger) []int {
	if len(requested) == 0 {
		all := make([]int, n)
		for i := range all {
			all[i] = i
		}
		return all
	}
	out := make([]int, 0, len(requested))
	for _, i := range requested {
		if i < 0 || i >= n {
			log.Warn("Ignoring index outside the file list", "index", i, "files", n)
			continue
		}
		out = append(out, i)
	}
	if len(out) == 0 {
		return validIndexes(nil, n, log)
	}
	return out
}

// Title is the session title.
func (s *Session) Title() string { return s.title }

// Registry exposes the target registry.
func (s *Session) Registry() *target.Registry { return s.registry }

// InitialCrop is the region requested at startup, nil if none.
func (s *Session) InitialCrop() *zoom.CropRegion { return s.initialCrop }

// Len is the number of navigable positions.
func (s *Session) Len() int { return len(s.indexes) }

// Position returns the current navigation position.
func (s *Session) Position() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

// File returns the base file name at the current position.
func (s *Session) File() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fileAt(s.pos)
}

// FileAt returns the base file name shown at pos, clamped to the valid
// range.
func (s *Session) FileAt(pos int) string {
	return s.fileAt(s.safeIndex(pos))
}

func (s *Session) fileAt(pos int) string {
	return s.registry.Base().Files[s.indexes[pos]]
}

func (s *Session) safeIndex(pos int) int {
	return max(0, min(len(s.indexes)-1, pos))
}

// SetIndex moves to pos, clamped to the valid range, and reports whether the
// position changed. It does not start an update.
func (s *Session) SetIndex(pos int) bool {
	s.mu.Lock()
	from := s.pos
	s.pos = s.safeIndex(pos)
	changed := s.pos != from
	ev := IndexEvent{From: from, To: s.pos, File: s.fileAt(s.pos)}
	fns := s.hooks.index
	s.mu.Unlock()

	if changed {
		for _, fn := range fns {
			fn(ev)
		}
	}
	return changed
}

// Next advances one position and updates with the default delay.
func (s *Session) Next() bool { return s.step(1) }

// Prev goes back one position and updates with the default delay.
func (s *Session) Prev() bool { return s.step(-1) }

func (s *Session) step(delta int) bool {
	changed := s.SetIndex(s.Position() + delta)
	if changed {
		s.Update(s.updateDelay)
	}
	return changed
}

// Jump moves to pos and updates immediately.
func (s *Session) Jump(pos int) {
	s.SetIndex(pos)
	s.Update(0)
}

// Update starts a new pass for the current position: it bumps the epoch,
// populates the cache, shows raw rasters and schedules the composited pass
// after delay. A pending pass from an older epoch is discarded.
func (s *Session) Update(delay time.Duration) {
	s.mu.Lock()
	s.epoch++
	epoch := s.epoch
	if s.cancelPass != nil {
		s.cancelPass()
	}
	if s.stopTimer != nil {
		s.stopTimer()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancelPass = cancel
	s.status = StatusStart
	select {
	case <-s.done:
		s.done = make(chan struct{})
	default:
	}
	pos := s.pos
	file := s.fileAt(pos)
	before := s.hooks.before
	s.mu.Unlock()

	ev := UpdateEvent{Epoch: epoch, Position: pos, FileIndex: s.indexes[pos], File: file, Delay: delay}
	for _, fn := range before {
		fn(ev)
	}
	s.log.Debug("Update started", "epoch", epoch, "file", file)

	handles := s.generate(file)

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return
	}
	events := make([]PaneEvent, len(s.panes))
	for i, p := range s.panes {
		p.raw = handles[p.target]
		p.image = nil
		p.stage = StageRaw
		if img := p.raw.Image(); img != nil {
			p.lastGood = img
		}
		events[i] = PaneEvent{Epoch: epoch, Pane: i, Target: p.target, Stage: StageRaw, Image: p.raw.Image()}
	}
	s.status = StatusImage
	render := s.hooks.render
	s.mu.Unlock()

	for _, e := range events {
		for _, fn := range render {
			fn(e)
		}
	}

	// The composited pass is armed only after every raw render hook returned.
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return
	}
	s.stopTimer = s.after(delay, func() { s.compose(ctx, epoch) })
	s.mu.Unlock()

	for i := 1; i <= s.preload; i++ {
		s.generate(s.fileAt(s.safeIndex(pos + i)))
		s.generate(s.fileAt(s.safeIndex(pos - i)))
	}
}

// cachedTargets are the targets whose rasters are loaded for a sample:
// everything visible plus the base even when hidden.
func (s *Session) cachedTargets() []*target.Target {
	base := s.registry.Base()
	var out []*target.Target
	for _, t := range s.registry.Targets() {
		if t.Hide && t != base {
			continue
		}
		out = append(out, t)
	}
	return out
}

// generate populates the cache for file and, when a ground truth exists,
// registers the metric tasks of every candidate.
func (s *Session) generate(file string) map[*target.Target]*raster.Handle {
	targets := s.cachedTargets()
	handles := make(map[*target.Target]*raster.Handle, len(targets))
	for _, t := range targets {
		handles[t] = s.cache.Get(t, file)
	}
	if !s.registry.HasGroundTruth() {
		return handles
	}
	base := s.registry.Base()
	gt := handles[base]
	for _, t := range targets {
		if t != base {
			s.ensureMetrics(gt, handles[t])
		}
	}
	return handles
}

// compose is the debounced pass. It runs only if epoch is still current.
func (s *Session) compose(ctx context.Context, epoch uint64) {
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return
	}
	panes := make([]pane, len(s.panes))
	for i, p := range s.panes {
		panes[i] = *p
	}
	diffIndex, overlay := s.diffIndex, s.overlay
	file := s.fileAt(s.pos)
	s.mu.Unlock()

	var diffBase *raster.Handle
	if diffIndex >= 0 && diffIndex < len(panes) {
		diffBase = panes[diffIndex].raw
	}
	var gt *raster.Handle
	if overlay && s.registry.HasGroundTruth() {
		gt = s.cache.Get(s.registry.Base(), file)
	}

	results := make([]*image.NRGBA, len(panes))
	errs := make([]error, len(panes))
	var wg sync.WaitGroup
	for i := range panes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = s.composePane(ctx, i, &panes[i], diffIndex, diffBase, gt)
		}(i)
	}
	wg.Wait()

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		s.log.Debug("Discarding stale pass", "epoch", epoch)
		return
	}
	events := make([]PaneEvent, len(s.panes))
	for i, p := range s.panes {
		if results[i] != nil {
			p.image = results[i]
			p.stage = StageComposited
			p.lastGood = results[i]
		}
		events[i] = PaneEvent{Epoch: epoch, Pane: i, Target: p.target, Stage: p.stage, Image: p.displayed(), Err: errs[i]}
	}
	s.status = StatusDone
	close(s.done)
	render := s.hooks.render
	s.mu.Unlock()

	for _, e := range events {
		for _, fn := range render {
			fn(e)
		}
	}
	s.log.Debug("Update done", "epoch", epoch)
}

// composePane applies diff and metric overlay to one pane. A nil image with
// a nil error means the raw raster stays.
func (s *Session) composePane(ctx context.Context, i int, p *pane, diffIndex int, diffBase, gt *raster.Handle) (*image.NRGBA, error) {
	raw, err := p.raw.Wait(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.log.Warn("Pane skipped", "pane", i, "path", p.raw.Path(), "error", err)
		}
		return nil, err
	}
	current := raw
	composited := false

	if diffBase != nil && i != diffIndex {
		baseImg, err := diffBase.Wait(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load diff base: %w", err)
		}
		current = diffImage(baseImg, current)
		composited = true
	}

	if gt != nil && !p.target.GroundTruth {
		total, grid, err := s.overlayInputs(ctx, gt, p.raw)
		if err != nil {
			s.log.Debug("Metric overlay unavailable", "pane", i, "error", err)
		} else {
			current = heatmapImage(current, grid, total)
			composited = true
		}
	}

	if !composited {
		return nil, nil
	}
	return current, nil
}

// WaitDone blocks until the latest update reaches StatusDone.
func (s *Session) WaitDone(ctx context.Context) error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns the phase of the latest update.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Epoch returns the current update generation.
func (s *Session) Epoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// ToggleDiff makes visible pane n the diff baseline, or clears the baseline
// if n already is one, then updates immediately.
func (s *Session) ToggleDiff(n int) error {
	s.mu.Lock()
	if n < 0 || n >= len(s.panes) {
		s.mu.Unlock()
		return ErrPaneOutOfRange
	}
	if s.diffIndex == n {
		s.diffIndex = -1
	} else {
		s.diffIndex = n
	}
	s.mu.Unlock()
	s.Update(0)
	return nil
}

// ToggleMetricOverlay flips the PSNR heat-map overlay and updates
// immediately. It fails with metrics.ErrUnavailable without a ground truth.
func (s *Session) ToggleMetricOverlay() error {
	if !s.registry.HasGroundTruth() {
		return metrics.ErrUnavailable
	}
	s.mu.Lock()
	s.overlay = !s.overlay
	s.mu.Unlock()
	s.Update(0)
	return nil
}

// SetZoomMode turns zoom mode on or off and updates immediately.
func (s *Session) SetZoomMode(on bool) {
	s.mu.Lock()
	s.zoomMode = on
	s.mu.Unlock()
	s.Update(0)
}

// Close cancels pending work.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	if s.cancelPass != nil {
		s.cancelPass()
	}
	if s.stopTimer != nil {
		s.stopTimer()
	}
}
