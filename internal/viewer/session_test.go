package viewer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cwbudde/srviewer/internal/metrics"
	"github.com/cwbudde/srviewer/internal/raster"
	"github.com/cwbudde/srviewer/internal/target"
	"github.com/cwbudde/srviewer/internal/zoom"
)

type memSource struct {
	files map[string][]byte
}

func (m *memSource) ReadFile(_ context.Context, path string) ([]byte, error) {
	data, ok := m.files[path]
	if !ok {
		return nil, fmt.Errorf("missing %s", path)
	}
	return data, nil
}

func (m *memSource) List(context.Context, string) ([]string, error) { return nil, nil }

// manualScheduler records scheduled passes so tests decide when they run.
type manualScheduler struct {
	mu    sync.Mutex
	tasks []*scheduled
}

type scheduled struct {
	delay   time.Duration
	f       func()
	stopped bool
}

func (m *manualScheduler) AfterFunc(d time.Duration, f func()) func() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &scheduled{delay: d, f: f}
	m.tasks = append(m.tasks, s)
	return func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		was := !s.stopped
		s.stopped = true
		return was
	}
}

// run executes task i even if it was stopped, as a timer firing concurrently
// with Stop would.
func (m *manualScheduler) run(i int) {
	m.mu.Lock()
	f := m.tasks[i].f
	m.mu.Unlock()
	f()
}

func (m *manualScheduler) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

func solidPNG(t *testing.T, w, h int, c color.NRGBA) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Failed to encode png: %v", err)
	}
	return buf.Bytes()
}

var (
	black = color.NRGBA{0, 0, 0, 255}
	white = color.NRGBA{255, 255, 255, 255}
)

type fixture struct {
	session   *Session
	scheduler *manualScheduler
	cache     *raster.Cache
}

func newFixture(t *testing.T, groundTruth bool, mutate func(*Options)) *fixture {
	t.Helper()
	files := []string{"a.png", "b.png", "c.png"}
	src := &memSource{files: make(map[string][]byte)}
	for _, f := range files {
		src.files["gt/"+f] = solidPNG(t, 10, 10, black)
		src.files["sr/"+f] = solidPNG(t, 10, 10, white)
	}
	ctx := context.Background()
	reg, err := target.NewRegistry(ctx, []target.Target{
		{Path: "gt", Label: "GT", GroundTruth: groundTruth, Files: files},
		{Path: "sr", Label: "SR", Files: files},
	}, target.Options{}, nil)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	cache := raster.NewCache(ctx, src, reg)
	sched := &manualScheduler{}
	opts := Options{
		Registry:    reg,
		Cache:       cache,
		Metrics:     metrics.NewRegistry(ctx, nil),
		Title:       "Test",
		DiffIndex:   -1,
		GridWidth:   5,
		GridHeight:  5,
		SSIMWindow:  5,
		UpdateDelay: 300 * time.Millisecond,
		AfterFunc:   sched.AfterFunc,
	}
	if mutate != nil {
		mutate(&opts)
	}
	s, err := NewSession(opts)
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	return &fixture{session: s, scheduler: sched, cache: cache}
}

type renderLog struct {
	mu     sync.Mutex
	events []PaneEvent
}

func (r *renderLog) record(e PaneEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *renderLog) composited(epoch uint64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Epoch == epoch && e.Stage == StageComposited {
			n++
		}
	}
	return n
}

func TestUpdateRawThenDone(t *testing.T) {
	f := newFixture(t, true, nil)
	var renders renderLog
	f.session.OnRenderPane(renders.record)

	f.session.Update(300 * time.Millisecond)
	if got := f.session.Status(); got != StatusImage {
		t.Fatalf("Expected status image after raw pass, got %s", got)
	}
	if f.scheduler.count() != 1 || f.scheduler.tasks[0].delay != 300*time.Millisecond {
		t.Fatalf("Expected one pass scheduled after 300ms, got %d", f.scheduler.count())
	}

	f.scheduler.run(0)
	if got := f.session.Status(); got != StatusDone {
		t.Errorf("Expected status done, got %s", got)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := f.session.WaitDone(ctx); err != nil {
		t.Errorf("Expected WaitDone to return, got %v", err)
	}
	// Two raw renders and two after the pass.
	if len(renders.events) != 4 {
		t.Errorf("Expected 4 render events, got %d", len(renders.events))
	}
}

func TestStalePassDiscarded(t *testing.T) {
	f := newFixture(t, true, func(o *Options) { o.DiffIndex = 0 })
	var renders renderLog
	f.session.OnRenderPane(renders.record)

	f.session.Update(300 * time.Millisecond)
	first := f.session.Epoch()
	f.session.SetIndex(1)
	f.session.Update(300 * time.Millisecond)
	second := f.session.Epoch()

	f.scheduler.run(0)
	if n := renders.composited(first); n != 0 {
		t.Errorf("Expected no composited render for abandoned epoch, got %d", n)
	}
	if got := f.session.Status(); got != StatusImage {
		t.Errorf("Expected status image while newer pass pends, got %s", got)
	}

	f.scheduler.run(1)
	if n := renders.composited(second); n != 1 {
		t.Errorf("Expected one composited pane (diff against pane 0), got %d", n)
	}
	if got := f.session.File(); got != "b.png" {
		t.Errorf("Expected b.png, got %s", got)
	}
}

func TestWaitDoneCarriesOverEpochs(t *testing.T) {
	f := newFixture(t, false, nil)
	f.session.Update(0)

	result := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		result <- f.session.WaitDone(ctx)
	}()

	f.session.SetIndex(2)
	f.session.Update(0)
	f.scheduler.run(0)
	select {
	case err := <-result:
		t.Fatalf("Expected WaitDone to keep waiting after a stale pass, got %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	f.scheduler.run(1)
	if err := <-result; err != nil {
		t.Errorf("Expected WaitDone to return nil, got %v", err)
	}
}

func TestDiffComposite(t *testing.T) {
	f := newFixture(t, true, func(o *Options) { o.DiffIndex = 0 })
	f.session.Update(0)
	f.scheduler.run(0)

	img, err := f.session.PaneImage(context.Background(), 1, 0, 0)
	if err != nil {
		t.Fatalf("PaneImage failed: %v", err)
	}
	if got := img.NRGBAAt(3, 3); got != white {
		t.Errorf("Expected |black-white| = white, got %v", got)
	}
	snap := f.session.Snapshot()
	if snap.Panes[0].Stage != StageRaw || snap.Panes[1].Stage != StageComposited {
		t.Errorf("Expected baseline raw and candidate composited, got %s and %s", snap.Panes[0].Stage, snap.Panes[1].Stage)
	}
}

func TestToggleDiff(t *testing.T) {
	f := newFixture(t, true, nil)
	if err := f.session.ToggleDiff(1); err != nil {
		t.Fatalf("ToggleDiff failed: %v", err)
	}
	if got := f.session.Snapshot().DiffIndex; got != 1 {
		t.Errorf("Expected diff index 1, got %d", got)
	}
	if err := f.session.ToggleDiff(1); err != nil {
		t.Fatalf("ToggleDiff failed: %v", err)
	}
	if got := f.session.Snapshot().DiffIndex; got != -1 {
		t.Errorf("Expected diff index -1 after second toggle, got %d", got)
	}
	if err := f.session.ToggleDiff(5); !errors.Is(err, ErrPaneOutOfRange) {
		t.Errorf("Expected ErrPaneOutOfRange, got %v", err)
	}
	if f.scheduler.count() != 2 || f.scheduler.tasks[0].delay != 0 {
		t.Errorf("Expected two immediate updates, got %d", f.scheduler.count())
	}
}

func TestMetricOverlay(t *testing.T) {
	f := newFixture(t, false, nil)
	if err := f.session.ToggleMetricOverlay(); !errors.Is(err, metrics.ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable without ground truth, got %v", err)
	}

	f = newFixture(t, true, nil)
	if err := f.session.ToggleMetricOverlay(); err != nil {
		t.Fatalf("ToggleMetricOverlay failed: %v", err)
	}
	f.scheduler.run(0)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := f.session.Metrics(ctx, 0); err != nil {
		t.Fatalf("Metrics failed: %v", err)
	}

	snap := f.session.Snapshot()
	if snap.Panes[1].Stage != StageComposited {
		t.Errorf("Expected candidate pane composited, got %s", snap.Panes[1].Stage)
	}
	if snap.Panes[0].Stage != StageRaw {
		t.Errorf("Expected ground truth pane raw, got %s", snap.Panes[0].Stage)
	}
	if snap.Panes[1].PSNR == nil || float64(*snap.Panes[1].PSNR) != 0 {
		t.Errorf("Expected PSNR 0 for black vs white, got %v", snap.Panes[1].PSNR)
	}
	if !strings.HasPrefix(snap.Panes[1].Info, "PSNR: 0.0000, SSIM: 0.000") {
		t.Errorf("Expected info label with metrics, got %q", snap.Panes[1].Info)
	}
}

func TestMetrics(t *testing.T) {
	f := newFixture(t, true, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got, err := f.session.Metrics(ctx, 2)
	if err != nil {
		t.Fatalf("Metrics failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 panes, got %d", len(got))
	}
	if got[0].PSNR != nil {
		t.Error("Expected no metrics for the ground truth pane")
	}
	if got[1].Grid == nil || got[1].Grid.Rows != 2 || got[1].Grid.Cols != 2 {
		t.Errorf("Expected a 2x2 grid, got %+v", got[1].Grid)
	}
}

func TestSetIndexClamps(t *testing.T) {
	f := newFixture(t, false, nil)
	var changes []IndexEvent
	f.session.OnIndexChange(func(e IndexEvent) { changes = append(changes, e) })

	if f.session.SetIndex(-4) {
		t.Error("Expected no change when clamping below zero at position 0")
	}
	if !f.session.SetIndex(99) {
		t.Error("Expected change when jumping past the end")
	}
	if got := f.session.Position(); got != 2 {
		t.Errorf("Expected position clamped to 2, got %d", got)
	}
	if f.session.Next() {
		t.Error("Expected Next at the end to report no change")
	}
	if !f.session.Prev() {
		t.Error("Expected Prev to move back")
	}
	if len(changes) != 2 || changes[1].File != "b.png" {
		t.Errorf("Expected two index changes ending at b.png, got %+v", changes)
	}
	if f.scheduler.tasks[0].delay != 300*time.Millisecond {
		t.Errorf("Expected Prev to use the update delay, got %v", f.scheduler.tasks[0].delay)
	}
}

func TestInitialIndexMapping(t *testing.T) {
	f := newFixture(t, false, func(o *Options) {
		o.Indexes = []int{2, 0}
		o.Index = 0
	})
	if got := f.session.Position(); got != 1 {
		t.Errorf("Expected underlying index 0 at position 1, got %d", got)
	}
	if got := f.session.File(); got != "a.png" {
		t.Errorf("Expected a.png, got %s", got)
	}

	f = newFixture(t, false, func(o *Options) { o.Index = 7 })
	if got := f.session.Position(); got != 0 {
		t.Errorf("Expected unknown index to fall back to 0, got %d", got)
	}
}

func TestPreload(t *testing.T) {
	f := newFixture(t, true, func(o *Options) { o.PreloadRadius = 1 })
	f.session.Update(0)
	_, total := f.cache.Stats()
	// Position 0 plus neighbour 1 (the other side clamps to 0), two targets each.
	if total != 4 {
		t.Errorf("Expected 4 cached rasters, got %d", total)
	}
}

func TestHeader(t *testing.T) {
	got := Header("a.png", 6, 3, 120, 5, 12)
	if got != " a.png (I:3  ) / Caches: 5  of 12" {
		t.Errorf("Unexpected header %q", got)
	}
	if got := Header("a.png", 5, 0, 1, 0, 1); got != "a.png (I:0) / Caches: 0 of 1" {
		t.Errorf("Unexpected header %q", got)
	}
}

func TestPointerAndExport(t *testing.T) {
	f := newFixture(t, true, func(o *Options) { o.ZoomMode = true })
	f.session.Update(0)
	f.scheduler.run(0)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := f.session.PaneImage(ctx, 0, 0, 0); err != nil {
		t.Fatalf("PaneImage failed: %v", err)
	}

	if _, err := f.session.CropToken(); !errors.Is(err, ErrNoCrop) {
		t.Errorf("Expected ErrNoCrop before any pointer event, got %v", err)
	}
	params, err := f.session.Pointer(0, zoom.Pointer{X: 5, Y: 5})
	if err != nil {
		t.Fatalf("Pointer failed: %v", err)
	}
	if params.NaturalW != 10 {
		t.Errorf("Expected natural width filled from the raster, got %d", params.NaturalW)
	}

	snap := f.session.Snapshot()
	if snap.Panes[0].Info == "" || snap.CropToken == "" {
		t.Errorf("Expected zoom info label and crop token, got %q and %q", snap.Panes[0].Info, snap.CropToken)
	}

	img, err := f.session.PaneImage(ctx, 1, 20, 20)
	if err != nil {
		t.Fatalf("PaneImage failed: %v", err)
	}
	if img.Rect.Dx() != 20 || img.Rect.Dy() != 20 {
		t.Errorf("Expected 20x20 render, got %v", img.Rect)
	}

	bundle, err := f.session.ExportCrop(ctx, nil, ExportOptions{IncludeOriginal: true})
	if err != nil {
		t.Fatalf("ExportCrop failed: %v", err)
	}
	if len(bundle.Files) != 4 {
		t.Errorf("Expected 4 entries, got %v", bundle.Files)
	}
	token, _ := f.session.CropToken()
	if want := "[Test] a_" + token + ".zip"; bundle.Name != want {
		t.Errorf("Expected %s, got %s", want, bundle.Name)
	}
}

func TestWheelRecomputesGeometry(t *testing.T) {
	f := newFixture(t, false, func(o *Options) {
		o.Zoom = zoom.DefaultState()
		o.Zoom.AreaWidth, o.Zoom.AreaHeight = 4, 4
		o.Zoom.Delta = 2
	})
	f.session.Update(0)
	f.scheduler.run(0)

	if _, err := f.session.Pointer(0, zoom.Pointer{X: 5, Y: 5}); err != nil {
		t.Fatalf("Pointer failed: %v", err)
	}
	if err := f.session.Wheel(0, -1, zoom.LockNone); err != nil {
		t.Fatalf("Wheel failed: %v", err)
	}
	z := f.session.ZoomState()
	if z.AreaWidth != 6 || z.Params.Crop.W != 6 {
		t.Errorf("Expected area and crop width 6, got %d and %d", z.AreaWidth, z.Params.Crop.W)
	}
}

func TestRawRendersPrecedeComposite(t *testing.T) {
	f := newFixture(t, true, func(o *Options) {
		o.DiffIndex = 0
		o.AfterFunc = nil
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Load the rasters first so the second pass composes immediately.
	f.session.Update(0)
	if err := f.session.WaitDone(ctx); err != nil {
		t.Fatalf("WaitDone failed: %v", err)
	}

	var renders renderLog
	f.session.OnRenderPane(func(e PaneEvent) {
		renders.record(e)
		if e.Stage == StageRaw {
			time.Sleep(20 * time.Millisecond)
		}
	})
	f.session.Update(0)
	epoch := f.session.Epoch()

	var events []PaneEvent
	for deadline := time.Now().Add(5 * time.Second); time.Now().Before(deadline); time.Sleep(5 * time.Millisecond) {
		events = events[:0]
		renders.mu.Lock()
		for _, e := range renders.events {
			if e.Epoch == epoch {
				events = append(events, e)
			}
		}
		renders.mu.Unlock()
		if len(events) == 4 {
			break
		}
	}
	if len(events) != 4 {
		t.Fatalf("Expected 4 render events, got %d", len(events))
	}
	for i, e := range events[:2] {
		if e.Stage != StageRaw || e.Pane != i {
			t.Errorf("Expected raw render of pane %d at %d, got pane %d %s", i, i, e.Pane, e.Stage)
		}
	}
	if renders.composited(epoch) != 1 {
		t.Errorf("Expected 1 composited render, got %d", renders.composited(epoch))
	}
}

func TestWheelBeforeLoad(t *testing.T) {
	f := newFixture(t, false, func(o *Options) { o.Zoom = zoom.DefaultState() })

	// Nothing is loaded and no pointer event happened yet.
	if err := f.session.Wheel(0, -1, zoom.LockNone); err != nil {
		t.Fatalf("Wheel failed: %v", err)
	}
	z := f.session.ZoomState()
	if z.AreaWidth <= 0 || z.AreaHeight <= 0 {
		t.Fatalf("Expected a positive zoom area, got %dx%d", z.AreaWidth, z.AreaHeight)
	}

	f.session.Update(0)
	f.scheduler.run(0)
	params, err := f.session.Pointer(0, zoom.Pointer{X: 5, Y: 5})
	if err != nil {
		t.Fatalf("Pointer failed: %v", err)
	}
	if params.Crop.W <= 0 || params.Crop.H <= 0 {
		t.Errorf("Expected a non-empty crop, got %+v", params.Crop)
	}
}

func TestExportCropFollowsNavigation(t *testing.T) {
	f := newFixture(t, true, nil)
	f.session.Update(0)
	epoch := f.session.Epoch()

	// Navigate from inside the first pass's render hooks, right after it
	// reported done.
	var once sync.Once
	f.session.OnRenderPane(func(e PaneEvent) {
		if e.Epoch == epoch {
			once.Do(func() {
				f.session.SetIndex(1)
				f.session.Update(0)
			})
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	type result struct {
		name string
		err  error
	}
	results := make(chan result, 1)
	go func() {
		b, err := f.session.ExportCrop(ctx, &zoom.CropRegion{W: 4, H: 4}, ExportOptions{})
		if err != nil {
			results <- result{err: err}
			return
		}
		results <- result{name: b.Name}
	}()

	f.scheduler.run(0)
	select {
	case r := <-results:
		// Exported before the navigation: it must be the first file.
		if r.err != nil {
			t.Fatalf("ExportCrop failed: %v", r.err)
		}
		if !strings.Contains(r.name, "] a_") {
			t.Errorf("Expected an export of a.png, got %s", r.name)
		}
		return
	case <-time.After(500 * time.Millisecond):
	}

	if f.scheduler.count() != 2 {
		t.Fatalf("Expected a second pass after navigation, got %d", f.scheduler.count())
	}
	f.scheduler.run(1)
	r := <-results
	if r.err != nil {
		t.Fatalf("ExportCrop failed: %v", r.err)
	}
	if !strings.Contains(r.name, "] b_") {
		t.Errorf("Expected an export of b.png, got %s", r.name)
	}
}
