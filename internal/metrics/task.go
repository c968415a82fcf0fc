package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Kind names a metric.
type Kind string

const (
	KindPSNR     Kind = "psnr"
	KindSSIM     Kind = "ssim"
	KindPSNRGrid Kind = "psnr_grid"
)

// Key identifies one metric of one candidate against one ground truth.
// Params records the patch or window size so different settings never share
// a result.
type Key struct {
	GroundTruth string `json:"groundTruth"`
	Candidate   string `json:"candidate"`
	Kind        Kind   `json:"kind"`
	Params      string `json:"params,omitempty"`
}

// Result is the payload of a finished metric task. Grid is set only for
// KindPSNRGrid.
type Result struct {
	Value Value `json:"value"`
	Grid  *Grid `json:"grid,omitempty"`
}

// TaskState is the lifecycle of a metric task.
type TaskState int

const (
	NotStarted TaskState = iota
	InFlight
	Done
)

func (s TaskState) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case InFlight:
		return "in_flight"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

// ComputeFunc produces a metric result. It may block on raster loads.
type ComputeFunc func(ctx context.Context) (Result, error)

// Task is a single metric computation. Result and error are written once
// before done is closed.
type Task struct {
	key  Key
	done chan struct{}

	result Result
	err    error
}

// Key returns the task key.
func (t *Task) Key() Key { return t.key }

// Done is closed when the computation finishes.
func (t *Task) Done() <-chan struct{} { return t.done }

// State is InFlight until the computation finishes, then Done.
func (t *Task) State() TaskState {
	select {
	case <-t.done:
		return Done
	default:
		return InFlight
	}
}

// Result returns the result of a finished task. ok is false while the task
// is in flight or when it failed.
func (t *Task) Result() (Result, bool) {
	if t.State() != Done || t.err != nil {
		return Result{}, false
	}
	return t.result, true
}

// Err returns the error of a finished task.
func (t *Task) Err() error {
	if t.State() != Done {
		return nil
	}
	return t.err
}

// Wait blocks until the task finishes or ctx is done.
func (t *Task) Wait(ctx context.Context) (Result, error) {
	select {
	case <-t.done:
		return t.result, t.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Memo persists finished results across processes.
type Memo interface {
	Lookup(ctx context.Context, key Key) (Result, bool, error)
	Save(ctx context.Context, key Key, result Result) error
}

// Registry deduplicates metric computations. Ensure starts a computation at
// most once per key; later calls return the same task.
type Registry struct {
	ctx  context.Context
	memo Memo
	log  *slog.Logger

	mu    sync.Mutex
	tasks map[Key]*Task
}

// NewRegistry creates a registry whose computations run until ctx is done.
// memo may be nil.
func NewRegistry(ctx context.Context, memo Memo) *Registry {
	return &Registry{
		ctx:   ctx,
		memo:  memo,
		log:   slog.Default(),
		tasks: make(map[Key]*Task),
	}
}

// Ensure returns the task for key, starting compute in the background if no
// task exists yet.
func (r *Registry) Ensure(key Key, compute ComputeFunc) *Task {
	r.mu.Lock()
	if t, ok := r.tasks[key]; ok {
		r.mu.Unlock()
		return t
	}
	t := &Task{key: key, done: make(chan struct{})}
	r.tasks[key] = t
	r.mu.Unlock()

	go r.run(t, compute)
	return t
}

// Lookup returns the task for key if one was started.
func (r *Registry) Lookup(key Key) (*Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[key]
	return t, ok
}

// State reports NotStarted for unknown keys and the task state otherwise.
func (r *Registry) State(key Key) TaskState {
	t, ok := r.Lookup(key)
	if !ok {
		return NotStarted
	}
	return t.State()
}

func (r *Registry) run(t *Task, compute ComputeFunc) {
	defer close(t.done)

	if r.memo != nil {
		res, ok, err := r.memo.Lookup(r.ctx, t.key)
		if err != nil {
			r.log.Warn("Metric memo lookup failed", "candidate", t.key.Candidate, "kind", t.key.Kind, "error", err)
		} else if ok {
			r.log.Debug("Metric memo hit", "candidate", t.key.Candidate, "kind", t.key.Kind)
			t.result = res
			return
		}
	}

	res, err := compute(r.ctx)
	if err != nil {
		r.log.Debug("Metric unavailable", "candidate", t.key.Candidate, "kind", t.key.Kind, "error", err)
		t.err = fmt.Errorf("failed to compute %s: %w", t.key.Kind, err)
		return
	}
	t.result = res
	r.log.Debug("Metric computed", "candidate", t.key.Candidate, "kind", t.key.Kind, "value", res.Value)

	if r.memo != nil {
		if err := r.memo.Save(r.ctx, t.key, res); err != nil {
			r.log.Warn("Failed to save metric", "candidate", t.key.Candidate, "kind", t.key.Kind, "error", err)
		}
	}
}
