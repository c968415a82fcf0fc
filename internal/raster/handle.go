package raster

import (
	"context"
	"errors"
	"image"
)

// State is the load state of a Handle.
type State int

const (
	Pending State = iota
	Loaded
	Errored
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Loaded:
		return "loaded"
	case Errored:
		return "errored"
	default:
		return "unknown"
	}
}

// ErrLoadFailed matches every LoadError with errors.Is.
var ErrLoadFailed = &LoadError{}

// LoadError reports a raster that could not be fetched or decoded.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	if e.Path == "" {
		return "raster load failed"
	}
	return "failed to load raster " + e.Path + ": " + e.Err.Error()
}

func (e *LoadError) Unwrap() error { return e.Err }

func (e *LoadError) Is(target error) bool {
	_, ok := target.(*LoadError)
	return ok
}

// Handle is a lazily loaded raster. Its fields are written once by the
// loader before done is closed and never change afterwards.
type Handle struct {
	path string
	done chan struct{}

	img  *image.NRGBA
	data []byte
	err  error
}

func newHandle(path string) *Handle {
	return &Handle{path: path, done: make(chan struct{})}
}

// NewLoaded wraps an already decoded image in a loaded handle.
func NewLoaded(path string, img *image.NRGBA) *Handle {
	h := newHandle(path)
	h.finish(img, nil, nil)
	return h
}

func (h *Handle) finish(img *image.NRGBA, data []byte, err error) {
	h.img, h.data, h.err = img, data, err
	close(h.done)
}

// Path is the cache key the handle was created for.
func (h *Handle) Path() string { return h.path }

// Done is closed once the handle leaves the Pending state.
func (h *Handle) Done() <-chan struct{} { return h.done }

// State reports the current load state without blocking.
func (h *Handle) State() State {
	select {
	case <-h.done:
		if h.err != nil {
			return Errored
		}
		return Loaded
	default:
		return Pending
	}
}

// Image returns the decoded pixels, or nil unless the handle is Loaded.
func (h *Handle) Image() *image.NRGBA {
	if h.State() != Loaded {
		return nil
	}
	return h.img
}

// Bytes returns the encoded source bytes, or nil unless the handle is Loaded.
func (h *Handle) Bytes() []byte {
	if h.State() != Loaded {
		return nil
	}
	return h.data
}

// Err returns the load error of an Errored handle.
func (h *Handle) Err() error {
	if h.State() != Errored {
		return nil
	}
	return h.err
}

// Wait blocks until the handle is loaded or errored, or ctx is done.
func (h *Handle) Wait(ctx context.Context) (*image.NRGBA, error) {
	select {
	case <-h.done:
		if h.err != nil {
			return nil, h.err
		}
		return h.img, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// IsLoadError reports whether err came from a failed raster load.
func IsLoadError(err error) bool {
	return errors.Is(err, ErrLoadFailed)
}
