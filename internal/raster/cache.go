// Package raster provides the deduplicated, lazily populated cache of decoded
// images shared by navigation, prefetch and metric computation.
package raster

import (
	"bytes"
	"context"
	"log/slog"
	"sync"

	"github.com/cwbudde/srviewer/internal/source"
	"github.com/cwbudde/srviewer/internal/target"
)

// Resolver maps a target and a base file name to a cache key.
type Resolver interface {
	Resolve(t *target.Target, file string) string
}

// Cache maps resolved paths to raster handles. A miss creates a Pending
// handle and starts loading it in the background.
type Cache struct {
	src      source.Source
	resolver Resolver
	policy   Policy
	log      *slog.Logger

	// ctx bounds background loads; navigation never cancels them.
	ctx context.Context
	sem chan struct{}

	mu      sync.Mutex
	entries map[string]*Handle
}

// Option configures a Cache.
type Option func(*Cache)

// WithPolicy replaces the default Unbounded policy.
func WithPolicy(p Policy) Option {
	return func(c *Cache) { c.policy = p }
}

// WithConcurrency limits the number of simultaneous loads.
func WithConcurrency(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.sem = make(chan struct{}, n)
		}
	}
}

// WithLogger sets the logger used for load diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.log = l }
}

// NewCache creates a cache reading through src. Loads run until ctx is done.
func NewCache(ctx context.Context, src source.Source, resolver Resolver, opts ...Option) *Cache {
	c := &Cache{
		src:      src,
		resolver: resolver,
		policy:   Unbounded{},
		log:      slog.Default(),
		ctx:      ctx,
		sem:      make(chan struct{}, 8),
		entries:  make(map[string]*Handle),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the handle for (t, file), creating and loading it on a miss.
// The returned handle may still be Pending.
func (c *Cache) Get(t *target.Target, file string) *Handle {
	return c.GetPath(c.resolver.Resolve(t, file))
}

// GetPath is Get for an already resolved path.
func (c *Cache) GetPath(path string) *Handle {
	c.mu.Lock()
	if h, ok := c.entries[path]; ok {
		c.policy.Touch(path)
		c.mu.Unlock()
		return h
	}
	h := newHandle(path)
	c.entries[path] = h
	for _, key := range c.policy.Admit(path) {
		delete(c.entries, key)
		c.log.Debug("Raster evicted", "path", key)
	}
	c.mu.Unlock()

	go c.load(h)
	return h
}

// Lookup returns the cached handle for (t, file) without creating one.
func (c *Cache) Lookup(t *target.Target, file string) (*Handle, bool) {
	path := c.resolver.Resolve(t, file)
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.entries[path]
	return h, ok
}

// Prefetch populates the cache for every target and file pair.
func (c *Cache) Prefetch(targets []*target.Target, files []string) {
	for _, file := range files {
		for _, t := range targets {
			c.Get(t, file)
		}
	}
}

// Stats returns the number of loaded handles and the total number of handles.
func (c *Cache) Stats() (loaded, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, h := range c.entries {
		if h.State() == Loaded {
			loaded++
		}
	}
	return loaded, len(c.entries)
}

func (c *Cache) load(h *Handle) {
	select {
	case c.sem <- struct{}{}:
		defer func() { <-c.sem }()
	case <-c.ctx.Done():
		h.finish(nil, nil, &LoadError{Path: h.path, Err: c.ctx.Err()})
		return
	}

	data, err := c.src.ReadFile(c.ctx, h.path)
	if err != nil {
		c.log.Warn("Raster load failed", "path", h.path, "error", err)
		h.finish(nil, nil, &LoadError{Path: h.path, Err: err})
		return
	}
	img, format, err := Decode(bytes.NewReader(data))
	if err != nil {
		c.log.Warn("Raster decode failed", "path", h.path, "error", err)
		h.finish(nil, nil, &LoadError{Path: h.path, Err: err})
		return
	}
	c.log.Debug("Raster loaded", "path", h.path, "format", format,
		"width", img.Rect.Dx(), "height", img.Rect.Dy())
	h.finish(img, data, nil)
}
