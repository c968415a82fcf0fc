// Package source fetches encoded image bytes and directory listings from the
// local filesystem, HTTP directory servers, S3 buckets and 7z archives.
package source

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Source reads files and lists directories. Paths are slash separated.
type Source interface {
	ReadFile(ctx context.Context, path string) ([]byte, error)
	List(ctx context.Context, dir string) ([]string, error)
}

// ErrNotFound is returned when a path does not exist in its source.
var ErrNotFound = errors.New("not found")

// Config selects how relative paths are served and how remote sources are
// reached.
type Config struct {
	// Root is the local directory relative paths are read from.
	Root string `json:"root"`
	// BaseURL, when set, serves relative paths over HTTP instead of Root.
	BaseURL        string `json:"baseUrl,omitempty"`
	HTTPTimeoutSec int    `json:"httpTimeoutSec,omitempty"`
	S3Region       string `json:"s3Region,omitempty"`
	S3Endpoint     string `json:"s3Endpoint,omitempty"`
	// ArchiveCacheSize bounds how many opened 7z archives are kept.
	ArchiveCacheSize int `json:"archiveCacheSize,omitempty"`
}

// Router dispatches a path to the source that owns it:
//
//	s3://bucket/key        S3
//	http(s)://host/path    HTTP
//	dir/set.7z/member.png  7z archive member, the archive itself routed again
//	anything else          BaseURL over HTTP if configured, else Root
type Router struct {
	cfg      Config
	local    Source
	web      *HTTP
	archives *Archives

	s3Mu sync.Mutex
	s3   *S3
}

// NewRouter builds a router for cfg. The S3 client is created on first use.
func NewRouter(cfg Config) (*Router, error) {
	r := &Router{
		cfg:   cfg,
		local: NewFS(cfg.Root),
		web:   NewHTTP(cfg.BaseURL, time.Duration(cfg.HTTPTimeoutSec)*time.Second),
	}
	archives, err := NewArchives(sourceFunc(r.direct), cfg.ArchiveCacheSize)
	if err != nil {
		return nil, err
	}
	r.archives = archives
	return r, nil
}

// ReadFile implements Source.
func (r *Router) ReadFile(ctx context.Context, path string) ([]byte, error) {
	if _, _, ok := SplitArchivePath(path); ok {
		return r.archives.ReadFile(ctx, path)
	}
	src, p, err := r.direct(ctx, path)
	if err != nil {
		return nil, err
	}
	return src.ReadFile(ctx, p)
}

// List implements Source.
func (r *Router) List(ctx context.Context, dir string) ([]string, error) {
	if _, _, ok := SplitArchivePath(dir + "/"); ok {
		return r.archives.List(ctx, dir)
	}
	src, p, err := r.direct(ctx, dir)
	if err != nil {
		return nil, err
	}
	return src.List(ctx, p)
}

// direct picks the non-archive source for path.
func (r *Router) direct(ctx context.Context, path string) (Source, string, error) {
	switch {
	case strings.HasPrefix(path, "s3://"):
		s3src, err := r.s3Client(ctx)
		if err != nil {
			return nil, "", err
		}
		return s3src, path, nil
	case strings.HasPrefix(path, "http://"), strings.HasPrefix(path, "https://"):
		return r.web, path, nil
	case r.cfg.BaseURL != "":
		return r.web, path, nil
	default:
		return r.local, path, nil
	}
}

func (r *Router) s3Client(ctx context.Context) (*S3, error) {
	r.s3Mu.Lock()
	defer r.s3Mu.Unlock()
	if r.s3 != nil {
		return r.s3, nil
	}
	s, err := NewS3(ctx, r.cfg.S3Region, r.cfg.S3Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}
	r.s3 = s
	return s, nil
}

// sourceFunc adapts the router's dispatch to a Source for archive loading.
type sourceFunc func(ctx context.Context, path string) (Source, string, error)

func (f sourceFunc) ReadFile(ctx context.Context, path string) ([]byte, error) {
	src, p, err := f(ctx, path)
	if err != nil {
		return nil, err
	}
	return src.ReadFile(ctx, p)
}

func (f sourceFunc) List(ctx context.Context, dir string) ([]string, error) {
	src, p, err := f(ctx, dir)
	if err != nil {
		return nil, err
	}
	return src.List(ctx, p)
}
