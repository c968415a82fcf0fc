package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/bodgit/sevenzip"
	lru "github.com/hashicorp/golang-lru/v2"
)

const archiveExt = ".7z"

// SplitArchivePath splits "dir/set.7z/sub/a.png" into the archive path and
// the member name.
func SplitArchivePath(p string) (archive, member string, ok bool) {
	i := strings.Index(p, archiveExt+"/")
	if i < 0 {
		return "", "", false
	}
	return p[:i+len(archiveExt)], p[i+len(archiveExt)+1:], true
}

// Archives serves members of 7z archives. Archive bytes come from the
// underlying source and the opened readers are kept in an LRU cache.
type Archives struct {
	src    Source
	opened *lru.Cache[string, *sevenzip.Reader]
}

// NewArchives wraps src. size bounds the number of open archives.
func NewArchives(src Source, size int) (*Archives, error) {
	if size <= 0 {
		size = 4
	}
	cache, err := lru.New[string, *sevenzip.Reader](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive cache: %w", err)
	}
	return &Archives{src: src, opened: cache}, nil
}

func (a *Archives) open(ctx context.Context, archive string) (*sevenzip.Reader, error) {
	if r, ok := a.opened.Get(archive); ok {
		return r, nil
	}
	data, err := a.src.ReadFile(ctx, archive)
	if err != nil {
		return nil, err
	}
	r, err := sevenzip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open 7z archive %s: %w", archive, err)
	}
	a.opened.Add(archive, r)
	return r, nil
}

// ReadFile implements Source for archive member paths.
func (a *Archives) ReadFile(ctx context.Context, p string) ([]byte, error) {
	archive, member, ok := SplitArchivePath(p)
	if !ok {
		return nil, fmt.Errorf("not an archive path: %s", p)
	}
	r, err := a.open(ctx, archive)
	if err != nil {
		return nil, err
	}
	for _, f := range r.File {
		if f.Name != member {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open %s in archive: %w", member, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("failed to extract %s: %w", member, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("failed to find %s in %s: %w", member, archive, ErrNotFound)
}

// List implements Source for directories inside an archive.
func (a *Archives) List(ctx context.Context, dir string) ([]string, error) {
	archive, member, ok := SplitArchivePath(strings.TrimSuffix(dir, "/") + "/")
	if !ok {
		return nil, fmt.Errorf("not an archive path: %s", dir)
	}
	r, err := a.open(ctx, archive)
	if err != nil {
		return nil, err
	}
	member = strings.Trim(member, "/")
	var files []string
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		d := path.Dir(f.Name)
		if d == "." {
			d = ""
		}
		if d == member {
			files = append(files, path.Base(f.Name))
		}
	}
	return files, nil
}
