package target

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Target is one comparable image set. Targets are normalized once by
// NewRegistry and are read-only afterwards.
type Target struct {
	Path                 string   `json:"path"`
	Label                string   `json:"label,omitempty"`
	LabelColor           string   `json:"labelColor,omitempty"`
	LabelBackgroundColor string   `json:"labelBackgroundColor,omitempty"`
	GroundTruth          bool     `json:"groundTruth,omitempty"`
	Hide                 bool     `json:"hide,omitempty"`
	Ignore               bool     `json:"ignore,omitempty"`
	Files                []string `json:"files,omitempty"`
	Suffix               string   `json:"suffix,omitempty"`

	// DisplayLabel is Label centre-padded to the longest label in the registry.
	DisplayLabel string `json:"-"`
}

// Lister enumerates the file names stored under a target path.
type Lister interface {
	List(ctx context.Context, dir string) ([]string, error)
}

// Options carries the parameters that shape registry normalization.
type Options struct {
	Params map[string]string // path template variables
	Hides  []int             // indexes (after filtering) of targets to hide
	Mapper Mapper
}

// ErrNoBaseTarget is returned when no usable target remains after
// normalization.
var ErrNoBaseTarget = errors.New("failed to load base target")

// Registry holds the normalized targets and the path convention used to
// address their files.
type Registry struct {
	targets []*Target
	base    *Target
	mapper  Mapper
}

// NewRegistry normalizes the configured targets: template substitution,
// mapper pre-hook, file listing, label defaults, base selection, natural sort
// of the base file list, mapper post-hook and hide flags.
func NewRegistry(ctx context.Context, configured []Target, opts Options, lister Lister) (*Registry, error) {
	mapper := opts.Mapper
	if mapper == nil {
		mapper = DefaultMapper{}
	}

	all := make([]*Target, 0, len(configured))
	for i := range configured {
		t := configured[i]
		t.Files = append([]string(nil), configured[i].Files...)
		path, err := SubstituteParams(t.Path, opts.Params)
		if err != nil {
			return nil, err
		}
		t.Path = path
		all = append(all, &t)
	}
	for i, t := range all {
		all[i] = mapper.Before(t, i, all)
	}

	for _, t := range all {
		if t.Ignore || len(t.Files) > 0 {
			continue
		}
		if lister == nil {
			continue
		}
		files, err := lister.List(ctx, t.Path)
		if err != nil {
			// An unreadable directory behaves like an empty one and the target is dropped.
			slog.Warn("Failed to list target files", "path", t.Path, "error", err)
			continue
		}
		t.Files = files
	}

	kept := all[:0]
	for _, t := range all {
		if t.Label == "" {
			t.Label = t.Path
		}
		if t.Ignore || len(t.Files) == 0 {
			slog.Debug("Dropping target", "label", t.Label, "ignore", t.Ignore, "files", len(t.Files))
			continue
		}
		kept = append(kept, t)
	}
	all = kept

	applyLabelStyle(all)

	r := &Registry{targets: all, mapper: mapper}
	for _, t := range all {
		if t.GroundTruth {
			r.base = t
			break
		}
	}
	if r.base == nil && len(all) > 0 {
		r.base = all[0]
	}
	if r.base == nil {
		return nil, ErrNoBaseTarget
	}
	SortNatural(r.base.Files)

	for i, t := range r.targets {
		r.targets[i] = mapper.After(t, i, r.targets, r.base)
	}
	for _, h := range opts.Hides {
		if h >= 0 && h < len(r.targets) {
			r.targets[h].Hide = true
		}
	}

	slog.Info("Targets loaded", "count", len(r.targets), "base", r.base.Label, "ground_truth", r.base.GroundTruth, "files", len(r.base.Files))
	return r, nil
}

// Targets returns every target in display order, hidden ones included.
func (r *Registry) Targets() []*Target {
	return r.targets
}

// Visible returns the targets that are not hidden.
func (r *Registry) Visible() []*Target {
	visible := make([]*Target, 0, len(r.targets))
	for _, t := range r.targets {
		if !t.Hide {
			visible = append(visible, t)
		}
	}
	return visible
}

// Base is the ground-truth target if one is configured, else the first target.
func (r *Registry) Base() *Target {
	return r.base
}

// HasGroundTruth reports whether metrics can be computed at all.
func (r *Registry) HasGroundTruth() bool {
	return r.base != nil && r.base.GroundTruth
}

// Resolve maps a target and a base file name to the path used as cache key.
func (r *Registry) Resolve(t *Target, file string) string {
	return r.mapper.Resolve(t, file)
}

// ResolutionError reports a path template variable with no value.
type ResolutionError struct {
	Path     string
	Variable string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("unresolved variable {%s} in target path %q", e.Variable, e.Path)
}

// SubstituteParams replaces {name} placeholders with params[name]. Escaped
// braces (\{ and \}) are emitted literally. A placeholder without a value is a
// ResolutionError.
func SubstituteParams(path string, params map[string]string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(path); i++ {
		c := path[i]
		switch {
		case c == '\\' && i+1 < len(path) && (path[i+1] == '{' || path[i+1] == '}'):
			b.WriteByte(path[i+1])
			i++
		case c == '{':
			end := strings.IndexByte(path[i+1:], '}')
			if end < 0 {
				b.WriteString(path[i:])
				return b.String(), nil
			}
			name := path[i+1 : i+1+end]
			value, ok := params[name]
			if !ok {
				return "", &ResolutionError{Path: path, Variable: name}
			}
			b.WriteString(value)
			i += end + 1
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}
