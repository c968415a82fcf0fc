package target

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// Mapper is the per-dataset path naming convention. Before runs on every
// target before file listing, After runs once the base target is known.
type Mapper interface {
	Resolve(t *Target, file string) string
	Before(t *Target, index int, all []*Target) *Target
	After(t *Target, index int, all []*Target, base *Target) *Target
}

var mappers = map[string]Mapper{
	"default":          DefaultMapper{},
	"basicsr-features": DefaultMapper{},
	"basicsr-results":  BasicSRResultsMapper{},
}

// LookupMapper returns the mapper registered under name. An empty name
// selects the default mapper.
func LookupMapper(name string) (Mapper, error) {
	if name == "" {
		name = "default"
	}
	m, ok := mappers[name]
	if !ok {
		return nil, fmt.Errorf("unknown mapper type: %s", name)
	}
	return m, nil
}

// MapperNames lists registered mapper names.
func MapperNames() []string {
	names := make([]string, 0, len(mappers))
	for name := range mappers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultMapper resolves <path>/<file>.
type DefaultMapper struct{}

func (DefaultMapper) Resolve(t *Target, file string) string {
	return joinPath(t.Path, file)
}

func (DefaultMapper) Before(t *Target, _ int, _ []*Target) *Target { return t }

func (DefaultMapper) After(t *Target, _ int, _ []*Target, _ *Target) *Target { return t }

// BasicSRResultsMapper follows the BasicSR results layout, where every model
// writes <name><suffix>.<ext> next to a ground-truth <name>.<ext>.
type BasicSRResultsMapper struct{}

var groundTruthRewrites = []struct{ search, replacement string }{
	{"Manga109", "manga109"},
	{"Urban100", "urban100"},
	{"datasets/DIV2K100/GTmod12", "datasets/DIV2K/DIV2K_valid_HR"},
}

func (BasicSRResultsMapper) Resolve(t *Target, file string) string {
	if t.Suffix != "" {
		stem, ext := splitExt(file)
		file = stem + t.Suffix + "." + ext
	}
	return joinPath(t.Path, file)
}

func (BasicSRResultsMapper) Before(t *Target, _ int, _ []*Target) *Target {
	if t.GroundTruth {
		for _, rw := range groundTruthRewrites {
			t.Path = strings.ReplaceAll(t.Path, rw.search, rw.replacement)
		}
	}
	return t
}

func (BasicSRResultsMapper) After(t *Target, _ int, _ []*Target, base *Target) *Target {
	if t.GroundTruth || base == nil || len(base.Files) == 0 {
		return t
	}
	gtName, gtExt := splitExt(base.Files[0])
	var match string
	for _, f := range t.Files {
		if strings.HasPrefix(f, gtName) && strings.HasSuffix(f, "."+gtExt) {
			match = f
			break
		}
	}
	if match == "" {
		slog.Warn("No file matches ground truth name", "target", t.Label, "ground_truth", base.Files[0])
		return t
	}
	rest := match[len(gtName):]
	gtName2 := gtName + strings.SplitN(rest, "_", 2)[0]
	tail := substring(match, len(gtName2)+1, len(match)-(len(gtExt)+1))
	if gtName == gtName2 {
		t.Suffix = "_" + tail
	} else {
		t.Suffix = gtName2[len(gtName):] + "_" + tail
	}
	return t
}

func joinPath(dir, file string) string {
	if dir == "" {
		return file
	}
	return strings.TrimSuffix(dir, "/") + "/" + file
}

func splitExt(file string) (stem, ext string) {
	dot := strings.LastIndexByte(file, '.')
	if dot < 0 {
		return file, ""
	}
	return file[:dot], file[dot+1:]
}

// substring clamps both bounds and returns "" for an inverted range.
func substring(s string, start, end int) string {
	start = max(0, min(start, len(s)))
	end = max(0, min(end, len(s)))
	if start >= end {
		return ""
	}
	return s[start:end]
}
