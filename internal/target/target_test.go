package target

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
)

// mapLister serves file listings from a map and fails for unknown paths.
type mapLister map[string][]string

func (m mapLister) List(_ context.Context, dir string) ([]string, error) {
	files, ok := m[dir]
	if !ok {
		return nil, fmt.Errorf("no such directory: %s", dir)
	}
	return append([]string(nil), files...), nil
}

func TestSubstituteParams(t *testing.T) {
	params := map[string]string{"scale": "4", "dataset": "Set5"}

	got, err := SubstituteParams("results/{dataset}/x{scale}", params)
	if err != nil {
		t.Fatalf("SubstituteParams failed: %v", err)
	}
	if got != "results/Set5/x4" {
		t.Errorf("Expected results/Set5/x4, got %s", got)
	}

	got, err = SubstituteParams(`raw/\{dataset\}`, params)
	if err != nil {
		t.Fatalf("SubstituteParams failed: %v", err)
	}
	if got != "raw/{dataset}" {
		t.Errorf("Expected escaped braces to survive, got %s", got)
	}
}

func TestSubstituteParamsUnresolved(t *testing.T) {
	_, err := SubstituteParams("results/{model}", map[string]string{})
	var resErr *ResolutionError
	if !errors.As(err, &resErr) {
		t.Fatalf("Expected ResolutionError, got %v", err)
	}
	if resErr.Variable != "model" {
		t.Errorf("Expected variable model, got %s", resErr.Variable)
	}
}

func TestNewRegistryBaseSelection(t *testing.T) {
	lister := mapLister{
		"a":  {"img10.png", "img2.png", "img1.png"},
		"gt": {"img10.png", "img2.png", "img1.png"},
	}
	configured := []Target{
		{Path: "a", Label: "model"},
		{Path: "gt", Label: "hr", GroundTruth: true},
	}

	reg, err := NewRegistry(context.Background(), configured, Options{}, lister)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	if reg.Base().Path != "gt" {
		t.Errorf("Expected ground-truth base, got %s", reg.Base().Path)
	}
	if !reg.HasGroundTruth() {
		t.Error("Expected HasGroundTruth to be true")
	}

	want := []string{"img1.png", "img2.png", "img10.png"}
	if !reflect.DeepEqual(reg.Base().Files, want) {
		t.Errorf("Expected naturally sorted files %v, got %v", want, reg.Base().Files)
	}
}

func TestNewRegistryFallbackBase(t *testing.T) {
	lister := mapLister{"a": {"1.png"}, "b": {"1.png"}}
	reg, err := NewRegistry(context.Background(), []Target{{Path: "a"}, {Path: "b"}}, Options{}, lister)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	if reg.Base().Path != "a" {
		t.Errorf("Expected first target as base, got %s", reg.Base().Path)
	}
	if reg.HasGroundTruth() {
		t.Error("Expected no ground truth")
	}
	if reg.Base().Label != "a" {
		t.Errorf("Expected label to default to path, got %s", reg.Base().Label)
	}
}

func TestNewRegistryDropsEmptyAndIgnored(t *testing.T) {
	lister := mapLister{"a": {"1.png"}, "empty": {}, "ignored": {"1.png"}}
	configured := []Target{
		{Path: "missing"},
		{Path: "empty"},
		{Path: "ignored", Ignore: true},
		{Path: "a"},
	}

	reg, err := NewRegistry(context.Background(), configured, Options{Hides: []int{0}}, lister)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	if len(reg.Targets()) != 1 {
		t.Fatalf("Expected 1 target, got %d", len(reg.Targets()))
	}
	if !reg.Targets()[0].Hide {
		t.Error("Expected hide index to apply to the filtered list")
	}
	if len(reg.Visible()) != 0 {
		t.Errorf("Expected no visible targets, got %d", len(reg.Visible()))
	}
}

func TestNewRegistryNoTargets(t *testing.T) {
	_, err := NewRegistry(context.Background(), []Target{{Path: "missing"}}, Options{}, mapLister{})
	if !errors.Is(err, ErrNoBaseTarget) {
		t.Fatalf("Expected ErrNoBaseTarget, got %v", err)
	}
}

func TestNewRegistryExplicitFiles(t *testing.T) {
	reg, err := NewRegistry(context.Background(), []Target{{Path: "a", Files: []string{"b.png", "a.png"}}}, Options{}, nil)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	if got := reg.Base().Files; !reflect.DeepEqual(got, []string{"a.png", "b.png"}) {
		t.Errorf("Expected sorted explicit files, got %v", got)
	}
	if got := reg.Resolve(reg.Base(), "a.png"); got != "a/a.png" {
		t.Errorf("Expected a/a.png, got %s", got)
	}
}

func TestBasicSRResultsMapper(t *testing.T) {
	lister := mapLister{
		"datasets/urban100/GT":       {"img_001.png", "img_002.png"},
		"results/SwinIR/visual/url":  {"img_001_SwinIR.png", "img_002_SwinIR.png"},
		"results/EDSR/visual/url100": {"img_001x4_EDSR.png"},
	}
	configured := []Target{
		{Path: "datasets/Urban100/GT", GroundTruth: true},
		{Path: "results/SwinIR/visual/url"},
		{Path: "results/EDSR/visual/url100"},
	}
	mapper, err := LookupMapper("basicsr-results")
	if err != nil {
		t.Fatalf("LookupMapper failed: %v", err)
	}

	reg, err := NewRegistry(context.Background(), configured, Options{Mapper: mapper}, lister)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	base := reg.Base()
	if base.Path != "datasets/urban100/GT" {
		t.Errorf("Expected rewritten ground-truth path, got %s", base.Path)
	}

	tests := []struct {
		target *Target
		want   string
	}{
		{reg.Targets()[1], "results/SwinIR/visual/url/img_001_SwinIR.png"},
		{reg.Targets()[2], "results/EDSR/visual/url100/img_001x4_EDSR.png"},
	}
	for _, tt := range tests {
		if got := reg.Resolve(tt.target, "img_001.png"); got != tt.want {
			t.Errorf("Expected %s, got %s (suffix %q)", tt.want, got, tt.target.Suffix)
		}
	}
}

func TestLookupMapperUnknown(t *testing.T) {
	if _, err := LookupMapper("nope"); err == nil {
		t.Fatal("Expected error for unknown mapper")
	}
	if m, err := LookupMapper(""); err != nil || m == nil {
		t.Fatalf("Expected default mapper, got %v, %v", m, err)
	}
}

func TestNaturalLess(t *testing.T) {
	names := []string{"img10.png", "img2.png", "img1.png", "a.png", "img02.png"}
	SortNatural(names)
	want := []string{"a.png", "img1.png", "img2.png", "img02.png", "img10.png"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("Expected %v, got %v", want, names)
	}
}

func TestLabelStyle(t *testing.T) {
	if got := NormalizeColor("fff"); got != "#fff" {
		t.Errorf("Expected #fff, got %s", got)
	}
	if got := NormalizeColor("red"); got != "red" {
		t.Errorf("Expected red unchanged, got %s", got)
	}
	if got := ContrastColor("#ffffff"); got != "black" {
		t.Errorf("Expected black on white, got %s", got)
	}
	if got := ContrastColor("000"); got != "white" {
		t.Errorf("Expected white on black, got %s", got)
	}
	if ColorForString("SwinIR") != ColorForString("SwinIR") {
		t.Error("Expected stable colour for the same label")
	}
	if got := CenterPad("ab", 5); got != " ab  " {
		t.Errorf("Expected %q, got %q", " ab  ", got)
	}
}
