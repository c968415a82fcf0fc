// Package config loads the viewer configuration file and applies command
// line overrides on top of it.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cwbudde/srviewer/internal/source"
	"github.com/cwbudde/srviewer/internal/target"
	"github.com/cwbudde/srviewer/internal/zoom"
)

// Config is one viewer configuration. Field names follow the JSON keys of
// existing configuration files.
type Config struct {
	Title   string            `json:"title"`
	Type    string            `json:"type"`
	Targets []target.Target   `json:"targets"`
	Params  map[string]string `json:"params,omitempty"`
	Source  source.Config     `json:"source"`

	// Indexes restricts and orders navigation; nil means every base file.
	Indexes []int `json:"indexes,omitempty"`
	// Index is the initial underlying file offset.
	Index       int   `json:"index"`
	PreloadSize int   `json:"preloadSize"`
	Hides       []int `json:"hides,omitempty"`

	SSIMWindowSize int `json:"SSIMWindowSize"`
	PSNRGridWidth  int `json:"PSNRGridWidth"`
	PSNRGridHeight int `json:"PSNRGridHeight"`
	// PSNRGridSize, when positive, overrides both grid dimensions.
	PSNRGridSize int `json:"PSNRGridSize,omitempty"`

	ZoomMode            bool    `json:"zoomMode"`
	ZoomAreaWidth       int     `json:"zoomAreaWidth"`
	ZoomAreaHeight      int     `json:"zoomAreaHeight"`
	ZoomAreaWidthRatio  float64 `json:"zoomAreaWidthRatio"`
	ZoomAreaHeightRatio float64 `json:"zoomAreaHeightRatio"`
	ZoomAreaColor       string  `json:"zoomAreaColor"`
	ZoomAlpha           float64 `json:"zoomAlpha"`
	ZoomAreaThickness   int     `json:"zoomAreaThickness"`
	ZoomAreaDelta       int     `json:"zoomAreaDelta"`

	DiffIndex             int    `json:"diffIndex"`
	ShowingPSNRVisualizer bool   `json:"showingPSNRVisualizer"`
	Crop                  string `json:"crop,omitempty"`

	UpdateDelayMs int    `json:"updateDelayMs"`
	CachePolicy   string `json:"cachePolicy"`
	CacheCapacity int    `json:"cacheCapacity,omitempty"`
	ConfigHelp    string `json:"configHelp,omitempty"`
}

// Default returns a configuration with every documented default set and no
// targets.
func Default() *Config {
	z := zoom.DefaultState()
	return &Config{
		Title:               "Super-Resolution Viewer",
		Type:                "default",
		PreloadSize:         3,
		SSIMWindowSize:      11,
		PSNRGridWidth:       5,
		PSNRGridHeight:      5,
		ZoomAreaWidth:       z.AreaWidth,
		ZoomAreaHeight:      z.AreaHeight,
		ZoomAreaWidthRatio:  z.WidthRatio,
		ZoomAreaHeightRatio: z.HeightRatio,
		ZoomAreaColor:       z.Color,
		ZoomAlpha:           z.Alpha,
		ZoomAreaThickness:   z.Thickness,
		ZoomAreaDelta:       z.Delta,
		DiffIndex:           -1,
		UpdateDelayMs:       300,
		CachePolicy:         "unbounded",
	}
}

// Load reads a JSON configuration file over the defaults and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes JSON configuration data over the defaults and validates it.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	if c.PSNRGridSize > 0 {
		c.PSNRGridWidth = c.PSNRGridSize
		c.PSNRGridHeight = c.PSNRGridSize
	}
	c.ZoomAreaColor = target.NormalizeColor(c.ZoomAreaColor)
	if c.Crop != "" {
		if region, err := zoom.ParseCropToken(c.Crop); err == nil {
			c.DiffIndex = region.DiffIndex
			c.ShowingPSNRVisualizer = region.ShowMetricOverlay
		}
	}
}

// ValidationError reports an invalid configuration field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}

// Validate checks field ranges. It does not touch the filesystem.
func (c *Config) Validate() error {
	if len(c.Targets) == 0 {
		return &ValidationError{Field: "targets", Reason: "cannot be empty"}
	}
	for i, t := range c.Targets {
		if t.Path == "" {
			return &ValidationError{Field: fmt.Sprintf("targets[%d].path", i), Reason: "cannot be empty"}
		}
	}
	if _, err := target.LookupMapper(c.Type); err != nil {
		return &ValidationError{Field: "type", Reason: "must be one of " + strings.Join(target.MapperNames(), ", ")}
	}
	if c.PreloadSize < 0 {
		return &ValidationError{Field: "preloadSize", Reason: "cannot be negative"}
	}
	if c.SSIMWindowSize <= 0 {
		return &ValidationError{Field: "SSIMWindowSize", Reason: "must be positive"}
	}
	if c.PSNRGridWidth <= 0 || c.PSNRGridHeight <= 0 {
		return &ValidationError{Field: "PSNRGridWidth/PSNRGridHeight", Reason: "must be positive"}
	}
	if c.ZoomAreaWidth <= 0 || c.ZoomAreaHeight <= 0 {
		return &ValidationError{Field: "zoomAreaWidth/zoomAreaHeight", Reason: "must be positive"}
	}
	if c.ZoomAreaWidthRatio <= 0 || c.ZoomAreaWidthRatio > 1 || c.ZoomAreaHeightRatio <= 0 || c.ZoomAreaHeightRatio > 1 {
		return &ValidationError{Field: "zoomAreaWidthRatio/zoomAreaHeightRatio", Reason: "must be in (0, 1]"}
	}
	if c.ZoomAlpha < 0 || c.ZoomAlpha > 1 {
		return &ValidationError{Field: "zoomAlpha", Reason: "must be in [0, 1]"}
	}
	if c.ZoomAreaThickness <= 0 {
		return &ValidationError{Field: "zoomAreaThickness", Reason: "must be positive"}
	}
	if c.ZoomAreaDelta <= 0 {
		return &ValidationError{Field: "zoomAreaDelta", Reason: "must be positive"}
	}
	if c.DiffIndex < -1 {
		return &ValidationError{Field: "diffIndex", Reason: "must be -1 or a pane index"}
	}
	if c.UpdateDelayMs < 0 {
		return &ValidationError{Field: "updateDelayMs", Reason: "cannot be negative"}
	}
	switch c.CachePolicy {
	case "", "unbounded":
	case "lru":
		if c.CacheCapacity <= 0 {
			return &ValidationError{Field: "cacheCapacity", Reason: "must be positive for the lru policy"}
		}
	default:
		return &ValidationError{Field: "cachePolicy", Reason: "must be unbounded or lru"}
	}
	if c.Crop != "" {
		if _, err := zoom.ParseCropToken(c.Crop); err != nil {
			return &ValidationError{Field: "crop", Reason: err.Error()}
		}
	}
	return nil
}

// ZoomState converts the zoom fields into an initial zoom.State.
func (c *Config) ZoomState() zoom.State {
	return zoom.State{
		AreaWidth:   c.ZoomAreaWidth,
		AreaHeight:  c.ZoomAreaHeight,
		WidthRatio:  c.ZoomAreaWidthRatio,
		HeightRatio: c.ZoomAreaHeightRatio,
		Color:       c.ZoomAreaColor,
		Alpha:       c.ZoomAlpha,
		Thickness:   c.ZoomAreaThickness,
		Delta:       c.ZoomAreaDelta,
	}
}

// UpdateDelay is the debounce window before the composited pass.
func (c *Config) UpdateDelay() time.Duration {
	return time.Duration(c.UpdateDelayMs) * time.Millisecond
}

// Overrides carries command line values that take precedence over the file.
// Nil pointers and empty values leave the file value in place.
type Overrides struct {
	Params    map[string]string
	Index     *int
	Indexes   []int
	Hides     []int
	Crop      string
	DiffIndex *int
	Preload   *int
	Title     string
	ZoomMode  *bool
}

// Apply merges o into c and re-validates.
func (c *Config) Apply(o Overrides) error {
	if len(o.Params) > 0 {
		if c.Params == nil {
			c.Params = make(map[string]string, len(o.Params))
		}
		for k, v := range o.Params {
			c.Params[k] = v
		}
	}
	if o.Index != nil {
		c.Index = *o.Index
	}
	if o.Indexes != nil {
		c.Indexes = o.Indexes
	}
	if o.Hides != nil {
		c.Hides = o.Hides
	}
	if o.DiffIndex != nil {
		c.DiffIndex = *o.DiffIndex
	}
	if o.Preload != nil {
		c.PreloadSize = *o.Preload
	}
	if o.Title != "" {
		c.Title = o.Title
	}
	if o.ZoomMode != nil {
		c.ZoomMode = *o.ZoomMode
	}
	if o.Crop != "" {
		c.Crop = o.Crop
	}
	c.normalize()
	return c.Validate()
}

// ParseIndexList parses "1.5,9*12" style lists; '.', ',' and '*' all
// separate entries.
func ParseIndexList(s string) ([]int, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == '.' || r == ',' || r == '*'
	})
	out := make([]int, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, fmt.Errorf("invalid index %q: %w", f, err)
		}
		out = append(out, n)
	}
	return out, nil
}

// ParseParams parses key=value pairs.
func ParseParams(pairs []string) (map[string]string, error) {
	params := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid param %q, expected key=value", p)
		}
		params[k] = v
	}
	return params, nil
}
