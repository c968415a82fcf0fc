package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cwbudde/srviewer/internal/config"
	"github.com/cwbudde/srviewer/internal/metrics"
	"github.com/cwbudde/srviewer/internal/source"
	"github.com/cwbudde/srviewer/internal/store"
	"github.com/cwbudde/srviewer/internal/viewer"
	"github.com/spf13/cobra"
)

// viewerFlags are the command line equivalents of the viewer URL
// parameters. They override values from the configuration file.
type viewerFlags struct {
	configPath string
	params     []string
	index      int
	indexes    string
	hides      string
	crop       string
	diffIndex  int
	preload    int
	title      string
	zoomMode   bool
	metricDB   string
}

func (f *viewerFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.configPath, "config", "", "Viewer configuration file (JSON)")
	fs.StringArrayVar(&f.params, "param", nil, "Path template variable as key=value (repeatable)")
	fs.IntVar(&f.index, "index", 0, "Initial file index")
	fs.StringVar(&f.indexes, "indexes", "", "Restrict navigation to these file indexes, e.g. 1,5,9")
	fs.StringVar(&f.hides, "hides", "", "Target indexes to hide, e.g. 2,3")
	fs.StringVar(&f.crop, "crop", "", "Crop token, e.g. x10y20w64h64d1p1")
	fs.IntVar(&f.diffIndex, "diff-index", -1, "Pane used as diff baseline (-1 for none)")
	fs.IntVar(&f.preload, "preload", 3, "Neighbouring files to preload on each side")
	fs.StringVar(&f.title, "title", "", "Override the configuration title")
	fs.BoolVar(&f.zoomMode, "zoom-mode", false, "Start in zoom mode")
	fs.StringVar(&f.metricDB, "metric-db", "", "SQLite file that memoizes metric results across runs")
}

// overrides collects the flags the user set explicitly.
func (f *viewerFlags) overrides(cmd *cobra.Command) (config.Overrides, error) {
	var o config.Overrides
	var err error
	changed := cmd.Flags().Changed

	if len(f.params) > 0 {
		if o.Params, err = config.ParseParams(f.params); err != nil {
			return o, err
		}
	}
	if changed("index") {
		o.Index = &f.index
	}
	if f.indexes != "" {
		if o.Indexes, err = config.ParseIndexList(f.indexes); err != nil {
			return o, fmt.Errorf("failed to parse --indexes: %w", err)
		}
	}
	if f.hides != "" {
		if o.Hides, err = config.ParseIndexList(f.hides); err != nil {
			return o, fmt.Errorf("failed to parse --hides: %w", err)
		}
	}
	if changed("diff-index") {
		o.DiffIndex = &f.diffIndex
	}
	if changed("preload") {
		o.Preload = &f.preload
	}
	if changed("zoom-mode") {
		o.ZoomMode = &f.zoomMode
	}
	o.Crop = f.crop
	o.Title = f.title
	return o, nil
}

// load reads the configuration file and applies the flag overrides.
func (f *viewerFlags) load(cmd *cobra.Command) (*config.Config, error) {
	if f.configPath == "" {
		return nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	o, err := f.overrides(cmd)
	if err != nil {
		return nil, err
	}
	if err := cfg.Apply(o); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openMemo opens the metric database when --metric-db is set. The returned
// close function is never nil.
func (f *viewerFlags) openMemo() (metrics.Memo, func(), error) {
	if f.metricDB == "" {
		return nil, func() {}, nil
	}
	db, err := store.OpenMetricDB(f.metricDB)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open metric database: %w", err)
	}
	return db, func() { db.Close() }, nil
}

// openSession builds a viewer session for cfg reading through a source
// router. The caller closes the session.
func openSession(ctx context.Context, cfg *config.Config, memo metrics.Memo) (*viewer.Session, error) {
	router, err := source.NewRouter(cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to create source: %w", err)
	}
	sess, err := viewer.FromConfig(ctx, cfg, router, memo, slog.Default())
	if err != nil {
		return nil, err
	}
	slog.Info("Session opened", "title", sess.Title(), "files", sess.Len(), "panes", len(sess.Registry().Visible()))
	return sess, nil
}
