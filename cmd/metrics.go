package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/cwbudde/srviewer/internal/metrics"
	"github.com/cwbudde/srviewer/internal/store"
	"github.com/spf13/cobra"
)

var (
	metricsFlags  viewerFlags
	metricsJSONL  string
	metricsAppend bool
	metricsAll    bool
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Compute PSNR and SSIM of every candidate against the ground truth",
	Long: `Computes PSNR and SSIM for every visible candidate pane of the current
file (or of every file with --all) and prints them as a table. --jsonl also
writes one JSON line per pane.`,
	RunE: runMetrics,
}

func init() {
	metricsFlags.register(metricsCmd)
	metricsCmd.Flags().StringVar(&metricsJSONL, "jsonl", "", "Write results to this JSONL file")
	metricsCmd.Flags().BoolVar(&metricsAppend, "append", false, "Append to the JSONL file instead of truncating it")
	metricsCmd.Flags().BoolVar(&metricsAll, "all", false, "Compute metrics for every file, not just the initial one")
	rootCmd.AddCommand(metricsCmd)
}

func runMetrics(cmd *cobra.Command, args []string) error {
	cfg, err := metricsFlags.load(cmd)
	if err != nil {
		return err
	}
	memo, closeMemo, err := metricsFlags.openMemo()
	if err != nil {
		return err
	}
	defer closeMemo()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	sess, err := openSession(ctx, cfg, memo)
	if err != nil {
		return err
	}
	defer sess.Close()

	var log *store.MetricLogWriter
	if metricsJSONL != "" {
		if log, err = store.NewMetricLogWriter(metricsJSONL, metricsAppend); err != nil {
			return err
		}
		defer log.Close()
	}

	positions := []int{sess.Position()}
	if metricsAll {
		positions = make([]int, sess.Len())
		for i := range positions {
			positions[i] = i
		}
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "POS\tFILE\tLABEL\tPSNR\tSSIM")
	fmt.Fprintln(w, "---\t----\t-----\t----\t----")

	start := time.Now()
	for _, pos := range positions {
		panes, err := sess.Metrics(ctx, pos)
		if err != nil {
			return fmt.Errorf("failed to compute metrics: %w", err)
		}
		file := sess.FileAt(pos)
		for _, p := range panes {
			if p.GroundTruth {
				continue
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", pos, file, p.Label, formatValue(p.PSNR), formatValue(p.SSIM))
			if log != nil {
				entry := store.MetricEntry{
					Position:  pos,
					File:      file,
					Label:     p.Label,
					Path:      p.Path,
					PSNR:      p.PSNR,
					SSIM:      p.SSIM,
					Timestamp: time.Now(),
				}
				if err := log.Write(entry); err != nil {
					return err
				}
			}
		}
	}
	w.Flush()

	slog.Info("Metrics computed", "files", len(positions), "elapsed", time.Since(start))
	if log != nil {
		fmt.Fprintf(os.Stderr, "Wrote %s\n", log.Path())
	}
	return nil
}

func formatValue(v *metrics.Value) string {
	if v == nil {
		return "-"
	}
	return v.String()
}
