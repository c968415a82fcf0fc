package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cwbudde/srviewer/internal/store"
	"github.com/cwbudde/srviewer/internal/viewer"
	"github.com/spf13/cobra"
)

var (
	cropFlags    viewerFlags
	cropOut      string
	cropSave     bool
	cropDataDir  string
	cropOriginal bool
	cropScale    int
	cropTimeout  time.Duration
)

var cropCmd = &cobra.Command{
	Use:   "crop",
	Short: "Export a crop of every pane as a zip bundle",
	Long: `Renders the file selected by --index with the diff and overlay flags of
the crop token, crops every visible pane and writes a zip bundle named
"[title] file_token.zip". The token comes from --crop or the configuration.`,
	RunE: runCrop,
}

func init() {
	cropFlags.register(cropCmd)
	cropCmd.Flags().StringVarP(&cropOut, "out", "o", "", "Output path or directory (default: bundle name in the working directory)")
	cropCmd.Flags().BoolVar(&cropSave, "save", false, "Store the bundle under --data-dir instead of writing a file")
	cropCmd.Flags().StringVar(&cropDataDir, "data-dir", "./data", "Export store directory for --save")
	cropCmd.Flags().BoolVar(&cropOriginal, "original", false, "Also include the uncropped images")
	cropCmd.Flags().IntVar(&cropScale, "scale", 1, "Upscale crops by this integer factor")
	cropCmd.Flags().DurationVar(&cropTimeout, "timeout", 2*time.Minute, "Give up if rendering takes longer")
	rootCmd.AddCommand(cropCmd)
}

func runCrop(cmd *cobra.Command, args []string) error {
	cfg, err := cropFlags.load(cmd)
	if err != nil {
		return err
	}
	if cfg.Crop == "" {
		return fmt.Errorf("a crop token is required (--crop or \"crop\" in the config)")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cropTimeout)
	defer cancel()
	sess, err := openSession(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer sess.Close()

	sess.Update(0)
	bundle, err := sess.ExportCrop(ctx, sess.InitialCrop(), viewer.ExportOptions{
		IncludeOriginal: cropOriginal,
		Scale:           cropScale,
	})
	if err != nil {
		return err
	}

	if cropSave {
		exports, err := store.NewFSStore(cropDataDir)
		if err != nil {
			return fmt.Errorf("failed to create export store: %w", err)
		}
		record := store.NewExportRecord(bundle.Name, sess.Title(), sess.File(), bundle.CropToken, bundle.Files, int64(len(bundle.Data)))
		if err := exports.SaveExport(record, bundle.Data); err != nil {
			return err
		}
		slog.Info("Crop exported", "export_id", record.ID, "name", record.Name)
		fmt.Fprintf(cmd.OutOrStdout(), "Saved %s as %s\n", record.Name, record.ID)
		return nil
	}

	path := outputPath(cropOut, bundle.Name)
	if err := os.WriteFile(path, bundle.Data, 0644); err != nil {
		return fmt.Errorf("failed to write bundle: %w", err)
	}
	slog.Info("Crop exported", "path", path, "entries", len(bundle.Files))
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d entries)\n", path, len(bundle.Files))
	return nil
}

// outputPath resolves --out: empty means name in the working directory, an
// existing directory means name inside it.
func outputPath(out, name string) string {
	if out == "" {
		return name
	}
	if info, err := os.Stat(out); err == nil && info.IsDir() {
		return filepath.Join(out, name)
	}
	return out
}
