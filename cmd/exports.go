package main

import (
	"fmt"
	"log/slog"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/cwbudde/srviewer/internal/store"
	"github.com/spf13/cobra"
)

var (
	exportsDataDir string
	keepLast       int
	olderThanDays  int
	forceClean     bool
)

var exportsCmd = &cobra.Command{
	Use:   "exports",
	Short: "Manage stored crop exports",
	Long:  `List and clean crop bundles stored by the server or by "crop --save".`,
}

var listExportsCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored exports",
	Long:  `Display all stored exports with ID, name, crop token, entry count and size.`,
	RunE:  runListExports,
}

var cleanExportsCmd = &cobra.Command{
	Use:   "clean",
	Short: "Delete old exports",
	Long: `Delete exports based on a retention policy.
Keep the newest N exports, delete exports older than N days, or both.`,
	RunE: runCleanExports,
}

func init() {
	rootCmd.AddCommand(exportsCmd)
	exportsCmd.AddCommand(listExportsCmd)
	exportsCmd.AddCommand(cleanExportsCmd)

	exportsCmd.PersistentFlags().StringVar(&exportsDataDir, "data-dir", "./data", "Export store directory")

	cleanExportsCmd.Flags().IntVar(&keepLast, "keep-last", 0, "Keep only the newest N exports (0 = keep all)")
	cleanExportsCmd.Flags().IntVar(&olderThanDays, "older-than", 0, "Delete exports older than N days (0 = no age limit)")
	cleanExportsCmd.Flags().BoolVarP(&forceClean, "force", "f", false, "Skip confirmation prompt")
}

func runListExports(cmd *cobra.Command, args []string) error {
	exportStore, err := store.NewFSStore(exportsDataDir)
	if err != nil {
		return fmt.Errorf("failed to create export store: %w", err)
	}

	infos, err := exportStore.ListExports()
	if err != nil {
		return fmt.Errorf("failed to list exports: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(infos) == 0 {
		fmt.Fprintln(out, "No exports found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCREATED\tNAME\tCROP\tENTRIES\tSIZE")
	fmt.Fprintln(w, "--\t-------\t----\t----\t-------\t----")
	for _, info := range infos {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			shortID(info.ID),
			info.CreatedAt.Format("2006-01-02 15:04:05"),
			info.Name,
			info.CropToken,
			info.Entries,
			formatBytes(info.Size),
		)
	}
	w.Flush()

	fmt.Fprintf(out, "\nTotal exports: %d\n", len(infos))
	return nil
}

func runCleanExports(cmd *cobra.Command, args []string) error {
	if keepLast == 0 && olderThanDays == 0 {
		return fmt.Errorf("must specify either --keep-last or --older-than")
	}

	exportStore, err := store.NewFSStore(exportsDataDir)
	if err != nil {
		return fmt.Errorf("failed to create export store: %w", err)
	}

	infos, err := exportStore.ListExports()
	if err != nil {
		return fmt.Errorf("failed to list exports: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(infos) == 0 {
		fmt.Fprintln(out, "No exports to clean.")
		return nil
	}

	toDelete := selectExportsForDeletion(infos, keepLast, olderThanDays, time.Now())
	if len(toDelete) == 0 {
		fmt.Fprintln(out, "No exports match deletion criteria.")
		return nil
	}

	fmt.Fprintf(out, "Found %d export(s) to delete:\n", len(toDelete))
	for _, info := range toDelete {
		fmt.Fprintf(out, "  - %s %s (%s)\n", shortID(info.ID), info.Name, info.CreatedAt.Format("2006-01-02 15:04:05"))
	}

	if !forceClean {
		fmt.Fprint(out, "\nProceed with deletion? [y/N]: ")
		var response string
		fmt.Fscanln(cmd.InOrStdin(), &response)
		if response != "y" && response != "Y" {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	deleted := 0
	failed := 0
	for _, info := range toDelete {
		if err := exportStore.DeleteExport(info.ID); err != nil {
			slog.Error("Failed to delete export", "export_id", info.ID, "error", err)
			failed++
		} else {
			slog.Info("Deleted export", "export_id", info.ID)
			deleted++
		}
	}

	fmt.Fprintf(out, "\nDeleted %d export(s), %d failed.\n", deleted, failed)
	return nil
}

// selectExportsForDeletion applies the retention policy: exports older than
// olderThanDays, plus everything but the newest keepLast. Each export is
// selected at most once.
func selectExportsForDeletion(infos []store.ExportInfo, keepLast int, olderThanDays int, now time.Time) []store.ExportInfo {
	var toDelete []store.ExportInfo
	selected := make(map[string]bool)

	if olderThanDays > 0 {
		cutoff := now.AddDate(0, 0, -olderThanDays)
		for _, info := range infos {
			if info.CreatedAt.Before(cutoff) {
				toDelete = append(toDelete, info)
				selected[info.ID] = true
			}
		}
	}

	if keepLast > 0 && len(infos) > keepLast {
		sorted := make([]store.ExportInfo, len(infos))
		copy(sorted, infos)
		sort.Slice(sorted, func(i, j int) bool {
			return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
		})
		for _, info := range sorted[keepLast:] {
			if !selected[info.ID] {
				toDelete = append(toDelete, info)
				selected[info.ID] = true
			}
		}
	}

	return toDelete
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12] + "..."
	}
	return id
}

// formatBytes formats bytes as human-readable string
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
