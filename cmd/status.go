package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"text/tabwriter"

	"github.com/cwbudde/srviewer/internal/server"
	"github.com/cwbudde/srviewer/internal/viewer"
	"github.com/spf13/cobra"
)

var (
	serverURL string
)

var statusCmd = &cobra.Command{
	Use:   "status [session-id]",
	Short: "Query server sessions or a specific session",
	Long: `Queries a running server for session information.
If no session-id is provided, lists all sessions.
If session-id is provided, shows the panes and metrics of that session.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return listSessions(cmd.OutOrStdout(), fmt.Sprintf("%s/api/v1/sessions", serverURL))
	}
	return showSession(cmd.OutOrStdout(), fmt.Sprintf("%s/api/v1/sessions/%s", serverURL, args[0]), args[0])
}

func getJSON(url string, v any) (int, error) {
	resp, err := http.Get(url)
	if err != nil {
		return 0, fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, fmt.Errorf("server returned error: %s", string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
	}
	return resp.StatusCode, nil
}

func listSessions(out io.Writer, url string) error {
	var sessions []server.SessionInfo
	if _, err := getJSON(url, &sessions); err != nil {
		return err
	}

	if len(sessions) == 0 {
		fmt.Fprintln(out, "No sessions found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION ID\tTITLE\tSTATUS\tPOSITION\tFILE")
	fmt.Fprintln(w, "----------\t-----\t------\t--------\t----")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d/%d\t%s\n", s.ID, s.Title, s.Status, s.Position+1, s.Count, s.File)
	}
	return w.Flush()
}

func showSession(out io.Writer, url, id string) error {
	var snap viewer.Snapshot
	status, err := getJSON(url, &snap)
	if status == http.StatusNotFound {
		return fmt.Errorf("session not found: %s", id)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Session: %s\n", id)
	fmt.Fprintf(out, "Title: %s\n", snap.Title)
	fmt.Fprintf(out, "Status: %s (epoch %d)\n", snap.Status, snap.Epoch)
	fmt.Fprintf(out, "%s\n\n", snap.Header)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PANE\tLABEL\tSTAGE\tSIZE\tPSNR\tSSIM")
	for _, p := range snap.Panes {
		fmt.Fprintf(w, "%d\t%s\t%s\t%dx%d\t%s\t%s\n",
			p.Pane, p.Label, p.Stage, p.Width, p.Height, formatValue(p.PSNR), formatValue(p.SSIM))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if snap.DiffIndex >= 0 {
		fmt.Fprintf(out, "\nDiff baseline: pane %d\n", snap.DiffIndex)
	}
	if snap.ShowMetricOverlay {
		fmt.Fprintln(out, "PSNR overlay: on")
	}
	if snap.CropToken != "" {
		fmt.Fprintf(out, "Crop: %s\n", snap.CropToken)
	}
	return nil
}
