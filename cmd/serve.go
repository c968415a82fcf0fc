package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cwbudde/srviewer/internal/config"
	"github.com/cwbudde/srviewer/internal/server"
	"github.com/cwbudde/srviewer/internal/store"
	"github.com/pkg/browser"
	"github.com/spf13/cobra"
)

var (
	serveFlags   viewerFlags
	serveAddr    string
	serveDataDir string
	serveOpen    bool
	serveRetain  int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the viewer HTTP server",
	Long: `Starts the HTTP API and index page. With --config, a session is created
for the configuration at startup and used as the default for new sessions.
Crop exports are stored under --data-dir.`,
	RunE: runServe,
}

func init() {
	serveFlags.register(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	serveCmd.Flags().StringVar(&serveDataDir, "data-dir", "./data", "Directory for exported crop bundles")
	serveCmd.Flags().BoolVar(&serveOpen, "open", false, "Open the viewer in the default browser")
	serveCmd.Flags().IntVar(&serveRetain, "retain-days", 0, "Delete stored exports older than N days at startup (0 = keep all)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	var cfg *config.Config
	if serveFlags.configPath != "" {
		var err error
		if cfg, err = serveFlags.load(cmd); err != nil {
			return err
		}
	}

	exports, err := store.NewFSStore(serveDataDir)
	if err != nil {
		return fmt.Errorf("failed to create export store: %w", err)
	}
	if serveRetain > 0 {
		removed, err := exports.PruneExports(time.Now().AddDate(0, 0, -serveRetain))
		if err != nil {
			return fmt.Errorf("failed to prune exports: %w", err)
		}
		slog.Info("Pruned old exports", "removed", removed, "retain_days", serveRetain)
	}
	memo, closeMemo, err := serveFlags.openMemo()
	if err != nil {
		return err
	}
	defer closeMemo()

	srv := server.NewServer(server.Options{
		Addr:    serveAddr,
		Config:  cfg,
		Exports: exports,
		Memo:    memo,
	})

	url := "http://" + browserHost(serveAddr) + "/"
	if cfg != nil {
		entry, err := srv.CreateSession(server.CreateSessionRequest{})
		if err != nil {
			return fmt.Errorf("failed to create initial session: %w", err)
		}
		slog.Info("Initial session ready", "session_id", entry.ID)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	if serveOpen {
		if err := browser.OpenURL(url); err != nil {
			slog.Warn("Failed to open browser", "url", url, "error", err)
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Viewer running at %s\n", url)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return nil
}

// browserHost turns a listen address into a host a browser can reach.
func browserHost(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "localhost" + addr
	}
	if strings.HasPrefix(addr, "0.0.0.0:") {
		return "localhost" + strings.TrimPrefix(addr, "0.0.0.0")
	}
	return addr
}
