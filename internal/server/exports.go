package server

import (
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/cwbudde/srviewer/internal/store"
)

// handleExports handles GET /api/v1/exports
func (s *Server) handleExports(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	if s.exports == nil {
		writeJSON(w, http.StatusOK, []store.ExportInfo{})
		return
	}
	infos, err := s.exports.ListExports()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, infos)
}

// handleExportsWithID handles /api/v1/exports/:id
func (s *Server) handleExportsWithID(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/exports/"), "/")
	if id == "" {
		http.Error(w, "Export ID required", http.StatusBadRequest)
		return
	}
	if s.exports == nil {
		http.Error(w, "Export not found", http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		record, data, err := s.exports.LoadExport(id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeBundle(w, record.Name, data)
	case http.MethodDelete:
		if err := s.exports.DeleteExport(id); err != nil {
			writeError(w, err)
			return
		}
		slog.Info("Export deleted", "export_id", id)
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// writeBundle sends zip bytes as an attachment named name.
func writeBundle(w http.ResponseWriter, name string, data []byte) {
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		slog.Error("Failed to write bundle", "error", err)
	}
}
