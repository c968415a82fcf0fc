package server

import (
	"fmt"
	"image/png"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/cwbudde/srviewer/internal/store"
	"github.com/cwbudde/srviewer/internal/viewer"
	"github.com/cwbudde/srviewer/internal/zoom"
)

// sessionAction mutates a session from a POST request.
type sessionAction func(sess *viewer.Session, r *http.Request) error

var sessionActions = map[string]sessionAction{
	"next": func(sess *viewer.Session, r *http.Request) error {
		sess.Next()
		return nil
	},
	"prev": func(sess *viewer.Session, r *http.Request) error {
		sess.Prev()
		return nil
	},
	"refresh": func(sess *viewer.Session, r *http.Request) error {
		sess.Update(0)
		return nil
	},
	"jump": func(sess *viewer.Session, r *http.Request) error {
		var body struct {
			Position *int `json:"position"`
		}
		if err := decodeJSON(r, &body); err != nil {
			return err
		}
		if body.Position == nil {
			return fmt.Errorf("%w: position is required", errBadRequest)
		}
		sess.Jump(*body.Position)
		return nil
	},
	"diff": func(sess *viewer.Session, r *http.Request) error {
		var body struct {
			Pane int `json:"pane"`
		}
		if err := decodeJSON(r, &body); err != nil {
			return err
		}
		return sess.ToggleDiff(body.Pane)
	},
	"overlay": func(sess *viewer.Session, r *http.Request) error {
		return sess.ToggleMetricOverlay()
	},
	"zoom-mode": func(sess *viewer.Session, r *http.Request) error {
		var body struct {
			Enabled bool `json:"enabled"`
		}
		if err := decodeJSON(r, &body); err != nil {
			return err
		}
		sess.SetZoomMode(body.Enabled)
		return nil
	},
	"pointer": func(sess *viewer.Session, r *http.Request) error {
		var body struct {
			Pane int `json:"pane"`
			zoom.Pointer
		}
		if err := decodeJSON(r, &body); err != nil {
			return err
		}
		_, err := sess.Pointer(body.Pane, body.Pointer)
		return err
	},
	"wheel": func(sess *viewer.Session, r *http.Request) error {
		var body struct {
			Pane   int       `json:"pane"`
			DeltaY float64   `json:"deltaY"`
			Lock   zoom.Lock `json:"lock"`
		}
		if err := decodeJSON(r, &body); err != nil {
			return err
		}
		return sess.Wheel(body.Pane, body.DeltaY, body.Lock)
	},
	"mousedown": func(sess *viewer.Session, r *http.Request) error {
		var body struct {
			Down bool `json:"down"`
		}
		if err := decodeJSON(r, &body); err != nil {
			return err
		}
		sess.SetMouseDown(body.Down)
		return nil
	},
}

// handleAction runs action and responds with the resulting snapshot.
func (s *Server) handleAction(w http.ResponseWriter, r *http.Request, entry *SessionEntry, action sessionAction) {
	if err := action(entry.Session, r); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{ID: entry.ID, Snapshot: entry.Session.Snapshot()})
}

// handlePaneImage handles GET /api/v1/sessions/:id/panes/:n.png
func (s *Server) handlePaneImage(w http.ResponseWriter, r *http.Request, entry *SessionEntry, name string) {
	n, err := strconv.Atoi(strings.TrimSuffix(name, ".png"))
	if err != nil {
		http.Error(w, "Invalid pane", http.StatusBadRequest)
		return
	}
	width, err := queryInt(r, "width", 0)
	if err != nil {
		writeError(w, err)
		return
	}
	height, err := queryInt(r, "height", 0)
	if err != nil {
		writeError(w, err)
		return
	}

	img, err := entry.Session.PaneImage(r.Context(), n, width, height)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	if err := png.Encode(w, img); err != nil {
		slog.Error("Failed to encode PNG", "error", err)
	}
}

// handleCropToken handles GET /api/v1/sessions/:id/crop-token
func (s *Server) handleCropToken(w http.ResponseWriter, r *http.Request, entry *SessionEntry) {
	token, err := entry.Session.CropToken()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// handleMetrics handles GET /api/v1/sessions/:id/metrics?position=N
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request, entry *SessionEntry) {
	pos, err := queryInt(r, "position", entry.Session.Position())
	if err != nil {
		writeError(w, err)
		return
	}
	if pos < 0 || pos >= entry.Session.Len() {
		http.Error(w, "Position out of range", http.StatusBadRequest)
		return
	}

	panes, err := entry.Session.Metrics(r.Context(), pos)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, panes)
}

// exportRequest is the body of POST /api/v1/sessions/:id/export.
type exportRequest struct {
	// Crop is a crop token; the current pointer crop is used when empty.
	Crop            string `json:"crop,omitempty"`
	IncludeOriginal bool   `json:"includeOriginal"`
	Scale           int    `json:"scale,omitempty"`
}

// handleSessionExport handles POST /api/v1/sessions/:id/export. The bundle
// is stored unless ?download=1 is given or no store is configured, in which
// case the zip is returned directly.
func (s *Server) handleSessionExport(w http.ResponseWriter, r *http.Request, entry *SessionEntry) {
	var req exportRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	var region *zoom.CropRegion
	if req.Crop != "" {
		c, err := zoom.ParseCropToken(req.Crop)
		if err != nil {
			http.Error(w, fmt.Sprintf("Invalid crop: %v", err), http.StatusBadRequest)
			return
		}
		region = &c
	}

	sess := entry.Session
	bundle, err := sess.ExportCrop(r.Context(), region, viewer.ExportOptions{
		IncludeOriginal: req.IncludeOriginal,
		Scale:           req.Scale,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	if s.exports == nil || r.URL.Query().Get("download") == "1" {
		writeBundle(w, bundle.Name, bundle.Data)
		return
	}

	record := store.NewExportRecord(bundle.Name, sess.Title(), sess.File(), bundle.CropToken, bundle.Files, int64(len(bundle.Data)))
	record.SessionID = entry.ID
	if err := s.exports.SaveExport(record, bundle.Data); err != nil {
		writeError(w, err)
		return
	}
	slog.Info("Crop exported", "session_id", entry.ID, "export_id", record.ID, "name", record.Name)

	w.Header().Set("Location", "/api/v1/exports/"+record.ID)
	writeJSON(w, http.StatusCreated, record)
}
