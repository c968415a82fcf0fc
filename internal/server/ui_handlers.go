package server

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cwbudde/srviewer/internal/store"
	"github.com/cwbudde/srviewer/internal/viewer"
)

//go:embed templates/*.html
var templatesFS embed.FS

var (
	indexTemplate *template.Template
	templateOnce  sync.Once
)

func formatTime(t time.Time) string {
	return t.Format("Jan 2, 2006 15:04:05")
}

func templates() *template.Template {
	templateOnce.Do(func() {
		indexTemplate = template.Must(template.New("index.html").
			Funcs(template.FuncMap{"formatTime": formatTime}).
			ParseFS(templatesFS, "templates/index.html"))
	})
	return indexTemplate
}

// indexSession is one session row on the index page.
type indexSession struct {
	SessionInfo
	Header string
	Panes  []viewer.PaneInfo
}

type indexPage struct {
	Sessions []indexSession
	Exports  []store.ExportInfo
}

// handleIndex handles GET /
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	// Only handle exact root path
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	page := indexPage{Exports: []store.ExportInfo{}}
	for _, info := range s.sessions.List() {
		entry, ok := s.sessions.Get(info.ID)
		if !ok {
			continue
		}
		snap := entry.Session.Snapshot()
		page.Sessions = append(page.Sessions, indexSession{
			SessionInfo: info,
			Header:      snap.Header,
			Panes:       snap.Panes,
		})
	}
	if s.exports != nil {
		infos, err := s.exports.ListExports()
		if err != nil {
			slog.Warn("Failed to list exports", "error", err)
		} else {
			page.Exports = infos
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates().Execute(w, page); err != nil {
		slog.Error("Failed to render page", "error", err)
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
	}
}
