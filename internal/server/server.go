package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cwbudde/srviewer/internal/config"
	"github.com/cwbudde/srviewer/internal/metrics"
	"github.com/cwbudde/srviewer/internal/source"
	"github.com/cwbudde/srviewer/internal/store"
	"github.com/cwbudde/srviewer/internal/viewer"
)

// Options configures a Server.
type Options struct {
	Addr string

	// Config is used for sessions created without an inline configuration.
	Config *config.Config

	// Source, when set, serves every session. Otherwise each session reads
	// through a router built from its configuration.
	Source source.Source

	// Exports stores crop bundles. Without it exports are only downloadable.
	Exports store.Store

	// Memo persists metric results across sessions; may be nil.
	Memo metrics.Memo
}

// Server represents the HTTP server
type Server struct {
	sessions *SessionManager
	config   *config.Config
	source   source.Source
	exports  store.Store
	memo     metrics.Memo
	addr     string
	server   *http.Server
}

// NewServer creates a new HTTP server
func NewServer(opts Options) *Server {
	return &Server{
		sessions: NewSessionManager(),
		config:   opts.Config,
		source:   opts.Source,
		exports:  opts.Exports,
		memo:     opts.Memo,
		addr:     opts.Addr,
	}
}

// Sessions returns the session manager.
func (s *Server) Sessions() *SessionManager {
	return s.sessions
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.handleIndex)

	mux.HandleFunc("/api/v1/sessions", s.handleSessions)
	mux.HandleFunc("/api/v1/sessions/", s.handleSessionsWithID)
	mux.HandleFunc("/api/v1/exports", s.handleExports)
	mux.HandleFunc("/api/v1/exports/", s.handleExportsWithID)

	return s.loggingMiddleware(s.corsMiddleware(mux))
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}

	slog.Info("Starting HTTP server", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server and closes every session
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down HTTP server")
	s.sessions.CloseAll()
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// CreateSessionRequest is the body of POST /api/v1/sessions. Every field
// is optional; the override fields take precedence over the configuration.
type CreateSessionRequest struct {
	// Config is an inline viewer configuration. The server default is used
	// when empty.
	Config json.RawMessage `json:"config,omitempty"`

	Params    map[string]string `json:"params,omitempty"`
	Index     *int              `json:"index,omitempty"`
	Indexes   string            `json:"indexes,omitempty"`
	Hides     string            `json:"hides,omitempty"`
	Crop      string            `json:"crop,omitempty"`
	DiffIndex *int              `json:"diffIndex,omitempty"`
	Preload   *int              `json:"preloadSize,omitempty"`
	ZoomMode  *bool             `json:"zoomMode,omitempty"`
}

func (req CreateSessionRequest) overrides() (config.Overrides, error) {
	o := config.Overrides{
		Params:    req.Params,
		Index:     req.Index,
		Crop:      req.Crop,
		DiffIndex: req.DiffIndex,
		Preload:   req.Preload,
		ZoomMode:  req.ZoomMode,
	}
	var err error
	if req.Indexes != "" {
		if o.Indexes, err = config.ParseIndexList(req.Indexes); err != nil {
			return o, &config.ValidationError{Field: "indexes", Reason: err.Error()}
		}
	}
	if req.Hides != "" {
		if o.Hides, err = config.ParseIndexList(req.Hides); err != nil {
			return o, &config.ValidationError{Field: "hides", Reason: err.Error()}
		}
	}
	return o, nil
}

func (s *Server) sessionConfig(req CreateSessionRequest) (*config.Config, error) {
	var data []byte
	switch {
	case len(req.Config) > 0:
		data = req.Config
	case s.config != nil:
		// Round trip so overrides never touch the shared default.
		var err error
		if data, err = json.Marshal(s.config); err != nil {
			return nil, fmt.Errorf("failed to copy default config: %w", err)
		}
	default:
		return nil, &config.ValidationError{Field: "config", Reason: "is required"}
	}

	cfg, err := config.Parse(data)
	if err != nil {
		return nil, err
	}
	o, err := req.overrides()
	if err != nil {
		return nil, err
	}
	if err := cfg.Apply(o); err != nil {
		return nil, err
	}
	return cfg, nil
}

// CreateSession builds a viewer session and starts its first update.
func (s *Server) CreateSession(req CreateSessionRequest) (*SessionEntry, error) {
	cfg, err := s.sessionConfig(req)
	if err != nil {
		return nil, err
	}

	src := s.source
	if src == nil {
		router, err := source.NewRouter(cfg.Source)
		if err != nil {
			return nil, fmt.Errorf("failed to create source: %w", err)
		}
		src = router
	}

	id := NewSessionID()
	log := slog.Default().With("session_id", id)
	ctx, cancel := context.WithCancel(context.Background())
	sess, err := viewer.FromConfig(ctx, cfg, src, s.memo, log)
	if err != nil {
		cancel()
		return nil, err
	}

	entry := s.sessions.Add(id, sess, cancel)
	sess.Update(0)
	log.Info("Session created", "title", sess.Title(), "files", sess.Len())
	return entry, nil
}

// handleSessions handles /api/v1/sessions
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateSession(w, r)
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.sessions.List())
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleCreateSession handles POST /api/v1/sessions
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	entry, err := s.CreateSession(req)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Location", "/api/v1/sessions/"+entry.ID)
	writeJSON(w, http.StatusCreated, sessionResponse{ID: entry.ID, Snapshot: entry.Session.Snapshot()})
}

// sessionResponse is a snapshot tagged with its session ID.
type sessionResponse struct {
	ID string `json:"id"`
	viewer.Snapshot
}

// handleSessionsWithID handles /api/v1/sessions/:id/*
func (s *Server) handleSessionsWithID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/sessions/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "Session ID required", http.StatusBadRequest)
		return
	}

	entry, exists := s.sessions.Get(parts[0])
	if !exists {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, sessionResponse{ID: entry.ID, Snapshot: entry.Session.Snapshot()})
		case http.MethodDelete:
			s.sessions.Remove(entry.ID)
			slog.Info("Session closed", "session_id", entry.ID)
			w.WriteHeader(http.StatusNoContent)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	switch parts[1] {
	case "events":
		if requireMethod(w, r, http.MethodGet) {
			s.handleSessionStream(w, r, entry)
		}
	case "panes":
		if len(parts) != 3 {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}
		if requireMethod(w, r, http.MethodGet) {
			s.handlePaneImage(w, r, entry, parts[2])
		}
	case "crop-token":
		if requireMethod(w, r, http.MethodGet) {
			s.handleCropToken(w, r, entry)
		}
	case "metrics":
		if requireMethod(w, r, http.MethodGet) {
			s.handleMetrics(w, r, entry)
		}
	case "export":
		if requireMethod(w, r, http.MethodPost) {
			s.handleSessionExport(w, r, entry)
		}
	default:
		action, ok := sessionActions[parts[1]]
		if !ok {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}
		if requireMethod(w, r, http.MethodPost) {
			s.handleAction(w, r, entry, action)
		}
	}
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
