package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/cwbudde/srviewer/internal/config"
	"github.com/cwbudde/srviewer/internal/export"
	"github.com/cwbudde/srviewer/internal/metrics"
	"github.com/cwbudde/srviewer/internal/store"
	"github.com/cwbudde/srviewer/internal/target"
	"github.com/cwbudde/srviewer/internal/viewer"
)

// errBadRequest marks errors caused by a malformed request.
var errBadRequest = errors.New("bad request")

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// decodeJSON decodes the request body into v. An empty body leaves v as is.
func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: invalid JSON: %v", errBadRequest, err)
	}
	return nil
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var verr *config.ValidationError
	var rerr *target.ResolutionError
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, viewer.ErrPaneOutOfRange),
		errors.Is(err, export.ErrEmptyRegion),
		errors.As(err, &verr),
		errors.As(err, &rerr):
		return http.StatusBadRequest
	case errors.Is(err, viewer.ErrNoCrop), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, metrics.ErrUnavailable), errors.Is(err, target.ErrNoBaseTarget):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError reports err with the status statusFor picks.
func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("Request failed", "error", err)
	}
	http.Error(w, err.Error(), status)
}

// queryInt reads an integer query parameter, def when absent.
func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s %q", errBadRequest, name, v)
	}
	return n, nil
}
