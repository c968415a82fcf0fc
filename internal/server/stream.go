package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cwbudde/srviewer/internal/viewer"
)

// EventType names the session hook an event came from.
type EventType string

const (
	EventUpdate EventType = "update"
	EventPane   EventType = "pane"
	EventIndex  EventType = "index"
)

// ViewerEvent is one session change pushed to SSE clients.
type ViewerEvent struct {
	SessionID string        `json:"sessionId"`
	Type      EventType     `json:"type"`
	Epoch     uint64        `json:"epoch"`
	Status    viewer.Status `json:"status"`
	Position  int           `json:"position"`
	File      string        `json:"file"`
	Pane      *int          `json:"pane,omitempty"`
	Stage     viewer.Stage  `json:"stage,omitempty"`
	Error     string        `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// EventBroadcaster manages SSE connections per session
type EventBroadcaster struct {
	mu        sync.RWMutex
	clients   map[string]map[chan ViewerEvent]bool // sessionID -> set of client channels
	lastEvent map[string]ViewerEvent               // sessionID -> last event for new clients
}

// NewEventBroadcaster creates a new event broadcaster
func NewEventBroadcaster() *EventBroadcaster {
	return &EventBroadcaster{
		clients:   make(map[string]map[chan ViewerEvent]bool),
		lastEvent: make(map[string]ViewerEvent),
	}
}

// Subscribe adds a client to receive events for a session
func (eb *EventBroadcaster) Subscribe(sessionID string) chan ViewerEvent {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	ch := make(chan ViewerEvent, 32)

	if eb.clients[sessionID] == nil {
		eb.clients[sessionID] = make(map[chan ViewerEvent]bool)
	}
	eb.clients[sessionID][ch] = true

	slog.Debug("SSE client subscribed", "sessionID", sessionID, "total_clients", len(eb.clients[sessionID]))
	return ch
}

// Unsubscribe removes a client from receiving events
func (eb *EventBroadcaster) Unsubscribe(sessionID string, ch chan ViewerEvent) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if clients, ok := eb.clients[sessionID]; ok {
		// CleanupSession may already have closed it.
		if clients[ch] {
			delete(clients, ch)
			close(ch)
		}
		if len(clients) == 0 {
			delete(eb.clients, sessionID)
		}
	}

	slog.Debug("SSE client unsubscribed", "sessionID", sessionID)
}

// Broadcast sends an event to all subscribed clients for a session
func (eb *EventBroadcaster) Broadcast(event ViewerEvent) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.lastEvent[event.SessionID] = event

	clients, ok := eb.clients[event.SessionID]
	if !ok || len(clients) == 0 {
		return
	}

	for ch := range clients {
		select {
		case ch <- event:
		default:
			// Slow client; drop rather than block the session hooks.
			slog.Warn("SSE channel full, skipping event", "sessionID", event.SessionID, "type", event.Type)
		}
	}
}

// LastEvent returns the most recent event broadcast for a session.
func (eb *EventBroadcaster) LastEvent(sessionID string) (ViewerEvent, bool) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	ev, ok := eb.lastEvent[sessionID]
	return ev, ok
}

// CleanupSession removes all clients and cached events for a session
func (eb *EventBroadcaster) CleanupSession(sessionID string) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if clients, ok := eb.clients[sessionID]; ok {
		for ch := range clients {
			close(ch)
		}
		delete(eb.clients, sessionID)
	}

	delete(eb.lastEvent, sessionID)
	slog.Debug("Cleaned up SSE resources", "sessionID", sessionID)
}

// handleSessionStream handles SSE connections for session updates
func (s *Server) handleSessionStream(w http.ResponseWriter, r *http.Request, entry *SessionEntry) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	eventChan := s.sessions.broadcaster.Subscribe(entry.ID)
	defer s.sessions.broadcaster.Unsubscribe(entry.ID, eventChan)

	// Initial event with the current session state
	snap := entry.Session.Snapshot()
	initialEvent := ViewerEvent{
		SessionID: entry.ID,
		Type:      EventUpdate,
		Epoch:     snap.Epoch,
		Status:    snap.Status,
		Position:  snap.Position,
		File:      snap.File,
		Timestamp: time.Now(),
	}
	if err := writeSSEEvent(w, initialEvent); err != nil {
		slog.Error("Failed to write initial SSE event", "error", err)
		return
	}
	flusher.Flush()

	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			slog.Debug("SSE client disconnected", "sessionID", entry.ID)
			return

		case event, ok := <-eventChan:
			if !ok {
				return
			}
			if err := writeSSEEvent(w, event); err != nil {
				slog.Error("Failed to write SSE event", "error", err)
				return
			}
			flusher.Flush()

		case <-pingTicker.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes an event in SSE format, named after its type.
func writeSSEEvent(w http.ResponseWriter, event ViewerEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
	return err
}
