package server

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cwbudde/srviewer/internal/viewer"
	"github.com/google/uuid"
)

// SessionEntry is a viewer session owned by the server.
type SessionEntry struct {
	ID        string
	CreatedAt time.Time
	Session   *viewer.Session

	// cancel stops background raster loads started for the session.
	cancel context.CancelFunc
}

// SessionInfo is the listing view of a session.
type SessionInfo struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Status    viewer.Status `json:"status"`
	Position  int           `json:"position"`
	Count     int           `json:"count"`
	File      string        `json:"file"`
	CreatedAt time.Time     `json:"createdAt"`
}

// Info summarises the session.
func (e *SessionEntry) Info() SessionInfo {
	return SessionInfo{
		ID:        e.ID,
		Title:     e.Session.Title(),
		Status:    e.Session.Status(),
		Position:  e.Session.Position(),
		Count:     e.Session.Len(),
		File:      e.Session.File(),
		CreatedAt: e.CreatedAt,
	}
}

// SessionManager tracks live viewer sessions and fans their hook events out
// to SSE subscribers.
type SessionManager struct {
	mu          sync.RWMutex
	sessions    map[string]*SessionEntry
	broadcaster *EventBroadcaster
}

// NewSessionManager creates an empty SessionManager.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions:    make(map[string]*SessionEntry),
		broadcaster: NewEventBroadcaster(),
	}
}

// NewSessionID returns a fresh session ID.
func NewSessionID() string {
	return uuid.New().String()
}

// Add registers s under id and forwards its hooks to the broadcaster.
// cancel, if non-nil, is called when the session is removed.
func (sm *SessionManager) Add(id string, s *viewer.Session, cancel context.CancelFunc) *SessionEntry {
	entry := &SessionEntry{
		ID:        id,
		CreatedAt: time.Now(),
		Session:   s,
		cancel:    cancel,
	}
	sm.wireEvents(entry)

	sm.mu.Lock()
	sm.sessions[entry.ID] = entry
	sm.mu.Unlock()
	return entry
}

func (sm *SessionManager) wireEvents(entry *SessionEntry) {
	id, s := entry.ID, entry.Session
	s.OnBeforeUpdate(func(e viewer.UpdateEvent) {
		sm.broadcaster.Broadcast(ViewerEvent{
			SessionID: id,
			Type:      EventUpdate,
			Epoch:     e.Epoch,
			Status:    viewer.StatusStart,
			Position:  e.Position,
			File:      e.File,
			Timestamp: time.Now(),
		})
	})
	s.OnRenderPane(func(e viewer.PaneEvent) {
		pane := e.Pane
		ev := ViewerEvent{
			SessionID: id,
			Type:      EventPane,
			Epoch:     e.Epoch,
			Status:    s.Status(),
			Position:  s.Position(),
			File:      s.File(),
			Pane:      &pane,
			Stage:     e.Stage,
			Timestamp: time.Now(),
		}
		if e.Err != nil {
			ev.Error = e.Err.Error()
		}
		sm.broadcaster.Broadcast(ev)
	})
	s.OnIndexChange(func(e viewer.IndexEvent) {
		sm.broadcaster.Broadcast(ViewerEvent{
			SessionID: id,
			Type:      EventIndex,
			Status:    s.Status(),
			Position:  e.To,
			File:      e.File,
			Timestamp: time.Now(),
		})
	})
}

// Get retrieves a session by ID.
func (sm *SessionManager) Get(id string) (*SessionEntry, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	entry, exists := sm.sessions[id]
	return entry, exists
}

// List returns every session, oldest first.
func (sm *SessionManager) List() []SessionInfo {
	sm.mu.RLock()
	entries := make([]*SessionEntry, 0, len(sm.sessions))
	for _, e := range sm.sessions {
		entries = append(entries, e)
	}
	sm.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
	infos := make([]SessionInfo, len(entries))
	for i, e := range entries {
		infos[i] = e.Info()
	}
	return infos
}

// Remove closes the session, stops its background work and disconnects its
// subscribers. It reports whether the session existed.
func (sm *SessionManager) Remove(id string) bool {
	sm.mu.Lock()
	entry, exists := sm.sessions[id]
	delete(sm.sessions, id)
	sm.mu.Unlock()

	if !exists {
		return false
	}
	entry.Session.Close()
	if entry.cancel != nil {
		entry.cancel()
	}
	sm.broadcaster.CleanupSession(id)
	return true
}

// CloseAll removes every session.
func (sm *SessionManager) CloseAll() {
	sm.mu.RLock()
	ids := make([]string, 0, len(sm.sessions))
	for id := range sm.sessions {
		ids = append(ids, id)
	}
	sm.mu.RUnlock()

	for _, id := range ids {
		sm.Remove(id)
	}
}
