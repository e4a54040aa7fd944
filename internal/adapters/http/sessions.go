package http

import (
	"context"
	"log/slog"
	"sync"

	"github.com/samirrijal/policetracker/internal/core/ports"
	"github.com/samirrijal/policetracker/internal/pkg/metrics"
)

// refresher is the part of a map session the hub drives.
type refresher interface {
	Refresh()
}

// SessionHub tracks the live map sessions of this API instance so that
// broker notices can refresh them.
type SessionHub struct {
	mu       sync.RWMutex
	sessions map[string]refresher
}

func NewSessionHub() *SessionHub {
	return &SessionHub{sessions: make(map[string]refresher)}
}

func (h *SessionHub) add(id string, s refresher) {
	h.mu.Lock()
	h.sessions[id] = s
	h.mu.Unlock()
	metrics.ActiveSessions.Inc()
}

func (h *SessionHub) remove(id string) {
	h.mu.Lock()
	_, ok := h.sessions[id]
	delete(h.sessions, id)
	h.mu.Unlock()
	if ok {
		metrics.ActiveSessions.Dec()
	}
}

// Len returns the number of live sessions.
func (h *SessionHub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// RefreshAll makes every session refetch its viewport and returns how many
// sessions were refreshed.
func (h *SessionHub) RefreshAll() int {
	h.mu.RLock()
	targets := make([]refresher, 0, len(h.sessions))
	for _, s := range h.sessions {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		s.Refresh()
	}
	return len(targets)
}

// HandleNotice is the broker handler for alert lifecycle notices.
func (h *SessionHub) HandleNotice(ctx context.Context, notice ports.IngestNotice) error {
	n := h.RefreshAll()
	slog.Info("alert notice received",
		"source", notice.Source,
		"inserted", notice.Inserted,
		"deleted", notice.Deleted,
		"sessions_refreshed", n,
	)
	return nil
}
