package session

import (
	"sort"
	"sync"
	"time"

	"airpay/internal/models"
)

// Registry holds at most one session per user
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// StartAwaiting registers a fresh awaiting_amount session for userID,
// replacing an earlier one that never got an amount. A pending session is
// left in place and ErrSessionActive is returned.
func (r *Registry) StartAwaiting(userID string, now time.Time) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.sessions[userID]; ok && prev.Status() == models.DepositStatusPending {
		return prev, ErrSessionActive
	}

	s := newAwaiting(userID, now)
	r.sessions[userID] = s
	return s, nil
}

// Get returns the session of userID
func (r *Registry) Get(userID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[userID]
	return s, ok
}

// Remove deletes s if it is still the registered session of its user
func (r *Registry) Remove(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.sessions[s.UserID]; ok && cur == s {
		delete(r.sessions, s.UserID)
		return true
	}
	return false
}

// EvictIdle drops awaiting_amount sessions not touched since before and
// returns how many were removed. Pending sessions are never evicted.
func (r *Registry) EvictIdle(before time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for userID, s := range r.sessions {
		if s.Status() == models.DepositStatusAwaitingAmount && s.UpdatedAt().Before(before) {
			delete(r.sessions, userID)
			n++
		}
	}
	return n
}

// Len returns the number of registered sessions
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Snapshot lists all sessions ordered by creation time
func (r *Registry) Snapshot() []Info {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	infos := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.info())
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].CreatedAt.Before(infos[j].CreatedAt)
	})
	return infos
}
