package storage

import (
	"errors"
	"sync"
	"time"

	"playlistfetch/internal/model"
	"playlistfetch/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrSessionNotFound is returned for unknown or expired session IDs
var ErrSessionNotFound = errors.New("session not found")

type sessionEntry struct {
	mu      sync.Mutex // serialises runs and retries on one session
	session *model.PlaylistSession
}

// SessionSnapshot is the part of a session fixed at Create
type SessionSnapshot struct {
	ID         string
	SourceURL  string
	Title      string
	IsPlaylist bool
	Outcomes   []model.ResolutionOutcome
	ExpiresAt  time.Time
}

// SessionStore keeps resolved playlists in memory until they expire
type SessionStore struct {
	ttl      time.Duration
	sessions map[string]*sessionEntry
	mu       sync.RWMutex
	quit     chan struct{}
	stopOnce sync.Once
}

// NewSessionStore creates a store whose sessions live for ttl
func NewSessionStore(ttl time.Duration) *SessionStore {
	return &SessionStore{
		ttl:      ttl,
		sessions: make(map[string]*sessionEntry),
		quit:     make(chan struct{}),
	}
}

// Create assigns an ID and expiry to session and stores it
func (s *SessionStore) Create(session *model.PlaylistSession) *model.PlaylistSession {
	now := time.Now()
	session.ID = uuid.NewString()
	session.CreatedAt = now
	session.ExpiresAt = now.Add(s.ttl)
	if session.Runs == nil {
		session.Runs = make(map[string]*model.DownloadRun)
	}

	s.mu.Lock()
	s.sessions[session.ID] = &sessionEntry{session: session}
	s.mu.Unlock()

	logger.Logger.Debug("Session created", zap.String("id", session.ID), zap.Int("entries", len(session.Outcomes)))
	return session
}

// With runs fn with exclusive access to the session
func (s *SessionStore) With(id string, fn func(*model.PlaylistSession) error) error {
	s.mu.RLock()
	entry, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return ErrSessionNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if time.Now().After(entry.session.ExpiresAt) {
		return ErrSessionNotFound
	}
	return fn(entry.session)
}

// Snapshot returns the fields set at Create without waiting for a run or
// retry holding the session
func (s *SessionStore) Snapshot(id string) (SessionSnapshot, error) {
	s.mu.RLock()
	entry, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return SessionSnapshot{}, ErrSessionNotFound
	}

	if time.Now().After(entry.session.ExpiresAt) {
		return SessionSnapshot{}, ErrSessionNotFound
	}
	return SnapshotOf(entry.session), nil
}

// SnapshotOf copies the fields of session that never change after Create
func SnapshotOf(session *model.PlaylistSession) SessionSnapshot {
	return SessionSnapshot{
		ID:         session.ID,
		SourceURL:  session.SourceURL,
		Title:      session.Title,
		IsPlaylist: session.IsPlaylist,
		Outcomes:   session.Outcomes,
		ExpiresAt:  session.ExpiresAt,
	}
}

// Len returns the number of stored sessions, expired ones included
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Start evicts expired sessions every interval
func (s *SessionStore) Start(interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.quit:
				return
			case now := <-ticker.C:
				s.evictExpired(now)
			}
		}
	}()
}

// Stop stops the eviction routine
func (s *SessionStore) Stop() {
	s.stopOnce.Do(func() { close(s.quit) })
}

func (s *SessionStore) evictExpired(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, entry := range s.sessions {
		if now.After(entry.session.ExpiresAt) {
			delete(s.sessions, id)
			evicted++
		}
	}
	if evicted > 0 {
		logger.Logger.Info("Sessions evicted", zap.Int("count", evicted), zap.Int("remaining", len(s.sessions)))
	}
}
