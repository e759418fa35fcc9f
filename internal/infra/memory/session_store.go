package memory

import (
	"context"
	"sort"
	"sync"

	"live-quiz-service/internal/domain"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
// Each session has its own mutex so updates of different games never wait
// on each other.
type SessionStore struct {
	mu    sync.RWMutex
	byID  map[string]*sessionEntry
	byPIN map[string]string
}

type sessionEntry struct {
	mu      sync.Mutex
	session domain.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		byID:  make(map[string]*sessionEntry),
		byPIN: make(map[string]string),
	}
}

func (s *SessionStore) Create(_ context.Context, session domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byPIN[session.PIN]; ok {
		holder := s.byID[id]
		holder.mu.Lock()
		live := holder.session.Status != domain.StatusFinished
		holder.mu.Unlock()
		if live {
			return domain.ErrPINTaken
		}
	}
	s.byID[session.ID] = &sessionEntry{session: session.Clone()}
	s.byPIN[session.PIN] = session.ID
	return nil
}

func (s *SessionStore) FindByPIN(_ context.Context, pin string) (domain.Session, error) {
	entry, ok := s.entryByPIN(pin)
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.session.Clone(), nil
}

func (s *SessionStore) FindByID(_ context.Context, id string) (domain.Session, error) {
	s.mu.RLock()
	entry, ok := s.byID[id]
	s.mu.RUnlock()
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.session.Clone(), nil
}

func (s *SessionStore) Update(_ context.Context, pin string, fn func(*domain.Session) error) (domain.Session, error) {
	entry, ok := s.entryByPIN(pin)
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	next := entry.session.Clone()
	if err := fn(&next); err != nil {
		return domain.Session{}, err
	}
	next.Version = entry.session.Version + 1
	entry.session = next
	return next.Clone(), nil
}

func (s *SessionStore) ListFinishedByHost(_ context.Context, hostID string) ([]domain.Session, error) {
	s.mu.RLock()
	entries := make([]*sessionEntry, 0, len(s.byID))
	for _, entry := range s.byID {
		entries = append(entries, entry)
	}
	s.mu.RUnlock()

	var out []domain.Session
	for _, entry := range entries {
		entry.mu.Lock()
		if entry.session.HostID == hostID && entry.session.Status == domain.StatusFinished {
			out = append(out, entry.session.Clone())
		}
		entry.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *SessionStore) entryByPIN(pin string) (*sessionEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byPIN[pin]
	if !ok {
		return nil, false
	}
	entry, ok := s.byID[id]
	return entry, ok
}
