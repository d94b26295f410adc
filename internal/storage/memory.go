package storage

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/your-org/facesessions/internal/models"
)

// MemoryStore keeps sessions in process memory. It backs tests and local runs
// against the same contract as PostgresStore.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]models.Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]models.Session)}
}

func (s *MemoryStore) CreateSession(_ context.Context, sess *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[sess.ID]; exists {
		return ErrDuplicateID
	}
	s.sessions[sess.ID] = cloneSession(*sess)
	return nil
}

func (s *MemoryStore) GetSessionByID(_ context.Context, id string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneSession(sess)
	return &out, nil
}

func (s *MemoryStore) ListSessions(_ context.Context, userID string, page models.Pagination) ([]models.Session, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var owned []models.Session
	for _, sess := range s.sessions {
		if sess.UserID == userID {
			owned = append(owned, sess)
		}
	}
	slices.SortFunc(owned, func(a, b models.Session) int {
		return strings.Compare(b.ID, a.ID)
	})

	out := []models.Session{}
	start := page.Offset()
	if start >= 0 && start < len(owned) {
		end := min(start+page.Limit, len(owned))
		for _, sess := range owned[start:end] {
			out = append(out, cloneSession(sess))
		}
	}
	return out, len(owned), nil
}

func (s *MemoryStore) UpdateSession(_ context.Context, id string, summary []models.FileResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	sess.Summary = slices.Clone(summary)
	s.sessions[id] = sess
	return nil
}

func (s *MemoryStore) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(s.sessions, id)
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func cloneSession(sess models.Session) models.Session {
	sess.Summary = summaryOrEmpty(slices.Clone(sess.Summary))
	return sess
}
