package clocksession

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/mcdev12/gambit/go/internal/models"
)

var (
	// ErrCodeTaken is returned by Create when the code is in use.
	ErrCodeTaken = errors.New("session code already in use")
	// ErrVersionConflict is returned by Update when the session changed underneath.
	ErrVersionConflict = errors.New("session version conflict")
)

// Store persists clock sessions keyed by code.
type Store interface {
	Create(ctx context.Context, s *models.ClockSession) error
	Get(ctx context.Context, code string) (*models.ClockSession, error)
	// Update writes s only if the stored version still equals expectedVersion.
	Update(ctx context.Context, expectedVersion int64, s *models.ClockSession) error
	Delete(ctx context.Context, code string) error
	List(ctx context.Context) ([]*models.ClockSession, error)
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*models.ClockSession
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*models.ClockSession)}
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) Create(_ context.Context, s *models.ClockSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.Code]; ok {
		return ErrCodeTaken
	}
	m.sessions[s.Code] = s.Clone()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, code string) (*models.ClockSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[code]
	if !ok {
		return nil, models.ErrNotFound
	}
	return s.Clone(), nil
}

func (m *MemoryStore) Update(_ context.Context, expectedVersion int64, s *models.ClockSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.sessions[s.Code]
	if !ok {
		return models.ErrNotFound
	}
	if cur.Version != expectedVersion {
		return ErrVersionConflict
	}
	m.sessions[s.Code] = s.Clone()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, code)
	return nil
}

func (m *MemoryStore) List(context.Context) ([]*models.ClockSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.ClockSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}
