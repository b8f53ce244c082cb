package match

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/gambit/go/internal/models"
)

// MemoryRepository keeps matches in process. It backs tests and the
// single-process development server.
type MemoryRepository struct {
	mu      sync.RWMutex
	matches map[uuid.UUID]*models.Match
	moves   map[uuid.UUID][]models.Move
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		matches: make(map[uuid.UUID]*models.Match),
		moves:   make(map[uuid.UUID][]models.Move),
	}
}

var _ MatchRepository = (*MemoryRepository)(nil)

func (r *MemoryRepository) CreateMatch(_ context.Context, m *models.Match) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insertLocked(m)
}

// insertLocked stores m. The caller holds r.mu.
func (r *MemoryRepository) insertLocked(m *models.Match) error {
	if _, ok := r.matches[m.ID]; ok {
		return ErrDuplicateMatch
	}
	r.matches[m.ID] = m.Clone()
	return nil
}

// Locker exposes the store mutex so that a pairing store sharing this
// repository can claim queue entries and insert a match atomically.
func (r *MemoryRepository) Locker() sync.Locker {
	return &r.mu
}

// InsertLocked stores m while the caller holds Locker().
func (r *MemoryRepository) InsertLocked(m *models.Match) error {
	return r.insertLocked(m)
}

// ActiveForUserLocked is GetActiveMatchForUser for callers holding Locker().
func (r *MemoryRepository) ActiveForUserLocked(userID string) *models.Match {
	var found *models.Match
	for _, m := range r.matches {
		if m.Status == models.MatchStatusCompleted || !m.IsParticipant(userID) {
			continue
		}
		if found == nil || m.CreatedAt.After(found.CreatedAt) {
			found = m
		}
	}
	if found == nil {
		return nil
	}
	return found.Clone()
}

func (r *MemoryRepository) GetMatch(_ context.Context, id uuid.UUID) (*models.Match, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.matches[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return m.Clone(), nil
}

func (r *MemoryRepository) GetActiveMatchForUser(_ context.Context, userID string) (*models.Match, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if m := r.ActiveForUserLocked(userID); m != nil {
		return m, nil
	}
	return nil, models.ErrNotFound
}

func (r *MemoryRepository) ApplyMove(_ context.Context, expectedPly int, m *models.Match, mv *models.Move) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.matches[m.ID]
	if !ok {
		return models.ErrNotFound
	}
	if cur.Status != models.MatchStatusActive || cur.PlyCount != expectedPly {
		return models.ErrStalePly
	}
	for _, existing := range r.moves[m.ID] {
		if existing.PlyNumber == mv.PlyNumber {
			return models.ErrStalePly
		}
	}

	r.matches[m.ID] = m.Clone()
	r.moves[m.ID] = append(r.moves[m.ID], *mv)
	return nil
}

func (r *MemoryRepository) UpdateMatch(_ context.Context, expectedPly int, expectedStatus models.MatchStatus, m *models.Match) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.matches[m.ID]
	if !ok {
		return models.ErrNotFound
	}
	if cur.Status != expectedStatus || cur.PlyCount != expectedPly {
		return models.ErrStalePly
	}
	r.matches[m.ID] = m.Clone()
	return nil
}

func (r *MemoryRepository) ListMoves(_ context.Context, matchID uuid.UUID) ([]models.Move, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.matches[matchID]; !ok {
		return nil, models.ErrNotFound
	}
	out := make([]models.Move, len(r.moves[matchID]))
	copy(out, r.moves[matchID])
	sort.Slice(out, func(i, j int) bool { return out[i].PlyNumber < out[j].PlyNumber })
	return out, nil
}

func (r *MemoryRepository) ListOverdue(_ context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var due []*models.Match
	for _, m := range r.matches {
		if m.Status == models.MatchStatusActive && m.NextDeadline != nil && !m.NextDeadline.After(now) {
			due = append(due, m)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextDeadline.Before(*due[j].NextDeadline) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	ids := make([]uuid.UUID, 0, len(due))
	for _, m := range due {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

func (r *MemoryRepository) ListActive(_ context.Context, limit int) ([]*models.Match, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.Match
	for _, m := range r.matches {
		if m.Status == models.MatchStatusActive {
			out = append(out, m.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
