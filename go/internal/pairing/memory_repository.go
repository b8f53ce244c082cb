package pairing

import (
	"context"

	"github.com/mcdev12/gambit/go/internal/match"
	"github.com/mcdev12/gambit/go/internal/models"
)

// MemoryRepository keeps the queue next to a match.MemoryRepository and
// shares its lock, so claiming entries and creating the match are one step.
type MemoryRepository struct {
	matches *match.MemoryRepository
	entries map[string]models.QueueEntry
}

func NewMemoryRepository(matches *match.MemoryRepository) *MemoryRepository {
	return &MemoryRepository{
		matches: matches,
		entries: make(map[string]models.QueueEntry),
	}
}

var _ QueueRepository = (*MemoryRepository)(nil)

func (r *MemoryRepository) ActiveMatch(ctx context.Context, userID string) (*models.Match, error) {
	return r.matches.GetActiveMatchForUser(ctx, userID)
}

func (r *MemoryRepository) GetEntry(_ context.Context, userID string) (*models.QueueEntry, error) {
	l := r.matches.Locker()
	l.Lock()
	defer l.Unlock()
	e, ok := r.entries[userID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &e, nil
}

func (r *MemoryRepository) UpsertEntry(_ context.Context, e models.QueueEntry) error {
	l := r.matches.Locker()
	l.Lock()
	defer l.Unlock()
	r.entries[e.UserID] = e
	return nil
}

func (r *MemoryRepository) OldestOpponent(_ context.Context, bucket models.Bucket, excludeUser string) (*models.QueueEntry, error) {
	l := r.matches.Locker()
	l.Lock()
	defer l.Unlock()

	var best *models.QueueEntry
	for _, e := range r.entries {
		if e.UserID == excludeUser || e.Bucket() != bucket {
			continue
		}
		if best == nil || e.JoinedAt.Before(best.JoinedAt) ||
			(e.JoinedAt.Equal(best.JoinedAt) && e.UserID < best.UserID) {
			e := e
			best = &e
		}
	}
	if best == nil {
		return nil, models.ErrNotFound
	}
	return best, nil
}

func (r *MemoryRepository) ClaimAndCreate(_ context.Context, entries []models.QueueEntry, m *models.Match) error {
	l := r.matches.Locker()
	l.Lock()
	defer l.Unlock()

	for _, want := range entries {
		got, ok := r.entries[want.UserID]
		if !ok || got.Bucket() != want.Bucket() {
			return models.ErrQueueRaceLost
		}
		if r.matches.ActiveForUserLocked(want.UserID) != nil {
			return models.ErrQueueRaceLost
		}
	}
	if err := r.matches.InsertLocked(m); err != nil {
		return err
	}
	for _, e := range entries {
		delete(r.entries, e.UserID)
	}
	return nil
}

func (r *MemoryRepository) RemoveEntry(_ context.Context, userID string) error {
	l := r.matches.Locker()
	l.Lock()
	defer l.Unlock()
	delete(r.entries, userID)
	return nil
}

func (r *MemoryRepository) Size(context.Context) (int, error) {
	l := r.matches.Locker()
	l.Lock()
	defer l.Unlock()
	return len(r.entries), nil
}
