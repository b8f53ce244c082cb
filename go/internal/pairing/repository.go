package pairing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mcdev12/gambit/go/internal/match"
	matchdb "github.com/mcdev12/gambit/go/internal/match/db"
	"github.com/mcdev12/gambit/go/internal/models"
	"github.com/mcdev12/gambit/go/internal/pairing/db"
	"github.com/mcdev12/gambit/go/internal/sqlutil"
)

// Repository stores the queue in Postgres.
type Repository struct {
	db      *sql.DB
	queries *db.Queries
	matches *match.Repository
}

func NewRepository(database *sql.DB, matches *match.Repository) *Repository {
	return &Repository{
		db:      database,
		queries: db.New(database),
		matches: matches,
	}
}

var _ QueueRepository = (*Repository)(nil)

// txQueries binds both query sets to one transaction.
type txQueries struct {
	queue   *db.Queries
	matches *matchdb.Queries
}

func newTxQueries(tx *sql.Tx) *txQueries {
	return &txQueries{queue: db.New(tx), matches: matchdb.New(tx)}
}

func (r *Repository) ActiveMatch(ctx context.Context, userID string) (*models.Match, error) {
	return r.matches.GetActiveMatchForUser(ctx, userID)
}

func (r *Repository) GetEntry(ctx context.Context, userID string) (*models.QueueEntry, error) {
	row, err := r.queries.GetQueueEntry(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get queue entry: %w", err)
	}
	return dbEntryToModel(row), nil
}

func (r *Repository) UpsertEntry(ctx context.Context, e models.QueueEntry) error {
	err := r.queries.UpsertQueueEntry(ctx, db.UpsertQueueEntryParams{
		UserID:      e.UserID,
		TimeControl: int32(e.TimeControl),
		Increment:   int32(e.Increment),
		JoinedAt:    e.JoinedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert queue entry: %w", err)
	}
	return nil
}

func (r *Repository) OldestOpponent(ctx context.Context, bucket models.Bucket, excludeUser string) (*models.QueueEntry, error) {
	row, err := r.queries.OldestQueueOpponent(ctx, db.OldestQueueOpponentParams{
		TimeControl: int32(bucket.TimeControl),
		Increment:   int32(bucket.Increment),
		ExcludeUser: excludeUser,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find opponent: %w", err)
	}
	return dbEntryToModel(row), nil
}

// ClaimAndCreate deletes every entry and inserts the match in one
// transaction. A delete that touches no row, or a user who already holds an
// open match, means another pairing won.
func (r *Repository) ClaimAndCreate(ctx context.Context, entries []models.QueueEntry, m *models.Match) error {
	return sqlutil.Run(ctx, r.db, newTxQueries, func(q *txQueries) error {
		for _, e := range entries {
			n, err := q.queue.ClaimQueueEntry(ctx, db.ClaimQueueEntryParams{
				UserID:      e.UserID,
				TimeControl: int32(e.TimeControl),
				Increment:   int32(e.Increment),
			})
			if err != nil {
				return fmt.Errorf("failed to claim queue entry: %w", err)
			}
			if n == 0 {
				return models.ErrQueueRaceLost
			}
			_, err = q.matches.GetOpenMatchForUser(ctx, sqlutil.ToSqlString(&e.UserID))
			switch {
			case err == nil:
				return models.ErrQueueRaceLost
			case !errors.Is(err, sql.ErrNoRows):
				return fmt.Errorf("failed to check open match: %w", err)
			}
		}
		return match.InsertMatch(ctx, q.matches, m)
	})
}

func (r *Repository) RemoveEntry(ctx context.Context, userID string) error {
	if err := r.queries.DeleteQueueEntry(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete queue entry: %w", err)
	}
	return nil
}

func (r *Repository) Size(ctx context.Context) (int, error) {
	n, err := r.queries.CountQueueEntries(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count queue entries: %w", err)
	}
	return int(n), nil
}

func dbEntryToModel(row db.QueueEntry) *models.QueueEntry {
	return &models.QueueEntry{
		UserID:      row.UserID,
		TimeControl: int(row.TimeControl),
		Increment:   int(row.Increment),
		JoinedAt:    row.JoinedAt,
	}
}
