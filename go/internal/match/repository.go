package match

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/gambit/go/internal/match/db"
	"github.com/mcdev12/gambit/go/internal/models"
	"github.com/mcdev12/gambit/go/internal/sqlutil"
)

// ErrDuplicateMatch is returned when a match id is already taken.
var ErrDuplicateMatch = errors.New("match already exists")

// Repository stores matches and moves in Postgres.
type Repository struct {
	db      *sql.DB
	queries *db.Queries
}

func NewRepository(database *sql.DB) *Repository {
	return &Repository{
		db:      database,
		queries: db.New(database),
	}
}

var _ MatchRepository = (*Repository)(nil)

func (r *Repository) CreateMatch(ctx context.Context, m *models.Match) error {
	return InsertMatch(ctx, r.queries, m)
}

// InsertMatch writes m using q, which may be bound to a caller's transaction.
func InsertMatch(ctx context.Context, q *db.Queries, m *models.Match) error {
	_, err := q.CreateMatch(ctx, db.CreateMatchParams{
		ID:               m.ID,
		WhiteID:          sqlutil.ToSqlString(m.WhiteID),
		BlackID:          sqlutil.ToSqlString(m.BlackID),
		Status:           string(m.Status),
		CurrentPosition:  m.CurrentPosition,
		Turn:             string(m.Turn),
		PlyCount:         int32(m.PlyCount),
		TimeControl:      int32(m.TimeControl),
		Increment:        int32(m.Increment),
		WhiteRemainingMs: m.WhiteRemaining.Milliseconds(),
		BlackRemainingMs: m.BlackRemaining.Milliseconds(),
		LastMoveAt:       sqlutil.ToSqlTime(m.LastMoveAt),
		Result:           resultToSql(m.Result),
		WinnerID:         sqlutil.ToSqlString(m.WinnerID),
		DrawOfferedBy:    sqlutil.ToSqlString(m.DrawOfferedBy),
		NextDeadline:     sqlutil.ToSqlTime(m.NextDeadline),
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
		CompletedAt:      sqlutil.ToSqlTime(m.CompletedAt),
	})
	if err != nil {
		if sqlutil.IsUniqueViolation(err) {
			return ErrDuplicateMatch
		}
		return fmt.Errorf("failed to insert match: %w", err)
	}
	return nil
}

func (r *Repository) GetMatch(ctx context.Context, id uuid.UUID) (*models.Match, error) {
	row, err := r.queries.GetMatch(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get match: %w", err)
	}
	return dbMatchToModel(row), nil
}

func (r *Repository) GetActiveMatchForUser(ctx context.Context, userID string) (*models.Match, error) {
	row, err := r.queries.GetOpenMatchForUser(ctx, sqlutil.ToSqlString(&userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get match for user: %w", err)
	}
	return dbMatchToModel(row), nil
}

// ApplyMove updates the match and inserts the move in one transaction.
// Losing the ply_count compare-and-set or the (match_id, ply_number)
// uniqueness check yields models.ErrStalePly.
func (r *Repository) ApplyMove(ctx context.Context, expectedPly int, m *models.Match, mv *models.Move) error {
	flags, err := json.Marshal(mv.Flags)
	if err != nil {
		return fmt.Errorf("failed to marshal move flags: %w", err)
	}

	return sqlutil.Run(ctx, r.db, newTxQueries, func(q *db.Queries) error {
		if err := updateIfCurrent(ctx, q, expectedPly, models.MatchStatusActive, m); err != nil {
			return err
		}
		err := q.InsertMove(ctx, db.InsertMoveParams{
			ID:            mv.ID,
			MatchID:       mv.MatchID,
			PlyNumber:     int32(mv.PlyNumber),
			PlayerID:      mv.PlayerID,
			Notation:      mv.Notation,
			San:           mv.SAN,
			PositionAfter: mv.PositionAfter,
			Flags:         sqlutil.ToNullRawMessage(flags),
			SubmittedAt:   mv.SubmittedAt,
		})
		if err != nil {
			if sqlutil.IsUniqueViolation(err) {
				return models.ErrStalePly
			}
			return fmt.Errorf("failed to insert move: %w", err)
		}
		return nil
	})
}

func newTxQueries(tx *sql.Tx) *db.Queries {
	return db.New(tx)
}

func (r *Repository) UpdateMatch(ctx context.Context, expectedPly int, expectedStatus models.MatchStatus, m *models.Match) error {
	return updateIfCurrent(ctx, r.queries, expectedPly, expectedStatus, m)
}

func updateIfCurrent(ctx context.Context, q *db.Queries, expectedPly int, expectedStatus models.MatchStatus, m *models.Match) error {
	n, err := q.UpdateMatchIfCurrent(ctx, db.UpdateMatchIfCurrentParams{
		ID:               m.ID,
		ExpectedPly:      int32(expectedPly),
		ExpectedStatus:   string(expectedStatus),
		WhiteID:          sqlutil.ToSqlString(m.WhiteID),
		BlackID:          sqlutil.ToSqlString(m.BlackID),
		Status:           string(m.Status),
		CurrentPosition:  m.CurrentPosition,
		Turn:             string(m.Turn),
		PlyCount:         int32(m.PlyCount),
		WhiteRemainingMs: m.WhiteRemaining.Milliseconds(),
		BlackRemainingMs: m.BlackRemaining.Milliseconds(),
		LastMoveAt:       sqlutil.ToSqlTime(m.LastMoveAt),
		Result:           resultToSql(m.Result),
		WinnerID:         sqlutil.ToSqlString(m.WinnerID),
		DrawOfferedBy:    sqlutil.ToSqlString(m.DrawOfferedBy),
		NextDeadline:     sqlutil.ToSqlTime(m.NextDeadline),
		UpdatedAt:        m.UpdatedAt,
		CompletedAt:      sqlutil.ToSqlTime(m.CompletedAt),
	})
	if err != nil {
		return fmt.Errorf("failed to update match: %w", err)
	}
	if n == 0 {
		return models.ErrStalePly
	}
	return nil
}

func (r *Repository) ListMoves(ctx context.Context, matchID uuid.UUID) ([]models.Move, error) {
	rows, err := r.queries.ListMoves(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list moves: %w", err)
	}

	moves := make([]models.Move, len(rows))
	for i, row := range rows {
		moves[i] = models.Move{
			ID:            row.ID,
			MatchID:       row.MatchID,
			PlyNumber:     int(row.PlyNumber),
			PlayerID:      row.PlayerID,
			Notation:      row.Notation,
			SAN:           row.San,
			PositionAfter: row.PositionAfter,
			SubmittedAt:   row.SubmittedAt,
		}
		if raw := sqlutil.FromNullRawMessage(row.Flags); raw != nil {
			if err := json.Unmarshal(raw, &moves[i].Flags); err != nil {
				return nil, fmt.Errorf("failed to unmarshal flags of ply %d: %w", row.PlyNumber, err)
			}
		}
	}
	return moves, nil
}

func (r *Repository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	ids, err := r.queries.ListOverdueMatches(ctx, db.ListOverdueMatchesParams{
		Now:   now,
		Limit: int32(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list overdue matches: %w", err)
	}
	return ids, nil
}

func (r *Repository) ListActive(ctx context.Context, limit int) ([]*models.Match, error) {
	rows, err := r.queries.ListActiveMatches(ctx, int32(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list active matches: %w", err)
	}
	out := make([]*models.Match, len(rows))
	for i, row := range rows {
		out[i] = dbMatchToModel(row)
	}
	return out, nil
}

func resultToSql(r *models.MatchResult) sql.NullString {
	if r == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*r), Valid: true}
}

func dbMatchToModel(row db.Match) *models.Match {
	m := &models.Match{
		ID:              row.ID,
		WhiteID:         sqlutil.FromSqlStringPtr(row.WhiteID),
		BlackID:         sqlutil.FromSqlStringPtr(row.BlackID),
		Status:          models.MatchStatus(row.Status),
		CurrentPosition: row.CurrentPosition,
		Turn:            models.Side(row.Turn),
		PlyCount:        int(row.PlyCount),
		TimeControl:     int(row.TimeControl),
		Increment:       int(row.Increment),
		WhiteRemaining:  time.Duration(row.WhiteRemainingMs) * time.Millisecond,
		BlackRemaining:  time.Duration(row.BlackRemainingMs) * time.Millisecond,
		LastMoveAt:      sqlutil.FromSqlTime(row.LastMoveAt),
		WinnerID:        sqlutil.FromSqlStringPtr(row.WinnerID),
		DrawOfferedBy:   sqlutil.FromSqlStringPtr(row.DrawOfferedBy),
		NextDeadline:    sqlutil.FromSqlTime(row.NextDeadline),
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
		CompletedAt:     sqlutil.FromSqlTime(row.CompletedAt),
	}
	if row.Result.Valid {
		res := models.MatchResult(row.Result.String)
		m.Result = &res
	}
	return m
}
