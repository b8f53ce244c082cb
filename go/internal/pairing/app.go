// Package pairing matches waiting players who asked for the same time control.
package pairing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/gambit/go/internal/clock"
	"github.com/mcdev12/gambit/go/internal/match"
	"github.com/mcdev12/gambit/go/internal/models"
)

// QueueRepository defines what the pairing app needs from storage.
type QueueRepository interface {
	// ActiveMatch returns the user's unfinished match or models.ErrNotFound.
	ActiveMatch(ctx context.Context, userID string) (*models.Match, error)
	GetEntry(ctx context.Context, userID string) (*models.QueueEntry, error)
	// UpsertEntry stores the user's only entry, replacing one in another bucket.
	UpsertEntry(ctx context.Context, e models.QueueEntry) error
	// OldestOpponent returns the longest-waiting entry in bucket that is not
	// excludeUser's, or models.ErrNotFound.
	OldestOpponent(ctx context.Context, bucket models.Bucket, excludeUser string) (*models.QueueEntry, error)
	// ClaimAndCreate removes every entry and inserts m as one atomic step.
	// If any entry is already gone, or any of its users already has an open
	// match, nothing changes and models.ErrQueueRaceLost is returned.
	ClaimAndCreate(ctx context.Context, entries []models.QueueEntry, m *models.Match) error
	RemoveEntry(ctx context.Context, userID string) error
	Size(ctx context.Context) (int, error)
}

// MatchStarter announces a match created by the queue.
type MatchStarter interface {
	AnnounceStarted(ctx context.Context, m *models.Match)
}

// DefaultPollInterval is how often clients are expected to poll while queued.
const DefaultPollInterval = 2 * time.Second

const defaultClaimAttempts = 3

// JoinResult reports where a user stands after Join or Poll.
type JoinResult struct {
	Matched      bool               `json:"matched"`
	Match        *models.Match      `json:"match,omitempty"`
	Entry        *models.QueueEntry `json:"entry,omitempty"`
	PollInterval time.Duration      `json:"poll_interval"`
}

// App handles queue business logic
type App struct {
	repo          QueueRepository
	engine        *clock.Engine
	clock         clockwork.Clock
	starter       MatchStarter
	claimAttempts int
	pollInterval  time.Duration

	mu      sync.Mutex
	buckets map[models.Bucket]*sync.Mutex
}

// NewApp creates a new pairing App
func NewApp(repo QueueRepository, engine *clock.Engine, clk clockwork.Clock, starter MatchStarter, pollInterval time.Duration) *App {
	if engine == nil {
		engine = clock.NewEngine(clock.DefaultGrace)
	}
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &App{
		repo:          repo,
		engine:        engine,
		clock:         clk,
		starter:       starter,
		claimAttempts: defaultClaimAttempts,
		pollInterval:  pollInterval,
		buckets:       make(map[models.Bucket]*sync.Mutex),
	}
}

// Join puts userID in the queue for (timeControl, increment) and pairs them
// with the oldest compatible entry if there is one. A user who already has an
// active match gets that match back; one with an open challenge is refused.
func (a *App) Join(ctx context.Context, userID string, timeControl, increment int) (*JoinResult, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", models.ErrInvalidArgument)
	}
	if err := match.ValidateTimeControl(timeControl, increment); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	m, err := a.activeMatch(ctx, userID)
	if err != nil {
		return nil, err
	}
	if m != nil {
		if m.Status == models.MatchStatusWaiting {
			return nil, models.ErrChallengePending
		}
		return a.matched(m), nil
	}

	entry := models.QueueEntry{
		UserID:      userID,
		TimeControl: timeControl,
		Increment:   increment,
		JoinedAt:    a.clock.Now(),
	}
	existing, err := a.repo.GetEntry(ctx, userID)
	switch {
	case err == nil && existing.Bucket() == entry.Bucket():
		// rejoining the same pool keeps the place in line
		entry.JoinedAt = existing.JoinedAt
	case err != nil && !errors.Is(err, models.ErrNotFound):
		return nil, fmt.Errorf("failed to get queue entry: %w", err)
	}

	if err := a.repo.UpsertEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to enqueue: %w", err)
	}
	log.Debug().Str("user_id", userID).Int("time_control", timeControl).Int("increment", increment).Msg("joined queue")

	return a.tryPair(ctx, entry)
}

// Poll reports the user's status and retries pairing for a pending entry.
// An open challenge nobody accepted yet does not count as matched.
func (a *App) Poll(ctx context.Context, userID string) (*JoinResult, error) {
	m, err := a.activeMatch(ctx, userID)
	if err != nil {
		return nil, err
	}
	if m != nil && m.Status == models.MatchStatusActive {
		return a.matched(m), nil
	}

	entry, err := a.repo.GetEntry(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return &JoinResult{PollInterval: a.pollInterval}, nil
		}
		return nil, fmt.Errorf("failed to get queue entry: %w", err)
	}
	return a.tryPair(ctx, *entry)
}

// Leave removes the user's entry. Leaving twice is fine.
func (a *App) Leave(ctx context.Context, userID string) error {
	if err := a.repo.RemoveEntry(ctx, userID); err != nil {
		return fmt.Errorf("failed to leave queue: %w", err)
	}
	log.Debug().Str("user_id", userID).Msg("left queue")
	return nil
}

// Size returns the number of waiting entries.
func (a *App) Size(ctx context.Context) (int, error) {
	n, err := a.repo.Size(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count queue: %w", err)
	}
	return n, nil
}

func (a *App) tryPair(ctx context.Context, entry models.QueueEntry) (*JoinResult, error) {
	unlock := a.lockBucket(entry.Bucket())
	defer unlock()

	for attempt := 1; attempt <= a.claimAttempts; attempt++ {
		opp, err := a.repo.OldestOpponent(ctx, entry.Bucket(), entry.UserID)
		if errors.Is(err, models.ErrNotFound) {
			return a.queued(entry), nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to find opponent: %w", err)
		}

		// the player who waited longer gets white
		m := match.NewActiveMatch(a.engine, opp.UserID, entry.UserID, entry.TimeControl, entry.Increment, a.clock.Now())
		err = a.repo.ClaimAndCreate(ctx, []models.QueueEntry{*opp, entry}, m)
		if err == nil {
			log.Info().
				Str("match_id", m.ID.String()).
				Str("white", opp.UserID).
				Str("black", entry.UserID).
				Msg("paired from queue")
			if a.starter != nil {
				a.starter.AnnounceStarted(ctx, m)
			}
			return a.matched(m), nil
		}
		if !errors.Is(err, models.ErrQueueRaceLost) {
			return nil, fmt.Errorf("failed to pair: %w", err)
		}

		log.Debug().Str("user_id", entry.UserID).Int("attempt", attempt).Msg("queue race lost")

		// Someone else may have paired us in the meantime, leaving our
		// entry stale.
		current, err := a.activeMatch(ctx, entry.UserID)
		if err != nil {
			return nil, err
		}
		if current != nil {
			if err := a.repo.RemoveEntry(ctx, entry.UserID); err != nil {
				return nil, fmt.Errorf("failed to drop stale entry: %w", err)
			}
			if current.Status == models.MatchStatusWaiting {
				return nil, models.ErrChallengePending
			}
			return a.matched(current), nil
		}
		if err := a.dropIfSeated(ctx, *opp); err != nil {
			return nil, err
		}
		if _, err := a.repo.GetEntry(ctx, entry.UserID); errors.Is(err, models.ErrNotFound) {
			return &JoinResult{PollInterval: a.pollInterval}, nil
		}
	}
	return a.queued(entry), nil
}

func (a *App) activeMatch(ctx context.Context, userID string) (*models.Match, error) {
	m, err := a.repo.ActiveMatch(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to check active match: %w", err)
	}
	return m, nil
}

// dropIfSeated removes an opponent's entry once they hold an open match, so
// the next attempt looks past them.
func (a *App) dropIfSeated(ctx context.Context, opp models.QueueEntry) error {
	m, err := a.activeMatch(ctx, opp.UserID)
	if err != nil || m == nil {
		return err
	}
	if err := a.repo.RemoveEntry(ctx, opp.UserID); err != nil {
		return fmt.Errorf("failed to drop stale entry: %w", err)
	}
	log.Debug().Str("user_id", opp.UserID).Str("match_id", m.ID.String()).Msg("dropped queue entry of seated user")
	return nil
}

func (a *App) matched(m *models.Match) *JoinResult {
	if m == nil {
		return nil
	}
	return &JoinResult{Matched: true, Match: m, PollInterval: a.pollInterval}
}

func (a *App) queued(entry models.QueueEntry) *JoinResult {
	return &JoinResult{Entry: &entry, PollInterval: a.pollInterval}
}

func (a *App) lockBucket(b models.Bucket) func() {
	a.mu.Lock()
	l, ok := a.buckets[b]
	if !ok {
		l = &sync.Mutex{}
		a.buckets[b] = l
	}
	a.mu.Unlock()

	l.Lock()
	return l.Unlock
}
