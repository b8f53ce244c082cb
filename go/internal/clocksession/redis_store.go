package clocksession

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mcdev12/gambit/go/internal/models"
)

const keyPrefix = "clocksession:"

// DefaultSessionTTL bounds how long an untouched session is kept.
const DefaultSessionTTL = 12 * time.Hour

// RedisStore keeps each session as a JSON string under clocksession:{code}.
// Every write refreshes the TTL.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &RedisStore{rdb: rdb, ttl: ttl}
}

var _ Store = (*RedisStore)(nil)

func sessionKey(code string) string {
	return keyPrefix + code
}

func (r *RedisStore) Create(ctx context.Context, s *models.ClockSession) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	ok, err := r.rdb.SetNX(ctx, sessionKey(s.Code), data, r.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	if !ok {
		return ErrCodeTaken
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, code string) (*models.ClockSession, error) {
	return r.get(ctx, r.rdb, code)
}

func (r *RedisStore) get(ctx context.Context, c redis.Cmdable, code string) (*models.ClockSession, error) {
	data, err := c.Get(ctx, sessionKey(code)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	var s models.ClockSession
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session %s: %w", code, err)
	}
	return &s, nil
}

// Update is a WATCH/MULTI compare-and-set on the session version.
func (r *RedisStore) Update(ctx context.Context, expectedVersion int64, s *models.ClockSession) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	key := sessionKey(s.Code)

	err = r.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := r.get(ctx, tx, s.Code)
		if err != nil {
			return err
		}
		if cur.Version != expectedVersion {
			return ErrVersionConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, r.ttl)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrVersionConflict
	}
	return err
}

func (r *RedisStore) Delete(ctx context.Context, code string) error {
	if err := r.rdb.Del(ctx, sessionKey(code)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (r *RedisStore) List(ctx context.Context) ([]*models.ClockSession, error) {
	var out []*models.ClockSession
	iter := r.rdb.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		code := iter.Val()[len(keyPrefix):]
		s, err := r.get(ctx, r.rdb, code)
		if errors.Is(err, models.ErrNotFound) {
			continue // expired between SCAN and GET
		}
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan sessions: %w", err)
	}
	return out, nil
}
