package clocksession

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/gambit/go/internal/models"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb, time.Hour), mr
}

func testSession(code string) *models.ClockSession {
	return &models.ClockSession{
		Code:           code,
		HostID:         "host",
		HostSide:       models.SideWhite,
		TimeControl:    60,
		WhiteRemaining: time.Minute,
		BlackRemaining: time.Minute,
		Turn:           models.SideWhite,
		IsActive:       true,
		Version:        1,
	}
}

func TestRedisStoreCreateAndGet(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, testSession("AB12K9")))
	assert.ErrorIs(t, store.Create(ctx, testSession("AB12K9")), ErrCodeTaken)

	got, err := store.Get(ctx, "AB12K9")
	require.NoError(t, err)
	assert.Equal(t, "host", got.HostID)
	assert.Equal(t, time.Minute, got.WhiteRemaining)
	assert.Equal(t, time.Hour, mr.TTL(sessionKey("AB12K9")))

	_, err = store.Get(ctx, "NOPE00")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestRedisStoreUpdateChecksVersion(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, testSession("AB12K9")))

	next := testSession("AB12K9")
	next.Version = 2
	next.GuestID = "guest"
	next.GuestConnected = true
	require.NoError(t, store.Update(ctx, 1, next))

	stale := testSession("AB12K9")
	stale.Version = 2
	assert.ErrorIs(t, store.Update(ctx, 1, stale), ErrVersionConflict)

	got, err := store.Get(ctx, "AB12K9")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	assert.True(t, got.GuestConnected)

	assert.ErrorIs(t, store.Update(ctx, 1, testSession("ZZZZZZ")), models.ErrNotFound)
}

func TestRedisStoreListAndDelete(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, testSession("AAAAAA")))
	require.NoError(t, store.Create(ctx, testSession("BBBBBB")))
	require.NoError(t, mr.Set("unrelated", "x"))

	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, store.Delete(ctx, "AAAAAA"))
	all, err = store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "BBBBBB", all[0].Code)

	mr.FastForward(2 * time.Hour)
	all, err = store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestAppOnRedisStore(t *testing.T) {
	store, _ := newRedisStore(t)
	app := NewApp(store, nil, nil)
	ctx := context.Background()

	s, err := app.Create(ctx, "host", models.SideWhite, 60, 0)
	require.NoError(t, err)
	s, err = app.Join(ctx, s.Code, "guest")
	require.NoError(t, err)
	s, err = app.Press(ctx, s.Code, "guest")
	require.NoError(t, err)
	assert.True(t, s.Started)
	assert.Equal(t, int64(3), s.Version)

	_, err = app.Join(ctx, s.Code, "third")
	assert.ErrorIs(t, err, models.ErrSessionAlreadyPaired)
}
