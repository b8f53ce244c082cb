package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/gambit/go/internal/match/events"
	"github.com/mcdev12/gambit/go/internal/models"
)

type memRepo struct {
	mu     sync.Mutex
	events map[uuid.UUID]*OutboxEvent
}

func newMemRepo() *memRepo {
	return &memRepo{events: make(map[uuid.UUID]*OutboxEvent)}
}

func (m *memRepo) InsertOutboxEvent(_ context.Context, e OutboxEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[e.ID] = &e
	return nil
}

func (m *memRepo) FetchUnsentOutbox(_ context.Context, limit int32) ([]OutboxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []OutboxEvent
	for _, e := range m.events {
		if e.SentAt == nil {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > int(limit) {
		out = out[:limit]
	}
	return out, nil
}

func (m *memRepo) MarkOutboxSent(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.events[id]; ok {
		now := time.Now()
		e.SentAt = &now
	}
	return nil
}

func (m *memRepo) FetchOutboxByID(_ context.Context, id uuid.UUID) (*OutboxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok || e.SentAt != nil {
		return nil, models.ErrNotFound
	}
	c := *e
	return &c, nil
}

func (m *memRepo) DeleteSentOutbox(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, e := range m.events {
		if e.SentAt != nil && e.SentAt.Before(before) {
			delete(m.events, id)
			n++
		}
	}
	return n, nil
}

func (m *memRepo) CountUnsentOutbox(ctx context.Context) (int64, error) {
	return int64(m.unsent()), nil
}

func (m *memRepo) unsent() int {
	events, _ := m.FetchUnsentOutbox(context.Background(), 1000)
	return len(events)
}

type recordingPublisher struct {
	mu       sync.Mutex
	failures int
	sent     []OutboxEvent
}

func (p *recordingPublisher) Publish(_ context.Context, e OutboxEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures > 0 {
		p.failures--
		return errors.New("bus unavailable")
	}
	p.sent = append(p.sent, e)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent)
}

func TestEmitStoresEnvelope(t *testing.T) {
	repo := newMemRepo()
	clk := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	app := NewApp(repo, clk)
	matchID := uuid.New()

	err := app.Emit(context.Background(), events.MatchTopic(matchID), events.EventTypeMoveMade, events.MoveMadePayload{
		MatchID: matchID.String(), Ply: 1, Turn: "black",
	})
	require.NoError(t, err)

	stored, err := repo.FetchUnsentOutbox(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	e := stored[0]
	assert.Equal(t, matchID.String(), e.AggregateID)
	assert.Equal(t, string(events.EventTypeMoveMade), e.EventType)
	assert.Equal(t, events.MatchTopic(matchID), e.Headers["Topic"])

	var evt events.Event
	require.NoError(t, json.Unmarshal(e.Payload, &evt))
	assert.Equal(t, e.ID.String(), evt.ID)
	assert.Equal(t, events.MatchTopic(matchID), evt.Topic)
	assert.Equal(t, clk.Now(), evt.Timestamp)

	var p events.MoveMadePayload
	require.NoError(t, json.Unmarshal(evt.Data, &p))
	assert.Equal(t, 1, p.Ply)
}

func TestProcessUnsentKeepsFailures(t *testing.T) {
	repo := newMemRepo()
	app := NewApp(repo, nil)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, app.Emit(ctx, events.SessionTopic("AB12K9"), events.EventTypeClockSessionUpdated, map[string]int{"n": i}))
	}

	calls := 0
	n, err := app.ProcessUnsentEvents(ctx, 10, func(OutboxEvent) error {
		calls++
		if calls == 2 {
			return errors.New("boom")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, repo.unsent())

	_, err = app.FetchUnsentEvents(ctx, 0)
	assert.Error(t, err)
	assert.Error(t, app.InsertEvent(ctx, OutboxEvent{ID: uuid.New(), EventType: "Empty"}))
}

func TestListenerRelaysNotifications(t *testing.T) {
	repo := newMemRepo()
	clk := clockwork.NewFakeClock()
	app := NewApp(repo, clk)
	pub := &recordingPublisher{}
	notify := make(chan *pq.Notification, 4)

	cfg := DefaultListenerConfig()
	cfg.RetryDelay = 0
	l := newListener(app, pub, cfg, clk, notify, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Start(ctx) }()

	matchID := uuid.New()
	require.NoError(t, app.Emit(ctx, events.MatchTopic(matchID), events.EventTypeMatchStarted, events.MatchStartedPayload{MatchID: matchID.String()}))
	stored, _ := repo.FetchUnsentOutbox(ctx, 1)
	require.Len(t, stored, 1)

	notify <- &pq.Notification{Extra: stored[0].ID.String()}
	require.Eventually(t, func() bool { return repo.unsent() == 0 }, time.Second, 5*time.Millisecond)

	// a second notification for the same row is a no-op
	notify <- &pq.Notification{Extra: stored[0].ID.String()}
	notify <- &pq.Notification{Extra: "not-a-uuid"}

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 1, pub.count())
}

func TestListenerSweepsOnStartAndReconnect(t *testing.T) {
	repo := newMemRepo()
	clk := clockwork.NewFakeClock()
	app := NewApp(repo, clk)
	pub := &recordingPublisher{}
	notify := make(chan *pq.Notification, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, app.Emit(ctx, "match.a", events.EventTypeMatchStarted, map[string]string{}))

	cfg := DefaultListenerConfig()
	cfg.RetryDelay = 0
	l := newListener(app, pub, cfg, clk, notify, nil, nil)
	go func() { _ = l.Start(ctx) }()

	require.Eventually(t, func() bool { return pub.count() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, app.Emit(ctx, "match.b", events.EventTypeMatchStarted, map[string]string{}))
	notify <- nil
	require.Eventually(t, func() bool { return pub.count() == 2 }, time.Second, 5*time.Millisecond)
}

func TestPublishWithRetry(t *testing.T) {
	cfg := DefaultListenerConfig()
	cfg.RetryDelay = 0
	cfg.MaxRetries = 2
	pub := &recordingPublisher{failures: 2}
	l := newListener(NewApp(newMemRepo(), nil), pub, cfg, clockwork.NewFakeClock(), nil, nil, nil)

	require.NoError(t, l.publishWithRetry(context.Background(), OutboxEvent{ID: uuid.New()}))
	assert.Equal(t, 1, pub.count())

	pub.failures = 3
	err := l.publishWithRetry(context.Background(), OutboxEvent{ID: uuid.New()})
	assert.ErrorContains(t, err, "after 3 attempts")
}

func TestPurgeSent(t *testing.T) {
	repo := newMemRepo()
	app := NewApp(repo, nil)
	ctx := context.Background()
	require.NoError(t, app.Emit(ctx, "match.a", events.EventTypeMatchStarted, map[string]string{}))
	stored, _ := repo.FetchUnsentOutbox(ctx, 1)
	require.NoError(t, app.MarkEventSent(ctx, stored[0].ID))

	n, err := app.PurgeSent(ctx, -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

type fakeRelay struct {
	processed uint64
	lastSent  time.Time
	running   bool
}

func (f fakeRelay) Stats() (uint64, time.Time) { return f.processed, f.lastSent }
func (f fakeRelay) Running() bool              { return f.running }

func TestHealthCheck(t *testing.T) {
	repo := newMemRepo()
	clk := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	app := NewApp(repo, clk)
	ctx := context.Background()
	ok := func(context.Context) error { return nil }

	h := NewHealthChecker(fakeRelay{running: true}, app, ok, func() bool { return true }, time.Minute)
	h.clock = clk
	status := h.Check(ctx)
	assert.True(t, status.Healthy)
	assert.True(t, status.DatabaseConnected)
	assert.True(t, status.BusConnected)
	assert.Empty(t, status.Errors)

	// pending work with a stalled relay
	require.NoError(t, app.Emit(ctx, "match.a", events.EventTypeMatchStarted, map[string]string{}))
	h.relay = fakeRelay{running: true, processed: 3, lastSent: clk.Now().Add(-2 * time.Minute)}
	status = h.Check(ctx)
	assert.False(t, status.Healthy)
	assert.Equal(t, int64(1), status.PendingEvents)
	assert.Equal(t, uint64(3), status.EventsProcessed)

	h = NewHealthChecker(fakeRelay{}, app, func(context.Context) error { return errors.New("down") }, func() bool { return false }, time.Minute)
	status = h.Check(ctx)
	assert.False(t, status.Healthy)
	assert.False(t, status.DatabaseConnected)
	assert.Len(t, status.Errors, 3)
}

func TestListenerTracksRelayedEvents(t *testing.T) {
	repo := newMemRepo()
	clk := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	app := NewApp(repo, clk)
	cfg := DefaultListenerConfig()
	cfg.RetryDelay = 0
	l := newListener(app, &recordingPublisher{}, cfg, clk, nil, nil, nil)
	ctx := context.Background()

	processed, last := l.Stats()
	assert.Zero(t, processed)
	assert.True(t, last.IsZero())
	assert.False(t, l.Running())

	require.NoError(t, app.Emit(ctx, "match.a", events.EventTypeMatchStarted, map[string]string{}))
	require.NoError(t, app.Emit(ctx, "match.b", events.EventTypeMatchStarted, map[string]string{}))
	require.NoError(t, l.processUnsent(ctx))

	processed, last = l.Stats()
	assert.Equal(t, uint64(2), processed)
	assert.True(t, clk.Now().Equal(last))
}
