package notify

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	mu   sync.Mutex
	msgs []amqp.Publishing
	keys []string
}

func (f *fakeChannel) Publish(_, key string, _, _ bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
	f.keys = append(f.keys, key)
	return nil
}

func (f *fakeChannel) Close() error { return nil }

func (f *fakeChannel) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

func TestAMQPNotifierPublishesQueuedNotifications(t *testing.T) {
	ch := &fakeChannel{}
	n := newAMQPNotifier(ch, "match_notifications", 4)

	ctx, cancel := context.WithCancel(context.Background())
	go n.Run(ctx)

	n.Notify(ctx, Notification{Kind: KindMatchCompleted, MatchID: "m1", UserIDs: []string{"a", "b"}, Result: "timeout", WinnerID: "a"})

	require.Eventually(t, func() bool { return ch.count() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-n.done

	assert.Equal(t, "match_notifications", ch.keys[0])
	assert.Equal(t, "application/json", ch.msgs[0].ContentType)

	var got Notification
	require.NoError(t, json.Unmarshal(ch.msgs[0].Body, &got))
	assert.Equal(t, KindMatchCompleted, got.Kind)
	assert.Equal(t, "a", got.WinnerID)
}

func TestAMQPNotifierDropsWhenFull(t *testing.T) {
	n := newAMQPNotifier(&fakeChannel{}, "q", 1)
	n.Notify(context.Background(), Notification{MatchID: "1"})
	n.Notify(context.Background(), Notification{MatchID: "2"})
	assert.Len(t, n.pending, 1)
}
