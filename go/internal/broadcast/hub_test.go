package broadcast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishReachesTopicSubscribersOnly(t *testing.T) {
	h := NewHub[string](4)
	a := h.Subscribe("match-1")
	b := h.Subscribe("match-1")
	other := h.Subscribe("match-2")
	defer a.Close()
	defer b.Close()
	defer other.Close()

	n := h.Publish("match-1", "hello")
	assert.Equal(t, 2, n)
	assert.Equal(t, "hello", <-a.C)
	assert.Equal(t, "hello", <-b.C)

	select {
	case msg := <-other.C:
		t.Fatalf("unexpected message on other topic: %s", msg)
	default:
	}
}

func TestCloseUnsubscribes(t *testing.T) {
	h := NewHub[int](1)
	sub := h.Subscribe("t")
	require.Equal(t, 1, h.Subscribers("t"))

	sub.Close()
	sub.Close()
	assert.Equal(t, 0, h.Subscribers("t"))

	_, ok := <-sub.C
	assert.False(t, ok, "channel should be closed")
	assert.Equal(t, 0, h.Publish("t", 1))
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	h := NewHub[int](1)
	sub := h.Subscribe("t")
	defer sub.Close()

	assert.Equal(t, 1, h.Publish("t", 1))
	assert.Equal(t, 0, h.Publish("t", 2))
	assert.Equal(t, int64(1), h.Stats().Dropped)
	assert.Equal(t, 1, <-sub.C)
}

func TestHubClose(t *testing.T) {
	h := NewHub[int](1)
	sub := h.Subscribe("t")
	h.Close()

	_, ok := <-sub.C
	assert.False(t, ok)
	sub.Close()

	late := h.Subscribe("t")
	_, ok = <-late.C
	assert.False(t, ok)
	assert.Equal(t, 0, h.Stats().Subscriptions)
}
