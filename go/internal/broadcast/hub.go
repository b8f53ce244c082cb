// Package broadcast is an in-process publish/subscribe hub keyed by topic.
//
// Every subscriber owns a buffered channel. Publishing never blocks: a
// subscriber that is not keeping up loses the message and is expected to
// catch up by polling the authoritative state.
package broadcast

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// DefaultBuffer is the per-subscription channel capacity.
const DefaultBuffer = 64

// Hub fans messages of type T out to the subscribers of a topic.
type Hub[T any] struct {
	mu     sync.RWMutex
	topics map[string]map[*Subscription[T]]struct{}
	buffer int
	closed bool

	published atomic.Int64
	dropped   atomic.Int64
}

// NewHub creates a hub whose subscriptions buffer up to buffer messages.
func NewHub[T any](buffer int) *Hub[T] {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub[T]{
		topics: make(map[string]map[*Subscription[T]]struct{}),
		buffer: buffer,
	}
}

// Subscription receives messages published to one topic until Close is called.
type Subscription[T any] struct {
	Topic string
	C     <-chan T

	ch   chan T
	hub  *Hub[T]
	once sync.Once
}

// Close unsubscribes and closes C. It is safe to call more than once.
func (s *Subscription[T]) Close() {
	s.once.Do(func() {
		s.hub.remove(s)
	})
}

// Subscribe registers a new subscriber for topic.
func (h *Hub[T]) Subscribe(topic string) *Subscription[T] {
	ch := make(chan T, h.buffer)
	sub := &Subscription[T]{Topic: topic, C: ch, ch: ch, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return sub
	}
	if h.topics[topic] == nil {
		h.topics[topic] = make(map[*Subscription[T]]struct{})
	}
	h.topics[topic][sub] = struct{}{}

	log.Debug().
		Str("topic", topic).
		Int("subscribers", len(h.topics[topic])).
		Msg("subscription added")
	return sub
}

// Publish delivers msg to every current subscriber of topic and returns how
// many received it.
func (h *Hub[T]) Publish(topic string, msg T) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	h.published.Add(1)
	delivered := 0
	for sub := range h.topics[topic] {
		select {
		case sub.ch <- msg:
			delivered++
		default:
			h.dropped.Add(1)
			log.Warn().Str("topic", topic).Msg("subscriber buffer full, dropping message")
		}
	}
	return delivered
}

// Subscribers returns the number of subscribers of topic.
func (h *Hub[T]) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Stats summarises hub activity.
type Stats struct {
	Topics        int   `json:"topics"`
	Subscriptions int   `json:"subscriptions"`
	Published     int64 `json:"published"`
	Dropped       int64 `json:"dropped"`
}

// Stats returns a snapshot of hub counters.
func (h *Hub[T]) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s := Stats{Topics: len(h.topics), Published: h.published.Load(), Dropped: h.dropped.Load()}
	for _, subs := range h.topics {
		s.Subscriptions += len(subs)
	}
	return s
}

// Close drops every subscription and refuses new ones.
func (h *Hub[T]) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for topic, subs := range h.topics {
		for sub := range subs {
			close(sub.ch)
		}
		delete(h.topics, topic)
	}
}

func (h *Hub[T]) remove(sub *Subscription[T]) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.topics[sub.Topic]
	if !ok {
		return
	}
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	close(sub.ch)
	if len(subs) == 0 {
		delete(h.topics, sub.Topic)
	}
}
