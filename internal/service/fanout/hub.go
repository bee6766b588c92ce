// Package fanout delivers change events to subscribers of document, channel
// and thread topics, and optionally relays them to other instances (Redis)
// and to a change feed (Kafka).
package fanout

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"folio/internal/domain/models/fanout"
)

// Sink receives every locally originated event after local dispatch.
// Forward must not block.
type Sink interface {
	Forward(evt fanout.Event)
}

// Config configures a Hub
type Config struct {
	Shards     int    // Topic shards (default 16)
	BufferSize int    // Per-subscriber queue capacity (default 256)
	InstanceID string // Identifies this process in relayed events (default random)
}

type topicGroup struct {
	seq  uint64
	subs map[string]*Subscription
}

type shard struct {
	mu     sync.Mutex
	topics map[fanout.Topic]*topicGroup
}

// Hub is the process-wide subscriber registry. State is sharded by topic hash
// so publishers on different documents rarely contend.
type Hub struct {
	shards     []*shard
	bufferSize int
	instanceID string
	logger     *slog.Logger

	closed atomic.Bool

	liveMu sync.Mutex
	live   map[string]*Subscription

	sinksMu sync.RWMutex
	sinks   []Sink
}

// NewHub creates a hub. Its lifetime is the server's: call Close on shutdown.
func NewHub(cfg Config, logger *slog.Logger) *Hub {
	if cfg.Shards <= 0 {
		cfg.Shards = 16
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}

	h := &Hub{
		shards:     make([]*shard, cfg.Shards),
		bufferSize: cfg.BufferSize,
		instanceID: cfg.InstanceID,
		logger:     logger,
		live:       make(map[string]*Subscription),
	}
	for i := range h.shards {
		h.shards[i] = &shard{topics: make(map[fanout.Topic]*topicGroup)}
	}
	return h
}

// InstanceID identifies this hub in relayed events
func (h *Hub) InstanceID() string { return h.instanceID }

// AddSink registers a sink for locally published events
func (h *Hub) AddSink(s Sink) {
	h.sinksMu.Lock()
	defer h.sinksMu.Unlock()
	h.sinks = append(h.sinks, s)
}

func (h *Hub) shardFor(topic fanout.Topic) *shard {
	return h.shards[stripeIndex(string(topic), len(h.shards))]
}

// Subscribe opens a subscription on the given topics
func (h *Hub) Subscribe(topics ...fanout.Topic) (*Subscription, error) {
	if h.closed.Load() {
		return nil, ErrHubClosed
	}
	sub := newSubscription(uuid.NewString(), h, h.bufferSize)
	h.liveMu.Lock()
	h.live[sub.id] = sub
	h.liveMu.Unlock()
	subscriptionsActive.Inc()
	if err := h.AddTopics(sub, topics...); err != nil {
		h.Unsubscribe(sub)
		return nil, err
	}
	return sub, nil
}

// AddTopics adds topics to an open subscription
func (h *Hub) AddTopics(sub *Subscription, topics ...fanout.Topic) error {
	if h.closed.Load() {
		return ErrHubClosed
	}
	for _, topic := range topics {
		sub.mu.Lock()
		if sub.closed {
			sub.mu.Unlock()
			return ErrSubscriptionClosed
		}
		_, already := sub.topics[topic]
		sub.topics[topic] = struct{}{}
		sub.mu.Unlock()
		if already {
			continue
		}

		sh := h.shardFor(topic)
		sh.mu.Lock()
		// Unsubscribe or Close may have run since the check above; both
		// detach under this lock, so a late insert would never be removed
		if h.closed.Load() {
			sh.mu.Unlock()
			return ErrHubClosed
		}
		if sub.isClosed() {
			sh.mu.Unlock()
			return ErrSubscriptionClosed
		}
		group, ok := sh.topics[topic]
		if !ok {
			group = &topicGroup{subs: make(map[string]*Subscription)}
			sh.topics[topic] = group
			topicsActive.Inc()
		}
		group.subs[sub.id] = sub
		sh.mu.Unlock()
	}
	return nil
}

// RemoveTopics detaches topics from a subscription, dropping empty groups
func (h *Hub) RemoveTopics(sub *Subscription, topics ...fanout.Topic) {
	for _, topic := range topics {
		sub.mu.Lock()
		delete(sub.topics, topic)
		sub.mu.Unlock()
		h.detach(sub.id, topic)
	}
}

func (h *Hub) detach(subID string, topic fanout.Topic) {
	sh := h.shardFor(topic)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	group, ok := sh.topics[topic]
	if !ok {
		return
	}
	delete(group.subs, subID)
	if len(group.subs) == 0 {
		delete(sh.topics, topic)
		topicsActive.Dec()
	}
}

// Unsubscribe ends the subscription and releases all of its state
func (h *Hub) Unsubscribe(sub *Subscription) {
	if !sub.shutdown() {
		return
	}
	// Read after shutdown: AddTopics cannot record new topics past this point
	topics := sub.Topics()
	for _, topic := range topics {
		h.detach(sub.id, topic)
	}
	h.liveMu.Lock()
	delete(h.live, sub.id)
	h.liveMu.Unlock()
	subscriptionsActive.Dec()
}

// Publish dispatches a locally originated event and forwards it to the sinks.
// It never blocks on subscribers.
func (h *Hub) Publish(topic fanout.Topic, eventType fanout.EventType, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("failed to encode event", "topic", topic, "type", eventType, "error", err)
		return
	}

	evt := fanout.Event{
		Topic:      topic,
		Type:       eventType,
		Data:       raw,
		OccurredAt: time.Now().UTC(),
		Origin:     h.instanceID,
	}
	evt = h.dispatch(evt, "local")

	h.sinksMu.RLock()
	sinks := h.sinks
	h.sinksMu.RUnlock()
	for _, s := range sinks {
		s.Forward(evt)
	}
}

// Inject dispatches an event relayed from another instance. Events that
// originated here are ignored since they were already delivered.
func (h *Hub) Inject(evt fanout.Event) {
	if evt.Origin == h.instanceID {
		return
	}
	h.dispatch(evt, "remote")
}

// dispatch assigns the per-topic sequence and pushes to every subscriber.
// The shard lock is held across the pushes so sequence order equals
// delivery order for concurrent publishers.
func (h *Hub) dispatch(evt fanout.Event, origin string) fanout.Event {
	if h.closed.Load() {
		return evt
	}

	sh := h.shardFor(evt.Topic)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	group, ok := sh.topics[evt.Topic]
	if !ok {
		publishedTotal.WithLabelValues(string(evt.Type), origin).Inc()
		return evt
	}
	group.seq++
	evt.Seq = group.seq
	for _, sub := range group.subs {
		if sub.push(evt) {
			h.logger.Warn("subscriber overflow, oldest event dropped",
				"subscription_id", sub.id,
				"topic", evt.Topic,
			)
		}
	}
	publishedTotal.WithLabelValues(string(evt.Type), origin).Inc()
	return evt
}

// SubscriberCount returns the number of subscribers on a topic
func (h *Hub) SubscriberCount(topic fanout.Topic) int {
	sh := h.shardFor(topic)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if group, ok := sh.topics[topic]; ok {
		return len(group.subs)
	}
	return 0
}

// TopicCount returns the number of topics with subscribers
func (h *Hub) TopicCount() int {
	n := 0
	for _, sh := range h.shards {
		sh.mu.Lock()
		n += len(sh.topics)
		sh.mu.Unlock()
	}
	return n
}

// Close ends every subscription and rejects new ones
func (h *Hub) Close() {
	if !h.closed.CompareAndSwap(false, true) {
		return
	}

	for _, sh := range h.shards {
		sh.mu.Lock()
		for topic := range sh.topics {
			delete(sh.topics, topic)
			topicsActive.Dec()
		}
		sh.mu.Unlock()
	}

	h.liveMu.Lock()
	subs := h.live
	h.live = make(map[string]*Subscription)
	h.liveMu.Unlock()

	for _, sub := range subs {
		if sub.shutdown() {
			subscriptionsActive.Dec()
		}
	}
	h.logger.Info("fanout hub closed", "subscriptions", len(subs))
}
