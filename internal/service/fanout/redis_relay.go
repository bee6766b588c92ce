package fanout

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"folio/internal/domain/models/fanout"
)

// RedisRelay mirrors hub events across instances through one Redis pub/sub
// channel. Outbound events are queued and published by Run; inbound events
// from other instances are injected into the local hub.
type RedisRelay struct {
	rdb     *redis.Client
	channel string
	hub     *Hub
	logger  *slog.Logger
	out     chan fanout.Event
}

// NewRedisRelay creates a relay and registers it as a hub sink
func NewRedisRelay(rdb *redis.Client, channel string, hub *Hub, logger *slog.Logger) *RedisRelay {
	r := &RedisRelay{
		rdb:     rdb,
		channel: channel,
		hub:     hub,
		logger:  logger,
		out:     make(chan fanout.Event, 1024),
	}
	hub.AddSink(r)
	return r
}

// Forward queues evt for publication; drops it when the queue is full
func (r *RedisRelay) Forward(evt fanout.Event) {
	select {
	case r.out <- evt:
	default:
		droppedTotal.WithLabelValues(dropRelay).Inc()
		r.logger.Warn("relay queue full, event not relayed", "topic", evt.Topic, "type", evt.Type)
	}
}

// Run publishes queued events and consumes the channel until ctx ends.
// A dropped subscription is re-established with exponential backoff.
func (r *RedisRelay) Run(ctx context.Context) error {
	go r.publishLoop(ctx)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 250 * time.Millisecond
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0 // retry until shutdown

	for {
		err := r.consume(ctx, bo)
		if ctx.Err() != nil {
			return nil
		}

		wait := bo.NextBackOff()
		relayReconnectsTotal.Inc()
		r.logger.Warn("redis relay subscription lost, reconnecting",
			"channel", r.channel,
			"retry_in", wait,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

func (r *RedisRelay) consume(ctx context.Context, bo backoff.BackOff) error {
	pubsub := r.rdb.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	// Receive blocks until the subscription is confirmed
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	bo.Reset()
	r.logger.Info("redis relay subscribed", "channel", r.channel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return redis.ErrClosed
			}
			var evt fanout.Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				r.logger.Warn("discarding malformed relay message", "error", err)
				continue
			}
			r.hub.Inject(evt)
		}
	}
}

func (r *RedisRelay) publishLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-r.out:
			b, err := json.Marshal(evt)
			if err != nil {
				r.logger.Error("failed to encode relay event", "error", err)
				continue
			}
			if err := r.rdb.Publish(ctx, r.channel, b).Err(); err != nil {
				droppedTotal.WithLabelValues(dropRelay).Inc()
				r.logger.Warn("failed to relay event", "topic", evt.Topic, "error", err)
			}
		}
	}
}
