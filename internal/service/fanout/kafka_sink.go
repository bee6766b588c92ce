package fanout

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"folio/internal/domain/models/fanout"
)

// MessageWriter is the subset of *kafkago.Writer the sink uses
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaSink writes every locally published event to a change-feed topic.
// Messages are keyed by topic id so one document always maps to one
// partition and keeps its order.
type KafkaSink struct {
	writer    MessageWriter
	queue     chan fanout.Event
	batchSize int
	logger    *slog.Logger
}

// NewKafkaWriter builds the change-feed writer for brokers
func NewKafkaWriter(brokers []string, topic string) *kafkago.Writer {
	return &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
		Async:        false,
	}
}

// NewKafkaSink creates a sink over writer and registers it with the hub
func NewKafkaSink(writer MessageWriter, hub *Hub, logger *slog.Logger) *KafkaSink {
	s := &KafkaSink{
		writer:    writer,
		queue:     make(chan fanout.Event, 4096),
		batchSize: 100,
		logger:    logger,
	}
	hub.AddSink(s)
	return s
}

// Forward queues evt; drops it when the change feed is backed up
func (s *KafkaSink) Forward(evt fanout.Event) {
	select {
	case s.queue <- evt:
	default:
		droppedTotal.WithLabelValues(dropChangeFeed).Inc()
		s.logger.Warn("change feed queue full, event dropped", "topic", evt.Topic, "type", evt.Type)
	}
}

// Run drains the queue in batches until ctx ends, then closes the writer
func (s *KafkaSink) Run(ctx context.Context) error {
	defer func() {
		if err := s.writer.Close(); err != nil {
			s.logger.Error("failed to close change feed writer", "error", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt := <-s.queue:
			batch := []fanout.Event{evt}
		fill:
			for len(batch) < s.batchSize {
				select {
				case next := <-s.queue:
					batch = append(batch, next)
				default:
					break fill
				}
			}
			s.write(ctx, batch)
		}
	}
}

func (s *KafkaSink) write(ctx context.Context, batch []fanout.Event) {
	msgs := make([]kafkago.Message, 0, len(batch))
	for _, evt := range batch {
		value, err := json.Marshal(evt)
		if err != nil {
			s.logger.Error("failed to encode change feed event", "error", err)
			continue
		}
		_, id := evt.Topic.Scope()
		msgs = append(msgs, kafkago.Message{
			Key:   []byte(id),
			Value: value,
			Time:  evt.OccurredAt,
			Headers: []kafkago.Header{
				{Key: "type", Value: []byte(evt.Type)},
				{Key: "topic", Value: []byte(evt.Topic)},
			},
		})
	}

	if err := s.writer.WriteMessages(ctx, msgs...); err != nil {
		changeFeedWrites.WithLabelValues("error").Add(float64(len(msgs)))
		s.logger.Error("change feed write failed", "messages", len(msgs), "error", err)
		return
	}
	changeFeedWrites.WithLabelValues("ok").Add(float64(len(msgs)))
}
