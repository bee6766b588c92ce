package services

import "folio/internal/domain/models/fanout"

// EventPublisher delivers change notifications to subscribers.
// Publish must never block on slow subscribers.
type EventPublisher interface {
	Publish(topic fanout.Topic, eventType fanout.EventType, data any)
}
