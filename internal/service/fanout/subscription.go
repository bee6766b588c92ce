package fanout

import (
	"context"
	"sync"

	"folio/internal/domain/models/fanout"
)

// Subscription is one subscriber's bounded queue. The hub pushes without
// blocking; when the queue is full the oldest event is discarded and the
// next call to Next reports a MissedEventsError.
type Subscription struct {
	id  string
	hub *Hub

	mu     sync.Mutex
	buf    []fanout.Event // ring buffer
	head   int
	count  int
	missed uint64
	closed bool
	topics map[fanout.Topic]struct{}

	notify chan struct{}
	done   chan struct{}
}

func newSubscription(id string, hub *Hub, capacity int) *Subscription {
	return &Subscription{
		id:     id,
		hub:    hub,
		buf:    make([]fanout.Event, capacity),
		topics: make(map[fanout.Topic]struct{}),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// ID returns the subscription identifier
func (s *Subscription) ID() string { return s.id }

// Topics returns the topics the subscription currently receives
func (s *Subscription) Topics() []fanout.Topic {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]fanout.Topic, 0, len(s.topics))
	for t := range s.topics {
		out = append(out, t)
	}
	return out
}

// Done is closed when the subscription ends
func (s *Subscription) Done() <-chan struct{} { return s.done }

// push enqueues evt, evicting the oldest event when full, and reports
// whether an event was evicted. Never blocks.
func (s *Subscription) push(evt fanout.Event) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	dropped := false
	if s.count == len(s.buf) {
		s.head = (s.head + 1) % len(s.buf)
		s.count--
		s.missed++
		dropped = true
	}
	s.buf[(s.head+s.count)%len(s.buf)] = evt
	s.count++
	s.mu.Unlock()

	if dropped {
		droppedTotal.WithLabelValues(dropOverflow).Inc()
	}
	select {
	case s.notify <- struct{}{}:
	default:
	}
	return dropped
}

// Next blocks until an event is available, the subscription closes or ctx ends.
// After an overflow it returns a *MissedEventsError once before resuming.
func (s *Subscription) Next(ctx context.Context) (fanout.Event, error) {
	for {
		s.mu.Lock()
		if s.missed > 0 {
			n := s.missed
			s.missed = 0
			s.mu.Unlock()
			return fanout.Event{}, &MissedEventsError{Count: n}
		}
		if s.count > 0 {
			evt := s.buf[s.head]
			s.buf[s.head] = fanout.Event{}
			s.head = (s.head + 1) % len(s.buf)
			s.count--
			s.mu.Unlock()
			return evt, nil
		}
		closed := s.closed
		s.mu.Unlock()

		if closed {
			return fanout.Event{}, ErrSubscriptionClosed
		}

		select {
		case <-s.notify:
		case <-s.done:
		case <-ctx.Done():
			return fanout.Event{}, ctx.Err()
		}
	}
}

// Pending returns the number of buffered events
func (s *Subscription) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Close unsubscribes from every topic and releases the buffer
func (s *Subscription) Close() {
	s.hub.Unsubscribe(s)
}

func (s *Subscription) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// shutdown marks the subscription closed; reports whether it was open
func (s *Subscription) shutdown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	s.buf = nil
	s.head, s.count = 0, 0
	close(s.done)
	return true
}
