package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"folio/internal/domain/models/fanout"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func nextWithin(t *testing.T, sub *Subscription, d time.Duration) (fanout.Event, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return sub.Next(ctx)
}

func TestHub_DeliversInPublishOrder(t *testing.T) {
	hub := NewHub(Config{Shards: 4, BufferSize: 64}, testLogger())
	defer hub.Close()

	topic := fanout.DocumentTopic("doc-1")
	sub, err := hub.Subscribe(topic)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	for i := 0; i < 20; i++ {
		hub.Publish(topic, fanout.TimelineInserted, map[string]int{"n": i})
	}

	for i := 0; i < 20; i++ {
		evt, err := nextWithin(t, sub, time.Second)
		if err != nil {
			t.Fatalf("Next #%d: %v", i, err)
		}
		if evt.Seq != uint64(i+1) {
			t.Errorf("event %d: seq = %d, want %d", i, evt.Seq, i+1)
		}
		var body map[string]int
		if err := json.Unmarshal(evt.Data, &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body["n"] != i {
			t.Errorf("event %d: n = %d", i, body["n"])
		}
	}
}

func TestHub_TopicsAreIsolated(t *testing.T) {
	hub := NewHub(Config{}, testLogger())
	defer hub.Close()

	a, _ := hub.Subscribe(fanout.DocumentTopic("a"))
	b, _ := hub.Subscribe(fanout.DocumentTopic("b"))

	hub.Publish(fanout.DocumentTopic("a"), fanout.DocumentUpdated, "x")

	if _, err := nextWithin(t, a, time.Second); err != nil {
		t.Fatalf("subscriber a: %v", err)
	}
	if _, err := nextWithin(t, b, 20*time.Millisecond); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("subscriber b got %v, want deadline exceeded", err)
	}
}

func TestHub_SlowSubscriberDropsOldest(t *testing.T) {
	hub := NewHub(Config{BufferSize: 3}, testLogger())
	defer hub.Close()

	topic := fanout.ThreadTopic("t-1")
	slow, _ := hub.Subscribe(topic)
	fast, _ := hub.Subscribe(topic)

	for i := 0; i < 5; i++ {
		hub.Publish(topic, fanout.MessageUpserted, i)
		// fast drains as it goes
		if _, err := nextWithin(t, fast, time.Second); err != nil {
			t.Fatalf("fast subscriber: %v", err)
		}
	}

	_, err := nextWithin(t, slow, time.Second)
	var missed *MissedEventsError
	if !errors.As(err, &missed) {
		t.Fatalf("expected MissedEventsError, got %v", err)
	}
	if missed.Count != 2 {
		t.Errorf("missed = %d, want 2", missed.Count)
	}

	// The subscription recovers with the newest retained events
	for want := uint64(3); want <= 5; want++ {
		evt, err := nextWithin(t, slow, time.Second)
		if err != nil {
			t.Fatalf("Next after gap: %v", err)
		}
		if evt.Seq != want {
			t.Errorf("seq = %d, want %d", evt.Seq, want)
		}
	}
}

func TestHub_UnsubscribeReleasesState(t *testing.T) {
	hub := NewHub(Config{}, testLogger())
	defer hub.Close()

	topic := fanout.ChannelTopic("c-1")
	sub, _ := hub.Subscribe(topic, fanout.DocumentTopic("d-1"))
	if got := hub.SubscriberCount(topic); got != 1 {
		t.Fatalf("SubscriberCount = %d, want 1", got)
	}

	sub.Close()

	if got := hub.TopicCount(); got != 0 {
		t.Errorf("TopicCount after unsubscribe = %d, want 0", got)
	}
	if _, err := nextWithin(t, sub, time.Second); !errors.Is(err, ErrSubscriptionClosed) {
		t.Errorf("Next after close = %v, want ErrSubscriptionClosed", err)
	}
	// Idempotent
	sub.Close()
}

func TestHub_AddAndRemoveTopics(t *testing.T) {
	hub := NewHub(Config{}, testLogger())
	defer hub.Close()

	sub, _ := hub.Subscribe()
	doc := fanout.DocumentTopic("d")
	if err := hub.AddTopics(sub, doc); err != nil {
		t.Fatalf("AddTopics: %v", err)
	}
	hub.Publish(doc, fanout.DocumentUpdated, nil)
	if _, err := nextWithin(t, sub, time.Second); err != nil {
		t.Fatalf("Next: %v", err)
	}

	hub.RemoveTopics(sub, doc)
	if got := hub.SubscriberCount(doc); got != 0 {
		t.Errorf("SubscriberCount = %d, want 0", got)
	}
}

func TestHub_AddTopicsRacingUnsubscribeLeavesNoGroups(t *testing.T) {
	hub := NewHub(Config{Shards: 2}, testLogger())
	defer hub.Close()

	for i := 0; i < 500; i++ {
		sub, err := hub.Subscribe()
		if err != nil {
			t.Fatalf("Subscribe: %v", err)
		}
		topics := []fanout.Topic{fanout.DocumentTopic("d"), fanout.ThreadTopic("t"), fanout.ChannelTopic("c")}

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			err := hub.AddTopics(sub, topics...)
			if err != nil && !errors.Is(err, ErrSubscriptionClosed) {
				t.Errorf("AddTopics: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			hub.Unsubscribe(sub)
		}()
		wg.Wait()

		if n := hub.TopicCount(); n != 0 {
			t.Fatalf("iteration %d: %d topic groups survive a closed subscriber", i, n)
		}
	}

	sub, _ := hub.Subscribe()
	sub.Close()
	if err := hub.AddTopics(sub, fanout.DocumentTopic("d")); !errors.Is(err, ErrSubscriptionClosed) {
		t.Errorf("AddTopics after close = %v, want ErrSubscriptionClosed", err)
	}
}

func TestHub_CloseWakesBlockedSubscribers(t *testing.T) {
	hub := NewHub(Config{}, testLogger())
	sub, _ := hub.Subscribe(fanout.DocumentTopic("d"))

	errCh := make(chan error, 1)
	go func() {
		_, err := sub.Next(context.Background())
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	hub.Close()

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrSubscriptionClosed) {
			t.Errorf("Next = %v, want ErrSubscriptionClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Next did not return after Close")
	}

	if _, err := hub.Subscribe(fanout.DocumentTopic("d")); !errors.Is(err, ErrHubClosed) {
		t.Errorf("Subscribe after Close = %v, want ErrHubClosed", err)
	}
}

func TestHub_InjectSkipsOwnEvents(t *testing.T) {
	hub := NewHub(Config{InstanceID: "node-a"}, testLogger())
	defer hub.Close()

	topic := fanout.DocumentTopic("d")
	sub, _ := hub.Subscribe(topic)

	hub.Inject(fanout.Event{Topic: topic, Type: fanout.TimelineInserted, Origin: "node-a"})
	hub.Inject(fanout.Event{Topic: topic, Type: fanout.TimelineDeleted, Origin: "node-b"})

	evt, err := nextWithin(t, sub, time.Second)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if evt.Type != fanout.TimelineDeleted {
		t.Errorf("type = %s, want relayed event only", evt.Type)
	}
	if sub.Pending() != 0 {
		t.Errorf("pending = %d, want 0", sub.Pending())
	}
}

func TestHub_ConcurrentPublishersKeepSequence(t *testing.T) {
	hub := NewHub(Config{BufferSize: 1000}, testLogger())
	defer hub.Close()

	topic := fanout.DocumentTopic("busy")
	sub, _ := hub.Subscribe(topic)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				hub.Publish(topic, fanout.TimelineInserted, i)
			}
		}()
	}
	wg.Wait()

	for want := uint64(1); want <= 400; want++ {
		evt, err := nextWithin(t, sub, time.Second)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if evt.Seq != want {
			t.Fatalf("seq = %d, want %d", evt.Seq, want)
		}
	}
}

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafkago.Message
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *fakeWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.msgs)
}

func TestKafkaSink_WritesKeyedByDocument(t *testing.T) {
	hub := NewHub(Config{}, testLogger())
	defer hub.Close()

	writer := &fakeWriter{}
	sink := NewKafkaSink(writer, hub, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = sink.Run(ctx)
		close(done)
	}()

	hub.Publish(fanout.DocumentTopic("doc-9"), fanout.DocumentUpdated, map[string]string{"title": "x"})
	hub.Publish(fanout.DocumentTopic("doc-9"), fanout.TimelineInserted, nil)

	deadline := time.Now().Add(time.Second)
	for writer.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	writer.mu.Lock()
	defer writer.mu.Unlock()
	if len(writer.msgs) != 2 {
		t.Fatalf("wrote %d messages, want 2", len(writer.msgs))
	}
	for _, m := range writer.msgs {
		if string(m.Key) != "doc-9" {
			t.Errorf("key = %q, want doc-9", m.Key)
		}
	}
	if !writer.closed {
		t.Error("writer not closed on shutdown")
	}
}

func TestStripes_SameKeySameLock(t *testing.T) {
	s := NewStripes(8)
	if stripeIndex("doc-1", 8) != stripeIndex("doc-1", 8) {
		t.Fatal("stripe index is not stable")
	}
	unlock := s.Lock("doc-1")
	unlock()
	unlock = s.Lock("doc-1")
	unlock()
}
