package revision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	mstream "github.com/haowjy/meridian-stream-go"

	"folio/internal/domain"
	"folio/internal/domain/models/docsystem"
	"folio/internal/domain/models/revision"
	docsysRepo "folio/internal/domain/repositories/docsystem"
	revisionSvc "folio/internal/domain/services/revision"
)

// Stream event types emitted by revision jobs
const (
	eventRevisionComplete = "revision_complete"
	eventRevisionFailed   = "revision_failed"
)

// Completer receives the outcome of a revision job
type Completer interface {
	ReviseComplete(ctx context.Context, messageID, addressID string) (*revision.Message, error)
	FailRevision(ctx context.Context, messageID, reason string) (*revision.Message, error)
}

// StreamRunner runs each revision as an mstream stream registered under the
// message ID, so FailRevision can cancel it from any request.
type StreamRunner struct {
	registry    *mstream.Registry
	contentRepo docsysRepo.ContentAddressRepository
	reviser     revisionSvc.Reviser
	timeout     time.Duration
	logger      *slog.Logger

	mu        sync.Mutex
	completer Completer
	active    map[string]struct{}
	wg        sync.WaitGroup
}

// NewStreamRunner creates a runner. Attach must be called before Submit.
func NewStreamRunner(
	registry *mstream.Registry,
	contentRepo docsysRepo.ContentAddressRepository,
	reviser revisionSvc.Reviser,
	timeout time.Duration,
	logger *slog.Logger,
) *StreamRunner {
	return &StreamRunner{
		registry:    registry,
		contentRepo: contentRepo,
		reviser:     reviser,
		timeout:     timeout,
		logger:      logger,
		active:      make(map[string]struct{}),
	}
}

// Attach sets the receiver of job outcomes (the message service)
func (r *StreamRunner) Attach(c Completer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completer = c
}

// Submit starts revision work for a REVISING message
func (r *StreamRunner) Submit(msg *revision.Message) {
	r.mu.Lock()
	if _, running := r.active[msg.ID]; running {
		r.mu.Unlock()
		return
	}
	r.active[msg.ID] = struct{}{}
	r.wg.Add(1)
	r.mu.Unlock()

	job := *msg
	stream := mstream.NewStream(msg.ID, func(ctx context.Context, send func(mstream.Event)) error {
		defer r.finish(job.ID)
		return r.run(ctx, &job, send)
	})
	r.registry.Register(stream)
	revisionsRunning.Inc()
	stream.Start()

	r.logger.Debug("revision submitted", "message_id", msg.ID, "document_id", msg.DocumentID)
}

// Cancel stops the running job for messageID. Returns false when none is running.
func (r *StreamRunner) Cancel(messageID string) bool {
	r.mu.Lock()
	_, running := r.active[messageID]
	r.mu.Unlock()
	if !running {
		return false
	}

	stream := r.registry.Get(messageID)
	if stream == nil {
		return false
	}
	stream.Cancel()
	return true
}

// Wait blocks until every submitted job has finished or ctx is done
func (r *StreamRunner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *StreamRunner) finish(messageID string) {
	r.mu.Lock()
	delete(r.active, messageID)
	r.mu.Unlock()
	revisionsRunning.Dec()
	r.wg.Done()
}

func (r *StreamRunner) run(ctx context.Context, msg *revision.Message, send func(mstream.Event)) error {
	r.mu.Lock()
	completer := r.completer
	r.mu.Unlock()
	if completer == nil {
		return errors.New("revision runner has no completer attached")
	}

	start := time.Now()
	workCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	addr, err := r.revise(workCtx, msg)
	if err != nil {
		outcome, reason := outcomeFailed, err.Error()
		switch {
		case errors.Is(ctx.Err(), context.Canceled):
			// Cancelled by FailRevision, which already recorded the reason
			revisionDuration.WithLabelValues(outcomeCancelled).Observe(time.Since(start).Seconds())
			r.logger.Info("revision cancelled", "message_id", msg.ID)
			return err
		case errors.Is(workCtx.Err(), context.DeadlineExceeded):
			outcome = outcomeTimedOut
			reason = fmt.Sprintf("revision timed out after %s", r.timeout)
		}
		revisionDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())

		// The job context may be done; record the failure on a fresh one
		if _, failErr := completer.FailRevision(context.Background(), msg.ID, reason); failErr != nil && !errors.Is(failErr, domain.ErrConflict) {
			r.logger.Error("failed to record revision failure",
				"message_id", msg.ID,
				"error", failErr,
			)
		}
		r.send(send, eventRevisionFailed, map[string]string{"message_id": msg.ID, "reason": reason})
		r.logger.Warn("revision failed", "message_id", msg.ID, "reason", reason)
		return err
	}

	if _, err := completer.ReviseComplete(context.Background(), msg.ID, addr.ID); err != nil {
		// Conflict here means the message was failed or deleted meanwhile
		r.logger.Warn("revision result discarded",
			"message_id", msg.ID,
			"address_id", addr.ID,
			"error", err,
		)
		return err
	}

	revisionDuration.WithLabelValues(outcomeRevised).Observe(time.Since(start).Seconds())
	r.send(send, eventRevisionComplete, map[string]string{"message_id": msg.ID, "address_id": addr.ID})
	r.logger.Info("revision complete",
		"message_id", msg.ID,
		"address_id", addr.ID,
		"duration", time.Since(start),
	)
	return nil
}

// revise computes the proposal and stores it as a content address of the document
func (r *StreamRunner) revise(ctx context.Context, msg *revision.Message) (*docsystem.ContentAddress, error) {
	instruction, ok := msg.RevisionRequest()
	if !ok {
		return nil, errors.New("message has no revision request")
	}

	var base []byte
	if before := msg.Metadata.ContentAddressBefore; before != nil {
		addr, err := r.contentRepo.Get(ctx, msg.DocumentID, *before)
		if err != nil {
			return nil, fmt.Errorf("load base content: %w", err)
		}
		base = addr.Payload
	}

	proposed, err := r.reviser.Revise(ctx, &revisionSvc.ReviseInput{
		MessageID:   msg.ID,
		DocumentID:  msg.DocumentID,
		Base:        base,
		Content:     msg.Content,
		Instruction: instruction,
	})
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	addr := &docsystem.ContentAddress{
		ID:         uuid.NewString(),
		DocumentID: msg.DocumentID,
		Hash:       docsystem.HashPayload(proposed),
		Payload:    proposed,
		Size:       len(proposed),
		CreatedBy:  msg.AuthorID,
		CreatedAt:  time.Now().UTC(),
	}
	if _, err := r.contentRepo.Put(ctx, addr); err != nil {
		return nil, fmt.Errorf("store proposal: %w", err)
	}
	return addr, nil
}

func (r *StreamRunner) send(send func(mstream.Event), eventType string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		return
	}
	send(mstream.NewEvent(raw).WithType(eventType))
}
