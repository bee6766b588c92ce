package revision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"folio/internal/config"
	"folio/internal/domain"
	"folio/internal/domain/models/docsystem"
	"folio/internal/domain/models/fanout"
	"folio/internal/domain/models/revision"
	"folio/internal/domain/models/timeline"
	"folio/internal/domain/repositories"
	docsysRepo "folio/internal/domain/repositories/docsystem"
	revisionRepo "folio/internal/domain/repositories/revision"
	"folio/internal/domain/services"
	revisionSvc "folio/internal/domain/services/revision"
	timelineSvc "folio/internal/domain/services/timeline"
	fanoutSvc "folio/internal/service/fanout"
)

const (
	reasonInterrupted = "revision interrupted by server restart"
	defaultFailReason = "revision failed"
	acceptedSummary   = "Accepted revision"
)

// Service implements MessageService. It owns the message lifecycle and the
// accept path, which is the only writer of a document head after creation.
type Service struct {
	messageRepo revisionRepo.MessageRepository
	threadRepo  revisionRepo.ThreadRepository
	docRepo     docsysRepo.DocumentRepository
	contentRepo docsysRepo.ContentAddressRepository
	authorizer  services.DocumentAuthorizer
	txManager   repositories.TransactionManager
	recorder    timelineSvc.Recorder
	timeline    timelineSvc.TimelineService
	publisher   services.EventPublisher
	blobs       services.BlobStore
	runner      revisionSvc.Runner
	stripes     *fanoutSvc.Stripes
	maxSummary  int
	logger      *slog.Logger
}

// Config groups the collaborators of the message service. Blobs is optional;
// without it file attachments are accepted unverified.
type Config struct {
	MessageRepo      revisionRepo.MessageRepository
	ThreadRepo       revisionRepo.ThreadRepository
	DocRepo          docsysRepo.DocumentRepository
	ContentRepo      docsysRepo.ContentAddressRepository
	Authorizer       services.DocumentAuthorizer
	TxManager        repositories.TransactionManager
	Recorder         timelineSvc.Recorder
	Timeline         timelineSvc.TimelineService
	Publisher        services.EventPublisher
	Blobs            services.BlobStore
	Runner           revisionSvc.Runner
	Stripes          *fanoutSvc.Stripes
	MaxSummaryLength int
	Logger           *slog.Logger
}

// NewService creates a new message service
func NewService(cfg Config) *Service {
	maxSummary := cfg.MaxSummaryLength
	if maxSummary <= 0 {
		maxSummary = config.MaxSummaryLength
	}
	return &Service{
		messageRepo: cfg.MessageRepo,
		threadRepo:  cfg.ThreadRepo,
		docRepo:     cfg.DocRepo,
		contentRepo: cfg.ContentRepo,
		authorizer:  cfg.Authorizer,
		txManager:   cfg.TxManager,
		recorder:    cfg.Recorder,
		timeline:    cfg.Timeline,
		publisher:   cfg.Publisher,
		blobs:       cfg.Blobs,
		runner:      cfg.Runner,
		stripes:     cfg.Stripes,
		maxSummary:  maxSummary,
		logger:      cfg.Logger,
	}
}

var (
	_ revisionSvc.MessageService = (*Service)(nil)
	_ Completer                  = (*Service)(nil)
)

// CreateMessage stores a message in PENDING and moves it on in the same
// transaction: to COMPLETED for a comment, to REVISING for an edit proposal.
// Document-thread messages also get a Message timeline event.
func (s *Service) CreateMessage(ctx context.Context, req *revisionSvc.CreateMessageRequest) (*revision.Message, error) {
	if err := validateMessageRequest(req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	documentID := req.DocumentID
	containerID := req.DocumentID
	var thread *revision.Thread
	if req.ThreadID != nil {
		t, err := s.threadRepo.GetByID(ctx, *req.ThreadID)
		if err != nil {
			return nil, err
		}
		if documentID != "" && documentID != t.DocumentID {
			return nil, &domain.ValidationError{Message: "thread belongs to a different document"}
		}
		if req.ReplyTo != nil {
			return nil, &domain.ValidationError{Message: "reply_to is only valid in the document thread"}
		}
		thread = t
		documentID = t.DocumentID
		containerID = t.ID
	}
	if documentID == "" {
		return nil, &domain.ValidationError{Message: "document_id is required"}
	}

	if _, err := s.authorizer.Authorize(ctx, req.UserID, documentID, docsystem.AccessComment); err != nil {
		return nil, err
	}
	attachments, err := s.checkAttachments(ctx, req.UserID, req.Attachments)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	msg := &revision.Message{
		ID:             uuid.NewString(),
		ContainerID:    containerID,
		DocumentID:     documentID,
		ThreadID:       copyString(req.ThreadID),
		Content:        req.Content,
		Attachments:    attachments,
		LifecycleStage: revision.StagePending,
		AuthorID:       req.UserID,
		Metadata:       revision.Metadata{RevisionStatus: revision.StatusUnspecified},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	edit := msg.ImpliesEdit()

	defer s.stripes.Lock(documentID)()

	var evt *timeline.Event
	err = s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		if edit {
			// The base is the head at submission; accept compares against it
			doc, err := s.docRepo.GetByID(txCtx, documentID)
			if err != nil {
				return err
			}
			msg.Metadata.ContentAddressBefore = copyString(doc.HeadAddress)
		}

		if err := s.messageRepo.Create(txCtx, msg); err != nil {
			return err
		}

		if thread == nil {
			var err error
			evt, err = s.recorder.Record(txCtx, &timelineSvc.AppendRequest{
				DocumentID: documentID,
				AuthorID:   req.UserID,
				Payload:    timeline.MessagePayload{MessageID: msg.ID},
				ReplyTo:    req.ReplyTo,
			})
			if err != nil {
				return err
			}
			if err := s.messageRepo.SetTimelineEvent(txCtx, msg.ID, evt.ID); err != nil {
				return err
			}
		} else {
			touched, err := s.threadRepo.Touch(txCtx, thread.ID)
			if err != nil {
				return err
			}
			thread = touched
		}

		next := revision.StageCompleted
		if edit {
			next = revision.StageRevising
		}
		updated, err := s.messageRepo.Transition(txCtx, revision.MessageTransition{
			MessageID: msg.ID,
			FromStage: revision.StagePending,
			ToStage:   next,
			Metadata:  msg.Metadata,
		})
		if err != nil {
			return err
		}
		msg = updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	if evt != nil {
		content := msg.Content
		rendered := *evt
		rendered.Payload = timeline.MessagePayload{MessageID: msg.ID, Content: &content}
		s.publisher.Publish(fanout.DocumentTopic(documentID), fanout.TimelineInserted, &rendered)
	}
	s.publishMessage(ctx, msg)
	if thread != nil {
		s.publishThread(thread)
	}
	if edit {
		s.runner.Submit(msg)
	}

	s.logger.Info("message created",
		"message_id", msg.ID,
		"document_id", documentID,
		"container_id", containerID,
		"stage", msg.LifecycleStage,
	)
	return msg, nil
}

// GetMessage retrieves a message the caller can view
func (s *Service) GetMessage(ctx context.Context, userID, messageID string) (*revision.Message, error) {
	msg, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorizer.Authorize(ctx, userID, msg.DocumentID, docsystem.AccessView); err != nil {
		return nil, err
	}
	maskHidden(msg, userID)
	return msg, nil
}

// ReviseComplete records the proposed address: REVISING → REVISED
func (s *Service) ReviseComplete(ctx context.Context, messageID, addressID string) (*revision.Message, error) {
	if addressID == "" {
		return nil, &domain.ValidationError{Message: "content address is required"}
	}

	msg, unlock, err := s.lockMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if _, err := s.contentRepo.Describe(ctx, msg.DocumentID, addressID); err != nil {
		return nil, err
	}

	md := msg.Metadata
	md.ContentAddress = &addressID
	updated, err := s.messageRepo.Transition(ctx, revision.MessageTransition{
		MessageID: messageID,
		FromStage: revision.StageRevising,
		ToStage:   revision.StageRevised,
		Metadata:  md,
	})
	if err != nil {
		return nil, err
	}

	s.publishMessage(ctx, updated)
	s.logger.Info("revision proposed",
		"message_id", messageID,
		"document_id", updated.DocumentID,
		"address_id", addressID,
	)
	return updated, nil
}

// FailRevision aborts revision work: REVISING → COMPLETED with the reason
// recorded and an error attachment appended. A running job is cancelled.
func (s *Service) FailRevision(ctx context.Context, messageID, reason string) (*revision.Message, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = defaultFailReason
	}

	msg, unlock, err := s.lockMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	updated, err := s.messageRepo.Transition(ctx, revision.MessageTransition{
		MessageID:        messageID,
		FromStage:        revision.StageRevising,
		ToStage:          revision.StageCompleted,
		Reason:           &reason,
		Metadata:         msg.Metadata,
		AppendAttachment: revision.ErrorAttachment{Message: reason},
	})
	if err != nil {
		return nil, err
	}
	s.runner.Cancel(messageID)

	s.publishMessage(ctx, updated)
	s.logger.Warn("revision failed",
		"message_id", messageID,
		"document_id", updated.DocumentID,
		"error", &domain.RevisionFailedError{MessageID: messageID, Reason: reason},
	)
	return updated, nil
}

// AbortRevision lets the author or an editor fail a revision in progress
func (s *Service) AbortRevision(ctx context.Context, userID, messageID, reason string) (*revision.Message, error) {
	if utf8.RuneCountInString(reason) > s.maxSummary {
		return nil, &domain.ValidationError{Message: fmt.Sprintf("reason must be at most %d characters", s.maxSummary)}
	}
	msg, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	required := docsystem.AccessEdit
	if msg.AuthorID == userID {
		required = docsystem.AccessComment
	}
	if _, err := s.authorizer.Authorize(ctx, userID, msg.DocumentID, required); err != nil {
		return nil, err
	}
	return s.FailRevision(ctx, messageID, reason)
}

// UpdateRevisionStatus accepts or declines a REVISED proposal.
//
// Accept runs as one transaction: the message compare-and-swap, the document
// head compare-and-swap from contentAddressBefore to the proposal, and the
// Update timeline event. Any failure leaves head and message untouched.
func (s *Service) UpdateRevisionStatus(ctx context.Context, userID, messageID string, status revision.Status, expectedAddress string) (*revision.Message, error) {
	if status != revision.StatusAccepted && status != revision.StatusDeclined {
		return nil, &domain.ValidationError{Message: fmt.Sprintf("revision status must be %s or %s", revision.StatusAccepted, revision.StatusDeclined)}
	}
	if expectedAddress == "" {
		return nil, &domain.ValidationError{Message: "expected content address is required"}
	}
	decision := strings.ToLower(string(status))

	msg, unlock, err := s.lockMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if _, err := s.authorizer.Authorize(ctx, userID, msg.DocumentID, docsystem.AccessEdit); err != nil {
		return nil, err
	}
	if msg.LifecycleStage != revision.StageRevised {
		decisionsTotal.WithLabelValues(decision, "conflict").Inc()
		return nil, domain.NewConflict("message", messageID, fmt.Sprintf(
			"message is %s, only %s proposals can be accepted or declined", msg.LifecycleStage, revision.StageRevised))
	}
	if msg.Metadata.ContentAddress == nil || *msg.Metadata.ContentAddress != expectedAddress {
		decisionsTotal.WithLabelValues(decision, "conflict").Inc()
		return nil, domain.NewConflict("message", messageID, "the proposal has changed since it was read")
	}

	var (
		updated *revision.Message
		evt     *timeline.Event
	)
	err = s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		md := msg.Metadata
		md.RevisionStatus = status
		if status == revision.StatusAccepted {
			after := expectedAddress
			at := time.Now().UTC()
			md.ContentAddressAfter = &after
			md.ContentAddressAfterTimestamp = &at
		}

		var err error
		updated, err = s.messageRepo.Transition(txCtx, revision.MessageTransition{
			MessageID:          messageID,
			FromStage:          revision.StageRevised,
			ExpectedAddress:    &expectedAddress,
			RequireUnspecified: true,
			ToStage:            revision.StageCompleted,
			Metadata:           md,
		})
		if err != nil {
			return err
		}
		if status == revision.StatusDeclined {
			return nil
		}

		if _, err := s.docRepo.AdvanceHead(txCtx, msg.DocumentID, md.ContentAddressBefore, expectedAddress); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				return domain.NewConflict("document", msg.DocumentID,
					"the document head has moved since this proposal was made; derive a new proposal against the current head")
			}
			return err
		}

		evt, err = s.recorder.Record(txCtx, &timelineSvc.AppendRequest{
			DocumentID: msg.DocumentID,
			AuthorID:   userID,
			Payload: timeline.UpdatePayload{
				ContentAddressBefore: copyString(md.ContentAddressBefore),
				ContentAddress:       expectedAddress,
				MessageID:            &updated.ID,
				Summary:              s.summarize(msg.Content),
			},
		})
		return err
	})
	if err != nil {
		result := "error"
		if errors.Is(err, domain.ErrConflict) {
			result = "conflict"
		}
		decisionsTotal.WithLabelValues(decision, result).Inc()
		return nil, err
	}
	decisionsTotal.WithLabelValues(decision, "ok").Inc()

	if evt != nil {
		s.publisher.Publish(fanout.DocumentTopic(evt.DocumentID), fanout.TimelineInserted, evt)
		if doc, err := s.docRepo.GetByID(ctx, msg.DocumentID); err == nil {
			doc.Access = ""
			s.publisher.Publish(fanout.DocumentTopic(doc.ID), fanout.DocumentUpdated, doc)
		}
	}
	s.publishMessage(ctx, updated)

	s.logger.Info("revision decided",
		"message_id", messageID,
		"document_id", msg.DocumentID,
		"status", status,
		"address_id", expectedAddress,
	)
	return updated, nil
}

// EditMessage rewrites the body of the caller's own message
func (s *Service) EditMessage(ctx context.Context, userID, messageID, content string) (*revision.Message, error) {
	if err := validation.Validate(content,
		validation.Required,
		validation.Length(1, config.MaxMessageContentLength),
	); err != nil {
		return nil, &domain.ValidationError{Message: "content: " + err.Error()}
	}

	msg, err := s.loadOwn(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}

	updated, err := s.messageRepo.UpdateContent(ctx, msg.ID, content)
	if err != nil {
		return nil, err
	}
	s.publishMessage(ctx, updated)
	return updated, nil
}

// HideMessage toggles visibility. Authors may hide their own messages;
// editors may hide anyone's.
func (s *Service) HideMessage(ctx context.Context, userID, messageID string, hidden bool) (*revision.Message, error) {
	msg, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	required := docsystem.AccessEdit
	if msg.AuthorID == userID {
		required = docsystem.AccessComment
	}
	if _, err := s.authorizer.Authorize(ctx, userID, msg.DocumentID, required); err != nil {
		return nil, err
	}
	if msg.Hidden == hidden {
		return msg, nil
	}

	updated, err := s.messageRepo.SetHidden(ctx, messageID, hidden)
	if err != nil {
		return nil, err
	}
	s.publishMessage(ctx, updated)
	s.logger.Info("message visibility changed", "message_id", messageID, "hidden", hidden)
	return updated, nil
}

// DeleteMessage removes the caller's own message. Document-thread messages go
// through the timeline so their event, replies and bookmarks follow the
// timeline's deletion rules.
func (s *Service) DeleteMessage(ctx context.Context, userID, messageID string, deleteReplies bool) error {
	msg, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return err
	}

	if msg.InDocumentThread() && msg.TimelineEventID != nil {
		if err := s.timeline.Delete(ctx, userID, *msg.TimelineEventID, deleteReplies); err != nil {
			return err
		}
		if msg.LifecycleStage == revision.StageRevising {
			s.runner.Cancel(msg.ID)
		}
		return nil
	}

	if _, err := s.loadOwn(ctx, userID, messageID); err != nil {
		return err
	}

	unlock := s.stripes.Lock(msg.DocumentID)
	defer unlock()

	var detached []timeline.Event
	err = s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		var err error
		if detached, err = s.recorder.DetachMessages(txCtx, msg.DocumentID, []string{msg.ID}); err != nil {
			return err
		}
		return s.messageRepo.Delete(txCtx, []string{msg.ID})
	})
	if err != nil {
		return err
	}
	if msg.LifecycleStage == revision.StageRevising {
		s.runner.Cancel(msg.ID)
	}

	ref := fanout.DeletedRef{ID: msg.ID, DocumentID: msg.DocumentID}
	for _, topic := range s.messageTopics(ctx, msg) {
		s.publisher.Publish(topic, fanout.MessageDeleted, ref)
	}
	for i := range detached {
		s.publisher.Publish(fanout.DocumentTopic(detached[i].DocumentID), fanout.TimelineUpdated, &detached[i])
	}
	s.logger.Info("message deleted", "message_id", msg.ID, "document_id", msg.DocumentID)
	return nil
}

// CreateThread opens an AI-assist thread on a document
func (s *Service) CreateThread(ctx context.Context, req *revisionSvc.CreateThreadRequest) (*revision.Thread, error) {
	req.Title = strings.TrimSpace(req.Title)
	if err := validation.ValidateStruct(req,
		validation.Field(&req.UserID, validation.Required),
		validation.Field(&req.DocumentID, validation.Required),
		validation.Field(&req.Title, validation.Required, validation.Length(1, config.MaxTitleLength)),
	); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	if _, err := s.authorizer.Authorize(ctx, req.UserID, req.DocumentID, docsystem.AccessComment); err != nil {
		return nil, err
	}

	channelID := req.ChannelID
	if channelID == "" {
		channelID = req.DocumentID
	}
	now := time.Now().UTC()
	thread := &revision.Thread{
		ID:         uuid.NewString(),
		DocumentID: req.DocumentID,
		ChannelID:  channelID,
		Title:      req.Title,
		CreatedBy:  req.UserID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.threadRepo.Create(ctx, thread); err != nil {
		return nil, err
	}

	s.publishThread(thread)
	s.logger.Info("thread created",
		"thread_id", thread.ID,
		"document_id", thread.DocumentID,
		"channel_id", channelID,
	)
	return thread, nil
}

// ListThreads lists a document's threads, most recently active first
func (s *Service) ListThreads(ctx context.Context, userID, documentID string) ([]revision.Thread, error) {
	if _, err := s.authorizer.Authorize(ctx, userID, documentID, docsystem.AccessView); err != nil {
		return nil, err
	}
	return s.threadRepo.ListByDocument(ctx, documentID)
}

// GetThread returns a thread the caller can view
func (s *Service) GetThread(ctx context.Context, userID, threadID string) (*revision.Thread, error) {
	thread, err := s.threadRepo.GetByID(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorizer.Authorize(ctx, userID, thread.DocumentID, docsystem.AccessView); err != nil {
		return nil, err
	}
	return thread, nil
}

// ListThreadMessages lists a thread's messages oldest first
func (s *Service) ListThreadMessages(ctx context.Context, userID, threadID string) ([]revision.Message, error) {
	thread, err := s.threadRepo.GetByID(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorizer.Authorize(ctx, userID, thread.DocumentID, docsystem.AccessView); err != nil {
		return nil, err
	}

	msgs, err := s.messageRepo.ListByThread(ctx, threadID)
	if err != nil {
		return nil, err
	}
	for i := range msgs {
		maskHidden(&msgs[i], userID)
	}
	return msgs, nil
}

// RecoverOrphans fails every message left in REVISING by a previous process.
// Their jobs died with it and would otherwise never leave REVISING.
func (s *Service) RecoverOrphans(ctx context.Context) (int, error) {
	orphans, err := s.messageRepo.ListByStage(ctx, revision.StageRevising)
	if err != nil {
		return 0, fmt.Errorf("list revising messages: %w", err)
	}

	recovered := 0
	for _, msg := range orphans {
		if _, err := s.FailRevision(ctx, msg.ID, reasonInterrupted); err != nil {
			if errors.Is(err, domain.ErrConflict) || errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return recovered, err
		}
		recovered++
	}
	if recovered > 0 {
		s.logger.Warn("failed orphaned revisions", "count", recovered)
	}
	return recovered, nil
}

// lockMessage loads a message, takes its document's stripe and reloads it
// under the stripe. The caller must call unlock.
func (s *Service) lockMessage(ctx context.Context, messageID string) (*revision.Message, func(), error) {
	msg, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, nil, err
	}
	unlock := s.stripes.Lock(msg.DocumentID)
	msg, err = s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		unlock()
		return nil, nil, err
	}
	return msg, unlock, nil
}

// loadOwn loads a message the caller authored and can still comment on
func (s *Service) loadOwn(ctx context.Context, userID, messageID string) (*revision.Message, error) {
	msg, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorizer.Authorize(ctx, userID, msg.DocumentID, docsystem.AccessComment); err != nil {
		return nil, err
	}
	if msg.AuthorID != userID {
		return nil, &domain.ForbiddenError{Message: "only the author can change a message"}
	}
	return msg, nil
}

func (s *Service) checkAttachments(ctx context.Context, userID string, in revision.Attachments) (revision.Attachments, error) {
	out := make(revision.Attachments, 0, len(in))
	edits := 0
	for _, a := range in {
		if a == nil {
			continue
		}
		if a.Kind().ImpliesEdit() {
			edits++
		}

		switch a := a.(type) {
		case revision.ErrorAttachment:
			return nil, &domain.ValidationError{Message: "error attachments cannot be submitted"}
		case revision.SuggestionAttachment:
			if a.Original == "" {
				return nil, &domain.ValidationError{Message: "suggestion requires the original text"}
			}
		case revision.DocumentReferenceAttachment:
			if _, err := s.authorizer.Authorize(ctx, userID, a.DocumentID, docsystem.AccessView); err != nil {
				return nil, err
			}
		case revision.FileAttachment:
			if a.BlobKey == "" {
				return nil, &domain.ValidationError{Message: "file attachment requires a blob key"}
			}
			if s.blobs != nil {
				info, err := s.blobs.Stat(ctx, a.BlobKey)
				if err != nil {
					if errors.Is(err, domain.ErrNotFound) {
						return nil, &domain.ValidationError{Message: "attachment blob not found: " + a.BlobKey}
					}
					return nil, fmt.Errorf("stat attachment %s: %w", a.BlobKey, err)
				}
				a.Size = info.Size
				if a.MimeType == "" {
					a.MimeType = info.ContentType
				}
			}
			out = append(out, a)
			continue
		}
		out = append(out, a)
	}
	if edits > 1 {
		return nil, &domain.ValidationError{Message: "a message can carry at most one revision or suggestion"}
	}
	return out, nil
}

func (s *Service) messageTopics(ctx context.Context, msg *revision.Message) []fanout.Topic {
	topics := []fanout.Topic{fanout.DocumentTopic(msg.DocumentID)}
	if msg.ThreadID == nil {
		return topics
	}
	topics = append(topics, fanout.ThreadTopic(*msg.ThreadID))
	if thread, err := s.threadRepo.GetByID(ctx, *msg.ThreadID); err == nil && thread.ChannelID != "" {
		topics = append(topics, fanout.ChannelTopic(thread.ChannelID))
	}
	return topics
}

// publishMessage fans out a copy of msg. Subscribers are not known here, so
// a hidden body is masked for all of them, its author included.
func (s *Service) publishMessage(ctx context.Context, msg *revision.Message) {
	view := *msg
	maskHidden(&view, "")
	for _, topic := range s.messageTopics(ctx, msg) {
		s.publisher.Publish(topic, fanout.MessageUpserted, &view)
	}
}

func (s *Service) publishThread(thread *revision.Thread) {
	s.publisher.Publish(fanout.DocumentTopic(thread.DocumentID), fanout.ThreadUpserted, thread)
	if thread.ChannelID != "" && thread.ChannelID != thread.DocumentID {
		s.publisher.Publish(fanout.ChannelTopic(thread.ChannelID), fanout.ThreadUpserted, thread)
	}
}

// summarize derives the Update summary from the first line of the message
func (s *Service) summarize(content string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(content), "\n")
	line = strings.TrimSpace(line)
	if line == "" {
		return acceptedSummary
	}
	if utf8.RuneCountInString(line) > s.maxSummary {
		line = string([]rune(line)[:s.maxSummary])
	}
	return line
}

func validateMessageRequest(req *revisionSvc.CreateMessageRequest) error {
	return validation.ValidateStruct(req,
		validation.Field(&req.UserID, validation.Required),
		validation.Field(&req.Content,
			validation.When(len(req.Attachments) == 0, validation.Required),
			validation.Length(0, config.MaxMessageContentLength),
		),
		validation.Field(&req.Attachments, validation.Length(0, config.MaxAttachments)),
	)
}

// maskHidden blanks the body of a hidden message for everyone but its author
func maskHidden(msg *revision.Message, userID string) {
	if msg.Hidden && msg.AuthorID != userID {
		msg.Content = ""
	}
}

func copyString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
