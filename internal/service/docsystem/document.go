package docsystem

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"folio/internal/config"
	"folio/internal/domain"
	"folio/internal/domain/models/docsystem"
	"folio/internal/domain/models/fanout"
	"folio/internal/domain/models/timeline"
	"folio/internal/domain/repositories"
	docsysRepo "folio/internal/domain/repositories/docsystem"
	"folio/internal/domain/services"
	docsysSvc "folio/internal/domain/services/docsystem"
	timelineSvc "folio/internal/domain/services/timeline"
	fanoutSvc "folio/internal/service/fanout"
)

// documentService implements the DocumentService interface
type documentService struct {
	docRepo     docsysRepo.DocumentRepository
	contentRepo docsysRepo.ContentAddressRepository
	authorizer  services.DocumentAuthorizer
	txManager   repositories.TransactionManager
	recorder    timelineSvc.Recorder
	publisher   services.EventPublisher
	stripes     *fanoutSvc.Stripes
	maxPayload  int
	logger      *slog.Logger
}

// DocumentServiceConfig groups the collaborators of the document service
type DocumentServiceConfig struct {
	DocRepo         docsysRepo.DocumentRepository
	ContentRepo     docsysRepo.ContentAddressRepository
	Authorizer      services.DocumentAuthorizer
	TxManager       repositories.TransactionManager
	Recorder        timelineSvc.Recorder
	Publisher       services.EventPublisher
	Stripes         *fanoutSvc.Stripes
	MaxPayloadBytes int
	Logger          *slog.Logger
}

// NewDocumentService creates a new document service
func NewDocumentService(cfg DocumentServiceConfig) docsysSvc.DocumentService {
	maxPayload := cfg.MaxPayloadBytes
	if maxPayload <= 0 {
		maxPayload = config.MaxPayloadBytes
	}
	return &documentService{
		docRepo:     cfg.DocRepo,
		contentRepo: cfg.ContentRepo,
		authorizer:  cfg.Authorizer,
		txManager:   cfg.TxManager,
		recorder:    cfg.Recorder,
		publisher:   cfg.Publisher,
		stripes:     cfg.Stripes,
		maxPayload:  maxPayload,
		logger:      cfg.Logger,
	}
}

// CreateDocument creates a root document. An initial payload is stored as the
// first content address and recorded as an Update event after the owner's Join.
func (s *documentService) CreateDocument(ctx context.Context, req *docsysSvc.CreateDocumentRequest) (*docsystem.Document, error) {
	if err := s.validateCreateRequest(req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	now := time.Now().UTC()
	id := uuid.NewString()
	doc := &docsystem.Document{
		ID:           id,
		Title:        strings.TrimSpace(req.Title),
		IsPublic:     req.IsPublic,
		FolderID:     req.FolderID,
		OwnedBy:      req.UserID,
		Editors:      []string{},
		RootParentID: id,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	defer s.stripes.Lock(id)()

	var recorded []*timeline.Event
	err := s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		if err := s.docRepo.Create(txCtx, doc); err != nil {
			return err
		}

		join, err := s.recorder.Record(txCtx, &timelineSvc.AppendRequest{
			DocumentID: id,
			AuthorID:   req.UserID,
			Payload:    timeline.JoinPayload{},
		})
		if err != nil {
			return err
		}
		recorded = append(recorded, join)

		if req.InitialPayload == nil {
			return nil
		}
		update, err := s.installHead(txCtx, doc, req.UserID, []byte(*req.InitialPayload), timeline.UpdatePayload{
			Summary: "Initial content",
		})
		if err != nil {
			return err
		}
		recorded = append(recorded, update)
		return nil
	})
	if err != nil {
		return nil, err
	}

	doc.Access = docsystem.AccessOwner
	s.publisher.Publish(fanout.DocumentTopic(id), fanout.DocumentInserted, publicView(doc))
	s.publishInserted(recorded)

	s.logger.Info("document created",
		"document_id", id,
		"owner", req.UserID,
		"has_content", doc.HeadAddress != nil,
	)
	return doc, nil
}

// installHead stores payload in doc and moves the empty head onto it,
// recording an Update event built from tmpl
func (s *documentService) installHead(ctx context.Context, doc *docsystem.Document, userID string, payload []byte, tmpl timeline.UpdatePayload) (*timeline.Event, error) {
	addr := &docsystem.ContentAddress{
		ID:         uuid.NewString(),
		DocumentID: doc.ID,
		Hash:       docsystem.HashPayload(payload),
		Payload:    payload,
		Size:       len(payload),
		CreatedBy:  userID,
		CreatedAt:  time.Now().UTC(),
	}
	if _, err := s.contentRepo.Put(ctx, addr); err != nil {
		return nil, err
	}

	version, err := s.docRepo.AdvanceHead(ctx, doc.ID, nil, addr.ID)
	if err != nil {
		return nil, err
	}
	doc.HeadAddress = &addr.ID
	doc.HeadVersion = version

	tmpl.ContentAddress = addr.ID
	return s.recorder.Record(ctx, &timelineSvc.AppendRequest{
		DocumentID: doc.ID,
		AuthorID:   userID,
		Payload:    tmpl,
	})
}

// GetDocument retrieves a document with the caller's access level
func (s *documentService) GetDocument(ctx context.Context, userID, documentID string) (*docsystem.Document, error) {
	return s.authorizer.Authorize(ctx, userID, documentID, docsystem.AccessView)
}

// UpdateDocument applies title, visibility and folder changes. Each changed
// attribute becomes an AttributeChange event.
func (s *documentService) UpdateDocument(ctx context.Context, userID, documentID string, req *docsysSvc.UpdateDocumentRequest) (*docsystem.Document, error) {
	if err := s.validateUpdateRequest(req); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	// Visibility and placement belong to the owner; editors may retitle
	required := docsystem.AccessEdit
	if req.IsPublic != nil || req.FolderID != nil {
		required = docsystem.AccessOwner
	}
	if _, err := s.authorizer.Authorize(ctx, userID, documentID, required); err != nil {
		return nil, err
	}

	defer s.stripes.Lock(documentID)()

	var (
		doc      *docsystem.Document
		recorded []*timeline.Event
	)
	err := s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		var err error
		doc, err = s.docRepo.GetByID(txCtx, documentID)
		if err != nil {
			return err
		}

		var changes []timeline.AttributeChangePayload
		if req.Title != nil {
			title := strings.TrimSpace(*req.Title)
			if title != doc.Title {
				changes = append(changes, attributeChange("title", &doc.Title, &title))
				doc.Title = title
			}
		}
		if req.IsPublic != nil && *req.IsPublic != doc.IsPublic {
			oldValue, newValue := strconv.FormatBool(doc.IsPublic), strconv.FormatBool(*req.IsPublic)
			changes = append(changes, attributeChange("is_public", &oldValue, &newValue))
			doc.IsPublic = *req.IsPublic
		}
		if req.FolderID != nil {
			folderID := strings.TrimSpace(*req.FolderID)
			next := &folderID
			if folderID == "" {
				next = nil
			}
			if !sameString(doc.FolderID, next) {
				changes = append(changes, attributeChange("folder_id", doc.FolderID, next))
				doc.FolderID = next
			}
		}
		if len(changes) == 0 {
			return nil
		}

		doc.UpdatedAt = time.Now().UTC()
		if err := s.docRepo.Update(txCtx, doc); err != nil {
			return err
		}
		for _, change := range changes {
			evt, err := s.recorder.Record(txCtx, &timelineSvc.AppendRequest{
				DocumentID: documentID,
				AuthorID:   userID,
				Payload:    change,
			})
			if err != nil {
				return err
			}
			recorded = append(recorded, evt)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(recorded) > 0 {
		s.publisher.Publish(fanout.DocumentTopic(documentID), fanout.DocumentUpdated, publicView(doc))
		s.publishInserted(recorded)
		s.logger.Info("document updated", "document_id", documentID, "changes", len(recorded))
	}

	doc.Access = doc.AccessFor(userID)
	return doc, nil
}

// SetEditorAccess adds or removes editorID from the editor list (owner only)
func (s *documentService) SetEditorAccess(ctx context.Context, userID, documentID, editorID string, grant bool) (*docsystem.Document, error) {
	if strings.TrimSpace(editorID) == "" {
		return nil, &domain.ValidationError{Message: "editor id is required"}
	}
	if _, err := s.authorizer.Authorize(ctx, userID, documentID, docsystem.AccessOwner); err != nil {
		return nil, err
	}

	defer s.stripes.Lock(documentID)()

	var (
		doc      *docsystem.Document
		recorded *timeline.Event
	)
	err := s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		var err error
		doc, err = s.docRepo.GetByID(txCtx, documentID)
		if err != nil {
			return err
		}
		if editorID == doc.OwnedBy {
			return &domain.ValidationError{Message: "the owner's access cannot be changed"}
		}
		if doc.HasEditor(editorID) == grant {
			return nil
		}

		before := doc.AccessFor(editorID)
		if grant {
			doc.Editors = append(doc.Editors, editorID)
		} else {
			editors := make([]string, 0, len(doc.Editors))
			for _, e := range doc.Editors {
				if e != editorID {
					editors = append(editors, e)
				}
			}
			doc.Editors = editors
		}
		doc.UpdatedAt = time.Now().UTC()
		if err := s.docRepo.Update(txCtx, doc); err != nil {
			return err
		}

		recorded, err = s.recorder.Record(txCtx, &timelineSvc.AppendRequest{
			DocumentID: documentID,
			AuthorID:   userID,
			Payload: timeline.AccessChangePayload{
				UserID:    editorID,
				OldAccess: string(before),
				NewAccess: string(doc.AccessFor(editorID)),
			},
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	if recorded != nil {
		s.publisher.Publish(fanout.DocumentTopic(documentID), fanout.DocumentUpdated, publicView(doc))
		s.publishInserted([]*timeline.Event{recorded})
		s.logger.Info("editor access changed",
			"document_id", documentID,
			"editor_id", editorID,
			"granted", grant,
		)
	}

	doc.Access = docsystem.AccessOwner
	return doc, nil
}

// BranchDocument copies one content address of the source into a new
// document owned by the caller (copy-on-branch)
func (s *documentService) BranchDocument(ctx context.Context, req *docsysSvc.BranchDocumentRequest) (*docsystem.Document, error) {
	if err := validation.ValidateStruct(req,
		validation.Field(&req.AddressID, validation.Required),
		validation.Field(&req.Title, validation.Required, validation.Length(1, config.MaxTitleLength)),
	); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	source, err := s.authorizer.Authorize(ctx, req.UserID, req.SourceDocumentID, docsystem.AccessView)
	if err != nil {
		return nil, err
	}
	addr, err := s.contentRepo.Get(ctx, source.ID, req.AddressID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	parentAddress := addr.ID
	branch := &docsystem.Document{
		ID:            uuid.NewString(),
		Title:         strings.TrimSpace(req.Title),
		IsPublic:      false,
		FolderID:      source.FolderID,
		OwnedBy:       req.UserID,
		Editors:       []string{},
		RootParentID:  source.RootParentID,
		ParentAddress: &parentAddress,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.createBranch(ctx, req.UserID, source.ID, branch, addr); err != nil {
		return nil, err
	}

	// Ordered with the source's own writers; the branch stripe is already released
	branch.Access = docsystem.AccessOwner
	unlock := s.stripes.Lock(source.ID)
	s.publisher.Publish(fanout.DocumentTopic(source.ID), fanout.DocumentInserted, publicView(branch))
	unlock()

	s.logger.Info("document branched",
		"document_id", branch.ID,
		"source_document_id", source.ID,
		"address_id", addr.ID,
	)
	return branch, nil
}

// createBranch stores branch with a copy of addr as its head and publishes
// the branch's own timeline under its stripe
func (s *documentService) createBranch(ctx context.Context, userID, sourceID string, branch *docsystem.Document, addr *docsystem.ContentAddress) error {
	defer s.stripes.Lock(branch.ID)()

	now := branch.CreatedAt
	var recorded []*timeline.Event
	err := s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		if err := s.docRepo.Create(txCtx, branch); err != nil {
			return err
		}
		join, err := s.recorder.Record(txCtx, &timelineSvc.AppendRequest{
			DocumentID: branch.ID,
			AuthorID:   userID,
			Payload:    timeline.JoinPayload{},
		})
		if err != nil {
			return err
		}
		recorded = append(recorded, join)

		copied := &docsystem.ContentAddress{
			ID:         uuid.NewString(),
			DocumentID: branch.ID,
			Hash:       addr.Hash,
			Payload:    addr.Payload,
			Size:       addr.Size,
			CreatedBy:  userID,
			CreatedAt:  now,
		}
		if _, err := s.contentRepo.Put(txCtx, copied); err != nil {
			return err
		}
		version, err := s.docRepo.AdvanceHead(txCtx, branch.ID, nil, copied.ID)
		if err != nil {
			return err
		}
		branch.HeadAddress = &copied.ID
		branch.HeadVersion = version

		paste, err := s.recorder.Record(txCtx, &timelineSvc.AppendRequest{
			DocumentID: branch.ID,
			AuthorID:   userID,
			Payload: timeline.PastePayload{
				ContentAddress:   copied.ID,
				SourceDocumentID: &sourceID,
			},
		})
		if err != nil {
			return err
		}
		recorded = append(recorded, paste)
		return nil
	})
	if err != nil {
		return err
	}
	s.publishInserted(recorded)
	return nil
}

// DeleteDocument deletes a document. Branches cut from it block the delete
// unless deleteChildren is set, in which case they are deleted too.
func (s *documentService) DeleteDocument(ctx context.Context, userID, documentID string, deleteChildren bool) error {
	doc, err := s.authorizer.Authorize(ctx, userID, documentID, docsystem.AccessOwner)
	if err != nil {
		return err
	}

	defer s.stripes.Lock(documentID)()

	var deleted []string
	err = s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		ids, err := s.collectBranches(txCtx, documentID)
		if err != nil {
			return err
		}
		if len(ids) > 0 && !deleteChildren {
			return domain.NewConflict("document", ids[0],
				fmt.Sprintf("document has %d branch(es); set delete_children to delete them", len(ids)))
		}

		// Deepest branches first so no branch outlives its parent address
		for i := len(ids) - 1; i >= 0; i-- {
			if err := s.docRepo.Delete(txCtx, ids[i]); err != nil {
				return err
			}
		}
		if err := s.docRepo.Delete(txCtx, documentID); err != nil {
			return err
		}
		deleted = append(ids, documentID)
		return nil
	})
	if err != nil {
		return err
	}

	for _, id := range deleted {
		s.publisher.Publish(fanout.DocumentTopic(id), fanout.DocumentDeleted, fanout.DeletedRef{ID: id, DocumentID: id})
	}

	s.logger.Info("document deleted",
		"document_id", documentID,
		"title", doc.Title,
		"branches_deleted", len(deleted)-1,
	)
	return nil
}

// collectBranches returns every transitive branch of documentID, parents before children
func (s *documentService) collectBranches(ctx context.Context, documentID string) ([]string, error) {
	var out []string
	seen := map[string]bool{documentID: true}
	queue := []string{documentID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		branches, err := s.docRepo.ListBranches(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, b := range branches {
			if seen[b.ID] {
				continue
			}
			seen[b.ID] = true
			out = append(out, b.ID)
			queue = append(queue, b.ID)
		}
	}
	return out, nil
}

func (s *documentService) publishInserted(events []*timeline.Event) {
	for _, evt := range events {
		s.publisher.Publish(fanout.DocumentTopic(evt.DocumentID), fanout.TimelineInserted, evt)
	}
}

// validateCreateRequest validates a document creation request
func (s *documentService) validateCreateRequest(req *docsysSvc.CreateDocumentRequest) error {
	return validation.ValidateStruct(req,
		validation.Field(&req.UserID, validation.Required),
		validation.Field(&req.Title,
			validation.Required,
			validation.Length(1, config.MaxTitleLength),
		),
		validation.Field(&req.InitialPayload,
			validation.When(req.InitialPayload != nil, validation.Length(0, s.maxPayload)),
		),
	)
}

// validateUpdateRequest validates a document update request
func (s *documentService) validateUpdateRequest(req *docsysSvc.UpdateDocumentRequest) error {
	return validation.ValidateStruct(req,
		validation.Field(&req.Title,
			validation.When(req.Title != nil, validation.Required, validation.Length(1, config.MaxTitleLength)),
		),
	)
}

func attributeChange(attribute string, oldValue, newValue *string) timeline.AttributeChangePayload {
	return timeline.AttributeChangePayload{
		Attribute: attribute,
		OldValue:  copyString(oldValue),
		NewValue:  copyString(newValue),
	}
}

// publicView strips the caller-specific access level before fan-out
func publicView(doc *docsystem.Document) docsystem.Document {
	out := *doc
	out.Access = ""
	return out
}

func copyString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func sameString(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
