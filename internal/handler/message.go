package handler

import (
	"log/slog"
	"net/http"

	"folio/internal/domain/models/revision"
	revisionSvc "folio/internal/domain/services/revision"
	"folio/internal/httputil"
)

// MessageHandler serves messages, AI threads and revision decisions
type MessageHandler struct {
	messageService revisionSvc.MessageService
	logger         *slog.Logger
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(messageService revisionSvc.MessageService, logger *slog.Logger) *MessageHandler {
	return &MessageHandler{
		messageService: messageService,
		logger:         logger,
	}
}

// CreateDocumentMessage posts a comment or edit proposal to the document thread
// POST /api/documents/{id}/messages
func (h *MessageHandler) CreateDocumentMessage(w http.ResponseWriter, r *http.Request) {
	var req revisionSvc.CreateMessageRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		badRequest(w, "Invalid request body")
		return
	}
	req.UserID = httputil.GetUserID(r)
	req.DocumentID = r.PathValue("id")

	h.createMessage(w, r, &req)
}

// CreateThreadMessage posts a message to an AI thread
// POST /api/threads/{id}/messages
func (h *MessageHandler) CreateThreadMessage(w http.ResponseWriter, r *http.Request) {
	var req revisionSvc.CreateMessageRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		badRequest(w, "Invalid request body")
		return
	}
	threadID := r.PathValue("id")
	req.UserID = httputil.GetUserID(r)
	req.ThreadID = &threadID

	h.createMessage(w, r, &req)
}

func (h *MessageHandler) createMessage(w http.ResponseWriter, r *http.Request, req *revisionSvc.CreateMessageRequest) {
	msg, err := h.messageService.CreateMessage(r.Context(), req)
	if err != nil {
		handleError(w, err)
		return
	}

	// Edit proposals are still being revised when the call returns
	status := http.StatusCreated
	if msg.LifecycleStage == revision.StageRevising {
		status = http.StatusAccepted
	}
	httputil.RespondJSON(w, status, msg)
}

// GetMessage returns one message
// GET /api/messages/{id}
func (h *MessageHandler) GetMessage(w http.ResponseWriter, r *http.Request) {
	msg, err := h.messageService.GetMessage(r.Context(), httputil.GetUserID(r), r.PathValue("id"))
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, msg)
}

// EditMessage rewrites the body of the caller's own message
// PATCH /api/messages/{id}
func (h *MessageHandler) EditMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
	}
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		badRequest(w, "Invalid request body")
		return
	}

	msg, err := h.messageService.EditMessage(r.Context(), httputil.GetUserID(r), r.PathValue("id"), req.Content)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, msg)
}

// HideMessage hides or reveals a message body
// PATCH /api/messages/{id}/hidden
func (h *MessageHandler) HideMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Hidden *bool `json:"hidden"`
	}
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		badRequest(w, "Invalid request body")
		return
	}
	if req.Hidden == nil {
		badRequest(w, "hidden is required")
		return
	}

	msg, err := h.messageService.HideMessage(r.Context(), httputil.GetUserID(r), r.PathValue("id"), *req.Hidden)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, msg)
}

// DeleteMessage deletes the caller's own message
// DELETE /api/messages/{id}?delete_replies=true
func (h *MessageHandler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	deleteReplies, err := httputil.QueryBool(r, "delete_replies")
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	if err := h.messageService.DeleteMessage(r.Context(), httputil.GetUserID(r), r.PathValue("id"), deleteReplies); err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondNoContent(w)
}

// UpdateRevisionStatus accepts or declines a revised proposal
// POST /api/messages/{id}/revision-status
func (h *MessageHandler) UpdateRevisionStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status          string `json:"status"`
		ExpectedAddress string `json:"expected_address"`
	}
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		badRequest(w, "Invalid request body")
		return
	}
	status, err := revision.ParseDecision(req.Status)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	msg, err := h.messageService.UpdateRevisionStatus(r.Context(), httputil.GetUserID(r), r.PathValue("id"), status, req.ExpectedAddress)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, msg)
}

// FailRevision aborts a running revision
// POST /api/messages/{id}/revision-failure
func (h *MessageHandler) FailRevision(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		badRequest(w, "Invalid request body")
		return
	}

	msg, err := h.messageService.AbortRevision(r.Context(), httputil.GetUserID(r), r.PathValue("id"), req.Reason)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, msg)
}

// CreateThread opens an AI thread on a document
// POST /api/threads
func (h *MessageHandler) CreateThread(w http.ResponseWriter, r *http.Request) {
	var req revisionSvc.CreateThreadRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		badRequest(w, "Invalid request body")
		return
	}
	req.UserID = httputil.GetUserID(r)

	thread, err := h.messageService.CreateThread(r.Context(), &req)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, thread)
}

// ListThreads lists the AI threads of a document
// GET /api/documents/{id}/threads
func (h *MessageHandler) ListThreads(w http.ResponseWriter, r *http.Request) {
	threads, err := h.messageService.ListThreads(r.Context(), httputil.GetUserID(r), r.PathValue("id"))
	if err != nil {
		handleError(w, err)
		return
	}
	if threads == nil {
		threads = []revision.Thread{}
	}

	httputil.RespondJSON(w, http.StatusOK, threads)
}

// ListThreadMessages lists the messages of an AI thread
// GET /api/threads/{id}/messages
func (h *MessageHandler) ListThreadMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := h.messageService.ListThreadMessages(r.Context(), httputil.GetUserID(r), r.PathValue("id"))
	if err != nil {
		handleError(w, err)
		return
	}
	if messages == nil {
		messages = []revision.Message{}
	}

	httputil.RespondJSON(w, http.StatusOK, messages)
}

// GetThread returns one AI thread
// GET /api/threads/{id}
func (h *MessageHandler) GetThread(w http.ResponseWriter, r *http.Request) {
	thread, err := h.messageService.GetThread(r.Context(), httputil.GetUserID(r), r.PathValue("id"))
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, thread)
}
