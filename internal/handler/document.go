package handler

import (
	"log/slog"
	"net/http"

	docsysSvc "folio/internal/domain/services/docsystem"
	"folio/internal/httputil"
)

// DocumentHandler serves the document registry and its content addresses
type DocumentHandler struct {
	documentService docsysSvc.DocumentService
	contentStore    docsysSvc.ContentStore
	logger          *slog.Logger
}

// NewDocumentHandler creates a new document handler
func NewDocumentHandler(documentService docsysSvc.DocumentService, contentStore docsysSvc.ContentStore, logger *slog.Logger) *DocumentHandler {
	return &DocumentHandler{
		documentService: documentService,
		contentStore:    contentStore,
		logger:          logger,
	}
}

// CreateDocument creates a root document
// POST /api/documents
func (h *DocumentHandler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	var req docsysSvc.CreateDocumentRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		badRequest(w, "Invalid request body")
		return
	}
	req.UserID = httputil.GetUserID(r)

	doc, err := h.documentService.CreateDocument(r.Context(), &req)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, doc)
}

// GetDocument returns a document with the caller's access level
// GET /api/documents/{id}
func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.documentService.GetDocument(r.Context(), httputil.GetUserID(r), r.PathValue("id"))
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, doc)
}

// updateDocumentBody is a merge patch: absent keys are left alone and a null
// folder_id moves the document back to the root level
type updateDocumentBody struct {
	Title    httputil.Patch[string] `json:"title"`
	IsPublic httputil.Patch[bool]   `json:"is_public"`
	FolderID httputil.Patch[string] `json:"folder_id"`
}

// UpdateDocument changes title, visibility or folder
// PATCH /api/documents/{id}
func (h *DocumentHandler) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	var body updateDocumentBody
	if err := httputil.ParseJSON(w, r, &body); err != nil {
		badRequest(w, "Invalid request body")
		return
	}
	if body.Title.Null || body.IsPublic.Null {
		badRequest(w, "title and is_public cannot be null")
		return
	}

	req := &docsysSvc.UpdateDocumentRequest{
		Title:    body.Title.Ptr(),
		IsPublic: body.IsPublic.Ptr(),
		FolderID: body.FolderID.Ptr(),
	}

	doc, err := h.documentService.UpdateDocument(r.Context(), httputil.GetUserID(r), r.PathValue("id"), req)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, doc)
}

// DeleteDocument deletes a document
// DELETE /api/documents/{id}?delete_children=true
func (h *DocumentHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	deleteChildren, err := httputil.QueryBool(r, "delete_children")
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	if err := h.documentService.DeleteDocument(r.Context(), httputil.GetUserID(r), r.PathValue("id"), deleteChildren); err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondNoContent(w)
}

// BranchDocument copies a content address into a new document
// POST /api/documents/{id}/branches
func (h *DocumentHandler) BranchDocument(w http.ResponseWriter, r *http.Request) {
	var req docsysSvc.BranchDocumentRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		badRequest(w, "Invalid request body")
		return
	}
	req.UserID = httputil.GetUserID(r)
	req.SourceDocumentID = r.PathValue("id")

	doc, err := h.documentService.BranchDocument(r.Context(), &req)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, doc)
}

// GrantEditor gives a user edit access
// PUT /api/documents/{id}/editors/{userId}
func (h *DocumentHandler) GrantEditor(w http.ResponseWriter, r *http.Request) {
	h.setEditor(w, r, true)
}

// RevokeEditor removes a user's edit access
// DELETE /api/documents/{id}/editors/{userId}
func (h *DocumentHandler) RevokeEditor(w http.ResponseWriter, r *http.Request) {
	h.setEditor(w, r, false)
}

func (h *DocumentHandler) setEditor(w http.ResponseWriter, r *http.Request, grant bool) {
	doc, err := h.documentService.SetEditorAccess(r.Context(), httputil.GetUserID(r), r.PathValue("id"), r.PathValue("userId"), grant)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, doc)
}

// putContentBody carries either raw bytes (base64 in JSON) or plain text
type putContentBody struct {
	Payload []byte  `json:"payload"`
	Text    *string `json:"text"`
}

// PutContent stores a payload in the document's content address store.
// Storing bytes that already exist returns the existing address.
// POST /api/documents/{id}/contents
func (h *DocumentHandler) PutContent(w http.ResponseWriter, r *http.Request) {
	var body putContentBody
	if err := httputil.ParseJSON(w, r, &body); err != nil {
		badRequest(w, "Invalid request body")
		return
	}
	payload := body.Payload
	if body.Text != nil {
		if len(payload) > 0 {
			badRequest(w, "payload and text are mutually exclusive")
			return
		}
		payload = []byte(*body.Text)
	}

	addr, err := h.contentStore.Put(r.Context(), httputil.GetUserID(r), r.PathValue("id"), payload)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, addr)
}

// GetContent returns one content address. ?metadata=true omits the payload.
// GET /api/documents/{id}/contents/{addressId}
func (h *DocumentHandler) GetContent(w http.ResponseWriter, r *http.Request) {
	metadataOnly, err := httputil.QueryBool(r, "metadata")
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	userID, docID, addressID := httputil.GetUserID(r), r.PathValue("id"), r.PathValue("addressId")
	get := h.contentStore.Get
	if metadataOnly {
		get = h.contentStore.Describe
	}

	addr, err := get(r.Context(), userID, docID, addressID)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, addr)
}
