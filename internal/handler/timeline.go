package handler

import (
	"log/slog"
	"net/http"

	"folio/internal/domain/models/timeline"
	timelineSvc "folio/internal/domain/services/timeline"
	"folio/internal/httputil"
)

// TimelineHandler serves the document timeline and flagged versions
type TimelineHandler struct {
	timelineService timelineSvc.TimelineService
	flaggedService  timelineSvc.FlaggedVersionService
	logger          *slog.Logger
}

// NewTimelineHandler creates a new timeline handler
func NewTimelineHandler(timelineService timelineSvc.TimelineService, flaggedService timelineSvc.FlaggedVersionService, logger *slog.Logger) *TimelineHandler {
	return &TimelineHandler{
		timelineService: timelineService,
		flaggedService:  flaggedService,
		logger:          logger,
	}
}

// ListTimeline returns the event forest of a document
// GET /api/documents/{id}/timeline?filter=ALL|COMMENTS|EDITS
func (h *TimelineHandler) ListTimeline(w http.ResponseWriter, r *http.Request) {
	filter, err := timeline.ParseFilter(r.URL.Query().Get("filter"))
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	events, err := h.timelineService.List(r.Context(), httputil.GetUserID(r), r.PathValue("id"), filter)
	if err != nil {
		handleError(w, err)
		return
	}
	if events == nil {
		events = []timeline.Event{}
	}

	httputil.RespondJSON(w, http.StatusOK, events)
}

// AppendMarker adds a Marker event
// POST /api/documents/{id}/timeline
func (h *TimelineHandler) AppendMarker(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Label string `json:"label"`
	}
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		badRequest(w, "Invalid request body")
		return
	}

	evt, err := h.timelineService.AppendMarker(r.Context(), httputil.GetUserID(r), r.PathValue("id"), req.Label)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, evt)
}

// EditUpdateSummary rewrites the summary and title of an Update event
// PATCH /api/timeline/{id}/summary
func (h *TimelineHandler) EditUpdateSummary(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Summary string  `json:"summary"`
		Title   *string `json:"title"`
	}
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		badRequest(w, "Invalid request body")
		return
	}

	evt, err := h.timelineService.EditUpdateSummary(r.Context(), httputil.GetUserID(r), r.PathValue("id"), req.Summary, req.Title)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, evt)
}

type resolutionBody struct {
	Resolved *bool  `json:"resolved"`
	Summary  string `json:"summary"`
}

func parseResolution(w http.ResponseWriter, r *http.Request) (*resolutionBody, bool) {
	var body resolutionBody
	if err := httputil.ParseJSON(w, r, &body); err != nil {
		badRequest(w, "Invalid request body")
		return nil, false
	}
	if body.Resolved == nil {
		badRequest(w, "resolved is required")
		return nil, false
	}
	return &body, true
}

// EditMessageResolution rewrites a MessageResolution event
// PATCH /api/timeline/{id}/resolution
func (h *TimelineHandler) EditMessageResolution(w http.ResponseWriter, r *http.Request) {
	body, ok := parseResolution(w, r)
	if !ok {
		return
	}

	evt, err := h.timelineService.EditMessageResolution(r.Context(), httputil.GetUserID(r), r.PathValue("id"), *body.Resolved, body.Summary)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, evt)
}

// ForceResolutionSummary lets the document owner rewrite any resolution summary
// PUT /api/timeline/{id}/resolution/summary
func (h *TimelineHandler) ForceResolutionSummary(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Summary string `json:"summary"`
	}
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		badRequest(w, "Invalid request body")
		return
	}

	evt, err := h.timelineService.ForceMessageResolutionSummary(r.Context(), httputil.GetUserID(r), r.PathValue("id"), req.Summary)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, evt)
}

// ResolveMessage appends a resolution reply to a Message event
// POST /api/timeline/{id}/resolve
func (h *TimelineHandler) ResolveMessage(w http.ResponseWriter, r *http.Request) {
	body, ok := parseResolution(w, r)
	if !ok {
		return
	}

	evt, err := h.timelineService.ResolveMessage(r.Context(), httputil.GetUserID(r), r.PathValue("id"), *body.Resolved, body.Summary)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, evt)
}

// DeleteEvent removes a Message event
// DELETE /api/timeline/{id}?delete_replies=true
func (h *TimelineHandler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	deleteReplies, err := httputil.QueryBool(r, "delete_replies")
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	if err := h.timelineService.Delete(r.Context(), httputil.GetUserID(r), r.PathValue("id"), deleteReplies); err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondNoContent(w)
}

type flaggedVersionBody struct {
	Name          string `json:"name"`
	UpdateEventID string `json:"update_event_id"`
}

// ListFlaggedVersions lists the bookmarks of a document
// GET /api/documents/{id}/flagged-versions
func (h *TimelineHandler) ListFlaggedVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := h.flaggedService.List(r.Context(), httputil.GetUserID(r), r.PathValue("id"))
	if err != nil {
		handleError(w, err)
		return
	}
	if versions == nil {
		versions = []timeline.FlaggedVersion{}
	}

	httputil.RespondJSON(w, http.StatusOK, versions)
}

// CreateFlaggedVersion bookmarks an Update event
// POST /api/flagged-versions
func (h *TimelineHandler) CreateFlaggedVersion(w http.ResponseWriter, r *http.Request) {
	var body flaggedVersionBody
	if err := httputil.ParseJSON(w, r, &body); err != nil {
		badRequest(w, "Invalid request body")
		return
	}

	fv, err := h.flaggedService.Create(r.Context(), httputil.GetUserID(r), body.Name, body.UpdateEventID)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, fv)
}

// EditFlaggedVersion renames or moves a bookmark
// PATCH /api/flagged-versions/{id}
func (h *TimelineHandler) EditFlaggedVersion(w http.ResponseWriter, r *http.Request) {
	var body flaggedVersionBody
	if err := httputil.ParseJSON(w, r, &body); err != nil {
		badRequest(w, "Invalid request body")
		return
	}

	fv, err := h.flaggedService.Edit(r.Context(), httputil.GetUserID(r), r.PathValue("id"), body.Name, body.UpdateEventID)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, fv)
}

// DeleteFlaggedVersion removes a bookmark still bound to the given event
// DELETE /api/flagged-versions/{id}?timeline_event_id=
func (h *TimelineHandler) DeleteFlaggedVersion(w http.ResponseWriter, r *http.Request) {
	eventID := r.URL.Query().Get("timeline_event_id")
	if eventID == "" {
		badRequest(w, "timeline_event_id is required")
		return
	}

	if err := h.flaggedService.Delete(r.Context(), httputil.GetUserID(r), r.PathValue("id"), eventID); err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondNoContent(w)
}
