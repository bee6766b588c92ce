package handler

import "net/http"

// Routes groups the handlers mounted on the API mux
type Routes struct {
	Health    *HealthHandler
	Documents *DocumentHandler
	Timeline  *TimelineHandler
	Messages  *MessageHandler
	Events    *EventsHandler
}

// Register mounts every route on mux (Go 1.22+ method patterns)
func (rt *Routes) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", rt.Health.HealthCheck)

	// Documents
	mux.HandleFunc("POST /api/documents", rt.Documents.CreateDocument)
	mux.HandleFunc("GET /api/documents/{id}", rt.Documents.GetDocument)
	mux.HandleFunc("PATCH /api/documents/{id}", rt.Documents.UpdateDocument)
	mux.HandleFunc("DELETE /api/documents/{id}", rt.Documents.DeleteDocument)
	mux.HandleFunc("POST /api/documents/{id}/branches", rt.Documents.BranchDocument)
	mux.HandleFunc("PUT /api/documents/{id}/editors/{userId}", rt.Documents.GrantEditor)
	mux.HandleFunc("DELETE /api/documents/{id}/editors/{userId}", rt.Documents.RevokeEditor)

	// Content addresses
	mux.HandleFunc("POST /api/documents/{id}/contents", rt.Documents.PutContent)
	mux.HandleFunc("GET /api/documents/{id}/contents/{addressId}", rt.Documents.GetContent)

	// Timeline
	mux.HandleFunc("GET /api/documents/{id}/timeline", rt.Timeline.ListTimeline)
	mux.HandleFunc("POST /api/documents/{id}/timeline", rt.Timeline.AppendMarker)
	mux.HandleFunc("PATCH /api/timeline/{id}/summary", rt.Timeline.EditUpdateSummary)
	mux.HandleFunc("PATCH /api/timeline/{id}/resolution", rt.Timeline.EditMessageResolution)
	mux.HandleFunc("PUT /api/timeline/{id}/resolution/summary", rt.Timeline.ForceResolutionSummary)
	mux.HandleFunc("POST /api/timeline/{id}/resolve", rt.Timeline.ResolveMessage)
	mux.HandleFunc("DELETE /api/timeline/{id}", rt.Timeline.DeleteEvent)

	// Flagged versions
	mux.HandleFunc("GET /api/documents/{id}/flagged-versions", rt.Timeline.ListFlaggedVersions)
	mux.HandleFunc("POST /api/flagged-versions", rt.Timeline.CreateFlaggedVersion)
	mux.HandleFunc("PATCH /api/flagged-versions/{id}", rt.Timeline.EditFlaggedVersion)
	mux.HandleFunc("DELETE /api/flagged-versions/{id}", rt.Timeline.DeleteFlaggedVersion)

	// Messages and threads
	mux.HandleFunc("POST /api/documents/{id}/messages", rt.Messages.CreateDocumentMessage)
	mux.HandleFunc("GET /api/documents/{id}/threads", rt.Messages.ListThreads)
	mux.HandleFunc("POST /api/threads", rt.Messages.CreateThread)
	mux.HandleFunc("GET /api/threads/{id}", rt.Messages.GetThread)
	mux.HandleFunc("GET /api/threads/{id}/messages", rt.Messages.ListThreadMessages)
	mux.HandleFunc("POST /api/threads/{id}/messages", rt.Messages.CreateThreadMessage)
	mux.HandleFunc("GET /api/messages/{id}", rt.Messages.GetMessage)
	mux.HandleFunc("PATCH /api/messages/{id}", rt.Messages.EditMessage)
	mux.HandleFunc("DELETE /api/messages/{id}", rt.Messages.DeleteMessage)
	mux.HandleFunc("PATCH /api/messages/{id}/hidden", rt.Messages.HideMessage)
	mux.HandleFunc("POST /api/messages/{id}/revision-status", rt.Messages.UpdateRevisionStatus)
	mux.HandleFunc("POST /api/messages/{id}/revision-failure", rt.Messages.FailRevision)

	// Subscriptions
	mux.HandleFunc("GET /api/documents/{id}/events", rt.Events.StreamDocumentEvents)
	mux.HandleFunc("GET /api/ws", rt.Events.ServeWebSocket)
}
