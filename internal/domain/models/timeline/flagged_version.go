package timeline

import "time"

// FlaggedVersion is a named bookmark on an Update event (and through it,
// on the content address the update produced). Creating, editing or deleting
// one never touches the event itself.
type FlaggedVersion struct {
	ID               string    `json:"id" db:"id"`
	DocumentID       string    `json:"document_id" db:"document_id"`
	Name             string    `json:"name" db:"name"`
	UpdateEventID    string    `json:"update_event_id" db:"update_event_id"`
	ContentAddressID string    `json:"content_address_id" db:"content_address_id"`
	CreatedBy        string    `json:"created_by" db:"created_by"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// Render copies the bookmark metadata onto an Update payload
func (fv *FlaggedVersion) Render(p UpdatePayload) UpdatePayload {
	name := fv.Name
	id := fv.ID
	createdAt := fv.CreatedAt
	by := fv.CreatedBy
	p.FlaggedVersionName = &name
	p.FlaggedVersionID = &id
	p.FlaggedVersionCreatedAt = &createdAt
	p.FlaggedByUser = &by
	return p
}
