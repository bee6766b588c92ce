package docsystem

import (
	"time"
)

// Document is the aggregate that owns a content address chain and a timeline.
// Branches share RootParentID with their source; the root points at itself.
type Document struct {
	ID            string    `json:"id" db:"id"`
	Title         string    `json:"title" db:"title"`
	IsPublic      bool      `json:"is_public" db:"is_public"`
	FolderID      *string   `json:"folder_id" db:"folder_id"` // NULL = root level
	OwnedBy       string    `json:"owned_by" db:"owned_by"`
	Editors       []string  `json:"editors" db:"editors"`
	RootParentID  string    `json:"root_parent_id" db:"root_parent_id"`
	ParentAddress *string   `json:"parent_address,omitempty" db:"parent_address"` // Address this branch was cut from
	HeadAddress   *string   `json:"head_address,omitempty" db:"head_address"`     // NULL until first content
	HeadVersion   int64     `json:"head_version" db:"head_version"`
	Access        Access    `json:"access,omitempty"` // Computed for the caller, not stored in DB
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// IsBranch reports whether the document was branched from another one
func (d *Document) IsBranch() bool {
	return d.RootParentID != d.ID
}

// HasEditor reports whether userID is in the explicit editor list
func (d *Document) HasEditor(userID string) bool {
	for _, e := range d.Editors {
		if e == userID {
			return true
		}
	}
	return false
}

// AccessFor computes the access level userID holds on the document
func (d *Document) AccessFor(userID string) Access {
	switch {
	case d.OwnedBy == userID:
		return AccessOwner
	case d.HasEditor(userID):
		return AccessEdit
	case d.IsPublic:
		return AccessComment
	default:
		return AccessNone
	}
}
