package docsystem

// Access is a caller's permission level on a document. Levels are ordered:
// each one includes everything below it.
type Access string

const (
	AccessNone    Access = "none"
	AccessView    Access = "view"
	AccessComment Access = "comment"
	AccessEdit    Access = "edit"
	AccessOwner   Access = "owner"
)

var accessRank = map[Access]int{
	AccessNone:    0,
	AccessView:    1,
	AccessComment: 2,
	AccessEdit:    3,
	AccessOwner:   4,
}

// Allows reports whether a holds at least the required level
func (a Access) Allows(required Access) bool {
	return accessRank[a] >= accessRank[required]
}
