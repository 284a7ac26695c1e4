package model

// UpsertNotice is a queued `onupsert` notification.
type UpsertNotice struct {
	Table    string `json:"table"`
	UID      string `json:"uid"`
	ParentID string `json:"parentId,omitempty"`
}

// UpsertKey identifies a row; equal keys are the same row regardless of which
// notice produced them.
type UpsertKey struct {
	Table    string
	UID      string
	ParentID string
}

func (n UpsertNotice) Key() UpsertKey {
	return UpsertKey{Table: n.Table, UID: n.UID, ParentID: n.ParentID}
}

// HasParent reports whether the row lives in a sub-collection.
func (k UpsertKey) HasParent() bool { return k.ParentID != "" }
