package model

// ChangeNotice is a queued `trigger` notification: "<channel>:<uid>".
type ChangeNotice struct {
	Channel string
	UID     int64
}

// ChangeRecord is a row of the upstream changes table.
type ChangeRecord struct {
	UID     int64  `db:"uid"`
	Channel string `db:"channel"`
	Change  []byte `db:"change"` // opaque JSON, published verbatim
}
