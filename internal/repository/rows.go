package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jmehdipour/dbrelay/internal/model"
	"github.com/jmoiron/sqlx"
)

// RowsRepository fetches the current value of an arbitrary row as JSON.
type RowsRepository interface {
	// Get returns nil, nil when the row does not exist.
	Get(ctx context.Context, key model.UpsertKey) ([]byte, error)
}

type RowsRepositoryImpl struct {
	db        *sqlx.DB
	uidCol    string
	parentCol string
}

func NewRowsRepository(db *sqlx.DB, uidCol, parentCol string) *RowsRepositoryImpl {
	if uidCol == "" {
		uidCol = "uid"
	}
	if parentCol == "" {
		parentCol = "parentId"
	}
	return &RowsRepositoryImpl{db: db, uidCol: uidCol, parentCol: parentCol}
}

var _ RowsRepository = (*RowsRepositoryImpl)(nil)

func (r *RowsRepositoryImpl) Get(ctx context.Context, key model.UpsertKey) ([]byte, error) {
	if key.Table == "" || key.UID == "" {
		return nil, fmt.Errorf("row key needs table and uid: %+v", key)
	}

	q := rowQuery(key.Table, r.uidCol, r.parentCol, key.HasParent())
	args := []any{key.UID}
	if key.HasParent() {
		args = append(args, key.ParentID)
	}

	var raw string
	err := r.db.QueryRowxContext(ctx, q, args...).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(raw), nil
}

// rowQuery selects one row of table serialized with to_jsonb.
func rowQuery(table, uidCol, parentCol string, withParent bool) string {
	q := fmt.Sprintf(`SELECT to_jsonb(t)::text FROM %s AS t WHERE t.%s = $1`,
		sanitizeTable(table), pgx.Identifier{uidCol}.Sanitize())
	if withParent {
		q += fmt.Sprintf(` AND t.%s = $2`, pgx.Identifier{parentCol}.Sanitize())
	}
	return q + ` LIMIT 1`
}
