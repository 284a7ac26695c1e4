package repository

import (
	"context"
	"fmt"

	"github.com/jmehdipour/dbrelay/internal/model"
	"github.com/jmoiron/sqlx"
)

type TransactionsRepository interface {
	// InsertMilestone writes tx once per uid; inserted is false when a row
	// with the same uid already existed.
	InsertMilestone(ctx context.Context, tx model.MilestoneTransaction) (inserted bool, err error)
}

type transactionsRepo struct {
	db    *sqlx.DB
	table string
}

// NewTransactionsRepository writes into table, usually "<network>_transactions".
func NewTransactionsRepository(db *sqlx.DB, table string) TransactionsRepository {
	return &transactionsRepo{db: db, table: table}
}

// milestoneInsertQuery skips rows whose uid already exists, so RowsAffected is 0 on a duplicate.
func milestoneInsertQuery(table string) string {
	return fmt.Sprintf(`INSERT INTO %s (uid, "blockId", "parentId", milestone, "createdOn", payload, processed) `+
		`VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7) ON CONFLICT (uid) DO NOTHING`, sanitizeTable(table))
}

func (r *transactionsRepo) InsertMilestone(ctx context.Context, tx model.MilestoneTransaction) (bool, error) {
	q := milestoneInsertQuery(r.table)

	payload := tx.Payload
	if len(payload) == 0 {
		payload = []byte("null")
	}

	res, err := r.db.ExecContext(ctx, q,
		tx.UID, tx.BlockID, tx.ParentID, tx.Milestone, tx.CreatedOn, string(payload), tx.Processed,
	)
	if err != nil {
		return false, fmt.Errorf("insert %s uid=%s: %w", r.table, tx.UID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
