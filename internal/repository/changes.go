package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jmehdipour/dbrelay/internal/model"
	"github.com/jmoiron/sqlx"
)

// ChangesRepository reads (and, for tooling, writes) the upstream changes table.
type ChangesRepository interface {
	// ListByUIDs returns the records whose uid is in uids, in one IN (...) query.
	// Missing uids are simply absent from the result.
	ListByUIDs(ctx context.Context, uids []int64) ([]model.ChangeRecord, error)
	// Insert writes a change row and returns its uid. If tx is nil, it will
	// open/commit an internal transaction; otherwise it uses the given tx.
	Insert(ctx context.Context, tx *sqlx.Tx, channel string, change []byte) (int64, error)
}

// ChangesRepositoryImpl is a sqlx-backed implementation.
type ChangesRepositoryImpl struct {
	db    *sqlx.DB
	table string
}

// NewChangesRepository constructs a ChangesRepositoryImpl over table.
func NewChangesRepository(db *sqlx.DB, table string) *ChangesRepositoryImpl {
	if table == "" {
		table = "changes"
	}
	return &ChangesRepositoryImpl{db: db, table: table}
}

var _ ChangesRepository = (*ChangesRepositoryImpl)(nil)

// withTx runs fn in the provided tx, or starts a new transaction when tx is nil.
func (r *ChangesRepositoryImpl) withTx(ctx context.Context, tx *sqlx.Tx, fn func(*sqlx.Tx) error) error {
	if tx != nil {
		return fn(tx)
	}

	t, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() { _ = t.Rollback() }()
	if err := fn(t); err != nil {
		return err
	}

	return t.Commit()
}

func (r *ChangesRepositoryImpl) ListByUIDs(ctx context.Context, uids []int64) ([]model.ChangeRecord, error) {
	if len(uids) == 0 {
		return nil, nil
	}

	query, args, err := changesByUIDsQuery(r.table, uids)
	if err != nil {
		return nil, err
	}

	var rows []model.ChangeRecord
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select %s: %w", r.table, err)
	}
	return rows, nil
}

// changesByUIDsQuery expands uids into a single IN list with Postgres placeholders.
func changesByUIDsQuery(table string, uids []int64) (string, []any, error) {
	base := fmt.Sprintf(`SELECT uid, channel, change::text AS change FROM %s WHERE uid IN (?)`, sanitizeTable(table))
	query, args, err := sqlx.In(base, uids)
	if err != nil {
		return "", nil, err
	}
	return sqlx.Rebind(sqlx.DOLLAR, query), args, nil
}

func (r *ChangesRepositoryImpl) Insert(ctx context.Context, tx *sqlx.Tx, channel string, change []byte) (int64, error) {
	q := fmt.Sprintf(`
		INSERT INTO %s (channel, change)
		VALUES ($1, $2::jsonb)
		RETURNING uid
	`, sanitizeTable(r.table))

	var uid int64
	err := r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		return tx.QueryRowxContext(ctx, q, channel, string(change)).Scan(&uid)
	})
	return uid, err
}

// sanitizeTable quotes an optionally schema-qualified table name.
func sanitizeTable(name string) string {
	return pgx.Identifier(splitQualified(name)).Sanitize()
}

func splitQualified(name string) []string {
	if schema, table, ok := strings.Cut(name, "."); ok {
		return []string{schema, table}
	}
	return []string{name}
}
