package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jmehdipour/dbrelay/internal/db"
	"github.com/jmehdipour/dbrelay/internal/model"
	"github.com/jmehdipour/dbrelay/internal/repository"
	"github.com/jmoiron/sqlx"
)

var ErrInvalidChange = errors.New("change must be a JSON document")

// Service is the producer side of the relay: it raises the same notifications
// the schema triggers do, for tooling and for writers outside the database.
type Service struct {
	db      *sqlx.DB
	changes repository.ChangesRepository
}

func New(db *sqlx.DB, changesRepo repository.ChangesRepository) *Service {
	return &Service{db: db, changes: changesRepo}
}

// Notify sends payload on channel. NOTIFY is transactional, so inside tx the
// listener sees it only after commit.
func (s *Service) Notify(ctx context.Context, tx *sqlx.Tx, channel, payload string) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("empty notification channel")
	}

	var err error
	if tx != nil {
		_, err = tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, channel, payload)
	} else {
		_, err = s.db.ExecContext(ctx, `SELECT pg_notify($1, $2)`, channel, payload)
	}
	if err != nil {
		return fmt.Errorf("pg_notify %s: %w", channel, err)
	}
	return nil
}

func (s *Service) NotifyBlock(ctx context.Context, blockID string) error {
	if blockID == "" {
		return errors.New("empty block id")
	}
	return s.Notify(ctx, nil, db.ChannelBlocks, blockID)
}

func (s *Service) NotifyTrigger(ctx context.Context, channel string, uid int64) error {
	p, err := TriggerPayload(channel, uid)
	if err != nil {
		return err
	}
	return s.Notify(ctx, nil, db.ChannelTrigger, p)
}

func (s *Service) NotifyUpsert(ctx context.Context, n model.UpsertNotice) error {
	p, err := UpsertPayload(n)
	if err != nil {
		return err
	}
	return s.Notify(ctx, nil, db.ChannelOnUpsert, p)
}

// Emit writes a change row and its trigger notification in one transaction
// and returns the new uid.
func (s *Service) Emit(ctx context.Context, channel string, change []byte) (int64, error) {
	if !json.Valid(change) {
		return 0, ErrInvalidChange
	}
	if _, err := TriggerPayload(channel, 0); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	uid, err := s.changes.Insert(ctx, tx, channel, change)
	if err != nil {
		return 0, fmt.Errorf("insert change: %w", err)
	}

	p, _ := TriggerPayload(channel, uid)
	if err := s.Notify(ctx, tx, db.ChannelTrigger, p); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return uid, nil
}

// TriggerPayload formats a `trigger` payload "<channel>:<uid>".
func TriggerPayload(channel string, uid int64) (string, error) {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return "", errors.New("empty change channel")
	}
	return channel + ":" + strconv.FormatInt(uid, 10), nil
}

// UpsertPayload formats an `onupsert` payload.
func UpsertPayload(n model.UpsertNotice) (string, error) {
	if n.Table == "" || n.UID == "" {
		return "", errors.New("upsert notice needs table and uid")
	}
	b, err := json.Marshal(n)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
