package relay

import (
	"context"
	"errors"
	"sync"

	"github.com/jmehdipour/dbrelay/internal/bus"
	"github.com/jmehdipour/dbrelay/internal/db"
	"github.com/jmehdipour/dbrelay/internal/model"
)

type published struct {
	topic string
	msg   bus.Message
}

type recordingPublisher struct {
	mu     sync.Mutex
	sent   []published
	failOn map[string]bool // message key -> fail
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, msg bus.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failOn[string(msg.Key)] {
		return errors.New("publish timeout")
	}
	p.sent = append(p.sent, published{topic: topic, msg: msg})
	return nil
}

func (p *recordingPublisher) byKey() map[string]published {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]published, len(p.sent))
	for _, s := range p.sent {
		out[string(s.msg.Key)] = s
	}
	return out
}

type memChanges struct {
	mu      sync.Mutex
	records map[int64]model.ChangeRecord
	queries [][]int64
	err     error
}

func (m *memChanges) ListByUIDs(_ context.Context, uids []int64) ([]model.ChangeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, append([]int64(nil), uids...))
	if m.err != nil {
		return nil, m.err
	}
	var out []model.ChangeRecord
	for _, uid := range uids {
		if r, ok := m.records[uid]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

type memRows struct {
	mu   sync.Mutex
	rows map[model.UpsertKey]string
	gets map[model.UpsertKey]int
	fail map[model.UpsertKey]bool
}

func newMemRows() *memRows {
	return &memRows{
		rows: map[model.UpsertKey]string{},
		gets: map[model.UpsertKey]int{},
		fail: map[model.UpsertKey]bool{},
	}
}

func (m *memRows) Get(_ context.Context, k model.UpsertKey) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets[k]++
	if m.fail[k] {
		return nil, errors.New("relation does not exist")
	}
	row, ok := m.rows[k]
	if !ok {
		return nil, nil
	}
	return []byte(row), nil
}

func (m *memRows) set(k model.UpsertKey, row string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[k] = row
}

// scriptedSource replays notifications, then returns err (or blocks until ctx
// ends when err is nil).
type scriptedSource struct {
	notes []db.Notification
	err   error
}

func (s *scriptedSource) Next(ctx context.Context) (db.Notification, error) {
	if len(s.notes) > 0 {
		n := s.notes[0]
		s.notes = s.notes[1:]
		return n, nil
	}
	if s.err != nil {
		return db.Notification{}, s.err
	}
	<-ctx.Done()
	return db.Notification{}, ctx.Err()
}

type blockRecorder struct {
	mu  sync.Mutex
	ids []string
}

func (b *blockRecorder) OnBlockNotification(_ context.Context, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ids = append(b.ids, id)
}
