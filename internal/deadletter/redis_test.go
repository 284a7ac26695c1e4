package deadletter

import (
	"context"
	"errors"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/jmehdipour/dbrelay/internal/model"
	"github.com/redis/go-redis/v9"
)

type memList struct {
	items   map[string][]string
	pushErr error
}

func (m *memList) LPush(_ context.Context, key string, values ...interface{}) *redis.IntCmd {
	if m.pushErr != nil {
		return redis.NewIntResult(0, m.pushErr)
	}
	for _, v := range values {
		m.items[key] = append([]string{string(v.([]byte))}, m.items[key]...)
	}
	return redis.NewIntResult(int64(len(m.items[key])), nil)
}

func (m *memList) RPop(_ context.Context, key string) *redis.StringCmd {
	l := m.items[key]
	if len(l) == 0 {
		return redis.NewStringResult("", redis.Nil)
	}
	last := l[len(l)-1]
	m.items[key] = l[:len(l)-1]
	return redis.NewStringResult(last, nil)
}

func (m *memList) LLen(_ context.Context, key string) *redis.IntCmd {
	return redis.NewIntResult(int64(len(m.items[key])), nil)
}

func TestPushPopOrder(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()

	sink := NewRedisSink(&memList{items: map[string][]string{}}, "")
	c.Check(sink.Key(), qt.Equals, "dbrelay:deadletter")

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for _, id := range []string{"a", "b"} {
		err := sink.Push(ctx, model.DeadLetter{
			ID:         id,
			Topic:      "onupsert",
			Body:       []byte(`{"uid":"X"}`),
			Attributes: map[string]string{"table": "nft"},
			Error:      "broker unavailable",
			Attempts:   1,
			FailedAt:   at,
		})
		c.Assert(err, qt.IsNil)
	}

	n, err := sink.Len(ctx)
	c.Assert(err, qt.IsNil)
	c.Check(n, qt.Equals, int64(2))

	dl, ok, err := sink.Pop(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)
	c.Check(dl.ID, qt.Equals, "a")
	c.Check(string(dl.Body), qt.Equals, `{"uid":"X"}`)
	c.Check(dl.Attributes, qt.DeepEquals, map[string]string{"table": "nft"})
	c.Check(dl.FailedAt.Equal(at), qt.IsTrue)

	_, _, _ = sink.Pop(ctx)
	_, ok, err = sink.Pop(ctx)
	c.Assert(err, qt.IsNil)
	c.Check(ok, qt.IsFalse)
}

func TestPushError(t *testing.T) {
	c := qt.New(t)

	sink := NewRedisSink(&memList{items: map[string][]string{}, pushErr: errors.New("READONLY")}, "dl")
	err := sink.Push(context.Background(), model.DeadLetter{ID: "x"})
	c.Check(err, qt.ErrorMatches, `lpush dl: READONLY`)
}
