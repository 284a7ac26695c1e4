package deadletter

import (
	"context"
	"errors"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/jmehdipour/dbrelay/internal/bus"
	"github.com/jmehdipour/dbrelay/internal/model"
	"go.uber.org/zap/zaptest"
)

type stubPublisher struct {
	sent []bus.Message
	fail map[string]bool // by message id
}

func (p *stubPublisher) Publish(_ context.Context, topic string, msg bus.Message) error {
	if p.fail[msg.ID] {
		return errors.New("broker unavailable")
	}
	p.sent = append(p.sent, msg)
	return nil
}

func seeded(t *testing.T, ids ...string) *RedisSink {
	sink := NewRedisSink(&memList{items: map[string][]string{}}, "dl")
	for _, id := range ids {
		err := sink.Push(context.Background(), model.DeadLetter{
			ID: id, Topic: "onupsert", Key: []byte(id), Body: []byte(`{}`),
			Attributes: map[string]string{"table": "nft"}, Attempts: 1,
		})
		qt.Assert(t, err, qt.IsNil)
	}
	return sink
}

func TestReplayAll(t *testing.T) {
	c := qt.New(t)

	sink := seeded(t, "a", "b", "c")
	pub := &stubPublisher{}

	res, err := Replay(context.Background(), sink, pub, 0, zaptest.NewLogger(t))
	c.Assert(err, qt.IsNil)
	c.Check(res, qt.Equals, ReplayResult{Replayed: 3})
	c.Assert(pub.sent, qt.HasLen, 3)
	c.Check(pub.sent[0].ID, qt.Equals, "a")
	c.Check(pub.sent[0].Attributes["table"], qt.Equals, "nft")

	n, _ := sink.Len(context.Background())
	c.Check(n, qt.Equals, int64(0))
}

func TestReplayLimit(t *testing.T) {
	c := qt.New(t)

	sink := seeded(t, "a", "b", "c")
	res, err := Replay(context.Background(), sink, &stubPublisher{}, 2, nil)
	c.Assert(err, qt.IsNil)
	c.Check(res.Replayed, qt.Equals, 2)

	n, _ := sink.Len(context.Background())
	c.Check(n, qt.Equals, int64(1))
}

func TestReplayStopsOnFailureAndRequeues(t *testing.T) {
	c := qt.New(t)

	sink := seeded(t, "a", "b", "c")
	pub := &stubPublisher{fail: map[string]bool{"b": true}}

	res, err := Replay(context.Background(), sink, pub, 0, zaptest.NewLogger(t))
	c.Assert(err, qt.IsNil)
	c.Check(res, qt.Equals, ReplayResult{Replayed: 1, Failed: 1})

	n, _ := sink.Len(context.Background())
	c.Check(n, qt.Equals, int64(2))

	// requeued at the head, so "c" comes out first next time
	dl, ok, err := sink.Pop(context.Background())
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)
	c.Check(dl.ID, qt.Equals, "c")
	dl, _, _ = sink.Pop(context.Background())
	c.Check(dl.ID, qt.Equals, "b")
	c.Check(dl.Attempts, qt.Equals, 2)
	c.Check(dl.Error, qt.Equals, "broker unavailable")
}
