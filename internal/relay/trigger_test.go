package relay

import (
	"context"
	"errors"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/jmehdipour/dbrelay/internal/model"
	"go.uber.org/zap/zaptest"
)

func TestTriggerPublishesChangeVerbatim(t *testing.T) {
	c := qt.New(t)

	changes := &memChanges{records: map[int64]model.ChangeRecord{
		42: {UID: 42, Channel: "ontransactionwrite", Change: []byte(`{"after":{"amount":"10"}, "op":"INSERT"}`)},
		43: {UID: 43, Channel: "onnftwrite", Change: []byte(`{"op":"UPDATE"}`)},
	}}
	pub := &recordingPublisher{}
	d := NewTriggerDispatcher(changes, pub, Config{}, zaptest.NewLogger(t))

	c.Assert(d.Enqueue(model.ChangeNotice{Channel: "ontransactionwrite", UID: 42}), qt.IsNil)
	c.Assert(d.Enqueue(model.ChangeNotice{Channel: "onnftwrite", UID: 43}), qt.IsNil)

	res := d.Flush(context.Background())
	c.Check(res, qt.Equals, FlushResult{Drained: 2, Distinct: 2, Published: 2})
	c.Check(d.Pending(), qt.Equals, 0)

	got := pub.byKey()
	c.Check(got["42"].topic, qt.Equals, "ontransactionwrite")
	c.Check(string(got["42"].msg.Body), qt.Equals, `{"after":{"amount":"10"}, "op":"INSERT"}`)
	c.Check(got["43"].topic, qt.Equals, "onnftwrite")

	// one IN (...) query per flush
	c.Check(changes.queries, qt.DeepEquals, [][]int64{{42, 43}})
}

func TestTriggerEmptyFlushIsNoop(t *testing.T) {
	c := qt.New(t)

	changes := &memChanges{}
	d := NewTriggerDispatcher(changes, &recordingPublisher{}, Config{}, nil)

	c.Check(d.Flush(context.Background()), qt.Equals, FlushResult{})
	c.Check(changes.queries, qt.HasLen, 0)
}

func TestTriggerMissingRecord(t *testing.T) {
	c := qt.New(t)

	// row 42 was deleted before the flush
	pub := &recordingPublisher{}
	d := NewTriggerDispatcher(&memChanges{records: map[int64]model.ChangeRecord{}}, pub, Config{}, zaptest.NewLogger(t))
	c.Assert(d.Enqueue(model.ChangeNotice{Channel: "ontransactionwrite", UID: 42}), qt.IsNil)

	res := d.Flush(context.Background())
	c.Check(res, qt.Equals, FlushResult{Drained: 1, Distinct: 1, Missing: 1})
	c.Check(pub.sent, qt.HasLen, 0)
}

func TestTriggerLastChannelWins(t *testing.T) {
	c := qt.New(t)

	changes := &memChanges{records: map[int64]model.ChangeRecord{
		7: {UID: 7, Change: []byte(`{}`)}, // no stored channel, notice decides
	}}
	pub := &recordingPublisher{}
	d := NewTriggerDispatcher(changes, pub, Config{}, nil)

	c.Assert(d.Enqueue(model.ChangeNotice{Channel: "first", UID: 7}), qt.IsNil)
	c.Assert(d.Enqueue(model.ChangeNotice{Channel: "second", UID: 7}), qt.IsNil)

	res := d.Flush(context.Background())
	c.Check(res, qt.Equals, FlushResult{Drained: 2, Distinct: 1, Published: 1})
	c.Assert(pub.sent, qt.HasLen, 1)
	c.Check(pub.sent[0].topic, qt.Equals, "second")
	c.Check(changes.queries, qt.DeepEquals, [][]int64{{7}})
}

func TestTriggerPublishFailureDoesNotAbortBatch(t *testing.T) {
	c := qt.New(t)

	records := map[int64]model.ChangeRecord{}
	for uid := int64(1); uid <= 5; uid++ {
		records[uid] = model.ChangeRecord{UID: uid, Channel: "onwrite", Change: []byte(`{}`)}
	}
	pub := &recordingPublisher{failOn: map[string]bool{"3": true}}
	d := NewTriggerDispatcher(&memChanges{records: records}, pub, Config{Concurrency: 2}, zaptest.NewLogger(t))
	for uid := int64(1); uid <= 5; uid++ {
		c.Assert(d.Enqueue(model.ChangeNotice{Channel: "onwrite", UID: uid}), qt.IsNil)
	}

	res := d.Flush(context.Background())
	c.Check(res.Published, qt.Equals, 4)
	c.Check(res.Failed, qt.Equals, 1)
	_, ok := pub.byKey()["3"]
	c.Check(ok, qt.IsFalse)
}

func TestTriggerLookupErrorDropsBatch(t *testing.T) {
	c := qt.New(t)

	pub := &recordingPublisher{}
	d := NewTriggerDispatcher(&memChanges{err: errors.New("conn reset")}, pub, Config{}, zaptest.NewLogger(t))
	c.Assert(d.Enqueue(model.ChangeNotice{Channel: "onwrite", UID: 1}), qt.IsNil)

	res := d.Flush(context.Background())
	c.Check(res.Failed, qt.Equals, 1)
	c.Check(pub.sent, qt.HasLen, 0)
	c.Check(d.Pending(), qt.Equals, 0)
}

func TestTriggerQueueFull(t *testing.T) {
	c := qt.New(t)

	d := NewTriggerDispatcher(&memChanges{}, &recordingPublisher{}, Config{QueueCapacity: 1}, nil)
	c.Assert(d.Enqueue(model.ChangeNotice{Channel: "a", UID: 1}), qt.IsNil)
	c.Check(d.Enqueue(model.ChangeNotice{Channel: "a", UID: 2}), qt.ErrorIs, ErrQueueFull)
}
