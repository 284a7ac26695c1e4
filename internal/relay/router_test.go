package relay

import (
	"context"
	"errors"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/jmehdipour/dbrelay/internal/db"
	"github.com/jmehdipour/dbrelay/internal/model"
	"go.uber.org/zap/zaptest"
)

func TestRouterRoutesByChannel(t *testing.T) {
	c := qt.New(t)

	src := &scriptedSource{
		notes: []db.Notification{
			{Channel: db.ChannelBlocks, Payload: "0xabc"},
			{Channel: db.ChannelTrigger, Payload: "ontransactionwrite:42"},
			{Channel: db.ChannelTrigger, Payload: "garbage"},
			{Channel: db.ChannelOnUpsert, Payload: `{"table":"nft","uid":"X"}`},
			{Channel: db.ChannelOnUpsert, Payload: `{"table":"nft"`},
			{Channel: db.ChannelBlocks, Payload: ""},
			{Channel: "elsewhere", Payload: "x"},
		},
		err: errors.New("conn closed"),
	}
	blocks := &blockRecorder{}
	trig := NewTriggerDispatcher(&memChanges{}, &recordingPublisher{}, Config{}, nil)
	ups := NewUpsertMirror(newMemRows(), &recordingPublisher{}, "", Config{}, nil)

	r := NewRouter(src, blocks, trig, ups, zaptest.NewLogger(t))
	err := r.Run(context.Background())
	c.Assert(err, qt.ErrorMatches, `listener: conn closed`)

	c.Check(blocks.ids, qt.DeepEquals, []string{"0xabc"})
	c.Check(trig.queue.Drain(), qt.DeepEquals, []model.ChangeNotice{{Channel: "ontransactionwrite", UID: 42}})
	c.Check(ups.queue.Drain(), qt.DeepEquals, []model.UpsertNotice{{Table: "nft", UID: "X"}})
}

func TestRouterStopsCleanlyOnCancel(t *testing.T) {
	c := qt.New(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRouter(&scriptedSource{}, &blockRecorder{},
		NewTriggerDispatcher(&memChanges{}, &recordingPublisher{}, Config{}, nil),
		NewUpsertMirror(newMemRows(), &recordingPublisher{}, "", Config{}, nil), nil)
	c.Check(r.Run(ctx), qt.IsNil)
}
