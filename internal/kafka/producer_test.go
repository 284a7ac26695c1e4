package kafka

import (
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/jmehdipour/dbrelay/internal/bus"
)

func TestToKafkaMessageRoundTripsHeaders(t *testing.T) {
	c := qt.New(t)

	km := toKafkaMessage(bus.Message{
		ID:         "01J9ZK",
		Key:        []byte("X"),
		Body:       []byte(`{"uid":"X"}`),
		Attributes: map[string]string{"table": "nft"},
	})

	c.Check(string(km.Key), qt.Equals, "X")
	c.Check(string(km.Value), qt.Equals, `{"uid":"X"}`)
	c.Check(Headers(km), qt.DeepEquals, map[string]string{"id": "01J9ZK", "table": "nft"})
}

func TestTopicFactoryBindsName(t *testing.T) {
	c := qt.New(t)

	f := NewTopicFactory(ProducerConfig{Brokers: []string{"127.0.0.1:9092"}})
	tp, err := f("ontransactionwrite")
	c.Assert(err, qt.IsNil)
	c.Check(tp.Name(), qt.Equals, "ontransactionwrite")
	c.Assert(tp.Close(), qt.IsNil)
}
