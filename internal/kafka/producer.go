package kafka

import (
	"context"
	"time"

	"github.com/jmehdipour/dbrelay/internal/bus"
	"github.com/segmentio/kafka-go"
)

type ProducerConfig struct {
	Brokers          []string
	BatchTimeout     time.Duration // default 10ms (kafka-go's 1s is too slow for per-tick publishes)
	WriteTimeout     time.Duration // default 10s
	RequiredAcks     int           // -1 all, 0 none, 1 leader
	AutoCreateTopics bool
}

// Topic is a kafka-go Writer bound to a single topic.
type Topic struct {
	name string
	w    *kafka.Writer
}

// NewTopicFactory returns a bus.Factory creating one synchronous Writer per topic.
func NewTopicFactory(c ProducerConfig) bus.Factory {
	bt := c.BatchTimeout
	if bt <= 0 {
		bt = 10 * time.Millisecond
	}
	wt := c.WriteTimeout
	if wt <= 0 {
		wt = 10 * time.Second
	}

	return func(name string) (bus.Topic, error) {
		w := &kafka.Writer{
			Addr:                   kafka.TCP(c.Brokers...),
			Topic:                  name,
			Balancer:               &kafka.Hash{},
			BatchTimeout:           bt,
			WriteTimeout:           wt,
			RequiredAcks:           kafka.RequiredAcks(c.RequiredAcks),
			AllowAutoTopicCreation: c.AutoCreateTopics,
		}
		return &Topic{name: name, w: w}, nil
	}
}

func (t *Topic) Name() string { return t.name }

func (t *Topic) Publish(ctx context.Context, msg bus.Message) error {
	return t.w.WriteMessages(ctx, toKafkaMessage(msg))
}

func (t *Topic) Close() error { return t.w.Close() }

// toKafkaMessage maps attributes (and the message id) to record headers.
func toKafkaMessage(msg bus.Message) kafka.Message {
	headers := make([]kafka.Header, 0, len(msg.Attributes)+1)
	if msg.ID != "" {
		headers = append(headers, kafka.Header{Key: "id", Value: []byte(msg.ID)})
	}
	for k, v := range msg.Attributes {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return kafka.Message{
		Key:     msg.Key,
		Value:   msg.Body,
		Headers: headers,
	}
}
