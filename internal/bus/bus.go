package bus

import (
	"context"
	"errors"
)

var ErrEmptyTopicName = errors.New("empty topic name")

// Message is one outbound message. Body is sent as-is.
type Message struct {
	ID         string
	Key        []byte
	Body       []byte
	Attributes map[string]string
}

// Topic is a publisher bound to one topic name.
type Topic interface {
	Name() string
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// Factory creates the handle for a topic name. It is called at most once per
// name by a Registry.
type Factory func(name string) (Topic, error)
