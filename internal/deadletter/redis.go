package deadletter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmehdipour/dbrelay/internal/model"
	"github.com/redis/go-redis/v9"
)

// listStore is the slice of redis.Cmdable the sink uses.
type listStore interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	RPop(ctx context.Context, key string) *redis.StringCmd
	LLen(ctx context.Context, key string) *redis.IntCmd
}

// RedisSink keeps dead letters in a Redis list: newest at the head, replay
// pops from the tail so the oldest failure is retried first.
type RedisSink struct {
	rdb listStore
	key string
}

func NewRedisSink(rdb listStore, key string) *RedisSink {
	if key == "" {
		key = "dbrelay:deadletter"
	}
	return &RedisSink{rdb: rdb, key: key}
}

func (s *RedisSink) Key() string { return s.key }

func (s *RedisSink) Push(ctx context.Context, dl model.DeadLetter) error {
	b, err := json.Marshal(dl)
	if err != nil {
		return fmt.Errorf("encode dead letter %s: %w", dl.ID, err)
	}
	if err := s.rdb.LPush(ctx, s.key, b).Err(); err != nil {
		return fmt.Errorf("lpush %s: %w", s.key, err)
	}
	return nil
}

// Pop removes the oldest dead letter. ok is false when the list is empty.
func (s *RedisSink) Pop(ctx context.Context) (dl model.DeadLetter, ok bool, err error) {
	raw, err := s.rdb.RPop(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.DeadLetter{}, false, nil
	}
	if err != nil {
		return model.DeadLetter{}, false, fmt.Errorf("rpop %s: %w", s.key, err)
	}
	if err := json.Unmarshal(raw, &dl); err != nil {
		return model.DeadLetter{}, false, fmt.Errorf("decode dead letter: %w", err)
	}
	return dl, true, nil
}

func (s *RedisSink) Len(ctx context.Context) (int64, error) {
	return s.rdb.LLen(ctx, s.key).Result()
}
