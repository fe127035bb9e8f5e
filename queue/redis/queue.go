package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"go.kirha.ai/appmigrate"
	"go.kirha.ai/appmigrate/queue"
)

// Client is the subset of go-redis client methods used by Queue.
type Client interface {
	LPush(ctx context.Context, key string, values ...any) *redis.IntCmd
	BRPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
	LLen(ctx context.Context, key string) *redis.IntCmd
	Close() error
}

// Queue keeps each topic in a Redis list. Producers LPUSH, consumers BRPOP,
// and a failed message is pushed back with its attempt count until
// maxAttempts.
type Queue struct {
	client      Client
	prefix      string
	poll        time.Duration
	maxAttempts int
	logger      appmigrate.Logger
}

// Dial connects to the Redis server at url, e.g. redis://localhost:6379/0.
func Dial(url, prefix string, logger appmigrate.Logger) (*Queue, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return New(redis.NewClient(opts), prefix, logger), nil
}

func New(client Client, prefix string, logger appmigrate.Logger) *Queue {
	return &Queue{
		client:      client,
		prefix:      prefix,
		poll:        time.Second,
		maxAttempts: queue.DefaultMaxAttempts,
		logger:      logger,
	}
}

func (q *Queue) key(topic string) string {
	return q.prefix + topic
}

func (q *Queue) Enqueue(ctx context.Context, topic string, msg appmigrate.Message) error {
	return q.push(ctx, topic, msg, 1)
}

func (q *Queue) push(ctx context.Context, topic string, msg appmigrate.Message, attempt int) error {
	data, err := queue.Encode(msg, attempt)
	if err != nil {
		return err
	}

	if err := q.client.LPush(ctx, q.key(topic), data).Err(); err != nil {
		return fmt.Errorf("failed to push to topic %q: %w", topic, err)
	}
	return nil
}

// Pending returns the number of messages waiting on topic.
func (q *Queue) Pending(ctx context.Context, topic string) (int64, error) {
	return q.client.LLen(ctx, q.key(topic)).Result()
}

func (q *Queue) Subscribe(ctx context.Context, topic string, h appmigrate.Handler) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		if _, err := q.receive(ctx, topic, h); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			q.logger.Error("failed to receive message", "topic", topic, "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(q.poll):
			}
		}
	}
}

// receive waits up to the poll interval for one message and handles it.
func (q *Queue) receive(ctx context.Context, topic string, h appmigrate.Handler) (bool, error) {
	res, err := q.client.BRPop(ctx, q.poll, q.key(topic)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	// BRPOP answers [key, value].
	env, err := queue.Decode([]byte(res[1]))
	if err != nil {
		q.logger.Warn("dropping undecodable message", "topic", topic, "error", err)
		return true, nil
	}

	if err := h(ctx, env.Message); err != nil {
		if env.Attempt >= q.maxAttempts {
			q.logger.Error("dropping message after repeated failures", "topic", topic, "attempts", env.Attempt, "error", err)
			return true, nil
		}
		q.logger.Warn("redelivering message", "topic", topic, "attempt", env.Attempt, "error", err)
		return true, q.push(ctx, topic, env.Message, env.Attempt+1)
	}
	return true, nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}
