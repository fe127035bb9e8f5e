package memory

import (
	"context"
	"maps"
	"sync"

	"go.kirha.ai/appmigrate"
	"go.kirha.ai/appmigrate/queue"
)

type delivery struct {
	msg     appmigrate.Message
	attempt int
}

// Queue is an in-process transport backed by one buffered channel per
// topic. A message whose handler fails is redelivered until maxAttempts.
type Queue struct {
	mu          sync.Mutex
	topics      map[string]chan delivery
	buffer      int
	maxAttempts int
	logger      appmigrate.Logger
}

func New(buffer int, logger appmigrate.Logger) *Queue {
	if buffer <= 0 {
		buffer = 64
	}
	return &Queue{
		topics:      make(map[string]chan delivery),
		buffer:      buffer,
		maxAttempts: queue.DefaultMaxAttempts,
		logger:      logger,
	}
}

func (q *Queue) SetMaxAttempts(n int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.maxAttempts = n
}

func (q *Queue) topic(name string) chan delivery {
	q.mu.Lock()
	defer q.mu.Unlock()

	ch, ok := q.topics[name]
	if !ok {
		ch = make(chan delivery, q.buffer)
		q.topics[name] = ch
	}
	return ch
}

func (q *Queue) Enqueue(ctx context.Context, topic string, msg appmigrate.Message) error {
	return q.push(ctx, topic, delivery{msg: maps.Clone(msg), attempt: 1})
}

func (q *Queue) push(ctx context.Context, topic string, d delivery) error {
	select {
	case q.topic(topic) <- d:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns the number of messages waiting on topic.
func (q *Queue) Pending(topic string) int {
	return len(q.topic(topic))
}

// Subscribe delivers topic's messages to h until ctx is done.
func (q *Queue) Subscribe(ctx context.Context, topic string, h appmigrate.Handler) error {
	ch := q.topic(topic)
	for {
		select {
		case <-ctx.Done():
			return nil
		case d := <-ch:
			q.deliver(ctx, topic, d, h)
		}
	}
}

// Drain delivers the messages waiting on topic, including the ones handlers
// enqueue meanwhile, and returns once the topic is empty.
func (q *Queue) Drain(ctx context.Context, topic string, h appmigrate.Handler) error {
	ch := q.topic(topic)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d := <-ch:
			q.deliver(ctx, topic, d, h)
		default:
			return nil
		}
	}
}

func (q *Queue) deliver(ctx context.Context, topic string, d delivery, h appmigrate.Handler) {
	err := h(ctx, d.msg)
	if err == nil {
		return
	}

	q.mu.Lock()
	maxAttempts := q.maxAttempts
	q.mu.Unlock()

	if d.attempt >= maxAttempts {
		q.logger.Error("dropping message after repeated failures", "topic", topic, "attempts", d.attempt, "error", err)
		return
	}

	q.logger.Warn("redelivering message", "topic", topic, "attempt", d.attempt, "error", err)
	d.attempt++

	// The caller is the topic's only reader, so a blocking send on a full
	// buffer would never return.
	select {
	case q.topic(topic) <- d:
	default:
		q.logger.Error("dropping message, topic buffer is full", "topic", topic, "attempts", d.attempt-1, "error", err)
	}
}
