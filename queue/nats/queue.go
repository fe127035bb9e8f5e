package nats

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"

	"go.kirha.ai/appmigrate"
	"go.kirha.ai/appmigrate/queue"
)

// DefaultGroup is the queue group workers join, so each message reaches one
// worker.
const DefaultGroup = "appmigrate-workers"

// Queue publishes messages on NATS subjects named after the topic. Core NATS
// does not redeliver, so a failed message is republished with its attempt
// count until maxAttempts.
type Queue struct {
	conn        *nats.Conn
	group       string
	maxAttempts int
	logger      appmigrate.Logger
}

func Connect(url, group string, logger appmigrate.Logger) (*Queue, error) {
	if url == "" {
		url = nats.DefaultURL
	}

	conn, err := nats.Connect(url, nats.Name("appmigrate"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}

	return New(conn, group, logger), nil
}

func New(conn *nats.Conn, group string, logger appmigrate.Logger) *Queue {
	if group == "" {
		group = DefaultGroup
	}
	return &Queue{
		conn:        conn,
		group:       group,
		maxAttempts: queue.DefaultMaxAttempts,
		logger:      logger,
	}
}

func (q *Queue) Enqueue(ctx context.Context, topic string, msg appmigrate.Message) error {
	return q.publish(topic, msg, 1)
}

func (q *Queue) publish(topic string, msg appmigrate.Message, attempt int) error {
	data, err := queue.Encode(msg, attempt)
	if err != nil {
		return err
	}

	if err := q.conn.Publish(topic, data); err != nil {
		return fmt.Errorf("failed to publish to topic %q: %w", topic, err)
	}
	return nil
}

// Subscribe joins the worker queue group on topic and handles messages
// until ctx is done.
func (q *Queue) Subscribe(ctx context.Context, topic string, h appmigrate.Handler) error {
	sub, err := q.conn.QueueSubscribe(topic, q.group, func(m *nats.Msg) {
		env, err := queue.Decode(m.Data)
		if err != nil {
			q.logger.Warn("dropping undecodable message", "topic", topic, "error", err)
			return
		}

		if err := h(ctx, env.Message); err != nil {
			q.retry(topic, env, err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to topic %q: %w", topic, err)
	}

	q.logger.Info("handler registered for NATS topic", "topic", topic, "group", q.group)
	<-ctx.Done()

	if err := sub.Unsubscribe(); err != nil {
		q.logger.Error("failed to unsubscribe", "topic", topic, "error", err)
	}
	return nil
}

func (q *Queue) retry(topic string, env queue.Envelope, cause error) {
	if env.Attempt >= q.maxAttempts {
		q.logger.Error("dropping message after repeated failures", "topic", topic, "attempts", env.Attempt, "error", cause)
		return
	}

	q.logger.Warn("redelivering message", "topic", topic, "attempt", env.Attempt, "error", cause)
	if err := q.publish(topic, env.Message, env.Attempt+1); err != nil {
		q.logger.Error("failed to redeliver message", "topic", topic, "error", err)
	}
}

func (q *Queue) Close() {
	q.conn.Close()
}
