package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.kirha.ai/appmigrate"
	"go.kirha.ai/appmigrate/queue"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

func newTestQueue(t *testing.T) (*Queue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	q := New(client, "appmigrate:", nopLogger{})
	q.poll = 50 * time.Millisecond
	return q, mr
}

func TestEnqueue_PushesEnvelope(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, "migration.status", appmigrate.Message{"id": "k1", "status": "success"}))

	items, err := mr.List("appmigrate:migration.status")
	require.NoError(t, err)
	require.Len(t, items, 1)

	env, err := queue.Decode([]byte(items[0]))
	require.NoError(t, err)
	assert.Equal(t, 1, env.Attempt)
	assert.Equal(t, "k1", env.Message["id"])
}

func TestReceive_FIFO(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	for _, n := range []string{"1", "2", "3"} {
		require.NoError(t, q.Enqueue(ctx, "t", appmigrate.Message{"n": n}))
	}

	var seen []string
	h := func(ctx context.Context, m appmigrate.Message) error {
		seen = append(seen, m["n"])
		return nil
	}

	for i := 0; i < 3; i++ {
		got, err := q.receive(ctx, "t", h)
		require.NoError(t, err)
		assert.True(t, got)
	}
	assert.Equal(t, []string{"1", "2", "3"}, seen)
}

func TestReceive_EmptyTopic(t *testing.T) {
	q, _ := newTestQueue(t)

	got, err := q.receive(context.Background(), "t", func(context.Context, appmigrate.Message) error {
		t.Fatal("handler must not run")
		return nil
	})

	require.NoError(t, err)
	assert.False(t, got)
}

func TestReceive_Requeue(t *testing.T) {
	tests := []struct {
		name        string
		maxAttempts int
		wantPending int64
	}{
		{name: "requeued below the limit", maxAttempts: 3, wantPending: 1},
		{name: "dropped at the limit", maxAttempts: 1, wantPending: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, _ := newTestQueue(t)
			q.maxAttempts = tt.maxAttempts
			ctx := context.Background()

			require.NoError(t, q.Enqueue(ctx, "t", appmigrate.Message{"k": "v"}))

			_, err := q.receive(ctx, "t", func(context.Context, appmigrate.Message) error {
				return errors.New("try again")
			})
			require.NoError(t, err)

			pending, err := q.Pending(ctx, "t")
			require.NoError(t, err)
			assert.Equal(t, tt.wantPending, pending)
		})
	}
}

func TestReceive_DropsUndecodable(t *testing.T) {
	q, mr := newTestQueue(t)

	_, err := mr.Lpush("appmigrate:t", "not json")
	require.NoError(t, err)

	got, err := q.receive(context.Background(), "t", func(context.Context, appmigrate.Message) error {
		t.Fatal("handler must not run")
		return nil
	})
	require.NoError(t, err)
	assert.True(t, got)
}

func TestSubscribe_StopsWithContext(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx, cancel := context.WithCancel(context.Background())

	received := make(chan appmigrate.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- q.Subscribe(ctx, "t", func(ctx context.Context, m appmigrate.Message) error {
			received <- m
			return nil
		})
	}()

	require.NoError(t, q.Enqueue(context.Background(), "t", appmigrate.Message{"k": "v"}))

	select {
	case m := <-received:
		assert.Equal(t, "v", m["k"])
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not stop")
	}
}
