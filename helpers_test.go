package appmigrate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.kirha.ai/appmigrate/metrics"
)

type mockStore struct {
	mu         sync.Mutex
	CreateFunc func(ctx context.Context, id, application string) (MigrationRecord, error)
	DeleteFunc func(ctx context.Context, key string) error
	CountFunc  func(ctx context.Context, id, application string) (int, error)
	ExecFunc   func(ctx context.Context, query string, args []any) ([]Row, error)
	CommitErr  error
	ListErr    error
	records    map[string]MigrationRecord
	order      []string
	next       int
	executed   []string
	atomic     int
	nonAtomic  int
	finds      int
	lists      int
}

func newMockStore() *mockStore {
	return &mockStore{
		records: make(map[string]MigrationRecord),
	}
}

func (m *mockStore) Init(ctx context.Context) error {
	return nil
}

func (m *mockStore) Get(ctx context.Context, key string) (MigrationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.records[key]
	if !ok {
		return MigrationRecord{}, fmt.Errorf("%w: %s", ErrRecordNotFound, key)
	}
	return record, nil
}

func (m *mockStore) Find(ctx context.Context, id, application string) (*MigrationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.finds++
	for i := len(m.order) - 1; i >= 0; i-- {
		record, ok := m.records[m.order[i]]
		if ok && record.ID == id && record.Application == application {
			return &record, nil
		}
	}
	return nil, nil
}

func (m *mockStore) Count(ctx context.Context, id, application string) (int, error) {
	if m.CountFunc != nil {
		return m.CountFunc(ctx, id, application)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, record := range m.records {
		if record.ID == id && record.Application == application {
			n++
		}
	}
	return n, nil
}

func (m *mockStore) Create(ctx context.Context, id, application string) (MigrationRecord, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, id, application)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.next++
	record := MigrationRecord{
		Key:         fmt.Sprintf("key-%d", m.next),
		ID:          id,
		Application: application,
		CreatedAt:   time.Now(),
		Status:      StatusInProcess,
	}
	m.records[record.Key] = record
	m.order = append(m.order, record.Key)
	return record, nil
}

func (m *mockStore) SetStatus(ctx context.Context, key string, status Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.records[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, key)
	}
	record.Status = status
	m.records[key] = record
	return nil
}

func (m *mockStore) Delete(ctx context.Context, key string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, key)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.records, key)
	return nil
}

func (m *mockStore) List(ctx context.Context) ([]MigrationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lists++
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	var records []MigrationRecord
	for _, key := range m.order {
		if record, ok := m.records[key]; ok {
			records = append(records, record)
		}
	}
	return records, nil
}

func (m *mockStore) Exec(ctx context.Context, query string, args ...any) ([]Row, error) {
	rows, err := m.run(ctx, query, args)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.nonAtomic++
	m.executed = append(m.executed, query)
	m.mu.Unlock()
	return rows, nil
}

func (m *mockStore) Atomic(ctx context.Context, fn func(ctx context.Context, exec Executor) error) error {
	m.mu.Lock()
	m.atomic++
	m.mu.Unlock()

	tx := &mockTx{store: m}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CommitErr != nil {
		return fmt.Errorf("%w: %v", ErrAtomicScope, m.CommitErr)
	}
	m.executed = append(m.executed, tx.pending...)
	return nil
}

func (m *mockStore) Close() error {
	return nil
}

func (m *mockStore) run(ctx context.Context, query string, args []any) ([]Row, error) {
	if m.ExecFunc != nil {
		return m.ExecFunc(ctx, query, args)
	}
	return nil, nil
}

// Executed returns the committed queries in order.
func (m *mockStore) Executed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, len(m.executed))
	copy(out, m.executed)
	return out
}

func (m *mockStore) recordCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

type mockTx struct {
	store   *mockStore
	pending []string
}

func (t *mockTx) Exec(ctx context.Context, query string, args ...any) ([]Row, error) {
	rows, err := t.store.run(ctx, query, args)
	if err != nil {
		return nil, err
	}
	t.pending = append(t.pending, query)
	return rows, nil
}

type queuedMessage struct {
	Topic   string
	Message Message
}

type mockQueue struct {
	mu          sync.Mutex
	EnqueueFunc func(ctx context.Context, topic string, msg Message) error
	messages    []queuedMessage
}

func newMockQueue() *mockQueue {
	return &mockQueue{}
}

func (q *mockQueue) Enqueue(ctx context.Context, topic string, msg Message) error {
	if q.EnqueueFunc != nil {
		if err := q.EnqueueFunc(ctx, topic, msg); err != nil {
			return err
		}
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.messages = append(q.messages, queuedMessage{Topic: topic, Message: msg})
	return nil
}

func (q *mockQueue) Messages(topic string) []Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []Message
	for _, m := range q.messages {
		if m.Topic == topic {
			out = append(out, m.Message)
		}
	}
	return out
}

// pop removes and returns the oldest message on topic.
func (q *mockQueue) pop(topic string) (Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, m := range q.messages {
		if m.Topic == topic {
			q.messages = append(q.messages[:i], q.messages[i+1:]...)
			return m.Message, true
		}
	}
	return nil, false
}

type mockLogger struct {
	mu       sync.RWMutex
	DebugLog []string
	InfoLog  []string
	WarnLog  []string
	ErrorLog []string
}

func newMockLogger() *mockLogger {
	return &mockLogger{
		DebugLog: make([]string, 0),
		InfoLog:  make([]string, 0),
		WarnLog:  make([]string, 0),
		ErrorLog: make([]string, 0),
	}
}

func (m *mockLogger) Debug(msg string, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DebugLog = append(m.DebugLog, msg)
}

func (m *mockLogger) Info(msg string, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InfoLog = append(m.InfoLog, msg)
}

func (m *mockLogger) Warn(msg string, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WarnLog = append(m.WarnLog, msg)
}

func (m *mockLogger) Error(msg string, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ErrorLog = append(m.ErrorLog, msg)
}

// newTestMigration builds a regular or hook migration from define, wired to
// store, queue and logger.
func newTestMigration(id, application string, store Store, queue Queue, logger Logger, define func(b *Builder)) *Migration {
	b := newBuilder()
	if define != nil {
		define(b)
	}

	kind := KindRegular
	if len(id) >= len(hookPrefix) && id[:len(hookPrefix)] == hookPrefix {
		kind = KindHook
	}

	return &Migration{
		ID:           id,
		Application:  application,
		Kind:         kind,
		transactions: b.transactions,
		store:        store,
		queue:        queue,
		logger:       logger,
		metrics:      metrics.NewCollector(application),
	}
}

// failingFunc returns a step callback that always fails with err.
func failingFunc(err error) Func {
	return func(ctx context.Context, m *Migration, exec Executor) error {
		return err
	}
}
