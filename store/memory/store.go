package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"go.kirha.ai/appmigrate"
)

// QueryHandler answers literal queries executed against the store.
type QueryHandler func(ctx context.Context, query string, args []any) ([]appmigrate.Row, error)

// Store is an in-memory implementation of appmigrate.Store for tests and
// local runs. Queries are journaled; queries run inside an atomic scope only
// reach the journal when the scope commits.
type Store struct {
	mu        sync.RWMutex
	records   map[string]appmigrate.MigrationRecord
	seq       map[string]int64 // key -> creation sequence
	next      int64
	journal   []string
	handler   QueryHandler
	commitErr error
}

func New() *Store {
	return &Store{
		records: make(map[string]appmigrate.MigrationRecord),
		seq:     make(map[string]int64),
	}
}

// SetQueryHandler installs h to answer queries. Without a handler queries
// succeed with no rows.
func (s *Store) SetQueryHandler(h QueryHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// SetCommitError makes every atomic scope fail to commit with err until it
// is reset with nil.
func (s *Store) SetCommitError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitErr = err
}

// Journal returns the committed queries in execution order.
func (s *Store) Journal() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, len(s.journal))
	copy(out, s.journal)
	return out
}

func (s *Store) Init(ctx context.Context) error {
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (appmigrate.MigrationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[key]
	if !ok {
		return appmigrate.MigrationRecord{}, fmt.Errorf("%w: %s", appmigrate.ErrRecordNotFound, key)
	}
	return record, nil
}

// Find returns the most recently created record for the pair.
func (s *Store) Find(ctx context.Context, id, application string) (*appmigrate.MigrationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *appmigrate.MigrationRecord
	var latest int64 = -1
	for key, record := range s.records {
		if record.ID != id || record.Application != application {
			continue
		}
		if s.seq[key] > latest {
			found = &record
			latest = s.seq[key]
		}
	}
	return found, nil
}

func (s *Store) Count(ctx context.Context, id, application string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, record := range s.records {
		if record.ID == id && record.Application == application {
			n++
		}
	}
	return n, nil
}

func (s *Store) Create(ctx context.Context, id, application string) (appmigrate.MigrationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := appmigrate.MigrationRecord{
		Key:         uuid.New().String(),
		ID:          id,
		Application: application,
		CreatedAt:   time.Now(),
		Status:      appmigrate.StatusInProcess,
	}

	s.records[record.Key] = record
	s.seq[record.Key] = s.next
	s.next++

	return record, nil
}

func (s *Store) SetStatus(ctx context.Context, key string, status appmigrate.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[key]
	if !ok {
		return fmt.Errorf("%w: %s", appmigrate.ErrRecordNotFound, key)
	}

	record.Status = status
	s.records[key] = record
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, key)
	delete(s.seq, key)
	return nil
}

// List returns all records in creation order.
func (s *Store) List(ctx context.Context) ([]appmigrate.MigrationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]appmigrate.MigrationRecord, 0, len(s.records))
	for _, record := range s.records {
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool {
		return s.seq[records[i].Key] < s.seq[records[j].Key]
	})
	return records, nil
}

func (s *Store) Exec(ctx context.Context, query string, args ...any) ([]appmigrate.Row, error) {
	rows, err := s.run(ctx, query, args)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.journal = append(s.journal, query)
	s.mu.Unlock()

	return rows, nil
}

func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, exec appmigrate.Executor) error) error {
	tx := &txExecutor{store: s}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.commitErr != nil {
		return fmt.Errorf("%w: %v", appmigrate.ErrAtomicScope, s.commitErr)
	}
	s.journal = append(s.journal, tx.pending...)
	return nil
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) run(ctx context.Context, query string, args []any) ([]appmigrate.Row, error) {
	s.mu.RLock()
	handler := s.handler
	s.mu.RUnlock()

	if handler == nil {
		return nil, nil
	}
	return handler(ctx, query, args)
}

type txExecutor struct {
	store   *Store
	pending []string
}

func (e *txExecutor) Exec(ctx context.Context, query string, args ...any) ([]appmigrate.Row, error) {
	rows, err := e.store.run(ctx, query, args)
	if err != nil {
		return nil, err
	}
	e.pending = append(e.pending, query)
	return rows, nil
}
