package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.kirha.ai/appmigrate"
)

// Store caches the record listing of an appmigrate.Store under
// appmigrate.RecordKind. The entry is dropped after every write and before
// every delete, so a listing never outlives the records it was built from.
type Store struct {
	appmigrate.Store
	cache  Cache
	ttl    time.Duration
	logger appmigrate.Logger
}

func NewStore(store appmigrate.Store, cache Cache, ttl time.Duration, logger appmigrate.Logger) *Store {
	return &Store{Store: store, cache: cache, ttl: ttl, logger: logger}
}

func (s *Store) List(ctx context.Context) ([]appmigrate.MigrationRecord, error) {
	data, err := s.cache.Get(ctx, appmigrate.RecordKind)
	if err == nil {
		var records []appmigrate.MigrationRecord
		if err := json.Unmarshal(data, &records); err == nil {
			return records, nil
		}
		s.logger.Warn("discarding undecodable cached records", "error", err)
	} else if !errors.Is(err, ErrMiss) {
		s.logger.Warn("record cache unavailable", "error", err)
	}

	records, err := s.Store.List(ctx)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(records); err == nil {
		if err := s.cache.Set(ctx, appmigrate.RecordKind, data, s.ttl); err != nil {
			s.logger.Warn("failed to cache records", "error", err)
		}
	}
	return records, nil
}

func (s *Store) Create(ctx context.Context, id, application string) (appmigrate.MigrationRecord, error) {
	record, err := s.Store.Create(ctx, id, application)
	if err != nil {
		return record, err
	}
	s.invalidate(ctx)
	return record, nil
}

func (s *Store) SetStatus(ctx context.Context, key string, status appmigrate.Status) error {
	if err := s.Store.SetStatus(ctx, key, status); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	s.invalidate(ctx)
	return s.Store.Delete(ctx, key)
}

func (s *Store) invalidate(ctx context.Context) {
	if err := s.cache.Delete(ctx, appmigrate.RecordKind); err != nil {
		s.logger.Warn("failed to invalidate record cache", "error", err)
	}
}
