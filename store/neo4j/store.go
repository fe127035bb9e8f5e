// Package neo4j stores migration records as (:MigrationRecord) nodes and runs
// literal Cypher steps.
package neo4j

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	neo4jdriver "github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"go.kirha.ai/appmigrate"
)

var ErrDatabaseConnection = errors.New("database connection error")

type Config struct {
	URI      string
	Username string
	Password string
	Database string
}

type Store struct {
	driver   neo4jdriver.DriverWithContext
	database string
	logger   appmigrate.Logger
}

func New(ctx context.Context, cfg Config, logger appmigrate.Logger) (*Store, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("%w: URI is required", appmigrate.ErrInvalidConfig)
	}

	driver, err := neo4jdriver.NewDriverWithContext(
		cfg.URI,
		neo4jdriver.BasicAuth(cfg.Username, cfg.Password, ""),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseConnection, err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("%w: %v", ErrDatabaseConnection, err)
	}

	return NewWithDriver(driver, cfg.Database, logger), nil
}

func NewWithDriver(driver neo4jdriver.DriverWithContext, database string, logger appmigrate.Logger) *Store {
	if database == "" {
		database = "neo4j"
	}

	return &Store{
		driver:   driver,
		database: database,
		logger:   logger,
	}
}

func (s *Store) session(ctx context.Context, mode neo4jdriver.AccessMode) neo4jdriver.SessionWithContext {
	return s.driver.NewSession(ctx, neo4jdriver.SessionConfig{
		AccessMode:   mode,
		DatabaseName: s.database,
	})
}

func (s *Store) Init(ctx context.Context) error {
	session := s.session(ctx, neo4jdriver.AccessModeWrite)
	defer session.Close(ctx)

	queries := []string{
		`CREATE CONSTRAINT migration_record_key IF NOT EXISTS
		FOR (m:MigrationRecord)
		REQUIRE m.key IS UNIQUE`,
		`CREATE INDEX migration_record_lookup IF NOT EXISTS
		FOR (m:MigrationRecord)
		ON (m.id, m.application)`,
	}

	for _, query := range queries {
		if _, err := session.Run(ctx, query, nil); err != nil {
			return fmt.Errorf("%w: %v", ErrDatabaseConnection, err)
		}
	}

	s.logger.Info("initialized migration record tracking")
	return nil
}

const returnRecord = `RETURN m.key AS key, m.id AS id, m.application AS application, m.created_at AS created_at, m.status AS status`

func (s *Store) Get(ctx context.Context, key string) (appmigrate.MigrationRecord, error) {
	records, err := s.query(ctx, neo4jdriver.AccessModeRead,
		`MATCH (m:MigrationRecord {key: $key}) `+returnRecord,
		map[string]any{"key": key})
	if err != nil {
		return appmigrate.MigrationRecord{}, err
	}

	if len(records) == 0 {
		return appmigrate.MigrationRecord{}, fmt.Errorf("%w: %s", appmigrate.ErrRecordNotFound, key)
	}
	return records[0], nil
}

func (s *Store) Find(ctx context.Context, id, application string) (*appmigrate.MigrationRecord, error) {
	records, err := s.query(ctx, neo4jdriver.AccessModeRead,
		`MATCH (m:MigrationRecord {id: $id, application: $application}) `+returnRecord+`
		ORDER BY m.created_at DESC
		LIMIT 1`,
		map[string]any{"id": id, "application": application})
	if err != nil {
		return nil, err
	}

	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

func (s *Store) Count(ctx context.Context, id, application string) (int, error) {
	session := s.session(ctx, neo4jdriver.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.Run(ctx,
		`MATCH (m:MigrationRecord {id: $id, application: $application}) RETURN count(m) AS n`,
		map[string]any{"id": id, "application": application})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDatabaseConnection, err)
	}

	record, err := result.Single(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDatabaseConnection, err)
	}

	n, _ := record.Get("n")
	return int(n.(int64)), nil
}

func (s *Store) Create(ctx context.Context, id, application string) (appmigrate.MigrationRecord, error) {
	records, err := s.query(ctx, neo4jdriver.AccessModeWrite,
		`CREATE (m:MigrationRecord {
			key: $key,
			id: $id,
			application: $application,
			created_at: datetime(),
			status: $status
		}) `+returnRecord,
		map[string]any{
			"key":         uuid.NewString(),
			"id":          id,
			"application": application,
			"status":      string(appmigrate.StatusInProcess),
		})
	if err != nil {
		return appmigrate.MigrationRecord{}, err
	}

	s.logger.Info("created migration record", "application", application, "migration", id, "key", records[0].Key)
	return records[0], nil
}

func (s *Store) SetStatus(ctx context.Context, key string, status appmigrate.Status) error {
	records, err := s.query(ctx, neo4jdriver.AccessModeWrite,
		`MATCH (m:MigrationRecord {key: $key}) SET m.status = $status `+returnRecord,
		map[string]any{"key": key, "status": string(status)})
	if err != nil {
		return err
	}

	if len(records) == 0 {
		return fmt.Errorf("%w: %s", appmigrate.ErrRecordNotFound, key)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	session := s.session(ctx, neo4jdriver.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.Run(ctx, `MATCH (m:MigrationRecord {key: $key}) DELETE m`, map[string]any{"key": key})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseConnection, err)
	}

	s.logger.Info("removed migration record", "key", key)
	return nil
}

func (s *Store) List(ctx context.Context) ([]appmigrate.MigrationRecord, error) {
	return s.query(ctx, neo4jdriver.AccessModeRead,
		`MATCH (m:MigrationRecord) `+returnRecord+` ORDER BY m.created_at`, nil)
}

// Exec runs query in its own auto-commit transaction.
func (s *Store) Exec(ctx context.Context, query string, args ...any) ([]appmigrate.Row, error) {
	params, err := queryParams(args)
	if err != nil {
		return nil, err
	}

	session := s.session(ctx, neo4jdriver.AccessModeWrite)
	defer session.Close(ctx)

	result, err := session.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	return collectRows(ctx, result)
}

// Atomic runs fn inside one explicit transaction. Retryable driver errors and
// commit failures are reported as atomic-scope failures.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, exec appmigrate.Executor) error) error {
	session := s.session(ctx, neo4jdriver.AccessModeWrite)
	defer session.Close(ctx)

	tx, err := session.BeginTransaction(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", appmigrate.ErrAtomicScope, err)
	}
	defer tx.Close(ctx)

	if err := fn(ctx, txExecutor{tx: tx}); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			s.logger.Warn("failed to roll back transaction", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: %v", appmigrate.ErrAtomicScope, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.driver.Close(context.Background())
}

type txExecutor struct {
	tx neo4jdriver.ExplicitTransaction
}

func (e txExecutor) Exec(ctx context.Context, query string, args ...any) ([]appmigrate.Row, error) {
	params, err := queryParams(args)
	if err != nil {
		return nil, err
	}

	result, err := e.tx.Run(ctx, query, params)
	if err == nil {
		var rows []appmigrate.Row
		rows, err = collectRows(ctx, result)
		if err == nil {
			return rows, nil
		}
	}

	if neo4jdriver.IsRetryable(err) {
		return nil, fmt.Errorf("%w: %v", appmigrate.ErrAtomicScope, err)
	}
	return nil, err
}

func (s *Store) query(ctx context.Context, mode neo4jdriver.AccessMode, query string, params map[string]any) ([]appmigrate.MigrationRecord, error) {
	session := s.session(ctx, mode)
	defer session.Close(ctx)

	result, err := session.Run(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseConnection, err)
	}

	var records []appmigrate.MigrationRecord
	for result.Next(ctx) {
		records = append(records, toMigrationRecord(result.Record()))
	}

	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseConnection, err)
	}

	return records, nil
}

func toMigrationRecord(record *neo4jdriver.Record) appmigrate.MigrationRecord {
	key, _ := record.Get("key")
	id, _ := record.Get("id")
	application, _ := record.Get("application")
	createdAt, _ := record.Get("created_at")
	status, _ := record.Get("status")

	out := appmigrate.MigrationRecord{
		Key:         key.(string),
		ID:          id.(string),
		Application: application.(string),
		Status:      appmigrate.Status(status.(string)),
	}
	if t, ok := createdAt.(time.Time); ok {
		out.CreatedAt = t
	}
	return out
}

func collectRows(ctx context.Context, result neo4jdriver.ResultWithContext) ([]appmigrate.Row, error) {
	var rows []appmigrate.Row
	for result.Next(ctx) {
		rows = append(rows, appmigrate.Row(result.Record().AsMap()))
	}
	return rows, result.Err()
}

// queryParams accepts no argument or a single parameter map.
func queryParams(args []any) (map[string]any, error) {
	switch len(args) {
	case 0:
		return nil, nil
	case 1:
		if params, ok := args[0].(map[string]any); ok {
			return params, nil
		}
	}
	return nil, fmt.Errorf("cypher queries take a single map[string]any of parameters, got %d arguments", len(args))
}
