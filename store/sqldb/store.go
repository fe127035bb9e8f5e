// Package sqldb keeps migration records in a SQL table and runs literal SQL
// steps through database/sql.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"go.kirha.ai/appmigrate"
)

const DefaultTable = "migration_records"

var validIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// rowStatement matches statements that produce a result set, after any
// leading comments. Everything else runs through ExecContext, which executes
// every statement of a multi-statement string.
var rowStatement = regexp.MustCompile(`(?is)^\s*(?:--[^\n]*(?:\n|$)\s*|/\*.*?\*/\s*)*(?:select|with|show|pragma|values|explain|describe|table)\b|\breturning\b`)

type Config struct {
	Dialect Dialect
	DSN     string
	// Table defaults to DefaultTable.
	Table string
}

type Store struct {
	db      *sql.DB
	dialect Dialect
	table   string
	logger  appmigrate.Logger
}

// Open connects to the database described by cfg.
func Open(ctx context.Context, cfg Config, logger appmigrate.Logger) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("%w: DSN is required", appmigrate.ErrInvalidConfig)
	}

	db, err := sql.Open(string(cfg.Dialect), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s, err := New(db, cfg.Dialect, cfg.Table, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func New(db *sql.DB, dialect Dialect, table string, logger appmigrate.Logger) (*Store, error) {
	if _, err := ParseDialect(string(dialect)); err != nil {
		return nil, fmt.Errorf("%w: %v", appmigrate.ErrInvalidConfig, err)
	}

	if table == "" {
		table = DefaultTable
	}
	if !validIdentifier.MatchString(table) {
		return nil, fmt.Errorf("%w: invalid table name %q", appmigrate.ErrInvalidConfig, table)
	}

	return &Store{db: db, dialect: dialect, table: table, logger: logger}, nil
}

func (s *Store) Init(ctx context.Context) error {
	for _, stmt := range s.dialect.schema(s.table) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil && !isDuplicateIndex(err) {
			return fmt.Errorf("failed to create %s: %w", s.table, err)
		}
	}

	s.logger.Info("initialized migration record tracking", "table", s.table)
	return nil
}

func (s *Store) columns() string {
	return "record_key, id, application, created_at, status"
}

func (s *Store) Get(ctx context.Context, key string) (appmigrate.MigrationRecord, error) {
	query := s.dialect.rebind(fmt.Sprintf(`SELECT %s FROM %s WHERE record_key = ?`, s.columns(), s.table))

	record, err := scanRecord(s.db.QueryRowContext(ctx, query, key))
	if errors.Is(err, sql.ErrNoRows) {
		return appmigrate.MigrationRecord{}, fmt.Errorf("%w: %s", appmigrate.ErrRecordNotFound, key)
	}
	if err != nil {
		return appmigrate.MigrationRecord{}, fmt.Errorf("failed to get migration record: %w", err)
	}
	return record, nil
}

func (s *Store) Find(ctx context.Context, id, application string) (*appmigrate.MigrationRecord, error) {
	query := s.dialect.rebind(fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE id = ? AND application = ?
		ORDER BY seq DESC
		LIMIT 1
	`, s.columns(), s.table))

	record, err := scanRecord(s.db.QueryRowContext(ctx, query, id, application))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find migration record: %w", err)
	}
	return &record, nil
}

func (s *Store) Count(ctx context.Context, id, application string) (int, error) {
	query := s.dialect.rebind(fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE id = ? AND application = ?`, s.table))

	var n int
	if err := s.db.QueryRowContext(ctx, query, id, application).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count migration records: %w", err)
	}
	return n, nil
}

func (s *Store) Create(ctx context.Context, id, application string) (appmigrate.MigrationRecord, error) {
	record := appmigrate.MigrationRecord{
		Key:         uuid.New().String(),
		ID:          id,
		Application: application,
		CreatedAt:   time.Now().UTC(),
		Status:      appmigrate.StatusInProcess,
	}

	query := s.dialect.rebind(fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES (?, ?, ?, ?, ?)
	`, s.table, s.columns()))

	_, err := s.db.ExecContext(ctx, query,
		record.Key, record.ID, record.Application, record.CreatedAt.UnixNano(), string(record.Status))
	if err != nil {
		return appmigrate.MigrationRecord{}, fmt.Errorf("failed to create migration record: %w", err)
	}

	s.logger.Info("created migration record", "application", application, "migration", id, "key", record.Key)
	return record, nil
}

func (s *Store) SetStatus(ctx context.Context, key string, status appmigrate.Status) error {
	query := s.dialect.rebind(fmt.Sprintf(`UPDATE %s SET status = ? WHERE record_key = ?`, s.table))

	result, err := s.db.ExecContext(ctx, query, string(status), key)
	if err != nil {
		return fmt.Errorf("failed to update migration record: %w", err)
	}

	// MySQL reports zero affected rows when the value is unchanged.
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		if _, err := s.Get(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	query := s.dialect.rebind(fmt.Sprintf(`DELETE FROM %s WHERE record_key = ?`, s.table))

	if _, err := s.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("failed to delete migration record: %w", err)
	}

	s.logger.Info("removed migration record", "key", key)
	return nil
}

func (s *Store) List(ctx context.Context) ([]appmigrate.MigrationRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY seq`, s.columns(), s.table)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list migration records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []appmigrate.MigrationRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan migration record: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// Exec runs a literal statement outside any transaction. Arguments are
// passed to the driver unchanged, in the driver's placeholder syntax.
func (s *Store) Exec(ctx context.Context, query string, args ...any) ([]appmigrate.Row, error) {
	return execStatement(ctx, s.db, query, args)
}

type statementRunner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// execStatement only reads rows back from statements that return them. The
// query path of most drivers runs a single statement, or only the last one.
func execStatement(ctx context.Context, db statementRunner, query string, args []any) ([]appmigrate.Row, error) {
	if !rowStatement.MatchString(query) {
		_, err := db.ExecContext(ctx, query, args...)
		return nil, err
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectRows(rows)
}

// Atomic runs fn in one database transaction. Conflicts reported by the
// driver and commit failures are atomic-scope failures.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, exec appmigrate.Executor) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", appmigrate.ErrAtomicScope, err)
	}

	if err := fn(ctx, txExecutor{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Warn("failed to roll back transaction", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", appmigrate.ErrAtomicScope, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type txExecutor struct {
	tx *sql.Tx
}

func (e txExecutor) Exec(ctx context.Context, query string, args ...any) ([]appmigrate.Row, error) {
	out, err := execStatement(ctx, e.tx, query, args)
	if err == nil {
		return out, nil
	}

	if isConflict(err) {
		return nil, fmt.Errorf("%w: %v", appmigrate.ErrAtomicScope, err)
	}
	return nil, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (appmigrate.MigrationRecord, error) {
	var (
		record    appmigrate.MigrationRecord
		createdAt int64
		status    string
	)

	if err := row.Scan(&record.Key, &record.ID, &record.Application, &createdAt, &status); err != nil {
		return appmigrate.MigrationRecord{}, err
	}

	record.CreatedAt = time.Unix(0, createdAt).UTC()
	record.Status = appmigrate.Status(status)
	return record, nil
}

func collectRows(rows *sql.Rows) ([]appmigrate.Row, error) {
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []appmigrate.Row
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}

		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make(appmigrate.Row, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
