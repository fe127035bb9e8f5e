package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.kirha.ai/appmigrate"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	s, err := New(db, SQLite3, "", nopLogger{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Init(context.Background()))
	return s
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		dialect Dialect
		table   string
		wantErr bool
	}{
		{name: "defaults", dialect: SQLite3},
		{name: "custom table", dialect: Postgres, table: "tenant_migrations"},
		{name: "unknown dialect", dialect: "oracle", wantErr: true},
		{name: "invalid table", dialect: MySQL, table: "records; DROP TABLE x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(nil, tt.dialect, tt.table, nopLogger{})
			if tt.wantErr {
				assert.ErrorIs(t, err, appmigrate.ErrInvalidConfig)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestInit_Idempotent(t *testing.T) {
	s := newTestStore(t)

	assert.NoError(t, s.Init(context.Background()))
}

func TestRecordLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.Create(ctx, "0001_init", "billing")
	require.NoError(t, err)
	second, err := s.Create(ctx, "0001_init", "billing")
	require.NoError(t, err)

	n, err := s.Count(ctx, "0001_init", "billing")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	found, err := s.Find(ctx, "0001_init", "billing")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, second.Key, found.Key)
	assert.Equal(t, appmigrate.StatusInProcess, found.Status)

	require.NoError(t, s.SetStatus(ctx, first.Key, appmigrate.StatusFailed))
	got, err := s.Get(ctx, first.Key)
	require.NoError(t, err)
	assert.Equal(t, appmigrate.StatusFailed, got.Status)
	assert.Equal(t, first.CreatedAt.UnixNano(), got.CreatedAt.UnixNano())

	require.NoError(t, s.Delete(ctx, first.Key))
	_, err = s.Get(ctx, first.Key)
	assert.ErrorIs(t, err, appmigrate.ErrRecordNotFound)
	assert.ErrorIs(t, s.SetStatus(ctx, first.Key, appmigrate.StatusSuccess), appmigrate.ErrRecordNotFound)

	records, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, second.Key, records[0].Key)
}

func TestFind_NoRecord(t *testing.T) {
	s := newTestStore(t)

	found, err := s.Find(context.Background(), "0001_init", "billing")

	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestExec_ReturnsRows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Exec(ctx, "CREATE TABLE tenants (name TEXT)")
	require.NoError(t, err)
	_, err = s.Exec(ctx, "INSERT INTO tenants (name) VALUES (?)", "acme")
	require.NoError(t, err)

	rows, err := s.Exec(ctx, "SELECT name FROM tenants")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "acme", rows[0]["name"])
}

func TestExec_RunsEveryStatement(t *testing.T) {
	tables := func(t *testing.T, s *Store) []string {
		t.Helper()
		rows, err := s.Exec(context.Background(),
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name IN ('tenants', 'invoices') ORDER BY name")
		require.NoError(t, err)

		var names []string
		for _, row := range rows {
			names = append(names, row["name"].(string))
		}
		return names
	}

	const script = "CREATE TABLE tenants (name TEXT); CREATE TABLE invoices (id INTEGER)"

	t.Run("outside a transaction", func(t *testing.T) {
		s := newTestStore(t)
		_, err := s.Exec(context.Background(), script)
		require.NoError(t, err)
		assert.Equal(t, []string{"invoices", "tenants"}, tables(t, s))
	})

	t.Run("inside a transaction", func(t *testing.T) {
		s := newTestStore(t)
		err := s.Atomic(context.Background(), func(ctx context.Context, exec appmigrate.Executor) error {
			_, err := exec.Exec(ctx, script)
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"invoices", "tenants"}, tables(t, s))
	})
}

func TestRowStatement(t *testing.T) {
	tests := []struct {
		query string
		want  bool
	}{
		{query: "SELECT 1", want: true},
		{query: "  with t AS (SELECT 1) SELECT * FROM t", want: true},
		{query: "-- tenants\nSELECT name FROM tenants", want: true},
		{query: "/* count */ SELECT COUNT(*) FROM tenants", want: true},
		{query: "PRAGMA table_info(tenants)", want: true},
		{query: "INSERT INTO tenants (name) VALUES ('a') RETURNING id", want: true},
		{query: "CREATE TABLE tenants (name TEXT)", want: false},
		{query: "INSERT INTO tenants (name) VALUES ('a')", want: false},
		{query: "-- select everything\nDELETE FROM tenants", want: false},
		{query: "UPDATE selections SET n = 1", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, rowStatement.MatchString(tt.query))
		})
	}
}

func TestAtomic_RollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	_, err := s.Exec(ctx, "CREATE TABLE tenants (name TEXT)")
	require.NoError(t, err)

	err = s.Atomic(ctx, func(ctx context.Context, exec appmigrate.Executor) error {
		if _, err := exec.Exec(ctx, "INSERT INTO tenants (name) VALUES ('gone')"); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, appmigrate.IsAtomicScopeFailure(err))

	rows, err := s.Exec(ctx, "SELECT COUNT(*) AS n FROM tenants")
	require.NoError(t, err)
	assert.EqualValues(t, 0, rows[0]["n"])
}

func TestAtomic_Commits(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Exec(ctx, "CREATE TABLE tenants (name TEXT)")
	require.NoError(t, err)

	err = s.Atomic(ctx, func(ctx context.Context, exec appmigrate.Executor) error {
		_, err := exec.Exec(ctx, "INSERT INTO tenants (name) VALUES ('kept')")
		return err
	})
	require.NoError(t, err)

	rows, err := s.Exec(ctx, "SELECT COUNT(*) AS n FROM tenants")
	require.NoError(t, err)
	assert.EqualValues(t, 1, rows[0]["n"])
}

func TestRebind(t *testing.T) {
	query := "SELECT a FROM t WHERE b = ? AND c = ?"

	assert.Equal(t, "SELECT a FROM t WHERE b = $1 AND c = $2", Postgres.rebind(query))
	assert.Equal(t, "SELECT a FROM t WHERE b = $1 AND c = $2", PGX.rebind(query))
	assert.Equal(t, query, MySQL.rebind(query))
	assert.Equal(t, query, SQLite3.rebind(query))
}

func TestIsConflict(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "pq serialization", err: &pq.Error{Code: "40001"}, want: true},
		{name: "pq unique violation", err: &pq.Error{Code: "23505"}},
		{name: "pgx deadlock", err: &pgconn.PgError{Code: "40P01"}, want: true},
		{name: "mysql deadlock", err: &mysql.MySQLError{Number: 1213}, want: true},
		{name: "mysql syntax", err: &mysql.MySQLError{Number: 1064}},
		{name: "sqlite busy", err: sqlite3.Error{Code: sqlite3.ErrBusy}, want: true},
		{name: "plain error", err: errors.New("nope")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isConflict(tt.err))
		})
	}
}

func TestParseDialect(t *testing.T) {
	d, err := ParseDialect("PGX")
	require.NoError(t, err)
	assert.Equal(t, PGX, d)

	_, err = ParseDialect("oracle")
	assert.Error(t, err)
}
