package sqldb

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Dialect is the database/sql driver name the store talks to.
type Dialect string

const (
	Postgres Dialect = "postgres"
	PGX      Dialect = "pgx"
	MySQL    Dialect = "mysql"
	SQLite3  Dialect = "sqlite3"
)

func ParseDialect(s string) (Dialect, error) {
	switch d := Dialect(strings.ToLower(s)); d {
	case Postgres, PGX, MySQL, SQLite3:
		return d, nil
	}
	return "", fmt.Errorf("unsupported dialect %q", s)
}

// rebind rewrites ? placeholders to $n for the PostgreSQL drivers.
func (d Dialect) rebind(query string) string {
	if d != Postgres && d != PGX {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (d Dialect) schema(table string) []string {
	var seq string
	switch d {
	case Postgres, PGX:
		seq = "seq BIGSERIAL PRIMARY KEY"
	case MySQL:
		seq = "seq BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY"
	default:
		seq = "seq INTEGER PRIMARY KEY AUTOINCREMENT"
	}

	create := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    %s,
    record_key VARCHAR(36) NOT NULL UNIQUE,
    id VARCHAR(255) NOT NULL,
    application VARCHAR(255) NOT NULL,
    created_at BIGINT NOT NULL,
    status VARCHAR(32) NOT NULL
)`, table, seq)

	index := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_lookup ON %s (application, id)`, table, table)
	if d == MySQL {
		// MySQL has no IF NOT EXISTS for indexes.
		index = fmt.Sprintf(`CREATE INDEX idx_%s_lookup ON %s (application, id)`, table, table)
	}

	return []string{create, index}
}

// isDuplicateIndex reports whether err only says the lookup index exists.
func isDuplicateIndex(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == 1061
}

// isConflict reports whether err is a serialization failure, deadlock or
// lock timeout the driver expects the caller to retry.
func isConflict(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1213 || myErr.Number == 1205
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked
	}

	return false
}
