package store

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // Postgres driver ("pgx")
	_ "github.com/mattn/go-sqlite3"    // SQLite driver
)

type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectPostgres
)

func (d Dialect) String() string {
	if d == DialectPostgres {
		return "postgres"
	}
	return "sqlite3"
}

// IsPostgresURL reports whether a database URL points at Postgres rather than a SQLite file.
// Railway-style postgres:// URLs are accepted alongside postgresql://.
func IsPostgresURL(url string) bool {
	return strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://")
}

// OpenDB opens and pings a database/sql handle for either dialect.
func OpenDB(url string) (*sql.DB, Dialect, error) {
	dialect := DialectSQLite
	driver, dsn := "sqlite3", sqliteDSN(url)
	if IsPostgresURL(url) {
		dialect, driver, dsn = DialectPostgres, "pgx", url
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, dialect, fmt.Errorf("failed to open database: %w", err)
	}
	if dialect == DialectSQLite && isMemoryDSN(url) {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, dialect, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, dialect, nil
}

func isMemoryDSN(url string) bool {
	return url == ":memory:" || strings.Contains(url, "mode=memory")
}

func sqliteDSN(url string) string {
	if isMemoryDSN(url) || strings.Contains(url, "?") {
		return url
	}
	return url + "?_busy_timeout=5000&_journal_mode=WAL"
}

// Rebind rewrites ? placeholders to $n for Postgres.
func Rebind(d Dialect, query string) string {
	if d != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Placeholders returns "?, ?, ?" with n entries for IN clauses.
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
