package sqlstore

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/MrEthical07/authcore"
)

// Dialect selects placeholder style, migrations and error decoding.
type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

func (d Dialect) String() string {
	switch d {
	case SQLite:
		return "sqlite"
	case Postgres:
		return "postgres"
	default:
		return "dialect(" + strconv.Itoa(int(d)) + ")"
	}
}

// ParseDialect accepts "sqlite" and "postgres".
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(s) {
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	default:
		return 0, fmt.Errorf("sqlstore: unknown dialect %q", s)
	}
}

// rebind turns ? placeholders into $n for PostgreSQL. Queries in this package never
// contain a literal question mark.
func (d Dialect) rebind(query string) string {
	if d != Postgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// mapErr converts driver errors into the authcore sentinels.
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, authcore.ErrNotFound),
		errors.Is(err, authcore.ErrDuplicateIdentity),
		errors.Is(err, authcore.ErrConsistencyViolation):
		return err
	case errors.Is(err, sql.ErrNoRows):
		return authcore.ErrNotFound
	case isUniqueViolation(err):
		return fmt.Errorf("%w: %v", authcore.ErrDuplicateIdentity, err)
	default:
		return fmt.Errorf("%w: %v", authcore.ErrUnavailable, err)
	}
}

// mapTxErr is mapErr for multi-statement writes: anything but a missing row or a unique
// violation means the transaction was rolled back.
func mapTxErr(err error) error {
	err = mapErr(err)
	if err == nil || errors.Is(err, authcore.ErrNotFound) || errors.Is(err, authcore.ErrDuplicateIdentity) {
		return err
	}
	if errors.Is(err, authcore.ErrConsistencyViolation) {
		return err
	}
	return fmt.Errorf("%w: %v", authcore.ErrConsistencyViolation, err)
}
