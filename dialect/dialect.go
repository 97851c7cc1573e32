package dialect

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Supported dialect names.
const (
	SQLite   = "sqlite"
	Postgres = "postgres"
	MySQL    = "mysql"
)

// ExecQuerier wraps the execution methods shared by *sql.DB and *sql.Tx.
// Statements route through it so that the same code path serves plain and
// transactional execution.
type ExecQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// DateFunctions renders engine-specific SQL expressions over datetime
// values. Arguments named expr are SQL fragments (column references or
// literals already quoted by the caller), never user input.
type DateFunctions interface {
	// Now returns the expression for the current timestamp.
	Now() string
	// Diff returns the difference end-start measured in unit
	// (day, hour, minute or second), truncated towards zero.
	Diff(unit, start, end string) string
	// Add returns expr shifted by amount units.
	Add(expr string, amount int, unit string) string
	// Format renders expr using a strftime-style layout. Dialects translate
	// the common directives (%Y %m %d %H %M %S).
	Format(expr, layout string) string
	// IsValid returns a boolean expression that is true when expr parses
	// as a date.
	IsValid(expr string) string
}

// DatabaseInfo describes the connected database.
type DatabaseInfo struct {
	Dialect string   `json:"dialect"`
	Version string   `json:"version"`
	Tables  []string `json:"tables"`
}

// Dialect isolates everything that varies between database engines:
// driver registration name, placeholder style, session setup, date
// expression rendering, introspection and driver error classification.
// Implementations register themselves with Register, typically from an
// init function, mirroring database/sql driver registration.
type Dialect interface {
	// Name returns the dialect name (one of the package constants).
	Name() string
	// DriverName returns the database/sql driver registration name.
	DriverName() string
	// Placeholder returns the 1-based n-th parameter placeholder.
	Placeholder(n int) string
	// SupportsReturning reports INSERT ... RETURNING support.
	SupportsReturning() bool
	// SupportsLastInsertID reports whether sql.Result.LastInsertId works.
	SupportsLastInsertID() bool
	// Init runs session setup after the connection pool opens.
	Init(ctx context.Context, conn ExecQuerier) error
	// DateFunctions returns the dialect's date expression renderer.
	DateFunctions() DateFunctions
	// DatabaseInfo introspects the connected database.
	DatabaseInfo(ctx context.Context, conn ExecQuerier) (*DatabaseInfo, error)
	// TranslateError classifies driver errors, wrapping constraint
	// violations so callers can match them uniformly. All other errors
	// pass through unchanged.
	TranslateError(err error) error
}

var (
	dialectsMu sync.RWMutex
	dialects   = make(map[string]Dialect)
)

// Register makes a dialect available under its name. It panics when
// called twice for one name or with a nil dialect, matching the
// database/sql driver registration contract.
func Register(d Dialect) {
	dialectsMu.Lock()
	defer dialectsMu.Unlock()
	if d == nil {
		panic("dialect: Register dialect is nil")
	}
	if _, dup := dialects[d.Name()]; dup {
		panic("dialect: Register called twice for dialect " + d.Name())
	}
	dialects[d.Name()] = d
}

// Lookup returns the registered dialect with the given name.
func Lookup(name string) (Dialect, error) {
	dialectsMu.RLock()
	defer dialectsMu.RUnlock()
	d, ok := dialects[name]
	if !ok {
		return nil, fmt.Errorf("dialect: unknown dialect %q (forgotten import?)", name)
	}
	return d, nil
}

// Dialects returns the names of the registered dialects, sorted.
func Dialects() []string {
	dialectsMu.RLock()
	defer dialectsMu.RUnlock()
	names := make([]string, 0, len(dialects))
	for name := range dialects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Placeholders returns n comma-separated ? placeholders, e.g. "?, ?, ?".
// Queries are always built with ? and rewritten per dialect by Rebind.
func Placeholders(n int) string {
	switch {
	case n <= 0:
		return ""
	case n == 1:
		return "?"
	}
	var b strings.Builder
	b.Grow(3 * n)
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("?")
	}
	return b.String()
}

// QueryStrings runs a query and returns the first column of every row as
// strings. Dialect implementations use it for introspection queries.
func QueryStrings(ctx context.Context, conn ExecQuerier, query string) ([]string, error) {
	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v any
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		switch v := v.(type) {
		case string:
			out = append(out, v)
		case []byte:
			out = append(out, string(v))
		case nil:
			out = append(out, "")
		default:
			out = append(out, fmt.Sprint(v))
		}
	}
	return out, rows.Err()
}

// Rebind rewrites a query built with ? placeholders into the dialect's
// placeholder style. Dialects using ? natively get the query unchanged.
// Question marks inside string literals are not distinguished; values
// belong in parameters, not in the query text.
func Rebind(d Dialect, query string) string {
	if d.Placeholder(1) == "?" {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] != '?' {
			b.WriteByte(query[i])
			continue
		}
		n++
		b.WriteString(d.Placeholder(n))
	}
	return b.String()
}
