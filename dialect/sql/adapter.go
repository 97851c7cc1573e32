package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rowandb/rowan"
	"github.com/rowandb/rowan/dialect"
	"github.com/rowandb/rowan/schema"
)

// validIdentifierRe validates SQL identifiers (alphanumeric, underscores, dots for schema.name)
var validIdentifierRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.]*$`)

// isValidIdentifier checks if the string is a valid SQL identifier.
func isValidIdentifier(s string) bool {
	return s != "" && len(s) <= 128 && validIdentifierRe.MatchString(s)
}

// escapeStringValue escapes a string value for safe use in SQL.
// It escapes both single quotes (by doubling) and backslashes (for MySQL compatibility).
func escapeStringValue(s string) string {
	// Fast path: if no escaping needed, return as-is
	if !strings.ContainsAny(s, `'\`) {
		return s
	}
	// Escape backslashes first, then single quotes
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "'", "''")
	return s
}

// Adapter is one database connection plus the dialect it speaks. Every
// statement passes through its primitives, which rewrite ? placeholders
// to the dialect's form, set pending session variables and record query
// statistics.
//
// While a transaction is open, all statements are routed to it. Nested
// Begin calls join the open transaction and only move a counter; the
// counter serializes nested scopes on a single connection and is not a
// concurrency primitive. Use separate adapters for concurrent
// transactions.
type Adapter struct {
	dialect dialect.Dialect
	source  string
	logger  *slog.Logger
	stats   *QueryStats

	statsMu       sync.RWMutex
	slowThreshold time.Duration
	slowHook      SlowQueryHook

	mu    sync.Mutex
	db    *sql.DB
	tx    *sql.Tx
	depth int
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the adapter's logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithSlowThreshold sets the threshold for slow query detection.
// Queries taking longer than this duration will be counted as slow queries.
// Default is 100ms.
func WithSlowThreshold(d time.Duration) Option {
	return func(a *Adapter) {
		a.slowThreshold = d
	}
}

// WithSlowQueryHook sets a callback function for slow queries.
// The hook is called whenever a query exceeds the slow threshold.
func WithSlowQueryHook(hook SlowQueryHook) Option {
	return func(a *Adapter) {
		a.slowHook = hook
	}
}

// WithSlowQueryLog logs slow queries through the adapter's logger.
// This is a convenience wrapper around WithSlowQueryHook.
func WithSlowQueryLog() Option {
	return func(a *Adapter) {
		a.slowHook = func(ctx context.Context, query string, args []any, duration time.Duration) {
			a.logger.WarnContext(ctx, "slow query detected", "duration", duration, "query", query, "args", args)
		}
	}
}

// Open returns an unconnected adapter for the named dialect. The dialect
// must be registered, usually by importing its package for side effects:
//
//	import _ "github.com/rowandb/rowan/dialect/sqlite"
//
//	a, err := sql.Open(dialect.SQLite, "file:app.db")
//	if err != nil { ... }
//	if err := a.Connect(ctx); err != nil { ... }
func Open(dialectName, source string, opts ...Option) (*Adapter, error) {
	d, err := dialect.Lookup(dialectName)
	if err != nil {
		return nil, err
	}
	a := newAdapter(d, opts)
	a.source = source
	return a, nil
}

// OpenDB wraps an existing database handle with an adapter. The caller
// keeps ownership of the pool configuration.
func OpenDB(dialectName string, db *sql.DB, opts ...Option) (*Adapter, error) {
	d, err := dialect.Lookup(dialectName)
	if err != nil {
		return nil, err
	}
	a := newAdapter(d, opts)
	a.db = db
	return a, nil
}

func newAdapter(d dialect.Dialect, opts []Option) *Adapter {
	a := &Adapter{
		dialect:       d,
		logger:        slog.New(slog.DiscardHandler),
		stats:         &QueryStats{},
		slowThreshold: 100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Connect opens the connection pool, verifies it with a ping and runs the
// dialect's session initialization. Calling Connect on a connected
// adapter is a no-op.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db != nil {
		return nil
	}
	db, err := sql.Open(a.dialect.DriverName(), a.source)
	if err != nil {
		return fmt.Errorf("dialect/sql: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		err = errors.Join(err, db.Close())
		return fmt.Errorf("dialect/sql: ping: %w", err)
	}
	if err := a.dialect.Init(ctx, db); err != nil {
		err = errors.Join(err, db.Close())
		return fmt.Errorf("dialect/sql: init session: %w", err)
	}
	a.db = db
	a.logger.DebugContext(ctx, "connected", "dialect", a.dialect.Name())
	return nil
}

// Close rolls back any open transaction and closes the pool. Closing an
// unconnected adapter is a no-op.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	var err error
	if a.tx != nil {
		err = a.tx.Rollback()
		a.tx, a.depth = nil, 0
	}
	if a.db != nil {
		err = errors.Join(err, a.db.Close())
		a.db = nil
	}
	return err
}

// Dialect returns the dialect name.
func (a *Adapter) Dialect() string { return a.dialect.Name() }

// SupportsReturning reports whether INSERT ... RETURNING works on this
// dialect.
func (a *Adapter) SupportsReturning() bool { return a.dialect.SupportsReturning() }

// DateFunctions returns the dialect's date expression builders.
func (a *Adapter) DateFunctions() dialect.DateFunctions { return a.dialect.DateFunctions() }

// Logger returns the adapter's logger.
func (a *Adapter) Logger() *slog.Logger { return a.logger }

// DB returns the underlying pool, or nil before Connect.
func (a *Adapter) DB() *sql.DB {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.db
}

// InTransaction reports whether a transaction is in progress.
func (a *Adapter) InTransaction() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tx != nil
}

// conn returns the current statement target: the open transaction if one
// is in progress, the pool otherwise.
func (a *Adapter) conn() (dialect.ExecQuerier, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch {
	case a.tx != nil:
		return a.tx, nil
	case a.db != nil:
		return a.db, nil
	}
	return nil, rowan.ErrNotConnected
}

// Query executes a SELECT built with ? placeholders and returns all rows
// as maps keyed by column name.
func (a *Adapter) Query(ctx context.Context, query string, args ...any) (rows []rowan.Row, rerr error) {
	ex, err := a.conn()
	if err != nil {
		return nil, err
	}
	ex, cf, err := a.maySetVars(ctx, ex)
	if err != nil {
		return nil, fmt.Errorf("dialect/sql: query: set session vars: %w", err)
	}
	if cf != nil {
		defer func() { rerr = errors.Join(rerr, cf()) }()
	}
	query = dialect.Rebind(a.dialect, query)
	a.logger.DebugContext(ctx, "query", "sql", query, "args", args)
	start := time.Now()
	rs, err := ex.QueryContext(ctx, query, args...)
	a.record(ctx, query, args, start, err, true)
	if err != nil {
		return nil, fmt.Errorf("dialect/sql: query: %w", a.dialect.TranslateError(err))
	}
	defer func() { rerr = errors.Join(rerr, rs.Close()) }()
	rows, err = ScanRows(rs)
	if err != nil {
		return nil, fmt.Errorf("dialect/sql: scan: %w", err)
	}
	return rows, nil
}

// QuerySingle executes a SELECT and returns the first row, or nil when
// the result set is empty. Callers decide whether an empty result is an
// error.
func (a *Adapter) QuerySingle(ctx context.Context, query string, args ...any) (rowan.Row, error) {
	rows, err := a.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// ExecResult reports the outcome of a write statement. LastInsertID is
// zero on dialects without insert id support.
type ExecResult struct {
	RowsAffected int64
	LastInsertID int64
}

// Execute runs a write statement built with ? placeholders.
func (a *Adapter) Execute(ctx context.Context, query string, args ...any) (res *ExecResult, rerr error) {
	ex, err := a.conn()
	if err != nil {
		return nil, err
	}
	ex, cf, err := a.maySetVars(ctx, ex)
	if err != nil {
		return nil, fmt.Errorf("dialect/sql: exec: set session vars: %w", err)
	}
	if cf != nil {
		defer func() { rerr = errors.Join(rerr, cf()) }()
	}
	query = dialect.Rebind(a.dialect, query)
	a.logger.DebugContext(ctx, "exec", "sql", query, "args", args)
	start := time.Now()
	r, err := ex.ExecContext(ctx, query, args...)
	a.record(ctx, query, args, start, err, false)
	if err != nil {
		return nil, fmt.Errorf("dialect/sql: exec: %w", a.dialect.TranslateError(err))
	}
	res = &ExecResult{}
	if n, err := r.RowsAffected(); err == nil {
		res.RowsAffected = n
	}
	if a.dialect.SupportsLastInsertID() {
		if id, err := r.LastInsertId(); err == nil {
			res.LastInsertID = id
		}
	}
	return res, nil
}

// ExecuteScript runs a parameterless multi-statement script, e.g. schema
// DDL or seed data. The script is passed to the driver as-is; MySQL needs
// multiStatements enabled in the DSN for this.
func (a *Adapter) ExecuteScript(ctx context.Context, script string) error {
	ex, err := a.conn()
	if err != nil {
		return err
	}
	a.logger.DebugContext(ctx, "exec script", "bytes", len(script))
	start := time.Now()
	_, err = ex.ExecContext(ctx, script)
	a.record(ctx, script, nil, start, err, false)
	if err != nil {
		return fmt.Errorf("dialect/sql: exec script: %w", a.dialect.TranslateError(err))
	}
	return nil
}

// Begin opens a transaction, or joins the one already in progress. Only
// the outermost call issues BEGIN; nested calls increment the counter.
func (a *Adapter) Begin(ctx context.Context) error {
	return a.BeginTx(ctx, nil)
}

// BeginTx is like Begin but carries transaction options. Options are
// ignored when joining an open transaction.
func (a *Adapter) BeginTx(ctx context.Context, opts *TxOptions) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db == nil {
		return rowan.ErrNotConnected
	}
	if a.tx != nil {
		a.depth++
		a.logger.DebugContext(ctx, "joined transaction", "depth", a.depth)
		return nil
	}
	tx, err := a.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("dialect/sql: begin: %w", err)
	}
	a.tx, a.depth = tx, 1
	a.logger.DebugContext(ctx, "begin transaction")
	return nil
}

// Commit closes the innermost transaction scope. Only the outermost
// commit issues COMMIT; nested commits decrement the counter.
func (a *Adapter) Commit() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.tx == nil {
		return rowan.ErrNoTransaction
	}
	if a.depth--; a.depth > 0 {
		return nil
	}
	err := a.tx.Commit()
	a.tx = nil
	if err != nil {
		return fmt.Errorf("dialect/sql: commit: %w", err)
	}
	a.logger.Debug("commit transaction")
	return nil
}

// Rollback closes the innermost transaction scope. Only the outermost
// rollback issues ROLLBACK; a nested rollback decrements the counter, so
// the inner error must propagate outward for the whole transaction to be
// discarded.
func (a *Adapter) Rollback() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.tx == nil {
		return rowan.ErrNoTransaction
	}
	if a.depth--; a.depth > 0 {
		return nil
	}
	err := a.tx.Rollback()
	a.tx = nil
	if err != nil {
		return fmt.Errorf("dialect/sql: rollback: %w", err)
	}
	a.logger.Debug("rollback transaction")
	return nil
}

// Transaction runs fn in a transaction scope. It begins or joins a
// transaction, commits when fn returns nil and rolls back when fn
// returns an error or panics. Nested calls share the outer transaction,
// so an inner rollback takes effect only when the error unwinds to the
// outermost scope.
func (a *Adapter) Transaction(ctx context.Context, fn func(tx *Adapter) error) error {
	if err := a.Begin(ctx); err != nil {
		return err
	}
	defer func() {
		if v := recover(); v != nil {
			_ = a.Rollback()
			panic(v)
		}
	}()
	if err := fn(a); err != nil {
		if rerr := a.Rollback(); rerr != nil {
			err = fmt.Errorf("%w: rolling back transaction: %v", err, rerr)
		}
		return err
	}
	if err := a.Commit(); err != nil {
		return fmt.Errorf("dialect/sql: committing transaction: %w", err)
	}
	return nil
}

// QueryBuilder returns a select builder bound to this adapter.
func (a *Adapter) QueryBuilder(fields ...string) *Builder {
	b := Select(fields...)
	b.adapter = a
	return b
}

// InsertBuilder returns an insert builder bound to this adapter.
func (a *Adapter) InsertBuilder(table string) *InsertBuilder {
	b := Insert(table)
	b.adapter = a
	return b
}

// UpdateBuilder returns an update builder bound to this adapter.
func (a *Adapter) UpdateBuilder(table string) *UpdateBuilder {
	b := Update(table)
	b.adapter = a
	return b
}

// DeleteBuilder returns a delete builder bound to this adapter.
func (a *Adapter) DeleteBuilder(table string) *DeleteBuilder {
	b := Delete(table)
	b.adapter = a
	return b
}

// DatabaseInfo reports the server version and user tables.
func (a *Adapter) DatabaseInfo(ctx context.Context) (*dialect.DatabaseInfo, error) {
	ex, err := a.conn()
	if err != nil {
		return nil, err
	}
	return a.dialect.DatabaseInfo(ctx, ex)
}

// SyncSchema creates missing tables, junction tables and indexes for
// every registered entity. Existing objects are left alone. MySQL lacks
// CREATE INDEX IF NOT EXISTS and reports duplicates as errors instead;
// those are ignored.
func (a *Adapter) SyncSchema(ctx context.Context, reg *schema.Registry) error {
	stmts, err := schema.TablesDDL(reg, a.dialect.Name())
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if _, err := a.Execute(ctx, stmt); err != nil {
			if a.dialect.Name() == dialect.MySQL && strings.Contains(err.Error(), "Duplicate key name") {
				continue
			}
			return fmt.Errorf("dialect/sql: sync schema: %w", err)
		}
	}
	return nil
}

// ctxVarsKey is the key used for attaching and reading the context variables.
type ctxVarsKey struct{}

// sessionVars holds sessions/transactions variables to set before every statement.
type sessionVars struct {
	vars []struct{ k, v string }
}

// WithVar returns a new context that holds the session variable to be executed before every query.
func WithVar(ctx context.Context, name, value string) context.Context {
	sv, _ := ctx.Value(ctxVarsKey{}).(sessionVars)
	sv.vars = append(sv.vars, struct {
		k, v string
	}{
		k: name,
		v: value,
	})
	return context.WithValue(ctx, ctxVarsKey{}, sv)
}

// VarFromContext returns the session variable value from the context.
func VarFromContext(ctx context.Context, name string) (string, bool) {
	sv, _ := ctx.Value(ctxVarsKey{}).(sessionVars)
	for _, s := range sv.vars {
		if s.k == name {
			return s.v, true
		}
	}
	return "", false
}

// WithIntVar calls WithVar with the string representation of the value.
func WithIntVar(ctx context.Context, name string, value int) context.Context {
	return WithVar(ctx, name, strconv.Itoa(value))
}

// maySetVars sets the session variables attached to the context before
// the statement runs. Statements inside a transaction reuse its
// connection; pool statements check out a dedicated connection and reset
// the variables before returning it.
func (a *Adapter) maySetVars(ctx context.Context, e dialect.ExecQuerier) (dialect.ExecQuerier, func() error, error) {
	sv, _ := ctx.Value(ctxVarsKey{}).(sessionVars)
	if len(sv.vars) == 0 {
		return e, nil, nil
	}
	var (
		ex    dialect.ExecQuerier // Underlying ExecQuerier.
		cf    func() error        // Close function.
		reset []string            // Reset variables.
		seen  = make(map[string]struct{}, len(sv.vars))
	)
	switch e := e.(type) {
	case *sql.Tx:
		ex = e
	case *sql.DB:
		conn, err := e.Conn(ctx)
		if err != nil {
			return nil, nil, err
		}
		ex, cf = conn, conn.Close
	default:
		return nil, nil, fmt.Errorf("unsupported ExecQuerier type: %T", e)
	}
	for _, s := range sv.vars {
		// Validate the variable name to prevent SQL injection
		if !isValidIdentifier(s.k) {
			if cf != nil {
				_ = cf()
			}
			return nil, nil, fmt.Errorf("invalid session variable name: %q", s.k)
		}
		if _, ok := seen[s.k]; !ok {
			switch a.dialect.Name() {
			case dialect.Postgres:
				reset = append(reset, fmt.Sprintf("RESET %s", s.k))
			case dialect.MySQL:
				reset = append(reset, fmt.Sprintf("SET %s = NULL", s.k))
			}
			seen[s.k] = struct{}{}
		}
		// Escape the value to prevent SQL injection
		escapedValue := escapeStringValue(s.v)
		if _, err := ex.ExecContext(ctx, fmt.Sprintf("SET %s = '%s'", s.k, escapedValue)); err != nil {
			if cf != nil {
				err = errors.Join(err, cf())
			}
			return nil, nil, err
		}
	}
	// If there are variables to reset, and we need to return the
	// connection to the pool, we need to clean up the variables.
	// Use a background context with timeout for cleanup to ensure
	// it completes even if the original context was canceled.
	if cls := cf; cf != nil && len(reset) > 0 {
		cf = func() error {
			cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			for _, q := range reset {
				if _, err := ex.ExecContext(cleanupCtx, q); err != nil {
					return errors.Join(err, cls())
				}
			}
			return cls()
		}
	}
	return ex, cf, nil
}

type (
	// Result is an alias to sql.Result.
	Result = sql.Result
	// NullBool is an alias to sql.NullBool.
	NullBool = sql.NullBool
	// NullInt64 is an alias to sql.NullInt64.
	NullInt64 = sql.NullInt64
	// NullString is an alias to sql.NullString.
	NullString = sql.NullString
	// NullFloat64 is an alias to sql.NullFloat64.
	NullFloat64 = sql.NullFloat64
	// NullTime represents a time.Time that may be null.
	NullTime = sql.NullTime
	// TxOptions holds the transaction options to be used in DB.BeginTx.
	TxOptions = sql.TxOptions
)

// NullScanner implements the sql.Scanner interface such that it
// can be used as a scan destination, similar to the types above.
type NullScanner struct {
	S     sql.Scanner
	Valid bool // Valid is true if the Scan value is not NULL.
}

// Scan implements the Scanner interface.
func (n *NullScanner) Scan(value any) error {
	n.Valid = value != nil
	if n.Valid {
		return n.S.Scan(value)
	}
	return nil
}
