// Package sql implements the storage adapter and the SQL statement
// builders on top of database/sql.
//
// The Adapter owns one connection pool and the dialect it speaks. All
// statements are built with ? placeholders; the adapter rewrites them to
// the dialect's placeholder form at execution time, so builders stay
// dialect-agnostic and parameters always travel out-of-band.
//
// # Opening a connection
//
// Dialects register themselves on import:
//
//	import (
//	    "github.com/rowandb/rowan/dialect"
//	    "github.com/rowandb/rowan/dialect/sql"
//
//	    _ "github.com/rowandb/rowan/dialect/sqlite"
//	)
//
//	a, err := sql.Open(dialect.SQLite, "file:app.db?_pragma=busy_timeout(5000)")
//	if err != nil { ... }
//	if err := a.Connect(ctx); err != nil { ... }
//	defer a.Close()
//
// # Builders
//
//   - Builder: SELECT with joins, predicates, grouping and pagination
//   - InsertBuilder: INSERT with multi-row VALUES and RETURNING support
//   - UpdateBuilder: UPDATE with SET and WHERE clauses
//   - DeleteBuilder: DELETE with WHERE clauses
//
// Builders validate identifiers, accumulate construction errors for a
// single Err check, and guarantee that parameter order matches
// placeholder order:
//
//	rows, err := a.QueryBuilder("id", "name").
//	    From("users").
//	    WhereCond(sql.EQ("status", "active")).
//	    OrderAsc("name").
//	    Limit(10).
//	    All(ctx)
//
// # Predicates
//
// Cond values render a clause plus its parameters:
//
//	sql.EQ("name", "ada")             // name = ?
//	sql.In("status", "a", "b")        // status IN (?, ?)
//	sql.In("status")                  // 0 = 1 (empty IN matches nothing)
//	sql.And(sql.GT("age", 18), sql.IsNull("deleted_at"))
//
// # Generic entity operations
//
// FindByID, FindBy, Insert, Update, Delete, Count, Aggregate and friends
// operate on any registered entity through its schema configuration; see
// base.go.
//
// # Transactions
//
// One transaction per adapter; nested scopes share it through a counter:
//
//	err := a.Transaction(ctx, func(tx *sql.Adapter) error {
//	    if _, err := tx.Execute(ctx, "UPDATE accounts SET credits = credits - ? WHERE id = ?", 10, 1); err != nil {
//	        return err
//	    }
//	    return tx.Transaction(ctx, func(tx *sql.Adapter) error {
//	        _, err := tx.Execute(ctx, "UPDATE accounts SET credits = credits + ? WHERE id = ?", 10, 2)
//	        return err
//	    })
//	})
//
// # Statistics
//
// Every adapter collects query statistics and can report slow queries:
//
//	a, _ := sql.Open(dialect.Postgres, dsn,
//	    sql.WithSlowThreshold(200*time.Millisecond),
//	    sql.WithSlowQueryLog(),
//	)
//	fmt.Println(a.Stats())
package sql
