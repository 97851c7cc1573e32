// Package dialect abstracts the differences between database engines for
// the rowan mapping layer.
//
// # Supported Dialects
//
// Each dialect is identified by a constant string:
//
//	dialect.SQLite   = "sqlite"
//	dialect.Postgres = "postgres"
//	dialect.MySQL    = "mysql"
//
// # Registration
//
// Concrete dialects live in subpackages and register themselves on import,
// the same way database/sql drivers do:
//
//	import (
//	    "github.com/rowandb/rowan/dialect"
//	    _ "github.com/rowandb/rowan/dialect/sqlite"
//	)
//
//	d, err := dialect.Lookup(dialect.SQLite)
//
// The registry is the single source of supported engines: asking for an
// unregistered name is an error, never a silent fallback.
//
// # What a Dialect Covers
//
// A Dialect answers only engine-specific questions: the database/sql driver
// name, placeholder style ("?" vs "$n"), session setup (e.g. SQLite
// pragmas), date expression rendering, database introspection, RETURNING
// and LastInsertId support, and driver error classification. Query
// construction and execution are dialect-independent and live in
// dialect/sql.
//
// # Placeholders
//
// Queries are always built with ? placeholders; Rebind rewrites them into
// the dialect's style at render time. Parameter order therefore always
// matches placeholder order, regardless of engine.
package dialect
