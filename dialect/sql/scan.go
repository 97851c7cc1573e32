package sql

import (
	"database/sql"

	"github.com/rowandb/rowan"
)

// ColumnScanner is the interface that wraps the standard
// sql.Rows methods used for scanning database rows.
type ColumnScanner interface {
	Close() error
	ColumnTypes() ([]*sql.ColumnType, error)
	Columns() ([]string, error)
	Err() error
	Next() bool
	NextResultSet() bool
	Scan(dest ...any) error
}

// ScanRows drains the result set into maps keyed by column name.
func ScanRows(rows ColumnScanner) ([]rowan.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []rowan.Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(rowan.Row, len(cols))
		for i, c := range cols {
			row[c] = normalizeValue(vals[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// normalizeValue copies driver []byte values to string. MySQL and
// Postgres return text columns as byte slices aliasing driver-owned
// buffers that are invalid after the next Scan.
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
