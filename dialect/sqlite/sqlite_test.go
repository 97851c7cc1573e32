package sqlite

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rowandb/rowan"
	"github.com/rowandb/rowan/dialect"
)

func TestDialect(t *testing.T) {
	d := Dialect{}
	assert.Equal(t, dialect.SQLite, d.Name())
	assert.Equal(t, "sqlite", d.DriverName())
	assert.Equal(t, "?", d.Placeholder(3))
	assert.False(t, d.SupportsReturning())
	assert.True(t, d.SupportsLastInsertID())
}

func TestRegistered(t *testing.T) {
	d, err := dialect.Lookup(dialect.SQLite)
	require.NoError(t, err)
	assert.Equal(t, dialect.SQLite, d.Name())
}

func TestDateFunctions(t *testing.T) {
	df := Dialect{}.DateFunctions()
	assert.Equal(t, "datetime('now')", df.Now())
	assert.Equal(t,
		"CAST((julianday(expires_at) - julianday(created_at)) * 24 AS INTEGER)",
		df.Diff("hour", "created_at", "expires_at"))
	assert.Equal(t,
		"CAST((julianday(b) - julianday(a)) * 1 AS INTEGER)",
		df.Diff("day", "a", "b"))
	assert.Equal(t, "datetime(created_at, '+5 days')", df.Add("created_at", 5, "day"))
	assert.Equal(t, "datetime(created_at, '-3 hours')", df.Add("created_at", -3, "hour"))
	assert.Equal(t, "strftime('%Y-%m-%d', created_at)", df.Format("created_at", "%Y-%m-%d"))
	assert.Equal(t, "datetime(created_at) IS NOT NULL", df.IsValid("created_at"))
}

func TestTranslateError(t *testing.T) {
	d := Dialect{}
	assert.NoError(t, d.TranslateError(nil))

	plain := errors.New("disk I/O error")
	assert.Equal(t, plain, d.TranslateError(plain))

	// The driver error type cannot be constructed outside its package;
	// the message fallback covers it.
	uniq := errors.New("UNIQUE constraint failed: users.email")
	err := d.TranslateError(uniq)
	require.Error(t, err)
	assert.True(t, rowan.IsConstraintError(err))
	assert.ErrorIs(t, err, uniq)
	assert.True(t, dialect.IsUniqueViolation(uniq))
}
