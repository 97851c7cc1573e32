package seed

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rowandb/rowan/dao"
	"github.com/rowandb/rowan/dialect"
	"github.com/rowandb/rowan/dialect/sql"
	"github.com/rowandb/rowan/schema"
	_ "github.com/rowandb/rowan/dialect/sqlite"
)

func accountsConfig() *schema.EntityConfig {
	return &schema.EntityConfig{
		Name:  "Account",
		Table: "accounts",
		Columns: []*schema.Column{
			{Name: "id", Column: "id", Type: schema.TypeInteger, PrimaryKey: true, AutoIncrement: true},
			{Name: "email", Column: "email", Type: schema.TypeString, Unique: true},
			{Name: "name", Column: "name", Type: schema.TypeString},
			{Name: "credits", Column: "credits", Type: schema.TypeInteger},
			{Name: "rate", Column: "rate", Type: schema.TypeNumber},
			{Name: "active", Column: "active", Type: schema.TypeBoolean},
			{Name: "token", Column: "token", Type: schema.TypeUUID},
			{Name: "meta", Column: "meta", Type: schema.TypeJSON, Nullable: true},
			{Name: "joinedAt", Column: "joined_at", Type: schema.TypeDatetime},
			{Name: "isDeleted", Column: "is_deleted", Type: schema.TypeBoolean, Nullable: true},
		},
		SoftDelete: &schema.SoftDelete{Field: "isDeleted"},
	}
}

func TestEntityShapes(t *testing.T) {
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	g := New(WithSeed(1), WithBaseTime(base))
	cfg := accountsConfig()

	e := g.Entity(cfg)

	assert.NotContains(t, e, "id", "autoincrement key stays unset")
	assert.NotContains(t, e, "isDeleted", "soft delete marker stays unset")
	assert.IsType(t, int64(0), e["credits"])
	assert.IsType(t, float64(0), e["rate"])
	assert.IsType(t, false, e["active"])
	assert.IsType(t, map[string]any{}, e["meta"])
	assert.Equal(t, base.Add(-time.Minute), e["joinedAt"])
	assert.Len(t, e["token"], 36)
	assert.Equal(t, "email-1", e["email"], "unique strings carry the sequence")
}

func TestDeterministicWithSeed(t *testing.T) {
	cfg := accountsConfig()
	base := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	a := New(WithSeed(42), WithBaseTime(base)).Entities(cfg, 5)
	b := New(WithSeed(42), WithBaseTime(base)).Entities(cfg, 5)
	require.Len(t, a, 5)
	for i := range a {
		assert.Equal(t, a[i]["credits"], b[i]["credits"])
		assert.Equal(t, a[i]["rate"], b[i]["rate"])
		assert.Equal(t, a[i]["name"], b[i]["name"])
	}
}

func TestUniqueColumnsDoNotCollide(t *testing.T) {
	g := New(WithSeed(7))
	seen := map[any]bool{}
	for _, e := range g.Entities(accountsConfig(), 50) {
		require.False(t, seen[e["email"]], "duplicate email %v", e["email"])
		seen[e["email"]] = true
	}
}

func accountsDAO(t *testing.T) (*dao.DAO, *sql.Adapter) {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "seed.db") + "?_time_format=sqlite"
	a, err := sql.Open(dialect.SQLite, dsn)
	require.NoError(t, err)
	require.NoError(t, a.Connect(context.Background()))
	t.Cleanup(func() { a.Close() })

	reg, err := schema.NewRegistry(accountsConfig())
	require.NoError(t, err)
	require.NoError(t, a.SyncSchema(context.Background(), reg))
	d, err := dao.New(a, reg, "Account")
	require.NoError(t, err)
	return d, a
}

func TestPopulate(t *testing.T) {
	d, _ := accountsDAO(t)

	created, err := New(WithSeed(3)).Populate(context.Background(), d, 10)
	require.NoError(t, err)
	require.Len(t, created, 10)
	for _, e := range created {
		assert.Positive(t, e["id"])
	}

	count, err := d.Count(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(10), count)
}

func TestPopulateBulk(t *testing.T) {
	d, a := accountsDAO(t)

	n, err := New(WithSeed(4)).PopulateBulk(context.Background(), a, accountsConfig(), 25)
	require.NoError(t, err)
	assert.Equal(t, int64(25), n)

	count, err := d.Count(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(25), count)
}
