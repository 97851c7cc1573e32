package schema_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rowandb/rowan/dialect"
	"github.com/rowandb/rowan/schema"
)

func TestCreateTableDDL(t *testing.T) {
	t.Parallel()

	cfg := productConfig()

	tests := []struct {
		dialect string
		want    string
	}{
		{
			dialect: dialect.SQLite,
			want: "CREATE TABLE IF NOT EXISTS products (" +
				"id INTEGER PRIMARY KEY AUTOINCREMENT, " +
				"name TEXT NOT NULL, " +
				"unit_price REAL NOT NULL, " +
				"category_id INTEGER, " +
				"is_deleted INTEGER NOT NULL DEFAULT 0, " +
				"created_at DATETIME, " +
				"updated_at DATETIME)",
		},
		{
			dialect: dialect.Postgres,
			want: "CREATE TABLE IF NOT EXISTS products (" +
				"id BIGSERIAL PRIMARY KEY, " +
				"name TEXT NOT NULL, " +
				"unit_price DOUBLE PRECISION NOT NULL, " +
				"category_id BIGINT, " +
				"is_deleted BOOLEAN NOT NULL DEFAULT FALSE, " +
				"created_at TIMESTAMPTZ, " +
				"updated_at TIMESTAMPTZ)",
		},
		{
			dialect: dialect.MySQL,
			want: "CREATE TABLE IF NOT EXISTS products (" +
				"id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY, " +
				"name VARCHAR(255) NOT NULL, " +
				"unit_price DOUBLE NOT NULL, " +
				"category_id BIGINT, " +
				"is_deleted TINYINT(1) NOT NULL DEFAULT 0, " +
				"created_at DATETIME, " +
				"updated_at DATETIME)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.dialect, func(t *testing.T) {
			t.Parallel()
			got, err := schema.CreateTableDDL(cfg, tt.dialect)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("unsupported dialect", func(t *testing.T) {
		t.Parallel()
		_, err := schema.CreateTableDDL(cfg, "oracle")
		require.Error(t, err)
	})
}

func TestCreateTableDDLCompositeKey(t *testing.T) {
	t.Parallel()

	cfg := &schema.EntityConfig{
		Name:  "Grant",
		Table: "grants",
		Columns: []*schema.Column{
			{Name: "userId", Column: "user_id", Type: schema.TypeInteger, PrimaryKey: true},
			{Name: "roleId", Column: "role_id", Type: schema.TypeInteger, PrimaryKey: true},
		},
	}
	got, err := schema.CreateTableDDL(cfg, dialect.SQLite)
	require.NoError(t, err)
	assert.Equal(t, "CREATE TABLE IF NOT EXISTS grants (user_id INTEGER NOT NULL, role_id INTEGER NOT NULL, PRIMARY KEY (user_id, role_id))", got)
}

func TestIndexDDL(t *testing.T) {
	t.Parallel()

	cfg := productConfig()
	cfg.Indexes = []*schema.Index{
		{Columns: []string{"categoryId"}},
		{Name: "uq_products_name", Columns: []string{"name"}, Unique: true},
	}

	t.Run("sqlite", func(t *testing.T) {
		t.Parallel()
		stmts, err := schema.IndexDDL(cfg, dialect.SQLite)
		require.NoError(t, err)
		require.Len(t, stmts, 2)
		assert.Equal(t, "CREATE INDEX IF NOT EXISTS idx_products_category_id ON products (category_id)", stmts[0])
		assert.Equal(t, "CREATE UNIQUE INDEX IF NOT EXISTS uq_products_name ON products (name)", stmts[1])
	})

	t.Run("mysql omits if-not-exists", func(t *testing.T) {
		t.Parallel()
		stmts, err := schema.IndexDDL(cfg, dialect.MySQL)
		require.NoError(t, err)
		require.Len(t, stmts, 2)
		assert.Equal(t, "CREATE INDEX idx_products_category_id ON products (category_id)", stmts[0])
	})
}

func TestJunctionAndTablesDDL(t *testing.T) {
	t.Parallel()

	product := productConfig()
	category := &schema.EntityConfig{
		Name:  "Category",
		Table: "categories",
		Columns: []*schema.Column{
			{Name: "id", Type: schema.TypeInteger, PrimaryKey: true, AutoIncrement: true},
			{Name: "name", Type: schema.TypeString},
		},
	}
	tag := &schema.EntityConfig{
		Name:  "Tag",
		Table: "tags",
		Columns: []*schema.Column{
			{Name: "id", Type: schema.TypeInteger, PrimaryKey: true, AutoIncrement: true},
			{Name: "label", Type: schema.TypeString},
		},
	}
	reg, err := schema.NewRegistry(product, category, tag)
	require.NoError(t, err)

	t.Run("junction", func(t *testing.T) {
		t.Parallel()
		stmts, err := schema.JunctionDDL(reg, product, dialect.SQLite)
		require.NoError(t, err)
		require.Len(t, stmts, 1)
		assert.Equal(t,
			"CREATE TABLE IF NOT EXISTS product_tags (product_id INTEGER NOT NULL, tag_id INTEGER NOT NULL, PRIMARY KEY (product_id, tag_id))",
			stmts[0])
	})

	t.Run("all tables", func(t *testing.T) {
		t.Parallel()
		stmts, err := schema.TablesDDL(reg, dialect.SQLite)
		require.NoError(t, err)
		// Three entity tables plus one junction.
		require.Len(t, stmts, 4)
		assert.Contains(t, stmts[0], "CREATE TABLE IF NOT EXISTS categories")
		assert.Contains(t, stmts[1], "CREATE TABLE IF NOT EXISTS products")
		assert.Contains(t, stmts[2], "CREATE TABLE IF NOT EXISTS tags")
		assert.Contains(t, stmts[3], "CREATE TABLE IF NOT EXISTS product_tags")
	})
}
