package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/rowandb/rowan"
	"github.com/rowandb/rowan/dialect"
	"github.com/rowandb/rowan/dialect/sql"
	"github.com/rowandb/rowan/repo"
	_ "github.com/rowandb/rowan/dialect/postgres"
)

// The container-backed tests run only when ROWAN_INTEGRATION is set;
// plain `go test` stays docker-free.
func integrationAdapter(t *testing.T) *sql.Adapter {
	t.Helper()
	if os.Getenv("ROWAN_INTEGRATION") == "" {
		t.Skip("set ROWAN_INTEGRATION to run container-backed tests")
	}
	ctx := context.Background()

	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("rowan"),
		tcpostgres.WithUsername("rowan"),
		tcpostgres.WithPassword("rowan"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(ctr) })

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	a, err := sql.Open(dialect.Postgres, dsn)
	require.NoError(t, err)
	require.NoError(t, a.Connect(ctx))
	t.Cleanup(func() { a.Close() })
	return a
}

func TestPostgresFullStack(t *testing.T) {
	a := integrationAdapter(t)
	ctx := context.Background()

	r, err := repo.New(a)
	require.NoError(t, err)
	require.NoError(t, a.SyncSchema(ctx, r.Registry))

	t.Run("returning resolves generated keys", func(t *testing.T) {
		created, err := r.Users.Create(ctx, rowan.Entity{
			"firstName": "Ada", "lastName": "Lovelace",
			"email": "ada@example.com", "role": "admin",
		})
		require.NoError(t, err)
		id, ok := created["id"].(int64)
		require.True(t, ok, "id should come back through RETURNING, got %T", created["id"])
		assert.Positive(t, id)
		assert.Equal(t, "Ada Lovelace", created["fullName"])

		found, err := r.Users.FindByEmail(ctx, "ada@example.com")
		require.NoError(t, err)
		assert.Equal(t, id, found["id"])
	})

	t.Run("unique violations classify as constraint errors", func(t *testing.T) {
		_, err := r.Users.Create(ctx, rowan.Entity{
			"firstName": "Other", "lastName": "Ada",
			"email": "ada@example.com", "role": "user",
		})
		require.Error(t, err)
		assert.True(t, rowan.IsConstraintError(err))
	})

	t.Run("nested transaction rollback", func(t *testing.T) {
		err := a.Transaction(ctx, func(tx *sql.Adapter) error {
			if _, err := r.Credits.Grant(ctx, 1, 10, "outer"); err != nil {
				return err
			}
			return a.Transaction(ctx, func(tx *sql.Adapter) error {
				if _, err := r.Credits.Grant(ctx, 1, 20, "inner"); err != nil {
					return err
				}
				return assert.AnError
			})
		})
		require.Error(t, err)
		assert.False(t, a.InTransaction())

		balance, err := r.Credits.Balance(ctx, 1)
		require.NoError(t, err)
		assert.Zero(t, balance, "inner failure rolls the whole transaction back")
	})

	t.Run("ledger spend", func(t *testing.T) {
		_, err := r.Credits.Grant(ctx, 2, 100, "signup")
		require.NoError(t, err)
		_, err = r.Credits.Spend(ctx, 2, 40, "purchase")
		require.NoError(t, err)

		balance, err := r.Credits.Balance(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, float64(60), balance)
	})

	t.Run("database info", func(t *testing.T) {
		info, err := a.DatabaseInfo(ctx)
		require.NoError(t, err)
		assert.Equal(t, dialect.Postgres, info.Dialect)
		assert.Contains(t, info.Tables, "users")
	})
}
