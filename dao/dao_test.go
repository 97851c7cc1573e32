package dao

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rowandb/rowan"
	"github.com/rowandb/rowan/cache"
	"github.com/rowandb/rowan/dialect"
	"github.com/rowandb/rowan/dialect/sql"
	"github.com/rowandb/rowan/hook"
	"github.com/rowandb/rowan/schema"
	_ "github.com/rowandb/rowan/dialect/sqlite"
)

func sqliteAdapter(t *testing.T) *sql.Adapter {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "dao.db") + "?_time_format=sqlite"
	a, err := sql.Open(dialect.SQLite, dsn)
	require.NoError(t, err)
	require.NoError(t, a.Connect(context.Background()))
	t.Cleanup(func() { a.Close() })
	return a
}

func usersConfig() *schema.EntityConfig {
	cfg := &schema.EntityConfig{
		Name:  "User",
		Table: "users",
		Columns: []*schema.Column{
			{Name: "id", Column: "id", Type: schema.TypeInteger, PrimaryKey: true, AutoIncrement: true},
			{Name: "firstName", Column: "first_name", Type: schema.TypeString},
			{Name: "lastName", Column: "last_name", Type: schema.TypeString},
			{Name: "role", Column: "role", Type: schema.TypeString},
			{Name: "active", Column: "active", Type: schema.TypeBoolean, Nullable: true},
			{Name: "createdAt", Column: "created_at", Type: schema.TypeDatetime, Nullable: true},
			{Name: "updatedAt", Column: "updated_at", Type: schema.TypeDatetime, Nullable: true},
		},
		Computed: []*schema.ComputedProperty{
			{
				Name:         "fullName",
				Dependencies: []string{"firstName", "lastName"},
				Compute: func(e schema.FieldReader) (any, error) {
					return fmt.Sprintf("%v %v", e.Get("firstName"), e.Get("lastName")), nil
				},
			},
			{
				// Dependencies inferred by probe: reads fullName.
				Name: "nameLength",
				Compute: func(e schema.FieldReader) (any, error) {
					s, _ := e.Get("fullName").(string)
					return int64(len(s)), nil
				},
			},
		},
		Timestamps: &schema.Timestamps{CreatedAt: "createdAt", UpdatedAt: "updatedAt"},
	}
	return cfg
}

func notesConfig() *schema.EntityConfig {
	return &schema.EntityConfig{
		Name:  "Note",
		Table: "notes",
		Columns: []*schema.Column{
			{Name: "id", Column: "id", Type: schema.TypeInteger, PrimaryKey: true, AutoIncrement: true},
			{Name: "body", Column: "body", Type: schema.TypeString},
			{Name: "isDeleted", Column: "is_deleted", Type: schema.TypeBoolean, Nullable: true},
		},
		SoftDelete: &schema.SoftDelete{Field: "isDeleted"},
	}
}

func newDAO(t *testing.T, opts ...Option) (*DAO, *sql.Adapter) {
	t.Helper()
	a := sqliteAdapter(t)
	reg, err := schema.NewRegistry(usersConfig(), notesConfig())
	require.NoError(t, err)
	require.NoError(t, a.SyncSchema(context.Background(), reg))
	d, err := New(a, reg, "User", opts...)
	require.NoError(t, err)
	return d, a
}

func createUser(t *testing.T, d *DAO, first, last, role string) rowan.Entity {
	t.Helper()
	e, err := d.Create(context.Background(), rowan.Entity{
		"firstName": first, "lastName": last, "role": role,
	})
	require.NoError(t, err)
	return e
}

func TestCreateAndFindByID(t *testing.T) {
	d, _ := newDAO(t)
	ctx := context.Background()

	created := createUser(t, d, "John", "Doe", "user")
	id, ok := created["id"].(int64)
	require.True(t, ok, "id should be an int64, got %T", created["id"])
	assert.Greater(t, id, int64(0))
	assert.Equal(t, "John Doe", created["fullName"])
	assert.Equal(t, int64(8), created["nameLength"])
	require.IsType(t, time.Time{}, created["createdAt"])
	require.IsType(t, time.Time{}, created["updatedAt"])

	found, err := d.FindByID(ctx, id, nil)
	require.NoError(t, err)
	assert.Equal(t, "John", found["firstName"])
	assert.Equal(t, "user", found["role"])
	assert.Equal(t, "John Doe", found["fullName"])
}

func TestFindByIDNotFound(t *testing.T) {
	d, _ := newDAO(t)
	_, err := d.FindByID(context.Background(), int64(404), nil)
	require.Error(t, err)
	assert.True(t, rowan.IsNotFound(err))
}

func TestFindByRole(t *testing.T) {
	d, _ := newDAO(t)
	ctx := context.Background()
	createUser(t, d, "A", "A", "admin")
	createUser(t, d, "B", "B", "admin")
	createUser(t, d, "C", "C", "user")

	admins, err := d.FindBy(ctx, map[string]any{"role": "admin"}, nil)
	require.NoError(t, err)
	require.Len(t, admins, 2)
	for _, e := range admins {
		assert.Equal(t, "admin", e["role"])
	}
}

func TestFindByUnknownFieldFailsFast(t *testing.T) {
	d, _ := newDAO(t)
	_, err := d.FindBy(context.Background(), map[string]any{"nope": 1}, nil)
	require.Error(t, err)
	assert.True(t, rowan.IsConfiguration(err))
}

func TestFindOneForcesLimit(t *testing.T) {
	d, _ := newDAO(t)
	ctx := context.Background()
	createUser(t, d, "A", "A", "admin")
	createUser(t, d, "B", "B", "admin")

	one, err := d.FindOne(ctx, map[string]any{"role": "admin"}, &FindOptions{Limit: 50})
	require.NoError(t, err)
	require.NotNil(t, one)
	assert.Equal(t, "admin", one["role"])

	missing, err := d.FindOne(ctx, map[string]any{"role": "ghost"}, nil)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestFindAllOrderAndPaging(t *testing.T) {
	d, _ := newDAO(t)
	ctx := context.Background()
	for _, name := range []string{"C", "A", "B"} {
		createUser(t, d, name, "X", "user")
	}

	page, err := d.FindAll(ctx, &FindOptions{
		Order:  []Order{{Field: "firstName", Direction: "ASC"}},
		Limit:  2,
		Offset: 1,
	})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "B", page[0]["firstName"])
	assert.Equal(t, "C", page[1]["firstName"])
}

func TestUpdateByScenario(t *testing.T) {
	d, _ := newDAO(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		createUser(t, d, fmt.Sprintf("U%d", i), "X", "regular")
	}

	n, err := d.UpdateBy(ctx, rowan.Entity{"role": "premium"}, map[string]any{"role": "regular"})
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	regulars, err := d.FindBy(ctx, map[string]any{"role": "regular"}, nil)
	require.NoError(t, err)
	assert.Empty(t, regulars)

	premiums, err := d.FindBy(ctx, map[string]any{"role": "premium"}, nil)
	require.NoError(t, err)
	assert.Len(t, premiums, 3)
}

func TestDeleteByScenario(t *testing.T) {
	d, _ := newDAO(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		createUser(t, d, fmt.Sprintf("U%d", i), "X", "inactive")
	}
	createUser(t, d, "Keep", "X", "active")

	n, err := d.DeleteBy(ctx, map[string]any{"role": "inactive"})
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	gone, err := d.FindBy(ctx, map[string]any{"role": "inactive"}, nil)
	require.NoError(t, err)
	assert.Empty(t, gone)

	kept, err := d.Count(ctx, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, kept)
}

func TestUpdateStampsTimestamp(t *testing.T) {
	t0 := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	now := t0
	d, _ := newDAO(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	created := createUser(t, d, "John", "Doe", "user")
	id := created["id"]

	now = t0.Add(time.Hour)
	updated, err := d.Update(ctx, id, rowan.Entity{"role": "admin"})
	require.NoError(t, err)
	assert.Equal(t, "admin", updated["role"])

	createdAt := updated["createdAt"].(time.Time)
	updatedAt := updated["updatedAt"].(time.Time)
	assert.True(t, createdAt.Equal(t0), "createdAt %v", createdAt)
	assert.True(t, updatedAt.Equal(t0.Add(time.Hour)), "updatedAt %v", updatedAt)
}

func TestUpdateMissingRow(t *testing.T) {
	d, _ := newDAO(t)
	_, err := d.Update(context.Background(), int64(404), rowan.Entity{"role": "x"})
	require.Error(t, err)
	assert.True(t, rowan.IsNotFound(err))
}

func TestDeleteHard(t *testing.T) {
	d, _ := newDAO(t)
	ctx := context.Background()
	created := createUser(t, d, "John", "Doe", "user")

	require.NoError(t, d.Delete(ctx, created["id"]))
	n, err := d.Count(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	err = d.Delete(ctx, created["id"])
	assert.True(t, rowan.IsNotFound(err))
}

func TestSoftDelete(t *testing.T) {
	a := sqliteAdapter(t)
	ctx := context.Background()
	reg, err := schema.NewRegistry(notesConfig())
	require.NoError(t, err)
	require.NoError(t, a.SyncSchema(ctx, reg))
	d, err := New(a, reg, "Note")
	require.NoError(t, err)

	note, err := d.Create(ctx, rowan.Entity{"body": "hello"})
	require.NoError(t, err)
	require.NoError(t, d.Delete(ctx, note["id"]))

	// The row survives physically; the marker column carries the sentinel.
	rows, err := a.FindAll(ctx, "notes", nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	// Default reads keep soft-deleted rows; WithoutDeleted filters them.
	all, err := d.FindAll(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, true, all[0]["isDeleted"])

	live, err := d.FindAll(ctx, &FindOptions{WithoutDeleted: true})
	require.NoError(t, err)
	assert.Empty(t, live)
}

func TestNestedTransactionRollback(t *testing.T) {
	d, a := newDAO(t)
	ctx := context.Background()
	boom := errors.New("inner failure")

	err := a.Transaction(ctx, func(tx *sql.Adapter) error {
		if _, err := d.Create(ctx, rowan.Entity{"firstName": "X", "lastName": "X", "role": "user"}); err != nil {
			return err
		}
		return a.Transaction(ctx, func(tx *sql.Adapter) error {
			if _, err := d.Create(ctx, rowan.Entity{"firstName": "Y", "lastName": "Y", "role": "user"}); err != nil {
				return err
			}
			return boom
		})
	})
	require.ErrorIs(t, err, boom)
	assert.False(t, a.InTransaction())

	n, err := d.Count(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n, "neither insert may survive the rollback")
}

func TestExistsMatchesCount(t *testing.T) {
	d, _ := newDAO(t)
	ctx := context.Background()
	createUser(t, d, "A", "A", "admin")

	for _, role := range []string{"admin", "ghost"} {
		n, err := d.Count(ctx, map[string]any{"role": role})
		require.NoError(t, err)
		ok, err := d.Exists(ctx, map[string]any{"role": role})
		require.NoError(t, err)
		assert.Equal(t, n > 0, ok, "role %s", role)
	}
}

func TestAggregateGrouped(t *testing.T) {
	d, _ := newDAO(t)
	ctx := context.Background()
	createUser(t, d, "A", "A", "admin")
	createUser(t, d, "B", "B", "admin")
	createUser(t, d, "C", "C", "user")

	rows, err := d.Aggregate(ctx, sql.AggregateOptions{
		Functions: []sql.AggregateExpr{{Function: "COUNT", Field: "*", Alias: "n"}},
		GroupBy:   []string{"role"},
		Order:     []sql.Order{{Field: "role"}},
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "admin", rows[0]["role"])
	assert.EqualValues(t, 2, rows[0]["n"])
	assert.Equal(t, "user", rows[1]["role"])
	assert.EqualValues(t, 1, rows[1]["n"])
}

func TestAggregateRejectsUnknownFunction(t *testing.T) {
	d, _ := newDAO(t)
	_, err := d.Aggregate(context.Background(), sql.AggregateOptions{
		Functions: []sql.AggregateExpr{{Function: "MEDIAN", Field: "id"}},
	})
	require.Error(t, err)
	assert.True(t, rowan.IsConfiguration(err))
}

func TestEmptySliceFilterMatchesNothing(t *testing.T) {
	d, _ := newDAO(t)
	ctx := context.Background()
	createUser(t, d, "A", "A", "admin")

	rows, err := d.FindBy(ctx, map[string]any{"role": []string{}}, nil)
	require.NoError(t, err)
	assert.Empty(t, rows, "empty IN must match zero rows, not all")
}

func TestHooksTransformAndAbort(t *testing.T) {
	var calls []string
	handler := hook.HandlerFunc(func(_ context.Context, kind hook.Kind, v any, hctx *hook.Context) (any, error) {
		calls = append(calls, kind.String())
		switch kind {
		case hook.BeforeCreate:
			e := v.(rowan.Entity).Clone()
			e["role"] = "stamped"
			return e, nil
		case hook.AfterFindBy:
			entities := v.([]rowan.Entity)
			for _, e := range entities {
				e["audited"] = true
			}
			return entities, nil
		}
		return v, nil
	})
	d, _ := newDAO(t, WithHooks(handler))
	ctx := context.Background()

	created, err := d.Create(ctx, rowan.Entity{"firstName": "A", "lastName": "B", "role": "user"})
	require.NoError(t, err)
	assert.Equal(t, "stamped", created["role"])
	assert.Contains(t, calls, "beforeCreate")
	assert.Contains(t, calls, "afterCreate")

	found, err := d.FindBy(ctx, map[string]any{"role": "stamped"}, nil)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, true, found[0]["audited"])
}

func TestBeforeHookErrorAborts(t *testing.T) {
	boom := errors.New("rejected")
	d, _ := newDAO(t, WithHooks(hook.HandlerFunc(
		func(_ context.Context, kind hook.Kind, v any, _ *hook.Context) (any, error) {
			if kind == hook.BeforeCreate {
				return nil, boom
			}
			return v, nil
		})))

	_, err := d.Create(context.Background(), rowan.Entity{"firstName": "A", "lastName": "B", "role": "user"})
	require.ErrorIs(t, err, boom)

	n, err := d.Count(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAfterHookErrorIsObservedNotFatal(t *testing.T) {
	boom := errors.New("observer down")
	d, _ := newDAO(t, WithHooks(hook.HandlerFunc(
		func(_ context.Context, kind hook.Kind, v any, _ *hook.Context) (any, error) {
			if kind == hook.AfterCreate {
				return nil, boom
			}
			return v, nil
		})))

	created, err := d.Create(context.Background(), rowan.Entity{"firstName": "A", "lastName": "B", "role": "user"})
	require.NoError(t, err, "after-hook failures must not fail the operation")
	assert.Equal(t, "A", created["firstName"])
}

func TestCacheReadThroughAndInvalidation(t *testing.T) {
	store := cache.New(time.Minute)
	d, a := newDAO(t, WithCache(store))
	ctx := context.Background()
	createUser(t, d, "A", "A", "admin")

	first, err := d.FindBy(ctx, map[string]any{"role": "admin"}, nil)
	require.NoError(t, err)
	require.Len(t, first, 1)
	queries := a.Stats().TotalQueries

	second, err := d.FindBy(ctx, map[string]any{"role": "admin"}, nil)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, queries, a.Stats().TotalQueries, "repeat read must be served from cache")

	// Any mutation through the DAO drops the entity's cached entries.
	_, err = d.UpdateBy(ctx, rowan.Entity{"role": "user"}, map[string]any{"role": "admin"})
	require.NoError(t, err)

	third, err := d.FindBy(ctx, map[string]any{"role": "admin"}, nil)
	require.NoError(t, err)
	assert.Empty(t, third)
}
