package repo

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rowandb/rowan"
	"github.com/rowandb/rowan/dialect"
	"github.com/rowandb/rowan/dialect/sql"
	_ "github.com/rowandb/rowan/dialect/sqlite"
)

func newRepos(t *testing.T) *Repos {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "repo.db") + "?_time_format=sqlite"
	a, err := sql.Open(dialect.SQLite, dsn)
	require.NoError(t, err)
	require.NoError(t, a.Connect(context.Background()))
	t.Cleanup(func() { a.Close() })

	r, err := New(a)
	require.NoError(t, err)
	require.NoError(t, a.SyncSchema(context.Background(), r.Registry))
	return r
}

func TestUsersRepo(t *testing.T) {
	r := newRepos(t)
	ctx := context.Background()

	created, err := r.Users.Create(ctx, rowan.Entity{
		"firstName": "Ada", "lastName": "Lovelace", "email": "ada@example.com", "role": "admin",
	})
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", created["fullName"])
	assert.Equal(t, int64(12), created["nameLength"])

	byEmail, err := r.Users.FindByEmail(ctx, "ada@example.com")
	require.NoError(t, err)
	require.NotNil(t, byEmail)
	assert.Equal(t, created["id"], byEmail["id"])

	missing, err := r.Users.FindByEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = r.Users.Create(ctx, rowan.Entity{
		"firstName": "Grace", "lastName": "Hopper", "email": "grace@example.com", "role": "admin",
	})
	require.NoError(t, err)

	admins, err := r.Users.InRole(ctx, "admin")
	require.NoError(t, err)
	require.Len(t, admins, 2)
	assert.Equal(t, "Hopper", admins[0]["lastName"], "ordered by last name")
}

func createCategory(t *testing.T, r *Repos, name string, parentID any) int64 {
	t.Helper()
	e := rowan.Entity{"name": name}
	if parentID != nil {
		e["parentId"] = parentID
	}
	created, err := r.Categories.Create(context.Background(), e)
	require.NoError(t, err)
	id, ok := created["id"].(int64)
	require.True(t, ok)
	return id
}

func TestCategoryTree(t *testing.T) {
	r := newRepos(t)
	ctx := context.Background()

	electronics := createCategory(t, r, "Electronics", nil)
	books := createCategory(t, r, "Books", nil)
	phones := createCategory(t, r, "Phones", electronics)
	laptops := createCategory(t, r, "Laptops", electronics)
	android := createCategory(t, r, "Android", phones)
	// Orphan: parent id that no row has.
	_, err := r.Categories.Create(ctx, rowan.Entity{"name": "Lost", "parentId": int64(9999)})
	require.NoError(t, err)

	tree, err := r.Categories.Tree(ctx)
	require.NoError(t, err)

	assert.Equal(t, []int64{electronics, books}, tree.Roots)
	require.Len(t, tree.Nodes, 5, "orphans stay out of the tree")

	root := tree.Node(electronics)
	require.NotNil(t, root)
	assert.Equal(t, []int64{phones, laptops}, root.Children)
	assert.Empty(t, tree.Node(books).Children)

	assert.Equal(t, 0, tree.Depth(electronics))
	assert.Equal(t, 1, tree.Depth(phones))
	assert.Equal(t, 2, tree.Depth(android))
	assert.Equal(t, -1, tree.Depth(9999))

	assert.Equal(t, []int64{electronics, phones, laptops, android}, tree.Subtree(electronics))
	assert.Equal(t, []int64{phones, android}, tree.Subtree(phones))
	assert.Nil(t, tree.Subtree(12345))
}

func TestCreditsLedger(t *testing.T) {
	r := newRepos(t)
	ctx := context.Background()

	balance, err := r.Credits.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, balance, "empty ledger sums to zero")

	_, err = r.Credits.Grant(ctx, 1, 100, "signup bonus")
	require.NoError(t, err)
	_, err = r.Credits.Grant(ctx, 2, 50, "signup bonus")
	require.NoError(t, err)

	entry, err := r.Credits.Spend(ctx, 1, 30, "purchase")
	require.NoError(t, err)
	assert.Equal(t, float64(-30), entry["amount"])

	balance, err = r.Credits.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, float64(70), balance)

	t.Run("overspend", func(t *testing.T) {
		_, err := r.Credits.Spend(ctx, 1, 1000, "too much")
		require.Error(t, err)
		assert.True(t, rowan.IsMutationError(err))

		balance, err := r.Credits.Balance(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, float64(70), balance, "failed spend leaves the ledger alone")
	})

	t.Run("invalid amounts", func(t *testing.T) {
		_, err := r.Credits.Grant(ctx, 1, -5, "negative")
		require.Error(t, err)
		_, err = r.Credits.Spend(ctx, 1, 0, "zero")
		require.Error(t, err)
	})

	t.Run("history newest first", func(t *testing.T) {
		entries, err := r.Credits.History(ctx, 1)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, float64(-30), entries[0]["amount"])
		assert.Equal(t, float64(100), entries[1]["amount"])
	})

	t.Run("balances are per user", func(t *testing.T) {
		balance, err := r.Credits.Balance(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, float64(50), balance)
	})
}

func TestSessions(t *testing.T) {
	r := newRepos(t)
	ctx := context.Background()

	session, err := r.Sessions.Start(ctx, 7, time.Hour)
	require.NoError(t, err)
	token, ok := session["token"].(string)
	require.True(t, ok)
	require.Len(t, token, 36, "uuid token")

	found, err := r.Sessions.FindByToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, session["id"], found["id"])

	_, err = r.Sessions.FindByToken(ctx, "00000000-0000-0000-0000-000000000000")
	require.Error(t, err)
	assert.True(t, rowan.IsNotFound(err))

	t.Run("expired token is not found", func(t *testing.T) {
		expired, err := r.Sessions.Start(ctx, 7, time.Minute)
		require.NoError(t, err)

		r.Sessions.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
		defer func() { r.Sessions.now = time.Now }()

		_, err = r.Sessions.FindByToken(ctx, expired["token"].(string))
		require.Error(t, err)
		assert.True(t, rowan.IsNotFound(err))
	})

	t.Run("purge removes only expired", func(t *testing.T) {
		_, err := r.Sessions.Start(ctx, 8, 24*time.Hour)
		require.NoError(t, err)

		r.Sessions.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		defer func() { r.Sessions.now = time.Now }()

		// The one-hour and one-minute sessions are both past expiry two
		// hours out; the day-long one survives.
		purged, err := r.Sessions.PurgeExpired(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), purged)

		count, err := r.Sessions.Count(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})
}

func createProduct(t *testing.T, r *Repos, sku, name string, price float64, categoryID any) rowan.Entity {
	t.Helper()
	e := rowan.Entity{"sku": sku, "name": name, "price": price, "stock": int64(3)}
	if categoryID != nil {
		e["categoryId"] = categoryID
	}
	created, err := r.Products.Create(context.Background(), e)
	require.NoError(t, err)
	return created
}

func TestProductTags(t *testing.T) {
	r := newRepos(t)
	ctx := context.Background()

	product := createProduct(t, r, "SKU-1", "Widget", 9.99, nil)
	productID := product["id"].(int64)

	sale, err := r.Products.Tags().Create(ctx, rowan.Entity{"name": "sale"})
	require.NoError(t, err)
	featured, err := r.Products.Tags().Create(ctx, rowan.Entity{"name": "featured"})
	require.NoError(t, err)

	require.NoError(t, r.Products.Tag(ctx, productID, sale["id"]))
	require.NoError(t, r.Products.Tag(ctx, productID, featured["id"]))

	ids, err := r.Products.TagIDs(ctx, productID)
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	removed, err := r.Products.Untag(ctx, productID, sale["id"])
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = r.Products.Untag(ctx, productID, sale["id"])
	require.NoError(t, err)
	assert.False(t, removed, "second removal finds nothing")

	ids, err = r.Products.TagIDs(ctx, productID)
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.EqualValues(t, featured["id"], ids[0])

	t.Run("set replaces the whole link set", func(t *testing.T) {
		require.NoError(t, r.Products.SetRelations(ctx, "tags", productID, []any{sale["id"]}))
		ids, err := r.Products.TagIDs(ctx, productID)
		require.NoError(t, err)
		require.Len(t, ids, 1)
		assert.EqualValues(t, sale["id"], ids[0])
	})
}

func TestProductsInCategory(t *testing.T) {
	r := newRepos(t)
	ctx := context.Background()

	catID := createCategory(t, r, "Tools", nil)
	createProduct(t, r, "SKU-H", "Hammer", 15, catID)
	createProduct(t, r, "SKU-S", "Saw", 25, catID)
	createProduct(t, r, "SKU-X", "Unfiled", 5, nil)

	retired := createProduct(t, r, "SKU-D", "Drill", 99, catID)
	require.NoError(t, r.Products.Delete(ctx, retired["id"]))

	products, err := r.Products.InCategory(ctx, catID)
	require.NoError(t, err)
	require.Len(t, products, 2, "soft-deleted and uncategorized products excluded")
	assert.Equal(t, "Hammer", products[0]["name"])
	assert.Equal(t, "Saw", products[1]["name"])

	t.Run("soft-deleted row still exists", func(t *testing.T) {
		row, err := r.Products.FindByID(ctx, retired["id"], nil)
		require.NoError(t, err)
		assert.Equal(t, true, row["isDeleted"])
	})
}

func TestProductRestock(t *testing.T) {
	r := newRepos(t)
	ctx := context.Background()

	product := createProduct(t, r, "SKU-R", "Gadget", 49, nil)
	updated, err := r.Products.Restock(ctx, product["id"], 10)
	require.NoError(t, err)
	assert.Equal(t, int64(13), updated["stock"])
	assert.Equal(t, true, updated["inStock"])

	t.Run("missing product rolls back", func(t *testing.T) {
		_, err := r.Products.Restock(ctx, int64(9999), 10)
		require.Error(t, err)
		assert.True(t, rowan.IsNotFound(err))
		assert.False(t, r.Products.Adapter().InTransaction())
	})
}

func TestDAOsByEntity(t *testing.T) {
	r := newRepos(t)
	daos := r.DAOs()
	for _, name := range []string{"User", "Product", "Category", "Credit", "Session"} {
		require.Contains(t, daos, name)
		assert.Equal(t, name, daos[name].Config().Name)
	}
}
