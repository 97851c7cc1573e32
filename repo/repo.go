// Package repo holds the domain repositories built on the generic data
// access layer: users, products with categories and tags, category
// trees, credit ledgers and sessions. Each repository declares its
// entity configuration in Go and narrows the DAO to typed operations.
package repo

import (
	"github.com/rowandb/rowan/dao"
	"github.com/rowandb/rowan/dialect/sql"
	"github.com/rowandb/rowan/schema"
)

// Configs returns the entity configurations of every repository, with
// computed property implementations bound.
func Configs() []*schema.EntityConfig {
	return []*schema.EntityConfig{
		UsersConfig(),
		ProductsConfig(),
		TagsConfig(),
		CategoriesConfig(),
		CreditsConfig(),
		SessionsConfig(),
	}
}

// NewRegistry returns a registry over all repository entities.
func NewRegistry() (*schema.Registry, error) {
	return schema.NewRegistry(Configs()...)
}

// Repos bundles every repository over one adapter.
type Repos struct {
	Registry   *schema.Registry
	Users      *Users
	Products   *Products
	Categories *Categories
	Credits    *Credits
	Sessions   *Sessions
}

// New wires all repositories. The options apply to every underlying DAO.
func New(a *sql.Adapter, opts ...dao.Option) (*Repos, error) {
	reg, err := NewRegistry()
	if err != nil {
		return nil, err
	}
	r := &Repos{Registry: reg}
	if r.Users, err = NewUsers(a, reg, opts...); err != nil {
		return nil, err
	}
	if r.Products, err = NewProducts(a, reg, opts...); err != nil {
		return nil, err
	}
	if r.Categories, err = NewCategories(a, reg, opts...); err != nil {
		return nil, err
	}
	if r.Credits, err = NewCredits(a, reg, opts...); err != nil {
		return nil, err
	}
	if r.Sessions, err = NewSessions(a, reg, opts...); err != nil {
		return nil, err
	}
	return r, nil
}

// DAOs returns the repositories' data access objects keyed by entity
// name, for callers that address entities generically (the gateway).
func (r *Repos) DAOs() map[string]*dao.DAO {
	return map[string]*dao.DAO{
		"User":     r.Users.DAO,
		"Product":  r.Products.DAO,
		"Category": r.Categories.DAO,
		"Credit":   r.Credits.DAO,
		"Session":  r.Sessions.DAO,
	}
}
