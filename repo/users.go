package repo

import (
	"context"
	"fmt"

	"github.com/rowandb/rowan"
	"github.com/rowandb/rowan/dao"
	"github.com/rowandb/rowan/dialect/sql"
	"github.com/rowandb/rowan/schema"
)

// UsersConfig returns the User entity configuration. fullName and
// nameLength are computed, nameLength reading fullName's result.
func UsersConfig() *schema.EntityConfig {
	return &schema.EntityConfig{
		Name:  "User",
		Table: "users",
		Columns: []*schema.Column{
			{Name: "id", Column: "id", Type: schema.TypeInteger, PrimaryKey: true, AutoIncrement: true},
			{Name: "firstName", Column: "first_name", Type: schema.TypeString},
			{Name: "lastName", Column: "last_name", Type: schema.TypeString},
			{Name: "email", Column: "email", Type: schema.TypeString, Unique: true},
			{Name: "role", Column: "role", Type: schema.TypeString, Default: "user"},
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
				Name:         "nameLength",
				Dependencies: []string{"fullName"},
				Compute: func(e schema.FieldReader) (any, error) {
					s, _ := e.Get("fullName").(string)
					return int64(len(s)), nil
				},
			},
		},
		Timestamps: &schema.Timestamps{CreatedAt: "createdAt", UpdatedAt: "updatedAt"},
		Indexes: []*schema.Index{
			{Columns: []string{"role"}},
		},
	}
}

// Users is the user repository.
type Users struct {
	*dao.DAO
}

// NewUsers returns the user repository over the given adapter.
func NewUsers(a *sql.Adapter, reg *schema.Registry, opts ...dao.Option) (*Users, error) {
	d, err := dao.New(a, reg, "User", opts...)
	if err != nil {
		return nil, err
	}
	return &Users{DAO: d}, nil
}

// FindByEmail returns the user with the given email, or nil.
func (u *Users) FindByEmail(ctx context.Context, email string) (rowan.Entity, error) {
	return u.FindOne(ctx, map[string]any{"email": email}, nil)
}

// InRole returns every user with the given role.
func (u *Users) InRole(ctx context.Context, role string) ([]rowan.Entity, error) {
	return u.FindBy(ctx, map[string]any{"role": role}, &dao.FindOptions{
		Order: []dao.Order{{Field: "lastName"}, {Field: "firstName"}},
	})
}
