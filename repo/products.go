package repo

import (
	"context"

	"github.com/rowandb/rowan"
	"github.com/rowandb/rowan/dao"
	"github.com/rowandb/rowan/dialect/sql"
	"github.com/rowandb/rowan/dialect/sql/sqlgraph"
	"github.com/rowandb/rowan/schema"
)

// ProductsConfig returns the Product entity configuration: a category
// reference, a tag set through the product_tags junction table and
// sentinel-based soft deletes.
func ProductsConfig() *schema.EntityConfig {
	return &schema.EntityConfig{
		Name:  "Product",
		Table: "products",
		Columns: []*schema.Column{
			{Name: "id", Column: "id", Type: schema.TypeInteger, PrimaryKey: true, AutoIncrement: true},
			{Name: "sku", Column: "sku", Type: schema.TypeString, Unique: true},
			{Name: "name", Column: "name", Type: schema.TypeString},
			{Name: "price", Column: "price", Type: schema.TypeNumber},
			{Name: "stock", Column: "stock", Type: schema.TypeInteger, Default: 0},
			{Name: "attrs", Column: "attrs", Type: schema.TypeJSON, Nullable: true},
			{Name: "categoryId", Column: "category_id", Type: schema.TypeInteger, Nullable: true},
			{Name: "isDeleted", Column: "is_deleted", Type: schema.TypeBoolean, Nullable: true},
			{Name: "createdAt", Column: "created_at", Type: schema.TypeDatetime, Nullable: true},
			{Name: "updatedAt", Column: "updated_at", Type: schema.TypeDatetime, Nullable: true},
		},
		Relations: []*schema.Relation{
			{
				Name:        "category",
				Kind:        schema.ManyToOne,
				Target:      "Category",
				SourceField: "categoryId",
				TargetField: "id",
			},
			{
				Name:                 "tags",
				Kind:                 schema.ManyToMany,
				Target:               "Tag",
				SourceField:          "id",
				TargetField:          "id",
				JunctionTable:        "product_tags",
				JunctionSourceColumn: "product_id",
				JunctionTargetColumn: "tag_id",
			},
		},
		Computed: []*schema.ComputedProperty{
			{
				Name:         "inStock",
				Dependencies: []string{"stock"},
				Compute: func(e schema.FieldReader) (any, error) {
					n, _ := e.Get("stock").(int64)
					return n > 0, nil
				},
			},
		},
		Timestamps: &schema.Timestamps{CreatedAt: "createdAt", UpdatedAt: "updatedAt"},
		SoftDelete: &schema.SoftDelete{Field: "isDeleted"},
		Indexes: []*schema.Index{
			{Columns: []string{"categoryId"}},
		},
	}
}

// TagsConfig returns the Tag entity configuration, the target side of
// the product tag set.
func TagsConfig() *schema.EntityConfig {
	return &schema.EntityConfig{
		Name:  "Tag",
		Table: "tags",
		Columns: []*schema.Column{
			{Name: "id", Column: "id", Type: schema.TypeInteger, PrimaryKey: true, AutoIncrement: true},
			{Name: "name", Column: "name", Type: schema.TypeString, Unique: true},
		},
	}
}

// Products is the product repository.
type Products struct {
	*dao.DAO
	tags *dao.DAO
}

// NewProducts returns the product repository over the given adapter.
func NewProducts(a *sql.Adapter, reg *schema.Registry, opts ...dao.Option) (*Products, error) {
	d, err := dao.New(a, reg, "Product", opts...)
	if err != nil {
		return nil, err
	}
	tags, err := dao.New(a, reg, "Tag", opts...)
	if err != nil {
		return nil, err
	}
	return &Products{DAO: d, tags: tags}, nil
}

// Tags returns the tag DAO.
func (p *Products) Tags() *dao.DAO { return p.tags }

// FindBySKU returns the product with the given SKU, or nil.
func (p *Products) FindBySKU(ctx context.Context, sku string) (rowan.Entity, error) {
	return p.FindOne(ctx, map[string]any{"sku": sku}, nil)
}

// InCategory returns the live products of one category, joined to it so
// callers can select category fields.
func (p *Products) InCategory(ctx context.Context, categoryID int64) ([]rowan.Entity, error) {
	return p.FindBy(ctx, map[string]any{"categoryId": categoryID}, &dao.FindOptions{
		Relations:      []sqlgraph.Rel{{Name: "category"}},
		Order:          []dao.Order{{Field: "name"}},
		WithoutDeleted: true,
	})
}

// Tag links a product to a tag.
func (p *Products) Tag(ctx context.Context, productID, tagID any) error {
	return p.AddRelation(ctx, "tags", productID, tagID)
}

// Untag removes a product's tag link and reports whether it existed.
func (p *Products) Untag(ctx context.Context, productID, tagID any) (bool, error) {
	return p.RemoveRelation(ctx, "tags", productID, tagID)
}

// TagIDs returns the ids of the product's tags.
func (p *Products) TagIDs(ctx context.Context, productID any) ([]any, error) {
	return p.RelatedIDs(ctx, "tags", productID)
}

// Restock adds delta to the product's stock inside a transaction, so
// concurrent restocks on separate adapters do not lose updates and a
// failed read-back leaves the stock untouched.
func (p *Products) Restock(ctx context.Context, productID any, delta int64) (rowan.Entity, error) {
	var updated rowan.Entity
	err := p.Adapter().Transaction(ctx, func(tx *sql.Adapter) error {
		current, err := p.FindByID(ctx, productID, nil)
		if err != nil {
			return err
		}
		stock, _ := current["stock"].(int64)
		updated, err = p.Update(ctx, productID, rowan.Entity{"stock": stock + delta})
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
