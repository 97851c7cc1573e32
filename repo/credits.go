package repo

import (
	"context"
	"fmt"

	"github.com/rowandb/rowan"
	"github.com/rowandb/rowan/dao"
	"github.com/rowandb/rowan/dialect/sql"
	"github.com/rowandb/rowan/schema"
)

// CreditsConfig returns the Credit entity configuration: an append-only
// ledger where spends are negative amounts.
func CreditsConfig() *schema.EntityConfig {
	return &schema.EntityConfig{
		Name:  "Credit",
		Table: "credits",
		Columns: []*schema.Column{
			{Name: "id", Column: "id", Type: schema.TypeInteger, PrimaryKey: true, AutoIncrement: true},
			{Name: "userId", Column: "user_id", Type: schema.TypeInteger},
			{Name: "amount", Column: "amount", Type: schema.TypeNumber},
			{Name: "reason", Column: "reason", Type: schema.TypeString, Nullable: true},
			{Name: "createdAt", Column: "created_at", Type: schema.TypeDatetime, Nullable: true},
		},
		Timestamps: &schema.Timestamps{CreatedAt: "createdAt"},
		Indexes: []*schema.Index{
			{Columns: []string{"userId"}},
		},
	}
}

// Credits is the credit ledger repository.
type Credits struct {
	*dao.DAO
}

// NewCredits returns the credit repository over the given adapter.
func NewCredits(a *sql.Adapter, reg *schema.Registry, opts ...dao.Option) (*Credits, error) {
	d, err := dao.New(a, reg, "Credit", opts...)
	if err != nil {
		return nil, err
	}
	return &Credits{DAO: d}, nil
}

// Grant appends a positive ledger entry for the user.
func (c *Credits) Grant(ctx context.Context, userID int64, amount float64, reason string) (rowan.Entity, error) {
	if amount <= 0 {
		return nil, rowan.NewMutationError("Credit", "grant", fmt.Errorf("amount must be positive, got %v", amount))
	}
	return c.Create(ctx, rowan.Entity{"userId": userID, "amount": amount, "reason": reason})
}

// Spend appends a negative ledger entry. The balance check and the
// write run in one transaction so concurrent spends on the same adapter
// cannot drive the balance below zero between check and append.
func (c *Credits) Spend(ctx context.Context, userID int64, amount float64, reason string) (rowan.Entity, error) {
	if amount <= 0 {
		return nil, rowan.NewMutationError("Credit", "spend", fmt.Errorf("amount must be positive, got %v", amount))
	}
	var entry rowan.Entity
	err := c.Adapter().Transaction(ctx, func(tx *sql.Adapter) error {
		balance, err := c.Balance(ctx, userID)
		if err != nil {
			return err
		}
		if balance < amount {
			return rowan.NewMutationError("Credit", "spend",
				fmt.Errorf("insufficient balance: have %v, need %v", balance, amount))
		}
		entry, err = c.Create(ctx, rowan.Entity{"userId": userID, "amount": -amount, "reason": reason})
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Balance returns the sum of the user's ledger entries.
func (c *Credits) Balance(ctx context.Context, userID int64) (float64, error) {
	rows, err := c.Aggregate(ctx, sql.AggregateOptions{
		Functions:  []sql.AggregateExpr{{Function: "SUM", Field: "amount", Alias: "balance"}},
		Conditions: map[string]any{"userId": userID},
	})
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	switch v := rows[0]["balance"].(type) {
	case float64:
		return v, nil
	case int64:
		return float64(v), nil
	default:
		// SUM over an empty ledger is NULL.
		return 0, nil
	}
}

// History returns the user's ledger entries, newest first.
func (c *Credits) History(ctx context.Context, userID int64) ([]rowan.Entity, error) {
	return c.FindBy(ctx, map[string]any{"userId": userID}, &dao.FindOptions{
		Order: []dao.Order{{Field: "createdAt", Direction: "DESC"}, {Field: "id", Direction: "DESC"}},
	})
}
