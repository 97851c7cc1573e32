// Package sqlgraph translates configured entity relations into SQL joins
// and junction-table writes. The read path appends joins to a select
// builder; many-to-many membership changes run through a separate write
// path and never touch the join logic.
package sqlgraph

import (
	"context"
	"fmt"

	"github.com/rowandb/rowan"
	"github.com/rowandb/rowan/dialect/sql"
	"github.com/rowandb/rowan/schema"
)

// Rel selects a configured relation for one query. Name must match a
// relation declared on the source entity. Alias overrides the configured
// join alias; nested relations join against this relation's alias.
type Rel struct {
	Name   string
	Alias  string
	Nested []Rel
}

// Resolver turns relation requests into physical joins using registered
// entity configurations.
type Resolver struct {
	reg *schema.Registry
}

// NewResolver returns a resolver over the given registry.
func NewResolver(reg *schema.Registry) *Resolver {
	return &Resolver{reg: reg}
}

// Resolve appends one join per requested relation to the builder.
// sourceAlias is the name the entity's table is visible under in the
// query. Joins are LEFT unless the relation is required or overrides its
// join type. The ON clause comes from the relation's explicit join
// condition when one is configured, otherwise from the source and target
// field mapping. Many-to-many relations join in two hops through their
// junction table. Every join alias in one query must be distinct,
// including the aliases of self joins.
func (r *Resolver) Resolve(b *sql.Builder, entity, sourceAlias string, rels []Rel) error {
	seen := map[string]struct{}{sourceAlias: {}}
	return r.resolve(b, entity, sourceAlias, rels, seen)
}

func (r *Resolver) resolve(b *sql.Builder, entity, sourceAlias string, rels []Rel, seen map[string]struct{}) error {
	cfg, err := r.reg.Lookup(entity)
	if err != nil {
		return err
	}
	for _, req := range rels {
		rel := cfg.Relation(req.Name)
		if rel == nil {
			return rowan.NewConfigurationError(entity, "unknown relation %q", req.Name)
		}
		alias := rel.JoinAlias()
		if req.Alias != "" {
			alias = req.Alias
		}
		if _, dup := seen[alias]; dup {
			return rowan.NewConfigurationError(entity, "duplicate join alias %q", alias)
		}
		seen[alias] = struct{}{}
		target, err := r.reg.Lookup(rel.Target)
		if err != nil {
			return err
		}
		if rel.Kind.Junction() {
			err = r.joinJunction(b, cfg, target, rel, sourceAlias, alias, seen)
		} else {
			err = r.joinDirect(b, cfg, target, rel, sourceAlias, alias)
		}
		if err != nil {
			return err
		}
		if len(req.Nested) > 0 {
			if err := r.resolve(b, rel.Target, alias, req.Nested, seen); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Resolver) joinDirect(b *sql.Builder, src, target *schema.EntityConfig, rel *schema.Relation, sourceAlias, alias string) error {
	if rel.JoinCondition != "" {
		b.Join(rel.Operator(), target.Table, alias, rel.JoinCondition, rel.JoinParams...)
		return nil
	}
	if rel.SourceField == "" || rel.TargetField == "" {
		return rowan.NewConfigurationError(src.Name, "relation %q has neither a join condition nor a field mapping", rel.Name)
	}
	srcCol, err := physicalColumn(src, rel.SourceField, rel.Name)
	if err != nil {
		return err
	}
	dstCol, err := physicalColumn(target, rel.TargetField, rel.Name)
	if err != nil {
		return err
	}
	b.Join(rel.Operator(), target.Table, alias, fmt.Sprintf("%s.%s = %s.%s", sourceAlias, srcCol, alias, dstCol))
	return nil
}

// joinJunction joins the junction table under <alias>_link, then the
// target table under the relation alias.
func (r *Resolver) joinJunction(b *sql.Builder, src, target *schema.EntityConfig, rel *schema.Relation, sourceAlias, alias string, seen map[string]struct{}) error {
	srcCol, err := physicalColumn(src, rel.SourceField, rel.Name)
	if err != nil {
		return err
	}
	dstCol, err := physicalColumn(target, rel.TargetField, rel.Name)
	if err != nil {
		return err
	}
	link := alias + "_link"
	if _, dup := seen[link]; dup {
		return rowan.NewConfigurationError(src.Name, "duplicate join alias %q", link)
	}
	seen[link] = struct{}{}
	op := rel.Operator()
	b.Join(op, rel.JunctionTable, link, fmt.Sprintf("%s.%s = %s.%s", sourceAlias, srcCol, link, rel.JunctionSourceColumn))
	b.Join(op, target.Table, alias, fmt.Sprintf("%s.%s = %s.%s", link, rel.JunctionTargetColumn, alias, dstCol))
	return nil
}

func physicalColumn(cfg *schema.EntityConfig, field, relName string) (string, error) {
	col := cfg.Column(field)
	if col == nil {
		return "", rowan.NewConfigurationError(cfg.Name, "relation %q references unknown field %q", relName, field)
	}
	return col.Physical(), nil
}

// AddLink inserts one membership row into the relation's junction table.
// The relation must be many-to-many.
func (r *Resolver) AddLink(ctx context.Context, a *sql.Adapter, entity, relation string, sourceID, targetID any) error {
	rel, err := r.junction(entity, relation)
	if err != nil {
		return err
	}
	_, err = a.InsertBuilder(rel.JunctionTable).
		Columns(rel.JunctionSourceColumn, rel.JunctionTargetColumn).
		Values(sourceID, targetID).
		Exec(ctx)
	return err
}

// RemoveLink deletes the membership row and reports how many rows
// matched. Zero means the link did not exist.
func (r *Resolver) RemoveLink(ctx context.Context, a *sql.Adapter, entity, relation string, sourceID, targetID any) (int64, error) {
	rel, err := r.junction(entity, relation)
	if err != nil {
		return 0, err
	}
	res, err := a.DeleteBuilder(rel.JunctionTable).
		WhereCond(sql.And(
			sql.EQ(rel.JunctionSourceColumn, sourceID),
			sql.EQ(rel.JunctionTargetColumn, targetID),
		)).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected, nil
}

// SetLinks replaces the membership set of one source row. The delete and
// the inserts run in a single transaction.
func (r *Resolver) SetLinks(ctx context.Context, a *sql.Adapter, entity, relation string, sourceID any, targetIDs []any) error {
	rel, err := r.junction(entity, relation)
	if err != nil {
		return err
	}
	return a.Transaction(ctx, func(tx *sql.Adapter) error {
		if _, err := tx.DeleteBuilder(rel.JunctionTable).
			WhereCond(sql.EQ(rel.JunctionSourceColumn, sourceID)).
			Exec(ctx); err != nil {
			return err
		}
		if len(targetIDs) == 0 {
			return nil
		}
		ins := tx.InsertBuilder(rel.JunctionTable).
			Columns(rel.JunctionSourceColumn, rel.JunctionTargetColumn)
		for _, id := range targetIDs {
			ins.Values(sourceID, id)
		}
		_, err := ins.Exec(ctx)
		return err
	})
}

// LinkedIDs returns the target ids linked to the source row, ordered for
// deterministic results.
func (r *Resolver) LinkedIDs(ctx context.Context, a *sql.Adapter, entity, relation string, sourceID any) ([]any, error) {
	rel, err := r.junction(entity, relation)
	if err != nil {
		return nil, err
	}
	rows, err := a.QueryBuilder(rel.JunctionTargetColumn).
		From(rel.JunctionTable).
		WhereCond(sql.EQ(rel.JunctionSourceColumn, sourceID)).
		OrderAsc(rel.JunctionTargetColumn).
		All(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]any, len(rows))
	for i, row := range rows {
		ids[i] = row[rel.JunctionTargetColumn]
	}
	return ids, nil
}

func (r *Resolver) junction(entity, relation string) (*schema.Relation, error) {
	cfg, err := r.reg.Lookup(entity)
	if err != nil {
		return nil, err
	}
	rel := cfg.Relation(relation)
	if rel == nil {
		return nil, rowan.NewConfigurationError(entity, "unknown relation %q", relation)
	}
	if !rel.Kind.Junction() {
		return nil, rowan.NewConfigurationError(entity, "relation %q is not many-to-many", relation)
	}
	return rel, nil
}
