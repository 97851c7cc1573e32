package schema

import (
	"regexp"
	"strings"

	"github.com/rowandb/rowan"
)

// identRe constrains physical names to plain SQL identifiers. Everything
// the engine interpolates into SQL text (tables, columns, aliases) must
// match; values never do, they travel as bound parameters.
var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether s is usable as a table, column or alias
// name.
func ValidIdentifier(s string) bool {
	return identRe.MatchString(s)
}

// Validate checks the configuration for structural errors: missing or
// duplicate names, unknown logical fields referenced by relations,
// timestamps or soft-delete markers, malformed identifiers and invalid
// relation shapes. It returns a ConfigurationError describing the first
// problem found.
func (c *EntityConfig) Validate() error {
	if c.Name == "" {
		return rowan.NewConfigurationError("entity", "missing entity name")
	}
	if c.Table == "" {
		return rowan.NewConfigurationError(c.Name, "missing table name")
	}
	if !ValidIdentifier(c.Table) {
		return rowan.NewConfigurationError(c.Name, "invalid table name %q", c.Table)
	}
	if len(c.Columns) == 0 {
		return rowan.NewConfigurationError(c.Name, "no columns declared")
	}

	logical := make(map[string]bool, len(c.Columns))
	physical := make(map[string]bool, len(c.Columns))
	pk := 0
	for _, col := range c.Columns {
		if col.Name == "" {
			return rowan.NewConfigurationError(c.Name, "column with empty logical name")
		}
		if logical[col.Name] {
			return rowan.NewConfigurationError(c.Name, "duplicate logical name %q", col.Name)
		}
		logical[col.Name] = true
		if !ValidIdentifier(col.Physical()) {
			return rowan.NewConfigurationError(c.Name, "invalid column name %q", col.Physical())
		}
		if physical[col.Physical()] {
			return rowan.NewConfigurationError(c.Name, "duplicate column name %q", col.Physical())
		}
		physical[col.Physical()] = true
		if col.Type == "" {
			return rowan.NewConfigurationError(c.Name, "column %q has no type", col.Name)
		}
		if col.PrimaryKey {
			pk++
		}
		if col.AutoIncrement {
			if !col.PrimaryKey {
				return rowan.NewConfigurationError(c.Name, "auto-increment column %q must be a primary key", col.Name)
			}
			if col.Type != TypeInteger {
				return rowan.NewConfigurationError(c.Name, "auto-increment column %q must be an integer", col.Name)
			}
		}
	}
	if pk == 0 {
		return rowan.NewConfigurationError(c.Name, "no primary key column")
	}
	if pk > 1 {
		for _, col := range c.Columns {
			if col.AutoIncrement {
				return rowan.NewConfigurationError(c.Name, "auto-increment is not allowed on composite keys")
			}
		}
	}

	seenRel := make(map[string]bool, len(c.Relations))
	for _, r := range c.Relations {
		if err := c.validateRelation(r, logical, seenRel); err != nil {
			return err
		}
	}

	seenComputed := make(map[string]bool, len(c.Computed))
	for _, p := range c.Computed {
		if p.Name == "" {
			return rowan.NewConfigurationError(c.Name, "computed property with empty name")
		}
		if logical[p.Name] || seenRel[p.Name] || seenComputed[p.Name] {
			return rowan.NewConfigurationError(c.Name, "computed property %q collides with another field", p.Name)
		}
		seenComputed[p.Name] = true
	}

	if ts := c.Timestamps; ts != nil {
		if ts.CreatedAt != "" && !logical[ts.CreatedAt] {
			return rowan.NewConfigurationError(c.Name, "timestamp field %q is not a column", ts.CreatedAt)
		}
		if ts.UpdatedAt != "" && !logical[ts.UpdatedAt] {
			return rowan.NewConfigurationError(c.Name, "timestamp field %q is not a column", ts.UpdatedAt)
		}
	}
	if sd := c.SoftDelete; sd != nil {
		if sd.Field == "" {
			return rowan.NewConfigurationError(c.Name, "soft delete without a marker field")
		}
		if !logical[sd.Field] {
			return rowan.NewConfigurationError(c.Name, "soft delete field %q is not a column", sd.Field)
		}
	}

	seenIdx := make(map[string]bool, len(c.Indexes))
	for _, idx := range c.Indexes {
		if len(idx.Columns) == 0 {
			return rowan.NewConfigurationError(c.Name, "index without columns")
		}
		for _, col := range idx.Columns {
			if !logical[col] {
				return rowan.NewConfigurationError(c.Name, "index references unknown field %q", col)
			}
		}
		if idx.Name != "" {
			if !ValidIdentifier(idx.Name) {
				return rowan.NewConfigurationError(c.Name, "invalid index name %q", idx.Name)
			}
			if seenIdx[idx.Name] {
				return rowan.NewConfigurationError(c.Name, "duplicate index name %q", idx.Name)
			}
			seenIdx[idx.Name] = true
		}
	}
	return nil
}

func (c *EntityConfig) validateRelation(r *Relation, logical, seen map[string]bool) error {
	if r.Name == "" {
		return rowan.NewConfigurationError(c.Name, "relation with empty name")
	}
	if seen[r.Name] {
		return rowan.NewConfigurationError(c.Name, "duplicate relation %q", r.Name)
	}
	if logical[r.Name] {
		return rowan.NewConfigurationError(c.Name, "relation %q collides with a column", r.Name)
	}
	seen[r.Name] = true
	if !r.Kind.Valid() {
		return rowan.NewConfigurationError(c.Name, "relation %q has unknown kind %q", r.Name, r.Kind)
	}
	if r.Target == "" {
		return rowan.NewConfigurationError(c.Name, "relation %q has no target entity", r.Name)
	}
	if !ValidIdentifier(r.JoinAlias()) {
		return rowan.NewConfigurationError(c.Name, "relation %q has invalid alias %q", r.Name, r.JoinAlias())
	}
	if r.JoinCondition != "" {
		if r.Kind.Junction() {
			return rowan.NewConfigurationError(c.Name, "relation %q cannot combine a join condition with a junction", r.Name)
		}
		if n := strings.Count(r.JoinCondition, "?"); n != len(r.JoinParams) {
			return rowan.NewConfigurationError(c.Name, "relation %q join condition has %d placeholders for %d parameters", r.Name, n, len(r.JoinParams))
		}
	} else if r.SourceField == "" || r.TargetField == "" {
		return rowan.NewConfigurationError(c.Name, "relation %q needs source and target fields or a join condition", r.Name)
	}
	if r.SourceField != "" && !logical[r.SourceField] {
		return rowan.NewConfigurationError(c.Name, "relation %q references unknown field %q", r.Name, r.SourceField)
	}
	if r.Kind.Junction() {
		switch {
		case r.JunctionTable == "":
			return rowan.NewConfigurationError(c.Name, "relation %q needs a junction table", r.Name)
		case !ValidIdentifier(r.JunctionTable):
			return rowan.NewConfigurationError(c.Name, "relation %q has invalid junction table %q", r.Name, r.JunctionTable)
		case r.JunctionSourceColumn == "" || r.JunctionTargetColumn == "":
			return rowan.NewConfigurationError(c.Name, "relation %q needs junction source and target columns", r.Name)
		case !ValidIdentifier(r.JunctionSourceColumn) || !ValidIdentifier(r.JunctionTargetColumn):
			return rowan.NewConfigurationError(c.Name, "relation %q has invalid junction columns", r.Name)
		}
	} else if r.JunctionTable != "" {
		return rowan.NewConfigurationError(c.Name, "relation %q declares a junction table but is %s", r.Name, r.Kind)
	}
	return nil
}
