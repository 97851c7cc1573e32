package schema

// RelationKind enumerates the supported relation shapes.
type RelationKind string

const (
	ManyToOne  RelationKind = "manyToOne"
	OneToMany  RelationKind = "oneToMany"
	OneToOne   RelationKind = "oneToOne"
	ManyToMany RelationKind = "manyToMany"
)

// Valid reports whether the kind is one of the supported shapes.
func (k RelationKind) Valid() bool {
	switch k {
	case ManyToOne, OneToMany, OneToOne, ManyToMany:
		return true
	}
	return false
}

// Junction reports whether the kind routes through a junction table.
func (k RelationKind) Junction() bool {
	return k == ManyToMany
}

// Relation describes a navigable association from one entity to another.
// Self references (Target naming the owning entity) are legal and get a
// distinct alias when joined.
type Relation struct {
	// Name identifies the relation on the source entity and doubles as the
	// default join alias.
	Name string
	Kind RelationKind
	// Target is the target entity name.
	Target string
	// SourceField and TargetField are logical field names on the source and
	// target entities. For manyToMany they name the fields the junction
	// columns refer to (usually the primary keys).
	SourceField string
	TargetField string
	// JoinCondition, when set, replaces the derived ON clause. It is a
	// complete SQL fragment with one ? per entry in JoinParams. Junction
	// relations cannot use it; their two joins are derived from the
	// junction mapping.
	JoinCondition string
	JoinParams    []any
	// JunctionTable and its two columns apply to manyToMany only. The
	// junction is an independent table keyed by the two physical columns,
	// not a mapped entity.
	JunctionTable        string
	JunctionSourceColumn string
	JunctionTargetColumn string
	// JoinType overrides the join operator ("LEFT JOIN" by default,
	// "INNER JOIN" for required relations).
	JoinType string
	// Alias overrides the default join alias (the relation name).
	Alias string
	// Required marks the related row as mandatory, switching the default
	// join to INNER.
	Required bool
}

// JoinAlias returns the alias the relation is joined under.
func (r *Relation) JoinAlias() string {
	if r.Alias != "" {
		return r.Alias
	}
	return r.Name
}

// Operator returns the SQL join operator for the relation.
func (r *Relation) Operator() string {
	if r.JoinType != "" {
		return r.JoinType
	}
	if r.Required {
		return "INNER JOIN"
	}
	return "LEFT JOIN"
}
