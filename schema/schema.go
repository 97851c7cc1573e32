package schema

import (
	"sort"
	"sync"

	"github.com/rowandb/rowan"
)

// FieldType is the declared logical type of a column. Values outside the
// predefined set are legal: the mapper passes them through without coercion.
type FieldType string

// Predefined field types with coercion support.
const (
	TypeString   FieldType = "string"
	TypeInteger  FieldType = "integer"
	TypeNumber   FieldType = "number"
	TypeBoolean  FieldType = "boolean"
	TypeDatetime FieldType = "datetime"
	TypeJSON     FieldType = "json"
	TypeUUID     FieldType = "uuid"
)

// Known reports whether the type is one of the predefined types.
func (t FieldType) Known() bool {
	switch t {
	case TypeString, TypeInteger, TypeNumber, TypeBoolean, TypeDatetime, TypeJSON, TypeUUID:
		return true
	}
	return false
}

// Column describes one persisted attribute of an entity.
type Column struct {
	// Name is the logical field name used by application code.
	Name string
	// Column is the physical column name. When empty the logical name is
	// used as-is (the loader fills it from the naming strategy).
	Column string
	// Type is the declared logical type.
	Type FieldType
	// PrimaryKey marks the column as part of the primary key.
	PrimaryKey bool
	// AutoIncrement marks a database-assigned integer key.
	AutoIncrement bool
	Nullable      bool
	Unique        bool
	// Size is an optional length hint for string columns.
	Size int
	// Default is an optional literal default rendered into the DDL.
	Default any
}

// Physical returns the physical column name.
func (c *Column) Physical() string {
	if c.Column != "" {
		return c.Column
	}
	return c.Name
}

// Timestamps names the logical fields stamped automatically on writes.
// An empty name disables the corresponding stamp.
type Timestamps struct {
	CreatedAt string
	UpdatedAt string
}

// SoftDelete configures delete-as-update: deletes set Field to Value
// instead of removing the row.
type SoftDelete struct {
	// Field is the logical name of the marker column.
	Field string
	// Value is the sentinel written on delete. Defaults to true.
	Value any
}

// SentinelValue returns the configured sentinel, defaulting to true.
func (s *SoftDelete) SentinelValue() any {
	if s.Value == nil {
		return true
	}
	return s.Value
}

// Index describes a secondary index over logical columns.
type Index struct {
	// Name of the index. When empty a name is derived from the table and
	// column names.
	Name    string
	Columns []string
	Unique  bool
}

// EntityConfig is the complete description of one mapped entity.
type EntityConfig struct {
	// Name is the entity name, e.g. "User".
	Name string
	// Table is the physical table name.
	Table     string
	Columns   []*Column
	Relations []*Relation
	Computed  []*ComputedProperty
	// Timestamps, when set, enables automatic create/update stamping.
	Timestamps *Timestamps
	// SoftDelete, when set, turns deletes into sentinel updates.
	SoftDelete *SoftDelete
	Indexes    []*Index
}

// Column returns the column with the given logical name, or nil.
func (c *EntityConfig) Column(name string) *Column {
	for _, col := range c.Columns {
		if col.Name == name {
			return col
		}
	}
	return nil
}

// ColumnByPhysical returns the column with the given physical name, or nil.
func (c *EntityConfig) ColumnByPhysical(name string) *Column {
	for _, col := range c.Columns {
		if col.Physical() == name {
			return col
		}
	}
	return nil
}

// IDColumns returns the primary key columns in declaration order.
func (c *EntityConfig) IDColumns() []*Column {
	var ids []*Column
	for _, col := range c.Columns {
		if col.PrimaryKey {
			ids = append(ids, col)
		}
	}
	return ids
}

// IDColumn returns the single primary key column. It returns an error for
// composite keys, where callers must address columns individually.
func (c *EntityConfig) IDColumn() (*Column, error) {
	ids := c.IDColumns()
	switch len(ids) {
	case 1:
		return ids[0], nil
	case 0:
		return nil, rowan.NewConfigurationError(c.Name, "no primary key column")
	default:
		return nil, rowan.NewConfigurationError(c.Name, "composite primary key (%d columns)", len(ids))
	}
}

// Relation returns the relation with the given name, or nil.
func (c *EntityConfig) Relation(name string) *Relation {
	for _, r := range c.Relations {
		if r.Name == name {
			return r
		}
	}
	return nil
}

// ComputedProperty returns the computed property with the given name, or nil.
func (c *EntityConfig) ComputedProperty(name string) *ComputedProperty {
	for _, p := range c.Computed {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// BindComputed attaches an implementation to a declared computed property.
// Configurations loaded from YAML carry names and dependencies only; the
// implementations are bound in code.
func (c *EntityConfig) BindComputed(name string, fn ComputeFunc) error {
	p := c.ComputedProperty(name)
	if p == nil {
		return rowan.NewConfigurationError(c.Name, "unknown computed property %q", name)
	}
	p.Compute = fn
	return nil
}

// Registry holds the entity configurations known to a client, keyed by
// entity name. Lookups are safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	entities map[string]*EntityConfig
}

// NewRegistry returns a registry holding the given configurations.
// Every configuration is validated.
func NewRegistry(cfgs ...*EntityConfig) (*Registry, error) {
	r := &Registry{entities: make(map[string]*EntityConfig, len(cfgs))}
	for _, cfg := range cfgs {
		if err := r.Add(cfg); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Add validates and registers a configuration. Registering a duplicate
// entity name is an error.
func (r *Registry) Add(cfg *EntityConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entities[cfg.Name]; ok {
		return rowan.NewConfigurationError(cfg.Name, "entity registered twice")
	}
	r.entities[cfg.Name] = cfg
	return nil
}

// Lookup returns the configuration for the named entity.
func (r *Registry) Lookup(name string) (*EntityConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.entities[name]
	if !ok {
		return nil, rowan.NewConfigurationError(name, "entity not registered")
	}
	return cfg, nil
}

// Entities returns all registered configurations sorted by entity name.
func (r *Registry) Entities() []*EntityConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*EntityConfig, 0, len(r.entities))
	for _, cfg := range r.entities {
		out = append(out, cfg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
