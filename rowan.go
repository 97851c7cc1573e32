// Package rowan provides the shared value kinds and the error taxonomy of
// the rowan relational mapping engine. The package imports nothing from the
// rest of the module so that every layer (dialect adapters, mapper, computed
// property engine, data access objects) can depend on it freely.
package rowan

import "sort"

// Row is a raw database row: physical column names mapped to driver values.
type Row map[string]any

// Entity is a mapped record: logical field names mapped to coerced values.
// Computed properties, when present, live alongside persisted fields.
type Entity map[string]any

// Get returns the value of the named field, or nil when absent.
func (e Entity) Get(name string) any {
	return e[name]
}

// Set stores a field value.
func (e Entity) Set(name string, v any) {
	e[name] = v
}

// Has reports whether the named field is present.
func (e Entity) Has(name string) bool {
	_, ok := e[name]
	return ok
}

// Clone returns a shallow copy of the entity.
func (e Entity) Clone() Entity {
	if e == nil {
		return nil
	}
	c := make(Entity, len(e))
	for k, v := range e {
		c[k] = v
	}
	return c
}

// Fields returns the field names in sorted order.
func (e Entity) Fields() []string {
	names := make([]string, 0, len(e))
	for k := range e {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
