package schema

// FieldReader is the read-only view of an entity handed to computed
// property implementations. Reading through the interface is what allows
// dependency inference: when a property declares no dependencies, the
// engine probes the implementation once with a recording reader.
type FieldReader interface {
	// Get returns the value of the named field, or nil when absent.
	Get(name string) any
}

// ComputeFunc derives a property value from an entity's fields.
type ComputeFunc func(e FieldReader) (any, error)

// ComputedProperty declares a derived field evaluated after mapping.
// Properties may depend on persisted fields or on other computed
// properties; evaluation follows dependency order.
type ComputedProperty struct {
	Name string
	// Dependencies lists the fields the implementation reads. When set it
	// is authoritative; when empty the engine infers dependencies by
	// probing Compute.
	Dependencies []string
	// Compute is the implementation. Configurations loaded from files
	// leave it nil until EntityConfig.BindComputed attaches one.
	Compute ComputeFunc
}
