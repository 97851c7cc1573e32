// Package schema defines the entity configurations that drive the rowan
// mapping engine: logical columns with their physical storage names and
// declared types, relations between entities (including many-to-many
// junctions and self references), computed properties with their
// dependencies, and the optional timestamp and soft-delete conventions.
//
// Configurations are plain data. They can be built in code or loaded from
// YAML documents via the schema/load subpackage, and are validated once with
// [EntityConfig.Validate] before use. A [Registry] holds the configurations
// of all entities known to a client so that relations can be resolved across
// entity boundaries.
package schema
