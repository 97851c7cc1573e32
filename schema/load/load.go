// Package load reads entity configurations from YAML documents. The
// loader owns file parsing and naming defaults only; structural
// validation stays in package schema and computed implementations are
// bound in code after loading.
package load

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-openapi/inflect"
	"gopkg.in/yaml.v3"

	"github.com/rowandb/rowan/schema"
)

// entityDoc is the YAML shape of one entity configuration. A file may
// hold several documents separated by ---.
type entityDoc struct {
	Entity    string         `yaml:"entity"`
	Table     string         `yaml:"table"`
	Columns   []columnDoc    `yaml:"columns"`
	Relations []relationDoc  `yaml:"relations"`
	Computed  []computedDoc  `yaml:"computed"`
	Timestamp *timestampsDoc `yaml:"timestamps"`
	SoftDel   *softDeleteDoc `yaml:"softDelete"`
	Indexes   []indexDoc     `yaml:"indexes"`
}

type columnDoc struct {
	Name          string `yaml:"name"`
	Column        string `yaml:"column"`
	Type          string `yaml:"type"`
	PrimaryKey    bool   `yaml:"primaryKey"`
	AutoIncrement bool   `yaml:"autoIncrement"`
	Nullable      bool   `yaml:"nullable"`
	Unique        bool   `yaml:"unique"`
	Size          int    `yaml:"size"`
	Default       any    `yaml:"default"`
}

type relationDoc struct {
	Name                 string `yaml:"name"`
	Kind                 string `yaml:"kind"`
	Target               string `yaml:"target"`
	SourceField          string `yaml:"sourceField"`
	TargetField          string `yaml:"targetField"`
	JoinCondition        string `yaml:"joinCondition"`
	JoinParams           []any  `yaml:"joinParams"`
	JunctionTable        string `yaml:"junctionTable"`
	JunctionSourceColumn string `yaml:"junctionSourceColumn"`
	JunctionTargetColumn string `yaml:"junctionTargetColumn"`
	Alias                string `yaml:"alias"`
	Required             bool   `yaml:"required"`
}

type computedDoc struct {
	Name         string   `yaml:"name"`
	Dependencies []string `yaml:"dependencies"`
}

type timestampsDoc struct {
	CreatedAt string `yaml:"createdAt"`
	UpdatedAt string `yaml:"updatedAt"`
}

type softDeleteDoc struct {
	Field string `yaml:"field"`
	Value any    `yaml:"value"`
}

type indexDoc struct {
	Name    string   `yaml:"name"`
	Columns []string `yaml:"columns"`
	Unique  bool     `yaml:"unique"`
}

// ruleset drives the naming defaults: a missing table name becomes the
// pluralized snake-case entity name, a missing physical column the
// snake-case logical name.
var ruleset = inflect.NewDefaultRuleset()

// TableName returns the default table name for an entity name.
func TableName(entity string) string {
	return ruleset.Underscore(ruleset.Pluralize(entity))
}

// ColumnName returns the default physical column for a logical field.
func ColumnName(field string) string {
	return ruleset.Underscore(field)
}

// Read parses every YAML document from r into validated configurations.
// name labels errors, usually the file path.
func Read(r io.Reader, name string) ([]*schema.EntityConfig, error) {
	dec := yaml.NewDecoder(r)
	var cfgs []*schema.EntityConfig
	for {
		var doc entityDoc
		err := dec.Decode(&doc)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("load: %s: %w", name, err)
		}
		cfg, err := doc.config()
		if err != nil {
			return nil, fmt.Errorf("load: %s: %w", name, err)
		}
		cfgs = append(cfgs, cfg)
	}
	if len(cfgs) == 0 {
		return nil, fmt.Errorf("load: %s: no entity documents", name)
	}
	return cfgs, nil
}

// File loads the configurations of one YAML file.
func File(path string) ([]*schema.EntityConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	defer f.Close()
	return Read(f, path)
}

// Dir loads every .yaml and .yml file of a directory, sorted by name so
// the load order is stable.
func Dir(dir string) ([]*schema.EntityConfig, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !isYAML(entry.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(paths)
	if len(paths) == 0 {
		return nil, fmt.Errorf("load: no schema files in %s", dir)
	}
	var cfgs []*schema.EntityConfig
	for _, path := range paths {
		fileCfgs, err := File(path)
		if err != nil {
			return nil, err
		}
		cfgs = append(cfgs, fileCfgs...)
	}
	return cfgs, nil
}

// Registry loads a directory into a fresh registry.
func Registry(dir string) (*schema.Registry, error) {
	cfgs, err := Dir(dir)
	if err != nil {
		return nil, err
	}
	return schema.NewRegistry(cfgs...)
}

func isYAML(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// FS loads every YAML file of an fs.FS, for embedded schemas.
func FS(fsys fs.FS) ([]*schema.EntityConfig, error) {
	var cfgs []*schema.EntityConfig
	err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !isYAML(path) {
			return err
		}
		f, err := fsys.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		fileCfgs, err := Read(f, path)
		if err != nil {
			return err
		}
		cfgs = append(cfgs, fileCfgs...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cfgs, nil
}

// config converts the document into a validated EntityConfig, filling
// naming defaults.
func (doc *entityDoc) config() (*schema.EntityConfig, error) {
	if doc.Entity == "" {
		return nil, fmt.Errorf("document without an entity name")
	}
	cfg := &schema.EntityConfig{
		Name:  doc.Entity,
		Table: doc.Table,
	}
	if cfg.Table == "" {
		cfg.Table = TableName(doc.Entity)
	}
	for _, c := range doc.Columns {
		col := &schema.Column{
			Name:          c.Name,
			Column:        c.Column,
			Type:          schema.FieldType(c.Type),
			PrimaryKey:    c.PrimaryKey,
			AutoIncrement: c.AutoIncrement,
			Nullable:      c.Nullable,
			Unique:        c.Unique,
			Size:          c.Size,
			Default:       c.Default,
		}
		if col.Column == "" {
			col.Column = ColumnName(c.Name)
		}
		if col.Type == "" {
			col.Type = schema.TypeString
		}
		cfg.Columns = append(cfg.Columns, col)
	}
	for _, r := range doc.Relations {
		cfg.Relations = append(cfg.Relations, &schema.Relation{
			Name:                 r.Name,
			Kind:                 schema.RelationKind(r.Kind),
			Target:               r.Target,
			SourceField:          r.SourceField,
			TargetField:          r.TargetField,
			JoinCondition:        r.JoinCondition,
			JoinParams:           r.JoinParams,
			JunctionTable:        r.JunctionTable,
			JunctionSourceColumn: r.JunctionSourceColumn,
			JunctionTargetColumn: r.JunctionTargetColumn,
			Alias:                r.Alias,
			Required:             r.Required,
		})
	}
	for _, p := range doc.Computed {
		cfg.Computed = append(cfg.Computed, &schema.ComputedProperty{
			Name:         p.Name,
			Dependencies: p.Dependencies,
		})
	}
	if doc.Timestamp != nil {
		cfg.Timestamps = &schema.Timestamps{
			CreatedAt: doc.Timestamp.CreatedAt,
			UpdatedAt: doc.Timestamp.UpdatedAt,
		}
	}
	if doc.SoftDel != nil {
		cfg.SoftDelete = &schema.SoftDelete{
			Field: doc.SoftDel.Field,
			Value: doc.SoftDel.Value,
		}
	}
	for _, idx := range doc.Indexes {
		cfg.Indexes = append(cfg.Indexes, &schema.Index{
			Name:    idx.Name,
			Columns: idx.Columns,
			Unique:  idx.Unique,
		})
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
