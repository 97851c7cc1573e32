package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rowandb/rowan"
	"github.com/rowandb/rowan/dialect"
)

// CreateTableDDL renders a CREATE TABLE IF NOT EXISTS statement for the
// entity on the given dialect. The statement is idempotent so that schema
// bootstrap can run on every start.
func CreateTableDDL(cfg *EntityConfig, dialectName string) (string, error) {
	ids := cfg.IDColumns()
	inlinePK := len(ids) == 1 && ids[0].AutoIncrement

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (", cfg.Table)
	for i, col := range cfg.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		def, err := columnDDL(col, dialectName, inlinePK)
		if err != nil {
			return "", rowan.NewConfigurationError(cfg.Name, "column %q: %v", col.Name, err)
		}
		b.WriteString(def)
	}
	if !inlinePK {
		names := make([]string, len(ids))
		for i, col := range ids {
			names[i] = col.Physical()
		}
		fmt.Fprintf(&b, ", PRIMARY KEY (%s)", strings.Join(names, ", "))
	}
	b.WriteString(")")
	return b.String(), nil
}

func columnDDL(col *Column, dialectName string, inlinePK bool) (string, error) {
	typ, err := columnType(col, dialectName)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(col.Physical())
	b.WriteString(" ")
	b.WriteString(typ)
	switch {
	case col.AutoIncrement && inlinePK:
		switch dialectName {
		case dialect.SQLite:
			b.WriteString(" PRIMARY KEY AUTOINCREMENT")
		case dialect.Postgres:
			b.WriteString(" PRIMARY KEY")
		case dialect.MySQL:
			b.WriteString(" NOT NULL AUTO_INCREMENT PRIMARY KEY")
		}
	case col.PrimaryKey && inlinePK:
		b.WriteString(" PRIMARY KEY")
	case !col.Nullable:
		b.WriteString(" NOT NULL")
	}
	if col.Unique && !col.PrimaryKey {
		b.WriteString(" UNIQUE")
	}
	if col.Default != nil {
		lit, ok := defaultLiteral(col.Default, dialectName)
		if !ok {
			return "", fmt.Errorf("default value %v cannot be rendered", col.Default)
		}
		b.WriteString(" DEFAULT ")
		b.WriteString(lit)
	}
	return b.String(), nil
}

// columnType maps a logical type to the dialect's storage type. Unknown
// logical types fall back to TEXT, mirroring the mapper's passthrough rule.
func columnType(col *Column, dialectName string) (string, error) {
	switch dialectName {
	case dialect.SQLite, dialect.Postgres, dialect.MySQL:
	default:
		return "", fmt.Errorf("unsupported dialect %q", dialectName)
	}
	switch col.Type {
	case TypeString:
		if col.Size > 0 {
			return fmt.Sprintf("VARCHAR(%d)", col.Size), nil
		}
		if dialectName == dialect.MySQL {
			return "VARCHAR(255)", nil
		}
		return "TEXT", nil
	case TypeInteger:
		if dialectName == dialect.Postgres && col.AutoIncrement {
			return "BIGSERIAL", nil
		}
		if dialectName == dialect.SQLite {
			return "INTEGER", nil
		}
		return "BIGINT", nil
	case TypeNumber:
		switch dialectName {
		case dialect.SQLite:
			return "REAL", nil
		case dialect.Postgres:
			return "DOUBLE PRECISION", nil
		default:
			return "DOUBLE", nil
		}
	case TypeBoolean:
		switch dialectName {
		case dialect.SQLite:
			return "INTEGER", nil
		case dialect.Postgres:
			return "BOOLEAN", nil
		default:
			return "TINYINT(1)", nil
		}
	case TypeDatetime:
		if dialectName == dialect.Postgres {
			return "TIMESTAMPTZ", nil
		}
		return "DATETIME", nil
	case TypeJSON:
		switch dialectName {
		case dialect.SQLite:
			return "TEXT", nil
		case dialect.Postgres:
			return "JSONB", nil
		default:
			return "JSON", nil
		}
	case TypeUUID:
		switch dialectName {
		case dialect.SQLite:
			return "TEXT", nil
		case dialect.Postgres:
			return "UUID", nil
		default:
			return "CHAR(36)", nil
		}
	default:
		return "TEXT", nil
	}
}

func defaultLiteral(v any, dialectName string) (string, bool) {
	switch x := v.(type) {
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'", true
	case bool:
		if dialectName == dialect.Postgres {
			if x {
				return "TRUE", true
			}
			return "FALSE", true
		}
		if x {
			return "1", true
		}
		return "0", true
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", x), true
	case float32, float64:
		return fmt.Sprintf("%v", x), true
	default:
		return "", false
	}
}

// IndexDDL renders CREATE INDEX statements for the entity's declared
// indexes. MySQL lacks IF NOT EXISTS for indexes; callers applying these
// statements there should tolerate the duplicate-key error.
func IndexDDL(cfg *EntityConfig, dialectName string) ([]string, error) {
	stmts := make([]string, 0, len(cfg.Indexes))
	for _, idx := range cfg.Indexes {
		cols := make([]string, len(idx.Columns))
		for i, name := range idx.Columns {
			col := cfg.Column(name)
			if col == nil {
				return nil, rowan.NewConfigurationError(cfg.Name, "index references unknown field %q", name)
			}
			cols[i] = col.Physical()
		}
		name := idx.Name
		if name == "" {
			name = fmt.Sprintf("idx_%s_%s", cfg.Table, strings.Join(cols, "_"))
		}
		unique := ""
		if idx.Unique {
			unique = "UNIQUE "
		}
		ifNotExists := "IF NOT EXISTS "
		if dialectName == dialect.MySQL {
			ifNotExists = ""
		}
		stmts = append(stmts, fmt.Sprintf("CREATE %sINDEX %s%s ON %s (%s)",
			unique, ifNotExists, name, cfg.Table, strings.Join(cols, ", ")))
	}
	return stmts, nil
}

// JunctionDDL renders CREATE TABLE statements for the junction tables of
// the entity's many-to-many relations. Junction columns take the type of
// the fields they refer to; the pair forms the primary key.
func JunctionDDL(reg *Registry, cfg *EntityConfig, dialectName string) ([]string, error) {
	var stmts []string
	for _, r := range cfg.Relations {
		if !r.Kind.Junction() {
			continue
		}
		src := cfg.Column(r.SourceField)
		if src == nil {
			return nil, rowan.NewConfigurationError(cfg.Name, "relation %q references unknown field %q", r.Name, r.SourceField)
		}
		target, err := reg.Lookup(r.Target)
		if err != nil {
			return nil, err
		}
		tgt := target.Column(r.TargetField)
		if tgt == nil {
			return nil, rowan.NewConfigurationError(cfg.Name, "relation %q references unknown field %q on %s", r.Name, r.TargetField, r.Target)
		}
		srcType, err := columnType(&Column{Name: src.Name, Type: src.Type}, dialectName)
		if err != nil {
			return nil, err
		}
		tgtType, err := columnType(&Column{Name: tgt.Name, Type: tgt.Type}, dialectName)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, fmt.Sprintf(
			"CREATE TABLE IF NOT EXISTS %s (%s %s NOT NULL, %s %s NOT NULL, PRIMARY KEY (%s, %s))",
			r.JunctionTable,
			r.JunctionSourceColumn, srcType,
			r.JunctionTargetColumn, tgtType,
			r.JunctionSourceColumn, r.JunctionTargetColumn,
		))
	}
	return stmts, nil
}

// TablesDDL renders the bootstrap statements for every registered entity:
// entity tables sorted by name, then junction tables (deduplicated, both
// sides of a shared junction render the same table), then indexes.
func TablesDDL(reg *Registry, dialectName string) ([]string, error) {
	var stmts []string
	junctions := make(map[string]string)
	for _, cfg := range reg.Entities() {
		ddl, err := CreateTableDDL(cfg, dialectName)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, ddl)
		jd, err := JunctionDDL(reg, cfg, dialectName)
		if err != nil {
			return nil, err
		}
		for _, stmt := range jd {
			table := junctionTableOf(stmt)
			if _, ok := junctions[table]; !ok {
				junctions[table] = stmt
			}
		}
	}
	names := make([]string, 0, len(junctions))
	for name := range junctions {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		stmts = append(stmts, junctions[name])
	}
	for _, cfg := range reg.Entities() {
		idx, err := IndexDDL(cfg, dialectName)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, idx...)
	}
	return stmts, nil
}

func junctionTableOf(stmt string) string {
	const prefix = "CREATE TABLE IF NOT EXISTS "
	rest := strings.TrimPrefix(stmt, prefix)
	if i := strings.IndexByte(rest, ' '); i > 0 {
		return rest[:i]
	}
	return rest
}
