package sql

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/rowandb/rowan"
	"github.com/rowandb/rowan/dialect"
)

// Cond is a rendered predicate: a SQL fragment with ? placeholders and the
// parameters bound to them, in order. Conds compose with And, Or and Not
// and attach to builders via WhereCond.
type Cond struct {
	clause string
	args   []any
	err    error
}

// Clause returns the SQL fragment.
func (c Cond) Clause() string { return c.clause }

// Args returns the bound parameters in placeholder order.
func (c Cond) Args() []any { return c.args }

// Err returns the first error recorded while building the predicate.
func (c Cond) Err() error { return c.err }

func colCond(col, op string, v any) Cond {
	if !isValidIdentifier(col) {
		return Cond{err: rowan.NewConfigurationError("predicate", "invalid column %q", col)}
	}
	return Cond{clause: fmt.Sprintf("%s %s ?", col, op), args: []any{v}}
}

// EQ returns a column = value predicate. A nil value renders IS NULL.
func EQ(col string, v any) Cond {
	if v == nil {
		return IsNull(col)
	}
	return colCond(col, "=", v)
}

// NEQ returns a column <> value predicate. A nil value renders IS NOT NULL.
func NEQ(col string, v any) Cond {
	if v == nil {
		return NotNull(col)
	}
	return colCond(col, "<>", v)
}

// GT returns a column > value predicate.
func GT(col string, v any) Cond { return colCond(col, ">", v) }

// GTE returns a column >= value predicate.
func GTE(col string, v any) Cond { return colCond(col, ">=", v) }

// LT returns a column < value predicate.
func LT(col string, v any) Cond { return colCond(col, "<", v) }

// LTE returns a column <= value predicate.
func LTE(col string, v any) Cond { return colCond(col, "<=", v) }

// Like returns a column LIKE pattern predicate.
func Like(col, pattern string) Cond { return colCond(col, "LIKE", pattern) }

// IsNull returns a column IS NULL predicate.
func IsNull(col string) Cond {
	if !isValidIdentifier(col) {
		return Cond{err: rowan.NewConfigurationError("predicate", "invalid column %q", col)}
	}
	return Cond{clause: col + " IS NULL"}
}

// NotNull returns a column IS NOT NULL predicate.
func NotNull(col string) Cond {
	if !isValidIdentifier(col) {
		return Cond{err: rowan.NewConfigurationError("predicate", "invalid column %q", col)}
	}
	return Cond{clause: col + " IS NOT NULL"}
}

// In returns a column IN (...) predicate. An empty value set renders the
// always-false clause 0 = 1: SQL's IN () is a syntax error, and an empty
// set matches nothing.
func In(col string, vs ...any) Cond {
	if !isValidIdentifier(col) {
		return Cond{err: rowan.NewConfigurationError("predicate", "invalid column %q", col)}
	}
	if len(vs) == 0 {
		return Cond{clause: "0 = 1"}
	}
	return Cond{
		clause: fmt.Sprintf("%s IN (%s)", col, dialect.Placeholders(len(vs))),
		args:   append([]any(nil), vs...),
	}
}

// NotIn returns a column NOT IN (...) predicate. An empty value set renders
// the always-true clause 1 = 1: nothing is excluded.
func NotIn(col string, vs ...any) Cond {
	if !isValidIdentifier(col) {
		return Cond{err: rowan.NewConfigurationError("predicate", "invalid column %q", col)}
	}
	if len(vs) == 0 {
		return Cond{clause: "1 = 1"}
	}
	return Cond{
		clause: fmt.Sprintf("%s NOT IN (%s)", col, dialect.Placeholders(len(vs))),
		args:   append([]any(nil), vs...),
	}
}

// Raw returns a caller-rendered predicate. The fragment must contain one ?
// per argument.
func Raw(clause string, args ...any) Cond {
	if n := strings.Count(clause, "?"); n != len(args) {
		return Cond{err: rowan.NewBindError(clause, n, len(args))}
	}
	return Cond{clause: clause, args: args}
}

func compose(op string, conds []Cond) Cond {
	switch len(conds) {
	case 0:
		return Cond{}
	case 1:
		return conds[0]
	}
	parts := make([]string, 0, len(conds))
	var args []any
	for _, c := range conds {
		if c.err != nil {
			return Cond{err: c.err}
		}
		if c.clause == "" {
			continue
		}
		parts = append(parts, "("+c.clause+")")
		args = append(args, c.args...)
	}
	return Cond{clause: strings.Join(parts, " "+op+" "), args: args}
}

// And combines predicates with AND.
func And(conds ...Cond) Cond { return compose("AND", conds) }

// Or combines predicates with OR.
func Or(conds ...Cond) Cond { return compose("OR", conds) }

// Not negates a predicate.
func Not(c Cond) Cond {
	if c.err != nil || c.clause == "" {
		return c
	}
	return Cond{clause: "NOT (" + c.clause + ")", args: c.args}
}

// MapCond translates a conditions map into a conjunction. Keys are visited
// in sorted order so the rendered SQL is deterministic. Values follow the
// equality shorthand: nil renders IS NULL, slices render IN.
func MapCond(m map[string]any) Cond {
	if len(m) == 0 {
		return Cond{}
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	conds := make([]Cond, 0, len(keys))
	for _, k := range keys {
		conds = append(conds, valueCond(k, m[k]))
	}
	return And(conds...)
}

func valueCond(col string, v any) Cond {
	if v == nil {
		return IsNull(col)
	}
	// []byte is a scalar to the driver, not a value set.
	if _, ok := v.([]byte); ok {
		return EQ(col, v)
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		vs := make([]any, rv.Len())
		for i := range vs {
			vs[i] = rv.Index(i).Interface()
		}
		return In(col, vs...)
	}
	return EQ(col, v)
}
