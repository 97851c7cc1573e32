package sql

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rowandb/rowan"
)

// Order is one ORDER BY term. Direction is ASC, DESC or empty (ASC).
type Order struct {
	Field     string
	Direction string
}

// Join describes one join for the generic find operations. On may carry
// ? placeholders bound to Args.
type Join struct {
	Table string
	Alias string
	Type  string // INNER, LEFT, RIGHT, CROSS; empty means INNER
	On    string
	Args  []any
}

// QueryOptions tunes the generic find operations. The zero value selects
// every column of every matching row.
type QueryOptions struct {
	// Fields is the select list; empty selects *.
	Fields []string
	// Distinct marks the query as SELECT DISTINCT.
	Distinct bool
	// Joins are applied in order before conditions.
	Joins []Join
	// Conditions are ANDed equality conditions, keys sorted. A nil value
	// renders IS NULL, a slice renders IN.
	Conditions map[string]any
	// Where are extra predicates ANDed after Conditions.
	Where []Cond
	// Order, GroupBy and Having shape the result set.
	Order   []Order
	GroupBy []string
	Having  []Cond
	// Limit and Offset paginate; zero means unset.
	Limit  int
	Offset int
}

func (a *Adapter) selectBuilder(table string, opts *QueryOptions) *Builder {
	b := a.QueryBuilder()
	b.From(table)
	if opts == nil {
		return b
	}
	if len(opts.Fields) > 0 {
		b.Select(opts.Fields...)
	}
	if opts.Distinct {
		b.Distinct()
	}
	for _, j := range opts.Joins {
		b.Join(j.Type, j.Table, j.Alias, j.On, j.Args...)
	}
	if len(opts.Conditions) > 0 {
		b.WhereMap(opts.Conditions)
	}
	for _, c := range opts.Where {
		b.WhereCond(c)
	}
	for _, o := range opts.Order {
		b.OrderBy(o.Field, o.Direction)
	}
	if len(opts.GroupBy) > 0 {
		b.GroupBy(opts.GroupBy...)
	}
	for _, c := range opts.Having {
		if c.err != nil {
			b.AddError(c.err)
			continue
		}
		b.Having(c.clause, c.args...)
	}
	if opts.Limit > 0 {
		b.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		b.Offset(opts.Offset)
	}
	return b
}

// FindAll returns every row of the table, shaped by opts.
func (a *Adapter) FindAll(ctx context.Context, table string, opts *QueryOptions) ([]rowan.Row, error) {
	return a.selectBuilder(table, opts).All(ctx)
}

// FindBy returns the rows matching the ANDed equality conditions.
func (a *Adapter) FindBy(ctx context.Context, table string, conditions map[string]any, opts *QueryOptions) ([]rowan.Row, error) {
	b := a.selectBuilder(table, opts)
	b.WhereMap(conditions)
	return b.All(ctx)
}

// FindOneBy returns the first row matching the conditions, or nil when
// none does. The query always runs with LIMIT 1.
func (a *Adapter) FindOneBy(ctx context.Context, table string, conditions map[string]any, opts *QueryOptions) (rowan.Row, error) {
	b := a.selectBuilder(table, opts)
	b.WhereMap(conditions)
	return b.One(ctx)
}

// FindByID returns the row with the given primary key value, or nil when
// it does not exist.
func (a *Adapter) FindByID(ctx context.Context, table, idColumn string, id any) (rowan.Row, error) {
	b := a.QueryBuilder().From(table)
	b.WhereCond(EQ(idColumn, id))
	return b.One(ctx)
}

// FindWithJoin returns rows joined to related tables. Equivalent to
// FindAll with opts.Joins set; kept as a named operation because callers
// usually branch on whether joins are present.
func (a *Adapter) FindWithJoin(ctx context.Context, table string, joins []Join, opts *QueryOptions) ([]rowan.Row, error) {
	b := a.selectBuilder(table, opts)
	for _, j := range joins {
		b.Join(j.Type, j.Table, j.Alias, j.On, j.Args...)
	}
	return b.All(ctx)
}

// FindOneWithJoin is FindWithJoin limited to a single row; nil when no
// row matches.
func (a *Adapter) FindOneWithJoin(ctx context.Context, table string, joins []Join, opts *QueryOptions) (rowan.Row, error) {
	b := a.selectBuilder(table, opts)
	for _, j := range joins {
		b.Join(j.Type, j.Table, j.Alias, j.On, j.Args...)
	}
	return b.One(ctx)
}

// Count returns the number of rows matching the conditions.
func (a *Adapter) Count(ctx context.Context, table string, conditions map[string]any) (int64, error) {
	b := a.QueryBuilder().AddSelectExpr("COUNT(*) AS count").From(table)
	b.WhereMap(conditions)
	row, err := b.One(ctx)
	if err != nil {
		return 0, err
	}
	if row == nil {
		return 0, nil
	}
	return toInt64(row["count"])
}

// Exists reports whether any row matches the conditions.
func (a *Adapter) Exists(ctx context.Context, table string, conditions map[string]any) (bool, error) {
	n, err := a.Count(ctx, table, conditions)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Insert writes one row from the value map, keys sorted.
func (a *Adapter) Insert(ctx context.Context, table string, values map[string]any) (*ExecResult, error) {
	return a.InsertBuilder(table).SetMap(values).Exec(ctx)
}

// BulkInsert writes all rows in a single statement. Every row must carry
// exactly the keys of the first; an empty slice is a no-op.
func (a *Adapter) BulkInsert(ctx context.Context, table string, rows []map[string]any) (*ExecResult, error) {
	if len(rows) == 0 {
		return &ExecResult{}, nil
	}
	cols := make([]string, 0, len(rows[0]))
	for k := range rows[0] {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	b := a.InsertBuilder(table).Columns(cols...)
	for i, row := range rows {
		if len(row) != len(cols) {
			return nil, rowan.NewConfigurationError("insert", "row %d has %d columns, want %d", i, len(row), len(cols))
		}
		vals := make([]any, len(cols))
		for j, c := range cols {
			v, ok := row[c]
			if !ok {
				return nil, rowan.NewConfigurationError("insert", "row %d is missing column %q", i, c)
			}
			vals[j] = v
		}
		b.Values(vals...)
	}
	return b.Exec(ctx)
}

// Update sets the given values on the row with the given primary key.
func (a *Adapter) Update(ctx context.Context, table, idColumn string, id any, values map[string]any) (*ExecResult, error) {
	b := a.UpdateBuilder(table).SetMap(values)
	b.WhereCond(EQ(idColumn, id))
	return b.Exec(ctx)
}

// UpdateBy sets the given values on every row matching the conditions.
// Empty conditions update the whole table.
func (a *Adapter) UpdateBy(ctx context.Context, table string, values, conditions map[string]any) (*ExecResult, error) {
	b := a.UpdateBuilder(table).SetMap(values)
	b.WhereMap(conditions)
	return b.Exec(ctx)
}

// Delete removes the row with the given primary key.
func (a *Adapter) Delete(ctx context.Context, table, idColumn string, id any) (*ExecResult, error) {
	b := a.DeleteBuilder(table)
	b.WhereCond(EQ(idColumn, id))
	return b.Exec(ctx)
}

// DeleteBy removes every row matching the conditions. Empty conditions
// empty the whole table.
func (a *Adapter) DeleteBy(ctx context.Context, table string, conditions map[string]any) (*ExecResult, error) {
	b := a.DeleteBuilder(table)
	b.WhereMap(conditions)
	return b.Exec(ctx)
}

// aggregateFuncs is the closed set of aggregate functions accepted by
// Aggregate.
var aggregateFuncs = map[string]struct{}{
	"COUNT": {},
	"SUM":   {},
	"AVG":   {},
	"MIN":   {},
	"MAX":   {},
}

// AggregateExpr is one aggregate term: Function applied to Field,
// reported under Alias. Field * is allowed for COUNT only. An empty
// Alias derives one from the function and field, e.g. count, sum_price.
type AggregateExpr struct {
	Function string
	Field    string
	Alias    string
	Distinct bool
}

// AggregateOptions shapes an Aggregate call. GroupBy fields are always
// selected alongside the aggregate expressions so grouped results keep
// their keys.
type AggregateOptions struct {
	Functions  []AggregateExpr
	GroupBy    []string
	Conditions map[string]any
	Having     []Cond
	Order      []Order
	Limit      int
	Offset     int
}

// Aggregate runs aggregate functions over the table, optionally grouped.
// The function name must be one of COUNT, SUM, AVG, MIN and MAX.
func (a *Adapter) Aggregate(ctx context.Context, table string, opts AggregateOptions) ([]rowan.Row, error) {
	if len(opts.Functions) == 0 {
		return nil, rowan.NewConfigurationError("aggregate", "no aggregate functions given")
	}
	b := a.QueryBuilder().From(table)
	for _, f := range opts.GroupBy {
		b.AddSelect(f)
	}
	for _, expr := range opts.Functions {
		rendered, err := renderAggregate(expr)
		if err != nil {
			return nil, err
		}
		b.AddSelectExpr(rendered)
	}
	b.WhereMap(opts.Conditions)
	if len(opts.GroupBy) > 0 {
		b.GroupBy(opts.GroupBy...)
	}
	for _, c := range opts.Having {
		if c.err != nil {
			return nil, c.err
		}
		b.Having(c.clause, c.args...)
	}
	for _, o := range opts.Order {
		b.OrderBy(o.Field, o.Direction)
	}
	if opts.Limit > 0 {
		b.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		b.Offset(opts.Offset)
	}
	return b.All(ctx)
}

func renderAggregate(expr AggregateExpr) (string, error) {
	fn := strings.ToUpper(strings.TrimSpace(expr.Function))
	if _, ok := aggregateFuncs[fn]; !ok {
		return "", rowan.NewConfigurationError("aggregate", "unsupported aggregate function %q", expr.Function)
	}
	field := expr.Field
	switch {
	case field == "*":
		if fn != "COUNT" {
			return "", rowan.NewConfigurationError("aggregate", "%s requires a column, not *", fn)
		}
		if expr.Distinct {
			return "", rowan.NewConfigurationError("aggregate", "COUNT(DISTINCT *) is not valid")
		}
	case isValidIdentifier(field):
	default:
		return "", rowan.NewConfigurationError("aggregate", "invalid aggregate field %q", expr.Field)
	}
	alias := expr.Alias
	if alias == "" {
		alias = strings.ToLower(fn)
		if field != "*" {
			alias += "_" + strings.ReplaceAll(field, ".", "_")
		}
	}
	if !isValidIdentifier(alias) {
		return "", rowan.NewConfigurationError("aggregate", "invalid aggregate alias %q", expr.Alias)
	}
	arg := field
	if expr.Distinct {
		arg = "DISTINCT " + field
	}
	return fmt.Sprintf("%s(%s) AS %s", fn, arg, alias), nil
}

// toInt64 converts the driver's representation of an integer result.
func toInt64(v any) (int64, error) {
	switch v := v.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("dialect/sql: parse count %q: %w", v, err)
		}
		return n, nil
	case []byte:
		return toInt64(string(v))
	case nil:
		return 0, nil
	}
	return 0, fmt.Errorf("dialect/sql: unexpected count type %T", v)
}
