package sql

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rowandb/rowan"
	"github.com/rowandb/rowan/dialect"
)

// clauseItem is one WHERE/HAVING fragment with its connective and
// parameters.
type clauseItem struct {
	conn   string // "AND" or "OR"; ignored for the first clause
	clause string
	args   []any
}

// joinItem is one JOIN clause. Its parameters precede WHERE parameters in
// the final statement, matching render order.
type joinItem struct {
	op    string
	table string
	alias string
	on    string
	args  []any
}

// Builder assembles a SELECT statement. Identifiers passed to it (tables,
// aliases, order and group columns) are validated; values always travel as
// bound parameters, and the rendered placeholder count is asserted against
// the parameter count before execution. Builders are single-use and not
// safe for concurrent mutation.
type Builder struct {
	adapter  *Adapter
	table    string
	alias    string
	fields   []string
	distinct bool
	joins    []joinItem
	wheres   []clauseItem
	groups   []string
	havings  []clauseItem
	orders   []string
	limit    *int
	offset   *int
	errs     []error
}

// Select returns a builder with the given select list. Fields must be
// identifiers, qualified identifiers or stars; computed expressions go
// through AddSelectExpr.
func Select(fields ...string) *Builder {
	b := &Builder{}
	return b.Select(fields...)
}

// Select replaces the select list.
func (b *Builder) Select(fields ...string) *Builder {
	b.fields = b.fields[:0]
	return b.AddSelect(fields...)
}

// AddSelect appends fields to the select list.
func (b *Builder) AddSelect(fields ...string) *Builder {
	for _, f := range fields {
		if !isFieldRef(f) {
			b.AddError(rowan.NewConfigurationError("select", "invalid field %q", f))
			continue
		}
		b.fields = append(b.fields, f)
	}
	return b
}

// AddSelectAs appends field aliased as name to the select list.
func (b *Builder) AddSelectAs(field, name string) *Builder {
	if !isFieldRef(field) {
		b.AddError(rowan.NewConfigurationError("select", "invalid field %q", field))
		return b
	}
	if !isValidIdentifier(name) {
		b.AddError(rowan.NewConfigurationError("select", "invalid alias %q", name))
		return b
	}
	b.fields = append(b.fields, field+" AS "+name)
	return b
}

// AddSelectExpr appends a raw select expression, e.g. an aggregate call.
// The expression is caller-owned and is not validated.
func (b *Builder) AddSelectExpr(expr string) *Builder {
	b.fields = append(b.fields, expr)
	return b
}

// Distinct marks the query as SELECT DISTINCT.
func (b *Builder) Distinct() *Builder {
	b.distinct = true
	return b
}

// From sets the table.
func (b *Builder) From(table string) *Builder {
	if !isValidIdentifier(table) {
		b.AddError(rowan.NewConfigurationError("from", "invalid table %q", table))
		return b
	}
	b.table = table
	return b
}

// As sets the table alias.
func (b *Builder) As(alias string) *Builder {
	if !isValidIdentifier(alias) {
		b.AddError(rowan.NewConfigurationError("from", "invalid alias %q", alias))
		return b
	}
	b.alias = alias
	return b
}

// Join appends a join of the given type. The ON fragment may carry ?
// placeholders bound to args.
func (b *Builder) Join(joinType, table, alias, on string, args ...any) *Builder {
	op, ok := normalizeJoin(joinType)
	if !ok {
		b.AddError(rowan.NewConfigurationError("join", "invalid join type %q", joinType))
		return b
	}
	if !isValidIdentifier(table) {
		b.AddError(rowan.NewConfigurationError("join", "invalid table %q", table))
		return b
	}
	if alias != "" && !isValidIdentifier(alias) {
		b.AddError(rowan.NewConfigurationError("join", "invalid alias %q", alias))
		return b
	}
	if on == "" {
		b.AddError(rowan.NewConfigurationError("join", "join on %s without ON clause", table))
		return b
	}
	b.checkBind(on, args)
	b.joins = append(b.joins, joinItem{op: op, table: table, alias: alias, on: on, args: args})
	return b
}

// InnerJoin appends an INNER JOIN.
func (b *Builder) InnerJoin(table, alias, on string, args ...any) *Builder {
	return b.Join("INNER", table, alias, on, args...)
}

// LeftJoin appends a LEFT JOIN.
func (b *Builder) LeftJoin(table, alias, on string, args ...any) *Builder {
	return b.Join("LEFT", table, alias, on, args...)
}

func normalizeJoin(joinType string) (string, bool) {
	switch strings.ToUpper(strings.TrimSpace(joinType)) {
	case "", "INNER", "INNER JOIN", "JOIN":
		return "INNER JOIN", true
	case "LEFT", "LEFT JOIN", "LEFT OUTER JOIN":
		return "LEFT JOIN", true
	case "RIGHT", "RIGHT JOIN", "RIGHT OUTER JOIN":
		return "RIGHT JOIN", true
	case "CROSS", "CROSS JOIN":
		return "CROSS JOIN", true
	}
	return "", false
}

// Where appends a clause with AND.
func (b *Builder) Where(clause string, args ...any) *Builder {
	return b.appendWhere("AND", clause, args)
}

// AndWhere appends a clause with AND.
func (b *Builder) AndWhere(clause string, args ...any) *Builder {
	return b.appendWhere("AND", clause, args)
}

// OrWhere appends a clause with OR.
func (b *Builder) OrWhere(clause string, args ...any) *Builder {
	return b.appendWhere("OR", clause, args)
}

// WhereCond appends a predicate with AND.
func (b *Builder) WhereCond(c Cond) *Builder {
	return b.appendCond("AND", c)
}

// AndCond appends a predicate with AND.
func (b *Builder) AndCond(c Cond) *Builder {
	return b.appendCond("AND", c)
}

// OrCond appends a predicate with OR.
func (b *Builder) OrCond(c Cond) *Builder {
	return b.appendCond("OR", c)
}

// WhereMap appends equality conditions from the map, keys sorted.
func (b *Builder) WhereMap(m map[string]any) *Builder {
	if len(m) == 0 {
		return b
	}
	return b.appendCond("AND", MapCond(m))
}

func (b *Builder) appendCond(conn string, c Cond) *Builder {
	if c.err != nil {
		b.AddError(c.err)
		return b
	}
	if c.clause == "" {
		return b
	}
	b.wheres = append(b.wheres, clauseItem{conn: conn, clause: c.clause, args: c.args})
	return b
}

func (b *Builder) appendWhere(conn, clause string, args []any) *Builder {
	if clause == "" {
		b.AddError(rowan.NewConfigurationError("where", "empty clause"))
		return b
	}
	b.checkBind(clause, args)
	b.wheres = append(b.wheres, clauseItem{conn: conn, clause: clause, args: args})
	return b
}

// GroupBy appends grouping columns.
func (b *Builder) GroupBy(fields ...string) *Builder {
	for _, f := range fields {
		if !isValidIdentifier(f) {
			b.AddError(rowan.NewConfigurationError("group by", "invalid column %q", f))
			continue
		}
		b.groups = append(b.groups, f)
	}
	return b
}

// Having appends a HAVING clause with AND.
func (b *Builder) Having(clause string, args ...any) *Builder {
	if clause == "" {
		b.AddError(rowan.NewConfigurationError("having", "empty clause"))
		return b
	}
	b.checkBind(clause, args)
	b.havings = append(b.havings, clauseItem{conn: "AND", clause: clause, args: args})
	return b
}

// OrderBy appends an ordering. Direction is ASC, DESC or empty (ASC);
// anything else is rejected, it is the classic injection vector for
// caller-supplied sort fields.
func (b *Builder) OrderBy(field, direction string) *Builder {
	if !isValidIdentifier(field) {
		b.AddError(rowan.NewConfigurationError("order by", "invalid column %q", field))
		return b
	}
	dir := strings.ToUpper(strings.TrimSpace(direction))
	switch dir {
	case "":
		dir = "ASC"
	case "ASC", "DESC":
	default:
		b.AddError(rowan.NewConfigurationError("order by", "invalid direction %q", direction))
		return b
	}
	b.orders = append(b.orders, field+" "+dir)
	return b
}

// OrderAsc appends an ascending ordering.
func (b *Builder) OrderAsc(field string) *Builder { return b.OrderBy(field, "ASC") }

// OrderDesc appends a descending ordering.
func (b *Builder) OrderDesc(field string) *Builder { return b.OrderBy(field, "DESC") }

// Limit sets the row limit.
func (b *Builder) Limit(n int) *Builder {
	if n < 0 {
		b.AddError(rowan.NewConfigurationError("limit", "negative limit %d", n))
		return b
	}
	b.limit = &n
	return b
}

// Offset sets the row offset.
func (b *Builder) Offset(n int) *Builder {
	if n < 0 {
		b.AddError(rowan.NewConfigurationError("offset", "negative offset %d", n))
		return b
	}
	b.offset = &n
	return b
}

// AddError records an error to be reported by Err.
func (b *Builder) AddError(err error) *Builder {
	if err != nil {
		b.errs = append(b.errs, err)
	}
	return b
}

// Err returns the accumulated build errors, if any.
func (b *Builder) Err() error {
	return rowan.NewAggregateError(b.errs...)
}

// checkBind verifies the clause carries one ? per argument.
func (b *Builder) checkBind(clause string, args []any) {
	if n := strings.Count(clause, "?"); n != len(args) {
		b.AddError(rowan.NewBindError(clause, n, len(args)))
	}
}

// Query renders the statement with ? placeholders and its parameters in
// placeholder order: join parameters first, then where, then having.
func (b *Builder) Query() (string, []any) {
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString("SELECT ")
	if b.distinct {
		sb.WriteString("DISTINCT ")
	}
	if len(b.fields) == 0 {
		sb.WriteString("*")
	} else {
		sb.WriteString(strings.Join(b.fields, ", "))
	}
	sb.WriteString(" FROM ")
	sb.WriteString(b.table)
	if b.alias != "" {
		sb.WriteString(" AS ")
		sb.WriteString(b.alias)
	}
	for _, j := range b.joins {
		sb.WriteString(" ")
		sb.WriteString(j.op)
		sb.WriteString(" ")
		sb.WriteString(j.table)
		if j.alias != "" {
			sb.WriteString(" AS ")
			sb.WriteString(j.alias)
		}
		sb.WriteString(" ON ")
		sb.WriteString(j.on)
		args = append(args, j.args...)
	}
	args = renderClauses(&sb, " WHERE ", b.wheres, args)
	if len(b.groups) > 0 {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(b.groups, ", "))
	}
	args = renderClauses(&sb, " HAVING ", b.havings, args)
	if len(b.orders) > 0 {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(b.orders, ", "))
	}
	if b.limit != nil {
		sb.WriteString(" LIMIT ")
		sb.WriteString(strconv.Itoa(*b.limit))
	}
	if b.offset != nil {
		sb.WriteString(" OFFSET ")
		sb.WriteString(strconv.Itoa(*b.offset))
	}
	return sb.String(), args
}

func renderClauses(sb *strings.Builder, keyword string, items []clauseItem, args []any) []any {
	for i, c := range items {
		if i == 0 {
			sb.WriteString(keyword)
		} else {
			sb.WriteString(" ")
			sb.WriteString(c.conn)
			sb.WriteString(" ")
		}
		sb.WriteString("(")
		sb.WriteString(c.clause)
		sb.WriteString(")")
		args = append(args, c.args...)
	}
	return args
}

// verify re-checks the whole statement before execution: the rendered
// placeholder count must equal the parameter count, and no build errors
// may be pending. A failed statement is never sent to the database.
func (b *Builder) verify(query string, args []any) error {
	if err := b.Err(); err != nil {
		return err
	}
	if b.table == "" {
		return rowan.NewConfigurationError("from", "no table set")
	}
	if n := strings.Count(query, "?"); n != len(args) {
		return rowan.NewBindError(query, n, len(args))
	}
	return nil
}

// All executes the query through the bound adapter and returns all rows.
func (b *Builder) All(ctx context.Context) ([]rowan.Row, error) {
	query, args := b.Query()
	if err := b.verify(query, args); err != nil {
		return nil, err
	}
	if b.adapter == nil {
		return nil, errNotBound
	}
	return b.adapter.Query(ctx, query, args...)
}

// One executes the query limited to a single row. It returns nil when no
// row matches.
func (b *Builder) One(ctx context.Context) (rowan.Row, error) {
	b.Limit(1)
	rows, err := b.All(ctx)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

var errNotBound = fmt.Errorf("dialect/sql: builder is not bound to an adapter")

// InsertBuilder assembles an INSERT statement, optionally with a RETURNING
// clause on dialects that support it.
type InsertBuilder struct {
	adapter   *Adapter
	table     string
	columns   []string
	values    [][]any
	returning []string
	errs      []error
}

// Insert returns a builder for the given table.
func Insert(table string) *InsertBuilder {
	b := &InsertBuilder{}
	if !isValidIdentifier(table) {
		b.AddError(rowan.NewConfigurationError("insert", "invalid table %q", table))
		return b
	}
	b.table = table
	return b
}

// Columns sets the column list.
func (b *InsertBuilder) Columns(cols ...string) *InsertBuilder {
	for _, c := range cols {
		if !isValidIdentifier(c) {
			b.AddError(rowan.NewConfigurationError("insert", "invalid column %q", c))
			return b
		}
	}
	b.columns = cols
	return b
}

// Values appends one row of values. The count must match Columns.
func (b *InsertBuilder) Values(vs ...any) *InsertBuilder {
	if len(vs) != len(b.columns) {
		b.AddError(rowan.NewConfigurationError("insert", "%d values for %d columns", len(vs), len(b.columns)))
		return b
	}
	b.values = append(b.values, vs)
	return b
}

// SetMap sets columns and a single row of values from the map, keys
// sorted for deterministic SQL.
func (b *InsertBuilder) SetMap(m map[string]any) *InsertBuilder {
	if len(m) == 0 {
		b.AddError(rowan.NewConfigurationError("insert", "empty value map"))
		return b
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	vals := make([]any, len(keys))
	for i, k := range keys {
		vals[i] = m[k]
	}
	return b.Columns(keys...).Values(vals...)
}

// Returning sets the columns reported back by the insert.
func (b *InsertBuilder) Returning(cols ...string) *InsertBuilder {
	for _, c := range cols {
		if !isValidIdentifier(c) {
			b.AddError(rowan.NewConfigurationError("insert", "invalid returning column %q", c))
			return b
		}
	}
	b.returning = cols
	return b
}

// AddError records an error to be reported by Err.
func (b *InsertBuilder) AddError(err error) *InsertBuilder {
	if err != nil {
		b.errs = append(b.errs, err)
	}
	return b
}

// Err returns the accumulated build errors, if any.
func (b *InsertBuilder) Err() error {
	return rowan.NewAggregateError(b.errs...)
}

// Query renders the statement with ? placeholders.
func (b *InsertBuilder) Query() (string, []any) {
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString("INSERT INTO ")
	sb.WriteString(b.table)
	sb.WriteString(" (")
	sb.WriteString(strings.Join(b.columns, ", "))
	sb.WriteString(") VALUES ")
	for i, row := range b.values {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		sb.WriteString(dialect.Placeholders(len(row)))
		sb.WriteString(")")
		args = append(args, row...)
	}
	if len(b.returning) > 0 {
		sb.WriteString(" RETURNING ")
		sb.WriteString(strings.Join(b.returning, ", "))
	}
	return sb.String(), args
}

func (b *InsertBuilder) verify() error {
	if err := b.Err(); err != nil {
		return err
	}
	if b.table == "" {
		return rowan.NewConfigurationError("insert", "no table set")
	}
	if len(b.columns) == 0 || len(b.values) == 0 {
		return rowan.NewConfigurationError("insert", "no values to insert")
	}
	return nil
}

// Exec executes the insert through the bound adapter.
func (b *InsertBuilder) Exec(ctx context.Context) (*ExecResult, error) {
	if err := b.verify(); err != nil {
		return nil, err
	}
	if b.adapter == nil {
		return nil, errNotBound
	}
	query, args := b.Query()
	return b.adapter.Execute(ctx, query, args...)
}

// One executes the insert and returns the single row produced by the
// RETURNING clause.
func (b *InsertBuilder) One(ctx context.Context) (rowan.Row, error) {
	if err := b.verify(); err != nil {
		return nil, err
	}
	if b.adapter == nil {
		return nil, errNotBound
	}
	if len(b.returning) == 0 {
		return nil, rowan.NewConfigurationError("insert", "One requires a RETURNING clause")
	}
	query, args := b.Query()
	return b.adapter.QuerySingle(ctx, query, args...)
}

// UpdateBuilder assembles an UPDATE statement.
type UpdateBuilder struct {
	adapter *Adapter
	table   string
	columns []string
	values  []any
	wheres  []clauseItem
	errs    []error
}

// Update returns a builder for the given table.
func Update(table string) *UpdateBuilder {
	b := &UpdateBuilder{}
	if !isValidIdentifier(table) {
		b.AddError(rowan.NewConfigurationError("update", "invalid table %q", table))
		return b
	}
	b.table = table
	return b
}

// Set assigns a column value.
func (b *UpdateBuilder) Set(col string, v any) *UpdateBuilder {
	if !isValidIdentifier(col) {
		b.AddError(rowan.NewConfigurationError("update", "invalid column %q", col))
		return b
	}
	b.columns = append(b.columns, col)
	b.values = append(b.values, v)
	return b
}

// SetMap assigns column values from the map, keys sorted for
// deterministic SQL.
func (b *UpdateBuilder) SetMap(m map[string]any) *UpdateBuilder {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.Set(k, m[k])
	}
	return b
}

// Where appends a clause with AND.
func (b *UpdateBuilder) Where(clause string, args ...any) *UpdateBuilder {
	if clause == "" {
		b.AddError(rowan.NewConfigurationError("where", "empty clause"))
		return b
	}
	if n := strings.Count(clause, "?"); n != len(args) {
		b.AddError(rowan.NewBindError(clause, n, len(args)))
	}
	b.wheres = append(b.wheres, clauseItem{conn: "AND", clause: clause, args: args})
	return b
}

// WhereCond appends a predicate with AND.
func (b *UpdateBuilder) WhereCond(c Cond) *UpdateBuilder {
	if c.err != nil {
		b.AddError(c.err)
		return b
	}
	if c.clause == "" {
		return b
	}
	b.wheres = append(b.wheres, clauseItem{conn: "AND", clause: c.clause, args: c.args})
	return b
}

// WhereMap appends equality conditions from the map, keys sorted.
func (b *UpdateBuilder) WhereMap(m map[string]any) *UpdateBuilder {
	if len(m) == 0 {
		return b
	}
	return b.WhereCond(MapCond(m))
}

// AddError records an error to be reported by Err.
func (b *UpdateBuilder) AddError(err error) *UpdateBuilder {
	if err != nil {
		b.errs = append(b.errs, err)
	}
	return b
}

// Err returns the accumulated build errors, if any.
func (b *UpdateBuilder) Err() error {
	return rowan.NewAggregateError(b.errs...)
}

// Query renders the statement with ? placeholders. Assignment parameters
// precede condition parameters.
func (b *UpdateBuilder) Query() (string, []any) {
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString("UPDATE ")
	sb.WriteString(b.table)
	sb.WriteString(" SET ")
	for i, col := range b.columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(col)
		sb.WriteString(" = ?")
	}
	args = append(args, b.values...)
	args = renderClauses(&sb, " WHERE ", b.wheres, args)
	return sb.String(), args
}

// Exec executes the update through the bound adapter.
func (b *UpdateBuilder) Exec(ctx context.Context) (*ExecResult, error) {
	if err := b.Err(); err != nil {
		return nil, err
	}
	if b.table == "" {
		return nil, rowan.NewConfigurationError("update", "no table set")
	}
	if len(b.columns) == 0 {
		return nil, rowan.NewConfigurationError("update", "no values to set")
	}
	if b.adapter == nil {
		return nil, errNotBound
	}
	query, args := b.Query()
	return b.adapter.Execute(ctx, query, args...)
}

// DeleteBuilder assembles a DELETE statement.
type DeleteBuilder struct {
	adapter *Adapter
	table   string
	wheres  []clauseItem
	errs    []error
}

// Delete returns a builder for the given table.
func Delete(table string) *DeleteBuilder {
	b := &DeleteBuilder{}
	if !isValidIdentifier(table) {
		b.AddError(rowan.NewConfigurationError("delete", "invalid table %q", table))
		return b
	}
	b.table = table
	return b
}

// Where appends a clause with AND.
func (b *DeleteBuilder) Where(clause string, args ...any) *DeleteBuilder {
	if clause == "" {
		b.AddError(rowan.NewConfigurationError("where", "empty clause"))
		return b
	}
	if n := strings.Count(clause, "?"); n != len(args) {
		b.AddError(rowan.NewBindError(clause, n, len(args)))
	}
	b.wheres = append(b.wheres, clauseItem{conn: "AND", clause: clause, args: args})
	return b
}

// WhereCond appends a predicate with AND.
func (b *DeleteBuilder) WhereCond(c Cond) *DeleteBuilder {
	if c.err != nil {
		b.AddError(c.err)
		return b
	}
	if c.clause == "" {
		return b
	}
	b.wheres = append(b.wheres, clauseItem{conn: "AND", clause: c.clause, args: c.args})
	return b
}

// WhereMap appends equality conditions from the map, keys sorted.
func (b *DeleteBuilder) WhereMap(m map[string]any) *DeleteBuilder {
	if len(m) == 0 {
		return b
	}
	return b.WhereCond(MapCond(m))
}

// AddError records an error to be reported by Err.
func (b *DeleteBuilder) AddError(err error) *DeleteBuilder {
	if err != nil {
		b.errs = append(b.errs, err)
	}
	return b
}

// Err returns the accumulated build errors, if any.
func (b *DeleteBuilder) Err() error {
	return rowan.NewAggregateError(b.errs...)
}

// Query renders the statement with ? placeholders.
func (b *DeleteBuilder) Query() (string, []any) {
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString("DELETE FROM ")
	sb.WriteString(b.table)
	args = renderClauses(&sb, " WHERE ", b.wheres, args)
	return sb.String(), args
}

// Exec executes the delete through the bound adapter.
func (b *DeleteBuilder) Exec(ctx context.Context) (*ExecResult, error) {
	if err := b.Err(); err != nil {
		return nil, err
	}
	if b.table == "" {
		return nil, rowan.NewConfigurationError("delete", "no table set")
	}
	if b.adapter == nil {
		return nil, errNotBound
	}
	query, args := b.Query()
	return b.adapter.Execute(ctx, query, args...)
}

// isFieldRef reports whether s is a select-list field reference: an
// identifier, qualified identifier, * or alias.*.
func isFieldRef(s string) bool {
	if s == "*" {
		return true
	}
	if rest, ok := strings.CutSuffix(s, ".*"); ok {
		return isValidIdentifier(rest)
	}
	return isValidIdentifier(s)
}
