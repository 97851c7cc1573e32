// Package dao composes the query builder, entity mapper, relation
// resolver and computed property engine into the data access façade for
// one configured entity. Every operation follows the same pipeline:
// before-hook, logical to physical translation, SQL execution, physical
// to logical mapping, computed properties, after-hook.
package dao

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rowandb/rowan"
	"github.com/rowandb/rowan/cache"
	"github.com/rowandb/rowan/computed"
	"github.com/rowandb/rowan/dialect/sql"
	"github.com/rowandb/rowan/dialect/sql/sqlgraph"
	"github.com/rowandb/rowan/hook"
	"github.com/rowandb/rowan/mapper"
	"github.com/rowandb/rowan/schema"
)

// DAO is the data access object for one entity type over one adapter.
// The adapter's transaction scoping applies unchanged: running DAO
// operations inside Adapter.Transaction routes them through the open
// transaction.
type DAO struct {
	cfg      *schema.EntityConfig
	adapter  *sql.Adapter
	mapper   *mapper.Mapper
	resolver *sqlgraph.Resolver
	engine   *computed.Engine
	hooks    hook.Handler
	store    *cache.Store
	logger   *slog.Logger
	clock    func() time.Time
}

// Option configures a DAO.
type Option func(*DAO)

// WithHooks injects the hook handler. A nil handler leaves operations
// unchanged.
func WithHooks(h hook.Handler) Option {
	return func(d *DAO) { d.hooks = h }
}

// WithLogger sets the DAO's logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(d *DAO) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithCache enables read-through caching on the single-entity read paths.
// Any mutation through the DAO invalidates the entity's entries.
func WithCache(s *cache.Store) Option {
	return func(d *DAO) { d.store = s }
}

// WithClock replaces the timestamp source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(d *DAO) {
		if clock != nil {
			d.clock = clock
		}
	}
}

// New returns a DAO for the named entity. The entity and every relation
// target must be registered, and all computed properties must have bound
// implementations.
func New(a *sql.Adapter, reg *schema.Registry, entity string, opts ...Option) (*DAO, error) {
	cfg, err := reg.Lookup(entity)
	if err != nil {
		return nil, err
	}
	d := &DAO{
		cfg:      cfg,
		adapter:  a,
		mapper:   mapper.New(cfg),
		resolver: sqlgraph.NewResolver(reg),
		logger:   slog.New(slog.DiscardHandler),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.engine, err = computed.New(cfg.Computed, computed.WithLogger(d.logger))
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Config returns the entity configuration.
func (d *DAO) Config() *schema.EntityConfig { return d.cfg }

// Adapter returns the underlying adapter.
func (d *DAO) Adapter() *sql.Adapter { return d.adapter }

// Order is one logical ordering term. Direction is ASC, DESC or empty.
type Order struct {
	Field     string
	Direction string
}

// FindOptions shapes the read operations. Fields and Order use logical
// names; the zero value selects all columns in declaration order.
type FindOptions struct {
	// Fields restricts the select list to the named logical fields.
	Fields []string
	// Relations joins the named configured relations. Joined columns are
	// reachable through qualified Fields, e.g. "category.name".
	Relations []sqlgraph.Rel
	Order     []Order
	Limit     int
	Offset    int
	// WithoutDeleted excludes soft-deleted rows. By default read paths
	// return them, matching the delete-path-only soft delete contract.
	WithoutDeleted bool
	// SkipComputed excludes the named computed properties from the run.
	SkipComputed []string
}

// FindAll returns every entity, shaped by opts.
func (d *DAO) FindAll(ctx context.Context, opts *FindOptions) ([]rowan.Entity, error) {
	opts, err := d.beforeFind(ctx, hook.BeforeFindAll, opts, &hook.Context{Entity: d.cfg.Name, Op: "findAll"})
	if err != nil {
		return nil, err
	}
	entities, err := d.findMany(ctx, "findAll", nil, opts)
	if err != nil {
		return nil, err
	}
	return d.afterFindMany(ctx, hook.AfterFindAll, entities, &hook.Context{Entity: d.cfg.Name, Op: "findAll"})
}

// FindBy returns the entities matching the ANDed logical filters.
func (d *DAO) FindBy(ctx context.Context, filters map[string]any, opts *FindOptions) ([]rowan.Entity, error) {
	hctx := &hook.Context{Entity: d.cfg.Name, Op: "findBy", Filters: filters}
	opts, err := d.beforeFind(ctx, hook.BeforeFindBy, opts, hctx)
	if err != nil {
		return nil, err
	}
	entities, err := d.findMany(ctx, "findBy", filters, opts)
	if err != nil {
		return nil, err
	}
	return d.afterFindMany(ctx, hook.AfterFindBy, entities, hctx)
}

// FindOne returns the first entity matching the filters, or nil when
// none does. The query always runs with limit 1.
func (d *DAO) FindOne(ctx context.Context, filters map[string]any, opts *FindOptions) (rowan.Entity, error) {
	if opts == nil {
		opts = &FindOptions{}
	}
	limited := *opts
	limited.Limit = 1
	entities, err := d.FindBy(ctx, filters, &limited)
	if err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		return nil, nil
	}
	return entities[0], nil
}

// FindByID returns the entity with the given primary key. A missing row
// is a NotFoundError.
func (d *DAO) FindByID(ctx context.Context, id any, opts *FindOptions) (rowan.Entity, error) {
	idCol, err := d.cfg.IDColumn()
	if err != nil {
		return nil, err
	}
	hctx := &hook.Context{Entity: d.cfg.Name, Op: "findById", ID: id}
	if v, err := d.runBefore(ctx, hook.BeforeFindByID, id, hctx); err != nil {
		return nil, err
	} else if v != nil {
		id = v
	}
	entities, err := d.findMany(ctx, "findById", map[string]any{idCol.Name: id}, limitOne(opts))
	if err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		return nil, rowan.NewNotFoundErrorWithID(d.cfg.Name, id)
	}
	out, err := d.runAfter(ctx, hook.AfterFindByID, entities[0], hctx)
	if err != nil {
		return nil, err
	}
	if e, ok := out.(rowan.Entity); ok {
		return e, nil
	}
	return entities[0], nil
}

func limitOne(opts *FindOptions) *FindOptions {
	if opts == nil {
		return &FindOptions{Limit: 1}
	}
	limited := *opts
	limited.Limit = 1
	return &limited
}

// findMany builds, executes and maps one select. It is the shared read
// path under the hooks.
func (d *DAO) findMany(ctx context.Context, op string, filters map[string]any, opts *FindOptions) ([]rowan.Entity, error) {
	b, err := d.buildSelect(filters, opts)
	if err != nil {
		return nil, err
	}
	fetch := func() ([]rowan.Entity, error) {
		rows, err := b.All(ctx)
		if err != nil {
			return nil, rowan.NewQueryError(d.cfg.Name, op, err)
		}
		entities := d.mapper.ToEntities(rows)
		var skip []string
		if opts != nil {
			skip = opts.SkipComputed
		}
		d.engine.EvaluateAll(entities, skip...)
		return entities, nil
	}
	if d.store == nil {
		return fetch()
	}
	query, args := b.Query()
	key := cache.Key(d.cfg.Name, op, query, fmt.Sprint(args...))
	var entities []rowan.Entity
	err = d.store.Do(key, &entities, func() (any, error) { return fetch() })
	return entities, err
}

// buildSelect translates logical filters and options into a bound
// builder. With relations requested the base table doubles as the source
// alias and its columns are selected qualified, so joined columns never
// shadow them.
func (d *DAO) buildSelect(filters map[string]any, opts *FindOptions) (*sql.Builder, error) {
	b := d.adapter.QueryBuilder().From(d.cfg.Table)
	joined := opts != nil && len(opts.Relations) > 0
	if joined {
		b.Select(d.cfg.Table + ".*")
		if err := d.resolver.Resolve(b, d.cfg.Name, d.cfg.Table, opts.Relations); err != nil {
			return nil, err
		}
	}
	if opts != nil && len(opts.Fields) > 0 {
		fields := make([]string, len(opts.Fields))
		for i, f := range opts.Fields {
			physical, err := d.fieldRef(f, joined)
			if err != nil {
				return nil, err
			}
			fields[i] = physical
		}
		b.Select(fields...)
	}
	if len(filters) > 0 {
		translated, err := d.translateFilters(filters, joined)
		if err != nil {
			return nil, err
		}
		b.WhereMap(translated)
	}
	if opts != nil && opts.WithoutDeleted && d.cfg.SoftDelete != nil {
		col := d.cfg.Column(d.cfg.SoftDelete.Field)
		ref := d.qualify(col.Physical(), joined)
		b.WhereCond(sql.Or(sql.IsNull(ref), sql.NEQ(ref, d.cfg.SoftDelete.SentinelValue())))
	}
	if opts != nil {
		for _, o := range opts.Order {
			physical, err := d.fieldRef(o.Field, joined)
			if err != nil {
				return nil, err
			}
			b.OrderBy(physical, o.Direction)
		}
		if opts.Limit > 0 {
			b.Limit(opts.Limit)
		}
		if opts.Offset > 0 {
			b.Offset(opts.Offset)
		}
	}
	return b, nil
}

// fieldRef resolves a logical field reference. Qualified names such as
// "category.name" address joined relations and pass through as written.
func (d *DAO) fieldRef(f string, joined bool) (string, error) {
	if joined {
		for i := range f {
			if f[i] == '.' {
				return f, nil
			}
		}
	}
	col := d.cfg.Column(f)
	if col == nil {
		return "", rowan.NewConfigurationError(d.cfg.Name, "unknown field %q", f)
	}
	return d.qualify(col.Physical(), joined), nil
}

func (d *DAO) qualify(physical string, joined bool) string {
	if joined {
		return d.cfg.Table + "." + physical
	}
	return physical
}

// translateFilters maps logical filter fields to physical columns and
// coerces scalar values to the declared types. Unknown fields fail fast;
// silently dropping a filter would widen the result set.
func (d *DAO) translateFilters(filters map[string]any, joined bool) (map[string]any, error) {
	out := make(map[string]any, len(filters))
	for name, v := range filters {
		col := d.cfg.Column(name)
		if col == nil {
			return nil, rowan.NewConfigurationError(d.cfg.Name, "unknown filter field %q", name)
		}
		out[d.qualify(col.Physical(), joined)] = filterValue(v, col.Type)
	}
	return out, nil
}

// filterValue prepares one filter value for binding. Slices keep their
// shape for IN rendering; nil stays nil for IS NULL.
func filterValue(v any, t schema.FieldType) any {
	switch v.(type) {
	case nil, []any, []string, []int, []int64, []float64:
		return v
	}
	return mapper.CoerceValue(v, t)
}

// Count returns the number of entities matching the logical filters.
func (d *DAO) Count(ctx context.Context, filters map[string]any) (int64, error) {
	translated, err := d.translateFilters(filters, false)
	if err != nil {
		return 0, err
	}
	n, err := d.adapter.Count(ctx, d.cfg.Table, translated)
	if err != nil {
		return 0, rowan.NewQueryError(d.cfg.Name, "count", err)
	}
	return n, nil
}

// Exists reports whether any entity matches the logical filters.
func (d *DAO) Exists(ctx context.Context, filters map[string]any) (bool, error) {
	n, err := d.Count(ctx, filters)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Aggregate runs aggregate functions with logical field and group names.
func (d *DAO) Aggregate(ctx context.Context, opts sql.AggregateOptions) ([]rowan.Row, error) {
	translated := opts
	translated.Functions = make([]sql.AggregateExpr, len(opts.Functions))
	for i, expr := range opts.Functions {
		if expr.Field != "" && expr.Field != "*" {
			col := d.cfg.Column(expr.Field)
			if col == nil {
				return nil, rowan.NewConfigurationError(d.cfg.Name, "unknown aggregate field %q", expr.Field)
			}
			expr.Field = col.Physical()
		}
		translated.Functions[i] = expr
	}
	translated.GroupBy = make([]string, len(opts.GroupBy))
	for i, f := range opts.GroupBy {
		col := d.cfg.Column(f)
		if col == nil {
			return nil, rowan.NewConfigurationError(d.cfg.Name, "unknown group field %q", f)
		}
		translated.GroupBy[i] = col.Physical()
	}
	if len(opts.Conditions) > 0 {
		conditions, err := d.translateFilters(opts.Conditions, false)
		if err != nil {
			return nil, err
		}
		translated.Conditions = conditions
	}
	return d.adapter.Aggregate(ctx, d.cfg.Table, translated)
}

// Create inserts one entity and returns it as stored, with generated
// keys, configured timestamps and computed properties materialized.
func (d *DAO) Create(ctx context.Context, entity rowan.Entity) (rowan.Entity, error) {
	hctx := &hook.Context{Entity: d.cfg.Name, Op: "create"}
	if v, err := d.runBefore(ctx, hook.BeforeCreate, entity, hctx); err != nil {
		return nil, err
	} else if e, ok := v.(rowan.Entity); ok {
		entity = e
	}
	entity = entity.Clone()
	now := d.clock()
	if ts := d.cfg.Timestamps; ts != nil {
		if ts.CreatedAt != "" && !entity.Has(ts.CreatedAt) {
			entity[ts.CreatedAt] = now
		}
		if ts.UpdatedAt != "" && !entity.Has(ts.UpdatedAt) {
			entity[ts.UpdatedAt] = now
		}
	}
	row := d.mapper.ToPhysical(entity)
	if len(row) == 0 {
		return nil, rowan.NewConfigurationError(d.cfg.Name, "create with no mapped fields")
	}

	idCol, idErr := d.cfg.IDColumn()
	if idErr == nil && idCol.AutoIncrement {
		delete(row, idCol.Physical())
	}
	id, err := d.insert(ctx, row, idCol, idErr == nil)
	if err != nil {
		return nil, rowan.NewMutationError(d.cfg.Name, "create", err)
	}
	d.invalidate()

	var created rowan.Entity
	if idErr == nil {
		created, err = d.readOne(ctx, map[string]any{idCol.Physical(): id})
		if err != nil {
			return nil, err
		}
	}
	if created == nil {
		// Composite keys have no single id to re-read by; hand back the
		// written entity instead.
		created = entity.Clone()
		d.engine.Evaluate(created)
	}
	out, err := d.runAfter(ctx, hook.AfterCreate, created, hctx)
	if err != nil {
		return nil, err
	}
	if e, ok := out.(rowan.Entity); ok {
		return e, nil
	}
	return created, nil
}

// insert writes the row and resolves the stored primary key value:
// the supplied value when present, RETURNING on dialects that support
// it, the driver's last insert id otherwise.
func (d *DAO) insert(ctx context.Context, row rowan.Row, idCol *schema.Column, singleID bool) (any, error) {
	if singleID {
		if v, ok := row[idCol.Physical()]; ok {
			_, err := d.adapter.Insert(ctx, d.cfg.Table, row)
			return v, err
		}
		if d.adapter.SupportsReturning() {
			returned, err := d.adapter.InsertBuilder(d.cfg.Table).
				SetMap(row).
				Returning(idCol.Physical()).
				One(ctx)
			if err != nil {
				return nil, err
			}
			return returned[idCol.Physical()], nil
		}
	}
	res, err := d.adapter.Insert(ctx, d.cfg.Table, row)
	if err != nil {
		return nil, err
	}
	return res.LastInsertID, nil
}

// Update applies the logical changes to the entity with the given id and
// returns the updated entity. A missing row is a NotFoundError.
func (d *DAO) Update(ctx context.Context, id any, changes rowan.Entity) (rowan.Entity, error) {
	idCol, err := d.cfg.IDColumn()
	if err != nil {
		return nil, err
	}
	hctx := &hook.Context{Entity: d.cfg.Name, Op: "update", ID: id}
	if v, err := d.runBefore(ctx, hook.BeforeUpdate, changes, hctx); err != nil {
		return nil, err
	} else if e, ok := v.(rowan.Entity); ok {
		changes = e
	}
	changes = d.stampUpdate(changes)
	row := d.mapper.ToPhysical(changes)
	delete(row, idCol.Physical())
	if len(row) == 0 {
		return nil, rowan.NewConfigurationError(d.cfg.Name, "update with no mapped fields")
	}
	res, err := d.adapter.Update(ctx, d.cfg.Table, idCol.Physical(), id, map[string]any(row))
	if err != nil {
		return nil, rowan.NewMutationError(d.cfg.Name, "update", err)
	}
	if res.RowsAffected == 0 {
		return nil, rowan.NewNotFoundErrorWithID(d.cfg.Name, id)
	}
	d.invalidate()
	updated, err := d.readOne(ctx, map[string]any{idCol.Physical(): id})
	if err != nil {
		return nil, err
	}
	out, err := d.runAfter(ctx, hook.AfterUpdate, updated, hctx)
	if err != nil {
		return nil, err
	}
	if e, ok := out.(rowan.Entity); ok {
		return e, nil
	}
	return updated, nil
}

// UpdateBy applies the logical changes to every entity matching the
// filters and returns the number of affected rows.
func (d *DAO) UpdateBy(ctx context.Context, changes rowan.Entity, filters map[string]any) (int64, error) {
	changes = d.stampUpdate(changes)
	row := d.mapper.ToPhysical(changes)
	if len(row) == 0 {
		return 0, rowan.NewConfigurationError(d.cfg.Name, "update with no mapped fields")
	}
	translated, err := d.translateFilters(filters, false)
	if err != nil {
		return 0, err
	}
	res, err := d.adapter.UpdateBy(ctx, d.cfg.Table, map[string]any(row), translated)
	if err != nil {
		return 0, rowan.NewMutationError(d.cfg.Name, "update", err)
	}
	d.invalidate()
	return res.RowsAffected, nil
}

func (d *DAO) stampUpdate(changes rowan.Entity) rowan.Entity {
	changes = changes.Clone()
	if changes == nil {
		changes = rowan.Entity{}
	}
	if ts := d.cfg.Timestamps; ts != nil && ts.UpdatedAt != "" && !changes.Has(ts.UpdatedAt) {
		changes[ts.UpdatedAt] = d.clock()
	}
	return changes
}

// Delete removes the entity with the given id. With soft delete
// configured the row stays and the marker column is set to the sentinel;
// otherwise the row is physically removed. A missing row is a
// NotFoundError either way.
func (d *DAO) Delete(ctx context.Context, id any) error {
	idCol, err := d.cfg.IDColumn()
	if err != nil {
		return err
	}
	hctx := &hook.Context{Entity: d.cfg.Name, Op: "delete", ID: id}
	if v, err := d.runBefore(ctx, hook.BeforeDelete, id, hctx); err != nil {
		return err
	} else if v != nil {
		id = v
	}
	var res *sql.ExecResult
	if sd := d.cfg.SoftDelete; sd != nil {
		marker := d.cfg.Column(sd.Field)
		res, err = d.adapter.Update(ctx, d.cfg.Table, idCol.Physical(), id,
			map[string]any{marker.Physical(): sd.SentinelValue()})
	} else {
		res, err = d.adapter.Delete(ctx, d.cfg.Table, idCol.Physical(), id)
	}
	if err != nil {
		return rowan.NewMutationError(d.cfg.Name, "delete", err)
	}
	if res.RowsAffected == 0 {
		return rowan.NewNotFoundErrorWithID(d.cfg.Name, id)
	}
	d.invalidate()
	_, err = d.runAfter(ctx, hook.AfterDelete, id, hctx)
	return err
}

// DeleteBy removes every entity matching the filters and returns the
// number of affected rows. Soft delete applies as in Delete.
func (d *DAO) DeleteBy(ctx context.Context, filters map[string]any) (int64, error) {
	translated, err := d.translateFilters(filters, false)
	if err != nil {
		return 0, err
	}
	var res *sql.ExecResult
	if sd := d.cfg.SoftDelete; sd != nil {
		marker := d.cfg.Column(sd.Field)
		res, err = d.adapter.UpdateBy(ctx, d.cfg.Table,
			map[string]any{marker.Physical(): sd.SentinelValue()}, translated)
	} else {
		res, err = d.adapter.DeleteBy(ctx, d.cfg.Table, translated)
	}
	if err != nil {
		return 0, rowan.NewMutationError(d.cfg.Name, "delete", err)
	}
	d.invalidate()
	return res.RowsAffected, nil
}

// AddRelation links source to target through the named many-to-many
// relation's junction table.
func (d *DAO) AddRelation(ctx context.Context, relation string, sourceID, targetID any) error {
	err := d.resolver.AddLink(ctx, d.adapter, d.cfg.Name, relation, sourceID, targetID)
	if err == nil {
		d.invalidate()
	}
	return err
}

// RemoveRelation unlinks source from target. Removing an absent link is
// a no-op reported by the false return.
func (d *DAO) RemoveRelation(ctx context.Context, relation string, sourceID, targetID any) (bool, error) {
	n, err := d.resolver.RemoveLink(ctx, d.adapter, d.cfg.Name, relation, sourceID, targetID)
	if err != nil {
		return false, err
	}
	if n > 0 {
		d.invalidate()
	}
	return n > 0, nil
}

// SetRelations replaces the membership set of the named many-to-many
// relation for one source entity.
func (d *DAO) SetRelations(ctx context.Context, relation string, sourceID any, targetIDs []any) error {
	err := d.resolver.SetLinks(ctx, d.adapter, d.cfg.Name, relation, sourceID, targetIDs)
	if err == nil {
		d.invalidate()
	}
	return err
}

// RelatedIDs returns the target ids linked through the named
// many-to-many relation.
func (d *DAO) RelatedIDs(ctx context.Context, relation string, sourceID any) ([]any, error) {
	return d.resolver.LinkedIDs(ctx, d.adapter, d.cfg.Name, relation, sourceID)
}

// readOne is the hook-free internal read used to materialize mutation
// results. Conditions are physical.
func (d *DAO) readOne(ctx context.Context, conditions map[string]any) (rowan.Entity, error) {
	row, err := d.adapter.FindOneBy(ctx, d.cfg.Table, conditions, nil)
	if err != nil {
		return nil, rowan.NewQueryError(d.cfg.Name, "read back", err)
	}
	if row == nil {
		return nil, nil
	}
	entity := d.mapper.ToEntity(row)
	d.engine.Evaluate(entity)
	return entity, nil
}

func (d *DAO) invalidate() {
	if d.store != nil {
		d.store.DeletePrefix(cache.Prefix(d.cfg.Name))
	}
}

// beforeFind runs a before-hook that may replace the find options.
func (d *DAO) beforeFind(ctx context.Context, kind hook.Kind, opts *FindOptions, hctx *hook.Context) (*FindOptions, error) {
	v, err := d.runBefore(ctx, kind, opts, hctx)
	if err != nil {
		return nil, err
	}
	if transformed, ok := v.(*FindOptions); ok {
		return transformed, nil
	}
	return opts, nil
}

// afterFindMany runs an after-hook that may replace the result set.
func (d *DAO) afterFindMany(ctx context.Context, kind hook.Kind, entities []rowan.Entity, hctx *hook.Context) ([]rowan.Entity, error) {
	v, err := d.runAfter(ctx, kind, entities, hctx)
	if err != nil {
		return nil, err
	}
	if transformed, ok := v.([]rowan.Entity); ok {
		return transformed, nil
	}
	return entities, nil
}

// runBefore invokes the handler for a before kind. Errors abort the
// operation: before-hooks own the request.
func (d *DAO) runBefore(ctx context.Context, kind hook.Kind, v any, hctx *hook.Context) (any, error) {
	if d.hooks == nil {
		return v, nil
	}
	out, err := d.hooks.ExecuteHook(ctx, kind, v, hctx)
	if err != nil {
		return nil, fmt.Errorf("dao: %s hook: %w", kind, err)
	}
	return out, nil
}

// runAfter invokes the handler for an after kind. After-hooks observe
// materialized results; their errors are logged, not propagated, so an
// observer cannot fail a completed operation.
func (d *DAO) runAfter(ctx context.Context, kind hook.Kind, v any, hctx *hook.Context) (any, error) {
	if d.hooks == nil {
		return v, nil
	}
	out, err := d.hooks.ExecuteHook(ctx, kind, v, hctx)
	if err != nil {
		d.logger.WarnContext(ctx, "after hook failed", "hook", kind.String(), "entity", d.cfg.Name, "err", err)
		return v, nil
	}
	return out, nil
}
