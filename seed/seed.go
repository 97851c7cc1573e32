// Package seed generates fake rows from entity configurations, for
// development databases and load tests.
package seed

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/rowandb/rowan"
	"github.com/rowandb/rowan/dao"
	"github.com/rowandb/rowan/dialect/sql"
	"github.com/rowandb/rowan/mapper"
	"github.com/rowandb/rowan/schema"
)

// Generator produces fake entities. Values derive from a seeded source
// and a per-generator sequence, so two generators with the same seed
// produce the same rows (random tokens excepted).
type Generator struct {
	rand *rand.Rand
	base time.Time
	seq  int
}

// Option configures a Generator.
type Option func(*Generator)

// WithSeed fixes the random source.
func WithSeed(seed uint64) Option {
	return func(g *Generator) {
		g.rand = rand.New(rand.NewPCG(seed, seed))
	}
}

// WithBaseTime fixes the reference time for datetime columns.
func WithBaseTime(t time.Time) Option {
	return func(g *Generator) { g.base = t }
}

// New returns a generator seeded from the clock.
func New(opts ...Option) *Generator {
	g := &Generator{
		rand: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		base: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Entity generates one fake entity for the configuration. Autoincrement
// primary keys and the soft delete marker stay unset so the row inserts
// as a fresh, live record.
func (g *Generator) Entity(cfg *schema.EntityConfig) rowan.Entity {
	g.seq++
	e := make(rowan.Entity, len(cfg.Columns))
	for _, col := range cfg.Columns {
		if col.PrimaryKey && col.AutoIncrement {
			continue
		}
		if cfg.SoftDelete != nil && col.Name == cfg.SoftDelete.Field {
			continue
		}
		e[col.Name] = g.value(col)
	}
	return e
}

// Entities generates n fake entities.
func (g *Generator) Entities(cfg *schema.EntityConfig, n int) []rowan.Entity {
	out := make([]rowan.Entity, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, g.Entity(cfg))
	}
	return out
}

func (g *Generator) value(col *schema.Column) any {
	switch col.Type {
	case schema.TypeInteger:
		return g.rand.Int64N(1000)
	case schema.TypeNumber:
		// Two decimal places, the usual shape of seeded prices.
		return float64(g.rand.Int64N(100000)) / 100
	case schema.TypeBoolean:
		return g.seq%2 == 0
	case schema.TypeDatetime:
		return g.base.Add(-time.Duration(g.seq) * time.Minute)
	case schema.TypeUUID:
		return uuid.NewString()
	case schema.TypeJSON:
		return map[string]any{"seq": g.seq, "n": g.rand.Int64N(100)}
	default:
		if col.Unique {
			return fmt.Sprintf("%s-%d", col.Name, g.seq)
		}
		return fmt.Sprintf("%s %d", col.Name, g.rand.Int64N(100))
	}
}

// Populate generates and inserts n rows through the DAO, returning the
// created entities with their assigned ids.
func (g *Generator) Populate(ctx context.Context, d *dao.DAO, n int) ([]rowan.Entity, error) {
	out := make([]rowan.Entity, 0, n)
	for _, e := range g.Entities(d.Config(), n) {
		created, err := d.Create(ctx, e)
		if err != nil {
			return out, fmt.Errorf("seed: inserting %s row: %w", d.Config().Name, err)
		}
		out = append(out, created)
	}
	return out, nil
}

// PopulateBulk writes n generated rows in one statement, bypassing the
// DAO pipeline. Hooks, timestamps and generated-key resolution do not
// apply; it trades them for speed on large fixtures.
func (g *Generator) PopulateBulk(ctx context.Context, a *sql.Adapter, cfg *schema.EntityConfig, n int) (int64, error) {
	m := mapper.New(cfg)
	rows := make([]map[string]any, 0, n)
	for _, e := range g.Entities(cfg, n) {
		rows = append(rows, m.ToPhysical(e))
	}
	res, err := a.BulkInsert(ctx, cfg.Table, rows)
	if err != nil {
		return 0, fmt.Errorf("seed: bulk inserting %s rows: %w", cfg.Name, err)
	}
	return res.RowsAffected, nil
}
