// Package computed evaluates derived entity properties in dependency
// order. Dependencies declared on a property are authoritative; for
// properties without a declaration the engine infers them by probing the
// implementation once with a recording field view. Cycles are detected at
// construction and their members are skipped during evaluation, so a
// misconfigured schema degrades to missing fields instead of recursing.
package computed

import (
	"fmt"
	"log/slog"
	"slices"
	"sort"

	"github.com/rowandb/rowan"
	"github.com/rowandb/rowan/schema"
)

// Engine evaluates the computed properties of one entity type. The
// evaluation order is fixed at construction; engines are safe for
// concurrent use.
type Engine struct {
	props  map[string]*schema.ComputedProperty
	deps   map[string][]string
	order  []string
	cycles [][]string
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New returns an engine over the given properties. Every property must
// carry an implementation; configurations loaded from files bind theirs
// with EntityConfig.BindComputed before the engine is built. Dependency
// inference and cycle detection run here, once.
func New(props []*schema.ComputedProperty, opts ...Option) (*Engine, error) {
	e := &Engine{
		props:  make(map[string]*schema.ComputedProperty, len(props)),
		deps:   make(map[string][]string, len(props)),
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(e)
	}
	for _, p := range props {
		if p.Compute == nil {
			return nil, rowan.NewConfigurationError(p.Name, "computed property has no implementation")
		}
		if _, dup := e.props[p.Name]; dup {
			return nil, rowan.NewConfigurationError(p.Name, "computed property declared twice")
		}
		e.props[p.Name] = p
	}
	for _, p := range e.props {
		e.deps[p.Name] = e.dependencies(p)
	}
	e.order, e.cycles = e.sort()
	for _, cycle := range e.cycles {
		e.logger.Warn("computed property cycle, members skipped", "cycle", cycle)
	}
	return e, nil
}

// dependencies returns the declared dependency list, or infers one by
// probing the implementation. The probe hands the implementation a
// recorder that notes every field read and yields nil values; a panic
// during the probe keeps the reads observed so far. Only direct Get
// calls on the function's parameter are observable, matching the
// best-effort contract of inference.
func (e *Engine) dependencies(p *schema.ComputedProperty) []string {
	if len(p.Dependencies) > 0 {
		return slices.Clone(p.Dependencies)
	}
	rec := &recorder{}
	func() {
		defer func() {
			if v := recover(); v != nil {
				e.logger.Debug("dependency probe panicked", "property", p.Name, "panic", v)
			}
		}()
		_, _ = p.Compute(rec)
	}()
	return rec.reads
}

// recorder is the probing FieldReader: it records field names in first
// read order and always returns nil.
type recorder struct {
	reads []string
}

func (r *recorder) Get(name string) any {
	if !slices.Contains(r.reads, name) {
		r.reads = append(r.reads, name)
	}
	return nil
}

// sort produces the evaluation order and the list of cycles. Only edges
// to other computed properties order the evaluation; dependencies on
// persisted fields are satisfied before the engine runs. Names are
// visited sorted so the order and the reported cycles are deterministic.
func (e *Engine) sort() (order []string, cycles [][]string) {
	names := make([]string, 0, len(e.props))
	for name := range e.props {
		names = append(names, name)
	}
	sort.Strings(names)

	const (
		white = iota // unvisited
		gray         // on the active path
		black        // done
	)
	state := make(map[string]int, len(names))
	cyclic := make(map[string]bool)
	var path []string

	var visit func(name string)
	visit = func(name string) {
		state[name] = gray
		path = append(path, name)
		for _, dep := range e.deps[name] {
			if _, ok := e.props[dep]; !ok {
				continue // persisted field
			}
			switch state[dep] {
			case white:
				visit(dep)
			case gray:
				// The cycle is the path segment from dep to name.
				start := slices.Index(path, dep)
				cycle := slices.Clone(path[start:])
				cycles = append(cycles, cycle)
				for _, member := range cycle {
					cyclic[member] = true
				}
			}
		}
		path = path[:len(path)-1]
		state[name] = black
		order = append(order, name)
	}
	for _, name := range names {
		if state[name] == white {
			visit(name)
		}
	}

	if len(cyclic) > 0 {
		acyclic := order[:0]
		for _, name := range order {
			if !cyclic[name] {
				acyclic = append(acyclic, name)
			}
		}
		order = acyclic
	}
	return order, cycles
}

// Order returns the property names in evaluation order. Cycle members
// are absent.
func (e *Engine) Order() []string {
	return slices.Clone(e.order)
}

// Cycles returns the dependency cycles found at construction, each as
// the ordered list of property names involved.
func (e *Engine) Cycles() [][]string {
	return e.cycles
}

// Dependencies returns the effective dependency list of the named
// property, declared or inferred.
func (e *Engine) Dependencies(name string) []string {
	return slices.Clone(e.deps[name])
}

// Evaluate computes every property directly on the entity, dependencies
// first, so later properties read earlier results by plain field access.
// A failing or panicking property is logged and left unset; its siblings
// still evaluate. Properties named in skip are not evaluated. Cycle
// members are never evaluated.
func (e *Engine) Evaluate(entity rowan.Entity, skip ...string) {
	if entity == nil {
		return
	}
	for _, name := range e.order {
		if slices.Contains(skip, name) {
			continue
		}
		v, err := e.eval(e.props[name], entity)
		if err != nil {
			e.logger.Warn("computed property failed", "property", name, "err", err)
			continue
		}
		entity[name] = v
	}
}

// EvaluateAll runs Evaluate over a batch with the order computed once.
func (e *Engine) EvaluateAll(entities []rowan.Entity, skip ...string) {
	for _, entity := range entities {
		e.Evaluate(entity, skip...)
	}
}

// eval runs one implementation, converting a panic into an error so a
// bad property cannot take down the request.
func (e *Engine) eval(p *schema.ComputedProperty, entity rowan.Entity) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = rowan.NewComputedError(p.Name, fmt.Errorf("panic: %v", r))
		}
	}()
	v, err = p.Compute(entity)
	if err != nil {
		return nil, rowan.NewComputedError(p.Name, err)
	}
	return v, nil
}
