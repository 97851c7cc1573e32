// Package hook defines the extension points surrounding the data access
// operations. Hook kinds form a closed enum resolved by value, never by
// string dispatch, and handlers are injected capabilities: a nil handler
// leaves every operation unchanged.
package hook

import "context"

// Kind identifies one extension point. Before kinds receive and may
// transform the operation's input; After kinds receive and may transform
// its result.
type Kind int

const (
	BeforeFindAll Kind = iota
	AfterFindAll
	BeforeFindByID
	AfterFindByID
	BeforeFindBy
	AfterFindBy
	BeforeCreate
	AfterCreate
	BeforeUpdate
	AfterUpdate
	BeforeDelete
	AfterDelete
)

var kindNames = [...]string{
	BeforeFindAll:  "beforeFindAll",
	AfterFindAll:   "afterFindAll",
	BeforeFindByID: "beforeFindById",
	AfterFindByID:  "afterFindById",
	BeforeFindBy:   "beforeFindBy",
	AfterFindBy:    "afterFindBy",
	BeforeCreate:   "beforeCreate",
	AfterCreate:    "afterCreate",
	BeforeUpdate:   "beforeUpdate",
	AfterUpdate:    "afterUpdate",
	BeforeDelete:   "beforeDelete",
	AfterDelete:    "afterDelete",
}

// String returns the hook name.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// Before reports whether the kind runs before its operation.
func (k Kind) Before() bool { return k%2 == 0 }

// Context carries the operation's metadata into a handler.
type Context struct {
	// Entity is the entity name the operation runs against.
	Entity string
	// Op is the data access operation, e.g. "create".
	Op string
	// ID is the primary key for by-id operations, nil otherwise.
	ID any
	// Filters is the logical filter map for filtered operations.
	Filters map[string]any
}

// Handler receives hook invocations. ExecuteHook returns the value the
// operation continues with: return v unchanged for observe-only hooks.
// Handlers run synchronously; a before-hook error aborts the operation.
type Handler interface {
	ExecuteHook(ctx context.Context, kind Kind, v any, hctx *Context) (any, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, kind Kind, v any, hctx *Context) (any, error)

// ExecuteHook calls f.
func (f HandlerFunc) ExecuteHook(ctx context.Context, kind Kind, v any, hctx *Context) (any, error) {
	return f(ctx, kind, v, hctx)
}

// Chain composes handlers into one that runs them in order, feeding each
// the previous handler's value. The first error stops the chain.
func Chain(handlers ...Handler) Handler {
	return HandlerFunc(func(ctx context.Context, kind Kind, v any, hctx *Context) (any, error) {
		var err error
		for _, h := range handlers {
			if h == nil {
				continue
			}
			v, err = h.ExecuteHook(ctx, kind, v, hctx)
			if err != nil {
				return nil, err
			}
		}
		return v, nil
	})
}

// On returns a handler that invokes h for one kind only and passes every
// other kind through.
func On(kind Kind, h Handler) Handler {
	return HandlerFunc(func(ctx context.Context, k Kind, v any, hctx *Context) (any, error) {
		if k != kind {
			return v, nil
		}
		return h.ExecuteHook(ctx, k, v, hctx)
	})
}
