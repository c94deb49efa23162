package prereq

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync/atomic"

	"go.uber.org/zap"
)

// registry is the shared provider table, grouped by level then type. It is
// constructed once by [New], shared by pointer with every spawned resolver,
// and must not be written to after resolution begins.
type registry struct {
	levels map[int]map[reflect.Type]*Provider
}

func newRegistry() *registry {
	return &registry{levels: make(map[int]map[reflect.Type]*Provider)}
}

// add inserts p under every covered type at its level. The last writer for a
// (level, type) pair wins; replacing is a caller contract, not a merge.
func (g *registry) add(p *Provider) {
	table, ok := g.levels[p.level]
	if !ok {
		table = make(map[reflect.Type]*Provider)
		g.levels[p.level] = table
	}
	for _, t := range p.coverage {
		table[t] = p
	}
}

// atLevel returns the provider table for one level. A nil map is fine to
// read from, so missing levels need no special casing.
func (g *registry) atLevel(level int) map[reflect.Type]*Provider {
	return g.levels[level]
}

// levelsFor returns every level t is registered at, ascending. Used for the
// unreachable-level diagnostic.
func (g *registry) levelsFor(t reflect.Type) []int {
	var out []int
	for level, table := range g.levels {
		if _, ok := table[t]; ok {
			out = append(out, level)
		}
	}
	sort.Ints(out)
	return out
}

// Resolver is one nesting level of the dependency injector. It holds the
// shared provider registry and creates the scopes that do the actual work;
// a resolver itself carries no resolved values. Create the level-1 resolver
// with [New] and deeper ones with [Resolver.Spawn].
type Resolver struct {
	level    int
	registry *registry
	parent   *scope
	logger   *zap.Logger
	active   atomic.Bool
}

// Option configures a [Resolver] during [New].
type Option func(*Resolver)

// WithLogger sets the logger resolution events are reported to at debug
// level. The default is a nop logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// New creates a level-1 [Resolver] with an empty registry.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		level:    DefaultLevel,
		registry: newRegistry(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Level returns the resolver's nesting level.
func (r *Resolver) Level() int { return r.level }

// AddProviders registers providers into the shared registry, each under every
// type it covers at its declared level. Registrations are visible to all
// resolvers spawned from the same root. A later registration for the same
// (level, type) pair replaces the earlier one.
//
// Registration must complete before the first resolution; the registry is
// read-only after that.
func (r *Resolver) AddProviders(providers ...*Provider) {
	for _, p := range providers {
		r.registry.add(p)
		r.logger.Debug("provider registered",
			zap.String("provider", p.name),
			zap.Int("level", p.level),
			zap.Stringer("shape", p.shape),
		)
	}
}

// resolveConfig accumulates [ResolveOption] values.
type resolveConfig struct {
	seed []any
}

// ResolveOption configures one [Resolver.Spawn] or [Resolver.ResolveFor]
// call.
type ResolveOption func(*resolveConfig)

// Seed places constant values into the new scope's cache before resolution,
// keyed by their concrete type. Seeded types are served from the cache and
// need no registered provider; this is how externally supplied constants
// (a parsed request, a test double) enter a resolution.
func Seed(values ...any) ResolveOption {
	return func(c *resolveConfig) {
		c.seed = append(c.seed, values...)
	}
}

func (r *Resolver) newScope(opts []ResolveOption) *scope {
	var cfg resolveConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	s := newScope(r.parent, r.level, r.registry, r.logger)
	s.seed(cfg.seed)
	return s
}

// Spawn runs fn with a child resolver one level deeper. The child is backed
// by a fresh scope at the current level, chained to the current scope if one
// exists; every resource the child's resolutions acquire against that scope
// is released, in reverse acquisition order, when fn returns — on the error
// path and the panic path too.
//
// While fn runs the resolver's scope is lent out: calling Spawn or
// [Resolver.ResolveFor] on r again before fn returns fails with
// [ErrScopeActive].
func (r *Resolver) Spawn(ctx context.Context, fn func(context.Context, *Resolver) error, opts ...ResolveOption) (err error) {
	if !r.active.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: resolver at level %d", ErrScopeActive, r.level)
	}
	defer r.active.Store(false)

	sc := r.newScope(opts)
	defer func() {
		err = errors.Join(err, sc.cleanup(ctx))
	}()

	child := &Resolver{
		level:    r.level + 1,
		registry: r.registry,
		parent:   sc,
		logger:   r.logger,
	}
	err = fn(ctx, child)
	return err
}

// ResolveFor resolves the target function's parameters and invokes it. The
// target must be a non-variadic function returning nothing or an error; a
// context.Context first parameter receives ctx, and every other parameter is
// resolved by type through a fresh scope at the resolver's level.
//
// Construction order is planned up front (see [Resolver.Graph]) so a type
// shared by sibling parameters is constructed once per scope, and cycles are
// reported before any factory runs. Resources acquired during the call are
// released in reverse acquisition order after the target returns, regardless
// of how it returns.
func (r *Resolver) ResolveFor(ctx context.Context, target any, opts ...ResolveOption) (err error) {
	if r.active.Load() {
		return fmt.Errorf("%w: resolver at level %d", ErrScopeActive, r.level)
	}

	val := reflect.ValueOf(target)
	if !val.IsValid() || val.Kind() != reflect.Func {
		return fmt.Errorf("%w: target is %T", ErrNotAFunction, target)
	}

	typ := val.Type()
	if typ.IsVariadic() {
		return fmt.Errorf("%w: variadic target", ErrBadTarget)
	}
	if typ.NumOut() > 1 || (typ.NumOut() == 1 && typ.Out(0) != errType) {
		return fmt.Errorf("%w: target must return nothing or error", ErrBadTarget)
	}

	contextual := typ.NumIn() > 0 && typ.In(0) == ctxType
	required := make([]reflect.Type, 0, typ.NumIn())
	for i := 0; i < typ.NumIn(); i++ {
		if contextual && i == 0 {
			continue
		}
		if typ.In(i) == ctxType {
			return fmt.Errorf("%w: context.Context after parameter 0", ErrBadTarget)
		}
		required = append(required, typ.In(i))
	}

	sc := r.newScope(opts)
	defer func() {
		err = errors.Join(err, sc.cleanup(ctx))
	}()

	// Plan first: validates the closure, catches cycles, and yields the
	// construction order for cacheable types. Nothing is acquired yet if it
	// fails.
	order, err := sc.plan(required)
	if err != nil {
		return err
	}
	for _, step := range order {
		if step.provider.neverCache {
			// Never-cache providers run once per direct demand; a standalone
			// warm-up would add an invocation recursion never performs.
			continue
		}
		// Resolve on the owning scope so a type registered at several levels
		// warms exactly the construction this step planned.
		if _, err := step.owner.get(ctx, step.typ); err != nil {
			return err
		}
	}

	in := make([]reflect.Value, typ.NumIn())
	next := 0
	if contextual {
		in[0] = reflect.ValueOf(ctx)
		next = 1
	}
	for _, t := range required {
		v, err := sc.get(ctx, t)
		if err != nil {
			return err
		}
		in[next] = v
		next++
	}

	out := val.Call(in)
	if len(out) == 1 && !out[0].IsNil() {
		return out[0].Interface().(error)
	}
	return nil
}
