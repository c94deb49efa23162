package prereq

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// pendingRelease is one acquired-but-not-yet-released resource. The provider
// name is kept for release failure diagnostics.
type pendingRelease struct {
	provider string
	release  func(context.Context) error
}

// scope is the mutable context of one resolution pass or one spawned
// lifetime: a per-level cache, the release stack for acquired resources, and
// an optional chain to the enclosing scope. Scopes are created by a
// [Resolver] and are never shared between logical resolutions.
type scope struct {
	id        string
	parent    *scope
	level     int
	providers map[reflect.Type]*Provider
	registry  *registry
	logger    *zap.Logger

	cache   map[reflect.Type]reflect.Value
	pending []pendingRelease
}

func newScope(parent *scope, level int, reg *registry, logger *zap.Logger) *scope {
	s := &scope{
		id:        uuid.NewString(),
		parent:    parent,
		level:     level,
		providers: reg.atLevel(level),
		registry:  reg,
		logger:    logger,
		cache:     make(map[reflect.Type]reflect.Value),
	}
	logger.Debug("scope opened", zap.String("scope", s.id), zap.Int("level", level))
	return s
}

// seed pre-populates the cache with constant values, keyed by their concrete
// type. Seeded types need no provider.
func (s *scope) seed(values []any) {
	for _, v := range values {
		s.cache[reflect.TypeOf(v)] = reflect.ValueOf(v)
	}
}

// get resolves a single type. The scope chain is walked outward: the first
// scope with a cached value or a visible provider wins, and a provider's
// dependencies are resolved against the scope that owns it, so a level-1
// provider's dependencies cache at level 1 no matter how deep the request
// originated.
func (s *scope) get(ctx context.Context, t reflect.Type) (reflect.Value, error) {
	owner, p, ok := s.find(t)
	if !ok {
		return reflect.Value{}, s.resolveError(t)
	}
	if p == nil {
		return owner.cache[t], nil
	}
	return owner.construct(ctx, t, p)
}

// find walks the chain outward and returns the scope that decides how t
// resolves: the first scope with a cached value (p is nil) or a visible
// provider. plan relies on find so the closure sees exactly what get and
// construct will see.
func (s *scope) find(t reflect.Type) (owner *scope, p *Provider, ok bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if _, hit := sc.cache[t]; hit {
			return sc, nil, true
		}
		if p, hit := sc.providers[t]; hit {
			return sc, p, true
		}
	}
	return nil, nil, false
}

// resolveError names the missing type and the requesting level,
// distinguishing a type that is registered but only deeper.
func (s *scope) resolveError(t reflect.Type) error {
	if levels := s.registry.levelsFor(t); len(levels) > 0 {
		return fmt.Errorf("%w: %s is registered at level %d, requested at level %d",
			ErrLevelUnreachable, t, levels[0], s.level)
	}
	return fmt.Errorf("%w: %s at level %d", ErrProviderNotFound, t, s.level)
}

// construct invokes p to produce t on this scope. A resource's release is
// recorded before the value is exposed, so a failure acquiring a later
// dependency cannot leak an earlier one.
func (s *scope) construct(ctx context.Context, t reflect.Type, p *Provider) (reflect.Value, error) {
	args := make([]reflect.Value, len(p.args))
	for i, at := range p.args {
		v, err := s.get(ctx, at)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("resolving %s for %s: %w", at, t, err)
		}
		args[i] = v
	}

	value, release, err := p.invoke(ctx, args)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("constructing %s: %w", t, err)
	}

	if release != nil {
		s.pending = append(s.pending, pendingRelease{provider: p.name, release: release})
	}

	if !p.neverCache && p.level == s.level {
		s.cache[t] = value
	}

	s.logger.Debug("provider invoked",
		zap.String("scope", s.id),
		zap.String("provider", p.name),
		zap.Stringer("type", t),
	)
	return value, nil
}

// cleanup releases every pending resource in reverse acquisition order. All
// releases run even if earlier ones fail or ctx is already cancelled; their
// errors are joined.
func (s *scope) cleanup(ctx context.Context) error {
	var errs []error
	for i := len(s.pending) - 1; i >= 0; i-- {
		pr := s.pending[i]
		if err := pr.release(ctx); err != nil {
			errs = append(errs, fmt.Errorf("releasing %s: %w", pr.provider, err))
		}
	}
	s.pending = s.pending[:0]

	s.logger.Debug("scope closed", zap.String("scope", s.id), zap.Int("level", s.level))
	return errors.Join(errs...)
}
