package prereq

import (
	"context"
	"fmt"
	"reflect"
	"runtime"
	"strings"
)

// shape tags the four factory forms a provider can be built from. Contextual
// factories take a context.Context as their first parameter; resource
// factories return a release function alongside the value.
type shape int

const (
	shapeValue shape = iota
	shapeValueCtx
	shapeResource
	shapeResourceCtx
)

func (s shape) String() string {
	switch s {
	case shapeValue:
		return "value"
	case shapeValueCtx:
		return "contextual value"
	case shapeResource:
		return "resource"
	case shapeResourceCtx:
		return "contextual resource"
	default:
		return "unknown"
	}
}

// Provider is a normalized factory: the types it covers, the types it needs,
// its level, its caching policy, and a uniform invocation wrapper. Providers
// are immutable once created; build them with [Provide] or [MustProvide] and
// hand them to [Resolver.AddProviders].
type Provider struct {
	factory    reflect.Value
	shape      shape
	coverage   []reflect.Type
	args       []reflect.Type
	level      int
	neverCache bool
	hasErr     bool
	name       string
}

// Level returns the scope level the provider is registered at.
func (p *Provider) Level() int { return p.level }

// Coverage returns the type tokens the provider satisfies.
func (p *Provider) Coverage() []reflect.Type {
	out := make([]reflect.Type, len(p.coverage))
	copy(out, p.coverage)
	return out
}

// String returns a short diagnostic description of the provider.
func (p *Provider) String() string {
	covered := make([]string, len(p.coverage))
	for i, t := range p.coverage {
		covered[i] = t.String()
	}
	return fmt.Sprintf("%s (%s, level %d) -> %s", p.name, p.shape, p.level, strings.Join(covered, ", "))
}

// providerConfig accumulates [ProviderOption] values before validation.
type providerConfig struct {
	level      any
	coverage   []reflect.Type
	as         []reflect.Type
	neverCache bool
}

// ProviderOption configures a provider during [Provide].
type ProviderOption func(*providerConfig)

// AtLevel sets the provider's scope level. The default is [DefaultLevel].
// Accepts a plain int or any named integer type; anything else fails
// [Provide] with [ErrBadLevel].
func AtLevel(level any) ProviderOption {
	return func(c *providerConfig) {
		c.level = level
	}
}

// As declares that the provider also covers the interface I. The factory's
// return type must implement I; this is checked during [Provide], before the
// factory ever runs.
func As[I any]() ProviderOption {
	return func(c *providerConfig) {
		c.as = append(c.as, TypeOf[I]())
	}
}

// Covers replaces the inferred coverage with an explicit token list. The
// factory's return type must be assignable to every token.
func Covers(tokens ...reflect.Type) ProviderOption {
	return func(c *providerConfig) {
		c.coverage = append(c.coverage, tokens...)
	}
}

// NeverCache disables caching for the provider: the factory runs once per
// direct request, even within a single scope.
func NeverCache() ProviderOption {
	return func(c *providerConfig) {
		c.neverCache = true
	}
}

// Provide normalizes a factory function into a [Provider]. Four factory
// shapes are accepted, each optionally taking a context.Context as its first
// parameter:
//
//	func(deps...) T
//	func(deps...) (T, error)
//	func(deps...) (T, ReleaseFunc, error)
//	func(ctx context.Context, deps...) (T, error)
//
// where ReleaseFunc is one of func(), func() error, or
// func(context.Context) error. A factory returning a release function is a
// resource provider: the scope that invokes it records the release and runs
// it, in reverse acquisition order, when the scope ends.
//
// All remaining parameters are dependencies, resolved by type at invocation
// time. Coverage defaults to the factory's return type; add interface
// coverage with [As] or replace it with [Covers].
//
// Provide validates the full declaration and never calls the factory.
func Provide(factory any, opts ...ProviderOption) (*Provider, error) {
	val := reflect.ValueOf(factory)
	if !val.IsValid() || val.Kind() != reflect.Func {
		return nil, fmt.Errorf("%w: factory is %T", ErrNotAFunction, factory)
	}

	typ := val.Type()
	name := factoryName(val)

	if typ.IsVariadic() {
		return nil, fmt.Errorf("%w: %s is variadic", ErrBadFactory, name)
	}

	contextual := typ.NumIn() > 0 && typ.In(0) == ctxType

	args := make([]reflect.Type, 0, typ.NumIn())
	for i := 0; i < typ.NumIn(); i++ {
		if contextual && i == 0 {
			continue
		}
		if typ.In(i) == ctxType {
			return nil, fmt.Errorf("%w: %s takes context.Context after parameter 0", ErrBadFactory, name)
		}
		args = append(args, typ.In(i))
	}

	out, release, hasErr, err := splitReturns(typ, name)
	if err != nil {
		return nil, err
	}

	sh := shapeValue
	switch {
	case release && contextual:
		sh = shapeResourceCtx
	case release:
		sh = shapeResource
	case contextual:
		sh = shapeValueCtx
	}

	cfg := providerConfig{level: DefaultLevel}
	for _, opt := range opts {
		opt(&cfg)
	}

	level, err := levelOf(cfg.level)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	coverage, err := resolveCoverage(out, cfg, name)
	if err != nil {
		return nil, err
	}

	return &Provider{
		factory:    val,
		shape:      sh,
		coverage:   coverage,
		args:       args,
		level:      level,
		neverCache: cfg.neverCache,
		hasErr:     hasErr,
		name:       name,
	}, nil
}

// MustProvide is like [Provide] but panics on error. Intended for package
// level provider declarations where a bad signature is a programming bug.
func MustProvide(factory any, opts ...ProviderOption) *Provider {
	p, err := Provide(factory, opts...)
	if err != nil {
		panic(err)
	}
	return p
}

// splitReturns classifies the factory's return list into the produced value
// type, an optional release function, and an optional trailing error.
func splitReturns(typ reflect.Type, name string) (out reflect.Type, release, hasErr bool, err error) {
	switch typ.NumOut() {
	case 1:
		out = typ.Out(0)
	case 2:
		out = typ.Out(0)
		switch {
		// Exactly error, not a concrete type implementing it: invoke checks
		// the returned value with IsNil, which needs a nilable interface.
		case typ.Out(1) == errType:
			hasErr = true
		case isReleaseFunc(typ.Out(1)):
			release = true
		default:
			return nil, false, false, fmt.Errorf("%w: %s second return must be error or a release func, got %s", ErrBadFactory, name, typ.Out(1))
		}
	case 3:
		out = typ.Out(0)
		if !isReleaseFunc(typ.Out(1)) {
			return nil, false, false, fmt.Errorf("%w: %s second return must be a release func, got %s", ErrBadFactory, name, typ.Out(1))
		}
		if typ.Out(2) != errType {
			return nil, false, false, fmt.Errorf("%w: %s third return must be error, got %s", ErrBadFactory, name, typ.Out(2))
		}
		release, hasErr = true, true
	default:
		return nil, false, false, fmt.Errorf("%w: %s must return (T), (T, error), (T, ReleaseFunc) or (T, ReleaseFunc, error)", ErrBadFactory, name)
	}

	if out == errType {
		return nil, false, false, fmt.Errorf("%w: %s produces only an error", ErrBadFactory, name)
	}
	return out, release, hasErr, nil
}

func isReleaseFunc(t reflect.Type) bool {
	switch {
	case t == reflect.TypeOf(func() {}):
		return true
	case t == reflect.TypeOf(func() error { return nil }):
		return true
	case t == reflect.TypeOf(func(context.Context) error { return nil }):
		return true
	}
	return false
}

// resolveCoverage computes the provider's coverage set: the explicit [Covers]
// tokens if any, otherwise the factory's return type, plus every [As]
// interface. Each token is validated against the return type.
func resolveCoverage(out reflect.Type, cfg providerConfig, name string) ([]reflect.Type, error) {
	coverage := cfg.coverage
	if len(coverage) == 0 {
		coverage = []reflect.Type{out}
	}
	coverage = append(coverage, cfg.as...)

	seen := make(map[reflect.Type]struct{}, len(coverage))
	deduped := coverage[:0]
	for _, t := range coverage {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}

		if !coverable(t) {
			return nil, fmt.Errorf("%w: %s cannot cover %s", ErrBadCoverage, name, t)
		}
		if !out.AssignableTo(t) {
			return nil, fmt.Errorf("%w: %s returns %s, not assignable to %s", ErrBadCoverage, name, out, t)
		}
		deduped = append(deduped, t)
	}
	return deduped, nil
}

// invoke calls the factory with the resolved arguments and normalizes the
// result to the uniform (value, release, error) contract. release is nil for
// plain value providers and for resource factories that returned a nil
// release.
func (p *Provider) invoke(ctx context.Context, args []reflect.Value) (reflect.Value, func(context.Context) error, error) {
	in := args
	if p.shape == shapeValueCtx || p.shape == shapeResourceCtx {
		in = append([]reflect.Value{reflect.ValueOf(ctx)}, args...)
	}

	out := p.factory.Call(in)

	if p.hasErr {
		if errVal := out[len(out)-1]; !errVal.IsNil() {
			return reflect.Value{}, nil, errVal.Interface().(error)
		}
	}

	var release func(context.Context) error
	if p.shape == shapeResource || p.shape == shapeResourceCtx {
		release = normalizeRelease(out[1])
	}
	return out[0], release, nil
}

func normalizeRelease(rv reflect.Value) func(context.Context) error {
	if rv.IsNil() {
		return nil
	}
	switch f := rv.Interface().(type) {
	case func():
		return func(context.Context) error {
			f()
			return nil
		}
	case func() error:
		return func(context.Context) error {
			return f()
		}
	case func(context.Context) error:
		return f
	}
	return nil
}

// factoryName derives a diagnostic name from the factory's symbol, trimmed to
// package.Func form.
func factoryName(val reflect.Value) string {
	fn := runtime.FuncForPC(val.Pointer())
	if fn == nil {
		return val.Type().String()
	}
	name := fn.Name()
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return name
}
