package prereq

import "errors"

var (
	// ErrNotAFunction is returned by [Provide] when the factory, or by
	// [Resolver.ResolveFor] when the target, is not a function.
	ErrNotAFunction = errors.New("not a function")

	// ErrBadFactory is returned by [Provide] when a factory function has an
	// unsupported signature: variadic parameters, a context.Context anywhere
	// but first, a missing value return, or a malformed return list.
	ErrBadFactory = errors.New("invalid factory signature")

	// ErrBadLevel is returned by [Provide] when the level passed to [AtLevel]
	// is not an integer, or is below 1.
	ErrBadLevel = errors.New("invalid level")

	// ErrBadCoverage is returned by [Provide] when a coverage token cannot be
	// satisfied by the factory's return type, or names a type that cannot be
	// covered at all (the empty interface, or error).
	ErrBadCoverage = errors.New("invalid coverage")

	// ErrProviderNotFound is returned during resolution when no provider is
	// registered for a required type at any level reachable from the
	// requesting scope.
	ErrProviderNotFound = errors.New("provider not found")

	// ErrLevelUnreachable is returned during resolution when the required
	// type is registered, but only at a level deeper than the requesting
	// scope's. Deeper levels cannot be reached by delegation; spawn down to
	// the provider's level instead.
	ErrLevelUnreachable = errors.New("provider level unreachable")

	// ErrCircularDependency is returned when the providers required for a
	// resolution form a cycle. The error message includes the full chain.
	ErrCircularDependency = errors.New("circular dependency detected")

	// ErrScopeActive is returned by [Resolver.Spawn] and
	// [Resolver.ResolveFor] when the resolver's scope is already lent to a
	// live spawned child.
	ErrScopeActive = errors.New("scope already active")

	// ErrBadTarget is returned by [Resolver.ResolveFor] when the target
	// function has an unsupported signature.
	ErrBadTarget = errors.New("invalid target signature")
)
