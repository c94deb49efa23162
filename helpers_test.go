package prereq

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// Shared test types and helpers used across test files. The value chain
// mirrors the reference scenario: each type adds a fixed offset of 10 to the
// sum of its dependencies' values.

type valueA struct{ Value int }

type valueB struct {
	Value int
	Name  string
}

type valueC struct{ Value int }

type valueD struct{ Value int }

// named is the capability interface valueB implements, for coverage tests.
type named interface {
	NamedValue() string
}

func (b *valueB) NamedValue() string { return b.Name }

// tier is a named level enum, as a caller would declare one.
type tier int

const (
	tierApp tier = iota + 1
	tierRequest
	tierFunc
)

// badTier has a non-integer kind and must be rejected by AtLevel.
type badTier string

const badTierOne badTier = "ONE"

// concreteError implements error with a non-nilable concrete type. Factories
// and targets must return the error interface itself, never a type like this.
type concreteError struct{}

func (concreteError) Error() string { return "concrete" }

// mustProvide calls t.Fatal if normalization fails.
func mustProvide(t *testing.T, factory any, opts ...ProviderOption) *Provider {
	t.Helper()
	p, err := Provide(factory, opts...)
	require.NoError(t, err)
	return p
}

// chainProviders builds the reference A/B/C/D provider chain. A is never
// cached; B is resource-yielding and appends to releases on teardown. Counts
// records invocations per provider, levels places B/C/D (A stays at level 1).
func chainProviders(t *testing.T, counts map[string]int, releases *[]string, levelB, levelC, levelD any) []*Provider {
	t.Helper()

	createA := func() *valueA {
		counts["A"]++
		return &valueA{Value: 10}
	}
	createB := func(a *valueA) (*valueB, func()) {
		counts["B"]++
		b := &valueB{Value: 10 + a.Value, Name: "B"}
		return b, func() {
			if releases != nil {
				*releases = append(*releases, "B")
			}
		}
	}
	createC := func(a *valueA, b *valueB) *valueC {
		counts["C"]++
		return &valueC{Value: 10 + a.Value + b.Value}
	}
	createD := func(a *valueA, b *valueB, c *valueC) *valueD {
		counts["D"]++
		return &valueD{Value: 10 + a.Value + b.Value + c.Value}
	}

	return []*Provider{
		mustProvide(t, createA, NeverCache()),
		mustProvide(t, createB, AtLevel(levelB)),
		mustProvide(t, createC, AtLevel(levelC)),
		mustProvide(t, createD, AtLevel(levelD)),
	}
}
