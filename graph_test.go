package prereq

import (
	"context"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlan_Order(t *testing.T) {
	counts := make(map[string]int)

	r := New()
	r.AddProviders(chainProviders(t, counts, nil, 1, 1, 1)...)

	sc := r.newScope(nil)
	order, err := sc.plan([]reflect.Type{TypeOf[*valueD]()})
	require.NoError(t, err)

	want := []reflect.Type{
		TypeOf[*valueA](),
		TypeOf[*valueB](),
		TypeOf[*valueC](),
		TypeOf[*valueD](),
	}
	assert.Equal(t, want, planTypes(order), "first-seen depth-first postorder")
	assert.Empty(t, counts, "planning never invokes a factory")
}

func planTypes(order []planStep) []reflect.Type {
	types := make([]reflect.Type, len(order))
	for i, step := range order {
		types[i] = step.typ
	}
	return types
}

func TestPlan_SkipsCached(t *testing.T) {
	r := New()
	r.AddProviders(mustProvide(t, func(a *valueA) *valueB { return &valueB{} }))

	sc := r.newScope([]ResolveOption{Seed(&valueA{})})
	order, err := sc.plan([]reflect.Type{TypeOf[*valueB]()})
	require.NoError(t, err)
	assert.Equal(t, []reflect.Type{TypeOf[*valueB]()}, planTypes(order))
}

// TestPlan_ArgsResolveAtOwnerLevel: when a type is registered at two levels,
// a provider's dependency on it resolves against the provider's own chain,
// so planning must not warm the deeper registration for a shallow provider.
func TestPlan_ArgsResolveAtOwnerLevel(t *testing.T) {
	counts := make(map[string]int)
	ctx := context.Background()

	r := New()
	r.AddProviders(
		mustProvide(t, func() *valueA { counts["A1"]++; return &valueA{Value: 1} }),
		mustProvide(t, func() *valueA { counts["A2"]++; return &valueA{Value: 2} }, AtLevel(2)),
		mustProvide(t, func(a *valueA) *valueB { counts["B"]++; return &valueB{Value: a.Value} }),
	)

	err := r.Spawn(ctx, func(ctx context.Context, sub *Resolver) error {
		// B lives at level 1, so its valueA is the level-1 one.
		if err := sub.ResolveFor(ctx, func(b *valueB) error {
			require.Equal(t, 1, b.Value)
			return nil
		}); err != nil {
			return err
		}
		// A direct request from level 2 still picks the nearest registration.
		return sub.ResolveFor(ctx, func(a *valueA) error {
			require.Equal(t, 2, a.Value)
			return nil
		})
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"A1": 1, "A2": 1, "B": 1}, counts)
}

// TestPlan_OwnerLevelUnreachable: a shallow provider depending on a type
// registered only deeper fails during planning, before anything is acquired.
func TestPlan_OwnerLevelUnreachable(t *testing.T) {
	var acquired int

	r := New()
	r.AddProviders(
		mustProvide(t, func(a *valueA) *valueB { return &valueB{} }),
		mustProvide(t, func() (*valueA, func()) {
			acquired++
			return &valueA{}, func() {}
		}, AtLevel(2)),
	)

	err := r.Spawn(context.Background(), func(ctx context.Context, sub *Resolver) error {
		return sub.ResolveFor(ctx, func(b *valueB) error { return nil })
	})
	require.ErrorIs(t, err, ErrLevelUnreachable)
	assert.Contains(t, err.Error(), "requested at level 1")
	assert.Zero(t, acquired, "the deeper resource is never acquired")
}

func TestPlan_Cycle(t *testing.T) {
	r := New()
	r.AddProviders(
		mustProvide(t, func(c *valueC) *valueB { return nil }),
		mustProvide(t, func(b *valueB) *valueC { return nil }),
	)

	err := r.ResolveFor(context.Background(), func(b *valueB) error { return nil })
	require.ErrorIs(t, err, ErrCircularDependency)
	assert.Contains(t, err.Error(), "*prereq.valueB -> *prereq.valueC -> *prereq.valueB")
}

// TestPlan_CountsMatchRecursion pins the construction counts of the planned
// strategy to what naive recursive resolution performs, for a chain with
// never-cache providers in the middle.
func TestPlan_CountsMatchRecursion(t *testing.T) {
	counts := make(map[string]int)

	r := New()
	r.AddProviders(
		mustProvide(t, func() *valueA { counts["A"]++; return &valueA{} }, NeverCache()),
		mustProvide(t, func(a *valueA) *valueB { counts["B"]++; return &valueB{} }, NeverCache()),
		mustProvide(t, func(b *valueB) *valueC { counts["C"]++; return &valueC{} }),
		mustProvide(t, func(b *valueB, c *valueC) *valueD { counts["D"]++; return &valueD{} }),
	)

	err := r.ResolveFor(context.Background(), func(d *valueD) error { return nil })
	require.NoError(t, err)

	// Recursion demands B twice (from C and from D), hence A twice.
	assert.Equal(t, map[string]int{"A": 2, "B": 2, "C": 1, "D": 1}, counts)
}

func TestGraph_DOT(t *testing.T) {
	counts := make(map[string]int)

	r := New()
	r.AddProviders(chainProviders(t, counts, nil, 1, 2, 3)...)

	g := r.Graph()
	require.Len(t, g.Nodes(), 4)

	dot := g.DOT()
	assert.True(t, len(dot) > 0)
	assert.Contains(t, dot, "digraph providers {")
	assert.Contains(t, dot, `"*prereq.valueD" -> "*prereq.valueC";`)
	assert.Contains(t, dot, "level 3")
	assert.Contains(t, dot, "dashed", "never-cache nodes drawn dashed")
}

func TestGraph_NodesSorted(t *testing.T) {
	r := New()
	r.AddProviders(
		mustProvide(t, func() *valueC { return nil }, AtLevel(2)),
		mustProvide(t, func() *valueA { return nil }),
		mustProvide(t, func() *valueB { return nil }),
	)

	g := r.Graph()
	var got []string
	for _, n := range g.Nodes() {
		got = append(got, n.Type.String())
	}
	assert.Equal(t, []string{"*prereq.valueA", "*prereq.valueB", "*prereq.valueC"}, got)
}
