package modules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestInstance(g *DependencyGraph, name string) *Instance {
	export := &ModuleExport{Name: name}
	handle := newHandle(export, g)
	return newInstance(export, handle, nil, nil)
}

func TestGraphRejectsCycle(t *testing.T) {
	g := NewGraph()
	a := newTestInstance(g, "a")
	b := newTestInstance(g, "b")
	g.register(a, nil, nil)
	g.register(b, nil, nil)

	require.NoError(t, g.AddDependency(a, b))
	err := g.AddDependency(b, a)
	assert.ErrorIs(t, err, ErrCycle)
}

func TestGraphRejectsDuplicateName(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.checkName("svc"))
	a := newTestInstance(g, "svc")
	g.register(a, nil, nil)
	assert.ErrorIs(t, g.checkName("svc"), ErrDuplicateName)
}

func TestGraphRejectsDuplicateExport(t *testing.T) {
	g := NewGraph()
	sym := Symbol{ID: SymbolID{Name: "foo", Namespace: "ns"}}
	a := &ModuleExport{Name: "a", Exports: []Symbol{sym}}
	inst := newInstance(a, newHandle(a, g), nil, nil)
	g.register(inst, nil, nil)

	assert.ErrorIs(t, g.checkExports([]Symbol{sym}), ErrDuplicateSymbol)
}

func TestGraphUnregisterRequiresNoDependents(t *testing.T) {
	g := NewGraph()
	a := newTestInstance(g, "a")
	b := newTestInstance(g, "b")
	g.register(a, nil, nil)
	g.register(b, []*Instance{a}, nil)

	err := g.Unregister(a)
	assert.Error(t, err)

	a.Handle.Unref()
	b.Handle.Unref()
	a.Handle.MarkUnloadable()
	b.Handle.MarkUnloadable()
	require.NoError(t, g.Unregister(b))
	require.NoError(t, g.Unregister(a))
	assert.False(t, a.Handle.Loaded())
}

func TestGraphUnregisterRequiresUnloadable(t *testing.T) {
	g := NewGraph()
	a := newTestInstance(g, "a")
	g.register(a, nil, nil)

	err := g.Unregister(a)
	assert.Error(t, err, "strongCount starts at 1 and markUnloadable was never called")

	a.Handle.Unref()
	a.Handle.MarkUnloadable()
	require.NoError(t, g.Unregister(a))
}

func TestGraphDrainAllUnloadsLeavesBeforeDependencies(t *testing.T) {
	g := NewGraph()
	a := newTestInstance(g, "a") // depended on by b
	b := newTestInstance(g, "b")
	g.register(a, nil, nil)
	g.register(b, []*Instance{a}, nil)

	order := g.DrainAll()
	require.Len(t, order, 2)
	assert.Same(t, b, order[0], "b has no dependents left once a is excluded, but depends on a, so must unload first")
	assert.Same(t, a, order[1])

	assert.False(t, a.Handle.Loaded())
	assert.False(t, b.Handle.Loaded())
	_, ok := g.Lookup("a")
	assert.False(t, ok)
}

func TestGraphDrainAllIgnoresRefcountAndUnloadable(t *testing.T) {
	g := NewGraph()
	a := newTestInstance(g, "a")
	g.register(a, nil, nil)

	// strongCount starts at 1 and MarkUnloadable was never called, so a
	// refcounted Unregister would fail; DrainAll must not care.
	order := g.DrainAll()
	assert.Equal(t, []*Instance{a}, order)
}

func TestDependsOnReflectsStaticEdge(t *testing.T) {
	g := NewGraph()
	a := newTestInstance(g, "a")
	b := newTestInstance(g, "b")
	g.register(a, nil, nil)
	g.register(b, []*Instance{a}, nil)

	assert.True(t, g.dependsOn(b, a))
	assert.False(t, g.dependsOn(a, b))
}
