package modules

import (
	"errors"
	"sync"
)

var (
	ErrCycle            = errors.New("modules: adding this dependency would introduce a cycle")
	ErrDuplicateSymbol  = errors.New("modules: symbol already exported by a loaded instance")
	ErrDuplicateName    = errors.New("modules: instance name already in use")
	ErrUnknownInstance  = errors.New("modules: instance not present in the graph")
)

type edge struct {
	to     *Instance
	static bool
}

// DependencyGraph is the directed acyclic graph of loaded instances.
// Nodes are instances; edges are depends-on (to another instance) or
// includes-namespace (to a namespace table). All graph mutation is
// protected by mu, held system-wide (lock order: system then
// instance, per the per-instance parameter locks).
type DependencyGraph struct {
	mu sync.Mutex

	instances  map[string]*Instance
	exporters  map[SymbolID]*Instance
	namespaces map[string][]*Instance

	deps map[*Instance][]edge // outgoing depends-on edges
	rdeps map[*Instance]map[*Instance]bool // incoming, for dependency counts
	nsEdges map[*Instance][]edge // outgoing includes-namespace edges
}

// NewGraph constructs an empty dependency graph.
func NewGraph() *DependencyGraph {
	return &DependencyGraph{
		instances:  make(map[string]*Instance),
		exporters:  make(map[SymbolID]*Instance),
		namespaces: make(map[string][]*Instance),
		deps:       make(map[*Instance][]edge),
		rdeps:      make(map[*Instance]map[*Instance]bool),
		nsEdges:    make(map[*Instance][]edge),
	}
}

// checkName reports whether name is free for a new instance. Caller
// must hold mu.
func (g *DependencyGraph) checkName(name string) error {
	if _, exists := g.instances[name]; exists {
		return ErrDuplicateName
	}
	return nil
}

// checkExports reports whether any of exports conflicts with an
// already-registered exporter. Caller must hold mu.
func (g *DependencyGraph) checkExports(exports []Symbol) error {
	for _, sym := range exports {
		if _, exists := g.exporters[sym.ID]; exists {
			return ErrDuplicateSymbol
		}
	}
	return nil
}

// register inserts inst into the graph with static dependency edges to
// deps and namespace edges to namespaces. Caller must hold mu, and
// must have already validated name/export uniqueness.
func (g *DependencyGraph) register(inst *Instance, deps []*Instance, namespaces []string) {
	g.instances[inst.Export.Name] = inst
	for _, sym := range inst.exports {
		g.exporters[sym.ID] = inst
	}
	for _, ns := range namespaces {
		g.namespaces[ns] = append(g.namespaces[ns], inst)
		g.nsEdges[inst] = append(g.nsEdges[inst], edge{to: nil, static: true})
	}
	for _, dep := range deps {
		g.deps[inst] = append(g.deps[inst], edge{to: dep, static: true})
		if g.rdeps[dep] == nil {
			g.rdeps[dep] = make(map[*Instance]bool)
		}
		g.rdeps[dep][inst] = true
	}
}

// AddDependency adds a dynamic depends-on edge from->to, rejecting it
// if it would introduce a cycle.
func (g *DependencyGraph) AddDependency(from, to *Instance) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pathExists(to, from) {
		return ErrCycle
	}
	g.deps[from] = append(g.deps[from], edge{to: to, static: false})
	if g.rdeps[to] == nil {
		g.rdeps[to] = make(map[*Instance]bool)
	}
	g.rdeps[to][from] = true
	return nil
}

// RemoveDependency removes a previously-added dynamic edge. Static
// edges cannot be removed this way.
func (g *DependencyGraph) RemoveDependency(from, to *Instance) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	edges := g.deps[from]
	for i, e := range edges {
		if e.to == to && !e.static {
			g.deps[from] = append(edges[:i], edges[i+1:]...)
			delete(g.rdeps[to], from)
			return nil
		}
	}
	return ErrUnknownInstance
}

// pathExists reports whether a path from→to exists via BFS. Caller
// must hold mu.
func (g *DependencyGraph) pathExists(from, to *Instance) bool {
	if from == to {
		return true
	}
	visited := map[*Instance]bool{from: true}
	queue := []*Instance{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range g.deps[cur] {
			if e.to == nil || visited[e.to] {
				continue
			}
			if e.to == to {
				return true
			}
			visited[e.to] = true
			queue = append(queue, e.to)
		}
	}
	return false
}

// dependsOn reports whether dependent has owner in its dependency set
// (direct, static or dynamic).
func (g *DependencyGraph) dependsOn(dependent, owner *Instance) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, e := range g.deps[dependent] {
		if e.to == owner {
			return true
		}
	}
	return false
}

// DependencyCount returns the number of instances currently depending
// on inst.
func (g *DependencyGraph) DependencyCount(inst *Instance) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rdeps[inst])
}

// Lookup returns the instance registered under name, if any.
func (g *DependencyGraph) Lookup(name string) (*Instance, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	inst, ok := g.instances[name]
	return inst, ok
}

// LookupExporter returns the instance currently exporting sym, if any.
func (g *DependencyGraph) LookupExporter(sym SymbolID) (*Instance, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	inst, ok := g.exporters[sym]
	return inst, ok
}

// Instances returns a snapshot of every currently-registered instance.
func (g *DependencyGraph) Instances() []*Instance {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*Instance, 0, len(g.instances))
	for _, inst := range g.instances {
		out = append(out, inst)
	}
	return out
}

// forceUnregister removes inst from the graph unconditionally, for use
// during a full teardown where dependents are being drained in the
// same pass. Caller must hold mu.
func (g *DependencyGraph) forceUnregister(inst *Instance) {
	delete(g.instances, inst.Export.Name)
	for _, sym := range inst.exports {
		if g.exporters[sym.ID] == inst {
			delete(g.exporters, sym.ID)
		}
	}
	for _, e := range g.deps[inst] {
		if e.to != nil {
			delete(g.rdeps[e.to], inst)
		}
	}
	delete(g.deps, inst)
	delete(g.rdeps, inst)
	delete(g.nsEdges, inst)
	inst.Handle.loaded.Store(false)
}

// DrainAll force-unregisters every instance still registered, leaves
// (no remaining dependents) first, and returns them in the order they
// were removed. Unlike Unregister, it ignores each handle's strong
// count and MarkUnloadable flag: it is for a full subsystem teardown,
// where every instance is always eligible, not a refcounted unload.
func (g *DependencyGraph) DrainAll() []*Instance {
	g.mu.Lock()
	defer g.mu.Unlock()
	var order []*Instance
	for len(g.instances) > 0 {
		var next *Instance
		for _, inst := range g.instances {
			if len(g.rdeps[inst]) == 0 {
				next = inst
				break
			}
		}
		if next == nil {
			// a cycle among dynamic dependencies: break it by taking an
			// arbitrary instance rather than looping forever.
			for _, inst := range g.instances {
				next = inst
				break
			}
		}
		g.forceUnregister(next)
		order = append(order, next)
	}
	return order
}

// Unregister removes inst from the graph: it must have no remaining
// dependents and its handle must permit unload.
func (g *DependencyGraph) Unregister(inst *Instance) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.rdeps[inst]) > 0 {
		return errors.New("modules: instance still has live dependents")
	}
	if !inst.Handle.canUnload(len(g.rdeps[inst])) {
		return errors.New("modules: instance is not unloadable")
	}
	delete(g.instances, inst.Export.Name)
	for _, sym := range inst.exports {
		if g.exporters[sym.ID] == inst {
			delete(g.exporters, sym.ID)
		}
	}
	for _, e := range g.deps[inst] {
		if e.to != nil {
			delete(g.rdeps[e.to], inst)
		}
	}
	delete(g.deps, inst)
	delete(g.rdeps, inst)
	delete(g.nsEdges, inst)
	inst.Handle.loaded.Store(false)
	return nil
}
