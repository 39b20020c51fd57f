package modules

import "sync/atomic"

// InstanceHandle is the shared, refcounted record identifying a loaded
// module. strongCount > 0 (or live dependents) prevents unload;
// markUnloadable is idempotent and only schedules unload once both
// drop to zero.
type InstanceHandle struct {
	Name        string
	Description string
	Author      string
	License     string
	ModulePath  string

	strongCount int64
	loaded      atomic.Bool
	unloadable  atomic.Bool

	graph *DependencyGraph
}

func newHandle(export *ModuleExport, graph *DependencyGraph) *InstanceHandle {
	h := &InstanceHandle{
		Name:        export.Name,
		Description: export.Description,
		Author:      export.Author,
		License:     export.License,
		ModulePath:  export.ModulePath,
		strongCount: 1,
		graph:       graph,
	}
	h.loaded.Store(true)
	return h
}

// Ref increments the strong count, preventing unload.
func (h *InstanceHandle) Ref() {
	h.graph.mu.Lock()
	defer h.graph.mu.Unlock()
	h.strongCount++
}

// Unref decrements the strong count; if it and the dependency count
// both reach zero and markUnloadable was called, the instance
// becomes eligible for unload.
func (h *InstanceHandle) Unref() {
	h.graph.mu.Lock()
	defer h.graph.mu.Unlock()
	h.strongCount--
}

// Loaded reports whether this handle still refers to a live instance.
func (h *InstanceHandle) Loaded() bool { return h.loaded.Load() }

// MarkUnloadable is idempotent: it records intent to unload once the
// strong count and dependency count both reach zero. It does not
// itself perform the unload (the graph/loader do, under lock).
func (h *InstanceHandle) MarkUnloadable() {
	h.unloadable.Store(true)
}

// canUnload assumes the caller already holds h.graph.mu.
func (h *InstanceHandle) canUnload(depCount int) bool {
	return h.unloadable.Load() && h.strongCount == 0 && depCount == 0
}

// Instance is the live embodiment of a loaded module: its state blob,
// parameter table, and back-references to its handle.
type Instance struct {
	Handle *InstanceHandle
	Export *ModuleExport
	State  any

	params  map[string]*Parameter
	exports []Symbol
	imports []Symbol
}

func newInstance(export *ModuleExport, handle *InstanceHandle, state any, imports []Symbol) *Instance {
	params := make(map[string]*Parameter, len(export.Parameters))
	for _, spec := range export.Parameters {
		params[spec.Name] = newParameter(spec)
	}
	return &Instance{
		Handle:  handle,
		Export:  export,
		State:   state,
		params:  params,
		exports: export.Exports,
		imports: imports,
	}
}

// Parameter looks up a declared parameter cell by name.
func (inst *Instance) Parameter(name string) (*Parameter, bool) {
	p, ok := inst.params[name]
	return p, ok
}

// scopeAgainst builds the access scope of caller when acting on a
// parameter owned by inst.
func (inst *Instance) scopeAgainst(caller *Instance) accessScope {
	if caller == inst {
		return accessScope{Owner: true}
	}
	if caller == nil {
		return accessScope{}
	}
	return accessScope{Dependent: inst.Handle.graph.dependsOn(caller, inst)}
}

// ReadParameter performs a checked, caller-scoped read of a named
// parameter. caller is the instance attempting the read (nil for an
// external/public caller).
func (inst *Instance) ReadParameter(name string, tag ParameterTag, caller *Instance) (uint64, error) {
	p, ok := inst.Parameter(name)
	if !ok {
		return 0, newParameterError("no such parameter: " + name)
	}
	return p.Read(tag, inst.scopeAgainst(caller))
}

// WriteParameter performs a checked, caller-scoped write of a named
// parameter.
func (inst *Instance) WriteParameter(name string, tag ParameterTag, caller *Instance, v uint64) error {
	p, ok := inst.Parameter(name)
	if !ok {
		return newParameterError("no such parameter: " + name)
	}
	return p.Write(tag, inst.scopeAgainst(caller), v)
}
