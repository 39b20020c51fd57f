package modules

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fimoengine/fimo/async"
	"github.com/fimoengine/fimo/result"
)

// FilterDecision is the caller's verdict on a candidate export,
// returned from a FilterFunc.
type FilterDecision uint8

const (
	FilterSkip FilterDecision = iota
	FilterLoad
)

// FilterFunc decides whether a candidate export should be queued.
type FilterFunc func(export *ModuleExport) FilterDecision

// ExportSource abstracts "open a binary (or <dir>/module.fimo_module)
// and read its exported-module directory" — the actual binary/FFI
// format is an external collaborator (see the module binary format
// non-goal); this interface is what add_modules_from_path reads from.
type ExportSource interface {
	// Exports returns every ModuleExport a binary at path declares, or
	// an error if the binary can't be opened or its directory is
	// missing/corrupt.
	Exports(path string) ([]*ModuleExport, error)
}

// ModuleFileName is the manifest file looked up inside a directory
// passed to AddModulesFromPath.
const ModuleFileName = "module.fimo_module"

var (
	ErrAlreadyQueued   = errors.New("modules: module name already queued in this loader")
	ErrSourceOpenFailed = errors.New("modules: failed to open module binary or read its export directory")
	ErrCommitInFlight  = errors.New("modules: a commit is already in flight on this loader")
)

type queuedModule struct {
	export *ModuleExport
	owner  *InstanceHandle // non-nil for programmatically added modules

	resultCh chan moduleResult
}

type moduleResult struct {
	handle *InstanceHandle
	export *ModuleExport
	err    error // nil on success; a "skip" diagnostic is still success
	skipped bool
	reason string
}

// Loader is a scratch batch workspace: a queue of candidate
// ModuleExports plus per-module completion futures, committed together
// via Commit's topological load algorithm. Concurrent commits from the
// same Loader are serialized by commitMu.
type Loader struct {
	graph *DependencyGraph

	mu      sync.Mutex
	queued  map[string]*queuedModule
	order   []string // insertion order, for deterministic iteration in tests

	commitMu sync.Mutex
}

// NewLoader allocates a Loader bound to graph.
func NewLoader(graph *DependencyGraph) *Loader {
	return &Loader{
		graph:  graph,
		queued: make(map[string]*queuedModule),
	}
}

// Deinit completes any in-flight Commit, then drains every instance
// still registered in the graph (leaves first), running each one's
// Destructor. This is a full subsystem teardown, not a refcounted
// unload: every instance goes regardless of strong count or
// MarkUnloadable, matching a Context tearing down for good. Modules
// still queued and not committed are dropped, and their owner
// references released.
func (l *Loader) Deinit() {
	l.commitMu.Lock()
	defer l.commitMu.Unlock()
	l.DrainAll()

	l.mu.Lock()
	for _, qm := range l.queued {
		if qm.owner != nil {
			qm.owner.Unref()
		}
	}
	l.queued = make(map[string]*queuedModule)
	l.order = nil
	l.mu.Unlock()
}

// DrainAll force-unloads every instance currently registered in the
// graph, running each one's Destructor (if any) as it is removed.
func (l *Loader) DrainAll() {
	for _, inst := range l.graph.DrainAll() {
		if inst.Export.Destroy != nil {
			inst.Export.Destroy(inst.State)
		}
	}
}

// ContainsModule reports whether name is already queued in this batch.
func (l *Loader) ContainsModule(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.queued[name]
	return ok
}

// ContainsSymbol reports whether sym is declared as an export by any
// queued module.
func (l *Loader) ContainsSymbol(sym SymbolID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, qm := range l.queued {
		for _, e := range qm.export.Exports {
			if e.ID == sym {
				return true
			}
		}
	}
	return false
}

// AddModule registers a programmatically-built export, inheriting a
// strong reference to owner's binary (owner is ref'd for the lifetime
// of the queued entry; released on commit or on a Deinit that drops
// the batch without committing).
func (l *Loader) AddModule(owner *InstanceHandle, export *ModuleExport) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.queued[export.Name]; exists {
		return ErrAlreadyQueued
	}
	if owner != nil {
		owner.Ref()
	}
	l.queued[export.Name] = &queuedModule{export: export, owner: owner, resultCh: make(chan moduleResult, 1)}
	l.order = append(l.order, export.Name)
	return nil
}

// AddModulesFromPath opens path (or path/module.fimo_module if path is
// a directory) via src, and queues every export for which filter
// returns FilterLoad.
func (l *Loader) AddModulesFromPath(src ExportSource, path string, filter FilterFunc) error {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, ModuleFileName)
	}
	exports, err := src.Exports(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSourceOpenFailed, err)
	}
	return l.AddModulesFromIter(filter, func(yield func(*ModuleExport) bool) {
		for _, e := range exports {
			if !yield(e) {
				return
			}
		}
	})
}

// AddModulesFromIter queues every export produced by iterate for which
// filter returns FilterLoad.
func (l *Loader) AddModulesFromIter(filter FilterFunc, iterate func(yield func(*ModuleExport) bool)) error {
	var queueErr error
	iterate(func(export *ModuleExport) bool {
		if filter != nil && filter(export) == FilterSkip {
			return true
		}
		l.mu.Lock()
		if _, exists := l.queued[export.Name]; exists {
			l.mu.Unlock()
			queueErr = ErrAlreadyQueued
			return false
		}
		l.queued[export.Name] = &queuedModule{export: export, resultCh: make(chan moduleResult, 1)}
		l.order = append(l.order, export.Name)
		l.mu.Unlock()
		return true
	})
	return queueErr
}

// PollResult is the value a per-module poll_module future resolves to.
type PollResult struct {
	Handle *InstanceHandle
	Export *ModuleExport
}

// PollModule returns a Future that resolves once name's load outcome
// (success, with handle+export) is known from a Commit. Polling before
// any Commit involving name simply stays pending.
func (l *Loader) PollModule(name string) async.Future[Fallible] {
	l.mu.Lock()
	qm, ok := l.queued[name]
	l.mu.Unlock()
	if !ok {
		return async.NewReady(Fallible{Err: result.Static("NotFound", "no such queued module: "+name)})
	}
	return &pollModuleFuture{ch: qm.resultCh}
}

// Fallible is Result<PollResult>: either a loaded handle+export, or an
// error (including a skip diagnostic, surfaced as an error so callers
// distinguish it from a catastrophic commit failure via Skipped).
type Fallible struct {
	Result  PollResult
	Err     *result.Error
	Skipped bool
}

type pollModuleFuture struct {
	ch   chan moduleResult
	done bool
	val  moduleResult
}

func (f *pollModuleFuture) Poll(w *async.Waker) async.Poll[Fallible] {
	if f.done {
		panic("modules: poll_module future polled again after ready")
	}
	select {
	case v := <-f.ch:
		f.done = true
		f.val = v
		if v.err != nil && !v.skipped {
			return async.Ready(Fallible{Err: result.Wrap("CommitFailed", v.err)})
		}
		if v.skipped {
			return async.Ready(Fallible{Skipped: true, Err: result.Static("Skipped", v.reason)})
		}
		return async.Ready(Fallible{Result: PollResult{Handle: v.handle, Export: v.export}})
	default:
		return async.Pending[Fallible]()
	}
}

// Commit orders and loads every queued module, per the topological
// load algorithm: resolve imports, check export conflicts, construct
// with rollback on failure, register into the graph, and resolve each
// module's poll_module future. Returns a future resolving to nil on a
// successful commit (individual modules may still have been skipped;
// only catastrophic failures fail the whole commit).
func (l *Loader) Commit() *async.OpaqueFuture[*result.Error] {
	inner := &async.ExternFuture{
		PollFn: func(any, *async.Waker) (any, bool) {
			return l.runCommit(), true
		},
	}
	return async.NewOpaqueFuture[*result.Error](inner)
}

func (l *Loader) runCommit() *result.Error {
	l.commitMu.Lock()
	defer l.commitMu.Unlock()

	l.mu.Lock()
	batch := make([]*queuedModule, 0, len(l.order))
	for _, name := range l.order {
		batch = append(batch, l.queued[name])
	}
	l.queued = make(map[string]*queuedModule)
	l.order = nil
	l.mu.Unlock()

	ordered, err := topoSort(batch)
	if err != nil {
		return result.Wrap("CommitFailed", err)
	}

	for _, qm := range ordered {
		l.loadOne(qm)
	}
	return nil
}

// topoSort orders batch by declared imports resolved against exports
// within the same batch (already-loaded modules are resolved live
// during loadOne, not here — only intra-batch ordering needs a sort).
func topoSort(batch []*queuedModule) ([]*queuedModule, error) {
	exporter := make(map[SymbolID]*queuedModule)
	for _, qm := range batch {
		for _, e := range qm.export.Exports {
			exporter[e.ID] = qm
		}
	}

	visited := make(map[*queuedModule]int) // 0=unvisited 1=visiting 2=done
	var ordered []*queuedModule
	var visit func(qm *queuedModule) error
	visit = func(qm *queuedModule) error {
		switch visited[qm] {
		case 2:
			return nil
		case 1:
			return errors.New("modules: cyclic import dependency among queued modules")
		}
		visited[qm] = 1
		for _, imp := range qm.export.Imports {
			if dep, ok := exporter[imp.ID]; ok && dep != qm {
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		visited[qm] = 2
		ordered = append(ordered, qm)
		return nil
	}
	for _, qm := range batch {
		if err := visit(qm); err != nil {
			return nil, err
		}
	}
	return ordered, nil
}

func (l *Loader) loadOne(qm *queuedModule) {
	defer func() {
		if qm.owner != nil {
			qm.owner.Unref()
		}
	}()

	imports, reason := l.resolveImports(qm.export)
	if reason != "" {
		l.finishSkipped(qm, reason)
		return
	}

	l.graph.mu.Lock()
	if err := l.graph.checkName(qm.export.Name); err != nil {
		l.graph.mu.Unlock()
		l.finishSkipped(qm, err.Error())
		return
	}
	if err := l.graph.checkExports(qm.export.Exports); err != nil {
		l.graph.mu.Unlock()
		l.finishSkipped(qm, err.Error())
		return
	}
	l.graph.mu.Unlock()

	state, err := construct(qm.export, imports)
	if err != nil {
		l.finishSkipped(qm, "constructor failed: "+err.Error())
		return
	}

	handle := newHandle(qm.export, l.graph)
	inst := newInstance(qm.export, handle, state, imports)

	deps := make([]*Instance, 0, len(imports))
	seen := make(map[*Instance]bool)
	for _, imp := range imports {
		if dep, ok := l.graph.LookupExporter(imp.ID); ok && !seen[dep] {
			seen[dep] = true
			deps = append(deps, dep)
		}
	}

	l.graph.mu.Lock()
	l.graph.register(inst, deps, qm.export.Namespaces)
	l.graph.mu.Unlock()

	qm.resultCh <- moduleResult{handle: handle, export: qm.export}
}

// construct runs the module constructor under a recover guard: a
// panicking constructor is treated as a constructor failure (rollback,
// skip) rather than crashing the commit.
func construct(export *ModuleExport, imports []Symbol) (state any, err error) {
	if export.Construct == nil {
		return nil, nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return export.Construct(imports)
}

// resolveImports resolves every declared SymbolRequirement against the
// graph's currently-registered exporters, checking not just identity
// but Compatible (type and version.Satisfies against MinVersion) — a
// registered exporter whose version doesn't satisfy the requirement is
// treated the same as no exporter at all: a skip, not a commit failure.
func (l *Loader) resolveImports(export *ModuleExport) (imports []Symbol, skipReason string) {
	imports = make([]Symbol, 0, len(export.Imports))
	for _, want := range export.Imports {
		exporterInst, ok := l.graph.LookupExporter(want.ID)
		if !ok {
			return nil, fmt.Sprintf("unresolved import %s/%s", want.ID.Namespace, want.ID.Name)
		}
		var found *Symbol
		for i := range exporterInst.exports {
			if exporterInst.exports[i].ID == want.ID {
				found = &exporterInst.exports[i]
				break
			}
		}
		if found == nil {
			return nil, fmt.Sprintf("unresolved import %s/%s", want.ID.Namespace, want.ID.Name)
		}
		if !Compatible(*found, want) {
			return nil, fmt.Sprintf("incompatible import %s/%s: exporter version %s does not satisfy required %s",
				want.ID.Namespace, want.ID.Name, found.Version, want.MinVersion)
		}
		imports = append(imports, *found)
	}
	return imports, ""
}

func (l *Loader) finishSkipped(qm *queuedModule, reason string) {
	qm.resultCh <- moduleResult{skipped: true, reason: reason}
}
