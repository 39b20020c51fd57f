package modules

// ParameterSpec declares one parameter cell a module's constructed
// instance will carry: its initial value, type tag, and the
// read/write access groups gating it.
type ParameterSpec struct {
	Name        string
	Tag         ParameterTag
	Default     uint64
	ReadGroup   AccessGroup
	WriteGroup  AccessGroup
}

// Constructor builds an instance's private state blob, given the
// already-resolved import symbols. Returning an error aborts the load
// (and, per the commit algorithm, skips just this module).
type Constructor func(imports []Symbol) (state any, err error)

// Destructor tears down an instance's state blob, constructed by the
// matching Constructor. Called during a drain/unload, once the
// instance has no remaining dependents. A nil Destructor means the
// instance needs no teardown.
type Destructor func(state any)

// ModuleExport is the manifest a loadable module presents to the
// loader: its name, declared imports/exports/namespaces, parameters,
// and the constructor/destructor bracketing an instance's lifetime.
type ModuleExport struct {
	Name        string
	Description string
	Author      string
	License     string
	ModulePath  string

	Imports    []SymbolRequirement
	Exports    []Symbol
	Namespaces []string
	Parameters []ParameterSpec

	Construct Constructor
	Destroy   Destructor
}
