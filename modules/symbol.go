// Package modules implements the dynamic module loader: a dependency
// graph of instances, a symbol table enforcing one exporter per
// identity, refcounted instance handles gating unload, typed
// parameter cells with grouped access control, and a batch loader
// running the topological load algorithm.
package modules

import "github.com/fimoengine/fimo/version"

// SymbolID identifies a symbol by name and namespace; two symbols are
// the same identity iff both fields match.
type SymbolID struct {
	Name      string
	Namespace string
}

// Symbol is an exported entry in a module's manifest.
type Symbol struct {
	ID      SymbolID
	Version version.Version
	Type    string // opaque type tag, compared by equality
	Value   any    // the exported value/pointer
}

// SymbolRequirement is an imported entry in a module's manifest: the
// identity it needs, the type tag it expects, and the minimum version
// it requires of whichever instance exports that identity.
type SymbolRequirement struct {
	ID         SymbolID
	Type       string
	MinVersion version.Version
}

// Compatible reports whether exporter satisfies req: identities match,
// types match, and the exporter's version satisfies req's minimum
// version per version.Satisfies.
func Compatible(exporter Symbol, req SymbolRequirement) bool {
	return exporter.ID == req.ID &&
		exporter.Type == req.Type &&
		version.Satisfies(exporter.Version, req.MinVersion)
}
