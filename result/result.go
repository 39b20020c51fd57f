// Package result implements a type-erased, vtable-carrying error value
// and the thread-local "current result" slot used to gate context
// teardown.
//
// Go already has a perfectly serviceable error-union type (the built-in
// error interface); Error below is a thin wrapper satisfying it while
// still exposing a Name/Description/Deinit vtable triple, so callers
// that need the original diagnostic fields (e.g. a module loader
// reporting a skip reason) can recover them via errors.As.
package result

import "fmt"

// Vtable is the small, closed set of operations required of an error's
// vtable: a short machine-usable name, a human description, and an
// optional cleanup hook run when the Result is discarded.
type Vtable interface {
	Name() string
	Description() string
	Deinit()
}

// Error is a Result in the err state: data plus its vtable.
type Error struct {
	vtable Vtable
}

// New wraps a Vtable as an Error.
func New(v Vtable) *Error {
	if v == nil {
		panic("result: nil vtable")
	}
	return &Error{vtable: v}
}

// Name implements the vtable accessor.
func (e *Error) Name() string { return e.vtable.Name() }

// Description implements the vtable accessor.
func (e *Error) Description() string { return e.vtable.Description() }

// Error implements the standard library error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.vtable.Name(), e.vtable.Description())
}

// Deinit runs the vtable's cleanup hook. Call this at most once per
// Error; an ok Result never carries a vtable to deinit in the first
// place.
func (e *Error) Deinit() {
	e.vtable.Deinit()
}

// Unwrap supports errors.As/errors.Is against the wrapped vtable, when
// the vtable implementation itself is an error.
func (e *Error) Unwrap() error {
	if err, ok := e.vtable.(error); ok {
		return err
	}
	return nil
}

// staticVtable is the simplest Vtable: a fixed name/description pair
// with a no-op Deinit, used for static-string errors.
type staticVtable struct {
	name string
	desc string
}

func (s staticVtable) Name() string        { return s.name }
func (s staticVtable) Description() string { return s.desc }
func (staticVtable) Deinit()               {}

// Static builds an Error from a static name/description pair, with no
// allocation-owning cleanup required.
func Static(name, description string) *Error {
	return New(staticVtable{name: name, desc: description})
}

// anyVtable adapts an arbitrary Go error into the vtable shape,
// deferring Description to the wrapped error's Error() string.
type anyVtable struct {
	name string
	err  error
}

func (a anyVtable) Name() string        { return a.name }
func (a anyVtable) Description() string { return a.err.Error() }
func (anyVtable) Deinit()               {}

// Wrap adapts a plain Go error as a Result error, tagging it with name
// (typically the taxonomy kind, e.g. "NotFound", "InvalidInput").
func Wrap(name string, err error) *Error {
	return New(anyVtable{name: name, err: err})
}
