// Package module implements Drey's pluggable feature-module system.
//
// A Drey deployment is assembled from named modules loaded in a curated
// dependency order. Each module declares the modules it depends on, and its
// Load function receives the already-published exports of those dependencies.
// Modules publish their own exports synchronously during Load, which is what
// lets later modules in the list depend on them. Loading is all-or-nothing:
// any failure aborts startup with no partial module set.
package module

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by LoadModules. All are configuration errors:
// they are fatal at startup and never a retry condition.
var (
	ErrDuplicateModule     = errors.New("module name already registered")
	ErrMissingDependency   = errors.New("module dependency not loaded")
	ErrExportsNotPublished = errors.New("module did not publish exports during load")
	ErrExportsRepublished  = errors.New("module published exports more than once")
	ErrMissingLoadFunc     = errors.New("module has no load function")
	ErrEmptyModuleName     = errors.New("module name cannot be empty")
	ErrSelfDependency      = errors.New("module cannot depend on itself")
)

// Descriptor describes a single feature module. Descriptors are static
// declarations created at process start and never mutated; Load is called
// exactly once per process lifetime.
type Descriptor struct {
	// Name is the unique identifier for this module. It is also the
	// namespace prefix feature modules use for their event tags.
	Name string

	// Version is informational only.
	Version string

	// Dependencies lists the names of modules that must appear earlier in
	// the load list. Their exports are handed to Load via the context.
	Dependencies []string

	// Load wires the module into the running system: it typically declares
	// shared-document containers, registers reducers, and must publish the
	// module's exports by calling LoadContext.Exports exactly once before
	// returning.
	Load func(*LoadContext) error
}

// Entry pairs a descriptor with its deployment-supplied configuration.
// The loader hands Config to Load unmodified.
type Entry struct {
	Descriptor Descriptor
	Config     any
}

// LoadContext is passed to a module's Load function.
type LoadContext struct {
	// DepsExports maps each declared dependency name to the exports that
	// dependency published. It contains exactly the declared dependencies,
	// nothing more.
	DepsExports map[string]any

	// Config is the opaque per-module configuration from the Entry.
	Config any

	published bool
	exports   any
}

// Exports publishes the module's exports. It must be called exactly once,
// synchronously, during Load.
func (lc *LoadContext) Exports(v any) error {
	if lc.published {
		return ErrExportsRepublished
	}
	lc.published = true
	lc.exports = v
	return nil
}

// DepExports retrieves a typed export object from the load context.
// It is a convenience for the type assertion every module load performs.
func DepExports[T any](lc *LoadContext, name string) (T, error) {
	var zero T
	raw, ok := lc.DepsExports[name]
	if !ok {
		return zero, fmt.Errorf("%w: %q", ErrMissingDependency, name)
	}
	typed, ok := raw.(T)
	if !ok {
		return zero, fmt.Errorf("module %q exports have type %T, not %T", name, raw, zero)
	}
	return typed, nil
}

// LoadModules loads every entry in order and returns the accumulated exports
// keyed by module name.
//
// The list is expected to already respect dependencies (the platform supplies
// modules in a fixed curated order rather than doing graph discovery). A
// dependency that names a module not yet loaded fails the whole load before
// that module's Load is called. Any error from a Load aborts the load; there
// is no partial-module-set operation mode.
func LoadModules(entries []Entry) (map[string]any, error) {
	exports := make(map[string]any, len(entries))

	for _, entry := range entries {
		d := entry.Descriptor

		if d.Name == "" {
			return nil, ErrEmptyModuleName
		}
		if d.Load == nil {
			return nil, fmt.Errorf("%w: %q", ErrMissingLoadFunc, d.Name)
		}
		if _, ok := exports[d.Name]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateModule, d.Name)
		}

		// Resolve declared dependencies against what has loaded so far.
		// A dangling name is a configuration error, caught before Load runs.
		deps := make(map[string]any, len(d.Dependencies))
		for _, dep := range d.Dependencies {
			if dep == d.Name {
				return nil, fmt.Errorf("%w: %q", ErrSelfDependency, d.Name)
			}
			depExports, ok := exports[dep]
			if !ok {
				return nil, fmt.Errorf("%w: module %q requires %q", ErrMissingDependency, d.Name, dep)
			}
			deps[dep] = depExports
		}

		lc := &LoadContext{
			DepsExports: deps,
			Config:      entry.Config,
		}

		if err := d.Load(lc); err != nil {
			return nil, fmt.Errorf("loading module %q: %w", d.Name, err)
		}
		if !lc.published {
			return nil, fmt.Errorf("%w: %q", ErrExportsNotPublished, d.Name)
		}

		exports[d.Name] = lc.exports
	}

	return exports, nil
}
