// Package base defines the two foundation modules every feature module
// depends on: "collab", which exports the room's shared-document store and
// awareness, and "reducers", which exports registration into the room's
// reducer pipeline. Feature modules never touch the engine directly; they
// reach it through these typed export contracts.
package base

import (
	"fmt"

	"github.com/dyluth/drey/pkg/collab"
	"github.com/dyluth/drey/pkg/module"
)

// Module names, used as dependency keys by feature modules.
const (
	CollabName   = "collab"
	ReducersName = "reducers"
)

// CollabExports is published by the collab module.
type CollabExports struct {
	Store     collab.Store
	Awareness *collab.Awareness
}

// ReducersExports is published by the reducers module. Register appends a
// reducer to the room pipeline; the order of Register calls across module
// loads is the pipeline's handling order.
type ReducersExports struct {
	Register func(collab.Reducer)
}

// Collab builds the collab module descriptor for one room.
func Collab(store collab.Store, awareness *collab.Awareness) module.Descriptor {
	return module.Descriptor{
		Name:    CollabName,
		Version: "0.1.0",
		Load: func(lc *module.LoadContext) error {
			return lc.Exports(CollabExports{
				Store:     store,
				Awareness: awareness,
			})
		},
	}
}

// Reducers builds the reducers module descriptor for one room.
func Reducers(p *collab.Processor) module.Descriptor {
	return module.Descriptor{
		Name:    ReducersName,
		Version: "0.1.0",
		Load: func(lc *module.LoadContext) error {
			return lc.Exports(ReducersExports{
				Register: p.Register,
			})
		},
	}
}

// FromContext resolves the two foundation export objects from a feature
// module's load context.
func FromContext(lc *module.LoadContext) (CollabExports, ReducersExports, error) {
	c, err := module.DepExports[CollabExports](lc, CollabName)
	if err != nil {
		return CollabExports{}, ReducersExports{}, fmt.Errorf("resolving collab exports: %w", err)
	}
	r, err := module.DepExports[ReducersExports](lc, ReducersName)
	if err != nil {
		return CollabExports{}, ReducersExports{}, fmt.Errorf("resolving reducers exports: %w", err)
	}
	return c, r, nil
}
