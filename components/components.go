// Package components defines ECS components for the scene.
package components

import (
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/fluidbridge/fluid"
)

// Transform places an entity in world space (meters, Z up).
type Transform struct {
	Position r3.Vec
	Rotation quat.Number
}

// Emitter owns one fluid binding. The entity must outlive the binding's
// MinOwnerLifespan so emitted particles can finish.
type Emitter struct {
	Binding *fluid.Binding
	Preset  string
	Hidden  bool // suppressed while hidden
}

// ForceField feeds an applicator into every fluid each tick.
type ForceField struct {
	Applicator fluid.Applicator
	Region     r3.Box // world-space bounds, refreshed from Transform
	Preset     string
	Kind       string // "radial" or "cylindrical"
	Enabled    bool
}

// Lifespan removes the entity once Remaining reaches zero.
type Lifespan struct {
	Remaining float64
}
