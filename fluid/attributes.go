package fluid

import (
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/fluidbridge/solver"
)

// ExtendedAttributes is render-side state the solver does not track.
type ExtendedAttributes struct {
	Orientation     quat.Number
	AngularVelocity r3.Vec
	VisualSize      r3.Vec
}

// DefaultAttributes is the state a particle gets when no spawn callback is set.
func DefaultAttributes() ExtendedAttributes {
	return ExtendedAttributes{
		Orientation: quat.Number{Real: 1},
		VisualSize:  r3.Vec{X: 1, Y: 1, Z: 1},
	}
}

// SpawnFunc initialises extended attributes the first time an ID becomes active.
type SpawnFunc func(id solver.ParticleID, rec solver.ParticleRecord) ExtendedAttributes

// AttributeStore holds ExtendedAttributes indexed by ParticleID. The solver never
// resets these; the bridge does so when an ID is reported as created.
type AttributeStore struct {
	attrs []ExtendedAttributes
}

// NewAttributeStore allocates n default entries.
func NewAttributeStore(n int) *AttributeStore {
	st := &AttributeStore{}
	st.Grow(n)
	return st
}

func (st *AttributeStore) Len() int { return len(st.attrs) }

// Grow extends the store to n entries, preserving existing state.
func (st *AttributeStore) Grow(n int) {
	for len(st.attrs) < n {
		st.attrs = append(st.attrs, DefaultAttributes())
	}
}

func (st *AttributeStore) Get(id solver.ParticleID) ExtendedAttributes {
	return st.attrs[id]
}

func (st *AttributeStore) Set(id solver.ParticleID, a ExtendedAttributes) {
	st.attrs[id] = a
}

// Reset restores the default for id.
func (st *AttributeStore) Reset(id solver.ParticleID) {
	st.attrs[id] = DefaultAttributes()
}

func (st *AttributeStore) at(id solver.ParticleID) *ExtendedAttributes {
	return &st.attrs[id]
}
