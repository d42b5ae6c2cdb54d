package game

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/fluidbridge/fluid"
)

type boundedApplicator interface {
	fluid.Applicator
	Bounds() r3.Box
}

// gained scales another applicator's output.
type gained struct {
	app     fluid.Applicator
	gain    float64
	scratch []r3.Vec
}

func (a *gained) ComputeForce(positions, velocities, out []r3.Vec, bounds r3.Box) bool {
	if cap(a.scratch) < len(out) {
		a.scratch = make([]r3.Vec, len(out))
	}
	a.scratch = a.scratch[:len(out)]
	clear(a.scratch)
	if !a.app.ComputeForce(positions, velocities, a.scratch, bounds) {
		return false
	}
	for i, f := range a.scratch {
		out[i] = r3.Add(out[i], r3.Scale(a.gain, f))
	}
	return true
}

// applyForceFields feeds every enabled field into the fluids. Runs during
// the async phase against the previous tick's snapshot.
func (g *Game) applyForceFields() {
	if g.forceGain == 0 {
		return
	}
	scaled := &gained{gain: g.forceGain}
	query := g.forceFilter.Query()
	for query.Next() {
		_, ff := query.Get()
		if !ff.Enabled {
			continue
		}
		app := ff.Applicator
		if g.forceGain != 1 {
			scaled.app = app
			app = scaled
		}
		g.sys.RequestForce(app, ff.Region)
	}
}

// Pulse spawns a short-lived radial force at pos.
func (g *Game) Pulse(preset string, pos r3.Vec) error {
	if _, err := g.SpawnRadialForce(preset, pos, 0.25); err != nil {
		return fmt.Errorf("pulse: %w", err)
	}
	return nil
}
