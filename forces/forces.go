// Package forces provides force field applicators for fluids.
package forces

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/fluidbridge/config"
)

const epsilon = 1e-6

// Falloff shapes how a radial force weakens with distance.
type Falloff uint8

const (
	FalloffConstant Falloff = iota
	FalloffLinear
)

// ParseFalloff maps a config string to a Falloff.
func ParseFalloff(s string) (Falloff, error) {
	switch s {
	case "", "constant":
		return FalloffConstant, nil
	case "linear":
		return FalloffLinear, nil
	}
	return FalloffConstant, fmt.Errorf("unknown falloff %q", s)
}

// Radial pushes particles away from Origin (or pulls, with negative Strength)
// and optionally swirls them around Up.
type Radial struct {
	Origin   r3.Vec
	Up       r3.Vec
	Radius   float64
	Strength float64
	Swirl    float64
	Falloff  Falloff
	Exclude  []r3.Box
}

// NewRadial builds a radial applicator at origin from a preset.
func NewRadial(cfg config.RadialForceConfig, origin r3.Vec) (*Radial, error) {
	fo, err := ParseFalloff(cfg.Falloff)
	if err != nil {
		return nil, fmt.Errorf("radial force %q: %w", cfg.Name, err)
	}
	return &Radial{
		Origin:   origin,
		Up:       r3.Vec{Z: 1},
		Radius:   cfg.Radius,
		Strength: cfg.Strength,
		Swirl:    cfg.Swirl,
		Falloff:  fo,
	}, nil
}

// Bounds is the region the field can affect.
func (f *Radial) Bounds() r3.Box {
	r := r3.Vec{X: f.Radius, Y: f.Radius, Z: f.Radius}
	return r3.Box{Min: r3.Sub(f.Origin, r), Max: r3.Add(f.Origin, r)}
}

// ComputeForce implements fluid.Applicator.
func (f *Radial) ComputeForce(positions, velocities, out []r3.Vec, bounds r3.Box) bool {
	if f.Radius <= 0 || excludesBox(f.Exclude, bounds) {
		return false
	}
	up := f.Up
	if r3.Norm2(up) == 0 {
		up = r3.Vec{Z: 1}
	}
	hit := false
	for i, p := range positions {
		if excluded(f.Exclude, p) {
			continue
		}
		delta := r3.Sub(p, f.Origin)
		dist := r3.Norm(delta)
		if dist > f.Radius || dist < epsilon {
			continue
		}
		dir := r3.Scale(1/dist, delta)
		mag := f.Strength
		if f.Falloff == FalloffLinear {
			mag *= 1 - dist/f.Radius
		}
		force := r3.Scale(mag, dir)
		if f.Swirl != 0 {
			force = r3.Add(force, r3.Scale(f.Swirl, r3.Cross(up, dir)))
		}
		if r3.Norm2(force) == 0 {
			continue
		}
		out[i] = r3.Add(out[i], force)
		hit = true
	}
	return hit
}

// Cylindrical is a vortex: particles inside a (possibly flared) cylinder are
// pulled towards the axis, spun around it and lifted along it.
type Cylindrical struct {
	Origin             r3.Vec
	Up                 r3.Vec
	Radius             float64
	RadiusTop          float64
	Height             float64
	RadialStrength     float64
	RotationalStrength float64
	LiftStrength       float64
	LiftFalloffHeight  float64 // fraction of Height
	EscapeVelocity     float64
	SpecialRadial      bool
	Exclude            []r3.Box
}

// NewCylindrical builds a cylindrical applicator standing on origin.
func NewCylindrical(cfg config.CylindricalForceConfig, origin r3.Vec) *Cylindrical {
	top := cfg.RadiusTop
	if top <= 0 {
		top = cfg.Radius
	}
	return &Cylindrical{
		Origin:             origin,
		Up:                 r3.Vec{Z: 1},
		Radius:             cfg.Radius,
		RadiusTop:          top,
		Height:             cfg.Height,
		RadialStrength:     cfg.RadialStrength,
		RotationalStrength: cfg.RotationalStrength,
		LiftStrength:       cfg.LiftStrength,
		LiftFalloffHeight:  cfg.LiftFalloffHeight,
		EscapeVelocity:     cfg.EscapeVelocity,
		SpecialRadial:      cfg.SpecialRadial,
	}
}

// Bounds is the box enclosing the cylinder, assuming an axis-aligned Up.
func (f *Cylindrical) Bounds() r3.Box {
	r := math.Max(f.Radius, f.RadiusTop)
	top := r3.Add(f.Origin, r3.Scale(f.Height, f.axis()))
	lo := r3.Vec{X: math.Min(f.Origin.X, top.X) - r, Y: math.Min(f.Origin.Y, top.Y) - r, Z: math.Min(f.Origin.Z, top.Z) - r}
	hi := r3.Vec{X: math.Max(f.Origin.X, top.X) + r, Y: math.Max(f.Origin.Y, top.Y) + r, Z: math.Max(f.Origin.Z, top.Z) + r}
	return r3.Box{Min: lo, Max: hi}
}

func (f *Cylindrical) axis() r3.Vec {
	if r3.Norm2(f.Up) == 0 {
		return r3.Vec{Z: 1}
	}
	return r3.Unit(f.Up)
}

// ComputeForce implements fluid.Applicator.
func (f *Cylindrical) ComputeForce(positions, velocities, out []r3.Vec, bounds r3.Box) bool {
	if f.Height <= 0 || excludesBox(f.Exclude, bounds) {
		return false
	}
	up := f.axis()
	hit := false
	for i, p := range positions {
		if excluded(f.Exclude, p) {
			continue
		}
		rel := r3.Sub(p, f.Origin)
		h := r3.Dot(rel, up)
		if h < 0 || h > f.Height {
			continue
		}
		unitHeight := h / f.Height
		radiusAt := f.Radius + (f.RadiusTop-f.Radius)*unitHeight
		radial := r3.Sub(rel, r3.Scale(h, up))
		dist := r3.Norm(radial)
		if radiusAt <= 0 || dist > radiusAt {
			continue
		}

		var force r3.Vec
		factor := dist / radiusAt
		if dist > epsilon {
			outward := r3.Scale(1/dist, radial)
			inward := r3.Scale(-1, outward)
			tangent := r3.Cross(up, outward)
			force = r3.Scale(f.RotationalStrength*(1-factor), tangent)

			if f.SpecialRadial {
				// Particles heading inwards below escape speed are held in.
				var v r3.Vec
				if i < len(velocities) {
					v = velocities[i]
				}
				if r3.Dot(v, inward) > 0 && r3.Norm(v) < f.EscapeVelocity {
					force = r3.Add(force, r3.Scale(f.RadialStrength*factor, inward))
				}
			} else {
				force = r3.Add(force, r3.Scale(f.RadialStrength*(1-factor), inward))
			}
		}

		lift := f.LiftStrength
		if f.LiftFalloffHeight < 1 && unitHeight > f.LiftFalloffHeight {
			lift *= 1 - (unitHeight-f.LiftFalloffHeight)/(1-f.LiftFalloffHeight)
		}
		force = r3.Add(force, r3.Scale(lift, up))

		if r3.Norm2(force) == 0 {
			continue
		}
		out[i] = r3.Add(out[i], force)
		hit = true
	}
	return hit
}

func excluded(boxes []r3.Box, p r3.Vec) bool {
	for _, b := range boxes {
		if p.X >= b.Min.X && p.X <= b.Max.X &&
			p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
			p.Z >= b.Min.Z && p.Z <= b.Max.Z {
			return true
		}
	}
	return false
}

// excludesBox reports whether some exclusion box fully contains packet.
func excludesBox(boxes []r3.Box, packet r3.Box) bool {
	for _, b := range boxes {
		if packet.Min.X >= b.Min.X && packet.Max.X <= b.Max.X &&
			packet.Min.Y >= b.Min.Y && packet.Max.Y <= b.Max.Y &&
			packet.Min.Z >= b.Min.Z && packet.Max.Z <= b.Max.Z {
			return true
		}
	}
	return false
}
