// Package renderer draws fluids, emitters and force fields with raylib.
package renderer

import (
	"math"

	rl "github.com/gen2brain/raylib-go/raylib"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/fluidbridge/camera"
	"github.com/pthm-cable/fluidbridge/fluid"
)

// ParticleRenderer draws the active set of a fluid.
type ParticleRenderer struct {
	cam *camera.Camera
}

// NewParticleRenderer creates a new particle renderer drawing through cam.
func NewParticleRenderer(cam *camera.Camera) *ParticleRenderer {
	return &ParticleRenderer{cam: cam}
}

func (r *ParticleRenderer) screen(p r3.Vec) rl.Vector2 {
	x, y := r.cam.WorldToScreen(p)
	return rl.Vector2{X: x, Y: y}
}

// Draw renders every active particle of h. maxLife fades particles as they
// age; oriented draws each particle's local X axis.
func (r *ParticleRenderer) Draw(h *fluid.Handle, base rl.Color, maxLife float64, oriented bool) {
	for _, id := range h.ActiveIDs() {
		rec := h.ParticleRecord(id)
		if !r.cam.IsVisible(rec.Position, 1) {
			continue
		}
		attrs := h.ExtendedAttributes(id)

		age := float32(rec.RelativeTime(maxLife))
		age = min(max(age, 0), 1)
		color := base
		color.A = uint8(float32(base.A) * (1 - 0.7*age))

		size := r.cam.Pixels(attrs.VisualSize.X * 0.08)
		size = max(size, 1.5)

		pos := r.screen(rec.Position)
		rl.DrawCircleV(pos, size, color)

		if oriented {
			axis := rotate(attrs.Orientation, r3.Vec{X: 1})
			tip := rl.Vector2{
				X: pos.X + float32(axis.X)*size*2,
				Y: pos.Y - float32(axis.Z)*size*2,
			}
			rl.DrawLineV(pos, tip, rl.Fade(rl.White, 0.6))
		}
	}
}

// DrawBounds outlines a world box in the side view.
func (r *ParticleRenderer) DrawBounds(b r3.Box, color rl.Color) {
	lo := r.screen(b.Min)
	hi := r.screen(b.Max)
	rl.DrawRectangleLinesEx(rl.Rectangle{
		X:      lo.X,
		Y:      hi.Y,
		Width:  hi.X - lo.X,
		Height: lo.Y - hi.Y,
	}, 1, color)
}

// DrawGround draws the ground plane at world height z.
func (r *ParticleRenderer) DrawGround(z float64, width int32) {
	y := int32(r.screen(r3.Vec{Z: z}).Y)
	rl.DrawLine(0, y, width, y, rl.Color{R: 90, G: 80, B: 70, A: 255})
}

// DrawEmitter draws an emitter marker. Disabled emitters are hollow.
func (r *ParticleRenderer) DrawEmitter(pos r3.Vec, enabled, primary bool) {
	p := r.screen(pos)
	color := rl.SkyBlue
	if primary {
		color = rl.Gold
	}
	if enabled {
		rl.DrawPoly(p, 3, 8, 180, color)
	} else {
		rl.DrawPolyLines(p, 3, 8, 180, color)
	}
}

// DrawForce draws a force field region.
func (r *ParticleRenderer) DrawForce(region r3.Box, cylindrical bool) {
	color := rl.Fade(rl.Red, 0.5)
	if cylindrical {
		color = rl.Fade(rl.Purple, 0.5)
	}
	r.DrawBounds(region, color)
	c := r3.Scale(0.5, r3.Add(region.Min, region.Max))
	radius := r.cam.Pixels(math.Abs(region.Max.X-region.Min.X) / 2)
	p := r.screen(c)
	rl.DrawCircleLines(int32(p.X), int32(p.Y), radius, color)
}

func rotate(q quat.Number, v r3.Vec) r3.Vec {
	p := quat.Mul(quat.Mul(q, quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}), quat.Conj(q))
	return r3.Vec{X: p.Imag, Y: p.Jmag, Z: p.Kmag}
}
