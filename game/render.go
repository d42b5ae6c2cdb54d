package game

import (
	"cmp"
	"hash/fnv"
	"slices"

	rl "github.com/gen2brain/raylib-go/raylib"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/fluidbridge/camera"
	"github.com/pthm-cable/fluidbridge/config"
	"github.com/pthm-cable/fluidbridge/fluid"
	"github.com/pthm-cable/fluidbridge/renderer"
	"github.com/pthm-cable/fluidbridge/solver"
	"github.com/pthm-cable/fluidbridge/ui"
)

// viewer holds graphical-mode state. Nil in headless runs.
type viewer struct {
	cam       *camera.Camera
	particles *renderer.ParticleRenderer
	hud       *ui.HUD
	controls  *ui.ControlsPanel
	presets   []string
	selected  int
	actions   ui.ControlActions
	width     int32
	height    int32
}

func newViewer(cfg *config.Config) *viewer {
	w, h := int32(cfg.Screen.Width), int32(cfg.Screen.Height)
	cam := camera.New(float32(w), float32(h), float32(cfg.Screen.PixelsPerMeter), r3.Vec{Z: 5})
	presets := make([]string, 0, len(cfg.Emitters))
	for _, e := range cfg.Emitters {
		presets = append(presets, e.Name)
	}
	return &viewer{
		cam:       cam,
		particles: renderer.NewParticleRenderer(cam),
		hud:       ui.NewHUD(),
		controls:  ui.NewControlsPanel(w-230, 10, 220),
		presets:   presets,
		actions:   ui.ControlActions{ForceGain: 1},
		width:     w,
		height:    h,
	}
}

func (v *viewer) unload() {}

// Draw renders the scene, HUD and controls.
func (g *Game) Draw() {
	v := g.view
	if v == nil {
		return
	}
	rl.BeginDrawing()
	defer rl.EndDrawing()

	rl.ClearBackground(rl.Color{R: 12, G: 16, B: 22, A: 255})
	v.particles.DrawGround(g.cfg.Physics.GroundHeight, v.width)

	fq := g.forceFilter.Query()
	for fq.Next() {
		_, ff := fq.Get()
		v.particles.DrawForce(ff.Region, ff.Kind == "cylindrical")
	}

	// Each shared fluid is drawn once, through its primary binding.
	eq := g.emitterFilter.Query()
	for eq.Next() {
		tr, em := eq.Get()
		b := em.Binding
		if b.RenderCount() > 0 {
			v.particles.Draw(b.Handle(), fluidColor(b.Handle().Name()), b.Config().ParticleLifetime, b.Orientation() != fluid.OrientationNone)
		}
		v.particles.DrawEmitter(tr.Position, b.Enabled(), b.IsPrimary())
	}

	v.hud.Draw(g.hudData())
	v.actions = v.controls.Draw(ui.ControlState{
		Paused:     g.paused,
		Editor:     g.Context() == solver.ContextEditor,
		Suppressed: g.suppress,
		ForceGain:  float32(g.forceGain),
		Presets:    v.presets,
		Selected:   v.selected,
	})
}

func (g *Game) hudData() ui.HUDData {
	data := ui.HUDData{
		Title:      "Fluid Bridge",
		Tick:       g.tick,
		FPS:        rl.GetFPS(),
		Paused:     g.paused,
		Context:    g.Context().String(),
		Suppressed: g.suppress,
		Emitters:   g.CountEmitters(),
		Forces:     g.CountForces(),
		Particles:  g.ParticleCount(),
	}
	for _, h := range g.sys.Handles() {
		line := ui.FluidLine{
			Name:     h.Name(),
			Context:  h.Context().String(),
			Bindings: len(h.Bindings()),
			Active:   h.ActiveCount(),
			Capacity: h.Capacity(),
			Packets:  h.Stats().Packets,
			Culled:   h.Stats().Culled,
			Rebuilt:  h.Stats().Rebuilt,
			Handoff:  h.Stats().Handoff,
			Stepping: h.Stepping(),
		}
		if p := h.Primary(); p != nil {
			line.Primary = p.Name()
		}
		data.Fluids = append(data.Fluids, line)
	}
	slices.SortFunc(data.Fluids, func(a, b ui.FluidLine) int { return cmp.Compare(a.Name, b.Name) })
	return data
}

var palette = []rl.Color{
	{R: 80, G: 160, B: 255, A: 220},
	{R: 200, G: 170, B: 120, A: 230},
	{R: 120, G: 230, B: 160, A: 220},
	{R: 240, G: 120, B: 160, A: 220},
}

// fluidColor picks a stable color per fluid name.
func fluidColor(name string) rl.Color {
	h := fnv.New32a()
	h.Write([]byte(name))
	return palette[h.Sum32()%uint32(len(palette))]
}
