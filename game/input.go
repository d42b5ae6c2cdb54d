package game

import (
	rl "github.com/gen2brain/raylib-go/raylib"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/fluidbridge/solver"
	"github.com/pthm-cable/fluidbridge/ui"
)

// handleInput processes keyboard, mouse and control panel input.
func (g *Game) handleInput() {
	v := g.view
	g.handleResize()

	if rl.IsKeyPressed(rl.KeyF11) {
		rl.ToggleFullscreen()
	}
	if rl.IsKeyPressed(rl.KeySpace) {
		g.paused = !g.paused
	}
	if rl.IsKeyPressed(rl.KeyTab) {
		v.controls.Toggle()
	}

	act := v.actions
	if act.TogglePause {
		g.paused = !g.paused
	}
	if act.ToggleContext || rl.IsKeyPressed(rl.KeyE) {
		if g.Context() == solver.ContextGame {
			g.SetContext(solver.ContextEditor)
		} else {
			g.SetContext(solver.ContextGame)
		}
	}
	if act.ToggleSuppress || rl.IsKeyPressed(rl.KeyH) {
		g.SuppressAll(!g.suppress)
	}
	if act.NextPreset && len(v.presets) > 0 {
		v.selected = (v.selected + 1) % len(v.presets)
	}
	g.SetForceGain(float64(act.ForceGain))

	mouse := rl.GetMousePosition()
	overPanel := v.controls.Contains(mouse)
	world := v.cam.ScreenToWorld(mouse.X, mouse.Y)

	if len(v.presets) > 0 {
		preset := v.presets[v.selected]
		if act.SpawnEmitter {
			g.spawnFromUI(preset, v.cam.Center)
		}
		if !overPanel && rl.IsMouseButtonPressed(rl.MouseButtonLeft) {
			g.spawnFromUI(preset, world)
		}
	}
	if len(g.cfg.Forces.Radial) > 0 {
		pulse := g.cfg.Forces.Radial[0].Name
		if act.Pulse {
			g.pulseFromUI(pulse, v.cam.Center)
		}
		if !overPanel && rl.IsMouseButtonPressed(rl.MouseButtonRight) {
			g.pulseFromUI(pulse, world)
		}
	}
	v.actions = ui.ControlActions{ForceGain: act.ForceGain}

	g.handleCameraInput()
}

func (g *Game) spawnFromUI(preset string, pos r3.Vec) {
	if _, err := g.SpawnEmitter(preset, pos, 0); err != nil {
		g.log.Warn("spawning emitter", "preset", preset, "error", err)
	}
}

func (g *Game) pulseFromUI(preset string, pos r3.Vec) {
	if err := g.Pulse(preset, pos); err != nil {
		g.log.Warn("radial pulse", "error", err)
	}
}

// handleResize checks for window resize and propagates new dimensions.
func (g *Game) handleResize() {
	if !rl.IsWindowResized() {
		return
	}
	v := g.view
	v.width = int32(rl.GetScreenWidth())
	v.height = int32(rl.GetScreenHeight())
	v.cam.Resize(float32(v.width), float32(v.height))
}

// handleCameraInput processes camera pan/zoom controls.
func (g *Game) handleCameraInput() {
	cam := g.view.cam
	panSpeed := float32(8.0)

	if rl.IsKeyDown(rl.KeyRight) {
		cam.Pan(panSpeed, 0)
	}
	if rl.IsKeyDown(rl.KeyLeft) {
		cam.Pan(-panSpeed, 0)
	}
	if rl.IsKeyDown(rl.KeyDown) {
		cam.Pan(0, panSpeed)
	}
	if rl.IsKeyDown(rl.KeyUp) {
		cam.Pan(0, -panSpeed)
	}

	if wheel := rl.GetMouseWheelMove(); wheel != 0 {
		cam.ZoomBy(1 + wheel*0.1)
	}
	if rl.IsKeyPressed(rl.KeyEqual) || rl.IsKeyPressed(rl.KeyKpAdd) {
		cam.ZoomBy(1.25)
	}
	if rl.IsKeyPressed(rl.KeyMinus) || rl.IsKeyPressed(rl.KeyKpSubtract) {
		cam.ZoomBy(0.8)
	}
	if rl.IsKeyPressed(rl.KeyHome) {
		cam.Reset()
	}
}
