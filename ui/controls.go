package ui

import (
	"fmt"

	gui "github.com/gen2brain/raylib-go/raygui"
	rl "github.com/gen2brain/raylib-go/raylib"
)

// ControlState is what the panel shows.
type ControlState struct {
	Paused     bool
	Editor     bool
	Suppressed bool
	ForceGain  float32
	Presets    []string
	Selected   int
}

// ControlActions reports what the user clicked this frame.
type ControlActions struct {
	TogglePause    bool
	ToggleContext  bool
	ToggleSuppress bool
	SpawnEmitter   bool
	Pulse          bool
	NextPreset     bool
	ForceGain      float32
}

// ControlsPanel renders the right-side control panel.
type ControlsPanel struct {
	theme   Theme
	x, y    float32
	width   float32
	visible bool
}

// NewControlsPanel creates a new controls panel.
func NewControlsPanel(x, y, width int32) *ControlsPanel {
	return &ControlsPanel{
		theme:   DefaultTheme(),
		x:       float32(x),
		y:       float32(y),
		width:   float32(width),
		visible: true,
	}
}

// Toggle switches panel visibility.
func (c *ControlsPanel) Toggle() bool {
	c.visible = !c.visible
	return c.visible
}

// Contains reports whether a screen point is over the panel.
func (c *ControlsPanel) Contains(p rl.Vector2) bool {
	return c.visible && rl.CheckCollisionPointRec(p, rl.Rectangle{X: c.x, Y: c.y, Width: c.width, Height: 290})
}

// Draw renders the panel and returns the actions taken.
func (c *ControlsPanel) Draw(s ControlState) ControlActions {
	act := ControlActions{ForceGain: s.ForceGain}
	if !c.visible {
		return act
	}

	t := c.theme
	pad := float32(t.Padding)
	t.drawPanel(int32(c.x), int32(c.y), int32(c.width), 290)

	x := c.x + pad
	y := c.y + pad
	w := c.width - 2*pad
	rl.DrawText("Controls", int32(x), int32(y), t.HeaderSize+2, t.SectionHeader)
	y += 26

	button := func(label string) bool {
		hit := gui.Button(rl.Rectangle{X: x, Y: y, Width: w, Height: 26}, label)
		y += 32
		return hit
	}

	act.TogglePause = button(toggleText(s.Paused, "Resume", "Pause"))
	act.ToggleContext = button(toggleText(s.Editor, "Switch to game", "Switch to editor"))
	act.ToggleSuppress = button(toggleText(s.Suppressed, "Show emitters", "Hide emitters"))

	preset := "-"
	if s.Selected >= 0 && s.Selected < len(s.Presets) {
		preset = s.Presets[s.Selected]
	}
	act.NextPreset = button(fmt.Sprintf("Preset: %s", preset))
	act.SpawnEmitter = button("Spawn emitter")
	act.Pulse = button("Radial pulse")

	rl.DrawText("Force gain", int32(x), int32(y), t.FontSize, t.LabelColor)
	y += 16
	act.ForceGain = gui.SliderBar(
		rl.Rectangle{X: x, Y: y, Width: w - 40, Height: 18},
		"", fmt.Sprintf("%.1f", s.ForceGain),
		s.ForceGain, 0, 4,
	)
	return act
}

func toggleText(on bool, whenOn, whenOff string) string {
	if on {
		return whenOn
	}
	return whenOff
}
