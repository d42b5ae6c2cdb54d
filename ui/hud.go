package ui

import (
	"fmt"

	rl "github.com/gen2brain/raylib-go/raylib"
)

// FluidLine is one row of the fluid table.
type FluidLine struct {
	Name     string
	Context  string
	Primary  string
	Bindings int
	Active   int
	Capacity int
	Packets  int
	Culled   int
	Rebuilt  bool
	Handoff  bool
	Stepping bool
}

// HUDData holds all the data needed to render the main HUD.
type HUDData struct {
	Title      string
	Tick       int32
	FPS        int32
	Paused     bool
	Context    string
	Suppressed bool
	Emitters   int
	Forces     int
	Particles  int
	Fluids     []FluidLine
}

// HUD renders the main heads-up display.
type HUD struct {
	theme Theme
}

// NewHUD creates a new HUD renderer.
func NewHUD() *HUD {
	return &HUD{theme: DefaultTheme()}
}

// Draw renders the HUD.
func (h *HUD) Draw(data HUDData) {
	rl.DrawText(data.Title, 10, 10, 20, rl.White)
	rl.DrawText(
		fmt.Sprintf("Tick: %d | FPS: %d | Context: %s", data.Tick, data.FPS, data.Context),
		10, 35, 16, rl.LightGray,
	)
	rl.DrawText(
		fmt.Sprintf("Emitters: %d | Forces: %d | Particles: %d", data.Emitters, data.Forces, data.Particles),
		10, 55, 16, rl.LightGray,
	)

	status := "Running"
	if data.Paused {
		status = "PAUSED"
	}
	if data.Suppressed {
		status += " | emitters hidden"
	}
	rl.DrawText(status, 10, 75, 16, rl.Yellow)

	h.drawFluids(data.Fluids, 10, 100)
}

func (h *HUD) drawFluids(lines []FluidLine, x, y int32) {
	if len(lines) == 0 {
		return
	}
	t := h.theme
	width := int32(430)
	height := t.Padding*2 + t.LineHeight*int32(len(lines)+1)
	t.drawPanel(x, y, width, height)

	y += t.Padding
	rl.DrawText("fluid      ctx     primary     bind  active/cap    pk  cull", x+t.Padding, y, t.FontSize, t.SectionHeader)
	y += t.LineHeight
	for _, l := range lines {
		color := t.ValueColor
		switch {
		case l.Handoff:
			color = rl.Orange
		case l.Rebuilt:
			color = rl.Yellow
		}
		primary := l.Primary
		if primary == "" {
			primary = "-"
		}
		rl.DrawText(
			fmt.Sprintf("%-10s %-7s %-11s %4d  %5d/%-5d %4d  %4d", l.Name, l.Context, primary, l.Bindings, l.Active, l.Capacity, l.Packets, l.Culled),
			x+t.Padding, y, t.FontSize, color,
		)
		y += t.LineHeight
	}
}
