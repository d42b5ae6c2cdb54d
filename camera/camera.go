// Package camera provides a side-view camera over the fluid world.
// World X maps to screen right and world Z maps to screen up; Y is dropped.
package camera

import "gonum.org/v1/gonum/spatial/r3"

// Camera controls the viewport into the world.
type Camera struct {
	// Center is the world point shown at the middle of the viewport
	Center r3.Vec

	// Zoom level on top of PixelsPerMeter (1.0 = unscaled)
	Zoom           float32
	PixelsPerMeter float32

	// Viewport dimensions (screen size)
	ViewportW, ViewportH float32

	// Zoom constraints
	MinZoom, MaxZoom float32

	home r3.Vec
}

// New creates a camera looking at home.
func New(viewportW, viewportH, pixelsPerMeter float32, home r3.Vec) *Camera {
	return &Camera{
		Center:         home,
		Zoom:           1.0,
		PixelsPerMeter: pixelsPerMeter,
		ViewportW:      viewportW,
		ViewportH:      viewportH,
		MinZoom:        0.25,
		MaxZoom:        4.0,
		home:           home,
	}
}

func (c *Camera) scale() float32 { return c.PixelsPerMeter * c.Zoom }

// WorldToScreen converts a world point to screen coordinates.
func (c *Camera) WorldToScreen(p r3.Vec) (sx, sy float32) {
	s := c.scale()
	sx = c.ViewportW/2 + float32(p.X-c.Center.X)*s
	sy = c.ViewportH/2 - float32(p.Z-c.Center.Z)*s
	return sx, sy
}

// ScreenToWorld converts screen coordinates to a world point on the
// camera's Y plane.
func (c *Camera) ScreenToWorld(sx, sy float32) r3.Vec {
	s := c.scale()
	return r3.Vec{
		X: c.Center.X + float64((sx-c.ViewportW/2)/s),
		Y: c.Center.Y,
		Z: c.Center.Z - float64((sy-c.ViewportH/2)/s),
	}
}

// Pixels converts a world length to screen pixels.
func (c *Camera) Pixels(meters float64) float32 {
	return float32(meters) * c.scale()
}

// IsVisible returns true if a sphere at p with the given radius could be
// on screen (conservative check for culling).
func (c *Camera) IsVisible(p r3.Vec, radius float64) bool {
	minX, minZ, maxX, maxZ := c.VisibleWorldBounds()
	return p.X+radius >= minX && p.X-radius <= maxX &&
		p.Z+radius >= minZ && p.Z-radius <= maxZ
}

// Resize updates viewport dimensions.
func (c *Camera) Resize(viewportW, viewportH float32) {
	c.ViewportW = viewportW
	c.ViewportH = viewportH
}

// Pan moves the camera by the given delta in screen pixels.
func (c *Camera) Pan(dx, dy float32) {
	s := c.scale()
	c.Center.X += float64(dx / s)
	c.Center.Z -= float64(dy / s)
}

// SetZoom sets the zoom level, clamped to min/max.
func (c *Camera) SetZoom(zoom float32) {
	c.Zoom = min(max(zoom, c.MinZoom), c.MaxZoom)
}

// ZoomBy multiplies the current zoom by the given factor.
func (c *Camera) ZoomBy(factor float32) {
	c.SetZoom(c.Zoom * factor)
}

// Reset returns the camera to its home position and zoom.
func (c *Camera) Reset() {
	c.Center = c.home
	c.Zoom = 1.0
}

// VisibleWorldBounds returns the world X/Z extent of the viewport.
func (c *Camera) VisibleWorldBounds() (minX, minZ, maxX, maxZ float64) {
	s := c.scale()
	halfW := float64(c.ViewportW / (2 * s))
	halfH := float64(c.ViewportH / (2 * s))
	return c.Center.X - halfW, c.Center.Z - halfH, c.Center.X + halfW, c.Center.Z + halfH
}
