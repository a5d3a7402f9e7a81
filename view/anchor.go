package view

import (
	"math"

	"github.com/lofgren/tideview/mathhelp"
)

const (
	// maxPixel is the largest pixel offset the host display can address
	// for a renderable, a signed 16-bit limit common to 2D scene graphs.
	maxPixel = float64(math.MaxInt16)

	// Below this zoom the whole grid fits inside maxPixel and no anchor
	// is needed.
	anchorZoomThreshold = 8
)

// anchor is the pixel offset subtracted from every raw grid coordinate
// before it reaches the display. It keeps on-screen positions inside
// maxPixel at deep zooms.
type anchor struct {
	x, y float64
	zoom int
}

// update recomputes the anchor for a viewport centered at the raw pixel
// coordinate (centerX, centerY) and returns the delta it moved by. The
// caller compensates its origin by the same delta so the change is
// invisible on screen.
func (a *anchor) update(zoom int, centerX, centerY, viewportW, viewportH, gridW, gridH float64) (dx, dy float64) {
	oldX, oldY := a.x, a.y

	if zoom < anchorZoomThreshold {
		a.x, a.y = 0, 0
		a.zoom = zoom
		return a.x - oldX, a.y - oldY
	}

	stale := a.zoom != zoom ||
		centerX-a.x+viewportW >= maxPixel ||
		centerY-a.y+viewportH >= maxPixel
	if stale {
		a.x = mathhelp.Clamp(centerX-maxPixel/2, 0, math.Max(0, gridW-maxPixel/2))
		a.y = mathhelp.Clamp(centerY-maxPixel/2, 0, math.Max(0, gridH-maxPixel/2))
		a.zoom = zoom
	}
	return a.x - oldX, a.y - oldY
}
