// Package view implements a slippy-map viewport: it projects a
// geographic center into a per-zoom pixel grid, reconciles the set of
// visible tiles against a host display, and animates recentering. The
// view holds no widgets and draws nothing itself; the host supplies a
// Display and drives frames.
//
// Everything in this package runs on one logical thread of control.
// Tile fetches run concurrently inside the Source, but their completion
// callbacks must be dispatched back onto the host loop.
package view

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/lofgren/tideview/geomhelp"
	"github.com/lofgren/tideview/mapsource"
	"github.com/lofgren/tideview/mathhelp"
)

// ErrZoomUnsupported is returned when a requested zoom level is outside
// the source's range or equal to the current one.
var ErrZoomUnsupported = errors.New("view: unsupported zoom level")

const defaultZoom = 3

// Hooks are optional host callbacks. All fire synchronously on the
// host's logical thread; a nil field is skipped.
type Hooks struct {
	// OnCenterChanged fires after every recenter, including each
	// animation frame.
	OnCenterChanged func(lat, lon float64)
	OnZoomChanged   func(zoom int)
	// OnStateChanged fires when the aggregate tile state changes.
	OnStateChanged func(state State)
	// OnAnimationEnded fires when a go-to animation ends, with
	// completed true on arrival and false when stopped.
	OnAnimationEnded func(completed bool)
}

type rect struct {
	x, y, w, h float64
}

// View is the viewport controller. It is created idle: until the first
// CenterOn call there is no tile grid and zoom and scroll operations
// are no-ops.
type View struct {
	source  mapsource.Source
	display Display
	hooks   Hooks
	clock   Clock
	logger  *slog.Logger

	zoom    int
	minZoom int
	maxZoom int

	lat, lon float64
	level    *ZoomLevel
	anchor   anchor
	// viewport origin is in anchored pixel space: raw grid coordinate
	// minus the anchor.
	viewport rect

	state       State
	goTo        *goToContext
	queue       *taskQueue
	reconciling bool
}

type ViewOption func(*View)

func WithHooks(hooks Hooks) ViewOption {
	return func(v *View) { v.hooks = hooks }
}

func WithClock(clock Clock) ViewOption {
	return func(v *View) { v.clock = clock }
}

func WithLogger(logger *slog.Logger) ViewOption {
	return func(v *View) { v.logger = logger }
}

// WithZoom sets the initial zoom level, clamped to the source's range.
func WithZoom(zoom int) ViewOption {
	return func(v *View) { v.zoom = zoom }
}

func New(source mapsource.Source, display Display, opts ...ViewOption) *View {
	v := &View{
		source:  source,
		display: display,
		clock:   systemClock{},
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		zoom:    defaultZoom,
		minZoom: source.MinZoom(),
		maxZoom: source.MaxZoom(),
		state:   StateInit,
		queue:   newTaskQueue(),
	}
	for _, opt := range opts {
		opt(v)
	}
	v.zoom = mathhelp.ClampInt(v.zoom, v.minZoom, v.maxZoom)
	return v
}

func (v *View) Source() mapsource.Source { return v.source }
func (v *View) Zoom() int                { return v.zoom }
func (v *View) MinZoom() int             { return v.minZoom }
func (v *View) MaxZoom() int             { return v.maxZoom }
func (v *View) State() State             { return v.state }

// Center returns the geographic coordinate at the viewport's center.
func (v *View) Center() (lat, lon float64) { return v.lat, v.lon }

// Level returns the current tile grid, nil before the first CenterOn.
func (v *View) Level() *ZoomLevel { return v.level }

// VisibleRect returns the viewport in anchored pixel space.
func (v *View) VisibleRect() (x, y, w, h float64) {
	return v.viewport.x, v.viewport.y, v.viewport.w, v.viewport.h
}

// Anchor returns the pixel offset subtracted from raw grid coordinates
// before they reach the display. Hosts positioning their own overlays
// must subtract it the same way.
func (v *View) Anchor() (x, y float64) { return v.anchor.x, v.anchor.y }

// CenterOn centers the viewport on the coordinate and reconciles the
// visible tiles. The first call creates the tile grid. An out-of-bounds
// coordinate is rejected with the projection error and the view is left
// unchanged.
func (v *View) CenterOn(lat, lon float64) error {
	x, err := v.source.X(v.zoom, lon)
	if err != nil {
		return err
	}
	y, err := v.source.Y(v.zoom, lat)
	if err != nil {
		return err
	}

	v.lat, v.lon = lat, lon
	if v.level == nil {
		v.level = NewZoomLevel(v.zoom, v.source.Columns(v.zoom), v.source.Rows(v.zoom), v.source.TileSize())
	}

	v.anchor.update(v.zoom, x, y, v.viewport.w, v.viewport.h,
		float64(v.level.Width()), float64(v.level.Height()))
	// The origin is recomputed from the raw coordinate, so any anchor
	// move is already folded in.
	v.viewport.x = x - v.anchor.x - v.viewport.w/2
	v.viewport.y = y - v.anchor.y - v.viewport.h/2

	if v.hooks.OnCenterChanged != nil {
		v.hooks.OnCenterChanged(lat, lon)
	}
	v.reconcile()
	v.repositionTiles()
	return nil
}

// SetVisibleRect moves and resizes the viewport in anchored pixel
// space. The center coordinate is re-derived from the new rectangle.
// Before the first CenterOn only the size is recorded.
func (v *View) SetVisibleRect(x, y, w, h float64) {
	if v.level == nil {
		v.viewport = rect{x: x, y: y, w: w, h: h}
		return
	}

	v.viewport = rect{x: x, y: y, w: w, h: h}
	centerX := x + v.anchor.x + w/2
	centerY := y + v.anchor.y + h/2
	dx, dy := v.anchor.update(v.zoom, centerX, centerY, w, h,
		float64(v.level.Width()), float64(v.level.Height()))
	if dx != 0 || dy != 0 {
		// Compensate so the move is invisible on screen.
		v.viewport.x -= dx
		v.viewport.y -= dy
		v.repositionTiles()
	}

	lat, latErr := v.source.Latitude(v.zoom, v.viewport.y+v.anchor.y+h/2)
	lon, lonErr := v.source.Longitude(v.zoom, v.viewport.x+v.anchor.x+w/2)
	if latErr == nil && lonErr == nil {
		v.lat, v.lon = lat, lon
		if v.hooks.OnCenterChanged != nil {
			v.hooks.OnCenterChanged(lat, lon)
		}
	}
	v.reconcile()
}

// SetZoom changes the zoom level, keeping the current center fixed. The
// old grid is released before the new one is populated.
func (v *View) SetZoom(zoom int) error {
	if v.level == nil {
		return nil
	}
	if zoom == v.zoom || zoom < v.minZoom || zoom > v.maxZoom {
		return fmt.Errorf("%w: %d", ErrZoomUnsupported, zoom)
	}
	v.StopGoTo()
	v.zoom = zoom
	lat, lon := v.lat, v.lon
	v.releaseLevel()
	if err := v.CenterOn(lat, lon); err != nil {
		return err
	}
	if v.hooks.OnZoomChanged != nil {
		v.hooks.OnZoomChanged(zoom)
	}
	return nil
}

// SetZoomAt changes the zoom level while keeping the geographic point
// under the viewport coordinate (sx, sy) fixed on screen.
func (v *View) SetZoomAt(zoom int, sx, sy float64) error {
	if v.level == nil {
		return nil
	}
	if zoom == v.zoom || zoom < v.minZoom || zoom > v.maxZoom {
		return fmt.Errorf("%w: %d", ErrZoomUnsupported, zoom)
	}

	lat, lon, err := v.CoordsAt(sx, sy)
	if err != nil {
		return err
	}
	xDiff := v.viewport.w/2 - sx
	yDiff := v.viewport.h/2 - sy

	v.StopGoTo()
	v.zoom = zoom

	x2, err := v.source.X(zoom, lon)
	if err != nil {
		return err
	}
	y2, err := v.source.Y(zoom, lat)
	if err != nil {
		return err
	}
	lon2, err := v.source.Longitude(zoom, x2+xDiff)
	if err != nil {
		return err
	}
	lat2, err := v.source.Latitude(zoom, y2+yDiff)
	if err != nil {
		return err
	}

	v.releaseLevel()
	if err := v.CenterOn(lat2, lon2); err != nil {
		return err
	}
	if v.hooks.OnZoomChanged != nil {
		v.hooks.OnZoomChanged(zoom)
	}
	return nil
}

// CoordsAt unprojects a viewport coordinate to a geographic one.
func (v *View) CoordsAt(sx, sy float64) (lat, lon float64, err error) {
	lon, err = v.source.Longitude(v.zoom, v.viewport.x+v.anchor.x+sx)
	if err != nil {
		return 0, 0, err
	}
	lat, err = v.source.Latitude(v.zoom, v.viewport.y+v.anchor.y+sy)
	if err != nil {
		return 0, 0, err
	}
	return lat, lon, nil
}

// SetSource swaps the tile source. The zoom level is clamped into the
// new source's range and the grid reloads around the current center.
func (v *View) SetSource(source mapsource.Source) {
	if source == v.source {
		return
	}
	v.source = source
	v.minZoom = source.MinZoom()
	v.maxZoom = source.MaxZoom()

	zoom := mathhelp.ClampInt(v.zoom, v.minZoom, v.maxZoom)
	zoomChanged := zoom != v.zoom
	v.zoom = zoom

	if v.level == nil {
		return
	}
	v.releaseLevel()
	_ = v.CenterOn(v.lat, v.lon)
	if zoomChanged && v.hooks.OnZoomChanged != nil {
		v.hooks.OnZoomChanged(zoom)
	}
}

// EnsureVisible fits the box spanned by the two coordinates into the
// viewport, padded by ten percent, stepping the zoom down from the
// current level until the box fits. When even the minimum zoom cannot
// fit it, the view falls back to the minimum zoom centered on the
// grid origin.
func (v *View) EnsureVisible(lat1, lon1, lat2, lon2 float64, animate bool) error {
	box := geomhelp.Pad(geomhelp.BBox(lat1, lon1, lat2, lon2), 1.1)
	minLat, maxLat, minLon, maxLon := v.source.Bounds()
	loLat := math.Max(box.MinY(), minLat)
	hiLat := math.Min(box.MaxY(), maxLat)
	loLon := math.Max(box.MinX(), minLon)
	hiLon := math.Min(box.MaxX(), maxLon)

	zoom := v.zoom
	good := false
	for {
		minX, err := v.source.X(zoom, loLon)
		if err != nil {
			return err
		}
		maxX, err := v.source.X(zoom, hiLon)
		if err != nil {
			return err
		}
		// North edge has the smaller pixel y.
		minY, err := v.source.Y(zoom, hiLat)
		if err != nil {
			return err
		}
		maxY, err := v.source.Y(zoom, loLat)
		if err != nil {
			return err
		}

		if maxX-minX <= v.viewport.w && maxY-minY <= v.viewport.h {
			good = true
		} else {
			zoom--
		}
		if zoom <= v.minZoom || good {
			break
		}
	}

	var lat, lon float64
	if good {
		lat = (loLat + hiLat) / 2
		lon = (loLon + hiLon) / 2
	} else {
		// Degraded fallback: nothing fits, recenter on the grid origin
		// at the minimum zoom.
		zoom = v.minZoom
		lat, lon = 0, 0
		v.logger.Debug("ensure visible does not fit", "min_zoom", zoom)
	}

	if zoom != v.zoom {
		if err := v.SetZoom(zoom); err != nil {
			return err
		}
	}
	if animate {
		v.GoTo(lat, lon)
		return nil
	}
	return v.CenterOn(lat, lon)
}

// releaseLevel detaches every renderable of the current grid and drops
// it. Pending fetches for dropped tiles complete into the void.
func (v *View) releaseLevel() {
	v.level.EachTile(func(t *Tile) bool {
		if t.renderable != nil {
			v.display.Detach(t.renderable)
		}
		return true
	})
	v.level = nil
}

// reconcile brings the set of recorded tiles in line with the viewport.
// A pass that arrives while another is running is deferred and replayed
// after it, so passes never interleave.
func (v *View) reconcile() {
	if v.reconciling {
		v.queue.push(v.reconcile)
		return
	}
	v.reconciling = true
	v.runReconcile()
	v.reconciling = false
	v.queue.drain()
}

func (v *View) runReconcile() {
	level := v.level
	size := level.TileSize()

	rawX := math.Max(0, v.viewport.x+v.anchor.x)
	rawY := math.Max(0, v.viewport.y+v.anchor.y)
	xFirst := int(rawX) / size
	yFirst := int(rawY) / size
	xCount := int(math.Ceil(v.viewport.w/float64(size))) + 1
	yCount := int(math.Ceil(v.viewport.h/float64(size))) + 1
	xLast := xFirst + xCount
	yLast := yFirst + yCount
	if xLast > level.Columns() {
		xLast = level.Columns()
	}
	if yLast > level.Rows() {
		yLast = level.Rows()
	}

	// Evict tiles outside the visible range. Tiles on the far edge are
	// kept (the range is inclusive here, exclusive for loading) so a
	// tile never flickers out and straight back in.
	for _, key := range level.Keys() {
		if mathhelp.BetweenInc(key.X, xFirst, xLast) && mathhelp.BetweenInc(key.Y, yFirst, yLast) {
			continue
		}
		t := level.GetTile(key.X, key.Y)
		if t.renderable != nil {
			v.display.Detach(t.renderable)
		}
		level.RemoveTile(key.X, key.Y)
	}

	for x := xFirst; x < xLast; x++ {
		for y := yFirst; y < yLast; y++ {
			if level.GetTile(x, y) != nil {
				continue
			}
			t := level.AddTile(x, y)
			r := v.display.NewTileRenderable()
			t.renderable = r
			v.display.SetSize(r, float64(size), float64(size))
			v.positionTile(t)
			v.display.Attach(r)
			t.state = StateLoading

			tile := t
			v.logger.Debug("loading tile", "x", x, "y", y, "zoom", level.Level())
			v.source.FetchTile(x, y, level.Level(), func(data []byte, err error) {
				v.onTileFetched(tile, data, err)
			})
		}
	}
	v.updateState()
}

// onTileFetched lands a fetch result. Results arriving during a
// reconciliation pass are deferred behind it; results for tiles that
// were evicted or whose grid was replaced are dropped.
func (v *View) onTileFetched(t *Tile, data []byte, err error) {
	if v.reconciling {
		v.queue.push(func() { v.onTileFetched(t, data, err) })
		return
	}
	if v.level == nil || v.level.Level() != t.Zoom || v.level.GetTile(t.X, t.Y) != t {
		return
	}

	if err != nil {
		t.state = StateError
		v.display.SetTileError(t.renderable)
		v.logger.Warn("tile load failed", "x", t.X, "y", t.Y, "zoom", t.Zoom, "err", err)
	} else {
		t.state = StateDone
		v.display.SetTileImage(t.renderable, data)
		v.positionTile(t)
	}
	v.updateState()
}

func (v *View) positionTile(t *Tile) {
	size := float64(v.level.TileSize())
	v.display.SetPosition(t.renderable, float64(t.X)*size-v.anchor.x, float64(t.Y)*size-v.anchor.y)
}

// repositionTiles re-derives every loaded tile's display position from
// the current anchor.
func (v *View) repositionTiles() {
	if v.level == nil {
		return
	}
	v.level.EachTile(func(t *Tile) bool {
		if t.state == StateDone {
			v.positionTile(t)
		}
		return true
	})
}

// updateState recomputes the aggregate state: Loading while any tile is
// still in flight, Done otherwise. The hook fires only on change.
func (v *View) updateState() {
	newState := StateDone
	v.level.EachTile(func(t *Tile) bool {
		if t.state == StateLoading {
			newState = StateLoading
			return false
		}
		return true
	})
	if newState == v.state {
		return
	}
	v.state = newState
	v.logger.Debug("view state changed", "state", newState)
	if v.hooks.OnStateChanged != nil {
		v.hooks.OnStateChanged(newState)
	}
}
