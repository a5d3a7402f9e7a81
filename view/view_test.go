package view

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lofgren/tideview/mapsource"
	"github.com/lofgren/tideview/mathhelp"
)

// fakeSource is a deterministic in-memory Source with a linear
// projection and manually flushed fetches.
type fakeSource struct {
	minZoom, maxZoom, tileSize int
	sync                       bool
	pending                    []pendingFetch
	fetched                    int
	fail                       bool
}

type pendingFetch struct {
	x, y, zoom int
	done       func(data []byte, err error)
}

func newFakeSource() *fakeSource {
	return &fakeSource{minZoom: 0, maxZoom: 18, tileSize: 100}
}

func (s *fakeSource) ID() string { return "fake" }
func (s *fakeSource) Name() string { return "Fake Source" }
func (s *fakeSource) License() (string, string) { return "none", "" }
func (s *fakeSource) MinZoom() int { return s.minZoom }
func (s *fakeSource) MaxZoom() int { return s.maxZoom }
func (s *fakeSource) TileSize() int { return s.tileSize }
func (s *fakeSource) Columns(zoom int) int { return int(mathhelp.Pow2(uint(zoom))) }
func (s *fakeSource) Rows(zoom int) int { return int(mathhelp.Pow2(uint(zoom))) }

func (s *fakeSource) Bounds() (minLat, maxLat, minLon, maxLon float64) {
	return -90, 90, -180, 180
}

func (s *fakeSource) gridWidth(zoom int) float64 {
	return float64(s.Columns(zoom) * s.tileSize)
}

func (s *fakeSource) X(zoom int, lon float64) (float64, error) {
	if math.IsNaN(lon) || lon < -180 || lon > 180 {
		return 0, &mapsource.ProjectionError{Axis: "longitude", Value: lon}
	}
	return (lon + 180) / 360 * s.gridWidth(zoom), nil
}

func (s *fakeSource) Y(zoom int, lat float64) (float64, error) {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return 0, &mapsource.ProjectionError{Axis: "latitude", Value: lat}
	}
	return (90 - lat) / 180 * s.gridWidth(zoom), nil
}

func (s *fakeSource) Longitude(zoom int, x float64) (float64, error) {
	return x/s.gridWidth(zoom)*360 - 180, nil
}

func (s *fakeSource) Latitude(zoom int, y float64) (float64, error) {
	return 90 - y/s.gridWidth(zoom)*180, nil
}

func (s *fakeSource) FetchTile(x, y, zoom int, done func(data []byte, err error)) {
	s.fetched++
	if s.sync {
		s.complete(pendingFetch{x: x, y: y, zoom: zoom, done: done})
		return
	}
	s.pending = append(s.pending, pendingFetch{x: x, y: y, zoom: zoom, done: done})
}

func (s *fakeSource) complete(p pendingFetch) {
	if s.fail {
		p.done(nil, mapsource.ErrTileUnavailable)
		return
	}
	p.done([]byte{byte(p.x), byte(p.y), byte(p.zoom)}, nil)
}

// flush delivers every pending fetch result.
func (s *fakeSource) flush() {
	pending := s.pending
	s.pending = nil
	for _, p := range pending {
		s.complete(p)
	}
}

// fakeClock is a manually advanced Clock.
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }
func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestView(opts ...ViewOption) (*View, *fakeSource, *RecordingDisplay) {
	source := newFakeSource()
	display := &RecordingDisplay{}
	v := New(source, display, opts...)
	v.SetVisibleRect(0, 0, 400, 300)
	return v, source, display
}

func TestCenterOnPopulatesViewport(t *testing.T) {
	v, source, display := newTestView()

	require.NoError(t, v.CenterOn(0, 0))
	require.NotNil(t, v.Level())
	assert.Equal(t, 3, v.Level().Level())

	// Viewport 400x300 over 100px tiles wants at most 5x4 tiles,
	// clamped to the grid.
	attached := display.Attached()
	require.NotEmpty(t, attached)
	assert.LessOrEqual(t, len(attached), 20)
	assert.Equal(t, len(attached), v.Level().TileCount())
	assert.Equal(t, StateLoading, v.State())

	source.flush()
	assert.Equal(t, StateDone, v.State())
	for _, rt := range display.Attached() {
		assert.True(t, rt.HasImage)
		assert.Equal(t, float64(source.tileSize), rt.W)
	}
}

func TestCenterOnRejectsOutOfBounds(t *testing.T) {
	v, _, _ := newTestView()
	require.NoError(t, v.CenterOn(10, 10))
	lat, lon := v.Center()

	var perr *mapsource.ProjectionError
	require.ErrorAs(t, v.CenterOn(91, 0), &perr)
	assert.Equal(t, "latitude", perr.Axis)

	gotLat, gotLon := v.Center()
	assert.Equal(t, lat, gotLat)
	assert.Equal(t, lon, gotLon)
}

func TestReconcileIsIdempotent(t *testing.T) {
	v, source, _ := newTestView()
	require.NoError(t, v.CenterOn(10, 10))
	source.flush()

	before := source.fetched
	count := v.Level().TileCount()
	require.NoError(t, v.CenterOn(10, 10))
	assert.Equal(t, before, source.fetched)
	assert.Equal(t, count, v.Level().TileCount())
}

func TestScrollEvictsAndLoads(t *testing.T) {
	v, source, display := newTestView(WithZoom(6))
	require.NoError(t, v.CenterOn(0, 0))
	source.flush()

	var wasAttached []*RecordedTile
	wasAttached = append(wasAttached, display.Attached()...)

	// Jump several tiles to the east.
	x, y, w, h := v.VisibleRect()
	v.SetVisibleRect(x+1000, y, w, h)
	source.flush()

	for _, rt := range wasAttached {
		assert.False(t, rt.Attached, "tile at %v should have been evicted", rt.X)
	}
	assert.Equal(t, StateDone, v.State())
	assert.NotEmpty(t, display.Attached())
}

func TestSmallScrollKeepsEdgeTiles(t *testing.T) {
	v, source, _ := newTestView(WithZoom(6))
	require.NoError(t, v.CenterOn(0, 0))
	source.flush()
	before := source.fetched

	// Less than one tile of movement: the inclusive far edge means
	// nothing is evicted and at most one new column and row loads.
	x, y, w, h := v.VisibleRect()
	v.SetVisibleRect(x+30, y+30, w, h)
	assert.LessOrEqual(t, source.fetched-before, 10)
}

func TestFailedTileIsTerminal(t *testing.T) {
	v, source, display := newTestView()
	source.fail = true
	require.NoError(t, v.CenterOn(0, 0))
	source.flush()

	// Failed tiles keep their placeholder and do not hold the view in
	// the loading state.
	assert.Equal(t, StateDone, v.State())
	for _, rt := range display.Attached() {
		assert.True(t, rt.Failed)
		assert.False(t, rt.HasImage)
	}
	v.Level().EachTile(func(tile *Tile) bool {
		assert.Equal(t, StateError, tile.State())
		return true
	})
}

func TestSynchronousFetchCompletion(t *testing.T) {
	// Completions that land while the reconciliation pass is still
	// running are deferred behind it instead of interleaving.
	v, source, display := newTestView()
	source.sync = true

	require.NoError(t, v.CenterOn(0, 0))
	assert.Equal(t, StateDone, v.State())
	for _, rt := range display.Attached() {
		assert.True(t, rt.HasImage)
	}
}

func TestStateChangeHookFiresOnChangeOnly(t *testing.T) {
	var states []State
	v, source, _ := newTestView(WithHooks(Hooks{
		OnStateChanged: func(s State) { states = append(states, s) },
	}))

	require.NoError(t, v.CenterOn(0, 0))
	source.flush()
	require.NoError(t, v.CenterOn(0, 0))

	assert.Equal(t, []State{StateLoading, StateDone}, states)
}

func TestSetZoomKeepsCenter(t *testing.T) {
	var zoomed []int
	v, source, display := newTestView(WithHooks(Hooks{
		OnZoomChanged: func(z int) { zoomed = append(zoomed, z) },
	}))
	require.NoError(t, v.CenterOn(40, 7))
	source.flush()
	old := display.Attached()

	require.NoError(t, v.SetZoom(5))
	assert.Equal(t, 5, v.Zoom())
	assert.Equal(t, []int{5}, zoomed)
	for _, rt := range old {
		assert.False(t, rt.Attached)
	}

	lat, lon := v.Center()
	assert.InDelta(t, 40, lat, 1e-9)
	assert.InDelta(t, 7, lon, 1e-9)
}

func TestSetZoomRejectsUnsupported(t *testing.T) {
	v, _, _ := newTestView()
	require.NoError(t, v.CenterOn(0, 0))

	assert.ErrorIs(t, v.SetZoom(3), ErrZoomUnsupported)
	assert.ErrorIs(t, v.SetZoom(-1), ErrZoomUnsupported)
	assert.ErrorIs(t, v.SetZoom(19), ErrZoomUnsupported)
	assert.Equal(t, 3, v.Zoom())
}

func TestOperationsBeforeFirstCenterAreNoOps(t *testing.T) {
	source := newFakeSource()
	v := New(source, &RecordingDisplay{})

	assert.NoError(t, v.SetZoom(9))
	assert.Equal(t, 3, v.Zoom())
	v.SetVisibleRect(0, 0, 640, 480)
	assert.Nil(t, v.Level())
	assert.Zero(t, source.fetched)
}

func TestSetZoomAtKeepsCursorFixed(t *testing.T) {
	v, source, _ := newTestView(WithZoom(4))
	require.NoError(t, v.CenterOn(30, -20))
	source.flush()

	const sx, sy = 100, 50
	wantLat, wantLon, err := v.CoordsAt(sx, sy)
	require.NoError(t, err)

	require.NoError(t, v.SetZoomAt(5, sx, sy))

	gotLat, gotLon, err := v.CoordsAt(sx, sy)
	require.NoError(t, err)
	assert.InDelta(t, wantLat, gotLat, 1e-9)
	assert.InDelta(t, wantLon, gotLon, 1e-9)
}

func TestAnchorKeepsPositionsRepresentable(t *testing.T) {
	v, source, display := newTestView(WithZoom(12))
	require.NoError(t, v.CenterOn(-35, 150))
	source.flush()

	for _, rt := range display.Attached() {
		assert.LessOrEqual(t, math.Abs(rt.X), maxPixel)
		assert.LessOrEqual(t, math.Abs(rt.Y), maxPixel)
	}
}

func TestAnchorChangeIsInvisible(t *testing.T) {
	v, source, _ := newTestView(WithZoom(12))
	require.NoError(t, v.CenterOn(-35, 150))
	source.flush()
	startAnchor := v.anchor.x

	// Scroll until the anchor has to move, one viewport at a time.
	for i := 0; i < 60; i++ {
		x, y, w, h := v.VisibleRect()
		v.SetVisibleRect(x+w, y, w, h)
		source.flush()

		// The coordinate under the viewport center must agree with the
		// view's own notion of its center.
		lat, lon, err := v.CoordsAt(w/2, h/2)
		require.NoError(t, err)
		gotLat, gotLon := v.Center()
		assert.InDelta(t, gotLat, lat, 1e-6)
		assert.InDelta(t, gotLon, lon, 1e-6)
	}

	assert.Greater(t, v.anchor.x, startAnchor)
}

func TestSetSourceClampsZoomAndReloads(t *testing.T) {
	v, source, display := newTestView(WithZoom(10))
	require.NoError(t, v.CenterOn(48, 2))
	source.flush()
	old := display.Attached()

	next := newFakeSource()
	next.maxZoom = 6
	v.SetSource(next)

	assert.Equal(t, 6, v.Zoom())
	assert.Equal(t, 6, v.MaxZoom())
	for _, rt := range old {
		assert.False(t, rt.Attached)
	}
	assert.Positive(t, next.fetched)

	lat, lon := v.Center()
	assert.InDelta(t, 48, lat, 1e-9)
	assert.InDelta(t, 2, lon, 1e-9)
}

func TestStaleFetchResultIsDropped(t *testing.T) {
	v, source, display := newTestView()
	require.NoError(t, v.CenterOn(0, 0))
	pendingBefore := len(source.pending)
	require.Positive(t, pendingBefore)

	// Zoom away before any result lands, then let the old fetches
	// complete into the void.
	require.NoError(t, v.SetZoom(6))
	source.flush()

	for _, rt := range display.Allocated() {
		if rt.Attached {
			continue
		}
		assert.False(t, rt.HasImage, "evicted tile must not receive an image")
	}
	assert.Equal(t, StateDone, v.State())
}

func TestEnsureVisibleStepsZoomDown(t *testing.T) {
	v, source, _ := newTestView(WithZoom(10))
	require.NoError(t, v.CenterOn(47, 7))
	source.flush()

	require.NoError(t, v.EnsureVisible(45, 5, 49, 9, false))

	assert.Less(t, v.Zoom(), 10)
	// The padded box must fit the viewport at the chosen zoom.
	x1, _ := source.X(v.Zoom(), 4.8)
	x2, _ := source.X(v.Zoom(), 9.2)
	assert.LessOrEqual(t, x2-x1, 400.0)

	lat, lon := v.Center()
	assert.InDelta(t, 47, lat, 1e-9)
	assert.InDelta(t, 7, lon, 1e-9)
}

func TestEnsureVisibleAlreadyFitting(t *testing.T) {
	v, source, _ := newTestView(WithZoom(2))
	require.NoError(t, v.CenterOn(0, 0))
	source.flush()

	require.NoError(t, v.EnsureVisible(-1, -1, 1, 1, false))
	assert.Equal(t, 2, v.Zoom())
}

func TestEnsureVisibleDegradesToMinZoom(t *testing.T) {
	v, source, _ := newTestView(WithZoom(10))
	v.SetVisibleRect(0, 0, 50, 50)
	require.NoError(t, v.CenterOn(47, 7))
	source.flush()

	// A world-spanning box cannot fit a 50px viewport at any zoom.
	require.NoError(t, v.EnsureVisible(-80, -170, 80, 170, false))

	assert.Equal(t, v.MinZoom(), v.Zoom())
	lat, lon := v.Center()
	assert.Zero(t, lat)
	assert.Zero(t, lon)
}
