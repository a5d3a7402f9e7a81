package view

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/lofgren/tideview/mapslicehelp"
	"github.com/lofgren/tideview/mathhelp"
)

// State describes the load progress of a single tile, and doubles as
// the view's aggregate state.
type State int

const (
	StateInit State = iota
	StateLoading
	StateDone
	StateError
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateLoading:
		return "loading"
	case StateDone:
		return "done"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// TileKey identifies a tile inside its zoom level's grid.
type TileKey struct {
	X, Y int
}

// Tile is one loadable unit of the map: a grid position, a load state
// and the opaque renderable the host displays it with. Tiles are owned
// by their ZoomLevel and mutated only by the View.
type Tile struct {
	X, Y, Zoom int

	state      State
	renderable Renderable
}

func (t *Tile) State() State { return t.state }

// Renderable returns the host display handle, nil before the tile has
// been attached.
func (t *Tile) Renderable() Renderable { return t.renderable }

// ZoomLevel is the grid of tiles for one zoom level. Tiles are kept in
// insertion order so iteration and NthTile are deterministic.
type ZoomLevel struct {
	level    int
	columns  int
	rows     int
	tileSize int
	tiles    *orderedmap.OrderedMap[TileKey, *Tile]
}

func NewZoomLevel(level, columns, rows, tileSize int) *ZoomLevel {
	return &ZoomLevel{
		level:    level,
		columns:  columns,
		rows:     rows,
		tileSize: tileSize,
		tiles:    orderedmap.New[TileKey, *Tile](),
	}
}

func (zl *ZoomLevel) Level() int    { return zl.level }
func (zl *ZoomLevel) Columns() int  { return zl.columns }
func (zl *ZoomLevel) Rows() int     { return zl.rows }
func (zl *ZoomLevel) TileSize() int { return zl.tileSize }

// Width reports the grid's pixel width.
func (zl *ZoomLevel) Width() int { return zl.columns * zl.tileSize }

// Height reports the grid's pixel height.
func (zl *ZoomLevel) Height() int { return zl.rows * zl.tileSize }

// AddTile records an empty tile at the grid coordinate and returns it.
// Adding an existing coordinate is a no-op returning the present tile;
// a coordinate outside the grid returns nil.
func (zl *ZoomLevel) AddTile(x, y int) *Tile {
	if !mathhelp.BetweenInc(x, 0, zl.columns-1) || !mathhelp.BetweenInc(y, 0, zl.rows-1) {
		return nil
	}
	key := TileKey{X: x, Y: y}
	if existing, ok := zl.tiles.Get(key); ok {
		return existing
	}
	tile := &Tile{X: x, Y: y, Zoom: zl.level, state: StateInit}
	zl.tiles.Set(key, tile)
	return tile
}

func (zl *ZoomLevel) GetTile(x, y int) *Tile {
	tile, _ := zl.tiles.Get(TileKey{X: x, Y: y})
	return tile
}

// RemoveTile drops the tile from the grid. The tile's renderable is
// not detached here; the owning view reports it to the host first.
func (zl *ZoomLevel) RemoveTile(x, y int) bool {
	_, present := zl.tiles.Delete(TileKey{X: x, Y: y})
	return present
}

func (zl *ZoomLevel) TileCount() int { return zl.tiles.Len() }

// Keys returns the recorded tile coordinates in insertion order.
func (zl *ZoomLevel) Keys() []TileKey {
	return mapslicehelp.OrderedMapKeys(zl.tiles)
}

// NthTile returns the i-th tile in insertion order, nil when out of
// range.
func (zl *ZoomLevel) NthTile(i int) *Tile {
	if i < 0 || i >= zl.tiles.Len() {
		return nil
	}
	p := zl.tiles.Oldest()
	for ; i > 0; i-- {
		p = p.Next()
	}
	return p.Value
}

// EachTile calls fn for every tile in insertion order until fn returns
// false. The grid must not be mutated during iteration.
func (zl *ZoomLevel) EachTile(fn func(*Tile) bool) {
	for p := zl.tiles.Oldest(); p != nil; p = p.Next() {
		if !fn(p.Value) {
			return
		}
	}
}
