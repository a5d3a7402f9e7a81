// Package mapsource provides the map source capability consumed by the
// view package: the projection between geographic and pixel coordinates
// per zoom level, the tile grid dimensions per zoom level, and
// asynchronous tile fetching. Sources are described by small JSON
// descriptors kept in a Registry; see registry.go.
package mapsource

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownSource is returned by Registry.Get for an id that has no descriptor.
	ErrUnknownSource = errors.New("mapsource: unknown source id")
	// ErrTileUnavailable is reported by offline sources for every tile.
	ErrTileUnavailable = errors.New("mapsource: tile unavailable")
)

// ProjectionError reports a degenerate or out-of-bounds coordinate
// passed to a projection function. The view surfaces it unchanged.
type ProjectionError struct {
	Axis  string
	Value float64
}

func (e *ProjectionError) Error() string {
	return fmt.Sprintf("mapsource: %s %v outside projection bounds", e.Axis, e.Value)
}

// Source is the capability the view consumes. Projection methods are
// pure and monotonic over the source's declared bounds; they cache no
// state. FetchTile is asynchronous: it returns immediately and invokes
// done exactly once when the tile data is available or the fetch
// failed. The done callback must be delivered on the host's logical
// thread of control (see WithDispatcher); the view performs no locking.
type Source interface {
	ID() string
	Name() string
	// License returns the attribution text and its URI.
	License() (text, uri string)

	MinZoom() int
	MaxZoom() int
	TileSize() int
	// Bounds returns the geographic ranges the projection accepts.
	Bounds() (minLat, maxLat, minLon, maxLon float64)
	Columns(zoom int) int
	Rows(zoom int) int

	// X and Y project a geographic coordinate to a pixel coordinate at
	// the given zoom. Longitude and Latitude are the inverses.
	X(zoom int, lon float64) (float64, error)
	Y(zoom int, lat float64) (float64, error)
	Longitude(zoom int, x float64) (float64, error)
	Latitude(zoom int, y float64) (float64, error)

	FetchTile(x, y, zoom int, done func(data []byte, err error))
}
