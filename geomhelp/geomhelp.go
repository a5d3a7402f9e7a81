package geomhelp

import (
	"github.com/go-spatial/geom"
)

// BBox returns the extent spanned by two corner coordinates,
// in (lon, lat) axis order. The corners may be given in any order.
func BBox(lat1, lon1, lat2, lon2 float64) *geom.Extent {
	return geom.NewExtent([2]float64{lon1, lat1}, [2]float64{lon2, lat2})
}

// Pad grows the extent around its center by the given factor,
// e.g. 1.1 makes it 10% wider and 10% taller.
func Pad(e *geom.Extent, factor float64) *geom.Extent {
	cx := (e.MinX() + e.MaxX()) / 2
	cy := (e.MinY() + e.MaxY()) / 2
	halfW := e.XSpan() / 2 * factor
	halfH := e.YSpan() / 2 * factor
	return geom.NewExtent(
		[2]float64{cx - halfW, cy - halfH},
		[2]float64{cx + halfW, cy + halfH},
	)
}

// Center returns the midpoint of the extent as (lat, lon).
func Center(e *geom.Extent) (lat, lon float64) {
	return (e.MinY() + e.MaxY()) / 2, (e.MinX() + e.MaxX()) / 2
}
