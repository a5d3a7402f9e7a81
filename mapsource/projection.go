package mapsource

import (
	"math"

	"github.com/lofgren/tideview/mathhelp"
)

// Projection identifies the mapping between geographic coordinates and
// the per-zoom pixel grid.
type Projection string

const (
	// Mercator is the Web-Mercator (spherical) projection used by most
	// slippy tile servers. Square grid: 2^zoom columns and rows.
	Mercator Projection = "mercator"
	// PlateCarree maps longitude and latitude linearly to pixels.
	// 2:1 grid: 2^(zoom+1) columns, 2^zoom rows.
	PlateCarree Projection = "platecarree"
)

// Latitudes beyond this are not representable in Web-Mercator.
const maxMercatorLat = 85.0511287798066

// Bounds returns the valid (lat, lon) ranges for the projection.
func (p Projection) Bounds() (minLat, maxLat, minLon, maxLon float64) {
	if p == Mercator {
		return -maxMercatorLat, maxMercatorLat, -180, 180
	}
	return -90, 90, -180, 180
}

func (p Projection) columns(zoom int) int {
	if p == PlateCarree {
		return int(mathhelp.Pow2(uint(zoom + 1)))
	}
	return int(mathhelp.Pow2(uint(zoom)))
}

func (p Projection) rows(zoom int) int {
	return int(mathhelp.Pow2(uint(zoom)))
}

// x projects a longitude to a pixel coordinate at the given zoom.
func (p Projection) x(zoom, tileSize int, lon float64) (float64, error) {
	_, _, minLon, maxLon := p.Bounds()
	if math.IsNaN(lon) || lon < minLon || lon > maxLon {
		return 0, &ProjectionError{Axis: "longitude", Value: lon}
	}
	gridW := float64(p.columns(zoom) * tileSize)
	return (lon + 180) / 360 * gridW, nil
}

// y projects a latitude to a pixel coordinate at the given zoom.
func (p Projection) y(zoom, tileSize int, lat float64) (float64, error) {
	minLat, maxLat, _, _ := p.Bounds()
	if math.IsNaN(lat) || lat < minLat || lat > maxLat {
		return 0, &ProjectionError{Axis: "latitude", Value: lat}
	}
	gridH := float64(p.rows(zoom) * tileSize)
	if p == PlateCarree {
		return (90 - lat) / 180 * gridH, nil
	}
	latRad := lat * math.Pi / 180
	return (1 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2 * gridH, nil
}

// longitude is the inverse of x.
func (p Projection) longitude(zoom, tileSize int, x float64) (float64, error) {
	if math.IsNaN(x) {
		return 0, &ProjectionError{Axis: "x", Value: x}
	}
	gridW := float64(p.columns(zoom) * tileSize)
	return x/gridW*360 - 180, nil
}

// latitude is the inverse of y.
func (p Projection) latitude(zoom, tileSize int, y float64) (float64, error) {
	if math.IsNaN(y) {
		return 0, &ProjectionError{Axis: "y", Value: y}
	}
	gridH := float64(p.rows(zoom) * tileSize)
	if p == PlateCarree {
		return 90 - y/gridH*180, nil
	}
	latRad := math.Atan(math.Sinh(math.Pi * (1 - 2*y/gridH)))
	return latRad * 180 / math.Pi, nil
}
