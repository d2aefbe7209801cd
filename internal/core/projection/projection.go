// Package projection converts points and envelopes between geographic
// (lon/lat degrees) and spherical Mercator (meters) coordinates.
//
// Every function takes the earth radius explicitly. A forward/inverse pair
// must use the same radius; mixing SphereRadius and WebMercatorRadius drifts
// results by roughly 0.1%.
package projection

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/mercator-pick/internal/core/model"
)

const (
	// SphereRadius is used by the address-layer (PTV) subsystem and the hit tester.
	SphereRadius = 6371000.0
	// WebMercatorRadius is the EPSG:3857 radius used by tile services.
	WebMercatorRadius = 6378137.0

	// TileSize is the pixel size of a tile in the power-of-two pyramid.
	TileSize = 256
)

var ErrTileOutOfRange = errors.New("tile index out of range")

// ToMercator projects a geographic (lon, lat) point. Latitudes at or beyond
// ±90 give non-finite results.
func ToMercator(p orb.Point, radius float64) orb.Point {
	return orb.Point{
		radius * p[0] * math.Pi / 180.0,
		radius * math.Log(math.Tan(math.Pi/4.0+p[1]*math.Pi/360.0)),
	}
}

// ToGeographic is the exact inverse of ToMercator for the same radius.
func ToGeographic(p orb.Point, radius float64) orb.Point {
	return orb.Point{
		(180.0 / math.Pi) * (p[0] / radius),
		(360.0 / math.Pi) * (math.Atan(math.Exp(p[1]/radius)) - math.Pi/4.0),
	}
}

func EnvelopeToMercator(e model.Envelope, radius float64) model.Envelope {
	return model.EnvelopeFromCorners(
		ToMercator(e.TopLeft(), radius),
		ToMercator(e.BottomRight(), radius),
	)
}

func EnvelopeToGeographic(e model.Envelope, radius float64) model.Envelope {
	return model.EnvelopeFromCorners(
		ToGeographic(e.TopLeft(), radius),
		ToGeographic(e.BottomRight(), radius),
	)
}

// MercatorPerPixel is the ground size of one pixel at zoom for 256px tiles.
func MercatorPerPixel(zoom, radius float64) float64 {
	return (2 * math.Pi * radius) / (TileSize * math.Pow(2, zoom))
}

// TileEnvelope returns the Mercator envelope of tile (x, y) at zoom z, with
// the tile origin at the top-left corner of the world.
func TileEnvelope(x, y, z int, radius float64) (model.Envelope, error) {
	if z < 0 || z > 30 {
		return model.Envelope{}, fmt.Errorf("%w: zoom %d", ErrTileOutOfRange, z)
	}
	n := 1 << z
	if x < 0 || y < 0 || x >= n || y >= n {
		return model.Envelope{}, fmt.Errorf("%w: %d/%d/%d", ErrTileOutOfRange, z, x, y)
	}

	circum := 2 * math.Pi * radius
	half := circum / 2
	arc := circum / float64(n)

	return model.NewEnvelope(
		float64(x)*arc-half, float64(x+1)*arc-half,
		half-float64(y+1)*arc, half-float64(y)*arc,
	), nil
}
