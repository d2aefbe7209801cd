// Package donuts generates a reproducible set of ring-shaped polygons,
// computed in spherical Mercator so shapes and angles stay true.
package donuts

import (
	"math"
	"math/rand/v2"

	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/mercator-pick/internal/core/model"
	"github.com/mohammed-shakir/mercator-pick/internal/core/projection"
	"github.com/mohammed-shakir/mercator-pick/internal/providers/memory"
)

const (
	Seed        = 42
	numVertices = 100
	bufferSize  = 10000.0
)

type Params struct {
	Lat, Lon         float64
	Rotation         float64 // in multiples of pi
	RadiusX, RadiusY float64 // meters
	Buffer           float64 // ring width in meters
}

// Random returns n donuts scattered over lat 45..49, lon 0..6. The same n
// always yields the same shapes.
func Random(n int) []Params {
	rnd := rand.New(rand.NewPCG(Seed, Seed))
	out := make([]Params, 0, max(n, 0))
	for range n {
		out = append(out, Params{
			Lat:      rnd.Float64()*4 + 45.0,
			Lon:      rnd.Float64() * 6,
			Rotation: rnd.Float64() * math.Pi,
			RadiusX:  rnd.Float64()*20000.0 + 10000.0,
			RadiusY:  rnd.Float64()*20000.0 + 10000.0,
			Buffer:   bufferSize,
		})
	}
	return out
}

// Polygon builds the donut as a geographic polygon with one hole. Sizes are
// scaled by 1/cos(lat) to compensate for Mercator stretching.
func Polygon(p Params, radius float64) orb.Polygon {
	center := projection.ToMercator(orb.Point{p.Lon, p.Lat}, radius)

	f := 1.0 / math.Cos(p.Lat*math.Pi/180)
	rx, ry, buf := p.RadiusX*f, p.RadiusY*f, p.Buffer*f

	shell := ring(center, rx, ry, p.Rotation, radius)
	hole := ring(center, rx-buf, ry-buf, p.Rotation, radius)
	return orb.Polygon{shell, hole}
}

func ring(c orb.Point, rx, ry, rot, radius float64) orb.Ring {
	sinRot, cosRot := math.Sincos(rot * math.Pi)
	darc := 2 * math.Pi / numVertices

	r := make(orb.Ring, 0, numVertices+1)
	for i := range numVertices {
		sinArc, cosArc := math.Sincos(darc * float64(i))
		x := c[0] - rx*sinArc*sinRot + ry*cosArc*cosRot
		y := c[1] + ry*cosArc*sinRot + rx*sinArc*cosRot
		r = append(r, projection.ToGeographic(orb.Point{x, y}, radius))
	}
	return append(r, r[0])
}

// NewProvider materializes n random donuts with an Id attribute.
func NewProvider(n int, radius float64) *memory.Provider {
	p := memory.New()
	for i, d := range Random(n) {
		p.Add(model.Feature{
			Geometry:   Polygon(d, radius),
			Attributes: map[string]any{"Id": i},
		})
	}
	return p
}
