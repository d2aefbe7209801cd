// Package geometry tests feature geometries against a pick shape, which is
// either a single point or an axis-aligned rectangle.
package geometry

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/clip"
	"github.com/paulmach/orb/planar"

	"github.com/mohammed-shakir/mercator-pick/internal/core/model"
)

// Query is the synthetic shape a candidate is tested against.
type Query struct {
	point  orb.Point
	rect   orb.Bound
	isRect bool
}

func PointQuery(p orb.Point) Query { return Query{point: p} }

func RectQuery(e model.Envelope) Query { return Query{rect: e.Bound(), isRect: true} }

// QueryFor picks the shape for an envelope: its centre when the envelope
// has no area, the rectangle otherwise.
func QueryFor(e model.Envelope) Query {
	if e.Area() == 0 {
		return PointQuery(e.Center())
	}
	return RectQuery(e)
}

// Intersects reports whether g touches or overlaps the query shape.
func Intersects(g orb.Geometry, q Query) bool {
	if g == nil {
		return false
	}
	if q.isRect && !g.Bound().Intersects(q.rect) {
		return false
	}

	switch v := g.(type) {
	case orb.Point:
		return pointHits(v, q)
	case orb.MultiPoint:
		for _, p := range v {
			if pointHits(p, q) {
				return true
			}
		}
		return false
	case orb.LineString:
		return pathHits(v, q)
	case orb.MultiLineString:
		for _, ls := range v {
			if pathHits(ls, q) {
				return true
			}
		}
		return false
	case orb.Ring:
		return polygonHits(orb.Polygon{v}, q)
	case orb.Polygon:
		return polygonHits(v, q)
	case orb.MultiPolygon:
		for _, p := range v {
			if polygonHits(p, q) {
				return true
			}
		}
		return false
	case orb.Bound:
		return polygonHits(v.ToPolygon(), q)
	case orb.Collection:
		for _, c := range v {
			if Intersects(c, q) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func pointHits(p orb.Point, q Query) bool {
	if q.isRect {
		return q.rect.Contains(p)
	}
	return p.Equal(q.point)
}

func pathHits(ls orb.LineString, q Query) bool {
	if len(ls) == 0 {
		return false
	}
	if len(ls) == 1 {
		return pointHits(ls[0], q)
	}
	if q.isRect {
		return len(clip.LineString(q.rect, ls)) > 0
	}
	for i := 0; i+1 < len(ls); i++ {
		if planar.DistanceFromSegmentSquared(ls[i], ls[i+1], q.point) == 0 {
			return true
		}
	}
	return false
}

func polygonHits(p orb.Polygon, q Query) bool {
	if len(p) == 0 || len(p[0]) == 0 {
		return false
	}
	if !q.isRect {
		return planar.PolygonContains(p, q.point)
	}

	// any corner of the rectangle inside the polygon (holes respected)
	r := q.rect
	corners := [4]orb.Point{
		r.Min, {r.Max[0], r.Min[1]}, r.Max, {r.Min[0], r.Max[1]},
	}
	for _, c := range corners {
		if planar.PolygonContains(p, c) {
			return true
		}
	}
	// any vertex of the polygon inside the rectangle, or any edge crossing it
	for _, ring := range p {
		if pathHits(orb.LineString(ring), q) {
			return true
		}
	}
	return false
}
