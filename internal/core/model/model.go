// Package model defines core domain types shared across the service.
package model

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// Envelope is an axis-aligned rectangle in a single coordinate space.
// Whether that space is geographic or Mercator is tracked by the caller.
type Envelope struct {
	MinX, MaxX float64
	MinY, MaxY float64
}

// NewEnvelope normalizes reversed inputs, so x1 > x2 or y1 > y2 is fine.
func NewEnvelope(x1, x2, y1, y2 float64) Envelope {
	return Envelope{
		MinX: math.Min(x1, x2),
		MaxX: math.Max(x1, x2),
		MinY: math.Min(y1, y2),
		MaxY: math.Max(y1, y2),
	}
}

// EnvelopeFromCorners builds the envelope spanned by two arbitrary corners.
func EnvelopeFromCorners(a, b orb.Point) Envelope {
	return NewEnvelope(a[0], b[0], a[1], b[1])
}

// PointEnvelope is the degenerate (zero area) envelope of a single point.
func PointEnvelope(p orb.Point) Envelope {
	return Envelope{MinX: p[0], MaxX: p[0], MinY: p[1], MaxY: p[1]}
}

func (e Envelope) Width() float64  { return e.MaxX - e.MinX }
func (e Envelope) Height() float64 { return e.MaxY - e.MinY }
func (e Envelope) Area() float64   { return e.Width() * e.Height() }

func (e Envelope) Center() orb.Point {
	return orb.Point{(e.MinX + e.MaxX) / 2, (e.MinY + e.MaxY) / 2}
}

func (e Envelope) TopLeft() orb.Point     { return orb.Point{e.MinX, e.MaxY} }
func (e Envelope) TopRight() orb.Point    { return orb.Point{e.MaxX, e.MaxY} }
func (e Envelope) BottomLeft() orb.Point  { return orb.Point{e.MinX, e.MinY} }
func (e Envelope) BottomRight() orb.Point { return orb.Point{e.MaxX, e.MinY} }

// Intersects reports overlap, touching edges included.
func (e Envelope) Intersects(o Envelope) bool {
	return e.MinX <= o.MaxX && o.MinX <= e.MaxX &&
		e.MinY <= o.MaxY && o.MinY <= e.MaxY
}

func (e Envelope) Contains(p orb.Point) bool {
	return p[0] >= e.MinX && p[0] <= e.MaxX && p[1] >= e.MinY && p[1] <= e.MaxY
}

func (e Envelope) Bound() orb.Bound {
	return orb.Bound{Min: e.BottomLeft(), Max: e.TopRight()}
}

// EnvelopeFromBound converts an orb bound, normalizing it on the way.
func EnvelopeFromBound(b orb.Bound) Envelope {
	return EnvelopeFromCorners(b.Min, b.Max)
}

// String representation matching wfs/wms bbox order (minx,miny,maxx,maxy)
func (e Envelope) String() string {
	return fmt.Sprintf("%.6f,%.6f,%.6f,%.6f", e.MinX, e.MinY, e.MaxX, e.MaxY)
}

type LayerCategory int

const (
	CategoryPoint LayerCategory = iota
	CategoryLine
	CategoryArea
)

func (c LayerCategory) String() string {
	switch c {
	case CategoryPoint:
		return "Point"
	case CategoryLine:
		return "Line"
	case CategoryArea:
		return "Area"
	default:
		return fmt.Sprintf("LayerCategory(%d)", int(c))
	}
}

func ParseLayerCategory(s string) (LayerCategory, error) {
	switch s {
	case "Point", "point":
		return CategoryPoint, nil
	case "Line", "line":
		return CategoryLine, nil
	case "Area", "area":
		return CategoryArea, nil
	default:
		return 0, fmt.Errorf("unknown layer category %q", s)
	}
}

func (c LayerCategory) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *LayerCategory) UnmarshalText(b []byte) error {
	v, err := ParseLayerCategory(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// RenderingTier separates screen-space symbol layers from world-space ones.
type RenderingTier int

const (
	Background RenderingTier = iota
	Foreground
)

func (t RenderingTier) String() string {
	if t == Foreground {
		return "foreground"
	}
	return "background"
}

// Tier maps a category to the tier it is rendered in: points are
// foreground, everything else background.
func (c LayerCategory) Tier() RenderingTier {
	if c == CategoryPoint {
		return Foreground
	}
	return Background
}

// Feature is one geometry plus its attached attributes, built per query.
type Feature struct {
	Geometry   orb.Geometry
	Attributes map[string]any
}
