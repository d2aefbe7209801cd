// Package shapefile loads an ESRI shapefile into an in-memory layer.
package shapefile

import (
	"errors"
	"fmt"
	"os"
	"strings"

	shp "github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/mercator-pick/internal/core/model"
	"github.com/mohammed-shakir/mercator-pick/internal/providers/memory"
)

// Load reads every shape and its DBF attributes. Coordinates are expected
// in geographic lon/lat. Unsupported shape types are skipped and counted.
// A truncated .shp or an unreadable .dbf fails the whole load; a missing
// .dbf gives rows without attributes.
func Load(path string) (*memory.Provider, int, error) {
	r, err := shp.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("shapefile: open %q: %w", path, err)
	}
	defer r.Close()

	fields := r.Fields()
	if len(fields) == 0 {
		if err := checkDBF(path); err != nil {
			return nil, 0, err
		}
	}
	p := memory.New()
	skipped := 0
	for r.Next() {
		idx, shape := r.Shape()
		g := toGeometry(shape)
		if g == nil {
			skipped++
			continue
		}

		attrs := make(map[string]any, len(fields))
		for i, f := range fields {
			attrs[f.String()] = strings.TrimSpace(r.ReadAttribute(idx, i))
		}
		p.Add(model.Feature{Geometry: g, Attributes: attrs})
	}
	if err := r.Err(); err != nil {
		return nil, 0, fmt.Errorf("shapefile: read %q: %w", path, err)
	}
	return p, skipped, nil
}

// checkDBF reports an error when a .dbf sits next to path but yielded no
// fields, which go-shp does not surface itself.
func checkDBF(path string) error {
	dbf := strings.TrimSuffix(path, ".shp") + ".dbf"
	_, err := os.Stat(dbf)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil
	case err != nil:
		return fmt.Errorf("shapefile: stat %q: %w", dbf, err)
	default:
		return fmt.Errorf("shapefile: %q has no readable fields", dbf)
	}
}

func toGeometry(s shp.Shape) orb.Geometry {
	switch v := s.(type) {
	case *shp.Point:
		return orb.Point{v.X, v.Y}
	case *shp.PolyLine:
		parts := split(v.Parts, v.Points)
		if len(parts) == 1 {
			return orb.LineString(parts[0])
		}
		mls := make(orb.MultiLineString, len(parts))
		for i, p := range parts {
			mls[i] = orb.LineString(p)
		}
		return mls
	case *shp.Polygon:
		return polygon(split(v.Parts, v.Points))
	default:
		return nil
	}
}

// split cuts the flat point list into parts using the part start offsets.
func split(starts []int32, pts []shp.Point) [][]orb.Point {
	out := make([][]orb.Point, 0, len(starts))
	for i, start := range starts {
		end := int32(len(pts))
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		if start < 0 || start > end || end > int32(len(pts)) {
			continue
		}
		part := make([]orb.Point, 0, end-start)
		for _, pt := range pts[start:end] {
			part = append(part, orb.Point{pt.X, pt.Y})
		}
		out = append(out, part)
	}
	return out
}

// polygon groups rings into polygons. Shapefile outer rings are clockwise
// and holes counter-clockwise; a hole belongs to the preceding outer ring.
func polygon(parts [][]orb.Point) orb.Geometry {
	var mp orb.MultiPolygon
	for _, part := range parts {
		r := orb.Ring(part)
		if len(r) < 4 {
			continue
		}
		if r.Orientation() == orb.CW || len(mp) == 0 {
			mp = append(mp, orb.Polygon{r})
			continue
		}
		last := len(mp) - 1
		mp[last] = append(mp[last], r)
	}
	switch len(mp) {
	case 0:
		return nil
	case 1:
		return mp[0]
	default:
		return mp
	}
}
