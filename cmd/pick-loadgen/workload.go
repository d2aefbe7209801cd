package main

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"net/url"
	"strconv"

	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/mercator-pick/internal/core/model"
	"github.com/mohammed-shakir/mercator-pick/internal/providers/csvpoi"
)

type pickPoint struct {
	Lat, Lng, Zoom float64
}

func (p pickPoint) String() string {
	return fmt.Sprintf("%.5f,%.5f@%g", p.Lat, p.Lng, p.Zoom)
}

// query renders p as /pick parameters, invariant number format.
func (p pickPoint) query(layers, session string) url.Values {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(p.Lat, 'f', -1, 64))
	q.Set("lng", strconv.FormatFloat(p.Lng, 'f', -1, 64))
	q.Set("z", strconv.FormatFloat(p.Zoom, 'f', -1, 64))
	q.Set("layers", layers)
	if session != "" {
		q.Set("session", session)
	}
	return q
}

var zooms = []float64{6, 8, 10, 12, 14}

// makePicks creates a mix of "hot" picks near a few cities and "cold"
// picks anywhere on land-ish latitudes.
func makePicks(count int, r *rand.Rand) []pickPoint {
	centers := [][2]float64{
		{8.4037, 49.0069},  // Karlsruhe
		{-0.1278, 51.5074}, // London
		{18.0686, 59.3293}, // Stockholm
		{2.3522, 48.8566},  // Paris
	}
	out := make([]pickPoint, 0, count)

	hot := int(math.Max(8, float64(count/4)))
	for i := 0; i < hot && len(out) < count; i++ {
		c := centers[i%len(centers)]
		dx, dy := (r.Float64()-0.5)*0.2, (r.Float64()-0.5)*0.2
		out = append(out, pickPoint{Lat: c[1] + dy, Lng: c[0] + dx, Zoom: zooms[r.IntN(len(zooms))]})
	}
	for len(out) < count {
		out = append(out, pickPoint{
			Lat:  -60 + r.Float64()*130,
			Lng:  -180 + r.Float64()*360,
			Zoom: zooms[r.IntN(len(zooms))],
		})
	}
	return out
}

// picksFromPOIs uses the positions of a tab separated POI file, so most
// picks should land on a symbol.
func picksFromPOIs(path string, count int, r *rand.Rand) ([]pickPoint, error) {
	p, _, err := csvpoi.LoadFile(path)
	if err != nil {
		return nil, err
	}
	world := model.NewEnvelope(-180, 180, -90, 90)
	rows, err := p.Query(context.Background(), world)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 || count <= 0 {
		return nil, nil
	}
	if count > len(rows) {
		count = len(rows)
	}
	out := make([]pickPoint, 0, count)
	for i := range count {
		pt, ok := rows[i].Geometry.(orb.Point)
		if !ok {
			continue
		}
		out = append(out, pickPoint{Lat: pt.Lat(), Lng: pt.Lon(), Zoom: zooms[r.IntN(len(zooms))]})
	}
	return out, nil
}

func percentile(sortedValues []float64, p float64) float64 {
	if len(sortedValues) == 0 {
		return math.NaN()
	}
	if p <= 0 {
		return sortedValues[0]
	}
	if p >= 100 {
		return sortedValues[len(sortedValues)-1]
	}
	k := (p / 100.0) * float64(len(sortedValues)-1)
	f := math.Floor(k)
	i := int(f)
	if i >= len(sortedValues)-1 {
		return sortedValues[len(sortedValues)-1]
	}
	d := k - f
	return sortedValues[i]*(1-d) + sortedValues[i+1]*d
}
