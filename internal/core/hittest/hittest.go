// Package hittest resolves a map pick to the topmost feature under it.
//
// Point layers are symbols drawn at a fixed pixel size, so they are searched
// with a box that grows with the ground size of a pixel. Area and line layers
// are only hit when the exact pick point falls on them.
package hittest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/mercator-pick/internal/core/geometry"
	"github.com/mohammed-shakir/mercator-pick/internal/core/layers"
	"github.com/mohammed-shakir/mercator-pick/internal/core/model"
	"github.com/mohammed-shakir/mercator-pick/internal/core/observability"
	"github.com/mohammed-shakir/mercator-pick/internal/core/projection"
)

// DefaultSymbolHalfSize is half the presumed symbol bitmap size in pixels.
const DefaultSymbolHalfSize = 8

var ErrInvalidRadius = errors.New("hittest: earth radius must be positive")

type Tester struct {
	Radius         float64
	SymbolHalfSize float64
}

func New(radius float64) (*Tester, error) {
	if !(radius > 0) {
		return nil, fmt.Errorf("%w (got %v)", ErrInvalidRadius, radius)
	}
	return &Tester{Radius: radius, SymbolHalfSize: DefaultSymbolHalfSize}, nil
}

type Hit struct {
	Layer   string
	Tier    model.RenderingTier
	Feature model.Feature
}

// SearchEnvelope is the geographic box around the pick point that covers a
// symbol drawn at (lon, lat) at the given zoom.
func (t *Tester) SearchEnvelope(lat, lon, zoom float64) model.Envelope {
	half := t.SymbolHalfSize
	if half <= 0 {
		half = DefaultSymbolHalfSize
	}
	size := projection.MercatorPerPixel(zoom, t.Radius) * half

	mp := projection.ToMercator(orb.Point{lon, lat}, t.Radius)
	env := model.NewEnvelope(mp[0]-size, mp[0]+size, mp[1]-size, mp[1]+size)
	return projection.EnvelopeToGeographic(env, t.Radius)
}

// HitTest returns the topmost feature at (lat, lon), or nil when nothing
// is hit. Provider errors are returned as is, wrapped with the layer name.
func (t *Tester) HitTest(ctx context.Context, catalog layers.Catalog, lat, lon, zoom float64) (*Hit, error) {
	if !(t.Radius > 0) {
		return nil, ErrInvalidRadius
	}

	box := t.SearchEnvelope(lat, lon, zoom)
	for _, l := range catalog.TopDown(model.Foreground) {
		f, err := hitLayer(ctx, l, box)
		if err != nil {
			return nil, err
		}
		if f != nil {
			return &Hit{Layer: l.Name, Tier: model.Foreground, Feature: *f}, nil
		}
	}

	at := model.PointEnvelope(orb.Point{lon, lat})
	for _, l := range catalog.TopDown(model.Background) {
		f, err := hitLayer(ctx, l, at)
		if err != nil {
			return nil, err
		}
		if f != nil {
			return &Hit{Layer: l.Name, Tier: model.Background, Feature: *f}, nil
		}
	}

	return nil, nil
}

// hitLayer queries one layer and returns its last-drawn intersecting row.
func hitLayer(ctx context.Context, l layers.Info, env model.Envelope) (*model.Feature, error) {
	src := l.Source()
	if src == nil {
		return nil, nil
	}
	rows, err := query(ctx, l.Name, src, env)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	q := geometry.QueryFor(env)
	for _, row := range slices.Backward(rows) {
		if geometry.Intersects(row.Geometry, q) {
			return &row, nil
		}
	}
	return nil, nil
}

func query(ctx context.Context, layer string, p layers.Provider, env model.Envelope) (rows []model.Feature, err error) {
	start := time.Now()
	defer func() {
		observability.ObserveProviderQuery(layer, err, time.Since(start).Seconds())
	}()

	if err := p.Open(ctx); err != nil {
		return nil, fmt.Errorf("layer %q: open: %w", layer, err)
	}
	defer func() {
		if cerr := p.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("layer %q: close: %w", layer, cerr)
			rows = nil
		}
	}()

	rows, err = p.Query(ctx, env)
	if err != nil {
		return nil, fmt.Errorf("layer %q: query: %w", layer, err)
	}
	return rows, nil
}
