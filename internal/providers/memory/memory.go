// Package memory is an in-memory geometry table used as a layer provider.
package memory

import (
	"context"
	"maps"

	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/mercator-pick/internal/core/model"
)

type row struct {
	feature model.Feature
	bound   orb.Bound
}

// Provider keeps rows in insertion order; Query returns them in that order.
// There is no spatial index, every query scans all rows.
type Provider struct {
	rows []row
}

func New(features ...model.Feature) *Provider {
	p := &Provider{rows: make([]row, 0, len(features))}
	for _, f := range features {
		p.Add(f)
	}
	return p
}

// Add appends a row; rows without geometry are kept but never returned.
func (p *Provider) Add(f model.Feature) {
	r := row{feature: f}
	if f.Geometry != nil {
		r.bound = f.Geometry.Bound()
	}
	p.rows = append(p.rows, r)
}

func (p *Provider) Len() int { return len(p.rows) }

// Extent is the union of all row bounds.
func (p *Provider) Extent() (model.Envelope, bool) {
	var (
		b  orb.Bound
		ok bool
	)
	for _, r := range p.rows {
		if r.feature.Geometry == nil {
			continue
		}
		if !ok {
			b, ok = r.bound, true
			continue
		}
		b = b.Union(r.bound)
	}
	if !ok {
		return model.Envelope{}, false
	}
	return model.EnvelopeFromBound(b), true
}

func (p *Provider) Open(context.Context) error { return nil }

func (p *Provider) Close() error { return nil }

// Query returns rows whose bound overlaps env. Attribute maps are copied so
// callers cannot modify the table.
func (p *Provider) Query(ctx context.Context, env model.Envelope) ([]model.Feature, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q := env.Bound()
	var out []model.Feature
	for _, r := range p.rows {
		if r.feature.Geometry == nil || !r.bound.Intersects(q) {
			continue
		}
		out = append(out, model.Feature{
			Geometry:   r.feature.Geometry,
			Attributes: maps.Clone(r.feature.Attributes),
		})
	}
	return out, nil
}
