// Package layers models the ordered layer catalog the hit tester walks.
package layers

import (
	"context"
	"slices"

	"github.com/mohammed-shakir/mercator-pick/internal/core/model"
)

// Provider is a source of candidate features. Query is given a geographic
// envelope and returns rows whose geometry may overlap it; exact
// intersection is the caller's job. Row order is provider-defined and later
// rows are treated as drawn on top of earlier ones.
type Provider interface {
	Open(ctx context.Context) error
	Query(ctx context.Context, env model.Envelope) ([]model.Feature, error)
	Close() error
}

type Info struct {
	Name     string              `json:"name"`
	Caption  string              `json:"caption,omitempty"`
	Category model.LayerCategory `json:"layerCategory"`
	Themes   []string            `json:"themes,omitempty"`
	Visible  bool                `json:"-"`
	Provider Provider            `json:"-"`
	// Factory, when set, builds a fresh provider per use. Stateful providers
	// (pinned connections) need it to be shared across concurrent picks.
	Factory func() Provider `json:"-"`
}

// Source returns the provider to use for one query cycle.
func (i Info) Source() Provider {
	if i.Factory != nil {
		return i.Factory()
	}
	return i.Provider
}

func (i Info) Tier() model.RenderingTier { return i.Category.Tier() }

// DisplayName falls back to Name when no caption is set.
func (i Info) DisplayName() string {
	if i.Caption == "" {
		return i.Name
	}
	return i.Caption
}

// Catalog is kept in rendering order: index 0 is drawn first (bottom) and
// the last entry is drawn on top.
type Catalog []Info

// Visible returns visible layers of a tier in rendering order.
func (c Catalog) Visible(tier model.RenderingTier) []Info {
	out := make([]Info, 0, len(c))
	for _, l := range c {
		if l.Visible && l.Tier() == tier {
			out = append(out, l)
		}
	}
	return out
}

// TopDown returns visible layers of a tier topmost first.
func (c Catalog) TopDown(tier model.RenderingTier) []Info {
	out := c.Visible(tier)
	slices.Reverse(out)
	return out
}

// Filter keeps layers whose name is listed, preserving catalog order.
func (c Catalog) Filter(names []string) Catalog {
	want := make(map[string]struct{}, len(names))
	for _, n := range names {
		want[n] = struct{}{}
	}
	out := make(Catalog, 0, len(names))
	for _, l := range c {
		if _, ok := want[l.Name]; ok {
			out = append(out, l)
		}
	}
	return out
}

func (c Catalog) Lookup(name string) (Info, bool) {
	for _, l := range c {
		if l.Name == name {
			return l, true
		}
	}
	return Info{}, false
}
