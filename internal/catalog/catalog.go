// Package catalog assembles the served layer catalog from configuration.
package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mohammed-shakir/mercator-pick/internal/core/config"
	"github.com/mohammed-shakir/mercator-pick/internal/core/layers"
	"github.com/mohammed-shakir/mercator-pick/internal/core/model"
	"github.com/mohammed-shakir/mercator-pick/internal/providers/csvpoi"
	"github.com/mohammed-shakir/mercator-pick/internal/providers/donuts"
	"github.com/mohammed-shakir/mercator-pick/internal/providers/shapefile"
	"github.com/mohammed-shakir/mercator-pick/internal/providers/sqlpoints"
)

const (
	WorldCountries = "WorldCountries"
	Donuts         = "Donuts"
	Wiki           = "Wiki"
)

// Build returns area layers first, point layers last, in rendering order.
// db may be nil when no address tables are configured.
func Build(cfg config.Config, db *sql.DB, log *slog.Logger) (layers.Catalog, error) {
	if log == nil {
		log = slog.Default()
	}
	var out layers.Catalog

	if cfg.ShapefilePath != "" {
		p, skipped, err := shapefile.Load(cfg.ShapefilePath)
		if err != nil {
			return nil, fmt.Errorf("catalog: %s: %w", WorldCountries, err)
		}
		log.Info("layer loaded", "layer", WorldCountries, "features", p.Len(), "skipped", skipped)
		out = append(out, layers.Info{
			Name:     WorldCountries,
			Caption:  "World countries",
			Category: model.CategoryArea,
			Visible:  true,
			Provider: p,
		})
	}

	if cfg.DonutCount > 0 {
		p := donuts.NewProvider(cfg.DonutCount, cfg.EarthRadius)
		log.Info("layer loaded", "layer", Donuts, "features", p.Len())
		out = append(out, layers.Info{
			Name:     Donuts,
			Category: model.CategoryArea,
			Visible:  true,
			Provider: p,
		})
	}

	if cfg.POICSVPath != "" {
		p, st, err := csvpoi.LoadFile(cfg.POICSVPath)
		if err != nil {
			return nil, fmt.Errorf("catalog: %s: %w", Wiki, err)
		}
		log.Info("layer loaded", "layer", Wiki, "features", st.Loaded, "skipped", st.Skipped)
		out = append(out, layers.Info{
			Name:     Wiki,
			Caption:  "Wikipedia",
			Category: model.CategoryPoint,
			Visible:  true,
			Provider: p,
		})
	}

	if len(cfg.AddressTables) > 0 && db == nil {
		return nil, errors.New("catalog: address tables configured without a database")
	}
	for _, at := range cfg.AddressTables {
		if _, dup := out.Lookup(at.Layer); dup {
			return nil, fmt.Errorf("catalog: duplicate layer name %q", at.Layer)
		}
		proto, err := sqlpoints.New(db, sqlpoints.DefaultTable(at.Table))
		if err != nil {
			return nil, fmt.Errorf("catalog: %s: %w", at.Layer, err)
		}
		log.Info("layer registered", "layer", at.Layer, "table", at.Table)
		out = append(out, layers.Info{
			Name:     at.Layer,
			Caption:  at.Caption,
			Category: model.CategoryPoint,
			Visible:  true,
			Factory:  func() layers.Provider { return proto.Clone() },
		})
	}

	return out, nil
}
