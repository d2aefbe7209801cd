package hittest

import (
	"maps"

	"github.com/paulmach/orb/geojson"
)

// LayerProperty is the GeoJSON property naming the layer a hit came from.
const LayerProperty = "layer"

// GeoJSON renders the hit as a feature carrying every attribute as a
// property plus the layer name. An attribute named "layer" is overridden.
func (h *Hit) GeoJSON() *geojson.Feature {
	f := geojson.NewFeature(h.Feature.Geometry)
	if len(h.Feature.Attributes) > 0 {
		f.Properties = geojson.Properties(maps.Clone(h.Feature.Attributes))
	}
	f.Properties[LayerProperty] = h.Layer
	return f
}
