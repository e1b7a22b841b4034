package document

import (
	"github.com/paulmach/orb/geojson"

	"streetsketch/core-go/internal/layers"
)

// ExportGeoJSON merges every layer into one FeatureCollection. Each feature
// gets a "layer" property naming the layer it came from.
func ExportGeoJSON(reg *layers.Registry) *geojson.FeatureCollection {
	out := geojson.NewFeatureCollection()
	for _, h := range reg.Handles() {
		for _, f := range h.ToDocument().Features {
			f.Properties["layer"] = h.ID()
			out.Append(f)
		}
	}
	return out
}
