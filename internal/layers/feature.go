package layers

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Feature is one drawn shape owned by a Handle.
type Feature struct {
	ID       string
	Geometry orb.Geometry
	// Label and Color are only meaningful on labelled variants (LTN cells).
	Label string
	Color string
	// Extra holds document properties this layer does not interpret; they are
	// written back unchanged.
	Extra map[string]any
}

func newFeatureID() string {
	return uuid.NewString()
}

func (f *Feature) clone() *Feature {
	c := *f
	c.Geometry = orb.Clone(f.Geometry)
	if f.Extra != nil {
		c.Extra = make(map[string]any, len(f.Extra))
		for k, v := range f.Extra {
			c.Extra[k] = v
		}
	}
	return &c
}

func (f *Feature) toGeoJSON(v Variant) *geojson.Feature {
	gf := geojson.NewFeature(f.Geometry)
	if f.ID != "" {
		gf.ID = f.ID
	}
	for k, val := range f.Extra {
		gf.Properties[k] = val
	}
	if v.Labelled {
		gf.Properties["label"] = f.Label
		gf.Properties["color"] = f.Color
	}
	return gf
}

// rawFeature is the subset of a GeoJSON feature read from documents. The
// geometry is decoded by hand so over-nested coordinates can be repaired.
type rawFeature struct {
	ID       any `json:"id,omitempty"`
	Geometry *struct {
		Type        string          `json:"type"`
		Coordinates json.RawMessage `json:"coordinates"`
	} `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

type rawCollection struct {
	Type     string       `json:"type"`
	Features []rawFeature `json:"features"`
}

func parseFeature(v Variant, rf rawFeature) (*Feature, error) {
	if rf.Geometry == nil {
		return nil, malformed("feature has no geometry")
	}
	geom, err := ParseGeometry(v.Kind, rf.Geometry.Type, rf.Geometry.Coordinates)
	if err != nil {
		return nil, err
	}

	f := &Feature{Geometry: geom}
	switch id := rf.ID.(type) {
	case string:
		f.ID = id
	case float64:
		f.ID = fmt.Sprintf("%v", id)
	}
	if f.ID == "" {
		f.ID = newFeatureID()
	}

	for k, val := range rf.Properties {
		if v.Labelled && (k == "label" || k == "color") {
			continue
		}
		if f.Extra == nil {
			f.Extra = make(map[string]any)
		}
		f.Extra[k] = val
	}

	if v.Labelled {
		f.Label = v.DefaultLabel
		f.Color = v.Color
		if label, ok := rf.Properties["label"]; ok && label != nil {
			if s, ok := label.(string); ok {
				f.Label = s
			} else {
				f.Label = fmt.Sprint(label)
			}
		}
		if color, ok := rf.Properties["color"].(string); ok && color != "" {
			f.Color = color
		}
	}
	return f, nil
}
