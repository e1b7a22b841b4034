package document

import (
	"math"

	"streetsketch/core-go/internal/layers"
)

// SchemaVersion tags documents written by this release.
const SchemaVersion = "2"

const DefaultTitle = "Hello, Cleveland"

type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Settings is the per-map configuration shared by the toolbar, legend and
// overlay control.
type Settings struct {
	Title        string   `json:"title"`
	ReadOnly     bool     `json:"readOnly"`
	HideToolbar  bool     `json:"hideToolbar"`
	ActiveLayers []string `json:"activeLayers"`
	Centre       *LatLng  `json:"centre,omitempty"`
	Zoom         *int     `json:"zoom,omitempty"`
	Version      string   `json:"version,omitempty"`
}

// View is the map position a document asks for.
type View struct {
	Centre LatLng `json:"centre"`
	Zoom   int    `json:"zoom"`
}

// DefaultSettings activates every layer of the registry.
func DefaultSettings(title string, reg *layers.Registry) Settings {
	if title == "" {
		title = DefaultTitle
	}
	return Settings{
		Title:        title,
		ActiveLayers: reg.IDs(),
		Version:      SchemaVersion,
	}
}

// Clone returns a deep copy.
func (s Settings) Clone() Settings {
	c := s
	c.ActiveLayers = append([]string(nil), s.ActiveLayers...)
	if s.Centre != nil {
		centre := *s.Centre
		c.Centre = &centre
	}
	if s.Zoom != nil {
		zoom := *s.Zoom
		c.Zoom = &zoom
	}
	return c
}

// IsActive reports whether id is listed in ActiveLayers.
func (s Settings) IsActive(id string) bool {
	for _, a := range s.ActiveLayers {
		if a == id {
			return true
		}
	}
	return false
}

// View returns the stored map position, if both centre and zoom are set.
func (s Settings) View() (View, bool) {
	if s.Centre == nil || s.Zoom == nil {
		return View{}, false
	}
	return View{Centre: *s.Centre, Zoom: *s.Zoom}, true
}

// WithView stores v as the map position.
func (s Settings) WithView(v View) Settings {
	centre := v.Centre
	zoom := v.Zoom
	s.Centre = &centre
	s.Zoom = &zoom
	return s
}

// NormalizeActiveLayers maps legacy aliases to canonical ids, drops ids the
// registry does not know and removes duplicates, keeping first-seen order.
func NormalizeActiveLayers(ids []string, reg *layers.Registry) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, raw := range ids {
		id, ok := reg.Resolve(raw)
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func roundZoom(z float64) int {
	return int(math.Round(z))
}
