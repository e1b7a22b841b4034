// Package document converts a session's settings and layers to and from the
// persisted JSON document, including the shims older documents need.
package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"streetsketch/core-go/internal/layers"
	"streetsketch/core-go/internal/naming"
)

// Document is the persisted form written by this release. Centre and Zoom
// are repeated at the top level for readers that predate Settings.
type Document struct {
	Settings  Settings                   `json:"settings"`
	Centre    *LatLng                    `json:"centre,omitempty"`
	Zoom      *int                       `json:"zoom,omitempty"`
	Layers    map[string]json.RawMessage `json:"layers"`
	LastSaved string                     `json:"lastSaved,omitempty"`
}

type wireSettings struct {
	Title        string    `json:"title"`
	ReadOnly     bool      `json:"readOnly"`
	HideToolbar  bool      `json:"hideToolbar"`
	ActiveLayers *[]string `json:"activeLayers"`
	Centre       *LatLng   `json:"centre"`
	Zoom         *float64  `json:"zoom"`
	Version      string    `json:"version"`
}

type wireDocument struct {
	Settings *wireSettings              `json:"settings"`
	Title    *string                    `json:"title"`
	Centre   *LatLng                    `json:"centre"`
	Zoom     *float64                   `json:"zoom"`
	Layers   map[string]json.RawMessage `json:"layers"`
}

// Serialize captures settings and every layer of reg. The same state always
// yields the same document.
func Serialize(s Settings, reg *layers.Registry) (*Document, error) {
	doc := &Document{
		Settings: s.Clone(),
		Layers:   make(map[string]json.RawMessage, len(reg.IDs())),
	}
	if doc.Settings.ActiveLayers == nil {
		doc.Settings.ActiveLayers = []string{}
	}
	if v, ok := s.View(); ok {
		centre := v.Centre
		zoom := v.Zoom
		doc.Centre = &centre
		doc.Zoom = &zoom
	}
	for _, h := range reg.Handles() {
		raw, err := json.Marshal(h.ToDocument())
		if err != nil {
			return nil, fmt.Errorf("document: encode layer %s: %w", h.ID(), err)
		}
		doc.Layers[h.ID()] = raw
	}
	return doc, nil
}

// Marshal serializes straight to JSON bytes.
func Marshal(s Settings, reg *layers.Registry) ([]byte, error) {
	doc, err := Serialize(s, reg)
	if err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}

// Parsed is a fully validated document that has not been applied yet.
type Parsed struct {
	Settings Settings
	View     View
	HasView  bool
	features map[string][]*layers.Feature
}

// FeatureCount is the number of features that Apply will load.
func (p *Parsed) FeatureCount() int {
	n := 0
	for _, fs := range p.features {
		n += len(fs)
	}
	return n
}

// Parse reads and validates the whole document against reg without
// changing any handle. Errors are *Error values carrying the raw input.
func Parse(data []byte, reg *layers.Registry) (*Parsed, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, invalid(data, "document is empty")
	}
	if trimmed[0] != '{' {
		return nil, invalid(data, "document is not a JSON object")
	}

	var wire wireDocument
	if err := json.Unmarshal(trimmed, &wire); err != nil {
		return nil, invalid(data, "decode: %w", err)
	}

	p := &Parsed{
		Settings: resolveSettings(wire, reg),
		features: make(map[string][]*layers.Feature),
	}
	p.View, p.HasView = resolveView(wire)
	if p.HasView {
		p.Settings = p.Settings.WithView(p.View)
	}

	for _, h := range reg.Handles() {
		if !p.Settings.IsActive(h.ID()) {
			continue
		}
		raw, ok := lookupLayer(wire.Layers, h.Variant())
		if !ok {
			continue
		}
		fs, err := h.ParseDocument(raw)
		if err != nil {
			kind := KindDocumentInvalid
			if errors.Is(err, layers.ErrGeometryMalformed) {
				kind = KindGeometryMalformed
			}
			return nil, &Error{Kind: kind, Err: err, Raw: data}
		}
		p.features[h.ID()] = fs
	}
	return p, nil
}

// Apply loads the parsed features into reg. Layers listed in the settings
// become visible; the rest are hidden. Apply does not clear handles first.
func (p *Parsed) Apply(reg *layers.Registry) {
	for _, h := range reg.Handles() {
		active := p.Settings.IsActive(h.ID())
		h.SetVisible(active)
		if active {
			h.Load(p.features[h.ID()])
		}
	}
}

// Deserialize parses data and applies it to reg. On error reg is untouched.
func Deserialize(data []byte, reg *layers.Registry) (*Parsed, error) {
	p, err := Parse(data, reg)
	if err != nil {
		return nil, err
	}
	p.Apply(reg)
	return p, nil
}

func resolveSettings(wire wireDocument, reg *layers.Registry) Settings {
	var s Settings
	switch {
	case wire.Settings != nil:
		ws := wire.Settings
		s = Settings{
			Title:       loadedTitle(ws.Title),
			ReadOnly:    ws.ReadOnly,
			HideToolbar: ws.HideToolbar,
			Centre:      ws.Centre,
			Version:     ws.Version,
		}
		if ws.Zoom != nil {
			z := roundZoom(*ws.Zoom)
			s.Zoom = &z
		}
		if ws.ActiveLayers == nil {
			s.ActiveLayers = reg.IDs()
		} else {
			s.ActiveLayers = NormalizeActiveLayers(*ws.ActiveLayers, reg)
		}
	default:
		title := ""
		if wire.Title != nil {
			title = *wire.Title
		}
		s = DefaultSettings(loadedTitle(title), reg)
		s.Version = ""
	}
	if s.Version == "" {
		s.Version = SchemaVersion
	}
	return s
}

// loadedTitle returns the normalized title, or DefaultTitle when the
// document's title is missing or unusable.
func loadedTitle(raw string) string {
	title, err := naming.NormalizeTitle(raw)
	if err != nil {
		return DefaultTitle
	}
	return title
}

func resolveView(wire wireDocument) (View, bool) {
	if ws := wire.Settings; ws != nil && ws.Centre != nil && ws.Zoom != nil {
		return View{Centre: *ws.Centre, Zoom: roundZoom(*ws.Zoom)}, true
	}
	if wire.Centre != nil && wire.Zoom != nil {
		return View{Centre: *wire.Centre, Zoom: roundZoom(*wire.Zoom)}, true
	}
	return View{}, false
}

// lookupLayer tries the canonical id before the legacy aliases.
func lookupLayer(docLayers map[string]json.RawMessage, v layers.Variant) (json.RawMessage, bool) {
	if raw, ok := docLayers[v.ID]; ok {
		return raw, true
	}
	for _, alias := range v.Aliases {
		if raw, ok := docLayers[alias]; ok {
			return raw, true
		}
	}
	return nil, false
}
