// Package layers holds the per-intervention layer handles: their features,
// drawing state and GeoJSON form.
package layers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"streetsketch/core-go/internal/events"
)

var (
	ErrFeatureNotFound = errors.New("feature not found")
	ErrNotLabelled     = errors.New("layer features have no label")
)

// Publisher is the part of the event router a handle needs.
type Publisher interface {
	Publish(topic events.Topic, payload any) error
}

// Gesture is an in-progress drawing interaction owned by the map widget.
type Gesture interface {
	Cancel()
}

// Canvas hands out drawing gestures for line and polygon layers.
type Canvas interface {
	BeginDrawing(v Variant) (Gesture, error)
}

// ActivateContext carries the collaborators available when a layer becomes
// the active drawing tool. A nil Canvas means no widget is attached.
type ActivateContext struct {
	Canvas Canvas
}

// Handle owns one layer's features and drawing state. Handles never
// coordinate with each other; the session enforces that at most one is
// selected.
type Handle struct {
	variant  Variant
	pub      Publisher
	selected bool
	visible  bool
	features []*Feature
	gesture  Gesture
}

func NewHandle(v Variant, pub Publisher) *Handle {
	return &Handle{variant: v, pub: pub}
}

func (h *Handle) ID() string        { return h.variant.ID }
func (h *Handle) Title() string     { return h.variant.Title }
func (h *Handle) Group() string     { return h.variant.Group }
func (h *Handle) Kind() Kind        { return h.variant.Kind }
func (h *Handle) Variant() Variant  { return h.variant }
func (h *Handle) Selected() bool    { return h.selected }
func (h *Handle) Visible() bool     { return h.visible }
func (h *Handle) Drawing() bool     { return h.gesture != nil }
func (h *Handle) Len() int          { return len(h.features) }
func (h *Handle) SetVisible(v bool) { h.visible = v }

// Features returns copies of the layer's features in insertion order.
func (h *Handle) Features() []*Feature {
	out := make([]*Feature, 0, len(h.features))
	for _, f := range h.features {
		out = append(out, f.clone())
	}
	return out
}

// Activate makes the layer the drawing tool. Line and polygon layers request
// a gesture from the canvas; point layers wait for map clicks. Activating a
// selected layer does nothing.
func (h *Handle) Activate(ctx ActivateContext) error {
	if h.selected {
		return nil
	}
	if h.variant.Kind != KindPoint && ctx.Canvas != nil {
		g, err := ctx.Canvas.BeginDrawing(h.variant)
		if err != nil {
			return fmt.Errorf("layers: begin drawing %s: %w", h.variant.ID, err)
		}
		h.gesture = g
	}
	h.selected = true
	return nil
}

// Deactivate cancels any drawing gesture and deselects the layer.
func (h *Handle) Deactivate() {
	if h.gesture != nil {
		h.gesture.Cancel()
		h.gesture = nil
	}
	h.selected = false
}

// CommitFeature appends a feature built from raw GeoJSON coordinates and
// publishes layer-updated.
func (h *Handle) CommitFeature(coordinates json.RawMessage) (*Feature, error) {
	geom, err := ParseGeometry(h.variant.Kind, "", coordinates)
	if err != nil {
		return nil, err
	}
	return h.commit(geom)
}

// CommitPoint appends a point feature for a map click.
func (h *Handle) CommitPoint(lat, lng float64) (*Feature, error) {
	if h.variant.Kind != KindPoint {
		return nil, malformed("%s layer cannot hold a point", h.variant.Kind)
	}
	return h.commit(orb.Point{lng, lat})
}

func (h *Handle) commit(geom orb.Geometry) (*Feature, error) {
	f := &Feature{ID: newFeatureID(), Geometry: geom}
	if h.variant.Labelled {
		f.Label = h.variant.DefaultLabel
		f.Color = h.variant.Color
	}
	h.features = append(h.features, f)
	return f.clone(), h.updated()
}

// RemoveFeature deletes the feature with the given id.
func (h *Handle) RemoveFeature(id string) error {
	i := h.index(id)
	if i < 0 {
		return fmt.Errorf("%w: %s/%s", ErrFeatureNotFound, h.variant.ID, id)
	}
	h.features = append(h.features[:i], h.features[i+1:]...)
	return h.updated()
}

// ReplaceGeometry stores an edited shape for an existing feature.
func (h *Handle) ReplaceGeometry(id string, coordinates json.RawMessage) error {
	i := h.index(id)
	if i < 0 {
		return fmt.Errorf("%w: %s/%s", ErrFeatureNotFound, h.variant.ID, id)
	}
	geom, err := ParseGeometry(h.variant.Kind, "", coordinates)
	if err != nil {
		return err
	}
	h.features[i].Geometry = geom
	return h.updated()
}

// SetLabel changes the label of a feature on a labelled layer.
func (h *Handle) SetLabel(id, label string) error {
	if !h.variant.Labelled {
		return fmt.Errorf("%w: %s", ErrNotLabelled, h.variant.ID)
	}
	i := h.index(id)
	if i < 0 {
		return fmt.Errorf("%w: %s/%s", ErrFeatureNotFound, h.variant.ID, id)
	}
	h.features[i].Label = label
	return h.updated()
}

// LabelsVisible reports whether feature labels are drawn at zoom.
func (h *Handle) LabelsVisible(zoom int) bool {
	return h.variant.Labelled && zoom >= LabelZoomThreshold
}

// ToDocument returns the layer as a GeoJSON FeatureCollection.
func (h *Handle) ToDocument() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, f := range h.features {
		fc.Append(f.toGeoJSON(h.variant))
	}
	return fc
}

// ParseDocument reads a FeatureCollection without touching the handle. A
// missing or null collection yields no features.
func (h *Handle) ParseDocument(raw json.RawMessage) ([]*Feature, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	var rc rawCollection
	if err := json.Unmarshal(trimmed, &rc); err != nil {
		return nil, malformed("%s: feature collection: %v", h.variant.ID, err)
	}

	out := make([]*Feature, 0, len(rc.Features))
	for i, rf := range rc.Features {
		f, err := parseFeature(h.variant, rf)
		if err != nil {
			return nil, fmt.Errorf("%s feature %d: %w", h.variant.ID, i, err)
		}
		out = append(out, f)
	}
	return out, nil
}

// Load appends already parsed features without publishing.
func (h *Handle) Load(features []*Feature) {
	for _, f := range features {
		h.features = append(h.features, f.clone())
	}
}

// LoadFromDocument parses raw and appends its features. Nothing is appended
// when any feature is malformed. Clearing first is the caller's job.
func (h *Handle) LoadFromDocument(raw json.RawMessage) error {
	features, err := h.ParseDocument(raw)
	if err != nil {
		return err
	}
	h.Load(features)
	return nil
}

// Clear drops every feature and hides the layer.
func (h *Handle) Clear() {
	h.features = nil
	h.visible = false
}

func (h *Handle) index(id string) int {
	for i, f := range h.features {
		if f.ID == id {
			return i
		}
	}
	return -1
}

func (h *Handle) updated() error {
	if h.pub == nil {
		return nil
	}
	return h.pub.Publish(events.LayerUpdated, h.variant.ID)
}
