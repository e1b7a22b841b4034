package layers

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/paulmach/orb"

	"streetsketch/core-go/internal/events"
)

type recordingPublisher struct {
	events []events.Event
}

func (p *recordingPublisher) Publish(topic events.Topic, payload any) error {
	p.events = append(p.events, events.Event{Topic: topic, Payload: payload})
	return nil
}

type fakeGesture struct{ cancelled int }

func (g *fakeGesture) Cancel() { g.cancelled++ }

type fakeCanvas struct {
	started  []string
	gestures []*fakeGesture
	err      error
}

func (c *fakeCanvas) BeginDrawing(v Variant) (Gesture, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.started = append(c.started, v.ID)
	g := &fakeGesture{}
	c.gestures = append(c.gestures, g)
	return g, nil
}

func variant(t *testing.T, id string) Variant {
	t.Helper()
	for _, v := range Variants() {
		if v.ID == id {
			return v
		}
	}
	t.Fatalf("unknown variant %q", id)
	return Variant{}
}

func TestActivate_LineLayerRequestsGesture(t *testing.T) {
	canvas := &fakeCanvas{}
	h := NewHandle(variant(t, TramLines), nil)

	if err := h.Activate(ActivateContext{Canvas: canvas}); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if !h.Selected() || !h.Drawing() {
		t.Fatalf("expected selected handle with a gesture")
	}
	if err := h.Activate(ActivateContext{Canvas: canvas}); err != nil {
		t.Fatalf("second activate: %v", err)
	}
	if len(canvas.started) != 1 {
		t.Fatalf("expected second activate to be a no-op, got %d gestures", len(canvas.started))
	}

	h.Deactivate()
	if h.Selected() || h.Drawing() {
		t.Fatalf("expected deactivate to release the gesture")
	}
	if canvas.gestures[0].cancelled != 1 {
		t.Fatalf("expected gesture to be cancelled once, got %d", canvas.gestures[0].cancelled)
	}

	h.Deactivate()
	if canvas.gestures[0].cancelled != 1 {
		t.Fatalf("expected repeated deactivate to be idempotent")
	}
}

func TestActivate_PointLayerDoesNotDraw(t *testing.T) {
	canvas := &fakeCanvas{}
	h := NewHandle(variant(t, ModalFilters), nil)
	if err := h.Activate(ActivateContext{Canvas: canvas}); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if len(canvas.started) != 0 || h.Drawing() {
		t.Fatalf("expected no gesture for a point layer")
	}
}

func TestActivate_CanvasFailureLeavesHandleDeselected(t *testing.T) {
	canvas := &fakeCanvas{err: errors.New("no map")}
	h := NewHandle(variant(t, LtnCells), nil)
	if err := h.Activate(ActivateContext{Canvas: canvas}); err == nil {
		t.Fatalf("expected error")
	}
	if h.Selected() {
		t.Fatalf("expected handle to stay deselected")
	}
}

func TestCommitFeature_PublishesLayerUpdated(t *testing.T) {
	pub := &recordingPublisher{}
	h := NewHandle(variant(t, MobilityLanes), pub)

	f, err := h.CommitFeature(json.RawMessage(`[[-1.9,52.5],[-1.8,52.6]]`))
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if f.ID == "" {
		t.Fatalf("expected feature id")
	}
	if h.Len() != 1 {
		t.Fatalf("expected 1 feature, got %d", h.Len())
	}
	if len(pub.events) != 1 || pub.events[0].Topic != events.LayerUpdated || pub.events[0].Payload != MobilityLanes {
		t.Fatalf("expected one layer-updated(MobilityLanes), got %+v", pub.events)
	}
}

func TestCommitFeature_FlattensDoubleNestedLine(t *testing.T) {
	h := NewHandle(variant(t, TramLines), nil)
	if _, err := h.CommitFeature(json.RawMessage(`[[[-1.9,52.5],[-1.8,52.6]]]`)); err != nil {
		t.Fatalf("commit over-nested: %v", err)
	}
	if _, err := h.CommitFeature(json.RawMessage(`[[-1.9,52.5],[-1.8,52.6]]`)); err != nil {
		t.Fatalf("commit: %v", err)
	}
	fs := h.Features()
	if !orb.Equal(fs[0].Geometry, fs[1].Geometry) {
		t.Fatalf("expected identical geometry, got %v and %v", fs[0].Geometry, fs[1].Geometry)
	}
}

func TestCommitFeature_RejectsWrongArity(t *testing.T) {
	pub := &recordingPublisher{}
	h := NewHandle(variant(t, TramLines), pub)

	_, err := h.CommitFeature(json.RawMessage(`[[-1.9],[-1.8,52.6]]`))
	if !errors.Is(err, ErrGeometryMalformed) {
		t.Fatalf("expected ErrGeometryMalformed, got %v", err)
	}
	if h.Len() != 0 || len(pub.events) != 0 {
		t.Fatalf("expected no feature and no event on failure")
	}
}

func TestCommitFeature_PolygonFromBareRing(t *testing.T) {
	h := NewHandle(variant(t, LtnCells), nil)
	f, err := h.CommitFeature(json.RawMessage(`[[0,0],[1,0],[1,1],[0,0]]`))
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	poly, ok := f.Geometry.(orb.Polygon)
	if !ok || len(poly) != 1 || len(poly[0]) != 4 {
		t.Fatalf("expected single-ring polygon, got %#v", f.Geometry)
	}
	if f.Label != "1" || f.Color != "#ff5e00" {
		t.Fatalf("expected default label and colour, got %q %q", f.Label, f.Color)
	}
}

func TestCommitPoint(t *testing.T) {
	h := NewHandle(variant(t, ModalFilters), nil)
	f, err := h.CommitPoint(52.5, -1.9)
	if err != nil {
		t.Fatalf("commit point: %v", err)
	}
	pt := f.Geometry.(orb.Point)
	if pt.Lat() != 52.5 || pt.Lon() != -1.9 {
		t.Fatalf("unexpected point %v", pt)
	}

	line := NewHandle(variant(t, TramLines), nil)
	if _, err := line.CommitPoint(1, 1); !errors.Is(err, ErrGeometryMalformed) {
		t.Fatalf("expected line layer to reject a point, got %v", err)
	}
}

func TestRemoveFeature(t *testing.T) {
	pub := &recordingPublisher{}
	h := NewHandle(variant(t, BusGates), pub)
	a, _ := h.CommitPoint(1, 1)
	b, _ := h.CommitPoint(2, 2)

	if err := h.RemoveFeature(a.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	fs := h.Features()
	if len(fs) != 1 || fs[0].ID != b.ID {
		t.Fatalf("expected only %s left, got %+v", b.ID, fs)
	}
	if len(pub.events) != 3 {
		t.Fatalf("expected 3 layer-updated events, got %d", len(pub.events))
	}
	if err := h.RemoveFeature("missing"); !errors.Is(err, ErrFeatureNotFound) {
		t.Fatalf("expected ErrFeatureNotFound, got %v", err)
	}
}

func TestSetLabel(t *testing.T) {
	h := NewHandle(variant(t, LtnCells), nil)
	f, _ := h.CommitFeature(json.RawMessage(`[[[0,0],[1,0],[1,1],[0,0]]]`))
	if err := h.SetLabel(f.ID, "Cell A"); err != nil {
		t.Fatalf("set label: %v", err)
	}
	if got := h.Features()[0].Label; got != "Cell A" {
		t.Fatalf("expected label to change, got %q", got)
	}

	lanes := NewHandle(variant(t, MobilityLanes), nil)
	g, _ := lanes.CommitFeature(json.RawMessage(`[[0,0],[1,1]]`))
	if err := lanes.SetLabel(g.ID, "x"); !errors.Is(err, ErrNotLabelled) {
		t.Fatalf("expected ErrNotLabelled, got %v", err)
	}
}

func TestLabelsVisible(t *testing.T) {
	h := NewHandle(variant(t, LtnCells), nil)
	if h.LabelsVisible(13) {
		t.Fatalf("expected labels hidden below threshold")
	}
	if !h.LabelsVisible(14) {
		t.Fatalf("expected labels shown at threshold")
	}
}

func TestDocumentRoundTrip_PreservesLabelAndColor(t *testing.T) {
	src := NewHandle(variant(t, LtnCells), nil)
	src.Load([]*Feature{{
		ID:       "cell-1",
		Geometry: orb.Polygon{orb.Ring{{-1.9, 52.5}, {-1.8, 52.5}, {-1.8, 52.6}, {-1.9, 52.5}}},
		Label:    "North",
		Color:    "#123456",
		Extra:    map[string]any{"note": "school run"},
	}})

	raw, err := json.Marshal(src.ToDocument())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	dst := NewHandle(variant(t, LtnCells), nil)
	if err := dst.LoadFromDocument(raw); err != nil {
		t.Fatalf("load: %v", err)
	}
	got := dst.Features()
	if len(got) != 1 {
		t.Fatalf("expected 1 feature, got %d", len(got))
	}
	f := got[0]
	if f.ID != "cell-1" || f.Label != "North" || f.Color != "#123456" || f.Extra["note"] != "school run" {
		t.Fatalf("properties did not round-trip: %+v", f)
	}
	want := src.Features()[0].Geometry.(orb.Polygon)
	have := f.Geometry.(orb.Polygon)
	for i := range want[0] {
		if math.Abs(want[0][i][0]-have[0][i][0]) > 1e-9 || math.Abs(want[0][i][1]-have[0][i][1]) > 1e-9 {
			t.Fatalf("coordinate %d differs: %v vs %v", i, want[0][i], have[0][i])
		}
	}
}

func TestLoadFromDocument_DeNestsLegacyLines(t *testing.T) {
	nested := `{"type":"FeatureCollection","features":[{"type":"Feature","geometry":{"type":"MultiLineString","coordinates":[[[-1.9,52.5],[-1.8,52.6]]]}}]}`
	flat := `{"type":"FeatureCollection","features":[{"type":"Feature","geometry":{"type":"LineString","coordinates":[[-1.9,52.5],[-1.8,52.6]]}}]}`

	a := NewHandle(variant(t, MobilityLanes), nil)
	b := NewHandle(variant(t, MobilityLanes), nil)
	if err := a.LoadFromDocument(json.RawMessage(nested)); err != nil {
		t.Fatalf("load nested: %v", err)
	}
	if err := b.LoadFromDocument(json.RawMessage(flat)); err != nil {
		t.Fatalf("load flat: %v", err)
	}
	if !orb.Equal(a.Features()[0].Geometry, b.Features()[0].Geometry) {
		t.Fatalf("expected identical geometry after de-nesting")
	}
}

func TestLoadFromDocument_MalformedAppendsNothing(t *testing.T) {
	doc := `{"type":"FeatureCollection","features":[
		{"type":"Feature","geometry":{"type":"Point","coordinates":[-1.9,52.5]}},
		{"type":"Feature","geometry":{"type":"Point","coordinates":[-1.9]}}]}`
	h := NewHandle(variant(t, ModalFilters), nil)
	err := h.LoadFromDocument(json.RawMessage(doc))
	if !errors.Is(err, ErrGeometryMalformed) {
		t.Fatalf("expected ErrGeometryMalformed, got %v", err)
	}
	if h.Len() != 0 {
		t.Fatalf("expected nothing appended, got %d", h.Len())
	}
}

func TestLoadFromDocument_NullIsEmpty(t *testing.T) {
	h := NewHandle(variant(t, ModalFilters), nil)
	if err := h.LoadFromDocument(json.RawMessage(`null`)); err != nil {
		t.Fatalf("expected null collection to load, got %v", err)
	}
	if err := h.LoadFromDocument(nil); err != nil {
		t.Fatalf("expected missing collection to load, got %v", err)
	}
}

func TestClear(t *testing.T) {
	h := NewHandle(variant(t, ZebraCrossing), nil)
	_, _ = h.CommitPoint(1, 1)
	h.SetVisible(true)
	h.Clear()
	if h.Len() != 0 || h.Visible() {
		t.Fatalf("expected empty, hidden layer")
	}
}

func TestParseGeometry_RejectsWrongType(t *testing.T) {
	_, err := ParseGeometry(KindPoint, "Polygon", json.RawMessage(`[[[0,0],[1,1],[0,0]]]`))
	if !errors.Is(err, ErrGeometryMalformed) {
		t.Fatalf("expected ErrGeometryMalformed, got %v", err)
	}
}
