// Package session holds the coordinator that owns one map editing session:
// the selection state machine, event routing to layers, settings and
// persistence triggers.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"

	"streetsketch/core-go/internal/document"
	"streetsketch/core-go/internal/events"
	"streetsketch/core-go/internal/layers"
	"streetsketch/core-go/internal/metrics"
	"streetsketch/core-go/internal/naming"
)

var (
	ErrUnknownLayer   = errors.New("unknown layer")
	ErrLayerInactive  = errors.New("layer is not active on this map")
	ErrReadOnly       = errors.New("map is read-only")
	ErrDuplicateTitle = errors.New("a map with this title already exists")
)

// Library is the map storage a session saves to and loads from.
type Library interface {
	SaveMap(ctx context.Context, title string, doc []byte) error
	LoadMap(ctx context.Context, title string) ([]byte, error)
	HasMap(ctx context.Context, title string) (bool, error)
	LastSelected(ctx context.Context) (string, error)
}

// Load sources, also used as metric labels.
const (
	SourceFile    = "file"
	SourceRemote  = "remote"
	SourceShare   = "share"
	SourceLibrary = "library"
)

// Click is the map-clicked payload.
type Click struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Drawing is the draw-created payload: the raw coordinates of a finished
// line or polygon gesture.
type Drawing struct {
	Coordinates json.RawMessage `json:"coordinates"`
}

// Loaded is the file-loaded payload.
type Loaded struct {
	Source string
	Data   []byte
}

// Popup identifies the feature whose popup is open.
type Popup struct {
	Layer   string `json:"layer"`
	Feature string `json:"feature"`
}

type Options struct {
	// Router defaults to a fresh router owned by the session.
	Router  *events.Router
	Canvas  layers.Canvas
	Library Library
	Metrics *metrics.Metrics
	// Title is the initial map title; empty means document.DefaultTitle.
	Title       string
	SaveTimeout time.Duration
	Context     context.Context
	Now         func() time.Time
}

// Coordinator is the single mutable state of one session. It is not safe
// for concurrent use; Runner serializes access.
type Coordinator struct {
	log         zerolog.Logger
	ctx         context.Context
	router      *events.Router
	reg         *layers.Registry
	canvas      layers.Canvas
	lib         Library
	metrics     *metrics.Metrics
	saveTimeout time.Duration
	now         func() time.Time

	settings document.Settings
	activeID string
	view     document.View
	hasView  bool
	zoom     int
	panel    Panel
	popup    *Popup
	problems []Problem
	unsubs   []func()
}

func New(log zerolog.Logger, opts Options) *Coordinator {
	if opts.Router == nil {
		opts.Router = events.NewRouter()
	}
	if opts.SaveTimeout <= 0 {
		opts.SaveTimeout = 5 * time.Second
	}
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	c := &Coordinator{
		log:         log,
		ctx:         opts.Context,
		router:      opts.Router,
		canvas:      opts.Canvas,
		lib:         opts.Library,
		metrics:     opts.Metrics,
		saveTimeout: opts.SaveTimeout,
		now:         opts.Now,
	}
	c.reg = layers.DefaultRegistry(c.router)
	c.settings = document.DefaultSettings(opts.Title, c.reg)
	c.applyVisibility()

	c.router.OnFault(c.fault)
	c.subscribe()
	return c
}

func (c *Coordinator) subscribe() {
	on := func(topic events.Topic, fn events.Handler) {
		c.unsubs = append(c.unsubs, c.router.Subscribe(topic, fn))
	}
	on(events.LayerSelected, c.onLayerSelected)
	on(events.LayerDeselected, c.onLayerDeselected)
	on(events.EscapePressed, c.onEscape)
	on(events.MapClicked, c.onMapClicked)
	on(events.DrawCreated, c.onDrawCreated)
	on(events.LayerUpdated, c.onLayerUpdated)
	on(events.ZoomChanged, c.onZoomChanged)
	on(events.ViewChanged, c.onViewChanged)
	on(events.ShowLayer, c.onLayerVisibility(true))
	on(events.HideLayer, c.onLayerVisibility(false))
	on(events.FileLoaded, c.onFileLoaded)
	on(events.SettingsSaved, c.onSettingsSaved)
	on(events.NewMapCreated, c.onNewMapCreated)
	on(events.ShowPopup, c.onShowPopup)
	on(events.ClosePopup, c.onClosePopup)
	on(events.ShowHelp, c.onShowPanel(PanelHelp))
	on(events.ShowSettings, c.onShowPanel(PanelSettings))
	on(events.ShowMapManager, c.onShowPanel(PanelMapManager))
	on(events.ShowSharingPopup, c.onShowPanel(PanelSharing))
	on(events.HideHelp, c.onHideHelp)
	on(events.HideModalWindows, c.onHideModalWindows)
}

// Close detaches the coordinator from its router and abandons any drawing.
func (c *Coordinator) Close() {
	for _, unsub := range c.unsubs {
		unsub()
	}
	c.unsubs = nil
	c.deselect()
}

func (c *Coordinator) Router() *events.Router      { return c.router }
func (c *Coordinator) Registry() *layers.Registry  { return c.reg }
func (c *Coordinator) Settings() document.Settings { return c.settings.Clone() }
func (c *Coordinator) Zoom() int                   { return c.zoom }
func (c *Coordinator) Panel() Panel                { return c.panel }
func (c *Coordinator) View() (document.View, bool) { return c.view, c.hasView }

// ActiveLayer returns the id of the layer being edited, or "" when idle.
func (c *Coordinator) ActiveLayer() string {
	if h := c.activeHandle(); h != nil {
		return h.ID()
	}
	return ""
}

// ClickToolbar toggles a layer's toolbar button: it selects the layer, or
// deselects it when it is already the active one.
func (c *Coordinator) ClickToolbar(layerID string) error {
	id, ok := c.reg.Resolve(layerID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownLayer, layerID)
	}
	if c.settings.ReadOnly {
		return nil
	}
	if c.ActiveLayer() == id {
		return c.router.Publish(events.LayerDeselected, id)
	}
	return c.router.Publish(events.LayerSelected, id)
}

func (c *Coordinator) Click(lat, lng float64) error {
	return c.router.Publish(events.MapClicked, Click{Lat: lat, Lng: lng})
}

func (c *Coordinator) Draw(coordinates json.RawMessage) error {
	return c.router.Publish(events.DrawCreated, Drawing{Coordinates: coordinates})
}

func (c *Coordinator) Escape() error {
	return c.router.Publish(events.EscapePressed, nil)
}

func (c *Coordinator) SetZoom(zoom int) error {
	return c.router.Publish(events.ZoomChanged, zoom)
}

func (c *Coordinator) MoveView(v document.View) error {
	return c.router.Publish(events.ViewChanged, v)
}

// ToggleLegend flips a layer's visibility the way a legend click does.
func (c *Coordinator) ToggleLegend(layerID string) error {
	h, err := c.handle(layerID)
	if err != nil {
		return err
	}
	if h.Visible() {
		return c.router.Publish(events.HideLayer, h.ID())
	}
	return c.router.Publish(events.ShowLayer, h.ID())
}

func (c *Coordinator) RemoveFeature(layerID, featureID string) error {
	h, err := c.editable(layerID)
	if err != nil {
		return err
	}
	if err := h.RemoveFeature(featureID); err != nil {
		return err
	}
	if c.popup != nil && c.popup.Layer == h.ID() && c.popup.Feature == featureID {
		c.popup = nil
	}
	return nil
}

func (c *Coordinator) ReplaceGeometry(layerID, featureID string, coordinates json.RawMessage) error {
	h, err := c.editable(layerID)
	if err != nil {
		return err
	}
	return h.ReplaceGeometry(featureID, coordinates)
}

func (c *Coordinator) SetLabel(layerID, featureID, label string) error {
	h, err := c.editable(layerID)
	if err != nil {
		return err
	}
	return h.SetLabel(featureID, label)
}

func (c *Coordinator) SaveSettings(s document.Settings) error {
	return c.router.Publish(events.SettingsSaved, s)
}

func (c *Coordinator) NewMap(title string) error {
	return c.router.Publish(events.NewMapCreated, title)
}

// LoadDocument replaces the session with the document in data. On failure
// the session is unchanged and the problem is recorded.
func (c *Coordinator) LoadDocument(source string, data []byte) error {
	return c.router.Publish(events.FileLoaded, Loaded{Source: source, Data: data})
}

// Document serializes the session the way it is saved.
func (c *Coordinator) Document() ([]byte, error) {
	doc, err := document.Serialize(c.settings, c.reg)
	if err != nil {
		return nil, err
	}
	doc.LastSaved = c.now().UTC().Format(time.RFC3339Nano)
	return json.Marshal(doc)
}

func (c *Coordinator) Export() *geojson.FeatureCollection {
	return document.ExportGeoJSON(c.reg)
}

// ShareLink returns the compressed URL fragment for the current map.
func (c *Coordinator) ShareLink() (string, error) {
	data, err := document.Marshal(c.settings, c.reg)
	if err != nil {
		return "", err
	}
	return document.EncodeShareLink(data)
}

func (c *Coordinator) handle(layerID string) (*layers.Handle, error) {
	id, ok := c.reg.Resolve(layerID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLayer, layerID)
	}
	h, _ := c.reg.Get(id)
	return h, nil
}

func (c *Coordinator) editable(layerID string) (*layers.Handle, error) {
	h, err := c.handle(layerID)
	if err != nil {
		return nil, err
	}
	if c.settings.ReadOnly {
		return nil, ErrReadOnly
	}
	return h, nil
}

// activeHandle resolves the active id. An id the registry no longer knows
// is reset, leaving the session idle.
func (c *Coordinator) activeHandle() *layers.Handle {
	if c.activeID == "" {
		return nil
	}
	h, ok := c.reg.Get(c.activeID)
	if !ok || !h.Selected() {
		c.activeID = ""
		return nil
	}
	return h
}

func (c *Coordinator) deselect() {
	for _, h := range c.reg.Selected() {
		h.Deactivate()
	}
	c.activeID = ""
}

func (c *Coordinator) applyVisibility() {
	for _, h := range c.reg.Handles() {
		h.SetVisible(c.settings.IsActive(h.ID()))
	}
}

func (c *Coordinator) onLayerSelected(ev events.Event) error {
	raw, err := payload[string](ev)
	if err != nil {
		return err
	}
	h, err := c.handle(raw)
	if err != nil {
		return err
	}
	if c.settings.ReadOnly {
		return ErrReadOnly
	}
	if !c.settings.IsActive(h.ID()) {
		return fmt.Errorf("%w: %s", ErrLayerInactive, h.ID())
	}
	if c.activeID == h.ID() && h.Selected() {
		return nil
	}

	c.deselect()
	if err := h.Activate(layers.ActivateContext{Canvas: c.canvas}); err != nil {
		return err
	}
	c.activeID = h.ID()
	c.log.Debug().Str("layer", h.ID()).Msg("layer selected")
	return nil
}

func (c *Coordinator) onLayerDeselected(ev events.Event) error {
	raw, err := payload[string](ev)
	if err != nil {
		return err
	}
	active := c.activeHandle()
	if active == nil {
		return nil
	}
	if id, ok := c.reg.Resolve(raw); raw != "" && (!ok || id != active.ID()) {
		return nil
	}
	c.deselect()
	c.log.Debug().Str("layer", active.ID()).Msg("layer deselected")
	return nil
}

func (c *Coordinator) onEscape(events.Event) error {
	active := c.activeHandle()
	if active == nil {
		return nil
	}
	// Handler failures are reported through the fault callback.
	_ = c.router.Publish(events.LayerDeselected, active.ID())
	return nil
}

func (c *Coordinator) onMapClicked(ev events.Event) error {
	click, err := payload[Click](ev)
	if err != nil {
		return err
	}
	h := c.activeHandle()
	if h == nil || h.Kind() != layers.KindPoint || c.settings.ReadOnly {
		return nil
	}
	if f, err := h.CommitPoint(click.Lat, click.Lng); f == nil {
		return err
	}
	return nil
}

func (c *Coordinator) onDrawCreated(ev events.Event) error {
	d, err := payload[Drawing](ev)
	if err != nil {
		return err
	}
	h := c.activeHandle()
	if h == nil || h.Kind() == layers.KindPoint || c.settings.ReadOnly {
		return nil
	}
	if f, err := h.CommitFeature(d.Coordinates); f == nil {
		return err
	}
	return nil
}

func (c *Coordinator) onLayerUpdated(events.Event) error {
	c.save()
	return nil
}

func (c *Coordinator) onZoomChanged(ev events.Event) error {
	zoom, err := payload[int](ev)
	if err != nil {
		return err
	}
	c.zoom = zoom
	if c.hasView {
		c.view.Zoom = zoom
	}
	return nil
}

func (c *Coordinator) onViewChanged(ev events.Event) error {
	v, err := payload[document.View](ev)
	if err != nil {
		return err
	}
	c.setView(v)
	c.settings = c.settings.WithView(v)
	c.save()
	return nil
}

// StartAt positions a session that has no view yet. Unlike MoveView it does
// not touch settings or save.
func (c *Coordinator) StartAt(v document.View) {
	if c.hasView {
		return
	}
	c.setView(v)
}

func (c *Coordinator) setView(v document.View) {
	c.view = v
	c.hasView = true
	c.zoom = v.Zoom
}

func (c *Coordinator) onLayerVisibility(visible bool) events.Handler {
	return func(ev events.Event) error {
		raw, err := payload[string](ev)
		if err != nil {
			return err
		}
		h, err := c.handle(raw)
		if err != nil {
			return err
		}
		if h.Visible() == visible {
			return nil
		}
		h.SetVisible(visible)
		c.publishSurfaces()
		return nil
	}
}

func (c *Coordinator) onFileLoaded(ev events.Event) error {
	l, err := payload[Loaded](ev)
	if err != nil {
		return err
	}

	p, err := document.Parse(l.Data, c.reg)
	if err != nil {
		c.metrics.ObserveDocumentLoad(l.Source, outcome(err))
		return err
	}

	c.deselect()
	c.reg.ClearAll()
	p.Apply(c.reg)
	c.settings = p.Settings
	if p.HasView {
		c.setView(p.View)
	}
	c.popup = nil
	c.metrics.ObserveDocumentLoad(l.Source, "ok")
	c.log.Info().
		Str("source", l.Source).
		Str("title", c.settings.Title).
		Int("features", p.FeatureCount()).
		Msg("document loaded")

	c.publishSurfaces()
	c.save()
	return nil
}

func (c *Coordinator) onSettingsSaved(ev events.Event) error {
	s, err := payload[document.Settings](ev)
	if err != nil {
		return err
	}

	s = s.Clone()
	if s.ActiveLayers == nil {
		s.ActiveLayers = c.reg.IDs()
	} else {
		s.ActiveLayers = document.NormalizeActiveLayers(s.ActiveLayers, c.reg)
	}
	if s.Title == "" {
		s.Title = c.settings.Title
	} else if s.Title, err = naming.NormalizeTitle(s.Title); err != nil {
		return err
	}
	if s.Version == "" {
		s.Version = document.SchemaVersion
	}
	if v, ok := s.View(); ok {
		c.setView(v)
	} else if c.hasView {
		s = s.WithView(c.view)
	}

	c.settings = s
	if active := c.activeHandle(); active != nil && (s.ReadOnly || !s.IsActive(active.ID())) {
		c.deselect()
	}
	c.applyVisibility()
	c.publishSurfaces()
	c.save()
	return nil
}

func (c *Coordinator) onNewMapCreated(ev events.Event) error {
	raw, err := payload[string](ev)
	if err != nil {
		return err
	}
	title, err := naming.NormalizeTitle(raw)
	if err != nil {
		return err
	}
	if title == c.settings.Title {
		return fmt.Errorf("%w: %s", ErrDuplicateTitle, title)
	}
	if c.lib != nil {
		ctx, cancel := context.WithTimeout(c.ctx, c.saveTimeout)
		exists, err := c.lib.HasMap(ctx, title)
		cancel()
		if err != nil {
			return document.StorageUnavailable(err)
		}
		if exists {
			return fmt.Errorf("%w: %s", ErrDuplicateTitle, title)
		}
	}

	c.deselect()
	c.reg.ClearAll()
	s := document.DefaultSettings(title, c.reg)
	if c.hasView {
		s = s.WithView(c.view)
	}
	c.settings = s
	c.popup = nil
	c.applyVisibility()
	c.log.Info().Str("title", title).Msg("new map created")

	c.publishSurfaces()
	c.save()
	return nil
}

func (c *Coordinator) onShowPopup(ev events.Event) error {
	p, err := payload[Popup](ev)
	if err != nil {
		return err
	}
	h, err := c.handle(p.Layer)
	if err != nil {
		return err
	}
	for _, f := range h.Features() {
		if f.ID == p.Feature {
			c.popup = &Popup{Layer: h.ID(), Feature: f.ID}
			return nil
		}
	}
	return fmt.Errorf("%w: %s/%s", layers.ErrFeatureNotFound, h.ID(), p.Feature)
}

func (c *Coordinator) onClosePopup(events.Event) error {
	c.popup = nil
	return nil
}

// save writes the session to the library. Failures are recorded, never
// returned, so a failed save cannot undo the edit that triggered it.
func (c *Coordinator) save() {
	if c.lib == nil {
		return
	}
	data, err := c.Document()
	if err != nil {
		c.Report(err)
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, c.saveTimeout)
	defer cancel()

	start := time.Now()
	err = c.lib.SaveMap(ctx, c.settings.Title, data)
	c.metrics.ObserveDocumentSave(err == nil, time.Since(start))
	if err != nil {
		c.log.Error().Err(err).Str("title", c.settings.Title).Msg("save map failed")
		c.Report(document.StorageUnavailable(err))
	}
}

func (c *Coordinator) publishSurfaces() {
	// Handler failures are reported through the fault callback.
	_ = c.router.Publish(events.SurfacesChanged, nil)
}

func (c *Coordinator) fault(topic events.Topic, err error) {
	c.log.Error().Err(err).Str("topic", string(topic)).Msg("event handler failed")
	c.metrics.IncHandlerFault(string(topic))
	c.record(string(topic), err)
}

func payload[T any](ev events.Event) (T, error) {
	v, ok := ev.Payload.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("session: %s: unexpected payload %T", ev.Topic, ev.Payload)
	}
	return v, nil
}

func outcome(err error) string {
	var de *document.Error
	if errors.As(err, &de) {
		return string(de.Kind)
	}
	return "error"
}
