package session

import (
	"github.com/paulmach/orb/geojson"

	"streetsketch/core-go/internal/document"
	"streetsketch/core-go/internal/events"
	"streetsketch/core-go/internal/layers"
)

// Panel is the modal window currently open. At most one is open.
type Panel string

const (
	PanelNone       Panel = ""
	PanelSettings   Panel = "settings"
	PanelMapManager Panel = "map-manager"
	PanelSharing    Panel = "sharing"
	PanelHelp       Panel = "help"
)

// OpenPanel shows a modal panel. Opening the panel that is already open
// closes it.
func (c *Coordinator) OpenPanel(p Panel) error {
	switch p {
	case PanelSettings:
		return c.router.Publish(events.ShowSettings, nil)
	case PanelMapManager:
		return c.router.Publish(events.ShowMapManager, nil)
	case PanelSharing:
		return c.router.Publish(events.ShowSharingPopup, nil)
	case PanelHelp:
		return c.router.Publish(events.ShowHelp, nil)
	default:
		return c.router.Publish(events.HideModalWindows, nil)
	}
}

func (c *Coordinator) onShowPanel(p Panel) events.Handler {
	return func(events.Event) error {
		if c.panel == p {
			c.panel = PanelNone
			return nil
		}
		c.panel = p
		return nil
	}
}

func (c *Coordinator) onHideHelp(events.Event) error {
	if c.panel == PanelHelp {
		c.panel = PanelNone
	}
	return nil
}

func (c *Coordinator) onHideModalWindows(events.Event) error {
	c.panel = PanelNone
	return nil
}

type ToolbarButton struct {
	Layer    string `json:"layer"`
	Title    string `json:"title"`
	Tooltip  string `json:"tooltip"`
	Kind     string `json:"kind"`
	Selected bool   `json:"selected"`
}

// ToolbarGroup is either a single ungrouped button or a dropdown of
// mutually exclusive tools sharing a group name.
type ToolbarGroup struct {
	Name    string          `json:"name,omitempty"`
	Buttons []ToolbarButton `json:"buttons"`
}

type Toolbar struct {
	Visible bool           `json:"visible"`
	Groups  []ToolbarGroup `json:"groups"`
}

type LegendEntry struct {
	Layer    string `json:"layer"`
	Title    string `json:"title"`
	Color    string `json:"color"`
	Kind     string `json:"kind"`
	Visible  bool   `json:"visible"`
	Features int    `json:"features"`
}

type OverlayEntry struct {
	Layer         string `json:"layer"`
	Title         string `json:"title"`
	Visible       bool   `json:"visible"`
	LabelsVisible bool   `json:"labelsVisible"`
}

// activeHandles lists the handles named in ActiveLayers, in that order.
func (c *Coordinator) activeHandles() []*layers.Handle {
	out := make([]*layers.Handle, 0, len(c.settings.ActiveLayers))
	for _, id := range c.settings.ActiveLayers {
		if h, ok := c.reg.Get(id); ok {
			out = append(out, h)
		}
	}
	return out
}

// Toolbar projects the drawing tools for the active layers. It is hidden on
// read-only maps and when the settings ask for it.
func (c *Coordinator) Toolbar() Toolbar {
	tb := Toolbar{
		Visible: !c.settings.ReadOnly && !c.settings.HideToolbar,
		Groups:  []ToolbarGroup{},
	}
	groupAt := map[string]int{}
	for _, h := range c.activeHandles() {
		v := h.Variant()
		btn := ToolbarButton{
			Layer:    v.ID,
			Title:    v.Title,
			Tooltip:  v.Tooltip,
			Kind:     v.Kind.String(),
			Selected: h.Selected(),
		}
		if v.Group == "" {
			tb.Groups = append(tb.Groups, ToolbarGroup{Buttons: []ToolbarButton{btn}})
			continue
		}
		if i, ok := groupAt[v.Group]; ok {
			tb.Groups[i].Buttons = append(tb.Groups[i].Buttons, btn)
			continue
		}
		groupAt[v.Group] = len(tb.Groups)
		tb.Groups = append(tb.Groups, ToolbarGroup{Name: v.Group, Buttons: []ToolbarButton{btn}})
	}
	return tb
}

func (c *Coordinator) Legend() []LegendEntry {
	out := []LegendEntry{}
	for _, h := range c.activeHandles() {
		v := h.Variant()
		out = append(out, LegendEntry{
			Layer:    v.ID,
			Title:    v.Title,
			Color:    v.Color,
			Kind:     v.Kind.String(),
			Visible:  h.Visible(),
			Features: h.Len(),
		})
	}
	return out
}

func (c *Coordinator) Overlays() []OverlayEntry {
	out := []OverlayEntry{}
	for _, h := range c.activeHandles() {
		out = append(out, OverlayEntry{
			Layer:         h.ID(),
			Title:         h.Title(),
			Visible:       h.Visible(),
			LabelsVisible: h.Visible() && h.LabelsVisible(c.zoom),
		})
	}
	return out
}

type LayerState struct {
	ID       string                     `json:"id"`
	Title    string                     `json:"title"`
	Kind     string                     `json:"kind"`
	Group    string                     `json:"group,omitempty"`
	Selected bool                       `json:"selected"`
	Visible  bool                       `json:"visible"`
	Drawing  bool                       `json:"drawing"`
	Features *geojson.FeatureCollection `json:"features"`
}

// State is a read-only snapshot of everything the UI renders.
type State struct {
	Settings    document.Settings `json:"settings"`
	Mode        string            `json:"mode"`
	ActiveLayer string            `json:"activeLayer,omitempty"`
	View        *document.View    `json:"view,omitempty"`
	Zoom        int               `json:"zoom"`
	Panel       Panel             `json:"panel,omitempty"`
	Popup       *Popup            `json:"popup,omitempty"`
	Toolbar     Toolbar           `json:"toolbar"`
	Legend      []LegendEntry     `json:"legend"`
	Overlays    []OverlayEntry    `json:"overlays"`
	Layers      []LayerState      `json:"layers"`
	Errors      []Problem         `json:"errors"`
}

func (c *Coordinator) Snapshot() State {
	st := State{
		Settings:    c.Settings(),
		Mode:        "idle",
		ActiveLayer: c.ActiveLayer(),
		Zoom:        c.zoom,
		Panel:       c.panel,
		Toolbar:     c.Toolbar(),
		Legend:      c.Legend(),
		Overlays:    c.Overlays(),
		Errors:      c.Problems(),
	}
	if st.ActiveLayer != "" {
		st.Mode = "editing"
	}
	if c.hasView {
		v := c.view
		st.View = &v
	}
	if c.popup != nil {
		p := *c.popup
		st.Popup = &p
	}
	if st.Errors == nil {
		st.Errors = []Problem{}
	}
	for _, h := range c.reg.Handles() {
		st.Layers = append(st.Layers, LayerState{
			ID:       h.ID(),
			Title:    h.Title(),
			Kind:     h.Kind().String(),
			Group:    h.Group(),
			Selected: h.Selected(),
			Visible:  h.Visible(),
			Drawing:  h.Drawing(),
			Features: h.ToDocument(),
		})
	}
	return st
}
