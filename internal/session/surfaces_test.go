package session

import (
	"testing"

	"streetsketch/core-go/internal/events"
	"streetsketch/core-go/internal/layers"
)

func TestToolbar_GroupsMutuallyExclusiveTools(t *testing.T) {
	c, _ := newTestCoordinator(t, nil)

	tb := c.Toolbar()
	if !tb.Visible {
		t.Fatalf("expected toolbar visible by default")
	}
	// filters, traffic-controls, then one group per ungrouped layer.
	if len(tb.Groups) != 8 {
		t.Fatalf("expected 8 toolbar groups, got %d", len(tb.Groups))
	}
	if tb.Groups[0].Name != layers.GroupFilters || len(tb.Groups[0].Buttons) != 2 {
		t.Fatalf("unexpected filters group %+v", tb.Groups[0])
	}
	if tb.Groups[1].Name != layers.GroupTrafficControls || len(tb.Groups[1].Buttons) != 3 {
		t.Fatalf("unexpected traffic controls group %+v", tb.Groups[1])
	}
	if tb.Groups[2].Name != "" || tb.Groups[2].Buttons[0].Layer != layers.MobilityLanes {
		t.Fatalf("unexpected first ungrouped tool %+v", tb.Groups[2])
	}

	_ = c.ClickToolbar(layers.BusGates)
	if !c.Toolbar().Groups[0].Buttons[1].Selected {
		t.Fatalf("expected BusGates button selected")
	}
}

func TestToolbar_HiddenBySettings(t *testing.T) {
	c, _ := newTestCoordinator(t, nil)
	s := c.Settings()
	s.HideToolbar = true
	_ = c.SaveSettings(s)

	if c.Toolbar().Visible {
		t.Fatalf("expected toolbar hidden")
	}
}

func TestLegendAndOverlays_FollowActiveLayers(t *testing.T) {
	c, _ := newTestCoordinator(t, nil)
	s := c.Settings()
	s.ActiveLayers = []string{layers.LtnCells, layers.BusGates}
	_ = c.SaveSettings(s)

	legend := c.Legend()
	if len(legend) != 2 || legend[0].Layer != layers.LtnCells || legend[1].Layer != layers.BusGates {
		t.Fatalf("expected legend in activeLayers order, got %+v", legend)
	}

	if err := c.ToggleLegend(layers.BusGates); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if c.Legend()[1].Visible {
		t.Fatalf("expected BusGates hidden after legend toggle")
	}
	if err := c.ToggleLegend(layers.BusGates); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if !c.Legend()[1].Visible {
		t.Fatalf("expected BusGates shown after second toggle")
	}

	_ = c.SetZoom(13)
	if c.Overlays()[0].LabelsVisible {
		t.Fatalf("expected LTN labels hidden below zoom 14")
	}
	_ = c.SetZoom(14)
	if !c.Overlays()[0].LabelsVisible {
		t.Fatalf("expected LTN labels shown at zoom 14")
	}
	if c.Overlays()[1].LabelsVisible {
		t.Fatalf("expected unlabelled layer to report no labels")
	}
}

func TestPanels_AtMostOneOpen(t *testing.T) {
	c, _ := newTestCoordinator(t, nil)

	_ = c.OpenPanel(PanelSettings)
	if c.Panel() != PanelSettings {
		t.Fatalf("expected settings panel, got %q", c.Panel())
	}
	_ = c.OpenPanel(PanelHelp)
	if c.Panel() != PanelHelp {
		t.Fatalf("expected help to replace settings, got %q", c.Panel())
	}
	_ = c.OpenPanel(PanelHelp)
	if c.Panel() != PanelNone {
		t.Fatalf("expected reopening help to close it, got %q", c.Panel())
	}

	_ = c.OpenPanel(PanelSharing)
	_ = c.Router().Publish(events.HideHelp, nil)
	if c.Panel() != PanelSharing {
		t.Fatalf("expected hide-help to leave sharing open")
	}
	_ = c.OpenPanel(PanelNone)
	if c.Panel() != PanelNone {
		t.Fatalf("expected hide-modal-windows to close everything")
	}
}

func TestSnapshot(t *testing.T) {
	c, _ := newTestCoordinator(t, nil)
	_ = c.ClickToolbar(layers.ModalFilters)
	_ = c.Click(52.5, -1.9)

	st := c.Snapshot()
	if st.Mode != "editing" || st.ActiveLayer != layers.ModalFilters {
		t.Fatalf("unexpected mode %q/%q", st.Mode, st.ActiveLayer)
	}
	if len(st.Layers) != len(layers.Variants()) {
		t.Fatalf("expected every layer in snapshot, got %d", len(st.Layers))
	}
	if len(st.Layers[0].Features.Features) != 1 {
		t.Fatalf("expected modal filter feature in snapshot")
	}
	if st.Errors == nil || st.View != nil {
		t.Fatalf("expected empty error list and no view")
	}
}
