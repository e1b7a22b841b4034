package layers

import "testing"

func TestDefaultRegistry_OrderAndAliases(t *testing.T) {
	r := DefaultRegistry(nil)
	ids := r.IDs()
	if len(ids) != 11 {
		t.Fatalf("expected 11 layers, got %d", len(ids))
	}
	if ids[0] != ModalFilters || ids[len(ids)-1] != LtnCells {
		t.Fatalf("unexpected order %v", ids)
	}

	for alias, want := range map[string]string{"Modals": ModalFilters, "CycleLanes": MobilityLanes, TramLines: TramLines} {
		got, ok := r.Resolve(alias)
		if !ok || got != want {
			t.Fatalf("Resolve(%q) = %q,%v want %q", alias, got, ok, want)
		}
	}
	if _, ok := r.Resolve("Bananas"); ok {
		t.Fatalf("expected unknown id not to resolve")
	}
}

func TestNewRegistry_DuplicateKeepsFirst(t *testing.T) {
	r := NewRegistry(nil, Variant{ID: "A", Title: "first"}, Variant{ID: "A", Title: "second"})
	h, _ := r.Get("A")
	if len(r.IDs()) != 1 || h.Title() != "first" {
		t.Fatalf("expected first variant to win")
	}
}

func TestRegistry_ClearAll(t *testing.T) {
	r := DefaultRegistry(nil)
	h, _ := r.Get(BusGates)
	_ = h.Activate(ActivateContext{})
	_, _ = h.CommitPoint(1, 2)

	if len(r.Selected()) != 1 || r.FeatureCount() != 1 {
		t.Fatalf("expected one selected handle and one feature")
	}
	r.ClearAll()
	if len(r.Selected()) != 0 || r.FeatureCount() != 0 {
		t.Fatalf("expected registry to be cleared")
	}
}
