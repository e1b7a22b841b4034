package events

import (
	"errors"
	"strings"
	"testing"
)

func TestPublish_DeliversInSubscriptionOrder(t *testing.T) {
	r := NewRouter()
	var got []string
	r.Subscribe(LayerUpdated, func(ev Event) error {
		got = append(got, "a:"+ev.Payload.(string))
		return nil
	})
	r.Subscribe(LayerUpdated, func(ev Event) error {
		got = append(got, "b:"+ev.Payload.(string))
		return nil
	})
	r.Subscribe(LayerSelected, func(ev Event) error {
		t.Fatalf("unexpected delivery to %q", ev.Topic)
		return nil
	})

	if err := r.Publish(LayerUpdated, "TramLines"); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if strings.Join(got, ",") != "a:TramLines,b:TramLines" {
		t.Fatalf("unexpected delivery order %v", got)
	}
}

func TestPublish_NestedPublishRunsSynchronously(t *testing.T) {
	r := NewRouter()
	var trace []string
	r.Subscribe(LayerSelected, func(ev Event) error {
		trace = append(trace, "selected")
		_ = r.Publish(SurfacesChanged, nil)
		trace = append(trace, "selected-done")
		return nil
	})
	r.Subscribe(SurfacesChanged, func(ev Event) error {
		trace = append(trace, "surfaces")
		return nil
	})

	_ = r.Publish(LayerSelected, "LtnCells")
	if strings.Join(trace, ",") != "selected,surfaces,selected-done" {
		t.Fatalf("expected nested publish to complete before returning, got %v", trace)
	}
}

func TestPublish_PanicIsReportedNotPropagated(t *testing.T) {
	r := NewRouter()
	var faults []Topic
	r.OnFault(func(topic Topic, err error) { faults = append(faults, topic) })

	ran := false
	r.Subscribe(MapClicked, func(ev Event) error { panic("boom") })
	r.Subscribe(MapClicked, func(ev Event) error {
		ran = true
		return nil
	})

	err := r.Publish(MapClicked, nil)
	if err == nil || !strings.Contains(err.Error(), "panicked") {
		t.Fatalf("expected panic to surface as error, got %v", err)
	}
	if !ran {
		t.Fatalf("expected later handlers to still run")
	}
	if len(faults) != 1 || faults[0] != MapClicked {
		t.Fatalf("expected one fault for map-clicked, got %v", faults)
	}
}

func TestPublish_JoinsHandlerErrors(t *testing.T) {
	r := NewRouter()
	errA := errors.New("a")
	errB := errors.New("b")
	r.Subscribe(FileLoaded, func(Event) error { return errA })
	r.Subscribe(FileLoaded, func(Event) error { return errB })

	err := r.Publish(FileLoaded, nil)
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Fatalf("expected both errors joined, got %v", err)
	}
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	r := NewRouter()
	calls := 0
	off := r.Subscribe(EscapePressed, func(Event) error {
		calls++
		return nil
	})
	_ = r.Publish(EscapePressed, nil)
	off()
	_ = r.Publish(EscapePressed, nil)

	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
	if n := r.Subscribers(EscapePressed); n != 0 {
		t.Fatalf("expected no subscribers left, got %d", n)
	}
}

func TestRouters_AreIsolated(t *testing.T) {
	a, b := NewRouter(), NewRouter()
	hit := false
	b.Subscribe(ZoomChanged, func(Event) error {
		hit = true
		return nil
	})
	_ = a.Publish(ZoomChanged, 15)
	if hit {
		t.Fatalf("expected routers not to share subscriptions")
	}
}
