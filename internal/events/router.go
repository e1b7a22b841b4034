// Package events provides the publish/subscribe router a session uses to
// coordinate layers, persistence and UI collaborators.
package events

import (
	"errors"
	"fmt"
	"sync"
)

type Topic string

const (
	MapClicked       Topic = "map-clicked"
	DrawCreated      Topic = "draw-created"
	EscapePressed    Topic = "escape-pressed"
	ZoomChanged      Topic = "zoom-changed"
	ViewChanged      Topic = "view-changed"
	LayerSelected    Topic = "layer-selected"
	LayerDeselected  Topic = "layer-deselected"
	LayerUpdated     Topic = "layer-updated"
	ShowLayer        Topic = "show-layer"
	HideLayer        Topic = "hide-layer"
	FileLoaded       Topic = "file-loaded"
	SettingsSaved    Topic = "settings-saved"
	NewMapCreated    Topic = "new-map-created"
	SurfacesChanged  Topic = "surfaces-changed"
	ShowPopup        Topic = "show-popup"
	ClosePopup       Topic = "close-popup"
	ShowHelp         Topic = "show-help"
	HideHelp         Topic = "hide-help"
	ShowSettings     Topic = "show-settings"
	ShowMapManager   Topic = "show-map-manager"
	ShowSharingPopup Topic = "show-sharing-popup"
	HideModalWindows Topic = "hide-modal-windows"
)

// Event is delivered to every handler subscribed to its topic.
type Event struct {
	Topic   Topic
	Payload any
}

type Handler func(Event) error

// FaultFunc receives handler failures (returned errors and recovered panics).
type FaultFunc func(topic Topic, err error)

type subscription struct {
	id uint64
	fn Handler
}

// Router delivers events synchronously: Publish returns only after every
// handler ran. A handler that publishes recurses into the other handlers
// before its own Publish call returns.
type Router struct {
	mu     sync.RWMutex
	subs   map[Topic][]subscription
	nextID uint64
	fault  FaultFunc
}

func NewRouter() *Router {
	return &Router{subs: make(map[Topic][]subscription)}
}

// OnFault installs the callback that observes handler failures.
func (r *Router) OnFault(fn FaultFunc) {
	r.mu.Lock()
	r.fault = fn
	r.mu.Unlock()
}

// Subscribe registers fn for topic and returns a function that removes it.
func (r *Router) Subscribe(topic Topic, fn Handler) (unsubscribe func()) {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.subs[topic] = append(r.subs[topic], subscription{id: id, fn: fn})
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		subs := r.subs[topic]
		filtered := subs[:0]
		for _, s := range subs {
			if s.id != id {
				filtered = append(filtered, s)
			}
		}
		if len(filtered) == 0 {
			delete(r.subs, topic)
		} else {
			r.subs[topic] = filtered
		}
	}
}

// Publish runs every handler for the topic in subscription order. Handler
// errors and panics never escape a single handler: they are reported to the
// fault callback and joined into the returned error.
func (r *Router) Publish(topic Topic, payload any) error {
	r.mu.RLock()
	subs := append([]subscription(nil), r.subs[topic]...)
	fault := r.fault
	r.mu.RUnlock()

	ev := Event{Topic: topic, Payload: payload}
	var errs []error
	for _, s := range subs {
		if err := invoke(s.fn, ev); err != nil {
			if fault != nil {
				fault(topic, err)
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Subscribers reports how many handlers are registered for topic.
func (r *Router) Subscribers(topic Topic) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs[topic])
}

func invoke(fn Handler, ev Event) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("events: handler for %q panicked: %v", ev.Topic, rec)
		}
	}()
	return fn(ev)
}
