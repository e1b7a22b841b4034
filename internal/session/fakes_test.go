package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"streetsketch/core-go/internal/layers"
	"streetsketch/core-go/internal/naming"
)

var errNotFound = errors.New("map not found")

type fakeGesture struct {
	layer     string
	cancelled bool
}

func (g *fakeGesture) Cancel() { g.cancelled = true }

type fakeCanvas struct {
	gestures []*fakeGesture
	err      error
}

func (c *fakeCanvas) BeginDrawing(v layers.Variant) (layers.Gesture, error) {
	if c.err != nil {
		return nil, c.err
	}
	g := &fakeGesture{layer: v.ID}
	c.gestures = append(c.gestures, g)
	return g, nil
}

type memLibrary struct {
	mu      sync.Mutex
	maps    map[string][]byte
	last    string
	saves   int
	saveErr error
	loadErr error
}

func newMemLibrary() *memLibrary {
	return &memLibrary{maps: map[string][]byte{}}
}

func (l *memLibrary) SaveMap(_ context.Context, title string, doc []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.saveErr != nil {
		return l.saveErr
	}
	if title == "" {
		return naming.ErrEmptyTitle
	}
	l.saves++
	l.maps[title] = append([]byte(nil), doc...)
	l.last = title
	return nil
}

func (l *memLibrary) LoadMap(_ context.Context, title string) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.loadErr != nil {
		return nil, l.loadErr
	}
	doc, ok := l.maps[title]
	if !ok {
		return nil, errNotFound
	}
	return doc, nil
}

func (l *memLibrary) HasMap(_ context.Context, title string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.maps[title]
	return ok, nil
}

func (l *memLibrary) LastSelected(context.Context) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last, nil
}

type fakeFetcher struct {
	data    []byte
	err     error
	started chan struct{}
	release chan struct{}
}

func (f *fakeFetcher) Fetch(ctx context.Context, _ string) ([]byte, error) {
	if f.started != nil {
		close(f.started)
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.data, f.err
}

func fixedNow() time.Time {
	return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
}
