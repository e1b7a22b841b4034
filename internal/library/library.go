// Package library stores saved maps by title together with the recently
// saved list and the last selected map.
package library

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"

	"streetsketch/core-go/internal/naming"
)

const (
	mapKeyPrefix    = "Map_"
	mapListKey      = "MapList"
	lastSelectedKey = "LastMapSelected"
)

var ErrMapNotFound = errors.New("map not found")

func mapKey(title string) string { return mapKeyPrefix + title }

// Library is safe for concurrent use. Every stored value is zstd
// compressed.
type Library struct {
	log   zerolog.Logger
	store Store
	enc   *zstd.Encoder
	dec   *zstd.Decoder

	// mu serializes read-modify-write of the map list and the choice of
	// copy titles.
	mu sync.Mutex
}

func New(log zerolog.Logger, store Store) (*Library, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("library: zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("library: zstd decoder: %w", err)
	}
	return &Library{log: log, store: store, enc: enc, dec: dec}, nil
}

func (l *Library) Close() {
	_ = l.enc.Close()
	l.dec.Close()
}

func (l *Library) get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, ok, err := l.store.Get(ctx, key)
	if err != nil || !ok {
		return nil, ok, err
	}
	out, err := l.dec.DecodeAll(raw, nil)
	if err != nil {
		return nil, false, fmt.Errorf("library: decompress %s: %w", key, err)
	}
	return out, true, nil
}

func (l *Library) set(ctx context.Context, key string, value []byte) error {
	return l.store.Set(ctx, key, l.enc.EncodeAll(value, nil))
}

// SaveMap stores doc under title, moves title to the front of the map list
// and marks it as the last selected map.
func (l *Library) SaveMap(ctx context.Context, title string, doc []byte) error {
	if title == "" {
		return naming.ErrEmptyTitle
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.saveLocked(ctx, title, doc)
}

func (l *Library) saveLocked(ctx context.Context, title string, doc []byte) error {
	if err := l.set(ctx, mapKey(title), doc); err != nil {
		return err
	}
	list, err := l.mapsLocked(ctx)
	if err != nil {
		return err
	}
	next := make([]string, 0, len(list)+1)
	next = append(next, title)
	for _, t := range list {
		if t != title {
			next = append(next, t)
		}
	}
	if err := l.writeListLocked(ctx, next); err != nil {
		return err
	}
	return l.SetLastSelected(ctx, title)
}

func (l *Library) LoadMap(ctx context.Context, title string) ([]byte, error) {
	doc, ok, err := l.get(ctx, mapKey(title))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMapNotFound, title)
	}
	return doc, nil
}

func (l *Library) HasMap(ctx context.Context, title string) (bool, error) {
	_, ok, err := l.store.Get(ctx, mapKey(title))
	return ok, err
}

// DeleteMap removes the document and its map list entry.
func (l *Library) DeleteMap(ctx context.Context, title string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	ok, err := l.HasMap(ctx, title)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrMapNotFound, title)
	}
	if err := l.store.Remove(ctx, mapKey(title)); err != nil {
		return err
	}
	list, err := l.mapsLocked(ctx)
	if err != nil {
		return err
	}
	next := list[:0]
	for _, t := range list {
		if t != title {
			next = append(next, t)
		}
	}
	return l.writeListLocked(ctx, next)
}

// CopyMap saves a copy of title as "<title>_copy_<n>" and returns the new
// title. The copy's document carries its new title.
func (l *Library) CopyMap(ctx context.Context, title string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	doc, err := l.LoadMap(ctx, title)
	if err != nil {
		return "", err
	}

	var lookupErr error
	newTitle := naming.CopyTitle(title, func(candidate string) bool {
		ok, err := l.HasMap(ctx, candidate)
		if err != nil {
			lookupErr = err
			return false
		}
		return ok
	})
	if lookupErr != nil {
		return "", lookupErr
	}

	doc, err = retitle(doc, newTitle)
	if err != nil {
		return "", fmt.Errorf("library: copy %s: %w", title, err)
	}
	if err := l.saveLocked(ctx, newTitle, doc); err != nil {
		return "", err
	}
	l.log.Info().Str("from", title).Str("to", newTitle).Msg("map copied")
	return newTitle, nil
}

// Maps lists saved titles, most recently saved first.
func (l *Library) Maps(ctx context.Context) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mapsLocked(ctx)
}

func (l *Library) mapsLocked(ctx context.Context) ([]string, error) {
	raw, ok, err := l.get(ctx, mapListKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		// No index yet: rebuild it from the stored documents.
		keys, err := l.store.Keys(ctx, mapKeyPrefix)
		if err != nil {
			return nil, err
		}
		list := make([]string, 0, len(keys))
		for _, k := range keys {
			list = append(list, strings.TrimPrefix(k, mapKeyPrefix))
		}
		return list, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		l.log.Warn().Err(err).Msg("map list unreadable, starting a new one")
		return []string{}, nil
	}
	return list, nil
}

func (l *Library) writeListLocked(ctx context.Context, list []string) error {
	raw, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return l.set(ctx, mapListKey, raw)
}

func (l *Library) LastSelected(ctx context.Context) (string, error) {
	raw, _, err := l.get(ctx, lastSelectedKey)
	return string(raw), err
}

func (l *Library) SetLastSelected(ctx context.Context, title string) error {
	return l.set(ctx, lastSelectedKey, []byte(title))
}

// retitle rewrites the title inside a stored document, in settings when
// present and at the top level for legacy documents.
func retitle(doc []byte, title string) ([]byte, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(doc, &top); err != nil {
		return nil, err
	}
	encTitle, err := json.Marshal(title)
	if err != nil {
		return nil, err
	}

	if raw, ok := top["settings"]; ok && string(raw) != "null" {
		var settings map[string]json.RawMessage
		if err := json.Unmarshal(raw, &settings); err != nil {
			return nil, err
		}
		settings["title"] = encTitle
		if top["settings"], err = json.Marshal(settings); err != nil {
			return nil, err
		}
	} else {
		top["title"] = encTitle
	}
	return json.Marshal(top)
}
