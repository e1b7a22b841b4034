package layers

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/paulmach/orb"
)

// ErrGeometryMalformed is returned when coordinates cannot be read as the
// geometry a layer draws.
var ErrGeometryMalformed = errors.New("geometry malformed")

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrGeometryMalformed, fmt.Sprintf(format, args...))
}

// acceptedTypes lists the GeoJSON geometry types each kind reads. The Multi*
// forms cover documents saved while coordinates were wrapped in an extra
// array.
var acceptedTypes = map[Kind]map[string]struct{}{
	KindPoint:   {"Point": {}, "MultiPoint": {}},
	KindLine:    {"LineString": {}, "MultiLineString": {}},
	KindPolygon: {"Polygon": {}, "MultiPolygon": {}},
}

// ParseGeometry reads raw GeoJSON coordinates (lng, lat order) as the
// geometry for kind. geomType may be empty for coordinates delivered by a
// draw gesture.
func ParseGeometry(kind Kind, geomType string, raw json.RawMessage) (orb.Geometry, error) {
	if geomType != "" {
		if _, ok := acceptedTypes[kind][geomType]; !ok {
			return nil, malformed("%s layer cannot hold %s geometry", kind, geomType)
		}
	}
	if len(raw) == 0 {
		return nil, malformed("coordinates missing")
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, malformed("coordinates: %v", err)
	}

	v, err := normalizeNesting(kind, v)
	if err != nil {
		return nil, err
	}

	switch kind {
	case KindPoint:
		return position(v)
	case KindLine:
		return lineString(v)
	case KindPolygon:
		return polygon(v)
	default:
		return nil, malformed("unknown layer kind %d", kind)
	}
}

func wantDepth(kind Kind) int {
	switch kind {
	case KindPoint:
		return 1
	case KindLine:
		return 2
	default:
		return 3
	}
}

// normalizeNesting removes one level of wrapping when the outer array holds
// exactly one element of the expected shape. A polygon delivered as a bare
// ring is wrapped into a single-ring polygon.
func normalizeNesting(kind Kind, v any) (any, error) {
	want := wantDepth(kind)
	d := depth(v)
	if d < 0 {
		return nil, malformed("coordinates contain non-numeric values")
	}

	if d == want+1 {
		outer := v.([]any)
		if len(outer) != 1 {
			return nil, malformed("expected %s coordinates, got %d nested geometries", kind, len(outer))
		}
		return outer[0], nil
	}
	if kind == KindPolygon && d == 2 {
		return []any{v}, nil
	}
	if d != want {
		return nil, malformed("expected %s coordinates nested %d deep, got %d", kind, want, d)
	}
	return v, nil
}

// depth follows the first element of each array. Numbers are depth 0, an
// empty array is depth 1, anything else is -1.
func depth(v any) int {
	switch t := v.(type) {
	case float64:
		return 0
	case []any:
		if len(t) == 0 {
			return 1
		}
		d := depth(t[0])
		if d < 0 {
			return -1
		}
		return d + 1
	default:
		return -1
	}
}

func position(v any) (orb.Point, error) {
	arr, ok := v.([]any)
	if !ok {
		return orb.Point{}, malformed("position is not an array")
	}
	if len(arr) != 2 && len(arr) != 3 {
		return orb.Point{}, malformed("position has %d values, want 2 or 3", len(arr))
	}
	lng, ok1 := arr[0].(float64)
	lat, ok2 := arr[1].(float64)
	if !ok1 || !ok2 {
		return orb.Point{}, malformed("position values must be numbers")
	}
	return orb.Point{lng, lat}, nil
}

func positions(v any) ([]orb.Point, error) {
	arr, ok := v.([]any)
	if !ok || len(arr) == 0 {
		return nil, malformed("expected a non-empty list of positions")
	}
	out := make([]orb.Point, 0, len(arr))
	for i, p := range arr {
		pt, err := position(p)
		if err != nil {
			return nil, fmt.Errorf("position %d: %w", i, err)
		}
		out = append(out, pt)
	}
	return out, nil
}

func lineString(v any) (orb.LineString, error) {
	pts, err := positions(v)
	if err != nil {
		return nil, err
	}
	return orb.LineString(pts), nil
}

func polygon(v any) (orb.Polygon, error) {
	rings, ok := v.([]any)
	if !ok || len(rings) == 0 {
		return nil, malformed("polygon has no rings")
	}
	out := make(orb.Polygon, 0, len(rings))
	for i, r := range rings {
		pts, err := positions(r)
		if err != nil {
			return nil, fmt.Errorf("ring %d: %w", i, err)
		}
		out = append(out, orb.Ring(pts))
	}
	return out, nil
}
