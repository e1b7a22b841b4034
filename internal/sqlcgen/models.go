package sqlcgen

import "time"

type MapDocument struct {
	Key       string
	Value     []byte
	UpdatedAt time.Time
}
