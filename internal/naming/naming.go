package naming

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

const MaxTitleLength = 120

var (
	ErrEmptyTitle   = errors.New("map title is empty")
	ErrTitleTooLong = fmt.Errorf("map title is longer than %d characters", MaxTitleLength)
	ErrInvalidTitle = errors.New("map title contains control characters")
)

// NormalizeTitle trims a user-entered map title and collapses runs of
// whitespace to a single space.
func NormalizeTitle(raw string) (string, error) {
	fields := strings.Fields(raw)
	title := strings.Join(fields, " ")
	if title == "" {
		return "", ErrEmptyTitle
	}
	for _, r := range title {
		if unicode.IsControl(r) {
			return "", ErrInvalidTitle
		}
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return "", ErrTitleTooLong
	}
	return title, nil
}

// CopyTitle returns "<title>_copy_<n>" for the smallest n >= 1 that taken
// reports as free.
func CopyTitle(title string, taken func(string) bool) string {
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s_copy_%d", title, n)
		if !taken(candidate) {
			return candidate
		}
	}
}

// FileName turns a title into a download file name ending in ext.
// Characters that are awkward in file names become '-'.
func FileName(title, ext string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(title) {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '.' || r == ' ':
		case r > unicode.MaxASCII && unicode.IsLetter(r):
		default:
			r = '-'
		}
		b.WriteRune(r)
	}
	name := strings.Trim(b.String(), " .")
	if name == "" {
		name = "map"
	}
	return name + ext
}
