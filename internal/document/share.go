package document

import (
	"fmt"
	"html"
	"net/url"
	"strings"

	lzstring "github.com/daku10/go-lz-string"
)

// EncodeShareLink compresses a document into a URL fragment compatible with
// lz-string's compressToEncodedURIComponent.
func EncodeShareLink(doc []byte) (string, error) {
	out, err := lzstring.CompressToEncodedURIComponent(string(doc))
	if err != nil {
		return "", fmt.Errorf("document: compress share link: %w", err)
	}
	return out, nil
}

// DecodeShareLink reverses either fragment encoding: the legacy raw
// percent-encoded JSON (always starting with '%') or the compressed form.
func DecodeShareLink(fragment string) ([]byte, error) {
	fragment = strings.TrimPrefix(strings.TrimSpace(fragment), "#")
	if fragment == "" {
		return nil, invalid(nil, "share link is empty")
	}

	if strings.HasPrefix(fragment, "%") {
		s, err := url.PathUnescape(fragment)
		if err != nil {
			return nil, invalid([]byte(fragment), "share link: %w", err)
		}
		return []byte(s), nil
	}

	s, err := lzstring.DecompressFromEncodedURIComponent(fragment)
	if err != nil {
		return nil, invalid([]byte(fragment), "share link: %w", err)
	}
	if s == "" {
		return nil, invalid([]byte(fragment), "share link does not decompress")
	}
	return []byte(s), nil
}

// EmbedHTML builds the iframe snippet the sharing panel copies.
func EmbedHTML(origin, fragment string, width, height int, hideToolbar bool, title string) string {
	src := fmt.Sprintf("%s?hide-toolbar=%t#%s", strings.TrimRight(origin, "/"), hideToolbar, fragment)
	return fmt.Sprintf(`<iframe src="%s" width="%d" height="%d" title="%s"></iframe>`,
		html.EscapeString(src), width, height, html.EscapeString(title))
}
