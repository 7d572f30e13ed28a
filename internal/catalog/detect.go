package catalog

import (
	"net/url"
	"path"
	"strings"
)

// Format identifies the dialect of a provider response.
type Format int

const (
	FormatUnrecognizedObject Format = iota
	FormatNestedCategories
	FormatFlatArray
	FormatPlaylistText
)

func (f Format) String() string {
	switch f {
	case FormatNestedCategories:
		return "nested_categories"
	case FormatFlatArray:
		return "flat_array"
	case FormatPlaylistText:
		return "playlist_text"
	default:
		return "unrecognized_object"
	}
}

// Payload is a classified response body. For FormatPlaylistText only Text is
// set; for the JSON formats Object or Array holds the decoded value.
type Payload struct {
	Format Format
	Object Record
	Array  []any
	Text   string
}

// Detect classifies body. endpointURL decides whether the body is M3U text;
// otherwise the body must be JSON. A JSON syntax failure returns a
// *ParseError so the caller can move on to the next endpoint.
func Detect(body []byte, endpointURL string) (*Payload, error) {
	if IsM3UEndpoint(endpointURL) {
		return &Payload{Format: FormatPlaylistText, Text: string(body)}, nil
	}
	v, err := decodeJSON(body)
	if err != nil {
		return nil, &ParseError{URL: endpointURL, Err: err}
	}
	switch x := v.(type) {
	case map[string]any:
		obj := Record(x)
		if _, ok := obj.Object("categories"); ok {
			return &Payload{Format: FormatNestedCategories, Object: obj}, nil
		}
		return &Payload{Format: FormatUnrecognizedObject, Object: obj}, nil
	case []any:
		return &Payload{Format: FormatFlatArray, Array: x}, nil
	default:
		// Scalars and null carry nothing extractable.
		return &Payload{Format: FormatUnrecognizedObject, Object: Record{}}, nil
	}
}

// IsM3UEndpoint reports whether rawURL addresses an M3U playlist, either by
// a type=m3u* query parameter or by path convention.
func IsM3UEndpoint(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if t := strings.ToLower(u.Query().Get("type")); strings.HasPrefix(t, "m3u") {
		return true
	}
	p := strings.ToLower(u.Path)
	switch {
	case strings.HasSuffix(p, ".m3u"), strings.HasSuffix(p, ".m3u8"):
		return true
	case path.Base(p) == "get.php":
		return true
	}
	return false
}
