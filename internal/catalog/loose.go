package catalog

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Record is an untyped provider object. Numbers are held as json.Number so
// integer ids survive decoding without float rounding.
type Record map[string]any

// decodeJSON decodes body into a generic value with json.Number numbers.
func decodeJSON(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// Has reports whether key is present and not null.
func (r Record) Has(key string) bool {
	v, ok := r[key]
	return ok && v != nil
}

// String returns the value at key as a string. The coercion order is
// string, then integer, then float. Booleans, arrays, objects and null are
// not coerced.
func (r Record) String(key string) (string, bool) {
	return looseString(r[key])
}

// NonEmptyString is String with blank strings treated as absent.
func (r Record) NonEmptyString(key string) (string, bool) {
	s, ok := r.String(key)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

// Int returns the value at key as an integer. Numeric strings are accepted.
func (r Record) Int(key string) (int64, bool) {
	switch v := r[key].(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, true
		}
		if f, err := v.Float64(); err == nil {
			return int64(f), true
		}
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

// Float returns the value at key as a float. Numeric strings are accepted.
func (r Record) Float(key string) (float64, bool) {
	switch v := r[key].(type) {
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f, true
		}
	case float64:
		return v, true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

// Strings returns the string elements of an array at key, in order.
// Non-string elements are skipped; an empty result is reported as absent.
func (r Record) Strings(key string) ([]string, bool) {
	arr, ok := r[key].([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(arr))
	for _, el := range arr {
		if s, ok := el.(string); ok {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}

// Object returns the nested object at key.
func (r Record) Object(key string) (Record, bool) {
	m, ok := r[key].(map[string]any)
	return m, ok
}

// Array returns the nested array at key.
func (r Record) Array(key string) ([]any, bool) {
	a, ok := r[key].([]any)
	return a, ok
}

// clone returns a shallow copy so injected fields never leak into the payload.
func (r Record) clone() Record {
	out := make(Record, len(r)+2)
	for k, v := range r {
		out[k] = v
	}
	return out
}

func looseString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return strconv.FormatInt(n, 10), true
		}
		if f, err := x.Float64(); err == nil {
			return strconv.FormatFloat(f, 'f', -1, 64), true
		}
	case float64:
		if x == float64(int64(x)) {
			return strconv.FormatInt(int64(x), 10), true
		}
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case int:
		return strconv.Itoa(x), true
	}
	return "", false
}

func strPtr(s string, ok bool) *string {
	if !ok {
		return nil
	}
	return &s
}
