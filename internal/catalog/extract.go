package catalog

import (
	"sort"

	"github.com/voyagen/iptvcatalog/internal/models"
)

// wrapperKeys are scanned, in order, when an object payload has no known
// shape. The first key holding an array wins.
var wrapperKeys = []string{"channels", "data", "live_streams"}

// ExtractChannels returns the raw stream records of a payload in source
// order. kind is injected as stream_type into records that do not carry one,
// because the player dialect does not describe kind per record.
func ExtractChannels(p *Payload, kind models.ContentKind) []Record {
	if p == nil {
		return nil
	}
	switch p.Format {
	case FormatNestedCategories, FormatUnrecognizedObject:
		if available, ok := p.Object.Object("available_channels"); ok {
			return fromKeyedMap(available, kind)
		}
		for _, key := range wrapperKeys {
			if arr, ok := p.Object.Array(key); ok {
				return fromArray(arr, kind)
			}
		}
	case FormatFlatArray:
		return fromArray(p.Array, kind)
	}
	return nil
}

// fromKeyedMap handles the panel shape: records keyed by stream id, without
// their own id field. Keys are visited in sorted order so extraction is
// deterministic.
func fromKeyedMap(m Record, kind models.ContentKind) []Record {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Record, 0, len(keys))
	for _, k := range keys {
		obj, ok := m[k].(map[string]any)
		if !ok {
			continue
		}
		rec := Record(obj).clone()
		rec["stream_id"] = k
		injectKind(rec, kind)
		out = append(out, rec)
	}
	return out
}

// fromArray accepts object elements verbatim and drops everything else.
func fromArray(arr []any, kind models.ContentKind) []Record {
	out := make([]Record, 0, len(arr))
	for _, el := range arr {
		obj, ok := el.(map[string]any)
		if !ok {
			continue
		}
		rec := Record(obj).clone()
		injectKind(rec, kind)
		out = append(out, rec)
	}
	return out
}

func injectKind(rec Record, kind models.ContentKind) {
	if kind == "" || rec.Has("stream_type") {
		return
	}
	rec["stream_type"] = string(kind)
}
