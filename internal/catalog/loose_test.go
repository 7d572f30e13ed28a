package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeRecord(t *testing.T, body string) Record {
	t.Helper()
	v, err := decodeJSON([]byte(body))
	require.NoError(t, err)
	m, ok := v.(map[string]any)
	require.True(t, ok)
	return m
}

func TestRecordStringCoercion(t *testing.T) {
	rec := decodeRecord(t, `{"s":"abc","i":42,"big":9007199254740993,"f":2.5,"b":true,"n":null,"a":[1]}`)

	tests := []struct {
		key  string
		want string
		ok   bool
	}{
		{"s", "abc", true},
		{"i", "42", true},
		{"big", "9007199254740993", true},
		{"f", "2.5", true},
		{"b", "", false},
		{"n", "", false},
		{"a", "", false},
		{"missing", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, ok := rec.String(tt.key)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRecordNonEmptyString(t *testing.T) {
	rec := Record{"blank": "  ", "v": "x"}
	_, ok := rec.NonEmptyString("blank")
	assert.False(t, ok)
	v, ok := rec.NonEmptyString("v")
	assert.True(t, ok)
	assert.Equal(t, "x", v)
}

func TestRecordIntAndFloat(t *testing.T) {
	rec := decodeRecord(t, `{"n":7,"s":"12","f":"4.5","bad":"x"}`)

	n, ok := rec.Int("n")
	require.True(t, ok)
	assert.Equal(t, int64(7), n)

	n, ok = rec.Int("s")
	require.True(t, ok)
	assert.Equal(t, int64(12), n)

	_, ok = rec.Int("bad")
	assert.False(t, ok)

	f, ok := rec.Float("f")
	require.True(t, ok)
	assert.InDelta(t, 4.5, f, 1e-9)
}

func TestRecordStrings(t *testing.T) {
	rec := decodeRecord(t, `{"paths":["a",1,"b"],"empty":[],"nostr":[1,2]}`)

	got, ok := rec.Strings("paths")
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, got)

	_, ok = rec.Strings("empty")
	assert.False(t, ok)
	_, ok = rec.Strings("nostr")
	assert.False(t, ok)
}
