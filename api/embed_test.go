package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestOpenAPISpecParses(t *testing.T) {
	var doc struct {
		OpenAPI string         `yaml:"openapi"`
		Paths   map[string]any `yaml:"paths"`
	}
	require.NoError(t, yaml.Unmarshal(OpenAPISpec, &doc))
	assert.Equal(t, "3.0.3", doc.OpenAPI)
	for _, p := range []string{
		"/api/playlists",
		"/api/playlists/{id}/sync",
		"/api/playlists/{id}/import",
		"/api/playlists/{id}/channels",
		"/api/channels/{id}",
	} {
		assert.Contains(t, doc.Paths, p)
	}
}
