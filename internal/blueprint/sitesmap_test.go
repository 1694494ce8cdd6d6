package blueprint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSitesMap(t *testing.T, root, content string) *Loader {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(root, "_sites.yaml"), []byte(content), 0o644))
	return NewLoader(root)
}

func TestResolveSlugExactSiteEntries(t *testing.T) {
	loader := writeSitesMap(t, t.TempDir(), `
sites:
  acme.prod.example.com: acme
  globex.prod.example.com: globex
`)

	assert.Equal(t, "acme", loader.ResolveSlug("acme.prod.example.com"))
	assert.Equal(t, "globex", loader.ResolveSlug("globex.prod.example.com"))
	assert.Empty(t, loader.ResolveSlug("unknown.example.com"))
}

func TestResolveSlugGlobPatterns(t *testing.T) {
	loader := writeSitesMap(t, t.TempDir(), `
map:
  acme: ["acme.*.example.com", "acme.internal"]
  globex: ["globex.*"]
`)

	assert.Equal(t, "acme", loader.ResolveSlug("acme.prod.example.com"))
	assert.Equal(t, "acme", loader.ResolveSlug("acme.internal"))
	assert.Equal(t, "globex", loader.ResolveSlug("globex.anything"))
	assert.Empty(t, loader.ResolveSlug("other.example.com"))
}

func TestResolveSlugMissingMapIsEmpty(t *testing.T) {
	loader := NewLoader(t.TempDir())
	assert.Empty(t, loader.ResolveSlug("acme.prod.example.com"))
}

func TestResolveSlugMalformedMapIsEmpty(t *testing.T) {
	loader := writeSitesMap(t, t.TempDir(), "sites: [not, a, map")
	assert.Empty(t, loader.ResolveSlug("acme.prod.example.com"))
}
