package blueprint

import (
	"os"
	"path"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// The sites map (_sites.yaml at the blueprint root) ties site identifiers to
// blueprint slugs. Two styles are accepted:
//
//	map:                # style A: slug -> site glob patterns
//	  acme: ["acme.*.example.com"]
//
//	sites:              # style B: site -> slug
//	  acme.prod.example.com: acme
type sitesFile struct {
	Map   map[string]yaml.Node `yaml:"map"`
	Sites map[string]yaml.Node `yaml:"sites"`
}

// ResolveSlug looks the site up in the sites map: exact site->slug entries
// first, then glob patterns. Returns "" when the map is missing, malformed,
// or has no match; slug resolution is always best-effort.
func (l *Loader) ResolveSlug(site string) string {
	raw, err := os.ReadFile(filepath.Join(l.root, "_sites.yaml"))
	if err != nil {
		return ""
	}
	var f sitesFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return ""
	}
	entries := f.Map
	if len(entries) == 0 {
		entries = f.Sites
	}

	// Style B: values are plain strings keyed by site.
	if node, ok := entries[site]; ok && node.Kind == yaml.ScalarNode {
		var slug string
		if node.Decode(&slug) == nil {
			return slug
		}
	}

	// Style A: values are pattern lists keyed by slug.
	for slug, node := range entries {
		if node.Kind != yaml.SequenceNode {
			continue
		}
		var patterns []string
		if node.Decode(&patterns) != nil {
			continue
		}
		for _, pat := range patterns {
			if ok, err := path.Match(pat, site); err == nil && ok {
				return slug
			}
		}
	}
	return ""
}
