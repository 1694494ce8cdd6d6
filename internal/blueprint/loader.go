// Package blueprint reads a tenant's declarative description files and merges
// them into the desired document set that planning consumes. A blueprint is a
// directory per tenant slug under the blueprint root; `*.yaml` files at its
// top level each carry a `docs` list, with sibling files (companies.yaml,
// users.yaml, ...) holding fixed-schema lists handled by dedicated appliers.
package blueprint

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"onboard/internal/docstore"
	domainerrors "onboard/pkg/domainerrors"
)

// Loader resolves tenant blueprint directories under a fixed root.
type Loader struct {
	root string
}

func NewLoader(root string) *Loader {
	return &Loader{root: root}
}

// Dir returns the tenant's blueprint directory.
func (l *Loader) Dir(slug string) string {
	return filepath.Join(l.root, slug)
}

// AssetsDir returns the tenant's asset directory (letterhead images etc).
func (l *Loader) AssetsDir(slug string) string {
	return filepath.Join(l.Dir(slug), "assets")
}

// Collect reads every top-level *.yaml file in the tenant directory in
// lexical order and merges their `docs` entries by (doctype, name), later
// files overriding earlier ones field by field. A doc that cannot resolve
// both doctype and name is a fatal input error: the whole run aborts.
func (l *Loader) Collect(slug string) ([]*docstore.Document, error) {
	pattern := filepath.Join(l.Dir(slug), "*.yaml")
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("scan blueprint %q: %w", slug, err)
	}
	sort.Strings(paths)

	var sets [][]map[string]any
	for _, p := range paths {
		docs, err := readDocsFile(p)
		if err != nil {
			return nil, err
		}
		sets = append(sets, docs)
	}
	return MergeDocs(sets)
}

type docsFile struct {
	Docs []map[string]any `yaml:"docs"`
}

func readDocsFile(path string) ([]map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var f docsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeBadRequest,
			fmt.Sprintf("malformed blueprint file %s", filepath.Base(path)))
	}
	return f.Docs, nil
}

// MergeDocs merges raw doc maps from multiple files. Merge key is
// (doctype, name) after name derivation and required-field backfill; the
// merge is shallow per field, so a later file overriding one field keeps the
// rest of the earlier definition.
func MergeDocs(sets [][]map[string]any) ([]*docstore.Document, error) {
	type identity struct{ doctype, name string }
	merged := map[identity]map[string]any{}
	var order []identity

	for _, docs := range sets {
		for _, raw := range docs {
			d := make(map[string]any, len(raw))
			for k, v := range raw {
				d[k] = v
			}
			deriveName(d)
			backfillRequired(d)

			doctype, _ := d["doctype"].(string)
			name, _ := d["name"].(string)
			if doctype == "" || name == "" {
				return nil, domainerrors.New(domainerrors.CodeBadRequest,
					fmt.Sprintf("each doc needs doctype and name (or title): %v", raw))
			}

			key := identity{doctype, name}
			base, ok := merged[key]
			if !ok {
				base = map[string]any{}
				order = append(order, key)
			}
			for k, v := range d {
				base[k] = v
			}
			merged[key] = base
		}
	}

	out := make([]*docstore.Document, 0, len(order))
	for _, key := range order {
		fields := merged[key]
		delete(fields, "doctype")
		delete(fields, "name")
		out = append(out, &docstore.Document{
			Doctype: key.doctype,
			Name:    key.name,
			Fields:  docstore.Fields(fields),
		})
	}
	return out, nil
}

// deriveName fills the name field: explicit name wins, then title; tax-charge
// templates compose "{title} - {company}" when a company is set.
func deriveName(d map[string]any) {
	if s, _ := d["name"].(string); s != "" {
		return
	}
	title, _ := d["title"].(string)
	if title != "" {
		d["name"] = title
	}
	if doctype, _ := d["doctype"].(string); doctype == docstore.DoctypeTaxTemplate && title != "" {
		name := title
		if company, _ := d["company"].(string); company != "" {
			name = title + " - " + company
		}
		d["name"] = name
	}
}

// backfillRequired copies the name into the primary field certain doctypes
// insist on.
func backfillRequired(d map[string]any) {
	doctype, _ := d["doctype"].(string)
	// Fills only absent keys; an explicitly blanked field stays blank.
	setDefault := func(key string) {
		if _, ok := d[key]; !ok {
			d[key] = d["name"]
		}
	}
	switch doctype {
	case docstore.DoctypeBrand:
		setDefault("brand")
	case docstore.DoctypeCompany:
		setDefault("company_name")
	case docstore.DoctypeTaxTemplate:
		setDefault("title")
	case docstore.DoctypeRoleProfile:
		setDefault("role_profile")
	}
}
