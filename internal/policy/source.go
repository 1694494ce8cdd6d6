package policy

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"

	"onboard/pkg/requestcontext"
)

// SlugResolver maps a site identifier to a blueprint slug (sites map lookup).
type SlugResolver interface {
	ResolveSlug(site string) string
}

// Source loads and layers policy files. Loading never fails: malformed or
// unreadable layers are logged and skipped, leaving whatever accumulated so
// far plus the built-in defaults.
type Source struct {
	// Root is the blueprint root; the global policy file is Root/policy.yaml
	// and a tenant's file is Root/<slug>/policy.yaml.
	Root string
	// ExplicitPath pins the policy file, bypassing slug resolution entirely.
	ExplicitPath string
	// Slug selects the tenant; when empty, Resolver maps the request's site.
	Slug     string
	Resolver SlugResolver

	Logger *slog.Logger

	group singleflight.Group
}

const memoKey = "policy"

// Load returns the merged policy for this request, computed at most once per
// request context and collapsed across concurrent first loads per site.
func (s *Source) Load(ctx context.Context) *Policy {
	v, _ := requestcontext.Memo(ctx, memoKey, func() (any, error) {
		site := requestcontext.Site(ctx)
		p, _, _ := s.group.Do(site, func() (any, error) {
			return s.load(site), nil
		})
		return p, nil
	})
	return v.(*Policy)
}

func (s *Source) load(site string) *Policy {
	merged := defaults()

	for _, path := range s.pathCandidates(site) {
		raw, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				s.warn("policy layer unreadable", path, err)
			}
			continue
		}
		layer := map[string]any{}
		if err := yaml.Unmarshal(raw, &layer); err != nil {
			s.warn("policy layer malformed", path, err)
			continue
		}
		merged = MergeLayer(merged, layer)
	}

	p, err := decode(merged)
	if err != nil {
		// A layer that merges but does not decode is treated like a
		// malformed layer: fall back to defaults alone.
		s.warn("merged policy undecodable", "", err)
		p, _ = decode(defaults())
	}
	return p
}

// pathCandidates lists layer files in application order: global first, tenant
// second. An explicit path replaces the whole list.
func (s *Source) pathCandidates(site string) []string {
	if s.ExplicitPath != "" {
		return []string{s.ExplicitPath}
	}
	candidates := []string{filepath.Join(s.Root, "policy.yaml")}

	slug := s.Slug
	if slug == "" && s.Resolver != nil && site != "" {
		slug = s.Resolver.ResolveSlug(site)
	}
	if slug != "" {
		candidates = append(candidates, filepath.Join(s.Root, slug, "policy.yaml"))
	}
	return candidates
}

// Default returns the built-in layer alone, with no files applied.
func Default() *Policy {
	p, _ := decode(defaults())
	return p
}

func decode(merged map[string]any) (*Policy, error) {
	raw, err := yaml.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("re-encode merged policy: %w", err)
	}
	p := &Policy{}
	if err := yaml.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("decode merged policy: %w", err)
	}
	return p, nil
}

func (s *Source) warn(msg, path string, err error) {
	if s.Logger == nil {
		return
	}
	s.Logger.Warn(msg, "path", path, "error", err)
}
