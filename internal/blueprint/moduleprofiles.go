package blueprint

import (
	"fmt"
	"sort"
	"strings"

	domainerrors "onboard/pkg/domainerrors"
)

// ResolvedModuleProfile is a module profile with its extends chain flattened.
// Module profiles are deprecated (superseded by role-scoped workspaces) but
// blueprints still ship them, so resolution stays: cycles and dangling
// extends references are input errors worth failing on.
type ResolvedModuleProfile struct {
	Name        string
	Description string
	Modules     []string
	Workspaces  []string
}

// ResolveModuleProfiles flattens extends chains by union over modules and
// workspaces. An extends cycle or a reference to an unknown profile aborts
// the run.
func ResolveModuleProfiles(items []ModuleProfileSpec) (map[string]ResolvedModuleProfile, error) {
	byName := map[string]ModuleProfileSpec{}
	for _, it := range items {
		if it.Name == "" {
			continue
		}
		byName[it.Name] = it
	}

	resolved := map[string]ResolvedModuleProfile{}
	var resolve func(name string, stack []string) (ResolvedModuleProfile, error)
	resolve = func(name string, stack []string) (ResolvedModuleProfile, error) {
		if r, ok := resolved[name]; ok {
			return r, nil
		}
		spec, ok := byName[name]
		if !ok {
			return ResolvedModuleProfile{}, domainerrors.New(domainerrors.CodeBadRequest,
				fmt.Sprintf("module profile %q not found", name))
		}
		for _, seen := range stack {
			if seen == name {
				return ResolvedModuleProfile{}, domainerrors.New(domainerrors.CodeBadRequest,
					fmt.Sprintf("module profile extends cycle: %s", strings.Join(append(stack, name), " -> ")))
			}
		}

		r := ResolvedModuleProfile{
			Name:        name,
			Description: spec.Description,
			Modules:     sortedUnion(spec.Modules, nil),
			Workspaces:  sortedUnion(spec.Workspaces, nil),
		}
		if spec.Extends != "" {
			parent, err := resolve(spec.Extends, append(stack, name))
			if err != nil {
				return ResolvedModuleProfile{}, err
			}
			r.Modules = sortedUnion(r.Modules, parent.Modules)
			r.Workspaces = sortedUnion(r.Workspaces, parent.Workspaces)
			if r.Description == "" {
				r.Description = parent.Description
			}
		}
		resolved[name] = r
		return r, nil
	}

	for name := range byName {
		if _, err := resolve(name, nil); err != nil {
			return nil, err
		}
	}
	return resolved, nil
}

func sortedUnion(a, b []string) []string {
	set := map[string]struct{}{}
	for _, s := range a {
		set[s] = struct{}{}
	}
	for _, s := range b {
		set[s] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
