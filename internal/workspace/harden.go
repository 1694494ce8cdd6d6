// Package workspace hardens workspace visibility: flipping standard
// workspaces to role-gated private pages and verifying the public/private
// role invariants afterwards.
package workspace

import (
	"context"
	"fmt"
	"sort"

	"onboard/internal/docstore"
)

// DefaultExcludedNames are left public by default so users keep a landing
// page after hardening.
var DefaultExcludedNames = []string{"Home"}

// RestrictOptions selects which workspaces a hardening pass considers.
type RestrictOptions struct {
	DryRun         bool
	IncludeModules []string
	ExcludeNames   []string
}

// Summary reports one hardening pass. A dry run fills the same fields without
// writing.
type Summary struct {
	Examined     int      `json:"examined"`
	Changed      int      `json:"changed"`
	Skipped      int      `json:"skipped"`
	ChangedNames []string `json:"changed_names"`
	SkippedNames []string `json:"skipped_names"`
}

// Hardener flips public workspaces private.
type Hardener struct {
	store docstore.Store
}

func NewHardener(store docstore.Store) *Hardener {
	return &Hardener{store: store}
}

// RestrictStandard makes every considered workspace non-public except the
// excluded names. Already-private workspaces are skipped, not rewritten.
func (h *Hardener) RestrictStandard(ctx context.Context, opts RestrictOptions) (*Summary, error) {
	exclude := map[string]struct{}{}
	names := opts.ExcludeNames
	if names == nil {
		names = DefaultExcludedNames
	}
	for _, n := range names {
		exclude[n] = struct{}{}
	}

	filters := docstore.Filters{}
	if len(opts.IncludeModules) > 0 {
		filters["module"] = opts.IncludeModules
	}
	rows, err := h.store.List(ctx, docstore.DoctypeWorkspace, filters)
	if err != nil {
		return nil, fmt.Errorf("harden workspaces: %w", err)
	}

	summary := &Summary{Examined: len(rows), ChangedNames: []string{}, SkippedNames: []string{}}
	for _, r := range rows {
		if _, ok := exclude[r.Name]; ok {
			summary.SkippedNames = append(summary.SkippedNames, r.Name)
			continue
		}
		if intValue(r.Get("public")) != 1 {
			summary.SkippedNames = append(summary.SkippedNames, r.Name)
			continue
		}
		if !opts.DryRun {
			if err := h.store.SetValue(ctx, docstore.DoctypeWorkspace, r.Name, "public", 0); err != nil {
				return nil, fmt.Errorf("harden workspace %q: %w", r.Name, err)
			}
		}
		summary.ChangedNames = append(summary.ChangedNames, r.Name)
	}
	summary.Changed = len(summary.ChangedNames)
	summary.Skipped = len(summary.SkippedNames)
	return summary, nil
}

// InvariantReport is the result of a visibility invariant check. Public
// workspaces must carry no role restrictions; private ones must carry at
// least one, unless explicitly allowed.
type InvariantReport struct {
	OK                  bool     `json:"ok"`
	Skipped             string   `json:"skipped,omitempty"`
	PublicWithRoles     []string `json:"public_with_roles"`
	PrivateWithoutRoles []string `json:"private_without_roles"`
}

// VerifyInvariants checks every workspace against the visibility invariants.
// Stacks without workspace data skip gracefully.
func (h *Hardener) VerifyInvariants(ctx context.Context, allowedPrivateNoRoles []string) (*InvariantReport, error) {
	all, err := h.store.List(ctx, docstore.DoctypeWorkspace, nil)
	if err != nil {
		return nil, fmt.Errorf("verify workspace invariants: %w", err)
	}
	if len(all) == 0 {
		return &InvariantReport{OK: true, Skipped: "no workspaces"}, nil
	}
	allowed := map[string]struct{}{}
	if allowedPrivateNoRoles == nil {
		allowedPrivateNoRoles = []string{"Wiki"}
	}
	for _, n := range allowedPrivateNoRoles {
		allowed[n] = struct{}{}
	}

	report := &InvariantReport{PublicWithRoles: []string{}, PrivateWithoutRoles: []string{}}
	for _, ws := range all {
		hasRoles := len(ws.Rows("roles")) > 0
		if intValue(ws.Get("public")) == 1 {
			if hasRoles {
				report.PublicWithRoles = append(report.PublicWithRoles, ws.Name)
			}
			continue
		}
		if !hasRoles {
			if _, ok := allowed[ws.Name]; !ok {
				report.PrivateWithoutRoles = append(report.PrivateWithoutRoles, ws.Name)
			}
		}
	}
	sort.Strings(report.PublicWithRoles)
	sort.Strings(report.PrivateWithoutRoles)
	report.OK = len(report.PublicWithRoles) == 0 && len(report.PrivateWithoutRoles) == 0
	return report, nil
}

func intValue(v any) int {
	switch t := v.(type) {
	case bool:
		if t {
			return 1
		}
		return 0
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	case string:
		if t == "1" {
			return 1
		}
	}
	return 0
}
