package provision

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"onboard/internal/blueprint"
	"onboard/internal/docstore"
	domainerrors "onboard/pkg/domainerrors"
)

// permFlagColumns are the boolean permission columns cloned between roles.
var permFlagColumns = []string{
	"read", "write", "create", "delete", "submit", "cancel", "amend",
	"report", "export", "import", "share", "print", "email",
}

// CloneRolesSummary reports what a cloning pass did (or would do, on a dry
// run).
type CloneRolesSummary struct {
	CreatedRoles []string `json:"created_roles"`
	UpdatedRoles []string `json:"updated_roles"`
	CreatedPerms int      `json:"created_perms"`
	UpdatedPerms int      `json:"updated_perms"`
	UnionOnly    bool     `json:"union_only"`
	DryRun       bool     `json:"dry_run"`
}

// CloneRoles builds composite roles from roles.yaml rows carrying a
// clone_from list: the target role's permission rows become the union of the
// base roles' rows, keyed by (doctype, permlevel), with boolean flags merged
// by OR. Existing grants are never revoked.
func (s *Siblings) CloneRoles(ctx context.Context, slug string, dryRun bool) (*CloneRolesSummary, error) {
	cfg, err := s.loader.Roles(slug)
	if err != nil {
		return nil, err
	}
	rows := cloneRows(cfg)
	if len(rows) == 0 {
		return nil, nil
	}

	summary := &CloneRolesSummary{
		CreatedRoles: []string{},
		UpdatedRoles: []string{},
		UnionOnly:    cfg.Options.UnionOnly.Or(true),
		DryRun:       dryRun,
	}

	for _, row := range rows {
		target := row.Name
		if target == "" {
			target = row.Role
		}
		if target == "" || len(row.CloneFrom) == 0 {
			return nil, domainerrors.New(domainerrors.CodeBadRequest,
				fmt.Sprintf("roles.yaml clone row needs name and clone_from: %+v", row))
		}

		var deskAccess *bool
		if row.DeskAccess.Set {
			v := row.DeskAccess.Value
			deskAccess = &v
		}
		created, updated, err := s.ensureRoleDoc(ctx, target, deskAccess, dryRun)
		if err != nil {
			return nil, err
		}
		if created {
			summary.CreatedRoles = append(summary.CreatedRoles, target)
		}
		if updated {
			summary.UpdatedRoles = append(summary.UpdatedRoles, target)
		}

		existing, err := s.existingPerms(ctx, target)
		if err != nil {
			return nil, err
		}

		var srcRows []*docstore.Document
		for _, base := range row.CloneFrom {
			ok, err := s.store.Exists(ctx, "Role", base)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			perms, err := s.store.List(ctx, "Custom DocPerm", docstore.Filters{"role": base})
			if err != nil {
				return nil, err
			}
			srcRows = append(srcRows, perms...)
		}

		for _, src := range srcRows {
			parent := src.GetString("parent")
			if parent == "" {
				continue
			}
			plevel := intField(src.Fields, "permlevel")

			key := permKey{parent, plevel}
			if dst, ok := existing[key]; ok {
				if mergeBoolFlags(dst.Fields, src.Fields) {
					summary.UpdatedPerms++
					if !dryRun {
						if err := s.store.Update(ctx, dst); err != nil {
							return nil, err
						}
					}
				}
				continue
			}

			summary.CreatedPerms++
			if dryRun {
				continue
			}
			fields := docstore.Fields{
				"parent":      parent,
				"parenttype":  "DocType",
				"parentfield": "permissions",
				"role":        target,
				"permlevel":   plevel,
			}
			for _, col := range permFlagColumns {
				if v, ok := src.Fields[col]; ok {
					fields[col] = coerceBoolInt(v)
				}
			}
			perm := &docstore.Document{Doctype: "Custom DocPerm", Name: uuid.NewString(), Fields: fields}
			if _, err := s.store.Insert(ctx, perm); err != nil {
				return nil, err
			}
			existing[key] = perm
		}
	}
	return summary, nil
}

func cloneRows(cfg blueprint.RolesFile) []blueprint.RoleSpec {
	var out []blueprint.RoleSpec
	for _, r := range cfg.Roles {
		if len(r.CloneFrom) > 0 || r.Name != "" {
			out = append(out, r)
		}
	}
	return out
}

// ensureRoleDoc creates the target role, or flips its desk access when it
// already exists with a different value. Dry runs report without writing.
func (s *Siblings) ensureRoleDoc(ctx context.Context, name string, deskAccess *bool, dryRun bool) (created, updated bool, err error) {
	exists, err := s.store.Exists(ctx, "Role", name)
	if err != nil {
		return false, false, err
	}
	if !exists {
		if dryRun {
			return true, false, nil
		}
		fields := docstore.Fields{"role_name": name}
		if deskAccess != nil {
			fields["desk_access"] = boolInt(*deskAccess)
		}
		_, err := s.store.Insert(ctx, &docstore.Document{Doctype: "Role", Name: name, Fields: fields})
		return err == nil, false, err
	}
	if deskAccess == nil {
		return false, false, nil
	}
	cur, err := s.store.GetValue(ctx, "Role", name, "desk_access")
	if err != nil {
		return false, false, err
	}
	want := boolInt(*deskAccess)
	if intValue(cur) == want {
		return false, false, nil
	}
	if !dryRun {
		if err := s.store.SetValue(ctx, "Role", name, "desk_access", want); err != nil {
			return false, false, err
		}
	}
	return false, true, nil
}

type permKey struct {
	parent    string
	permlevel int
}

func (s *Siblings) existingPerms(ctx context.Context, role string) (map[permKey]*docstore.Document, error) {
	rows, err := s.store.List(ctx, "Custom DocPerm", docstore.Filters{"role": role})
	if err != nil {
		return nil, err
	}
	out := map[permKey]*docstore.Document{}
	for _, r := range rows {
		out[permKey{r.GetString("parent"), intField(r.Fields, "permlevel")}] = r
	}
	return out, nil
}

// mergeBoolFlags ORs the source's permission flags into the destination;
// reports whether anything changed.
func mergeBoolFlags(dst, src docstore.Fields) bool {
	changed := false
	for _, col := range permFlagColumns {
		sv, ok := src[col]
		if !ok {
			continue
		}
		merged := intValue(dst[col]) | boolInt(intValue(coerceBoolInt(sv)) != 0)
		if merged != intValue(dst[col]) {
			dst[col] = merged
			changed = true
		}
	}
	return changed
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func intValue(v any) int {
	switch t := v.(type) {
	case bool:
		return boolInt(t)
	case int:
		return t
	case int32:
		return int(t)
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

func intField(f docstore.Fields, key string) int {
	return intValue(f[key])
}
