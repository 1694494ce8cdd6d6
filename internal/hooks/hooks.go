// Package hooks runs the install- and migrate-time lifecycle passes. Every
// step is best-effort: a failure is logged and the remaining steps still run,
// so a half-provisioned site converges on the next migration instead of
// blocking it.
package hooks

import (
	"context"
	"log/slog"

	"onboard/internal/blueprint"
	"onboard/internal/collab"
	"onboard/internal/docstore"
	"onboard/internal/provision"
	"onboard/internal/workspace"
)

const settingsDoctype = "Onboarding Settings"

// Provisioner runs a full provisioning pass.
type Provisioner interface {
	Provision(ctx context.Context, req provision.Request) (*provision.Result, error)
}

// Runner wires the lifecycle passes against live collaborators.
type Runner struct {
	loader      *blueprint.Loader
	store       docstore.Store
	provisioner Provisioner
	hardener    *workspace.Hardener
	collab      *collab.Service
	logger      *slog.Logger

	// DefaultSlug is the blueprint used when none was remembered yet.
	DefaultSlug string
}

func NewRunner(loader *blueprint.Loader, store docstore.Store, provisioner Provisioner,
	hardener *workspace.Hardener, collabSvc *collab.Service, logger *slog.Logger) *Runner {
	return &Runner{
		loader:      loader,
		store:       store,
		provisioner: provisioner,
		hardener:    hardener,
		collab:      collabSvc,
		logger:      logger,
	}
}

// AfterInstall remembers the chosen blueprint and provisions it once, with
// workspace hardening kept off.
func (r *Runner) AfterInstall(ctx context.Context, slug string) {
	if slug == "" {
		slug = r.DefaultSlug
	}
	if slug == "" {
		r.logger.WarnContext(ctx, "install hook skipped, no blueprint configured")
		return
	}
	if err := r.RememberBlueprint(ctx, slug); err != nil {
		r.logger.WarnContext(ctx, "remember blueprint failed", "blueprint", slug, "error", err)
	}
	if _, err := r.provisioner.Provision(ctx, provision.Request{Slug: slug}); err != nil {
		r.logger.WarnContext(ctx, "install provisioning failed", "blueprint", slug, "error", err)
	}
}

// AfterMigrate keeps a migrated site consistent: repair workspace JSON,
// re-provision the remembered blueprint with hardening off, re-apply the Home
// workspace, verify visibility invariants, and re-sync the collaboration
// property setters.
func (r *Runner) AfterMigrate(ctx context.Context) {
	if n, err := r.store.RepairWorkspaceJSON(ctx); err != nil {
		r.logger.WarnContext(ctx, "workspace json repair failed", "error", err)
	} else if n > 0 {
		r.logger.InfoContext(ctx, "workspace json repaired", "count", n)
	}

	slug := r.RememberedBlueprint(ctx)
	if slug == "" {
		slug = r.DefaultSlug
	}
	if slug != "" {
		if _, err := r.provisioner.Provision(ctx, provision.Request{Slug: slug}); err != nil {
			r.logger.WarnContext(ctx, "migrate provisioning failed", "blueprint", slug, "error", err)
		}
		if err := r.reapplyHomeWorkspace(ctx, slug); err != nil {
			r.logger.WarnContext(ctx, "home workspace re-apply failed", "blueprint", slug, "error", err)
		}
	}

	if report, err := r.hardener.VerifyInvariants(ctx, nil); err != nil {
		r.logger.WarnContext(ctx, "workspace invariant check failed", "error", err)
	} else if !report.OK {
		r.logger.WarnContext(ctx, "workspace invariants violated",
			"public_with_roles", report.PublicWithRoles,
			"private_without_roles", report.PrivateWithoutRoles,
		)
	}

	if err := r.collab.EnsureTaskProjectPicker(ctx); err != nil {
		r.logger.WarnContext(ctx, "task project picker sync failed", "error", err)
	}
	if err := r.collab.EnsureProjectFinancialPrivacy(ctx); err != nil {
		r.logger.WarnContext(ctx, "project financial privacy sync failed", "error", err)
	}
}

// RememberBlueprint upserts the settings singleton so later migrations reuse
// the same blueprint.
func (r *Runner) RememberBlueprint(ctx context.Context, slug string) error {
	doc, err := r.store.Get(ctx, settingsDoctype, settingsDoctype)
	if err == nil {
		doc.Set("blueprint", slug)
		return r.store.Update(ctx, doc)
	}
	_, err = r.store.Insert(ctx, &docstore.Document{
		Doctype: settingsDoctype,
		Name:    settingsDoctype,
		Fields:  docstore.Fields{"blueprint": slug},
	})
	return err
}

// RememberedBlueprint returns the slug stored at install time, or "".
func (r *Runner) RememberedBlueprint(ctx context.Context) string {
	v, err := r.store.GetValue(ctx, settingsDoctype, settingsDoctype, "blueprint")
	if err != nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

// reapplyHomeWorkspace plans and applies only the blueprint's Home workspace,
// restoring it when a migration reset workspace documents.
func (r *Runner) reapplyHomeWorkspace(ctx context.Context, slug string) error {
	docs, err := r.loader.Collect(slug)
	if err != nil {
		return err
	}
	var home []*docstore.Document
	for _, d := range docs {
		if d.Doctype == docstore.DoctypeWorkspace && d.Name == "Home" {
			home = append(home, d)
		}
	}
	if len(home) == 0 {
		return nil
	}
	planner := provision.NewPlanner(r.store)
	plan, err := planner.Plan(ctx, home)
	if err != nil {
		return err
	}
	_, err = provision.NewApplier(r.store, planner).Apply(ctx, plan)
	return err
}
