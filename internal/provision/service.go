package provision

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"onboard/internal/audit"
	"onboard/internal/blueprint"
	"onboard/internal/docstore"
	"onboard/internal/workspace"
	"onboard/pkg/requestcontext"
)

// AppName is recorded as the owning app on Module Def records.
const AppName = "onboard"

// Request selects and parameterizes one provisioning run.
type Request struct {
	Slug             string `json:"blueprint"`
	DryRun           bool   `json:"dry_run"`
	CommitRef        string `json:"commit_ref,omitempty"`
	HardenWorkspaces bool   `json:"harden_workspaces"`
}

// Result is the structured summary every run returns, even when optional
// steps failed. Warnings carries failures of best-effort side passes that did
// not abort the reconciliation.
type Result struct {
	Summary            string             `json:"summary"`
	Plan               *Plan              `json:"plan,omitempty"`
	Applied            *Applied           `json:"applied,omitempty"`
	WorkspaceHardening *workspace.Summary `json:"workspace_hardening,omitempty"`
	Warnings           []string           `json:"warnings,omitempty"`
	LogName            string             `json:"log_name,omitempty"`
}

// Hardener is the workspace-hardening collaborator.
type Hardener interface {
	RestrictStandard(ctx context.Context, opts workspace.RestrictOptions) (*workspace.Summary, error)
	VerifyInvariants(ctx context.Context, allowedPrivateNoRoles []string) (*workspace.InvariantReport, error)
}

// LetterheadApplier runs the letterhead passes.
type LetterheadApplier interface {
	Apply(ctx context.Context, slug string, dryRun bool) error
	ScanAssets(ctx context.Context, slug string) error
}

// ScopeInvalidator drops cached user scopes after allow-list rewrites.
type ScopeInvalidator interface {
	Invalidate(ctx context.Context)
}

// Service orchestrates a full provisioning run: collect and plan, then apply
// the plan plus the sibling passes inside one transaction, then the
// best-effort tail (hardening, letterheads already inside, log, audit).
type Service struct {
	loader      *blueprint.Loader
	store       docstore.Store
	tx          docstore.Tx
	planner     *Planner
	applier     *Applier
	siblings    *Siblings
	hardener    Hardener
	letterheads LetterheadApplier
	runLog      *RunLog
	audits      *audit.Publisher
	scopes      ScopeInvalidator
	logger      *slog.Logger
	metrics     *Metrics
	tracer      trace.Tracer

	// hardenOverride, when set, wins over the per-request flag (site config
	// pin).
	hardenOverride *bool
}

// Config wires a Service.
type Config struct {
	Loader      *blueprint.Loader
	Store       docstore.Store
	Tx          docstore.Tx
	Hardener    Hardener
	Letterheads LetterheadApplier
	Audits      *audit.Publisher
	Scopes      ScopeInvalidator
	Logger      *slog.Logger
	Metrics     *Metrics
	Policies    policySource

	HardenOverride *bool
}

func NewService(cfg Config) *Service {
	planner := NewPlanner(cfg.Store)
	return &Service{
		loader:         cfg.Loader,
		store:          cfg.Store,
		tx:             cfg.Tx,
		planner:        planner,
		applier:        NewApplier(cfg.Store, planner),
		siblings:       NewSiblings(cfg.Loader, cfg.Store, cfg.Policies, cfg.Logger),
		hardener:       cfg.Hardener,
		letterheads:    cfg.Letterheads,
		runLog:         NewRunLog(cfg.Store, cfg.Logger),
		audits:         cfg.Audits,
		scopes:         cfg.Scopes,
		logger:         cfg.Logger,
		metrics:        cfg.Metrics,
		tracer:         otel.Tracer("onboard/provision"),
		hardenOverride: cfg.HardenOverride,
	}
}

// Provision runs one blueprint reconciliation. Dry runs plan and preview
// hardening without writing; apply runs execute everything in a single
// transaction committed at the end, so a mid-run failure leaves nothing
// partially applied.
func (s *Service) Provision(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "provision.run",
		trace.WithAttributes(
			attribute.String("blueprint", req.Slug),
			attribute.Bool("dry_run", req.DryRun),
		))
	defer span.End()

	site := requestcontext.Site(ctx)
	harden := req.HardenWorkspaces
	if s.hardenOverride != nil {
		harden = *s.hardenOverride
	}

	docs, err := s.loader.Collect(req.Slug)
	if err != nil {
		s.metrics.ObserveRun(mode(req.DryRun), StatusFailed, start)
		return nil, err
	}
	// Role profiles ride in their own sibling file pass.
	kept := docs[:0]
	for _, d := range docs {
		if d.Doctype != docstore.DoctypeRoleProfile {
			kept = append(kept, d)
		}
	}
	docs = kept

	plan, err := s.planner.Plan(ctx, docs)
	if err != nil {
		s.metrics.ObserveRun(mode(req.DryRun), StatusFailed, start)
		return nil, err
	}
	summary := plan.Summary()

	if req.DryRun {
		result := &Result{Summary: summary, Plan: plan}
		if harden {
			ws, err := s.hardener.RestrictStandard(ctx, workspace.RestrictOptions{DryRun: true})
			if err != nil {
				s.logger.Error("workspace hardening preview failed", "blueprint", req.Slug, "error", err)
			} else {
				result.WorkspaceHardening = ws
			}
		}
		result.LogName = s.runLog.Write(ctx, site, req.Slug, true, summary, plan, StatusDryRun, req.CommitRef)
		s.emit(ctx, audit.TypeProvisionDryRun, site, req.Slug, map[string]any{"summary": summary})
		s.metrics.ObserveRun("dry_run", StatusDryRun, start)
		return result, nil
	}

	result := &Result{Summary: summary}
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		s.siblings.EnsureBaselines(ctx)
		if err := s.siblings.EnsureModuleDefs(ctx, docs, AppName); err != nil {
			return err
		}

		applied, err := s.applier.Apply(ctx, plan)
		if err != nil {
			return err
		}
		result.Applied = applied

		if err := s.siblings.ApplyCompanies(ctx, req.Slug); err != nil {
			return err
		}
		if err := s.siblings.ApplyBrands(ctx, req.Slug); err != nil {
			return err
		}
		// Custom-field creation is a best-effort side pass: its failure is
		// surfaced on the result, not fatal to the reconciliation.
		if err := s.siblings.ApplyBrandCustomFields(ctx); err != nil {
			s.warn(result, req.Slug, "brand custom fields", err)
		}
		if err := s.siblings.ApplyRoles(ctx, req.Slug); err != nil {
			return err
		}
		if _, err := s.siblings.CloneRoles(ctx, req.Slug, false); err != nil {
			return err
		}
		if _, _, err := s.siblings.ApplyRoleProfiles(ctx, req.Slug, true); err != nil {
			return err
		}
		if err := s.validateModuleProfiles(req.Slug); err != nil {
			return err
		}
		if err := s.siblings.ApplyUsers(ctx, req.Slug); err != nil {
			return err
		}

		if harden {
			ws, err := s.hardener.RestrictStandard(ctx, workspace.RestrictOptions{})
			if err != nil {
				s.logger.Error("workspace hardening failed", "blueprint", req.Slug, "error", err)
			} else {
				result.WorkspaceHardening = ws
			}
		}

		// Letterhead passes are best-effort like hardening above.
		if err := s.letterheads.Apply(ctx, req.Slug, false); err != nil {
			s.warn(result, req.Slug, "letterheads", err)
		}
		if err := s.letterheads.ScanAssets(ctx, req.Slug); err != nil {
			s.warn(result, req.Slug, "letterhead asset scan", err)
		}

		// Invariant repair runs across all workspaces, not only touched ones.
		if _, err := s.store.RepairWorkspaceJSON(ctx); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		result.LogName = s.runLog.Write(ctx, site, req.Slug, false, summary, plan, StatusFailed, req.CommitRef)
		s.emit(ctx, audit.TypeProvisionFailed, site, req.Slug, map[string]any{
			"summary": summary, "error": err.Error(),
		})
		s.metrics.ObserveRun("apply", StatusFailed, start)
		return nil, err
	}

	if s.scopes != nil {
		s.scopes.Invalidate(ctx)
	}
	logSummary := summary
	if len(result.Warnings) > 0 {
		logSummary = summary + "; warnings: " + strings.Join(result.Warnings, "; ")
	}
	result.LogName = s.runLog.Write(ctx, site, req.Slug, false, logSummary, plan, StatusSuccess, req.CommitRef)
	details := map[string]any{
		"summary": summary,
		"created": len(result.Applied.Created),
		"updated": len(result.Applied.Updated),
	}
	if len(result.Warnings) > 0 {
		details["warnings"] = result.Warnings
	}
	s.emit(ctx, audit.TypeProvisionApplied, site, req.Slug, details)
	s.metrics.ObserveRun("apply", StatusSuccess, start)
	s.metrics.RecordApplied(len(result.Applied.Created), len(result.Applied.Updated))
	return result, nil
}

// PlanOnly collects and plans without any writes, for plan inspection.
func (s *Service) PlanOnly(ctx context.Context, slug string) (*Plan, error) {
	docs, err := s.loader.Collect(slug)
	if err != nil {
		return nil, err
	}
	kept := docs[:0]
	for _, d := range docs {
		if d.Doctype != docstore.DoctypeRoleProfile {
			kept = append(kept, d)
		}
	}
	return s.planner.Plan(ctx, kept)
}

// validateModuleProfiles parses and validates module_profiles.yaml so broken
// extends chains still fail the run, but the profiles themselves are no
// longer applied anywhere. Role-scoped workspaces plus role profiles replaced
// them.
func (s *Service) validateModuleProfiles(slug string) error {
	cfg, err := s.loader.ModuleProfiles(slug)
	if err != nil {
		return err
	}
	if len(cfg.ModuleProfiles) == 0 {
		return nil
	}
	_, err = blueprint.ResolveModuleProfiles(cfg.ModuleProfiles)
	return err
}

// warn records a failed best-effort pass on the result and the log.
func (s *Service) warn(result *Result, slug, pass string, err error) {
	s.logger.Error(pass+" pass failed", "blueprint", slug, "error", err)
	result.Warnings = append(result.Warnings, pass+": "+err.Error())
}

func (s *Service) emit(ctx context.Context, eventType, site, slug string, details map[string]any) {
	if s.audits == nil {
		return
	}
	e := audit.Event{
		Type:      eventType,
		Site:      site,
		Blueprint: slug,
		Actor:     requestcontext.User(ctx),
		Details:   details,
	}
	if err := s.audits.Emit(ctx, e); err != nil {
		s.logger.Warn("audit emit failed", "type", eventType, "error", err)
	}
}

func mode(dryRun bool) string {
	if dryRun {
		return "dry_run"
	}
	return "apply"
}
