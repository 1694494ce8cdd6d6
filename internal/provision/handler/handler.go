// Package handler exposes the admin HTTP surface: provisioning runs, plan
// inspection, run logs, workspace hardening, visibility predicates, and the
// policy doctor.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"onboard/internal/docstore"
	"onboard/internal/platform/middleware"
	"onboard/internal/provision"
	"onboard/internal/transport/http/shared"
	"onboard/internal/workspace"
	"onboard/pkg/domainerrors"
	"onboard/pkg/requestcontext"
	"onboard/pkg/sentinel"
)

// Service is the provisioning operations the handler delegates to.
type Service interface {
	Provision(ctx context.Context, req provision.Request) (*provision.Result, error)
	PlanOnly(ctx context.Context, slug string) (*provision.Plan, error)
}

// Doctor produces the policy-versus-schema report.
type Doctor interface {
	Report(ctx context.Context) (*provision.DoctorReport, error)
}

// Hardener runs workspace visibility passes outside a provisioning run.
type Hardener interface {
	RestrictStandard(ctx context.Context, opts workspace.RestrictOptions) (*workspace.Summary, error)
	VerifyInvariants(ctx context.Context, allowedPrivateNoRoles []string) (*workspace.InvariantReport, error)
}

// Visibility serves the host's query-rewrite hook: the per-doctype filter
// fragment and the fine-grained permission check for sensitive doctypes.
type Visibility interface {
	Predicate(ctx context.Context, doctype, user string) (string, error)
	HasPermission(ctx context.Context, doc *docstore.Document, ptype, user string) (bool, error)
}

// Handler handles the admin endpoints.
type Handler struct {
	logger     *slog.Logger
	service    Service
	doctor     Doctor
	hardener   Hardener
	visibility Visibility
	store      docstore.Store
	validator  middleware.TokenValidator
}

func New(service Service, doctor Doctor, hardener Hardener, visibility Visibility,
	store docstore.Store, validator middleware.TokenValidator, logger *slog.Logger) *Handler {
	return &Handler{
		logger:     logger,
		service:    service,
		doctor:     doctor,
		hardener:   hardener,
		visibility: visibility,
		store:      store,
		validator:  validator,
	}
}

// Register mounts the admin routes. Everything under /admin requires a valid
// bearer token; /healthz stays open for probes.
func (h *Handler) Register(r chi.Router) {
	r.Get("/healthz", h.handleHealthz)

	admin := chi.NewRouter()
	admin.Use(middleware.Recovery(h.logger))
	admin.Use(middleware.RequestID)
	admin.Use(middleware.Logger(h.logger))
	admin.Use(middleware.Timeout(5 * time.Minute))
	admin.Use(middleware.RequireAuth(h.validator, h.logger))
	admin.Post("/provision", h.handleProvision)
	admin.Get("/provision/plan", h.handlePlan)
	admin.Get("/provision/logs", h.handleLogs)
	admin.Post("/workspaces/harden", h.handleHarden)
	admin.Get("/workspaces/invariants", h.handleInvariants)
	admin.Get("/visibility/predicate", h.handlePredicate)
	admin.Get("/visibility/permission", h.handlePermission)
	admin.Get("/doctor", h.handleDoctor)

	r.Mount("/admin", admin)
}

func (h *Handler) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	shared.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleProvision(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req provision.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, domainerrors.New(domainerrors.CodeBadRequest, "invalid request body"))
		return
	}
	if req.Slug == "" {
		shared.WriteError(w, domainerrors.New(domainerrors.CodeBadRequest, "blueprint is required"))
		return
	}

	result, err := h.service.Provision(ctx, req)
	if err != nil {
		h.logger.ErrorContext(ctx, "provision run failed",
			"blueprint", req.Slug,
			"dry_run", req.DryRun,
			"error", err,
			"request_id", middleware.GetRequestID(ctx),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handlePlan(w http.ResponseWriter, r *http.Request) {
	slug := r.URL.Query().Get("blueprint")
	if slug == "" {
		shared.WriteError(w, domainerrors.New(domainerrors.CodeBadRequest, "blueprint is required"))
		return
	}
	plan, err := h.service.PlanOnly(r.Context(), slug)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, plan)
}

func (h *Handler) handleLogs(w http.ResponseWriter, r *http.Request) {
	filters := docstore.Filters{}
	if slug := r.URL.Query().Get("blueprint"); slug != "" {
		filters["blueprint"] = slug
	}
	docs, err := h.store.List(r.Context(), "Provision Log", filters)
	if err != nil {
		shared.WriteError(w, domainerrors.Wrap(err, domainerrors.CodeInternal, "list provision logs"))
		return
	}
	logs := make([]map[string]any, 0, len(docs))
	for _, d := range docs {
		entry := map[string]any{"name": d.Name}
		for _, k := range []string{"site", "blueprint", "dry_run", "summary", "status", "commit_ref"} {
			entry[k] = d.Get(k)
		}
		logs = append(logs, entry)
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

type hardenRequest struct {
	DryRun         bool     `json:"dry_run"`
	IncludeModules []string `json:"include_modules,omitempty"`
	ExcludeNames   []string `json:"exclude_names,omitempty"`
}

func (h *Handler) handleHarden(w http.ResponseWriter, r *http.Request) {
	var req hardenRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			shared.WriteError(w, domainerrors.New(domainerrors.CodeBadRequest, "invalid request body"))
			return
		}
	}
	summary, err := h.hardener.RestrictStandard(r.Context(), workspace.RestrictOptions{
		DryRun:         req.DryRun,
		IncludeModules: req.IncludeModules,
		ExcludeNames:   req.ExcludeNames,
	})
	if err != nil {
		shared.WriteError(w, domainerrors.Wrap(err, domainerrors.CodeInternal, "workspace hardening failed"))
		return
	}
	shared.WriteJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleInvariants(w http.ResponseWriter, r *http.Request) {
	allowed := r.URL.Query()["allow"]
	report, err := h.hardener.VerifyInvariants(r.Context(), allowed)
	if err != nil {
		shared.WriteError(w, domainerrors.Wrap(err, domainerrors.CodeInternal, "invariant check failed"))
		return
	}
	shared.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) handlePredicate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	doctype := r.URL.Query().Get("doctype")
	if doctype == "" {
		shared.WriteError(w, domainerrors.New(domainerrors.CodeBadRequest, "doctype is required"))
		return
	}
	user := r.URL.Query().Get("user")
	if user == "" {
		user = requestcontext.User(ctx)
	}

	frag, err := h.visibility.Predicate(ctx, doctype, user)
	if err != nil {
		shared.WriteError(w, domainerrors.Wrap(err, domainerrors.CodeInternal, "predicate composition failed"))
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"doctype":      doctype,
		"user":         user,
		"predicate":    frag,
		"unrestricted": frag == "",
	})
}

func (h *Handler) handlePermission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	doctype, name := q.Get("doctype"), q.Get("name")
	if doctype == "" || name == "" {
		shared.WriteError(w, domainerrors.New(domainerrors.CodeBadRequest, "doctype and name are required"))
		return
	}
	user := q.Get("user")
	if user == "" {
		user = requestcontext.User(ctx)
	}
	ptype := q.Get("ptype")
	if ptype == "" {
		ptype = "read"
	}

	doc, err := h.store.Get(ctx, doctype, name)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			shared.WriteError(w, domainerrors.New(domainerrors.CodeNotFound, "document not found"))
		} else {
			shared.WriteError(w, domainerrors.Wrap(err, domainerrors.CodeInternal, "load document"))
		}
		return
	}
	allowed, err := h.visibility.HasPermission(ctx, doc, ptype, user)
	if err != nil {
		shared.WriteError(w, domainerrors.Wrap(err, domainerrors.CodeInternal, "permission check failed"))
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"doctype": doctype,
		"name":    name,
		"user":    user,
		"ptype":   ptype,
		"allowed": allowed,
	})
}

func (h *Handler) handleDoctor(w http.ResponseWriter, r *http.Request) {
	report, err := h.doctor.Report(r.Context())
	if err != nil {
		shared.WriteError(w, domainerrors.Wrap(err, domainerrors.CodeInternal, "doctor report failed"))
		return
	}
	shared.WriteJSON(w, http.StatusOK, report)
}
