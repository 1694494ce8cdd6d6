package provision

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"

	"onboard/internal/audit"
	"onboard/internal/blueprint"
	"onboard/internal/docstore"
	"onboard/internal/letterhead"
	"onboard/internal/policy"
	"onboard/internal/workspace"
	"onboard/pkg/requestcontext"
)

type noopScopes struct{ calls int }

func (n *noopScopes) Invalidate(context.Context) { n.calls++ }

type ServiceSuite struct {
	suite.Suite

	ctx    context.Context
	store  *docstore.InMemory
	root   string
	events *audit.Memory
	scopes *noopScopes
	files  *letterhead.MemoryFileStore
	svc    *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = requestcontext.WithSite(context.Background(), "acme.example")
	s.ctx = requestcontext.WithUser(s.ctx, "admin@acme.example")
	s.store = docstore.NewInMemory()
	s.root = s.T().TempDir()
	s.events = audit.NewMemory()
	s.scopes = &noopScopes{}
	s.files = letterhead.NewMemoryFileStore()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	loader := blueprint.NewLoader(s.root)
	s.svc = NewService(Config{
		Loader:      loader,
		Store:       s.store,
		Tx:          docstore.NoTx{},
		Hardener:    workspace.NewHardener(s.store),
		Letterheads: letterhead.NewApplier(loader, s.store, s.files, logger),
		Audits:      audit.NewPublisher(s.events, nil),
		Scopes:      s.scopes,
		Logger:      logger,
		Policies:    staticPolicy{policy.Default()},
	})
}

func (s *ServiceSuite) write(rel, content string) {
	path := filepath.Join(s.root, "acme", rel)
	s.Require().NoError(os.MkdirAll(filepath.Dir(path), 0o755))
	s.Require().NoError(os.WriteFile(path, []byte(content), 0o644))
}

func (s *ServiceSuite) seedBlueprint() {
	s.write("10_companies_docs.yaml", `
docs:
  - doctype: Company
    name: Acme GmbH
    abbr: AG
    default_currency: EUR
  - doctype: Workspace
    name: CRM
    label: CRM
    module: Onboard CRM
    public: 1
`)
	s.write("role_profiles.yaml", `
role_profiles:
  - name: Sales Staff
    roles: [Sales User]
`)
	s.write("users.yaml", `
users:
  - email: jo@acme.example
    role_profile: Sales Staff
    company: Acme GmbH
`)
}

func (s *ServiceSuite) TestDryRunPlansWithoutWriting() {
	s.seedBlueprint()

	res, err := s.svc.Provision(s.ctx, Request{Slug: "acme", DryRun: true, HardenWorkspaces: true})
	s.Require().NoError(err)
	s.Equal("Create: 2, Update: 0, Noop: 0", res.Summary)
	s.Require().NotNil(res.Plan)
	s.Nil(res.Applied)

	ok, err := s.store.Exists(s.ctx, docstore.DoctypeCompany, "Acme GmbH")
	s.Require().NoError(err)
	s.False(ok)

	// The dry run still writes its run log and audit trail.
	s.NotEmpty(res.LogName)
	events := s.events.Events()
	s.Require().Len(events, 1)
	s.Equal(audit.TypeProvisionDryRun, events[0].Type)
	s.Equal("acme.example", events[0].Site)
	s.Equal(0, s.scopes.calls)
}

func (s *ServiceSuite) TestApplyRunsWholePipeline() {
	s.seedBlueprint()

	res, err := s.svc.Provision(s.ctx, Request{Slug: "acme", HardenWorkspaces: true})
	s.Require().NoError(err)
	s.Require().NotNil(res.Applied)
	s.Len(res.Applied.Created, 2)

	// Documents landed.
	company, err := s.store.Get(s.ctx, docstore.DoctypeCompany, "Acme GmbH")
	s.Require().NoError(err)
	s.Equal("AG", company.GetString("abbr"))

	// The workspace was hardened and its module registered.
	public, err := s.store.GetValue(s.ctx, docstore.DoctypeWorkspace, "CRM", "public")
	s.Require().NoError(err)
	s.Equal(0, public)
	s.Require().NotNil(res.WorkspaceHardening)
	s.Contains(res.WorkspaceHardening.ChangedNames, "CRM")
	ok, err := s.store.Exists(s.ctx, "Module Def", "Onboard CRM")
	s.Require().NoError(err)
	s.True(ok)

	// Sibling passes ran: role profile, user, allow-list grant.
	user, err := s.store.Get(s.ctx, "User", "jo@acme.example")
	s.Require().NoError(err)
	s.Contains(roleSet(user.Rows("roles")), "Sales User")
	grant, err := s.store.ExistsWhere(s.ctx, docstore.DoctypeUserPerm, docstore.Filters{
		"user": "jo@acme.example", "allow": docstore.DoctypeCompany,
	})
	s.Require().NoError(err)
	s.NotEmpty(grant)

	// Workspace JSON invariants hold after the run.
	for _, field := range docstore.WorkspaceJSONFields {
		v, err := s.store.GetValue(s.ctx, docstore.DoctypeWorkspace, "CRM", field)
		s.Require().NoError(err)
		s.Equal("[]", v)
	}

	// Cached scopes were invalidated, the run logged and audited.
	s.Equal(1, s.scopes.calls)
	s.NotEmpty(res.LogName)
	log, err := s.store.Get(s.ctx, "Provision Log", res.LogName)
	s.Require().NoError(err)
	s.Equal(StatusSuccess, log.GetString("status"))
	events := s.events.Events()
	s.Require().Len(events, 1)
	s.Equal(audit.TypeProvisionApplied, events[0].Type)
	s.Equal("admin@acme.example", events[0].Actor)
}

func (s *ServiceSuite) TestSecondApplyIsNoop() {
	s.seedBlueprint()

	_, err := s.svc.Provision(s.ctx, Request{Slug: "acme", HardenWorkspaces: true})
	s.Require().NoError(err)

	res, err := s.svc.Provision(s.ctx, Request{Slug: "acme", HardenWorkspaces: true})
	s.Require().NoError(err)
	s.Empty(res.Applied.Created)
	s.Empty(res.Applied.Updated)
}

func (s *ServiceSuite) TestMalformedBlueprintFailsAndLogsNothingApplied() {
	s.write("10_companies_docs.yaml", `
docs:
  - doctype: Company
`)
	_, err := s.svc.Provision(s.ctx, Request{Slug: "acme"})
	s.Require().Error(err)

	ok, err := s.store.Exists(s.ctx, docstore.DoctypeCompany, "Acme GmbH")
	s.Require().NoError(err)
	s.False(ok)
}

func (s *ServiceSuite) TestLetterheadFailureDoesNotAbortRun() {
	s.seedBlueprint()
	// A letterhead referencing a missing asset fails its own pass but must
	// not take the reconciliation down with it.
	s.write("letterheads.yaml", `
letterheads:
  - name: Acme Letter Head
    image: /files/letterheads/acme.png
    source_path: acme.png
`)

	res, err := s.svc.Provision(s.ctx, Request{Slug: "acme"})
	s.Require().NoError(err)
	s.Require().NotNil(res)
	s.Len(res.Applied.Created, 2)

	ok, err := s.store.Exists(s.ctx, docstore.DoctypeCompany, "Acme GmbH")
	s.Require().NoError(err)
	s.True(ok)

	s.Require().NotEmpty(res.Warnings)
	s.Contains(res.Warnings[0], "letterheads:")
	s.Contains(res.Warnings[0], "acme.png")

	// The run still logs SUCCESS, with the warning on the log summary, and
	// the applied audit event carries the warnings.
	log, err := s.store.Get(s.ctx, "Provision Log", res.LogName)
	s.Require().NoError(err)
	s.Equal(StatusSuccess, log.GetString("status"))
	s.Contains(log.GetString("summary"), "warnings:")
	events := s.events.Events()
	s.Require().Len(events, 1)
	s.Equal(audit.TypeProvisionApplied, events[0].Type)
	s.NotNil(events[0].Details["warnings"])
}

func (s *ServiceSuite) TestCoreFailureEmitsFailedAudit() {
	s.seedBlueprint()
	// Cloning from a role that does not exist is a fatal configuration error.
	s.write("roles.yaml", `
roles:
  - name: Field Agent
    clone_from: [Ghost Role]
`)

	_, err := s.svc.Provision(s.ctx, Request{Slug: "acme"})
	s.Require().Error(err)

	events := s.events.Events()
	s.Require().Len(events, 1)
	s.Equal(audit.TypeProvisionFailed, events[0].Type)
}

func (s *ServiceSuite) TestHardenOverridePinsBehavior() {
	s.seedBlueprint()
	off := false
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	loader := blueprint.NewLoader(s.root)
	svc := NewService(Config{
		Loader:         loader,
		Store:          s.store,
		Tx:             docstore.NoTx{},
		Hardener:       workspace.NewHardener(s.store),
		Letterheads:    letterhead.NewApplier(loader, s.store, s.files, logger),
		Logger:         logger,
		Policies:       staticPolicy{policy.Default()},
		HardenOverride: &off,
	})

	res, err := svc.Provision(s.ctx, Request{Slug: "acme", HardenWorkspaces: true})
	s.Require().NoError(err)
	s.Nil(res.WorkspaceHardening)

	public, err := s.store.GetValue(s.ctx, docstore.DoctypeWorkspace, "CRM", "public")
	s.Require().NoError(err)
	s.Equal(1, public)
}

func (s *ServiceSuite) TestPlanOnlySkipsRoleProfileDocs() {
	s.write("10_docs.yaml", `
docs:
  - doctype: Company
    name: Acme GmbH
  - doctype: Role Profile
    name: Sales Staff
`)
	plan, err := s.svc.PlanOnly(s.ctx, "acme")
	s.Require().NoError(err)
	s.Require().Len(plan.Create, 1)
	s.Equal(docstore.DoctypeCompany, plan.Create[0].Doctype)
}

func (s *ServiceSuite) TestBrokenModuleProfileChainFailsRun() {
	s.seedBlueprint()
	s.write("module_profiles.yaml", `
module_profiles:
  - name: Broken
    extends: Ghost
    modules: [CRM]
`)
	_, err := s.svc.Provision(s.ctx, Request{Slug: "acme"})
	s.Require().Error(err)
}
