package hooks

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
	"onboard/internal/collab"
	"onboard/internal/docstore"
	"onboard/internal/letterhead"
	"onboard/internal/policy"
	"onboard/internal/provision"
	"onboard/internal/workspace"
	"onboard/pkg/requestcontext"
)

type staticPolicy struct{ p *policy.Policy }

func (s staticPolicy) Load(context.Context) *policy.Policy { return s.p }

type noopScopes struct{}

func (noopScopes) Invalidate(context.Context) {}

type HooksSuite struct {
	suite.Suite

	ctx    context.Context
	store  *docstore.InMemory
	root   string
	runner *Runner
}

func TestHooksSuite(t *testing.T) {
	suite.Run(t, new(HooksSuite))
}

func (s *HooksSuite) SetupTest() {
	s.ctx = requestcontext.WithSite(context.Background(), "acme.example")
	s.ctx = requestcontext.WithUser(s.ctx, "Administrator")
	s.store = docstore.NewInMemory()
	s.root = s.T().TempDir()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	loader := blueprint.NewLoader(s.root)
	policies := staticPolicy{policy.Default()}
	hardener := workspace.NewHardener(s.store)
	svc := provision.NewService(provision.Config{
		Loader:      loader,
		Store:       s.store,
		Tx:          docstore.NoTx{},
		Hardener:    hardener,
		Letterheads: letterhead.NewApplier(loader, s.store, letterhead.NewMemoryFileStore(), logger),
		Audits:      audit.NewPublisher(audit.NewMemory(), nil),
		Scopes:      noopScopes{},
		Logger:      logger,
		Policies:    policies,
	})
	s.runner = NewRunner(loader, s.store, svc, hardener, collab.NewService(s.store, policies, logger), logger)
}

func (s *HooksSuite) write(rel, content string) {
	path := filepath.Join(s.root, "acme", rel)
	s.Require().NoError(os.MkdirAll(filepath.Dir(path), 0o755))
	s.Require().NoError(os.WriteFile(path, []byte(content), 0o644))
}

func (s *HooksSuite) seedBlueprint() {
	s.write("workspaces.yaml", `
docs:
  - doctype: Workspace
    name: Home
    label: Home
    module: Onboard CRM
    public: 1
  - doctype: Company
    name: Acme GmbH
    abbr: AG
`)
}

func (s *HooksSuite) TestAfterInstallRemembersAndProvisions() {
	s.seedBlueprint()

	s.runner.AfterInstall(s.ctx, "acme")

	s.Equal("acme", s.runner.RememberedBlueprint(s.ctx))
	ok, err := s.store.Exists(s.ctx, docstore.DoctypeCompany, "Acme GmbH")
	s.Require().NoError(err)
	s.True(ok)

	// Hardening stays off: Home keeps its public flag.
	public, err := s.store.GetValue(s.ctx, docstore.DoctypeWorkspace, "Home", "public")
	s.Require().NoError(err)
	s.Equal(1, public)
}

func (s *HooksSuite) TestAfterInstallSkipsWithoutSlug() {
	s.runner.AfterInstall(s.ctx, "")
	s.Empty(s.runner.RememberedBlueprint(s.ctx))
}

func (s *HooksSuite) TestAfterInstallFallsBackToDefaultSlug() {
	s.seedBlueprint()
	s.runner.DefaultSlug = "acme"

	s.runner.AfterInstall(s.ctx, "")

	s.Equal("acme", s.runner.RememberedBlueprint(s.ctx))
}

func (s *HooksSuite) TestRememberBlueprintOverwrites() {
	s.Require().NoError(s.runner.RememberBlueprint(s.ctx, "acme"))
	s.Require().NoError(s.runner.RememberBlueprint(s.ctx, "globex"))
	s.Equal("globex", s.runner.RememberedBlueprint(s.ctx))
}

func (s *HooksSuite) TestAfterMigrateRestoresHomeWorkspace() {
	s.seedBlueprint()
	s.runner.AfterInstall(s.ctx, "acme")

	// A migration mangled the Home workspace.
	s.Require().NoError(s.store.SetValue(s.ctx, docstore.DoctypeWorkspace, "Home", "label", "Scrambled"))
	s.Require().NoError(s.store.SetValue(s.ctx, docstore.DoctypeWorkspace, "Home", "content", ""))

	s.runner.AfterMigrate(s.ctx)

	label, err := s.store.GetValue(s.ctx, docstore.DoctypeWorkspace, "Home", "label")
	s.Require().NoError(err)
	s.Equal("Home", label)
	content, err := s.store.GetValue(s.ctx, docstore.DoctypeWorkspace, "Home", "content")
	s.Require().NoError(err)
	s.Equal("[]", content)
}

func (s *HooksSuite) TestAfterMigrateToleratesEmptySite() {
	// No remembered blueprint, no documents. Every pass degrades quietly.
	s.runner.AfterMigrate(s.ctx)

	ok, err := s.store.Exists(s.ctx, settingsDoctype, settingsDoctype)
	s.Require().NoError(err)
	s.False(ok)
}

func (s *HooksSuite) TestAfterMigrateSyncsCollabSetters() {
	s.seedBlueprint()
	s.runner.AfterInstall(s.ctx, "acme")

	s.runner.AfterMigrate(s.ctx)

	name, err := s.store.ExistsWhere(s.ctx, "Property Setter", docstore.Filters{
		"doc_type": docstore.DoctypeTask, "field_name": "project",
		"property": "ignore_user_permissions",
	})
	s.Require().NoError(err)
	s.NotEmpty(name)
}
