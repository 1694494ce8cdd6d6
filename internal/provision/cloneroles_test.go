package provision

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"

	"onboard/internal/blueprint"
	"onboard/internal/docstore"
	"onboard/internal/policy"
	domainerrors "onboard/pkg/domainerrors"
)

type CloneRolesSuite struct {
	suite.Suite

	ctx      context.Context
	store    *docstore.InMemory
	root     string
	siblings *Siblings
}

func TestCloneRolesSuite(t *testing.T) {
	suite.Run(t, new(CloneRolesSuite))
}

func (s *CloneRolesSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = docstore.NewInMemory()
	s.root = s.T().TempDir()
	s.siblings = NewSiblings(blueprint.NewLoader(s.root), s.store, staticPolicy{policy.Default()},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func (s *CloneRolesSuite) seedRole(name string) {
	_, err := s.store.Insert(s.ctx, &docstore.Document{
		Doctype: "Role", Name: name, Fields: docstore.Fields{"role_name": name, "desk_access": 1},
	})
	s.Require().NoError(err)
}

func (s *CloneRolesSuite) seedPerm(role, parent string, permlevel int, flags docstore.Fields) {
	fields := docstore.Fields{
		"parent": parent, "parenttype": "DocType", "parentfield": "permissions",
		"role": role, "permlevel": permlevel,
	}
	for k, v := range flags {
		fields[k] = v
	}
	_, err := s.store.Insert(s.ctx, &docstore.Document{
		Doctype: "Custom DocPerm", Name: role + "-" + parent, Fields: fields,
	})
	s.Require().NoError(err)
}

func (s *CloneRolesSuite) TestCloneUnionsBasePermissions() {
	s.seedRole("Sales User")
	s.seedRole("Projects User")
	s.seedPerm("Sales User", "Customer", 0, docstore.Fields{"read": 1, "write": 1})
	s.seedPerm("Projects User", "Task", 0, docstore.Fields{"read": 1})

	s.writeRolesFile(`
roles:
  - name: Field Agent
    clone_from: [Sales User, Projects User]
    desk_access: true
`)
	summary, err := s.siblings.CloneRoles(s.ctx, "acme", false)
	s.Require().NoError(err)
	s.Equal([]string{"Field Agent"}, summary.CreatedRoles)
	s.Equal(2, summary.CreatedPerms)

	perms, err := s.store.List(s.ctx, "Custom DocPerm", docstore.Filters{"role": "Field Agent"})
	s.Require().NoError(err)
	s.Require().Len(perms, 2)
	byParent := map[string]*docstore.Document{}
	for _, p := range perms {
		byParent[p.GetString("parent")] = p
	}
	s.Equal(1, byParent["Customer"].Get("write"))
	s.Equal(1, byParent["Task"].Get("read"))
	s.Nil(byParent["Task"].Get("write"))
}

func (s *CloneRolesSuite) TestCloneMergesFlagsByOR() {
	s.seedRole("Sales User")
	s.seedRole("Field Agent")
	s.seedPerm("Sales User", "Customer", 0, docstore.Fields{"read": 1, "write": 1})
	s.seedPerm("Field Agent", "Customer", 0, docstore.Fields{"read": 1, "write": 0, "export": 1})

	s.writeRolesFile(`
roles:
  - name: Field Agent
    clone_from: [Sales User]
`)
	summary, err := s.siblings.CloneRoles(s.ctx, "acme", false)
	s.Require().NoError(err)
	s.Equal(0, summary.CreatedPerms)
	s.Equal(1, summary.UpdatedPerms)

	perm, err := s.store.Get(s.ctx, "Custom DocPerm", "Field Agent-Customer")
	s.Require().NoError(err)
	s.Equal(1, perm.Get("write"), "flags merge by OR, never revoke")
	s.Equal(1, perm.Get("export"), "flags the source lacks stay set")
}

func (s *CloneRolesSuite) TestDryRunWritesNothing() {
	s.seedRole("Sales User")
	s.seedPerm("Sales User", "Customer", 0, docstore.Fields{"read": 1})

	s.writeRolesFile(`
roles:
  - name: Field Agent
    clone_from: [Sales User]
`)
	summary, err := s.siblings.CloneRoles(s.ctx, "acme", true)
	s.Require().NoError(err)
	s.True(summary.DryRun)
	s.Equal([]string{"Field Agent"}, summary.CreatedRoles)
	s.Equal(1, summary.CreatedPerms)

	exists, err := s.store.Exists(s.ctx, "Role", "Field Agent")
	s.Require().NoError(err)
	s.False(exists)
}

func (s *CloneRolesSuite) TestPermlevelsStayDistinct() {
	s.seedRole("Sales User")
	s.seedPerm("Sales User", "Customer", 0, docstore.Fields{"read": 1})
	_, err := s.store.Insert(s.ctx, &docstore.Document{
		Doctype: "Custom DocPerm", Name: "Sales User-Customer-1", Fields: docstore.Fields{
			"parent": "Customer", "parenttype": "DocType", "parentfield": "permissions",
			"role": "Sales User", "permlevel": 1, "read": 1,
		},
	})
	s.Require().NoError(err)

	s.writeRolesFile(`
roles:
  - name: Field Agent
    clone_from: [Sales User]
`)
	summary, err := s.siblings.CloneRoles(s.ctx, "acme", false)
	s.Require().NoError(err)
	s.Equal(2, summary.CreatedPerms)
}

func (s *CloneRolesSuite) TestMissingCloneFromIsFatal() {
	s.writeRolesFile(`
roles:
  - name: Field Agent
`)
	_, err := s.siblings.CloneRoles(s.ctx, "acme", false)
	s.Require().Error(err)
	s.Equal(domainerrors.CodeBadRequest, domainerrors.CodeOf(err))
}

func (s *CloneRolesSuite) TestNoCloneRowsIsNoop() {
	s.writeRolesFile(`
roles:
  - role: Plain Role
`)
	summary, err := s.siblings.CloneRoles(s.ctx, "acme", false)
	s.Require().NoError(err)
	s.Nil(summary)
}

func (s *CloneRolesSuite) writeRolesFile(content string) {
	s.T().Helper()
	dir := filepath.Join(s.root, "acme")
	s.Require().NoError(os.MkdirAll(dir, 0o755))
	s.Require().NoError(os.WriteFile(filepath.Join(dir, "roles.yaml"), []byte(content), 0o644))
}
