// Package collab reacts to task assignments: depending on policy, an
// assignment grants the assignee write access to the task's project, either
// through a document share or through project membership. It also syncs the
// property setters behind the task project picker and project financial
// privacy.
package collab

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"

	"onboard/internal/docstore"
	"onboard/internal/policy"
)

// Assignment modes recognized in policy.collab.on_task_assignment.
const (
	ModeNone        = "none"
	ModeShareWrite  = "share_write"
	ModeProjectUser = "project_user"
)

type policySource interface {
	Load(ctx context.Context) *policy.Policy
}

// Service handles assignment lifecycle events. Every handler is best-effort:
// failures are logged and swallowed so the triggering write never fails.
type Service struct {
	store    docstore.Store
	policies policySource
	logger   *slog.Logger
}

func NewService(store docstore.Store, policies policySource, logger *slog.Logger) *Service {
	return &Service{store: store, policies: policies, logger: logger}
}

func (s *Service) mode(ctx context.Context) string {
	m := s.policies.Load(ctx).Collab.OnTaskAssignment
	if m == "" {
		return ModeNone
	}
	return m
}

// OnAssignmentCreated grants project access when a task assignment lands.
func (s *Service) OnAssignmentCreated(ctx context.Context, todo *docstore.Document) {
	mode := s.mode(ctx)
	if mode != ModeShareWrite && mode != ModeProjectUser {
		return
	}
	user := todo.GetString("allocated_to")
	if !s.validUser(ctx, user) {
		return
	}
	project := s.projectForTodo(ctx, todo)
	if project == "" {
		return
	}

	var err error
	switch mode {
	case ModeShareWrite:
		err = s.grantShareWrite(ctx, project, user)
	case ModeProjectUser:
		err = s.appendProjectUser(ctx, project, user)
	}
	if err != nil {
		s.logger.Error("assignment grant failed", "project", project, "user", user, "mode", mode, "error", err)
	}
}

// OnAssignmentRemoved downgrades access when the user's last assignment in
// the project goes away. Membership granted under project_user mode is kept;
// revoking it on unassignment is too aggressive for shared projects.
func (s *Service) OnAssignmentRemoved(ctx context.Context, todo *docstore.Document) {
	mode := s.mode(ctx)
	if mode != ModeShareWrite && mode != ModeProjectUser {
		return
	}
	user := todo.GetString("allocated_to")
	if !s.validUser(ctx, user) {
		return
	}
	project := s.projectForTodo(ctx, todo)
	if project == "" {
		return
	}

	other, err := s.hasOtherAssignmentInProject(ctx, user, project, todo.Name)
	if err != nil {
		s.logger.Error("assignment cleanup check failed", "project", project, "user", user, "error", err)
		return
	}
	if other {
		return
	}

	if mode == ModeShareWrite && user != "Administrator" {
		if err := s.downgradeShare(ctx, project, user); err != nil {
			s.logger.Error("share downgrade failed", "project", project, "user", user, "error", err)
		}
	}
}

func (s *Service) grantShareWrite(ctx context.Context, project, user string) error {
	existing, err := s.store.ExistsWhere(ctx, "DocShare", docstore.Filters{
		"share_doctype": docstore.DoctypeProject, "share_name": project, "user": user,
	})
	if err != nil {
		return err
	}
	if existing != "" {
		share, err := s.store.Get(ctx, "DocShare", existing)
		if err != nil {
			return err
		}
		if intValue(share.Get("read")) == 1 && intValue(share.Get("write")) == 1 {
			return nil
		}
		share.Set("read", 1)
		share.Set("write", 1)
		return s.store.Update(ctx, share)
	}
	_, err = s.store.Insert(ctx, &docstore.Document{
		Doctype: "DocShare",
		Name:    uuid.NewString(),
		Fields: docstore.Fields{
			"share_doctype": docstore.DoctypeProject,
			"share_name":    project,
			"user":          user,
			"read":          1,
			"write":         1,
		},
	})
	return err
}

func (s *Service) downgradeShare(ctx context.Context, project, user string) error {
	existing, err := s.store.ExistsWhere(ctx, "DocShare", docstore.Filters{
		"share_doctype": docstore.DoctypeProject, "share_name": project, "user": user,
	})
	if err != nil || existing == "" {
		return err
	}
	share, err := s.store.Get(ctx, "DocShare", existing)
	if err != nil {
		return err
	}
	if intValue(share.Get("write")) == 0 {
		return nil
	}
	share.Set("read", 1)
	share.Set("write", 0)
	return s.store.Update(ctx, share)
}

func (s *Service) appendProjectUser(ctx context.Context, project, user string) error {
	existing, err := s.store.ExistsWhere(ctx, "Project User", docstore.Filters{
		"parent": project, "parenttype": docstore.DoctypeProject, "user": user,
	})
	if err != nil || existing != "" {
		return err
	}
	proj, err := s.store.Get(ctx, docstore.DoctypeProject, project)
	if err != nil {
		return err
	}
	rows := proj.Rows("users")
	rows = append(rows, map[string]any{"user": user, "permission": "Write"})
	proj.Set("users", rows)
	if err := s.store.Update(ctx, proj); err != nil {
		return err
	}
	_, err = s.store.Insert(ctx, &docstore.Document{
		Doctype: "Project User",
		Name:    uuid.NewString(),
		Fields:  docstore.Fields{"parent": project, "parenttype": docstore.DoctypeProject, "user": user, "permission": "Write"},
	})
	return err
}

// hasOtherAssignmentInProject reports whether the user holds another task
// assignment inside the same project, excluding the given assignment record.
func (s *Service) hasOtherAssignmentInProject(ctx context.Context, user, project, excludeTodo string) (bool, error) {
	todos, err := s.store.List(ctx, docstore.DoctypeTodo, docstore.Filters{
		"reference_type": docstore.DoctypeTask, "allocated_to": user,
	})
	if err != nil {
		return false, err
	}
	for _, td := range todos {
		if td.Name == excludeTodo {
			continue
		}
		taskName := td.GetString("reference_name")
		if taskName == "" {
			continue
		}
		task, err := s.store.Get(ctx, docstore.DoctypeTask, taskName)
		if err != nil {
			continue
		}
		if task.GetString("project") == project {
			return true, nil
		}
	}
	return false, nil
}

func (s *Service) projectForTodo(ctx context.Context, todo *docstore.Document) string {
	if todo.GetString("reference_type") != docstore.DoctypeTask {
		return ""
	}
	taskName := todo.GetString("reference_name")
	if taskName == "" {
		return ""
	}
	task, err := s.store.Get(ctx, docstore.DoctypeTask, taskName)
	if err != nil {
		return ""
	}
	return task.GetString("project")
}

func (s *Service) validUser(ctx context.Context, user string) bool {
	if user == "" {
		return false
	}
	existing, err := s.store.ExistsWhere(ctx, "User", docstore.Filters{
		"name": user, "enabled": 1,
	})
	return err == nil && existing != ""
}

// EnsureTaskProjectPicker toggles the property setter that lets the task
// project picker ignore user permissions, when policy asks for it.
func (s *Service) EnsureTaskProjectPicker(ctx context.Context) error {
	if !s.policies.Load(ctx).Collab.IgnoreUserPermissionsOnTaskProject {
		return nil
	}
	existing, err := s.store.ExistsWhere(ctx, "Property Setter", docstore.Filters{
		"doc_type": docstore.DoctypeTask, "field_name": "project", "property": "ignore_user_permissions",
	})
	if err != nil || existing != "" {
		return err
	}
	_, err = s.store.Insert(ctx, &docstore.Document{
		Doctype: "Property Setter",
		Name:    uuid.NewString(),
		Fields: docstore.Fields{
			"doc_type":         docstore.DoctypeTask,
			"field_name":       "project",
			"doctype_or_field": "DocField",
			"property":         "ignore_user_permissions",
			"property_type":    "Check",
			"value":            "1",
		},
	})
	if err != nil {
		return fmt.Errorf("ensure task project picker: %w", err)
	}
	return nil
}

// EnsureProjectFinancialPrivacy raises the configured project fields to a
// permission level and grants read at that level to the configured roles.
// With strict_sync set, read grants at that level held by other roles are
// revoked.
func (s *Service) EnsureProjectFinancialPrivacy(ctx context.Context) error {
	cfg := s.policies.Load(ctx).ProjectFieldPrivacy
	if !cfg.Enabled || len(cfg.Fields) == 0 || len(cfg.Level1Roles) == 0 {
		return nil
	}
	permlevel := cfg.Permlevel
	if permlevel == 0 {
		permlevel = 1
	}
	createIfMissing := cfg.CreateIfMissing == nil || *cfg.CreateIfMissing

	for _, field := range cfg.Fields {
		ok, err := s.store.HasField(ctx, docstore.DoctypeProject, field)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := s.ensurePermlevelSetter(ctx, field, permlevel); err != nil {
			return err
		}
	}

	roles := map[string]struct{}{}
	for _, role := range cfg.Level1Roles {
		roles[role] = struct{}{}
		existing, err := s.store.ExistsWhere(ctx, "Custom DocPerm", docstore.Filters{
			"parent": docstore.DoctypeProject, "permlevel": permlevel, "role": role,
		})
		if err != nil {
			return err
		}
		if existing != "" {
			if err := s.store.SetValue(ctx, "Custom DocPerm", existing, "read", 1); err != nil {
				return err
			}
			continue
		}
		if !createIfMissing {
			continue
		}
		_, err = s.store.Insert(ctx, &docstore.Document{
			Doctype: "Custom DocPerm",
			Name:    uuid.NewString(),
			Fields: docstore.Fields{
				"parent":      docstore.DoctypeProject,
				"parenttype":  "DocType",
				"parentfield": "permissions",
				"role":        role,
				"permlevel":   permlevel,
				"read":        1,
			},
		})
		if err != nil {
			return err
		}
	}

	if cfg.StrictSync {
		others, err := s.store.List(ctx, "Custom DocPerm", docstore.Filters{
			"parent": docstore.DoctypeProject, "permlevel": permlevel, "read": 1,
		})
		if err != nil {
			return err
		}
		for _, perm := range others {
			if _, ok := roles[perm.GetString("role")]; ok {
				continue
			}
			if err := s.store.SetValue(ctx, "Custom DocPerm", perm.Name, "read", 0); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Service) ensurePermlevelSetter(ctx context.Context, field string, permlevel int) error {
	want := strconv.Itoa(permlevel)
	existing, err := s.store.ExistsWhere(ctx, "Property Setter", docstore.Filters{
		"doc_type": docstore.DoctypeProject, "field_name": field, "property": "permlevel",
	})
	if err != nil {
		return err
	}
	if existing != "" {
		cur, err := s.store.GetValue(ctx, "Property Setter", existing, "value")
		if err != nil {
			return err
		}
		if fmt.Sprint(cur) != want {
			return s.store.SetValue(ctx, "Property Setter", existing, "value", want)
		}
		return nil
	}
	_, err = s.store.Insert(ctx, &docstore.Document{
		Doctype: "Property Setter",
		Name:    uuid.NewString(),
		Fields: docstore.Fields{
			"doc_type":         docstore.DoctypeProject,
			"field_name":       field,
			"doctype_or_field": "DocField",
			"property":         "permlevel",
			"property_type":    "Int",
			"value":            want,
		},
	})
	return err
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
