package provision

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"onboard/internal/blueprint"
	"onboard/internal/docstore"
	"onboard/internal/policy"
)

// policySource is satisfied by policy.Source.
type policySource interface {
	Load(ctx context.Context) *policy.Policy
}

// Siblings applies the fixed-schema companion files that ride alongside a
// blueprint's docs files: companies, brands, roles, role profiles, users.
// Each applier is an idempotent upsert pass.
type Siblings struct {
	loader   *blueprint.Loader
	store    docstore.Store
	policies policySource
	logger   *slog.Logger
}

func NewSiblings(loader *blueprint.Loader, store docstore.Store, policies policySource, logger *slog.Logger) *Siblings {
	return &Siblings{loader: loader, store: store, policies: policies, logger: logger}
}

// ApplyCompanies upserts companies.yaml rows. Existing companies only get
// their abbr and currency refreshed.
func (s *Siblings) ApplyCompanies(ctx context.Context, slug string) error {
	cfg, err := s.loader.Companies(slug)
	if err != nil {
		return err
	}
	for _, c := range cfg.Companies {
		if c.CompanyName == "" {
			continue
		}
		exists, err := s.store.Exists(ctx, docstore.DoctypeCompany, c.CompanyName)
		if err != nil {
			return err
		}
		if exists {
			if c.Abbr != "" {
				if err := s.store.SetValue(ctx, docstore.DoctypeCompany, c.CompanyName, "abbr", c.Abbr); err != nil {
					return err
				}
			}
			if c.DefaultCurrency != "" {
				if err := s.store.SetValue(ctx, docstore.DoctypeCompany, c.CompanyName, "default_currency", c.DefaultCurrency); err != nil {
					return err
				}
			}
			continue
		}
		_, err = s.store.Insert(ctx, &docstore.Document{
			Doctype: docstore.DoctypeCompany,
			Name:    c.CompanyName,
			Fields: docstore.Fields{
				"company_name":     c.CompanyName,
				"abbr":             c.Abbr,
				"default_currency": c.DefaultCurrency,
			},
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// ApplyBrands creates brands.yaml rows that do not exist yet; existing brands
// are left alone.
func (s *Siblings) ApplyBrands(ctx context.Context, slug string) error {
	cfg, err := s.loader.Brands(slug)
	if err != nil {
		return err
	}
	for _, b := range cfg.Brands {
		if b.Brand == "" {
			continue
		}
		exists, err := s.store.Exists(ctx, docstore.DoctypeBrand, b.Brand)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		_, err = s.store.Insert(ctx, &docstore.Document{
			Doctype: docstore.DoctypeBrand,
			Name:    b.Brand,
			Fields:  docstore.Fields{"brand": b.Brand},
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// brandTargets are the doctypes that get a brand link field when any policy
// entry scopes by brand.
var brandTargets = []string{
	"Lead", "Opportunity", "Customer", "Quotation", "Sales Order",
	"Project", "Task", "Employee", "Job Applicant", "Job Opening",
}

// ApplyBrandCustomFields adds the brand link field to the scoped doctypes,
// but only when the active policy actually scopes something by brand.
func (s *Siblings) ApplyBrandCustomFields(ctx context.Context) error {
	pol := s.policies.Load(ctx)
	needsBrand := false
	for _, cfg := range pol.PQCDoctypes {
		if strings.TrimSpace(cfg.BrandField) != "" {
			needsBrand = true
			break
		}
	}
	if !needsBrand {
		return nil
	}
	for _, dt := range brandTargets {
		if err := s.ensureCustomField(ctx, dt, "brand", "Brand", "Link", docstore.DoctypeBrand, "company"); err != nil {
			return err
		}
	}
	return nil
}

// ensureCustomField registers a custom field document and extends the
// doctype's schema. Already-registered fields are left untouched.
func (s *Siblings) ensureCustomField(ctx context.Context, doctype, fieldname, label, fieldtype, options, insertAfter string) error {
	cfName := doctype + "-" + fieldname
	exists, err := s.store.Exists(ctx, "Custom Field", cfName)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if insertAfter != "" {
		ok, err := s.store.HasField(ctx, doctype, insertAfter)
		if err != nil {
			return err
		}
		if !ok {
			insertAfter = ""
		}
	}
	fields := docstore.Fields{
		"dt":        doctype,
		"fieldname": fieldname,
		"label":     label,
		"fieldtype": fieldtype,
		"options":   options,
	}
	if insertAfter != "" {
		fields["insert_after"] = insertAfter
	}
	if _, err := s.store.Insert(ctx, &docstore.Document{Doctype: "Custom Field", Name: cfName, Fields: fields}); err != nil {
		return err
	}
	return s.store.AddField(ctx, doctype, docstore.FieldDef{
		Fieldname: fieldname,
		Fieldtype: fieldtype,
		Options:   options,
	})
}

// EnsureBaselines seeds the stock warehouse types a fresh tenant expects.
// Failures here are logged, never fatal.
func (s *Siblings) EnsureBaselines(ctx context.Context) {
	for _, wt := range []string{"Transit", "Finished Goods", "Work In Progress", "Stores"} {
		exists, err := s.store.Exists(ctx, "Warehouse Type", wt)
		if err != nil || exists {
			continue
		}
		_, err = s.store.Insert(ctx, &docstore.Document{
			Doctype: "Warehouse Type",
			Name:    wt,
			Fields:  docstore.Fields{"warehouse_type_name": wt},
		})
		if err != nil {
			s.logger.Warn("seed warehouse type failed", "name", wt, "error", err)
		}
	}
}

// EnsureModuleDefs registers a Module Def for every module referenced by a
// workspace in the desired set.
func (s *Siblings) EnsureModuleDefs(ctx context.Context, docs []*docstore.Document, appName string) error {
	seen := map[string]struct{}{}
	var modules []string
	for _, d := range docs {
		if d.Doctype != docstore.DoctypeWorkspace {
			continue
		}
		m := d.GetString("module")
		if m == "" {
			continue
		}
		if _, ok := seen[m]; !ok {
			seen[m] = struct{}{}
			modules = append(modules, m)
		}
	}
	sort.Strings(modules)

	for _, m := range modules {
		existing, err := s.store.ExistsWhere(ctx, "Module Def", docstore.Filters{"module_name": m})
		if err != nil {
			return err
		}
		if existing != "" {
			continue
		}
		_, err = s.store.Insert(ctx, &docstore.Document{
			Doctype: "Module Def",
			Name:    m,
			Fields:  docstore.Fields{"module_name": m, "app_name": appName},
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// ApplyRoles upserts roles.yaml rows on the simple path: role name plus desk
// access. Rows without a role key belong to the cloning path and are skipped.
func (s *Siblings) ApplyRoles(ctx context.Context, slug string) error {
	cfg, err := s.loader.Roles(slug)
	if err != nil {
		return err
	}
	for _, r := range cfg.Roles {
		if r.Role == "" {
			continue
		}
		deskAccess := 0
		if r.DeskAccess.Or(true) {
			deskAccess = 1
		}
		exists, err := s.store.Exists(ctx, "Role", r.Role)
		if err != nil {
			return err
		}
		if exists {
			if err := s.store.SetValue(ctx, "Role", r.Role, "desk_access", deskAccess); err != nil {
				return err
			}
			continue
		}
		_, err = s.store.Insert(ctx, &docstore.Document{
			Doctype: "Role",
			Name:    r.Role,
			Fields:  docstore.Fields{"role_name": r.Role, "desk_access": deskAccess},
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// ApplyRoleProfiles upserts role_profiles.yaml. Roles are unioned into the
// profile; with unionOnly off, roles not named in the file are removed.
func (s *Siblings) ApplyRoleProfiles(ctx context.Context, slug string, unionOnly bool) (created, updated int, err error) {
	cfg, err := s.loader.RoleProfiles(slug)
	if err != nil {
		return 0, 0, err
	}
	for _, rp := range cfg.RoleProfiles {
		if rp.Name == "" {
			continue
		}
		desired := dedupe(rp.Roles)

		doc, err := s.store.Get(ctx, docstore.DoctypeRoleProfile, rp.Name)
		isNew := err != nil
		if isNew {
			doc = &docstore.Document{
				Doctype: docstore.DoctypeRoleProfile,
				Name:    rp.Name,
				Fields:  docstore.Fields{"role_profile": rp.Name},
			}
		}

		have := roleSet(doc.Rows("roles"))
		var added []string
		for _, r := range desired {
			if _, ok := have[r]; !ok {
				added = append(added, r)
			}
		}

		rows := doc.Rows("roles")
		for _, r := range added {
			rows = append(rows, map[string]any{"role": r})
		}
		removed := false
		if !unionOnly {
			keep := map[string]struct{}{}
			for _, r := range desired {
				keep[r] = struct{}{}
			}
			kept := rows[:0]
			for _, row := range rows {
				if role, _ := row["role"].(string); role != "" {
					if _, ok := keep[role]; !ok {
						removed = true
						continue
					}
				}
				kept = append(kept, row)
			}
			rows = kept
		}
		doc.Set("roles", rows)

		if isNew {
			if _, err := s.store.Insert(ctx, doc); err != nil {
				return created, updated, err
			}
			created++
		} else {
			if err := s.store.Update(ctx, doc); err != nil {
				return created, updated, err
			}
			if len(added) > 0 || removed {
				updated++
			}
		}
	}
	return created, updated, nil
}

// ApplyUsers upserts users.yaml rows and grants each user's company and brand
// allow-list entries.
func (s *Siblings) ApplyUsers(ctx context.Context, slug string) error {
	cfg, err := s.loader.Users(slug)
	if err != nil {
		return err
	}
	for _, u := range cfg.Users {
		if u.Email == "" {
			continue
		}
		if err := s.ensureUser(ctx, u, cfg.Defaults); err != nil {
			return err
		}
		if u.Company != "" {
			if err := s.ensureUserPermission(ctx, u.Email, docstore.DoctypeCompany, u.Company); err != nil {
				return err
			}
		}
		for _, b := range u.BrandScope {
			if b == "" || b == "All" {
				continue
			}
			if err := s.ensureUserPermission(ctx, u.Email, docstore.DoctypeBrand, b); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Siblings) ensureUser(ctx context.Context, u blueprint.UserSpec, defaults blueprint.UserDefaults) error {
	doc, err := s.store.Get(ctx, "User", u.Email)
	isNew := err != nil
	if isNew {
		doc = &docstore.Document{Doctype: "User", Name: u.Email, Fields: docstore.Fields{}}
	}

	firstName := u.FullName
	if firstName == "" {
		firstName = strings.SplitN(u.Email, "@", 2)[0]
	}
	language := u.Language
	if language == "" {
		language = defaults.Language
	}
	timeZone := u.TimeZone
	if timeZone == "" {
		timeZone = defaults.TimeZone
	}
	userType := "Website User"
	if u.IsDeskUser.Or(true) {
		userType = "System User"
	}

	doc.Set("email", u.Email)
	doc.Set("first_name", firstName)
	doc.Set("language", language)
	doc.Set("time_zone", timeZone)
	doc.Set("enabled", 1)
	doc.Set("send_welcome_email", 0)
	doc.Set("user_type", userType)

	targetRoles := map[string]struct{}{}
	var profiles []string
	if u.RoleProfile != "" {
		profiles = append(profiles, u.RoleProfile)
	}
	profiles = append(profiles, u.RoleProfiles...)
	for _, rpName := range profiles {
		if rpName == "" {
			continue
		}
		rp, err := s.store.Get(ctx, docstore.DoctypeRoleProfile, rpName)
		if err != nil {
			s.logger.Warn("role profile not found", "role_profile", rpName, "user", u.Email)
			continue
		}
		for _, row := range rp.Rows("roles") {
			if role, _ := row["role"].(string); role != "" {
				targetRoles[role] = struct{}{}
			}
		}
	}
	for _, r := range u.Roles {
		if r != "" {
			targetRoles[r] = struct{}{}
		}
	}

	rows := doc.Rows("roles")
	have := roleSet(rows)
	var missing []string
	for r := range targetRoles {
		if _, ok := have[r]; !ok {
			missing = append(missing, r)
		}
	}
	sort.Strings(missing)
	for _, r := range missing {
		rows = append(rows, map[string]any{"role": r})
	}
	if len(rows) > 0 {
		doc.Set("roles", rows)
	}

	if isNew {
		_, err := s.store.Insert(ctx, doc)
		return err
	}
	return s.store.Update(ctx, doc)
}

// ensureUserPermission grants one allow-list row. The target record must
// exist; grants to unknown values are skipped, matching an onboarding run
// where users land before their companies are renamed.
func (s *Siblings) ensureUserPermission(ctx context.Context, user, allow, forValue string) error {
	targetExists, err := s.store.Exists(ctx, allow, forValue)
	if err != nil {
		return err
	}
	if !targetExists {
		return nil
	}
	existing, err := s.store.ExistsWhere(ctx, docstore.DoctypeUserPerm, docstore.Filters{
		"user": user, "allow": allow, "for_value": forValue,
	})
	if err != nil {
		return err
	}
	if existing != "" {
		return nil
	}
	_, err = s.store.Insert(ctx, &docstore.Document{
		Doctype: docstore.DoctypeUserPerm,
		Name:    uuid.NewString(),
		Fields:  docstore.Fields{"user": user, "allow": allow, "for_value": forValue},
	})
	if err != nil {
		return fmt.Errorf("grant %s on %s %q to %s: %w", allow, allow, forValue, user, err)
	}
	return nil
}

func roleSet(rows []map[string]any) map[string]struct{} {
	out := map[string]struct{}{}
	for _, row := range rows {
		if role, _ := row["role"].(string); role != "" {
			out[role] = struct{}{}
		}
	}
	return out
}

func dedupe(in []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
