// Package policy loads the layered visibility policy: built-in defaults, then
// a global policy file, then a tenant policy file. The merged result controls
// which doctypes get row-level scoping, by which fields, which roles bypass
// it, and how task-assignment collaboration behaves.
package policy

// DoctypePolicy configures row scoping for one doctype.
type DoctypePolicy struct {
	Enabled      bool   `yaml:"enabled" json:"enabled"`
	CompanyField string `yaml:"company_field" json:"company_field"`
	BrandField   string `yaml:"brand_field" json:"brand_field"`
}

// Collab configures task-assignment side effects.
type Collab struct {
	// OnTaskAssignment: "none", "share_write", or "project_user".
	OnTaskAssignment                   string `yaml:"on_task_assignment" json:"on_task_assignment"`
	IgnoreUserPermissionsOnTaskProject bool   `yaml:"ignore_user_permissions_on_task_project" json:"ignore_user_permissions_on_task_project"`
}

// ProjectFieldPrivacy raises selected Project fields to a permission level
// readable only by the listed roles.
type ProjectFieldPrivacy struct {
	Enabled         bool     `yaml:"enabled" json:"enabled"`
	Permlevel       int      `yaml:"permlevel" json:"permlevel"`
	Fields          []string `yaml:"fields" json:"fields"`
	Level1Roles     []string `yaml:"level1_roles" json:"level1_roles"`
	StrictSync      bool     `yaml:"strict_sync" json:"strict_sync"`
	CreateIfMissing *bool    `yaml:"create_if_missing" json:"create_if_missing"`
}

// Policy is the merged configuration. Construct via Source.Load; never mutate
// a loaded Policy, re-derive on the next request instead.
type Policy struct {
	SensitiveRoles      map[string][]string      `yaml:"sensitive_roles" json:"sensitive_roles"`
	StrictDefaultDeny   bool                     `yaml:"strict_default_deny" json:"strict_default_deny"`
	PQCBypassRoles      []string                 `yaml:"pqc_bypass_roles" json:"pqc_bypass_roles"`
	PQCDoctypes         map[string]DoctypePolicy `yaml:"pqc_doctypes" json:"pqc_doctypes"`
	Collab              Collab                   `yaml:"collab" json:"collab"`
	ProjectFieldPrivacy ProjectFieldPrivacy      `yaml:"project_field_privacy" json:"project_field_privacy"`
}

// ForDoctype returns the doctype's scoping config; the zero value (disabled)
// when the doctype is not configured.
func (p *Policy) ForDoctype(doctype string) DoctypePolicy {
	if p == nil {
		return DoctypePolicy{}
	}
	return p.PQCDoctypes[doctype]
}

// SensitiveRolesFor returns the role set guarding the doctype's documents.
func (p *Policy) SensitiveRolesFor(doctype string) map[string]struct{} {
	out := map[string]struct{}{}
	if p == nil {
		return out
	}
	for _, r := range p.SensitiveRoles[doctype] {
		out[r] = struct{}{}
	}
	return out
}

// BypassRoles returns the bypass set.
func (p *Policy) BypassRoles() map[string]struct{} {
	out := map[string]struct{}{}
	if p == nil {
		return out
	}
	for _, r := range p.PQCBypassRoles {
		out[r] = struct{}{}
	}
	return out
}

// defaults returns the built-in policy layer, as a raw map so the layered
// merge treats it exactly like a file layer. Safe even with no policy files
// present.
func defaults() map[string]any {
	scoped := func() map[string]any {
		return map[string]any{"enabled": true, "company_field": "company", "brand_field": "brand"}
	}
	return map[string]any{
		"sensitive_roles": map[string]any{
			"Employee": []any{"HR Manager", "HR Assistant"},
		},
		"strict_default_deny": false,
		"pqc_doctypes": map[string]any{
			// CRM / Sales
			"Lead":        scoped(),
			"Opportunity": scoped(),
			"Customer":    scoped(),
			"Quotation":   scoped(),
			"Sales Order": scoped(),
			// Projects / HR
			"Project":       scoped(),
			"Task":          scoped(),
			"Employee":      scoped(),
			"Job Applicant": scoped(),
			"Job Opening":   scoped(),
		},
	}
}
