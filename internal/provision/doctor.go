package provision

import (
	"context"
	"sort"
	"strings"

	"onboard/internal/docstore"
)

// FieldMismatch is one policy entry pointing at a field the doctype's schema
// does not carry.
type FieldMismatch struct {
	Doctype       string `json:"doctype"`
	CompanyField  string `json:"company_field,omitempty"`
	CompanyExists bool   `json:"company_exists"`
	BrandField    string `json:"brand_field,omitempty"`
	BrandExists   bool   `json:"brand_exists"`
}

// DoctorReport is the policy-versus-schema sanity check result.
type DoctorReport struct {
	OK                bool            `json:"ok"`
	StrictDefaultDeny bool            `json:"strict_default_deny"`
	BypassRoles       []string        `json:"bypass_roles"`
	ScopedDoctypes    []string        `json:"scoped_doctypes"`
	Mismatches        []FieldMismatch `json:"mismatches"`
	MissingRoles      []string        `json:"missing_roles"`
}

// Doctor inspects the active policy against the schema metadata.
type Doctor struct {
	store    docstore.Store
	policies policySource
}

func NewDoctor(store docstore.Store, policies policySource) *Doctor {
	return &Doctor{store: store, policies: policies}
}

// Report checks every enabled scoping entry: its company and brand fields must
// exist on the doctype, and bypass roles must exist as Role records. Disabled
// entries are skipped.
func (d *Doctor) Report(ctx context.Context) (*DoctorReport, error) {
	pol := d.policies.Load(ctx)
	report := &DoctorReport{
		StrictDefaultDeny: pol.StrictDefaultDeny,
		BypassRoles:       append([]string{}, pol.PQCBypassRoles...),
		ScopedDoctypes:    []string{},
		Mismatches:        []FieldMismatch{},
		MissingRoles:      []string{},
	}
	sort.Strings(report.BypassRoles)

	var doctypes []string
	for dt, cfg := range pol.PQCDoctypes {
		if cfg.Enabled {
			doctypes = append(doctypes, dt)
		}
	}
	sort.Strings(doctypes)
	report.ScopedDoctypes = doctypes

	for _, dt := range doctypes {
		cfg := pol.PQCDoctypes[dt]
		companyField := strings.TrimSpace(cfg.CompanyField)
		brandField := strings.TrimSpace(cfg.BrandField)

		hasCompany := false
		if companyField != "" {
			ok, err := d.store.HasField(ctx, dt, companyField)
			if err != nil {
				return nil, err
			}
			hasCompany = ok
		}
		hasBrand := false
		if brandField != "" {
			ok, err := d.store.HasField(ctx, dt, brandField)
			if err != nil {
				return nil, err
			}
			hasBrand = ok
		}

		if (companyField != "" && !hasCompany) || (brandField != "" && !hasBrand) {
			report.Mismatches = append(report.Mismatches, FieldMismatch{
				Doctype:       dt,
				CompanyField:  companyField,
				CompanyExists: hasCompany,
				BrandField:    brandField,
				BrandExists:   hasBrand,
			})
		}
	}

	for _, role := range report.BypassRoles {
		ok, err := d.store.Exists(ctx, "Role", role)
		if err != nil {
			return nil, err
		}
		if !ok {
			report.MissingRoles = append(report.MissingRoles, role)
		}
	}

	report.OK = len(report.Mismatches) == 0 && len(report.MissingRoles) == 0
	return report, nil
}
