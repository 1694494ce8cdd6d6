// Package visibility composes per-doctype row-visibility predicates. Each
// predicate is a SQL fragment ANDed into the host query's WHERE clause: an
// empty fragment means unrestricted, "1=0" means total deny. Composition is a
// pure function of (policy, user scope, schema presence) at call time.
package visibility

import (
	"context"
	"fmt"
	"strings"
	"time"

	"onboard/internal/docstore"
	"onboard/internal/policy"
	"onboard/internal/scope"
)

// DenyAll is the constant-false fragment returned under strict default deny.
const DenyAll = "1=0"

// PolicySource yields the layered policy for the current request.
type PolicySource interface {
	Load(ctx context.Context) *policy.Policy
}

// ScopeSource yields the acting user's allow-lists and roles.
type ScopeSource interface {
	UserScope(ctx context.Context, user string) (scope.Scope, error)
	Roles(ctx context.Context, user string) (map[string]struct{}, error)
}

// override is a bespoke composition for doctypes whose visibility extends
// beyond company/brand scoping. Registered per doctype; everything else goes
// through the generic path.
type override func(c *Composer, ctx context.Context, doctype, user string) (string, error)

// Composer builds predicates from the policy table. The doctype dispatch is
// data driven: a doctype either has an override entry or is handled by the
// generic company/brand evaluator.
type Composer struct {
	policies  PolicySource
	scopes    ScopeSource
	meta      docstore.Meta
	metrics   *Metrics
	overrides map[string]override
}

func NewComposer(policies PolicySource, scopes ScopeSource, meta docstore.Meta, metrics *Metrics) *Composer {
	return &Composer{
		policies: policies,
		scopes:   scopes,
		meta:     meta,
		metrics:  metrics,
		overrides: map[string]override{
			docstore.DoctypeProject: (*Composer).projectPredicate,
			docstore.DoctypeTask:    (*Composer).taskPredicate,
		},
	}
}

// Predicate returns the row-filter fragment for one doctype and user.
func (c *Composer) Predicate(ctx context.Context, doctype, user string) (string, error) {
	start := time.Now()
	bypass, err := c.bypass(ctx, user)
	if err != nil {
		return "", err
	}
	if bypass {
		c.metrics.RecordPredicate(doctype, OutcomeBypass, start)
		return "", nil
	}

	fn, ok := c.overrides[doctype]
	if !ok {
		fn = (*Composer).basePredicate
	}
	frag, err := fn(c, ctx, doctype, user)
	if err != nil {
		return "", err
	}
	c.metrics.RecordPredicate(doctype, outcomeOf(frag), start)
	return frag, nil
}

func (c *Composer) basePredicate(ctx context.Context, doctype, user string) (string, error) {
	return c.base(ctx, doctype, user)
}

// base evaluates the policy entry for the doctype; disabled or absent entries
// impose no restriction.
func (c *Composer) base(ctx context.Context, doctype, user string) (string, error) {
	cfg := c.policies.Load(ctx).ForDoctype(doctype)
	if !cfg.Enabled {
		return "", nil
	}
	companyField := cfg.CompanyField
	if companyField == "" {
		companyField = "company"
	}
	brandField := cfg.BrandField
	if brandField == "" {
		brandField = "brand"
	}
	return c.generic(ctx, doctype, companyField, brandField, user)
}

// generic ANDs the company and brand constraints that apply. A constraint
// applies when the user has allow-list values for it and the doctype carries
// the field. With no applicable constraint the result is deny-all under
// strict default deny, otherwise unrestricted.
func (c *Composer) generic(ctx context.Context, doctype, companyField, brandField, user string) (string, error) {
	sc, err := c.scopes.UserScope(ctx, user)
	if err != nil {
		return "", err
	}

	var conds []string
	if len(sc.Companies) > 0 {
		ok, err := c.meta.HasField(ctx, doctype, companyField)
		if err != nil {
			return "", err
		}
		if ok {
			conds = append(conds, fmt.Sprintf("%s IN %s", column(doctype, companyField), inList(sc.Companies)))
		}
	}
	if len(sc.Brands) > 0 {
		ok, err := c.meta.HasField(ctx, doctype, brandField)
		if err != nil {
			return "", err
		}
		if ok {
			conds = append(conds, fmt.Sprintf("%s IN %s", column(doctype, brandField), inList(sc.Brands)))
		}
	}

	if len(conds) > 0 {
		return strings.Join(conds, " AND "), nil
	}
	if c.policies.Load(ctx).StrictDefaultDeny {
		return DenyAll, nil
	}
	return "", nil
}

// projectPredicate ORs the scoped predicate with direct project membership.
func (c *Composer) projectPredicate(ctx context.Context, doctype, user string) (string, error) {
	base, err := c.base(ctx, doctype, user)
	if err != nil {
		return "", err
	}
	members := existsProjectMembership(user)
	if base != "" {
		return fmt.Sprintf("((%s) OR %s)", base, members), nil
	}
	return members, nil
}

// taskPredicate ORs three conditions: scoped predicate, membership in the
// task's project, direct assignment. Absent conditions are omitted from the
// OR, not treated as false.
func (c *Composer) taskPredicate(ctx context.Context, doctype, user string) (string, error) {
	base, err := c.base(ctx, doctype, user)
	if err != nil {
		return "", err
	}
	u := escape(user)
	members := fmt.Sprintf(
		"exists(select 1 from `tabProject User` pu"+
			" join `tabProject` p on p.name = `tabTask`.`project`"+
			" where pu.parent = p.name and pu.parenttype = 'Project' and pu.user = %s)", u)
	assigned := fmt.Sprintf(
		"exists(select 1 from `tabToDo` td"+
			" where td.reference_type = 'Task' and td.reference_name = `tabTask`.`name`"+
			" and td.allocated_to = %s)", u)

	var conds []string
	for _, cond := range []string{base, members, assigned} {
		if cond != "" {
			conds = append(conds, "("+cond+")")
		}
	}
	return strings.Join(conds, " OR "), nil
}

func existsProjectMembership(user string) string {
	return fmt.Sprintf(
		"exists(select 1 from `tabProject User` pu"+
			" where pu.parent = `tabProject`.`name` and pu.parenttype = 'Project' and pu.user = %s)",
		escape(user))
}

// HasPermission is the fine-grained guard for sensitive doctypes. Users with
// a bypass role or a configured sensitive role pass; an employee may read
// their own record; everyone else is blocked.
func (c *Composer) HasPermission(ctx context.Context, doc *docstore.Document, ptype, user string) (bool, error) {
	if user == "" {
		user = "Guest"
	}
	bypass, err := c.bypass(ctx, user)
	if err != nil {
		return false, err
	}
	if bypass {
		return true, nil
	}

	needed := c.policies.Load(ctx).SensitiveRolesFor(doc.Doctype)
	if len(needed) > 0 {
		roles, err := c.scopes.Roles(ctx, user)
		if err != nil {
			return false, err
		}
		for role := range roles {
			if _, ok := needed[role]; ok {
				return true, nil
			}
		}
	}

	if doc.Doctype == "Employee" && ptype == "read" && doc.GetString("user_id") == user {
		return true, nil
	}
	return false, nil
}

func (c *Composer) bypass(ctx context.Context, user string) (bool, error) {
	bypassRoles := c.policies.Load(ctx).BypassRoles()
	if len(bypassRoles) == 0 {
		return false, nil
	}
	roles, err := c.scopes.Roles(ctx, user)
	if err != nil {
		return false, err
	}
	for role := range roles {
		if _, ok := bypassRoles[role]; ok {
			return true, nil
		}
	}
	return false, nil
}

func outcomeOf(frag string) string {
	switch frag {
	case "":
		return OutcomeUnrestricted
	case DenyAll:
		return OutcomeDenyAll
	default:
		return OutcomeScoped
	}
}
