package provision

import (
	"context"
	"fmt"

	"onboard/internal/docstore"
)

// Ref identifies one persisted document.
type Ref struct {
	Doctype string `json:"doctype"`
	Name    string `json:"name"`
}

// Change is a planned update: identity plus only the fields whose normalized
// values differ from the persisted record.
type Change struct {
	Doctype string          `json:"doctype"`
	Name    string          `json:"name"`
	Fields  docstore.Fields `json:"fields"`
}

// Plan partitions the desired document set against persisted state. Built
// fresh each run and consumed exactly once by the applier.
type Plan struct {
	Create []*docstore.Document `json:"create"`
	Update []Change             `json:"update"`
	Noop   []Ref                `json:"noop"`
}

// Summary renders the one-line plan summary stored on the run log.
func (p *Plan) Summary() string {
	return fmt.Sprintf("Create: %d, Update: %d, Noop: %d", len(p.Create), len(p.Update), len(p.Noop))
}

// Planner diffs desired documents against the store.
type Planner struct {
	store docstore.Store
}

func NewPlanner(store docstore.Store) *Planner {
	return &Planner{store: store}
}

// Plan classifies each desired document as create, update, or noop. Planning
// never writes; re-running against unchanged state reproduces the same plan.
func (p *Planner) Plan(ctx context.Context, docs []*docstore.Document) (*Plan, error) {
	plan := &Plan{}
	for _, d := range docs {
		d = d.Clone()
		name := d.Name

		if d.Doctype == docstore.DoctypeTaxTemplate {
			resolved, err := p.resolveTaxTemplateName(ctx, d)
			if err != nil {
				return nil, err
			}
			if resolved != "" {
				name = resolved
				d.Name = resolved
			}
		}

		exists, err := p.store.Exists(ctx, d.Doctype, name)
		if err != nil {
			return nil, fmt.Errorf("plan %s %q: %w", d.Doctype, name, err)
		}
		if !exists {
			plan.Create = append(plan.Create, d)
			continue
		}

		current, err := p.store.Get(ctx, d.Doctype, name)
		if err != nil {
			return nil, fmt.Errorf("plan %s %q: %w", d.Doctype, name, err)
		}
		curN := normalizeForCompare(current)
		newN := normalizeForCompare(d)

		delta := docstore.Fields{}
		for k, v := range newN {
			if k == "doctype" || k == "name" {
				continue
			}
			if !valuesEqual(curN[k], v) {
				delta[k] = v
			}
		}
		if len(delta) > 0 {
			plan.Update = append(plan.Update, Change{Doctype: d.Doctype, Name: name, Fields: delta})
		} else {
			plan.Noop = append(plan.Noop, Ref{Doctype: d.Doctype, Name: name})
		}
	}
	return plan, nil
}

// resolveTaxTemplateName maps a tax-charge template to its persisted identity.
// The backing store renames these on insert, so the nominal blueprint name
// may not match: try an exact (title[,company]) lookup first, then the common
// name patterns. Empty result means no persisted match.
func (p *Planner) resolveTaxTemplateName(ctx context.Context, d *docstore.Document) (string, error) {
	title := d.GetString("title")
	if title == "" {
		title = d.Name
	}
	if title == "" {
		return "", nil
	}
	company := d.GetString("company")

	filters := docstore.Filters{"title": title}
	if company != "" {
		filters["company"] = company
	}
	existing, err := p.store.ExistsWhere(ctx, docstore.DoctypeTaxTemplate, filters)
	if err != nil {
		return "", fmt.Errorf("resolve tax template %q: %w", title, err)
	}
	if existing != "" {
		return existing, nil
	}

	candidates := []string{title}
	if company != "" {
		candidates = append(candidates, title+" - "+company)
		abbr, err := p.store.GetValue(ctx, docstore.DoctypeCompany, company, "abbr")
		if err == nil {
			if a, ok := abbr.(string); ok && a != "" {
				candidates = append(candidates, title+" - "+a)
			}
		}
	}
	for _, nm := range candidates {
		ok, err := p.store.Exists(ctx, docstore.DoctypeTaxTemplate, nm)
		if err != nil {
			return "", fmt.Errorf("resolve tax template %q: %w", title, err)
		}
		if ok {
			return nm, nil
		}
	}
	return "", nil
}
