package provision

import (
	"context"
	"errors"
	"fmt"

	"onboard/internal/docstore"
	"onboard/pkg/sentinel"
)

// Applied summarizes what a plan execution wrote.
type Applied struct {
	Created []Ref `json:"created"`
	Updated []Ref `json:"updated"`
}

// Applier executes plans. It assumes the caller already opened the run's
// transaction: every write goes through the store with the transaction bound
// to the context, and nothing commits until the whole run does.
type Applier struct {
	store   docstore.Store
	planner *Planner
}

func NewApplier(store docstore.Store, planner *Planner) *Applier {
	return &Applier{store: store, planner: planner}
}

// Apply inserts every create and saves every update. A duplicate-key race on
// a tax-charge template insert falls back to re-resolving the identity and
// updating in place; for any other doctype, or when no match is found, the
// error propagates and fails the batch.
func (a *Applier) Apply(ctx context.Context, plan *Plan) (*Applied, error) {
	applied := &Applied{Created: []Ref{}, Updated: []Ref{}}

	for _, d := range plan.Create {
		payload := d.Clone()
		if payload.Doctype == docstore.DoctypeTaxTemplate {
			// Let the store derive the composite name at insert time.
			payload.Name = ""
		}
		coerceWorkspaceJSON(payload)

		name, err := a.store.Insert(ctx, payload)
		if err == nil {
			applied.Created = append(applied.Created, Ref{Doctype: payload.Doctype, Name: name})
			continue
		}
		if !errors.Is(err, sentinel.ErrDuplicate) || d.Doctype != docstore.DoctypeTaxTemplate {
			return nil, fmt.Errorf("apply create %s %q: %w", d.Doctype, d.Name, err)
		}

		existing, rerr := a.planner.resolveTaxTemplateName(ctx, d)
		if rerr != nil {
			return nil, rerr
		}
		if existing == "" {
			return nil, fmt.Errorf("apply create %s %q: %w", d.Doctype, d.Name, err)
		}
		if err := a.setFields(ctx, d.Doctype, existing, d.Fields); err != nil {
			return nil, err
		}
		applied.Updated = append(applied.Updated, Ref{Doctype: d.Doctype, Name: existing})
	}

	for _, ch := range plan.Update {
		fields := ch.Fields.Clone()
		if ch.Doctype == docstore.DoctypeWorkspace {
			for _, k := range docstore.WorkspaceJSONFields {
				if v, ok := fields[k]; ok {
					fields[k] = docstore.JSONArrayString(v)
				}
			}
		}
		if err := a.setFields(ctx, ch.Doctype, ch.Name, fields); err != nil {
			return nil, err
		}
		applied.Updated = append(applied.Updated, Ref{Doctype: ch.Doctype, Name: ch.Name})
	}

	return applied, nil
}

// setFields loads the persisted document, overlays only the given fields, and
// saves it back.
func (a *Applier) setFields(ctx context.Context, doctype, name string, fields docstore.Fields) error {
	doc, err := a.store.Get(ctx, doctype, name)
	if err != nil {
		return fmt.Errorf("apply update %s %q: %w", doctype, name, err)
	}
	for k, v := range fields {
		doc.Set(k, v)
	}
	if err := a.store.Update(ctx, doc); err != nil {
		return fmt.Errorf("apply update %s %q: %w", doctype, name, err)
	}
	return nil
}

// coerceWorkspaceJSON forces the machine-consumed workspace JSON columns to a
// valid array-encoding string before insert. Empty and absent values become
// "[]", never null.
func coerceWorkspaceJSON(doc *docstore.Document) {
	if doc.Doctype != docstore.DoctypeWorkspace {
		return
	}
	for _, k := range docstore.WorkspaceJSONFields {
		doc.Set(k, docstore.JSONArrayString(doc.Get(k)))
	}
}
