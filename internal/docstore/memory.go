package docstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"onboard/pkg/sentinel"
)

// InMemory is a map-backed Store for tests and single-process tooling. It
// mirrors the Postgres store's semantics, including name derivation and the
// workspace JSON invariant repair.
type InMemory struct {
	mu     sync.RWMutex
	docs   map[string]*Document
	schema map[string]map[string]FieldDef
}

// NewInMemory builds an empty store seeded with the default schema.
func NewInMemory() *InMemory {
	schema := make(map[string]map[string]FieldDef)
	for dt, defs := range DefaultSchema() {
		fields := make(map[string]FieldDef, len(defs))
		for _, def := range defs {
			fields[def.Fieldname] = def
		}
		schema[dt] = fields
	}
	return &InMemory{
		docs:   map[string]*Document{},
		schema: schema,
	}
}

func key(doctype, name string) string {
	return doctype + "\x00" + name
}

func (s *InMemory) HasField(_ context.Context, doctype, field string) (bool, error) {
	if field == "" {
		return false, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.schema[doctype][field]
	return ok, nil
}

func (s *InMemory) AddField(_ context.Context, doctype string, def FieldDef) error {
	if def.Fieldname == "" {
		return fmt.Errorf("add field: %w: empty fieldname", sentinel.ErrInvalidState)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schema[doctype] == nil {
		s.schema[doctype] = map[string]FieldDef{}
	}
	s.schema[doctype][def.Fieldname] = def
	return nil
}

func (s *InMemory) Exists(_ context.Context, doctype, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.docs[key(doctype, name)]
	return ok, nil
}

func (s *InMemory) ExistsWhere(_ context.Context, doctype string, filters Filters) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, doc := range s.sorted(doctype) {
		if matches(doc, filters) {
			return doc.Name, nil
		}
	}
	return "", nil
}

func (s *InMemory) Get(_ context.Context, doctype, name string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[key(doctype, name)]
	if !ok {
		return nil, fmt.Errorf("get %s %q: %w", doctype, name, sentinel.ErrNotFound)
	}
	return doc.Clone(), nil
}

func (s *InMemory) GetValue(ctx context.Context, doctype, name, field string) (any, error) {
	doc, err := s.Get(ctx, doctype, name)
	if err != nil {
		return nil, err
	}
	return doc.Get(field), nil
}

func (s *InMemory) SetValue(_ context.Context, doctype, name, field string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[key(doctype, name)]
	if !ok {
		return fmt.Errorf("set value %s %q: %w", doctype, name, sentinel.ErrNotFound)
	}
	doc.Set(field, value)
	return nil
}

func (s *InMemory) Insert(ctx context.Context, doc *Document) (string, error) {
	if doc.Doctype == "" {
		return "", fmt.Errorf("insert: %w: empty doctype", sentinel.ErrInvalidState)
	}
	name := doc.Name
	if name == "" {
		derived, err := s.deriveName(ctx, doc)
		if err != nil {
			return "", err
		}
		name = derived
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(doc.Doctype, name)
	if _, ok := s.docs[k]; ok {
		return "", fmt.Errorf("insert %s %q: %w", doc.Doctype, name, sentinel.ErrDuplicate)
	}
	stored := doc.Clone()
	stored.Name = name
	s.docs[k] = stored
	return name, nil
}

func (s *InMemory) Update(_ context.Context, doc *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(doc.Doctype, doc.Name)
	if _, ok := s.docs[k]; !ok {
		return fmt.Errorf("update %s %q: %w", doc.Doctype, doc.Name, sentinel.ErrNotFound)
	}
	s.docs[k] = doc.Clone()
	return nil
}

func (s *InMemory) Delete(_ context.Context, doctype, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(doctype, name)
	if _, ok := s.docs[k]; !ok {
		return fmt.Errorf("delete %s %q: %w", doctype, name, sentinel.ErrNotFound)
	}
	delete(s.docs, k)
	return nil
}

func (s *InMemory) List(_ context.Context, doctype string, filters Filters) ([]*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Document
	for _, doc := range s.sorted(doctype) {
		if matches(doc, filters) {
			out = append(out, doc.Clone())
		}
	}
	return out, nil
}

func (s *InMemory) Names(ctx context.Context, doctype string, filters Filters) ([]string, error) {
	docs, err := s.List(ctx, doctype, filters)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(docs))
	for i, d := range docs {
		names[i] = d.Name
	}
	return names, nil
}

func (s *InMemory) RepairWorkspaceJSON(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	repaired := 0
	for _, doc := range s.docs {
		if doc.Doctype != DoctypeWorkspace {
			continue
		}
		touched := false
		for _, field := range WorkspaceJSONFields {
			v := doc.Get(field)
			if v == nil {
				doc.Set(field, "[]")
				touched = true
				continue
			}
			if str, ok := v.(string); ok && strings.TrimSpace(str) == "" {
				doc.Set(field, "[]")
				touched = true
			}
		}
		if touched {
			repaired++
		}
	}
	return repaired, nil
}

// deriveName mimics the backing store's autoname for tax-charge templates:
// "{title} - {company abbr}", falling back to the company name, then the bare
// title. Other doctypes must arrive named.
func (s *InMemory) deriveName(ctx context.Context, doc *Document) (string, error) {
	if doc.Doctype != DoctypeTaxTemplate {
		return "", fmt.Errorf("insert %s: %w: missing name", doc.Doctype, sentinel.ErrInvalidState)
	}
	title := doc.GetString("title")
	if title == "" {
		return "", fmt.Errorf("insert %s: %w: missing title", doc.Doctype, sentinel.ErrInvalidState)
	}
	company := doc.GetString("company")
	if company == "" {
		return title, nil
	}
	suffix := company
	if abbr, err := s.GetValue(ctx, DoctypeCompany, company, "abbr"); err == nil {
		if a, ok := abbr.(string); ok && a != "" {
			suffix = a
		}
	}
	return title + " - " + suffix, nil
}

// sorted returns the doctype's documents ordered by name so listings are
// deterministic. Callers hold at least the read lock.
func (s *InMemory) sorted(doctype string) []*Document {
	var docs []*Document
	prefix := doctype + "\x00"
	for k, doc := range s.docs {
		if strings.HasPrefix(k, prefix) {
			docs = append(docs, doc)
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Name < docs[j].Name })
	return docs
}
