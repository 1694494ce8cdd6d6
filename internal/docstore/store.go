package docstore

import "context"

// Filters selects documents by exact field match. A []string value matches
// any of the listed values. The pseudo-field "name" filters on identity.
type Filters map[string]any

// FieldDef describes one schema field for metadata lookups and custom-field
// bootstrapping.
type FieldDef struct {
	Fieldname   string
	Label       string
	Fieldtype   string
	Options     string
	InsertAfter string
}

// Meta answers schema questions. Predicate composition consults it on every
// qualifying query, so implementations should keep lookups cheap.
type Meta interface {
	// HasField reports whether the doctype's schema carries the field.
	// Unknown doctypes simply have no fields.
	HasField(ctx context.Context, doctype, field string) (bool, error)
	// AddField registers a custom field on the doctype's schema. Adding an
	// existing field is a no-op.
	AddField(ctx context.Context, doctype string, def FieldDef) error
}

// Store is the document CRUD port. Implementations return sentinel errors
// (sentinel.ErrNotFound, sentinel.ErrDuplicate) for infrastructure facts.
type Store interface {
	Meta

	Exists(ctx context.Context, doctype, name string) (bool, error)
	// ExistsWhere returns the name of any document matching the filters, or
	// "" when none does.
	ExistsWhere(ctx context.Context, doctype string, filters Filters) (string, error)
	Get(ctx context.Context, doctype, name string) (*Document, error)
	GetValue(ctx context.Context, doctype, name, field string) (any, error)
	SetValue(ctx context.Context, doctype, name, field string, value any) error
	// Insert persists a new document and returns its assigned name. A
	// document without a name gets one derived by the store (tax-charge
	// templates compose "{title} - {company abbr}"); anything else is
	// rejected. Colliding identities return sentinel.ErrDuplicate.
	Insert(ctx context.Context, doc *Document) (string, error)
	// Update replaces the fields of an existing document.
	Update(ctx context.Context, doc *Document) error
	Delete(ctx context.Context, doctype, name string) error
	List(ctx context.Context, doctype string, filters Filters) ([]*Document, error)
	Names(ctx context.Context, doctype string, filters Filters) ([]string, error)

	// RepairWorkspaceJSON forces the machine-consumed JSON array columns of
	// every Workspace document to valid array encodings. Returns the number
	// of repaired documents. Runs across all workspaces, not only those
	// touched by a plan.
	RepairWorkspaceJSON(ctx context.Context) (int, error)
}

// Tx runs fn inside one storage transaction; a provisioning run commits once
// at the end, never per document.
type Tx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// NoTx satisfies Tx for stores without transaction support (in-memory); fn
// runs directly against live state.
type NoTx struct{}

func (NoTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func matches(doc *Document, filters Filters) bool {
	for k, want := range filters {
		var got any
		if k == "name" {
			got = doc.Name
		} else {
			got = doc.Get(k)
		}
		switch w := want.(type) {
		case []string:
			ok := false
			for _, cand := range w {
				if got == cand {
					ok = true
					break
				}
			}
			if !ok {
				return false
			}
		default:
			if !looseEqual(got, want) {
				return false
			}
		}
	}
	return true
}

// looseEqual compares scalar field values across the int/bool encodings that
// YAML and JSON round-tripping produce.
func looseEqual(a, b any) bool {
	if a == b {
		return true
	}
	na, aok := toInt(a)
	nb, bok := toInt(b)
	if aok && bok {
		return na == nb
	}
	return false
}

func toInt(v any) (int64, bool) {
	switch t := v.(type) {
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	case int:
		return int64(t), true
	case int64:
		return t, true
	case float64:
		if t == float64(int64(t)) {
			return int64(t), true
		}
	}
	return 0, false
}
