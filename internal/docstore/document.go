// Package docstore is the document persistence layer: named entity types
// ("doctypes") holding schemaless field maps, addressed by (doctype, name).
// It exposes a Store port with in-memory and Postgres implementations plus
// the schema metadata lookups the visibility layer depends on.
package docstore

import "sort"

// Doctypes with behavior hard-wired somewhere in the system. Everything else
// is addressed by plain string, the way blueprints spell them.
const (
	DoctypeCompany     = "Company"
	DoctypeBrand       = "Brand"
	DoctypeWorkspace   = "Workspace"
	DoctypeTaxTemplate = "Sales Taxes and Charges Template"
	DoctypeRoleProfile = "Role Profile"
	DoctypeUserPerm    = "User Permission"
	DoctypeLetterHead  = "Letter Head"
	DoctypeProject     = "Project"
	DoctypeTask        = "Task"
	DoctypeTodo        = "ToDo"
)

// Fields is a document's schemaless payload. Child-row collections are stored
// as []any of map[string]any, which is what YAML and JSON decoding produce.
type Fields map[string]any

// Document is one persisted (or desired) record. Identity is (Doctype, Name);
// Fields never includes the identity keys.
type Document struct {
	Doctype string `json:"doctype"`
	Name    string `json:"name"`
	Fields  Fields `json:"fields"`
}

// Clone returns a deep copy; plans mutate their documents and must not alias
// loader or store state.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	return &Document{Doctype: d.Doctype, Name: d.Name, Fields: cloneFields(d.Fields)}
}

// Clone returns a deep copy of the field map.
func (f Fields) Clone() Fields {
	return cloneFields(f)
}

// Get returns the field value, nil when absent.
func (d *Document) Get(key string) any {
	if d == nil || d.Fields == nil {
		return nil
	}
	return d.Fields[key]
}

// GetString returns the field coerced to string, "" for absent or non-string.
func (d *Document) GetString(key string) string {
	s, _ := d.Get(key).(string)
	return s
}

// Set assigns a field value, allocating the map on first use.
func (d *Document) Set(key string, value any) {
	if d.Fields == nil {
		d.Fields = Fields{}
	}
	d.Fields[key] = value
}

// Rows coerces a field to a list of child rows. Both []any (decoded YAML)
// and []map[string]any (constructed in code) shapes are accepted.
func (d *Document) Rows(key string) []map[string]any {
	return AsRows(d.Get(key))
}

// AsRows converts a decoded list value into child rows, dropping entries that
// are not maps.
func AsRows(v any) []map[string]any {
	switch rows := v.(type) {
	case []map[string]any:
		return rows
	case []any:
		out := make([]map[string]any, 0, len(rows))
		for _, r := range rows {
			switch m := r.(type) {
			case map[string]any:
				out = append(out, m)
			}
		}
		return out
	default:
		return nil
	}
}

// FieldNames returns the document's field keys in sorted order.
func (d *Document) FieldNames() []string {
	keys := make([]string, 0, len(d.Fields))
	for k := range d.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func cloneFields(f Fields) Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = cloneValue(vv)
		}
		return out
	case Fields:
		return map[string]any(cloneFields(t))
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = cloneValue(vv)
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(t))
		for i, vv := range t {
			out[i] = cloneValue(vv).(map[string]any)
		}
		return out
	default:
		return v
	}
}
