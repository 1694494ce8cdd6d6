package provision

import (
	"reflect"
	"sort"
	"strings"

	"onboard/internal/docstore"
)

// wsKeep is the allow-list of semantic keys on workspace child rows. Anything
// else (idx, creation timestamps, owner columns) is volatile and must not
// participate in the comparison.
var wsKeep = map[string]struct{}{
	"type": {}, "label": {}, "icon": {}, "description": {}, "hidden": {},
	"link_type": {}, "link_to": {}, "url": {}, "doc_view": {}, "kanban_board": {},
	"report_ref_doctype": {}, "is_query_report": {}, "dependencies": {},
	"only_for": {}, "onboard": {}, "color": {}, "format": {}, "stats_filter": {},
	"link_count": {},
}

var wsChildTables = []string{"links", "shortcuts", "charts", "number_cards", "quick_lists", "custom_blocks"}

// coerceBoolInt maps booleans to 0/1 so YAML `true` and stored `1` compare
// equal.
func coerceBoolInt(v any) any {
	if b, ok := v.(bool); ok {
		if b {
			return 1
		}
		return 0
	}
	return v
}

// isTrivial reports whether a value is equivalent to "absent": nil, empty
// string, zero, empty list, empty map.
func isTrivial(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case bool:
		return !t
	case int:
		return t == 0
	case int64:
		return t == 0
	case float64:
		return t == 0
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map:
		return rv.Len() == 0
	}
	return false
}

func cleanRow(row map[string]any) map[string]any {
	out := map[string]any{}
	for k := range wsKeep {
		v, ok := row[k]
		if !ok {
			continue
		}
		v = coerceBoolInt(v)
		if isTrivial(v) {
			continue
		}
		if s, ok := v.(string); ok {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			v = s
		}
		out[k] = v
	}
	return out
}

func rowString(row map[string]any, key string) string {
	if s, ok := row[key].(string); ok {
		return s
	}
	return ""
}

// normalizeWorkspaceRows cleans each child row, drops rows emptied by the
// clean, and sorts by a fixed key tuple so listing order never produces a
// spurious update.
func normalizeWorkspaceRows(rows []map[string]any) []map[string]any {
	cleaned := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		if r == nil {
			continue
		}
		c := cleanRow(r)
		if len(c) > 0 {
			cleaned = append(cleaned, c)
		}
	}
	sort.SliceStable(cleaned, func(i, j int) bool {
		a, b := cleaned[i], cleaned[j]
		for _, k := range []string{"type", "label", "link_type", "link_to", "doc_view", "url"} {
			av, bv := rowString(a, k), rowString(b, k)
			if av != bv {
				return av < bv
			}
		}
		return false
	})
	return cleaned
}

// normalizeForCompare produces the canonical comparable view of a document.
// The rendered content blob is always dropped; workspaces additionally drop
// the server-assigned ordering key and the onboarding list, and get their
// child tables cleaned and sorted. Both sides of a diff must pass through
// here or the comparison is meaningless.
func normalizeForCompare(doc *docstore.Document) docstore.Fields {
	out := doc.Fields.Clone()
	delete(out, "content")
	if doc.Doctype == docstore.DoctypeWorkspace {
		delete(out, "sequence_id")
		delete(out, "onboarding_list")
		for _, t := range wsChildTables {
			if _, ok := out[t]; ok {
				out[t] = normalizeWorkspaceRows(docstore.AsRows(out[t]))
			}
		}
	}
	return out
}

// valuesEqual compares normalized field values: trivial values on both sides
// are equal regardless of representation, booleans compare as 0/1, and
// child-row slices compare element-wise.
func valuesEqual(a, b any) bool {
	if isTrivial(a) && isTrivial(b) {
		return true
	}
	a, b = coerceBoolInt(a), coerceBoolInt(b)
	if an, aok := toFloat(a); aok {
		if bn, bok := toFloat(b); bok {
			return an == bn
		}
	}
	ar, aIsRows := a.([]map[string]any)
	br, bIsRows := b.([]map[string]any)
	if aIsRows || bIsRows {
		if !aIsRows {
			ar = docstore.AsRows(a)
		}
		if !bIsRows {
			br = docstore.AsRows(b)
		}
		if len(ar) != len(br) {
			return false
		}
		for i := range ar {
			if !fieldsEqual(ar[i], br[i]) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

func fieldsEqual(a, b map[string]any) bool {
	for k, av := range a {
		if !valuesEqual(av, b[k]) {
			return false
		}
	}
	for k, bv := range b {
		if _, ok := a[k]; !ok && !isTrivial(bv) {
			return false
		}
	}
	return true
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	}
	return 0, false
}
