package visibility

import (
	"fmt"
	"sort"
	"strings"
)

// escape renders a value as a quoted SQL string literal. Backslashes and
// single quotes are doubled so user-supplied names cannot break out of the
// literal.
func escape(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `''`)
	return "'" + v + "'"
}

// inList renders a set as a sorted SQL IN-list. Empty sets render as "()";
// callers must not emit a clause for an empty set.
func inList(values map[string]struct{}) string {
	if len(values) == 0 {
		return "()"
	}
	vals := make([]string, 0, len(values))
	for v := range values {
		vals = append(vals, escape(v))
	}
	sort.Strings(vals)
	return "(" + strings.Join(vals, ", ") + ")"
}

func column(doctype, field string) string {
	return fmt.Sprintf("`tab%s`.`%s`", doctype, field)
}
