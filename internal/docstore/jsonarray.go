package docstore

import (
	"encoding/json"
	"strings"
)

// WorkspaceJSONFields are the Workspace columns consumed by the host UI as
// JSON-encoded arrays. They must never persist as NULL or "".
var WorkspaceJSONFields = []string{"content", "onboarding_list"}

// JSONArrayString coerces any value to a JSON array encoding. Strings that
// already look like arrays pass through; scalars are wrapped; empty-ish
// values become "[]". The result is always valid, never "".
func JSONArrayString(v any) string {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
			return s
		}
		if s == "" {
			return "[]"
		}
		return mustJSON([]any{s})
	case []any:
		return mustJSON(t)
	case []map[string]any:
		return mustJSON(t)
	case []string:
		return mustJSON(t)
	case nil:
		return "[]"
	case map[string]any:
		if len(t) == 0 {
			return "[]"
		}
		return mustJSON([]any{t})
	default:
		return mustJSON([]any{t})
	}
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(b)
}
