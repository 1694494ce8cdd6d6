package blueprint

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// StringList accepts either a scalar or a sequence in YAML; blueprints are
// hand-written and both spellings occur (clone_from, role_profiles,
// brand_scope).
type StringList []string

func (s *StringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var one string
		if err := node.Decode(&one); err != nil {
			return err
		}
		if one != "" {
			*s = StringList{one}
		}
		return nil
	case yaml.SequenceNode:
		var many []string
		if err := node.Decode(&many); err != nil {
			return err
		}
		*s = StringList(many)
		return nil
	default:
		return fmt.Errorf("expected string or list, got yaml kind %d", node.Kind)
	}
}

// FlexBool accepts true/false, 0/1, and "yes"/"no" spellings. Nil means the
// field was absent, which some appliers treat differently from false.
type FlexBool struct {
	Set   bool
	Value bool
}

func (b *FlexBool) UnmarshalYAML(node *yaml.Node) error {
	var v any
	if err := node.Decode(&v); err != nil {
		return err
	}
	switch t := v.(type) {
	case bool:
		b.Set, b.Value = true, t
	case int:
		b.Set, b.Value = true, t != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "1", "true", "yes":
			b.Set, b.Value = true, true
		case "0", "false", "no", "":
			b.Set, b.Value = true, false
		default:
			return fmt.Errorf("cannot parse %q as bool", t)
		}
	case nil:
	default:
		return fmt.Errorf("cannot parse %T as bool", v)
	}
	return nil
}

// Or returns the value, or fallback when the field was absent.
func (b FlexBool) Or(fallback bool) bool {
	if !b.Set {
		return fallback
	}
	return b.Value
}
