package checks

import (
	"context"
	"strings"
)

// SchemaChecker verifies that the content's front matter carries every
// required review metadata field with a non-empty value.
type SchemaChecker struct {
	required []string
}

// NewSchemaChecker creates a SchemaChecker requiring the given fields.
func NewSchemaChecker(required []string) *SchemaChecker {
	return &SchemaChecker{required: required}
}

func (s *SchemaChecker) Name() string { return "schema" }

func (s *SchemaChecker) Check(_ context.Context, c Content) Result {
	var missing []string
	for _, f := range s.required {
		v, ok := c.FrontMatter[f]
		if !ok || empty(v) {
			missing = append(missing, f)
		}
	}

	if len(missing) > 0 {
		return Result{Name: s.Name(), Passed: false, Detail: "missing fields: " + strings.Join(missing, ", ")}
	}
	return Result{Name: s.Name(), Passed: true}
}

func empty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
}
