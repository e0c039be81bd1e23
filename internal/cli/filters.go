package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rshade/specrepo/internal/document"
	"github.com/rshade/specrepo/internal/expr"
	"github.com/rshade/specrepo/internal/spec"
)

// ErrNoConditions is returned when a command needs at least one --where.
var ErrNoConditions = errors.New("at least one --where condition is required")

// buildSpecification parses every condition into a named leaf and joins them
// with AND, or with OR when anyOf is set. No conditions match everything.
func buildSpecification(conditions []string, anyOf bool) (spec.Specification[*document.Document], error) {
	if len(conditions) == 0 {
		return spec.New[*document.Document](expr.True(), spec.WithName[*document.Document]("all")), nil
	}

	var combined spec.Specification[*document.Document]
	for _, raw := range conditions {
		raw = strings.TrimSpace(raw)
		predicate, err := expr.ParseCondition(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing --where %q: %w", raw, err)
		}
		leaf := spec.New[*document.Document](predicate, spec.WithName[*document.Document](raw))
		switch {
		case combined == nil:
			combined = leaf
		case anyOf:
			combined = combined.Or(leaf)
		default:
			combined = combined.And(leaf)
		}
	}
	return combined, nil
}

// evaluate reports whether doc satisfies s and which leaf conditions failed.
func evaluate(s spec.Specification[*document.Document], doc *document.Document) (bool, []string) {
	var (
		satisfied bool
		unmet     []spec.Specification[*document.Document]
	)
	if c, ok := s.(*spec.Composite[*document.Document]); ok {
		result := c.Evaluate(doc)
		satisfied, unmet = result.Satisfied, result.UnMet
	} else {
		satisfied = s.IsSatisfiedBy(doc)
		if !satisfied {
			unmet = []spec.Specification[*document.Document]{s}
		}
	}

	names := make([]string, len(unmet))
	for i, u := range unmet {
		names[i] = spec.Name(u)
	}
	return satisfied, names
}
