// Package sortfield describes ordering by dotted field path and applies it to
// in-memory slices.
//
// A Descriptor names a path and a Direction. Paths that cannot be resolved
// against the element type are inert: they neither fail nor reorder anything,
// so a query can carry a sort key that only some entity types understand.
package sortfield

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/rshade/specrepo/internal/fieldpath"
)

// Direction is a sort direction. Only the exact Descending literal sorts
// descending; every other value, including the empty string, ascends.
type Direction string

// Sort directions.
const (
	Ascending  Direction = "ascending"
	Descending Direction = "descending"
)

// IsDescending reports whether d is exactly Descending.
func (d Direction) IsDescending() bool { return d == Descending }

// Parsing errors.
var (
	ErrEmptySortField    = errors.New("sort field cannot be empty")
	ErrInvalidSortFormat = errors.New("invalid sort format: use 'field' or 'field:order' (e.g., 'data.age:desc')")
	ErrInvalidSortOrder  = errors.New("sort order must be 'asc', 'ascending', 'desc' or 'descending'")
)

// sortPartsMax is the maximum number of parts in a sort string (field:order).
const sortPartsMax = 2

// Descriptor orders results by the value at Field.
type Descriptor struct {
	Field     string    `json:"field"     yaml:"field"`
	Direction Direction `json:"direction" yaml:"direction"`
}

// Asc orders by field, smallest first.
func Asc(field string) Descriptor { return Descriptor{Field: field, Direction: Ascending} }

// Desc orders by field, largest first.
func Desc(field string) Descriptor { return Descriptor{Field: field, Direction: Descending} }

func (d Descriptor) String() string {
	if d.Direction.IsDescending() {
		return d.Field + ":desc"
	}
	return d.Field + ":asc"
}

// Parse reads "field" or "field:order". The order is case-insensitive and
// defaults to ascending.
func Parse(s string) (Descriptor, error) {
	parts := strings.Split(s, ":")
	if len(parts) > sortPartsMax {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrInvalidSortFormat, s)
	}

	field := strings.TrimSpace(parts[0])
	if field == "" {
		return Descriptor{}, ErrEmptySortField
	}

	order := "asc"
	if len(parts) == sortPartsMax {
		order = strings.ToLower(strings.TrimSpace(parts[1]))
	}

	switch order {
	case "asc", "ascending":
		return Asc(field), nil
	case "desc", "descending":
		return Desc(field), nil
	default:
		return Descriptor{}, fmt.Errorf("%w: got %q", ErrInvalidSortOrder, order)
	}
}

// ParseAll parses each expression in order.
func ParseAll(exprs []string) ([]Descriptor, error) {
	out := make([]Descriptor, 0, len(exprs))
	for _, e := range exprs {
		d, err := Parse(e)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// Step is a Descriptor resolved against an element type.
type Step struct {
	Descriptor

	accessor *fieldpath.Accessor
}

// Resolve binds d to root. An unresolvable path produces an inert step.
func Resolve(root reflect.Type, d Descriptor) Step {
	acc, err := fieldpath.Resolve(root, d.Field)
	if err != nil {
		return Step{Descriptor: d}
	}
	return Step{Descriptor: d, accessor: acc}
}

// ResolveAll resolves every descriptor and drops the inert ones.
func ResolveAll(root reflect.Type, descs []Descriptor) []Step {
	steps := make([]Step, 0, len(descs))
	for _, d := range descs {
		if s := Resolve(root, d); !s.Inert() {
			steps = append(steps, s)
		}
	}
	return steps
}

// Inert reports whether the path failed to resolve.
func (s Step) Inert() bool { return s.accessor == nil }

// Accessor returns the resolved accessor, or nil for an inert step.
func (s Step) Accessor() *fieldpath.Accessor { return s.accessor }

// Compare orders a and b by this step using fieldpath.Order. Missing values
// sort as nil, and values of different types sort by type the way SQLite
// does.
func (s Step) Compare(a, b reflect.Value) int {
	if s.accessor == nil {
		return 0
	}
	av, _ := s.accessor.Interface(a)
	bv, _ := s.accessor.Interface(b)
	c := fieldpath.Order(av, bv)
	if s.Direction.IsDescending() {
		return -c
	}
	return c
}

// Sort orders items in place by descs, earlier descriptors taking priority.
// The sort is stable, so items that tie on every key keep their order.
func Sort[T any](items []T, descs []Descriptor) {
	steps := ResolveAll(reflect.TypeFor[T](), descs)
	if len(steps) == 0 || len(items) < 2 {
		return
	}
	slices.SortStableFunc(items, func(a, b T) int {
		av, bv := reflect.ValueOf(&a).Elem(), reflect.ValueOf(&b).Elem()
		for _, s := range steps {
			if c := s.Compare(av, bv); c != 0 {
				return c
			}
		}
		return 0
	})
}
