package fieldpath

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// Resolution errors.
var (
	ErrEmptyPath     = errors.New("field path cannot be empty")
	ErrUnresolvable  = errors.New("unresolvable field path")
	ErrNilRootType   = errors.New("root type cannot be nil")
	ErrInvalidTarget = errors.New("value does not match accessor root type")
)

type stepKind int

const (
	stepField stepKind = iota
	stepMapKey
	stepDynamic
)

type step struct {
	kind  stepKind
	name  string
	key   string
	index []int
}

// Accessor reads the value addressed by a resolved path.
type Accessor struct {
	root  reflect.Type
	path  string
	steps []step
	leaf  reflect.Type
}

type cacheKey struct {
	root reflect.Type
	path string
}

var accessors sync.Map

// Split breaks a dotted path into trimmed segments.
func Split(path string) ([]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, ErrEmptyPath
	}
	segments := strings.Split(path, ".")
	for i, seg := range segments {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			return nil, fmt.Errorf("%w: empty segment in %q", ErrUnresolvable, path)
		}
		segments[i] = seg
	}
	return segments, nil
}

// Resolve returns an accessor for path rooted at the given type.
func Resolve(root reflect.Type, path string) (*Accessor, error) {
	if root == nil {
		return nil, ErrNilRootType
	}
	key := cacheKey{root: root, path: path}
	if cached, ok := accessors.Load(key); ok {
		return cached.(*Accessor), nil //nolint:errcheck // only *Accessor is stored
	}

	segments, err := Split(path)
	if err != nil {
		return nil, err
	}
	acc, err := resolve(root, strings.Join(segments, "."), segments)
	if err != nil {
		return nil, err
	}

	actual, _ := accessors.LoadOrStore(key, acc)
	return actual.(*Accessor), nil //nolint:errcheck // only *Accessor is stored
}

// MustResolve is like Resolve but panics on error. Intended for package-level
// variables and tests.
func MustResolve(root reflect.Type, path string) *Accessor {
	acc, err := Resolve(root, path)
	if err != nil {
		panic(err)
	}
	return acc
}

func resolve(root reflect.Type, path string, segments []string) (*Accessor, error) {
	acc := &Accessor{root: root, path: path, steps: make([]step, 0, len(segments))}
	current := root
	dynamic := false

	for _, seg := range segments {
		if dynamic {
			acc.steps = append(acc.steps, step{kind: stepDynamic, name: seg, key: seg})
			continue
		}

		for current.Kind() == reflect.Pointer {
			current = current.Elem()
		}

		switch current.Kind() {
		case reflect.Struct:
			field, ok := lookupField(current, seg)
			if !ok {
				return nil, fmt.Errorf("%w: %s has no field %q (path %q)", ErrUnresolvable, current, seg, path)
			}
			acc.steps = append(acc.steps, step{
				kind:  stepField,
				name:  seg,
				key:   storageKey(field),
				index: field.Index,
			})
			current = field.Type
		case reflect.Map:
			if current.Key().Kind() != reflect.String {
				return nil, fmt.Errorf("%w: %s is not keyed by string (path %q)", ErrUnresolvable, current, path)
			}
			acc.steps = append(acc.steps, step{kind: stepMapKey, name: seg, key: seg})
			current = current.Elem()
		case reflect.Interface:
			dynamic = true
			acc.steps = append(acc.steps, step{kind: stepDynamic, name: seg, key: seg})
		default:
			return nil, fmt.Errorf("%w: cannot select %q from %s (path %q)", ErrUnresolvable, seg, current, path)
		}
	}

	if !dynamic {
		acc.leaf = current
	}
	return acc, nil
}

// lookupField matches the json name first, then the exact Go name, then the
// Go name ignoring case.
func lookupField(t reflect.Type, name string) (reflect.StructField, bool) {
	fields := reflect.VisibleFields(t)
	matchers := []func(reflect.StructField) bool{
		func(f reflect.StructField) bool { return jsonName(f) == name },
		func(f reflect.StructField) bool { return f.Name == name },
		func(f reflect.StructField) bool { return strings.EqualFold(f.Name, name) },
	}
	for _, match := range matchers {
		for _, f := range fields {
			if !f.IsExported() || f.Anonymous {
				continue
			}
			if match(f) {
				return f, true
			}
		}
	}
	return reflect.StructField{}, false
}

func jsonName(f reflect.StructField) string {
	tag, ok := f.Tag.Lookup("json")
	if !ok {
		return ""
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "-" {
		return ""
	}
	return name
}

func storageKey(f reflect.StructField) string {
	if name := jsonName(f); name != "" {
		return name
	}
	return f.Name
}

// Path returns the normalized dotted path.
func (a *Accessor) Path() string { return a.path }

// Root returns the type the accessor was resolved against.
func (a *Accessor) Root() reflect.Type { return a.root }

// Leaf returns the static type of the addressed value, or nil when the path
// crosses an interface and the type is only known at access time.
func (a *Accessor) Leaf() reflect.Type { return a.leaf }

// StorageKeys returns the path as serialized keys (json names for struct
// fields), suitable for addressing the JSON encoding of a value.
func (a *Accessor) StorageKeys() []string {
	keys := make([]string, len(a.steps))
	for i, s := range a.steps {
		keys[i] = s.key
	}
	return keys
}

// Get walks the path from root. ok is false when any intermediate value is
// nil, a map key is missing, or a dynamic segment cannot be selected.
func (a *Accessor) Get(root reflect.Value) (reflect.Value, bool) {
	v := root
	for _, s := range a.steps {
		v = indirect(v)
		if !v.IsValid() {
			return reflect.Value{}, false
		}

		var ok bool
		switch s.kind {
		case stepField:
			v, ok = selectField(v, s.index)
		case stepMapKey:
			v, ok = selectKey(v, s.name)
		case stepDynamic:
			v, ok = selectDynamic(v, s.name)
		}
		if !ok {
			return reflect.Value{}, false
		}
	}
	return v, true
}

// Interface is Get followed by unwrapping the result into a plain value.
// Pointers are dereferenced; a nil pointer yields (nil, true).
func (a *Accessor) Interface(root reflect.Value) (any, bool) {
	v, ok := a.Get(root)
	if !ok {
		return nil, false
	}
	v = indirect(v)
	if !v.IsValid() {
		return nil, true
	}
	if !v.CanInterface() {
		return nil, false
	}
	return v.Interface(), true
}

// Value reads the addressed value from x.
func (a *Accessor) Value(x any) (any, bool) {
	return a.Interface(reflect.ValueOf(x))
}

func (a *Accessor) String() string {
	return fmt.Sprintf("%s.%s", a.root, a.path)
}

func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

func selectField(v reflect.Value, index []int) (reflect.Value, bool) {
	if v.Kind() != reflect.Struct {
		return reflect.Value{}, false
	}
	field, err := v.FieldByIndexErr(index)
	if err != nil {
		return reflect.Value{}, false
	}
	return field, true
}

func selectKey(v reflect.Value, key string) (reflect.Value, bool) {
	if v.Kind() != reflect.Map || v.Type().Key().Kind() != reflect.String {
		return reflect.Value{}, false
	}
	value := v.MapIndex(reflect.ValueOf(key).Convert(v.Type().Key()))
	if !value.IsValid() {
		return reflect.Value{}, false
	}
	return value, true
}

func selectDynamic(v reflect.Value, name string) (reflect.Value, bool) {
	switch v.Kind() { //nolint:exhaustive // only structs and maps have members
	case reflect.Map:
		return selectKey(v, name)
	case reflect.Struct:
		field, ok := lookupField(v.Type(), name)
		if !ok {
			return reflect.Value{}, false
		}
		return selectField(v, field.Index)
	default:
		return reflect.Value{}, false
	}
}
