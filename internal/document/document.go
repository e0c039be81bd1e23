// Package document defines the schemaless entity the specrepo CLI stores.
//
// Arbitrary fields live under Data, so paths such as "data.age" resolve
// through the map step of the field path interpreter.
package document

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/oklog/ulid/v2"
	"gopkg.in/yaml.v3"

	"github.com/rshade/specrepo/internal/entity"
)

// ErrInvalidDocument is returned when input cannot be read as documents.
var ErrInvalidDocument = errors.New("invalid document")

// Document is a schemaless record.
type Document struct {
	entity.Base[string] `yaml:",inline"`

	Kind      string         `json:"kind,omitempty" yaml:"kind,omitempty"`
	Data      map[string]any `json:"data"           yaml:"data"`
	CreatedAt time.Time      `json:"created_at"     yaml:"created_at"`
}

// New returns a document with a fresh ULID.
func New(kind string, data map[string]any) *Document {
	d := &Document{Kind: kind, Data: data}
	d.EnsureID(time.Now())
	return d
}

// NewID returns a new ULID string.
func NewID() string {
	return ulid.Make().String()
}

// EnsureID assigns an ID and creation time to documents that lack them.
func (d *Document) EnsureID(now time.Time) {
	if d.IsTransient() {
		d.ID = NewID()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now.UTC()
	}
	if d.Data == nil {
		d.Data = map[string]any{}
	}
}

// Field returns the top-level data value for key.
func (d *Document) Field(key string) (any, bool) {
	v, ok := d.Data[key]
	return v, ok
}

// Summary renders Data as compact JSON cut to width runes.
func (d *Document) Summary(width int) string {
	raw, err := json.Marshal(d.Data)
	if err != nil {
		return "?"
	}
	s := []rune(string(raw))
	if len(s) <= width {
		return string(s)
	}
	if width <= 3 {
		return string(s[:width])
	}
	return string(s[:width-3]) + "..."
}

// Decode reads every YAML document from r. Each YAML document is either a
// single Document mapping or a sequence of them. Documents without an ID or
// creation time get one.
func Decode(r io.Reader, now time.Time) ([]*Document, error) {
	dec := yaml.NewDecoder(r)
	var out []*Document
	for {
		var node yaml.Node
		err := dec.Decode(&node)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
		}
		docs, err := decodeNode(&node)
		if err != nil {
			return nil, err
		}
		out = append(out, docs...)
	}
	for _, d := range out {
		d.EnsureID(now)
	}
	return out, nil
}

func decodeNode(node *yaml.Node) ([]*Document, error) {
	root := node
	if root.Kind == yaml.DocumentNode && len(root.Content) == 1 {
		root = root.Content[0]
	}
	switch root.Kind { //nolint:exhaustive // only mappings and sequences hold documents
	case yaml.MappingNode:
		var d Document
		if err := root.Decode(&d); err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrInvalidDocument, root.Line, err)
		}
		return []*Document{&d}, nil
	case yaml.SequenceNode:
		var docs []*Document
		if err := root.Decode(&docs); err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrInvalidDocument, root.Line, err)
		}
		for i, d := range docs {
			if d == nil {
				return nil, fmt.Errorf("%w: item %d is empty", ErrInvalidDocument, i)
			}
		}
		return docs, nil
	case yaml.DocumentNode:
		// An empty YAML document.
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: line %d: expected a mapping or a sequence", ErrInvalidDocument, root.Line)
	}
}
