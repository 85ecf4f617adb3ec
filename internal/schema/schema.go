// Package schema is the catalog of page-builder node types. Each entry says
// whether the type may own children, which attributes it carries and which
// children a freshly built node starts with.
package schema

import (
	"math"
	"sort"
)

// Kind is the value kind of a declared field.
type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindBool
	KindToken // string restricted to Field.Options
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindToken:
		return "token"
	default:
		return "unknown"
	}
}

// MarshalText makes kinds readable in the schema endpoint.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Field declares one attribute of a node type.
type Field struct {
	Name    string   `json:"name"`
	Kind    Kind     `json:"kind"`
	Default any      `json:"default"`
	Options []string `json:"options,omitempty"`
}

// Child is a default child structure. Ids are assigned when a node is built.
type Child struct {
	Type     string
	Props    map[string]any
	Children []Child
}

// Schema describes a node type.
type Schema struct {
	Type            string
	Container       bool
	Fields          []Field
	ContentFields   []Field
	DefaultChildren []Child
}

// Describe returns the schema registered for nodeType. The boolean is false
// for unknown types; callers treat those as opaque leaves.
func Describe(nodeType string) (Schema, bool) {
	s, ok := registry[nodeType]
	return s, ok
}

// IsContainer reports whether nodeType may own children.
func IsContainer(nodeType string) bool {
	s, ok := registry[nodeType]
	return ok && s.Container
}

// IsLeaf reports whether nodeType is a registered leaf type. Unknown types
// are neither containers nor registered leaves.
func IsLeaf(nodeType string) bool {
	s, ok := registry[nodeType]
	return ok && !s.Container
}

// Types lists every registered type name in sorted order.
func Types() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasContent reports whether the type carries a structured content map.
func (s Schema) HasContent() bool {
	return len(s.ContentFields) > 0
}

// Field looks up a declared prop field.
func (s Schema) Field(name string) (Field, bool) {
	return findField(s.Fields, name)
}

// ContentField looks up a declared content field.
func (s Schema) ContentField(name string) (Field, bool) {
	return findField(s.ContentFields, name)
}

// DefaultProps returns a fresh map holding every field default.
func (s Schema) DefaultProps() map[string]any {
	return defaults(s.Fields)
}

// DefaultContent returns the content defaults, or nil when the type has no
// content schema.
func (s Schema) DefaultContent() map[string]any {
	if !s.HasContent() {
		return nil
	}
	return defaults(s.ContentFields)
}

// Accepts reports whether v is a valid value for the field. v must already be
// normalized.
func (f Field) Accepts(v any) bool {
	switch f.Kind {
	case KindString:
		_, ok := v.(string)
		return ok
	case KindNumber:
		_, ok := v.(float64)
		return ok
	case KindBool:
		_, ok := v.(bool)
		return ok
	case KindToken:
		s, ok := v.(string)
		if !ok {
			return false
		}
		for _, option := range f.Options {
			if option == s {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// Normalize maps a Go value onto the scalar set allowed in props and content:
// string, float64 and bool. Integers and float32 become float64. NaN, the
// infinities and anything else are rejected.
func Normalize(v any) (any, bool) {
	switch value := v.(type) {
	case string, bool:
		return value, true
	case float64:
		return finite(value)
	case float32:
		return finite(float64(value))
	case int:
		return float64(value), true
	case int8:
		return float64(value), true
	case int16:
		return float64(value), true
	case int32:
		return float64(value), true
	case int64:
		return float64(value), true
	case uint:
		return float64(value), true
	case uint8:
		return float64(value), true
	case uint16:
		return float64(value), true
	case uint32:
		return float64(value), true
	case uint64:
		return float64(value), true
	default:
		return nil, false
	}
}

// Check normalizes value for key against fields. Declared keys must match
// their kind; undeclared keys accept any scalar.
func Check(fields []Field, key string, value any) (any, bool) {
	normalized, ok := Normalize(value)
	if !ok {
		return nil, false
	}
	if field, declared := findField(fields, key); declared && !field.Accepts(normalized) {
		return nil, false
	}
	return normalized, true
}

func finite(f float64) (any, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, false
	}
	return f, true
}

func findField(fields []Field, name string) (Field, bool) {
	for _, field := range fields {
		if field.Name == name {
			return field, true
		}
	}
	return Field{}, false
}

func defaults(fields []Field) map[string]any {
	out := make(map[string]any, len(fields))
	for _, field := range fields {
		if field.Default != nil {
			out[field.Name] = field.Default
		}
	}
	return out
}
