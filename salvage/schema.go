package salvage

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind is the JSON kind a field must have.
type Kind int

const (
	KindAny Kind = iota
	KindString
	KindNumber
	KindBool
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "any"
	}
}

// matches reports whether a value decoded by encoding/json has kind k.
func (k Kind) matches(v any) bool {
	switch k {
	case KindString:
		_, ok := v.(string)
		return ok
	case KindNumber:
		_, ok := v.(float64)
		return ok
	case KindBool:
		_, ok := v.(bool)
		return ok
	case KindArray:
		_, ok := v.([]any)
		return ok
	case KindObject:
		_, ok := v.(map[string]any)
		return ok
	default:
		return true
	}
}

// Field describes one property of an item.
type Field struct {
	Name     string
	Kind     Kind
	Required bool
}

// Schema describes the items to extract.
type Schema[T any] struct {
	// ArrayField names the top-level array holding the items, e.g. "items".
	// Empty means the response is a bare array.
	ArrayField string

	// Fields are checked on the raw object before it is decoded into T.
	Fields []Field

	// Check runs on the decoded item. Optional.
	Check func(T) error
}

// RequiredFields returns the names of required fields.
func (s Schema[T]) RequiredFields() []string {
	var names []string
	for _, f := range s.Fields {
		if f.Required {
			names = append(names, f.Name)
		}
	}
	return names
}

// Validation is the outcome of validating one candidate: an item, or the reason
// it was rejected.
type Validation[T any] struct {
	Item   T
	Reason string
}

// Valid reports whether the candidate was accepted.
func (v Validation[T]) Valid() bool {
	return v.Reason == ""
}

// Validate checks a raw JSON element against the schema and decodes it.
// Required strings must be non-blank. Null counts as absent.
func (s Schema[T]) Validate(raw json.RawMessage) Validation[T] {
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return Validation[T]{Reason: "not an object"}
	}

	for _, f := range s.Fields {
		v, ok := obj[f.Name]
		if !ok || v == nil {
			if f.Required {
				return Validation[T]{Reason: fmt.Sprintf("missing required field %q", f.Name)}
			}
			continue
		}
		if !f.Kind.matches(v) {
			return Validation[T]{Reason: fmt.Sprintf("field %q is not a %s", f.Name, f.Kind)}
		}
		if f.Required && f.Kind == KindString && strings.TrimSpace(v.(string)) == "" {
			return Validation[T]{Reason: fmt.Sprintf("required field %q is empty", f.Name)}
		}
	}

	var item T
	if err := json.Unmarshal(raw, &item); err != nil {
		return Validation[T]{Reason: fmt.Sprintf("decode: %v", err)}
	}
	if s.Check != nil {
		if err := s.Check(item); err != nil {
			return Validation[T]{Reason: err.Error()}
		}
	}
	return Validation[T]{Item: item}
}
