package domain

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// FieldType is the declared type of an output schema field.
type FieldType string

// Supported field types.
const (
	FieldString  FieldType = "string"
	FieldInteger FieldType = "integer"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
	FieldArray   FieldType = "array"
	FieldObject  FieldType = "object"
)

// IsValid returns true if the field type is supported.
func (t FieldType) IsValid() bool {
	switch t {
	case FieldString, FieldInteger, FieldNumber, FieldBoolean, FieldArray, FieldObject:
		return true
	}
	return false
}

// Conventional field names inspected by the confidence gate.
const (
	ConfidenceField   = "confidence"
	AlternativesField = "alternatives"
)

// FieldSpec describes one top-level field of a structured result.
type FieldSpec struct {
	Name        string    `json:"name" yaml:"name"`
	Type        FieldType `json:"type" yaml:"type"`
	Required    bool      `json:"required,omitempty" yaml:"required,omitempty"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`

	// Min and Max bound numeric fields (inclusive).
	Min *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max *float64 `json:"max,omitempty" yaml:"max,omitempty"`

	// Enum restricts string fields, or the elements of string arrays.
	Enum []string `json:"enum,omitempty" yaml:"enum,omitempty"`

	// Items is the element type for array fields.
	Items FieldType `json:"items,omitempty" yaml:"items,omitempty"`

	// MinItems is the minimum length for array fields.
	MinItems int `json:"min_items,omitempty" yaml:"min_items,omitempty"`
}

// OutputSchema is the declarative shape a structured result must satisfy.
type OutputSchema struct {
	Name        string      `json:"name" yaml:"name"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Fields      []FieldSpec `json:"fields" yaml:"fields"`
}

// Field looks up a field by name.
func (s *OutputSchema) Field(name string) (FieldSpec, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// Check verifies the schema itself is well formed.
func (s *OutputSchema) Check() error {
	if len(s.Fields) == 0 {
		return fmt.Errorf("%w: schema %q declares no fields", ErrInvalidInput, s.Name)
	}
	seen := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		if strings.TrimSpace(f.Name) == "" {
			return fmt.Errorf("%w: schema %q has a field without a name", ErrInvalidInput, s.Name)
		}
		if seen[f.Name] {
			return fmt.Errorf("%w: schema %q declares %q twice", ErrInvalidInput, s.Name, f.Name)
		}
		seen[f.Name] = true
		if !f.Type.IsValid() {
			return fmt.Errorf("%w: field %q has unsupported type %q", ErrInvalidInput, f.Name, f.Type)
		}
		if f.Min != nil && f.Max != nil && *f.Min > *f.Max {
			return fmt.Errorf("%w: field %q has min greater than max", ErrInvalidInput, f.Name)
		}
		if f.Type == FieldArray && f.Items != "" && !f.Items.IsValid() {
			return fmt.Errorf("%w: field %q has unsupported item type %q", ErrInvalidInput, f.Name, f.Items)
		}
	}
	return nil
}

// Describe renders the schema as instructions for a model prompt.
func (s *OutputSchema) Describe() string {
	var b strings.Builder
	b.WriteString("Respond with a single JSON object and nothing else.")
	if s.Description != "" {
		b.WriteString(" ")
		b.WriteString(s.Description)
	}
	b.WriteString("\nFields:\n")
	for _, f := range s.Fields {
		fmt.Fprintf(&b, "- %s (%s", f.Name, f.describeType())
		if f.Required {
			b.WriteString(", required")
		} else {
			b.WriteString(", optional")
		}
		b.WriteString(")")
		if f.Min != nil || f.Max != nil {
			fmt.Fprintf(&b, " range [%s, %s]", formatBound(f.Min, "-inf"), formatBound(f.Max, "+inf"))
		}
		if len(f.Enum) > 0 {
			fmt.Fprintf(&b, " one of: %s", strings.Join(f.Enum, ", "))
		}
		if f.MinItems > 0 {
			fmt.Fprintf(&b, " at least %d item(s)", f.MinItems)
		}
		if f.Description != "" {
			b.WriteString(": ")
			b.WriteString(f.Description)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (f FieldSpec) describeType() string {
	if f.Type == FieldArray && f.Items != "" {
		return "array of " + string(f.Items)
	}
	return string(f.Type)
}

func formatBound(v *float64, unset string) string {
	if v == nil {
		return unset
	}
	return fmt.Sprintf("%g", *v)
}

// Violation is one field-level validation failure.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// String formats the violation for logs and refinement prompts.
func (v Violation) String() string {
	if v.Field == "" {
		return v.Message
	}
	return v.Field + ": " + v.Message
}

// Violations is a list of validation failures that can be returned as an error.
type Violations []Violation

// Error implements the error interface.
func (vs Violations) Error() string {
	msgs := make([]string, len(vs))
	for i, v := range vs {
		msgs[i] = v.String()
	}
	return strings.Join(msgs, "; ")
}

// Unwrap lets errors.Is match ErrSchemaValidationFailed.
func (vs Violations) Unwrap() error {
	return ErrSchemaValidationFailed
}

// Validate checks value against the schema and returns every violation found.
// Values are expected in the shape produced by encoding/json: numbers as
// float64, arrays as []any, objects as map[string]any.
func (s *OutputSchema) Validate(value map[string]any) Violations {
	var out Violations
	if value == nil {
		return Violations{{Message: "output is not a JSON object"}}
	}
	for _, f := range s.Fields {
		v, ok := value[f.Name]
		if !ok || v == nil {
			if f.Required {
				out = append(out, Violation{Field: f.Name, Message: "required field is missing"})
			}
			continue
		}
		out = append(out, f.validate(v)...)
	}

	// Report unknown fields in a stable order.
	var extra []string
	for k := range value {
		if _, ok := s.Field(k); !ok {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		out = append(out, Violation{Field: k, Message: "field is not declared by the schema"})
	}
	return out
}

func (f FieldSpec) validate(v any) []Violation {
	switch f.Type {
	case FieldString:
		s, ok := v.(string)
		if !ok {
			return []Violation{f.typeViolation(v)}
		}
		if len(f.Enum) > 0 && !contains(f.Enum, s) {
			return []Violation{{Field: f.Name, Message: fmt.Sprintf("value %q is not one of [%s]", s, strings.Join(f.Enum, ", "))}}
		}
	case FieldInteger, FieldNumber:
		n, ok := v.(float64)
		if !ok {
			return []Violation{f.typeViolation(v)}
		}
		if f.Type == FieldInteger && n != math.Trunc(n) {
			return []Violation{{Field: f.Name, Message: fmt.Sprintf("value %g is not an integer", n)}}
		}
		if f.Min != nil && n < *f.Min {
			return []Violation{{Field: f.Name, Message: fmt.Sprintf("value %g is below minimum %g", n, *f.Min)}}
		}
		if f.Max != nil && n > *f.Max {
			return []Violation{{Field: f.Name, Message: fmt.Sprintf("value %g is above maximum %g", n, *f.Max)}}
		}
	case FieldBoolean:
		if _, ok := v.(bool); !ok {
			return []Violation{f.typeViolation(v)}
		}
	case FieldObject:
		if _, ok := v.(map[string]any); !ok {
			return []Violation{f.typeViolation(v)}
		}
	case FieldArray:
		items, ok := v.([]any)
		if !ok {
			return []Violation{f.typeViolation(v)}
		}
		if len(items) < f.MinItems {
			return []Violation{{Field: f.Name, Message: fmt.Sprintf("has %d item(s), need at least %d", len(items), f.MinItems)}}
		}
		return f.validateItems(items)
	}
	return nil
}

func (f FieldSpec) validateItems(items []any) []Violation {
	if f.Items == "" {
		return nil
	}
	var out []Violation
	for i, item := range items {
		elem := FieldSpec{
			Name: fmt.Sprintf("%s[%d]", f.Name, i),
			Type: f.Items,
			Enum: f.Enum,
			Min:  f.Min,
			Max:  f.Max,
		}
		out = append(out, elem.validate(item)...)
	}
	return out
}

func (f FieldSpec) typeViolation(v any) Violation {
	return Violation{Field: f.Name, Message: fmt.Sprintf("expected %s, got %s", f.Type, jsonTypeName(v))}
}

func jsonTypeName(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func contains(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
