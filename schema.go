package rules

import (
	"fmt"
	"sort"
	"time"

	"github.com/oarkflow/date"
)

// ============================================================================
// SCHEMA VALIDATION (field contracts on writes)
// ============================================================================

// FieldType enumerates the value types a field contract may declare.
type FieldType string

const (
	TypeString      FieldType = "string"
	TypeNumber      FieldType = "number"
	TypeBool        FieldType = "bool"
	TypeTimestamp   FieldType = "timestamp"
	TypeStringArray FieldType = "string_array"
)

func (t FieldType) valid() bool {
	switch t {
	case TypeString, TypeNumber, TypeBool, TypeTimestamp, TypeStringArray:
		return true
	}
	return false
}

// FieldSpec declares the contract for a single document field.
type FieldSpec struct {
	Name     string
	Type     FieldType
	Required bool
	Nullable bool
	Enum     []string // allowed values for string fields, empty = unconstrained
}

// Schema is the per-collection field contract: an allowed-field whitelist
// with required keys and type/enum constraints. Field order is the
// declaration order; validation reports errors deterministically.
type Schema struct {
	fields []FieldSpec
	byName map[string]int
}

func NewSchema(fields ...FieldSpec) *Schema {
	s := &Schema{fields: fields, byName: make(map[string]int, len(fields))}
	for i, f := range fields {
		s.byName[f.Name] = i
	}
	return s
}

// Fields returns the declared specs in declaration order.
func (s *Schema) Fields() []FieldSpec { return s.fields }

func (s *Schema) validateSpec() error {
	for _, f := range s.fields {
		if f.Name == "" {
			return fmt.Errorf("schema field with empty name")
		}
		if !f.Type.valid() {
			return fmt.Errorf("schema field %s: unknown type %q", f.Name, f.Type)
		}
		if len(f.Enum) > 0 && f.Type != TypeString {
			return fmt.Errorf("schema field %s: enum constraints require string type", f.Name)
		}
	}
	return nil
}

// FieldErrorKind classifies a single validation failure.
type FieldErrorKind string

const (
	UnknownField FieldErrorKind = "UNKNOWN_FIELD"
	MissingField FieldErrorKind = "MISSING_FIELD"
	TypeMismatch FieldErrorKind = "TYPE_MISMATCH"
	InvalidEnum  FieldErrorKind = "INVALID_ENUM"
)

// FieldError is one schema violation for one field.
type FieldError struct {
	Field string
	Kind  FieldErrorKind
	Desc  string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("field %s: %s (%s)", e.Field, e.Desc, e.Kind)
}

// Validate checks an incoming document against the contract. It returns every
// violation in deterministic order: unknown fields by sorted key, then
// missing required fields in declaration order, then type and enum failures
// in declaration order. It never inspects existing state.
func (s *Schema) Validate(incoming map[string]any) []FieldError {
	var errs []FieldError

	unknown := make([]string, 0)
	for k := range incoming {
		if _, ok := s.byName[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	sort.Strings(unknown)
	for _, k := range unknown {
		errs = append(errs, FieldError{Field: k, Kind: UnknownField, Desc: "field not allowed by schema"})
	}

	for _, f := range s.fields {
		if _, present := incoming[f.Name]; !present && f.Required {
			errs = append(errs, FieldError{Field: f.Name, Kind: MissingField, Desc: "required field missing"})
		}
	}

	for _, f := range s.fields {
		v, present := incoming[f.Name]
		if !present {
			continue
		}
		if v == nil {
			if !f.Nullable {
				errs = append(errs, FieldError{Field: f.Name, Kind: TypeMismatch, Desc: "null for non-nullable field"})
			}
			continue
		}
		if !valueMatchesType(v, f.Type) {
			errs = append(errs, FieldError{
				Field: f.Name,
				Kind:  TypeMismatch,
				Desc:  fmt.Sprintf("expected %s, got %T", f.Type, v),
			})
			continue
		}
		if len(f.Enum) > 0 {
			sv, _ := v.(string)
			if !containsString(f.Enum, sv) {
				errs = append(errs, FieldError{
					Field: f.Name,
					Kind:  InvalidEnum,
					Desc:  fmt.Sprintf("%q not in %v", sv, f.Enum),
				})
			}
		}
	}
	return errs
}

func valueMatchesType(v any, t FieldType) bool {
	switch t {
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeNumber:
		switch v.(type) {
		case int, int32, int64, float32, float64:
			return true
		}
		return false
	case TypeBool:
		_, ok := v.(bool)
		return ok
	case TypeTimestamp:
		switch vv := v.(type) {
		case time.Time:
			return true
		case string:
			_, err := date.Parse(vv)
			return err == nil
		}
		return false
	case TypeStringArray:
		switch vv := v.(type) {
		case []string:
			return true
		case []any:
			for _, item := range vv {
				if _, ok := item.(string); !ok {
					return false
				}
			}
			return true
		}
		return false
	}
	return false
}

func containsString(set []string, s string) bool {
	for _, item := range set {
		if item == s {
			return true
		}
	}
	return false
}
