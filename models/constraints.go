package models

import (
	"fmt"
	"reflect"
	"strings"
	"unicode/utf8"
)

// FieldConstraint describes the store-level limits of a single entity field.
// MaxLength counts runes and applies to string and *string values; zero means
// unbounded. Required rejects nil pointers, zero values and blank strings.
type FieldConstraint struct {
	Field     string
	Column    string
	MaxLength int
	Required  bool
	Value     any
}

// Constrained is implemented by every entity that can be validated before flush.
type Constrained interface {
	Constraints() []FieldConstraint
}

// Violation records one failed constraint.
type Violation struct {
	Field  string
	Reason string
}

// ValidationError lists every violated constraint of one entity.
type ValidationError struct {
	Entity     string
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.Field+" "+v.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Entity, strings.Join(parts, "; "))
}

// Validate checks all constraints of entity and returns a *ValidationError
// when at least one of them fails.
func Validate(entity Constrained) error {
	if entity == nil {
		return fmt.Errorf("validate: entity is nil")
	}

	var violations []Violation
	for _, c := range entity.Constraints() {
		violations = append(violations, c.check()...)
	}
	if len(violations) == 0 {
		return nil
	}

	return &ValidationError{Entity: entityName(entity), Violations: violations}
}

func (c FieldConstraint) check() []Violation {
	var out []Violation

	text, isText := c.text()
	if c.Required {
		switch {
		case isText && strings.TrimSpace(text) == "":
			out = append(out, Violation{Field: c.Field, Reason: "is required"})
		case !isText && isZero(c.Value):
			out = append(out, Violation{Field: c.Field, Reason: "is required"})
		}
	}

	if isText && c.MaxLength > 0 {
		if n := utf8.RuneCountInString(text); n > c.MaxLength {
			out = append(out, Violation{
				Field:  c.Field,
				Reason: fmt.Sprintf("exceeds %d characters (got %d)", c.MaxLength, n),
			})
		}
	}

	return out
}

func (c FieldConstraint) text() (string, bool) {
	switch v := c.Value.(type) {
	case string:
		return v, true
	case *string:
		if v == nil {
			return "", true
		}
		return *v, true
	default:
		return "", false
	}
}

func isZero(value any) bool {
	if value == nil {
		return true
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Slice, reflect.Map:
		return rv.IsNil()
	default:
		return rv.IsZero()
	}
}

func entityName(entity any) string {
	t := reflect.TypeOf(entity)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}
