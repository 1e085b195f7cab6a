package model

import (
	"fmt"
	"regexp"
	"strings"
)

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	TypeID string
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// Add appends a field error.
func (e *ValidationError) Add(field, format string, args ...any) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Err returns e if it holds errors, nil otherwise.
func (e *ValidationError) Err() error {
	if e.HasErrors() {
		return e
	}
	return nil
}

// Type ids become storage namespace names, so they are restricted to a
// portable identifier alphabet.
var typeIDPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{0,47}$`)

// ValidateTypeID checks that id can name a type.
func ValidateTypeID(id string) error {
	if !typeIDPattern.MatchString(id) {
		ve := &ValidationError{TypeID: id}
		ve.Add("id", "must start with a letter and contain only letters, digits and underscores (max 48)")
		return ve
	}
	return nil
}

var fieldNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// ValidateFieldName checks that name can be used as a column.
func ValidateFieldName(name string) error {
	if !fieldNamePattern.MatchString(name) {
		return fmt.Errorf("invalid field name %q", name)
	}
	return nil
}

// ValidateFieldSpec checks a declared FieldSpec.
func ValidateFieldSpec(name string, spec FieldSpec) error {
	if err := ValidateFieldName(name); err != nil {
		return err
	}
	if !spec.Kind.IsValid() {
		return fmt.Errorf("field %q: invalid type %q", name, spec.Kind)
	}
	return nil
}

// ValidateGrant checks a grant before it is stored.
func ValidateGrant(g *Grant) error {
	var ve ValidationError
	if strings.TrimSpace(g.ResourceID) == "" {
		ve.Add("id", "is required")
	}
	if strings.TrimSpace(g.Owner) == "" {
		ve.Add("owner", "is required")
	}
	return ve.Err()
}

// ValidateUser checks a user before it is stored.
func ValidateUser(u *User) error {
	var ve ValidationError
	if strings.TrimSpace(u.ID) == "" {
		ve.Add("id", "is required")
	}
	if u.Role != RoleAdmin && u.Role != RoleUser {
		ve.Add("role", "invalid value %q", u.Role)
	}
	return ve.Err()
}
