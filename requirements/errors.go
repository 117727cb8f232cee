package requirements

import (
	"errors"
	"fmt"
	"strings"
)

// Configuration errors describe a defect in the requirement set itself, as
// opposed to a respondent's invalid answer. They are returned by Compile
// before any field is evaluated, and the HTTP layer maps them to 5xx while
// verdict failures stay 4xx.

// ConfigurationError is implemented by every error Compile can return.
type ConfigurationError interface {
	error
	configurationError()
}

// IsConfigurationError reports whether err (or anything it wraps) marks a
// requirement-set defect.
func IsConfigurationError(err error) bool {
	var ce ConfigurationError
	return errors.As(err, &ce)
}

// CyclicDependencyError reports conditional logic that forms a cycle.
type CyclicDependencyError struct {
	Fields []string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("conditional logic forms a cycle involving fields: %s", strings.Join(e.Fields, ", "))
}

func (e *CyclicDependencyError) configurationError() {}

// UnknownFieldReferenceError reports conditional logic naming a field that
// is not declared in the requirement set.
type UnknownFieldReferenceError struct {
	FieldName string // requirement whose condition is at fault
	Reference string // the undeclared field it references
}

func (e *UnknownFieldReferenceError) Error() string {
	return fmt.Sprintf("requirement %q references undeclared field %q", e.FieldName, e.Reference)
}

func (e *UnknownFieldReferenceError) configurationError() {}

// DuplicateFieldError reports two requirements sharing a field name.
type DuplicateFieldError struct {
	FieldName string
}

func (e *DuplicateFieldError) Error() string {
	return fmt.Sprintf("duplicate requirement for field %q", e.FieldName)
}

func (e *DuplicateFieldError) configurationError() {}

// InvalidParamsError reports a requirement whose parameters do not match
// its validation method, or whose condition cannot be evaluated against
// the declared field types.
type InvalidParamsError struct {
	FieldName string
	Reason    string
}

func (e *InvalidParamsError) Error() string {
	return fmt.Sprintf("requirement %q: %s", e.FieldName, e.Reason)
}

func (e *InvalidParamsError) configurationError() {}

// ConditionParseError reports conditional logic that does not parse.
type ConditionParseError struct {
	FieldName string
	Source    string
	Pos       int
	Reason    string
}

func (e *ConditionParseError) Error() string {
	return fmt.Sprintf("requirement %q: cannot parse condition %q at offset %d: %s", e.FieldName, e.Source, e.Pos, e.Reason)
}

func (e *ConditionParseError) configurationError() {}
