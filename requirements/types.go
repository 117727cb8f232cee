package requirements

import "time"

// FieldType is the declared primitive type of a survey field.
type FieldType string

const (
	FieldInteger FieldType = "integer"
	FieldDecimal FieldType = "decimal"
	FieldString  FieldType = "string"
	FieldBoolean FieldType = "boolean"
	FieldDate    FieldType = "date"
)

// valid reports whether t is one of the declared field types.
func (t FieldType) valid() bool {
	switch t {
	case FieldInteger, FieldDecimal, FieldString, FieldBoolean, FieldDate:
		return true
	}
	return false
}

// numeric reports whether values of this type are compared numerically.
func (t FieldType) numeric() bool {
	return t == FieldInteger || t == FieldDecimal
}

// RequirementType classifies a requirement for reporting purposes.
// It has no effect on evaluation.
type RequirementType string

const (
	TypeDemographic RequirementType = "demographic"
	TypeContact     RequirementType = "contact"
	TypeBehavioral  RequirementType = "behavioral"
	TypeCustom      RequirementType = "custom"
)

// ValidationMethod selects the constraint applied to a submitted value.
type ValidationMethod string

const (
	MethodNone        ValidationMethod = "none"
	MethodRange       ValidationMethod = "range"
	MethodRegex       ValidationMethod = "regex"
	MethodCustom      ValidationMethod = "custom"
	MethodConditional ValidationMethod = "conditional"
)

// RangeParams holds the bounds for MethodRange. A nil bound is unbounded
// on that side. Both bounds are inclusive.
type RangeParams struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// RegexParams holds the pattern for MethodRegex. The pattern is anchored
// at both ends when compiled, whether or not it is written anchored.
type RegexParams struct {
	Pattern string `json:"pattern"`
}

// CustomParams names the registered validator for MethodCustom.
type CustomParams struct {
	FunctionName string `json:"functionName"`
}

// Requirement describes the constraints attached to one survey field.
// Exactly one of Range, Regex, Custom is set, matching Method; the pairing
// is enforced when the set is compiled.
type Requirement struct {
	ID              string
	SurveyID        string
	FieldName       string
	FieldType       FieldType
	IsRequired      bool
	RequirementType RequirementType
	Method          ValidationMethod

	Range  *RangeParams
	Regex  *RegexParams
	Custom *CustomParams

	// ConditionalLogic is the condition source as authored, e.g.
	// "employment_status == 'employed' AND age >= 21". It is parsed once
	// at compile time. Required when Method is MethodConditional.
	ConditionalLogic string

	ErrorMessage string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// FieldOutcome is the per-field result of one validation pass.
type FieldOutcome struct {
	FieldName    string
	Applicable   bool
	Valid        bool
	ErrorMessage string
}

// FieldError pairs a failing field with its message.
type FieldError struct {
	FieldName string `json:"fieldName"`
	Message   string `json:"message"`
}

// Verdict is the aggregate result of validating one submission.
// Errors and SkippedFields follow requirement declaration order, so two
// passes over identical inputs produce identical verdicts.
type Verdict struct {
	IsValid       bool         `json:"isValid"`
	Errors        []FieldError `json:"errors"`
	SkippedFields []string     `json:"skippedFields"`
}
