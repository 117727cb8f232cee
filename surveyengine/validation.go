package surveyengine

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/liamcoop/requirements/requirements"
)

// LintResult is the admin-facing pre-save check of a requirement set.
// Errors block saving; warnings flag configurations that compile but are
// probably not what the survey author meant.
type LintResult struct {
	IsValid  bool     `json:"isValid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

const (
	maxRequirements = 200
	maxNameLength   = 100
	maxMessageLen   = 500
)

var validFieldName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// LintRequirementSet checks a requirement set before it is persisted. It
// layers structural checks the compiler does not make (identifier rules,
// size caps, message lengths) on top of a full compile, and adds the
// warnings an author wants before publishing a survey.
func LintRequirementSet(reqs []*requirements.Requirement, validators *requirements.ValidatorRegistry) *LintResult {
	result := &LintResult{
		Errors:   []string{},
		Warnings: []string{},
	}

	if len(reqs) == 0 {
		result.Errors = append(result.Errors, "requirement set cannot be empty")
		result.IsValid = false
		return result
	}
	if len(reqs) > maxRequirements {
		result.Errors = append(result.Errors, fmt.Sprintf("requirement set contains %d requirements, maximum allowed is %d", len(reqs), maxRequirements))
	}

	for _, r := range reqs {
		if err := validateFieldName(r.FieldName); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("invalid field name %q: %v", r.FieldName, err))
		}
		if len(r.ErrorMessage) > maxMessageLen {
			result.Errors = append(result.Errors, fmt.Sprintf("field %q: error message exceeds %d characters", r.FieldName, maxMessageLen))
		}

		if r.ErrorMessage == "" && r.Method != requirements.MethodNone {
			result.Warnings = append(result.Warnings, fmt.Sprintf("field %q has no error message; respondents will see a generated one", r.FieldName))
		}
		if !r.IsRequired && r.Method == requirements.MethodNone && r.ConditionalLogic == "" {
			result.Warnings = append(result.Warnings, fmt.Sprintf("field %q is optional and unconstrained; the requirement has no effect", r.FieldName))
		}
		if r.Method == requirements.MethodCustom && r.Custom != nil && validators != nil {
			if _, ok := validators.Lookup(r.Custom.FunctionName); !ok {
				result.Warnings = append(result.Warnings, fmt.Sprintf("field %q references unregistered validator %q", r.FieldName, r.Custom.FunctionName))
			}
		}
	}

	if _, err := requirements.Compile(reqs); err != nil {
		result.Errors = append(result.Errors, err.Error())
	}

	result.IsValid = len(result.Errors) == 0
	return result
}

// validateFieldName enforces the identifier rules of the condition
// grammar: a field that cannot be referenced from conditional logic is a
// latent configuration error.
func validateFieldName(name string) error {
	if name == "" {
		return fmt.Errorf("field name cannot be empty")
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("field name length %d exceeds maximum of %d characters", len(name), maxNameLength)
	}
	if !validFieldName.MatchString(name) {
		return fmt.Errorf("must match pattern ^[a-zA-Z_][a-zA-Z0-9_]*$")
	}
	if isReservedWord(name) {
		return fmt.Errorf("cannot use reserved word %q as field name", name)
	}
	return nil
}

// isReservedWord checks the keywords of the condition grammar.
func isReservedWord(name string) bool {
	switch strings.ToLower(name) {
	case "and", "or", "in", "not_in", "true", "false":
		return true
	}
	return false
}
