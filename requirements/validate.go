package requirements

import "fmt"

// Validate compiles a requirement set and checks one submission against
// it. The error return carries configuration defects only (see Compile);
// a respondent's invalid answers land in the Verdict, never in the error.
// Hosts validating many submissions against the same survey should call
// Compile once and reuse the CompiledSet instead.
func Validate(reqs []*Requirement, submission map[string]any, validators *ValidatorRegistry) (*Verdict, error) {
	cs, err := Compile(reqs)
	if err != nil {
		return nil, err
	}
	return cs.Validate(submission, validators), nil
}

// Validate checks one submission against the compiled set. It is a pure
// function of its inputs: no shared state is touched, so concurrent calls
// on one CompiledSet are safe. Every applicable field is evaluated; per-
// field failures accumulate instead of short-circuiting so the respondent
// sees all problems at once.
func (cs *CompiledSet) Validate(submission map[string]any, validators *ValidatorRegistry) *Verdict {
	outcomes := make([]FieldOutcome, len(cs.reqs))

	// resolved carries the values of fields already evaluated as applicable
	// and answered. Gates read this map rather than the raw submission, so
	// a gated-out field's answer never unlocks a requirement downstream.
	resolved := make(map[string]any, len(submission))

	for _, i := range cs.order {
		r := cs.reqs[i]
		out := FieldOutcome{FieldName: r.FieldName, Applicable: true, Valid: true}

		// When the method itself is conditional, the condition is the value
		// constraint rather than a visibility gate.
		gated := cs.conds[i] != nil && r.Method != MethodConditional

		if gated && !cs.conds[i].eval(resolved, cs.types) {
			out.Applicable = false
			outcomes[i] = out
			continue
		}

		value, present := submission[r.FieldName]
		if value == nil {
			present = false
		}
		if present && r.FieldType == FieldString {
			// An empty string answer counts as no answer.
			if s, ok := value.(string); ok && s == "" {
				present = false
			}
		}
		if present {
			resolved[r.FieldName] = value
		}

		// A passing gate implies the field is required even when the base
		// flag is off: the condition asked for it.
		required := r.IsRequired || gated

		if !present {
			if required {
				out.Valid = false
				out.ErrorMessage = messageOr(r, r.FieldName+" is required")
			}
			outcomes[i] = out
			continue
		}

		if ok, msg := cs.checkValue(i, value, resolved, validators); !ok {
			out.Valid = false
			out.ErrorMessage = msg
		}
		outcomes[i] = out
	}

	return aggregate(outcomes)
}

// checkValue runs the declared constraint against a present value.
func (cs *CompiledSet) checkValue(i int, value any, resolved map[string]any, validators *ValidatorRegistry) (bool, string) {
	r := cs.reqs[i]

	if !valueFitsType(value, r.FieldType) {
		return false, messageOr(r, fmt.Sprintf("%s must be of type %s", r.FieldName, r.FieldType))
	}

	switch r.Method {
	case MethodRange:
		n, _ := asNumber(value)
		if r.Range.Min != nil && n < *r.Range.Min {
			return false, messageOr(r, fmt.Sprintf("%s is below the minimum", r.FieldName))
		}
		if r.Range.Max != nil && n > *r.Range.Max {
			return false, messageOr(r, fmt.Sprintf("%s is above the maximum", r.FieldName))
		}

	case MethodRegex:
		if !cs.regexes[i].MatchString(value.(string)) {
			return false, messageOr(r, fmt.Sprintf("%s has an invalid format", r.FieldName))
		}

	case MethodCustom:
		if validators == nil {
			return false, "validator not available"
		}
		fn, ok := validators.Lookup(r.Custom.FunctionName)
		if !ok {
			// A missing validator is a per-field failure, not a fatal
			// configuration error: the operator can fix it without
			// touching the requirement definitions.
			return false, "validator not available"
		}
		if passed, detail := fn(value, resolved); !passed {
			if detail != "" {
				return false, detail
			}
			return false, messageOr(r, fmt.Sprintf("%s failed validation", r.FieldName))
		}

	case MethodConditional:
		if !cs.conds[i].eval(resolved, cs.types) {
			return false, messageOr(r, fmt.Sprintf("%s does not satisfy its condition", r.FieldName))
		}
	}

	return true, ""
}

// valueFitsType reports whether a submitted value can be read as the
// declared field type.
func valueFitsType(value any, ft FieldType) bool {
	switch ft {
	case FieldInteger, FieldDecimal:
		_, ok := asNumber(value)
		return ok
	case FieldString:
		_, ok := value.(string)
		return ok
	case FieldBoolean:
		_, ok := value.(bool)
		return ok
	case FieldDate:
		_, ok := asDate(value)
		return ok
	}
	return false
}

func messageOr(r *Requirement, fallback string) string {
	if r.ErrorMessage != "" {
		return r.ErrorMessage
	}
	return fallback
}

// aggregate folds per-field outcomes into the verdict. Outcomes arrive
// indexed by declaration position, so errors and skipped fields come out
// in declaration order no matter how the graph was traversed. Slices are
// allocated non-nil to keep encoded verdicts identical across runs.
func aggregate(outcomes []FieldOutcome) *Verdict {
	verdict := &Verdict{
		IsValid:       true,
		Errors:        []FieldError{},
		SkippedFields: []string{},
	}

	for _, out := range outcomes {
		if !out.Applicable {
			verdict.SkippedFields = append(verdict.SkippedFields, out.FieldName)
			continue
		}
		if !out.Valid {
			verdict.IsValid = false
			verdict.Errors = append(verdict.Errors, FieldError{FieldName: out.FieldName, Message: out.ErrorMessage})
		}
	}

	return verdict
}
