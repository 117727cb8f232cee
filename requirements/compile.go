package requirements

import (
	"fmt"
	"regexp"
)

// CompiledSet is a requirement set prepared for evaluation: conditions
// parsed, patterns compiled, evaluation order resolved. It is immutable
// after Compile returns and safe for concurrent use, so hosts can compile
// once per survey and validate many submissions against the same set.
type CompiledSet struct {
	reqs    []*Requirement // declaration order
	conds   []Condition    // index-aligned with reqs, nil when absent
	regexes []*regexp.Regexp
	order   []int // evaluation order, indices into reqs
	types   map[string]FieldType
}

// Len returns the number of requirements in the set.
func (cs *CompiledSet) Len() int { return len(cs.reqs) }

// Compile checks a requirement set for structural defects and prepares it
// for evaluation. Every error it returns is a ConfigurationError: a cycle,
// a dangling field reference, a duplicate field name, parameters that do
// not fit the declared method, or a condition the declared field types
// cannot support. Nothing is evaluated until Compile has passed.
func Compile(reqs []*Requirement) (*CompiledSet, error) {
	types := make(map[string]FieldType, len(reqs))
	for _, r := range reqs {
		if _, dup := types[r.FieldName]; dup {
			return nil, &DuplicateFieldError{FieldName: r.FieldName}
		}
		if !r.FieldType.valid() {
			return nil, &InvalidParamsError{FieldName: r.FieldName, Reason: fmt.Sprintf("unknown field type %q", r.FieldType)}
		}
		types[r.FieldName] = r.FieldType
	}

	cs := &CompiledSet{
		reqs:    reqs,
		conds:   make([]Condition, len(reqs)),
		regexes: make([]*regexp.Regexp, len(reqs)),
		types:   types,
	}

	for i, r := range reqs {
		if err := checkParams(r); err != nil {
			return nil, err
		}

		if r.Method == MethodRegex {
			// Anchor the pattern so partial matches never pass.
			re, err := regexp.Compile("^(?:" + r.Regex.Pattern + ")$")
			if err != nil {
				return nil, &InvalidParamsError{FieldName: r.FieldName, Reason: fmt.Sprintf("invalid pattern: %v", err)}
			}
			cs.regexes[i] = re
		}

		if r.ConditionalLogic != "" {
			cond, err := ParseCondition(r.ConditionalLogic)
			if err != nil {
				if pe, ok := err.(*ConditionParseError); ok {
					pe.FieldName = r.FieldName
				}
				return nil, err
			}
			if err := checkCondition(r.FieldName, cond, types); err != nil {
				return nil, err
			}
			cs.conds[i] = cond
		}
	}

	order, err := buildOrder(reqs, cs.conds)
	if err != nil {
		return nil, err
	}
	cs.order = order

	return cs, nil
}

// checkParams verifies the method/parameter pairing of one requirement.
func checkParams(r *Requirement) error {
	fail := func(reason string) error {
		return &InvalidParamsError{FieldName: r.FieldName, Reason: reason}
	}

	switch r.Method {
	case MethodNone, "":
	case MethodRange:
		if r.Range == nil {
			return fail("range method requires range parameters")
		}
		if r.Range.Min == nil && r.Range.Max == nil {
			return fail("range method requires at least one bound")
		}
		if r.Range.Min != nil && r.Range.Max != nil && *r.Range.Min > *r.Range.Max {
			return fail("range min exceeds max")
		}
		if !r.FieldType.numeric() {
			return fail(fmt.Sprintf("range method cannot apply to %s field", r.FieldType))
		}
	case MethodRegex:
		if r.Regex == nil || r.Regex.Pattern == "" {
			return fail("regex method requires a pattern")
		}
		if r.FieldType != FieldString {
			return fail(fmt.Sprintf("regex method cannot apply to %s field", r.FieldType))
		}
	case MethodCustom:
		if r.Custom == nil || r.Custom.FunctionName == "" {
			return fail("custom method requires a function name")
		}
	case MethodConditional:
		if r.ConditionalLogic == "" {
			return fail("conditional method requires conditional logic")
		}
	default:
		return fail(fmt.Sprintf("unknown validation method %q", r.Method))
	}
	return nil
}

// checkCondition verifies every comparison against the declared field
// types: ordering operators need an ordered type, membership needs a list
// literal, and literal kinds must match the referenced field. Violations
// are configuration errors, never silent coercions at evaluation time.
func checkCondition(fieldName string, cond Condition, types map[string]FieldType) error {
	var firstErr error
	fail := func(reason string) {
		if firstErr == nil {
			firstErr = &InvalidParamsError{FieldName: fieldName, Reason: reason}
		}
	}

	cond.walk(func(c *Comparison) {
		ft, ok := types[c.FieldRef]
		if !ok {
			// reported by the graph builder with a dedicated error
			return
		}

		if c.Op.ordering() && !ft.numeric() && ft != FieldDate {
			fail(fmt.Sprintf("operator %s cannot apply to %s field %q", c.Op, ft, c.FieldRef))
			return
		}

		if c.Op == OpIn || c.Op == OpNotIn {
			if c.Literal.Kind != LitList {
				fail(fmt.Sprintf("operator %s on field %q requires a list literal", c.Op, c.FieldRef))
			} else {
				for _, elem := range c.Literal.List {
					if !literalMatches(elem, ft) {
						fail(fmt.Sprintf("list element type does not match %s field %q", ft, c.FieldRef))
						break
					}
				}
			}
			return
		}

		if !literalMatches(c.Literal, ft) {
			fail(fmt.Sprintf("literal type does not match %s field %q", ft, c.FieldRef))
		}
	})

	return firstErr
}

func literalMatches(lit Literal, ft FieldType) bool {
	switch ft {
	case FieldInteger, FieldDecimal:
		return lit.Kind == LitNumber
	case FieldString, FieldDate:
		return lit.Kind == LitString
	case FieldBoolean:
		return lit.Kind == LitBool
	}
	return false
}
