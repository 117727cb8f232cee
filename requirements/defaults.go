package requirements

// DefaultRequirements returns the canned requirement set applied to new
// surveys: contact fields validated with the built-in validators, age
// bounded to a plausible range, and consent collected explicitly. Callers
// get fresh copies and may edit them before persisting.
func DefaultRequirements() []*Requirement {
	minAge, maxAge := 18.0, 120.0

	return []*Requirement{
		{
			FieldName:       "name",
			FieldType:       FieldString,
			IsRequired:      false,
			RequirementType: TypeDemographic,
			Method:          MethodNone,
		},
		{
			FieldName:       "email",
			FieldType:       FieldString,
			IsRequired:      true,
			RequirementType: TypeContact,
			Method:          MethodCustom,
			Custom:          &CustomParams{FunctionName: "email"},
			ErrorMessage:    "Please enter a valid email address",
		},
		{
			FieldName:       "phone",
			FieldType:       FieldString,
			IsRequired:      false,
			RequirementType: TypeContact,
			Method:          MethodCustom,
			Custom:          &CustomParams{FunctionName: "phone_number"},
			ErrorMessage:    "Please enter a valid phone number",
		},
		{
			FieldName:       "age",
			FieldType:       FieldInteger,
			IsRequired:      true,
			RequirementType: TypeDemographic,
			Method:          MethodRange,
			Range:           &RangeParams{Min: &minAge, Max: &maxAge},
			ErrorMessage:    "Age must be between 18 and 120",
		},
		{
			FieldName:       "analytics_consent",
			FieldType:       FieldBoolean,
			IsRequired:      true,
			RequirementType: TypeCustom,
			Method:          MethodNone,
			ErrorMessage:    "Analytics consent must be answered",
		},
		{
			FieldName:        "marketing_consent",
			FieldType:        FieldBoolean,
			IsRequired:       false,
			RequirementType:  TypeCustom,
			Method:           MethodNone,
			ConditionalLogic: "analytics_consent == true",
			ErrorMessage:     "Marketing consent must be answered",
		},
	}
}
