package main

import (
	"time"

	"github.com/liamcoop/requirements/requirements"
)

// API request and response models

// CreateSurveyRequest is the body for creating a survey.
type CreateSurveyRequest struct {
	Name string `json:"name"`
}

// SurveyResponse represents a survey in API responses.
type SurveyResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ValidationParamsPayload carries the method-specific parameters on the
// wire; only the keys matching the validation method are read.
type ValidationParamsPayload struct {
	Min          *float64 `json:"min,omitempty"`
	Max          *float64 `json:"max,omitempty"`
	Pattern      string   `json:"pattern,omitempty"`
	FunctionName string   `json:"functionName,omitempty"`
}

// RequirementPayload is the wire form of a requirement definition.
type RequirementPayload struct {
	FieldName        string                   `json:"fieldName"`
	FieldType        string                   `json:"fieldType"`
	IsRequired       bool                     `json:"isRequired"`
	RequirementType  string                   `json:"requirementType"`
	ValidationMethod string                   `json:"validationMethod"`
	ValidationParams *ValidationParamsPayload `json:"validationParams,omitempty"`
	ConditionalLogic string                   `json:"conditionalLogic,omitempty"`
	ErrorMessage     string                   `json:"errorMessage,omitempty"`
}

// toRequirement converts the payload into the engine's model. The params
// land on the variant matching the method, so a range requirement can
// never smuggle a pattern along.
func (p *RequirementPayload) toRequirement(id, surveyID string) *requirements.Requirement {
	r := &requirements.Requirement{
		ID:               id,
		SurveyID:         surveyID,
		FieldName:        p.FieldName,
		FieldType:        requirements.FieldType(p.FieldType),
		IsRequired:       p.IsRequired,
		RequirementType:  requirements.RequirementType(p.RequirementType),
		Method:           requirements.ValidationMethod(p.ValidationMethod),
		ConditionalLogic: p.ConditionalLogic,
		ErrorMessage:     p.ErrorMessage,
	}

	if p.ValidationParams != nil {
		switch r.Method {
		case requirements.MethodRange:
			r.Range = &requirements.RangeParams{Min: p.ValidationParams.Min, Max: p.ValidationParams.Max}
		case requirements.MethodRegex:
			r.Regex = &requirements.RegexParams{Pattern: p.ValidationParams.Pattern}
		case requirements.MethodCustom:
			r.Custom = &requirements.CustomParams{FunctionName: p.ValidationParams.FunctionName}
		}
	}

	return r
}

// RequirementResponse represents a requirement in API responses.
type RequirementResponse struct {
	ID               string                   `json:"id"`
	SurveyID         string                   `json:"surveyId"`
	FieldName        string                   `json:"fieldName"`
	FieldType        string                   `json:"fieldType"`
	IsRequired       bool                     `json:"isRequired"`
	RequirementType  string                   `json:"requirementType"`
	ValidationMethod string                   `json:"validationMethod"`
	ValidationParams *ValidationParamsPayload `json:"validationParams,omitempty"`
	ConditionalLogic string                   `json:"conditionalLogic,omitempty"`
	ErrorMessage     string                   `json:"errorMessage,omitempty"`
	CreatedAt        time.Time                `json:"createdAt"`
	UpdatedAt        time.Time                `json:"updatedAt"`
}

func toRequirementResponse(r *requirements.Requirement) RequirementResponse {
	resp := RequirementResponse{
		ID:               r.ID,
		SurveyID:         r.SurveyID,
		FieldName:        r.FieldName,
		FieldType:        string(r.FieldType),
		IsRequired:       r.IsRequired,
		RequirementType:  string(r.RequirementType),
		ValidationMethod: string(r.Method),
		ConditionalLogic: r.ConditionalLogic,
		ErrorMessage:     r.ErrorMessage,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}

	switch {
	case r.Range != nil:
		resp.ValidationParams = &ValidationParamsPayload{Min: r.Range.Min, Max: r.Range.Max}
	case r.Regex != nil:
		resp.ValidationParams = &ValidationParamsPayload{Pattern: r.Regex.Pattern}
	case r.Custom != nil:
		resp.ValidationParams = &ValidationParamsPayload{FunctionName: r.Custom.FunctionName}
	}

	return resp
}

// ValidateSubmissionRequest is the body for validating a submission.
type ValidateSubmissionRequest struct {
	Answers map[string]any `json:"answers"`
}

// ValidateSubmissionResponse wraps the verdict with timing information.
type ValidateSubmissionResponse struct {
	Verdict        *requirements.Verdict `json:"verdict"`
	ValidationTime string                `json:"validationTime"`
}

// CloneRequirementsRequest is the body for cloning a requirement set.
type CloneRequirementsRequest struct {
	SourceSurveyID string `json:"sourceSurveyId"`
}

// LintRequest is the body for linting a proposed requirement set.
type LintRequest struct {
	Requirements []RequirementPayload `json:"requirements"`
}
