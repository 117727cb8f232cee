package requirements

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresRequirementStore implements RequirementStore backed by
// PostgreSQL, scoped to one survey. Declaration order is persisted in the
// position column.
type PostgresRequirementStore struct {
	db       *sql.DB
	surveyID string
}

// NewPostgresRequirementStore creates a store for one survey's requirements.
func NewPostgresRequirementStore(db *sql.DB, surveyID string) *PostgresRequirementStore {
	return &PostgresRequirementStore{
		db:       db,
		surveyID: surveyID,
	}
}

// validationParams is the JSONB shape of the typed constraint parameters.
type validationParams struct {
	Min          *float64 `json:"min,omitempty"`
	Max          *float64 `json:"max,omitempty"`
	Pattern      string   `json:"pattern,omitempty"`
	FunctionName string   `json:"functionName,omitempty"`
}

func marshalParams(r *Requirement) ([]byte, error) {
	var p validationParams
	switch r.Method {
	case MethodRange:
		if r.Range != nil {
			p.Min, p.Max = r.Range.Min, r.Range.Max
		}
	case MethodRegex:
		if r.Regex != nil {
			p.Pattern = r.Regex.Pattern
		}
	case MethodCustom:
		if r.Custom != nil {
			p.FunctionName = r.Custom.FunctionName
		}
	}
	return json.Marshal(p)
}

func unmarshalParams(r *Requirement, raw []byte) error {
	var p validationParams
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("invalid validation params for field %s: %w", r.FieldName, err)
		}
	}
	switch r.Method {
	case MethodRange:
		r.Range = &RangeParams{Min: p.Min, Max: p.Max}
	case MethodRegex:
		r.Regex = &RegexParams{Pattern: p.Pattern}
	case MethodCustom:
		r.Custom = &CustomParams{FunctionName: p.FunctionName}
	}
	return nil
}

// Add inserts a requirement after the survey's current last position.
func (s *PostgresRequirementStore) Add(r *Requirement) error {
	var exists bool
	err := s.db.QueryRow(`
		SELECT EXISTS(
			SELECT 1 FROM survey_requirements
			WHERE survey_id = $1 AND (id = $2 OR field_name = $3)
		)
	`, s.surveyID, r.ID, r.FieldName).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check requirement existence: %w", err)
	}
	if exists {
		return fmt.Errorf("requirement %s (field %s) already exists", r.ID, r.FieldName)
	}

	params, err := marshalParams(r)
	if err != nil {
		return fmt.Errorf("failed to marshal validation params: %w", err)
	}

	now := time.Now()
	r.SurveyID = s.surveyID
	r.CreatedAt = now
	r.UpdatedAt = now

	_, err = s.db.Exec(`
		INSERT INTO survey_requirements
			(id, survey_id, field_name, field_type, is_required, requirement_type,
			 validation_method, validation_params, conditional_logic, error_message,
			 position, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			(SELECT COALESCE(MAX(position), 0) + 1 FROM survey_requirements WHERE survey_id = $2),
			$11, $12)
	`, r.ID, s.surveyID, r.FieldName, r.FieldType, r.IsRequired, r.RequirementType,
		r.Method, params, r.ConditionalLogic, r.ErrorMessage, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert requirement: %w", err)
	}

	return nil
}

const requirementColumns = `
	id, survey_id, field_name, field_type, is_required, requirement_type,
	validation_method, validation_params, conditional_logic, error_message,
	created_at, updated_at`

func scanRequirement(scan func(dest ...any) error) (*Requirement, error) {
	var r Requirement
	var params []byte
	err := scan(
		&r.ID, &r.SurveyID, &r.FieldName, &r.FieldType, &r.IsRequired,
		&r.RequirementType, &r.Method, &params, &r.ConditionalLogic,
		&r.ErrorMessage, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := unmarshalParams(&r, params); err != nil {
		return nil, err
	}
	return &r, nil
}

// Get retrieves a requirement by ID.
func (s *PostgresRequirementStore) Get(id string) (*Requirement, error) {
	row := s.db.QueryRow(`
		SELECT `+requirementColumns+`
		FROM survey_requirements
		WHERE id = $1 AND survey_id = $2
	`, id, s.surveyID)

	r, err := scanRequirement(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("requirement %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get requirement: %w", err)
	}
	return r, nil
}

// List returns the survey's requirement set in declaration order.
func (s *PostgresRequirementStore) List() ([]*Requirement, error) {
	rows, err := s.db.Query(`
		SELECT `+requirementColumns+`
		FROM survey_requirements
		WHERE survey_id = $1
		ORDER BY position ASC
	`, s.surveyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list requirements: %w", err)
	}
	defer rows.Close()

	var reqs []*Requirement
	for rows.Next() {
		r, err := scanRequirement(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan requirement: %w", err)
		}
		reqs = append(reqs, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating requirements: %w", err)
	}

	return reqs, nil
}

// Update modifies an existing requirement, keeping its position.
func (s *PostgresRequirementStore) Update(r *Requirement) error {
	params, err := marshalParams(r)
	if err != nil {
		return fmt.Errorf("failed to marshal validation params: %w", err)
	}

	r.UpdatedAt = time.Now()

	result, err := s.db.Exec(`
		UPDATE survey_requirements
		SET field_name = $1, field_type = $2, is_required = $3,
			requirement_type = $4, validation_method = $5, validation_params = $6,
			conditional_logic = $7, error_message = $8, updated_at = $9
		WHERE id = $10 AND survey_id = $11
	`, r.FieldName, r.FieldType, r.IsRequired, r.RequirementType, r.Method,
		params, r.ConditionalLogic, r.ErrorMessage, r.UpdatedAt, r.ID, s.surveyID)
	if err != nil {
		return fmt.Errorf("failed to update requirement: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("requirement %s not found", r.ID)
	}

	return nil
}

// Delete removes a requirement.
func (s *PostgresRequirementStore) Delete(id string) error {
	result, err := s.db.Exec(`
		DELETE FROM survey_requirements
		WHERE id = $1 AND survey_id = $2
	`, id, s.surveyID)
	if err != nil {
		return fmt.Errorf("failed to delete requirement: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("requirement %s not found", id)
	}

	return nil
}
