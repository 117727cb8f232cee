// Package surveyengine manages one validation engine per survey, loading
// requirement sets from PostgreSQL and keeping compiled sets hot across
// requirement changes.
package surveyengine

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/liamcoop/requirements/requirements"
)

// Manager holds the engines for all known surveys.
type Manager struct {
	engines    map[string]*requirements.Engine
	db         *sql.DB
	validators *requirements.ValidatorRegistry
	mu         sync.RWMutex
}

// NewManager creates a manager. The validator registry is shared by every
// survey's engine; populate it before loading surveys.
func NewManager(db *sql.DB, validators *requirements.ValidatorRegistry) *Manager {
	return &Manager{
		engines:    make(map[string]*requirements.Engine),
		db:         db,
		validators: validators,
	}
}

// LoadAllSurveys initializes an engine for every survey in the database.
// A survey whose requirement set no longer compiles aborts the load: a
// persisted configuration error needs an operator, not a silent skip.
func (m *Manager) LoadAllSurveys() error {
	rows, err := m.db.Query(`SELECT id FROM surveys ORDER BY created_at ASC`)
	if err != nil {
		return fmt.Errorf("failed to fetch surveys: %w", err)
	}
	defer rows.Close()

	var surveyIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("failed to scan survey row: %w", err)
		}
		surveyIDs = append(surveyIDs, id)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating survey rows: %w", err)
	}

	for _, id := range surveyIDs {
		if err := m.LoadSurvey(id); err != nil {
			return fmt.Errorf("failed to initialize survey %s: %w", id, err)
		}
	}

	return nil
}

// LoadSurvey builds (or rebuilds) the engine for one survey and swaps it
// in atomically, so submissions in flight keep the previous compiled set.
func (m *Manager) LoadSurvey(surveyID string) error {
	store := requirements.NewPostgresRequirementStore(m.db, surveyID)

	engine, err := requirements.NewEngine(store, m.validators)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	m.mu.Lock()
	m.engines[surveyID] = engine
	m.mu.Unlock()

	return nil
}

// GetEngine returns the engine for a survey.
func (m *Manager) GetEngine(surveyID string) (*requirements.Engine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	engine, exists := m.engines[surveyID]
	if !exists {
		return nil, fmt.Errorf("survey %s not found", surveyID)
	}
	return engine, nil
}

// ListSurveys returns the IDs of all loaded surveys.
func (m *Manager) ListSurveys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.engines))
	for id := range m.engines {
		ids = append(ids, id)
	}
	return ids
}

// RemoveSurvey drops a survey's engine. The database rows are untouched.
func (m *Manager) RemoveSurvey(surveyID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.engines[surveyID]; !exists {
		return fmt.Errorf("survey %s not found", surveyID)
	}
	delete(m.engines, surveyID)
	return nil
}

// CloneRequirements copies the source survey's requirement set to a target
// survey that has none yet. Field order, conditions, and messages carry
// over; IDs are reassigned by the caller before persisting.
func (m *Manager) CloneRequirements(sourceSurveyID, targetSurveyID string, newID func() string) error {
	source := requirements.NewPostgresRequirementStore(m.db, sourceSurveyID)
	target := requirements.NewPostgresRequirementStore(m.db, targetSurveyID)

	sourceReqs, err := source.List()
	if err != nil {
		return fmt.Errorf("failed to load source requirements: %w", err)
	}
	if len(sourceReqs) == 0 {
		return fmt.Errorf("survey %s has no requirements to clone", sourceSurveyID)
	}

	existing, err := target.List()
	if err != nil {
		return fmt.Errorf("failed to check target requirements: %w", err)
	}
	if len(existing) > 0 {
		return fmt.Errorf("survey %s already has requirements", targetSurveyID)
	}

	for _, r := range sourceReqs {
		clone := *r
		clone.ID = newID()
		clone.SurveyID = targetSurveyID
		if err := target.Add(&clone); err != nil {
			return fmt.Errorf("failed to clone requirement for field %s: %w", r.FieldName, err)
		}
	}

	return m.LoadSurvey(targetSurveyID)
}
