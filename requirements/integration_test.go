//go:build integration
// +build integration

package requirements_test

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/liamcoop/requirements/requirements"

	_ "github.com/lib/pq"
)

// setupTestDB creates a PostgreSQL container and returns a connection
func setupTestDB(t *testing.T) (*sql.DB, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "requirements_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithStartupTimeout(60 * time.Second),
	}

	postgresContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}

	host, err := postgresContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := postgresContainer.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	connStr := fmt.Sprintf("host=%s port=%s user=test password=test dbname=requirements_test sslmode=disable", host, port.Port())

	var db *sql.DB
	for i := 0; i < 30; i++ {
		db, err = sql.Open("postgres", connStr)
		if err == nil {
			err = db.Ping()
			if err == nil {
				break
			}
		}
		time.Sleep(time.Second)
	}
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}

	migrationSQL, err := os.ReadFile(filepath.Join("..", "migrations", "000001_initial_schema.up.sql"))
	if err != nil {
		t.Fatalf("Failed to read migration file: %v", err)
	}

	if _, err := db.Exec(string(migrationSQL)); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		db.Close()
		postgresContainer.Terminate(ctx)
	}

	return db, cleanup
}

func createSurvey(t *testing.T, db *sql.DB, name string) string {
	var surveyID string
	err := db.QueryRow(`
		INSERT INTO surveys (name) VALUES ($1) RETURNING id
	`, name).Scan(&surveyID)
	if err != nil {
		t.Fatalf("Failed to create survey: %v", err)
	}
	return surveyID
}

func TestPostgresStore_BasicCRUD(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	surveyID := createSurvey(t, db, "test-survey")
	store := requirements.NewPostgresRequirementStore(db, surveyID)

	minAge := 18.0
	reqID := uuid.New().String()
	req := &requirements.Requirement{
		ID:              reqID,
		FieldName:       "age",
		FieldType:       requirements.FieldInteger,
		IsRequired:      true,
		RequirementType: requirements.TypeDemographic,
		Method:          requirements.MethodRange,
		Range:           &requirements.RangeParams{Min: &minAge},
		ErrorMessage:    "Age is required",
	}

	if err := store.Add(req); err != nil {
		t.Fatalf("Failed to add requirement: %v", err)
	}

	retrieved, err := store.Get(reqID)
	if err != nil {
		t.Fatalf("Failed to get requirement: %v", err)
	}
	if retrieved.FieldName != "age" {
		t.Errorf("Expected field name 'age', got '%s'", retrieved.FieldName)
	}
	if retrieved.Range == nil || retrieved.Range.Min == nil || *retrieved.Range.Min != 18.0 {
		t.Errorf("Range params did not round-trip: %+v", retrieved.Range)
	}

	retrieved.ErrorMessage = "Please provide your age"
	if err := store.Update(retrieved); err != nil {
		t.Fatalf("Failed to update requirement: %v", err)
	}

	updated, err := store.Get(reqID)
	if err != nil {
		t.Fatalf("Failed to get updated requirement: %v", err)
	}
	if updated.ErrorMessage != "Please provide your age" {
		t.Errorf("Expected updated message, got '%s'", updated.ErrorMessage)
	}

	if err := store.Delete(reqID); err != nil {
		t.Fatalf("Failed to delete requirement: %v", err)
	}
	if _, err := store.Get(reqID); err == nil {
		t.Error("Expected error when getting deleted requirement, got nil")
	}
}

func TestPostgresStore_SurveyIsolation(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	surveyA := createSurvey(t, db, "survey-a")
	surveyB := createSurvey(t, db, "survey-b")

	storeA := requirements.NewPostgresRequirementStore(db, surveyA)
	storeB := requirements.NewPostgresRequirementStore(db, surveyB)

	reqAID := uuid.New().String()
	if err := storeA.Add(&requirements.Requirement{
		ID: reqAID, FieldName: "age", FieldType: requirements.FieldInteger,
		RequirementType: requirements.TypeDemographic, Method: requirements.MethodNone,
	}); err != nil {
		t.Fatalf("Failed to add requirement for survey A: %v", err)
	}

	reqBID := uuid.New().String()
	if err := storeB.Add(&requirements.Requirement{
		ID: reqBID, FieldName: "email", FieldType: requirements.FieldString,
		RequirementType: requirements.TypeContact, Method: requirements.MethodNone,
	}); err != nil {
		t.Fatalf("Failed to add requirement for survey B: %v", err)
	}

	if _, err := storeA.Get(reqBID); err == nil {
		t.Error("Survey A should not see survey B's requirement")
	}
	if _, err := storeB.Get(reqAID); err == nil {
		t.Error("Survey B should not see survey A's requirement")
	}

	reqsA, err := storeA.List()
	if err != nil {
		t.Fatalf("Failed to list requirements for survey A: %v", err)
	}
	if len(reqsA) != 1 || reqsA[0].FieldName != "age" {
		t.Errorf("Survey A list = %+v, want only its own requirement", reqsA)
	}
}

func TestPostgresStore_DeclarationOrder(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	surveyID := createSurvey(t, db, "test-survey")
	store := requirements.NewPostgresRequirementStore(db, surveyID)

	fields := []string{"name", "email", "age", "consent", "country"}
	for _, f := range fields {
		err := store.Add(&requirements.Requirement{
			ID: uuid.New().String(), FieldName: f, FieldType: requirements.FieldString,
			RequirementType: requirements.TypeCustom, Method: requirements.MethodNone,
		})
		if err != nil {
			t.Fatalf("Failed to add requirement %s: %v", f, err)
		}
	}

	reqs, err := store.List()
	if err != nil {
		t.Fatalf("Failed to list requirements: %v", err)
	}
	if len(reqs) != len(fields) {
		t.Fatalf("Expected %d requirements, got %d", len(fields), len(reqs))
	}
	for i, f := range fields {
		if reqs[i].FieldName != f {
			t.Errorf("List()[%d] = %s, want %s (insertion order must persist)", i, reqs[i].FieldName, f)
		}
	}
}

func TestPostgresStore_DuplicateFieldName(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	surveyID := createSurvey(t, db, "test-survey")
	store := requirements.NewPostgresRequirementStore(db, surveyID)

	if err := store.Add(&requirements.Requirement{
		ID: uuid.New().String(), FieldName: "age", FieldType: requirements.FieldInteger,
		RequirementType: requirements.TypeDemographic, Method: requirements.MethodNone,
	}); err != nil {
		t.Fatalf("Failed to add requirement: %v", err)
	}

	err := store.Add(&requirements.Requirement{
		ID: uuid.New().String(), FieldName: "age", FieldType: requirements.FieldInteger,
		RequirementType: requirements.TypeDemographic, Method: requirements.MethodNone,
	})
	if err == nil {
		t.Error("Expected error when adding duplicate field name, got nil")
	}
}

func TestEngineWithPostgresStore(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	surveyID := createSurvey(t, db, "test-survey")
	store := requirements.NewPostgresRequirementStore(db, surveyID)

	engine, err := requirements.NewEngine(store, requirements.DefaultRegistry())
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	err = engine.AddRequirement(&requirements.Requirement{
		ID: uuid.New().String(), FieldName: "employment", FieldType: requirements.FieldString,
		IsRequired: true, RequirementType: requirements.TypeDemographic, Method: requirements.MethodNone,
	})
	if err != nil {
		t.Fatalf("Failed to add requirement: %v", err)
	}

	err = engine.AddRequirement(&requirements.Requirement{
		ID: uuid.New().String(), FieldName: "employer", FieldType: requirements.FieldString,
		RequirementType: requirements.TypeDemographic, Method: requirements.MethodNone,
		ConditionalLogic: `employment == 'employed'`,
	})
	if err != nil {
		t.Fatalf("Failed to add gated requirement: %v", err)
	}

	verdict, err := engine.Validate(map[string]any{"employment": "retired"})
	if err != nil {
		t.Fatalf("Validate() failed: %v", err)
	}
	if !verdict.IsValid {
		t.Errorf("Expected valid verdict, got errors: %+v", verdict.Errors)
	}
	if len(verdict.SkippedFields) != 1 || verdict.SkippedFields[0] != "employer" {
		t.Errorf("SkippedFields = %v, want [employer]", verdict.SkippedFields)
	}

	// a dangling reference must be rejected before persisting
	err = engine.AddRequirement(&requirements.Requirement{
		ID: uuid.New().String(), FieldName: "extra", FieldType: requirements.FieldString,
		RequirementType: requirements.TypeCustom, Method: requirements.MethodNone,
		ConditionalLogic: `missing_field == 'x'`,
	})
	if err == nil {
		t.Fatal("Expected error for dangling reference, got nil")
	}
	reqs, err := store.List()
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(reqs) != 2 {
		t.Errorf("Rejected requirement must not persist, store has %d rows", len(reqs))
	}
}
