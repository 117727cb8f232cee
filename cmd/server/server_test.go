//go:build integration

package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestDB creates a PostgreSQL testcontainer and runs migrations
func setupTestDB(t *testing.T) (*sql.DB, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_PASSWORD": "password",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	postgres, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}

	host, err := postgres.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := postgres.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	connStr := fmt.Sprintf("postgres://postgres:password@%s:%s/testdb?sslmode=disable", host, port.Port())

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}

	for i := 0; i < 30; i++ {
		if err := db.Ping(); err == nil {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	migrationSQL, err := os.ReadFile("../../migrations/000001_initial_schema.up.sql")
	if err != nil {
		t.Fatalf("Failed to read migration file: %v", err)
	}

	if _, err := db.Exec(string(migrationSQL)); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		db.Close()
		postgres.Terminate(ctx)
	}

	return db, cleanup
}

// TestEndToEnd_SurveyWorkflow tests the complete workflow:
// 1. Create survey
// 2. Add requirements
// 3. Validate a passing submission
// 4. Validate a failing submission
func TestEndToEnd_SurveyWorkflow(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	server, err := NewServerWithDB(db)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}

	ts := httptest.NewServer(server)
	defer ts.Close()
	baseURL := ts.URL + "/api/v1"

	// Step 1: Create survey
	t.Log("Step 1: Creating survey...")
	surveyResp := makeRequest(t, "POST", baseURL+"/surveys", map[string]interface{}{
		"name": "Customer Feedback",
	})
	surveyID := surveyResp["id"].(string)
	t.Logf("Created survey: %s", surveyID)

	// Step 2: Add requirements
	t.Log("Step 2: Adding requirements...")
	makeRequest(t, "POST", baseURL+"/surveys/"+surveyID+"/requirements", map[string]interface{}{
		"fieldName":        "age",
		"fieldType":        "integer",
		"isRequired":       true,
		"requirementType":  "demographic",
		"validationMethod": "range",
		"validationParams": map[string]interface{}{"min": 18, "max": 65},
		"errorMessage":     "Age must be between 18 and 65",
	})
	makeRequest(t, "POST", baseURL+"/surveys/"+surveyID+"/requirements", map[string]interface{}{
		"fieldName":        "employment",
		"fieldType":        "string",
		"isRequired":       true,
		"requirementType":  "demographic",
		"validationMethod": "none",
	})
	makeRequest(t, "POST", baseURL+"/surveys/"+surveyID+"/requirements", map[string]interface{}{
		"fieldName":        "employer",
		"fieldType":        "string",
		"requirementType":  "demographic",
		"validationMethod": "none",
		"conditionalLogic": "employment == 'employed'",
	})

	// Step 3: Validate a passing submission
	t.Log("Step 3: Validating a passing submission...")
	validResp := makeRequest(t, "POST", baseURL+"/surveys/"+surveyID+"/validate", map[string]interface{}{
		"answers": map[string]interface{}{
			"age":        30,
			"employment": "retired",
		},
	})
	verdict := validResp["verdict"].(map[string]interface{})
	if isValid, _ := verdict["isValid"].(bool); !isValid {
		t.Errorf("Expected valid verdict, got %v", verdict)
	}
	skipped := verdict["skippedFields"].([]interface{})
	if len(skipped) != 1 || skipped[0] != "employer" {
		t.Errorf("Expected employer skipped, got %v", skipped)
	}

	// Step 4: Validate a failing submission
	t.Log("Step 4: Validating a failing submission...")
	resp, err := makeHTTPRequest("POST", baseURL+"/surveys/"+surveyID+"/validate", map[string]interface{}{
		"answers": map[string]interface{}{
			"age":        17,
			"employment": "employed",
		},
	})
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("Expected 422 for a failing submission, got %d", resp.StatusCode)
	}

	var failBody map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&failBody); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	verdict = failBody["verdict"].(map[string]interface{})
	errors := verdict["errors"].([]interface{})
	// age out of range and employer gated in but unanswered
	if len(errors) != 2 {
		t.Errorf("Expected 2 errors, got %v", errors)
	}
	first := errors[0].(map[string]interface{})
	if first["fieldName"] != "age" || first["message"] != "Age must be between 18 and 65" {
		t.Errorf("Unexpected first error: %v", first)
	}

	// Step 5: List requirements
	t.Log("Step 5: Listing requirements...")
	listResp := makeRequestNoBody(t, "GET", baseURL+"/surveys/"+surveyID+"/requirements")
	reqs := listResp["requirements"].([]interface{})
	if len(reqs) != 3 {
		t.Errorf("Expected 3 requirements, got %d", len(reqs))
	}
}

// TestEndToEnd_RejectsBrokenRequirement verifies that a requirement that
// breaks the set is refused with a 400 and never persisted.
func TestEndToEnd_RejectsBrokenRequirement(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	server, err := NewServerWithDB(db)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}

	ts := httptest.NewServer(server)
	defer ts.Close()
	baseURL := ts.URL + "/api/v1"

	surveyResp := makeRequest(t, "POST", baseURL+"/surveys", map[string]interface{}{"name": "s"})
	surveyID := surveyResp["id"].(string)

	resp, err := makeHTTPRequest("POST", baseURL+"/surveys/"+surveyID+"/requirements", map[string]interface{}{
		"fieldName":        "extra",
		"fieldType":        "string",
		"requirementType":  "custom",
		"validationMethod": "none",
		"conditionalLogic": "no_such_field == 'x'",
	})
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for a dangling reference, got %d", resp.StatusCode)
	}

	listResp := makeRequestNoBody(t, "GET", baseURL+"/surveys/"+surveyID+"/requirements")
	reqs := listResp["requirements"].([]interface{})
	if len(reqs) != 0 {
		t.Errorf("Rejected requirement must not persist, got %d", len(reqs))
	}
}

func TestEndToEnd_CloneAndLint(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	server, err := NewServerWithDB(db)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}

	ts := httptest.NewServer(server)
	defer ts.Close()
	baseURL := ts.URL + "/api/v1"

	sourceResp := makeRequest(t, "POST", baseURL+"/surveys", map[string]interface{}{"name": "source"})
	sourceID := sourceResp["id"].(string)
	targetResp := makeRequest(t, "POST", baseURL+"/surveys", map[string]interface{}{"name": "target"})
	targetID := targetResp["id"].(string)

	makeRequest(t, "POST", baseURL+"/surveys/"+sourceID+"/requirements", map[string]interface{}{
		"fieldName":        "email",
		"fieldType":        "string",
		"isRequired":       true,
		"requirementType":  "contact",
		"validationMethod": "custom",
		"validationParams": map[string]interface{}{"functionName": "email"},
		"errorMessage":     "Please enter a valid email address",
	})

	makeRequest(t, "POST", baseURL+"/surveys/"+targetID+"/requirements/clone", map[string]interface{}{
		"sourceSurveyId": sourceID,
	})

	listResp := makeRequestNoBody(t, "GET", baseURL+"/surveys/"+targetID+"/requirements")
	reqs := listResp["requirements"].([]interface{})
	if len(reqs) != 1 {
		t.Fatalf("Expected 1 cloned requirement, got %d", len(reqs))
	}

	// lint a broken candidate set without saving it
	lintResp := makeRequest(t, "POST", baseURL+"/surveys/"+targetID+"/requirements/lint", map[string]interface{}{
		"requirements": []map[string]interface{}{
			{"fieldName": "a", "fieldType": "boolean", "requirementType": "custom", "validationMethod": "none", "conditionalLogic": "b == true"},
			{"fieldName": "b", "fieldType": "boolean", "requirementType": "custom", "validationMethod": "none", "conditionalLogic": "a == true"},
		},
	})
	if isValid, _ := lintResp["isValid"].(bool); isValid {
		t.Errorf("Cyclic candidate set should not lint clean: %v", lintResp)
	}
}

func TestHealthEndpoint(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	server, err := NewServerWithDB(db)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}

	ts := httptest.NewServer(server)
	defer ts.Close()

	resp := makeRequestNoBody(t, "GET", ts.URL+"/api/v1/health")
	if resp["status"] != "healthy" {
		t.Errorf("Expected healthy status, got %v", resp["status"])
	}
}

// Helper function to make HTTP requests expecting a 2xx JSON response
func makeRequest(t *testing.T, method, url string, body interface{}) map[string]interface{} {
	resp, err := makeHTTPRequest(method, url, body)
	if err != nil {
		t.Fatalf("Failed to make %s request to %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		t.Fatalf("Request failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	return result
}

// Helper function to make HTTP requests without body
func makeRequestNoBody(t *testing.T, method, url string) map[string]interface{} {
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Failed to make %s request to %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		t.Fatalf("Request failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var result map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	return result
}

// Helper function to make raw HTTP requests
func makeHTTPRequest(method, url string, body interface{}) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBytes, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBytes)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: 10 * time.Second}
	return client.Do(req)
}
