package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/liamcoop/requirements/celvalidator"
	"github.com/liamcoop/requirements/internal/logger"
	"github.com/liamcoop/requirements/requirements"
	"github.com/liamcoop/requirements/surveyengine"
)

type Server struct {
	db         *sql.DB
	manager    *surveyengine.Manager
	validators *requirements.ValidatorRegistry
	router     *chi.Mux
}

// NewServer connects to the database and loads every survey's engine.
func NewServer(cfg *Config) (*Server, error) {
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	validators := requirements.DefaultRegistry()
	if err := celvalidator.RegisterAll(validators, cfg.Validators); err != nil {
		return nil, fmt.Errorf("failed to register configured validators: %w", err)
	}

	return newServer(db, validators)
}

// NewServerWithDB builds a server over an existing connection, using only
// the built-in validators. Used by tests.
func NewServerWithDB(db *sql.DB) (*Server, error) {
	return newServer(db, requirements.DefaultRegistry())
}

func newServer(db *sql.DB, validators *requirements.ValidatorRegistry) (*Server, error) {
	manager := surveyengine.NewManager(db, validators)

	slog.Info("loading surveys from database")
	if err := manager.LoadAllSurveys(); err != nil {
		return nil, fmt.Errorf("failed to load surveys: %w", err)
	}
	slog.Info("surveys loaded", "count", len(manager.ListSurveys()))

	s := &Server{
		db:         db,
		manager:    manager,
		validators: validators,
	}

	s.setupRoutes()

	return s, nil
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/api/v1/health", s.handleHealth)
	r.Get("/api/v1/requirements/defaults", s.handleDefaults)

	r.Route("/api/v1/surveys", func(r chi.Router) {
		r.Get("/", s.handleListSurveys)
		r.Post("/", s.handleCreateSurvey)

		r.Route("/{surveyId}", func(r chi.Router) {
			r.Post("/validate", s.handleValidateSubmission)

			r.Route("/requirements", func(r chi.Router) {
				r.Get("/", s.handleListRequirements)
				r.Post("/", s.handleCreateRequirement)
				r.Post("/lint", s.handleLintRequirements)
				r.Post("/clone", s.handleCloneRequirements)

				r.Get("/{requirementId}", s.handleGetRequirement)
				r.Put("/{requirementId}", s.handleUpdateRequirement)
				r.Delete("/{requirementId}", s.handleDeleteRequirement)
			})
		})
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"status":        "healthy",
		"surveysLoaded": len(s.manager.ListSurveys()),
	})
}

// handleValidateSubmission checks a respondent's answers against the
// survey's requirement set. A configuration defect in the set itself is a
// 500; invalid answers come back as a 422 with the full error list.
func (s *Server) handleValidateSubmission(w http.ResponseWriter, r *http.Request) {
	surveyID := chi.URLParam(r, "surveyId")

	var req ValidateSubmissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Answers == nil {
		respondError(w, http.StatusBadRequest, "answers are required", nil)
		return
	}

	engine, err := s.manager.GetEngine(surveyID)
	if err != nil {
		respondError(w, http.StatusNotFound, "survey not found", err)
		return
	}

	startTime := time.Now()
	verdict, err := engine.Validate(req.Answers)
	if err != nil {
		if requirements.IsConfigurationError(err) {
			respondError(w, http.StatusInternalServerError, "requirement set is misconfigured", err)
		} else {
			respondError(w, http.StatusInternalServerError, "validation failed", err)
		}
		return
	}

	status := http.StatusOK
	if !verdict.IsValid {
		status = http.StatusUnprocessableEntity
	}

	respondJSON(w, status, ValidateSubmissionResponse{
		Verdict:        verdict,
		ValidationTime: time.Since(startTime).String(),
	})
}

func (s *Server) handleListSurveys(w http.ResponseWriter, r *http.Request) {
	rows, err := s.db.Query("SELECT id, name, created_at, updated_at FROM surveys ORDER BY created_at DESC")
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list surveys", err)
		return
	}
	defer rows.Close()

	surveys := []SurveyResponse{}
	for rows.Next() {
		var sv SurveyResponse
		if err := rows.Scan(&sv.ID, &sv.Name, &sv.CreatedAt, &sv.UpdatedAt); err != nil {
			respondError(w, http.StatusInternalServerError, "failed to scan survey", err)
			return
		}
		surveys = append(surveys, sv)
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"surveys": surveys,
	})
}

func (s *Server) handleCreateSurvey(w http.ResponseWriter, r *http.Request) {
	var req CreateSurveyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required", nil)
		return
	}

	var surveyID string
	err := s.db.QueryRow(`
		INSERT INTO surveys (name, created_at, updated_at)
		VALUES ($1, NOW(), NOW())
		RETURNING id
	`, req.Name).Scan(&surveyID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create survey", err)
		return
	}

	if err := s.manager.LoadSurvey(surveyID); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to initialize survey engine", err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"id":   surveyID,
		"name": req.Name,
	})
}

func (s *Server) handleListRequirements(w http.ResponseWriter, r *http.Request) {
	surveyID := chi.URLParam(r, "surveyId")

	engine, err := s.manager.GetEngine(surveyID)
	if err != nil {
		respondError(w, http.StatusNotFound, "survey not found", err)
		return
	}

	reqs, err := engine.Requirements()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list requirements", err)
		return
	}

	resp := make([]RequirementResponse, 0, len(reqs))
	for _, req := range reqs {
		resp = append(resp, toRequirementResponse(req))
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"requirements": resp,
	})
}

func (s *Server) handleCreateRequirement(w http.ResponseWriter, r *http.Request) {
	surveyID := chi.URLParam(r, "surveyId")

	var payload RequirementPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if payload.FieldName == "" || payload.FieldType == "" {
		respondError(w, http.StatusBadRequest, "fieldName and fieldType are required", nil)
		return
	}

	engine, err := s.manager.GetEngine(surveyID)
	if err != nil {
		respondError(w, http.StatusNotFound, "survey not found", err)
		return
	}

	req := payload.toRequirement(uuid.New().String(), surveyID)

	// AddRequirement compiles the grown set first, so a cycle or dangling
	// reference is rejected here rather than discovered at submission time.
	if err := engine.AddRequirement(req); err != nil {
		respondError(w, http.StatusBadRequest, "failed to add requirement", err)
		return
	}

	respondJSON(w, http.StatusCreated, toRequirementResponse(req))
}

func (s *Server) handleGetRequirement(w http.ResponseWriter, r *http.Request) {
	surveyID := chi.URLParam(r, "surveyId")
	requirementID := chi.URLParam(r, "requirementId")

	engine, err := s.manager.GetEngine(surveyID)
	if err != nil {
		respondError(w, http.StatusNotFound, "survey not found", err)
		return
	}

	req, err := engine.GetRequirement(requirementID)
	if err != nil {
		respondError(w, http.StatusNotFound, "requirement not found", err)
		return
	}

	respondJSON(w, http.StatusOK, toRequirementResponse(req))
}

func (s *Server) handleUpdateRequirement(w http.ResponseWriter, r *http.Request) {
	surveyID := chi.URLParam(r, "surveyId")
	requirementID := chi.URLParam(r, "requirementId")

	var payload RequirementPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	engine, err := s.manager.GetEngine(surveyID)
	if err != nil {
		respondError(w, http.StatusNotFound, "survey not found", err)
		return
	}

	req := payload.toRequirement(requirementID, surveyID)
	if err := engine.UpdateRequirement(req); err != nil {
		respondError(w, http.StatusBadRequest, "failed to update requirement", err)
		return
	}

	respondJSON(w, http.StatusOK, toRequirementResponse(req))
}

func (s *Server) handleDeleteRequirement(w http.ResponseWriter, r *http.Request) {
	surveyID := chi.URLParam(r, "surveyId")
	requirementID := chi.URLParam(r, "requirementId")

	engine, err := s.manager.GetEngine(surveyID)
	if err != nil {
		respondError(w, http.StatusNotFound, "survey not found", err)
		return
	}

	if err := engine.DeleteRequirement(requirementID); err != nil {
		respondError(w, http.StatusBadRequest, "failed to delete requirement", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleLintRequirements checks a proposed requirement set without
// saving anything, returning errors and warnings for the admin UI.
func (s *Server) handleLintRequirements(w http.ResponseWriter, r *http.Request) {
	surveyID := chi.URLParam(r, "surveyId")

	var req LintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	reqs := make([]*requirements.Requirement, 0, len(req.Requirements))
	for _, payload := range req.Requirements {
		reqs = append(reqs, payload.toRequirement(uuid.New().String(), surveyID))
	}

	result := surveyengine.LintRequirementSet(reqs, s.validators)
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleCloneRequirements(w http.ResponseWriter, r *http.Request) {
	surveyID := chi.URLParam(r, "surveyId")

	var req CloneRequirementsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.SourceSurveyID == "" {
		respondError(w, http.StatusBadRequest, "sourceSurveyId is required", nil)
		return
	}

	err := s.manager.CloneRequirements(req.SourceSurveyID, surveyID, func() string {
		return uuid.New().String()
	})
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to clone requirements", err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]string{
		"status": "cloned",
	})
}

func (s *Server) handleDefaults(w http.ResponseWriter, r *http.Request) {
	defaults := requirements.DefaultRequirements()

	resp := make([]RequirementResponse, 0, len(defaults))
	for _, req := range defaults {
		resp = append(resp, toRequirementResponse(req))
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"requirements": resp,
	})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]string{
		"error": message,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	respondJSON(w, status, response)
}

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to config file")
	flag.Parse()

	cfg, err := LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Setup("requirements-server", cfg.Log.Level); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to setup logging: %v\n", err)
		os.Exit(1)
	}

	if cfg.Database.URL == "" {
		logger.Fatal("database URL is required (REQUIREMENTS_DATABASE_URL or config file)")
	}

	server, err := NewServer(cfg)
	if err != nil {
		logger.Fatal("failed to create server", "error", err)
	}
	defer server.db.Close()

	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "address", cfg.Server.Address())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed to start", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	if err := logger.Shutdown(ctx); err != nil {
		slog.Error("logger shutdown error", "error", err)
	}

	slog.Info("server stopped")
}
