// Package api exposes the ingestion pipeline and the derived relations over
// REST endpoints, plus the HR dataset read endpoints.
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"adsb_pipeline/internal/cache"
	"adsb_pipeline/internal/events"
	"adsb_pipeline/internal/fetch"
	"adsb_pipeline/internal/hr"
	"adsb_pipeline/internal/loader"
	"adsb_pipeline/internal/store"
)

// Server wires the pipeline components behind the HTTP surface.
type Server struct {
	fetcher   *fetch.Fetcher
	loader    *loader.Loader
	store     *store.Store
	hr        *hr.DB            // nil when no HR database is configured
	events    *events.Publisher // nil-safe
	cache     *cache.StatsCache // nil-safe
	partition string
	port      int
}

// Config holds server wiring. HR, Events and Cache are optional.
type Config struct {
	Fetcher   *fetch.Fetcher
	Loader    *loader.Loader
	Store     *store.Store
	HR        *hr.DB
	Events    *events.Publisher
	Cache     *cache.StatsCache
	Partition string
	Port      int
}

// New creates the API server.
func New(cfg Config) *Server {
	return &Server{
		fetcher:   cfg.Fetcher,
		loader:    cfg.Loader,
		store:     cfg.Store,
		hr:        cfg.HR,
		events:    cfg.Events,
		cache:     cfg.Cache,
		partition: cfg.Partition,
		port:      cfg.Port,
	}
}

// Run starts the HTTP server.
func (s *Server) Run() error {
	r := chi.NewRouter()

	// Standard middleware.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(5 * time.Minute))

	r.Mount("/api/v1", s.Router())

	addr := ":" + strconv.Itoa(s.port)
	log.Printf("API starting at http://localhost%s", addr)
	return http.ListenAndServe(addr, r)
}

// Router returns the configured chi router for embedding and for tests.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/health", s.handleHealth)

	r.Post("/aircraft/download", s.handleDownload)
	r.Post("/aircraft/prepare", s.handlePrepare)
	r.Get("/aircraft/", s.handleListAircraft)
	r.Get("/aircraft/{icao}/positions", s.handleListPositions)
	r.Get("/aircraft/{icao}/stats", s.handleAircraftStats)

	r.Route("/hr", func(r chi.Router) {
		r.Post("/db/init", s.handleHRInit)
		r.Post("/db/seed", s.handleHRSeed)
		r.Get("/departments/", s.handleHRDepartments)
		r.Get("/employees/", s.handleHREmployees)
		r.Get("/departments/{id}/employees", s.handleHRDepartmentEmployees)
		r.Get("/departments/{id}/stats", s.handleHRDepartmentStats)
		r.Get("/employees/{id}/salary-history", s.handleHRSalaryHistory)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "file_limit", 100)
	if limit < 0 {
		writeError(w, http.StatusBadRequest, "file_limit must be non-negative")
		return
	}

	runID := uuid.New().String()
	start := time.Now()

	written, _, err := s.fetcher.Fetch(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := s.events.PublishFetchCompleted(events.FetchCompleted{
		RunID:        runID,
		Partition:    s.partition,
		FilesWritten: written,
		DurationMS:   time.Since(start).Milliseconds(),
	}); err != nil {
		log.Printf("download: publish event: %v", err)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "OK",
		"run_id":        runID,
		"files_written": written,
	})
}

func (s *Server) handlePrepare(w http.ResponseWriter, r *http.Request) {
	runID := uuid.New().String()
	start := time.Now()

	res, err := s.loader.Load(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.cache.Invalidate(r.Context())

	if err := s.events.PublishLoadCompleted(events.LoadCompleted{
		RunID:        runID,
		Partition:    s.partition,
		Files:        res.Files,
		Observations: res.Observations,
		Aircraft:     res.Aircraft,
		Positions:    res.Positions,
		DurationMS:   time.Since(start).Milliseconds(),
	}); err != nil {
		log.Printf("prepare: publish event: %v", err)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "OK",
		"run_id":       runID,
		"files":        res.Files,
		"observations": res.Observations,
		"aircraft":     res.Aircraft,
		"positions":    res.Positions,
	})
}

func (s *Server) handleListAircraft(w http.ResponseWriter, r *http.Request) {
	pageSize := queryInt(r, "num_results", 100)
	page := queryInt(r, "page", 0)
	if pageSize <= 0 || page < 0 {
		writeError(w, http.StatusBadRequest, "num_results must be positive and page non-negative")
		return
	}

	aircraft, err := s.store.ListAircraft(r.Context(), pageSize, page)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, aircraft)
}

func (s *Server) handleListPositions(w http.ResponseWriter, r *http.Request) {
	icao := chi.URLParam(r, "icao")
	pageSize := queryInt(r, "num_results", 1000)
	page := queryInt(r, "page", 0)
	if pageSize <= 0 || page < 0 {
		writeError(w, http.StatusBadRequest, "num_results must be positive and page non-negative")
		return
	}

	positions, err := s.store.ListPositions(r.Context(), icao, pageSize, page)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, positions)
}

func (s *Server) handleAircraftStats(w http.ResponseWriter, r *http.Request) {
	icao := chi.URLParam(r, "icao")

	if stats, ok := s.cache.Get(r.Context(), icao); ok {
		writeJSON(w, http.StatusOK, stats)
		return
	}

	stats, err := s.store.AircraftStats(r.Context(), icao)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.cache.Set(r.Context(), icao, stats)
	writeJSON(w, http.StatusOK, stats)
}

// HR handlers.

func (s *Server) requireHR(w http.ResponseWriter) bool {
	if s.hr == nil {
		writeError(w, http.StatusServiceUnavailable, "HR database not configured")
		return false
	}
	return true
}

func (s *Server) handleHRInit(w http.ResponseWriter, r *http.Request) {
	if !s.requireHR(w) {
		return
	}
	if err := s.hr.InitSchema(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

func (s *Server) handleHRSeed(w http.ResponseWriter, r *http.Request) {
	if !s.requireHR(w) {
		return
	}
	if err := s.hr.Seed(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

func (s *Server) handleHRDepartments(w http.ResponseWriter, r *http.Request) {
	if !s.requireHR(w) {
		return
	}
	departments, err := s.hr.ListDepartments(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, departments)
}

func (s *Server) handleHREmployees(w http.ResponseWriter, r *http.Request) {
	if !s.requireHR(w) {
		return
	}
	page := queryInt(r, "page", 1)
	perPage := queryInt(r, "per_page", 10)
	if page < 1 || perPage < 1 || perPage > 100 {
		writeError(w, http.StatusBadRequest, "page must be >= 1 and per_page in 1..100")
		return
	}

	employees, err := s.hr.ListEmployees(r.Context(), page, perPage)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, employees)
}

func (s *Server) handleHRDepartmentEmployees(w http.ResponseWriter, r *http.Request) {
	if !s.requireHR(w) {
		return
	}
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid department id")
		return
	}

	employees, err := s.hr.DepartmentEmployees(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, employees)
}

func (s *Server) handleHRDepartmentStats(w http.ResponseWriter, r *http.Request) {
	if !s.requireHR(w) {
		return
	}
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid department id")
		return
	}

	stats, err := s.hr.Stats(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if stats == nil {
		writeError(w, http.StatusNotFound, "department not found")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleHRSalaryHistory(w http.ResponseWriter, r *http.Request) {
	if !s.requireHR(w) {
		return
	}
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid employee id")
		return
	}

	history, err := s.hr.SalaryHistory(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, history)
}

// Helper functions.

func queryInt(r *http.Request, name string, defaultVal int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return -1
	}
	return i
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
