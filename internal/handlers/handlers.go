package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/ad/personsearch/internal/document"
	"github.com/ad/personsearch/internal/manticore"
	"github.com/ad/personsearch/internal/models"
	"github.com/ad/personsearch/internal/search"
	"github.com/ad/personsearch/pkg/api"
)

// maxUploadBytes caps the body of document uploads
const maxUploadBytes = 10 << 20

// HealthChecker reports whether the search backend answers
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// StatsReporter exposes client counters for the status endpoint
type StatsReporter interface {
	GetMetrics() manticore.Metrics
	GetCircuitBreakerStats() manticore.CircuitBreakerStats
}

var _ StatsReporter = (*manticore.Client)(nil)

// AppState holds the services the HTTP handlers work with
type AppState struct {
	provider  *search.Provider
	health    HealthChecker
	seedDir   string
	log       zerolog.Logger
	startTime time.Time
}

// NewAppState creates the handler state. health may be nil.
func NewAppState(provider *search.Provider, health HealthChecker, seedDir string, log zerolog.Logger) *AppState {
	return &AppState{
		provider:  provider,
		health:    health,
		seedDir:   seedDir,
		log:       log.With().Str("component", "http").Logger(),
		startTime: time.Now(),
	}
}

// Routes returns the router with all API endpoints registered
func (app *AppState) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(app.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors)

	r.Route("/api", func(r chi.Router) {
		r.Get("/search", app.SearchHandler)
		r.Get("/status", app.StatusHandler)

		r.Route("/index", func(r chi.Router) {
			r.Get("/", app.IndexStatusHandler)
			r.Post("/", app.CreateIndexHandler)
			r.Delete("/", app.DeleteIndexHandler)
			r.Post("/documents", app.UploadDocumentsHandler)
			r.Post("/reload", app.ReloadHandler)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		app.sendErrorResponse(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		app.sendErrorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	return r
}

// SearchHandler handles GET /api/search?q=&page=&leftMostPage=
func (app *AppState) SearchHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	text := q.Get("q")
	if text == "" {
		text = q.Get("query")
	}

	page, err := parseIntParam(q.Get("page"), 0)
	if err != nil || page < 0 {
		app.sendErrorResponse(w, http.StatusBadRequest, "Invalid page parameter")
		return
	}
	leftMostPage, err := parseIntParam(q.Get("leftMostPage"), 0)
	if err != nil || leftMostPage < 0 {
		app.sendErrorResponse(w, http.StatusBadRequest, "Invalid leftMostPage parameter")
		return
	}

	data, err := app.provider.RunQuery(r.Context(), text, page, leftMostPage)
	if err != nil {
		app.sendError(w, r, "Search failed", err)
		return
	}

	app.sendSuccessResponse(w, http.StatusOK, data)
}

// StatusHandler handles GET /api/status
func (app *AppState) StatusHandler(w http.ResponseWriter, r *http.Request) {
	healthy := false
	if app.health != nil {
		if err := app.health.HealthCheck(r.Context()); err == nil {
			healthy = true
		} else {
			app.log.Warn().Err(err).Msg("manticore health check failed")
		}
	}

	// IndexStatus already logs failures and reports them as a missing index
	status, _ := app.provider.IndexStatus(r.Context())

	resp := api.StatusResponse{
		Status:           "ok",
		ManticoreHealthy: healthy,
		IndexExists:      status.Exists,
		DocumentCount:    status.DocumentCount,
		PageSize:         app.provider.PageSize(),
		Uptime:           time.Since(app.startTime).Round(time.Second).String(),
	}
	if reporter, ok := app.health.(StatsReporter); ok {
		resp.Backend = backendStats(reporter)
	}
	if !healthy || (resp.Backend != nil && resp.Backend.CircuitState != manticore.CircuitBreakerClosed.String()) {
		resp.Status = "degraded"
	}

	app.sendSuccessResponse(w, http.StatusOK, resp)
}

func backendStats(reporter StatsReporter) *api.BackendStats {
	m := reporter.GetMetrics()
	cb := reporter.GetCircuitBreakerStats()
	return &api.BackendStats{
		CircuitState:         cb.State.String(),
		CircuitFailureRate:   cb.CurrentFailureRate,
		CircuitRejections:    cb.TotalRejections,
		RequestCount:         m.RequestCount,
		ErrorCount:           m.ErrorCount,
		SuccessRate:          m.SuccessRate,
		AverageResponseTime:  m.AverageResponseTime.String(),
		BulkDocumentsIndexed: m.BulkDocumentsIndexed,
	}
}

// IndexStatusHandler handles GET /api/index
func (app *AppState) IndexStatusHandler(w http.ResponseWriter, r *http.Request) {
	status, err := app.provider.IndexStatus(r.Context())
	if err != nil {
		app.sendError(w, r, "Index status unavailable", err)
		return
	}
	app.sendSuccessResponse(w, http.StatusOK, status)
}

// CreateIndexHandler handles POST /api/index
func (app *AppState) CreateIndexHandler(w http.ResponseWriter, r *http.Request) {
	if err := app.provider.CreateIndex(r.Context()); err != nil {
		app.sendError(w, r, "Failed to create index", err)
		return
	}
	app.sendSuccessResponse(w, http.StatusCreated, api.MessageResponse{Message: "index created"})
}

// DeleteIndexHandler handles DELETE /api/index
func (app *AppState) DeleteIndexHandler(w http.ResponseWriter, r *http.Request) {
	if err := app.provider.DeleteIndex(r.Context()); err != nil {
		app.sendError(w, r, "Failed to delete index", err)
		return
	}
	app.sendSuccessResponse(w, http.StatusOK, api.MessageResponse{Message: "index deleted"})
}

// UploadDocumentsHandler handles POST /api/index/documents with a JSON array body
func (app *AppState) UploadDocumentsHandler(w http.ResponseWriter, r *http.Request) {
	var docs []*models.PersonCity

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err := dec.Decode(&docs); err != nil {
		app.sendErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if len(docs) == 0 {
		app.sendErrorResponse(w, http.StatusBadRequest, "No documents in request body")
		return
	}

	if err := app.provider.AddDocuments(r.Context(), docs); err != nil {
		app.sendError(w, r, "Failed to upload documents", err)
		return
	}
	app.sendSuccessResponse(w, http.StatusOK, api.UploadResponse{DocumentsCount: len(docs)})
}

// ReloadHandler handles POST /api/index/reload: drop, recreate and seed the index
func (app *AppState) ReloadHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	docs, err := document.LoadDirectory(app.seedDir, app.log)
	if err != nil {
		app.log.Error().Err(err).Str("dir", app.seedDir).Msg("failed to load seed documents")
		app.sendErrorResponse(w, http.StatusInternalServerError, "Failed to load documents")
		return
	}
	if len(docs) == 0 {
		app.sendErrorResponse(w, http.StatusBadRequest, "No documents found in seed directory")
		return
	}

	if err := app.provider.Rebuild(r.Context(), docs); err != nil {
		app.sendError(w, r, "Reload failed", err)
		return
	}

	took := time.Since(start)
	app.log.Info().Int("documents", len(docs)).Dur("duration", took).Msg("index reloaded")

	app.sendSuccessResponse(w, http.StatusOK, api.ReindexResponse{
		Message:        "Reindexing completed successfully",
		DocumentsCount: len(docs),
		IndexingTime:   took.String(),
	})
}

// sendError maps err to a status code, logs it and writes an error response
func (app *AppState) sendError(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := statusFor(err)

	ev := app.log.Error()
	if status < http.StatusInternalServerError {
		ev = app.log.Warn()
	}
	ev.Err(err).
		Str("request_id", middleware.GetReqID(r.Context())).
		Int("status", status).
		Msg(message)

	app.sendErrorResponse(w, status, fmt.Sprintf("%s: %v", message, err))
}

// statusFor picks the HTTP status for an error from the search stack
func statusFor(err error) int {
	var manticoreErr *manticore.ManticoreError
	var connErr *manticore.ConnectionError

	switch {
	case errors.Is(err, search.ErrInvalidDocument):
		return http.StatusBadRequest
	case errors.Is(err, search.ErrIndexNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &connErr):
		return http.StatusServiceUnavailable
	case errors.As(err, &manticoreErr):
		switch manticoreErr.ErrorType {
		case manticore.ErrorTypeCircuitBreaker, manticore.ErrorTypeRetryExhausted,
			manticore.ErrorTypeNetwork, manticore.ErrorTypeConnectionRefused,
			manticore.ErrorTypeConnectionReset, manticore.ErrorTypeDNS:
			return http.StatusServiceUnavailable
		case manticore.ErrorTypeTimeout:
			return http.StatusGatewayTimeout
		case manticore.ErrorTypeHTTPClient, manticore.ErrorTypeValidation:
			return http.StatusBadRequest
		}
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// sendSuccessResponse sends a successful JSON response
func (app *AppState) sendSuccessResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	app.writeJSON(w, statusCode, api.APIResponse{Success: true, Data: data})
}

// sendErrorResponse sends an error JSON response
func (app *AppState) sendErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	app.writeJSON(w, statusCode, api.APIResponse{Success: false, Error: message})
}

func (app *AppState) writeJSON(w http.ResponseWriter, statusCode int, body api.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		app.log.Error().Err(err).Msg("failed to encode JSON response")
	}
}

// requestLogger logs one line per request
func (app *AppState) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		app.log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

// cors allows browser clients on other origins and answers preflight requests
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", strings.Join([]string{
			http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions,
		}, ", "))
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// parseIntParam parses an integer parameter with a default value
func parseIntParam(param string, defaultValue int) (int, error) {
	if param == "" {
		return defaultValue, nil
	}
	return strconv.Atoi(param)
}
