// Package server exposes the ingestion pipeline over HTTP.
package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sellerdata/ingest-cli/internal/apperr"
	"github.com/sellerdata/ingest-cli/internal/extract"
	"github.com/sellerdata/ingest-cli/internal/importer"
	"github.com/sellerdata/ingest-cli/internal/store"
	"github.com/sellerdata/ingest-cli/internal/worker"
)

// Server carries the handler dependencies.
type Server struct {
	store      store.Store
	fileDriver *importer.FileDriver
	apiDriver  *importer.APIDriver
	extractor  *extract.Driver
	executor   *worker.Executor
}

// New wires the HTTP server.
func New(st store.Store, fileDriver *importer.FileDriver, apiDriver *importer.APIDriver, extractor *extract.Driver, executor *worker.Executor) *Server {
	return &Server{
		store:      st,
		fileDriver: fileDriver,
		apiDriver:  apiDriver,
		extractor:  extractor,
		executor:   executor,
	}
}

// Router builds the chi routing tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(traceID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/imports", func(r chi.Router) {
		r.Post("/", s.handleCreateImport)
		r.Get("/", s.handleListImports)
		r.Get("/{id}", s.handleGetImport)
		r.Post("/{id}/extract", s.handleExtract)
		r.Get("/{id}/runs", s.handleListRuns)
	})
	r.Post("/api-imports", s.handleAPIImport)
	r.Get("/products", s.handleListProducts)

	return r
}

type traceKey struct{}

// traceID tags every request with an id surfaced in responses and logs.
func traceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Trace-Id")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Trace-Id", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), traceKey{}, id)))
	})
}

func traceFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(traceKey{}).(string); ok {
		return id
	}
	return ""
}

// errorBody is the uniform failure envelope.
type errorBody struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details,omitempty"`
	} `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Warn("encode response", zap.Error(err))
	}
}

// writeError maps a coded error onto its HTTP status and envelope.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperr.CodeOf(err)
	status := statusFor(code)

	var body errorBody
	body.Error.Code = string(code)
	if ae, ok := apperr.As(err); ok {
		body.Error.Message = ae.Message
		body.Error.Details = ae.Details
	} else {
		body.Error.Message = "internal error"
	}
	if status >= 500 {
		if body.Error.Details == nil {
			body.Error.Details = map[string]any{}
		}
		body.Error.Details["trace_id"] = traceFromContext(r.Context())
		zap.L().Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("trace_id", traceFromContext(r.Context())),
			zap.Error(err),
		)
	}

	writeJSON(w, status, body)
}

func statusFor(code apperr.Code) int {
	switch code {
	case apperr.CodeValidation, apperr.CodeInvalidFileFormat, apperr.CodeUnreadableEnc,
		apperr.CodeAmbiguousSheet, apperr.CodeEmptySheet, apperr.CodeMissingRequired,
		apperr.CodeUnrecognizedInput:
		return http.StatusBadRequest
	case apperr.CodeDuplicateFile:
		return http.StatusConflict
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodeRemote, apperr.CodeLLM:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
