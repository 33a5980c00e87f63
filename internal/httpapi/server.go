package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/roach88/shelfwise/internal/analytics"
	"github.com/roach88/shelfwise/internal/ingest"
	"github.com/roach88/shelfwise/internal/model"
	"github.com/roach88/shelfwise/internal/store"
)

// Syncer runs ingestion. Implemented by *ingest.Engine.
type Syncer interface {
	Run(ctx context.Context, storeID string, entity model.EntityType, opts ingest.RunOptions) (model.SyncRun, error)
	RunAll(ctx context.Context, storeID string, opts ingest.RunOptions) ([]model.SyncRun, error)
}

// Reporter computes analytics. Implemented by *analytics.Engine.
type Reporter interface {
	Report(ctx context.Context, storeID string, cfg analytics.Config) (analytics.Report, error)
}

// Stores resolves store ids. Implemented by *store.Store.
type Stores interface {
	GetStore(ctx context.Context, storeID string) (model.Store, error)
}

// Server exposes the sync and analytics triggers over HTTP.
type Server struct {
	syncer   Syncer
	reporter Reporter
	stores   Stores
	logger   *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a Server.
func New(syncer Syncer, reporter Reporter, stores Stores, opts ...Option) *Server {
	s := &Server{
		syncer:   syncer,
		reporter: reporter,
		stores:   stores,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1/stores/{store_id}", func(r chi.Router) {
		r.Post("/sync/{entity}", s.handleSync)
		r.Get("/analytics", s.handleAnalytics)
	})

	return r
}

type syncResponse struct {
	Runs  []model.SyncRun `json:"runs"`
	Error *errorBody      `json:"error,omitempty"`
}

type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
	Page      int    `json:"page,omitempty"`
	Status    int    `json:"upstream_status,omitempty"`
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "store_id")
	target := chi.URLParam(r, "entity")

	opts, err := runOptions(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	var (
		runs   []model.SyncRun
		runErr error
	)
	if target == "all" {
		runs, runErr = s.syncer.RunAll(r.Context(), storeID, opts)
	} else {
		entity, err := model.ParseEntityType(target)
		if err != nil {
			respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
			return
		}
		run, err := s.syncer.Run(r.Context(), storeID, entity, opts)
		runs, runErr = []model.SyncRun{run}, err
	}

	if runErr != nil {
		status, body := syncErrorBody(runErr)
		s.logger.Warn("sync request failed", "store_id", storeID, "target", target, "error", runErr)
		respond(w, status, syncResponse{Runs: runs, Error: body})
		return
	}
	respond(w, http.StatusOK, syncResponse{Runs: runs})
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "store_id")

	if _, err := s.stores.GetStore(r.Context(), storeID); err != nil {
		if errors.Is(err, store.ErrStoreNotFound) {
			respondError(w, http.StatusNotFound, "NOT_FOUND", "unknown store "+storeID)
			return
		}
		respondError(w, http.StatusInternalServerError, "STORAGE", err.Error())
		return
	}

	// Knobs are never rejected; ParseConfig clamps whatever was sent.
	cfg := analytics.ParseConfig(r.URL.Query().Get)

	report, err := s.reporter.Report(r.Context(), storeID, cfg)
	if err != nil {
		s.logger.Error("analytics request failed", "store_id", storeID, "error", err)
		respondError(w, http.StatusInternalServerError, "STORAGE", err.Error())
		return
	}
	respond(w, http.StatusOK, report)
}

// runOptions reads dry, days, pageCap and maxDuration from the query.
// Unlike analytics knobs these are operator inputs, so malformed values are
// rejected.
func runOptions(r *http.Request) (ingest.RunOptions, error) {
	q := r.URL.Query()
	var opts ingest.RunOptions

	if v := q.Get("dry"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, errors.New("dry: must be a boolean")
		}
		opts.Dry = b
	}
	if v := q.Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return opts, errors.New("days: must be an integer")
		}
		opts.Days = n
	}
	if v := q.Get("pageCap"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return opts, errors.New("pageCap: must be a non-negative integer")
		}
		opts.PageCap = n
	}
	if v := q.Get("maxDuration"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return opts, errors.New("maxDuration: must be a non-negative duration")
		}
		opts.MaxDuration = d
	}
	return opts, nil
}

// syncErrorBody maps a sync failure to an HTTP status and error body.
func syncErrorBody(err error) (int, *errorBody) {
	var se *ingest.SyncError
	if !errors.As(err, &se) {
		return http.StatusInternalServerError, &errorBody{Code: "INTERNAL", Message: err.Error()}
	}

	body := &errorBody{
		Code:      string(se.Code),
		Message:   se.Error(),
		Retryable: se.Retryable(),
		Page:      se.Page,
		Status:    se.Status,
	}
	switch se.Code {
	case ingest.ErrCodeConfiguration:
		if errors.Is(err, store.ErrStoreNotFound) {
			return http.StatusNotFound, body
		}
		return http.StatusConflict, body
	case ingest.ErrCodeUpstreamRejected:
		return http.StatusBadGateway, body
	case ingest.ErrCodeTransientUpstream, ingest.ErrCodeCanceled:
		return http.StatusServiceUnavailable, body
	default:
		return http.StatusInternalServerError, body
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respond(w, status, map[string]*errorBody{"error": {Code: code, Message: message}})
}
