// Package server exposes the signal engine over HTTP: outcome ingestion,
// session inspection, stored prediction queries, and a metrics snapshot.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/signal-engine/internal/config"
	"github.com/sells-group/signal-engine/internal/engine"
	"github.com/sells-group/signal-engine/internal/ingest"
	"github.com/sells-group/signal-engine/internal/model"
	"github.com/sells-group/signal-engine/internal/monitoring"
	"github.com/sells-group/signal-engine/internal/store"
)

// Server wires the session manager, the persistence layer, and the metrics
// collector behind a chi router.
type Server struct {
	manager   *engine.Manager
	store     store.Store
	collector *monitoring.Collector
	cfg       config.ServerConfig
	router    chi.Router
}

// New builds the server and its routes. store may be nil when persistence is
// disabled; prediction and summary endpoints then return 503.
func New(manager *engine.Manager, st store.Store, collector *monitoring.Collector, cfg config.ServerConfig) *Server {
	s := &Server{
		manager:   manager,
		store:     st,
		collector: collector,
		cfg:       cfg,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)

	r.Post("/outcomes", s.handleSubmitOutcome)

	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", s.handleListSessions)
		r.Route("/{key}", func(r chi.Router) {
			r.Get("/pending", s.handlePending)
			r.Get("/performance", s.handlePerformance)
			r.Get("/history", s.handleHistory)
		})
	})

	r.Get("/predictions", s.handleListPredictions)
	r.Get("/patterns/summary", s.handlePatternSummaries)

	s.router = r
	return s
}

// Router returns the HTTP handler, primarily for tests.
func (s *Server) Router() http.Handler { return s.router }

// Run serves until ctx is cancelled, then shuts down gracefully within the
// configured timeout.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.cfg.Port),
		Handler: s.router,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		timeout := time.Duration(s.cfg.ShutdownTimeout) * time.Second
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zap.L().Error("server shutdown", zap.Error(err))
		}
	}()

	zap.L().Info("starting server", zap.Int("port", s.cfg.Port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server listen")
	}
	return nil
}

type submitRequest struct {
	Session   string     `json:"session"`
	Category  string     `json:"category"`
	Value     int        `json:"value"`
	Source    string     `json:"source,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

func (s *Server) handleSubmitOutcome(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Session == "" {
		writeError(w, http.StatusBadRequest, "session is required")
		return
	}

	cat, err := ingest.ParseCategory(req.Category)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	session, err := s.manager.GetOrCreate(req.Session)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	at := time.Now()
	if req.Timestamp != nil {
		at = *req.Timestamp
	}
	source := req.Source
	if source == "" {
		source = "api"
	}

	res, err := session.Submit(r.Context(), cat, req.Value, source, at)
	if err != nil {
		if engine.IsValidation(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if s.store != nil {
		if err := s.store.RecordOutcome(r.Context(), req.Session, res.Event); err != nil {
			zap.L().Error("record outcome",
				zap.String("session", req.Session),
				zap.Error(err),
			)
		}
	}

	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	keys := s.manager.Keys()
	writeJSON(w, http.StatusOK, map[string]any{"sessions": keys})
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) *engine.Session {
	key := chi.URLParam(r, "key")
	session := s.manager.Get(key)
	if session == nil {
		writeError(w, http.StatusNotFound, "session not found")
		return nil
	}
	return session
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	session := s.session(w, r)
	if session == nil {
		return
	}

	resp := map[string]any{
		"state":   session.State(),
		"pending": session.PendingPrediction(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePerformance(w http.ResponseWriter, r *http.Request) {
	session := s.session(w, r)
	if session == nil {
		return
	}
	writeJSON(w, http.StatusOK, session.Performance())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	session := s.session(w, r)
	if session == nil {
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events": session.History(limit),
		"total":  session.HistoryLen(),
	})
}

func (s *Server) handleListPredictions(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "persistence is disabled")
		return
	}

	q := r.URL.Query()
	filter := store.PredictionFilter{
		Session:   q.Get("session"),
		PatternID: q.Get("pattern"),
		Status:    model.PredictionStatus(q.Get("status")),
		Limit:     50,
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = n
	}

	preds, err := s.store.ListPredictions(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"predictions": preds})
}

func (s *Server) handlePatternSummaries(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "persistence is disabled")
		return
	}

	summaries, err := s.store.PatternSummaries(r.Context(), r.URL.Query().Get("session"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"patterns": summaries})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.collector == nil {
		writeError(w, http.StatusServiceUnavailable, "metrics collection is disabled")
		return
	}

	snapshot, err := s.collector.Collect(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Error("encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
