// Package server provides the HTTP server and routing for the workbench.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stockworks/workbench/internal/alerts"
	"github.com/stockworks/workbench/internal/backup"
	"github.com/stockworks/workbench/internal/events"
	"github.com/stockworks/workbench/internal/expr"
	"github.com/stockworks/workbench/internal/marketdata"
	"github.com/stockworks/workbench/internal/patterns"
	"github.com/stockworks/workbench/internal/realtimestream"
	"github.com/stockworks/workbench/internal/reports"
	"github.com/stockworks/workbench/internal/resolver"
	"github.com/stockworks/workbench/internal/scheduler"
	"github.com/stockworks/workbench/internal/stockdb"
)

// Config wires every component the HTTP API fronts. Fields may be nil
// where a feature is disabled (Realtime when --disable-realtime, Backup
// when S3BackupBucket is unset); handlers that depend on them answer
// StatusServiceUnavailable rather than panicking.
type Config struct {
	Addr    string
	DataDir string

	DB       *stockdb.DB
	Resolver *resolver.Dispatcher
	Market   *marketdata.Client
	EvalCtx  *expr.Context

	Reports  *reports.Store
	Patterns *patterns.Store
	Alerts   *alerts.Store

	AlertsEngine *alerts.Engine
	Realtime     *realtimestream.Monitor
	Backup       *backup.Service
	Scheduler    *scheduler.Scheduler

	EventBus      *events.Bus
	EventsManager *events.Manager

	Log zerolog.Logger
}

// Server is the chi-routed HTTP API: stock resolution, expression
// evaluation, reports/patterns/alerts CRUD, system status and the unified
// SSE event stream.
type Server struct {
	cfg    Config
	router chi.Router
	http   *http.Server
	log    zerolog.Logger
}

// New builds the router and wires every handler group. It does not start
// listening; call Start for that.
func New(cfg Config) *Server {
	s := &Server{
		cfg: cfg,
		log: cfg.Log.With().Str("component", "server").Logger(),
	}
	s.router = s.buildRouter()
	s.http = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// requestIDHeader is the header the original chi middleware.RequestID uses;
// reused here so downstream log correlation and clients don't have to
// special-case this server's id format.
const requestIDHeader = "X-Request-Id"

// requestIDMiddleware stamps every request with a uuid rather than chi's
// own process-counter id, so request ids and the event bus's event ids
// (events.NewEventID) come from the same generator and can be correlated
// by a log aggregator without two id schemes.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set(requestIDHeader, id)
		ctx := context.WithValue(r.Context(), middleware.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(requestIDMiddleware)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.Compress(5))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)

	stocks := &StockHandlers{s: s}
	exprH := &ExprHandlers{s: s}
	reportsH := &ReportsHandlers{s: s}
	patternsH := &PatternsHandlers{s: s}
	alertsH := &AlertsHandlers{s: s}
	systemH := &SystemHandlers{s: s}
	logsH := NewLogHandlers(s.log, s.cfg.DataDir)
	eventsH := NewEventsStreamHandler(s.cfg.EventBus, s.cfg.DataDir, s.log)
	wsH := NewWSStreamHandler(s.cfg.EventBus, s.log)

	r.Route("/api", func(r chi.Router) {
		r.Get("/events/stream", eventsH.ServeHTTP)
		r.Get("/events/ws", wsH.ServeHTTP)

		r.Route("/stocks", func(r chi.Router) {
			r.Get("/{code}", stocks.HandleGet)
			r.Post("/{code}/resolve", stocks.HandleResolve)
			r.Get("/{code}/realtime", stocks.HandleRealtime)
		})

		r.Post("/expr", exprH.HandleEval)

		r.Route("/reports", func(r chi.Router) {
			r.Get("/", reportsH.HandleList)
			r.Get("/{name}", reportsH.HandleGet)
			r.Put("/{name}", reportsH.HandlePut)
			r.Delete("/{name}", reportsH.HandleDelete)
		})

		r.Route("/patterns", func(r chi.Router) {
			r.Get("/", patternsH.HandleList)
			r.Get("/{code}", patternsH.HandleGet)
			r.Put("/{code}", patternsH.HandlePut)
			r.Delete("/{code}", patternsH.HandleDelete)
		})

		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", alertsH.HandleList)
			r.Post("/", alertsH.HandleCreate)
			r.Delete("/{index}", alertsH.HandleDelete)
			r.Post("/price-increase", alertsH.HandleIncrease)
			r.Post("/price-decrease", alertsH.HandleDecrease)
		})

		r.Route("/system", func(r chi.Router) {
			r.Get("/status", systemH.HandleStatus)
			r.Get("/logs", logsH.HandleListLogs)
			r.Get("/logs/content", logsH.HandleGetLogs)
			r.Get("/errors", logsH.HandleGetErrors)
			r.Post("/jobs/alerts-tick", systemH.HandleRunAlertsTick)
			r.Post("/jobs/backup", systemH.HandleRunBackup)
		})
	})

	return r
}

// Start begins serving HTTP, blocking until Shutdown closes the listener.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.cfg.Addr).Msg("http server listening")
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully drains in-flight requests within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
