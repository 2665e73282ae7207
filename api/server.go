package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shannon-run/shannon/workflow"
	"github.com/shannon-run/shannon/workflow/schedule"
)

// Server wires Shannon's workflow.Service and schedule.Scheduler
// behind the HTTP surface spec §6 names, using chi as the teacher's
// retrieval-pack precedent (kadirpekel-hector, the xentoshi-lake
// workflow handlers) does for exactly this kind of task API.
type Server struct {
	router chi.Router

	svc           *workflow.Service
	scheduler     *schedule.Scheduler
	scheduleStore schedule.Store

	logger         hclog.Logger
	defaultPattern string

	readyCheck func() error
}

// Option configures a Server at construction time.
type Option func(*Server)

// WithDefaultPattern sets the pattern_type used when a submission
// omits "mode" (spec §6: mode is optional on POST /api/v1/tasks).
func WithDefaultPattern(pattern string) Option {
	return func(s *Server) { s.defaultPattern = pattern }
}

// WithReadyCheck sets the function GET /ready consults; a non-nil
// error reports not-ready. The default always reports ready.
func WithReadyCheck(check func() error) Option {
	return func(s *Server) { s.readyCheck = check }
}

// NewServer builds a Server and its chi.Router. svc is the workflow
// orchestrator; scheduler and its backing store drive
// /api/v1/schedules.
func NewServer(svc *workflow.Service, scheduler *schedule.Scheduler, scheduleStore schedule.Store, logger hclog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	s := &Server{
		svc:            svc,
		scheduler:      scheduler,
		scheduleStore:  scheduleStore,
		logger:         logger.Named("api"),
		defaultPattern: "react",
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(hclogMiddleware(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", s.health)
	r.Get("/ready", s.ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/tasks", func(r chi.Router) {
		r.Post("/", s.submitTask)
		r.Get("/", s.listTasks)
		r.Post("/import", s.importTask)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getTask)
			r.Get("/stream", s.streamTask)
			r.Get("/export", s.exportTask)
			r.Post("/pause", s.pauseTask)
			r.Post("/resume", s.resumeTask)
			r.Post("/cancel", s.cancelTask)
		})
	})

	r.Route("/api/v1/schedules", func(r chi.Router) {
		r.Get("/", s.listSchedules)
		r.Post("/", s.createSchedule)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getSchedule)
			r.Put("/", s.updateSchedule)
			r.Delete("/", s.deleteSchedule)
		})
	})

	s.router = r
	return s
}

// ServeHTTP makes Server an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	if s.readyCheck != nil {
		if err := s.readyCheck(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready", "reason": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// hclogMiddleware logs each request's method, path, status, and
// duration through the teacher's structured-logging library rather
// than chi's default stdlib logger (spec §A "no log.Printf anywhere").
func hclogMiddleware(log hclog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
