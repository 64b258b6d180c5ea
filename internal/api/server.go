// Package api serves the policy tracker over HTTP: task intake for signed-in
// users, the verification and contribution flow, the automation action
// endpoint and read-only reference data.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sells-group/policy-tracker/internal/classify"
	"github.com/sells-group/policy-tracker/internal/config"
	"github.com/sells-group/policy-tracker/internal/extract"
	"github.com/sells-group/policy-tracker/internal/gate"
	"github.com/sells-group/policy-tracker/internal/ingest"
	"github.com/sells-group/policy-tracker/internal/ledger"
	"github.com/sells-group/policy-tracker/internal/metrics"
	"github.com/sells-group/policy-tracker/internal/quota"
	"github.com/sells-group/policy-tracker/internal/refcache"
	"github.com/sells-group/policy-tracker/internal/scheduler"
	"github.com/sells-group/policy-tracker/internal/store"
)

// Analyzer runs a verification analysis.
type Analyzer interface {
	Analyze(ctx context.Context, req extract.AnalyzeRequest) (*extract.Result, error)
}

// PageReader turns a URL into readable text.
type PageReader interface {
	Text(ctx context.Context, url string) (string, error)
}

// Deps wires a Server.
type Deps struct {
	Store      store.Store
	Classifier *classify.Classifier
	Limiter    *quota.Limiter
	Analyzer   Analyzer
	Pages      PageReader
	Gate       *gate.Gate
	Engine     *ingest.Engine
	Ledger     *ledger.Ledger
	Scheduler  *scheduler.Scheduler
	State      *refcache.AppState

	Auth           config.AuthConfig
	CORSOrigins    []string
	RequestTimeout time.Duration
	Now            func() time.Time
}

// Server holds the handlers' collaborators.
type Server struct {
	store      store.Store
	classifier *classify.Classifier
	limiter    *quota.Limiter
	analyzer   Analyzer
	pages      PageReader
	gate       *gate.Gate
	engine     *ingest.Engine
	ledger     *ledger.Ledger
	scheduler  *scheduler.Scheduler
	state      *refcache.AppState

	auth    config.AuthConfig
	origins []string
	timeout time.Duration
	now     func() time.Time
}

// New creates a Server.
func New(d Deps) *Server {
	s := &Server{
		store:      d.Store,
		classifier: d.Classifier,
		limiter:    d.Limiter,
		analyzer:   d.Analyzer,
		pages:      d.Pages,
		gate:       d.Gate,
		engine:     d.Engine,
		ledger:     d.Ledger,
		scheduler:  d.Scheduler,
		state:      d.State,
		auth:       d.Auth,
		origins:    d.CORSOrigins,
		timeout:    d.RequestTimeout,
		now:        d.Now,
	}
	if s.classifier == nil {
		s.classifier = classify.MustDefault()
	}
	if s.gate == nil {
		s.gate = gate.New(0, 0)
	}
	if s.timeout <= 0 {
		s.timeout = 60 * time.Second
	}
	if s.now == nil {
		s.now = time.Now
	}
	if len(s.origins) == 0 {
		s.origins = []string{"*"}
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Client-Info", "Apikey", AgentKeyHeader},
		MaxAge:         300,
	}))
	r.Use(observe)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(s.timeout))

		r.Get("/elections", s.handleElections)
		r.Get("/politicians", s.handlePoliticians)
		r.Get("/policies", s.handlePolicies)

		r.Post("/action", s.handleAction)
		r.Post("/schedule", s.handleSchedule)

		r.Group(func(r chi.Router) {
			r.Use(s.requireUser)
			r.Post("/classify", s.handleClassify)
			r.Get("/prompt-status", s.handlePromptStatus)
			r.Post("/prompt-status", s.handlePromptStatus)
			r.Post("/verify", s.handleVerify)
			r.Post("/contribute", s.handleContribute)

			r.Route("/admin", func(r chi.Router) {
				r.Use(s.requireAdmin)
				r.Post("/batch-import", s.handleBatchImport)
				r.Post("/progress", s.handleProgress)
				r.Post("/search", s.handleAdminSearch)
			})
		})
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if err := s.store.Ping(r.Context()); err != nil {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": status})
}
