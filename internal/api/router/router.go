package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/querylens/intent-platform/internal/http/handlers"
	httpmiddleware "github.com/querylens/intent-platform/internal/http/middleware"
	"github.com/querylens/intent-platform/internal/intent"
	"github.com/querylens/intent-platform/internal/session"
	"github.com/querylens/intent-platform/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger          *logging.Logger
	IntentHandler   *intent.Handler
	SessionHandler  *session.Handler
	AdminIntents    *handlers.AdminIntentsHandler
	AdminAuthSecret string
	MetricsHandler  http.Handler

	CORSAllowedOrigins []string

	// Rate limiting for tenant routes (disabled when the rate is zero)
	RateLimitPerSecond float64
	RateLimitBurst     int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints (health checks, metrics, websocket sessions)
	r.Group(func(public chi.Router) {
		public.Get("/health", healthCheck)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		// Browser websocket clients cannot set custom headers, so the
		// session endpoints take the org as a query parameter instead
		// of X-Org-Id.
		if cfg.SessionHandler != nil {
			public.Get("/v1/session", cfg.SessionHandler.HandleSession)
			public.Get("/v1/session/history", cfg.SessionHandler.HandleHistory)
		}
	})

	// Admin routes (protected by JWT, operators work across tenants)
	if cfg.AdminAuthSecret != "" {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			if cfg.AdminIntents != nil {
				admin.Get("/misclassifications", cfg.AdminIntents.ListMisclassifications)
				admin.Post("/misclassifications/{recordID}/label", cfg.AdminIntents.LabelMisclassification)
				admin.Post("/snapshot", cfg.AdminIntents.ExportSnapshot)
				admin.Post("/snapshot/restore", cfg.AdminIntents.RestoreSnapshot)
			}
		})
	}

	// Tenant-scoped API routes
	r.Group(func(tenant chi.Router) {
		tenant.Use(requireOrgID)
		if cfg.RateLimitPerSecond > 0 {
			tenant.Use(httpmiddleware.RateLimit(cfg.RateLimitPerSecond, cfg.RateLimitBurst))
		}

		tenant.Post("/v1/classify", cfg.IntentHandler.Classify)
		tenant.Post("/v1/classify/async", cfg.IntentHandler.ClassifyAsync)
		tenant.Get("/v1/jobs/{jobID}", cfg.IntentHandler.JobStatus)
		tenant.Post("/v1/fallback", cfg.IntentHandler.Fallback)
		tenant.Post("/v1/reason", cfg.IntentHandler.Reason)

		tenant.Route("/v1/intents", func(r chi.Router) {
			r.Get("/", cfg.IntentHandler.ListIntents)
			r.Post("/", cfg.IntentHandler.CreateIntent)
			r.Put("/{name}", cfg.IntentHandler.UpdateIntent)
			r.Delete("/{name}", cfg.IntentHandler.DeleteIntent)
			r.Post("/{name}/aliases", cfg.IntentHandler.AddAlias)
		})
	})

	return r
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	response := map[string]string{
		"status": "ok",
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}
