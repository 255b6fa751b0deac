package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"go.uber.org/zap"

	"workflowai/internal/auth"
	"workflowai/internal/httpserver/handlers"
	"workflowai/internal/metrics"
	"workflowai/internal/oauth"
	"workflowai/internal/store"
	"workflowai/internal/telemetry"
	"workflowai/internal/workflows"
)

// Deps is everything the router hands to its handlers.
type Deps struct {
	Auth      *auth.Service
	Resolver  *auth.Resolver
	Workflows *workflows.Service
	Templates store.Templates
	Users     store.Users
	// OAuth is nil when Google sign-in is not configured.
	OAuth   *oauth.Flow
	Metrics *metrics.Metrics

	Cookies        handlers.CookieOptions
	OAuthLanding   string
	AllowedOrigins []string
	// LoginRateLimit is requests per minute per client IP on the sign-in routes.
	LoginRateLimit int
	ServiceName    string
}

func NewRouter(d Deps, lg *zap.SugaredLogger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer, requestLogger(lg))
	r.Use(telemetry.Middleware(d.ServiceName))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           int((10 * time.Minute).Seconds()),
	}))
	r.Use(middleware.StripSlashes)

	limit := d.LoginRateLimit
	if limit <= 0 {
		limit = 20
	}
	signIn := httprate.LimitByIP(limit, time.Minute)

	r.Get("/", handlers.Root())
	r.Get("/health", handlers.Health())
	r.Get("/healthz", handlers.Health())
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	r.With(signIn).Post("/token", handlers.Login(d.Auth, lg))
	r.Post("/users", handlers.Signup(d.Auth, lg))

	r.Route("/api/auth/google", func(g chi.Router) {
		g.Use(signIn)
		if d.OAuth == nil {
			g.HandleFunc("/*", handlers.Unavailable("Google sign-in is not configured"))
			return
		}
		g.Get("/login", handlers.GoogleLogin(d.OAuth, d.Cookies, lg))
		g.Get("/callback", handlers.GoogleCallback(d.OAuth, d.Cookies, d.OAuthLanding, lg))
	})

	r.Get("/api/templates", handlers.ListTemplates(d.Templates, lg))
	r.Get("/api/templates/{id}", handlers.GetTemplate(d.Templates, lg))

	r.Group(func(protected chi.Router) {
		protected.Use(d.Resolver.Authenticate, auth.RequireActive)
		protected.Get("/users/me", handlers.Me())
		protected.Post("/logout", handlers.Logout(d.Auth, d.Cookies, lg))

		protected.Route("/api/workflows", func(wf chi.Router) {
			wf.Get("/", handlers.ListWorkflows(d.Workflows, lg))
			wf.Post("/", handlers.CreateWorkflow(d.Workflows, lg))
			wf.Get("/{id}", handlers.GetWorkflow(d.Workflows, lg))
			wf.Put("/{id}", handlers.UpdateWorkflow(d.Workflows, lg))
			wf.Delete("/{id}", handlers.DeleteWorkflow(d.Workflows, lg))
			wf.Post("/{id}/execute", handlers.ExecuteWorkflow(d.Workflows, lg))
			wf.Get("/{id}/executions", handlers.WorkflowExecutions(d.Workflows, lg))
		})
		protected.Get("/api/logs", handlers.MyLogs(d.Workflows, lg))
		protected.Get("/api/logs/{id}", handlers.GetLog(d.Workflows, lg))

		protected.Group(func(admin chi.Router) {
			admin.Use(auth.RequireAdmin)
			admin.Post("/api/templates", handlers.CreateTemplate(d.Templates, lg))
			admin.Put("/api/templates/{id}", handlers.UpdateTemplate(d.Templates, lg))
			admin.Delete("/api/templates/{id}", handlers.DeleteTemplate(d.Templates, lg))
			admin.Get("/api/admin/users", handlers.ListUsers(d.Users, lg))
			admin.Patch("/api/admin/users/{id}", handlers.UpdateUser(d.Users, lg))
		})
	})
	return r
}
