package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/fieldvolt/fieldvolt-access/internal/audit"
	"github.com/fieldvolt/fieldvolt-access/internal/auth"
	"github.com/fieldvolt/fieldvolt-access/internal/authz"
	"github.com/fieldvolt/fieldvolt-access/internal/catalog"
	"github.com/fieldvolt/fieldvolt-access/internal/grants"
	"github.com/fieldvolt/fieldvolt-access/internal/observability"
	"github.com/fieldvolt/fieldvolt-access/internal/portal"
	"github.com/fieldvolt/fieldvolt-access/internal/users"
	"github.com/fieldvolt/fieldvolt-access/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *auth.SessionManager

	Authorizer *authz.Service

	AuthHandler    *auth.Handler
	AuthzHandler   *authz.Handler
	CatalogHandler *catalog.Handler
	UsersHandler   *users.Handler
	GrantsHandler  *grants.Handler
	PortalHandler  *portal.Handler
	AuditHandler   *audit.Handler
	JobHandler     *jobs.Handler

	Metrics *observability.Metrics
}

// NewRouter constructs the chi.Router for the access API.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", params.AuthHandler.MountRoutes)
		r.Route("/authz", params.AuthzHandler.MountRoutes)

		r.Route("/portals", params.PortalHandler.MountRoutes)

		r.Route("/roles", func(r chi.Router) {
			r.Use(authz.Require(params.Authorizer, catalog.ResourceSystem, catalog.ActionManage, catalog.ScopeAll))
			params.CatalogHandler.MountRoutes(r)
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(authz.Require(params.Authorizer, catalog.ResourceUsers, catalog.ActionManage, catalog.ScopeAll))
			params.UsersHandler.MountRoutes(r)
			r.Route("/{userID}/grants", params.GrantsHandler.MountRoutes)
		})

		r.Route("/audit", func(r chi.Router) {
			r.Use(authz.Require(params.Authorizer, catalog.ResourceSystem, catalog.ActionView, catalog.ScopeAll))
			params.AuditHandler.MountRoutes(r)
		})
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
