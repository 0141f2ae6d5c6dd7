package app

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/conformapro/conformapro/internal/access"
	"github.com/conformapro/conformapro/internal/auth"
	"github.com/conformapro/conformapro/internal/observability"
	"github.com/conformapro/conformapro/internal/permissions"
	"github.com/conformapro/conformapro/internal/shared"
	"github.com/conformapro/conformapro/internal/sites"
	"github.com/conformapro/conformapro/internal/users"
	"github.com/conformapro/conformapro/internal/view"
	"github.com/conformapro/conformapro/jobs"
	"github.com/conformapro/conformapro/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	Renderer       view.Renderer
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Metrics        *observability.Metrics

	Auth        auth.Middleware
	Access      access.Middleware
	Permissions permissions.Middleware

	AuthHandler        *auth.Handler
	SitesService       *sites.Service
	SitesHandler       *sites.Handler
	PermissionsHandler *permissions.Handler
	UsersHandler       *users.Handler
	JobHandler         *jobs.Handler
}

// NewRouter constructs the chi.Router with the application defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
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
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	dash := dashboards{logger: params.Logger, renderer: params.Renderer, sites: params.SitesService}

	r.Group(func(r chi.Router) {
		r.Use(params.Auth.Handler)

		r.Get("/", params.Access.Landing)
		r.Route("/auth", params.AuthHandler.MountRoutes)

		// Client section: site context and grants are resolved per request.
		r.Group(func(r chi.Router) {
			r.Use(params.Access.RequireClient())
			r.Use(sites.Middleware)
			r.Use(params.Permissions.Load)

			r.Get(access.ClientDashboardPath, dash.client)
			r.Route("/sites", params.SitesHandler.MountRoutes)
			r.Route("/dashboard/permissions", params.PermissionsHandler.MountRoutes)
			r.Route("/api/permissions", params.PermissionsHandler.MountAPI)
		})

		r.Group(func(r chi.Router) {
			r.Use(params.Access.RequireStaff())

			r.Get(access.StaffDashboardPath, dash.staff)
			if params.UsersHandler != nil {
				r.Route("/staff/users", params.UsersHandler.MountRoutes)
			}
			if params.JobHandler != nil {
				r.Route("/staff/jobs", params.JobHandler.MountRoutes)
			}
		})
	})

	return r
}

// staticCacheHandler wraps a file server with Cache-Control headers.
// Static assets are cached for 1 hour in browser.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
