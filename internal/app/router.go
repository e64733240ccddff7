package app

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/aegis-iam/aegis/internal/auth"
	"github.com/aegis-iam/aegis/internal/authz"
	"github.com/aegis-iam/aegis/internal/groups"
	"github.com/aegis-iam/aegis/internal/observability"
	"github.com/aegis-iam/aegis/internal/platform/httpx"
	"github.com/aegis-iam/aegis/internal/roles"
	"github.com/aegis-iam/aegis/internal/shared"
	"github.com/aegis-iam/aegis/internal/users"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	AuthHandler    *auth.Handler
	UsersHandler   *users.Handler
	RolesHandler   *roles.Handler
	GroupsHandler  *groups.Handler
	Gate           authz.Middleware
	ServiceKeyGate *authz.ServiceKeyGate
	Authorizer     *authz.Service
	AuditLogger    *shared.AuditLogger
	Metrics        *observability.Metrics
}

// NewRouter constructs the chi.Router with service defaults.
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

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", params.AuthHandler.MountRoutes)
		r.Route("/users", params.UsersHandler.MountRoutes)
		r.Route("/roles", params.RolesHandler.MountRoutes)
		r.Route("/groups", params.GroupsHandler.MountRoutes)
		r.Route("/permissions", params.RolesHandler.MountPermissionRoutes)

		r.Group(func(r chi.Router) {
			r.Use(params.Gate.Protect("audit.list"))
			r.Get("/audit", auditListHandler(params.Logger, params.AuditLogger))
		})

		// Service surface for trusted peers. The static key check runs
		// before any principal extraction; it is independent of the
		// membership graph.
		r.Route("/service", func(r chi.Router) {
			r.Use(params.ServiceKeyGate.Middleware)
			r.Get("/principals/{id}/permissions", principalPermissionsHandler(params.Logger, params.Authorizer))
		})
	})

	return r
}

// auditListHandler exposes recent audit entries for operators.
func auditListHandler(logger *slog.Logger, audit *shared.AuditLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if limit < 1 || limit > 500 {
			limit = 100
		}
		entries, err := audit.List(r.Context(), limit)
		if err != nil {
			logger.Error("list audit entries", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
			return
		}
		httpx.JSON(w, http.StatusOK, entries)
	}
}

// principalPermissionsHandler lets a trusted service read a principal's
// effective permission set, cache-first like the gate itself.
func principalPermissionsHandler(logger *slog.Logger, authorizer *authz.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil || id <= 0 {
			httpx.Problem(w, http.StatusNotFound, "Not Found", "")
			return
		}
		perms, err := authorizer.EffectivePermissions(r.Context(), id)
		if err != nil {
			logger.Error("resolve principal permissions", slog.Int64("principal", id), slog.Any("error", err))
			httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "")
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"principal_id": id, "permissions": perms.Names()})
	}
}
