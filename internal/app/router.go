package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/pulsefit/pulsefit-iam/internal/authz"
	"github.com/pulsefit/pulsefit-iam/internal/decisionlog"
	"github.com/pulsefit/pulsefit-iam/internal/permission"
	"github.com/pulsefit/pulsefit-iam/internal/policy"
	"github.com/pulsefit/pulsefit-iam/internal/shared"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	AuthzHandler      *authz.Handler
	PermissionHandler *permission.Handler
	PolicyHandler     *policy.Handler
	DecisionHandler   *decisionlog.Handler
	Guard             authz.Middleware
}

// NewRouter constructs the chi.Router with service defaults. Admin surfaces
// are guarded by the authorization façade itself.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/authz", func(r chi.Router) {
		params.AuthzHandler.MountRoutes(r)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Route("/permission-sets", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(params.Guard.Require(shared.ResourceUser, shared.ActionUpdate))
				params.PermissionHandler.MountRoutes(r)
			})
		})
		r.Route("/policies", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(params.Guard.Require(shared.ResourceOrganization, shared.ActionUpdate))
				params.PolicyHandler.MountRoutes(r)
			})
		})
		r.Route("/decisions", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(params.Guard.Require(shared.ResourceOrganization, shared.ActionRead))
				params.DecisionHandler.MountRoutes(r)
			})
		})
	})

	return r
}
