package authz

import (
	"log/slog"
	"net/http"

	"github.com/pulsefit/pulsefit-iam/internal/shared"
)

// Middleware guards HTTP routes with the authorization façade. The actor is
// expected in the request context, placed there by the identity layer.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// Require ensures the current actor may perform the action on the resource.
func (m Middleware) Require(resource, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := shared.ActorFromContext(r.Context())
			if !ok {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			if !m.Service.CanAccess(r.Context(), actor, resource, action, AccessContext{}) {
				if m.Logger != nil {
					m.Logger.Info("request forbidden",
						slog.String("actor", actor.ID),
						slog.String("resource", resource),
						slog.String("action", action))
				}
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
