package authz

import (
	"net/http"

	"github.com/fieldvolt/fieldvolt-access/internal/auth"
	"github.com/fieldvolt/fieldvolt-access/internal/catalog"
	"github.com/fieldvolt/fieldvolt-access/internal/platform/httpx"
)

// Requirement names one permission tuple a route needs.
type Requirement struct {
	Resource catalog.Resource
	Action   catalog.Action
	Scope    catalog.Scope
}

// Require guards a route behind a single permission check. Anonymous
// requests get 401, denied ones 403.
func Require(svc *Service, resource catalog.Resource, action catalog.Action, scope catalog.Scope) func(http.Handler) http.Handler {
	return RequireAny(svc, Requirement{Resource: resource, Action: action, Scope: scope})
}

// RequireAny passes when at least one of the requirements is granted.
func RequireAny(svc *Service, reqs ...Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := auth.UserIDFromContext(r.Context())
			if userID == 0 {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			for _, req := range reqs {
				decision := svc.CheckPermission(r.Context(), CheckRequest{
					UserID:    userID,
					Resource:  req.Resource,
					Action:    req.Action,
					Scope:     req.Scope,
					IPAddress: r.RemoteAddr,
					UserAgent: r.UserAgent(),
				})
				if decision.Granted {
					next.ServeHTTP(w, r)
					return
				}
			}
			httpx.RespondError(w, httpx.ErrForbidden)
		})
	}
}
