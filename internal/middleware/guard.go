package middleware

import (
	"context"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/casbin/casbin/v2"

	"github.com/wordgrove/groveapi/internal/config"
	"github.com/wordgrove/groveapi/internal/db/models"
	"github.com/wordgrove/groveapi/internal/identity"
)

// IdentityResolver is the part of the reconciliation engine the guard needs.
type IdentityResolver interface {
	Resolve(ctx context.Context) (*identity.ResolvedIdentity, error)
}

// GuardDependencies provides the collaborators needed for route guarding.
type GuardDependencies struct {
	Engine   IdentityResolver
	Enforcer casbin.IEnforcer
	Routes   config.RouteConfig
}

// guardedPrefixes are the role-scoped page areas. Everything else passes
// through untouched; API routes authorize in their handlers.
var guardedPrefixes = []string{"/student/", "/parent/", "/teacher/"}

// NewRoleGuard constructs a chi middleware protecting role-scoped routes.
//
// Guarded requests run a full identity resolution. Unauthenticated visitors
// are redirected to the login page with the original destination preserved;
// authenticated visitors in the wrong area are redirected to their own
// dashboard. A principal whose records are still provisioning (role
// unresolved, or reconciliation failed) passes through so the page itself
// can show provisioning state instead of a redirect loop.
func NewRoleGuard(deps GuardDependencies) (func(http.Handler) http.Handler, error) {
	if deps.Engine == nil {
		return nil, errors.New("role guard requires an identity resolver")
	}
	if deps.Enforcer == nil {
		return nil, errors.New("role guard requires casbin enforcer")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isGuardedPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			resolved, err := deps.Engine.Resolve(r.Context())
			if err != nil {
				if errors.Is(err, identity.ErrUnauthenticated) {
					redirectToLogin(w, r, deps.Routes.LoginPath)
					return
				}
				// Still provisioning: ErrUnresolved, or a reconciliation
				// failure that escalation could not repair. The area page
				// renders provisioning state.
				log.Printf("role guard: passing through %s %s: %v", r.Method, r.URL.Path, err)
				next.ServeHTTP(w, r)
				return
			}

			allowed, err := deps.Enforcer.Enforce(string(resolved.Role), r.URL.Path, r.Method)
			if err != nil {
				http.Error(w, "authorization error", http.StatusInternalServerError)
				return
			}
			if !allowed {
				http.Redirect(w, r, dashboardFor(deps.Routes, resolved.Role), http.StatusFound)
				return
			}

			next.ServeHTTP(w, r)
		})
	}, nil
}

func isGuardedPath(path string) bool {
	for _, prefix := range guardedPrefixes {
		if strings.HasPrefix(path, prefix) || path == strings.TrimSuffix(prefix, "/") {
			return true
		}
	}
	return false
}

func redirectToLogin(w http.ResponseWriter, r *http.Request, loginPath string) {
	destination := r.URL.Path
	if r.URL.RawQuery != "" {
		destination += "?" + r.URL.RawQuery
	}
	http.Redirect(w, r, loginPath+"?redirect="+url.QueryEscape(destination), http.StatusFound)
}

func dashboardFor(routes config.RouteConfig, role models.Role) string {
	if path, ok := routes.Dashboards[role]; ok {
		return path
	}
	return "/"
}
