package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/wordgrove/groveapi/internal/auth"
	"github.com/wordgrove/groveapi/internal/config"
	"github.com/wordgrove/groveapi/internal/identity"
	"github.com/wordgrove/groveapi/internal/idp"
	grovemiddleware "github.com/wordgrove/groveapi/internal/middleware"
	"github.com/wordgrove/groveapi/internal/repository"
)

// RouterOptions controls the construction of the HTTP router.
// The zero value is valid; routes whose collaborators are missing are not mounted.
type RouterOptions struct {
	Engine       *identity.Engine
	Admin        *identity.AdminReconciler
	Provider     idp.Client
	RelyingParty *auth.RelyingParty
	Sessions     repository.SessionRepository
	Users        repository.UserRepository
	Profiles     repository.ProfileRepository
	ParentLinks  repository.ParentLinkRepository
	Cfg          *config.Config

	CORSOptions   *cors.Options
	Middleware    []func(http.Handler) http.Handler
	HealthHandler http.HandlerFunc
	ExtraRoutes   func(chi.Router)
}

// DefaultCORSOptions returns the shared development CORS policy.
func DefaultCORSOptions() cors.Options {
	return cors.Options{
		AllowedOrigins: []string{
			"http://localhost:3000",
			"http://127.0.0.1:3000",
		},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{
			"Content-Type",
			"Authorization",
		},
		AllowCredentials: true,
		MaxAge:           300,
	}
}

func defaultHealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// NewRouter assembles a chi.Router with shared middleware, CORS policy, and
// the API handlers mounted. The router can be tailored via RouterOptions for
// CLI usage, tests, or other entrypoints.
func NewRouter(opts RouterOptions) chi.Router {
	r := chi.NewRouter()

	// Baseline middleware shared across entrypoints.
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	corsCfg := DefaultCORSOptions()
	if opts.CORSOptions != nil {
		corsCfg = *opts.CORSOptions
	}
	r.Use(cors.Handler(corsCfg))

	r.Use(grovemiddleware.ExtractCredentials)

	// Apply custom middleware passed from the caller.
	for _, mw := range opts.Middleware {
		if mw != nil {
			r.Use(mw)
		}
	}

	if opts.RelyingParty != nil && opts.Engine != nil && opts.Sessions != nil {
		r.Get("/auth/sso/login", HandleSSOLogin(opts.RelyingParty))
		r.Get("/auth/sso/callback", HandleSSOCallback(opts.RelyingParty, opts.Engine, opts.Sessions))
	}

	if opts.Engine != nil {
		r.Get("/api/auth/whoami", HandleWhoAmI(opts.Engine))

		if opts.Provider != nil {
			r.Post("/api/auth/signup/{role}", HandleSignup(opts.Provider, opts.Engine))
		}
		if opts.Sessions != nil {
			r.Post("/auth/logout", HandleLogout(opts.Sessions))
		}
		if opts.ParentLinks != nil && opts.Users != nil && opts.Profiles != nil {
			r.Post("/api/parents/links", HandleLinkChild(opts.Engine, opts.Users, opts.Profiles, opts.ParentLinks))
			r.Get("/api/parents/links", HandleListChildren(opts.Engine, opts.ParentLinks))
		}
	}

	if opts.Admin != nil && opts.Cfg != nil {
		r.Post("/api/users/ensure", HandleEnsureUser(opts.Admin, &opts.Cfg.IdP))
	}

	healthHandler := opts.HealthHandler
	if healthHandler == nil {
		healthHandler = defaultHealthHandler
	}
	r.Get("/health", healthHandler)

	if opts.ExtraRoutes != nil {
		opts.ExtraRoutes(r)
	}

	return r
}

// NewH2CHandler wraps the shared router with an h2c server to provide HTTP/2
// over cleartext for local development behind the frontend dev proxy.
func NewH2CHandler(opts RouterOptions) http.Handler {
	return h2c.NewHandler(NewRouter(opts), &http2.Server{})
}
