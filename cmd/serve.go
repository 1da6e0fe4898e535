package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wordgrove/groveapi/internal/auth"
	"github.com/wordgrove/groveapi/internal/db/bunx"
	"github.com/wordgrove/groveapi/internal/identity"
	"github.com/wordgrove/groveapi/internal/idp"
	grovemiddleware "github.com/wordgrove/groveapi/internal/middleware"
	"github.com/wordgrove/groveapi/internal/repository"
	"github.com/wordgrove/groveapi/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the WordGrove API server",
	Long:  `Starts the HTTP server with the identity endpoints and role-scoped route guards.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Connect to database
		db, err := bunx.NewDB(cfg.DatabaseURL, cfg.MaxDBConnections)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer bunx.Close(db)

		log.Printf("Connected to database")

		// Initialize repositories
		userRepo := repository.NewBunUserRepository(db)
		profileRepo := repository.NewBunProfileRepository(db)
		sessionRepo := repository.NewBunSessionRepository(db)
		linkRepo := repository.NewBunParentLinkRepository(db)

		// Identity provider client; optional for setups that only accept
		// verified bearer tokens.
		var provider idp.Client
		if cfg.IdP.BaseURL != "" {
			provider = idp.NewHTTPClient(cfg.IdP.BaseURL, cfg.IdP.APIKey)
		}

		rules, err := compileRoleRules()
		if err != nil {
			return err
		}

		// The fallback client points at this server's own privileged
		// endpoint, keeping repair authority behind the service key even
		// when escalation originates in-process.
		var fallback identity.FallbackClient
		if cfg.IdP.ServiceKey != "" {
			fallback = identity.NewHTTPFallbackClient(cfg.ServerURL, cfg.IdP.ServiceKey)
		} else {
			log.Printf("WARNING: no service key configured, conflict escalation disabled")
		}

		engine := identity.NewEngine(
			identity.NewSnapshotReader(sessionRepo, provider),
			identity.NewRoleResolver(userRepo, rules),
			identity.NewReconciler(userRepo, profileRepo),
			fallback,
		)
		admin := identity.NewAdminReconciler(userRepo, profileRepo)

		var chiMiddleware []func(http.Handler) http.Handler

		// Local bearer-token verification, when an issuer is configured.
		verifier, err := auth.NewVerifier(cfg)
		if err != nil {
			return fmt.Errorf("configure token verifier: %w", err)
		}
		chiMiddleware = append(chiMiddleware, verifier)

		enforcer, err := auth.InitEnforcer()
		if err != nil {
			return fmt.Errorf("configure casbin enforcer: %w", err)
		}

		guard, err := grovemiddleware.NewRoleGuard(grovemiddleware.GuardDependencies{
			Engine:   engine,
			Enforcer: enforcer,
			Routes:   cfg.Routes,
		})
		if err != nil {
			return fmt.Errorf("configure role guard: %w", err)
		}
		chiMiddleware = append(chiMiddleware, guard)

		var relyingParty *auth.RelyingParty
		if cfg.SSO != nil {
			relyingParty, err = auth.NewRelyingParty(cmd.Context(), cfg.SSO)
			if err != nil {
				return fmt.Errorf("failed to create relying party: %w", err)
			}
			log.Printf("SSO login enabled against %s", cfg.SSO.Issuer)
		}

		handler := server.NewH2CHandler(server.RouterOptions{
			Engine:       engine,
			Admin:        admin,
			Provider:     provider,
			RelyingParty: relyingParty,
			Sessions:     sessionRepo,
			Users:        userRepo,
			Profiles:     profileRepo,
			ParentLinks:  linkRepo,
			Cfg:          cfg,
			Middleware:   chiMiddleware,
		})

		srv := &http.Server{
			Addr:         cfg.ServerAddr,
			Handler:      handler,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		// Start server in goroutine
		serverErrors := make(chan error, 1)
		go func() {
			log.Printf("Starting server on %s", cfg.ServerAddr)
			log.Printf("Server URL: %s", cfg.ServerURL)
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("server error: %w", err)

		case sig := <-shutdown:
			log.Printf("Received signal %v, shutting down", sig)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				_ = srv.Close()
				return fmt.Errorf("graceful shutdown failed: %w", err)
			}
		}

		return nil
	},
}

// compileRoleRules turns the configured rules into evaluators, failing
// startup on a bad expression.
func compileRoleRules() ([]auth.RoleRule, error) {
	rules := make([]auth.RoleRule, 0, len(cfg.RoleRules))
	for _, rule := range cfg.RoleRules {
		rules = append(rules, auth.RoleRule{Role: rule.Role, Expr: rule.Expr})
	}
	compiled, err := auth.CompileRoleRules(rules)
	if err != nil {
		return nil, fmt.Errorf("compile role inference rules: %w", err)
	}
	return compiled, nil
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
