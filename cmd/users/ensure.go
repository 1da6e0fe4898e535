package users

import (
	"fmt"
	"net/mail"

	"github.com/spf13/cobra"

	"github.com/wordgrove/groveapi/internal/config"
	"github.com/wordgrove/groveapi/internal/db/bunx"
	"github.com/wordgrove/groveapi/internal/db/models"
	"github.com/wordgrove/groveapi/internal/identity"
	"github.com/wordgrove/groveapi/internal/repository"
)

var (
	idFlag    string
	emailFlag string
	roleFlag  string
	nameFlag  string
)

var ensureCmd = &cobra.Command{
	Use:   "ensure",
	Short: "Reconcile a user's role records",
	Long: `Runs the privileged reconciliation for a principal: guarantees the users
row exists and, when the email is held by a stale principal ID, repoints the
profile records. Same repair path as the /api/users/ensure endpoint.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if idFlag == "" {
			return fmt.Errorf("--id flag is required")
		}
		if emailFlag == "" {
			return fmt.Errorf("--email flag is required")
		}
		if _, err := mail.ParseAddress(emailFlag); err != nil {
			return fmt.Errorf("invalid email format: %w", err)
		}
		role, ok := models.ParseRole(roleFlag)
		if !ok {
			return fmt.Errorf("--role must be one of student, teacher, parent, admin")
		}

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		db, err := bunx.NewDB(cfg.DatabaseURL, cfg.MaxDBConnections)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer bunx.Close(db)

		admin := identity.NewAdminReconciler(
			repository.NewBunUserRepository(db),
			repository.NewBunProfileRepository(db),
		)

		result, err := admin.Ensure(cmd.Context(), identity.EnsureRequest{
			UserID: idFlag,
			Email:  emailFlag,
			Role:   role,
			Name:   nameFlag,
		})
		if err != nil {
			return fmt.Errorf("ensure failed: %w", err)
		}

		verb := "already present"
		if result.Created {
			verb = "created"
		}
		fmt.Printf("user %s (%s) role=%s: %s\n", result.User.ID, result.User.Email, result.User.Role, verb)
		return nil
	},
}
