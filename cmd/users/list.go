package users

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wordgrove/groveapi/internal/config"
	"github.com/wordgrove/groveapi/internal/db/bunx"
	"github.com/wordgrove/groveapi/internal/repository"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List user role records",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		db, err := bunx.NewDB(cfg.DatabaseURL, cfg.MaxDBConnections)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer bunx.Close(db)

		users, err := repository.NewBunUserRepository(db).List(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list users: %w", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tEMAIL\tROLE\tCREATED")
		for _, user := range users {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", user.ID, user.Email, user.Role, user.CreatedAt.Format("2006-01-02 15:04:05"))
		}
		return w.Flush()
	},
}
