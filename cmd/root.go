package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wordgrove/groveapi/cmd/users"
	"github.com/wordgrove/groveapi/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "groveapi",
	Short: "WordGrove identity and reconciliation API server",
	Long: `WordGrove API server. Resolves principal roles against the identity
provider, keeps the role records consistent under concurrent signups, and
guards the role-scoped page areas.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		return nil
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().String("db-url", "", "Database connection URL (env: DATABASE_URL)")
	rootCmd.PersistentFlags().String("server-addr", "", "Server bind address (env: SERVER_ADDR)")
	rootCmd.PersistentFlags().String("server-url", "", "Public server base URL (env: SERVER_URL)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging (env: DEBUG)")

	// Add subcommands
	rootCmd.AddCommand(users.UsersCmd)
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
