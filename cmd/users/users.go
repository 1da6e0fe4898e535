package users

import "github.com/spf13/cobra"

// UsersCmd is the parent command for user management operations
var UsersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage role records",
	Long:  `Commands for inspecting and reconciling user role records directly from the server.`,
}

func init() {
	ensureCmd.Flags().StringVar(&idFlag, "id", "", "Principal ID (UUID) from the identity provider")
	ensureCmd.Flags().StringVar(&emailFlag, "email", "", "Email address of the account")
	ensureCmd.Flags().StringVar(&roleFlag, "role", "", "Role to reconcile (student|teacher|parent|admin)")
	ensureCmd.Flags().StringVar(&nameFlag, "name", "", "Display name for the profile (optional)")

	UsersCmd.AddCommand(ensureCmd)
	UsersCmd.AddCommand(listCmd)
}
