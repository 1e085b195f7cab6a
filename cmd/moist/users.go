package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/moisturizer/internal/client"
	"github.com/alfredjeanlab/moisturizer/internal/model"
	"github.com/alfredjeanlab/moisturizer/internal/ui"
)

var usersCmd = &cobra.Command{
	Use:     "users",
	Short:   "Manage users",
	GroupID: "access",
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		users, err := moistClient.ListUsers(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(users)
		}
		printUserList(users)
		return nil
	},
}

var usersCreateCmd = &cobra.Command{
	Use:   "create <id>",
	Short: "Create a user and print its API key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		admin, _ := cmd.Flags().GetBool("admin")
		prompt, _ := cmd.Flags().GetBool("password-prompt")

		req := &client.CreateUserRequest{ID: args[0], Role: model.RoleUser}
		if admin {
			req.Role = model.RoleAdmin
		}
		if prompt {
			pw, err := ui.ReadSecret(os.Stderr, "Password: ")
			if err != nil {
				return err
			}
			req.Password = pw
		}

		u, err := moistClient.CreateUser(cmd.Context(), req)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(u)
		}
		printUser(u)
		return nil
	},
}

var usersDeleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Delete users and their grants",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, id := range args {
			if _, err := moistClient.DeleteUser(cmd.Context(), id); err != nil {
				return fmt.Errorf("deleting %s: %w", id, err)
			}
			fmt.Fprintf(stdout, "Deleted user %s\n", id)
		}
		return nil
	},
}

func init() {
	usersCreateCmd.Flags().Bool("admin", false, "create an administrator")
	usersCreateCmd.Flags().Bool("password-prompt", false, "read a password from the terminal")

	usersCmd.AddCommand(usersListCmd)
	usersCmd.AddCommand(usersCreateCmd)
	usersCmd.AddCommand(usersDeleteCmd)
}
