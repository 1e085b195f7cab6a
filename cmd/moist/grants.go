package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/moisturizer/internal/client"
	"github.com/alfredjeanlab/moisturizer/internal/model"
)

var grantsCmd = &cobra.Command{
	Use:     "grants",
	Short:   "Manage per-user permissions",
	GroupID: "access",
}

var grantsListCmd = &cobra.Command{
	Use:   "list <user>",
	Short: "List the grants held by a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		grants, err := moistClient.ListGrants(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(grants)
		}
		printGrantList(grants)
		return nil
	},
}

var grantsSetCmd = &cobra.Command{
	Use:   "set <user> <resource>",
	Short: "Grant capabilities on a type, or on one record with --type",
	Long: `Grant capabilities on a type, or on one record with --type.

  moist grants set alice notes --read --create
  moist grants set alice n1 --type notes --write`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		scope, _ := cmd.Flags().GetString("type")
		var caps model.Capabilities
		caps.Read, _ = cmd.Flags().GetBool("read")
		caps.Write, _ = cmd.Flags().GetBool("write")
		caps.Create, _ = cmd.Flags().GetBool("create")
		if caps.IsEmpty() {
			return fmt.Errorf("at least one of --read, --write or --create is required")
		}

		g, err := moistClient.SetGrant(cmd.Context(), args[0], &client.SetGrantRequest{
			ResourceID:   args[1],
			TypeScope:    scope,
			Capabilities: caps,
		})
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(g)
		}
		printGrantList([]*model.Grant{g})
		return nil
	},
}

var grantsRevokeCmd = &cobra.Command{
	Use:   "revoke <user> <resource>",
	Short: "Remove a grant",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		scope, _ := cmd.Flags().GetString("type")
		if err := moistClient.RevokeGrant(cmd.Context(), args[0], args[1], scope); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Revoked %s on %s\n", args[0], args[1])
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{grantsSetCmd, grantsRevokeCmd} {
		c.Flags().String("type", "", "type of the record when granting on a single record")
	}
	grantsSetCmd.Flags().Bool("read", false, "allow reading")
	grantsSetCmd.Flags().Bool("write", false, "allow updating and deleting")
	grantsSetCmd.Flags().Bool("create", false, "allow creating")

	grantsCmd.AddCommand(grantsListCmd)
	grantsCmd.AddCommand(grantsSetCmd)
	grantsCmd.AddCommand(grantsRevokeCmd)
}
