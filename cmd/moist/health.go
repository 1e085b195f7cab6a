package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check that the server is reachable",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := moistClient.Health(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%s: %s\n", serverURL, status)
		return nil
	},
}
