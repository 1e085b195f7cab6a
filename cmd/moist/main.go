package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/moisturizer/internal/client"
	"github.com/alfredjeanlab/moisturizer/internal/ui"
)

var (
	serverURL  string
	userID     string
	apiKey     string
	token      string
	jsonOutput bool

	moistClient client.Client
)

func defaultServer() string {
	if s := os.Getenv("MOIST_SERVER"); s != "" {
		return s
	}
	if r, ok := activeRemote(); ok && r.URL != "" {
		return r.URL
	}
	return "http://localhost:8080"
}

// credentials resolves flags, then environment, then the active remote.
func credentials() client.Credentials {
	c := client.Credentials{Token: token, User: userID, Secret: apiKey}
	if c.Token == "" {
		c.Token = os.Getenv("MOIST_TOKEN")
	}
	if c.User == "" {
		c.User = os.Getenv("MOIST_USER")
	}
	if c.Secret == "" {
		c.Secret = os.Getenv("MOIST_KEY")
	}
	if c.Token == "" && c.User == "" {
		if r, ok := activeRemote(); ok {
			c.Token, c.User, c.Secret = r.Token, r.User, r.Key
		}
	}
	return c
}

var rootCmd = &cobra.Command{
	Use:           "moist <command>",
	Short:         "CLI for the moisturizer schemaless JSON store",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if !ui.ShouldUseColor() {
			ui.ForceNoColor()
		}
		moistClient = client.NewHTTPClient(serverURL, credentials())
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if moistClient != nil {
			moistClient.Close()
		}
	},
}

// localOnly skips client setup for commands that never reach a server.
func localOnly(cmd *cobra.Command, args []string) error { return nil }

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultServer(), "server URL")
	rootCmd.PersistentFlags().StringVar(&userID, "user", "", "user id for basic authentication")
	rootCmd.PersistentFlags().StringVar(&apiKey, "key", "", "API key or password of --user")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "service token (acts as the administrator)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	rootCmd.AddGroup(
		&cobra.Group{ID: "data", Title: "Data:"},
		&cobra.Group{ID: "access", Title: "Access:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false
	rootCmd.SetHelpFunc(colorizedHelpFunc())

	// Data
	rootCmd.AddCommand(typesCmd)
	rootCmd.AddCommand(objectsCmd)
	rootCmd.AddCommand(batchCmd)

	// Access
	rootCmd.AddCommand(usersCmd)
	rootCmd.AddCommand(grantsCmd)

	// System
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(remoteCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.RenderError("Error: ")+err.Error())
		os.Exit(1)
	}
}
