package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var batchCmd = &cobra.Command{
	Use:     "batch <file|->",
	Short:   "Run a batch of requests in order",
	GroupID: "data",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			raw []byte
			err error
		)
		if args[0] == "-" {
			raw, err = io.ReadAll(os.Stdin)
		} else {
			raw, err = os.ReadFile(args[0])
		}
		if err != nil {
			return err
		}
		if !json.Valid(raw) {
			return fmt.Errorf("%s: not valid JSON", args[0])
		}

		resp, err := moistClient.Batch(cmd.Context(), raw)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(resp)
		}
		for _, item := range resp.Responses {
			fmt.Fprintf(stdout, "%d %s\n", item.Status, item.Path)
			if len(item.Body) > 0 {
				fmt.Fprintf(stdout, "  %s\n", item.Body)
			}
		}
		return nil
	},
}
