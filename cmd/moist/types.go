package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/moisturizer/internal/client"
	"github.com/alfredjeanlab/moisturizer/internal/model"
)

// parseProp parses name=kind[:format].
func parseProp(s string) (model.Field, error) {
	name, spec, ok := strings.Cut(s, "=")
	if !ok || name == "" || spec == "" {
		return model.Field{}, fmt.Errorf("invalid property %q: expected name=kind[:format]", s)
	}
	kind, format, _ := strings.Cut(spec, ":")
	k := model.Kind(kind)
	if !k.IsValid() {
		return model.Field{}, fmt.Errorf("invalid property %q: unknown kind %q", s, kind)
	}
	return model.Field{Name: name, Spec: model.FieldSpec{Kind: k, Format: format}}, nil
}

var typesCmd = &cobra.Command{
	Use:     "types",
	Short:   "Inspect and declare types",
	GroupID: "data",
}

var typesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List declared types",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		types, err := moistClient.ListTypes(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(types)
		}
		printTypeList(types)
		return nil
	},
}

var typesShowCmd = &cobra.Command{
	Use:   "show <type>",
	Short: "Show the schema of a type",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := moistClient.GetType(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(d)
		}
		printType(d)
		return nil
	},
}

var typesCreateCmd = &cobra.Command{
	Use:   "create <type>",
	Short: "Declare a type or add fields to it",
	Long: `Declare a type or add fields to it.

Properties are given as name=kind[:format], for example:

  moist types create notes --prop title=string --prop at=string:date-time`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		description, _ := cmd.Flags().GetString("description")
		props, _ := cmd.Flags().GetStringArray("prop")

		req := &client.DeclareTypeRequest{ID: args[0], Description: description}
		for _, p := range props {
			f, err := parseProp(p)
			if err != nil {
				return err
			}
			req.Properties.Add(f.Name, f.Spec)
		}

		d, err := moistClient.DeclareType(cmd.Context(), req)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(d)
		}
		printType(d)
		return nil
	},
}

var typesDeleteCmd = &cobra.Command{
	Use:   "delete <type>...",
	Short: "Delete types and all of their records",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, id := range args {
			if _, err := moistClient.DeleteType(cmd.Context(), id); err != nil {
				return fmt.Errorf("deleting %s: %w", id, err)
			}
			fmt.Fprintf(stdout, "Deleted type %s\n", id)
		}
		return nil
	},
}

func init() {
	typesCreateCmd.Flags().StringP("description", "d", "", "type description")
	typesCreateCmd.Flags().StringArrayP("prop", "p", nil, "property as name=kind[:format] (repeatable)")

	typesCmd.AddCommand(typesListCmd)
	typesCmd.AddCommand(typesShowCmd)
	typesCmd.AddCommand(typesCreateCmd)
	typesCmd.AddCommand(typesDeleteCmd)
}
