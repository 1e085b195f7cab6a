package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/moisturizer/internal/client"
)

// decodeValue embeds v as JSON when it parses as JSON and falls back to a
// plain string otherwise.
func decodeValue(v string) any {
	dec := json.NewDecoder(strings.NewReader(v))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil || dec.More() {
		return v
	}
	return out
}

// buildObject merges a JSON document from --data (or "-" for stdin) with
// -f key=value pairs. Pairs win over keys from the document.
func buildObject(data string, pairs []string, stdin io.Reader) (client.Object, error) {
	obj := client.Object{}
	if data != "" {
		raw := []byte(data)
		if data == "-" {
			var err error
			if raw, err = io.ReadAll(stdin); err != nil {
				return nil, fmt.Errorf("reading stdin: %w", err)
			}
		}
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&obj); err != nil {
			return nil, fmt.Errorf("invalid --data: %w", err)
		}
	}
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid field %q: expected key=value", p)
		}
		obj[k] = decodeValue(v)
	}
	return obj, nil
}

// buildFilter turns key=value pairs and paging flags into query values.
func buildFilter(pairs []string, limit, offset int) (url.Values, error) {
	q := url.Values{}
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid filter %q: expected key=value", p)
		}
		q.Set(k, v)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	return q, nil
}

var objectsCmd = &cobra.Command{
	Use:     "objects",
	Aliases: []string{"obj"},
	Short:   "Read and write records",
	GroupID: "data",
}

var objectsListCmd = &cobra.Command{
	Use:   "list <type>",
	Short: "List records of a type",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pairs, _ := cmd.Flags().GetStringArray("where")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		filter, err := buildFilter(pairs, limit, offset)
		if err != nil {
			return err
		}

		objs, err := moistClient.ListObjects(cmd.Context(), args[0], filter)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(objs)
		}
		printObjectList(objs)
		return nil
	},
}

var objectsGetCmd = &cobra.Command{
	Use:   "get <type> <id>",
	Short: "Show one record",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		obj, err := moistClient.GetObject(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		return printJSON(obj)
	},
}

var objectsCreateCmd = &cobra.Command{
	Use:   "create <type>",
	Short: "Create a record, inferring new fields",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		obj, err := objectFromFlags(cmd)
		if err != nil {
			return err
		}
		created, err := moistClient.CreateObject(cmd.Context(), args[0], obj)
		if err != nil {
			return err
		}
		return printJSON(created)
	},
}

var objectsPutCmd = &cobra.Command{
	Use:   "put <type> <id>",
	Short: "Replace a record, creating it if absent",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		obj, err := objectFromFlags(cmd)
		if err != nil {
			return err
		}
		put, err := moistClient.PutObject(cmd.Context(), args[0], args[1], obj)
		if err != nil {
			return err
		}
		return printJSON(put)
	},
}

var objectsPatchCmd = &cobra.Command{
	Use:   "patch <type> <id>",
	Short: "Merge fields into an existing record",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		obj, err := objectFromFlags(cmd)
		if err != nil {
			return err
		}
		patched, err := moistClient.PatchObject(cmd.Context(), args[0], args[1], obj)
		if err != nil {
			return err
		}
		return printJSON(patched)
	},
}

var objectsDeleteCmd = &cobra.Command{
	Use:   "delete <type> <id>...",
	Short: "Delete records",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		typeID := args[0]
		for _, id := range args[1:] {
			if _, err := moistClient.DeleteObject(cmd.Context(), typeID, id); err != nil {
				return fmt.Errorf("deleting %s/%s: %w", typeID, id, err)
			}
			fmt.Fprintf(stdout, "Deleted %s/%s\n", typeID, id)
		}
		return nil
	},
}

func objectFromFlags(cmd *cobra.Command) (client.Object, error) {
	data, _ := cmd.Flags().GetString("data")
	pairs, _ := cmd.Flags().GetStringArray("field")
	return buildObject(data, pairs, os.Stdin)
}

func init() {
	objectsListCmd.Flags().StringArrayP("where", "w", nil, "equality filter as key=value (repeatable)")
	objectsListCmd.Flags().Int("limit", 0, "maximum number of records")
	objectsListCmd.Flags().Int("offset", 0, "records to skip")

	for _, c := range []*cobra.Command{objectsCreateCmd, objectsPutCmd, objectsPatchCmd} {
		c.Flags().String("data", "", `JSON object body ("-" reads stdin)`)
		c.Flags().StringArrayP("field", "f", nil, "field as key=value; JSON values are embedded (repeatable)")
	}

	objectsCmd.AddCommand(objectsListCmd)
	objectsCmd.AddCommand(objectsGetCmd)
	objectsCmd.AddCommand(objectsCreateCmd)
	objectsCmd.AddCommand(objectsPutCmd)
	objectsCmd.AddCommand(objectsPatchCmd)
	objectsCmd.AddCommand(objectsDeleteCmd)
}
