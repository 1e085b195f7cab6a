package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/alfredjeanlab/moisturizer/internal/client"
	"github.com/alfredjeanlab/moisturizer/internal/model"
	"github.com/alfredjeanlab/moisturizer/internal/ui"
)

var stdout io.Writer = os.Stdout

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	_, err = fmt.Fprintln(stdout, string(data))
	return err
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func printTypeList(types []*model.TypeDescriptor) {
	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tFIELDS\tMODIFIED\tDESCRIPTION")
	for _, d := range types {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", d.ID, d.Properties.Len(), formatTime(d.LastModified), truncate(d.Description, 50))
	}
	w.Flush()
	fmt.Fprintf(stdout, "\n%d types\n", len(types))
}

func printType(d *model.TypeDescriptor) {
	fmt.Fprintf(stdout, "ID:          %s\n", d.ID)
	if d.Description != "" {
		fmt.Fprintf(stdout, "Description: %s\n", d.Description)
	}
	fmt.Fprintf(stdout, "Modified:    %s\n\n", formatTime(d.LastModified))

	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FIELD\tKIND\tFLAGS")
	for _, f := range d.Properties.Fields() {
		fmt.Fprintf(w, "%s\t%s\t%s\n", f.Name, ui.RenderKind(f.Spec), fieldFlags(f.Spec))
	}
	w.Flush()
}

func fieldFlags(spec model.FieldSpec) string {
	var flags []string
	if spec.PrimaryKey {
		flags = append(flags, "primary")
	}
	if spec.PartitionKey {
		flags = append(flags, "partition")
	}
	if spec.Required {
		flags = append(flags, "required")
	}
	if spec.Indexed {
		flags = append(flags, "index")
	}
	return ui.RenderMuted(strings.Join(flags, ","))
}

// printObjectList prints id and last_modified first, then the remaining
// top-level keys seen across all objects in sorted order.
func printObjectList(objs []client.Object) {
	seen := map[string]bool{}
	for _, o := range objs {
		for k := range o {
			if k != model.FieldID && k != model.FieldLastModified {
				seen[k] = true
			}
		}
	}
	cols := make([]string, 0, len(seen))
	for k := range seen {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	cols = append([]string{model.FieldID, model.FieldLastModified}, cols...)

	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.ToUpper(strings.Join(cols, "\t")))
	for _, o := range objs {
		cells := make([]string, len(cols))
		for i, c := range cols {
			cells[i] = truncate(cellValue(o[c]), 40)
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	w.Flush()
	fmt.Fprintf(stdout, "\n%d objects\n", len(objs))
}

func cellValue(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case map[string]any, []any:
		raw, _ := json.Marshal(v)
		return string(raw)
	default:
		return fmt.Sprint(v)
	}
}

func printUserList(users []*model.User) {
	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tROLE\tMODIFIED")
	for _, u := range users {
		fmt.Fprintf(w, "%s\t%s\t%s\n", u.ID, u.Role, formatTime(u.LastModified))
	}
	w.Flush()
}

func printUser(u *model.User) {
	fmt.Fprintf(stdout, "ID:      %s\n", u.ID)
	fmt.Fprintf(stdout, "Role:    %s\n", u.Role)
	if u.APIKey != "" {
		fmt.Fprintf(stdout, "API key: %s\n", u.APIKey)
	}
}

func printGrantList(grants []*model.Grant) {
	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RESOURCE\tTYPE\tREAD\tWRITE\tCREATE")
	for _, g := range grants {
		scope := g.TypeScope
		if scope == "" {
			scope = ui.RenderMuted("(type)")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", g.ResourceID, scope,
			ui.RenderCapability("read", g.Read),
			ui.RenderCapability("write", g.Write),
			ui.RenderCapability("create", g.Create))
	}
	w.Flush()
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}
