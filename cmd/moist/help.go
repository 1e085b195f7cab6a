package main

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/moisturizer/internal/ui"
)

var (
	// Unindented lines ending with ":" such as "Data:" or "Flags:".
	reSection = regexp.MustCompile(`(?m)^([A-Z][^\n]*:)\s*$`)

	// A two-space indented word followed by at least two spaces.
	reSubcommand = regexp.MustCompile(`(?m)^(  )(\S+)(  )`)

	// Flag value types, e.g. "--server string".
	reValueType = regexp.MustCompile(`(--?\S+\s+)(string|int|duration|stringArray|stringToString)`)

	reDefaultValue = regexp.MustCompile(`\(default "[^"]*"\)`)
)

// colorizedHelpFunc renders cobra's usage text and colors it when stdout
// is a terminal.
func colorizedHelpFunc() func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		if !ui.ShouldUseColor() {
			_ = cmd.Usage()
			return
		}
		var buf bytes.Buffer
		cmd.SetOut(&buf)
		_ = cmd.Usage()
		cmd.SetOut(out)
		fmt.Fprint(out, colorizeHelp(buf.String()))
	}
}

func colorizeHelp(s string) string {
	s = reSection.ReplaceAllStringFunc(s, func(m string) string {
		return ui.RenderAccent(strings.TrimSpace(m))
	})
	s = reSubcommand.ReplaceAllStringFunc(s, func(m string) string {
		parts := reSubcommand.FindStringSubmatch(m)
		return parts[1] + ui.RenderCommand(parts[2]) + parts[3]
	})
	s = reValueType.ReplaceAllStringFunc(s, func(m string) string {
		parts := reValueType.FindStringSubmatch(m)
		return parts[1] + ui.RenderMuted(parts[2])
	})
	return reDefaultValue.ReplaceAllStringFunc(s, ui.RenderMuted)
}
