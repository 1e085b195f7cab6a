// Package ui styles terminal output of the moist CLI.
package ui

import (
	"fmt"

	"github.com/alfredjeanlab/moisturizer/internal/model"
)

// ANSI256 color codes.
const (
	colorAccent = 74  // blue
	colorCmd    = 250 // light gray
	colorMuted  = 245 // medium gray
	colorError  = 167 // red
	colorOK     = 108 // green
)

var noColor bool

func paint(code int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", code, s)
}

// RenderAccent returns s in the accent (blue) color.
func RenderAccent(s string) string { return paint(colorAccent, s) }

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string { return paint(colorMuted, s) }

// RenderCommand returns s styled as a command name (light gray).
func RenderCommand(s string) string { return paint(colorCmd, s) }

// RenderError returns s in the error (red) color.
func RenderError(s string) string { return paint(colorError, s) }

// RenderCapability renders a capability flag as its name when set and a
// dash otherwise.
func RenderCapability(name string, set bool) string {
	if !set {
		return RenderMuted("-")
	}
	return paint(colorOK, name)
}

// RenderKind renders a field kind, with its format when it has one.
func RenderKind(spec model.FieldSpec) string {
	s := string(spec.Kind)
	if spec.Format != "" {
		s += "(" + spec.Format + ")"
	}
	return RenderAccent(s)
}

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}
