package ui

import (
	"testing"

	"github.com/alfredjeanlab/moisturizer/internal/model"
)

func TestRender_NoColor(t *testing.T) {
	ForceNoColor()
	t.Cleanup(func() { noColor = false })

	if got := RenderKind(model.FieldSpec{Kind: model.KindString, Format: model.FormatUUID}); got != "string(uuid)" {
		t.Errorf("RenderKind = %q", got)
	}
	if got := RenderCapability("read", true); got != "read" {
		t.Errorf("RenderCapability(set) = %q", got)
	}
	if got := RenderCapability("write", false); got != "-" {
		t.Errorf("RenderCapability(unset) = %q", got)
	}
}

func TestRender_Color(t *testing.T) {
	noColor = false
	if got := RenderError("boom"); got != "\x1b[38;5;167mboom\x1b[0m" {
		t.Errorf("RenderError = %q", got)
	}
}

func TestShouldUseColor_Env(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	if ShouldUseColor() {
		t.Error("NO_COLOR must disable color")
	}
	t.Setenv("NO_COLOR", "")
	t.Setenv("CLICOLOR_FORCE", "1")
	if !ShouldUseColor() {
		t.Error("CLICOLOR_FORCE must enable color")
	}
}
