//go:build darwin

package tracker

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const osascriptTimeout = 5 * time.Second

// macAppNames maps terminal process-name substrings to the AppleScript
// application names osascript needs.
var macAppNames = []struct {
	substring string
	app       string
}{
	{"iterm", "iTerm"},
	{"terminal", "Terminal"},
	{"alacritty", "Alacritty"},
	{"kitty", "kitty"},
	{"warp", "Warp"},
	{"wezterm", "WezTerm"},
}

var macFallbackTerminals = []string{"Terminal", "iTerm", "Warp"}

// focusWindow on macOS activates the owning terminal application via
// osascript. Only allowlisted application names ever reach the script.
func focusWindow(info *ProcessInfo) FocusResult {
	app := ""
	tn := strings.ToLower(info.TerminalName)
	for _, m := range macAppNames {
		if strings.Contains(tn, m.substring) {
			app = m.app
			break
		}
	}
	if app == "" && len(macFallbackTerminals) > 0 {
		app = macFallbackTerminals[0]
	}
	if app == "" {
		return FocusResult{Message: "Could not determine terminal application."}
	}

	ctx, cancel := context.WithTimeout(context.Background(), osascriptTimeout)
	defer cancel()
	script := fmt.Sprintf("tell application %q to activate", app)
	out, err := exec.CommandContext(ctx, "osascript", "-e", script).CombinedOutput()
	if err != nil {
		return FocusResult{Message: fmt.Sprintf("osascript failed: %v: %s", err, strings.TrimSpace(string(out)))}
	}
	return FocusResult{Success: true, Message: "Focused: " + app}
}
