package tui

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// The editor must stay readable on both light and dark terminal
// backgrounds, so colors are adaptive pairs rather than fixed values.

func ac(light, dark string) lipgloss.AdaptiveColor {
	return lipgloss.AdaptiveColor{Light: light, Dark: dark}
}

// applyColorProfilePreference sets Lip Gloss's color profile before the
// program starts.
//
// Note: termenv.EnvColorProfile respects CLICOLOR/CLICOLOR_FORCE, which is
// useful for non-interactive CLI output but can accidentally disable colors
// in a TUI. Here we only honor NO_COLOR and otherwise follow the terminal's
// detected capabilities.
func applyColorProfilePreference() {
	if strings.TrimSpace(os.Getenv("NO_COLOR")) != "" {
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}
	lipgloss.SetColorProfile(termenv.ColorProfile())
}

var (
	colorMuted      = ac("240", "245")
	colorAccent     = ac("#633cff", "#9a7dff")
	colorError      = ac("#c1121f", "#ff6b6b")
	colorSelectedBg = ac("#e9e9e9", "#262626")

	styleTitle    = lipgloss.NewStyle().Bold(true)
	styleMuted    = lipgloss.NewStyle().Foreground(colorMuted)
	styleAccent   = lipgloss.NewStyle().Foreground(colorAccent)
	styleError    = lipgloss.NewStyle().Foreground(colorError)
	styleSelected = lipgloss.NewStyle().Background(colorSelectedBg)
	styleHelp     = lipgloss.NewStyle().Foreground(colorMuted).MarginTop(1)
)

func platformStyle(color string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Bold(true)
}
