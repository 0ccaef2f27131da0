package styles

import (
	"github.com/charmbracelet/lipgloss"
)

// --- Color Palette (phosphor trace on a dark graticule) ---
var (
	ColorPrimary   = lipgloss.Color("#F5D400") // CH1 yellow
	ColorSecondary = lipgloss.Color("#00C8E0") // CH2 cyan
	ColorError     = lipgloss.Color("#FF5F87")
	ColorWarning   = lipgloss.Color("#FFAF00")
	ColorText      = lipgloss.Color("#FAFAFA")
	ColorSubtle    = lipgloss.Color("#767676")
	ColorBorder    = lipgloss.Color("#3C3C3C")
	ColorBg        = lipgloss.Color("#1A1A1A")
	ColorHighlight = lipgloss.Color("#3E3E3E")
	ColorBanner    = lipgloss.Color("#F5D400")
)

var (
	// Main Container Panel
	Panel = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder).
		Padding(1, 2)

	Title = lipgloss.NewStyle().
		Foreground(ColorPrimary).
		Bold(true).
		Padding(0, 1).
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(ColorSubtle)

	Text   = lipgloss.NewStyle().Foreground(ColorText)
	Subtle = lipgloss.NewStyle().Foreground(ColorSubtle)

	Value  = lipgloss.NewStyle().Foreground(ColorSecondary).Bold(true)
	Active = lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true)

	Error   = lipgloss.NewStyle().Foreground(ColorError)
	Warn    = lipgloss.NewStyle().Foreground(ColorWarning)
	Success = lipgloss.NewStyle().Foreground(ColorSecondary).Bold(true)

	// Trace and graticule for plots
	Trace     = lipgloss.NewStyle().Foreground(ColorPrimary)
	Graticule = lipgloss.NewStyle().Foreground(ColorSubtle)

	KeyKey  = lipgloss.NewStyle().Foreground(ColorText).Bold(true)
	KeyDesc = lipgloss.NewStyle().Foreground(ColorSubtle)

	InputActive = lipgloss.NewStyle().Border(lipgloss.ThickBorder()).BorderForeground(ColorPrimary).Padding(0, 1)
	InputNormal = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(ColorBorder).Padding(0, 1)

	Box = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder).
		Padding(0, 1).
		Margin(0, 1)

	TabBase = lipgloss.NewStyle().
		Foreground(ColorSubtle).
		Padding(0, 2)

	TabActive = lipgloss.NewStyle().
			Foreground(ColorPrimary).
			Bold(true).
			Border(lipgloss.NormalBorder(), false, false, true, false).
			BorderForeground(ColorPrimary).
			Padding(0, 2)

	FooterBase = lipgloss.NewStyle().
			Height(1).
			Padding(0, 1)
)

func RenderKey(key, desc string) string {
	return lipgloss.JoinHorizontal(lipgloss.Center,
		KeyKey.Render("<"+key+">"),
		" ",
		KeyDesc.Render(desc),
	)
}
