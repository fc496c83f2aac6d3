package ui

import "github.com/charmbracelet/lipgloss"

// Green-on-black, the original RetroGPT scheme.
var (
	green    = lipgloss.Color("#33ff33")
	dimGreen = lipgloss.Color("#1f9e1f")
	red      = lipgloss.Color("#ff5555")

	headerStyle = lipgloss.NewStyle().
			Foreground(green).
			Bold(true).
			Align(lipgloss.Center)

	subHeaderStyle = lipgloss.NewStyle().
			Foreground(dimGreen).
			Align(lipgloss.Center)

	frameStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(green)

	inputStyle = lipgloss.NewStyle().
			Foreground(green).
			PaddingLeft(1)

	statusStyle = lipgloss.NewStyle().
			Foreground(dimGreen)

	userPrefix = "YOU> "
	userStyle  = lipgloss.NewStyle().Foreground(green).Bold(true)

	aiPrefix = "GPT> "
	aiStyle  = lipgloss.NewStyle().Foreground(dimGreen)

	errorStyle = lipgloss.NewStyle().Foreground(red)

	logoStyle = lipgloss.NewStyle().
			Foreground(green).
			Bold(true).
			Align(lipgloss.Center)
)
