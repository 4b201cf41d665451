package tui

import "github.com/charmbracelet/lipgloss"

var (
	ColorNavy  = lipgloss.Color("#1E2A47")
	ColorWhite = lipgloss.Color("#F5F5F5")
	ColorGreen = lipgloss.Color("#49E209")
	ColorRed   = lipgloss.Color("9")
	ColorAmber = lipgloss.Color("214")
	ColorBlue  = lipgloss.Color("12")
	ColorGray  = lipgloss.Color("245")

	headerStyle = lipgloss.NewStyle().
			Background(ColorNavy).
			Foreground(ColorWhite).
			Bold(true).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorGray).
			Padding(0, 1)

	titleStyle    = lipgloss.NewStyle().Foreground(ColorBlue).Bold(true)
	labelStyle    = lipgloss.NewStyle().Foreground(ColorGray)
	selectedStyle = lipgloss.NewStyle().Foreground(ColorAmber).Bold(true)
	errorStyle    = lipgloss.NewStyle().Foreground(ColorRed)
	statusStyle   = lipgloss.NewStyle().Background(ColorNavy).Foreground(ColorWhite)
)

func stateStyle(alive bool) lipgloss.Style {
	if alive {
		return lipgloss.NewStyle().Foreground(ColorGreen).Bold(true)
	}
	return lipgloss.NewStyle().Foreground(ColorRed).Bold(true)
}
