package cli

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	okStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("46"))

	badStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)

func verdict(ok bool, yes, no string) string {
	if ok {
		return okStyle.Render(yes)
	}
	return badStyle.Render(no)
}
