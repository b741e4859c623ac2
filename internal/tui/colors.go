package tui

import "github.com/charmbracelet/lipgloss"

var (
	headerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	doneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	tabStyle     = lipgloss.NewStyle().Padding(0, 1)
	activeTab    = tabStyle.Foreground(lipgloss.Color("0")).Background(lipgloss.Color("39"))
)

// ColorRed colors text red
func ColorRed(text string) string {
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("1")).
		Render(text)
}

// ColorGreen colors text green
func ColorGreen(text string) string {
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("2")).
		Render(text)
}

// ColorYellow colors text yellow
func ColorYellow(text string) string {
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("3")).
		Render(text)
}

// ColorCyan colors text cyan
func ColorCyan(text string) string {
	return lipgloss.NewStyle().
		Foreground(lipgloss.Color("6")).
		Render(text)
}

// ColorStatusCode colors a porcelain status code: staged green, unstaged red,
// untracked yellow
func ColorStatusCode(staging, worktree byte) string {
	code := string([]byte{staging, worktree})
	switch {
	case staging == '?':
		return ColorYellow(code)
	case staging != ' ' && worktree == ' ':
		return ColorGreen(code)
	default:
		return ColorRed(code)
	}
}
