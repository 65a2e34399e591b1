package chat

import (
	"github.com/campusdesk/desk/internal/types"
	"github.com/charmbracelet/lipgloss"
)

var (
	textColor   = lipgloss.Color("252")
	dimColor    = lipgloss.Color("242")
	accentColor = lipgloss.Color("111")
	mineColor   = lipgloss.Color("157")
	errorColor  = lipgloss.Color("196")
	okColor     = lipgloss.Color("42")
	warnColor   = lipgloss.Color("220")
	inputBg     = lipgloss.Color("236")
	caretColor  = lipgloss.Color("111")
	selectedBg  = lipgloss.Color("237")

	spinnerStyle  = lipgloss.NewStyle().Foreground(accentColor)
	dimStyle      = lipgloss.NewStyle().Foreground(dimColor)
	titleStyle    = lipgloss.NewStyle().Foreground(textColor).Bold(true)
	senderStyle   = lipgloss.NewStyle().Foreground(accentColor).Bold(true)
	mineStyle     = lipgloss.NewStyle().Foreground(mineColor)
	deletedStyle  = lipgloss.NewStyle().Foreground(dimColor).Italic(true)
	dayStyle      = lipgloss.NewStyle().Foreground(dimColor)
	errorStyle    = lipgloss.NewStyle().Foreground(errorColor)
	panelStyle    = lipgloss.NewStyle().BorderStyle(lipgloss.NormalBorder()).BorderRight(true).BorderForeground(dimColor)
	selectedStyle = lipgloss.NewStyle().Background(selectedBg)
)

func tagColor(tag types.StatusTag) lipgloss.Color {
	switch tag {
	case types.TagInProgress:
		return warnColor
	case types.TagAdopt:
		return okColor
	case types.TagReject:
		return errorColor
	}
	return dimColor
}

func renderTag(tag types.StatusTag) string {
	return lipgloss.NewStyle().Foreground(tagColor(tag)).Render("[" + tag.Label() + "]")
}
