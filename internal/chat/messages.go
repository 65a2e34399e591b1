package chat

import (
	"strings"

	"github.com/campusdesk/desk/internal/timeline"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// refreshViewport re-renders the timeline; bottom keeps the newest line in view.
func (m *Model) refreshViewport(bottom bool) {
	if m.selectedID == 0 {
		m.viewport.SetContent("")
		return
	}
	groups := m.room.Groups(nil, m.now())
	m.viewport.SetContent(renderGroups(groups, m.viewport.Width))
	if bottom {
		m.viewport.GotoBottom()
	}
}

func renderGroups(groups []timeline.Group, width int) string {
	if width <= 0 {
		width = 80
	}
	var lines []string
	for _, group := range groups {
		if group.Label != "" {
			lines = append(lines, lipgloss.PlaceHorizontal(width, lipgloss.Center, dayStyle.Render("─ "+group.Label+" ─")))
		}
		for _, entry := range group.Entries {
			lines = append(lines, renderEntry(entry, width)...)
		}
	}
	return strings.Join(lines, "\n")
}

// renderEntry right-aligns the caller's messages and names other senders
// only when the sender changes.
func renderEntry(entry timeline.Entry, width int) []string {
	bodyWidth := width * 3 / 4
	if bodyWidth < 10 {
		bodyWidth = width
	}
	clock := ""
	if !entry.Message.CreatedAt.IsZero() {
		clock = entry.Message.CreatedAt.Local().Format("15:04")
	}

	style := lipgloss.NewStyle().Foreground(textColor)
	switch {
	case entry.Message.Deleted:
		style = deletedStyle
	case entry.Mine:
		style = mineStyle
	}
	body := ansi.Wordwrap(entry.Text, bodyWidth, " ")

	var lines []string
	if entry.ShowSender {
		name := entry.Message.SenderName
		if name == "" {
			name = "상대방"
		}
		lines = append(lines, senderStyle.Render(name))
	}
	for i, line := range strings.Split(body, "\n") {
		rendered := style.Render(line)
		if i == 0 && clock != "" {
			if entry.Mine {
				rendered = dimStyle.Render(clock) + " " + rendered
			} else {
				rendered = rendered + " " + dimStyle.Render(clock)
			}
		}
		if entry.Mine {
			rendered = lipgloss.PlaceHorizontal(width, lipgloss.Right, rendered)
		}
		lines = append(lines, rendered)
	}
	return lines
}
