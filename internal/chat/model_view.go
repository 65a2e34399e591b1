package chat

import (
	"fmt"
	"strings"

	"github.com/campusdesk/desk/internal/realtime"
	"github.com/campusdesk/desk/internal/room"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

func (m *Model) View() string {
	if m.width == 0 {
		return ""
	}
	snap := m.room.Snapshot()
	main := lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(snap),
		m.viewport.View(),
		"",
		m.input.View(),
		m.renderStatusLine(snap),
	)
	output := lipgloss.JoinHorizontal(lipgloss.Top, m.renderThreadPanel(), main)
	return m.zoneManager.Scan(output)
}

func (m *Model) renderHeader(snap room.Snapshot) string {
	width := m.mainWidth()
	if m.selectedID == 0 {
		return dimStyle.Render("desk") + "\n" + dimStyle.Render(strings.Repeat("─", width))
	}

	var title string
	switch {
	case snap.Detail != nil:
		detail := snap.Detail
		title = fmt.Sprintf("%s %s", titleStyle.Render(detail.Title), renderTag(detail.Tag))
		title += dimStyle.Render(fmt.Sprintf("  👍 %d  👎 %d", detail.Reactions.LikeCount, detail.Reactions.DislikeCount))
		if mine := detail.Reactions.Mine; mine != "" {
			title += dimStyle.Render(" (" + strings.ToLower(string(mine)) + ")")
		}
	case snap.DetailErr != nil:
		title = errorStyle.Render(snap.DetailErr.Error())
	default:
		title = titleStyle.Render(fmt.Sprintf("#%d", m.selectedID))
	}
	if m.selecting {
		title += " " + m.spinner.View()
	}

	indicator := renderIndicator(snap.Connection)
	gap := width - ansi.StringWidth(title) - ansi.StringWidth(indicator)
	if gap < 1 {
		title = ansi.Truncate(title, width-ansi.StringWidth(indicator)-1, "…")
		gap = 1
	}
	return title + strings.Repeat(" ", gap) + indicator + "\n" + dimStyle.Render(strings.Repeat("─", width))
}

func renderIndicator(state realtime.State) string {
	color := dimColor
	switch state {
	case realtime.Connected:
		color = okColor
	case realtime.Connecting:
		color = warnColor
	case realtime.Error:
		color = errorColor
	}
	return lipgloss.NewStyle().Foreground(color).Render(state.Indicator())
}

func (m *Model) renderStatusLine(snap room.Snapshot) string {
	width := m.mainWidth()
	var text string
	switch {
	case m.closePrompt == room.PromptResolve:
		text = string(m.closePrompt) + "  a 채택 · r 반려 · e 종료 · 그 외 취소"
	case m.closePrompt != "":
		text = string(m.closePrompt) + "  y/n"
	case m.status != "":
		text = m.status
		if m.statusErr {
			return errorStyle.Render(ansi.Truncate(text, width, "…"))
		}
	case snap.HistoryErr != nil:
		return errorStyle.Render(ansi.Truncate(snap.HistoryErr.Error(), width, "…"))
	default:
		text = "tab 포커스 · ctrl+l 좋아요 · ctrl+d 싫어요 · ctrl+x 종료 · ctrl+y 복사 · esc 나가기"
	}
	return dimStyle.Render(ansi.Truncate(text, width, "…"))
}
