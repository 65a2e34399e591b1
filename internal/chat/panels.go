package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/campusdesk/desk/internal/types"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/dustin/go-humanize"
)

func threadZoneID(id int64) string {
	return fmt.Sprintf("thread-%d", id)
}

func (m *Model) renderThreadPanel() string {
	width := threadPanelWidth
	header := "내 문의"
	if m.opts.Admin {
		header = "전체 문의"
	}
	if m.opts.Filter.Tag != "" {
		header += " · " + m.opts.Filter.Tag.Label()
	}
	if m.loadingThreads {
		header += " " + m.spinner.View()
	}

	lines := []string{titleStyle.Render(header), ""}
	if len(m.threads) == 0 && !m.loadingThreads {
		lines = append(lines, dimStyle.Render("문의가 없습니다"))
	}

	height := m.height - 2
	visible := m.threads
	start := 0
	if perRow := 2; height > 0 && len(visible)*perRow > height {
		maxRows := height / perRow
		if m.threadIndex >= maxRows {
			start = m.threadIndex - maxRows + 1
		}
		end := start + maxRows
		if end > len(visible) {
			end = len(visible)
		}
		visible = visible[start:end]
	}

	now := m.now()
	for i, thread := range visible {
		row := renderThreadRow(thread, width-1, now)
		if start+i == m.threadIndex {
			style := selectedStyle.Width(width - 1)
			if m.focus != focusThreads {
				style = style.Faint(true)
			}
			row = style.Render(row)
		}
		if thread.ID == m.selectedID {
			row = lipgloss.NewStyle().BorderStyle(lipgloss.ThickBorder()).BorderLeft(true).BorderForeground(accentColor).Render(row)
		}
		lines = append(lines, m.zoneManager.Mark(threadZoneID(thread.ID), row))
	}

	return panelStyle.Width(width).Height(m.height).Render(strings.Join(lines, "\n"))
}

func renderThreadRow(thread types.Thread, width int, now time.Time) string {
	tag := renderTag(thread.Tag)
	titleWidth := width - ansi.StringWidth(tag) - 1
	if titleWidth < 4 {
		titleWidth = 4
	}
	title := ansi.Truncate(thread.Title, titleWidth, "…")

	meta := ""
	if !thread.CreatedAt.IsZero() {
		meta = humanize.RelTime(thread.CreatedAt.Time, now, "ago", "from now")
	}
	if thread.Author != "" {
		meta = thread.Author + " · " + meta
	}
	return tag + " " + title + "\n" + dimStyle.Render(ansi.Truncate(meta, width, "…"))
}
