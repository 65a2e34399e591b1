package chat

import (
	"github.com/campusdesk/desk/internal/room"
	"github.com/campusdesk/desk/internal/types"
	tea "github.com/charmbracelet/bubbletea"
)

type threadsLoadedMsg struct {
	threads []types.Thread
	err     error
}

type selectedMsg struct {
	id  int64
	err error
}

type roomChangedMsg struct {
	change room.Change
}

type actionDoneMsg struct {
	label string
	err   error
	// closedTag is set after a successful close.
	closedTag types.StatusTag
	threadID  int64
}

type copiedMsg struct {
	err error
}

func (m *Model) loadThreadsCmd() tea.Cmd {
	lister := m.opts.Lister
	filter := m.opts.Filter
	ctx := m.ctx
	if m.opts.Admin {
		return func() tea.Msg {
			page, err := lister.ListAdmin(ctx, filter, 0, 0)
			return threadsLoadedMsg{threads: page.Threads, err: err}
		}
	}
	return func() tea.Msg {
		threads, err := lister.ListMine(ctx, filter)
		return threadsLoadedMsg{threads: threads, err: err}
	}
}

func (m *Model) selectCmd(id int64) tea.Cmd {
	r := m.room
	ctx := m.ctx
	return func() tea.Msg {
		return selectedMsg{id: id, err: r.Select(ctx, id)}
	}
}

func (m *Model) reactCmd(reaction types.ReactionType) tea.Cmd {
	r := m.room
	ctx := m.ctx
	return func() tea.Msg {
		return actionDoneMsg{label: "reaction", err: r.ToggleReaction(ctx, reaction)}
	}
}

// closeCmd runs after the user answered the prompt in the status line.
func (m *Model) closeCmd(id int64, tag types.StatusTag) tea.Cmd {
	r := m.room
	ctx := m.ctx
	return func() tea.Msg {
		err := r.CloseThread(ctx, tag, nil)
		msg := actionDoneMsg{label: "close", err: err, threadID: id}
		if err == nil {
			msg.closedTag = tag
		}
		return msg
	}
}

func (m *Model) copyCmd(text string) tea.Cmd {
	return func() tea.Msg {
		return copiedMsg{err: copyToClipboard(text)}
	}
}
