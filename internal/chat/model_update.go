package chat

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/campusdesk/desk/internal/api"
	"github.com/campusdesk/desk/internal/realtime"
	"github.com/campusdesk/desk/internal/room"
	"github.com/campusdesk/desk/internal/timeline"
	"github.com/campusdesk/desk/internal/types"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil
	case tea.FocusMsg:
		m.windowFocused = true
		return m, nil
	case tea.BlurMsg:
		m.windowFocused = false
		return m, nil
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)
	case tea.MouseMsg:
		return m.handleMouseMsg(msg)
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case threadsLoadedMsg:
		return m.handleThreadsLoaded(msg)
	case selectedMsg:
		return m.handleSelected(msg)
	case roomChangedMsg:
		return m.handleRoomChanged(msg)
	case actionDoneMsg:
		return m.handleActionDone(msg)
	case copiedMsg:
		if msg.err != nil {
			m.setError(fmt.Errorf("copy failed: %w", msg.err))
		} else {
			m.setStatus("마지막 메시지를 복사했습니다")
		}
		return m, nil
	default:
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
}

func (m *Model) handleThreadsLoaded(msg threadsLoadedMsg) (tea.Model, tea.Cmd) {
	m.loadingThreads = false
	if msg.err != nil {
		// The previous list stays on screen.
		m.setError(msg.err)
		return m, nil
	}
	m.threads = msg.threads
	m.threadIndex = 0
	for i, thread := range m.threads {
		if thread.ID == m.selectedID {
			m.threadIndex = i
			break
		}
	}
	return m, nil
}

func (m *Model) handleSelected(msg selectedMsg) (tea.Model, tea.Cmd) {
	if msg.id != m.selectedID {
		return m, nil
	}
	m.selecting = false
	snap := m.room.Snapshot()
	m.seenMessages = len(snap.Messages)
	if msg.err != nil {
		m.setError(msg.err)
	} else {
		m.clearStatus()
	}
	m.refreshViewport(true)
	m.syncInput(snap.CanSend)
	return m, nil
}

func (m *Model) handleRoomChanged(msg roomChangedMsg) (tea.Model, tea.Cmd) {
	if msg.change.ThreadID != m.selectedID {
		return m, nil
	}
	snap := m.room.Snapshot()
	switch msg.change.Kind {
	case room.ChangeMessage:
		m.notifyIncoming(snap)
		m.refreshViewport(m.viewport.AtBottom())
	case room.ChangeHistory, room.ChangeSelected:
		m.seenMessages = len(snap.Messages)
		m.refreshViewport(true)
	}
	m.syncInput(snap.CanSend)
	return m, nil
}

// notifyIncoming raises a desktop notification for messages from others
// while the terminal is unfocused.
func (m *Model) notifyIncoming(snap room.Snapshot) {
	var fresh []types.Message
	if m.seenMessages < len(snap.Messages) {
		fresh = snap.Messages[m.seenMessages:]
	}
	m.seenMessages = len(snap.Messages)
	if !m.opts.Notify || m.windowFocused {
		return
	}
	identityID := m.opts.Identity().ID
	label := "#" + strconv.FormatInt(snap.ThreadID, 10)
	if snap.Detail != nil {
		label = snap.Detail.Title
	}
	for _, msg := range fresh {
		if timeline.IsMine(msg, identityID) {
			continue
		}
		if err := SendNotification(label, msg); err != nil {
			m.logger.Debug("notification failed", "err", err)
		}
	}
}

func (m *Model) handleActionDone(msg actionDoneMsg) (tea.Model, tea.Cmd) {
	switch {
	case errors.Is(msg.err, room.ErrInFlight):
		m.setStatus("처리 중입니다")
	case msg.err != nil:
		m.setError(msg.err)
	case msg.closedTag != "":
		m.opts.Lister.UpdateTag(msg.threadID, msg.closedTag)
		for i := range m.threads {
			if m.threads[i].ID == msg.threadID {
				m.threads[i].Tag = msg.closedTag
			}
		}
		m.setStatus("문의가 " + msg.closedTag.Label() + " 처리되었습니다")
	}
	return m, nil
}

func (m *Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.closePrompt != "" {
		return m.handleCloseAnswer(msg)
	}

	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc":
		if m.focus == focusInput {
			m.setFocus(focusThreads)
			return m, nil
		}
		return m, tea.Quit
	case "tab":
		if m.focus == focusThreads {
			m.setFocus(focusInput)
		} else {
			m.setFocus(focusThreads)
		}
		return m, nil
	case "ctrl+r":
		m.loadingThreads = true
		return m, m.loadThreadsCmd()
	case "ctrl+l":
		return m, m.startReaction(types.ReactionLike)
	case "ctrl+d":
		return m, m.startReaction(types.ReactionDislike)
	case "ctrl+x":
		m.startClose()
		return m, nil
	case "ctrl+y":
		return m, m.copyLastMessage()
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	if m.focus == focusThreads {
		return m.handleThreadKeys(msg)
	}
	return m.handleInputKeys(msg)
}

func (m *Model) handleThreadKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.threadIndex > 0 {
			m.threadIndex--
		}
	case "down", "j":
		if m.threadIndex < len(m.threads)-1 {
			m.threadIndex++
		}
	case "enter":
		if m.threadIndex < len(m.threads) {
			cmd := m.selectThread(m.threads[m.threadIndex].ID)
			m.setFocus(focusInput)
			return m, cmd
		}
	}
	return m, nil
}

func (m *Model) handleInputKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "enter" {
		m.submit()
		return m, nil
	}
	if !m.input.Focused() {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) submit() {
	text := strings.TrimSpace(m.input.Value())
	if text == "" || m.selectedID == 0 {
		return
	}
	// Publish only hands the frame to the socket; the echo arrives as a
	// room change.
	if err := m.room.Send(text); err != nil {
		if errors.Is(err, realtime.ErrNotConnected) {
			m.setError(errors.New("연결되지 않아 메시지를 보낼 수 없습니다"))
		} else {
			m.setError(err)
		}
		return
	}
	m.input.Reset()
	m.clearStatus()
}

func (m *Model) selectThread(id int64) tea.Cmd {
	if id == m.selectedID && !m.selecting {
		return nil
	}
	m.selectedID = id
	m.selecting = true
	m.closePrompt = ""
	m.seenMessages = 0
	for i, thread := range m.threads {
		if thread.ID == id {
			m.threadIndex = i
		}
	}
	if m.opts.OnSelect != nil {
		m.opts.OnSelect(id)
	}
	m.viewport.SetContent("")
	m.syncInput(false)
	return m.selectCmd(id)
}

func (m *Model) startReaction(reaction types.ReactionType) tea.Cmd {
	if m.selectedID == 0 {
		return nil
	}
	if snap := m.room.Snapshot(); snap.Detail == nil {
		return nil
	}
	return m.reactCmd(reaction)
}

func (m *Model) startClose() {
	if m.selectedID == 0 {
		return
	}
	snap := m.room.Snapshot()
	if snap.Detail == nil || snap.Closing {
		return
	}
	m.closePrompt = m.room.ClosePrompt()
	m.syncInput(false)
}

// handleCloseAnswer reads the status-line answer. Resolving an open inquiry
// picks ADOPT or REJECT; closing anything else asks y/n for END.
func (m *Model) handleCloseAnswer(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	prompt := m.closePrompt
	var tag types.StatusTag
	switch key := strings.ToLower(msg.String()); {
	case key == "ctrl+c":
		return m, tea.Quit
	case prompt == room.PromptResolve && key == "a":
		tag = types.TagAdopt
	case prompt == room.PromptResolve && key == "r":
		tag = types.TagReject
	case prompt == room.PromptResolve && key == "e":
		tag = types.TagEnd
	case prompt == room.PromptClose && key == "y":
		tag = types.TagEnd
	}
	m.closePrompt = ""
	m.syncInput(m.room.Snapshot().CanSend)
	if tag == "" {
		m.setStatus("취소되었습니다")
		return m, nil
	}
	m.setStatus("처리 중…")
	return m, m.closeCmd(m.selectedID, tag)
}

func (m *Model) copyLastMessage() tea.Cmd {
	messages := m.room.Snapshot().Messages
	if len(messages) == 0 {
		return nil
	}
	return m.copyCmd(messages[len(messages)-1].DisplayText())
}

func (m *Model) handleMouseMsg(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	if msg.Action == tea.MouseActionPress && msg.Button == tea.MouseButtonLeft {
		for _, thread := range m.threads {
			if m.zoneManager.Get(threadZoneID(thread.ID)).InBounds(msg) {
				cmd := m.selectThread(thread.ID)
				m.setFocus(focusInput)
				return m, cmd
			}
		}
	}
	if msg.Button == tea.MouseButtonWheelUp || msg.Button == tea.MouseButtonWheelDown {
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) setFocus(focus focusArea) {
	m.focus = focus
	m.syncInput(m.room.Snapshot().CanSend)
}

func (m *Model) setStatus(text string) {
	m.status = text
	m.statusErr = false
}

func (m *Model) setError(err error) {
	m.status = api.UserMessage(err)
	m.statusErr = true
}

func (m *Model) clearStatus() {
	m.status = ""
	m.statusErr = false
}
