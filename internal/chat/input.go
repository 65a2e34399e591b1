package chat

import (
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/lipgloss"
)

const inputHeight = 3

const (
	placeholderReady        = "메시지를 입력하세요 (enter 전송, alt+enter 줄바꿈)"
	placeholderDisconnected = "연결이 끊겨 메시지를 보낼 수 없습니다"
	placeholderNoThread     = "왼쪽에서 문의를 선택하세요"
)

func newInputModel() textarea.Model {
	input := textarea.New()
	input.Prompt = "› "
	input.Placeholder = placeholderNoThread
	input.ShowLineNumbers = false
	input.CharLimit = 0
	input.SetHeight(inputHeight)
	input.KeyMap.InsertNewline.SetKeys("alt+enter")
	applyInputStyles(&input, textColor, dimColor)
	input.Blur()
	return input
}

func applyInputStyles(input *textarea.Model, textColor, blurColor lipgloss.Color) {
	input.FocusedStyle.Base = lipgloss.NewStyle().Foreground(textColor).Background(inputBg)
	input.FocusedStyle.Text = lipgloss.NewStyle().Foreground(textColor).Background(inputBg)
	input.FocusedStyle.Prompt = lipgloss.NewStyle().Foreground(caretColor).Background(inputBg)
	input.FocusedStyle.CursorLine = lipgloss.NewStyle().Background(inputBg)
	input.BlurredStyle.Base = lipgloss.NewStyle().Foreground(blurColor).Background(inputBg)
	input.BlurredStyle.Text = lipgloss.NewStyle().Foreground(blurColor).Background(inputBg)
	input.BlurredStyle.Prompt = lipgloss.NewStyle().Foreground(caretColor).Background(inputBg)
	input.BlurredStyle.CursorLine = lipgloss.NewStyle().Background(inputBg)
}

// syncInput enables the input only when a message could be sent.
func (m *Model) syncInput(canSend bool) {
	switch {
	case m.selectedID == 0:
		m.input.Placeholder = placeholderNoThread
	case !canSend:
		m.input.Placeholder = placeholderDisconnected
	default:
		m.input.Placeholder = placeholderReady
	}
	if canSend && m.focus == focusInput && m.closePrompt == "" {
		m.input.Focus()
		return
	}
	m.input.Blur()
}
