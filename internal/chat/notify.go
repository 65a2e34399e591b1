package chat

import (
	"strings"
	"unicode/utf8"

	"github.com/campusdesk/desk/internal/types"
	"github.com/gen2brain/beeep"
)

// SendNotification raises an OS notification for an incoming message.
func SendNotification(threadLabel string, msg types.Message) error {
	title := msg.SenderName
	if title == "" {
		title = "desk"
	}
	if threadLabel != "" {
		title = threadLabel + " · " + title
	}
	return beeep.Notify(title, truncateNotification(msg.DisplayText(), 100), "")
}

func truncateNotification(s string, maxLen int) string {
	// Collapse whitespace for notification
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen-1]) + "…"
}
