package command

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/campusdesk/desk/internal/timeline"
	"github.com/campusdesk/desk/internal/types"
	"github.com/dustin/go-humanize"
)

var (
	noColor = os.Getenv("NO_COLOR") != ""

	dim    = ansiCode("\x1b[2m")
	bold   = ansiCode("\x1b[1m")
	reset  = ansiCode("\x1b[0m")
	cyan   = ansiCode("\x1b[36m")
	green  = ansiCode("\x1b[32m")
	red    = ansiCode("\x1b[31m")
	yellow = ansiCode("\x1b[33m")
)

func ansiCode(code string) string {
	if noColor {
		return ""
	}
	return code
}

func tagColor(tag types.StatusTag) string {
	switch tag {
	case types.TagInProgress:
		return yellow
	case types.TagAdopt:
		return green
	case types.TagReject:
		return red
	}
	return dim
}

// formatTag renders a tag as its Korean label.
func formatTag(tag types.StatusTag) string {
	return fmt.Sprintf("%s[%s]%s", tagColor(tag), tag.Label(), reset)
}

func describeIdentity(identity types.Identity) string {
	name := identity.Name
	if name == "" {
		name = "(unnamed)"
	}
	var b strings.Builder
	b.WriteString(name)
	if identity.Email != "" {
		fmt.Fprintf(&b, " <%s>", identity.Email)
	}
	if identity.IsAdmin {
		b.WriteString(" [admin]")
	}
	return b.String()
}

// relativeTime renders ts like "3 hours ago".
func relativeTime(ts types.Timestamp, now time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	return humanize.RelTime(ts.Time, now, "ago", "from now")
}

// FormatThread renders one directory row.
func FormatThread(thread types.Thread, now time.Time) string {
	line := fmt.Sprintf("%s#%d%s %s %s", dim, thread.ID, reset, formatTag(thread.Tag), thread.Title)
	var meta []string
	if thread.Author != "" {
		author := thread.Author
		if thread.StudentNum != 0 {
			author = fmt.Sprintf("%s (%d)", author, thread.StudentNum)
		}
		meta = append(meta, author)
	}
	meta = append(meta, relativeTime(thread.CreatedAt, now))
	return line + " " + dim + "· " + strings.Join(meta, " · ") + reset
}

// FormatReactions renders counts, marking the caller's vote.
func FormatReactions(r types.ReactionState) string {
	like := fmt.Sprintf("👍 %d", r.LikeCount)
	dislike := fmt.Sprintf("👎 %d", r.DislikeCount)
	switch r.Mine {
	case types.ReactionLike:
		like = bold + like + reset
	case types.ReactionDislike:
		dislike = bold + dislike + reset
	}
	return like + "  " + dislike
}

// FormatEntry renders one timeline line; the sender is only named for
// other people's messages.
func FormatEntry(entry timeline.Entry) string {
	clock := ""
	if !entry.Message.CreatedAt.IsZero() {
		clock = entry.Message.CreatedAt.Local().Format("15:04")
	}
	text := entry.Text
	if entry.Message.Deleted {
		text = dim + text + reset
	}
	switch {
	case entry.Mine:
		return fmt.Sprintf("%s%s%s %s›%s %s", dim, clock, reset, cyan, reset, text)
	case entry.ShowSender:
		return fmt.Sprintf("%s%s%s %s%s%s: %s", dim, clock, reset, bold, senderName(entry.Message), reset, text)
	}
	return fmt.Sprintf("%s%s%s   %s", dim, clock, reset, text)
}

func senderName(msg types.Message) string {
	if msg.SenderName != "" {
		return msg.SenderName
	}
	return fmt.Sprintf("user %d", msg.Sender)
}

// FormatGroups renders a timeline with day headers.
func FormatGroups(groups []timeline.Group) []string {
	var lines []string
	for _, group := range groups {
		if group.Label != "" {
			lines = append(lines, fmt.Sprintf("%s── %s ──%s", dim, group.Label, reset))
		}
		for _, entry := range group.Entries {
			lines = append(lines, FormatEntry(entry))
		}
	}
	return lines
}
