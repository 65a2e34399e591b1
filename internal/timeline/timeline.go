// Package timeline keeps the ordered message log of one thread.
package timeline

import (
	"sort"
	"sync"
	"time"

	"github.com/campusdesk/desk/internal/types"
)

// Timeline merges a history page with realtime appends.
type Timeline struct {
	mu      sync.RWMutex
	history []types.Message
	live    []types.Message
	loaded  bool
}

// New returns an empty timeline.
func New() *Timeline {
	return &Timeline{}
}

type messageKey struct {
	createdAt int64
	sender    int64
	text      string
}

func keyOf(msg types.Message) messageKey {
	key := messageKey{sender: msg.Sender, text: msg.Text}
	if !msg.CreatedAt.IsZero() {
		key.createdAt = msg.CreatedAt.UnixNano()
	}
	return key
}

// SetHistory replaces the historical page, sorted ascending by CreatedAt.
// Realtime messages that arrived first stay after it unless the page
// already holds them.
func (t *Timeline) SetHistory(messages []types.Message) {
	history := make([]types.Message, len(messages))
	copy(history, messages)
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].CreatedAt.Before(history[j].CreatedAt.Time)
	})

	seen := make(map[messageKey]struct{}, len(history))
	for _, msg := range history {
		seen[keyOf(msg)] = struct{}{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	live := t.live[:0]
	for _, msg := range t.live {
		if _, dup := seen[keyOf(msg)]; dup {
			continue
		}
		live = append(live, msg)
	}
	t.history = history
	t.live = live
	t.loaded = true
}

// Append adds a realtime message at the tail without re-sorting.
func (t *Timeline) Append(msg types.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.live = append(t.live, msg)
}

// Loaded reports whether a history page has been applied.
func (t *Timeline) Loaded() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.loaded
}

// Len is the number of messages.
func (t *Timeline) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.history) + len(t.live)
}

// Messages returns a snapshot copy in display order.
func (t *Timeline) Messages() []types.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]types.Message, 0, len(t.history)+len(t.live))
	out = append(out, t.history...)
	return append(out, t.live...)
}

// Last returns the newest message.
func (t *Timeline) Last() (types.Message, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if n := len(t.live); n > 0 {
		return t.live[n-1], true
	}
	if n := len(t.history); n > 0 {
		return t.history[n-1], true
	}
	return types.Message{}, false
}

// IsMine reports whether msg was sent by identityID.
func IsMine(msg types.Message, identityID string) bool {
	return identityID != "" && msg.SenderID() == identityID
}

// Entry is one rendered line.
type Entry struct {
	Message types.Message
	Mine    bool
	// ShowSender is set on another user's message when the previous line in
	// the same day came from someone else.
	ShowSender bool
	Text       string
}

// Group is the messages of one calendar day.
type Group struct {
	Day     time.Time
	Label   string
	Entries []Entry
}

// Groups splits the timeline by day in loc, labelling days relative to now.
func (t *Timeline) Groups(identityID string, loc *time.Location, now time.Time) []Group {
	if loc == nil {
		loc = time.Local
	}
	messages := t.Messages()
	var groups []Group
	for _, msg := range messages {
		day := dayOf(msg.CreatedAt.Time, loc)
		if len(groups) == 0 || !groups[len(groups)-1].Day.Equal(day) {
			groups = append(groups, Group{Day: day, Label: DayLabel(day, now.In(loc))})
		}
		group := &groups[len(groups)-1]
		mine := IsMine(msg, identityID)
		showSender := !mine
		if n := len(group.Entries); n > 0 && group.Entries[n-1].Message.Sender == msg.Sender {
			showSender = false
		}
		group.Entries = append(group.Entries, Entry{
			Message:    msg,
			Mine:       mine,
			ShowSender: showSender,
			Text:       msg.DisplayText(),
		})
	}
	return groups
}

func dayOf(ts time.Time, loc *time.Location) time.Time {
	if ts.IsZero() {
		return time.Time{}
	}
	local := ts.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// DayLabel is "오늘", "어제" or the full date.
func DayLabel(day, now time.Time) string {
	if day.IsZero() {
		return ""
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch {
	case day.Equal(today):
		return "오늘"
	case day.Equal(today.AddDate(0, 0, -1)):
		return "어제"
	}
	return day.Format("2006년 1월 2일")
}
