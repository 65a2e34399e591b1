package chat

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/campusdesk/desk/internal/db"
	"github.com/campusdesk/desk/internal/directory"
	"github.com/campusdesk/desk/internal/room"
	"github.com/campusdesk/desk/internal/timeline"
	"github.com/campusdesk/desk/internal/types"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	zone "github.com/lrstanley/bubblezone"
)

// Lister is the directory the thread panel reads.
type Lister interface {
	ListMine(ctx context.Context, filter directory.Filter) ([]types.Thread, error)
	ListAdmin(ctx context.Context, filter directory.Filter, page, size int) (types.AdminThreadPage, error)
	UpdateTag(id int64, tag types.StatusTag)
	Cached(scope string, filter directory.Filter) ([]types.Thread, error)
}

// Room is the selected-thread controller; *room.View implements it.
type Room interface {
	Select(ctx context.Context, id int64) error
	Send(text string) error
	ToggleReaction(ctx context.Context, reaction types.ReactionType) error
	CloseThread(ctx context.Context, tag types.StatusTag, confirm func(room.Prompt) bool) error
	ClosePrompt() room.Prompt
	Snapshot() room.Snapshot
	Groups(loc *time.Location, now time.Time) []timeline.Group
	Close() error
}

// Options configure chat.
type Options struct {
	Lister   Lister
	Filter   directory.Filter
	Admin    bool
	Identity func() types.Identity
	// NewRoom builds the room; onChange must be wired to the room's change hook.
	NewRoom func(onChange func(room.Change)) (Room, error)
	// Thread is selected on start when non-zero.
	Thread   int64
	Notify   bool
	OnSelect func(id int64)
	Logger   *slog.Logger
}

// Run starts the chat UI and blocks until it exits.
func Run(ctx context.Context, opts Options) error {
	var program atomic.Pointer[tea.Program]
	r, err := opts.NewRoom(func(change room.Change) {
		if p := program.Load(); p != nil {
			p.Send(roomChangedMsg{change: change})
		}
	})
	if err != nil {
		return err
	}
	model := NewModel(ctx, opts, r)
	p := tea.NewProgram(model,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithReportFocus(),
		tea.WithContext(ctx),
	)
	program.Store(p)
	_, err = p.Run()
	model.Close()
	return err
}

type focusArea int

const (
	focusThreads focusArea = iota
	focusInput
)

// Model implements the chat UI.
type Model struct {
	ctx    context.Context
	opts   Options
	room   Room
	logger *slog.Logger

	threads     []types.Thread
	threadIndex int
	selectedID  int64
	focus       focusArea

	viewport    viewport.Model
	input       textarea.Model
	spinner     spinner.Model
	zoneManager *zone.Manager

	loadingThreads bool
	selecting      bool
	status         string
	statusErr      bool
	// closePrompt is non-empty while the close confirmation is shown.
	closePrompt room.Prompt

	width         int
	height        int
	windowFocused bool
	seenMessages  int
	now           func() time.Time
}

// NewModel creates a chat model. Threads load in Init.
func NewModel(ctx context.Context, opts Options, r Room) *Model {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.Identity == nil {
		opts.Identity = func() types.Identity { return types.Identity{} }
	}

	spin := spinner.New(spinner.WithSpinner(spinner.Dot))
	spin.Style = spinnerStyle

	return &Model{
		ctx:           ctx,
		opts:          opts,
		room:          r,
		logger:        logger,
		viewport:      viewport.New(0, 0),
		input:         newInputModel(),
		spinner:       spin,
		zoneManager:   zone.New(),
		focus:         focusThreads,
		windowFocused: true,
		now:           time.Now,
	}
}

func (m *Model) Init() tea.Cmd {
	m.loadingThreads = true
	m.seedThreads()
	cmds := []tea.Cmd{m.spinner.Tick, m.loadThreadsCmd()}
	if m.opts.Thread > 0 {
		m.selecting = true
		m.selectedID = m.opts.Thread
		cmds = append(cmds, m.selectCmd(m.opts.Thread))
	}
	return tea.Batch(cmds...)
}

// seedThreads shows the last fetched listing until the network load lands.
func (m *Model) seedThreads() {
	scope := db.ScopeMine
	if m.opts.Admin {
		scope = db.ScopeAdmin
	}
	threads, err := m.opts.Lister.Cached(scope, m.opts.Filter)
	if err != nil {
		m.logger.Debug("thread cache unavailable", "err", err)
		return
	}
	if len(threads) > 0 {
		m.threads = threads
	}
}

// Close releases the room's realtime channel.
func (m *Model) Close() {
	if m.room != nil {
		_ = m.room.Close()
	}
	if m.zoneManager != nil {
		m.zoneManager.Close()
	}
}
