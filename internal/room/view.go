// Package room drives the chat view of one selected thread: its detail
// snapshot, message timeline, realtime channel and the actions on it.
package room

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/campusdesk/desk/internal/api"
	"github.com/campusdesk/desk/internal/realtime"
	"github.com/campusdesk/desk/internal/timeline"
	"github.com/campusdesk/desk/internal/types"
)

var (
	// ErrCancelled is returned when the user declines a confirmation.
	ErrCancelled = errors.New("cancelled")
	// ErrInFlight is returned while the same action is still running.
	ErrInFlight = errors.New("already in progress")
	// ErrNoThread is returned by actions before a thread is selected.
	ErrNoThread = errors.New("no thread selected")
)

// Prompt is a confirmation question shown before closing a thread.
type Prompt string

const (
	PromptResolve Prompt = "문의 내용을 어떻게 처리하시겠습니까?"
	PromptClose   Prompt = "종료하시겠습니까?"
)

// API is the subset of the REST client the view uses.
type API interface {
	GetThreadDetail(ctx context.Context, id int64, scope api.DetailScope) (types.ThreadDetail, error)
	GetMessageHistory(ctx context.Context, id int64, size int) ([]types.Message, error)
	CloseThread(ctx context.Context, id int64, tag types.StatusTag) error
	UpdateThreadSetting(ctx context.Context, id int64, visibility types.Visibility) error
	ToggleReaction(ctx context.Context, id int64, reaction types.ReactionType) (api.ReactionCounts, error)
}

// Channel is the realtime subscription of the selected thread.
type Channel interface {
	Open(ctx context.Context) error
	Publish(text string) error
	Close() error
	State() realtime.State
	CanPublish() bool
	ThreadID() int64
}

// ChannelFactory builds an unopened channel for threadID.
type ChannelFactory func(threadID int64, handler func(types.Message), onState func(realtime.State)) (Channel, error)

// ChangeKind says which part of the view changed.
type ChangeKind int

const (
	ChangeSelected ChangeKind = iota
	ChangeDetail
	ChangeHistory
	ChangeMessage
	ChangeConnection
	ChangeReaction
)

// Change is reported to Options.OnChange.
type Change struct {
	Kind     ChangeKind
	ThreadID int64
}

// Options configures a View.
type Options struct {
	API         API
	NewChannel  ChannelFactory
	Identity    func() types.Identity
	Scope       api.DetailScope
	HistorySize int
	Logger      *slog.Logger
	// OnChange is called without the view's lock held.
	OnChange func(Change)
}

// View is safe for concurrent use; realtime handlers run on the channel's
// receive goroutine.
type View struct {
	opts   Options
	logger *slog.Logger

	mu         sync.Mutex
	epoch      uint64
	threadID   int64
	detail     *types.ThreadDetail
	detailErr  error
	historyErr error
	timeline   *timeline.Timeline
	channel    Channel
	connState  realtime.State
	closing    bool
	reacting   bool
}

// New returns a view with nothing selected.
func New(opts Options) *View {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.Identity == nil {
		opts.Identity = func() types.Identity { return types.Identity{} }
	}
	return &View{opts: opts, logger: logger, timeline: timeline.New()}
}

// Select switches to thread id: the previous channel is closed first, then
// detail, history and the new channel load concurrently. Results that
// arrive after another Select are dropped. The returned error joins the
// detail and history failures, which are also kept in the snapshot.
func (v *View) Select(ctx context.Context, id int64) error {
	v.mu.Lock()
	v.epoch++
	epoch := v.epoch
	previous := v.channel
	v.channel = nil
	v.threadID = id
	v.detail = nil
	v.detailErr = nil
	v.historyErr = nil
	v.connState = realtime.Disconnected
	tl := timeline.New()
	v.timeline = tl
	v.mu.Unlock()
	v.notify(ChangeSelected, id)

	if previous != nil {
		if err := previous.Close(); err != nil {
			v.logger.Warn("close previous channel", "thread", previous.ThreadID(), "err", err)
		}
	}

	channel := v.newChannel(epoch, id, tl)

	var wg sync.WaitGroup
	var detailErr, historyErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		detailErr = v.loadDetail(ctx, epoch, id)
	}()
	go func() {
		defer wg.Done()
		historyErr = v.loadHistory(ctx, epoch, id, tl)
	}()
	if channel != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := channel.Open(ctx); err != nil {
				v.logger.Warn("realtime open failed", "thread", id, "err", err)
			}
		}()
	}
	wg.Wait()
	return errors.Join(detailErr, historyErr)
}

func (v *View) newChannel(epoch uint64, id int64, tl *timeline.Timeline) Channel {
	if v.opts.NewChannel == nil {
		return nil
	}
	handler := func(msg types.Message) {
		if !v.current(epoch) {
			return
		}
		tl.Append(msg)
		v.notify(ChangeMessage, id)
	}
	onState := func(state realtime.State) {
		v.mu.Lock()
		if v.epoch != epoch {
			v.mu.Unlock()
			return
		}
		v.connState = state
		v.mu.Unlock()
		v.notify(ChangeConnection, id)
	}
	channel, err := v.opts.NewChannel(id, handler, onState)
	if err != nil {
		v.logger.Warn("realtime channel unavailable", "thread", id, "err", err)
		return nil
	}

	v.mu.Lock()
	if v.epoch != epoch {
		v.mu.Unlock()
		_ = channel.Close()
		return nil
	}
	v.channel = channel
	v.mu.Unlock()
	return channel
}

func (v *View) loadDetail(ctx context.Context, epoch uint64, id int64) error {
	detail, err := v.opts.API.GetThreadDetail(ctx, id, v.opts.Scope)
	v.mu.Lock()
	if v.epoch != epoch {
		v.mu.Unlock()
		return nil
	}
	if err != nil {
		v.detailErr = err
	} else {
		v.detail = &detail
		v.detailErr = nil
	}
	v.mu.Unlock()
	v.notify(ChangeDetail, id)
	return err
}

func (v *View) loadHistory(ctx context.Context, epoch uint64, id int64, tl *timeline.Timeline) error {
	messages, err := v.opts.API.GetMessageHistory(ctx, id, v.opts.HistorySize)
	v.mu.Lock()
	if v.epoch != epoch {
		v.mu.Unlock()
		return nil
	}
	if err != nil {
		v.historyErr = err
	} else {
		v.historyErr = nil
	}
	v.mu.Unlock()
	if err == nil {
		tl.SetHistory(messages)
	}
	v.notify(ChangeHistory, id)
	return err
}

// Refresh reloads the detail snapshot of the selected thread.
func (v *View) Refresh(ctx context.Context) error {
	v.mu.Lock()
	epoch, id := v.epoch, v.threadID
	v.mu.Unlock()
	if id == 0 {
		return ErrNoThread
	}
	return v.loadDetail(ctx, epoch, id)
}

// Send publishes text on the selected thread's channel. The message shows
// up in the timeline when the server echoes it back.
func (v *View) Send(text string) error {
	v.mu.Lock()
	channel := v.channel
	v.mu.Unlock()
	if channel == nil {
		return realtime.ErrNotConnected
	}
	return channel.Publish(text)
}

// CanSend reports whether Send would reach the network.
func (v *View) CanSend() bool {
	v.mu.Lock()
	channel := v.channel
	v.mu.Unlock()
	return channel != nil && channel.CanPublish()
}

// ToggleReaction sets the caller's reaction optimistically. The server's
// counts replace local ones; on failure the reaction is rolled back.
func (v *View) ToggleReaction(ctx context.Context, reaction types.ReactionType) error {
	if reaction != types.ReactionLike && reaction != types.ReactionDislike {
		return &api.ValidationError{Field: "reactionType", Message: "공감 종류는 LIKE 또는 DISLIKE 여야 합니다."}
	}
	v.mu.Lock()
	if v.detail == nil {
		v.mu.Unlock()
		return ErrNoThread
	}
	if v.reacting {
		v.mu.Unlock()
		return ErrInFlight
	}
	previous := v.detail.Reactions.Mine
	v.detail.Reactions.Mine = v.detail.Reactions.Toggle(reaction)
	v.reacting = true
	epoch, id := v.epoch, v.threadID
	v.mu.Unlock()
	v.notify(ChangeReaction, id)

	counts, err := v.opts.API.ToggleReaction(ctx, id, reaction)

	v.mu.Lock()
	v.reacting = false
	if v.epoch != epoch || v.detail == nil {
		v.mu.Unlock()
		return err
	}
	if err != nil {
		v.detail.Reactions.Mine = previous
	} else {
		v.detail.Reactions.LikeCount = counts.LikeCount
		v.detail.Reactions.DislikeCount = counts.DislikeCount
	}
	v.mu.Unlock()
	v.notify(ChangeReaction, id)
	return err
}

// ClosePrompt is the question CloseThread will ask for the selected thread.
func (v *View) ClosePrompt() Prompt {
	v.mu.Lock()
	defer v.mu.Unlock()
	return closePrompt(v.detail)
}

func closePrompt(detail *types.ThreadDetail) Prompt {
	if detail != nil && detail.Tag == types.TagInProgress {
		return PromptResolve
	}
	return PromptClose
}

// CloseThread asks confirm, then moves the thread to tag and refreshes the
// detail. A nil confirm skips the question.
func (v *View) CloseThread(ctx context.Context, tag types.StatusTag, confirm func(Prompt) bool) error {
	if !tag.Closing() {
		return &api.ValidationError{Field: "tag", Message: fmt.Sprintf("종료 상태는 ADOPT, REJECT, END 중 하나여야 합니다: %q", tag)}
	}
	v.mu.Lock()
	if v.threadID == 0 {
		v.mu.Unlock()
		return ErrNoThread
	}
	if v.closing {
		v.mu.Unlock()
		return ErrInFlight
	}
	v.closing = true
	prompt := closePrompt(v.detail)
	epoch, id := v.epoch, v.threadID
	v.mu.Unlock()
	defer func() {
		v.mu.Lock()
		v.closing = false
		v.mu.Unlock()
	}()

	if confirm != nil && !confirm(prompt) {
		return ErrCancelled
	}
	if err := v.opts.API.CloseThread(ctx, id, tag); err != nil {
		return err
	}

	if err := v.loadDetail(ctx, epoch, id); err != nil {
		v.mu.Lock()
		if v.epoch == epoch && v.detail != nil {
			v.detail.Tag = tag
		}
		v.mu.Unlock()
		v.logger.Warn("refresh after close failed", "thread", id, "err", err)
	}
	return nil
}

// Closing reports whether a close is in flight.
func (v *View) Closing() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closing
}

// SetVisibility publishes or hides the selected thread on the board.
func (v *View) SetVisibility(ctx context.Context, visibility types.Visibility) error {
	v.mu.Lock()
	id := v.threadID
	v.mu.Unlock()
	if id == 0 {
		return ErrNoThread
	}
	return v.opts.API.UpdateThreadSetting(ctx, id, visibility)
}

// Snapshot is a consistent copy of the view state.
type Snapshot struct {
	ThreadID   int64
	Detail     *types.ThreadDetail
	DetailErr  error
	HistoryErr error
	Loaded     bool
	Messages   []types.Message
	Connection realtime.State
	CanSend    bool
	Closing    bool
}

// Snapshot returns the current state.
func (v *View) Snapshot() Snapshot {
	v.mu.Lock()
	snap := Snapshot{
		ThreadID:   v.threadID,
		DetailErr:  v.detailErr,
		HistoryErr: v.historyErr,
		Connection: v.connState,
		Closing:    v.closing,
	}
	if v.detail != nil {
		detail := *v.detail
		snap.Detail = &detail
	}
	tl := v.timeline
	channel := v.channel
	v.mu.Unlock()

	snap.Messages = tl.Messages()
	snap.Loaded = tl.Loaded()
	snap.CanSend = channel != nil && channel.CanPublish()
	return snap
}

// Groups returns the timeline by day with "mine" resolved for the current identity.
func (v *View) Groups(loc *time.Location, now time.Time) []timeline.Group {
	v.mu.Lock()
	tl := v.timeline
	v.mu.Unlock()
	return tl.Groups(v.opts.Identity().ID, loc, now)
}

// Close releases the realtime channel. Pending loads are discarded.
func (v *View) Close() error {
	v.mu.Lock()
	v.epoch++
	channel := v.channel
	v.channel = nil
	v.connState = realtime.Disconnected
	v.mu.Unlock()
	if channel == nil {
		return nil
	}
	return channel.Close()
}

func (v *View) current(epoch uint64) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.epoch == epoch
}

func (v *View) notify(kind ChangeKind, id int64) {
	if v.opts.OnChange != nil {
		v.opts.OnChange(Change{Kind: kind, ThreadID: id})
	}
}
