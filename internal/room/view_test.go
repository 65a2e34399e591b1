package room

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/campusdesk/desk/internal/api"
	"github.com/campusdesk/desk/internal/realtime"
	"github.com/campusdesk/desk/internal/types"
)

type fakeAPI struct {
	mu        sync.Mutex
	details   map[int64]types.ThreadDetail
	history   map[int64][]types.Message
	detailErr map[int64]error
	histErr   map[int64]error
	gate      map[int64]chan struct{}
	closed    []types.StatusTag
	closeErr  error
	closeGate chan struct{}
	reactions []types.ReactionType
	reactErr  error
	settings  []types.Visibility
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		details:   map[int64]types.ThreadDetail{},
		history:   map[int64][]types.Message{},
		detailErr: map[int64]error{},
		histErr:   map[int64]error{},
		gate:      map[int64]chan struct{}{},
	}
}

func (f *fakeAPI) GetThreadDetail(ctx context.Context, id int64, scope api.DetailScope) (types.ThreadDetail, error) {
	f.mu.Lock()
	gate := f.gate[id]
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.detailErr[id]; err != nil {
		return types.ThreadDetail{}, err
	}
	return f.details[id], nil
}

func (f *fakeAPI) GetMessageHistory(ctx context.Context, id int64, size int) ([]types.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.histErr[id]; err != nil {
		return nil, err
	}
	return f.history[id], nil
}

func (f *fakeAPI) CloseThread(ctx context.Context, id int64, tag types.StatusTag) error {
	if f.closeGate != nil {
		<-f.closeGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closeErr != nil {
		return f.closeErr
	}
	f.closed = append(f.closed, tag)
	detail := f.details[id]
	detail.Tag = tag
	f.details[id] = detail
	return nil
}

func (f *fakeAPI) UpdateThreadSetting(ctx context.Context, id int64, visibility types.Visibility) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settings = append(f.settings, visibility)
	return nil
}

// ToggleReaction mimics the server: the same reaction twice clears it.
func (f *fakeAPI) ToggleReaction(ctx context.Context, id int64, reaction types.ReactionType) (api.ReactionCounts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactions = append(f.reactions, reaction)
	if f.reactErr != nil {
		return api.ReactionCounts{}, f.reactErr
	}
	detail := f.details[id]
	r := &detail.Reactions
	switch {
	case r.Mine == reaction:
		adjust(r, reaction, -1)
		r.Mine = types.ReactionNone
	default:
		if r.Mine != types.ReactionNone {
			adjust(r, r.Mine, -1)
		}
		adjust(r, reaction, 1)
		r.Mine = reaction
	}
	f.details[id] = detail
	return api.ReactionCounts{ChatRoomID: id, LikeCount: r.LikeCount, DislikeCount: r.DislikeCount}, nil
}

func adjust(r *types.ReactionState, reaction types.ReactionType, delta int) {
	if reaction == types.ReactionLike {
		r.LikeCount += delta
	} else {
		r.DislikeCount += delta
	}
}

// fakeChannel echoes published text back through the handler as the
// server would, attributed to sender.
type fakeChannel struct {
	threadID int64
	sender   int64
	handler  func(types.Message)
	onState  func(realtime.State)

	mu     sync.Mutex
	state  realtime.State
	closed bool
}

func (c *fakeChannel) Open(ctx context.Context) error {
	c.setState(realtime.Connected)
	return nil
}

func (c *fakeChannel) Publish(text string) error {
	if text == "" {
		return realtime.ErrEmptyMessage
	}
	if !c.CanPublish() {
		return realtime.ErrNotConnected
	}
	c.handler(types.Message{Text: text, Sender: c.sender, CreatedAt: types.Timestamp{Time: time.Now()}})
	return nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.setState(realtime.Disconnected)
	return nil
}

func (c *fakeChannel) State() realtime.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *fakeChannel) CanPublish() bool { return c.State() == realtime.Connected }

func (c *fakeChannel) ThreadID() int64 { return c.threadID }

func (c *fakeChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeChannel) setState(state realtime.State) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
	if c.onState != nil {
		c.onState(state)
	}
}

type channelLog struct {
	mu       sync.Mutex
	sender   int64
	channels []*fakeChannel
}

func (l *channelLog) factory(threadID int64, handler func(types.Message), onState func(realtime.State)) (Channel, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch := &fakeChannel{threadID: threadID, sender: l.sender, handler: handler, onState: onState}
	l.channels = append(l.channels, ch)
	return ch, nil
}

func (l *channelLog) get(i int) *fakeChannel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.channels[i]
}

func at(day, hour int) types.Timestamp {
	return types.Timestamp{Time: time.Date(2025, 3, day, hour, 0, 0, 0, time.Local)}
}

func newView(t *testing.T, fake *fakeAPI, channels *channelLog) *View {
	t.Helper()
	view := New(Options{
		API:         fake,
		NewChannel:  channels.factory,
		Identity:    func() types.Identity { return types.Identity{ID: "42", Name: "me"} },
		HistorySize: 100,
	})
	t.Cleanup(func() { _ = view.Close() })
	return view
}

func TestSelectLoadsDetailHistoryAndChannel(t *testing.T) {
	fake := newFakeAPI()
	fake.details[1] = types.ThreadDetail{Thread: types.Thread{ID: 1, Title: "수강신청", Tag: types.TagInProgress}}
	fake.history[1] = []types.Message{
		{Text: "second", Sender: 7, CreatedAt: at(2, 11)},
		{Text: "first", Sender: 42, CreatedAt: at(2, 10)},
	}
	view := newView(t, fake, &channelLog{sender: 42})

	if err := view.Select(context.Background(), 1); err != nil {
		t.Fatalf("select: %v", err)
	}
	snap := view.Snapshot()
	if snap.Detail == nil || snap.Detail.Title != "수강신청" {
		t.Fatalf("detail: %+v", snap.Detail)
	}
	if len(snap.Messages) != 2 || snap.Messages[0].Text != "first" {
		t.Fatalf("history not ordered: %+v", snap.Messages)
	}
	if snap.Connection != realtime.Connected || !snap.CanSend {
		t.Fatalf("channel not connected: %v", snap.Connection)
	}
}

func TestDetailFailureDoesNotBlockHistory(t *testing.T) {
	fake := newFakeAPI()
	forbidden := &api.APIError{Status: 403, Message: "채팅방에 접근할 권한이 없습니다."}
	fake.detailErr[1] = forbidden
	fake.history[1] = []types.Message{{Text: "hello", Sender: 7, CreatedAt: at(2, 10)}}
	view := newView(t, fake, &channelLog{})

	err := view.Select(context.Background(), 1)
	if !errors.Is(err, forbidden) {
		t.Fatalf("expected joined detail error, got %v", err)
	}
	snap := view.Snapshot()
	if snap.DetailErr == nil || snap.HistoryErr != nil {
		t.Fatalf("errors: detail=%v history=%v", snap.DetailErr, snap.HistoryErr)
	}
	if len(snap.Messages) != 1 {
		t.Fatalf("history should load despite detail failure: %+v", snap.Messages)
	}
}

func TestSwitchingThreadsClosesPreviousChannel(t *testing.T) {
	fake := newFakeAPI()
	fake.details[1] = types.ThreadDetail{Thread: types.Thread{ID: 1}}
	fake.details[2] = types.ThreadDetail{Thread: types.Thread{ID: 2}}
	channels := &channelLog{sender: 7}
	view := newView(t, fake, channels)
	ctx := context.Background()

	if err := view.Select(ctx, 1); err != nil {
		t.Fatalf("select 1: %v", err)
	}
	first := channels.get(0)
	if err := view.Select(ctx, 2); err != nil {
		t.Fatalf("select 2: %v", err)
	}
	if !first.isClosed() {
		t.Fatal("previous channel still open")
	}

	// A late frame from the old channel must not reach the new timeline.
	first.handler(types.Message{Text: "stale", Sender: 7, CreatedAt: at(3, 9)})
	if got := view.Snapshot(); len(got.Messages) != 0 || got.ThreadID != 2 {
		t.Fatalf("stale frame leaked: %+v", got)
	}
}

func TestStaleDetailIsDiscarded(t *testing.T) {
	fake := newFakeAPI()
	fake.details[1] = types.ThreadDetail{Thread: types.Thread{ID: 1, Title: "old"}}
	fake.details[2] = types.ThreadDetail{Thread: types.Thread{ID: 2, Title: "new"}}
	gate := make(chan struct{})
	fake.gate[1] = gate
	view := newView(t, fake, &channelLog{})
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = view.Select(ctx, 1)
	}()
	// Wait for the first selection to register before switching.
	deadline := time.Now().Add(2 * time.Second)
	for view.Snapshot().ThreadID != 1 {
		if time.Now().After(deadline) {
			t.Fatal("first select never started")
		}
		time.Sleep(time.Millisecond)
	}
	if err := view.Select(ctx, 2); err != nil {
		t.Fatalf("select 2: %v", err)
	}
	close(gate)
	<-done

	snap := view.Snapshot()
	if snap.ThreadID != 2 || snap.Detail == nil || snap.Detail.Title != "new" {
		t.Fatalf("stale detail applied: %+v", snap.Detail)
	}
}

func TestSentMessageRendersAsMine(t *testing.T) {
	fake := newFakeAPI()
	fake.details[1] = types.ThreadDetail{Thread: types.Thread{ID: 1}}
	view := newView(t, fake, &channelLog{sender: 42})
	if err := view.Select(context.Background(), 1); err != nil {
		t.Fatalf("select: %v", err)
	}

	if err := view.Send("안녕하세요"); err != nil {
		t.Fatalf("send: %v", err)
	}
	groups := view.Groups(time.Local, time.Now())
	if len(groups) != 1 || len(groups[0].Entries) != 1 {
		t.Fatalf("groups: %+v", groups)
	}
	entry := groups[0].Entries[0]
	if !entry.Mine || entry.Text != "안녕하세요" || entry.ShowSender {
		t.Fatalf("entry: %+v", entry)
	}
	if groups[0].Label != "오늘" {
		t.Fatalf("label: %q", groups[0].Label)
	}
}

func TestSendWithoutSelection(t *testing.T) {
	view := newView(t, newFakeAPI(), &channelLog{})
	if err := view.Send("hi"); !errors.Is(err, realtime.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if view.CanSend() {
		t.Fatal("CanSend without a channel")
	}
}

func TestReactionToggleTwiceRestoresCounts(t *testing.T) {
	fake := newFakeAPI()
	fake.details[1] = types.ThreadDetail{
		Thread:    types.Thread{ID: 1},
		Reactions: types.ReactionState{LikeCount: 3, DislikeCount: 1},
	}
	view := newView(t, fake, &channelLog{})
	ctx := context.Background()
	if err := view.Select(ctx, 1); err != nil {
		t.Fatalf("select: %v", err)
	}

	if err := view.ToggleReaction(ctx, types.ReactionLike); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	got := view.Snapshot().Detail.Reactions
	if got.Mine != types.ReactionLike || got.LikeCount != 4 {
		t.Fatalf("after like: %+v", got)
	}
	if err := view.ToggleReaction(ctx, types.ReactionLike); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	got = view.Snapshot().Detail.Reactions
	want := types.ReactionState{LikeCount: 3, DislikeCount: 1, Mine: types.ReactionNone}
	if got != want {
		t.Fatalf("after second like: got %+v want %+v", got, want)
	}
}

func TestReactionFailureRollsBack(t *testing.T) {
	fake := newFakeAPI()
	fake.details[1] = types.ThreadDetail{
		Thread:    types.Thread{ID: 1},
		Reactions: types.ReactionState{LikeCount: 2, Mine: types.ReactionLike},
	}
	fake.reactErr = &api.APIError{Status: 500, Fallback: "반응 처리 실패"}
	view := newView(t, fake, &channelLog{})
	ctx := context.Background()
	if err := view.Select(ctx, 1); err != nil {
		t.Fatalf("select: %v", err)
	}

	if err := view.ToggleReaction(ctx, types.ReactionDislike); err == nil {
		t.Fatal("expected error")
	}
	got := view.Snapshot().Detail.Reactions
	want := types.ReactionState{LikeCount: 2, Mine: types.ReactionLike}
	if got != want {
		t.Fatalf("rollback: got %+v want %+v", got, want)
	}
}

func TestCloseThreadPromptsAndRefreshes(t *testing.T) {
	tests := []struct {
		name   string
		tag    types.StatusTag
		prompt Prompt
	}{
		{name: "in progress asks to resolve", tag: types.TagInProgress, prompt: PromptResolve},
		{name: "other tags ask to close", tag: types.TagAdopt, prompt: PromptClose},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeAPI()
			fake.details[1] = types.ThreadDetail{Thread: types.Thread{ID: 1, Tag: tt.tag}}
			view := newView(t, fake, &channelLog{})
			ctx := context.Background()
			if err := view.Select(ctx, 1); err != nil {
				t.Fatalf("select: %v", err)
			}

			var asked Prompt
			err := view.CloseThread(ctx, types.TagEnd, func(p Prompt) bool {
				asked = p
				return true
			})
			if err != nil {
				t.Fatalf("close: %v", err)
			}
			if asked != tt.prompt {
				t.Fatalf("prompt: got %q want %q", asked, tt.prompt)
			}
			if got := view.Snapshot().Detail.Tag; got != types.TagEnd {
				t.Fatalf("detail not refreshed: %q", got)
			}
		})
	}
}

func TestCloseThreadDeclined(t *testing.T) {
	fake := newFakeAPI()
	fake.details[1] = types.ThreadDetail{Thread: types.Thread{ID: 1, Tag: types.TagInProgress}}
	view := newView(t, fake, &channelLog{})
	ctx := context.Background()
	if err := view.Select(ctx, 1); err != nil {
		t.Fatalf("select: %v", err)
	}

	err := view.CloseThread(ctx, types.TagReject, func(Prompt) bool { return false })
	if !errors.Is(err, ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if len(fake.closed) != 0 {
		t.Fatalf("declined close reached the server: %v", fake.closed)
	}
}

func TestCloseThreadRejectsSecondCallInFlight(t *testing.T) {
	fake := newFakeAPI()
	fake.details[1] = types.ThreadDetail{Thread: types.Thread{ID: 1, Tag: types.TagInProgress}}
	fake.closeGate = make(chan struct{})
	view := newView(t, fake, &channelLog{})
	ctx := context.Background()
	if err := view.Select(ctx, 1); err != nil {
		t.Fatalf("select: %v", err)
	}

	first := make(chan error, 1)
	go func() { first <- view.CloseThread(ctx, types.TagAdopt, nil) }()
	deadline := time.Now().Add(2 * time.Second)
	for !view.Closing() {
		if time.Now().After(deadline) {
			t.Fatal("first close never started")
		}
		time.Sleep(time.Millisecond)
	}
	if err := view.CloseThread(ctx, types.TagAdopt, nil); !errors.Is(err, ErrInFlight) {
		t.Fatalf("expected ErrInFlight, got %v", err)
	}
	close(fake.closeGate)
	if err := <-first; err != nil {
		t.Fatalf("first close: %v", err)
	}
	if view.Closing() {
		t.Fatal("closing flag not cleared")
	}
}

func TestCloseThreadValidatesTag(t *testing.T) {
	view := newView(t, newFakeAPI(), &channelLog{})
	var validation *api.ValidationError
	if err := view.CloseThread(context.Background(), types.TagInProgress, nil); !errors.As(err, &validation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := view.CloseThread(context.Background(), types.TagEnd, nil); !errors.Is(err, ErrNoThread) {
		t.Fatalf("expected ErrNoThread, got %v", err)
	}
}

func TestSetVisibility(t *testing.T) {
	fake := newFakeAPI()
	fake.details[1] = types.ThreadDetail{Thread: types.Thread{ID: 1, Tag: types.TagAdopt}}
	view := newView(t, fake, &channelLog{})
	ctx := context.Background()
	if err := view.SetVisibility(ctx, types.VisibilityAnonymous); !errors.Is(err, ErrNoThread) {
		t.Fatalf("expected ErrNoThread, got %v", err)
	}
	if err := view.Select(ctx, 1); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := view.SetVisibility(ctx, types.VisibilityAnonymous); err != nil {
		t.Fatalf("set visibility: %v", err)
	}
	if len(fake.settings) != 1 || fake.settings[0] != types.VisibilityAnonymous {
		t.Fatalf("settings: %v", fake.settings)
	}
}
