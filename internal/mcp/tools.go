package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/campusdesk/desk/internal/api"
	"github.com/campusdesk/desk/internal/directory"
	"github.com/campusdesk/desk/internal/realtime"
	"github.com/campusdesk/desk/internal/room"
	"github.com/campusdesk/desk/internal/session"
	"github.com/campusdesk/desk/internal/timeline"
	"github.com/campusdesk/desk/internal/types"
	mcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

type ToolContext struct {
	API           room.API
	Directory     *directory.Directory
	Channels      room.ChannelFactory
	Identity      func() types.Identity
	Authenticated func() bool
	HistorySize   int
	Logger        *slog.Logger

	// RefreshIdentity, when set, reloads the profile before a timeline is
	// built so tokens carrying only sub still mark the user's messages.
	RefreshIdentity func(context.Context)
}

type threadsArgs struct {
	Admin bool   `json:"admin,omitempty" jsonschema:"List every user's threads (admin accounts only)"`
	Tag   string `json:"tag,omitempty" jsonschema:"Filter by tag: IN_PROGRESS, ADOPT, REJECT or END"`
	Order string `json:"order,omitempty" jsonschema:"RECENT (default) or OLDEST"`
	Match string `json:"match,omitempty" jsonschema:"Glob matched against titles, e.g. *수강*"`
	Page  int    `json:"page,omitempty" jsonschema:"Admin page, 0-based"`
	Size  int    `json:"size,omitempty" jsonschema:"Admin page size (default: 10)"`
}

type threadArgs struct {
	ThreadID int64 `json:"thread_id" jsonschema:"Thread id"`
	Size     int   `json:"size,omitempty" jsonschema:"Number of history messages (default from config)"`
}

type sendArgs struct {
	ThreadID int64  `json:"thread_id" jsonschema:"Thread id"`
	Message  string `json:"message" jsonschema:"Message text"`
}

type reactArgs struct {
	ThreadID int64  `json:"thread_id" jsonschema:"Thread id"`
	Reaction string `json:"reaction" jsonschema:"like or dislike. Repeating your current reaction clears it."`
}

// RegisterTools registers the desk tools.
func RegisterTools(server *mcp.Server, ctx *ToolContext) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "desk_threads",
		Description: "List help desk inquiry threads: your own, or every user's with admin.",
	}, func(c context.Context, _ *mcp.CallToolRequest, args threadsArgs) (*mcp.CallToolResult, any, error) {
		return handleThreads(c, ctx, args), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "desk_thread",
		Description: "Show one thread with its status, reactions and recent messages.",
	}, func(c context.Context, _ *mcp.CallToolRequest, args threadArgs) (*mcp.CallToolResult, any, error) {
		return handleThread(c, ctx, args), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "desk_send",
		Description: "Send a chat message to a thread over the realtime channel.",
	}, func(c context.Context, _ *mcp.CallToolRequest, args sendArgs) (*mcp.CallToolResult, any, error) {
		return handleSend(c, ctx, args), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "desk_react",
		Description: "Like or dislike a thread.",
	}, func(c context.Context, _ *mcp.CallToolRequest, args reactArgs) (*mcp.CallToolResult, any, error) {
		return handleReact(c, ctx, args), nil, nil
	})
}

func (t *ToolContext) loggedIn() bool {
	return t.Authenticated == nil || t.Authenticated()
}

func (t *ToolContext) newView(c context.Context) *room.View {
	if t.RefreshIdentity != nil {
		t.RefreshIdentity(c)
	}
	scope := api.ScopeMine
	if t.Identity != nil && t.Identity().IsAdmin {
		scope = api.ScopeAny
	}
	return room.New(room.Options{
		API:         t.API,
		Identity:    t.Identity,
		Scope:       scope,
		HistorySize: t.HistorySize,
		Logger:      t.Logger,
	})
}

func handleThreads(c context.Context, ctx *ToolContext, args threadsArgs) *mcp.CallToolResult {
	if !ctx.loggedIn() {
		return toolError(session.ErrNotAuthenticated.Error())
	}
	filter, err := directory.NewFilter(args.Tag, args.Order, args.Match)
	if err != nil {
		return toolError(err.Error())
	}

	var threads []types.Thread
	footer := ""
	if args.Admin {
		page, err := ctx.Directory.ListAdmin(c, filter, args.Page, args.Size)
		if err != nil {
			return toolError(api.UserMessage(err))
		}
		threads = page.Threads
		if page.TotalPages > 0 {
			footer = fmt.Sprintf("\n\npage %d/%d", page.Page+1, page.TotalPages)
		}
	} else {
		threads, err = ctx.Directory.ListMine(c, filter)
		if err != nil {
			return toolError(api.UserMessage(err))
		}
	}

	if len(threads) == 0 {
		return toolResult("No threads"+footer, false)
	}
	lines := make([]string, 0, len(threads))
	for _, thread := range threads {
		lines = append(lines, formatThread(thread))
	}
	return toolResult(fmt.Sprintf("Threads (%d):\n\n%s%s", len(threads), strings.Join(lines, "\n"), footer), false)
}

func handleThread(c context.Context, ctx *ToolContext, args threadArgs) *mcp.CallToolResult {
	if !ctx.loggedIn() {
		return toolError(session.ErrNotAuthenticated.Error())
	}
	if args.ThreadID <= 0 {
		return toolError("Error: thread_id is required")
	}
	if args.Size > 0 {
		copied := *ctx
		copied.HistorySize = args.Size
		ctx = &copied
	}

	view := ctx.newView(c)
	defer view.Close()
	_ = view.Select(c, args.ThreadID)
	snap := view.Snapshot()
	if snap.DetailErr != nil && snap.HistoryErr != nil {
		return toolError(api.UserMessage(snap.DetailErr))
	}

	var b strings.Builder
	if snap.Detail != nil {
		detail := snap.Detail
		fmt.Fprintf(&b, "#%d %s [%s]\n", detail.ID, detail.Title, detail.Tag)
		fmt.Fprintf(&b, "%s\n", formatReactions(detail.Reactions))
	} else {
		fmt.Fprintf(&b, "#%d (detail unavailable: %s)\n", args.ThreadID, api.UserMessage(snap.DetailErr))
	}
	b.WriteString("\n")
	if snap.HistoryErr != nil {
		fmt.Fprintf(&b, "History unavailable: %s\n", api.UserMessage(snap.HistoryErr))
		return toolResult(b.String(), false)
	}
	groups := view.Groups(time.Local, time.Now())
	if len(groups) == 0 {
		b.WriteString("No messages yet\n")
	}
	for _, group := range groups {
		fmt.Fprintf(&b, "-- %s --\n", group.Label)
		for _, entry := range group.Entries {
			b.WriteString(formatEntry(entry))
			b.WriteString("\n")
		}
	}
	return toolResult(b.String(), false)
}

func handleSend(c context.Context, ctx *ToolContext, args sendArgs) *mcp.CallToolResult {
	if !ctx.loggedIn() {
		return toolError(session.ErrNotAuthenticated.Error())
	}
	if args.ThreadID <= 0 {
		return toolError("Error: thread_id is required")
	}
	if strings.TrimSpace(args.Message) == "" {
		return toolError("Error: " + realtime.ErrEmptyMessage.Error())
	}
	if ctx.Channels == nil {
		return toolError("Error: realtime is not configured")
	}

	channel, err := ctx.Channels(args.ThreadID, nil, nil)
	if err != nil {
		return toolError(err.Error())
	}
	defer channel.Close()
	if err := channel.Open(c); err != nil {
		return toolError(fmt.Sprintf("Failed to connect: %v", err))
	}
	if err := channel.Publish(args.Message); err != nil {
		return toolError(err.Error())
	}
	return toolResult(fmt.Sprintf("Sent to #%d", args.ThreadID), false)
}

func handleReact(c context.Context, ctx *ToolContext, args reactArgs) *mcp.CallToolResult {
	if !ctx.loggedIn() {
		return toolError(session.ErrNotAuthenticated.Error())
	}
	reaction, err := types.ParseReactionType(args.Reaction)
	if err != nil {
		return toolError(err.Error())
	}

	view := ctx.newView(c)
	defer view.Close()
	_ = view.Select(c, args.ThreadID)
	if snap := view.Snapshot(); snap.DetailErr != nil {
		return toolError(api.UserMessage(snap.DetailErr))
	}
	if err := view.ToggleReaction(c, reaction); err != nil {
		if errors.Is(err, room.ErrInFlight) {
			return toolError("Error: a reaction is already being sent")
		}
		return toolError(api.UserMessage(err))
	}
	return toolResult(fmt.Sprintf("#%d %s", args.ThreadID, formatReactions(view.Snapshot().Detail.Reactions)), false)
}

func formatThread(thread types.Thread) string {
	line := fmt.Sprintf("[#%d] [%s] %s", thread.ID, thread.Tag, thread.Title)
	if thread.Author != "" {
		line += " · " + thread.Author
	}
	if !thread.CreatedAt.IsZero() {
		line += " · " + thread.CreatedAt.Local().Format("2006-01-02 15:04")
	}
	return line
}

func formatReactions(r types.ReactionState) string {
	text := fmt.Sprintf("likes %d, dislikes %d", r.LikeCount, r.DislikeCount)
	if r.Mine != types.ReactionNone {
		text += fmt.Sprintf(" (yours: %s)", r.Mine)
	}
	return text
}

func formatEntry(entry timeline.Entry) string {
	clock := "--:--"
	if !entry.Message.CreatedAt.IsZero() {
		clock = entry.Message.CreatedAt.Local().Format("15:04")
	}
	name := entry.Message.SenderName
	switch {
	case entry.Mine:
		name = "me"
	case name == "":
		name = fmt.Sprintf("user %d", entry.Message.Sender)
	}
	return fmt.Sprintf("%s %s: %s", clock, name, entry.Text)
}

func toolResult(text string, isError bool) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: isError,
	}
}

func toolError(text string) *mcp.CallToolResult {
	return toolResult(text, true)
}
