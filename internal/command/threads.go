package command

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/campusdesk/desk/internal/db"
	"github.com/campusdesk/desk/internal/directory"
	"github.com/campusdesk/desk/internal/room"
	"github.com/campusdesk/desk/internal/types"
	"github.com/spf13/cobra"
)

// NewThreadsCmd creates the threads command.
func NewThreadsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "threads",
		Short: "List inquiry threads",
		Long:  "List your inquiry threads, or every thread with --admin. --cached reads the last listing without a network call.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			admin, _ := cmd.Flags().GetBool("admin")
			tag, _ := cmd.Flags().GetString("tag")
			order, _ := cmd.Flags().GetString("order")
			match, _ := cmd.Flags().GetString("match")
			page, _ := cmd.Flags().GetInt("page")
			size, _ := cmd.Flags().GetInt("size")
			cached, _ := cmd.Flags().GetBool("cached")

			filter, err := directory.NewFilter(tag, order, match)
			if err != nil {
				return writeCommandError(cmd, err)
			}

			var threads []types.Thread
			var pageInfo *types.AdminThreadPage
			switch {
			case cached:
				if err = ctx.RequireLogin(); err != nil {
					break
				}
				scope := db.ScopeMine
				if admin {
					scope = db.ScopeAdmin
				}
				threads, err = ctx.Directory.Cached(scope, filter)
			case admin:
				if err = ctx.RequireLogin(); err != nil {
					break
				}
				var result types.AdminThreadPage
				result, err = ctx.Directory.ListAdmin(cmd.Context(), filter, page, size)
				threads = result.Threads
				pageInfo = &result
			default:
				if err = ctx.RequireLogin(); err != nil {
					break
				}
				threads, err = ctx.Directory.ListMine(cmd.Context(), filter)
			}
			if err != nil {
				return writeCommandError(cmd, err)
			}

			if ctx.JSONMode {
				if pageInfo != nil {
					return json.NewEncoder(cmd.OutOrStdout()).Encode(pageInfo)
				}
				if threads == nil {
					threads = []types.Thread{}
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(threads)
			}

			out := cmd.OutOrStdout()
			if len(threads) == 0 {
				fmt.Fprintln(out, "No threads")
			}
			now := time.Now()
			for _, thread := range threads {
				fmt.Fprintln(out, FormatThread(thread, now))
			}
			if pageInfo != nil && pageInfo.TotalPages > 0 {
				fmt.Fprintf(out, "%spage %d/%d%s\n", dim, pageInfo.Page+1, pageInfo.TotalPages, reset)
			}
			return nil
		},
	}

	cmd.Flags().Bool("admin", false, "list every thread (admin only)")
	cmd.Flags().String("tag", "", "filter by tag: IN_PROGRESS, ADOPT, REJECT, END")
	cmd.Flags().String("order", "RECENT", "date order: RECENT or OLDEST")
	cmd.Flags().String("match", "", "filter titles by glob, e.g. '*수강*'")
	cmd.Flags().Int("page", 0, "admin page (0-based)")
	cmd.Flags().Int("size", 0, "admin page size")
	cmd.Flags().Bool("cached", false, "show the last fetched listing")

	return cmd
}

// NewShowCmd creates the show command.
func NewShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a thread with its message history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			if err := ctx.RequireLogin(); err != nil {
				return writeCommandError(cmd, err)
			}
			id, err := parseThreadID(args[0])
			if err != nil {
				return writeCommandError(cmd, err)
			}
			anyThread, _ := cmd.Flags().GetBool("any")
			if size, _ := cmd.Flags().GetInt("size"); size > 0 {
				ctx.Config.HistorySize = size
			}
			ctx.RefreshIdentity(cmd.Context())

			view, err := ctx.NewView(ctx.DetailScope(anyThread), false, nil)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer view.Close()

			_ = view.Select(cmd.Context(), id)
			snap := view.Snapshot()
			if snap.DetailErr != nil && snap.HistoryErr != nil {
				return writeCommandError(cmd, errors.Join(snap.DetailErr, snap.HistoryErr))
			}
			ctx.RememberThread(id)

			if ctx.JSONMode {
				payload := map[string]any{
					"thread_id": id,
					"detail":    snap.Detail,
					"messages":  snap.Messages,
				}
				if snap.DetailErr != nil {
					payload["detail_error"] = snap.DetailErr.Error()
				}
				if snap.HistoryErr != nil {
					payload["history_error"] = snap.HistoryErr.Error()
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(payload)
			}

			out := cmd.OutOrStdout()
			printDetail(cmd, snap)
			lines := FormatGroups(view.Groups(time.Local, time.Now()))
			if snap.HistoryErr != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %s\n", snap.HistoryErr)
			} else if len(lines) == 0 {
				fmt.Fprintln(out, "No messages yet")
			}
			for _, line := range lines {
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}

	cmd.Flags().Bool("any", false, "read any visible thread, not just your own")
	cmd.Flags().Int("size", 0, "number of history messages (default from config)")

	return cmd
}

func printDetail(cmd *cobra.Command, snap room.Snapshot) {
	out := cmd.OutOrStdout()
	if snap.DetailErr != nil || snap.Detail == nil {
		if snap.DetailErr != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %s\n", snap.DetailErr)
		}
		fmt.Fprintf(out, "%s#%d%s\n", bold, snap.ThreadID, reset)
		return
	}
	detail := snap.Detail
	fmt.Fprintf(out, "%s#%d %s%s %s\n", bold, detail.ID, detail.Title, reset, formatTag(detail.Tag))
	var meta []string
	if detail.Author != "" {
		meta = append(meta, detail.Author)
	}
	if !detail.CreatedAt.IsZero() {
		meta = append(meta, detail.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	meta = append(meta, FormatReactions(detail.Reactions))
	fmt.Fprintf(out, "%s%s%s\n\n", dim, strings.Join(meta, " · "), reset)
}

// NewNewCmd creates the new command.
func NewNewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "new <title>",
		Short: "Open a new inquiry thread",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			if err := ctx.RequireLogin(); err != nil {
				return writeCommandError(cmd, err)
			}
			thread, err := ctx.API.CreateThread(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return writeCommandError(cmd, err)
			}
			ctx.RememberThread(thread.ID)

			if ctx.JSONMode {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(thread)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created #%d %s %s\n", thread.ID, formatTag(thread.Tag), thread.Title)
			return nil
		},
	}

	return cmd
}

// NewCloseCmd creates the close command.
func NewCloseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "close <id>",
		Short: "Close a thread as ADOPT, REJECT or END",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			if err := ctx.RequireLogin(); err != nil {
				return writeCommandError(cmd, err)
			}
			id, err := parseThreadID(args[0])
			if err != nil {
				return writeCommandError(cmd, err)
			}
			tagValue, _ := cmd.Flags().GetString("tag")
			tag, err := types.ParseStatusTag(tagValue)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			yes, _ := cmd.Flags().GetBool("yes")

			view, err := ctx.NewView(ctx.DetailScope(false), false, nil)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer view.Close()
			_ = view.Select(cmd.Context(), id)
			if snap := view.Snapshot(); snap.DetailErr != nil {
				return writeCommandError(cmd, snap.DetailErr)
			}

			var confirm func(room.Prompt) bool
			if !yes {
				p := newPrompter(cmd)
				confirm = func(prompt room.Prompt) bool {
					return p.confirm(fmt.Sprintf("%s (%s)", prompt, tag.Label()))
				}
			}
			if err := view.CloseThread(cmd.Context(), tag, confirm); err != nil {
				if errors.Is(err, room.ErrCancelled) {
					fmt.Fprintln(cmd.ErrOrStderr(), "Cancelled")
					return nil
				}
				return writeCommandError(cmd, err)
			}
			ctx.Directory.UpdateTag(id, tag)

			snap := view.Snapshot()
			if ctx.JSONMode {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(snap.Detail)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Closed #%d %s\n", id, formatTag(tag))
			return nil
		},
	}

	cmd.Flags().String("tag", "", "closing tag: ADOPT, REJECT or END")
	cmd.Flags().BoolP("yes", "y", false, "skip the confirmation")
	_ = cmd.MarkFlagRequired("tag")

	return cmd
}

// NewPublishCmd creates the publish command.
func NewPublishCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish <id>",
		Short: "Set whether a thread appears on the public board",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			if err := ctx.RequireLogin(); err != nil {
				return writeCommandError(cmd, err)
			}
			id, err := parseThreadID(args[0])
			if err != nil {
				return writeCommandError(cmd, err)
			}
			value, _ := cmd.Flags().GetString("visibility")
			visibility, err := types.ParseVisibility(value)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			if err := ctx.API.UpdateThreadSetting(cmd.Context(), id, visibility); err != nil {
				return writeCommandError(cmd, err)
			}

			if ctx.JSONMode {
				isPublic, isAnonymous := visibility.Flags()
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"chatRoomId":  id,
					"isPublic":    isPublic,
					"isAnonymous": isAnonymous,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "#%d visibility: %s\n", id, visibility)
			return nil
		},
	}

	cmd.Flags().String("visibility", "private", "private, anonymous or named")

	return cmd
}

// NewReactCmd creates the react command.
func NewReactCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "react <id> <like|dislike>",
		Short: "Toggle your reaction on a thread",
		Long:  "Like or dislike a thread. Repeating your current reaction clears it.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			if err := ctx.RequireLogin(); err != nil {
				return writeCommandError(cmd, err)
			}
			id, err := parseThreadID(args[0])
			if err != nil {
				return writeCommandError(cmd, err)
			}
			reaction, err := types.ParseReactionType(args[1])
			if err != nil {
				return writeCommandError(cmd, err)
			}

			view, err := ctx.NewView(ctx.DetailScope(true), false, nil)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer view.Close()
			_ = view.Select(cmd.Context(), id)
			if snap := view.Snapshot(); snap.DetailErr != nil {
				return writeCommandError(cmd, snap.DetailErr)
			}
			if err := view.ToggleReaction(cmd.Context(), reaction); err != nil {
				return writeCommandError(cmd, err)
			}

			reactions := view.Snapshot().Detail.Reactions
			if ctx.JSONMode {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(reactions)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "#%d %s\n", id, FormatReactions(reactions))
			return nil
		},
	}

	return cmd
}
