package command

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/campusdesk/desk/internal/chat"
	"github.com/campusdesk/desk/internal/realtime"
	"github.com/campusdesk/desk/internal/timeline"
	"github.com/campusdesk/desk/internal/types"
	"github.com/spf13/cobra"
)

// NewSendCmd creates the send command.
func NewSendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send <id> <message>",
		Short: "Send a chat message to a thread",
		Args:  cobra.MinimumNArgs(2),
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
			text := strings.Join(args[1:], " ")
			if strings.TrimSpace(text) == "" {
				return writeCommandError(cmd, realtime.ErrEmptyMessage)
			}

			channels, err := ctx.Channels()
			if err != nil {
				return writeCommandError(cmd, err)
			}
			channel, err := channels(id, nil, nil)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer channel.Close()
			if err := channel.Open(cmd.Context()); err != nil {
				return writeCommandError(cmd, fmt.Errorf("connect: %w", err))
			}
			if err := channel.Publish(text); err != nil {
				return writeCommandError(cmd, err)
			}
			ctx.RememberThread(id)

			if ctx.JSONMode {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{"roomId": id, "message": text, "sent": true})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sent to #%d\n", id)
			return nil
		},
	}

	return cmd
}

// NewWatchCmd creates the watch command.
func NewWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <id>",
		Short: "Stream new messages of a thread",
		Long:  "Print messages as they arrive until interrupted. --notify raises a desktop notification for messages from others.",
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
			notify, _ := cmd.Flags().GetBool("notify")
			last, _ := cmd.Flags().GetInt("last")
			ctx.RefreshIdentity(cmd.Context())

			if last > 0 {
				history, err := ctx.API.GetMessageHistory(cmd.Context(), id, last)
				if err != nil {
					return writeCommandError(cmd, err)
				}
				tl := timeline.New()
				tl.SetHistory(history)
				if !ctx.JSONMode {
					for _, line := range FormatGroups(tl.Groups(ctx.Session.Identity().ID, time.Local, time.Now())) {
						fmt.Fprintln(cmd.OutOrStdout(), line)
					}
				}
			}

			identityID := ctx.Session.Identity().ID
			out := cmd.OutOrStdout()
			encoder := json.NewEncoder(out)
			var mu sync.Mutex
			var previous types.Message
			var hasPrevious bool
			handler := func(msg types.Message) {
				mu.Lock()
				defer mu.Unlock()
				mine := timeline.IsMine(msg, identityID)
				if ctx.JSONMode {
					_ = encoder.Encode(msg)
				} else {
					entry := timeline.Entry{
						Message:    msg,
						Mine:       mine,
						ShowSender: !mine && !(hasPrevious && previous.Sender == msg.Sender),
						Text:       msg.DisplayText(),
					}
					fmt.Fprintln(out, FormatEntry(entry))
				}
				previous, hasPrevious = msg, true
				if notify && !mine {
					if err := chat.SendNotification(fmt.Sprintf("#%d", id), msg); err != nil {
						ctx.Logger.Debug("notification failed", "err", err)
					}
				}
			}
			onState := func(state realtime.State) {
				if !ctx.JSONMode {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s%s%s\n", dim, state.Indicator(), reset)
				}
			}

			channels, err := ctx.Channels()
			if err != nil {
				return writeCommandError(cmd, err)
			}
			channel, err := channels(id, handler, onState)
			if err != nil {
				return writeCommandError(cmd, err)
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if err := channel.Open(runCtx); err != nil && ctx.Config.ReconnectDelay <= 0 {
				_ = channel.Close()
				return writeCommandError(cmd, fmt.Errorf("connect: %w", err))
			}
			ctx.RememberThread(id)

			<-runCtx.Done()
			return channel.Close()
		},
	}

	cmd.Flags().Bool("notify", false, "desktop notification for messages from others")
	cmd.Flags().Int("last", 0, "print the last N history messages first")

	return cmd
}
