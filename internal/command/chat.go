package command

import (
	"fmt"
	"os"

	"github.com/campusdesk/desk/internal/chat"
	"github.com/campusdesk/desk/internal/directory"
	"github.com/campusdesk/desk/internal/room"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// NewChatCmd creates the chat command.
func NewChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat [id]",
		Short: "Interactive chat mode",
		Long:  "Open the interactive screen: your threads on the left, the selected conversation on the right.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if jsonMode, _ := cmd.Flags().GetBool("json"); jsonMode {
				return writeCommandError(cmd, fmt.Errorf("--json not supported for interactive chat"))
			}
			if !term.IsTerminal(int(os.Stdout.Fd())) {
				return writeCommandError(cmd, fmt.Errorf("chat needs a terminal; use 'desk watch' or 'desk show' instead"))
			}

			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			if err := ctx.RequireLogin(); err != nil {
				return writeCommandError(cmd, err)
			}
			ctx.RefreshIdentity(cmd.Context())

			var thread int64
			if len(args) == 1 {
				if thread, err = parseThreadID(args[0]); err != nil {
					return writeCommandError(cmd, err)
				}
			} else if resume, _ := cmd.Flags().GetBool("resume"); resume {
				thread = ctx.LastThread()
			}

			tag, _ := cmd.Flags().GetString("tag")
			order, _ := cmd.Flags().GetString("order")
			filter, err := directory.NewFilter(tag, order, "")
			if err != nil {
				return writeCommandError(cmd, err)
			}
			admin, _ := cmd.Flags().GetBool("admin")
			if !cmd.Flags().Changed("admin") {
				admin = ctx.Session.Identity().IsAdmin
			}
			notify, _ := cmd.Flags().GetBool("notify")

			options := chat.Options{
				Lister:   ctx.Directory,
				Filter:   filter,
				Admin:    admin,
				Identity: ctx.Session.Identity,
				NewRoom: func(onChange func(room.Change)) (chat.Room, error) {
					view, err := ctx.NewView(ctx.DetailScope(admin), true, onChange)
					if err != nil {
						return nil, err
					}
					return view, nil
				},
				Thread:   thread,
				Notify:   notify,
				OnSelect: ctx.RememberThread,
				Logger:   ctx.Logger,
			}

			return chat.Run(cmd.Context(), options)
		},
	}

	cmd.Flags().Bool("admin", false, "show every thread (defaults to your role)")
	cmd.Flags().String("tag", "", "filter the thread panel by tag")
	cmd.Flags().String("order", "RECENT", "date order: RECENT or OLDEST")
	cmd.Flags().Bool("notify", true, "desktop notifications while the terminal is unfocused")
	cmd.Flags().Bool("resume", true, "reopen the last thread when no id is given")

	return cmd
}
