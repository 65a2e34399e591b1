package command

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/campusdesk/desk/internal/directory"
	"github.com/campusdesk/desk/internal/types"
	"github.com/spf13/cobra"
)

// NewBoardCmd creates the board command.
func NewBoardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "board",
		Short: "Browse resolved threads published to the public board",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := GetContext(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			defer ctx.Close()

			if err := ctx.RequireLogin(); err != nil {
				return writeCommandError(cmd, err)
			}
			tag, _ := cmd.Flags().GetString("tag")
			order, _ := cmd.Flags().GetString("order")
			match, _ := cmd.Flags().GetString("match")

			filter, err := directory.NewFilter(tag, order, match)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			posts, err := ctx.Directory.ListBoard(cmd.Context(), filter)
			if err != nil {
				return writeCommandError(cmd, err)
			}

			if ctx.JSONMode {
				if posts == nil {
					posts = []types.BoardPost{}
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(posts)
			}

			out := cmd.OutOrStdout()
			if len(posts) == 0 {
				fmt.Fprintln(out, "No posts")
				return nil
			}
			now := time.Now()
			for _, post := range posts {
				thread := post.Thread
				if post.Anonymous {
					thread.Author = "익명"
					thread.StudentNum = 0
				}
				fmt.Fprintf(out, "%s  %s\n", FormatThread(thread, now), FormatReactions(post.Reactions))
				if len(post.Items) > 0 {
					fmt.Fprintf(out, "  %s%d messages%s\n", dim, len(post.Items), reset)
				}
			}
			return nil
		},
	}

	cmd.Flags().String("tag", "", "ADOPT or REJECT")
	cmd.Flags().String("order", "RECENT", "date order: RECENT or OLDEST")
	cmd.Flags().String("match", "", "filter titles by glob")

	return cmd
}
