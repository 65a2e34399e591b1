package command

import (
	"os"

	"github.com/spf13/cobra"
)

const AppName = "desk"

// Version is overwritten at build time using -ldflags.
var Version = "dev"

func NewRootCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           AppName,
		Short:         "desk - campus help desk client",
		Long:          "desk talks to the campus help desk: open inquiries, chat with staff in realtime and browse the public board.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.Version = version
	cmd.SetVersionTemplate(AppName + " version {{.Version}}\n")
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)
	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return writeCommandError(c, err)
	})

	cmd.PersistentFlags().String("api", "", "API base URL (overrides config)")
	cmd.PersistentFlags().String("realtime", "", "realtime WebSocket URL (overrides config)")
	cmd.PersistentFlags().Bool("json", false, "output in JSON format")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "log debug output to stderr")

	cmd.AddCommand(
		NewLoginCmd(),
		NewSignupCmd(),
		NewLogoutCmd(),
		NewWhoamiCmd(),
		NewProfileCmd(),
		NewPasswdCmd(),
		NewThreadsCmd(),
		NewShowCmd(),
		NewNewCmd(),
		NewCloseCmd(),
		NewPublishCmd(),
		NewReactCmd(),
		NewSendCmd(),
		NewWatchCmd(),
		NewBoardCmd(),
		NewChatCmd(),
		NewConfigCmd(),
	)

	return cmd
}

func Execute() error {
	return NewRootCmd(Version).Execute()
}
