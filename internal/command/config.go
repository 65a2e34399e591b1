package command

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/campusdesk/desk/internal/core"
	"github.com/spf13/cobra"
)

// NewConfigCmd creates the config command.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config [key] [value]",
		Short: "Get or set configuration",
		Long:  "Show the effective configuration, read one key, or write a key to ~/.config/desk/config.yaml.\nKeys: " + strings.Join(core.ConfigKeys, ", "),
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonMode, _ := cmd.Flags().GetBool("json")
			config, err := loadConfig(cmd)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			out := cmd.OutOrStdout()

			if len(args) == 0 {
				values := make(map[string]string, len(core.ConfigKeys))
				for _, key := range core.ConfigKeys {
					values[key], _ = config.Get(key)
				}
				if jsonMode {
					return json.NewEncoder(out).Encode(values)
				}
				fmt.Fprintln(out, "Configuration:")
				for _, key := range core.ConfigKeys {
					fmt.Fprintf(out, "  %s: %s\n", key, values[key])
				}
				return nil
			}

			key := normalizeConfigKey(args[0])
			if len(args) == 1 {
				value, err := config.Get(key)
				if err != nil {
					return writeCommandError(cmd, err)
				}
				if jsonMode {
					return json.NewEncoder(out).Encode(map[string]string{key: value})
				}
				fmt.Fprintf(out, "%s: %s\n", key, value)
				return nil
			}

			path, err := core.ConfigPath()
			if err != nil {
				return writeCommandError(cmd, err)
			}
			// Only the file layer is written; env and flags stay out of it.
			fileConfig, err := core.ReadConfigFile(path)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			fileConfig, err = fileConfig.Set(key, args[1])
			if err != nil {
				return writeCommandError(cmd, err)
			}
			if err := core.WriteConfigFile(path, fileConfig); err != nil {
				return writeCommandError(cmd, err)
			}
			value, _ := fileConfig.Get(key)
			if jsonMode {
				return json.NewEncoder(out).Encode(map[string]string{key: value})
			}
			fmt.Fprintf(out, "Set %s = %s\n", key, value)
			return nil
		},
	}

	return cmd
}

func normalizeConfigKey(value string) string {
	return strings.ReplaceAll(strings.TrimSpace(value), "-", "_")
}
