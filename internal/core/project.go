package core

import (
	"os"
	"path/filepath"
	"strings"
)

// StateDir is where the local database lives.
type StateDir struct {
	Root   string
	DBPath string
}

// ResolveStateDir picks the configured directory, then $XDG_STATE_HOME/desk,
// then ~/.local/state/desk.
func ResolveStateDir(config Config) (StateDir, error) {
	root := strings.TrimSpace(config.StateDir)
	if root == "" {
		if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
			root = filepath.Join(xdg, "desk")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return StateDir{}, err
			}
			root = filepath.Join(home, ".local", "state", "desk")
		}
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return StateDir{}, err
	}
	return StateDir{Root: root, DBPath: filepath.Join(root, "desk.db")}, nil
}

// Ensure creates the state directory with owner-only permissions; it holds tokens.
func (s StateDir) Ensure() error {
	return os.MkdirAll(s.Root, 0o700)
}
