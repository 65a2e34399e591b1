package command

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/campusdesk/desk/internal/api"
	"github.com/campusdesk/desk/internal/core"
	"github.com/campusdesk/desk/internal/db"
	"github.com/campusdesk/desk/internal/directory"
	"github.com/campusdesk/desk/internal/realtime"
	"github.com/campusdesk/desk/internal/room"
	"github.com/campusdesk/desk/internal/session"
	"github.com/spf13/cobra"
)

// CommandContext provides shared command resources.
type CommandContext struct {
	Config    core.Config
	State     core.StateDir
	DB        *sql.DB
	Session   *session.Store
	API       *api.Client
	Directory *directory.Directory
	JSONMode  bool
	Logger    *slog.Logger
}

// GetContext resolves config, opens the local database and restores the session.
func GetContext(cmd *cobra.Command) (*CommandContext, error) {
	jsonMode, _ := cmd.Flags().GetBool("json")

	config, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	state, err := core.ResolveStateDir(config)
	if err != nil {
		return nil, err
	}
	conn, err := db.OpenDatabase(state)
	if err != nil {
		return nil, err
	}

	logger := newLogger(cmd)
	store := session.New(db.NewCredentialStore(conn))
	client, err := api.NewClient(config.APIURL, store.TokenSource(), config.RequestTimeout, api.WithLogger(logger))
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	return &CommandContext{
		Config:    config,
		State:     state,
		DB:        conn,
		Session:   store,
		API:       client,
		Directory: directory.New(client, directory.SQLCache{DB: conn}, logger),
		JSONMode:  jsonMode,
		Logger:    logger,
	}, nil
}

// loadConfig layers the --api and --realtime flags over core.LoadConfig.
func loadConfig(cmd *cobra.Command) (core.Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = ""
	}
	config, err := core.LoadConfig(cwd)
	if err != nil {
		return config, err
	}
	if value, _ := cmd.Flags().GetString("api"); value != "" {
		config.APIURL = value
	}
	if value, _ := cmd.Flags().GetString("realtime"); value != "" {
		config.RealtimeURL = value
	}
	return config, nil
}

func newLogger(cmd *cobra.Command) *slog.Logger {
	verbose, _ := cmd.Flags().GetBool("verbose")
	if !verbose {
		return slog.New(slog.DiscardHandler)
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// Close releases the database.
func (c *CommandContext) Close() error {
	return c.DB.Close()
}

// RequireLogin fails fast before any authenticated request.
func (c *CommandContext) RequireLogin() error {
	if !c.Session.Authenticated() {
		return session.ErrNotAuthenticated
	}
	return nil
}

// DetailScope picks the detail endpoint: admins and --any read any thread.
func (c *CommandContext) DetailScope(anyThread bool) api.DetailScope {
	if anyThread || c.Session.Identity().IsAdmin {
		return api.ScopeAny
	}
	return api.ScopeMine
}

// Channels builds realtime channels for the configured endpoint.
func (c *CommandContext) Channels() (room.ChannelFactory, error) {
	dialer, err := realtime.NewDialer(c.Config.RealtimeURL)
	if err != nil {
		return nil, err
	}
	return room.RealtimeChannels(c.Config, dialer, c.Session.TokenSource(), c.Logger), nil
}

// NewView returns a room view wired to this context. Without realtime the
// view only loads detail and history.
func (c *CommandContext) NewView(scope api.DetailScope, withRealtime bool, onChange func(room.Change)) (*room.View, error) {
	opts := room.Options{
		API:         c.API,
		Identity:    c.Session.Identity,
		Scope:       scope,
		HistorySize: c.Config.HistorySize,
		Logger:      c.Logger,
		OnChange:    onChange,
	}
	if withRealtime {
		channels, err := c.Channels()
		if err != nil {
			return nil, err
		}
		opts.NewChannel = channels
	}
	return room.New(opts), nil
}

// RememberThread stores the last opened thread for `desk chat`.
func (c *CommandContext) RememberThread(id int64) {
	if err := db.SetConfig(c.DB, db.LastThreadKey, strconv.FormatInt(id, 10)); err != nil {
		c.Logger.Warn("remember thread", "err", err)
	}
}

// ForgetUserData drops the thread cache and the remembered thread so the
// next user starts clean.
func (c *CommandContext) ForgetUserData() error {
	if err := db.ClearCachedThreads(c.DB); err != nil {
		return fmt.Errorf("clear thread cache: %w", err)
	}
	if err := db.DeleteConfig(c.DB, db.LastThreadKey); err != nil {
		return fmt.Errorf("forget last thread: %w", err)
	}
	return nil
}

// LastThread returns the thread remembered by RememberThread, or 0.
func (c *CommandContext) LastThread() int64 {
	value, err := db.GetConfig(c.DB, db.LastThreadKey)
	if err != nil || value == "" {
		return 0
	}
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// RefreshIdentity fills Identity from /api/users/me. Failures are logged;
// the token's claims remain authoritative.
func (c *CommandContext) RefreshIdentity(ctx context.Context) {
	profile, err := c.API.Me(ctx)
	if err != nil {
		c.Logger.Debug("profile refresh failed", "err", err)
		return
	}
	c.Session.ApplyProfile(profile)
}

func parseThreadID(value string) (int64, error) {
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid thread id %q", value)
	}
	return id, nil
}
