package mcp

import (
	"context"
	"database/sql"
	"log/slog"
	"os"

	"github.com/campusdesk/desk/internal/api"
	"github.com/campusdesk/desk/internal/core"
	"github.com/campusdesk/desk/internal/db"
	"github.com/campusdesk/desk/internal/directory"
	"github.com/campusdesk/desk/internal/realtime"
	"github.com/campusdesk/desk/internal/room"
	"github.com/campusdesk/desk/internal/session"
	mcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Server serves the desk tools over MCP stdio.
type Server struct {
	server *mcp.Server
	dbConn *sql.DB
	logger *slog.Logger
}

// NewServer loads config and the stored session the same way the CLI does.
func NewServer(version string, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	cwd, err := os.Getwd()
	if err != nil {
		cwd = ""
	}
	config, err := core.LoadConfig(cwd)
	if err != nil {
		return nil, err
	}
	state, err := core.ResolveStateDir(config)
	if err != nil {
		return nil, err
	}
	dbConn, err := db.OpenDatabase(state)
	if err != nil {
		return nil, err
	}
	logger.Info("database opened", "path", state.DBPath)

	store := session.New(db.NewCredentialStore(dbConn))
	client, err := api.NewClient(config.APIURL, store.TokenSource(), config.RequestTimeout, api.WithLogger(logger))
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}
	dialer, err := realtime.NewDialer(config.RealtimeURL)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}
	if store.Authenticated() {
		logger.Info("session restored", "user", store.Identity().ID)
	} else {
		logger.Warn("no stored session; tools will ask for desk login")
	}

	tools := &ToolContext{
		API:           client,
		Directory:     directory.New(client, directory.SQLCache{DB: dbConn}, logger),
		Channels:      room.RealtimeChannels(config, dialer, store.TokenSource(), logger),
		Identity:      store.Identity,
		Authenticated: store.Authenticated,
		HistorySize:   config.HistorySize,
		Logger:        logger,
		RefreshIdentity: func(ctx context.Context) {
			profile, err := client.Me(ctx)
			if err != nil {
				logger.Debug("profile refresh failed", "err", err)
				return
			}
			store.ApplyProfile(profile)
		},
	}
	s := newServer(version, tools, logger)
	s.dbConn = dbConn
	return s, nil
}

func newServer(version string, tools *ToolContext, logger *slog.Logger) *Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "desk", Version: version}, nil)
	RegisterTools(server, tools)
	return &Server{server: server, logger: logger}
}

// Run serves stdin/stdout until the client disconnects or ctx ends.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Close shuts down the server.
func (s *Server) Close() error {
	if s.dbConn != nil {
		_ = s.dbConn.Close()
	}
	s.logger.Info("server closed")
	return nil
}
