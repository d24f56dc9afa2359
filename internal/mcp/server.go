package mcp

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/healthqa/internal/dialogue"
	"github.com/fyrsmithlabs/healthqa/internal/evidence"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

// ChatHandler handles one chat turn.
type ChatHandler interface {
	Handle(ctx context.Context, req dialogue.Request) (*dialogue.Response, error)
}

// RulesSource exposes the active grading rules.
type RulesSource interface {
	Rules() *evidence.Rules
}

// Server is an MCP server backed by the dialogue orchestrator.
type Server struct {
	mcp     *mcp.Server
	chat    ChatHandler
	rules   RulesSource
	metrics *Metrics
	logger  *zap.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "healthqa")
	Name string

	// Version is the server version (default: "dev")
	Version string

	Logger *zap.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "healthqa",
		Version: "dev",
		Logger:  zap.NewNop(),
	}
}

// NewServer creates a new MCP server.
func NewServer(cfg *Config, chat ChatHandler, rules RulesSource) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if chat == nil {
		return nil, fmt.Errorf("chat handler is required")
	}
	if rules == nil {
		return nil, fmt.Errorf("rules source is required")
	}

	s := &Server{
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		}, nil),
		chat:    chat,
		rules:   rules,
		metrics: NewMetrics(cfg.Logger),
		logger:  cfg.Logger,
	}
	s.registerTools()

	return s, nil
}

// Run serves MCP on the stdio transport until ctx ends or stdin closes.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

// Connect serves a single session on t. Used by tests and embedders.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.mcp.Connect(ctx, t, nil)
}
