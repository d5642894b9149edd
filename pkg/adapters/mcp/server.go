// Package mcp exposes the conversation engine as a Model Context Protocol
// server, so an agent can drive twin3 sessions as tools.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/twin3/internal/logging"
	"github.com/aretw0/twin3/pkg/domain"
	"github.com/aretw0/twin3/pkg/humanity"
	"github.com/aretw0/twin3/pkg/runner"
	"github.com/aretw0/twin3/pkg/session"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/sync/errgroup"
)

const (
	InventoryURI = "twin3://inventory"
	MethodsURI   = "twin3://methods"
)

// TurnResponse is the result of a tool that runs a turn.
type TurnResponse struct {
	SessionID   string              `json:"session_id" jsonschema_description:"The conversation the turn ran in"`
	Messages    []domain.Message    `json:"messages" jsonschema_description:"Messages appended by the turn, in order"`
	Suggestions []domain.Suggestion `json:"suggestions" jsonschema_description:"Quick replies now offered to the user"`
}

// ScoreResponse reports the Humanity Index of a session.
type ScoreResponse struct {
	SessionID string          `json:"session_id"`
	Verified  bool            `json:"verified" jsonschema_description:"Whether gated features are unlocked"`
	Report    humanity.Report `json:"report"`
}

type sendArgs struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text,omitempty"`
	NodeID    string `json:"node_id,omitempty"`
}

type conversationArgs struct {
	SessionID string `json:"session_id,omitempty"`
}

type verificationArgs struct {
	SessionID string `json:"session_id"`
	MethodID  string `json:"method_id"`
}

// Server wraps the session manager and exposes it as an MCP Server.
type Server struct {
	sessions     *session.Manager
	mcpServer    *server.MCPServer
	maxInputSize int
	logger       *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithMaxInputSize caps the text accepted by send_message.
func WithMaxInputSize(n int) Option {
	return func(s *Server) { s.maxInputSize = n }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(sessions *session.Manager, version string, opts ...Option) *Server {
	s := &Server{
		sessions: sessions,
		logger:   logging.NewNop(),
		mcpServer: server.NewMCPServer("twin3-mcp", strings.TrimSpace(version),
			server.WithToolCapabilities(false),
			server.WithResourceCapabilities(false, false),
		),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying protocol server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the protocol over SSE on addr until ctx is canceled.
func (s *Server) ServeSSE(ctx context.Context, addr string) error {
	baseURL := "http://localhost" + addr
	if !strings.HasPrefix(addr, ":") {
		baseURL = "http://" + addr
	}
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("new_conversation",
		mcp.WithDescription("Start a conversation, or reset an existing one back to the welcome message."),
		mcp.WithString("session_id", mcp.Description("Conversation to reset (optional; a new one is created when omitted)")),
		mcp.WithOutputSchema[TurnResponse](),
	), mcp.NewStructuredToolHandler(s.handleNewConversation))

	s.mcpServer.AddTool(mcp.NewTool("send_message",
		mcp.WithDescription("Send a user message or jump to a scripted node. Runs one full turn and returns what the assistant said."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Conversation ID")),
		mcp.WithString("text", mcp.Description("Free text typed by the user")),
		mcp.WithString("node_id", mcp.Description("Explicit node to show instead of resolving text")),
		mcp.WithOutputSchema[TurnResponse](),
	), mcp.NewStructuredToolHandler(s.handleSendMessage))

	s.mcpServer.AddTool(mcp.NewTool("complete_verification",
		mcp.WithDescription("Record a completed verification method and return the updated Humanity Index."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Conversation ID")),
		mcp.WithString("method_id", mcp.Required(), mcp.Description("Verification method, e.g. passport or email")),
		mcp.WithOutputSchema[ScoreResponse](),
	), mcp.NewStructuredToolHandler(s.handleCompleteVerification))

	s.mcpServer.AddTool(mcp.NewTool("humanity_score",
		mcp.WithDescription("Get the Humanity Index (0-255) of a conversation."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Conversation ID")),
		mcp.WithOutputSchema[ScoreResponse](),
	), mcp.NewStructuredToolHandler(s.handleScore))
}

func (s *Server) handleNewConversation(ctx context.Context, _ mcp.CallToolRequest, args conversationArgs) (TurnResponse, error) {
	if args.SessionID == "" {
		conv, err := s.sessions.Create(ctx)
		if err != nil {
			return TurnResponse{}, fmt.Errorf("create failed: %w", err)
		}
		return TurnResponse{SessionID: conv.SessionID, Messages: conv.Messages, Suggestions: conv.Suggestions}, nil
	}

	if _, err := s.sessions.Start(ctx, args.SessionID); err != nil {
		return TurnResponse{}, fmt.Errorf("start failed: %w", err)
	}
	res, err := s.sessions.Reset(ctx, args.SessionID)
	if err != nil {
		return TurnResponse{}, fmt.Errorf("reset failed: %w", err)
	}
	return TurnResponse{SessionID: args.SessionID, Messages: res.Messages, Suggestions: res.Suggestions}, nil
}

func (s *Server) handleSendMessage(ctx context.Context, _ mcp.CallToolRequest, args sendArgs) (TurnResponse, error) {
	if args.SessionID == "" {
		return TurnResponse{}, errors.New("session_id is required")
	}
	action := domain.Goto(args.NodeID)
	if args.Text != "" {
		clean, err := runner.SanitizeInputLimit(args.Text, s.maxInputSize)
		if err != nil {
			s.logger.Warn("MCP send_message: Input rejected", "err", err, "size", len(args.Text))
			return TurnResponse{}, fmt.Errorf("input rejected: %w", err)
		}
		action.FreeText = clean
		action.ShowUserMessage = true
	}

	res, err := s.sessions.Send(ctx, args.SessionID, action)
	if err != nil {
		return TurnResponse{}, fmt.Errorf("send failed: %w", err)
	}
	return TurnResponse{SessionID: args.SessionID, Messages: res.Messages, Suggestions: res.Suggestions}, nil
}

func (s *Server) handleCompleteVerification(ctx context.Context, _ mcp.CallToolRequest, args verificationArgs) (ScoreResponse, error) {
	report, err := s.sessions.CompleteMethod(ctx, args.SessionID, args.MethodID)
	if err != nil {
		return ScoreResponse{}, fmt.Errorf("verification failed: %w", err)
	}
	return s.scoreResponse(ctx, args.SessionID, report)
}

func (s *Server) handleScore(ctx context.Context, _ mcp.CallToolRequest, args conversationArgs) (ScoreResponse, error) {
	report, err := s.sessions.Score(ctx, args.SessionID)
	if err != nil {
		return ScoreResponse{}, fmt.Errorf("score failed: %w", err)
	}
	return s.scoreResponse(ctx, args.SessionID, report)
}

func (s *Server) scoreResponse(ctx context.Context, sessionID string, report humanity.Report) (ScoreResponse, error) {
	conv, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return ScoreResponse{}, err
	}
	return ScoreResponse{SessionID: sessionID, Verified: conv.Verified, Report: report}, nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(InventoryURI, "Interaction Inventory",
		mcp.WithResourceDescription("Scripted nodes with their triggers and responses"),
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return jsonResource(InventoryURI, s.sessions.Engine().Inventory().Nodes())
	})

	s.mcpServer.AddResource(mcp.NewResource(MethodsURI, "Verification Methods",
		mcp.WithResourceDescription("Verification methods and their Humanity Index weights"),
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return jsonResource(MethodsURI, s.sessions.Methods())
	})
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
