// Package mcp exposes question answering and cache statistics as MCP tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/alikoudar/irobot-sub000/internal/core/domain"
	"github.com/alikoudar/irobot-sub000/internal/core/ports"
)

const (
	serverName    = "irobot"
	serverVersion = "1.0.0"

	defaultStatsDays = 7
	maxStatsDays     = 366
)

type Server struct {
	chat   ports.ChatService
	cache  ports.CacheAdmin
	logger *slog.Logger
	mcp    *server.MCPServer
}

func NewServer(chat ports.ChatService, cache ports.CacheAdmin, logger *slog.Logger) (*Server, error) {
	if chat == nil || cache == nil {
		return nil, fmt.Errorf("mcp: chat and cache services are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		chat:   chat,
		cache:  cache,
		logger: logger,
		mcp: server.NewMCPServer(serverName, serverVersion,
			server.WithToolCapabilities(false),
			server.WithRecovery(),
		),
	}

	s.mcp.AddTool(mcp.NewTool("ask_documents",
		mcp.WithDescription("Answer a question from the indexed documents, citing sources."),
		mcp.WithString("question", mcp.Required(), mcp.Description("The question to answer")),
		mcp.WithString("category", mcp.Description("Restrict retrieval to one document category")),
	), s.handleAsk)

	s.mcp.AddTool(mcp.NewTool("cache_stats",
		mcp.WithDescription("Daily query cache statistics, oldest day first."),
		mcp.WithNumber("days", mcp.Description("Number of days to report (default 7)"), mcp.Min(1), mcp.Max(maxStatsDays)),
	), s.handleStats)

	return s, nil
}

// ServeStdio blocks serving the tools over stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

type askOutput struct {
	Answer      string             `json:"answer"`
	CacheStatus domain.CacheStatus `json:"cache_status"`
	Sources     []domain.SourceRef `json:"sources"`
}

func (s *Server) handleAsk(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := request.RequireString("question")
	if err != nil || strings.TrimSpace(question) == "" {
		return mcp.NewToolResultError("question is required"), nil
	}

	answer, err := s.chat.Answer(ctx, domain.ChatRequest{
		Question: question,
		Filter:   domain.SearchFilter{Category: strings.TrimSpace(request.GetString("category", ""))},
	})
	if err != nil {
		s.logger.Error("mcp_ask_failed", "error", err)
		return mcp.NewToolResultErrorFromErr("answer failed", err), nil
	}

	return jsonResult(askOutput{
		Answer:      answer.Text,
		CacheStatus: answer.CacheStatus,
		Sources:     answer.Sources,
	})
}

func (s *Server) handleStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	days := request.GetInt("days", defaultStatsDays)
	if days < 1 || days > maxStatsDays {
		return mcp.NewToolResultError(fmt.Sprintf("days must be between 1 and %d", maxStatsDays)), nil
	}
	stats, err := s.cache.StatisticsForDays(ctx, days)
	if err != nil {
		s.logger.Error("mcp_stats_failed", "error", err)
		return mcp.NewToolResultErrorFromErr("statistics failed", err), nil
	}
	return jsonResult(map[string]any{"days": stats})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
