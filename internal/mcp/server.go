package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mbrandao/opchat/internal/alerts"
	"github.com/mbrandao/opchat/internal/dialog"
	"github.com/mbrandao/opchat/internal/store"
)

// Server wraps the opchat data layer and chat orchestrator and exposes
// them as MCP tools.
type Server struct {
	store   store.Store
	orch    *dialog.Orchestrator
	scanner *alerts.Scanner
}

// NewServer creates the MCP server wrapper.
func NewServer(s store.Store, orch *dialog.Orchestrator) *Server {
	return &Server{
		store:   s,
		orch:    orch,
		scanner: alerts.NewScanner(s),
	}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("opchat", "1.0.0", server.WithToolCapabilities(true))

	srv.AddTool(s.chatTool())
	srv.AddTool(s.searchOrdersTool())
	srv.AddTool(s.searchPartsTool())
	srv.AddTool(s.listAlertsTool())
	srv.AddTool(s.scanAlertsTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// opchat_chat
func (s *Server) chatTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("opchat_chat",
		mcp.WithDescription("Send one chat message to the production-order assistant. Supply the same session_id across calls to continue a conversation, including answering yes/no confirmations."),
		mcp.WithString("message", mcp.Required(), mcp.Description("The message to send")),
		mcp.WithString("session_id", mcp.Description("Conversation identifier; omit for a one-shot stateless turn")),
	)
	return tool, s.handleChat
}

func (s *Server) handleChat(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	message, err := request.RequireString("message")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: message"), nil
	}
	sessionID := request.GetString("session_id", "")

	reply, err := s.orch.HandleMessage(ctx, sessionID, message)
	if err != nil && reply == nil {
		return mcp.NewToolResultError(fmt.Sprintf("chat failed: %v", err)), nil
	}

	data, err := json.Marshal(reply)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal reply: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// opchat_search_orders
func (s *Server) searchOrdersTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("opchat_search_orders",
		mcp.WithDescription("Search production orders by code, client name, or status. Returns a JSON array of orders."),
		mcp.WithString("query", mcp.Description("Case-insensitive substring; empty lists all orders")),
	)
	return tool, s.handleSearchOrders
}

func (s *Server) handleSearchOrders(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := request.GetString("query", "")
	orders, err := s.store.SearchOrders(ctx, query)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to search orders: %v", err)), nil
	}

	data, err := json.Marshal(orders)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal orders: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// opchat_search_parts
func (s *Server) searchPartsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("opchat_search_parts",
		mcp.WithDescription("Search parts by name, order code, or client name. Returns a JSON array of parts with production progress."),
		mcp.WithString("query", mcp.Description("Case-insensitive substring; empty lists all parts")),
	)
	return tool, s.handleSearchParts
}

func (s *Server) handleSearchParts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := request.GetString("query", "")
	parts, err := s.store.SearchParts(ctx, query)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to search parts: %v", err)), nil
	}

	data, err := json.Marshal(parts)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal parts: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// opchat_list_alerts
func (s *Server) listAlertsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("opchat_list_alerts",
		mcp.WithDescription("List the most recent production risk alerts."),
		mcp.WithNumber("limit", mcp.Description("Maximum alerts to return (default 50)")),
	)
	return tool, s.handleListAlerts
}

func (s *Server) handleListAlerts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := request.GetInt("limit", 50)
	alertList, err := s.store.ListAlerts(ctx, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list alerts: %v", err)), nil
	}

	data, err := json.Marshal(alertList)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal alerts: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// opchat_scan_alerts
func (s *Server) scanAlertsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("opchat_scan_alerts",
		mcp.WithDescription("Run the production risk scan: flags parts that are overdue or behind schedule and records an alert for each. Returns the alerts created by this run."),
	)
	return tool, s.handleScanAlerts
}

func (s *Server) handleScanAlerts(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	created, err := s.scanner.Scan(ctx, time.Now().UTC())
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("scan failed: %v", err)), nil
	}

	data, err := json.Marshal(map[string]any{
		"alerts": created,
		"count":  len(created),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal alerts: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
