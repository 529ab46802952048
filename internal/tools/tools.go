// Package tools defines the MCP tool surface of the bridge.
//
// Every tool is a thin projection over the loft client, the reply
// waiter, or the deal search client. Handlers return structured failure
// payloads (mcp tool errors), never Go errors: a failed platform call is
// a result for the agent, not a protocol fault.
package tools

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/covale/dealbridge/internal/dealsearch"
	"github.com/covale/dealbridge/internal/loft"
)

// Deps holds everything the tool handlers need.
type Deps struct {
	Client *loft.Client
	Waiter *loft.Waiter
	Search *dealsearch.Client

	// DefaultUserID backs get_new_messages when the caller passes none.
	DefaultUserID string

	// WaitTimeout is the default reply-wait deadline. Zero means
	// loft.DefaultWaitTimeout.
	WaitTimeout time.Duration

	Logger *slog.Logger
}

// Register adds all bridge tools to the MCP server.
func Register(s *server.MCPServer, deps Deps) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	registerChatTools(s, deps)
	registerContentTools(s, deps)
	registerDealTools(s, deps)
}

// jsonResult marshals v into a text tool result. Marshal failures are
// structural bugs, not runtime conditions, so they surface as tool
// errors rather than panics.
func jsonResult(v any) *mcp.CallToolResult {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError("encode result: " + err.Error())
	}
	return mcp.NewToolResultText(string(data))
}

// waitTimeout turns a per-call timeout_sec argument into a duration,
// falling back to the configured default.
func (d Deps) waitTimeout(req mcp.CallToolRequest) time.Duration {
	if sec := req.GetInt("timeout_sec", 0); sec > 0 {
		return time.Duration(sec) * time.Second
	}
	return d.WaitTimeout
}
