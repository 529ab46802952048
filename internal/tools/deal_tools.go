package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func registerDealTools(s *server.MCPServer, deps Deps) {
	s.AddTool(mcp.NewTool(
		"search_deals",
		mcp.WithDescription("Search the deal catalog. An empty query with no tag returns browse results plus a tag summary."),
		mcp.WithString("query", mcp.Description("Free-text search query. May be empty to browse.")),
		mcp.WithString("tag", mcp.Description("Restrict results to a tag. Omit to include the tag summary.")),
		mcp.WithNumber("limit", mcp.Description("Maximum hits to return (default 20, max 100).")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if deps.Search == nil {
			return mcp.NewToolResultError("deal search is not configured: set search.app_id or DEALBRIDGE_SEARCH_APP"), nil
		}
		result, err := deps.Search.Search(ctx,
			req.GetString("query", ""),
			req.GetString("tag", ""),
			req.GetInt("limit", 0),
		)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(result), nil
	})

	s.AddTool(mcp.NewTool(
		"get_deal",
		mcp.WithDescription("Fetch a single deal record."),
		mcp.WithString("deal_id", mcp.Required(), mcp.Description("Deal id.")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dealID := req.GetString("deal_id", "")
		if dealID == "" {
			return mcp.NewToolResultError("deal_id is required"), nil
		}

		deal, err := deps.Client.Deal(ctx, dealID)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(deal), nil
	})
}
