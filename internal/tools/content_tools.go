package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

func registerContentTools(s *server.MCPServer, deps Deps) {
	s.AddTool(mcp.NewTool(
		"get_post",
		mcp.WithDescription("Fetch a community post with its comments."),
		mcp.WithString("post_id", mcp.Required(), mcp.Description("Post id.")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		postID := req.GetString("post_id", "")
		if postID == "" {
			return mcp.NewToolResultError("post_id is required"), nil
		}

		post, err := deps.Client.Post(ctx, postID)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(post), nil
	})

	s.AddTool(mcp.NewTool(
		"get_knowledge",
		mcp.WithDescription("Fetch knowledge-base articles for a topic slug. Article bodies are truncated to 2000 characters."),
		mcp.WithString("slug", mcp.Required(), mcp.Description("Topic slug, e.g. 'refund-policy'.")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		slug := req.GetString("slug", "")
		if slug == "" {
			return mcp.NewToolResultError("slug is required"), nil
		}

		articles, err := deps.Client.Knowledge(ctx, slug)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(map[string]any{"articles": articles}), nil
	})
}
