package tools

import (
	"context"
	"errors"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/covale/dealbridge/internal/loft"
)

// Suggested-prompt categories fetched by get_suggested_prompts.
var promptCategories = []string{"starter", "trending"}

func registerChatTools(s *server.MCPServer, deps Deps) {
	s.AddTool(mcp.NewTool(
		"create_chat",
		mcp.WithDescription("Create a new chat thread on the platform, optionally seeded with a first message. Returns the thread id."),
		mcp.WithString("message", mcp.Description("Optional first message for the new thread.")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		thread, err := deps.Client.CreateThread(ctx, req.GetString("message", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(map[string]string{"thread_id": thread.ID}), nil
	})

	s.AddTool(mcp.NewTool(
		"create_chat_and_wait",
		mcp.WithDescription("Create a chat thread seeded with a message and wait for the first reply. Returns the reply, or the thread id to check later if the wait times out."),
		mcp.WithString("message", mcp.Required(), mcp.Description("The message to open the thread with.")),
		mcp.WithNumber("timeout_sec", mcp.Description("How long to wait for a reply, in seconds (default 120).")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		message := req.GetString("message", "")
		if message == "" {
			return mcp.NewToolResultError("message is required"), nil
		}

		reply, threadID, err := deps.Waiter.CreateAndWait(ctx, message, deps.waitTimeout(req))
		if err != nil {
			return waitErrorResult(err), nil
		}
		return jsonResult(map[string]any{"thread_id": threadID, "reply": reply}), nil
	})

	s.AddTool(mcp.NewTool(
		"send_message",
		mcp.WithDescription("Send a message to an existing thread without waiting for a reply."),
		mcp.WithString("thread_id", mcp.Required(), mcp.Description("Target thread id.")),
		mcp.WithString("message", mcp.Required(), mcp.Description("Message body.")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		threadID := req.GetString("thread_id", "")
		message := req.GetString("message", "")
		if threadID == "" || message == "" {
			return mcp.NewToolResultError("thread_id and message are required"), nil
		}

		msg, err := deps.Client.SendMessage(ctx, threadID, message)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(msg), nil
	})

	s.AddTool(mcp.NewTool(
		"send_and_wait",
		mcp.WithDescription("Send a message to an existing thread and wait for a reply. Returns the reply, or tells you to check the thread later if the wait times out."),
		mcp.WithString("thread_id", mcp.Required(), mcp.Description("Target thread id.")),
		mcp.WithString("message", mcp.Required(), mcp.Description("Message body.")),
		mcp.WithNumber("timeout_sec", mcp.Description("How long to wait for a reply, in seconds (default 120).")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		threadID := req.GetString("thread_id", "")
		message := req.GetString("message", "")
		if threadID == "" || message == "" {
			return mcp.NewToolResultError("thread_id and message are required"), nil
		}

		reply, err := deps.Waiter.SendAndWait(ctx, threadID, message, deps.waitTimeout(req))
		if err != nil {
			return waitErrorResult(err), nil
		}
		return jsonResult(map[string]any{"thread_id": threadID, "reply": reply}), nil
	})

	s.AddTool(mcp.NewTool(
		"get_new_messages",
		mcp.WithDescription("Fetch unread messages for a user."),
		mcp.WithString("user_id", mcp.Description("User id. Defaults to the configured account (DEALBRIDGE_USER_ID).")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID := req.GetString("user_id", deps.DefaultUserID)
		if userID == "" {
			return mcp.NewToolResultError("user_id is required: pass it or set DEALBRIDGE_USER_ID"), nil
		}

		msgs, err := deps.Client.NewMessages(ctx, userID)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(map[string]any{"messages": msgs}), nil
	})

	s.AddTool(mcp.NewTool(
		"get_chat_history",
		mcp.WithDescription("Fetch the most recent messages of a thread."),
		mcp.WithString("thread_id", mcp.Required(), mcp.Description("Thread id.")),
		mcp.WithNumber("last_n", mcp.Description("How many trailing messages to return (default 10).")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		threadID := req.GetString("thread_id", "")
		if threadID == "" {
			return mcp.NewToolResultError("thread_id is required"), nil
		}

		msgs, err := deps.Client.History(ctx, threadID)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return jsonResult(map[string]any{
			"messages": tail(msgs, req.GetInt("last_n", 10)),
		}), nil
	})

	s.AddTool(mcp.NewTool(
		"get_thread",
		mcp.WithDescription("Fetch a thread's metadata."),
		mcp.WithString("thread_id", mcp.Required(), mcp.Description("Thread id.")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		threadID := req.GetString("thread_id", "")
		if threadID == "" {
			return mcp.NewToolResultError("thread_id is required"), nil
		}

		thread, err := deps.Client.Thread(ctx, threadID)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(thread), nil
	})

	s.AddTool(mcp.NewTool(
		"get_suggested_prompts",
		mcp.WithDescription("Fetch suggested conversation prompts from the platform."),
		mcp.WithNumber("count", mcp.Description("How many prompts to return (default 2).")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		prompts, err := fetchPrompts(ctx, deps)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		count := req.GetInt("count", 2)
		if count > 0 && count < len(prompts) {
			prompts = prompts[:count]
		}
		return jsonResult(map[string]any{"prompts": prompts}), nil
	})

	s.AddTool(mcp.NewTool(
		"mark_read",
		mcp.WithDescription("Advance a thread's read watermark to a message."),
		mcp.WithString("thread_id", mcp.Required(), mcp.Description("Thread id.")),
		mcp.WithString("message_id", mcp.Required(), mcp.Description("Last message id to mark as read.")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		threadID := req.GetString("thread_id", "")
		messageID := req.GetString("message_id", "")
		if threadID == "" || messageID == "" {
			return mcp.NewToolResultError("thread_id and message_id are required"), nil
		}

		if err := deps.Client.MarkRead(ctx, threadID, messageID); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(map[string]bool{"ok": true}), nil
	})

	s.AddTool(mcp.NewTool(
		"get_current_user",
		mcp.WithDescription("Fetch the authenticated account's profile."),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		user, err := deps.Client.CurrentUser(ctx)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(user), nil
	})
}

// fetchPrompts pulls both prompt categories concurrently and merges the
// results in category order. A category failure is tolerated as long as
// the other succeeds.
func fetchPrompts(ctx context.Context, deps Deps) ([]loft.Prompt, error) {
	results := make([][]loft.Prompt, len(promptCategories))
	errs := make([]error, len(promptCategories))

	var wg sync.WaitGroup
	for i, category := range promptCategories {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = deps.Client.SuggestedPrompts(ctx, category)
		}()
	}
	wg.Wait()

	var merged []loft.Prompt
	var failures []error
	for i := range promptCategories {
		if errs[i] != nil {
			deps.Logger.Debug("prompt category fetch failed",
				"category", promptCategories[i],
				"error", errs[i],
			)
			failures = append(failures, errs[i])
			continue
		}
		merged = append(merged, results[i]...)
	}

	if len(failures) == len(promptCategories) {
		return nil, errors.Join(failures...)
	}
	return merged, nil
}

// tail returns the trailing n elements of msgs. Asking for more than is
// available returns everything, not an error.
func tail(msgs []loft.Message, n int) []loft.Message {
	if n <= 0 || n >= len(msgs) {
		return msgs
	}
	return msgs[len(msgs)-n:]
}

// waitErrorResult formats reply-wait failures. A timeout is recoverable
// and carries the thread id, so the agent can poll the history itself.
func waitErrorResult(err error) *mcp.CallToolResult {
	var te *loft.TimeoutError
	if errors.As(err, &te) {
		return mcp.NewToolResultError(te.Error())
	}
	return mcp.NewToolResultError(err.Error())
}
