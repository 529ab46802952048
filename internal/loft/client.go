// Package loft is the typed client for the platform's chat, content, and
// commerce endpoints, layered on the authenticated session primitive.
package loft

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/covale/dealbridge/internal/httpkit"
	"github.com/covale/dealbridge/internal/session"
)

// knowledgeBodyLimit caps article bodies returned to the agent.
const knowledgeBodyLimit = 2000

// Client wraps a Session with typed platform endpoints.
type Client struct {
	session *session.Session
	logger  *slog.Logger
}

// NewClient creates a platform API client on top of an authenticated
// session.
func NewClient(s *session.Session, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{session: s, logger: logger}
}

// CreateThread creates a new chat thread, optionally seeded with a first
// message. Returns the new thread.
func (c *Client) CreateThread(ctx context.Context, seed string) (*Thread, error) {
	body := map[string]string{}
	if seed != "" {
		body["message"] = seed
	}

	var out struct {
		Thread Thread `json:"thread"`
	}
	if err := c.post(ctx, "/api/chat/threads", body, &out); err != nil {
		return nil, fmt.Errorf("create thread: %w", err)
	}
	return &out.Thread, nil
}

// SendMessage posts a message to an existing thread.
func (c *Client) SendMessage(ctx context.Context, threadID, text string) (*Message, error) {
	var out struct {
		Message Message `json:"message"`
	}
	path := "/api/chat/threads/" + url.PathEscape(threadID) + "/messages"
	if err := c.post(ctx, path, map[string]string{"body": text}, &out); err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	return &out.Message, nil
}

// History fetches a thread's messages, ordered oldest first.
func (c *Client) History(ctx context.Context, threadID string) ([]Message, error) {
	var out struct {
		Messages []Message `json:"messages"`
	}
	path := "/api/chat/threads/" + url.PathEscape(threadID) + "/messages"
	if err := c.get(ctx, path, &out); err != nil {
		return nil, fmt.Errorf("thread history: %w", err)
	}
	return out.Messages, nil
}

// Thread fetches thread metadata.
func (c *Client) Thread(ctx context.Context, threadID string) (*Thread, error) {
	var out struct {
		Thread Thread `json:"thread"`
	}
	if err := c.get(ctx, "/api/chat/threads/"+url.PathEscape(threadID), &out); err != nil {
		return nil, fmt.Errorf("thread: %w", err)
	}
	return &out.Thread, nil
}

// NewMessages fetches unread messages for a user.
func (c *Client) NewMessages(ctx context.Context, userID string) ([]Message, error) {
	var out struct {
		Messages []Message `json:"messages"`
	}
	path := "/api/chat/messages/new?user_id=" + url.QueryEscape(userID)
	if err := c.get(ctx, path, &out); err != nil {
		return nil, fmt.Errorf("new messages: %w", err)
	}
	return out.Messages, nil
}

// SuggestedPrompts fetches suggested prompts for one category.
func (c *Client) SuggestedPrompts(ctx context.Context, category string) ([]Prompt, error) {
	var out struct {
		Prompts []Prompt `json:"prompts"`
	}
	path := "/api/chat/prompts?category=" + url.QueryEscape(category)
	if err := c.get(ctx, path, &out); err != nil {
		return nil, fmt.Errorf("suggested prompts %q: %w", category, err)
	}
	for i := range out.Prompts {
		if out.Prompts[i].Category == "" {
			out.Prompts[i].Category = category
		}
	}
	return out.Prompts, nil
}

// MarkRead advances the thread's read watermark to the given message.
func (c *Client) MarkRead(ctx context.Context, threadID, messageID string) error {
	path := "/api/chat/threads/" + url.PathEscape(threadID) + "/read"
	if err := c.post(ctx, path, map[string]string{"message_id": messageID}, nil); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}

// CurrentUser fetches the authenticated account's profile.
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	var out struct {
		User User `json:"user"`
	}
	if err := c.get(ctx, "/api/me", &out); err != nil {
		return nil, fmt.Errorf("current user: %w", err)
	}
	return &out.User, nil
}

// Post fetches a community post and its comments, normalized.
func (c *Client) Post(ctx context.Context, postID string) (*Post, error) {
	var out struct {
		Post     Post      `json:"post"`
		Comments []Comment `json:"comments"`
	}
	if err := c.get(ctx, "/api/posts/"+url.PathEscape(postID), &out); err != nil {
		return nil, fmt.Errorf("post: %w", err)
	}
	post := out.Post
	post.Comments = out.Comments
	return &post, nil
}

// Knowledge fetches the knowledge-base articles under a slug. Article
// bodies are truncated to knowledgeBodyLimit characters.
func (c *Client) Knowledge(ctx context.Context, slug string) ([]Article, error) {
	var out struct {
		Articles []Article `json:"articles"`
	}
	if err := c.get(ctx, "/api/knowledge/"+url.PathEscape(slug), &out); err != nil {
		return nil, fmt.Errorf("knowledge: %w", err)
	}
	for i := range out.Articles {
		if len(out.Articles[i].Body) > knowledgeBodyLimit {
			out.Articles[i].Body = out.Articles[i].Body[:knowledgeBodyLimit]
		}
	}
	return out.Articles, nil
}

// Deal fetches a single deal record, normalized.
func (c *Client) Deal(ctx context.Context, dealID string) (*Deal, error) {
	var out struct {
		Deal Deal `json:"deal"`
	}
	if err := c.get(ctx, "/api/deals/"+url.PathEscape(dealID), &out); err != nil {
		return nil, fmt.Errorf("deal: %w", err)
	}
	return &out.Deal, nil
}

// Page fetches a raw platform page body through the session. Used by the
// search-key scraper, which needs markup, not JSON.
func (c *Client) Page(ctx context.Context, path string) ([]byte, error) {
	resp, err := c.session.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &session.UpstreamError{
			Status: resp.StatusCode,
			Body:   httpkit.ReadErrorBody(resp.Body, 512),
		}
	}

	// Pages carrying the embedded search key run to a few hundred KB.
	const pageLimit = 4 << 20
	data, err := io.ReadAll(io.LimitReader(resp.Body, pageLimit))
	if err != nil {
		return nil, fmt.Errorf("read page %s: %w", path, err)
	}
	return data, nil
}

// get issues an authenticated GET and decodes the JSON response into out.
func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.roundTrip(ctx, http.MethodGet, path, nil, out)
}

// post issues an authenticated POST with a JSON body and decodes the
// response into out (out may be nil to discard it).
func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return c.roundTrip(ctx, http.MethodPost, path, data, out)
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body []byte, out any) error {
	resp, err := c.session.Do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &session.UpstreamError{
			Status: resp.StatusCode,
			Body:   httpkit.ReadErrorBody(resp.Body, 512),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
