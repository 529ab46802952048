package loft

// Types in this package mirror the platform's wire shapes. The bridge
// holds no durable copy of any of them; every read is a live fetch.

// Thread is a conversation container holding an ordered message sequence.
type Thread struct {
	ID          string `json:"id"`
	Subject     string `json:"subject,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
	UnreadCount int    `json:"unread_count,omitempty"`
}

// Message is a single chat message within a thread.
type Message struct {
	ID        string `json:"id"`
	ThreadID  string `json:"thread_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	Body      string `json:"body"`
	CreatedAt string `json:"created_at,omitempty"`
}

// Prompt is a suggested conversation starter.
type Prompt struct {
	Category string `json:"category"`
	Text     string `json:"text"`
}

// User is the authenticated account's profile.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Plan  string `json:"plan,omitempty"`
}

// Comment is a single comment on a community post.
type Comment struct {
	ID        string `json:"id"`
	Author    string `json:"author,omitempty"`
	Body      string `json:"body"`
	CreatedAt string `json:"created_at,omitempty"`
}

// Post is a normalized community post with its comments.
type Post struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Author    string    `json:"author,omitempty"`
	Body      string    `json:"body"`
	CreatedAt string    `json:"created_at,omitempty"`
	Comments  []Comment `json:"comments,omitempty"`
}

// Article is a normalized knowledge-base article. Body is truncated by
// the client; full articles can run to tens of kilobytes of markup.
type Article struct {
	Slug      string `json:"slug"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// Deal is a normalized marketplace deal record.
type Deal struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Tagline string   `json:"tagline,omitempty"`
	Price   string   `json:"price,omitempty"`
	Rating  float64  `json:"rating,omitempty"`
	Tags    []string `json:"tags,omitempty"`
	URL     string   `json:"url,omitempty"`
}
