package store

import "time"

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Scope indicates whether a summary is session-bound or user-lifetime-bound.
type Scope string

const (
	ScopeSession Scope = "session"
	ScopeUser    Scope = "user"
)

// Message is a single conversational turn. Messages are immutable once
// written.
type Message struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	SessionID *string   `json:"session_id,omitempty"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Summary is condensed long-term memory for one session or for the user's
// entire history (SessionID nil, Scope user).
type Summary struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	SessionID *string   `json:"session_id,omitempty"`
	Scope     Scope     `json:"scope"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Episode is a discrete extracted fact with an importance score and an
// embedding for similarity retrieval. Episodes are append-only.
type Episode struct {
	ID         int64     `json:"id"`
	UserID     string    `json:"user_id"`
	SessionID  *string   `json:"session_id,omitempty"`
	Fact       string    `json:"fact"`
	Importance float64   `json:"importance"`
	Embedding  []float32 `json:"embedding,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// DailyMessageCount is one row of the per-day message aggregate.
type DailyMessageCount struct {
	Date  string `json:"date"` // YYYY-MM-DD
	Count int    `json:"count"`
}
