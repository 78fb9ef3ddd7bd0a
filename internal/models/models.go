package models

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"

	// roleBot is how older documents name the assistant.
	roleBot Role = "bot"
)

// Normalize maps historical role names onto the current ones.
func (r Role) Normalize() Role {
	if r == roleBot {
		return RoleAssistant
	}
	return r
}

// Message is a single conversation turn. Messages are never edited after
// they are appended.
type Message struct {
	Role       Role        `json:"role"`
	Text       string      `json:"message"`
	Timestamp  float64     `json:"timestamp"`
	Attachment *Attachment `json:"attachment,omitempty"`
}

// NewMessage creates a message stamped with t.
func NewMessage(role Role, text string, t time.Time) Message {
	return Message{
		Role:      role,
		Text:      text,
		Timestamp: UnixSeconds(t),
	}
}

// Conversation is an ordered, bounded list of messages.
type Conversation struct {
	ID        string    `json:"id"`
	Messages  []Message `json:"messages"`
	Title     string    `json:"title,omitempty"`
	CreatedAt float64   `json:"created_at"`
	UpdatedAt float64   `json:"updated_at"`
}

// Append adds msg and evicts from the oldest end so that at most window
// messages remain. A window <= 0 disables eviction.
func (c *Conversation) Append(msg Message, window int) {
	c.Messages = append(c.Messages, msg)
	if window > 0 && len(c.Messages) > window {
		kept := make([]Message, window)
		copy(kept, c.Messages[len(c.Messages)-window:])
		c.Messages = kept
	}
	if c.CreatedAt == 0 {
		c.CreatedAt = msg.Timestamp
	}
	c.UpdatedAt = msg.Timestamp
}

// Recent returns up to limit most recent messages, oldest first.
func (c *Conversation) Recent(limit int) []Message {
	if limit <= 0 || limit >= len(c.Messages) {
		out := make([]Message, len(c.Messages))
		copy(out, c.Messages)
		return out
	}
	out := make([]Message, limit)
	copy(out, c.Messages[len(c.Messages)-limit:])
	return out
}

// Clone returns a deep enough copy to hand out of a cache.
func (c *Conversation) Clone() *Conversation {
	cp := *c
	cp.Messages = c.Recent(0)
	return &cp
}

// ConversationSummary is the listing view of a conversation.
type ConversationSummary struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Preview   string  `json:"preview"`
	Timestamp float64 `json:"timestamp"`
}

// UnixSeconds converts t to fractional unix seconds.
func UnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
