package session

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

const (
	DefaultTitle = "New chat"
	ErrorPreview = "Error occurred"

	titleLimit   = 50
	previewLimit = 100
	ellipsis     = "..."
)

// Message is one immutable turn of a chat.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Chat is a single conversation thread.
type Chat struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	Preview   string    `json:"lastMessage"`
	UpdatedAt time.Time `json:"timestamp"`

	titled bool
}

func (c Chat) clone() Chat {
	out := c
	out.Messages = make([]Message, len(c.Messages))
	copy(out.Messages, c.Messages)
	return out
}

// Title derives a chat title from the first user message.
func Title(first string) string {
	r := []rune(first)
	if len(r) > titleLimit {
		return string(r[:titleLimit]) + ellipsis
	}
	return first
}

func preview(content string) string {
	r := []rune(content)
	if len(r) > previewLimit {
		return string(r[:previewLimit])
	}
	return content
}
