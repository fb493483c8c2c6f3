// Package llm defines the chat message model and the role-specific system
// prompts handed to the language model.
package llm

import (
	"context"
	"time"
)

// Role is the author of a chat message.
type Role string

// Chat roles.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Completion is the model's reply.
type Completion struct {
	Text       string
	TokenCount int
	Duration   time.Duration
	Model      string
}

// Completer generates a reply from a system prompt and a message list.
type Completer interface {
	Complete(ctx context.Context, systemPrompt string, messages []Message) (Completion, error)
}
