package repositories

import (
	"context"

	"github.com/swaralabs/wicara/domain/entities"
)

// LargeLanguageModel abstracts any chat/LLM provider
type LargeLanguageModel interface {
	// Generate takes a single prompt and returns the model's reply
	Generate(ctx context.Context, prompt string) (string, error)
	// GenerateChat creates a chat session seeded with history
	GenerateChat(ctx context.Context, history []ChatMessage) (ChatSession, error)
}

// ChatSession represents an ongoing conversation session
type ChatSession interface {
	SendMessage(ctx context.Context, message ChatMessage) (ChatMessage, error)
	History() ([]ChatMessage, error)
}

// ChatMessage represents a single message in a conversation. Replies may
// carry citations when the provider grounds its answer in sources.
type ChatMessage struct {
	Role      Role                `json:"role"`
	Content   string              `json:"content"`
	Citations []entities.Citation `json:"citations,omitempty"`
}

// Role defines the type of message sender
type Role string

const (
	UserRole   Role = "user"
	ModelRole  Role = "model"
	SystemRole Role = "system"
)
