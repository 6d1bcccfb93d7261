package llm

import (
	"context"
	"fmt"

	"github.com/swaralabs/wicara/domain/entities"
	"github.com/swaralabs/wicara/domain/repositories"
)

// MockLLM is a deterministic model for development and tests. It needs no
// API key and never fails.
type MockLLM struct{}

var _ repositories.LargeLanguageModel = (*MockLLM)(nil)

// NewMockLLM creates a new mock LLM
func NewMockLLM() *MockLLM {
	return &MockLLM{}
}

// Generate implements repositories.LargeLanguageModel
func (m *MockLLM) Generate(ctx context.Context, prompt string) (string, error) {
	return fmt.Sprintf("Here is a shorter way to put it: %s", firstWords(prompt, 12)), nil
}

// GenerateChat implements repositories.LargeLanguageModel
func (m *MockLLM) GenerateChat(ctx context.Context, history []repositories.ChatMessage) (repositories.ChatSession, error) {
	return &MockChatSession{history: history}, nil
}

// MockChatSession implements repositories.ChatSession
type MockChatSession struct {
	history []repositories.ChatMessage
}

// SendMessage implements repositories.ChatSession
func (m *MockChatSession) SendMessage(ctx context.Context, message repositories.ChatMessage) (repositories.ChatMessage, error) {
	m.history = append(m.history, message)

	response := repositories.ChatMessage{
		Role: repositories.ModelRole,
		Content: fmt.Sprintf("You asked about %q. This is a canned development answer; "+
			"point the widget at a real model provider to get proper ones.", firstWords(message.Content, 8)),
		Citations: []entities.Citation{
			{Title: "Wicara development notes", URI: "https://example.com/wicara/dev"},
		},
	}

	m.history = append(m.history, response)
	return response, nil
}

// History implements repositories.ChatSession
func (m *MockChatSession) History() ([]repositories.ChatMessage, error) {
	return m.history, nil
}

// firstWords truncates text to at most n space-separated words
func firstWords(text string, n int) string {
	count := 0
	for i, r := range text {
		if r == ' ' {
			count++
			if count >= n {
				return text[:i] + "..."
			}
		}
	}
	return text
}
