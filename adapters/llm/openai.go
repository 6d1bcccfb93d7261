package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/swaralabs/wicara/domain/repositories"
)

const (
	defaultOpenAIModel          = openai.GPT4oMini
	defaultOpenAITemperature    = 0.4
	defaultOpenAIMaxTokens      = 2048
	defaultOpenAITimeoutSeconds = 30
)

// OpenAIConfig holds configuration for the OpenAI adapter
type OpenAIConfig struct {
	APIKey         string
	Model          string
	Temperature    float32
	MaxTokens      int
	TimeoutSeconds int
}

// ValidateOpenAIConfig validates the OpenAIConfig
func ValidateOpenAIConfig(config OpenAIConfig) error {
	if config.APIKey == "" {
		return fmt.Errorf("OpenAI API key is required")
	}
	if config.Temperature < 0 || config.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %f", config.Temperature)
	}
	if config.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout must be positive, got %d", config.TimeoutSeconds)
	}
	return nil
}

// OpenAILLM implements the LargeLanguageModel interface using the OpenAI API.
// OpenAI answers carry no citations; only grounded providers populate them.
type OpenAILLM struct {
	client *openai.Client
	config OpenAIConfig
	logger *zap.Logger
}

var _ repositories.LargeLanguageModel = (*OpenAILLM)(nil)

// NewOpenAILLM creates a new OpenAI LLM instance
func NewOpenAILLM(config OpenAIConfig, logger *zap.Logger) (*OpenAILLM, error) {
	if err := ValidateOpenAIConfig(config); err != nil {
		return nil, err
	}

	if config.Model == "" {
		config.Model = defaultOpenAIModel
		logger.Info("Using default model", zap.String("model", config.Model))
	}
	if config.Temperature == 0 {
		config.Temperature = defaultOpenAITemperature
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = defaultOpenAIMaxTokens
	}
	if config.TimeoutSeconds == 0 {
		config.TimeoutSeconds = defaultOpenAITimeoutSeconds
	}

	return &OpenAILLM{
		client: openai.NewClient(config.APIKey),
		config: config,
		logger: logger,
	}, nil
}

// Generate answers a single standalone prompt
func (o *OpenAILLM) Generate(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("prompt cannot be empty")
	}

	return o.complete(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	})
}

// GenerateChat creates a chat session with history
func (o *OpenAILLM) GenerateChat(ctx context.Context, history []repositories.ChatMessage) (repositories.ChatSession, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: chatSystemPrompt,
	})
	for _, msg := range history {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openAIRole(msg.Role),
			Content: msg.Content,
		})
	}

	return &OpenAIChatSession{llm: o, messages: messages}, nil
}

// complete runs one chat completion round-trip
func (o *OpenAILLM) complete(ctx context.Context, messages []openai.ChatCompletionMessage) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(o.config.TimeoutSeconds)*time.Second)
	defer cancel()

	resp, err := o.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model:       o.config.Model,
			Messages:    messages,
			MaxTokens:   o.config.MaxTokens,
			Temperature: o.config.Temperature,
		},
	)
	if err != nil {
		return "", fmt.Errorf("error creating completion with OpenAI: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no completion choices returned from OpenAI")
	}

	return resp.Choices[0].Message.Content, nil
}

// OpenAIChatSession implements the ChatSession interface
type OpenAIChatSession struct {
	llm      *OpenAILLM
	messages []openai.ChatCompletionMessage
}

// SendMessage sends a message and gets a response, updating the history
func (s *OpenAIChatSession) SendMessage(ctx context.Context, message repositories.ChatMessage) (repositories.ChatMessage, error) {
	attempt := append(s.messages, openai.ChatCompletionMessage{
		Role:    openAIRole(message.Role),
		Content: message.Content,
	})

	content, err := s.llm.complete(ctx, attempt)
	if err != nil {
		return repositories.ChatMessage{}, err
	}

	s.messages = append(attempt, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleAssistant,
		Content: content,
	})

	return repositories.ChatMessage{
		Role:    repositories.ModelRole,
		Content: content,
	}, nil
}

// History returns the current conversation history without the system prompt
func (s *OpenAIChatSession) History() ([]repositories.ChatMessage, error) {
	var history []repositories.ChatMessage
	for _, msg := range s.messages {
		switch msg.Role {
		case openai.ChatMessageRoleUser:
			history = append(history, repositories.ChatMessage{Role: repositories.UserRole, Content: msg.Content})
		case openai.ChatMessageRoleAssistant:
			history = append(history, repositories.ChatMessage{Role: repositories.ModelRole, Content: msg.Content})
		}
	}
	return history, nil
}

func openAIRole(role repositories.Role) string {
	switch role {
	case repositories.ModelRole:
		return openai.ChatMessageRoleAssistant
	case repositories.SystemRole:
		return openai.ChatMessageRoleSystem
	default:
		return openai.ChatMessageRoleUser
	}
}
