package llm

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/swaralabs/wicara/domain/entities"
	"github.com/swaralabs/wicara/domain/repositories"
)

// GeminiChatSession implements the ChatSession interface
type GeminiChatSession struct {
	client  *genai.Client
	config  GeminiConfig
	logger  *zap.Logger
	history []*genai.Content
}

// NewGeminiChatSession creates a new chat session with config and history
func NewGeminiChatSession(client *genai.Client, config GeminiConfig, logger *zap.Logger, history []repositories.ChatMessage) (*GeminiChatSession, error) {
	if err := ValidateGeminiConfig(config); err != nil {
		return nil, err
	}
	config = applyGeminiDefaults(config, logger)

	return &GeminiChatSession{
		client:  client,
		config:  config,
		logger:  logger,
		history: convertRepositoryToGeminiFormat(history),
	}, nil
}

// SendMessage sends a message and gets a response, updating the history.
// The caller decides how to surface a failure; no canned fallback text is
// substituted here.
func (s *GeminiChatSession) SendMessage(ctx context.Context, message repositories.ChatMessage) (repositories.ChatMessage, error) {
	// Prepare contents for API call (system prompt + history + current message)
	var contents []*genai.Content

	// Add system instruction as the first message
	contents = append(contents, genai.NewContentFromText(chatSystemPrompt, genai.RoleUser))

	// Add existing history (already in Gemini format)
	contents = append(contents, s.history...)

	// Add the current user message to the contents for this API call
	userContent := genai.NewContentFromText(message.Content, genai.RoleUser)
	contents = append(contents, userContent)

	config := &genai.GenerateContentConfig{
		SafetySettings:  geminiSafetySettings,
		Temperature:     genai.Ptr(s.config.Temperature),
		TopP:            genai.Ptr(s.config.TopP),
		TopK:            genai.Ptr(s.config.TopK),
		MaxOutputTokens: int32(s.config.MaxOutputTokens),
	}
	if s.config.EnableSearch {
		config.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(s.config.TimeoutSeconds)*time.Second)
	defer cancel()

	// Retry transient API failures before giving up
	var response *genai.GenerateContentResponse
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		response, err = s.client.Models.GenerateContent(ctx, s.config.Model, contents, config)
		if err == nil {
			break
		}

		s.logger.Warn("Failed to generate content, retrying",
			zap.Int("attempt", attempt+1),
			zap.Error(err))

		if attempt < 2 {
			select {
			case <-time.After(time.Duration(attempt+1) * time.Second):
			case <-ctx.Done():
				return repositories.ChatMessage{}, ctx.Err()
			}
		}
	}
	if err != nil {
		return repositories.ChatMessage{}, fmt.Errorf("failed to send message: %w", err)
	}

	answer := responseText(response)
	if answer == "" {
		return repositories.ChatMessage{}, fmt.Errorf("model returned no content")
	}

	// Add both messages to history
	responseContent := genai.NewContentFromText(answer, genai.RoleModel)
	s.history = append(s.history, userContent, responseContent)

	responseMessage := repositories.ChatMessage{
		Role:      repositories.ModelRole,
		Content:   answer,
		Citations: citationsFromResponse(response),
	}

	s.logger.Info("Chat session message processed",
		zap.String("user_message", message.Content[:min(50, len(message.Content))]),
		zap.String("response_preview", answer[:min(50, len(answer))]),
		zap.Int("citations", len(responseMessage.Citations)),
		zap.Int("history_length", len(s.history)))

	return responseMessage, nil
}

// History returns the current conversation history
func (s *GeminiChatSession) History() ([]repositories.ChatMessage, error) {
	return convertGeminiToRepositoryFormat(s.history), nil
}

// citationsFromResponse lifts the grounding sources of the first candidate
// into citations, dropping duplicates and chunks with no usable link.
func citationsFromResponse(response *genai.GenerateContentResponse) []entities.Citation {
	if response == nil || len(response.Candidates) == 0 {
		return nil
	}
	metadata := response.Candidates[0].GroundingMetadata
	if metadata == nil {
		return nil
	}

	var citations []entities.Citation
	seen := make(map[string]struct{})
	for _, chunk := range metadata.GroundingChunks {
		if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" {
			continue
		}
		if _, ok := seen[chunk.Web.URI]; ok {
			continue
		}
		seen[chunk.Web.URI] = struct{}{}
		citations = append(citations, entities.Citation{
			Title: chunk.Web.Title,
			URI:   chunk.Web.URI,
		})
	}
	return citations
}

// convertRepositoryToGeminiFormat converts repository messages to Gemini format
func convertRepositoryToGeminiFormat(messages []repositories.ChatMessage) []*genai.Content {
	var contents []*genai.Content

	for _, msg := range messages {
		var role genai.Role
		switch msg.Role {
		case repositories.UserRole:
			role = genai.RoleUser
		case repositories.ModelRole:
			role = genai.RoleModel
		case repositories.SystemRole:
			role = genai.RoleUser // Treat system messages as user messages in Gemini
		default:
			role = genai.RoleUser // Default to user role
		}

		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}

	return contents
}

// convertGeminiToRepositoryFormat converts Gemini content to repository messages
func convertGeminiToRepositoryFormat(contents []*genai.Content) []repositories.ChatMessage {
	var messages []repositories.ChatMessage

	for _, content := range contents {
		var role repositories.Role
		switch content.Role {
		case genai.RoleUser:
			role = repositories.UserRole
		case genai.RoleModel:
			role = repositories.ModelRole
		default:
			role = repositories.UserRole // Default to user role
		}

		// Extract text from parts (limiting to text only as specified)
		var text string
		for _, part := range content.Parts {
			if part.Text != "" {
				text += part.Text
			}
		}

		if text != "" {
			messages = append(messages, repositories.ChatMessage{
				Role:    role,
				Content: text,
			})
		}
	}

	return messages
}
