package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/swaralabs/wicara/domain/entities"
	"github.com/swaralabs/wicara/domain/repositories"
)

var (
	// ErrConversationNotFound is returned when a conversation ID resolves to nothing
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrMessageNotFound is returned when a message ID resolves to nothing
	ErrMessageNotFound = errors.New("message not found")
	// ErrNotModelMessage is returned when simplify targets a user message
	ErrNotModelMessage = errors.New("only model answers can be simplified")
)

const simplifyInstruction = "Rewrite the following answer so a newcomer can follow it. " +
	"Use short sentences and everyday words, keep the markdown structure, and do not add new information.\n\n"

// ChatService handles conversation logic: appending messages, asking the
// model for replies, and producing simplified rewrites.
type ChatService struct {
	conversations repositories.ConversationRepository
	llm           repositories.LargeLanguageModel
	logger        *zap.Logger
}

// NewChatService creates a new chat service
func NewChatService(
	conversations repositories.ConversationRepository,
	llm repositories.LargeLanguageModel,
	logger *zap.Logger,
) *ChatService {
	return &ChatService{
		conversations: conversations,
		llm:           llm,
		logger:        logger,
	}
}

// StartConversation creates and persists a fresh conversation for a client
func (s *ChatService) StartConversation(ctx context.Context, clientID string) (*entities.Conversation, error) {
	conversation := entities.NewConversation(clientID)
	if err := conversation.Validate(); err != nil {
		return nil, err
	}
	if err := s.conversations.Create(ctx, conversation); err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	s.logger.Info("Conversation started",
		zap.String("conversationID", conversation.ID.Hex()),
		zap.String("clientID", clientID))
	return conversation, nil
}

// Resume returns the client's most recent usable conversation, starting a
// fresh one when the previous expired or idled past the 30-minute rule.
func (s *ChatService) Resume(ctx context.Context, clientID string) (*entities.Conversation, error) {
	latest, err := s.conversations.GetLatestByClient(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up latest conversation: %w", err)
	}

	if latest != nil && !latest.IsExpired() && !latest.ShouldStartNew() {
		return latest, nil
	}
	return s.StartConversation(ctx, clientID)
}

// Get returns a conversation by ID
func (s *ChatService) Get(ctx context.Context, conversationID string) (*entities.Conversation, error) {
	conversation, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	if conversation == nil {
		return nil, ErrConversationNotFound
	}
	return conversation, nil
}

// AppendUserMessage stores the user's question and returns the stored copy
func (s *ChatService) AppendUserMessage(ctx context.Context, conversationID, text string) (entities.Message, error) {
	if strings.TrimSpace(text) == "" {
		return entities.Message{}, errors.New("text cannot be empty")
	}

	conversation, err := s.Get(ctx, conversationID)
	if err != nil {
		return entities.Message{}, err
	}

	message := conversation.AddMessage(entities.MessageRoleUser, text)
	if err := s.conversations.Update(ctx, conversation); err != nil {
		return entities.Message{}, fmt.Errorf("failed to store user message: %w", err)
	}
	return *message, nil
}

// GenerateReply asks the model to answer the latest user message and stores
// the reply, including any citations the provider grounded it with.
func (s *ChatService) GenerateReply(ctx context.Context, conversationID string) (entities.Message, error) {
	conversation, err := s.Get(ctx, conversationID)
	if err != nil {
		return entities.Message{}, err
	}

	if len(conversation.Messages) == 0 {
		return entities.Message{}, errors.New("conversation has no messages to answer")
	}
	last := conversation.Messages[len(conversation.Messages)-1]
	if last.Role != entities.MessageRoleUser {
		return entities.Message{}, errors.New("latest message is not from the user")
	}

	history := toChatHistory(conversation.Messages[:len(conversation.Messages)-1])
	session, err := s.llm.GenerateChat(ctx, history)
	if err != nil {
		return entities.Message{}, fmt.Errorf("failed to open chat session: %w", err)
	}

	reply, err := session.SendMessage(ctx, repositories.ChatMessage{
		Role:    repositories.UserRole,
		Content: last.Content,
	})
	if err != nil {
		return entities.Message{}, fmt.Errorf("failed to generate reply: %w", err)
	}

	message := conversation.AddMessage(entities.MessageRoleModel, reply.Content)
	message.Citations = reply.Citations
	if err := s.conversations.Update(ctx, conversation); err != nil {
		return entities.Message{}, fmt.Errorf("failed to store reply: %w", err)
	}

	s.logger.Info("Reply generated",
		zap.String("conversationID", conversationID),
		zap.Int("citations", len(message.Citations)))
	return *message, nil
}

// Send is the synchronous request/reply path: store the question, answer it
func (s *ChatService) Send(ctx context.Context, conversationID, text string) (entities.Message, entities.Message, error) {
	user, err := s.AppendUserMessage(ctx, conversationID, text)
	if err != nil {
		return entities.Message{}, entities.Message{}, err
	}
	reply, err := s.GenerateReply(ctx, conversationID)
	if err != nil {
		return user, entities.Message{}, err
	}
	return user, reply, nil
}

// Simplify produces a plainer rewrite of a model answer as a new message
// linked to the original. There is no automatic retry; the user may ask
// again.
func (s *ChatService) Simplify(ctx context.Context, conversationID, messageID string) (entities.Message, error) {
	conversation, err := s.Get(ctx, conversationID)
	if err != nil {
		return entities.Message{}, err
	}

	target := conversation.FindMessage(messageID)
	if target == nil {
		return entities.Message{}, ErrMessageNotFound
	}
	if target.Role != entities.MessageRoleModel {
		return entities.Message{}, ErrNotModelMessage
	}

	content, err := s.llm.Generate(ctx, simplifyInstruction+target.Content)
	if err != nil {
		return entities.Message{}, fmt.Errorf("failed to simplify answer: %w", err)
	}

	message := conversation.AddSimplifiedMessage(messageID, content)
	if err := s.conversations.Update(ctx, conversation); err != nil {
		return entities.Message{}, fmt.Errorf("failed to store simplified answer: %w", err)
	}

	s.logger.Info("Answer simplified",
		zap.String("conversationID", conversationID),
		zap.String("messageID", messageID))
	return *message, nil
}

// toChatHistory maps stored messages onto the LLM chat history shape
func toChatHistory(messages []entities.Message) []repositories.ChatMessage {
	history := make([]repositories.ChatMessage, 0, len(messages))
	for _, message := range messages {
		role := repositories.UserRole
		if message.Role == entities.MessageRoleModel {
			role = repositories.ModelRole
		}
		history = append(history, repositories.ChatMessage{
			Role:    role,
			Content: message.Content,
		})
	}
	return history
}
