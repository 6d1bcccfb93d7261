package repositories

import (
	"context"

	"github.com/swaralabs/wicara/domain/entities"
)

// ConversationRepository defines data access methods for conversations
type ConversationRepository interface {
	Create(ctx context.Context, conversation *entities.Conversation) error
	GetByID(ctx context.Context, id string) (*entities.Conversation, error)
	// GetLatestByClient returns the client's most recent conversation,
	// or nil when the client has none.
	GetLatestByClient(ctx context.Context, clientID string) (*entities.Conversation, error)
	Update(ctx context.Context, conversation *entities.Conversation) error
	Delete(ctx context.Context, id string) error
	// ExpireConversations marks active conversations past their expiry as
	// expired.
	ExpireConversations(ctx context.Context) error
}
