package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/swaralabs/wicara/domain/entities"
	"github.com/swaralabs/wicara/domain/repositories"
)

// ConversationRepository is an in-memory implementation of
// repositories.ConversationRepository. It is suitable for single-instance
// deployments and for tests; conversations do not survive a restart.
type ConversationRepository struct {
	mu            sync.RWMutex
	conversations map[string]*entities.Conversation // hex id -> conversation mapping
}

// NewConversationRepository creates a new in-memory conversation repository
func NewConversationRepository() *ConversationRepository {
	return &ConversationRepository{
		conversations: make(map[string]*entities.Conversation),
	}
}

// clone copies a conversation, including its message list, so callers and
// the stored snapshot cannot mutate each other. Citations are set once when
// a message is stored and never edited, so sharing them is safe.
func clone(conversation *entities.Conversation) *entities.Conversation {
	copied := *conversation
	copied.Messages = append([]entities.Message(nil), conversation.Messages...)
	return &copied
}

// Create implements ConversationRepository interface
func (m *ConversationRepository) Create(ctx context.Context, conversation *entities.Conversation) error {
	if conversation == nil {
		return errors.New("conversation cannot be nil")
	}

	if err := conversation.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Generate ID if not provided
	if conversation.ID.IsZero() {
		conversation.ID = primitive.NewObjectID()
	}

	id := conversation.ID.Hex()
	if _, exists := m.conversations[id]; exists {
		return errors.New("conversation already exists")
	}

	m.conversations[id] = clone(conversation)
	return nil
}

// GetByID implements ConversationRepository interface. A miss returns nil
// rather than an error.
func (m *ConversationRepository) GetByID(ctx context.Context, id string) (*entities.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conversation, exists := m.conversations[id]
	if !exists {
		return nil, nil
	}

	// Return a copy to prevent external modifications
	return clone(conversation), nil
}

// GetLatestByClient implements ConversationRepository interface. It returns
// the client's most recently active conversation, or nil when the client
// has none.
func (m *ConversationRepository) GetLatestByClient(ctx context.Context, clientID string) (*entities.Conversation, error) {
	if clientID == "" {
		return nil, errors.New("client ID cannot be empty")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *entities.Conversation
	for _, conversation := range m.conversations {
		if conversation.ClientID != clientID {
			continue
		}
		if latest == nil || conversation.LastActiveAt.After(latest.LastActiveAt) {
			latest = conversation
		}
	}

	if latest == nil {
		return nil, nil
	}

	// Return a copy to prevent external modifications
	return clone(latest), nil
}

// Update implements ConversationRepository interface
func (m *ConversationRepository) Update(ctx context.Context, conversation *entities.Conversation) error {
	if conversation == nil {
		return errors.New("conversation cannot be nil")
	}

	if conversation.ID.IsZero() {
		return errors.New("conversation ID cannot be empty")
	}

	if err := conversation.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := conversation.ID.Hex()
	if _, exists := m.conversations[id]; !exists {
		return errors.New("conversation not found")
	}

	m.conversations[id] = clone(conversation)
	return nil
}

// Delete implements ConversationRepository interface
func (m *ConversationRepository) Delete(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("conversation ID cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.conversations[id]; !exists {
		return errors.New("conversation not found")
	}

	delete(m.conversations, id)
	return nil
}

// ExpireConversations implements ConversationRepository interface. Active
// conversations past their expiration time are marked expired in place.
func (m *ConversationRepository) ExpireConversations(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for _, conversation := range m.conversations {
		if conversation.Status == entities.ConversationStatusActive && conversation.ExpiresAt.Before(now) {
			conversation.Status = entities.ConversationStatusExpired
		}
	}

	return nil
}

var _ repositories.ConversationRepository = (*ConversationRepository)(nil)
