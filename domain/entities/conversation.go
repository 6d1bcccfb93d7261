package entities

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ConversationStatus represents the status of a conversation
type ConversationStatus string

const (
	ConversationStatusActive     ConversationStatus = "active"
	ConversationStatusExpired    ConversationStatus = "expired"
	ConversationStatusTerminated ConversationStatus = "terminated"
)

// MessageRole represents the role of a message sender
type MessageRole string

const (
	MessageRoleUser  MessageRole = "user"
	MessageRoleModel MessageRole = "model"
)

// MessageKind distinguishes regular replies from rewrites of earlier ones
type MessageKind string

const (
	MessageKindNormal     MessageKind = "normal"
	MessageKindSimplified MessageKind = "simplified"
)

// Citation is a source reference attached to a model answer
type Citation struct {
	Title string `json:"title" bson:"title"`
	URI   string `json:"uri" bson:"uri"`
}

// Message represents a single message within a conversation. Content is
// markdown; the client decides how to render it.
type Message struct {
	ID        string      `json:"id" bson:"id"`
	Role      MessageRole `json:"role" bson:"role"`
	Content   string      `json:"content" bson:"content"`
	Citations []Citation  `json:"citations,omitempty" bson:"citations,omitempty"`
	Kind      MessageKind `json:"kind" bson:"kind"`
	ParentID  string      `json:"parent_id,omitempty" bson:"parent_id,omitempty"`
	CreatedAt time.Time   `json:"created_at" bson:"created_at"`
}

// Conversation represents a chat between one client and the model
type Conversation struct {
	ID            primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	ClientID      string             `json:"client_id" bson:"client_id"`
	CreatedAt     time.Time          `json:"created_at" bson:"created_at"`
	LastActiveAt  time.Time          `json:"last_active_at" bson:"last_active_at"`
	LastMessageAt *time.Time         `json:"last_message_at" bson:"last_message_at"`
	ExpiresAt     time.Time          `json:"expires_at" bson:"expires_at"`
	Status        ConversationStatus `json:"status" bson:"status"`
	Messages      []Message          `json:"messages" bson:"messages"`
}

// NewConversation creates a new conversation for a client
func NewConversation(clientID string) *Conversation {
	now := time.Now()
	return &Conversation{
		ID:           primitive.NewObjectID(),
		ClientID:     clientID,
		CreatedAt:    now,
		LastActiveAt: now,
		ExpiresAt:    now.Add(24 * time.Hour), // Default 24 hour expiration
		Status:       ConversationStatusActive,
		Messages:     make([]Message, 0),
	}
}

// AddMessage appends a new message and returns it
func (c *Conversation) AddMessage(role MessageRole, content string) *Message {
	now := time.Now()
	message := Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Kind:      MessageKindNormal,
		CreatedAt: now,
	}

	c.Messages = append(c.Messages, message)
	c.LastMessageAt = &now
	c.UpdateLastActive()
	return &c.Messages[len(c.Messages)-1]
}

// AddSimplifiedMessage appends a plainer rewrite of an earlier model message
func (c *Conversation) AddSimplifiedMessage(parentID, content string) *Message {
	message := c.AddMessage(MessageRoleModel, content)
	message.Kind = MessageKindSimplified
	message.ParentID = parentID
	return message
}

// FindMessage returns the message with the given ID, or nil
func (c *Conversation) FindMessage(messageID string) *Message {
	for i := range c.Messages {
		if c.Messages[i].ID == messageID {
			return &c.Messages[i]
		}
	}
	return nil
}

// UpdateLastActive updates the last active timestamp and extends expiration
func (c *Conversation) UpdateLastActive() {
	c.LastActiveAt = time.Now()
	// Extend expiration by 24 hours from last activity
	c.ExpiresAt = c.LastActiveAt.Add(24 * time.Hour)
}

// IsExpired checks if the conversation has expired
func (c *Conversation) IsExpired() bool {
	return time.Now().After(c.ExpiresAt) || c.Status != ConversationStatusActive
}

// ShouldStartNew checks whether a fresh conversation is due under the
// 30-minute idle rule
func (c *Conversation) ShouldStartNew() bool {
	if c.LastMessageAt == nil {
		return false // No messages yet, can continue this conversation
	}

	return time.Since(*c.LastMessageAt) > 30*time.Minute
}

// Terminate marks the conversation as terminated
func (c *Conversation) Terminate() {
	c.Status = ConversationStatusTerminated
	c.UpdateLastActive()
}

// Expire marks the conversation as expired
func (c *Conversation) Expire() {
	c.Status = ConversationStatusExpired
}

// History returns the messages for LLM context
func (c *Conversation) History() []Message {
	return c.Messages
}

// Validate validates the conversation data
func (c *Conversation) Validate() error {
	if c.ClientID == "" {
		return errors.New("client_id is required")
	}

	if c.Status != ConversationStatusActive && c.Status != ConversationStatusExpired && c.Status != ConversationStatusTerminated {
		return errors.New("invalid conversation status")
	}

	return nil
}
