package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/swaralabs/wicara/domain/entities"
	"github.com/swaralabs/wicara/domain/repositories"
)

// ConversationRepository implements repositories.ConversationRepository
// using MongoDB
type ConversationRepository struct {
	collection *mongo.Collection
	logger     *zap.Logger
}

// NewConversationRepository creates a new MongoDB conversation repository
func NewConversationRepository(db *mongo.Database, logger *zap.Logger) repositories.ConversationRepository {
	collection := db.Collection("conversations")

	// Create indexes for better performance
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// Index on client_id and last_active_at for latest-conversation lookups
		clientIndex := mongo.IndexModel{
			Keys: bson.D{
				{Key: "client_id", Value: 1},
				{Key: "last_active_at", Value: -1},
			},
		}

		// Index on status and expires_at for the expiry sweep
		statusExpiresIndex := mongo.IndexModel{
			Keys: bson.D{
				{Key: "status", Value: 1},
				{Key: "expires_at", Value: 1},
			},
		}

		// TTL index so expired conversations are eventually removed
		ttlIndex := mongo.IndexModel{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		}

		_, err := collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
			clientIndex,
			statusExpiresIndex,
			ttlIndex,
		})

		if err != nil {
			logger.Error("Failed to create conversation indexes", zap.Error(err))
		} else {
			logger.Info("Conversation indexes created successfully")
		}
	}()

	return &ConversationRepository{
		collection: collection,
		logger:     logger,
	}
}

// Create creates a new conversation
func (r *ConversationRepository) Create(ctx context.Context, conversation *entities.Conversation) error {
	if err := conversation.Validate(); err != nil {
		return err
	}

	_, err := r.collection.InsertOne(ctx, conversation)
	if err != nil {
		r.logger.Error("Failed to create conversation", zap.Error(err), zap.String("client_id", conversation.ClientID))
		return err
	}

	r.logger.Info("Conversation created",
		zap.String("conversation_id", conversation.ID.Hex()),
		zap.String("client_id", conversation.ClientID))

	return nil
}

// GetByID retrieves a conversation by its ID, returning nil when no
// conversation matches
func (r *ConversationRepository) GetByID(ctx context.Context, id string) (*entities.Conversation, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		// A malformed ID cannot match any conversation
		return nil, nil
	}

	var conversation entities.Conversation
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&conversation)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		r.logger.Error("Failed to get conversation by ID", zap.Error(err), zap.String("conversation_id", id))
		return nil, err
	}

	return &conversation, nil
}

// GetLatestByClient retrieves the most recently active conversation for a
// client, returning nil when the client has none
func (r *ConversationRepository) GetLatestByClient(ctx context.Context, clientID string) (*entities.Conversation, error) {
	filter := bson.M{"client_id": clientID}
	opts := options.FindOne().SetSort(bson.D{{Key: "last_active_at", Value: -1}})

	var conversation entities.Conversation
	err := r.collection.FindOne(ctx, filter, opts).Decode(&conversation)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil // No conversation for this client yet
		}
		r.logger.Error("Failed to get latest conversation", zap.Error(err), zap.String("client_id", clientID))
		return nil, err
	}

	return &conversation, nil
}

// Update updates a conversation
func (r *ConversationRepository) Update(ctx context.Context, conversation *entities.Conversation) error {
	if err := conversation.Validate(); err != nil {
		return err
	}

	filter := bson.M{"_id": conversation.ID}
	update := bson.M{"$set": conversation}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		r.logger.Error("Failed to update conversation", zap.Error(err), zap.String("conversation_id", conversation.ID.Hex()))
		return err
	}

	if result.MatchedCount == 0 {
		return errors.New("conversation not found")
	}

	r.logger.Debug("Conversation updated", zap.String("conversation_id", conversation.ID.Hex()))
	return nil
}

// Delete deletes a conversation
func (r *ConversationRepository) Delete(ctx context.Context, id string) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("invalid conversation id: %w", err)
	}

	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": objectID})
	if err != nil {
		r.logger.Error("Failed to delete conversation", zap.Error(err), zap.String("conversation_id", id))
		return err
	}

	if result.DeletedCount == 0 {
		return errors.New("conversation not found")
	}

	r.logger.Info("Conversation deleted", zap.String("conversation_id", id))
	return nil
}

// ExpireConversations marks active conversations past their expiration time
// as expired
func (r *ConversationRepository) ExpireConversations(ctx context.Context) error {
	filter := bson.M{
		"status":     entities.ConversationStatusActive,
		"expires_at": bson.M{"$lt": time.Now()},
	}

	update := bson.M{
		"$set": bson.M{
			"status": entities.ConversationStatusExpired,
		},
	}

	result, err := r.collection.UpdateMany(ctx, filter, update)
	if err != nil {
		r.logger.Error("Failed to expire conversations", zap.Error(err))
		return err
	}

	if result.ModifiedCount > 0 {
		r.logger.Info("Expired conversations", zap.Int64("count", result.ModifiedCount))
	}

	return nil
}
