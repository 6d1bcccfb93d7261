package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/swaralabs/wicara/domain/repositories"
)

// ConversationCleanupService handles background expiry of stale conversations
type ConversationCleanupService struct {
	conversations repositories.ConversationRepository
	logger        *zap.Logger
	stopChan      chan struct{}
}

// NewConversationCleanupService creates a new conversation cleanup service
func NewConversationCleanupService(conversations repositories.ConversationRepository, logger *zap.Logger) *ConversationCleanupService {
	return &ConversationCleanupService{
		conversations: conversations,
		logger:        logger,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the background cleanup process
func (s *ConversationCleanupService) Start() {
	go s.cleanupLoop()
	s.logger.Info("Conversation cleanup service started")
}

// Stop gracefully stops the cleanup service
func (s *ConversationCleanupService) Stop() {
	close(s.stopChan)
	s.logger.Info("Conversation cleanup service stopped")
}

// cleanupLoop runs the cleanup process periodically
func (s *ConversationCleanupService) cleanupLoop() {
	// Run cleanup every 30 minutes
	ticker := time.NewTicker(30 * time.Minute)
	defer ticker.Stop()

	// Run initial cleanup after 1 minute
	initialTimer := time.NewTimer(1 * time.Minute)
	defer initialTimer.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-initialTimer.C:
			s.runCleanup()
			// Initial timer only runs once
		case <-ticker.C:
			s.runCleanup()
		}
	}
}

// runCleanup marks conversations past their expiry as expired
func (s *ConversationCleanupService) runCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	s.logger.Info("Starting conversation cleanup")

	err := s.conversations.ExpireConversations(ctx)
	if err != nil {
		s.logger.Error("Failed to expire conversations", zap.Error(err))
		return
	}

	s.logger.Info("Conversation cleanup completed successfully")
}
