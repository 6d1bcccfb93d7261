package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/swaralabs/wicara/domain/repositories"
	"github.com/swaralabs/wicara/internal/audio"
	"github.com/swaralabs/wicara/pkg/wav"
)

// SpeechService renders stored messages as downloadable audio
type SpeechService struct {
	chat   *ChatService
	synth  repositories.TextToSpeech
	format audio.Format
	logger *zap.Logger
}

// NewSpeechService creates a new speech service
func NewSpeechService(
	chat *ChatService,
	synth repositories.TextToSpeech,
	format audio.Format,
	logger *zap.Logger,
) (*SpeechService, error) {
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("invalid audio format: %w", err)
	}
	return &SpeechService{
		chat:   chat,
		synth:  synth,
		format: format,
		logger: logger,
	}, nil
}

// RenderMessage synthesizes a stored message and returns it as a WAV file.
// The synthesized stream is decoded and re-encoded on the way, so truncated
// trailing bytes never reach the container.
func (s *SpeechService) RenderMessage(ctx context.Context, conversationID, messageID string) ([]byte, error) {
	conversation, err := s.chat.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	message := conversation.FindMessage(messageID)
	if message == nil {
		return nil, ErrMessageNotFound
	}

	pcm, err := s.synth.Synthesize(ctx, message.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to synthesize message: %w", err)
	}

	buffer, err := audio.Decode(pcm, s.format)
	if err != nil {
		return nil, fmt.Errorf("failed to decode synthesized audio: %w", err)
	}

	data, err := wav.FromPCM(audio.Encode(buffer), s.format.Channels, s.format.SampleRate)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Message rendered to WAV",
		zap.String("conversationID", conversationID),
		zap.String("messageID", messageID),
		zap.Duration("duration", buffer.Duration()))
	return data, nil
}
