package tts

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/swaralabs/wicara/domain/repositories"
)

const (
	defaultOpenAITTSModel = "tts-1"
	defaultOpenAIVoice    = "nova"
	defaultOpenAISpeed    = 1.0
	openAITTSTimeout      = 60 * time.Second
)

// OpenAITTSConfig holds configuration for the OpenAI TTS adapter
// Required fields:
// - APIKey: OpenAI API key
// Optional fields with defaults:
// - Model: "tts-1" or "tts-1-hd" (default: "tts-1")
// - Voice: OpenAI voice name (default: "nova")
// - Speed: 0.25-4.0 (default: 1.0)
type OpenAITTSConfig struct {
	APIKey string
	Model  string
	Voice  string
	Speed  float64
}

// OpenAITTS implements TextToSpeech using the OpenAI speech API. The PCM
// response format is 24kHz mono s16le, matching the playback pipeline.
type OpenAITTS struct {
	client *openai.Client
	config OpenAITTSConfig
	logger *zap.Logger
}

var _ repositories.TextToSpeech = (*OpenAITTS)(nil)

// NewOpenAITTS creates a new OpenAI TTS instance
func NewOpenAITTS(config OpenAITTSConfig, logger *zap.Logger) (*OpenAITTS, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if config.Speed != 0 && (config.Speed < 0.25 || config.Speed > 4.0) {
		return nil, fmt.Errorf("speed must be between 0.25 and 4.0, got %f", config.Speed)
	}

	if config.Model == "" {
		config.Model = defaultOpenAITTSModel
		logger.Info("Using default TTS model", zap.String("model", config.Model))
	}
	if config.Voice == "" {
		config.Voice = defaultOpenAIVoice
		logger.Info("Using default voice", zap.String("voice", config.Voice))
	}
	if config.Speed == 0 {
		config.Speed = defaultOpenAISpeed
	}

	return &OpenAITTS{
		client: openai.NewClient(config.APIKey),
		config: config,
		logger: logger,
	}, nil
}

// Synthesize converts text to speech and returns the complete PCM clip
func (o *OpenAITTS) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	ctx, cancel := context.WithTimeout(ctx, openAITTSTimeout)
	defer cancel()

	o.logger.Info("Converting text to speech",
		zap.Int("textLength", len(text)),
		zap.String("voice", o.config.Voice))

	response, err := o.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(o.config.Model),
		Input:          text,
		Voice:          openai.SpeechVoice(o.config.Voice),
		Speed:          o.config.Speed,
		ResponseFormat: openai.SpeechResponseFormatPcm,
	})
	if err != nil {
		return nil, fmt.Errorf("TTS request failed: %w", err)
	}
	defer response.Close()

	data, err := io.ReadAll(response)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio data: %w", err)
	}

	o.logger.Debug("Received synthesized audio", zap.Int("bytes", len(data)))
	return data, nil
}
