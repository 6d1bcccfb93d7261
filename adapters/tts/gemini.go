package tts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/swaralabs/wicara/domain/repositories"
)

const (
	defaultGeminiTTSModel = "gemini-2.5-flash-preview-tts"
	defaultGeminiVoice    = "Kore"
	geminiTTSTimeout      = 60 * time.Second
)

// GeminiTTSConfig holds configuration for the Gemini TTS adapter
// Required fields:
// - APIKey: Google AI API key
// Optional fields with defaults:
// - Model: TTS-capable Gemini model (default: "gemini-2.5-flash-preview-tts")
// - Voice: prebuilt voice name (default: "Kore")
type GeminiTTSConfig struct {
	APIKey string
	Model  string
	Voice  string
}

// GeminiTTS implements TextToSpeech using Gemini's audio generation. The
// model returns 24kHz mono s16le PCM, which is exactly what the playback
// pipeline consumes.
type GeminiTTS struct {
	client *genai.Client
	config GeminiTTSConfig
	logger *zap.Logger
}

var _ repositories.TextToSpeech = (*GeminiTTS)(nil)

// NewGeminiTTS creates a new Gemini TTS instance
func NewGeminiTTS(ctx context.Context, config GeminiTTSConfig, logger *zap.Logger) (*GeminiTTS, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Google AI API key is required")
	}
	if config.Model == "" {
		config.Model = defaultGeminiTTSModel
		logger.Info("Using default TTS model", zap.String("model", config.Model))
	}
	if config.Voice == "" {
		config.Voice = defaultGeminiVoice
		logger.Info("Using default voice", zap.String("voice", config.Voice))
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiTTS{
		client: client,
		config: config,
		logger: logger,
	}, nil
}

// Synthesize converts text to speech and returns the complete PCM clip
func (g *GeminiTTS) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	ctx, cancel := context.WithTimeout(ctx, geminiTTSTimeout)
	defer cancel()

	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{
					VoiceName: g.config.Voice,
				},
			},
		},
	}

	response, err := g.client.Models.GenerateContent(ctx, g.config.Model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("failed to generate speech: %w", err)
	}

	data := inlineAudioData(response)
	if len(data) == 0 {
		return nil, fmt.Errorf("model returned no audio")
	}

	g.logger.Debug("Received synthesized audio",
		zap.Int("bytes", len(data)),
		zap.String("voice", g.config.Voice))
	return data, nil
}

// inlineAudioData concatenates the audio parts of the first candidate. The
// SDK has already decoded the base64 payload into raw bytes.
func inlineAudioData(response *genai.GenerateContentResponse) []byte {
	if response == nil || len(response.Candidates) == 0 || response.Candidates[0].Content == nil {
		return nil
	}

	var data []byte
	for _, part := range response.Candidates[0].Content.Parts {
		if part.InlineData != nil && len(part.InlineData.Data) > 0 {
			data = append(data, part.InlineData.Data...)
		}
	}
	return data
}
