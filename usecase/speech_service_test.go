package usecase

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/swaralabs/wicara/adapters/llm"
	"github.com/swaralabs/wicara/adapters/memory"
	"github.com/swaralabs/wicara/adapters/tts"
	"github.com/swaralabs/wicara/internal/audio"
)

// failingSynthesizer errors on every call
type failingSynthesizer struct{}

func (f *failingSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	return nil, errors.New("synthesizer unavailable")
}

func TestNewSpeechService_InvalidFormat(t *testing.T) {
	chat := NewChatService(memory.NewConversationRepository(), llm.NewMockLLM(), zaptest.NewLogger(t))

	_, err := NewSpeechService(chat, tts.NewMockTTS(), audio.Format{SampleRate: 0, Channels: 1}, zaptest.NewLogger(t))
	if err == nil {
		t.Error("Expected error for invalid audio format")
	}
}

func TestRenderMessage(t *testing.T) {
	logger := zaptest.NewLogger(t)
	chat := NewChatService(memory.NewConversationRepository(), llm.NewMockLLM(), logger)
	service, err := NewSpeechService(chat, tts.NewMockTTS(), audio.Format{SampleRate: 24000, Channels: 1}, logger)
	if err != nil {
		t.Fatalf("NewSpeechService failed: %v", err)
	}
	ctx := context.Background()

	conversation, err := chat.StartConversation(ctx, "client-1")
	if err != nil {
		t.Fatalf("StartConversation failed: %v", err)
	}
	_, reply, err := chat.Send(ctx, conversation.ID.Hex(), "Say something")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	data, err := service.RenderMessage(ctx, conversation.ID.Hex(), reply.ID)
	if err != nil {
		t.Fatalf("RenderMessage failed: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("RIFF")) {
		t.Error("Expected a RIFF header")
	}
	if len(data) < 44 || !bytes.Equal(data[8:12], []byte("WAVE")) {
		t.Error("Expected a WAVE container")
	}
	// The mock renders at least half a second of 24kHz mono PCM
	if len(data)-44 < 24000 {
		t.Errorf("Expected at least 0.5s of audio, got %d PCM bytes", len(data)-44)
	}

	t.Run("UnknownMessage", func(t *testing.T) {
		_, err := service.RenderMessage(ctx, conversation.ID.Hex(), "no-such-message")
		if !errors.Is(err, ErrMessageNotFound) {
			t.Errorf("Expected ErrMessageNotFound, got %v", err)
		}
	})

	t.Run("UnknownConversation", func(t *testing.T) {
		_, err := service.RenderMessage(ctx, "000000000000000000000000", reply.ID)
		if !errors.Is(err, ErrConversationNotFound) {
			t.Errorf("Expected ErrConversationNotFound, got %v", err)
		}
	})
}

func TestRenderMessage_SynthesisFailure(t *testing.T) {
	logger := zaptest.NewLogger(t)
	chat := NewChatService(memory.NewConversationRepository(), llm.NewMockLLM(), logger)
	service, err := NewSpeechService(chat, &failingSynthesizer{}, audio.Format{SampleRate: 24000, Channels: 1}, logger)
	if err != nil {
		t.Fatalf("NewSpeechService failed: %v", err)
	}
	ctx := context.Background()

	conversation, err := chat.StartConversation(ctx, "client-1")
	if err != nil {
		t.Fatalf("StartConversation failed: %v", err)
	}
	_, reply, err := chat.Send(ctx, conversation.ID.Hex(), "Say something")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if _, err := service.RenderMessage(ctx, conversation.ID.Hex(), reply.ID); err == nil {
		t.Error("Expected RenderMessage to fail when synthesis fails")
	}
}
