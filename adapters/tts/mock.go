package tts

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/swaralabs/wicara/domain/repositories"
)

// MockTTS is an offline synthesizer for development and tests. It renders a
// soft tone whose length tracks the text, so the playback pipeline can be
// exercised end to end without any provider.
type MockTTS struct {
	sampleRate int
}

var _ repositories.TextToSpeech = (*MockTTS)(nil)

// NewMockTTS creates a new mock TTS rendering 24kHz mono PCM
func NewMockTTS() *MockTTS {
	return &MockTTS{sampleRate: 24000}
}

// Synthesize renders a tone clip in place of spoken audio
func (m *MockTTS) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	// Roughly 150ms per word, clamped to keep dev loops short
	words := len(strings.Fields(text))
	seconds := float64(words) * 0.15
	if seconds < 0.5 {
		seconds = 0.5
	}
	if seconds > 3.0 {
		seconds = 3.0
	}

	frames := int(seconds * float64(m.sampleRate))
	data := make([]byte, frames*2)
	for i := 0; i < frames; i++ {
		// 440Hz tone with a linear fade-out so clips end without a click
		fade := 1.0 - float64(i)/float64(frames)
		value := 0.2 * fade * math.Sin(2*math.Pi*440*float64(i)/float64(m.sampleRate))
		binary.LittleEndian.PutUint16(data[i*2:], uint16(int16(value*32767)))
	}
	return data, nil
}
