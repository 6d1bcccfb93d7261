package tts

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zaptest"
)

func TestNewExecTTS(t *testing.T) {
	logger := zaptest.NewLogger(t)

	tests := []struct {
		name    string
		config  ExecTTSConfig
		wantErr bool
	}{
		{
			name:    "valid command",
			config:  ExecTTSConfig{Command: "piper --model en_US"},
			wantErr: false,
		},
		{
			name:    "empty command",
			config:  ExecTTSConfig{},
			wantErr: true,
		},
		{
			name:    "unterminated quote",
			config:  ExecTTSConfig{Command: `piper --model "en_US`},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewExecTTS(tt.config, logger)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewExecTTS() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestExecTTS_Defaults(t *testing.T) {
	logger := zaptest.NewLogger(t)

	tts, err := NewExecTTS(ExecTTSConfig{Command: "synth"}, logger)
	if err != nil {
		t.Fatalf("Failed to create ExecTTS: %v", err)
	}
	if tts.config.SampleRate != 24000 {
		t.Errorf("Expected default sample rate 24000, got %d", tts.config.SampleRate)
	}
	if tts.config.Channels != 1 {
		t.Errorf("Expected default channel count 1, got %d", tts.config.Channels)
	}
}

func TestExecTTS_Synthesize(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("Skipping exec test - sh not available")
	}
	logger := zaptest.NewLogger(t)

	// A stand-in synthesizer script; its two lines decode to 00 01 and 02 ff
	script := filepath.Join(t.TempDir(), "synth.sh")
	content := "#!/bin/sh\n" +
		"cat > /dev/null\n" +
		"printf '%s\\n' '{\"pcm_base64\":\"AAE=\",\"final\":false}' '{\"pcm_base64\":\"Av8=\",\"final\":true}'\n"
	if err := os.WriteFile(script, []byte(content), 0o755); err != nil {
		t.Fatalf("Failed to write synthesizer script: %v", err)
	}

	tts, err := NewExecTTS(ExecTTSConfig{Command: "sh " + script}, logger)
	if err != nil {
		t.Fatalf("Failed to create ExecTTS: %v", err)
	}

	data, err := tts.Synthesize(context.Background(), "Hello")
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	expected := []byte{0x00, 0x01, 0x02, 0xFF}
	if !bytes.Equal(data, expected) {
		t.Errorf("Expected %v, got %v", expected, data)
	}
}

func TestExecTTS_Synthesize_ProcessFailure(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("Skipping exec test - sh not available")
	}
	logger := zaptest.NewLogger(t)

	tts, err := NewExecTTS(ExecTTSConfig{Command: "sh -c 'cat > /dev/null; exit 3'"}, logger)
	if err != nil {
		t.Fatalf("Failed to create ExecTTS: %v", err)
	}

	if _, err := tts.Synthesize(context.Background(), "Hello"); err == nil {
		t.Error("Expected error when the process exits non-zero")
	}
}

func TestExecTTS_Synthesize_BadOutput(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("Skipping exec test - sh not available")
	}
	logger := zaptest.NewLogger(t)

	tts, err := NewExecTTS(ExecTTSConfig{Command: `sh -c 'cat > /dev/null; echo not-json'`}, logger)
	if err != nil {
		t.Fatalf("Failed to create ExecTTS: %v", err)
	}

	if _, err := tts.Synthesize(context.Background(), "Hello"); err == nil {
		t.Error("Expected error for malformed synthesizer output")
	}
}
