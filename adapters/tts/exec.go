package tts

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/mattn/go-shellwords"
	"go.uber.org/zap"

	"github.com/swaralabs/wicara/domain/repositories"
)

// ExecTTSConfig holds configuration for the exec TTS adapter
// Required fields:
// - Command: shell-style command line of the synthesizer process
// Optional fields with defaults:
// - Voice: voice hint passed through to the process
// - SampleRate: PCM sample rate the process must render (default: 24000)
// - Channels: PCM channel count the process must render (default: 1)
type ExecTTSConfig struct {
	Command    string
	Voice      string
	SampleRate int
	Channels   int
}

// ExecTTS implements TextToSpeech by running a local synthesizer process per
// request. The process receives one JSON object on stdin:
//
//	{"text": "...", "voice": "...", "sample_rate": 24000, "channels": 1}
//
// and writes JSON lines on stdout, each carrying a base64-encoded slice of
// s16le PCM:
//
//	{"pcm_base64": "...", "final": false}
//
// This makes offline engines such as piper or espeak-ng usable behind a
// small wrapper script, with no API key at all.
type ExecTTS struct {
	cmd    []string
	config ExecTTSConfig
	logger *zap.Logger

	// One synthesis at a time; local engines rarely tolerate concurrent runs
	mu sync.Mutex
}

var _ repositories.TextToSpeech = (*ExecTTS)(nil)

type execRequest struct {
	Text       string `json:"text"`
	Voice      string `json:"voice,omitempty"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

type execResponse struct {
	PCMBase64 string `json:"pcm_base64"`
	Final     bool   `json:"final"`
}

// NewExecTTS creates a new exec TTS instance
func NewExecTTS(config ExecTTSConfig, logger *zap.Logger) (*ExecTTS, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(config.Command)
	if err != nil {
		return nil, fmt.Errorf("failed to parse tts command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("tts command is required")
	}

	if config.SampleRate == 0 {
		config.SampleRate = 24000
	}
	if config.Channels == 0 {
		config.Channels = 1
	}

	return &ExecTTS{
		cmd:    args,
		config: config,
		logger: logger,
	}, nil
}

// Synthesize converts text to speech and returns the complete PCM clip
func (e *ExecTTS) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	request, err := json.Marshal(execRequest{
		Text:       text,
		Voice:      e.config.Voice,
		SampleRate: e.config.SampleRate,
		Channels:   e.config.Channels,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	base := e.cmd[0]
	args := append([]string{}, e.cmd[1:]...)
	cmd := exec.CommandContext(ctx, base, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start synthesizer process: %w", err)
	}

	if _, err := stdin.Write(request); err != nil {
		cmd.Wait()
		return nil, fmt.Errorf("failed to write request: %w", err)
	}
	stdin.Close()

	var data []byte
	scanner := bufio.NewScanner(stdout)
	// Lines carry base64 audio slices and can outgrow the default token size
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var resp execResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			cmd.Wait()
			return nil, fmt.Errorf("failed to parse synthesizer output: %w", err)
		}
		pcm, err := base64.StdEncoding.DecodeString(resp.PCMBase64)
		if err != nil {
			cmd.Wait()
			return nil, fmt.Errorf("failed to decode synthesizer audio: %w", err)
		}
		data = append(data, pcm...)
	}
	if err := cmd.Wait(); err != nil {
		return nil, fmt.Errorf("synthesizer process failed: %w", err)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read synthesizer output: %w", err)
	}

	e.logger.Debug("Received synthesized audio",
		zap.String("command", base),
		zap.Int("bytes", len(data)))
	return data, nil
}
