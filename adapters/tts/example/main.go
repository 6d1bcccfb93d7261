// Demo for the speech synthesis adapters: renders a phrase with the chosen
// provider and writes a playable WAV file.
//
// Usage:
//
//	go run ./adapters/tts/example -provider mock -text "Hello from Wicara"
//	go run ./adapters/tts/example -provider elevenlabs   # needs ELEVEN_LABS_API_KEY
//	go run ./adapters/tts/example -provider openai       # needs OPENAI_API_KEY
//	go run ./adapters/tts/example -provider gemini       # needs GEMINI_API_KEY
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/swaralabs/wicara/adapters/tts"
	"github.com/swaralabs/wicara/domain/repositories"
	"github.com/swaralabs/wicara/internal/audio"
	"github.com/swaralabs/wicara/pkg/wav"
)

func main() {
	godotenv.Load()

	provider := flag.String("provider", "mock", "synthesizer to demo: mock, elevenlabs, openai, gemini, exec")
	text := flag.String("text", "Hello! This is the Wicara speech pipeline talking.", "text to render")
	command := flag.String("command", "", "synthesizer command line for the exec provider")
	output := flag.String("output", "example_output.wav", "output WAV file")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	synth, err := buildSynthesizer(ctx, *provider, *command, logger)
	if err != nil {
		logger.Fatal("Failed to create synthesizer", zap.Error(err))
	}

	logger.Info("Converting text to speech",
		zap.String("provider", *provider),
		zap.String("text", *text))

	data, err := synth.Synthesize(ctx, *text)
	if err != nil {
		logger.Fatal("Failed to synthesize", zap.Error(err))
	}

	// Decode to verify the clip, then re-encode into a WAV container
	format := audio.Format{SampleRate: 24000, Channels: 1}
	buffer, err := audio.Decode(data, format)
	if err != nil {
		logger.Fatal("Synthesizer returned unplayable audio", zap.Error(err))
	}

	wavData, err := wav.FromPCM(audio.Encode(buffer), format.Channels, format.SampleRate)
	if err != nil {
		logger.Fatal("Failed to build WAV file", zap.Error(err))
	}
	if err := os.WriteFile(*output, wavData, 0o644); err != nil {
		logger.Fatal("Failed to write output file", zap.Error(err))
	}

	logger.Info("Audio conversion completed",
		zap.Int("pcmBytes", len(data)),
		zap.Duration("duration", buffer.Duration()),
		zap.String("outputFile", *output))
	fmt.Printf("Audio saved to %s (%s of 24kHz mono). Any media player can open it.\n",
		*output, buffer.Duration().Round(time.Millisecond))
}

func buildSynthesizer(ctx context.Context, provider, command string, logger *zap.Logger) (repositories.TextToSpeech, error) {
	switch provider {
	case "mock":
		return tts.NewMockTTS(), nil
	case "elevenlabs":
		return tts.NewElevenLabsTTS(tts.ElevenLabsConfig{
			APIKey: os.Getenv("ELEVEN_LABS_API_KEY"),
		}, logger)
	case "openai":
		return tts.NewOpenAITTS(tts.OpenAITTSConfig{
			APIKey: os.Getenv("OPENAI_API_KEY"),
		}, logger)
	case "gemini":
		return tts.NewGeminiTTS(ctx, tts.GeminiTTSConfig{
			APIKey: os.Getenv("GEMINI_API_KEY"),
		}, logger)
	case "exec":
		return tts.NewExecTTS(tts.ExecTTSConfig{Command: command}, logger)
	default:
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
}
