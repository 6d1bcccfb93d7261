package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/swaralabs/wicara/adapters/llm"
	"github.com/swaralabs/wicara/adapters/memory"
	"github.com/swaralabs/wicara/adapters/mongo"
	"github.com/swaralabs/wicara/adapters/tts"
	"github.com/swaralabs/wicara/domain/repositories"
	"github.com/swaralabs/wicara/internal/api"
	"github.com/swaralabs/wicara/internal/audio"
	"github.com/swaralabs/wicara/internal/auth"
	"github.com/swaralabs/wicara/internal/config"
	"github.com/swaralabs/wicara/internal/websocket"
	"github.com/swaralabs/wicara/usecase"
)

func main() {
	// .env is optional; real deployments set variables directly
	_ = godotenv.Load()

	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// Initialize logger
	var logger *zap.Logger
	if cfg.Environment == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()

	// Token manager; development gets a per-process secret when none is set
	secret := cfg.Auth.JWTSecret
	if secret == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			logger.Fatal("Failed to generate a session secret", zap.Error(err))
		}
		secret = hex.EncodeToString(buf)
		logger.Warn("auth.jwt_secret is not set; issued tokens will not survive a restart")
	}
	tokens, err := auth.NewTokenManager(secret, cfg.Auth.TokenTTL())
	if err != nil {
		logger.Fatal("Failed to create token manager", zap.Error(err))
	}

	// Initialize adapters
	conversations, mongoClient, err := buildStorage(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize storage", zap.Error(err))
	}

	model, err := buildLLM(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize language model", zap.Error(err))
	}

	synthesizer, err := buildSynthesizer(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize synthesizer", zap.Error(err))
	}

	format := audio.Format{SampleRate: cfg.TTS.SampleRate, Channels: cfg.TTS.Channels}

	// Initialize usecase services
	chatService := usecase.NewChatService(conversations, model, logger)
	speechService, err := usecase.NewSpeechService(chatService, synthesizer, format, logger)
	if err != nil {
		logger.Fatal("Failed to create speech service", zap.Error(err))
	}

	cleanupService := usecase.NewConversationCleanupService(conversations, logger)
	cleanupService.Start()

	// Initialize WebSocket hub
	hub, err := websocket.NewHub(websocket.HubConfig{
		Chat:          chatService,
		Synthesizer:   synthesizer,
		Format:        format,
		ChunkDuration: cfg.Playback.ChunkDuration(),
		FetchTimeout:  cfg.Playback.FetchTimeout(),
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create hub", zap.Error(err))
	}
	go hub.Run()

	// Create Echo instance
	e := echo.New()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Initialize API routes
	api.InitRoutes(e, hub, chatService, speechService, tokens, logger)

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Bind, cfg.HTTP.Port)

	// Graceful shutdown
	go func() {
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Server started",
		zap.String("address", addr),
		zap.String("llm", cfg.LLM.Mode),
		zap.String("tts", cfg.TTS.Mode),
		zap.String("storage", cfg.Storage.Mode))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	cleanupService.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	if mongoClient != nil {
		if err := mongoClient.Close(shutdownCtx); err != nil {
			logger.Error("Failed to close MongoDB connection", zap.Error(err))
		}
	}

	logger.Info("Server exited")
}

// buildStorage selects the conversation repository. The mongo client is
// returned so shutdown can close it.
func buildStorage(cfg config.Config, logger *zap.Logger) (repositories.ConversationRepository, *mongo.Client, error) {
	switch cfg.Storage.Mode {
	case "mongo":
		client, err := mongo.NewClient(cfg.Storage.MongoURI, cfg.Storage.MongoDatabase, logger)
		if err != nil {
			return nil, nil, err
		}
		return mongo.NewConversationRepository(client.Database, logger), client, nil
	default:
		return memory.NewConversationRepository(), nil, nil
	}
}

func buildLLM(ctx context.Context, cfg config.Config, logger *zap.Logger) (repositories.LargeLanguageModel, error) {
	switch cfg.LLM.Mode {
	case "gemini":
		return llm.NewGeminiLLM(ctx, llm.GeminiConfig{
			APIKey:          cfg.LLM.APIKey,
			Model:           cfg.LLM.Model,
			Temperature:     float32(cfg.LLM.Temperature),
			MaxOutputTokens: cfg.LLM.MaxTokens,
			EnableSearch:    cfg.LLM.EnableSearch,
		}, logger)
	case "openai":
		return llm.NewOpenAILLM(llm.OpenAIConfig{
			APIKey:      cfg.LLM.APIKey,
			Model:       cfg.LLM.Model,
			Temperature: float32(cfg.LLM.Temperature),
			MaxTokens:   cfg.LLM.MaxTokens,
		}, logger)
	default:
		return llm.NewMockLLM(), nil
	}
}

func buildSynthesizer(ctx context.Context, cfg config.Config, logger *zap.Logger) (repositories.TextToSpeech, error) {
	switch cfg.TTS.Mode {
	case "elevenlabs":
		return tts.NewElevenLabsTTS(tts.ElevenLabsConfig{
			APIKey:       cfg.TTS.APIKey,
			VoiceID:      cfg.TTS.Voice,
			ModelID:      cfg.TTS.Model,
			OutputFormat: fmt.Sprintf("pcm_%d", cfg.TTS.SampleRate),
		}, logger)
	case "openai":
		return tts.NewOpenAITTS(tts.OpenAITTSConfig{
			APIKey: cfg.TTS.APIKey,
			Model:  cfg.TTS.Model,
			Voice:  cfg.TTS.Voice,
		}, logger)
	case "gemini":
		return tts.NewGeminiTTS(ctx, tts.GeminiTTSConfig{
			APIKey: cfg.TTS.APIKey,
			Model:  cfg.TTS.Model,
			Voice:  cfg.TTS.Voice,
		}, logger)
	case "exec":
		return tts.NewExecTTS(tts.ExecTTSConfig{
			Command:    cfg.TTS.Command,
			Voice:      cfg.TTS.Voice,
			SampleRate: cfg.TTS.SampleRate,
			Channels:   cfg.TTS.Channels,
		}, logger)
	default:
		return tts.NewMockTTS(), nil
	}
}
