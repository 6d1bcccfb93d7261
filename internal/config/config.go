package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type AuthConfig struct {
	JWTSecret     string `yaml:"jwt_secret"`
	TokenTTLHours int    `yaml:"token_ttl_hours"`
}

type StorageConfig struct {
	Mode          string `yaml:"mode"` // memory, mongo
	MongoURI      string `yaml:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_database"`
}

type LLMConfig struct {
	Mode         string  `yaml:"mode"` // gemini, openai, mock
	APIKey       string  `yaml:"api_key"`
	Model        string  `yaml:"model"`
	Temperature  float64 `yaml:"temperature"`
	MaxTokens    int     `yaml:"max_tokens"`
	EnableSearch bool    `yaml:"enable_search"`
}

type TTSConfig struct {
	Mode       string `yaml:"mode"` // elevenlabs, openai, gemini, exec, mock
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`
	Voice      string `yaml:"voice"`
	Command    string `yaml:"command"`
	SampleRate int    `yaml:"sample_rate"`
	Channels   int    `yaml:"channels"`
}

type PlaybackConfig struct {
	ChunkDurationMS     int `yaml:"chunk_duration_ms"`
	FetchTimeoutSeconds int `yaml:"fetch_timeout_seconds"`
}

type Config struct {
	ServiceName string         `yaml:"service_name"`
	Environment string         `yaml:"environment"`
	HTTP        HTTPConfig     `yaml:"http"`
	Auth        AuthConfig     `yaml:"auth"`
	Storage     StorageConfig  `yaml:"storage"`
	LLM         LLMConfig      `yaml:"llm"`
	TTS         TTSConfig      `yaml:"tts"`
	Playback    PlaybackConfig `yaml:"playback"`
}

// TokenTTL returns the configured token lifetime
func (a AuthConfig) TokenTTL() time.Duration {
	return time.Duration(a.TokenTTLHours) * time.Hour
}

// ChunkDuration returns the audio slice length per streamed frame
func (p PlaybackConfig) ChunkDuration() time.Duration {
	return time.Duration(p.ChunkDurationMS) * time.Millisecond
}

// FetchTimeout returns the synthesis deadline per playback attempt
func (p PlaybackConfig) FetchTimeout() time.Duration {
	return time.Duration(p.FetchTimeoutSeconds) * time.Second
}

func Default() Config {
	return Config{
		ServiceName: "wicara-server",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Auth: AuthConfig{
			TokenTTLHours: 24,
		},
		Storage: StorageConfig{
			Mode:          "memory",
			MongoURI:      "mongodb://localhost:27017",
			MongoDatabase: "wicara",
		},
		LLM: LLMConfig{
			Mode:         "mock",
			Temperature:  0.4,
			MaxTokens:    2048,
			EnableSearch: true,
		},
		TTS: TTSConfig{
			Mode:       "mock",
			SampleRate: 24000,
			Channels:   1,
		},
		Playback: PlaybackConfig{
			ChunkDurationMS:     100,
			FetchTimeoutSeconds: 30,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	applyProviderKeyFallbacks(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.ServiceName, "WICARA_SERVICE_NAME")
	overrideString(&cfg.Environment, "WICARA_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "WICARA_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "WICARA_HTTP_PORT")
	overrideString(&cfg.Auth.JWTSecret, "WICARA_AUTH_JWT_SECRET")
	overrideInt(&cfg.Auth.TokenTTLHours, "WICARA_AUTH_TOKEN_TTL_HOURS")
	overrideString(&cfg.Storage.Mode, "WICARA_STORAGE_MODE")
	overrideString(&cfg.Storage.MongoURI, "WICARA_STORAGE_MONGO_URI")
	overrideString(&cfg.Storage.MongoDatabase, "WICARA_STORAGE_MONGO_DATABASE")
	overrideString(&cfg.LLM.Mode, "WICARA_LLM_MODE")
	overrideString(&cfg.LLM.APIKey, "WICARA_LLM_API_KEY")
	overrideString(&cfg.LLM.Model, "WICARA_LLM_MODEL")
	overrideFloat(&cfg.LLM.Temperature, "WICARA_LLM_TEMPERATURE")
	overrideInt(&cfg.LLM.MaxTokens, "WICARA_LLM_MAX_TOKENS")
	overrideBool(&cfg.LLM.EnableSearch, "WICARA_LLM_ENABLE_SEARCH")
	overrideString(&cfg.TTS.Mode, "WICARA_TTS_MODE")
	overrideString(&cfg.TTS.APIKey, "WICARA_TTS_API_KEY")
	overrideString(&cfg.TTS.Model, "WICARA_TTS_MODEL")
	overrideString(&cfg.TTS.Voice, "WICARA_TTS_VOICE")
	overrideString(&cfg.TTS.Command, "WICARA_TTS_COMMAND")
	overrideInt(&cfg.TTS.SampleRate, "WICARA_TTS_SAMPLE_RATE")
	overrideInt(&cfg.TTS.Channels, "WICARA_TTS_CHANNELS")
	overrideInt(&cfg.Playback.ChunkDurationMS, "WICARA_PLAYBACK_CHUNK_DURATION_MS")
	overrideInt(&cfg.Playback.FetchTimeoutSeconds, "WICARA_PLAYBACK_FETCH_TIMEOUT_SECONDS")
}

// applyProviderKeyFallbacks fills missing API keys from the conventional
// provider variables, so a host that already exports GEMINI_API_KEY does not
// have to repeat it under a WICARA_ name.
func applyProviderKeyFallbacks(cfg *Config) {
	if cfg.LLM.APIKey == "" {
		switch cfg.LLM.Mode {
		case "gemini":
			overrideString(&cfg.LLM.APIKey, "GEMINI_API_KEY")
		case "openai":
			overrideString(&cfg.LLM.APIKey, "OPENAI_API_KEY")
		}
	}
	if cfg.TTS.APIKey == "" {
		switch cfg.TTS.Mode {
		case "elevenlabs":
			overrideString(&cfg.TTS.APIKey, "ELEVEN_LABS_API_KEY")
		case "openai":
			overrideString(&cfg.TTS.APIKey, "OPENAI_API_KEY")
		case "gemini":
			overrideString(&cfg.TTS.APIKey, "GEMINI_API_KEY")
		}
	}
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.ServiceName == "" {
		return errors.New("service_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Environment == "production" && cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret must be set in production")
	}
	if cfg.Auth.TokenTTLHours <= 0 {
		return errors.New("auth.token_ttl_hours must be positive")
	}
	switch cfg.Storage.Mode {
	case "memory":
	case "mongo":
		if cfg.Storage.MongoURI == "" {
			return errors.New("storage.mongo_uri must be set when storage.mode=mongo")
		}
		if cfg.Storage.MongoDatabase == "" {
			return errors.New("storage.mongo_database must be set when storage.mode=mongo")
		}
	default:
		return errors.New("storage.mode must be one of memory|mongo")
	}
	switch cfg.LLM.Mode {
	case "mock":
	case "gemini", "openai":
		if cfg.LLM.APIKey == "" {
			return fmt.Errorf("llm.api_key must be set when llm.mode=%s", cfg.LLM.Mode)
		}
	default:
		return errors.New("llm.mode must be one of gemini|openai|mock")
	}
	if cfg.LLM.Temperature < 0 {
		return errors.New("llm.temperature must be >= 0")
	}
	if cfg.LLM.MaxTokens < 0 {
		return errors.New("llm.max_tokens must be >= 0")
	}
	switch cfg.TTS.Mode {
	case "mock":
	case "exec":
		if cfg.TTS.Command == "" {
			return errors.New("tts.command must be set when tts.mode=exec")
		}
	case "elevenlabs", "openai", "gemini":
		if cfg.TTS.APIKey == "" {
			return fmt.Errorf("tts.api_key must be set when tts.mode=%s", cfg.TTS.Mode)
		}
	default:
		return errors.New("tts.mode must be one of elevenlabs|openai|gemini|exec|mock")
	}
	if cfg.TTS.SampleRate <= 0 {
		return errors.New("tts.sample_rate must be positive")
	}
	if cfg.TTS.Channels <= 0 {
		return errors.New("tts.channels must be positive")
	}
	if cfg.Playback.ChunkDurationMS <= 0 {
		return errors.New("playback.chunk_duration_ms must be positive")
	}
	if cfg.Playback.FetchTimeoutSeconds <= 0 {
		return errors.New("playback.fetch_timeout_seconds must be positive")
	}
	return nil
}
