package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the outbound calling service.
type Config struct {
	Host             string
	Port             int
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	LogLevel         string

	// OurBaseURL is the public https base under which Exotel can reach the
	// status webhook and the media websocket.
	OurBaseURL string

	DatabaseURL string
	RedisURL    string

	CallingHoursStart  int
	CallingHoursEnd    int
	MaxConcurrentCalls int
	MaxCallDuration    time.Duration
	WorkerInterval     time.Duration

	ExotelAccountSID    string
	ExotelAPIKey        string
	ExotelAPIToken      string
	ExotelVirtualNumber string
	ExotelFlowID        string
	ExotelSubdomain     string

	DeepgramAPIKey string

	OpenAIAPIKey string
	OpenAIModel  string

	ElevenLabsAPIKey  string
	ElevenLabsVoiceID string

	// ProviderMode selects live providers, mocks, or auto (mock when keys
	// are missing).
	ProviderMode string
}

// BindAddr joins host and port for the HTTP server.
func (c Config) BindAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		Host:                envOrDefault("HOST", "0.0.0.0"),
		Port:                8080,
		ShutdownTimeout:     15 * time.Second,
		MetricsNamespace:    envOrDefault("METRICS_NAMESPACE", "leadvoice"),
		LogLevel:            envOrDefault("LOG_LEVEL", "info"),
		OurBaseURL:          trimSpaceEnv("OUR_BASE_URL"),
		DatabaseURL:         trimSpaceEnv("DATABASE_URL"),
		RedisURL:            trimSpaceEnv("REDIS_URL"),
		CallingHoursStart:   10,
		CallingHoursEnd:     19,
		MaxConcurrentCalls:  3,
		MaxCallDuration:     10 * time.Minute,
		WorkerInterval:      30 * time.Second,
		ExotelAccountSID:    trimSpaceEnv("EXOTEL_ACCOUNT_SID"),
		ExotelAPIKey:        trimSpaceEnv("EXOTEL_API_KEY"),
		ExotelAPIToken:      trimSpaceEnv("EXOTEL_API_TOKEN"),
		ExotelVirtualNumber: trimSpaceEnv("EXOTEL_VIRTUAL_NUMBER"),
		ExotelFlowID:        trimSpaceEnv("EXOTEL_FLOW_ID"),
		ExotelSubdomain:     envOrDefault("EXOTEL_SUBDOMAIN", "api.exotel.com"),
		DeepgramAPIKey:      trimSpaceEnv("DEEPGRAM_API_KEY"),
		OpenAIAPIKey:        trimSpaceEnv("OPENAI_API_KEY"),
		OpenAIModel:         envOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
		ElevenLabsAPIKey:    trimSpaceEnv("ELEVENLABS_API_KEY"),
		ElevenLabsVoiceID:   trimSpaceEnv("ELEVENLABS_VOICE_ID"),
		ProviderMode:        envOrDefault("PROVIDER_MODE", "auto"),
	}

	var err error
	if cfg.Port, err = intFromEnv("PORT", cfg.Port); err != nil {
		return Config{}, err
	}
	if cfg.ShutdownTimeout, err = durationFromEnv("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout); err != nil {
		return Config{}, err
	}
	if cfg.CallingHoursStart, err = intFromEnv("CALLING_HOURS_START", cfg.CallingHoursStart); err != nil {
		return Config{}, err
	}
	if cfg.CallingHoursEnd, err = intFromEnv("CALLING_HOURS_END", cfg.CallingHoursEnd); err != nil {
		return Config{}, err
	}
	if cfg.MaxConcurrentCalls, err = intFromEnv("MAX_CONCURRENT_CALLS", cfg.MaxConcurrentCalls); err != nil {
		return Config{}, err
	}
	maxMinutes := int(cfg.MaxCallDuration / time.Minute)
	if maxMinutes, err = intFromEnv("MAX_CALL_DURATION_MINUTES", maxMinutes); err != nil {
		return Config{}, err
	}
	cfg.MaxCallDuration = time.Duration(maxMinutes) * time.Minute
	if cfg.WorkerInterval, err = durationFromEnv("WORKER_INTERVAL", cfg.WorkerInterval); err != nil {
		return Config{}, err
	}

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return Config{}, fmt.Errorf("PORT must be in 1..65535")
	}
	if cfg.CallingHoursStart < 0 || cfg.CallingHoursStart > 23 {
		return Config{}, fmt.Errorf("CALLING_HOURS_START must be in 0..23")
	}
	if cfg.CallingHoursEnd < 0 || cfg.CallingHoursEnd > 23 {
		return Config{}, fmt.Errorf("CALLING_HOURS_END must be in 0..23")
	}
	if cfg.CallingHoursStart >= cfg.CallingHoursEnd {
		return Config{}, fmt.Errorf("CALLING_HOURS_START must be before CALLING_HOURS_END")
	}
	if cfg.MaxConcurrentCalls < 1 {
		return Config{}, fmt.Errorf("MAX_CONCURRENT_CALLS must be at least 1")
	}
	if cfg.MaxCallDuration < time.Minute {
		return Config{}, fmt.Errorf("MAX_CALL_DURATION_MINUTES must be at least 1")
	}
	if cfg.WorkerInterval < time.Second {
		return Config{}, fmt.Errorf("WORKER_INTERVAL must be at least 1s")
	}
	cfg.ProviderMode = strings.ToLower(cfg.ProviderMode)
	switch cfg.ProviderMode {
	case "auto", "live", "mock":
	default:
		return Config{}, fmt.Errorf("PROVIDER_MODE must be auto, live or mock")
	}

	return cfg, nil
}

// HasLiveProviderKeys reports whether every speech/LLM provider key is set.
func (c Config) HasLiveProviderKeys() bool {
	return c.DeepgramAPIKey != "" && c.OpenAIAPIKey != "" &&
		c.ElevenLabsAPIKey != "" && c.ElevenLabsVoiceID != ""
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func trimSpaceEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimSpaceEnv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := trimSpaceEnv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}
