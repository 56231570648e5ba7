// Package config reads service settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Model providers.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Ledger backends.
const (
	LedgerMemory   = "memory"
	LedgerBigQuery = "bigquery"
)

type Config struct {
	Server    ServerConfig
	Assistant AssistantConfig
	Ledger    LedgerConfig
	Audit     AuditConfig
	Logger    LoggerConfig
}

type ServerConfig struct {
	Port string
}

type AssistantConfig struct {
	Provider      string
	GeminiAPIKey  string
	GeminiModel   string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
	CallTimeout   time.Duration
	// MaxRetries counts attempts after the first; 0 disables retries.
	MaxRetries int
}

type LedgerConfig struct {
	Backend   string
	ProjectID string
	Dataset   string
}

type AuditConfig struct {
	// ReceiptsBucket enables receipt archiving when set.
	ReceiptsBucket string
	QueueSize      int
	Workers        int
}

type LoggerConfig struct {
	Level string
}

// Load reads the first .env file found (if any) and then the environment.
// Variables already set in the environment win over the file.
func Load() (*Config, error) {
	for _, envFile := range []string{".env", "../.env", "../../.env"} {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables only.
func FromEnv() (*Config, error) {
	timeout, err := getDuration("ASSISTANT_CALL_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	maxRetries, err := getInt("ASSISTANT_MAX_RETRIES", 2)
	if err != nil {
		return nil, err
	}
	queueSize, err := getInt("AUDIT_QUEUE_SIZE", 100)
	if err != nil {
		return nil, err
	}
	workers, err := getInt("AUDIT_WORKERS", 2)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
		},
		Assistant: AssistantConfig{
			Provider:      strings.ToLower(getEnv("ASSISTANT_PROVIDER", ProviderGemini)),
			GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
			GeminiModel:   getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
			OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),
			OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			CallTimeout:   timeout,
			MaxRetries:    maxRetries,
		},
		Ledger: LedgerConfig{
			Backend:   strings.ToLower(getEnv("LEDGER_BACKEND", LedgerMemory)),
			ProjectID: getEnv("GCP_PROJECT", ""),
			Dataset:   getEnv("BQ_DATASET", "bizledger"),
		},
		Audit: AuditConfig{
			ReceiptsBucket: getEnv("RECEIPTS_BUCKET", ""),
			QueueSize:      queueSize,
			Workers:        workers,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that would otherwise fail later at first use.
func (c *Config) Validate() error {
	switch c.Assistant.Provider {
	case ProviderGemini, ProviderOpenAI:
	default:
		return fmt.Errorf("config: ASSISTANT_PROVIDER must be %q or %q, got %q", ProviderGemini, ProviderOpenAI, c.Assistant.Provider)
	}
	if c.Assistant.Provider == ProviderOpenAI && c.Assistant.OpenAIAPIKey == "" && c.Assistant.OpenAIBaseURL == "" {
		return fmt.Errorf("config: OPENAI_API_KEY is required for the openai provider")
	}

	switch c.Ledger.Backend {
	case LedgerMemory:
	case LedgerBigQuery:
		if c.Ledger.ProjectID == "" {
			return fmt.Errorf("config: GCP_PROJECT is required for the bigquery ledger")
		}
	default:
		return fmt.Errorf("config: LEDGER_BACKEND must be %q or %q, got %q", LedgerMemory, LedgerBigQuery, c.Ledger.Backend)
	}

	if c.Assistant.CallTimeout <= 0 {
		return fmt.Errorf("config: ASSISTANT_CALL_TIMEOUT must be positive")
	}
	if c.Assistant.MaxRetries < 0 {
		return fmt.Errorf("config: ASSISTANT_MAX_RETRIES must not be negative (0 disables retries)")
	}

	if c.Audit.QueueSize < 0 || c.Audit.Workers < 0 {
		return fmt.Errorf("config: AUDIT_QUEUE_SIZE and AUDIT_WORKERS must not be negative")
	}
	return nil
}

// ModelName labels the configured backend, e.g. "gemini/gemini-2.5-flash".
func (c AssistantConfig) ModelName() string {
	if c.Provider == ProviderOpenAI {
		return ProviderOpenAI + "/" + c.OpenAIModel
	}
	return ProviderGemini + "/" + c.GeminiModel
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

// getDuration accepts Go durations ("45s", "2m") or a bare number of seconds.
func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}
