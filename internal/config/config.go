// Package config loads settings from environment variables with an
// optional YAML file underneath. Environment always wins, so a deployment
// can override a checked-in file per instance.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration values.
type Config struct {
	// SurrealDB connection
	SurrealDBURL       string `yaml:"surrealdb_url"`
	SurrealDBNamespace string `yaml:"surrealdb_namespace"`
	SurrealDBDatabase  string `yaml:"surrealdb_database"`
	SurrealDBUser      string `yaml:"surrealdb_user"`
	SurrealDBPass      string `yaml:"surrealdb_pass"`
	SurrealDBAuthLevel string `yaml:"surrealdb_auth_level"`
	StorePoolSize      int    `yaml:"store_pool_size"`

	// LLM extraction
	LLMProvider       string `yaml:"llm_provider"`
	LLMModel          string `yaml:"llm_model"`
	OpenAIAPIKey      string `yaml:"openai_api_key"`
	AnthropicAPIKey   string `yaml:"anthropic_api_key"`
	OllamaHost        string `yaml:"ollama_host"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
	RequestBurst      int    `yaml:"request_burst"`
	TemplateID        string `yaml:"template_id"`

	// Embedding
	EmbeddingProvider  string `yaml:"embedding_provider"`
	EmbeddingModel     string `yaml:"embedding_model"`
	EmbeddingDimension int    `yaml:"embedding_dimension"`

	// Pipeline
	Workers            int           `yaml:"workers"`
	ChunkTokens        int           `yaml:"chunk_tokens"`
	InterItemDelay     time.Duration `yaml:"inter_item_delay"`
	StrictSingleWriter bool          `yaml:"strict_single_writer"`
	AutoRetry          bool          `yaml:"auto_retry"`
	MaxAttempts        int           `yaml:"max_attempts"`
	LedgerPath         string        `yaml:"ledger_path"`

	// Lifecycle
	Warmup         bool          `yaml:"warmup"`
	HealthInterval time.Duration `yaml:"health_interval"`
	ShutdownGrace  time.Duration `yaml:"shutdown_grace"`

	// Logging
	LogFile  string     `yaml:"log_file"`
	LogLevel slog.Level `yaml:"-"`
}

// Load reads configuration: defaults first, then the optional YAML file
// named by CASEMIND_CONFIG, then environment variables on top.
func Load() (Config, error) {
	cfg := defaults()

	if path := os.Getenv("CASEMIND_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	cfg.LogLevel = parseLogLevel(getEnv("CASEMIND_LOG_LEVEL", "INFO"))
	return cfg, nil
}

func defaults() Config {
	return Config{
		SurrealDBURL:       "ws://localhost:8000/rpc",
		SurrealDBNamespace: "casemind",
		SurrealDBDatabase:  "cases",
		SurrealDBUser:      "root",
		SurrealDBPass:      "root",
		SurrealDBAuthLevel: "root",
		StorePoolSize:      4,

		LLMProvider:       "ollama",
		LLMModel:          "llama3.1",
		OllamaHost:        "http://localhost:11434",
		RequestsPerMinute: 6,
		RequestBurst:      2,

		EmbeddingProvider:  "ollama",
		EmbeddingModel:     "nomic-embed-text",
		EmbeddingDimension: 768,

		Workers:        4,
		ChunkTokens:    480,
		InterItemDelay: 500 * time.Millisecond,
		AutoRetry:      true,
		MaxAttempts:    3,
		LedgerPath:     "failed_files.json",

		Warmup:         true,
		HealthInterval: 30 * time.Second,
		ShutdownGrace:  30 * time.Second,

		LogFile:  "/tmp/casemind.log",
		LogLevel: slog.LevelInfo,
	}
}

func applyEnv(cfg *Config) {
	setString(&cfg.SurrealDBURL, "SURREALDB_URL")
	setString(&cfg.SurrealDBNamespace, "SURREALDB_NAMESPACE")
	setString(&cfg.SurrealDBDatabase, "SURREALDB_DATABASE")
	setString(&cfg.SurrealDBUser, "SURREALDB_USER")
	setString(&cfg.SurrealDBPass, "SURREALDB_PASS")
	setString(&cfg.SurrealDBAuthLevel, "SURREALDB_AUTH_LEVEL")
	setInt(&cfg.StorePoolSize, "CASEMIND_STORE_POOL_SIZE")

	setString(&cfg.LLMProvider, "CASEMIND_LLM_PROVIDER")
	setString(&cfg.LLMModel, "CASEMIND_LLM_MODEL")
	setString(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	setString(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	setString(&cfg.OllamaHost, "OLLAMA_HOST")
	setInt(&cfg.RequestsPerMinute, "CASEMIND_REQUESTS_PER_MINUTE")
	setInt(&cfg.RequestBurst, "CASEMIND_REQUEST_BURST")
	setString(&cfg.TemplateID, "CASEMIND_TEMPLATE_ID")

	setString(&cfg.EmbeddingProvider, "CASEMIND_EMBEDDING_PROVIDER")
	setString(&cfg.EmbeddingModel, "CASEMIND_EMBEDDING_MODEL")
	setInt(&cfg.EmbeddingDimension, "CASEMIND_EMBEDDING_DIMENSION")

	setInt(&cfg.Workers, "CASEMIND_WORKERS")
	setInt(&cfg.ChunkTokens, "CASEMIND_CHUNK_TOKENS")
	setDuration(&cfg.InterItemDelay, "CASEMIND_INTER_ITEM_DELAY")
	setBool(&cfg.StrictSingleWriter, "CASEMIND_STRICT_SINGLE_WRITER")
	setBool(&cfg.AutoRetry, "CASEMIND_AUTO_RETRY")
	setInt(&cfg.MaxAttempts, "CASEMIND_MAX_ATTEMPTS")
	setString(&cfg.LedgerPath, "CASEMIND_LEDGER_PATH")

	setBool(&cfg.Warmup, "CASEMIND_WARMUP")
	setDuration(&cfg.HealthInterval, "CASEMIND_HEALTH_INTERVAL")
	setDuration(&cfg.ShutdownGrace, "CASEMIND_SHUTDOWN_GRACE")

	setString(&cfg.LogFile, "CASEMIND_LOG_FILE")
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func setString(dst *string, key string) {
	if val := os.Getenv(key); val != "" {
		*dst = val
	}
}

func setInt(dst *int, key string) {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if val := os.Getenv(key); val != "" {
		*dst = val == "true" || val == "1"
	}
}

func setDuration(dst *time.Duration, key string) {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
