// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.ross/config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - OpenAI: API key, chat/embedding models, fine-tune base model
//   - Knowledge: embedding snapshot file, retrieval limits
//   - Storage: PostgreSQL connection
//   - RLHF: training cadence and thresholds
//   - Bot: command prefix, log channel, admin role
//   - Observability: Datadog APM tracing
//
// Sensitive values (API keys, passwords) are masked in MarshalJSON and
// never logged. Validation runs at load time so a misconfigured service
// fails before it connects to anything.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates the OpenAI API key is missing.
	ErrMissingAPIKey = errors.New("missing OpenAI API key")

	// ErrInvalidChatModel indicates the chat model name is empty or malformed.
	ErrInvalidChatModel = errors.New("invalid chat model")

	// ErrInvalidEmbeddingModel indicates the embedding model name is invalid.
	ErrInvalidEmbeddingModel = errors.New("invalid embedding model")

	// ErrInvalidKnowledgeFile indicates the knowledge snapshot path is empty.
	ErrInvalidKnowledgeFile = errors.New("invalid knowledge file path")

	// ErrInvalidTopK indicates the retrieval top-k is out of range.
	ErrInvalidTopK = errors.New("invalid retrieval top_k")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidTrainingInterval indicates the RLHF interval is too short.
	ErrInvalidTrainingInterval = errors.New("invalid training interval")

	// ErrInvalidMinFeedback indicates the RLHF feedback threshold is invalid.
	ErrInvalidMinFeedback = errors.New("invalid minimum feedback count")

	// ErrInvalidLookback indicates the feedback lookback window is invalid.
	ErrInvalidLookback = errors.New("invalid feedback lookback days")
)

// OpenAIConfig holds provider credentials and model selection.
type OpenAIConfig struct {
	APIKey         string `mapstructure:"api_key" json:"api_key"` // SENSITIVE: masked in MarshalJSON
	BaseURL        string `mapstructure:"base_url" json:"base_url"`
	ChatModel      string `mapstructure:"chat_model" json:"chat_model"`
	EmbeddingModel string `mapstructure:"embedding_model" json:"embedding_model"`
	FineTuneModel  string `mapstructure:"fine_tune_model" json:"fine_tune_model"`

	// Rate limiting for outbound API calls (requests/second and burst).
	RequestsPerSecond float64 `mapstructure:"requests_per_second" json:"requests_per_second"`
	Burst             int     `mapstructure:"burst" json:"burst"`
}

// KnowledgeConfig controls the embedding snapshot and retrieval behavior.
type KnowledgeConfig struct {
	// File is the path to the local JSON embedding snapshot.
	File string `mapstructure:"file" json:"file"`

	// TopK is the number of entries retrieved per query.
	TopK int `mapstructure:"top_k" json:"top_k"`
}

// RLHFConfig controls the periodic fine-tuning cycle.
type RLHFConfig struct {
	// Interval between training cycles.
	Interval time.Duration `mapstructure:"interval" json:"interval"`

	// MinFeedback is the number of recent feedback entries required
	// before a cycle submits a training job.
	MinFeedback int `mapstructure:"min_feedback" json:"min_feedback"`

	// LookbackDays bounds how far back feedback is collected.
	LookbackDays int `mapstructure:"lookback_days" json:"lookback_days"`

	// PollInterval between fine-tune job status checks.
	PollInterval time.Duration `mapstructure:"poll_interval" json:"poll_interval"`

	// MaxWait bounds how long a job is polled before giving up.
	// Zero means wait indefinitely.
	MaxWait time.Duration `mapstructure:"max_wait" json:"max_wait"`
}

// BotConfig holds chat-facing settings.
type BotConfig struct {
	CommandPrefix string `mapstructure:"command_prefix" json:"command_prefix"`
	LogChannel    string `mapstructure:"log_channel" json:"log_channel"`
	AdminRole     string `mapstructure:"admin_role" json:"admin_role"`
}

// ScraperConfig controls the documentation crawler used by the index command.
type ScraperConfig struct {
	Parallelism int `mapstructure:"parallelism" json:"parallelism"`
	DelayMs     int `mapstructure:"delay_ms" json:"delay_ms"`
	TimeoutMs   int `mapstructure:"timeout_ms" json:"timeout_ms"`
}

// DatadogConfig holds APM tracing settings. Traces go to a local Datadog
// agent over OTLP/HTTP; the agent forwards them upstream.
type DatadogConfig struct {
	Enabled     bool   `mapstructure:"enabled" json:"enabled"`
	AgentHost   string `mapstructure:"agent_host" json:"agent_host"`
	Environment string `mapstructure:"environment" json:"environment"`
	ServiceName string `mapstructure:"service_name" json:"service_name"`
}

// Config stores application configuration.
// SECURITY: Sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields, update MarshalJSON.
type Config struct {
	OpenAI    OpenAIConfig    `mapstructure:"openai" json:"openai"`
	Knowledge KnowledgeConfig `mapstructure:"knowledge" json:"knowledge"`
	RLHF      RLHFConfig      `mapstructure:"rlhf" json:"rlhf"`
	Bot       BotConfig       `mapstructure:"bot" json:"bot"`
	Scraper   ScraperConfig   `mapstructure:"scraper" json:"scraper"`
	Datadog   DatadogConfig   `mapstructure:"datadog" json:"datadog"`

	// Storage configuration
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".ross")

	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."},
			"config_name", "config.yaml")
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL wins over individual postgres_* settings when set.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	// Fail fast on a broken configuration.
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// OpenAI defaults
	viper.SetDefault("openai.chat_model", "gpt-3.5-turbo")
	viper.SetDefault("openai.embedding_model", "text-embedding-ada-002")
	viper.SetDefault("openai.fine_tune_model", "gpt-3.5-turbo")
	viper.SetDefault("openai.requests_per_second", 10)
	viper.SetDefault("openai.burst", 30)

	// Knowledge defaults
	viper.SetDefault("knowledge.file", filepath.Join("data", "knowledge_embeddings.json"))
	viper.SetDefault("knowledge.top_k", 3)

	// RLHF defaults
	viper.SetDefault("rlhf.interval", 24*time.Hour)
	viper.SetDefault("rlhf.min_feedback", 6)
	viper.SetDefault("rlhf.lookback_days", 7)
	viper.SetDefault("rlhf.poll_interval", time.Minute)
	viper.SetDefault("rlhf.max_wait", 24*time.Hour)

	// Bot defaults
	viper.SetDefault("bot.command_prefix", "!")
	viper.SetDefault("bot.log_channel", "ross-bot-logs")
	viper.SetDefault("bot.admin_role", "admin")

	// Scraper defaults
	viper.SetDefault("scraper.parallelism", 2)
	viper.SetDefault("scraper.delay_ms", 1000)
	viper.SetDefault("scraper.timeout_ms", 30000)

	// PostgreSQL defaults (matching docker-compose.yml)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "ross")
	viper.SetDefault("postgres_password", "ross_dev_password")
	viper.SetDefault("postgres_db_name", "ross")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// Datadog defaults
	viper.SetDefault("datadog.agent_host", "localhost:4318")
	viper.SetDefault("datadog.environment", "dev")
	viper.SetDefault("datadog.service_name", "ross")
}

// bindEnvVariables binds environment variables explicitly. Only secrets and
// deploy-time overrides come from the environment; everything else belongs
// in the config file.
func bindEnvVariables() {
	// Hardcoded keys can't fail to bind; a panic here is a bug, not a
	// runtime error.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("openai.api_key", "OPENAI_API_KEY")
	mustBind("openai.base_url", "OPENAI_BASE_URL")
	mustBind("openai.chat_model", "ROSS_CHAT_MODEL")
	mustBind("openai.fine_tune_model", "ROSS_FINE_TUNE_MODEL")
	mustBind("knowledge.file", "ROSS_KNOWLEDGE_FILE")
	mustBind("bot.log_channel", "ROSS_LOG_CHANNEL")
	mustBind("datadog.enabled", "ROSS_DATADOG_ENABLED")
}

// parseDatabaseURL overrides the postgres_* fields from DATABASE_URL when
// the variable is present. Accepts postgres:// and postgresql:// schemes.
func (c *Config) parseDatabaseURL() error {
	raw := os.Getenv("DATABASE_URL")
	if raw == "" {
		return nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("malformed URL: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	c.PostgresHost = u.Hostname()
	if port := u.Port(); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid port %q: %w", port, err)
		}
		c.PostgresPort = p
	}
	if u.User != nil {
		c.PostgresUser = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			c.PostgresPassword = pw
		}
	}
	if name := filepath.Base(u.Path); name != "." && name != "/" {
		c.PostgresDBName = name
	}
	if mode := u.Query().Get("sslmode"); mode != "" {
		c.PostgresSSLMode = mode
	}
	return nil
}

// DatabaseURL builds a postgres connection string from the individual fields.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(c.PostgresUser),
		url.QueryEscape(c.PostgresPassword),
		c.PostgresHost,
		c.PostgresPort,
		c.PostgresDBName,
		c.PostgresSSLMode,
	)
}

// maskedValue is the placeholder for masked sensitive data. Full-width
// blocks avoid substring matches against real secret characters.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging. Secrets of eight
// characters or fewer are fully masked; longer ones keep the first and
// last two characters for debug utility.
//
// This defends against accidental logging of real secrets, nothing more.
// If logs are compromised, rotate the secrets.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
//
// Sensitive fields masked:
//   - OpenAI.APIKey
//   - PostgresPassword
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.OpenAI.APIKey = maskSecret(a.OpenAI.APIKey)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
