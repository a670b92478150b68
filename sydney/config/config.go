package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	internal "github.com/ZanzyTHEbar/sydney-stream/sydney"

	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	ChatHub     ChatHubConfig     `mapstructure:"chathub"`
	Harness     HarnessConfig     `mapstructure:"harness"`
	Credentials CredentialsConfig `mapstructure:"credentials"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ChatHubConfig stores the service endpoints and stream tuning.
type ChatHubConfig struct {
	CreateEndpoint string `mapstructure:"create_endpoint"`
	ChatEndpoint   string `mapstructure:"chat_endpoint"`
	UploadEndpoint string `mapstructure:"upload_endpoint"`
	Proxy          string `mapstructure:"proxy"` // Outbound proxy URL for all three endpoints

	CreateTimeout    time.Duration `mapstructure:"create_timeout"`
	UploadTimeout    time.Duration `mapstructure:"upload_timeout"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	ReceiveTimeout   time.Duration `mapstructure:"receive_timeout"` // Wait per socket receive
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`

	RetryBudget       int           `mapstructure:"retry_budget"`       // Consecutive empty receives tolerated
	KeepaliveInterval time.Duration `mapstructure:"keepalive_interval"` // Ping cadence while streaming

	Locale string `mapstructure:"locale"`
	Style  string `mapstructure:"style"` // "creative", "balanced", "precise"
}

// HarnessConfig stores turn orchestration configurations.
type HarnessConfig struct {
	// Blob id cache for image uploads
	CacheEnabled    bool `mapstructure:"cache_enabled"`
	CacheCapacity   int  `mapstructure:"cache_capacity"`
	CacheTTLSeconds int  `mapstructure:"cache_ttl_seconds"`

	// Rate limiting of conversation creation
	RateLimitEnabled    bool          `mapstructure:"rate_limit_enabled"`
	RateLimitCapacity   int           `mapstructure:"rate_limit_capacity"`
	RateLimitRefillRate time.Duration `mapstructure:"rate_limit_refill_rate"`

	// Content filter handling
	MaxAutoReplies    int    `mapstructure:"max_auto_replies"`
	AutoReplyPrompt   string `mapstructure:"auto_reply_prompt"`
	MaxContextChars   int    `mapstructure:"max_context_chars"` // 0 disables trimming
	RecordSearchTurns bool   `mapstructure:"record_search_results"`
	RecordLoaderTurns bool   `mapstructure:"record_loading"`

	// Safety and validation
	EnableGuardrails bool     `mapstructure:"enable_guardrails"`
	MaxPromptChars   int      `mapstructure:"max_prompt_chars"`
	BlockedWords     []string `mapstructure:"blocked_words"`

	// Telemetry
	EnableTracing bool `mapstructure:"enable_tracing"`
	EnableMetrics bool `mapstructure:"enable_metrics"`

	// Persist transcripts per workspace in the database
	PersistTranscripts bool `mapstructure:"persist_transcripts"`
}

// CredentialsConfig locates the externally supplied cookies.
type CredentialsConfig struct {
	CookiesFile string `mapstructure:"cookies_file"`
	Watch       bool   `mapstructure:"watch"` // Reload the file when it changes
}

// DatabaseConfig stores database connection details.
type DatabaseConfig struct {
	DSN  string `mapstructure:"dsn"`
	Type string `mapstructure:"type"`
	// Embedded-only configuration
	LibSQLDataDir string `mapstructure:"libsql_data_dir"`
}

// LoggingConfig controls the process logger.
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"` // Human-readable output instead of JSON
}

var AppConfig Config

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(configPath string) (*Config, error) {
	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("..")
		viper.AddConfigPath(filepath.Join("etc", internal.DefaultAppName))
		viper.AddConfigPath(internal.DefaultConfigPath)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	// ChatHub defaults
	viper.SetDefault("chathub.create_endpoint", "https://edgeservices.bing.com/edgesvc/turing/conversation/create")
	viper.SetDefault("chathub.chat_endpoint", "wss://sydney.bing.com/sydney/ChatHub")
	viper.SetDefault("chathub.upload_endpoint", "https://www.bing.com/images/kblob")
	viper.SetDefault("chathub.proxy", "")
	viper.SetDefault("chathub.create_timeout", "10s")
	viper.SetDefault("chathub.upload_timeout", "60s")
	viper.SetDefault("chathub.handshake_timeout", "15s")
	viper.SetDefault("chathub.receive_timeout", "900s")
	viper.SetDefault("chathub.write_timeout", "5s")
	viper.SetDefault("chathub.retry_budget", 5)
	viper.SetDefault("chathub.keepalive_interval", "6s")
	viper.SetDefault("chathub.locale", internal.DefaultLocale)
	viper.SetDefault("chathub.style", internal.DefaultStyle)

	// Harness defaults
	viper.SetDefault("harness.cache_enabled", true)
	viper.SetDefault("harness.cache_capacity", 256)
	viper.SetDefault("harness.cache_ttl_seconds", 3600) // 1 hour
	viper.SetDefault("harness.rate_limit_enabled", true)
	viper.SetDefault("harness.rate_limit_capacity", 5)
	viper.SetDefault("harness.rate_limit_refill_rate", "2s")
	viper.SetDefault("harness.max_auto_replies", 1)
	viper.SetDefault("harness.auto_reply_prompt", "Continue from where you stopped.")
	viper.SetDefault("harness.max_context_chars", 0)
	viper.SetDefault("harness.record_search_results", false)
	viper.SetDefault("harness.record_loading", false)
	viper.SetDefault("harness.enable_guardrails", true)
	viper.SetDefault("harness.max_prompt_chars", 10000)
	viper.SetDefault("harness.blocked_words", []string{})
	viper.SetDefault("harness.enable_tracing", true)
	viper.SetDefault("harness.enable_metrics", false)
	viper.SetDefault("harness.persist_transcripts", false)

	// Credentials defaults
	viper.SetDefault("credentials.cookies_file", internal.DefaultCookiesFile)
	viper.SetDefault("credentials.watch", false)

	// LibSQL embedded defaults only
	viper.SetDefault("database.dsn", internal.DefaultDatabaseDSN)
	viper.SetDefault("database.type", internal.DefaultDatabaseType)
	viper.SetDefault("database.libsql_data_dir", internal.DefaultDatabaseDir)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.console", true)

	viper.AutomaticEnv()
	// Replace dots with underscores in env var names e.g. chathub.proxy becomes CHATHUB_PROXY
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file; defaults and environment apply.
	}

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	return &AppConfig, nil
}
