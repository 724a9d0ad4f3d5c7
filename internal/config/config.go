package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Log          LogConfig          `mapstructure:"log"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Jira         JiraConfig         `mapstructure:"jira"`
	Fathom       FathomConfig       `mapstructure:"fathom"`
	Synthesis    SynthesisConfig    `mapstructure:"synthesis"`
	Pipeline     PipelineConfig     `mapstructure:"pipeline"`
	Report       ReportConfig       `mapstructure:"report"`
	Distribution DistributionConfig `mapstructure:"distribution"`
}

type ServerConfig struct {
	Port          int           `mapstructure:"port"`
	Mode          string        `mapstructure:"mode"`
	PublicBaseURL string        `mapstructure:"public_base_url"`
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace"`
	CORS          CORSConfig    `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Format      string `mapstructure:"format"`
	Environment string `mapstructure:"environment"`
	File        string `mapstructure:"file"`
	FileOnly    bool   `mapstructure:"file_only"`
	MaxSizeMB   int    `mapstructure:"max_size_mb"`
	MaxBackups  int    `mapstructure:"max_backups"`
	MaxAgeDays  int    `mapstructure:"max_age_days"`
	Compress    bool   `mapstructure:"compress"`
}

// DatabaseConfig selects the job persistence mirror.
// Driver "memory" keeps jobs in process only.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // memory, sqlite, postgres, redis
	Path            string        `mapstructure:"path"`   // sqlite file
	URL             string        `mapstructure:"url"`    // postgres DSN
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	LogQueries      bool          `mapstructure:"log_queries"`
}

// DSN returns the connection string for the configured driver.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		return c.URL
	}
	return c.Path
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// StorageConfig selects where rendered reports are kept.
type StorageConfig struct {
	Type      string `mapstructure:"type"` // local, s3, r2, s3compatible
	LocalDir  string `mapstructure:"local_dir"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	PublicURL string `mapstructure:"public_url"`
}

type JiraConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	Email          string `mapstructure:"email"`
	APIToken       string `mapstructure:"api_token"`
	DefaultBoardID int    `mapstructure:"default_board_id"`
	PageSize       int    `mapstructure:"page_size"`
}

type FathomConfig struct {
	BaseURL      string   `mapstructure:"base_url"`
	APIKey       string   `mapstructure:"api_key"`
	SearchTerms  []string `mapstructure:"search_terms"`
	OnlyRelevant bool     `mapstructure:"only_relevant"`
	MaxMeetings  int      `mapstructure:"max_meetings"`
}

// Enabled reports whether meeting collection is configured.
func (c *FathomConfig) Enabled() bool {
	return c.APIKey != ""
}

// PipelineConfig holds the concurrency, retry and deadline knobs of the job runner.
type PipelineConfig struct {
	MeetingConcurrency  int           `mapstructure:"meeting_concurrency"`
	RetryAttempts       int           `mapstructure:"retry_attempts"`
	RetryInitialBackoff time.Duration `mapstructure:"retry_initial_backoff"`
	RetryMaxBackoff     time.Duration `mapstructure:"retry_max_backoff"`
	CallTimeout         time.Duration `mapstructure:"call_timeout"`
	ApprovalDeadline    time.Duration `mapstructure:"approval_deadline"` // 0 waits forever
	WindowPaddingDays   int           `mapstructure:"window_padding_days"`
}

type ReportConfig struct {
	TeamName     string `mapstructure:"team_name"`
	GuidePath    string `mapstructure:"guide_path"`
	ContractPath string `mapstructure:"contract_path"`
}

// DistributionConfig lists the post-approval handoffs run in order.
type DistributionConfig struct {
	Targets  []string       `mapstructure:"targets"` // log, webhook, telegram
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

type WebhookConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   int64  `mapstructure:"chat_id"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("server.port", "SERVICE_PORT")
	v.BindEnv("server.public_base_url", "PUBLIC_BASE_URL")
	v.BindEnv("log.level", "LOG_LEVEL")
	v.BindEnv("log.environment", "APP_ENV")
	v.BindEnv("database.driver", "DATABASE_DRIVER")
	v.BindEnv("database.url", "DATABASE_URL")
	v.BindEnv("redis.addr", "REDIS_ADDR")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("storage.type", "STORAGE_TYPE")
	v.BindEnv("storage.endpoint", "STORAGE_ENDPOINT")
	v.BindEnv("storage.access_key", "STORAGE_ACCESS_KEY")
	v.BindEnv("storage.secret_key", "STORAGE_SECRET_KEY")
	v.BindEnv("storage.bucket", "STORAGE_BUCKET")
	v.BindEnv("jira.base_url", "JIRA_BASE_URL")
	v.BindEnv("jira.email", "JIRA_EMAIL")
	v.BindEnv("jira.api_token", "JIRA_API_TOKEN")
	v.BindEnv("fathom.api_key", "FATHOM_API_KEY")
	v.BindEnv("synthesis.provider", "SYNTHESIS_PROVIDER")
	v.BindEnv("synthesis.model", "SYNTHESIS_MODEL")
	v.BindEnv("distribution.webhook.url", "DISTRIBUTION_WEBHOOK_URL")
	v.BindEnv("distribution.telegram.bot_token", "TELEGRAM_BOT_TOKEN")
	v.BindEnv("distribution.telegram.chat_id", "TELEGRAM_CHAT_ID")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Synthesis.APIKeyEnv == "" {
		cfg.Synthesis.APIKeyEnv = DefaultAPIKeyEnv(cfg.Synthesis.Provider)
	}
	cfg.Synthesis.ResolveEnvVars()

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8001)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.public_base_url", "")
	v.SetDefault("server.shutdown_grace", 10*time.Second)
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.environment", "local")
	v.SetDefault("log.file", "/var/log/sprintreport/app.log")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.compress", true)

	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.path", "./data/jobs.db")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.key_prefix", "sprintreport:")

	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_dir", "./data/reports")
	v.SetDefault("storage.bucket", "sprint-reports")

	v.SetDefault("jira.default_board_id", 38)
	v.SetDefault("jira.page_size", 50)

	v.SetDefault("fathom.base_url", "https://api.fathom.ai/external/v1")
	v.SetDefault("fathom.search_terms", []string{"sprint", "standup", "planning", "retro", "review"})
	v.SetDefault("fathom.only_relevant", false)
	v.SetDefault("fathom.max_meetings", 20)

	v.SetDefault("synthesis.provider", ProviderAnthropic)
	v.SetDefault("synthesis.model", "claude-sonnet-4-5")
	v.SetDefault("synthesis.max_tokens", 8192)
	v.SetDefault("synthesis.temperature", 0.3)
	v.SetDefault("synthesis.max_prompt_tokens", 60000)

	v.SetDefault("pipeline.meeting_concurrency", 3)
	v.SetDefault("pipeline.retry_attempts", 3)
	v.SetDefault("pipeline.retry_initial_backoff", 2*time.Second)
	v.SetDefault("pipeline.retry_max_backoff", 30*time.Second)
	v.SetDefault("pipeline.call_timeout", 30*time.Second)
	v.SetDefault("pipeline.approval_deadline", 24*time.Hour)
	v.SetDefault("pipeline.window_padding_days", 2)

	v.SetDefault("report.team_name", "Engineering")
	v.SetDefault("report.guide_path", "./configs/sprint_report_guide.md")
	v.SetDefault("report.contract_path", "")

	v.SetDefault("distribution.targets", []string{"log"})
	v.SetDefault("distribution.webhook.timeout", 30*time.Second)
}

// Validate returns human readable warnings about settings that will degrade
// or break report generation. It never fails the load.
func (c *Config) Validate() []string {
	var warnings []string

	if c.Jira.BaseURL == "" {
		warnings = append(warnings, "jira.base_url is not set; sprint metrics cannot be fetched")
	} else if u, err := url.Parse(c.Jira.BaseURL); err != nil || u.Scheme != "https" {
		warnings = append(warnings, fmt.Sprintf("jira.base_url %q should use https", c.Jira.BaseURL))
	}
	if c.Jira.DefaultBoardID <= 0 {
		warnings = append(warnings, "jira.default_board_id must be positive")
	}
	if !c.Fathom.Enabled() {
		warnings = append(warnings, "fathom.api_key is not set; reports will not include meeting notes")
	}
	if err := c.Synthesis.Validate(); err != nil {
		warnings = append(warnings, err.Error())
	}
	if c.Report.GuidePath != "" {
		if _, err := os.Stat(c.Report.GuidePath); err != nil {
			warnings = append(warnings, fmt.Sprintf("report guide %s not found; built-in guide will be used", c.Report.GuidePath))
		}
	}
	if c.Pipeline.MeetingConcurrency <= 0 {
		warnings = append(warnings, "pipeline.meeting_concurrency must be positive; using 1")
	}

	return warnings
}
