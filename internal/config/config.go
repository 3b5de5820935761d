package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	v *viper.Viper
}

// envBindings maps configuration keys to the plain environment variable names
// the deployment scripts already export.
var envBindings = map[string][]string{
	"send.daily_cap":       {"DAILY_SEND_CAP"},
	"send.per_run_cap":     {"PER_RUN_SEND_CAP"},
	"send.sleep_seconds":   {"SEND_SLEEP_SECONDS"},
	"send.safety_mode":     {"SAFETY_MODE"},
	"send.safe_test_inbox": {"SAFE_TEST_INBOX"},
	"smtp.username":        {"REGDEADLINE_SMTP_USERNAME", "GMAIL_USER"},
	"smtp.password":        {"REGDEADLINE_SMTP_PASSWORD", "GMAIL_PASS"},
	"imap.username":        {"REGDEADLINE_IMAP_USERNAME", "GMAIL_USER"},
	"imap.password":        {"REGDEADLINE_IMAP_PASSWORD", "GMAIL_PASS"},
	"registry.api_key":     {"REGDEADLINE_REGISTRY_API_KEY", "COMPANIES_HOUSE_API_KEY"},
}

// New creates a new configuration instance
func New() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/regdeadline/")
	v.AddConfigPath("$HOME/.regdeadline")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	setDefaults(v)

	if err := bindEnv(v); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults
	}

	return &Config{v: v}, nil
}

// NewFromFile creates a configuration instance from an explicit config file
func NewFromFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	setDefaults(v)

	if err := bindEnv(v); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return &Config{v: v}, nil
}

// NewFromViper creates a new configuration instance from an existing Viper instance
func NewFromViper(v *viper.Viper) *Config {
	return &Config{v: v}
}

// NewEmptyViper creates a new Viper instance with defaults
func NewEmptyViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func bindEnv(v *viper.Viper) error {
	v.SetEnvPrefix("REGDEADLINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, names := range envBindings {
		input := append([]string{key}, names...)
		if err := v.BindEnv(input...); err != nil {
			return fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}
	return nil
}

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	// Send governance
	v.SetDefault("send.daily_cap", 25)
	v.SetDefault("send.per_run_cap", 25)
	v.SetDefault("send.sleep_seconds", 6.0)
	v.SetDefault("send.safety_mode", true)
	v.SetDefault("send.safe_test_inbox", "")
	v.SetDefault("send.from_address", "")
	v.SetDefault("send.from_name", "RegDeadline")
	v.SetDefault("send.campaign_header", "X-Campaign-ID")
	v.SetDefault("send.campaign_id", "regdeadline")
	v.SetDefault("send.unsubscribe_mailto", "")

	// Outbound transport
	v.SetDefault("transport.type", "smtp")
	v.SetDefault("smtp.host", "smtp.gmail.com")
	v.SetDefault("smtp.port", 465)
	v.SetDefault("smtp.tls", "implicit")
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.timeout", "30s")
	v.SetDefault("ses.region", "eu-west-2")
	v.SetDefault("ses.access_key", "")
	v.SetDefault("ses.secret_key", "")

	// Inbound mailbox
	v.SetDefault("imap.host", "imap.gmail.com")
	v.SetDefault("imap.port", 993)
	v.SetDefault("imap.tls", true)
	v.SetDefault("imap.username", "")
	v.SetDefault("imap.password", "")
	v.SetDefault("imap.mailbox", "INBOX")

	// Companies House
	v.SetDefault("registry.base_url", "https://api.company-information.service.gov.uk")
	v.SetDefault("registry.api_key", "")
	v.SetDefault("registry.timeout", "10s")
	v.SetDefault("registry.rate_per_second", 2.0)
	v.SetDefault("registry.burst", 5)
	v.SetDefault("registry.max_attempts", 3)

	// State
	v.SetDefault("state.type", "json")
	v.SetDefault("state.dir", "./data")
	v.SetDefault("state.sqlite_path", "./data/regdeadline.db")
	v.SetDefault("state.mysql_dsn", "user:password@tcp(localhost:3306)/regdeadline")
	v.SetDefault("state.postgres_dsn", "postgres://localhost:5432/regdeadline?sslmode=disable")
	v.SetDefault("state.redis_addr", "localhost:6379")
	v.SetDefault("state.redis_password", "")
	v.SetDefault("state.redis_db", 0)
	v.SetDefault("state.redis_prefix", "regdeadline")

	// Runs
	v.SetDefault("reminders.window_days", 30)
	v.SetDefault("leads.pool_size", 20)
	v.SetDefault("leads.max_emails", 5)
	v.SetDefault("leads.window_days", 60)
	v.SetDefault("leads.recipient", "")

	v.SetDefault("templates.dir", "")

	// Reply classification
	v.SetDefault("unsubscribe.keywords", []string{
		"unsubscribe",
		"opt out",
		"stop",
		"remove me",
		"do not contact",
	})
	v.SetDefault("classifier.provider", "keyword")

	v.SetDefault("bedrock.region", "eu-west-2")
	v.SetDefault("bedrock.model_id", "anthropic.claude-v2")
	v.SetDefault("bedrock.max_tokens", 300)
	v.SetDefault("bedrock.temperature", 0.0)
	v.SetDefault("bedrock.top_p", 0.9)
	v.SetDefault("bedrock.max_body_size", 4096)

	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model_name", "gemini-pro")
	v.SetDefault("gemini.max_tokens", 300)
	v.SetDefault("gemini.temperature", 0.0)
	v.SetDefault("gemini.top_p", 0.9)
	v.SetDefault("gemini.max_body_size", 4096)

	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("openai.model_name", "gpt-4")
	v.SetDefault("openai.max_tokens", 300)
	v.SetDefault("openai.temperature", 0.0)
	v.SetDefault("openai.top_p", 0.9)
	v.SetDefault("openai.max_body_size", 4096)

	// Logging
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// GetString gets a string value from the configuration
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt gets an integer value from the configuration
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetFloat64 gets a float64 value from the configuration
func (c *Config) GetFloat64(key string) float64 {
	return c.v.GetFloat64(key)
}

// GetBool gets a boolean value from the configuration
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// GetStringSlice gets a string slice value from the configuration
func (c *Config) GetStringSlice(key string) []string {
	return c.v.GetStringSlice(key)
}

// GetDuration gets a duration value from the configuration
func (c *Config) GetDuration(key string) (time.Duration, error) {
	return time.ParseDuration(c.GetString(key))
}

// Set overrides a value, used by command line flags
func (c *Config) Set(key string, value interface{}) {
	c.v.Set(key, value)
}

// GetViper returns the underlying Viper instance
func (c *Config) GetViper() *viper.Viper {
	return c.v
}
