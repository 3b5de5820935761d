package config

import (
	"time"
)

// SendConfig represents the send governance settings
type SendConfig struct {
	DailyCap          int
	PerRunCap         int
	Sleep             time.Duration
	SafetyMode        bool
	SafeTestInbox     string
	FromAddress       string
	FromName          string
	CampaignHeader    string
	CampaignID        string
	UnsubscribeMailto string
}

// SMTPConfig represents the outbound SMTP settings
type SMTPConfig struct {
	Host     string
	Port     int
	TLS      string
	Username string
	Password string
	Timeout  time.Duration
}

// SESConfig represents the Amazon SES settings
type SESConfig struct {
	Region    string
	AccessKey string
	SecretKey string
}

// IMAPConfig represents the inbound mailbox settings
type IMAPConfig struct {
	Host     string
	Port     int
	TLS      bool
	Username string
	Password string
	Mailbox  string
}

// RegistryConfig represents the Companies House API settings
type RegistryConfig struct {
	BaseURL       string
	APIKey        string
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
	MaxAttempts   int
}

// StateConfig represents the state store settings
type StateConfig struct {
	Type          string
	Dir           string
	SQLitePath    string
	MySQLDSN      string
	PostgresDSN   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// RunConfig represents the reminder and lead scan settings
type RunConfig struct {
	ReminderWindowDays int
	LeadPoolSize       int
	LeadMaxEmails      int
	LeadWindowDays     int
	LeadRecipient      string
}

// ClassifierConfig represents the opt-out classification settings
type ClassifierConfig struct {
	Provider string
	Keywords []string
}

// BedrockConfig represents the configuration for Amazon Bedrock
type BedrockConfig struct {
	Region      string
	ModelID     string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// GeminiConfig represents the configuration for Google Gemini
type GeminiConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// OpenAIConfig represents the configuration for OpenAI
type OpenAIConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// GetSend returns the send governance configuration
func (c *Config) GetSend() SendConfig {
	from := c.GetString("send.from_address")
	if from == "" {
		from = c.GetString("smtp.username")
	}
	mailto := c.GetString("send.unsubscribe_mailto")
	if mailto == "" {
		mailto = from
	}

	return SendConfig{
		DailyCap:          c.GetInt("send.daily_cap"),
		PerRunCap:         c.GetInt("send.per_run_cap"),
		Sleep:             time.Duration(c.GetFloat64("send.sleep_seconds") * float64(time.Second)),
		SafetyMode:        c.GetBool("send.safety_mode"),
		SafeTestInbox:     c.GetString("send.safe_test_inbox"),
		FromAddress:       from,
		FromName:          c.GetString("send.from_name"),
		CampaignHeader:    c.GetString("send.campaign_header"),
		CampaignID:        c.GetString("send.campaign_id"),
		UnsubscribeMailto: mailto,
	}
}

// GetSMTP returns the SMTP configuration
func (c *Config) GetSMTP() (SMTPConfig, error) {
	timeout, err := c.GetDuration("smtp.timeout")
	if err != nil {
		return SMTPConfig{}, err
	}
	return SMTPConfig{
		Host:     c.GetString("smtp.host"),
		Port:     c.GetInt("smtp.port"),
		TLS:      c.GetString("smtp.tls"),
		Username: c.GetString("smtp.username"),
		Password: c.GetString("smtp.password"),
		Timeout:  timeout,
	}, nil
}

// GetSES returns the SES configuration
func (c *Config) GetSES() SESConfig {
	return SESConfig{
		Region:    c.GetString("ses.region"),
		AccessKey: c.GetString("ses.access_key"),
		SecretKey: c.GetString("ses.secret_key"),
	}
}

// GetIMAP returns the IMAP configuration
func (c *Config) GetIMAP() IMAPConfig {
	return IMAPConfig{
		Host:     c.GetString("imap.host"),
		Port:     c.GetInt("imap.port"),
		TLS:      c.GetBool("imap.tls"),
		Username: c.GetString("imap.username"),
		Password: c.GetString("imap.password"),
		Mailbox:  c.GetString("imap.mailbox"),
	}
}

// GetRegistry returns the Companies House configuration
func (c *Config) GetRegistry() (RegistryConfig, error) {
	timeout, err := c.GetDuration("registry.timeout")
	if err != nil {
		return RegistryConfig{}, err
	}
	return RegistryConfig{
		BaseURL:       c.GetString("registry.base_url"),
		APIKey:        c.GetString("registry.api_key"),
		Timeout:       timeout,
		RatePerSecond: c.GetFloat64("registry.rate_per_second"),
		Burst:         c.GetInt("registry.burst"),
		MaxAttempts:   c.GetInt("registry.max_attempts"),
	}, nil
}

// GetState returns the state store configuration
func (c *Config) GetState() StateConfig {
	return StateConfig{
		Type:          c.GetString("state.type"),
		Dir:           c.GetString("state.dir"),
		SQLitePath:    c.GetString("state.sqlite_path"),
		MySQLDSN:      c.GetString("state.mysql_dsn"),
		PostgresDSN:   c.GetString("state.postgres_dsn"),
		RedisAddr:     c.GetString("state.redis_addr"),
		RedisPassword: c.GetString("state.redis_password"),
		RedisDB:       c.GetInt("state.redis_db"),
		RedisPrefix:   c.GetString("state.redis_prefix"),
	}
}

// GetRun returns the reminder and lead scan configuration
func (c *Config) GetRun() RunConfig {
	return RunConfig{
		ReminderWindowDays: c.GetInt("reminders.window_days"),
		LeadPoolSize:       c.GetInt("leads.pool_size"),
		LeadMaxEmails:      c.GetInt("leads.max_emails"),
		LeadWindowDays:     c.GetInt("leads.window_days"),
		LeadRecipient:      c.GetString("leads.recipient"),
	}
}

// GetClassifier returns the opt-out classifier configuration
func (c *Config) GetClassifier() ClassifierConfig {
	return ClassifierConfig{
		Provider: c.GetString("classifier.provider"),
		Keywords: c.GetStringSlice("unsubscribe.keywords"),
	}
}

// GetBedrock returns the Bedrock configuration
func (c *Config) GetBedrock() BedrockConfig {
	return BedrockConfig{
		Region:      c.GetString("bedrock.region"),
		ModelID:     c.GetString("bedrock.model_id"),
		MaxTokens:   c.GetInt("bedrock.max_tokens"),
		Temperature: float32(c.GetFloat64("bedrock.temperature")),
		TopP:        float32(c.GetFloat64("bedrock.top_p")),
		MaxBodySize: c.GetInt("bedrock.max_body_size"),
	}
}

// GetGemini returns the Gemini configuration
func (c *Config) GetGemini() GeminiConfig {
	return GeminiConfig{
		APIKey:      c.GetString("gemini.api_key"),
		ModelName:   c.GetString("gemini.model_name"),
		MaxTokens:   c.GetInt("gemini.max_tokens"),
		Temperature: float32(c.GetFloat64("gemini.temperature")),
		TopP:        float32(c.GetFloat64("gemini.top_p")),
		MaxBodySize: c.GetInt("gemini.max_body_size"),
	}
}

// GetOpenAI returns the OpenAI configuration
func (c *Config) GetOpenAI() OpenAIConfig {
	return OpenAIConfig{
		APIKey:      c.GetString("openai.api_key"),
		ModelName:   c.GetString("openai.model_name"),
		MaxTokens:   c.GetInt("openai.max_tokens"),
		Temperature: float32(c.GetFloat64("openai.temperature")),
		TopP:        float32(c.GetFloat64("openai.top_p")),
		MaxBodySize: c.GetInt("openai.max_body_size"),
	}
}
