package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Beehiiv  BeehiivConfig  `yaml:"beehiiv"`
	Email    EmailConfig    `yaml:"email"`
	Sync     SyncConfig     `yaml:"sync"`
	Redis    RedisConfig    `yaml:"redis"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with ECS detection
func (c ServerConfig) GetHost() string {
	// On ECS/container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	// Allow override via environment
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifeMins int    `yaml:"conn_max_life_mins"`
}

// ConnMaxLifetime returns the connection lifetime as a duration
func (c DatabaseConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(c.ConnMaxLifeMins) * time.Minute
}

// BeehiivConfig holds Beehiiv newsletter platform API configuration
type BeehiivConfig struct {
	APIKey            string `yaml:"api_key"`
	BaseURL           string `yaml:"base_url"`
	PublicationID     string `yaml:"publication_id"`
	TimeoutSeconds    int    `yaml:"timeout_seconds"`
	MaxAttempts       int    `yaml:"max_attempts"`
	RetryDelaySeconds int    `yaml:"retry_delay_seconds"`
	DoubleOptIn       bool   `yaml:"double_opt_in"`
}

// Timeout returns the configured timeout as a duration
func (c BeehiivConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RetryDelay returns the fixed delay between registration attempts
func (c BeehiivConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySeconds) * time.Second
}

// SendingIdentity is one pre-verified from-domain usable for outbound email.
// Identities are listed in ranked order (fastest historical latency first).
type SendingIdentity struct {
	Domain    string `yaml:"domain"`
	FromEmail string `yaml:"from_email"`
	FromName  string `yaml:"from_name"`
	Provider  string `yaml:"provider"` // "resend" or "ses"
}

// EmailConfig holds transactional email sender configuration
type EmailConfig struct {
	ResendAPIKey   string            `yaml:"resend_api_key"`
	ResendBaseURL  string            `yaml:"resend_base_url"`
	SESRegion      string            `yaml:"ses_region"`
	SESAccessKey   string            `yaml:"ses_access_key"`
	SESSecretKey   string            `yaml:"ses_secret_key"`
	TimeoutSeconds int               `yaml:"timeout_seconds"`
	Identities     []SendingIdentity `yaml:"identities"`
	WelcomeSubject string            `yaml:"welcome_subject"`
	WelcomeHTML    string            `yaml:"welcome_html"`
	WelcomeText    string            `yaml:"welcome_text"`
}

// Timeout returns the configured timeout as a duration
func (c EmailConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SyncConfig holds reconciliation job configuration
type SyncConfig struct {
	BatchSize         int    `yaml:"batch_size"`
	ItemDelayMillis   int    `yaml:"item_delay_millis"`
	BatchDelaySeconds int    `yaml:"batch_delay_seconds"`
	CooldownMinutes   int    `yaml:"cooldown_minutes"`
	Token             string `yaml:"token"`
	LockTTLSeconds    int    `yaml:"lock_ttl_seconds"`
}

// ItemDelay returns the pause between consecutive entries within a batch
func (c SyncConfig) ItemDelay() time.Duration {
	return time.Duration(c.ItemDelayMillis) * time.Millisecond
}

// BatchDelay returns the pause between batches
func (c SyncConfig) BatchDelay() time.Duration {
	return time.Duration(c.BatchDelaySeconds) * time.Second
}

// Cooldown returns how recently an entry may have been attempted before
// the drift scan skips it
func (c SyncConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownMinutes) * time.Minute
}

// LockTTL returns the bulk-sync distributed lock TTL
func (c SyncConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// RedisConfig holds Redis connection settings for the bulk-sync lock
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Enabled  bool   `yaml:"enabled"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifeMins == 0 {
		cfg.Database.ConnMaxLifeMins = 30
	}
	if cfg.Beehiiv.BaseURL == "" {
		cfg.Beehiiv.BaseURL = "https://api.beehiiv.com/v2"
	}
	if cfg.Beehiiv.TimeoutSeconds == 0 {
		cfg.Beehiiv.TimeoutSeconds = 30
	}
	if cfg.Beehiiv.MaxAttempts == 0 {
		cfg.Beehiiv.MaxAttempts = 2
	}
	if cfg.Beehiiv.RetryDelaySeconds == 0 {
		cfg.Beehiiv.RetryDelaySeconds = 2
	}
	if cfg.Email.ResendBaseURL == "" {
		cfg.Email.ResendBaseURL = "https://api.resend.com"
	}
	if cfg.Email.TimeoutSeconds == 0 {
		cfg.Email.TimeoutSeconds = 30
	}
	if cfg.Email.SESRegion == "" {
		cfg.Email.SESRegion = "us-east-1"
	}
	if cfg.Email.WelcomeSubject == "" {
		cfg.Email.WelcomeSubject = "You're on the list"
	}
	if cfg.Email.WelcomeHTML == "" {
		cfg.Email.WelcomeHTML = `<h2>You're on the list!</h2>` +
			`<p>Thanks for signing up at {{ domain | default: "our site" }}. ` +
			`We'll let you know the moment access opens.</p>`
	}
	if cfg.Email.WelcomeText == "" {
		cfg.Email.WelcomeText = `You're on the list! Thanks for signing up at ` +
			`{{ domain | default: "our site" }}. We'll let you know the moment access opens.`
	}
	if cfg.Sync.BatchSize == 0 {
		cfg.Sync.BatchSize = 10
	}
	if cfg.Sync.ItemDelayMillis == 0 {
		cfg.Sync.ItemDelayMillis = 500
	}
	if cfg.Sync.BatchDelaySeconds == 0 {
		cfg.Sync.BatchDelaySeconds = 5
	}
	if cfg.Sync.CooldownMinutes == 0 {
		cfg.Sync.CooldownMinutes = 60
	}
	if cfg.Sync.LockTTLSeconds == 0 {
		cfg.Sync.LockTTLSeconds = 600
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	// Override with environment variables if present
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if apiKey := os.Getenv("BEEHIIV_API_KEY"); apiKey != "" {
		cfg.Beehiiv.APIKey = apiKey
	}
	if baseURL := os.Getenv("BEEHIIV_BASE_URL"); baseURL != "" {
		cfg.Beehiiv.BaseURL = baseURL
	}
	if pubID := os.Getenv("BEEHIIV_PUBLICATION_ID"); pubID != "" {
		cfg.Beehiiv.PublicationID = pubID
	}
	if apiKey := os.Getenv("RESEND_API_KEY"); apiKey != "" {
		cfg.Email.ResendAPIKey = apiKey
	}
	if baseURL := os.Getenv("RESEND_BASE_URL"); baseURL != "" {
		cfg.Email.ResendBaseURL = baseURL
	}
	if accessKey := os.Getenv("AWS_SES_ACCESS_KEY"); accessKey != "" {
		cfg.Email.SESAccessKey = accessKey
	}
	if secretKey := os.Getenv("AWS_SES_SECRET_KEY"); secretKey != "" {
		cfg.Email.SESSecretKey = secretKey
	}
	if region := os.Getenv("AWS_SES_REGION"); region != "" {
		cfg.Email.SESRegion = region
	}
	if token := os.Getenv("SYNC_TOKEN"); token != "" {
		cfg.Sync.Token = token
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SYNC_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Sync.BatchSize = n
		}
	}

	return cfg, nil
}

// Validate checks that required settings are present before startup.
func (c *Config) Validate() error {
	var missing []string
	if c.Database.URL == "" {
		missing = append(missing, "database.url")
	}
	if c.Beehiiv.APIKey == "" {
		missing = append(missing, "beehiiv.api_key")
	}
	if c.Beehiiv.PublicationID == "" {
		missing = append(missing, "beehiiv.publication_id")
	}
	if len(c.Email.Identities) == 0 {
		missing = append(missing, "email.identities")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}
	return nil
}
