package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var (
	ErrMissingConfig = errors.New("missing required configuration")
	ErrInvalidConfig = errors.New("invalid configuration value")
)

const (
	// DefaultFeedURL is the published festival feed.
	DefaultFeedURL         = "https://raw.githubusercontent.com/wff-calendar/feed/main/calendar.ics"
	DefaultTimezone        = "America/New_York"
	DefaultSMTPPort        = 587
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "text"
	serviceAccountTypeName = "service_account"
)

// ServiceAccountKey is the subset of a Google service-account key file the
// tool reads.
type ServiceAccountKey struct {
	Type         string `json:"type"`
	ClientEmail  string `json:"client_email"`
	PrivateKey   string `json:"private_key"`
	PrivateKeyID string `json:"private_key_id"`
	TokenURI     string `json:"token_uri"`
}

// LoadServiceAccount loads a service-account key file downloaded from the
// Google Cloud console.
func LoadServiceAccount(path string) (*ServiceAccountKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}

	var key ServiceAccountKey
	if err := json.Unmarshal(data, &key); err != nil {
		return nil, fmt.Errorf("failed to parse credentials file: %w", err)
	}

	if key.Type != "" && key.Type != serviceAccountTypeName {
		return nil, fmt.Errorf("%w: credentials file type is %q, expected %q", ErrInvalidConfig, key.Type, serviceAccountTypeName)
	}
	if key.ClientEmail == "" || key.PrivateKey == "" {
		return nil, fmt.Errorf("%w: credentials file has no client_email or private_key", ErrInvalidConfig)
	}
	return &key, nil
}

// SMTPConfig holds outgoing mail settings for failure notifications.
type SMTPConfig struct {
	Host     string   `json:"host,omitempty" yaml:"host,omitempty"`
	Port     int      `json:"port,omitempty" yaml:"port,omitempty"`
	Username string   `json:"username,omitempty" yaml:"username,omitempty"`
	Password string   `json:"password,omitempty" yaml:"password,omitempty"`
	From     string   `json:"from,omitempty" yaml:"from,omitempty"`
	To       []string `json:"to,omitempty" yaml:"to,omitempty"`
}

// Config holds the configuration for the sync tool.
type Config struct {
	FeedURL               string  `json:"feed_url,omitempty" yaml:"feed_url,omitempty"`
	CalendarID            string  `json:"calendar_id,omitempty" yaml:"calendar_id,omitempty"`
	ServiceAccountEmail   string  `json:"service_account_email,omitempty" yaml:"service_account_email,omitempty"`
	PrivateKey            string  `json:"private_key,omitempty" yaml:"private_key,omitempty"`
	GoogleCredentialsPath string  `json:"google_credentials_path,omitempty" yaml:"google_credentials_path,omitempty"`
	DelegatedSubject      string  `json:"delegated_subject,omitempty" yaml:"delegated_subject,omitempty"`
	DefaultTimezone       string  `json:"default_timezone,omitempty" yaml:"default_timezone,omitempty"`
	SyncRateLimit         float64 `json:"sync_rate_limit,omitempty" yaml:"sync_rate_limit,omitempty"` // events per second, 0 = unlimited

	WebhookURL string     `json:"webhook_url,omitempty" yaml:"webhook_url,omitempty"`
	SMTP       SMTPConfig `json:"smtp,omitempty" yaml:"smtp,omitempty"`

	MetricsFile string `json:"metrics_file,omitempty" yaml:"metrics_file,omitempty"`

	TokenURL         string `json:"token_url,omitempty" yaml:"token_url,omitempty"`
	CalendarEndpoint string `json:"calendar_endpoint,omitempty" yaml:"calendar_endpoint,omitempty"`

	LogLevel  string `json:"log_level,omitempty" yaml:"log_level,omitempty"`
	LogFormat string `json:"log_format,omitempty" yaml:"log_format,omitempty"`
}

// Flags carries command-line overrides. Empty values leave lower layers alone.
type Flags struct {
	ConfigFile            string
	FeedURL               string
	CalendarID            string
	GoogleCredentialsPath string
	DefaultTimezone       string
	SyncRateLimit         float64
	MetricsFile           string
	LogLevel              string
	LogFormat             string
}

// LoadDotEnv loads KEY=VALUE files into the process environment. Missing files
// are skipped and variables already set are left untouched.
func LoadDotEnv(paths ...string) error {
	for _, path := range paths {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

// LoadConfigFromFile loads configuration from a JSON or YAML file, chosen by
// extension.
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &config)
	default:
		err = json.Unmarshal(data, &config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// LoadConfig loads configuration with the following precedence (highest to lowest):
// 1. Command-line flags
// 2. Environment variables
// 3. Config file
// 4. Defaults
// Returns an error wrapping ErrMissingConfig or ErrInvalidConfig before any
// network access happens.
func LoadConfig(flags Flags) (*Config, error) {
	config, err := Resolve(flags)
	if err != nil {
		return nil, err
	}

	if err := config.RequireCredentials(); err != nil {
		return nil, err
	}

	return config, nil
}

// RequireCredentials returns an error wrapping ErrMissingConfig naming every
// required value that is still empty.
func (c *Config) RequireCredentials() error {
	if missing := c.getMissingRequired(); len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingConfig, strings.Join(missing, ", "))
	}
	return nil
}

// Resolve layers flags, environment, file and defaults and validates value
// formats, without requiring the calendar identity. Commands that never talk
// to Google use it directly.
func Resolve(flags Flags) (*Config, error) {
	var config Config

	// Step 1: Load from config file if provided
	if flags.ConfigFile != "" {
		fileConfig, err := LoadConfigFromFile(flags.ConfigFile)
		if err != nil {
			return nil, err
		}
		config = *fileConfig
	}

	// Step 2: Override with environment variables
	if err := applyEnv(&config); err != nil {
		return nil, err
	}

	// Step 3: Override with command-line flags (highest priority)
	applyFlags(&config, flags)

	// Step 4: Service-account key file fills in identity not given directly
	if config.GoogleCredentialsPath != "" {
		key, err := LoadServiceAccount(config.GoogleCredentialsPath)
		if err != nil {
			return nil, err
		}
		if config.ServiceAccountEmail == "" {
			config.ServiceAccountEmail = key.ClientEmail
		}
		if config.PrivateKey == "" {
			config.PrivateKey = key.PrivateKey
		}
		if config.TokenURL == "" {
			config.TokenURL = key.TokenURI
		}
	}

	// Step 5: Apply defaults and validate
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func applyEnv(config *Config) error {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setString(&config.FeedURL, "FEED_URL")
	setString(&config.CalendarID, "GOOGLE_CALENDAR_ID")
	setString(&config.ServiceAccountEmail, "GOOGLE_SERVICE_ACCOUNT_EMAIL")
	setString(&config.PrivateKey, "GOOGLE_PRIVATE_KEY")
	setString(&config.GoogleCredentialsPath, "GOOGLE_CREDENTIALS_PATH")
	setString(&config.DelegatedSubject, "GOOGLE_DELEGATED_SUBJECT")
	setString(&config.DefaultTimezone, "DEFAULT_TIMEZONE")
	setString(&config.WebhookURL, "NOTIFY_WEBHOOK_URL")
	setString(&config.SMTP.Host, "SMTP_HOST")
	setString(&config.SMTP.Username, "SMTP_USERNAME")
	setString(&config.SMTP.Password, "SMTP_PASSWORD")
	setString(&config.SMTP.From, "SMTP_FROM")
	setString(&config.MetricsFile, "METRICS_FILE")
	setString(&config.TokenURL, "TOKEN_URL")
	setString(&config.CalendarEndpoint, "CALENDAR_ENDPOINT")
	setString(&config.LogLevel, "LOG_LEVEL")
	setString(&config.LogFormat, "LOG_FORMAT")

	if to := os.Getenv("SMTP_TO"); to != "" {
		config.SMTP.To = splitList(to)
	}

	if v := os.Getenv("SMTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: SMTP_PORT: %w", ErrInvalidConfig, err)
		}
		config.SMTP.Port = port
	}

	if v := os.Getenv("SYNC_RATE_LIMIT"); v != "" {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%w: SYNC_RATE_LIMIT: %w", ErrInvalidConfig, err)
		}
		config.SyncRateLimit = rate
	}

	return nil
}

func applyFlags(config *Config, flags Flags) {
	if flags.FeedURL != "" {
		config.FeedURL = flags.FeedURL
	}
	if flags.CalendarID != "" {
		config.CalendarID = flags.CalendarID
	}
	if flags.GoogleCredentialsPath != "" {
		config.GoogleCredentialsPath = flags.GoogleCredentialsPath
	}
	if flags.DefaultTimezone != "" {
		config.DefaultTimezone = flags.DefaultTimezone
	}
	if flags.SyncRateLimit != 0 {
		config.SyncRateLimit = flags.SyncRateLimit
	}
	if flags.MetricsFile != "" {
		config.MetricsFile = flags.MetricsFile
	}
	if flags.LogLevel != "" {
		config.LogLevel = flags.LogLevel
	}
	if flags.LogFormat != "" {
		config.LogFormat = flags.LogFormat
	}
}

func (c *Config) applyDefaults() {
	if c.FeedURL == "" {
		c.FeedURL = DefaultFeedURL
	}
	if c.DefaultTimezone == "" {
		c.DefaultTimezone = DefaultTimezone
	}
	if c.DelegatedSubject == "" {
		c.DelegatedSubject = c.ServiceAccountEmail
	}
	if c.SMTP.Host != "" && c.SMTP.Port == 0 {
		c.SMTP.Port = DefaultSMTPPort
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = DefaultLogFormat
	}
}

// getMissingRequired returns the environment names of required values that
// are still empty.
func (c *Config) getMissingRequired() []string {
	var missing []string

	if c.CalendarID == "" {
		missing = append(missing, "GOOGLE_CALENDAR_ID")
	}
	if c.ServiceAccountEmail == "" {
		missing = append(missing, "GOOGLE_SERVICE_ACCOUNT_EMAIL")
	}
	if c.PrivateKey == "" {
		missing = append(missing, "GOOGLE_PRIVATE_KEY")
	}

	return missing
}

// Validate checks value formats. Required-field presence is checked by
// LoadConfig only.
func (c *Config) Validate() error {
	if err := validateHTTPURL(c.FeedURL); err != nil {
		return fmt.Errorf("%w: FEED_URL: %w", ErrInvalidConfig, err)
	}
	if _, err := time.LoadLocation(c.DefaultTimezone); err != nil {
		return fmt.Errorf("%w: DEFAULT_TIMEZONE: %w", ErrInvalidConfig, err)
	}
	if c.SyncRateLimit < 0 {
		return fmt.Errorf("%w: SYNC_RATE_LIMIT must not be negative", ErrInvalidConfig)
	}
	if c.WebhookURL != "" {
		if err := validateHTTPURL(c.WebhookURL); err != nil {
			return fmt.Errorf("%w: NOTIFY_WEBHOOK_URL: %w", ErrInvalidConfig, err)
		}
	}
	if c.SMTP.Host != "" {
		if c.SMTP.From == "" || len(c.SMTP.To) == 0 {
			return fmt.Errorf("%w: SMTP_FROM and SMTP_TO are required when SMTP_HOST is set", ErrInvalidConfig)
		}
		if c.SMTP.Port <= 0 || c.SMTP.Port > 65535 {
			return fmt.Errorf("%w: SMTP_PORT %d out of range", ErrInvalidConfig, c.SMTP.Port)
		}
	}
	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("host is empty")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
