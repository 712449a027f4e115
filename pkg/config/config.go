package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for an extraction job
type Config struct {
	// Source API endpoints and credentials
	Source SourceConfig `yaml:"source" json:"source"`

	// Retry budget shared by authentication, page fetches and uploads
	Retry RetryConfig `yaml:"retry" json:"retry"`

	// Object storage destination
	Storage StorageConfig `yaml:"storage" json:"storage"`

	// Checkpoint persistence
	Checkpoint CheckpointConfig `yaml:"checkpoint" json:"checkpoint"`

	// Prometheus metrics endpoint
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// SourceConfig holds the paginated API configuration
type SourceConfig struct {
	TokenURL     string `yaml:"token_url" json:"token_url"`
	APIBaseURL   string `yaml:"api_base_url" json:"api_base_url"`
	EntityName   string `yaml:"entity_name" json:"entity_name"`
	SelectFields string `yaml:"select_fields" json:"select_fields"`

	// ResultsPath and NextPagePath locate the record array and the
	// continuation inside a page response (gjson syntax).
	ResultsPath  string `yaml:"results_path" json:"results_path"`
	NextPagePath string `yaml:"next_page_path" json:"next_page_path"`

	ClientID           string `yaml:"client_id" json:"client_id"`
	ClientSecret       string `yaml:"client_secret" json:"-"`
	CompanyID          string `yaml:"company_id" json:"company_id"`
	UserID             string `yaml:"user_id" json:"user_id"`
	CredentialsProfile string `yaml:"credentials_profile" json:"credentials_profile"`

	RequestTimeout    time.Duration `yaml:"request_timeout" json:"request_timeout"`
	AuthTimeout       time.Duration `yaml:"auth_timeout" json:"auth_timeout"`
	RequestsPerMinute int           `yaml:"requests_per_minute" json:"requests_per_minute"`
	DefaultRetryAfter time.Duration `yaml:"default_retry_after" json:"default_retry_after"`
}

// RetryConfig holds the retry policy values
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" json:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay" json:"base_delay"`
}

// StorageConfig holds object storage configuration
type StorageConfig struct {
	Type            string        `yaml:"type" json:"type"`
	Bucket          string        `yaml:"bucket" json:"bucket"`
	Prefix          string        `yaml:"prefix" json:"prefix"`
	Region          string        `yaml:"region" json:"region"`
	Endpoint        string        `yaml:"endpoint" json:"endpoint"`
	UsePathStyle    bool          `yaml:"use_path_style" json:"use_path_style"`
	LocalPath       string        `yaml:"local_path" json:"local_path"`
	CredentialsFile string        `yaml:"credentials_file" json:"credentials_file"`
	UploadTimeout   time.Duration `yaml:"upload_timeout" json:"upload_timeout"`
}

// CheckpointConfig holds checkpoint store configuration
type CheckpointConfig struct {
	Backend       string `yaml:"backend" json:"backend"`
	Path          string `yaml:"path" json:"path"`
	Mode          string `yaml:"mode" json:"mode"`
	RedisAddr     string `yaml:"redis_addr" json:"redis_addr"`
	RedisPassword string `yaml:"redis_password" json:"-"`
	RedisDB       int    `yaml:"redis_db" json:"redis_db"`
	RedisKey      string `yaml:"redis_key" json:"redis_key"`
}

// MetricsConfig holds metrics exposition configuration
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	ListenAddr string `yaml:"listen_addr" json:"listen_addr"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// Storage backends
const (
	StorageS3  = "s3"
	StorageGCS = "gcs"
	StorageFS  = "fs"
)

// Checkpoint backends and modes
const (
	CheckpointBackendFile  = "file"
	CheckpointBackendRedis = "redis"

	CheckpointBeforeUpload = "before_upload"
	CheckpointAfterUpload  = "after_upload"
)

const envPrefix = "SFEXTRACT_"

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Source: SourceConfig{
			ResultsPath:       "data.results",
			NextPagePath:      "data.nextPage",
			RequestTimeout:    60 * time.Second,
			AuthTimeout:       30 * time.Second,
			RequestsPerMinute: 0,
			DefaultRetryAfter: 30 * time.Second,
		},
		Retry: RetryConfig{
			MaxAttempts: 5,
			BaseDelay:   1 * time.Second,
		},
		Storage: StorageConfig{
			Type:          StorageS3,
			Prefix:        "successfactors-data",
			UploadTimeout: 60 * time.Second,
		},
		Checkpoint: CheckpointConfig{
			Backend:  CheckpointBackendFile,
			Path:     "./sfextract.state.json",
			Mode:     CheckpointBeforeUpload,
			RedisKey: "sfextract:checkpoint",
		},
		Metrics: MetricsConfig{
			Enabled:    false,
			ListenAddr: ":9090",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from SFEXTRACT_* environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	setString := func(name string, dst *string) {
		if v := os.Getenv(envPrefix + name); v != "" {
			*dst = v
		}
	}
	setInt := func(name string, dst *int) {
		if v := os.Getenv(envPrefix + name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	setDuration := func(name string, dst *time.Duration) {
		if v := os.Getenv(envPrefix + name); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
				return
			}
			*dst = d
		}
	}

	setString("TOKEN_URL", &c.Source.TokenURL)
	setString("API_BASE_URL", &c.Source.APIBaseURL)
	setString("ENTITY_NAME", &c.Source.EntityName)
	setString("SELECT_FIELDS", &c.Source.SelectFields)
	setString("CLIENT_ID", &c.Source.ClientID)
	setString("CLIENT_SECRET", &c.Source.ClientSecret)
	setString("COMPANY_ID", &c.Source.CompanyID)
	setString("USER_ID", &c.Source.UserID)
	setString("CREDENTIALS_PROFILE", &c.Source.CredentialsProfile)
	setInt("REQUESTS_PER_MINUTE", &c.Source.RequestsPerMinute)

	setInt("MAX_ATTEMPTS", &c.Retry.MaxAttempts)
	setDuration("BASE_DELAY", &c.Retry.BaseDelay)

	setString("STORAGE_TYPE", &c.Storage.Type)
	setString("BUCKET", &c.Storage.Bucket)
	setString("PREFIX", &c.Storage.Prefix)
	setString("REGION", &c.Storage.Region)
	setString("STORAGE_ENDPOINT", &c.Storage.Endpoint)

	setString("CHECKPOINT_BACKEND", &c.Checkpoint.Backend)
	setString("CHECKPOINT_PATH", &c.Checkpoint.Path)
	setString("CHECKPOINT_MODE", &c.Checkpoint.Mode)
	setString("REDIS_ADDR", &c.Checkpoint.RedisAddr)
	setString("REDIS_PASSWORD", &c.Checkpoint.RedisPassword)

	if v := os.Getenv(envPrefix + "METRICS_ENABLED"); v != "" {
		c.Metrics.Enabled = strings.ToLower(v) == "true"
	}
	setString("METRICS_ADDR", &c.Metrics.ListenAddr)

	setString("LOG_LEVEL", &c.Logging.Level)
	setString("LOG_FILE", &c.Logging.File)

	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".sfextract.yaml",
		".sfextract.yml",
		filepath.Join(home, ".config", "sfextract", "config.yaml"),
		filepath.Join(home, ".config", "sfextract", "config.yml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Source.TokenURL == "" {
		errs = append(errs, errors.New("source token URL is required"))
	}
	if c.Source.APIBaseURL == "" {
		errs = append(errs, errors.New("source API base URL is required"))
	}
	if c.Source.EntityName == "" {
		errs = append(errs, errors.New("source entity name is required"))
	}
	if c.Source.ResultsPath == "" {
		errs = append(errs, errors.New("results path is required"))
	}
	if c.Source.NextPagePath == "" {
		errs = append(errs, errors.New("next page path is required"))
	}
	if c.Source.RequestTimeout <= 0 || c.Source.AuthTimeout <= 0 {
		errs = append(errs, errors.New("request timeouts must be positive"))
	}
	if c.Source.RequestsPerMinute < 0 {
		errs = append(errs, errors.New("requests per minute cannot be negative"))
	}

	if c.Retry.MaxAttempts <= 0 {
		errs = append(errs, errors.New("retry max attempts must be positive"))
	}
	if c.Retry.BaseDelay < 0 {
		errs = append(errs, errors.New("retry base delay cannot be negative"))
	}

	switch strings.ToLower(c.Storage.Type) {
	case StorageS3, StorageGCS:
		if c.Storage.Bucket == "" {
			errs = append(errs, errors.New("storage bucket is required"))
		}
	case StorageFS:
		if c.Storage.LocalPath == "" {
			errs = append(errs, errors.New("storage local path is required for fs storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage type: %q", c.Storage.Type))
	}
	if c.Storage.UploadTimeout <= 0 {
		errs = append(errs, errors.New("upload timeout must be positive"))
	}

	switch c.Checkpoint.Backend {
	case CheckpointBackendFile:
		if c.Checkpoint.Path == "" {
			errs = append(errs, errors.New("checkpoint path is required"))
		}
	case CheckpointBackendRedis:
		if c.Checkpoint.RedisAddr == "" || c.Checkpoint.RedisKey == "" {
			errs = append(errs, errors.New("redis address and key are required for redis checkpoints"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported checkpoint backend: %q", c.Checkpoint.Backend))
	}
	if c.Checkpoint.Mode != CheckpointBeforeUpload && c.Checkpoint.Mode != CheckpointAfterUpload {
		errs = append(errs, fmt.Errorf("invalid checkpoint mode: %q", c.Checkpoint.Mode))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// HasClientCredentials reports whether the source credentials are fully populated
func (c *Config) HasClientCredentials() bool {
	return c.Source.ClientID != "" && c.Source.ClientSecret != ""
}

// CheckpointLocation describes where the checkpoint lives, for operator messages
func (c *Config) CheckpointLocation() string {
	if c.Checkpoint.Backend == CheckpointBackendRedis {
		return fmt.Sprintf("redis://%s/%d#%s", c.Checkpoint.RedisAddr, c.Checkpoint.RedisDB, c.Checkpoint.RedisKey)
	}
	return c.Checkpoint.Path
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if entity, ok := flags["entity"].(string); ok && entity != "" {
		c.Source.EntityName = entity
	}
	if sel, ok := flags["select"].(string); ok && sel != "" {
		c.Source.SelectFields = sel
	}
	if profile, ok := flags["profile"].(string); ok && profile != "" {
		c.Source.CredentialsProfile = profile
	}
	if bucket, ok := flags["bucket"].(string); ok && bucket != "" {
		c.Storage.Bucket = bucket
	}
	if prefix, ok := flags["prefix"].(string); ok && prefix != "" {
		c.Storage.Prefix = prefix
	}
	if path, ok := flags["checkpoint"].(string); ok && path != "" {
		c.Checkpoint.Path = path
	}
	if mode, ok := flags["checkpoint-mode"].(string); ok && mode != "" {
		c.Checkpoint.Mode = mode
	}
	if attempts, ok := flags["max-attempts"].(int); ok && attempts > 0 {
		c.Retry.MaxAttempts = attempts
	}
	if delay, ok := flags["base-delay"].(time.Duration); ok && delay > 0 {
		c.Retry.BaseDelay = delay
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
	if metrics, ok := flags["metrics"].(bool); ok {
		c.Metrics.Enabled = metrics
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".sfextract.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)
	config.Storage.Type = strings.ToLower(config.Storage.Type)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
