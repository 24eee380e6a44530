// Package models - Service configuration and operational settings.
//
// Configuration Philosophy:
// - Hierarchical configuration with logical grouping (server, storage, etc.)
// - Environment-friendly defaults that work out of the box
// - Comprehensive validation to catch misconfigurations early
// - Security-first approach with safe defaults
package models

import (
	"errors"
	"fmt"
	"time"
)

// Storage type constants
const (
	StorageTypeMemory   = "memory"
	StorageTypePostgres = "postgres"
	StorageTypeSQLite   = "sqlite"
)

// Config is the root configuration structure containing all service settings.
type Config struct {
	Server        ServerConfig        `yaml:"server" json:"server"`               // HTTP server configuration
	Storage       StorageConfig       `yaml:"storage" json:"storage"`             // Data persistence settings
	Security      SecurityConfig      `yaml:"security" json:"security"`           // Identity, admin keys, rate limiting
	Quota         QuotaConfig         `yaml:"quota" json:"quota"`                 // Daily generation caps
	Retention     RetentionConfig     `yaml:"retention" json:"retention"`         // Usage and audit retention
	Logging       LoggingConfig       `yaml:"logging" json:"logging"`             // Logging and output configuration
	Metrics       MetricsConfig       `yaml:"metrics" json:"metrics"`             // Monitoring and metrics
	Observability ObservabilityConfig `yaml:"observability" json:"observability"` // Tracing configuration
}

type ServerConfig struct {
	Port         int           `yaml:"port" json:"port"`
	Host         string        `yaml:"host" json:"host"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	TLSEnabled   bool          `yaml:"tls_enabled" json:"tls_enabled"`
	TLSCertFile  string        `yaml:"tls_cert_file" json:"tls_cert_file"`
	TLSKeyFile   string        `yaml:"tls_key_file" json:"tls_key_file"`
	CORS         CORSConfig    `yaml:"cors" json:"cors"`
}

type CORSConfig struct {
	Enabled        bool     `yaml:"enabled" json:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" json:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" json:"allowed_headers"`
	MaxAge         int      `yaml:"max_age" json:"max_age"`
}

type StorageConfig struct {
	Type     string         `yaml:"type" json:"type"`
	Database DatabaseConfig `yaml:"database" json:"database"`
}

type DatabaseConfig struct {
	DSN             string        `yaml:"dsn" json:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	QueryTimeout    time.Duration `yaml:"query_timeout" json:"query_timeout"`
}

type SecurityConfig struct {
	// IdentitySalt is mixed into the anonymous identity hash. Changing it
	// rotates every anonymous identity.
	IdentitySalt string `yaml:"identity_salt" json:"identity_salt"`

	// MaxFingerprintLength rejects oversized raw fingerprints before
	// sanitization.
	MaxFingerprintLength int `yaml:"max_fingerprint_length" json:"max_fingerprint_length"`

	Auth      AuthConfig      `yaml:"auth" json:"auth"`
	APIKeys   []APIKey        `yaml:"api_keys" json:"api_keys"`
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
}

// AuthConfig points at the credential verifier of the hosted auth provider.
type AuthConfig struct {
	Enabled     bool          `yaml:"enabled" json:"enabled"`
	UserInfoURL string        `yaml:"user_info_url" json:"user_info_url"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
}

// APIKey grants access to the admin surface. Keys live in configuration;
// the quota endpoints themselves are public by design.
type APIKey struct {
	Key         string   `yaml:"key" json:"key"`
	Name        string   `yaml:"name" json:"name"`
	Permissions []string `yaml:"permissions" json:"permissions"`
	Enabled     bool     `yaml:"enabled" json:"enabled"`
}

type RateLimitConfig struct {
	Enabled                        bool          `yaml:"enabled" json:"enabled"`
	RequestsPerMinute              int           `yaml:"requests_per_minute" json:"requests_per_minute"`
	BurstSize                      int           `yaml:"burst_size" json:"burst_size"`
	AuthenticatedRequestsPerMinute int           `yaml:"authenticated_requests_per_minute" json:"authenticated_requests_per_minute"`
	AuthenticatedBurstSize         int           `yaml:"authenticated_burst_size" json:"authenticated_burst_size"`
	CleanupInterval                time.Duration `yaml:"cleanup_interval" json:"cleanup_interval"`
}

// QuotaConfig holds the daily generation caps.
type QuotaConfig struct {
	AnonymousDailyLimit     int `yaml:"anonymous_daily_limit" json:"anonymous_daily_limit"`
	AuthenticatedDailyLimit int `yaml:"authenticated_daily_limit" json:"authenticated_daily_limit"`
}

// RetentionConfig controls the background sweep of old rows.
type RetentionConfig struct {
	Enabled       bool          `yaml:"enabled" json:"enabled"`
	UsageDays     int           `yaml:"usage_days" json:"usage_days"`         // anonymous_usage rows
	AttemptDays   int           `yaml:"attempt_days" json:"attempt_days"`     // anonymous attempt_log rows
	SweepInterval time.Duration `yaml:"sweep_interval" json:"sweep_interval"` // how often to purge
}

type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	Format   string `yaml:"format" json:"format"`
	Output   string `yaml:"output" json:"output"`
	FilePath string `yaml:"file_path" json:"file_path"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
	Port    int    `yaml:"port" json:"port"`
}

type ObservabilityConfig struct {
	ServiceName string        `yaml:"service_name" json:"service_name"`
	Tracing     TracingConfig `yaml:"tracing" json:"tracing"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	Exporter     string  `yaml:"exporter" json:"exporter"` // "stdout" or "otlp"
	OTLPEndpoint string  `yaml:"otlp_endpoint" json:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate" json:"sample_rate"`
}

// NewDefaultConfig creates a configuration with production-ready defaults.
//
// Default Values Rationale:
// - Port 8080: Standard non-privileged HTTP port
// - 30-second timeouts: Balance between user experience and resource protection
// - Memory storage: Simple setup without external dependencies
// - Caps 5/10: Anonymous vs authenticated daily generation limits
// - Retention 30/90 days: Usage rows vs audit log
// - CORS wide open: the quota endpoints are called from browsers
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			Host:         "0.0.0.0",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
			TLSEnabled:   false,
			CORS: CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders: []string{"Content-Type", "Authorization", "X-Fingerprint"},
				MaxAge:         86400,
			},
		},
		Storage: StorageConfig{
			Type: StorageTypeMemory,
			Database: DatabaseConfig{
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
				QueryTimeout:    5 * time.Second,
			},
		},
		Security: SecurityConfig{
			MaxFingerprintLength: 256,
			Auth: AuthConfig{
				Enabled: false,
				Timeout: 3 * time.Second,
			},
			APIKeys: []APIKey{},
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 60,
				BurstSize:         10,
				CleanupInterval:   5 * time.Minute,
			},
		},
		Quota: QuotaConfig{
			AnonymousDailyLimit:     5,
			AuthenticatedDailyLimit: 10,
		},
		Retention: RetentionConfig{
			Enabled:       true,
			UsageDays:     30,
			AttemptDays:   90,
			SweepInterval: time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Port:    9090,
		},
		Observability: ObservabilityConfig{
			ServiceName: "genquota",
			Tracing: TracingConfig{
				Enabled:    false,
				Exporter:   "stdout",
				SampleRate: 1.0,
			},
		},
	}
}

func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("invalid storage config: %w", err)
	}

	if err := c.Security.Validate(); err != nil {
		return fmt.Errorf("invalid security config: %w", err)
	}

	if err := c.Quota.Validate(); err != nil {
		return fmt.Errorf("invalid quota config: %w", err)
	}

	if err := c.Retention.Validate(); err != nil {
		return fmt.Errorf("invalid retention config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("invalid metrics config: %w", err)
	}

	return nil
}

func (sc *ServerConfig) Validate() error {
	if sc.Port <= 0 || sc.Port > 65535 {
		return errors.New("port must be between 1 and 65535")
	}

	if sc.Host == "" {
		return errors.New("host cannot be empty")
	}

	if sc.ReadTimeout < 0 || sc.WriteTimeout < 0 || sc.IdleTimeout < 0 {
		return errors.New("timeouts cannot be negative")
	}

	if sc.TLSEnabled {
		if sc.TLSCertFile == "" {
			return errors.New("TLS cert file is required when TLS is enabled")
		}
		if sc.TLSKeyFile == "" {
			return errors.New("TLS key file is required when TLS is enabled")
		}
	}

	return nil
}

func (stc *StorageConfig) Validate() error {
	switch stc.Type {
	case StorageTypeMemory:
		// Memory storage requires no additional configuration
	case StorageTypePostgres, StorageTypeSQLite:
		if stc.Database.DSN == "" {
			return fmt.Errorf("database DSN is required for %s storage", stc.Type)
		}
	default:
		return fmt.Errorf("invalid storage type: %s", stc.Type)
	}
	return nil
}

func (sec *SecurityConfig) Validate() error {
	if sec.MaxFingerprintLength <= 0 {
		return errors.New("max fingerprint length must be positive")
	}

	if sec.Auth.Enabled && sec.Auth.UserInfoURL == "" {
		return errors.New("auth user_info_url is required when auth is enabled")
	}

	if sec.RateLimit.Enabled {
		if sec.RateLimit.RequestsPerMinute <= 0 {
			return errors.New("requests per minute must be positive")
		}
		if sec.RateLimit.BurstSize < 0 {
			return errors.New("burst size cannot be negative")
		}
	}

	for _, apiKey := range sec.APIKeys {
		if apiKey.Key == "" {
			return errors.New("API key cannot be empty")
		}
		if apiKey.Name == "" {
			return errors.New("API key name cannot be empty")
		}
	}

	return nil
}

func (qc *QuotaConfig) Validate() error {
	if qc.AnonymousDailyLimit <= 0 {
		return errors.New("anonymous daily limit must be positive")
	}
	if qc.AuthenticatedDailyLimit <= 0 {
		return errors.New("authenticated daily limit must be positive")
	}
	return nil
}

func (rc *RetentionConfig) Validate() error {
	if !rc.Enabled {
		return nil
	}
	if rc.UsageDays <= 0 {
		return errors.New("usage retention days must be positive")
	}
	if rc.AttemptDays <= 0 {
		return errors.New("attempt retention days must be positive")
	}
	if rc.SweepInterval <= 0 {
		return errors.New("sweep interval must be positive")
	}
	return nil
}

func (lc *LoggingConfig) Validate() error {
	validLevels := []string{"debug", "info", "warn", "error"}
	found := false
	for _, vl := range validLevels {
		if lc.Level == vl {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("invalid log level: %s", lc.Level)
	}

	validFormats := []string{"json", "text"}
	found = false
	for _, vf := range validFormats {
		if lc.Format == vf {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("invalid log format: %s", lc.Format)
	}

	validOutputs := []string{"stdout", "stderr", "file"}
	found = false
	for _, vo := range validOutputs {
		if lc.Output == vo {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("invalid log output: %s", lc.Output)
	}

	if lc.Output == "file" && lc.FilePath == "" {
		return errors.New("file path is required when output is file")
	}

	return nil
}

func (mc *MetricsConfig) Validate() error {
	if !mc.Enabled {
		return nil
	}

	if mc.Path == "" {
		return errors.New("metrics path cannot be empty")
	}

	if mc.Port <= 0 || mc.Port > 65535 {
		return errors.New("metrics port must be between 1 and 65535")
	}

	return nil
}

func (ak *APIKey) HasPermission(permission string) bool {
	if !ak.Enabled {
		return false
	}
	for _, p := range ak.Permissions {
		if p == permission || p == "*" {
			return true
		}
	}
	return false
}
