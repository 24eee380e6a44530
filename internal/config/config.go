package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"genquota/internal/models"
)

// Load loads configuration from file and environment variables
func Load(configPath string) (*models.Config, error) {
	// Start with default configuration
	config := models.NewDefaultConfig()

	// Load from file if provided and exists
	if configPath != "" {
		if err := loadFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// Override with environment variables
	loadFromEnvironment(config)

	// Validate the final configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(config *models.Config, filePath string) error {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", filePath)
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return nil
}

// loadFromEnvironment loads configuration from environment variables
func loadFromEnvironment(config *models.Config) {
	// Server configuration
	if port := os.Getenv("GENQUOTA_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if host := os.Getenv("GENQUOTA_HOST"); host != "" {
		config.Server.Host = host
	}

	if timeout := os.Getenv("GENQUOTA_READ_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Server.ReadTimeout = d
		}
	}

	if timeout := os.Getenv("GENQUOTA_WRITE_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Server.WriteTimeout = d
		}
	}

	if timeout := os.Getenv("GENQUOTA_IDLE_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Server.IdleTimeout = d
		}
	}

	if tls := os.Getenv("GENQUOTA_TLS_ENABLED"); tls != "" {
		config.Server.TLSEnabled = strings.ToLower(tls) == "true"
	}

	if certFile := os.Getenv("GENQUOTA_TLS_CERT_FILE"); certFile != "" {
		config.Server.TLSCertFile = certFile
	}

	if keyFile := os.Getenv("GENQUOTA_TLS_KEY_FILE"); keyFile != "" {
		config.Server.TLSKeyFile = keyFile
	}

	// Storage configuration
	if storageType := os.Getenv("GENQUOTA_STORAGE_TYPE"); storageType != "" {
		config.Storage.Type = storageType
	}

	if dsn := os.Getenv("GENQUOTA_DATABASE_DSN"); dsn != "" {
		config.Storage.Database.DSN = dsn
	}

	if maxOpen := os.Getenv("GENQUOTA_DATABASE_MAX_OPEN_CONNS"); maxOpen != "" {
		if conns, err := strconv.Atoi(maxOpen); err == nil {
			config.Storage.Database.MaxOpenConns = conns
		}
	}

	if maxIdle := os.Getenv("GENQUOTA_DATABASE_MAX_IDLE_CONNS"); maxIdle != "" {
		if conns, err := strconv.Atoi(maxIdle); err == nil {
			config.Storage.Database.MaxIdleConns = conns
		}
	}

	if timeout := os.Getenv("GENQUOTA_DATABASE_QUERY_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Storage.Database.QueryTimeout = d
		}
	}

	// Security configuration
	if salt := os.Getenv("GENQUOTA_IDENTITY_SALT"); salt != "" {
		config.Security.IdentitySalt = salt
	}

	if maxLen := os.Getenv("GENQUOTA_MAX_FINGERPRINT_LENGTH"); maxLen != "" {
		if n, err := strconv.Atoi(maxLen); err == nil {
			config.Security.MaxFingerprintLength = n
		}
	}

	if auth := os.Getenv("GENQUOTA_AUTH_ENABLED"); auth != "" {
		config.Security.Auth.Enabled = strings.ToLower(auth) == "true"
	}

	if url := os.Getenv("GENQUOTA_AUTH_USER_INFO_URL"); url != "" {
		config.Security.Auth.UserInfoURL = url
	}

	if timeout := os.Getenv("GENQUOTA_AUTH_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Security.Auth.Timeout = d
		}
	}

	// Quota configuration
	if limit := os.Getenv("GENQUOTA_ANONYMOUS_DAILY_LIMIT"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			config.Quota.AnonymousDailyLimit = n
		}
	}

	if limit := os.Getenv("GENQUOTA_AUTHENTICATED_DAILY_LIMIT"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			config.Quota.AuthenticatedDailyLimit = n
		}
	}

	// Retention configuration
	if enabled := os.Getenv("GENQUOTA_RETENTION_ENABLED"); enabled != "" {
		config.Retention.Enabled = strings.ToLower(enabled) == "true"
	}

	if days := os.Getenv("GENQUOTA_RETENTION_USAGE_DAYS"); days != "" {
		if n, err := strconv.Atoi(days); err == nil {
			config.Retention.UsageDays = n
		}
	}

	if days := os.Getenv("GENQUOTA_RETENTION_ATTEMPT_DAYS"); days != "" {
		if n, err := strconv.Atoi(days); err == nil {
			config.Retention.AttemptDays = n
		}
	}

	if interval := os.Getenv("GENQUOTA_RETENTION_SWEEP_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			config.Retention.SweepInterval = d
		}
	}

	// Logging configuration
	if level := os.Getenv("GENQUOTA_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if format := os.Getenv("GENQUOTA_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}

	if output := os.Getenv("GENQUOTA_LOG_OUTPUT"); output != "" {
		config.Logging.Output = output
	}

	if filePath := os.Getenv("GENQUOTA_LOG_FILE_PATH"); filePath != "" {
		config.Logging.FilePath = filePath
	}

	// Metrics configuration
	if metrics := os.Getenv("GENQUOTA_METRICS_ENABLED"); metrics != "" {
		config.Metrics.Enabled = strings.ToLower(metrics) == "true"
	}

	if path := os.Getenv("GENQUOTA_METRICS_PATH"); path != "" {
		config.Metrics.Path = path
	}

	if port := os.Getenv("GENQUOTA_METRICS_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Metrics.Port = p
		}
	}

	// Observability configuration
	if tracing := os.Getenv("GENQUOTA_TRACING_ENABLED"); tracing != "" {
		config.Observability.Tracing.Enabled = strings.ToLower(tracing) == "true"
	}

	if exporter := os.Getenv("GENQUOTA_TRACING_EXPORTER"); exporter != "" {
		config.Observability.Tracing.Exporter = exporter
	}

	if endpoint := os.Getenv("GENQUOTA_OTLP_ENDPOINT"); endpoint != "" {
		config.Observability.Tracing.OTLPEndpoint = endpoint
	}
}
