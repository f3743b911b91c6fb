// Package config handles application configuration and environment loading.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Config holds configuration for the pipeline, the lake layout, and the
// optional control-plane HTTP server.
type Config struct {
	// Lake layout.
	LakeRoot   string // root directory of the bronze/silver/gold layers
	LandingDir string // landing zone with raw CSV extracts
	MetaDBPath string // path to the SQLite catalog (control plane)

	// Pipeline.
	Workers      int    // stage-internal parallelism (default 4)
	ScheduleCron string // cron spec for scheduled full runs (empty = disabled)
	DimDateStart int    // first year of the dim_date calendar (default 2020)
	DimDateEnd   int    // last year of the dim_date calendar (default 2030)

	// Optional external schema / rule-set files; embedded defaults otherwise.
	SchemaFile string
	RulesFile  string

	// HTTP control plane.
	ListenAddr string // HTTP listen address (default ":8080")
	JWTSecret  string // HS256 shared secret for bearer auth
	LogLevel   string // log level: debug, info, warn, error (default "info")
	Env        string // environment: "development" (default) or "production"

	// Rate limiting.
	RateLimitRPS   float64 // sustained requests per second (default 50)
	RateLimitBurst int     // burst capacity (default 100)

	// CORS.
	CORSAllowedOrigins []string // allowed origins (default: ["*"])

	// Remote object storage for lake sync — optional, nil/empty when not set.
	S3KeyID    *string
	S3Secret   *string
	S3Endpoint *string
	S3Region   *string
	S3Bucket   *string

	GCSKeyFile string // service account key file for GCS sync
	GCSBucket  string

	AzureAccountName string
	AzureAccountKey  string
	AzureContainer   string

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsProduction returns true when running in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// HasS3Config returns true if all required S3 fields are set.
func (c *Config) HasS3Config() bool {
	return c.S3KeyID != nil && c.S3Secret != nil &&
		c.S3Region != nil && c.S3Bucket != nil
}

// HasGCSConfig returns true when GCS sync is configured.
func (c *Config) HasGCSConfig() bool {
	return c.GCSKeyFile != "" && c.GCSBucket != ""
}

// HasAzureConfig returns true when Azure Blob sync is configured.
func (c *Config) HasAzureConfig() bool {
	return c.AzureAccountName != "" && c.AzureAccountKey != "" && c.AzureContainer != ""
}

// LoadFromEnv loads configuration from environment variables. Object storage
// variables are optional — the pipeline runs against the local lake without
// them.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		LakeRoot:     os.Getenv("LAKE_ROOT"),
		LandingDir:   os.Getenv("LANDING_DIR"),
		MetaDBPath:   os.Getenv("META_DB_PATH"),
		ScheduleCron: os.Getenv("SCHEDULE_CRON"),
		SchemaFile:   os.Getenv("SCHEMA_FILE"),
		RulesFile:    os.Getenv("RULES_FILE"),
		ListenAddr:   os.Getenv("LISTEN_ADDR"),
		JWTSecret:    os.Getenv("JWT_SECRET"),
		LogLevel:     os.Getenv("LOG_LEVEL"),
		Env:          os.Getenv("ENV"),

		GCSKeyFile: os.Getenv("GCS_KEY_FILE"),
		GCSBucket:  os.Getenv("GCS_BUCKET"),

		AzureAccountName: os.Getenv("AZURE_ACCOUNT_NAME"),
		AzureAccountKey:  os.Getenv("AZURE_ACCOUNT_KEY"),
		AzureContainer:   os.Getenv("AZURE_CONTAINER"),
	}

	if v := os.Getenv("WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Workers = n
		}
	}
	if v := os.Getenv("DIM_DATE_START_YEAR"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DimDateStart = n
		}
	}
	if v := os.Getenv("DIM_DATE_END_YEAR"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DimDateEnd = n
		}
	}
	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RateLimitRPS = f
		}
	}
	if v := os.Getenv("RATE_LIMIT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimitBurst = n
		}
	}

	// S3 fields are optional — only set if present.
	if v := os.Getenv("S3_KEY_ID"); v != "" {
		cfg.S3KeyID = &v
	}
	if v := os.Getenv("S3_SECRET"); v != "" {
		cfg.S3Secret = &v
	}
	if v := os.Getenv("S3_ENDPOINT"); v != "" {
		cfg.S3Endpoint = &v
	}
	if v := os.Getenv("S3_REGION"); v != "" {
		cfg.S3Region = &v
	}
	if v := os.Getenv("S3_BUCKET"); v != "" {
		cfg.S3Bucket = &v
	}

	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		origins := strings.Split(v, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		cfg.CORSAllowedOrigins = origins
	}

	// Defaults.
	if cfg.LakeRoot == "" {
		cfg.LakeRoot = "lake"
	}
	if cfg.LandingDir == "" {
		cfg.LandingDir = "landing"
	}
	if cfg.MetaDBPath == "" {
		cfg.MetaDBPath = "shoplake_meta.sqlite"
	}
	if cfg.Workers == 0 {
		cfg.Workers = 4
	}
	if cfg.DimDateStart == 0 {
		cfg.DimDateStart = 2020
	}
	if cfg.DimDateEnd == 0 {
		cfg.DimDateEnd = 2030
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.RateLimitRPS == 0 {
		cfg.RateLimitRPS = 50
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = 100
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"*"}
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "dev-secret-change-in-production"
		cfg.Warnings = append(cfg.Warnings, "JWT_SECRET not set — using insecure default. Set JWT_SECRET in production!")
	}
	if cfg.DimDateEnd < cfg.DimDateStart {
		return nil, fmt.Errorf("DIM_DATE_END_YEAR (%d) must not precede DIM_DATE_START_YEAR (%d)",
			cfg.DimDateEnd, cfg.DimDateStart)
	}

	// Production mode: insecure defaults are fatal errors.
	if cfg.IsProduction() {
		if cfg.JWTSecret == "dev-secret-change-in-production" {
			return nil, fmt.Errorf("JWT_SECRET must be set in production (ENV=production)")
		}
		if len(cfg.CORSAllowedOrigins) == 1 && cfg.CORSAllowedOrigins[0] == "*" {
			return nil, fmt.Errorf("CORS wildcard (*) is not allowed in production (ENV=production)")
		}
	}

	return cfg, nil
}

// LoadDotEnv reads a .env file and sets any variables not already in the
// environment. Lines must be in KEY=VALUE format. Comments (#) and blank
// lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = stripQuotes(strings.TrimSpace(value))
		// Only set if not already in the environment (env vars take precedence).
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
// Only strips if both the first and last characters are matching quotes.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
