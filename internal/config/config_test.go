package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"LAKE_ROOT", "LANDING_DIR", "META_DB_PATH", "WORKERS", "SCHEDULE_CRON",
		"DIM_DATE_START_YEAR", "DIM_DATE_END_YEAR", "SCHEMA_FILE", "RULES_FILE",
		"LISTEN_ADDR", "JWT_SECRET", "LOG_LEVEL", "ENV",
		"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "CORS_ALLOWED_ORIGINS",
		"S3_KEY_ID", "S3_SECRET", "S3_ENDPOINT", "S3_REGION", "S3_BUCKET",
		"GCS_KEY_FILE", "GCS_BUCKET",
		"AZURE_ACCOUNT_NAME", "AZURE_ACCOUNT_KEY", "AZURE_CONTAINER",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "lake", cfg.LakeRoot)
	assert.Equal(t, "landing", cfg.LandingDir)
	assert.Equal(t, "shoplake_meta.sqlite", cfg.MetaDBPath)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 2020, cfg.DimDateStart)
	assert.Equal(t, 2030, cfg.DimDateEnd)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, "dev-secret-change-in-production", cfg.JWTSecret)
	assert.NotEmpty(t, cfg.Warnings, "insecure default secret should warn")
	assert.False(t, cfg.HasS3Config())
	assert.False(t, cfg.HasGCSConfig())
	assert.False(t, cfg.HasAzureConfig())
}

func TestLoadFromEnv_AllVarsSet(t *testing.T) {
	clearEnv(t)
	t.Setenv("LAKE_ROOT", "/data/lake")
	t.Setenv("LANDING_DIR", "/data/landing")
	t.Setenv("META_DB_PATH", "/tmp/test.sqlite")
	t.Setenv("WORKERS", "8")
	t.Setenv("DIM_DATE_START_YEAR", "2022")
	t.Setenv("DIM_DATE_END_YEAR", "2026")
	t.Setenv("JWT_SECRET", "supersecret")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "/data/lake", cfg.LakeRoot)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, 2022, cfg.DimDateStart)
	assert.Equal(t, 2026, cfg.DimDateEnd)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	assert.Empty(t, cfg.Warnings)
}

func TestLoadFromEnv_WithS3(t *testing.T) {
	clearEnv(t)
	t.Setenv("S3_KEY_ID", "testkey")
	t.Setenv("S3_SECRET", "testsecret")
	t.Setenv("S3_REGION", "eu-central-1")
	t.Setenv("S3_BUCKET", "test-bucket")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.True(t, cfg.HasS3Config())
	require.NotNil(t, cfg.S3KeyID)
	assert.Equal(t, "testkey", *cfg.S3KeyID)
}

func TestHasS3Config_PartialConfig(t *testing.T) {
	clearEnv(t)
	t.Setenv("S3_KEY_ID", "testkey")
	t.Setenv("S3_REGION", "eu-central-1")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.False(t, cfg.HasS3Config(), "partial S3 config should return false")
}

func TestLoadFromEnv_BadYearRange(t *testing.T) {
	clearEnv(t)
	t.Setenv("DIM_DATE_START_YEAR", "2025")
	t.Setenv("DIM_DATE_END_YEAR", "2020")

	_, err := LoadFromEnv()
	require.Error(t, err)
}

func TestLoadFromEnv_ProductionRejectsInsecureDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENV", "production")

	_, err := LoadFromEnv()
	require.Error(t, err, "default JWT secret must be fatal in production")

	t.Setenv("JWT_SECRET", "realsecret")
	_, err = LoadFromEnv()
	require.Error(t, err, "CORS wildcard must be fatal in production")

	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example")
	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
}

func TestSlogLevel(t *testing.T) {
	cfg := &Config{LogLevel: "debug"}
	assert.Equal(t, "DEBUG", cfg.SlogLevel().String())
	cfg.LogLevel = "unknown"
	assert.Equal(t, "INFO", cfg.SlogLevel().String())
}

func TestLoadDotEnv_FileNotFound(t *testing.T) {
	require.NoError(t, LoadDotEnv("/nonexistent/.env"))
}

func TestLoadDotEnv_ParsesKeyValue(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	content := "# comment\nSHOPLAKE_TEST_KEY=from_file\nSHOPLAKE_TEST_QUOTED=\"quoted value\"\n"
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0o644))

	t.Setenv("SHOPLAKE_TEST_KEY", "")
	t.Setenv("SHOPLAKE_TEST_QUOTED", "")
	require.NoError(t, LoadDotEnv(envFile))

	assert.Equal(t, "from_file", os.Getenv("SHOPLAKE_TEST_KEY"))
	assert.Equal(t, "quoted value", os.Getenv("SHOPLAKE_TEST_QUOTED"))
}

func TestLoadDotEnv_EnvTakesPrecedence(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("SHOPLAKE_TEST_PRE=from_file\n"), 0o644))

	t.Setenv("SHOPLAKE_TEST_PRE", "from_env")
	require.NoError(t, LoadDotEnv(envFile))
	assert.Equal(t, "from_env", os.Getenv("SHOPLAKE_TEST_PRE"))
}
