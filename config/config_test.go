package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("does-not-exist.env")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, ":8080", cfg.Server.Addr())
	assert.Equal(t, "local", cfg.Storage.Backend)
	assert.Equal(t, "uploads", cfg.Storage.UploadDir)
	assert.Equal(t, 100, cfg.Movie.TitleMaxLength)
	assert.Equal(t, 255, cfg.Movie.TitleColumnWidth)
	assert.Equal(t, int64(10*1024*1024), cfg.Movie.MaxUploadSize)
	assert.True(t, cfg.Security.CSRFEnabled)
	assert.True(t, cfg.UsesDevSecret())
	assert.Equal(t, []string{"*"}, cfg.Security.CORSAllowedOrigins)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("TITLE_MAX_LENGTH", "150")
	t.Setenv("POSTER_STORE", "S3")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.test, http://b.test")

	cfg, err := Load("does-not-exist.env")
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 150, cfg.Movie.TitleMaxLength)
	assert.Equal(t, "s3", cfg.Storage.Backend)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Security.CORSAllowedOrigins)
}

func TestLoadRejectsTitleWiderThanColumn(t *testing.T) {
	t.Setenv("TITLE_MAX_LENGTH", "300")

	_, err := Load("does-not-exist.env")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TITLE_COLUMN_WIDTH")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database: DatabaseConfig{URL: "sqlite://x.db"},
			Storage:  StorageConfig{Backend: "local", UploadDir: "uploads"},
			Movie:    MovieConfig{TitleMaxLength: 100, TitleColumnWidth: 255, MaxUploadSize: 1},
			Security: SecurityConfig{SecretKey: DevSecretKey, CSRFEnabled: true},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"valid", func(*Config) {}, ""},
		{"empty dsn", func(c *Config) { c.Database.URL = "" }, "DATABASE_URL"},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "ftp" }, "POSTER_STORE"},
		{"short secret", func(c *Config) { c.Security.SecretKey = "short" }, "SECRET_KEY"},
		{"short secret without csrf", func(c *Config) {
			c.Security.SecretKey = "short"
			c.Security.CSRFEnabled = false
		}, ""},
		{"zero upload size", func(c *Config) { c.Movie.MaxUploadSize = 0 }, "MAX_UPLOAD_SIZE"},
		{"bad rate limit", func(c *Config) {
			c.Security.RateLimitEnabled = true
			c.Security.RateLimitRPS = 0
		}, "RATE_LIMIT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
