package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DevSecretKey is used when SECRET_KEY is unset. Never deploy with it.
const DevSecretKey = "dev-secret-key-change-me-32bytes"

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Storage  StorageConfig
	S3       S3Config
	Movie    MovieConfig
	Security SecurityConfig
	Log      LogConfig
}

type ServerConfig struct {
	Host string
	Port string
}

func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

type DatabaseConfig struct {
	URL      string
	LogLevel string
}

type StorageConfig struct {
	// Backend is "local" or "s3".
	Backend   string
	UploadDir string
}

type S3Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
}

// MovieConfig holds the submission limits. TitleMaxLength is what
// validation enforces, TitleColumnWidth is the width of the title column.
type MovieConfig struct {
	TitleMaxLength   int
	TitleColumnWidth int
	MaxUploadSize    int64
}

type SecurityConfig struct {
	SecretKey          string
	CSRFEnabled        bool
	CSRFSecureCookie   bool
	RateLimitEnabled   bool
	RateLimitRPS       float64
	RateLimitBurst     int
	CORSAllowedOrigins []string
}

type LogConfig struct {
	Level string
}

// Load reads an optional .env file, then environment variables on top of
// the defaults below.
func Load(envFiles ...string) (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load(envFiles...)

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	cfg := &Config{
		Server: ServerConfig{
			Host: v.GetString("SERVER_HOST"),
			Port: v.GetString("SERVER_PORT"),
		},
		Database: DatabaseConfig{
			URL:      v.GetString("DATABASE_URL"),
			LogLevel: v.GetString("DB_LOG_LEVEL"),
		},
		Storage: StorageConfig{
			Backend:   strings.ToLower(v.GetString("POSTER_STORE")),
			UploadDir: v.GetString("UPLOAD_FOLDER"),
		},
		S3: S3Config{
			Endpoint:        v.GetString("S3_ENDPOINT"),
			Region:          v.GetString("S3_REGION"),
			Bucket:          v.GetString("S3_BUCKET"),
			AccessKeyID:     v.GetString("S3_ACCESS_KEY_ID"),
			SecretAccessKey: v.GetString("S3_SECRET_ACCESS_KEY"),
		},
		Movie: MovieConfig{
			TitleMaxLength:   v.GetInt("TITLE_MAX_LENGTH"),
			TitleColumnWidth: v.GetInt("TITLE_COLUMN_WIDTH"),
			MaxUploadSize:    v.GetInt64("MAX_UPLOAD_SIZE"),
		},
		Security: SecurityConfig{
			SecretKey:          v.GetString("SECRET_KEY"),
			CSRFEnabled:        v.GetBool("CSRF_ENABLED"),
			CSRFSecureCookie:   v.GetBool("CSRF_SECURE_COOKIE"),
			RateLimitEnabled:   v.GetBool("RATE_LIMIT_ENABLED"),
			RateLimitRPS:       v.GetFloat64("RATE_LIMIT_RPS"),
			RateLimitBurst:     v.GetInt("RATE_LIMIT_BURST"),
			CORSAllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		},
		Log: LogConfig{
			Level: v.GetString("LOG_LEVEL"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_HOST", "")
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("DATABASE_URL", "sqlite://data/movies.db")
	v.SetDefault("DB_LOG_LEVEL", "warn")
	v.SetDefault("POSTER_STORE", "local")
	v.SetDefault("UPLOAD_FOLDER", "uploads")
	v.SetDefault("S3_ENDPOINT", "http://localhost:9000")
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("S3_BUCKET", "posters")
	v.SetDefault("S3_ACCESS_KEY_ID", "minioadmin")
	v.SetDefault("S3_SECRET_ACCESS_KEY", "minioadmin")
	v.SetDefault("TITLE_MAX_LENGTH", 100)
	v.SetDefault("TITLE_COLUMN_WIDTH", 255)
	v.SetDefault("MAX_UPLOAD_SIZE", 10*1024*1024) // 10MB
	v.SetDefault("SECRET_KEY", DevSecretKey)
	v.SetDefault("CSRF_ENABLED", true)
	v.SetDefault("CSRF_SECURE_COOKIE", false)
	v.SetDefault("RATE_LIMIT_ENABLED", true)
	v.SetDefault("RATE_LIMIT_RPS", 2)
	v.SetDefault("RATE_LIMIT_BURST", 4)
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("LOG_LEVEL", "info")
}

// Validate checks the values that cannot be fixed up silently.
func (c *Config) Validate() error {
	var errs []error

	if c.Database.URL == "" {
		errs = append(errs, errors.New("DATABASE_URL must not be empty"))
	}
	switch c.Storage.Backend {
	case "local":
		if c.Storage.UploadDir == "" {
			errs = append(errs, errors.New("UPLOAD_FOLDER must not be empty"))
		}
	case "s3":
		if c.S3.Bucket == "" {
			errs = append(errs, errors.New("S3_BUCKET must not be empty"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown POSTER_STORE %q", c.Storage.Backend))
	}
	if c.Movie.TitleMaxLength < 2 {
		errs = append(errs, fmt.Errorf("TITLE_MAX_LENGTH must be at least 2, got %d", c.Movie.TitleMaxLength))
	}
	if c.Movie.TitleMaxLength > c.Movie.TitleColumnWidth {
		errs = append(errs, fmt.Errorf("TITLE_MAX_LENGTH (%d) exceeds TITLE_COLUMN_WIDTH (%d)",
			c.Movie.TitleMaxLength, c.Movie.TitleColumnWidth))
	}
	if c.Movie.MaxUploadSize <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_SIZE must be positive"))
	}
	if c.Security.CSRFEnabled && len(c.Security.SecretKey) < 32 {
		errs = append(errs, errors.New("SECRET_KEY must be at least 32 bytes when CSRF is enabled"))
	}
	if c.Security.RateLimitEnabled && (c.Security.RateLimitRPS <= 0 || c.Security.RateLimitBurst <= 0) {
		errs = append(errs, errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive"))
	}

	return errors.Join(errs...)
}

// UsesDevSecret reports whether the built-in development key is in use.
func (c *Config) UsesDevSecret() bool {
	return c.Security.SecretKey == DevSecretKey
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
