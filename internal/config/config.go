package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	API       APIConfig
	Server    ServerConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Storage   StorageConfig
}

// APIConfig points the client at the inference server.
type APIConfig struct {
	BaseURL        string        `validate:"required,url"`
	ModelName      string        `validate:"required"`
	PollInterval   time.Duration `validate:"gt=0"`
	RequestTimeout time.Duration `validate:"gte=0"` // 0 disables the per-request timeout
	// ModelArchive is a zip registered under ModelName by console batch runs
	// when the server has no such model. Empty disables registration.
	ModelArchive string
}

type ServerConfig struct {
	Port     string `validate:"required,numeric"`
	Env      string
	LogLevel string `validate:"oneof=debug info warn error"`
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RateLimitConfig struct {
	UploadPerHour int `validate:"gt=0"`
	RunPerHour    int `validate:"gt=0"`
}

// StorageConfig configures the optional S3-compatible store that file
// selections of the form s3://bucket/key are read from.
type StorageConfig struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// IsConfigured reports whether object store selections can be served.
func (s StorageConfig) IsConfigured() bool {
	return s.AccessKeyID != "" && s.SecretAccessKey != ""
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("STORAGE_ACCESS_KEY_ID")
	readSecret("STORAGE_SECRET_ACCESS_KEY")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variables
	v.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = v.BindEnv("api.base_url", "API_BASE_URL")
	_ = v.BindEnv("api.model_name", "MODEL_NAME")
	_ = v.BindEnv("api.poll_interval", "POLL_INTERVAL")
	_ = v.BindEnv("api.request_timeout", "REQUEST_TIMEOUT")
	_ = v.BindEnv("api.model_archive", "MODEL_ARCHIVE")
	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("server.env", "SERVER_ENV")
	_ = v.BindEnv("server.log_level", "LOG_LEVEL")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("redis.db", "REDIS_DB")
	_ = v.BindEnv("ratelimit.upload_per_hour", "RATELIMIT_UPLOAD_PER_HOUR")
	_ = v.BindEnv("ratelimit.run_per_hour", "RATELIMIT_RUN_PER_HOUR")
	_ = v.BindEnv("storage.endpoint", "STORAGE_ENDPOINT")
	_ = v.BindEnv("storage.region", "STORAGE_REGION")
	_ = v.BindEnv("storage.access_key_id", "STORAGE_ACCESS_KEY_ID")
	_ = v.BindEnv("storage.secret_access_key", "STORAGE_SECRET_ACCESS_KEY")
	_ = v.BindEnv("storage.use_path_style", "STORAGE_USE_PATH_STYLE")

	// Defaults
	v.SetDefault("api.base_url", "http://localhost:8000/")
	v.SetDefault("api.model_name", "mnist")
	v.SetDefault("api.poll_interval", "1s")
	v.SetDefault("api.request_timeout", "0s")
	v.SetDefault("server.port", "3000")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("ratelimit.upload_per_hour", 50)
	v.SetDefault("ratelimit.run_per_hour", 30)

	// Object store defaults match a local MinIO
	v.SetDefault("storage.endpoint", "http://localhost:9000")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.use_path_style", true)

	// Try to read config file (optional)
	_ = v.ReadInConfig()

	cfg := &Config{
		API: APIConfig{
			BaseURL:        v.GetString("api.base_url"),
			ModelName:      v.GetString("api.model_name"),
			PollInterval:   v.GetDuration("api.poll_interval"),
			RequestTimeout: v.GetDuration("api.request_timeout"),
			ModelArchive:   v.GetString("api.model_archive"),
		},
		Server: ServerConfig{
			Port:     v.GetString("server.port"),
			Env:      v.GetString("server.env"),
			LogLevel: strings.ToLower(v.GetString("server.log_level")),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		RateLimit: RateLimitConfig{
			UploadPerHour: v.GetInt("ratelimit.upload_per_hour"),
			RunPerHour:    v.GetInt("ratelimit.run_per_hour"),
		},
		Storage: StorageConfig{
			Endpoint:        v.GetString("storage.endpoint"),
			Region:          v.GetString("storage.region"),
			AccessKeyID:     v.GetString("storage.access_key_id"),
			SecretAccessKey: v.GetString("storage.secret_access_key"),
			UsePathStyle:    v.GetBool("storage.use_path_style"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the loaded values against the struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
