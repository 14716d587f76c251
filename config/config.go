// Package config loads service configuration from the environment, an
// optional .env file and an optional config.yaml.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Fixed subdirectories of the upload root
const (
	GLBDir = "glb"
	STLDir = "stl"
	PNGDir = "png"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Worker   WorkerConfig
	Log      LogConfig
	Redis    RedisConfig
	Minio    MinioConfig
}

type ServerConfig struct {
	Port           string `validate:"required,numeric"`
	UploadDir      string `validate:"required"`
	MaxUploadBytes int64  `validate:"gt=0"`
}

type DatabaseConfig struct {
	Driver     string `validate:"oneof=postgres sqlite"`
	URL        string
	Host       string
	Port       int
	User       string
	Password   string
	Name       string
	SQLitePath string `validate:"required_if=Driver sqlite"`
}

type WorkerConfig struct {
	PollInterval    time.Duration `validate:"gt=0"`
	ConversionDelay time.Duration `validate:"gte=0"`
	PreviewDelay    time.Duration `validate:"gte=0"`
}

type LogConfig struct {
	Level  string `validate:"oneof=debug info warn error"`
	Format string `validate:"oneof=json text"`
}

// RedisConfig enables model-update notifications when Addr is set
type RedisConfig struct {
	Addr     string
	Password string
	DB       int `validate:"gte=0"`
	Channel  string
}

// MinioConfig enables mirroring of derived files when Endpoint is set
type MinioConfig struct {
	Endpoint  string
	AccessKey string `validate:"required_with=Endpoint"`
	SecretKey string `validate:"required_with=Endpoint"`
	Bucket    string `validate:"required_with=Endpoint"`
	UseSSL    bool
}

// readSecret reads a secret from the file named by envKey_FILE when envKey
// itself is unset.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	filePath := os.Getenv(envKey + "_FILE")
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	os.Setenv(envKey, strings.TrimSpace(string(data)))
}

// Load reads configuration. A missing .env or config.yaml is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	readSecret("DB_PASSWORD")
	readSecret("REDIS_PASSWORD")
	readSecret("MINIO_SECRET_KEY")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	bindings := map[string]string{
		"server.port":             "PORT",
		"server.upload_dir":       "UPLOAD_DIR",
		"server.max_upload_bytes": "MAX_UPLOAD_BYTES",
		"database.driver":         "DB_DRIVER",
		"database.url":            "DATABASE_URL",
		"database.host":           "DB_HOST",
		"database.port":           "DB_PORT",
		"database.user":           "DB_USER",
		"database.password":       "DB_PASSWORD",
		"database.name":           "DB_NAME",
		"database.sqlite_path":    "SQLITE_PATH",
		"worker.poll_interval":    "POLL_INTERVAL",
		"worker.conversion_delay": "CONVERSION_DELAY",
		"worker.preview_delay":    "PREVIEW_DELAY",
		"log.level":               "LOG_LEVEL",
		"log.format":              "LOG_FORMAT",
		"redis.addr":              "REDIS_ADDR",
		"redis.password":          "REDIS_PASSWORD",
		"redis.db":                "REDIS_DB",
		"redis.channel":           "REDIS_CHANNEL",
		"minio.endpoint":          "MINIO_ENDPOINT",
		"minio.access_key":        "MINIO_ACCESS_KEY",
		"minio.secret_key":        "MINIO_SECRET_KEY",
		"minio.bucket":            "MINIO_BUCKET",
		"minio.use_ssl":           "MINIO_USE_SSL",
	}
	for key, env := range bindings {
		_ = v.BindEnv(key, env)
	}

	v.SetDefault("server.port", "3000")
	v.SetDefault("server.upload_dir", "./uploads")
	v.SetDefault("server.max_upload_bytes", 100<<20)
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "model_processor")
	v.SetDefault("database.sqlite_path", "./data/model-processor.db")
	v.SetDefault("worker.poll_interval", "5s")
	v.SetDefault("worker.conversion_delay", "2s")
	v.SetDefault("worker.preview_delay", "1500ms")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "models:updates")
	v.SetDefault("minio.use_ssl", false)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:           v.GetString("server.port"),
			UploadDir:      v.GetString("server.upload_dir"),
			MaxUploadBytes: v.GetInt64("server.max_upload_bytes"),
		},
		Database: DatabaseConfig{
			Driver:     strings.ToLower(v.GetString("database.driver")),
			URL:        v.GetString("database.url"),
			Host:       v.GetString("database.host"),
			Port:       v.GetInt("database.port"),
			User:       v.GetString("database.user"),
			Password:   v.GetString("database.password"),
			Name:       v.GetString("database.name"),
			SQLitePath: v.GetString("database.sqlite_path"),
		},
		Worker: WorkerConfig{
			PollInterval:    v.GetDuration("worker.poll_interval"),
			ConversionDelay: v.GetDuration("worker.conversion_delay"),
			PreviewDelay:    v.GetDuration("worker.preview_delay"),
		},
		Log: LogConfig{
			Level:  strings.ToLower(v.GetString("log.level")),
			Format: strings.ToLower(v.GetString("log.format")),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			Channel:  v.GetString("redis.channel"),
		},
		Minio: MinioConfig{
			Endpoint:  v.GetString("minio.endpoint"),
			AccessKey: v.GetString("minio.access_key"),
			SecretKey: v.GetString("minio.secret_key"),
			Bucket:    v.GetString("minio.bucket"),
			UseSSL:    v.GetBool("minio.use_ssl"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// DatabaseDSN returns the connection string for the configured driver
func (c *Config) DatabaseDSN() string {
	if c.Database.Driver == "sqlite" {
		return c.Database.SQLitePath
	}
	if c.Database.URL != "" {
		return c.Database.URL
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", c.Database.Host, c.Database.Port),
		Path:   "/" + c.Database.Name,
	}
	if c.Database.Password != "" {
		u.User = url.UserPassword(c.Database.User, c.Database.Password)
	} else if c.Database.User != "" {
		u.User = url.User(c.Database.User)
	}
	return u.String()
}

func (c *Config) GLBPath() string { return filepath.Join(c.Server.UploadDir, GLBDir) }
func (c *Config) STLPath() string { return filepath.Join(c.Server.UploadDir, STLDir) }
func (c *Config) PNGPath() string { return filepath.Join(c.Server.UploadDir, PNGDir) }
