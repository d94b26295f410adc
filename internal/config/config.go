package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Uploads      UploadsConfig      `yaml:"uploads"`
	FaceEncoding FaceEncodingConfig `yaml:"face_encoding"`
	Database     DatabaseConfig     `yaml:"database"`
	NATS         NATSConfig         `yaml:"nats"`
	MinIO        MinIOConfig        `yaml:"minio"`
	Logging      LoggingConfig      `yaml:"logging"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

// UploadsConfig bounds the multipart body accepted by POST /v1/api/sessions.
type UploadsConfig struct {
	MaxFiles         int   `yaml:"max_files"`
	MaxFileSizeBytes int64 `yaml:"max_file_size_bytes"`
}

type FaceEncodingConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
	// MaxConcurrency caps in-flight encode calls per upload. Zero means one per file.
	MaxConcurrency int `yaml:"max_concurrency"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"max_conns"`
}

type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

type MinIOConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

var ErrMissingDatabaseURL = errors.New("database.url is required (set FACES_DATABASE_URL)")

// Load reads config from YAML file and applies environment variable overrides.
// A missing file is tolerated so the service can run from environment alone.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config file: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return ErrMissingDatabaseURL
	}
	if c.Uploads.MaxFiles < 1 {
		return fmt.Errorf("uploads.max_files must be positive, got %d", c.Uploads.MaxFiles)
	}
	if c.Uploads.MaxFileSizeBytes < 1 {
		return fmt.Errorf("uploads.max_file_size_bytes must be positive, got %d", c.Uploads.MaxFileSizeBytes)
	}
	if c.FaceEncoding.MaxConcurrency < 0 {
		return fmt.Errorf("face_encoding.max_concurrency must not be negative, got %d", c.FaceEncoding.MaxConcurrency)
	}
	if c.MinIO.Enabled && (c.MinIO.Endpoint == "" || c.MinIO.Bucket == "") {
		return errors.New("minio.endpoint and minio.bucket are required when minio is enabled")
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		return errors.New("nats.url is required when nats is enabled")
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Uploads.MaxFiles == 0 {
		cfg.Uploads.MaxFiles = 10
	}
	if cfg.Uploads.MaxFileSizeBytes == 0 {
		cfg.Uploads.MaxFileSizeBytes = 5 << 20
	}
	if cfg.FaceEncoding.Endpoint == "" {
		cfg.FaceEncoding.Endpoint = "http://localhost:8000/encode"
	}
	if cfg.FaceEncoding.Timeout == 0 {
		cfg.FaceEncoding.Timeout = 30 * time.Second
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FACES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("FACES_MAX_ALLOWED_FILES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Uploads.MaxFiles = n
		}
	}
	if v := os.Getenv("FACES_MAX_ALLOWED_FILE_SIZE_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Uploads.MaxFileSizeBytes = n
		}
	}
	if v := os.Getenv("FACES_FACE_ENCODING_ENDPOINT"); v != "" {
		cfg.FaceEncoding.Endpoint = v
	}
	if v := os.Getenv("FACES_FACE_ENCODING_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.FaceEncoding.Timeout = d
		}
	}
	if v := os.Getenv("FACES_FACE_ENCODING_MAX_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.FaceEncoding.MaxConcurrency = n
		}
	}
	if v := os.Getenv("FACES_DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("FACES_NATS_URL"); v != "" {
		cfg.NATS.URL = v
		cfg.NATS.Enabled = true
	}
	if v := os.Getenv("FACES_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
		cfg.MinIO.Enabled = true
	}
	if v := os.Getenv("FACES_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("FACES_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("FACES_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("FACES_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("FACES_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
