package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Mapping  MappingConfig  `yaml:"mapping"`
	Ingest   IngestConfig   `yaml:"ingest"`
	S3       S3Config       `yaml:"s3"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// DatabaseConfig holds Postgres settings
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// MappingConfig holds column-mapping thresholds and the optional
// dictionary override file.
type MappingConfig struct {
	ConfirmThreshold float64 `yaml:"confirm_threshold"`
	SuggestThreshold float64 `yaml:"suggest_threshold"`
	FuzzyFloor       float64 `yaml:"fuzzy_floor"`
	DictionaryPath   string  `yaml:"dictionary_path"`
}

// IngestConfig holds chunking and upload settings
type IngestConfig struct {
	ChunkSize   int    `yaml:"chunk_size"`
	UploadDir   string `yaml:"upload_dir"`
	MaxUploadMB int64  `yaml:"max_upload_mb"`
}

// S3Config holds settings for ingesting files directly from S3
type S3Config struct {
	Enabled bool   `yaml:"enabled"`
	Bucket  string `yaml:"bucket"`
	Region  string `yaml:"region"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Mapping.ConfirmThreshold == 0 {
		cfg.Mapping.ConfirmThreshold = 0.80
	}
	if cfg.Mapping.SuggestThreshold == 0 {
		cfg.Mapping.SuggestThreshold = 0.50
	}
	if cfg.Mapping.FuzzyFloor == 0 {
		cfg.Mapping.FuzzyFloor = 0.30
	}
	if cfg.Ingest.ChunkSize == 0 {
		cfg.Ingest.ChunkSize = 1000
	}
	if cfg.Ingest.UploadDir == "" {
		cfg.Ingest.UploadDir = "/tmp/leadstream-uploads"
	}
	if cfg.Ingest.MaxUploadMB == 0 {
		cfg.Ingest.MaxUploadMB = 512
	}
	if cfg.S3.Region == "" {
		cfg.S3.Region = "us-east-1"
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars in deployment.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("LEADSTREAM_DICTIONARY"); v != "" {
		cfg.Mapping.DictionaryPath = v
	}
	if v := os.Getenv("LEADSTREAM_UPLOAD_DIR"); v != "" {
		cfg.Ingest.UploadDir = v
	}
	if v := os.Getenv("S3_BUCKET"); v != "" {
		cfg.S3.Bucket = v
		cfg.S3.Enabled = true
	}
	if v := os.Getenv("AWS_REGION"); v != "" {
		cfg.S3.Region = v
	}

	return cfg, nil
}
