package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Batch       BatchConfig       `yaml:"batch"`
	Dataset     DatasetConfig     `yaml:"dataset"`
	Sarvam      SarvamConfig      `yaml:"sarvam"`
	Store       StoreConfig       `yaml:"store"`
	ObjectStore ObjectStoreConfig `yaml:"object_store"`
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
}

type BatchConfig struct {
	MaxChunkSize        int           `yaml:"max_chunk_size" envconfig:"MAX_CHUNK_SIZE" validate:"min=1"`
	PollIntervalSeconds int           `yaml:"poll_interval_seconds" envconfig:"POLL_INTERVAL_SECONDS" validate:"min=1"`
	PollTimeoutSeconds  int           `yaml:"poll_timeout_seconds" envconfig:"POLL_TIMEOUT_SECONDS" validate:"min=0"`
	SubmitPause         time.Duration `yaml:"submit_pause" envconfig:"SUBMIT_PAUSE" validate:"min=0"`
	Model               string        `yaml:"model" envconfig:"SARVAM_MODEL" validate:"required"`
	LanguageCode        string        `yaml:"language_code" envconfig:"SARVAM_LANGUAGE_CODE" validate:"required"`
	Mode                string        `yaml:"mode" envconfig:"SARVAM_MODE" validate:"required"`
	OutputDir           string        `yaml:"output_dir" envconfig:"OUTPUT_DIR" validate:"required"`
	Workers             int           `yaml:"workers" envconfig:"WORKERS" validate:"min=1"`
	PerFileTimeout      time.Duration `yaml:"per_file_timeout" envconfig:"PER_FILE_TIMEOUT" validate:"min=0"`
}

type DatasetConfig struct {
	CatalogPath string `yaml:"catalog_path" envconfig:"DATASET_PATH" validate:"required"`
	ResultPath  string `yaml:"result_path" envconfig:"RESULT_PATH" validate:"required"`
}

type SarvamConfig struct {
	BaseURL      string        `yaml:"base_url" envconfig:"SARVAM_BASE_URL" validate:"required,url"`
	APIKey       string        `yaml:"api_key" envconfig:"SARVAM_API_KEY"`
	HTTPTimeout  time.Duration `yaml:"http_timeout" envconfig:"SARVAM_HTTP_TIMEOUT" validate:"min=0"`
	MaxRetryTime time.Duration `yaml:"max_retry_time" envconfig:"SARVAM_MAX_RETRY_TIME" validate:"min=0"`
}

// StoreConfig points at the sqlite file backing the job registry. An empty
// path disables persistence.
type StoreConfig struct {
	Path string `yaml:"path" envconfig:"STORE_PATH"`
}

// ObjectStoreConfig enables publishing the result dataset to an S3
// compatible bucket when Endpoint is set.
type ObjectStoreConfig struct {
	Endpoint  string `yaml:"endpoint" envconfig:"OBJECT_STORE_ENDPOINT"`
	Bucket    string `yaml:"bucket" envconfig:"OBJECT_STORE_BUCKET" validate:"required_with=Endpoint"`
	AccessKey string `yaml:"access_key" envconfig:"OBJECT_STORE_ACCESS_KEY"`
	SecretKey string `yaml:"secret_key" envconfig:"OBJECT_STORE_SECRET_KEY"`
	UseSSL    bool   `yaml:"use_ssl" envconfig:"OBJECT_STORE_USE_SSL"`
}

type ServerConfig struct {
	Port string `yaml:"port" envconfig:"PORT" validate:"required"`
}

type LogConfig struct {
	Level string `yaml:"level" envconfig:"LOG_LEVEL" validate:"omitempty,oneof=debug info warn error"`
}

// PollInterval returns the sweep interval as a duration.
func (b BatchConfig) PollInterval() time.Duration {
	return time.Duration(b.PollIntervalSeconds) * time.Second
}

// PollTimeout returns zero when polling is unbounded.
func (b BatchConfig) PollTimeout() time.Duration {
	return time.Duration(b.PollTimeoutSeconds) * time.Second
}

func NewDefault() *Config {
	return &Config{
		Batch: BatchConfig{
			MaxChunkSize:        20,
			PollIntervalSeconds: 10,
			SubmitPause:         time.Second,
			Model:               "saaras:v3",
			LanguageCode:        "te-IN",
			Mode:                "transcribe",
			OutputDir:           "sarvam_outputs_chunked",
			Workers:             5,
			PerFileTimeout:      2 * time.Minute,
		},
		Dataset: DatasetConfig{
			CatalogPath: "downloaded_metadata.csv",
			ResultPath:  "transcribed_metadata_sarvam.csv",
		},
		Sarvam: SarvamConfig{
			BaseURL:      "https://api.sarvam.ai",
			HTTPTimeout:  60 * time.Second,
			MaxRetryTime: 30 * time.Second,
		},
		Store:  StoreConfig{Path: "transcribe.db"},
		Server: ServerConfig{Port: "8080"},
		Log:    LogConfig{Level: "info"},
	}
}

// Load layers defaults, the optional YAML file at path and the environment,
// then validates the result. Environment values win over the file.
func Load(path string) (*Config, error) {
	cfg := NewDefault()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("env config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
