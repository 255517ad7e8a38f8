package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration, shared by the
// HTTP server and the standalone worker binary.
type Config struct {
	Server struct {
		Port int    `yaml:"port"`
		Host string `yaml:"host"`
	} `yaml:"server"`

	Redis struct {
		Addr               string `yaml:"addr"`
		Password           string `yaml:"password"`
		DB                 int    `yaml:"db"`
		Queue              string `yaml:"queue"`
		PollTimeoutSeconds int    `yaml:"poll_timeout_seconds"`
	} `yaml:"redis"`

	FFmpeg struct {
		TimeoutMinutes int `yaml:"timeout_minutes"`
	} `yaml:"ffmpeg"`

	Workers struct {
		FallbackMax int `yaml:"fallback_max"`
	} `yaml:"workers"`

	Storage struct {
		UploadDir string `yaml:"upload_dir"`
		OutputDir string `yaml:"output_dir"`
		Database  string `yaml:"database"`
	} `yaml:"storage"`

	Cleanup struct {
		IntervalMinutes int `yaml:"interval_minutes"`
		MaxAgeHours     int `yaml:"max_age_hours"`
	} `yaml:"cleanup"`

	Telegram struct {
		BotToken string `yaml:"bot_token"`
	} `yaml:"telegram"`

	GoogleDrive struct {
		CredentialsFile string `yaml:"credentials_file"`
		TokenFile       string `yaml:"token_file"`
		FolderName      string `yaml:"folder_name"`
	} `yaml:"google_drive"`

	Limits struct {
		MaxFileSizeMB int `yaml:"max_file_size_mb"`
	} `yaml:"limits"`
}

// Load reads configuration from a YAML file and fills in defaults for
// values the file leaves unset.
func Load(path string) (*Config, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.applyDefaults()
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Redis.Queue == "" {
		c.Redis.Queue = "video:jobs"
	}
	if c.Redis.PollTimeoutSeconds <= 0 {
		c.Redis.PollTimeoutSeconds = 5
	}
	if c.FFmpeg.TimeoutMinutes <= 0 {
		c.FFmpeg.TimeoutMinutes = 60
	}
	if c.Workers.FallbackMax <= 0 {
		c.Workers.FallbackMax = 2
	}
	if c.Storage.UploadDir == "" {
		c.Storage.UploadDir = "uploads"
	}
	if c.Storage.OutputDir == "" {
		c.Storage.OutputDir = "output"
	}
	if c.Storage.Database == "" {
		c.Storage.Database = "segments.db"
	}
	if c.Cleanup.IntervalMinutes <= 0 {
		c.Cleanup.IntervalMinutes = 60
	}
	if c.Cleanup.MaxAgeHours <= 0 {
		c.Cleanup.MaxAgeHours = 24
	}
	if c.Limits.MaxFileSizeMB <= 0 {
		c.Limits.MaxFileSizeMB = 500
	}
}

// FFmpegTimeout returns the configured ffmpeg run timeout.
func (c *Config) FFmpegTimeout() time.Duration {
	return time.Duration(c.FFmpeg.TimeoutMinutes) * time.Minute
}

// PollTimeout returns the blocking dequeue timeout for the worker.
func (c *Config) PollTimeout() time.Duration {
	return time.Duration(c.Redis.PollTimeoutSeconds) * time.Second
}
