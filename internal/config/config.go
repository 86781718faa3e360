package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds the HTTP gateway settings.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// StorageConfig holds the capture upload settings.
type StorageConfig struct {
	UploadDir      string `yaml:"upload_dir"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
}

// ReplayConfig holds the settings for driving the external replay utility.
type ReplayConfig struct {
	TcpreplayPath string `yaml:"tcpreplay_path"`
	// AssumedDurationSec is the wall-clock ceiling used for the heuristic
	// progress estimate while no summary line has arrived yet.
	AssumedDurationSec float64 `yaml:"assumed_duration_sec"`
}

// AnalysisConfig bounds how many packets the analyzer may scan.
type AnalysisConfig struct {
	MaxPackets       int `yaml:"max_packets"`
	PerformanceLimit int `yaml:"performance_limit"`
}

// ClickHouseConfig holds the connection settings for the ClickHouse history store.
type ClickHouseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// HistoryConfig selects and configures the replay history store.
type HistoryConfig struct {
	Type       string           `yaml:"type"` // "file" or "clickhouse"
	Path       string           `yaml:"path"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

// NATSConfig holds the settings for the progress event publisher.
type NATSConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// LogConfig holds the logging settings.
type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Replay   ReplayConfig   `yaml:"replay"`
	Analysis AnalysisConfig `yaml:"analysis"`
	History  HistoryConfig  `yaml:"history"`
	NATS     NATSConfig     `yaml:"nats"`
	Log      LogConfig      `yaml:"log"`
}

// Default returns a Config populated with the built-in defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{ListenAddr: ":8080"},
		Storage: StorageConfig{
			UploadDir:      "/tmp/replaya_uploads",
			MaxUploadBytes: 1 << 30, // 1 GiB
		},
		Replay: ReplayConfig{
			TcpreplayPath:      "tcpreplay",
			AssumedDurationSec: 10,
		},
		Analysis: AnalysisConfig{
			MaxPackets:       1000000,
			PerformanceLimit: 100000,
		},
		History: HistoryConfig{
			Type: "file",
			Path: "replay_history.json",
		},
		NATS: NATSConfig{
			URL:           "nats://127.0.0.1:4222",
			SubjectPrefix: "replaya.replay",
		},
		Log: LogConfig{Level: "info"},
	}
}

// LoadConfig reads the configuration from a YAML file and returns a Config struct.
// Fields absent from the file keep their defaults.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}

	return cfg, nil
}
