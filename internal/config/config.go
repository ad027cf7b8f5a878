package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config defines server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Transport TransportConfig `yaml:"transport"`
	DB        DBConfig        `yaml:"db"`
	Storage   StorageConfig   `yaml:"storage"`
	Sync      SyncConfig      `yaml:"sync"`
	Edit      EditConfig      `yaml:"edit"`
	Admin     AdminConfig     `yaml:"admin"`
	Insight   InsightConfig   `yaml:"insight"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// TransportConfig selects how the MCP surface is served: "http" or "stdio".
type TransportConfig struct {
	Mode string `yaml:"mode"`
}

type DBConfig struct {
	Path string `yaml:"path"`
}

// StorageConfig selects the durable slot backend.
type StorageConfig struct {
	Driver string `yaml:"driver"`
	Key    string `yaml:"key"`
	// Dir holds one JSON file per key for the file driver.
	Dir         string `yaml:"dir"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

type SyncConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	Channel      string        `yaml:"channel"`
	// UpstreamURL points at another server's /ws endpoint to join its channel.
	UpstreamURL string `yaml:"upstream_url"`
	SeedToken   string `yaml:"seed_token"`
}

type EditConfig struct {
	TotalPolicy  string        `yaml:"total_policy"`
	PublishedAck time.Duration `yaml:"published_ack"`
}

type AdminConfig struct {
	// Secret, when set, must be passed as key=<secret> on admin routes.
	Secret        string `yaml:"secret"`
	PublicBaseURL string `yaml:"public_base_url"`
}

type InsightConfig struct {
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Transport: TransportConfig{
			Mode: "http",
		},
		DB: DBConfig{
			Path: "rollcall.db",
		},
		Storage: StorageConfig{
			Driver: "sqlite",
			Key:    "school_stats_v3",
			Dir:    "data",
		},
		Sync: SyncConfig{
			PollInterval: 3 * time.Second,
			Channel:      "school_stats_channel",
		},
		Edit: EditConfig{
			TotalPolicy:  "clamp",
			PublishedAck: 2500 * time.Millisecond,
		},
		Insight: InsightConfig{
			Timeout: 15 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from an optional YAML file and environment variables.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv("ROLLCALL_CONFIG_PATH"); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Server.Host, "ROLLCALL_SERVER_HOST")
	if err := setInt(&cfg.Server.Port, "ROLLCALL_SERVER_PORT"); err != nil {
		return err
	}
	setString(&cfg.Transport.Mode, "ROLLCALL_TRANSPORT_MODE")
	setString(&cfg.DB.Path, "ROLLCALL_DB_PATH")
	setString(&cfg.Storage.Driver, "ROLLCALL_STORAGE_DRIVER")
	setString(&cfg.Storage.Key, "ROLLCALL_STORAGE_KEY")
	setString(&cfg.Storage.Dir, "ROLLCALL_STORAGE_DIR")
	setString(&cfg.Storage.PostgresDSN, "ROLLCALL_POSTGRES_DSN")
	if err := setDuration(&cfg.Sync.PollInterval, "ROLLCALL_SYNC_POLL_INTERVAL"); err != nil {
		return err
	}
	setString(&cfg.Sync.Channel, "ROLLCALL_SYNC_CHANNEL")
	setString(&cfg.Sync.UpstreamURL, "ROLLCALL_SYNC_UPSTREAM_URL")
	setString(&cfg.Sync.SeedToken, "ROLLCALL_SYNC_SEED_TOKEN")
	setString(&cfg.Edit.TotalPolicy, "ROLLCALL_EDIT_TOTAL_POLICY")
	if err := setDuration(&cfg.Edit.PublishedAck, "ROLLCALL_EDIT_PUBLISHED_ACK"); err != nil {
		return err
	}
	setString(&cfg.Admin.Secret, "ROLLCALL_ADMIN_SECRET")
	setString(&cfg.Admin.PublicBaseURL, "ROLLCALL_PUBLIC_BASE_URL")
	setString(&cfg.Insight.APIKey, "ROLLCALL_INSIGHT_API_KEY")
	setString(&cfg.Insight.Model, "ROLLCALL_INSIGHT_MODEL")
	if err := setDuration(&cfg.Insight.Timeout, "ROLLCALL_INSIGHT_TIMEOUT"); err != nil {
		return err
	}
	setString(&cfg.Log.Level, "ROLLCALL_LOG_LEVEL")
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}
