// Package config loads the relay configuration from an optional YAML file,
// the process environment and built-in defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type (
	Config struct {
		Listen    string `yaml:"listen"`
		LogLevel  string `yaml:"log_level"`
		LogFormat string `yaml:"log_format"`

		Socket  SocketConfig  `yaml:"socket"`
		Relay   RelayConfig   `yaml:"relay"`
		Storage StorageConfig `yaml:"storage"`
	}

	SocketConfig struct {
		Path              string   `yaml:"path"`
		MaxHTTPBufferSize int64    `yaml:"max_http_buffer_size"`
		AllowEIO3         bool     `yaml:"allow_eio3"`
		AllowedOrigins    []string `yaml:"allowed_origins"`
	}

	RelayConfig struct {
		SendQueueSize  int `yaml:"send_queue_size"`
		MaxRoomMembers int `yaml:"max_room_members"`
		MaxNameLength  int `yaml:"max_name_length"`
	}

	StorageConfig struct {
		Type           string `yaml:"type"`
		DataSourceName string `yaml:"data_source_name"`
	}
)

const (
	DefaultListen            = ":9000"
	DefaultSocketPath        = "/socket.io"
	DefaultMaxHTTPBufferSize = 5000000
	DefaultSendQueueSize     = 256
	DefaultMaxNameLength     = 128
)

// Default returns a configuration with every field set to its default.
func Default() *Config {
	cfg := &Config{}
	cfg.Socket.AllowEIO3 = true
	cfg.applyDefaults()
	return cfg
}

// Load reads path (if non-empty), expands ${VAR} references, applies
// environment overrides and defaults, and validates the result.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	cfg.Socket.AllowEIO3 = true

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config yaml: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"listen":  cfg.Listen,
		"storage": cfg.Storage.Type,
		"path":    cfg.Socket.Path,
	}).Debug("Configuration loaded")
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) error {
		v := os.Getenv(key)
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %s: %w", key, err)
		}
		*dst = n
		return nil
	}

	setString("LISTEN_ADDR", &c.Listen)
	setString("LOG_LEVEL", &c.LogLevel)
	setString("LOG_FORMAT", &c.LogFormat)
	setString("STORAGE_TYPE", &c.Storage.Type)
	setString("DATA_SOURCE_NAME", &c.Storage.DataSourceName)
	if err := setInt("SEND_QUEUE_SIZE", &c.Relay.SendQueueSize); err != nil {
		return err
	}
	if err := setInt("MAX_ROOM_MEMBERS", &c.Relay.MaxRoomMembers); err != nil {
		return err
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		c.Socket.AllowedOrigins = splitCSV(v)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
	if c.Socket.Path == "" {
		c.Socket.Path = DefaultSocketPath
	}
	if c.Socket.MaxHTTPBufferSize == 0 {
		c.Socket.MaxHTTPBufferSize = DefaultMaxHTTPBufferSize
	}
	if c.Relay.SendQueueSize == 0 {
		c.Relay.SendQueueSize = DefaultSendQueueSize
	}
	if c.Relay.MaxNameLength == 0 {
		c.Relay.MaxNameLength = DefaultMaxNameLength
	}
	if c.Storage.Type == "" {
		c.Storage.Type = "memory"
	}
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log_format must be text or json, got %q", c.LogFormat)
	}
	if !strings.HasPrefix(c.Socket.Path, "/") {
		return fmt.Errorf("socket.path must start with '/', got %q", c.Socket.Path)
	}
	if c.Socket.MaxHTTPBufferSize < 0 {
		return fmt.Errorf("socket.max_http_buffer_size must not be negative")
	}
	if c.Relay.SendQueueSize < 1 {
		return fmt.Errorf("relay.send_queue_size must be at least 1, got %d", c.Relay.SendQueueSize)
	}
	if c.Relay.MaxRoomMembers < 0 {
		return fmt.Errorf("relay.max_room_members must not be negative, got %d", c.Relay.MaxRoomMembers)
	}
	if c.Relay.MaxNameLength < 1 {
		return fmt.Errorf("relay.max_name_length must be at least 1, got %d", c.Relay.MaxNameLength)
	}
	switch c.Storage.Type {
	case "memory":
	case "sqlite":
		if c.Storage.DataSourceName == "" {
			return fmt.Errorf("storage.data_source_name is required for sqlite")
		}
	default:
		return fmt.Errorf("unknown storage.type %q", c.Storage.Type)
	}
	return nil
}

// ConfigureLogging applies the level and format to the global logrus logger.
func (c *Config) ConfigureLogging() error {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	if c.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}

func splitCSV(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
