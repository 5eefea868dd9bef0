package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config carries all system-wide settings.
type Config struct {
	Database  *DatabaseConfig  `json:"database"`
	HTTP      *HTTPConfig      `json:"http"`
	WebSocket *WebSocketConfig `json:"websocket"`
	Session   *SessionConfig   `json:"session"`
}

type DatabaseConfig struct {
	Path    string        `json:"path"`
	Timeout time.Duration `json:"timeout"`
}

type HTTPConfig struct {
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	Host         string        `json:"host"`
}

type WebSocketConfig struct {
	PingInterval time.Duration `json:"ping_interval"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	BufferSize   int           `json:"buffer_size"`
}

// SessionConfig controls proctoring session lifetime. TimeoutWindow is the
// idle window added on every inbound message; SweepInterval is how often
// the sweeper scans for expired sessions.
type SessionConfig struct {
	TimeoutWindow time.Duration `json:"timeout_window"`
	SweepInterval time.Duration `json:"sweep_interval"`
	LoginTTL      time.Duration `json:"login_ttl"`
}

// DefaultConfig returns production defaults: a 30-minute idle window with
// a 10-second sweep matches the observed proctoring center behavior.
func DefaultConfig() *Config {
	return &Config{
		Database: &DatabaseConfig{
			Path:    "./proctor.db",
			Timeout: 30 * time.Second,
		},
		HTTP: &HTTPConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			Host:         "0.0.0.0",
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Second,
			BufferSize:   100,
		},
		Session: &SessionConfig{
			TimeoutWindow: 30 * time.Minute,
			SweepInterval: 10 * time.Second,
			LoginTTL:      8 * time.Hour,
		},
	}
}

// Validate rejects configurations that would fail at runtime.
func (c *Config) Validate() error {
	if c.Database == nil {
		return fmt.Errorf("database configuration is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("database timeout must be positive")
	}

	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 {
		return fmt.Errorf("HTTP read timeout must be positive")
	}
	if c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP write timeout must be positive")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}

	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WebSocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= 0 {
		return fmt.Errorf("WebSocket read timeout must be positive")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket write timeout must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}

	if c.Session == nil {
		return fmt.Errorf("session configuration is required")
	}
	if c.Session.TimeoutWindow <= 0 {
		return fmt.Errorf("session timeout window must be positive")
	}
	if c.Session.SweepInterval <= 0 {
		return fmt.Errorf("session sweep interval must be positive")
	}
	if c.Session.SweepInterval >= c.Session.TimeoutWindow {
		return fmt.Errorf("session sweep interval must be shorter than the timeout window")
	}
	if c.Session.LoginTTL <= 0 {
		return fmt.Errorf("login session TTL must be positive")
	}

	return nil
}

// LoadFromEnv returns the defaults overridden by PROCTOR_* environment
// variables. Unparseable values fall back to the default.
func LoadFromEnv() *Config {
	config := DefaultConfig()

	if port := os.Getenv("PROCTOR_HTTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.HTTP.Port = p
		}
	}
	if host := os.Getenv("PROCTOR_HTTP_HOST"); host != "" {
		config.HTTP.Host = host
	}
	if dbPath := os.Getenv("PROCTOR_DATABASE_PATH"); dbPath != "" {
		config.Database.Path = dbPath
	}

	envDuration("PROCTOR_HTTP_READ_TIMEOUT", &config.HTTP.ReadTimeout)
	envDuration("PROCTOR_HTTP_WRITE_TIMEOUT", &config.HTTP.WriteTimeout)
	envDuration("PROCTOR_DATABASE_TIMEOUT", &config.Database.Timeout)
	envDuration("PROCTOR_WEBSOCKET_PING_INTERVAL", &config.WebSocket.PingInterval)
	envDuration("PROCTOR_WEBSOCKET_READ_TIMEOUT", &config.WebSocket.ReadTimeout)
	envDuration("PROCTOR_WEBSOCKET_WRITE_TIMEOUT", &config.WebSocket.WriteTimeout)
	envDuration("PROCTOR_SESSION_TIMEOUT_WINDOW", &config.Session.TimeoutWindow)
	envDuration("PROCTOR_SESSION_SWEEP_INTERVAL", &config.Session.SweepInterval)
	envDuration("PROCTOR_SESSION_LOGIN_TTL", &config.Session.LoginTTL)

	if bufferSize := os.Getenv("PROCTOR_WEBSOCKET_BUFFER_SIZE"); bufferSize != "" {
		if size, err := strconv.Atoi(bufferSize); err == nil {
			config.WebSocket.BufferSize = size
		}
	}

	return config
}

func envDuration(name string, target *time.Duration) {
	if value := os.Getenv(name); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			*target = d
		}
	}
}

// ConfigFile is the JSON file structure; durations are strings so the
// file can say "30m" rather than nanosecond counts.
type ConfigFile struct {
	Database  *DatabaseConfigFile  `json:"database"`
	HTTP      *HTTPConfigFile      `json:"http"`
	WebSocket *WebSocketConfigFile `json:"websocket"`
	Session   *SessionConfigFile   `json:"session"`
}

type DatabaseConfigFile struct {
	Path    string `json:"path"`
	Timeout string `json:"timeout"`
}

type HTTPConfigFile struct {
	Port         int    `json:"port"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
	Host         string `json:"host"`
}

type WebSocketConfigFile struct {
	PingInterval string `json:"ping_interval"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
	BufferSize   int    `json:"buffer_size"`
}

type SessionConfigFile struct {
	TimeoutWindow string `json:"timeout_window"`
	SweepInterval string `json:"sweep_interval"`
	LoginTTL      string `json:"login_ttl"`
}

// LoadFromFile reads and validates a JSON configuration file. Fields the
// file omits keep their defaults.
func LoadFromFile(filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var configFile ConfigFile
	if err := json.Unmarshal(data, &configFile); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filepath, err)
	}

	config := DefaultConfig()

	if configFile.Database != nil {
		if configFile.Database.Path != "" {
			config.Database.Path = configFile.Database.Path
		}
		fileDuration(configFile.Database.Timeout, &config.Database.Timeout)
	}

	if configFile.HTTP != nil {
		if configFile.HTTP.Port > 0 {
			config.HTTP.Port = configFile.HTTP.Port
		}
		if configFile.HTTP.Host != "" {
			config.HTTP.Host = configFile.HTTP.Host
		}
		fileDuration(configFile.HTTP.ReadTimeout, &config.HTTP.ReadTimeout)
		fileDuration(configFile.HTTP.WriteTimeout, &config.HTTP.WriteTimeout)
	}

	if configFile.WebSocket != nil {
		if configFile.WebSocket.BufferSize > 0 {
			config.WebSocket.BufferSize = configFile.WebSocket.BufferSize
		}
		fileDuration(configFile.WebSocket.PingInterval, &config.WebSocket.PingInterval)
		fileDuration(configFile.WebSocket.ReadTimeout, &config.WebSocket.ReadTimeout)
		fileDuration(configFile.WebSocket.WriteTimeout, &config.WebSocket.WriteTimeout)
	}

	if configFile.Session != nil {
		fileDuration(configFile.Session.TimeoutWindow, &config.Session.TimeoutWindow)
		fileDuration(configFile.Session.SweepInterval, &config.Session.SweepInterval)
		fileDuration(configFile.Session.LoginTTL, &config.Session.LoginTTL)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
	}

	return config, nil
}

func fileDuration(value string, target *time.Duration) {
	if value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			*target = d
		}
	}
}

// LoadConfigWithPrecedence resolves configuration as file > environment >
// defaults. A missing or unreadable file is not fatal; environment and
// defaults still apply.
func LoadConfigWithPrecedence(filepath string) *Config {
	config := LoadFromEnv()

	if filepath != "" {
		if fileConfig, err := LoadFromFile(filepath); err == nil {
			config = fileConfig
		}
	}

	return config
}
