package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Server holds all configuration for the gemfield server.
type Server struct {
	LogLevel string `yaml:"log_level"`

	// Scheduler frame length (wall clock)
	TickInterval time.Duration `yaml:"tick_interval"`

	// Level surfaces: YAML file, or database when LevelSource is "database"
	LevelSource string `yaml:"level_source"`
	LevelsFile  string `yaml:"levels_file"`

	// Event feed (websocket + JSON state)
	Feed FeedConfig `yaml:"feed"`

	// Database (level storage and gem event log)
	Database DatabaseConfig `yaml:"database"`

	// Gem event recorder
	RecordEvents      bool `yaml:"record_events"`
	RecorderQueueSize int  `yaml:"recorder_queue_size"`

	Spawner  Spawner  `yaml:"spawner"`
	Progress Progress `yaml:"progress"`
}

// FeedConfig holds HTTP/websocket feed parameters.
type FeedConfig struct {
	Enabled     bool          `yaml:"enabled"`
	BindAddress string        `yaml:"bind_address"`
	Port        int           `yaml:"port"`
	WriteWait   time.Duration `yaml:"write_wait"`
}

// Addr returns host:port the feed listens on.
func (f FeedConfig) Addr() string {
	return fmt.Sprintf("%s:%d", f.BindAddress, f.Port)
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// UsesDatabase reports whether any component needs a database connection.
func (s Server) UsesDatabase() bool {
	return s.LevelSource == LevelSourceDatabase || s.RecordEvents
}

const (
	LevelSourceFile     = "file"
	LevelSourceDatabase = "database"
)

// DefaultServer returns Server config with sensible defaults.
func DefaultServer() Server {
	return Server{
		LogLevel:     "info",
		TickInterval: 50 * time.Millisecond,
		LevelSource:  LevelSourceFile,
		LevelsFile:   "config/levels.yaml",
		Feed: FeedConfig{
			Enabled:     true,
			BindAddress: "127.0.0.1",
			Port:        8080,
			WriteWait:   5 * time.Second,
		},
		Database: DatabaseConfig{
			Host:     "127.0.0.1",
			Port:     5432,
			User:     "gemfield",
			Password: "gemfield",
			DBName:   "gemfield",
			SSLMode:  "disable",
		},
		RecordEvents:      false,
		RecorderQueueSize: 1024,
		Spawner:           DefaultSpawner(),
		Progress:          DefaultProgress(),
	}
}

// Validate checks values that would leave the server in a broken state.
func (s Server) Validate() error {
	switch s.LevelSource {
	case LevelSourceFile, LevelSourceDatabase:
	default:
		return fmt.Errorf("unknown level_source %q", s.LevelSource)
	}
	if s.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be positive, got %s", s.TickInterval)
	}
	if s.RecorderQueueSize < 0 {
		return fmt.Errorf("recorder_queue_size must be non-negative, got %d", s.RecorderQueueSize)
	}
	if err := s.Spawner.Validate(); err != nil {
		return fmt.Errorf("spawner: %w", err)
	}
	if err := s.Progress.Validate(); err != nil {
		return fmt.Errorf("progress: %w", err)
	}
	return nil
}

// LoadServer loads server config from a YAML file.
// If the file doesn't exist, returns defaults.
func LoadServer(path string) (Server, error) {
	cfg := DefaultServer()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("validating config %s: %w", path, err)
	}

	return cfg, nil
}
