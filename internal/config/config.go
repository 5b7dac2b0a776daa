// Package config holds the opencode-sessions settings, loaded through viper
// from flags, environment variables and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/strrl/opencode-sessions/internal/bootstrap"
	"github.com/strrl/opencode-sessions/internal/db"
	"github.com/strrl/opencode-sessions/internal/httpapi"
	"github.com/strrl/opencode-sessions/pkg/models"
)

// Backend names accepted by the backend setting
const (
	BackendHTTP   = "http"
	BackendSQLite = "sqlite"
	BackendDuckDB = "duckdb"
)

// Output formats accepted by the output setting
const (
	OutputTable = "table"
	OutputJSON  = "json"
	OutputYAML  = "yaml"
)

// EnvPrefix prefixes every environment override, e.g. OPENCODE_SESSIONS_BACKEND
const EnvPrefix = "OPENCODE_SESSIONS"

// Config holds all configuration options
type Config struct {
	Backend          string        `mapstructure:"backend"`
	URL              string        `mapstructure:"url"`
	Username         string        `mapstructure:"username"`
	Password         string        `mapstructure:"password"`
	Hostname         string        `mapstructure:"hostname"`
	Port             int           `mapstructure:"port"`
	ServerTimeout    time.Duration `mapstructure:"server_timeout"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	SessionListLimit int           `mapstructure:"session_list_limit"`
	DBPath           string        `mapstructure:"db_path"`
	ServerBinary     string        `mapstructure:"server_binary"`
	Output           string        `mapstructure:"output"`
	Log              LogConfig     `mapstructure:"log"`
}

// LogConfig configures logging
type LogConfig struct {
	Level  string `mapstructure:"level"`
	File   string `mapstructure:"file"`
	Format string `mapstructure:"format"` // "text" (default) or "json"
}

// Defaults returns the built-in configuration
func Defaults() Config {
	return Config{
		Backend:          BackendHTTP,
		Username:         httpapi.DefaultUsername,
		Hostname:         bootstrap.DefaultHostname,
		Port:             bootstrap.DefaultPort,
		ServerTimeout:    bootstrap.DefaultTimeout,
		RequestTimeout:   httpapi.DefaultRequestTimeout,
		SessionListLimit: models.DefaultSessionListLimit,
		DBPath:           DefaultDBPath(),
		ServerBinary:     bootstrap.DefaultBinary,
		Output:           OutputTable,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultDBPath returns where OpenCode keeps its database:
// $XDG_DATA_HOME/opencode/opencode.db, falling back to ~/.local/share.
func DefaultDBPath() string {
	if dataHome := os.Getenv("XDG_DATA_HOME"); dataHome != "" {
		return filepath.Join(dataHome, "opencode", "opencode.db")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".local", "share", "opencode", "opencode.db")
	}
	return filepath.Join(home, ".local", "share", "opencode", "opencode.db")
}

// DefaultConfigDir is the directory searched for config.yaml
func DefaultConfigDir() string {
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, "opencode-sessions")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "opencode-sessions")
}

// SetDefaults registers every default with v
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("backend", d.Backend)
	v.SetDefault("url", d.URL)
	v.SetDefault("username", d.Username)
	v.SetDefault("password", d.Password)
	v.SetDefault("hostname", d.Hostname)
	v.SetDefault("port", d.Port)
	v.SetDefault("server_timeout", d.ServerTimeout)
	v.SetDefault("request_timeout", d.RequestTimeout)
	v.SetDefault("session_list_limit", d.SessionListLimit)
	v.SetDefault("db_path", d.DBPath)
	v.SetDefault("server_binary", d.ServerBinary)
	v.SetDefault("output", d.Output)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.format", d.Log.Format)
}

// BindEnv maps OPENCODE_SESSIONS_* variables onto keys. The server
// credentials also honor the variables opencode serve itself reads.
func BindEnv(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.BindEnv("username", EnvPrefix+"_USERNAME", "OPENCODE_SERVER_USERNAME"); err != nil {
		return fmt.Errorf("failed to bind username env: %w", err)
	}
	if err := v.BindEnv("password", EnvPrefix+"_PASSWORD", "OPENCODE_SERVER_PASSWORD"); err != nil {
		return fmt.Errorf("failed to bind password env: %w", err)
	}
	return nil
}

// Load reads the config file into v and decodes the result.
// An explicit path must exist; the default location is optional.
func Load(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(DefaultConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Backend = strings.ToLower(cfg.Backend)
	cfg.Output = strings.ToLower(cfg.Output)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks settings that cannot be fixed up silently
func (c Config) Validate() error {
	switch c.Backend {
	case BackendHTTP, BackendSQLite, BackendDuckDB:
	default:
		return fmt.Errorf("invalid backend %q (want http, sqlite or duckdb)", c.Backend)
	}

	switch c.Output {
	case OutputTable, OutputJSON, OutputYAML:
	default:
		return fmt.Errorf("invalid output %q (want table, json or yaml)", c.Output)
	}

	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.ServerTimeout <= 0 {
		return fmt.Errorf("server_timeout must be positive, got %s", c.ServerTimeout)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %s", c.RequestTimeout)
	}
	if c.SessionListLimit <= 0 {
		return fmt.Errorf("session_list_limit must be positive, got %d", c.SessionListLimit)
	}
	if c.Backend != BackendHTTP && c.DBPath == "" {
		return fmt.Errorf("db_path is required for the %s backend", c.Backend)
	}
	return nil
}

// Engine returns the database engine for the sqlite and duckdb backends
func (c Config) Engine() db.Engine {
	if c.Backend == BackendDuckDB {
		return db.EngineDuckDB
	}
	return db.EngineSQLite
}

// ServerOptions returns the options used to spawn a local server
func (c Config) ServerOptions() bootstrap.Options {
	return bootstrap.Options{
		Binary:   c.ServerBinary,
		Hostname: c.Hostname,
		Port:     c.Port,
		Timeout:  c.ServerTimeout,
	}
}
