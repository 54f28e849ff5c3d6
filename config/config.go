package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	DB        DBConfig        `mapstructure:"db"`
	Extractor ExtractorConfig `mapstructure:"extractor"`
	Matcher   MatcherConfig   `mapstructure:"matcher"`
	Auth      AuthConfig      `mapstructure:"auth"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
	Cleanup   CleanupConfig   `mapstructure:"cleanup"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	DataDir   string `mapstructure:"data_dir"`
	UploadDir string `mapstructure:"upload_dir"` // leave proof documents land here
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// DBConfig holds database settings.
type DBConfig struct {
	File string `mapstructure:"file"` // path to the SQLite database file
}

// ExtractorBackend describes one embedding service endpoint.
// Backends are tried in the order they are listed until one succeeds.
type ExtractorBackend struct {
	Name    string `mapstructure:"name"`
	URL     string `mapstructure:"url"`
	APIKey  string `mapstructure:"api_key"`
	Timeout int    `mapstructure:"timeout_seconds"`
}

// ExtractorConfig holds settings for the embedding extraction service chain.
type ExtractorConfig struct {
	Backends []ExtractorBackend `mapstructure:"backends"`
}

// MatcherConfig holds the distance thresholds for identity matching.
// The enrollment threshold is deliberately tighter than the recognition
// threshold: enrollment must refuse likely re-registrations of the same
// face, while recognition has to tolerate lighting and pose variance.
type MatcherConfig struct {
	EnrollThreshold    float64 `mapstructure:"enroll_threshold"`
	RecognizeThreshold float64 `mapstructure:"recognize_threshold"`
}

// AuthConfig holds JWT verification settings. Token issuance is handled by
// an external identity service; we only verify the shared-secret signature.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Enabled   bool   `mapstructure:"enabled"`
}

// MQTTConfig holds settings for the optional attendance event publisher.
type MQTTConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Broker   string `mapstructure:"broker"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	ClientID string `mapstructure:"client_id"`
	Topic    string `mapstructure:"topic"`
}

// CleanupConfig controls the periodic ledger maintenance sweep. An
// interval of 0 disables it; cleanup then only runs through the API.
type CleanupConfig struct {
	IntervalHours int `mapstructure:"interval_hours"`
}

// Load reads configuration from a YAML file, environment variables and
// built-in defaults, in increasing order of precedence for the first two.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			log.Warnf("Config file %s does not exist, using defaults", configPath)
		} else {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			log.Infof("Config loaded from %s", configPath)
		}
	}

	// Environment variables overlay the file config.
	v.AutomaticEnv()
	v.SetEnvPrefix("ROLLCALL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := ensureDirectories(&cfg); err != nil {
		return nil, fmt.Errorf("failed to create required directories: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets built-in defaults for every config key.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.data_dir", "/data")
	v.SetDefault("server.upload_dir", "/data/uploads/leave_proofs")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "/data/logs/rollcall.log")

	// DB defaults
	v.SetDefault("db.file", "/data/rollcall.db")

	// Matcher defaults. Enrollment dedup is much stricter than attendance
	// recognition; the two values must never be collapsed into one.
	v.SetDefault("matcher.enroll_threshold", 8.0)
	v.SetDefault("matcher.recognize_threshold", 15.0)

	// Auth defaults
	v.SetDefault("auth.enabled", true)
	v.SetDefault("auth.jwt_secret", "")

	// MQTT defaults
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.client_id", "rollcall-go")
	v.SetDefault("mqtt.topic", "rollcall/attendance")

	// Cleanup defaults
	v.SetDefault("cleanup.interval_hours", 24)
}

// ensureDirectories makes sure all configured directories exist.
func ensureDirectories(cfg *Config) error {
	if cfg.Server.DataDir != "" {
		if err := os.MkdirAll(cfg.Server.DataDir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	if cfg.Server.UploadDir != "" {
		if err := os.MkdirAll(cfg.Server.UploadDir, 0755); err != nil {
			return fmt.Errorf("failed to create upload directory: %w", err)
		}
	}

	if cfg.Log.File != "" {
		logDir := filepath.Dir(cfg.Log.File)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	if cfg.DB.File != "" {
		dbDir := filepath.Dir(cfg.DB.File)
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	return nil
}
