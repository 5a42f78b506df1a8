package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/MarcoPoloResearchLab/irontrack/internal/database"
	"github.com/spf13/viper"
)

const (
	envPrefix           = "IRONTRACK"
	defaultHTTPHost     = "0.0.0.0"
	defaultHTTPPort     = 5678
	defaultDriver       = DriverSQLite
	defaultDatabasePath = "irontrack.db"
	defaultGeminiModel  = "gemini-2.5-flash"
	defaultLogLevel     = "info"
	defaultCORSOrigin   = "http://localhost:3000"
)

const (
	// DriverSQLite stores workouts in an embedded SQLite file.
	DriverSQLite = database.DriverSQLite
	// DriverPostgres stores workouts in a PostgreSQL database such as Supabase.
	DriverPostgres = database.DriverPostgres
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPHost           string
	HTTPPort           int
	Debug              bool
	DatabaseDriver     string
	DatabaseURL        string
	DatabasePath       string
	GeminiAPIKey       string
	GeminiModel        string
	APIKey             string
	LogLevel           string
	LogFile            string
	CORSAllowedOrigins []string
}

// HTTPAddress joins host and port into a listen address.
func (c AppConfig) HTTPAddress() string {
	return net.JoinHostPort(c.HTTPHost, strconv.Itoa(c.HTTPPort))
}

// DatabaseDSN returns the driver-specific location of the store.
func (c AppConfig) DatabaseDSN() string {
	if c.DatabaseDriver == DriverPostgres {
		return c.DatabaseURL
	}
	return c.DatabasePath
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.host", defaultHTTPHost)
	configViper.SetDefault("http.port", defaultHTTPPort)
	configViper.SetDefault("debug", false)
	configViper.SetDefault("database.driver", defaultDriver)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("gemini.model", defaultGeminiModel)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("cors.allowed_origins", []string{defaultCORSOrigin})
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPHost:           strings.TrimSpace(configViper.GetString("http.host")),
		HTTPPort:           configViper.GetInt("http.port"),
		Debug:              configViper.GetBool("debug"),
		DatabaseDriver:     strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabaseURL:        strings.TrimSpace(configViper.GetString("database.url")),
		DatabasePath:       strings.TrimSpace(configViper.GetString("database.path")),
		GeminiAPIKey:       strings.TrimSpace(configViper.GetString("gemini.api_key")),
		GeminiModel:        strings.TrimSpace(configViper.GetString("gemini.model")),
		APIKey:             configViper.GetString("api.key"),
		LogLevel:           configViper.GetString("log.level"),
		LogFile:            strings.TrimSpace(configViper.GetString("log.file")),
		CORSAllowedOrigins: splitOrigins(configViper.GetStringSlice("cors.allowed_origins")),
	}
	if cfg.Debug {
		cfg.LogLevel = "debug"
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// LoadStorage parses only the settings needed to reach the database.
func LoadStorage(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		DatabaseDriver: strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabaseURL:    strings.TrimSpace(configViper.GetString("database.url")),
		DatabasePath:   strings.TrimSpace(configViper.GetString("database.path")),
		LogLevel:       configViper.GetString("log.level"),
		LogFile:        strings.TrimSpace(configViper.GetString("log.file")),
	}
	if err := cfg.validateStorage(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// LoadParser parses only the settings needed to call the Gemini parser.
func LoadParser(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		GeminiAPIKey: strings.TrimSpace(configViper.GetString("gemini.api_key")),
		GeminiModel:  strings.TrimSpace(configViper.GetString("gemini.model")),
		LogLevel:     configViper.GetString("log.level"),
		LogFile:      strings.TrimSpace(configViper.GetString("log.file")),
	}
	if err := cfg.validateParser(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("api.key is required")
	}
	if err := c.validateParser(); err != nil {
		return err
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTPPort)
	}
	return c.validateStorage()
}

func (c AppConfig) validateParser() error {
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("gemini.api_key is required")
	}
	if c.GeminiModel == "" {
		return fmt.Errorf("gemini.model is required")
	}
	return nil
}

func (c AppConfig) validateStorage() error {
	switch c.DatabaseDriver {
	case DriverSQLite:
		if c.DatabasePath == "" {
			return fmt.Errorf("database.path is required")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("database.url is required")
		}
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.DatabaseDriver)
	}
	return nil
}

// splitOrigins accepts both list values and a single comma separated env value.
func splitOrigins(values []string) []string {
	origins := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				origins = append(origins, trimmed)
			}
		}
	}
	return origins
}
