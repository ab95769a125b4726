package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// PlaceholderSecret is the sample secret shipped in example env files. It
// must be replaced before running in production.
const PlaceholderSecret = "your-secret-key-change-in-production"

// EnvProduction enables strict secret validation.
const EnvProduction = "production"

// Config holds application level configuration aggregated from env/config files.
// It is built once at startup and passed by value afterwards.
type Config struct {
	Env    string
	Server struct {
		Addr      string
		APIPrefix string
	}
	Database struct {
		URL string
	}
	Auth struct {
		SecretKey       string
		TokenTTLMinutes int
	}
	CORS struct {
		AllowedOrigins string
	}
	Log struct {
		Level string
	}
	Sentry struct {
		DSN string
	}
}

// Load reads configuration from environment variables and optional config files.
func Load() (Config, error) {
	// a missing .env is fine; real environment variables take precedence
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("INSTADASH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("env", "development")
	v.SetDefault("server.addr", "0.0.0.0:8000")
	v.SetDefault("server.apiprefix", "/api/v1")
	v.SetDefault("database.url", "file:data/instadash.db")
	v.SetDefault("auth.secretkey", "")
	v.SetDefault("auth.tokenttlminutes", 30)
	v.SetDefault("cors.allowedorigins", "http://localhost:3000,http://127.0.0.1:3000")
	v.SetDefault("log.level", "info")
	v.SetDefault("sentry.dsn", "")

	v.SetConfigName("config")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// Validate reports configuration errors that must stop the process.
// It returns warnings for settings that are acceptable outside production.
func (c Config) Validate() (warnings []string, err error) {
	var problems []string

	secret := strings.TrimSpace(c.Auth.SecretKey)
	switch {
	case secret == "":
		problems = append(problems, "auth secret key is required")
	case secret == PlaceholderSecret && c.IsProduction():
		problems = append(problems, "auth secret key must be changed from the placeholder in production")
	case secret == PlaceholderSecret:
		warnings = append(warnings, "auth secret key is the placeholder value; do not deploy this configuration")
	}

	if c.Auth.TokenTTLMinutes <= 0 {
		problems = append(problems, fmt.Sprintf("auth token ttl must be positive, got %d minutes", c.Auth.TokenTTLMinutes))
	}
	if strings.TrimSpace(c.Database.URL) == "" {
		problems = append(problems, "database url is required")
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		problems = append(problems, fmt.Sprintf("invalid log level %q", c.Log.Level))
	}

	if len(problems) > 0 {
		return warnings, fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return warnings, nil
}

// IsProduction reports whether the process runs in the production environment.
func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Env), EnvProduction)
}

// UsesPostgres reports whether the database URL selects the PostgreSQL backend.
func (c Config) UsesPostgres() bool {
	url := strings.ToLower(c.Database.URL)
	return strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://")
}

// AllowedOrigins splits the comma separated CORS origin list.
func (c Config) AllowedOrigins() []string {
	var origins []string
	for _, origin := range strings.Split(c.CORS.AllowedOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}
