// Package config loads service configuration from file and environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	HTTP      HTTPConfig
	Database  DatabaseConfig
	Auth      AuthConfig
	Share     ShareConfig
	Generator GeneratorConfig
}

// HTTPConfig holds listener settings.
type HTTPConfig struct {
	Addr string
}

// DatabaseConfig holds PostgreSQL settings.
type DatabaseConfig struct {
	URL string
}

// AuthConfig holds token signing settings.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// ShareConfig holds invite link settings.
type ShareConfig struct {
	Host string
}

// GeneratorConfig holds resolution generator settings.
type GeneratorConfig struct {
	Model           string
	Timeout         time.Duration
	ReviewThreshold float64 `mapstructure:"review_threshold"`
}

// Load reads configuration from file and env. Env var overrides use prefix
// DISPUTEFLOW_, e.g. DISPUTEFLOW_DATABASE_URL.
func Load() (Config, error) {
	v := viper.New()

	// default values
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("database.url", "postgres://localhost:5432/disputeflow?sslmode=disable")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("share.host", "disputeflow.example.com")
	v.SetDefault("generator.model", "basic")
	v.SetDefault("generator.timeout", 30*time.Second)
	v.SetDefault("generator.review_threshold", 0.55)

	v.SetConfigType("toml")

	cfgPath := os.Getenv("DISPUTEFLOW_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("disputeflow")
	}

	v.SetEnvPrefix("DISPUTEFLOW")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// read config file if present
	_ = v.ReadInConfig()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if c.Auth.JWTSecret == "" {
		return Config{}, fmt.Errorf("config: auth.jwt_secret (DISPUTEFLOW_AUTH_JWT_SECRET) is required")
	}
	return c, nil
}
