// Package config loads application configuration from a .env file or the
// environment.
package config

import (
	"errors"

	"github.com/spf13/viper"
)

// Config holds all runtime settings for the tracking service.
type Config struct {
	ServerPort   string `mapstructure:"SERVER_PORT"`
	DatabaseURL  string `mapstructure:"DATABASE_URL"`
	JWTSecret    string `mapstructure:"JWT_SECRET"`
	ClientOrigin string `mapstructure:"CLIENT_ORIGIN"`
	LogLevel     string `mapstructure:"LOG_LEVEL"`

	// TechnicianPollSeconds is the single-entity consumer refresh cadence.
	TechnicianPollSeconds int `mapstructure:"TECHNICIAN_POLL_SECONDS"`
	// FleetPollSeconds is the fleet poll cadence, shorter than the single
	// entity one because dispatch views want fresher fleet-wide data.
	FleetPollSeconds int `mapstructure:"FLEET_POLL_SECONDS"`
	// ArrivingSoonMinutes is the ETA threshold for the arriving-soon flag.
	ArrivingSoonMinutes float64 `mapstructure:"ARRIVING_SOON_MINUTES"`
	// SessionTTLHours is the default tracking session lifetime.
	SessionTTLHours int `mapstructure:"SESSION_TTL_HOURS"`
}

// LoadConfig reads configuration from a .env file in path, falling back to
// environment variables when no file is present.
func LoadConfig(path string) (Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("TECHNICIAN_POLL_SECONDS", 30)
	viper.SetDefault("FLEET_POLL_SECONDS", 15)
	viper.SetDefault("ARRIVING_SOON_MINUTES", 10)
	viper.SetDefault("SESSION_TTL_HOURS", 24)

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
