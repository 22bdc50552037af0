package config

import (
	"errors"
	"os"
	"time"

	"github.com/rs/zerolog/log"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// RegistryEndpoint is the base URL of the operator registry service.
	RegistryEndpoint string

	// YieldSourceEndpoint is the base URL of the ground-truth yield source.
	YieldSourceEndpoint string

	// FetchTimeout bounds every outbound registry or yield-source call.
	FetchTimeout time.Duration

	// RoundInterval is the cadence at which the orchestrator opens new
	// monitoring rounds per asset.
	RoundInterval time.Duration

	// WebPort is the port for the HTTP API and metrics endpoint.
	WebPort string
)

// LoadConfig loads configuration from environment variables and sets the global
// config vars. Endpoints are required; durations fall back to safe defaults.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	RegistryEndpoint, err = getEnv("REGISTRY_ENDPOINT")
	if err != nil {
		return err
	}

	YieldSourceEndpoint, err = getEnv("YIELD_SOURCE_ENDPOINT")
	if err != nil {
		return err
	}

	FetchTimeout = getEnvAsDuration("FETCH_TIMEOUT", 10*time.Second)
	RoundInterval = getEnvAsDuration("ROUND_INTERVAL", 10*time.Minute)

	WebPort = os.Getenv("WEB_PORT")
	if WebPort == "" {
		WebPort = "8080"
	}

	log.Debug().
		Str("RegistryEndpoint", RegistryEndpoint).
		Str("YieldSourceEndpoint", YieldSourceEndpoint).
		Dur("FetchTimeout", FetchTimeout).
		Dur("RoundInterval", RoundInterval).
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvAsDuration retrieves an environment variable as a time.Duration,
// falling back to the default when unset or unparsable.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Warn().Str("key", key).Str("value", valueStr).Msg("Invalid duration, using default")
		return defaultValue
	}
	return value
}
