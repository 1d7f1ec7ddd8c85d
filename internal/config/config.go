package config

import (
	"fmt"
	"os"
	"time"
)

type Config struct {
	DBSource       string
	Port           string
	Env            string
	GatewayTimeout time.Duration
}

func Load() (*Config, error) {
	dbSource := os.Getenv("DB_SOURCE")
	if dbSource == "" {
		return nil, fmt.Errorf("DB_SOURCE environment variable is required")
	}

	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}

	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	gatewayTimeout := 10 * time.Second
	if raw := os.Getenv("GATEWAY_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid GATEWAY_TIMEOUT %q: %w", raw, err)
		}
		gatewayTimeout = d
	}

	return &Config{
		DBSource:       dbSource,
		Port:           port,
		Env:            env,
		GatewayTimeout: gatewayTimeout,
	}, nil
}
