package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mcdev12/eduhub/go/internal/demo"
	"github.com/mcdev12/eduhub/go/internal/gateway"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Demo    demo.Config    `yaml:"demo"`
	Gateway gateway.Config `yaml:"gateway"`
}

func defaultConfig() *Config {
	return &Config{
		Demo:    demo.DefaultConfig(),
		Gateway: gateway.DefaultConfig(),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// loadConfig reads the YAML file over the defaults. A missing file is not an error.
func loadConfig(path string) (*Config, error) {
	config := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	applyEnvOverrides(config)
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	return config, nil
}

func applyEnvOverrides(config *Config) {
	seconds := func(d time.Duration) int { return int(d / time.Second) }

	config.Demo.Duration = time.Duration(getEnvAsInt("DEMO_DURATION_SECONDS", seconds(config.Demo.Duration))) * time.Second
	config.Demo.ExpiringWindow = time.Duration(getEnvAsInt("DEMO_EXPIRING_SECONDS", seconds(config.Demo.ExpiringWindow))) * time.Second
	config.Gateway.LandingRoute = getEnv("DEMO_LANDING_ROUTE", config.Gateway.LandingRoute)
	if proxies := getEnv("TRUSTED_PROXIES", ""); proxies != "" {
		config.Gateway.TrustedProxies = strings.Split(proxies, ",")
	}
}

func validateConfig(config *Config) error {
	if config.Demo.Duration < time.Second {
		return fmt.Errorf("demo duration must be at least one second, got %s", config.Demo.Duration)
	}
	if config.Demo.ExpiringWindow < 0 {
		return fmt.Errorf("demo expiring window must not be negative, got %s", config.Demo.ExpiringWindow)
	}
	if config.Demo.LogoutTimeout <= 0 {
		config.Demo.LogoutTimeout = demo.DefaultConfig().LogoutTimeout
	}
	if config.Gateway.LandingRoute == "" {
		return fmt.Errorf("gateway landing route must not be empty")
	}
	return nil
}
