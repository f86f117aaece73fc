// Package config содержит логику чтения конфигурации сервиса star-burger.
package config

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// DefaultGeocoderAddress — адрес геокодера Яндекса, используемый по умолчанию.
const DefaultGeocoderAddress = "https://geocode-maps.yandex.ru/1.x"

// Config содержит параметры конфигурации сервиса star-burger.
type Config struct {
	RunAddress         string `env:"RUN_ADDRESS"`
	DatabaseURI        string `env:"DATABASE_URI"`
	GeocoderAddress    string `env:"GEOCODER_ADDRESS"`
	GeocoderAPIKey     string `env:"GEOCODER_API_KEY"`
	GeocoderMaxRetries int    `env:"GEOCODER_MAX_RETRIES"`
	ManagerSecret      string `env:"MANAGER_SECRET"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envGeocoderAddress := cfg.GeocoderAddress
	envGeocoderAPIKey := cfg.GeocoderAPIKey
	envGeocoderMaxRetries := cfg.GeocoderMaxRetries
	envManagerSecret := cfg.ManagerSecret

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.GeocoderAddress, "g", DefaultGeocoderAddress, "geocoder base URL")
	flag.StringVar(&cfg.GeocoderAPIKey, "k", "", "geocoder API key")
	flag.IntVar(&cfg.GeocoderMaxRetries, "r", 3, "geocoder retry attempts")
	flag.StringVar(&cfg.ManagerSecret, "s", "", "manager console secret")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envGeocoderAddress != "" {
		cfg.GeocoderAddress = envGeocoderAddress
	}
	if envGeocoderAPIKey != "" {
		cfg.GeocoderAPIKey = envGeocoderAPIKey
	}
	if envGeocoderMaxRetries != 0 {
		cfg.GeocoderMaxRetries = envGeocoderMaxRetries
	}
	if envManagerSecret != "" {
		cfg.ManagerSecret = envManagerSecret
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.GeocoderAddress == "" {
		cfg.GeocoderAddress = DefaultGeocoderAddress
	}
	if cfg.GeocoderMaxRetries <= 0 {
		cfg.GeocoderMaxRetries = 3
	}

	return cfg, nil
}
